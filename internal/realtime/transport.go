package realtime

import "context"

// Dialer opens one authenticated broker connection.
type Dialer interface {
	Dial(ctx context.Context, token string) (Conn, error)
}

// Conn is a live broker connection.
type Conn interface {
	// Subscribe starts delivery of a topic's frames.
	Subscribe(destination string) (Subscription, error)
	// Send publishes a JSON body to a destination.
	Send(destination string, body []byte) error
	// Done is closed when the transport drops.
	Done() <-chan struct{}
	Close() error
}

// Subscription delivers raw frame bodies for one topic. Messages is closed
// after Unsubscribe or when the connection drops.
type Subscription interface {
	Messages() <-chan []byte
	Unsubscribe() error
}
