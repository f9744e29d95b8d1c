package realtime

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"time"

	"nearprop/chat/internal/config"

	"github.com/go-stomp/stomp/v3"
	"github.com/gorilla/websocket"
)

// StompDialer connects to the backend's STOMP endpoint over a websocket.
// The bearer token travels both as a query parameter and as a header,
// since the broker accepts either.
type StompDialer struct {
	URL                string
	HandshakeTimeout   time.Duration
	HeartBeat          time.Duration
	UnsubscribeTimeout time.Duration
	WS                 *websocket.Dialer
}

func NewStompDialer(brokerURL string) *StompDialer {
	return &StompDialer{
		URL:                brokerURL,
		HandshakeTimeout:   config.HandshakeTimeout,
		HeartBeat:          config.HeartBeat,
		UnsubscribeTimeout: config.UnsubscribeTimeout,
		WS: &websocket.Dialer{
			HandshakeTimeout: config.HandshakeTimeout,
			Subprotocols:     []string{"v12.stomp", "v11.stomp"},
		},
	}
}

func (d *StompDialer) Dial(ctx context.Context, token string) (Conn, error) {
	u, err := url.Parse(d.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid broker url %q: %w", d.URL, err)
	}
	q := u.Query()
	q.Set(config.TokenQueryParam, token)
	u.RawQuery = q.Encode()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	ws, _, err := d.WS.DialContext(ctx, u.String(), header)
	if err != nil {
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}

	stream := newWSStream(ws)
	ws.SetReadDeadline(time.Now().Add(d.HandshakeTimeout))
	conn, err := stomp.Connect(stream,
		stomp.ConnOpt.Host(u.Hostname()),
		stomp.ConnOpt.Header("Authorization", "Bearer "+token),
		stomp.ConnOpt.HeartBeat(d.HeartBeat, d.HeartBeat),
		stomp.ConnOpt.UnsubscribeReceiptTimeout(d.UnsubscribeTimeout),
	)
	if err != nil {
		stream.Close()
		return nil, fmt.Errorf("stomp handshake failed: %w", err)
	}
	ws.SetReadDeadline(time.Time{})

	return &stompConn{conn: conn, stream: stream}, nil
}

type stompConn struct {
	conn   *stomp.Conn
	stream *wsStream
}

func (c *stompConn) Subscribe(destination string) (Subscription, error) {
	sub, err := c.conn.Subscribe(destination, stomp.AckAuto)
	if err != nil {
		return nil, err
	}
	s := &stompSub{sub: sub, out: make(chan []byte, 16), done: c.stream.done}
	go s.forward()
	return s, nil
}

func (c *stompConn) Send(destination string, body []byte) error {
	return c.conn.Send(destination, "application/json", body)
}

func (c *stompConn) Done() <-chan struct{} { return c.stream.done }

func (c *stompConn) Close() error {
	err := c.conn.MustDisconnect()
	c.stream.Close()
	return err
}

type stompSub struct {
	sub  *stomp.Subscription
	out  chan []byte
	done <-chan struct{}
}

// forward copies message bodies to out until the subscription closes, fails
// or the transport drops. The stomp reader blocks on a full sub.C, which
// would also hold back the UNSUBSCRIBE receipt, so sub.C is always drained.
func (s *stompSub) forward() {
	defer close(s.out)
	for {
		select {
		case msg, ok := <-s.sub.C:
			if !ok {
				return
			}
			if msg.Err != nil {
				log.Printf("WARNING: Subscription %s ended: %v", s.sub.Destination(), msg.Err)
				go s.drain()
				return
			}
			select {
			case s.out <- msg.Body:
			case <-s.done:
				return
			}
		case <-s.done:
			return
		}
	}
}

func (s *stompSub) drain() {
	for {
		select {
		case _, ok := <-s.sub.C:
			if !ok {
				return
			}
		case <-s.done:
			return
		}
	}
}

func (s *stompSub) Messages() <-chan []byte { return s.out }

func (s *stompSub) Unsubscribe() error { return s.sub.Unsubscribe() }
