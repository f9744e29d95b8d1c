package realtime_test

import (
	"context"
	"errors"
	"sync"

	"nearprop/chat/internal/realtime"
)

type sent struct {
	dest string
	body string
}

type fakeSub struct {
	dest string
	ch   chan []byte
	// hold, when set, keeps Unsubscribe waiting like a broker that is slow
	// to acknowledge.
	hold chan struct{}

	mu           sync.Mutex
	unsubscribed bool
}

func (s *fakeSub) Messages() <-chan []byte { return s.ch }

// Unsubscribe leaves the channel open so tests can model frames that were
// already in flight when the subscription was replaced.
func (s *fakeSub) Unsubscribe() error {
	s.mu.Lock()
	s.unsubscribed = true
	s.mu.Unlock()
	if s.hold != nil {
		<-s.hold
	}
	return nil
}

func (s *fakeSub) isUnsubscribed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unsubscribed
}

type fakeConn struct {
	mu     sync.Mutex
	hold   chan struct{}
	subs   []*fakeSub
	sent   []sent
	done   chan struct{}
	once   sync.Once
	closed bool
}

func newFakeConn() *fakeConn { return &fakeConn{done: make(chan struct{})} }

func (c *fakeConn) Subscribe(dest string) (realtime.Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := &fakeSub{dest: dest, ch: make(chan []byte, 8), hold: c.hold}
	c.subs = append(c.subs, s)
	return s, nil
}

func (c *fakeConn) Send(dest string, body []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, sent{dest: dest, body: string(body)})
	return nil
}

func (c *fakeConn) Done() <-chan struct{} { return c.done }

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.drop()
	return nil
}

// drop simulates the transport going away.
func (c *fakeConn) drop() { c.once.Do(func() { close(c.done) }) }

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) subscriptions() []*fakeSub {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*fakeSub(nil), c.subs...)
}

// holdUnsubscribes makes later subscriptions block in Unsubscribe until
// release is closed.
func (c *fakeConn) holdUnsubscribes(release chan struct{}) {
	c.mu.Lock()
	c.hold = release
	c.mu.Unlock()
}

func (c *fakeConn) sends() []sent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]sent(nil), c.sent...)
}

type fakeDialer struct {
	mu     sync.Mutex
	fail   int
	tokens []string
	conns  []*fakeConn
}

var errRefused = errors.New("connection refused")

func (d *fakeDialer) Dial(_ context.Context, token string) (realtime.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tokens = append(d.tokens, token)
	if d.fail > 0 {
		d.fail--
		return nil, errRefused
	}
	c := newFakeConn()
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *fakeDialer) dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.tokens)
}

func (d *fakeDialer) last() *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}

func (d *fakeDialer) all() []*fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*fakeConn(nil), d.conns...)
}

// gatedDialer holds every dial until the gate for its token is closed.
type gatedDialer struct {
	*fakeDialer
	gates   map[string]chan struct{}
	entered chan string
}

func newGatedDialer(tokens ...string) *gatedDialer {
	d := &gatedDialer{
		fakeDialer: &fakeDialer{},
		gates:      make(map[string]chan struct{}),
		entered:    make(chan string, len(tokens)),
	}
	for _, tok := range tokens {
		d.gates[tok] = make(chan struct{})
	}
	return d
}

func (d *gatedDialer) Dial(ctx context.Context, token string) (realtime.Conn, error) {
	d.entered <- token
	<-d.gates[token]
	return d.fakeDialer.Dial(ctx, token)
}
