package events_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"nearprop/chat/internal/events"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type MockClient struct {
	id          string
	RecvChannel chan events.Update

	mu     sync.Mutex
	closed int
}

func newMockClient(id string, buffer int) *MockClient {
	return &MockClient{id: id, RecvChannel: make(chan events.Update, buffer)}
}

func (c *MockClient) GetClientID() string                  { return c.id }
func (c *MockClient) GetSendChannel() chan<- events.Update { return c.RecvChannel }
func (c *MockClient) Run()                                 {}

func (c *MockClient) Close() {
	c.mu.Lock()
	c.closed++
	c.mu.Unlock()
}

func (c *MockClient) closes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func startHub(t *testing.T) (*events.Hub, context.CancelFunc) {
	t.Helper()
	hub := events.NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)
	return hub, cancel
}

func TestHub_RegisterBroadcastUnregister(t *testing.T) {
	hub, _ := startHub(t)
	a := newMockClient("a", 4)
	b := newMockClient("b", 4)

	hub.RegisterCh <- a
	hub.RegisterCh <- b
	require.Eventually(t, func() bool { return hub.Count() == 2 }, time.Second, 5*time.Millisecond)

	hub.Publish(events.Update{RoomID: 501})
	for _, c := range []*MockClient{a, b} {
		select {
		case u := <-c.RecvChannel:
			assert.Equal(t, int64(501), u.RoomID)
		case <-time.After(time.Second):
			t.Fatalf("client %s did not receive the update", c.id)
		}
	}

	hub.UnregisterCh <- a
	hub.UnregisterCh <- a
	assert.Eventually(t, func() bool { return hub.Count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, a.closes(), "closed exactly once")
}

func TestHub_DropsSlowClient(t *testing.T) {
	hub, _ := startHub(t)
	slow := newMockClient("slow", 0)

	hub.RegisterCh <- slow
	hub.Publish(events.Update{RoomID: 1})

	assert.Eventually(t, func() bool { return hub.Count() == 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, slow.closes())
}

func TestHub_ShutdownClosesClients(t *testing.T) {
	hub, cancel := startHub(t)
	c := newMockClient("c", 1)
	hub.RegisterCh <- c

	cancel()
	select {
	case <-hub.Done():
	case <-time.After(time.Second):
		t.Fatal("hub did not stop")
	}
	assert.Equal(t, 1, c.closes())
	assert.Zero(t, hub.Count())
}

func TestServeWS_StreamsUpdates(t *testing.T) {
	hub, _ := startHub(t)
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Count() == 1 }, time.Second, 5*time.Millisecond)
	hub.Publish(events.Update{RoomID: 501, State: "connected"})

	var got events.Update
	conn.SetReadDeadline(time.Now().Add(time.Second))
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, int64(501), got.RoomID)
	assert.Equal(t, "connected", got.State)

	conn.Close()
	assert.Eventually(t, func() bool { return hub.Count() == 0 }, time.Second, 5*time.Millisecond)
}
