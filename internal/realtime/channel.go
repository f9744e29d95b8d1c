// Package realtime owns the single broker connection of the chat client:
// connect, fixed-delay reconnect, teardown, and one room-topic
// subscription at a time.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"nearprop/chat/internal/config"
	"nearprop/chat/internal/models"

	"github.com/jonboulle/clockwork"
)

// State is the connection badge.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	}
	return "disconnected"
}

var (
	ErrNotConnected = errors.New("realtime: not connected")
	ErrNoToken      = errors.New("realtime: no token")
	ErrClosed       = errors.New("realtime: channel closed")
)

// FrameHandler receives every inbound frame of the subscribed room.
type FrameHandler func(models.Frame)

// Options tunes a Channel. Zero values fall back to the client defaults.
type Options struct {
	ReconnectDelay time.Duration
	Clock          clockwork.Clock
	TopicPattern   string
}

// Channel is the explicitly owned broker connection. It is created once per
// process and handed to the chat controller.
type Channel struct {
	dialer         Dialer
	clock          clockwork.Clock
	reconnectDelay time.Duration
	topicPattern   string

	mu       sync.Mutex
	state    State
	token    string
	conn     Conn
	gen      uint64
	sub      Subscription
	subRoom  int64
	wantRoom int64
	timer    clockwork.Timer
	timerSeq uint64
	dialSeq  uint64
	closed   bool

	handler FrameHandler
	onState func(State)
}

func NewChannel(dialer Dialer, opts Options) *Channel {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = config.ReconnectDelay
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.TopicPattern == "" {
		opts.TopicPattern = config.RoomTopicPattern
	}
	return &Channel{
		dialer:         dialer,
		clock:          opts.Clock,
		reconnectDelay: opts.ReconnectDelay,
		topicPattern:   opts.TopicPattern,
	}
}

// SetHandler registers the frame reducer.
func (c *Channel) SetHandler(h FrameHandler) {
	c.mu.Lock()
	c.handler = h
	c.mu.Unlock()
}

// OnStateChange registers a badge listener. It is called with the channel
// lock held and must not call back into the Channel.
func (c *Channel) OnStateChange(f func(State)) {
	c.mu.Lock()
	c.onState = f
	c.mu.Unlock()
}

func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Room returns the room whose topic is currently subscribed, or 0.
func (c *Channel) Room() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subRoom
}

func (c *Channel) setStateLocked(s State) {
	if c.state == s {
		return
	}
	c.state = s
	if c.onState != nil {
		c.onState(s)
	}
}

// Connect opens the connection. It is a no-op while connecting or
// connected. A failed handshake leaves the channel Disconnected with one
// reconnect scheduled.
func (c *Channel) Connect(ctx context.Context, token string) error {
	if token == "" {
		return ErrNoToken
	}

	c.mu.Lock()
	if c.state != Disconnected {
		c.mu.Unlock()
		return nil
	}
	c.closed = false
	c.token = token
	c.stopTimerLocked()
	c.setStateLocked(Connecting)
	c.dialSeq++
	seq := c.dialSeq
	c.mu.Unlock()

	return c.dial(ctx, token, seq)
}

// dial completes only if no Disconnect or newer dial superseded seq.
func (c *Channel) dial(ctx context.Context, token string, seq uint64) error {
	conn, err := c.dialer.Dial(ctx, token)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.state != Connecting || seq != c.dialSeq {
		if conn != nil {
			conn.Close()
		}
		return ErrClosed
	}
	if err != nil {
		log.Printf("WARNING: Broker handshake failed, retrying in %s: %v", c.reconnectDelay, err)
		c.setStateLocked(Disconnected)
		c.scheduleReconnectLocked()
		return fmt.Errorf("realtime: connect: %w", err)
	}

	c.gen++
	c.conn = conn
	c.setStateLocked(Connected)
	log.Println("INFO: Broker connection established.")
	go c.watch(conn, c.gen)

	if c.wantRoom != 0 {
		if err := c.subscribeLocked(c.wantRoom); err != nil {
			log.Printf("ERROR: Failed to subscribe to room %d: %v", c.wantRoom, err)
		}
	}
	return nil
}

// watch turns a transport drop into Disconnected plus one reconnect.
func (c *Channel) watch(conn Conn, gen uint64) {
	<-conn.Done()

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen || c.conn != conn {
		return
	}
	c.conn = nil
	c.sub = nil
	c.subRoom = 0
	c.setStateLocked(Disconnected)
	log.Printf("WARNING: Broker connection lost, reconnecting in %s", c.reconnectDelay)
	if !c.closed {
		c.scheduleReconnectLocked()
	}
}

// scheduleReconnectLocked arms the reconnect timer unless one is pending.
func (c *Channel) scheduleReconnectLocked() {
	if c.timer != nil {
		return
	}
	c.timerSeq++
	seq := c.timerSeq
	c.timer = c.clock.AfterFunc(c.reconnectDelay, func() { go c.reconnect(seq) })
}

func (c *Channel) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.timerSeq++
}

func (c *Channel) reconnect(seq uint64) {
	c.mu.Lock()
	if seq != c.timerSeq {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	if c.closed || c.state != Disconnected || c.token == "" {
		c.mu.Unlock()
		return
	}
	token := c.token
	c.setStateLocked(Connecting)
	c.dialSeq++
	dialSeq := c.dialSeq
	c.mu.Unlock()

	_ = c.dial(context.Background(), token, dialSeq)
}

// SubscribeToRoom replaces the current room subscription. The room is
// remembered, so a channel that is not connected yet subscribes as soon as
// it is. The old topic is unsubscribed before the new one is subscribed,
// without holding the channel lock while the broker acknowledges.
func (c *Channel) SubscribeToRoom(roomID int64) error {
	c.mu.Lock()
	c.wantRoom = roomID
	if c.state != Connected {
		c.mu.Unlock()
		return nil
	}
	if c.sub != nil && c.subRoom == roomID {
		c.mu.Unlock()
		return nil
	}
	old, oldRoom := c.detachLocked()
	c.mu.Unlock()

	unsubscribe(old, oldRoom)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.wantRoom != roomID || c.state != Connected || c.sub != nil {
		// superseded while unsubscribing
		return nil
	}
	return c.subscribeLocked(roomID)
}

// detachLocked stops delivery of the current subscription and hands it
// back for unsubscribing outside the lock. pump drops whatever it still
// yields.
func (c *Channel) detachLocked() (Subscription, int64) {
	sub, room := c.sub, c.subRoom
	c.sub = nil
	c.subRoom = 0
	return sub, room
}

func unsubscribe(sub Subscription, roomID int64) {
	if sub == nil {
		return
	}
	if err := sub.Unsubscribe(); err != nil {
		log.Printf("WARNING: Failed to unsubscribe from room %d: %v", roomID, err)
	}
}

func (c *Channel) subscribeLocked(roomID int64) error {
	if old, oldRoom := c.detachLocked(); old != nil {
		go unsubscribe(old, oldRoom)
	}

	sub, err := c.conn.Subscribe(TopicFor(c.topicPattern, roomID))
	if err != nil {
		return fmt.Errorf("realtime: subscribe to room %d: %w", roomID, err)
	}
	c.sub = sub
	c.subRoom = roomID
	go c.pump(sub, roomID)
	return nil
}

// pump decodes frames of one subscription and dispatches them while that
// subscription is still the current one.
func (c *Channel) pump(sub Subscription, roomID int64) {
	for body := range sub.Messages() {
		var frame models.Frame
		if err := json.Unmarshal(body, &frame); err != nil {
			log.Printf("WARNING: Dropping undecodable frame for room %d: %v", roomID, err)
			continue
		}
		if frame.RoomID == 0 && frame.Message != nil {
			frame.RoomID = frame.Message.RoomID
		}
		if frame.RoomID == 0 {
			frame.RoomID = roomID
		}
		if frame.RoomID != roomID {
			log.Printf("WARNING: Dropping %s frame for room %d delivered on room %d", frame.Type, frame.RoomID, roomID)
			continue
		}
		if frame.Message != nil && frame.Message.RoomID == 0 {
			frame.Message.RoomID = roomID
		}

		c.mu.Lock()
		current := c.sub == sub
		handler := c.handler
		c.mu.Unlock()

		if !current {
			continue
		}
		if handler != nil {
			handler(frame)
		}
	}
}

// Publish sends payload as JSON. Nothing is queued: when the channel is not
// connected the publish is dropped with a warning.
func (c *Channel) Publish(destination string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	c.mu.Lock()
	conn := c.conn
	connected := c.state == Connected
	c.mu.Unlock()

	if !connected || conn == nil {
		log.Printf("WARNING: Dropping publish to %s: not connected", destination)
		return ErrNotConnected
	}
	return conn.Send(destination, body)
}

// Disconnect tears the channel down. No reconnect follows.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	c.closed = true
	c.stopTimerLocked()
	c.dialSeq++
	sub, room := c.detachLocked()
	c.wantRoom = 0
	conn := c.conn
	c.conn = nil
	c.gen++
	c.setStateLocked(Disconnected)
	c.mu.Unlock()

	unsubscribe(sub, room)
	if conn != nil {
		if err := conn.Close(); err != nil {
			log.Printf("WARNING: Failed to close broker connection: %v", err)
		}
	}
}

// TopicFor formats a room topic.
func TopicFor(pattern string, roomID int64) string {
	return fmt.Sprintf(pattern, roomID)
}

// TypingDestination is where typing signals for a room are published.
func TypingDestination(roomID int64) string {
	return fmt.Sprintf(config.TypingDestPattern, roomID)
}
