// Package chat reconciles REST history and realtime pushes into one
// ordered, deduplicated transcript per room and keeps the ephemeral view
// state around it: typing indicators, unread counts and read receipts.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"nearprop/chat/internal/config"
	"nearprop/chat/internal/models"
	"nearprop/chat/internal/realtime"
	"nearprop/chat/internal/session"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

var (
	ErrLoginRequired   = errors.New("please log in to continue")
	ErrStaleRoom       = errors.New("chat: room is no longer active")
	ErrNoActiveRoom    = errors.New("chat: no active room")
	ErrEmptyMessage    = errors.New("chat: message is empty")
	ErrInvalidProperty = errors.New("chat: invalid property id")
	ErrInvalidVisit    = errors.New("chat: visit must be scheduled in the future")
)

// maxEarlyStatuses bounds status updates held for messages not seen yet.
const maxEarlyStatuses = 256

type Options struct {
	Clock      clockwork.Clock
	PageSize   int
	TypingIdle time.Duration
	Mirror     Mirror
	Notifier   Notifier
}

// Controller is the chat view state of one viewer. All methods are safe
// for concurrent use.
type Controller struct {
	gw       Gateway
	rt       Realtime
	sessions Sessions
	mirror   Mirror
	notifier Notifier

	clock      clockwork.Clock
	pageSize   int
	typingIdle time.Duration

	creates singleflight.Group

	mu          sync.Mutex
	viewer      models.Session
	rooms       []models.ChatRoom
	active      int64
	transcripts map[int64]*transcript
	remote      map[int64]map[int64]*remoteTyping
	reads       map[string]*ReadCommand
	overlay     map[int64]string
	early       map[int64]models.MessageStatus
	own         ownTyping
	onUpdate    func(roomID int64)
}

func NewController(gw Gateway, rt Realtime, sessions Sessions, opts Options) *Controller {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.PageSize <= 0 {
		opts.PageSize = config.DefaultPageSize
	}
	if opts.TypingIdle <= 0 {
		opts.TypingIdle = config.TypingIdleTimeout
	}

	c := &Controller{
		gw:          gw,
		rt:          rt,
		sessions:    sessions,
		mirror:      opts.Mirror,
		notifier:    opts.Notifier,
		clock:       opts.Clock,
		pageSize:    opts.PageSize,
		typingIdle:  opts.TypingIdle,
		transcripts: make(map[int64]*transcript),
		remote:      make(map[int64]map[int64]*remoteTyping),
		reads:       make(map[string]*ReadCommand),
		overlay:     make(map[int64]string),
		early:       make(map[int64]models.MessageStatus),
	}
	rt.SetHandler(c.HandleFrame)
	return c
}

// OnUpdate registers a listener called after any change to a room's view
// state. roomID is 0 for room-list changes.
func (c *Controller) OnUpdate(f func(roomID int64)) {
	c.mu.Lock()
	c.onUpdate = f
	c.mu.Unlock()
}

func (c *Controller) emit(roomID int64) {
	c.mu.Lock()
	f := c.onUpdate
	c.mu.Unlock()
	if f != nil {
		f(roomID)
	}
}

// requireSession gates every operation that needs a login. A missing or
// expired session becomes ErrLoginRequired before any network call.
func (c *Controller) requireSession(ctx context.Context) (*models.Session, error) {
	sess, err := c.sessions.Current(ctx)
	if errors.Is(err, session.ErrNoSession) || errors.Is(err, session.ErrExpired) {
		return nil, ErrLoginRequired
	}
	if err != nil {
		return nil, fmt.Errorf("read session: %w", err)
	}
	if sess == nil || sess.Token == "" {
		return nil, ErrLoginRequired
	}

	c.mu.Lock()
	c.viewer = *sess
	c.mu.Unlock()
	return sess, nil
}

// Start loads the room list, connects the broker and reopens the last
// active room.
func (c *Controller) Start(ctx context.Context) error {
	sess, err := c.requireSession(ctx)
	if err != nil {
		return err
	}
	c.restoreRooms(ctx)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.RefreshRooms(gctx)
	})
	g.Go(func() error {
		c.connect(gctx, sess)
		return nil
	})
	if err := g.Wait(); err != nil {
		log.Printf("WARNING: Room list unavailable, using cached rooms: %v", err)
	}

	if err := c.ResumeLastRoom(ctx); err != nil && !errors.Is(err, ErrNoActiveRoom) {
		return err
	}
	return nil
}

// connect is best effort: a failed handshake is retried by the channel.
func (c *Controller) connect(ctx context.Context, sess *models.Session) {
	if err := c.rt.Connect(ctx, sess.Token); err != nil {
		log.Printf("WARNING: Realtime channel not connected yet: %v", err)
	}
}

func (c *Controller) restoreRooms(ctx context.Context) {
	if c.mirror == nil {
		return
	}
	rooms, err := c.mirror.GetRooms(ctx)
	if err != nil {
		log.Printf("WARNING: Failed to read cached rooms: %v", err)
		return
	}
	c.mu.Lock()
	if len(c.rooms) == 0 {
		c.rooms = rooms
	}
	c.mu.Unlock()
}

// Stop tears down the broker connection and all timers.
func (c *Controller) Stop() {
	c.mu.Lock()
	room, typing := c.stopOwnTypingLocked()
	viewer := c.viewer
	for _, users := range c.remote {
		for _, rt := range users {
			rt.timer.Stop()
		}
	}
	c.remote = make(map[int64]map[int64]*remoteTyping)
	c.mu.Unlock()

	if typing {
		c.publishStopTyping(room, viewer)
	}
	c.rt.Disconnect()
}

func (c *Controller) RefreshRooms(ctx context.Context) error {
	if _, err := c.requireSession(ctx); err != nil {
		return err
	}
	rooms, err := c.gw.ListRooms(ctx)
	if err != nil {
		return fmt.Errorf("refresh rooms: %w", err)
	}

	c.mu.Lock()
	c.rooms = rooms
	c.mu.Unlock()

	c.mirrorRooms(ctx, rooms)
	c.emit(0)
	return nil
}

// OpenRoomForProperty reuses the viewer's room for a property or creates
// one, then activates it. Concurrent opens for one property share a
// single lookup and create.
func (c *Controller) OpenRoomForProperty(ctx context.Context, propertyID int64) (*models.ChatRoom, error) {
	if _, err := c.requireSession(ctx); err != nil {
		return nil, err
	}
	if propertyID <= 0 {
		return nil, ErrInvalidProperty
	}

	v, err, _ := c.creates.Do(strconv.FormatInt(propertyID, 10), func() (interface{}, error) {
		if room, ok := c.roomForProperty(propertyID); ok {
			return room, nil
		}
		// The cache may predate a room created elsewhere.
		if err := c.RefreshRooms(ctx); err != nil {
			log.Printf("WARNING: Could not refresh rooms before creating one: %v", err)
		} else if room, ok := c.roomForProperty(propertyID); ok {
			return room, nil
		}

		room, err := c.gw.CreateRoom(ctx, propertyID)
		if err != nil {
			return nil, fmt.Errorf("create room: %w", err)
		}
		if room.PropertyID == 0 {
			room.PropertyID = propertyID
		}
		c.upsertRoom(*room)
		c.mirrorRooms(ctx, []models.ChatRoom{*room})
		c.emit(0)
		log.Printf("INFO: Created room %d for property %d", room.ID, propertyID)
		return *room, nil
	})
	if err != nil {
		return nil, err
	}

	room := v.(models.ChatRoom)
	if err := c.ActivateRoom(ctx, room.ID); err != nil {
		return &room, err
	}
	return &room, nil
}

func (c *Controller) roomForProperty(propertyID int64) (models.ChatRoom, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range c.rooms {
		if r.PropertyID == propertyID {
			return r, true
		}
	}
	return models.ChatRoom{}, false
}

func (c *Controller) upsertRoom(room models.ChatRoom) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.rooms {
		if c.rooms[i].ID == room.ID {
			c.rooms[i] = room
			return
		}
	}
	c.rooms = append(c.rooms, room)
}

// roomLocked returns a pointer into the room list, or nil.
func (c *Controller) roomLocked(roomID int64) *models.ChatRoom {
	for i := range c.rooms {
		if c.rooms[i].ID == roomID {
			return &c.rooms[i]
		}
	}
	return nil
}

// insertLocked merges m into its room's transcript, folding in a status
// update that arrived before the message, and returns the merged entry.
func (c *Controller) insertLocked(m models.Message) (models.Message, bool) {
	if st, ok := c.early[m.ID]; ok {
		m.Status = m.Status.Advance(st)
		delete(c.early, m.ID)
	}
	t := c.transcriptLocked(m.RoomID)
	inserted := t.insert(m)
	merged, _ := t.get(m.ID)
	return merged, inserted
}

func (c *Controller) transcriptLocked(roomID int64) *transcript {
	t, ok := c.transcripts[roomID]
	if !ok {
		t = newTranscript()
		c.transcripts[roomID] = t
	}
	return t
}

// ActivateRoom makes roomID the active room: it swaps the realtime
// subscription, remembers the room and loads the first history page.
func (c *Controller) ActivateRoom(ctx context.Context, roomID int64) error {
	sess, err := c.requireSession(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	known := c.roomLocked(roomID) != nil
	c.mu.Unlock()
	if !known {
		room, err := c.gw.GetRoom(ctx, roomID)
		if err != nil {
			return fmt.Errorf("get room %d: %w", roomID, err)
		}
		c.upsertRoom(*room)
		c.mirrorRooms(ctx, []models.ChatRoom{*room})
	}

	c.mu.Lock()
	prev := c.active
	c.active = roomID
	var typingRoom int64
	var wasTyping bool
	if prev != roomID {
		typingRoom, wasTyping = c.stopOwnTypingLocked()
	}
	empty := c.transcriptLocked(roomID).len() == 0
	c.mu.Unlock()

	if wasTyping {
		c.publishStopTyping(typingRoom, *sess)
	}
	if empty {
		c.preload(ctx, roomID)
	}

	c.connect(ctx, sess)
	if err := c.rt.SubscribeToRoom(roomID); err != nil {
		log.Printf("ERROR: Failed to subscribe to room %d: %v", roomID, err)
	}
	if err := c.sessions.SetLastRoom(ctx, roomID); err != nil {
		log.Printf("WARNING: Failed to remember room %d: %v", roomID, err)
	}
	c.emit(roomID)

	_, err = c.LoadHistory(ctx, roomID, 0)
	return err
}

// preload fills an empty transcript from the local mirror.
func (c *Controller) preload(ctx context.Context, roomID int64) {
	if c.mirror == nil {
		return
	}
	msgs, err := c.mirror.GetMessages(ctx, roomID, c.pageSize)
	if err != nil {
		log.Printf("WARNING: Failed to read cached messages for room %d: %v", roomID, err)
		return
	}
	c.mu.Lock()
	for _, m := range msgs {
		if m.RoomID == 0 {
			m.RoomID = roomID
		}
		c.insertLocked(m)
	}
	c.mu.Unlock()
}

// ResumeLastRoom reactivates the room remembered from a previous run.
func (c *Controller) ResumeLastRoom(ctx context.Context) error {
	if _, err := c.requireSession(ctx); err != nil {
		return err
	}
	roomID, err := c.sessions.LastRoom(ctx)
	if err != nil {
		return fmt.Errorf("read last room: %w", err)
	}
	if roomID == 0 {
		return ErrNoActiveRoom
	}
	return c.ActivateRoom(ctx, roomID)
}

// LoadHistory fetches one page and merges it, skipping known ids. The
// result is discarded with ErrStaleRoom if roomID is not the active room
// when the request is issued or when it completes.
func (c *Controller) LoadHistory(ctx context.Context, roomID int64, page int) (int, error) {
	if _, err := c.requireSession(ctx); err != nil {
		return 0, err
	}
	if page < 0 {
		page = 0
	}

	c.mu.Lock()
	issuedFor := c.active
	c.mu.Unlock()
	if issuedFor != roomID {
		return 0, ErrStaleRoom
	}

	msgs, err := c.gw.ListMessages(ctx, roomID, page, c.pageSize)
	if err != nil {
		return 0, fmt.Errorf("load history: %w", err)
	}

	c.mu.Lock()
	if now := c.active; now != issuedFor {
		c.mu.Unlock()
		log.Printf("INFO: Discarding history page %d for room %d, room %d is active", page, roomID, now)
		return 0, ErrStaleRoom
	}
	added := 0
	merged := make([]models.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.RoomID == 0 {
			m.RoomID = roomID
		}
		stored, inserted := c.insertLocked(m)
		if inserted {
			added++
		}
		merged = append(merged, stored)
	}
	c.mu.Unlock()

	c.mirrorMessages(ctx, merged)
	c.emit(roomID)
	return added, nil
}

// HandleFrame is the realtime reducer.
func (c *Controller) HandleFrame(frame models.Frame) {
	switch frame.Type {
	case models.FrameMessage:
		if frame.Message == nil {
			log.Printf("WARNING: MESSAGE frame for room %d has no message", frame.RoomID)
			return
		}
		msg := *frame.Message
		if msg.RoomID == 0 {
			msg.RoomID = frame.RoomID
		}
		c.ReceiveRealtimeMessage(msg)
	case models.FrameStatusUpdate:
		c.applyStatus(frame.RoomID, frame.MessageID, frame.Status)
	case models.FrameTyping:
		c.handleTyping(frame)
	case models.FrameStopTyping:
		c.remoteStopTyping(frame.RoomID, frame.UserID)
	default:
		log.Printf("WARNING: Ignoring unknown frame type %q", frame.Type)
	}
}

// ReceiveRealtimeMessage inserts a pushed message into its room's
// transcript. The notifier hears about new messages from the counterpart.
func (c *Controller) ReceiveRealtimeMessage(msg models.Message) {
	if msg.ID == 0 {
		log.Printf("WARNING: Dropping realtime message without id for room %d", msg.RoomID)
		return
	}

	c.mu.Lock()
	if msg.RoomID == 0 {
		msg.RoomID = c.active
	}
	if msg.SenderID != 0 && msg.SenderID == c.viewer.UserID {
		msg.Mine = true
	}
	stored, inserted := c.insertLocked(msg)

	var room models.ChatRoom
	if r := c.roomLocked(msg.RoomID); r != nil {
		if inserted {
			r.LastMessage = msg.Content
			if !msg.Mine && msg.RoomID != c.active {
				r.UnreadCount++
			}
		}
		room = *r
	} else {
		room = models.ChatRoom{ID: msg.RoomID}
	}
	if !msg.Mine {
		c.clearRemoteTypingLocked(msg.RoomID, msg.SenderID)
	}
	c.mu.Unlock()

	c.mirrorMessages(context.Background(), []models.Message{stored})
	if inserted {
		if !msg.Mine && c.notifier != nil {
			if err := c.notifier.Notify(context.Background(), room, msg); err != nil {
				log.Printf("WARNING: Notification for message %d failed: %v", msg.ID, err)
			}
		}
	}
	c.emit(msg.RoomID)
}

// applyStatus advances a message's status. An update for a message no
// transcript holds yet, such as a READ racing the send reply, is kept until
// the message arrives.
func (c *Controller) applyStatus(roomID, messageID int64, status models.MessageStatus) {
	if messageID == 0 || !status.Valid() {
		log.Printf("WARNING: Ignoring status update %q for message %d", status, messageID)
		return
	}

	c.mu.Lock()
	t, ok := c.transcripts[roomID]
	if ok {
		_, ok = t.get(messageID)
	}
	if !ok {
		t = nil
		for id, candidate := range c.transcripts {
			if _, ok := candidate.get(messageID); ok {
				t, roomID = candidate, id
				break
			}
		}
	}
	if t == nil {
		c.holdStatusLocked(messageID, status)
		c.mu.Unlock()
		return
	}
	changed := t.advance(messageID, status)
	merged, _ := t.get(messageID)
	c.mu.Unlock()

	if changed {
		c.mirrorMessages(context.Background(), []models.Message{merged})
		c.emit(roomID)
	}
}

func (c *Controller) holdStatusLocked(messageID int64, status models.MessageStatus) {
	if _, ok := c.early[messageID]; !ok && len(c.early) >= maxEarlyStatuses {
		for id := range c.early {
			delete(c.early, id)
			break
		}
	}
	c.early[messageID] = c.early[messageID].Advance(status)
}

// Send posts text to the active room. Nothing is appended until the
// backend returns the stored message, so the realtime echo dedups against
// it.
func (c *Controller) Send(ctx context.Context, text string) (*models.Message, error) {
	sess, err := c.requireSession(ctx)
	if err != nil {
		return nil, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}

	c.mu.Lock()
	roomID := c.active
	if roomID == 0 {
		c.mu.Unlock()
		return nil, ErrNoActiveRoom
	}
	typingRoom, wasTyping := c.stopOwnTypingLocked()
	c.mu.Unlock()

	if wasTyping {
		c.publishStopTyping(typingRoom, *sess)
	}

	msg, err := c.gw.SendMessage(ctx, roomID, text)
	if err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}
	if msg.RoomID == 0 {
		msg.RoomID = roomID
	}
	msg.Mine = true

	c.mu.Lock()
	stored, _ := c.insertLocked(*msg)
	if r := c.roomLocked(msg.RoomID); r != nil {
		r.LastMessage = msg.Content
	}
	c.mu.Unlock()

	*msg = stored
	c.mirrorMessages(ctx, []models.Message{stored})
	c.emit(msg.RoomID)
	return msg, nil
}

// ScheduleVisit books a property visit for the viewer.
func (c *Controller) ScheduleVisit(ctx context.Context, propertyID int64, at time.Time, note string) error {
	if _, err := c.requireSession(ctx); err != nil {
		return err
	}
	if propertyID <= 0 {
		return ErrInvalidProperty
	}
	if !at.After(c.clock.Now()) {
		return ErrInvalidVisit
	}
	if err := c.gw.ScheduleVisit(ctx, propertyID, at, strings.TrimSpace(note)); err != nil {
		return fmt.Errorf("schedule visit: %w", err)
	}
	return nil
}

// Rooms returns the cached room list with pending read receipts applied.
func (c *Controller) Rooms() []models.ChatRoom {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.ChatRoom(nil), c.rooms...)
}

func (c *Controller) Room(roomID int64) (models.ChatRoom, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r := c.roomLocked(roomID); r != nil {
		return *r, true
	}
	return models.ChatRoom{}, false
}

func (c *Controller) ActiveRoom() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Transcript returns the ordered messages of a room as the viewer sees
// them, including optimistic READ marks.
func (c *Controller) Transcript(roomID int64) []models.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.transcripts[roomID]
	if !ok {
		return nil
	}
	msgs := t.snapshot()
	for i := range msgs {
		if _, pending := c.overlay[msgs[i].ID]; pending {
			msgs[i].Status = msgs[i].Status.Advance(models.StatusRead)
		}
	}
	return msgs
}

func (c *Controller) ConnectionState() realtime.State {
	return c.rt.State()
}

// LoggedIn reports whether a valid session exists.
func (c *Controller) LoggedIn(ctx context.Context) bool {
	_, err := c.requireSession(ctx)
	return err == nil
}

func (c *Controller) mirrorRooms(ctx context.Context, rooms []models.ChatRoom) {
	if c.mirror == nil || len(rooms) == 0 {
		return
	}
	if err := c.mirror.SaveRooms(ctx, rooms); err != nil {
		log.Printf("WARNING: Failed to cache rooms: %v", err)
	}
}

func (c *Controller) mirrorMessages(ctx context.Context, msgs []models.Message) {
	if c.mirror == nil || len(msgs) == 0 {
		return
	}
	if err := c.mirror.SaveMessages(ctx, msgs); err != nil {
		log.Printf("WARNING: Failed to cache messages: %v", err)
	}
}
