package chat_test

import (
	"context"
	"sync"
	"time"

	"nearprop/chat/internal/models"
	"nearprop/chat/internal/realtime"
	"nearprop/chat/internal/session"

	"github.com/stretchr/testify/mock"
)

type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) ListRooms(ctx context.Context) ([]models.ChatRoom, error) {
	args := m.Called(ctx)
	return args.Get(0).([]models.ChatRoom), args.Error(1)
}

func (m *MockGateway) CreateRoom(ctx context.Context, propertyID int64) (*models.ChatRoom, error) {
	args := m.Called(ctx, propertyID)
	room, _ := args.Get(0).(*models.ChatRoom)
	return room, args.Error(1)
}

func (m *MockGateway) GetRoom(ctx context.Context, roomID int64) (*models.ChatRoom, error) {
	args := m.Called(ctx, roomID)
	room, _ := args.Get(0).(*models.ChatRoom)
	return room, args.Error(1)
}

func (m *MockGateway) ListMessages(ctx context.Context, roomID int64, page, size int) ([]models.Message, error) {
	args := m.Called(ctx, roomID, page, size)
	msgs, _ := args.Get(0).([]models.Message)
	return msgs, args.Error(1)
}

func (m *MockGateway) SendMessage(ctx context.Context, roomID int64, content string) (*models.Message, error) {
	args := m.Called(ctx, roomID, content)
	msg, _ := args.Get(0).(*models.Message)
	return msg, args.Error(1)
}

func (m *MockGateway) MarkRead(ctx context.Context, roomID, messageID int64) error {
	args := m.Called(ctx, roomID, messageID)
	return args.Error(0)
}

func (m *MockGateway) ScheduleVisit(ctx context.Context, propertyID int64, at time.Time, note string) error {
	args := m.Called(ctx, propertyID, at, note)
	return args.Error(0)
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Notify(ctx context.Context, room models.ChatRoom, msg models.Message) error {
	args := m.Called(ctx, room, msg)
	return args.Error(0)
}

type published struct {
	dest  string
	frame models.Frame
}

// fakeRealtime records what the controller asks of the broker channel.
type fakeRealtime struct {
	mu        sync.Mutex
	state     realtime.State
	tokens    []string
	rooms     []int64
	sent      []published
	handler   realtime.FrameHandler
	teardowns int
}

func (f *fakeRealtime) Connect(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == realtime.Connected {
		return nil
	}
	f.tokens = append(f.tokens, token)
	f.state = realtime.Connected
	return nil
}

func (f *fakeRealtime) SubscribeToRoom(roomID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rooms = append(f.rooms, roomID)
	return nil
}

func (f *fakeRealtime) Publish(dest string, payload interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, published{dest: dest, frame: payload.(models.Frame)})
	return nil
}

func (f *fakeRealtime) SetHandler(h realtime.FrameHandler) {
	f.mu.Lock()
	f.handler = h
	f.mu.Unlock()
}

func (f *fakeRealtime) State() realtime.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeRealtime) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = realtime.Disconnected
	f.teardowns++
}

func (f *fakeRealtime) published(kind models.FrameType) []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []published
	for _, p := range f.sent {
		if p.frame.Type == kind {
			out = append(out, p)
		}
	}
	return out
}

func (f *fakeRealtime) subscriptions() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.rooms...)
}

type fakeSessions struct {
	mu   sync.Mutex
	sess *models.Session
	err  error
	last int64
}

func (f *fakeSessions) Current(context.Context) (*models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.sess == nil {
		return nil, session.ErrNoSession
	}
	s := *f.sess
	return &s, nil
}

func (f *fakeSessions) LastRoom(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last, nil
}

func (f *fakeSessions) SetLastRoom(_ context.Context, roomID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.last = roomID
	return nil
}

// fakeMirror keeps the last written copy of every room and message.
type fakeMirror struct {
	mu    sync.Mutex
	rooms map[int64]models.ChatRoom
	msgs  map[int64]models.Message
}

func newFakeMirror() *fakeMirror {
	return &fakeMirror{rooms: map[int64]models.ChatRoom{}, msgs: map[int64]models.Message{}}
}

func (f *fakeMirror) SaveRooms(_ context.Context, rooms []models.ChatRoom) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range rooms {
		f.rooms[r.ID] = r
	}
	return nil
}

func (f *fakeMirror) GetRooms(context.Context) ([]models.ChatRoom, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.ChatRoom, 0, len(f.rooms))
	for _, r := range f.rooms {
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeMirror) SaveMessages(_ context.Context, msgs []models.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range msgs {
		f.msgs[m.ID] = m
	}
	return nil
}

func (f *fakeMirror) GetMessages(_ context.Context, roomID int64, _ int) ([]models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Message
	for _, m := range f.msgs {
		if m.RoomID == roomID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeMirror) status(id int64) models.MessageStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.msgs[id].Status
}
