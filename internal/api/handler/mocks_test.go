package handler_test

import (
	"context"
	"time"

	"nearprop/chat/internal/chat"
	"nearprop/chat/internal/models"
	"nearprop/chat/internal/realtime"

	"github.com/stretchr/testify/mock"
)

type MockChatService struct {
	mock.Mock
}

func (m *MockChatService) Rooms() []models.ChatRoom {
	args := m.Called()
	return args.Get(0).([]models.ChatRoom)
}

func (m *MockChatService) RefreshRooms(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockChatService) OpenRoomForProperty(ctx context.Context, propertyID int64) (*models.ChatRoom, error) {
	args := m.Called(ctx, propertyID)
	room, _ := args.Get(0).(*models.ChatRoom)
	return room, args.Error(1)
}

func (m *MockChatService) ActivateRoom(ctx context.Context, roomID int64) error {
	return m.Called(ctx, roomID).Error(0)
}

func (m *MockChatService) ActiveRoom() int64 {
	return m.Called().Get(0).(int64)
}

func (m *MockChatService) Transcript(roomID int64) []models.Message {
	return m.Called(roomID).Get(0).([]models.Message)
}

func (m *MockChatService) LoadHistory(ctx context.Context, roomID int64, page int) (int, error) {
	args := m.Called(ctx, roomID, page)
	return args.Int(0), args.Error(1)
}

func (m *MockChatService) Typing(roomID int64) []models.TypingSignal {
	return m.Called(roomID).Get(0).([]models.TypingSignal)
}

func (m *MockChatService) MarkRead(ctx context.Context, roomID, messageID int64) (*chat.ReadCommand, error) {
	args := m.Called(ctx, roomID, messageID)
	cmd, _ := args.Get(0).(*chat.ReadCommand)
	return cmd, args.Error(1)
}

func (m *MockChatService) Send(ctx context.Context, text string) (*models.Message, error) {
	args := m.Called(ctx, text)
	msg, _ := args.Get(0).(*models.Message)
	return msg, args.Error(1)
}

func (m *MockChatService) KeyStroke(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockChatService) ScheduleVisit(ctx context.Context, propertyID int64, at time.Time, note string) error {
	return m.Called(ctx, propertyID, at, note).Error(0)
}

func (m *MockChatService) ConnectionState() realtime.State {
	return m.Called().Get(0).(realtime.State)
}

func (m *MockChatService) LoggedIn(ctx context.Context) bool {
	return m.Called(ctx).Bool(0)
}
