package chat

import (
	"context"
	"time"

	"nearprop/chat/internal/models"
	"nearprop/chat/internal/realtime"
)

// Gateway is the REST surface the controller drives.
type Gateway interface {
	ListRooms(ctx context.Context) ([]models.ChatRoom, error)
	CreateRoom(ctx context.Context, propertyID int64) (*models.ChatRoom, error)
	GetRoom(ctx context.Context, roomID int64) (*models.ChatRoom, error)
	ListMessages(ctx context.Context, roomID int64, page, size int) ([]models.Message, error)
	SendMessage(ctx context.Context, roomID int64, content string) (*models.Message, error)
	MarkRead(ctx context.Context, roomID, messageID int64) error
	ScheduleVisit(ctx context.Context, propertyID int64, at time.Time, note string) error
}

// Realtime is the broker connection.
type Realtime interface {
	Connect(ctx context.Context, token string) error
	SubscribeToRoom(roomID int64) error
	Publish(destination string, payload interface{}) error
	SetHandler(h realtime.FrameHandler)
	State() realtime.State
	Disconnect()
}

// Sessions reads the persisted login and the last active room.
type Sessions interface {
	Current(ctx context.Context) (*models.Session, error)
	LastRoom(ctx context.Context) (int64, error)
	SetLastRoom(ctx context.Context, roomID int64) error
}

// Mirror is the local cache of rooms and messages. It is never
// authoritative; failures are logged and ignored.
type Mirror interface {
	SaveRooms(ctx context.Context, rooms []models.ChatRoom) error
	GetRooms(ctx context.Context) ([]models.ChatRoom, error)
	SaveMessages(ctx context.Context, msgs []models.Message) error
	GetMessages(ctx context.Context, roomID int64, limit int) ([]models.Message, error)
}

// Notifier is told about every new message that did not come from the
// viewer.
type Notifier interface {
	Notify(ctx context.Context, room models.ChatRoom, msg models.Message) error
}
