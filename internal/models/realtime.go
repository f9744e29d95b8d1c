package models

// FrameType discriminates the JSON envelopes exchanged over the broker.
type FrameType string

const (
	FrameMessage      FrameType = "MESSAGE"
	FrameTyping       FrameType = "TYPING"
	FrameStopTyping   FrameType = "STOP_TYPING"
	FrameStatusUpdate FrameType = "STATUS_UPDATE"
)

// Frame is a realtime event for one room. Which fields are set depends on
// Type: Message for MESSAGE, MessageID+Status for STATUS_UPDATE,
// UserID+UserName for the typing pair.
type Frame struct {
	Type      FrameType     `json:"type"`
	RoomID    int64         `json:"roomId,omitempty"`
	Message   *Message      `json:"message,omitempty"`
	MessageID int64         `json:"messageId,omitempty"`
	Status    MessageStatus `json:"status,omitempty"`
	UserID    int64         `json:"userId,omitempty"`
	UserName  string        `json:"userName,omitempty"`
}

// TypingSignal marks a counterpart as composing in a room. It is never
// persisted.
type TypingSignal struct {
	RoomID   int64  `json:"roomId"`
	UserID   int64  `json:"userId"`
	UserName string `json:"userName"`
}

// KVEntry is a row of the local key-value table that stands in for the
// browser's persisted storage (session record, last active room).
type KVEntry struct {
	Key   string `gorm:"primaryKey;column:kv_key"`
	Value string `gorm:"type:text"`
}
