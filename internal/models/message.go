package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// MessageStatus is the delivery state of a message. It only moves forward:
// SENT -> DELIVERED -> READ.
type MessageStatus string

const (
	StatusSent      MessageStatus = "SENT"
	StatusDelivered MessageStatus = "DELIVERED"
	StatusRead      MessageStatus = "READ"
)

func (s MessageStatus) rank() int {
	switch s {
	case StatusSent:
		return 1
	case StatusDelivered:
		return 2
	case StatusRead:
		return 3
	}
	return 0
}

// Valid reports whether s is one of the known statuses.
func (s MessageStatus) Valid() bool { return s.rank() > 0 }

// Advance returns the later of s and next. Unknown statuses never win.
func (s MessageStatus) Advance(next MessageStatus) MessageStatus {
	if next.rank() > s.rank() {
		return next
	}
	return s
}

// Message is a single chat message. A message belongs to exactly one room
// and is ordered by its server-assigned CreatedAt.
type Message struct {
	ID        int64         `gorm:"primaryKey;autoIncrement:false" json:"id"`
	RoomID    int64         `gorm:"index:idx_room_created" json:"roomId"`
	SenderID  int64         `json:"senderId,omitempty"`
	Content   string        `gorm:"type:text;not null" json:"content"`
	Status    MessageStatus `gorm:"type:text" json:"status"`
	Mine      bool          `json:"mine"`
	CreatedAt time.Time     `gorm:"index:idx_room_created" json:"createdAt"`
}

// UnmarshalJSON accepts createdAt as RFC 3339, as a zone-less local
// date-time, or as epoch milliseconds.
func (m *Message) UnmarshalJSON(data []byte) error {
	type alias Message
	var wire struct {
		alias
		CreatedAt json.RawMessage `json:"createdAt"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	*m = Message(wire.alias)
	if len(wire.CreatedAt) == 0 || string(wire.CreatedAt) == "null" {
		m.CreatedAt = time.Time{}
		return nil
	}
	ts, err := ParseTimestamp(wire.CreatedAt)
	if err != nil {
		return fmt.Errorf("message %d: %w", m.ID, err)
	}
	m.CreatedAt = ts
	return nil
}

var localLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ParseTimestamp decodes the timestamp encodings the chat backend emits.
func ParseTimestamp(raw json.RawMessage) (time.Time, error) {
	text := strings.TrimSpace(string(raw))
	if text == "" {
		return time.Time{}, nil
	}
	if text[0] != '"' {
		ms, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid timestamp %s", text)
		}
		return time.UnixMilli(ms).UTC(), nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return time.Time{}, err
	}
	if s == "" {
		return time.Time{}, nil
	}
	if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return ts, nil
	}
	for _, layout := range localLayouts {
		if ts, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}
