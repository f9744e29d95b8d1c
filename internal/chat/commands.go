package chat

import (
	"context"
	"fmt"
	"time"

	"nearprop/chat/internal/models"

	"github.com/google/uuid"
)

type CommandState string

const (
	CommandPending   CommandState = "PENDING"
	CommandConfirmed CommandState = "CONFIRMED"
	CommandFailed    CommandState = "FAILED"
)

// ReadCommand tracks one mark-read request. While pending, the message is
// shown as READ and the room's unread count is lowered; a failure undoes
// both.
type ReadCommand struct {
	ID        string       `json:"id"`
	RoomID    int64        `json:"roomId"`
	MessageID int64        `json:"messageId"`
	State     CommandState `json:"state"`
	IssuedAt  time.Time    `json:"issuedAt"`
	Error     string       `json:"error,omitempty"`

	tookUnread bool
}

// MarkRead marks a message read optimistically and confirms it with the
// backend. A second call for a message with a pending command returns that
// command without another request.
func (c *Controller) MarkRead(ctx context.Context, roomID, messageID int64) (*ReadCommand, error) {
	if _, err := c.requireSession(ctx); err != nil {
		return nil, err
	}

	c.mu.Lock()
	if id, ok := c.overlay[messageID]; ok {
		cmd := *c.reads[id]
		c.mu.Unlock()
		return &cmd, nil
	}
	cmd := &ReadCommand{
		ID:        uuid.NewString(),
		RoomID:    roomID,
		MessageID: messageID,
		State:     CommandPending,
		IssuedAt:  c.clock.Now(),
	}
	if r := c.roomLocked(roomID); r != nil && r.UnreadCount > 0 {
		r.UnreadCount--
		cmd.tookUnread = true
	}
	c.reads[cmd.ID] = cmd
	c.overlay[messageID] = cmd.ID
	c.mu.Unlock()
	c.emit(roomID)

	err := c.gw.MarkRead(ctx, roomID, messageID)

	var confirmed []models.Message
	c.mu.Lock()
	delete(c.overlay, messageID)
	delete(c.reads, cmd.ID)
	if err != nil {
		cmd.State = CommandFailed
		cmd.Error = err.Error()
		if r := c.roomLocked(roomID); r != nil && cmd.tookUnread {
			r.UnreadCount++
		}
	} else {
		cmd.State = CommandConfirmed
		if t, ok := c.transcripts[roomID]; ok {
			t.advance(messageID, models.StatusRead)
			if m, ok := t.get(messageID); ok {
				confirmed = append(confirmed, m)
			}
		}
	}
	result := *cmd
	c.mu.Unlock()
	c.mirrorMessages(ctx, confirmed)
	c.emit(roomID)

	if err != nil {
		return &result, fmt.Errorf("mark read: %w", err)
	}
	return &result, nil
}

// PendingReads lists read commands still awaiting the backend.
func (c *Controller) PendingReads() []ReadCommand {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ReadCommand, 0, len(c.reads))
	for _, cmd := range c.reads {
		out = append(out, *cmd)
	}
	return out
}
