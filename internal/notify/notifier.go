// Package notify tells the viewer about new inbound chat messages.
package notify

import (
	"context"
	"errors"
	"io"
	"log"

	"nearprop/chat/internal/models"
)

type Notifier interface {
	Notify(ctx context.Context, room models.ChatRoom, msg models.Message) error
}

// Bell rings the terminal bell, the daemon's notification sound.
type Bell struct {
	Out io.Writer
}

func (b Bell) Notify(_ context.Context, room models.ChatRoom, msg models.Message) error {
	log.Printf("INFO: New message %d in room %d from %s", msg.ID, room.ID, counterpart(room))
	_, err := io.WriteString(b.Out, "\a")
	return err
}

// Multi fans a notification out to every notifier, continuing past
// failures.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, room models.ChatRoom, msg models.Message) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, room, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func counterpart(room models.ChatRoom) string {
	if room.CounterpartName != "" {
		return room.CounterpartName
	}
	return "Owner"
}
