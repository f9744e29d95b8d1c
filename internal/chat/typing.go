package chat

import (
	"context"
	"errors"
	"log"
	"sort"

	"nearprop/chat/internal/models"
	"nearprop/chat/internal/realtime"

	"github.com/jonboulle/clockwork"
)

type remoteTyping struct {
	signal models.TypingSignal
	timer  clockwork.Timer
}

type ownTyping struct {
	timer clockwork.Timer
	room  int64
	seq   uint64
}

// KeyStroke publishes TYPING for the active room and (re)arms the idle
// timer. STOP_TYPING goes out once the timer runs out without another
// keystroke.
func (c *Controller) KeyStroke(ctx context.Context) error {
	sess, err := c.requireSession(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	roomID := c.active
	if roomID == 0 {
		c.mu.Unlock()
		return ErrNoActiveRoom
	}
	if c.own.timer != nil {
		c.own.timer.Stop()
	}
	c.own.seq++
	seq := c.own.seq
	c.own.room = roomID
	c.own.timer = c.clock.AfterFunc(c.typingIdle, func() { go c.ownTypingIdle(seq) })
	c.mu.Unlock()

	frame := models.Frame{Type: models.FrameTyping, RoomID: roomID, UserID: sess.UserID, UserName: sess.DisplayName}
	if err := c.rt.Publish(realtime.TypingDestination(roomID), frame); err != nil && !errors.Is(err, realtime.ErrNotConnected) {
		return err
	}
	return nil
}

func (c *Controller) ownTypingIdle(seq uint64) {
	c.mu.Lock()
	if seq != c.own.seq || c.own.timer == nil {
		c.mu.Unlock()
		return
	}
	c.own.timer = nil
	roomID := c.own.room
	viewer := c.viewer
	c.mu.Unlock()

	c.publishStopTyping(roomID, viewer)
}

// stopOwnTypingLocked cancels a pending idle timer and reports the room a
// STOP_TYPING is still owed to.
func (c *Controller) stopOwnTypingLocked() (int64, bool) {
	if c.own.timer == nil {
		return 0, false
	}
	c.own.timer.Stop()
	c.own.timer = nil
	c.own.seq++
	return c.own.room, true
}

func (c *Controller) publishStopTyping(roomID int64, viewer models.Session) {
	frame := models.Frame{Type: models.FrameStopTyping, RoomID: roomID, UserID: viewer.UserID, UserName: viewer.DisplayName}
	if err := c.rt.Publish(realtime.TypingDestination(roomID), frame); err != nil && !errors.Is(err, realtime.ErrNotConnected) {
		log.Printf("WARNING: Failed to publish STOP_TYPING for room %d: %v", roomID, err)
	}
}

// handleTyping shows a counterpart as composing until STOP_TYPING or the
// idle timeout, whichever comes first.
func (c *Controller) handleTyping(frame models.Frame) {
	c.mu.Lock()
	if frame.UserID == 0 || frame.UserID == c.viewer.UserID {
		c.mu.Unlock()
		return
	}
	users, ok := c.remote[frame.RoomID]
	if !ok {
		users = make(map[int64]*remoteTyping)
		c.remote[frame.RoomID] = users
	}
	if prev, ok := users[frame.UserID]; ok {
		prev.timer.Stop()
	}
	entry := &remoteTyping{signal: models.TypingSignal{RoomID: frame.RoomID, UserID: frame.UserID, UserName: frame.UserName}}
	roomID, userID := frame.RoomID, frame.UserID
	entry.timer = c.clock.AfterFunc(c.typingIdle, func() { go c.expireRemoteTyping(roomID, userID, entry) })
	users[frame.UserID] = entry
	c.mu.Unlock()

	c.emit(frame.RoomID)
}

func (c *Controller) remoteStopTyping(roomID, userID int64) {
	c.mu.Lock()
	cleared := c.clearRemoteTypingLocked(roomID, userID)
	c.mu.Unlock()
	if cleared {
		c.emit(roomID)
	}
}

func (c *Controller) expireRemoteTyping(roomID, userID int64, entry *remoteTyping) {
	c.mu.Lock()
	if c.remote[roomID][userID] != entry {
		c.mu.Unlock()
		return
	}
	c.clearRemoteTypingLocked(roomID, userID)
	c.mu.Unlock()
	c.emit(roomID)
}

// clearRemoteTypingLocked removes userID's signal. userID 0 clears the
// whole room.
func (c *Controller) clearRemoteTypingLocked(roomID, userID int64) bool {
	users, ok := c.remote[roomID]
	if !ok {
		return false
	}
	cleared := false
	for id, entry := range users {
		if userID == 0 || id == userID {
			entry.timer.Stop()
			delete(users, id)
			cleared = true
		}
	}
	if len(users) == 0 {
		delete(c.remote, roomID)
	}
	return cleared
}

// Typing lists the counterparts currently composing in a room.
func (c *Controller) Typing(roomID int64) []models.TypingSignal {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.TypingSignal, 0, len(c.remote[roomID]))
	for _, entry := range c.remote[roomID] {
		out = append(out, entry.signal)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}
