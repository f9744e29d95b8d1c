// Package session persists the authentication record and decides whether
// the viewer is logged in or a guest.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"nearprop/chat/internal/config"
	"nearprop/chat/internal/models"
	"nearprop/chat/internal/storage"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
)

var (
	ErrNoSession = errors.New("session: not logged in")
	ErrExpired   = errors.New("session: token expired")
)

// Purger drops the cached rooms and messages of the previous viewer.
type Purger interface {
	Purge(ctx context.Context) error
}

// Store reads and writes the session record and the last active room.
type Store struct {
	kv    storage.KV
	clock clockwork.Clock
	cache Purger
}

func NewStore(kv storage.KV, clock clockwork.Clock) *Store {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Store{kv: kv, clock: clock}
}

// SetCache makes logout and a change of user purge p.
func (s *Store) SetCache(p Purger) {
	s.cache = p
}

// Current returns the stored session if its token has not expired. An
// expired record is cleared so later reads see guest mode directly.
func (s *Store) Current(ctx context.Context) (*models.Session, error) {
	raw, ok, err := s.kv.Get(ctx, config.SessionKey)
	if err != nil {
		return nil, fmt.Errorf("read session: %w", err)
	}
	if !ok || raw == "" {
		return nil, ErrNoSession
	}

	var sess models.Session
	if err := json.Unmarshal([]byte(raw), &sess); err != nil || sess.Token == "" {
		log.Printf("WARNING: Discarding unreadable session record: %v", err)
		s.clear(ctx)
		return nil, ErrNoSession
	}

	exp, err := expiry(sess.Token)
	if err != nil {
		log.Printf("WARNING: Discarding session with undecodable token: %v", err)
		s.clear(ctx)
		return nil, ErrExpired
	}
	sess.ExpiresAt = exp

	if sess.Expired(s.clock.Now()) {
		log.Printf("INFO: Session for user %d expired at %s", sess.UserID, exp)
		s.clear(ctx)
		return nil, ErrExpired
	}
	return &sess, nil
}

// Token returns the bearer credential of the current session.
func (s *Store) Token(ctx context.Context) (string, error) {
	sess, err := s.Current(ctx)
	if err != nil {
		return "", err
	}
	return sess.Token, nil
}

// Save persists a session written by the login flow. Logging in as a
// different user drops what the previous one left in the cache.
func (s *Store) Save(ctx context.Context, sess *models.Session) error {
	if sess == nil || sess.Token == "" {
		return errors.New("session: empty token")
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return err
	}

	raw, ok, err := s.kv.Get(ctx, config.SessionKey)
	if err != nil {
		return fmt.Errorf("read session: %w", err)
	}
	if ok && raw != "" {
		var prev models.Session
		if err := json.Unmarshal([]byte(raw), &prev); err != nil || prev.UserID != sess.UserID {
			log.Printf("INFO: Session changes to user %d, dropping cached chat", sess.UserID)
			if err := s.kv.Delete(ctx, config.LastRoomKey); err != nil {
				return err
			}
			if err := s.purge(ctx); err != nil {
				return err
			}
		}
	}
	return s.kv.Set(ctx, config.SessionKey, string(data))
}

// Clear is the explicit logout. The last active room and the cached chat
// go with the session.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.kv.Delete(ctx, config.SessionKey); err != nil {
		return err
	}
	if err := s.kv.Delete(ctx, config.LastRoomKey); err != nil {
		return err
	}
	return s.purge(ctx)
}

func (s *Store) purge(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	if err := s.cache.Purge(ctx); err != nil {
		return fmt.Errorf("purge chat cache: %w", err)
	}
	return nil
}

func (s *Store) clear(ctx context.Context) {
	if err := s.Clear(ctx); err != nil {
		log.Printf("ERROR: Failed to clear session: %v", err)
	}
}

// LastRoom returns the most recently active room, or 0 when none is stored.
func (s *Store) LastRoom(ctx context.Context) (int64, error) {
	raw, ok, err := s.kv.Get(ctx, config.LastRoomKey)
	if err != nil || !ok {
		return 0, err
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, nil
	}
	return id, nil
}

func (s *Store) SetLastRoom(ctx context.Context, roomID int64) error {
	return s.kv.Set(ctx, config.LastRoomKey, strconv.FormatInt(roomID, 10))
}

// expiry decodes the exp claim without verifying the signature; the
// backend verifies, the client only needs to know when to stop trying.
func expiry(token string) (time.Time, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, err
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, err
	}
	if exp == nil {
		return time.Time{}, nil
	}
	return exp.Time, nil
}
