package storage

import (
	"context"
	"errors"
	"log"

	"nearprop/chat/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// KV is the minimal persisted key-value store the session layer needs.
// It plays the role of the browser's local storage.
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Storage is the local mirror of backend-owned chat records plus the KV
// table. Nothing stored here is authoritative.
type Storage interface {
	KV

	SaveRooms(ctx context.Context, rooms []models.ChatRoom) error
	GetRooms(ctx context.Context) ([]models.ChatRoom, error)

	SaveMessages(ctx context.Context, msgs []models.Message) error
	GetMessages(ctx context.Context, roomID int64, limit int) ([]models.Message, error)

	Purge(ctx context.Context) error
}

type Service struct {
	DB *gorm.DB
}

// NewStorageService wraps an open gorm handle.
func NewStorageService(db *gorm.DB) *Service {
	return &Service{DB: db}
}

// Migrate creates the mirror tables.
func (s *Service) Migrate() error {
	return s.DB.AutoMigrate(
		&models.ChatRoom{},
		&models.Message{},
		&models.KVEntry{},
	)
}

// Get reads a KV entry. A missing key is not an error.
func (s *Service) Get(ctx context.Context, key string) (string, bool, error) {
	var entry models.KVEntry
	err := s.DB.WithContext(ctx).Where("kv_key = ?", key).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		log.Printf("ERROR: Failed to read key %s: %v", key, err)
		return "", false, err
	}
	return entry.Value, true, nil
}

// Set upserts a KV entry.
func (s *Service) Set(ctx context.Context, key, value string) error {
	entry := models.KVEntry{Key: key, Value: value}
	return s.DB.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&entry).Error
}

func (s *Service) Delete(ctx context.Context, key string) error {
	return s.DB.WithContext(ctx).Where("kv_key = ?", key).Delete(&models.KVEntry{}).Error
}

// SaveRooms upserts rooms by id.
func (s *Service) SaveRooms(ctx context.Context, rooms []models.ChatRoom) error {
	if len(rooms) == 0 {
		return nil
	}
	return s.DB.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&rooms).Error
}

func (s *Service) GetRooms(ctx context.Context) ([]models.ChatRoom, error) {
	var rooms []models.ChatRoom
	if err := s.DB.WithContext(ctx).Order("updated_at desc").Find(&rooms).Error; err != nil {
		log.Printf("ERROR: Failed to load cached rooms: %v", err)
		return nil, err
	}
	return rooms, nil
}

// SaveMessages upserts messages by id. A stored status is never lowered
// and a message once known as the viewer's stays so.
func (s *Service) SaveMessages(ctx context.Context, msgs []models.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		byID := make(map[int64]int, len(msgs))
		merged := make([]models.Message, 0, len(msgs))
		for _, m := range msgs {
			if i, ok := byID[m.ID]; ok {
				m.Status = merged[i].Status.Advance(m.Status)
				m.Mine = m.Mine || merged[i].Mine
				merged[i] = m
				continue
			}
			byID[m.ID] = len(merged)
			merged = append(merged, m)
		}

		ids := make([]int64, 0, len(merged))
		for _, m := range merged {
			ids = append(ids, m.ID)
		}
		var stored []models.Message
		if err := tx.Where("id IN ?", ids).Find(&stored).Error; err != nil {
			return err
		}
		for _, prev := range stored {
			m := &merged[byID[prev.ID]]
			m.Status = prev.Status.Advance(m.Status)
			m.Mine = m.Mine || prev.Mine
		}

		return tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&merged).Error
	})
}

// GetMessages returns the newest limit messages of a room in created_at
// ascending order.
func (s *Service) GetMessages(ctx context.Context, roomID int64, limit int) ([]models.Message, error) {
	var msgs []models.Message
	q := s.DB.WithContext(ctx).Where("room_id = ?", roomID).Order("created_at desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&msgs).Error; err != nil {
		log.Printf("ERROR: Failed to load cached messages for room %d: %v", roomID, err)
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// Purge drops every cached room and message, leaving the KV table alone.
func (s *Service) Purge(ctx context.Context) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&models.Message{}).Error; err != nil {
			return err
		}
		return tx.Where("1 = 1").Delete(&models.ChatRoom{}).Error
	})
}
