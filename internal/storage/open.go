package storage

import (
	"fmt"
	"strings"

	"github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Dialector picks the gorm driver for a DSN:
//
//	sqlite://path/to/file.db   on-device database (default)
//	postgres://user:pw@host/db shared database, normalised through lib/pq
//	host=... user=...          postgres key/value DSN as-is
func Dialector(dsn string) (gorm.Dialector, error) {
	switch {
	case strings.HasPrefix(dsn, "sqlite://"):
		path := strings.TrimPrefix(dsn, "sqlite://")
		if path == "" {
			return nil, fmt.Errorf("sqlite DSN %q has no path", dsn)
		}
		return sqlite.Open(path), nil
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		kv, err := pq.ParseURL(dsn)
		if err != nil {
			return nil, fmt.Errorf("invalid postgres DSN: %w", err)
		}
		return postgres.Open(kv), nil
	case strings.Contains(dsn, "host="):
		return postgres.Open(dsn), nil
	}
	return nil, fmt.Errorf("unsupported storage DSN %q", dsn)
}

// Open connects to the configured database and runs migrations.
func Open(dsn string) (*Service, error) {
	dialector, err := Dialector(dsn)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	s := NewStorageService(db)
	if err := s.Migrate(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return s, nil
}
