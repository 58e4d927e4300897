package sessionstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/joshp123/gohome-cocoro/internal/config"
)

var ErrNotFound = errors.New("stored session not found")

// Store persists encoded session documents by key.
type Store interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, data []byte) error
}

// Open builds the store selected by config. The "none" backend returns a
// nil Store and no error.
func Open(cfg config.SessionConfig) (Store, error) {
	switch cfg.Backend {
	case "", "none":
		return nil, nil
	case "file":
		store, err := NewFileStore(cfg.Path)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "bolt":
		store, err := NewBoltStore(cfg.Path)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "s3":
		store, err := NewS3Store(cfg.S3)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown session backend %q", cfg.Backend)
	}
}
