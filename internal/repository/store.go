// Package store defines the context/task storage contract and its backends.
package store

import (
	"context"
	"fmt"

	"github.com/mcpeeps/coordinator/internal/config"
	"github.com/mcpeeps/coordinator/internal/domain"
)

// Store persists conversation transcripts and task records.
// Load methods return a nil value and nil error when the key is absent.
type Store interface {
	LoadContext(ctx context.Context, contextID string) (domain.Context, error)
	UpdateContext(ctx context.Context, contextID string, messages domain.Context) error

	LoadTask(ctx context.Context, taskID string) (*domain.TaskRecord, error)
	UpdateTask(ctx context.Context, task *domain.TaskRecord) error

	Close() error
}

// New opens the backend selected by cfg.Type.
func New(cfg config.StoreConfig) (Store, error) {
	switch cfg.Type {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		return NewSQLiteStore(cfg.DSN)
	case "bolt":
		return NewBoltStore(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown store type %q", cfg.Type)
	}
}
