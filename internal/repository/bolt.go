package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/boltdb/bolt"

	"github.com/mcpeeps/coordinator/internal/domain"
)

var (
	bucketContexts = []byte("contexts")
	bucketTasks    = []byte("tasks")
)

// BoltStore implements Store on a BoltDB file.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (or creates) the database at path.
func NewBoltStore(path string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketContexts, bucketTasks} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("failed to create bucket %q: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) LoadContext(_ context.Context, contextID string) (domain.Context, error) {
	var msgs domain.Context
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketContexts).Get([]byte(contextID))
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, &msgs)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load context %q: %w", contextID, err)
	}
	return msgs, nil
}

func (s *BoltStore) UpdateContext(_ context.Context, contextID string, messages domain.Context) error {
	if messages == nil {
		messages = domain.Context{}
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(messages)
		if err != nil {
			return fmt.Errorf("failed to marshal context: %w", err)
		}
		return tx.Bucket(bucketContexts).Put([]byte(contextID), data)
	})
}

func (s *BoltStore) LoadTask(_ context.Context, taskID string) (*domain.TaskRecord, error) {
	var task *domain.TaskRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketTasks).Get([]byte(taskID))
		if data == nil {
			return nil
		}
		task = &domain.TaskRecord{}
		return json.Unmarshal(data, task)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load task %q: %w", taskID, err)
	}
	return task, nil
}

func (s *BoltStore) UpdateTask(_ context.Context, task *domain.TaskRecord) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(task)
		if err != nil {
			return fmt.Errorf("failed to marshal task: %w", err)
		}
		return tx.Bucket(bucketTasks).Put([]byte(task.TaskID), data)
	})
}
