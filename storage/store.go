package storage

import (
	"context"
	"errors"
)

// MessageOfTheDayKey is the key the command server keeps its message under.
const MessageOfTheDayKey = "motd"

var (
	ErrNotFound     = errors.New("Key not found")
	ErrInvalidState = errors.New("Restored state is not a JSON object")
)

type Update struct {
	Key   string
	Value string
}

// Store is process-wide state shared by every session. Implementations must
// be safe for concurrent use.
type Store interface {
	Set(ctx context.Context, key string, value string) error
	Get(ctx context.Context, key string) (string, error)

	Restore(values []byte) error
	Backup() ([]byte, error)

	ListenToUpdates() <-chan *Update

	Close() error
}
