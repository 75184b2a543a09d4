package docstore

import (
	"context"
	"errors"
)

// Well-known document keys.
const (
	KeySessions = "sessions"
	KeySettings = "settings"
)

// ErrNotFound indicates the key has never been written.
var ErrNotFound = errors.New("docstore: document not found")

// Store is a whole-document key-value blob store. Put replaces the document
// atomically: a concurrent Get observes either the previous or the new
// content, never a torn write.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
}
