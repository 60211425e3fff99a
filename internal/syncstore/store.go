// Package syncstore is a tree structured key/value store with live
// subscriptions, multi-path updates, version checked commits and presence
// based cleanup. Paths are slash separated, values are JSON-like
// (map[string]interface{}, []interface{}, string, float64, bool).
package syncstore

import (
	"context"
	"errors"
)

var (
	ErrConflict = errors.New("version conflict")
	ErrClosed   = errors.New("store closed")
	ErrNotFound = errors.New("path not found")
	ErrBadPath  = errors.New("invalid path")
)

// Snapshot is a copy of the subtree at Path taken at Version.
type Snapshot struct {
	Path    string      `json:"path"`
	Value   interface{} `json:"value,omitempty"`
	Exists  bool        `json:"exists"`
	Version uint64      `json:"version"`
}

// Store is the client view of the synchronized tree. Each Store belongs to one
// logical client connection: OnDisconnect registrations fire when that
// connection is closed or lost.
type Store interface {
	// Get reads the subtree at path once.
	Get(ctx context.Context, path string) (Snapshot, error)

	// Set replaces the subtree at path. A nil value deletes it.
	Set(ctx context.Context, path string, value interface{}) error

	// Update applies several writes relative to path atomically. Keys may
	// contain slashes; nil values delete.
	Update(ctx context.Context, path string, values map[string]interface{}) error

	Delete(ctx context.Context, path string) error

	// Commit is Update guarded by the version previously read for path. It
	// fails with ErrConflict when anything in or above path changed since.
	Commit(ctx context.Context, path string, version uint64, values map[string]interface{}) error

	// CompareAndDelete deletes path if its version still matches.
	CompareAndDelete(ctx context.Context, path string, version uint64) error

	// Subscribe delivers the current snapshot of path and then one snapshot per
	// change, in commit order, on a goroutine owned by the store.
	Subscribe(ctx context.Context, path string, fn func(Snapshot)) (func(), error)

	// OnDisconnect registers path for removal when this client goes away.
	OnDisconnect(ctx context.Context, path string) error

	// CancelDisconnect drops a previous OnDisconnect registration.
	CancelDisconnect(ctx context.Context, path string) error

	Close() error
}

// Persister stores whole documents. A nil document means the document was
// removed.
type Persister interface {
	Save(docs map[string]interface{}) error
	LoadAll() (map[string]interface{}, error)
}
