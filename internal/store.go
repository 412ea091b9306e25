package internal

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// errCorruptRecord marks a stored value that cannot be decoded. Scans skip
// such records.
var errCorruptRecord = errors.New("corrupt embedding record")

const (
	BackendBadger = "badger"
	BackendSQLite = "sqlite"
)

// Record is one persisted embedding.
type Record struct {
	ID        PhotoID
	Vector    Embedding
	Model     string
	UpdatedAt time.Time
}

// Store is a durable key-value store of embeddings keyed by photo.
// Implementations must be safe for concurrent use.
type Store interface {
	Get(ctx context.Context, id PhotoID) (*Record, error)
	GetAll(ctx context.Context) ([]*Record, error)
	Keys(ctx context.Context) ([]PhotoID, error)
	Put(ctx context.Context, rec *Record) error
	DeleteMany(ctx context.Context, ids []PhotoID) error
	Clear(ctx context.Context) error
	Sync(ctx context.Context) error
	Close() error
}

// MetaStore stamps the model that produced a store's vectors so a later
// run with a different model can tell.
type MetaStore interface {
	SetMeta(ctx context.Context, key, value string) error
	Meta(ctx context.Context) (map[string]string, error)
}

const (
	MetaModel     = "model"
	MetaDimension = "dimension"
	MetaCreatedAt = "created_at"
)

// OpenStore opens the configured backend under the scope's cache path.
func OpenStore(scope Scope, backend string) (Store, error) {
	switch backend {
	case "", BackendBadger:
		return NewBadgerStore(scope.CachePath())
	case BackendSQLite:
		return NewSQLiteStore(scope.CachePath())
	default:
		return nil, fmt.Errorf("unknown cache backend %q", backend)
	}
}
