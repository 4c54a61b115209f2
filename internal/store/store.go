package store

import (
	"context"
	"errors"
	"time"
)

var ErrKeyNotFound = errors.New("key not found")

// KVStore is a durable, TTL-bounded key-value store. No transactional
// guarantee is assumed across keys; callers coordinate through PutIfAbsent.
type KVStore interface {
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// PutIfAbsent writes only when the key does not exist yet and reports
	// whether this call won the write.
	PutIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	// ScanPrefix returns the values of all live keys under the prefix.
	ScanPrefix(ctx context.Context, prefix string) ([][]byte, error)
}
