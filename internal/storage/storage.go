package storage

import "errors"

// ErrNotFound is returned by Read when no blob exists under the key.
var ErrNotFound = errors.New("storage: key not found")

// BlobStore is a blob-per-entity key/value store. The memory layer
// uses keys "general_insights" and "user_<id>"; values are JSON.
type BlobStore interface {
	Write(key string, data []byte) error
	Read(key string) ([]byte, error)
	ListKeys(prefix string) ([]string, error)
	Delete(key string) error
	Close() error
}
