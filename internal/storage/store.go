package storage

import "errors"

// ErrNotFound is returned by Get when the key has no value.
var ErrNotFound = errors.New("storage: key not found")

// Store is a session-durable key-value store. Callers treat every failure as
// a cache miss; nothing in the engine depends on persistence succeeding.
type Store interface {
	Get(key string) (string, error)
	Set(key, value string) error
	Delete(key string) error
	Close() error
}
