// Package storage provides the key-value persistence used by the adapter.
package storage

import "errors"

// ErrKeyNotFound is returned when a key has no stored value.
var ErrKeyNotFound = errors.New("key not found")

// Store is a flat string-keyed store of JSON-serializable values. The
// adapter treats it as an opaque external collaborator; all namespacing
// happens in the keys.
type Store interface {
	// Get retrieves the raw value for a key. Returns ErrKeyNotFound if
	// the key has no value.
	Get(key string) ([]byte, error)
	// Set stores the raw value for a key, overwriting any previous value.
	Set(key string, value []byte) error
	// Delete removes a key. Deleting an absent key is not an error.
	Delete(key string) error
	// Keys returns all stored keys with the given prefix.
	Keys(prefix string) ([]string, error)

	// Close closes the store and releases resources.
	Close() error
}
