package storage

import "errors"

var ErrKeyNotFound = errors.New("key not found")

type KeyValue struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Storage is the per-node key/value contract. Implementations must be safe for
// concurrent use and must never expose a partially applied mutation.
type Storage interface {
	Put(key, value string)
	Get(key string) (string, error)
	// Delete reports whether the key existed.
	Delete(key string) bool
	GetAll() []KeyValue
	Len() int
}
