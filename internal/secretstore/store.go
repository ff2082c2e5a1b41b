package secretstore

import "context"

// Store is the durable key/value side-channel for webhook signing secrets.
// Get returns ErrNotFound when the key has never been written; every other
// failure is a store error the caller must treat as fatal.
type Store interface {
	Get(ctx context.Context, name string) (string, error)
	Put(ctx context.Context, name, value, description string, overwrite bool) error
}
