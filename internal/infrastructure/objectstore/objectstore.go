package objectstore

import "context"

// ObjectStore is key-addressed durable blob storage with overwrite-on-conflict
// semantics. Concurrent writers of the same key must write equivalent content.
type ObjectStore interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
}
