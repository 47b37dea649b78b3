package storage

import (
	"context"
	"errors"
)

// ErrForeignURL is returned by Delete for URLs the store did not produce.
var ErrForeignURL = errors.New("url not owned by this store")

// ArtifactStore keeps intermediate artifacts reachable over HTTP while
// external providers fetch them.
type ArtifactStore interface {
	// Store writes data under key and returns its public URL.
	Store(ctx context.Context, key, contentType string, data []byte) (string, error)
	// Delete removes the artifact previously returned by Store.
	Delete(ctx context.Context, url string) error
}
