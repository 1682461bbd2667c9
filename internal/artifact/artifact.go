package artifact

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("artifact: not found")

// Store holds the produced build outputs of promoted versions. Keys are
// scoped by project and build so prior versions are never overwritten.
type Store interface {
	Put(ctx context.Context, projectID string, buildID int64, path string, content []byte) error
	Get(ctx context.Context, projectID string, buildID int64, path string) ([]byte, error)
	List(ctx context.Context, projectID string, buildID int64) ([]string, error)
	// URL returns an externally resolvable link to one artifact, used by
	// the preview/publish side.
	URL(ctx context.Context, projectID string, buildID int64, path string) (string, error)
}
