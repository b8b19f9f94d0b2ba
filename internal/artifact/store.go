package artifact

import (
	"context"

	"github.com/spicyneutrino/distributed-rce-engine/internal/common"
)

// Store adapts a BlobStore backend to the narrower ArtifactStore contract
// the rest of the pipeline depends on: job id in, source bytes out.
type Store struct {
	blob BlobStore
}

// New builds a Store, choosing the S3-compatible backend when an endpoint
// and bucket are configured and falling back to the local filesystem
// otherwise (local development only).
func New(ctx context.Context, logger *common.Logger, cfg *common.ArtifactStoreConfig, devBasePath string) (*Store, error) {
	blob, err := NewBlobStore(ctx, logger, cfg, devBasePath)
	if err != nil {
		return nil, err
	}
	return &Store{blob: blob}, nil
}

// Put stores the submitted source under the job id.
func (s *Store) Put(ctx context.Context, jobID string, data []byte) error {
	return s.blob.Put(ctx, jobID, data)
}

// Get retrieves the stored source for a job id.
func (s *Store) Get(ctx context.Context, jobID string) ([]byte, error) {
	return s.blob.Get(ctx, jobID)
}

// Close releases the underlying backend.
func (s *Store) Close() error {
	return s.blob.Close()
}
