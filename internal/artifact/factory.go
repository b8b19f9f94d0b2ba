package artifact

import (
	"context"

	"github.com/spicyneutrino/distributed-rce-engine/internal/common"
)

// NewBlobStore selects a BlobStore backend from the artifact store config.
// An endpoint and bucket select the S3-compatible backend; their absence
// falls back to the local filesystem, for development only.
func NewBlobStore(ctx context.Context, logger *common.Logger, cfg *common.ArtifactStoreConfig, devBasePath string) (BlobStore, error) {
	if cfg.Endpoint != "" && cfg.Bucket != "" {
		return NewS3BlobStore(ctx, logger, cfg)
	}
	return NewFileBlobStore(logger, &FileBlobConfig{BasePath: devBasePath})
}
