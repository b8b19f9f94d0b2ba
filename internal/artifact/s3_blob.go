package artifact

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/spicyneutrino/distributed-rce-engine/internal/common"
)

// S3BlobStore implements BlobStore against an S3-compatible object store
// (AWS S3 or MinIO). This is the production backend for the Artifact Store
// (C1); the teacher codebase carried the S3 SDK only as a transitive
// dependency behind an unimplemented "Phase 2" stub — this fills it in.
type S3BlobStore struct {
	client *s3.Client
	bucket string
	logger *common.Logger
}

// NewS3BlobStore creates a blob store backed by an S3-compatible endpoint.
func NewS3BlobStore(ctx context.Context, logger *common.Logger, cfg *common.ArtifactStoreConfig) (*S3BlobStore, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("artifact store bucket is required")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey(), cfg.SecretKey(), "")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load S3 config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = true // required for MinIO-style S3-compatible endpoints
	})

	store := &S3BlobStore{client: client, bucket: cfg.Bucket, logger: logger}

	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(cfg.Bucket)}); err != nil {
		if _, createErr := client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(cfg.Bucket)}); createErr != nil {
			logger.Warn().Err(createErr).Str("bucket", cfg.Bucket).Msg("failed to create artifact bucket; assuming it already exists under a policy we cannot head")
		}
	}

	logger.Info().Str("bucket", cfg.Bucket).Str("endpoint", cfg.Endpoint).Msg("S3 artifact store initialized")
	return store, nil
}

func (b *S3BlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	rc, err := b.GetReader(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func (b *S3BlobStore) GetReader(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, ErrBlobNotFound
		}
		return nil, fmt.Errorf("failed to get blob %s: %w", key, err)
	}
	return out.Body, nil
}

func (b *S3BlobStore) Put(ctx context.Context, key string, data []byte) error {
	return b.PutReader(ctx, key, bytes.NewReader(data), int64(len(data)))
}

func (b *S3BlobStore) PutReader(ctx context.Context, key string, r io.Reader, size int64) error {
	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(b.bucket),
		Key:           aws.String(key),
		Body:          r,
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		return fmt.Errorf("failed to put blob %s: %w", key, err)
	}
	return nil
}

func (b *S3BlobStore) Delete(ctx context.Context, key string) error {
	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete blob %s: %w", key, err)
	}
	return nil
}

func (b *S3BlobStore) Exists(ctx context.Context, key string) (bool, error) {
	_, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check blob %s: %w", key, err)
	}
	return true, nil
}

func (b *S3BlobStore) Metadata(ctx context.Context, key string) (*BlobMetadata, error) {
	out, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, ErrBlobNotFound
		}
		return nil, fmt.Errorf("failed to stat blob %s: %w", key, err)
	}

	md := &BlobMetadata{Key: key}
	if out.ContentLength != nil {
		md.Size = *out.ContentLength
	}
	if out.LastModified != nil {
		md.LastModified = *out.LastModified
	}
	if out.ETag != nil {
		md.ETag = *out.ETag
	}
	return md, nil
}

func (b *S3BlobStore) List(ctx context.Context, opts ListOptions) (*ListResult, error) {
	maxKeys := int32(opts.MaxKeys)
	if maxKeys <= 0 {
		maxKeys = 1000
	}

	out, err := b.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(b.bucket),
		Prefix:  aws.String(opts.Prefix),
		MaxKeys: aws.Int32(maxKeys),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list blobs: %w", err)
	}

	result := &ListResult{Truncated: aws.ToBool(out.IsTruncated)}
	for _, obj := range out.Contents {
		md := BlobMetadata{Key: aws.ToString(obj.Key)}
		if obj.Size != nil {
			md.Size = *obj.Size
		}
		if obj.LastModified != nil {
			md.LastModified = *obj.LastModified
		}
		result.Blobs = append(result.Blobs, md)
	}
	return result, nil
}

func (b *S3BlobStore) Close() error { return nil }

// isNotFound reports whether err is an S3 "not found" class error (NoSuchKey
// or a 404 status), across the different error shapes the SDK returns for
// GetObject vs HeadObject.
func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.ErrorCode() {
	case "NoSuchKey", "NotFound":
		return true
	default:
		return false
	}
}
