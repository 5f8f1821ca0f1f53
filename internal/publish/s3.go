// Package publish uploads credential snapshots to blob storage and returns
// the reference that becomes the user's session identifier.
package publish

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/pairgate/pairgate/internal/crypto"
)

// Config coordinates the S3 (or S3-compatible) target.
type Config struct {
	Bucket    string
	Region    string
	Endpoint  string // non-empty switches to a custom endpoint with path-style addressing
	AccessKey string
	SecretKey string
	Prefix    string // object key prefix

	// EncryptionKey, when non-empty, seals blobs with AES-GCM before upload.
	EncryptionKey string
}

// S3Publisher uploads blobs to an S3 bucket.
type S3Publisher struct {
	cfg      Config
	uploader *manager.Uploader
}

// NewS3Publisher builds the client. Credentials fall back to the SDK's
// default chain (environment, shared config, instance role) when none are
// configured.
func NewS3Publisher(ctx context.Context, cfg Config) (*S3Publisher, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 publisher: bucket is required")
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("s3 publisher: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Publisher{
		cfg:      cfg,
		uploader: manager.NewUploader(client),
	}, nil
}

// Publish uploads the blob under a fresh object key and returns a reference
// URL. The key's final path component is what users see inside their session
// identifier.
func (p *S3Publisher) Publish(ctx context.Context, blob []byte) (string, error) {
	payload, err := crypto.Seal(blob, p.cfg.EncryptionKey)
	if err != nil {
		return "", fmt.Errorf("seal credentials: %w", err)
	}

	key := p.objectKey()
	out, err := p.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(p.cfg.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String("application/octet-stream"),
	})
	if err != nil {
		return "", fmt.Errorf("upload credentials: %w", err)
	}

	ref := out.Location
	if ref == "" {
		ref = fallbackReference(p.cfg.Endpoint, p.cfg.Bucket, key)
	}
	slog.Info("credentials published", "bucket", p.cfg.Bucket, "key", key, "bytes", len(payload))
	return ref, nil
}

// objectKey returns a fresh key under the configured prefix. Time-ordered
// IDs keep bucket listings chronological.
func (p *S3Publisher) objectKey() string {
	id := uuid.Must(uuid.NewV7()).String()
	if p.cfg.Prefix == "" {
		return id
	}
	return path.Join(p.cfg.Prefix, id)
}

// fallbackReference builds a reference URL for stores whose upload response
// lacks a location.
func fallbackReference(endpoint, bucket, key string) string {
	if endpoint == "" {
		return fmt.Sprintf("https://%s.s3.amazonaws.com/%s", bucket, key)
	}
	return strings.TrimSuffix(endpoint, "/") + "/" + bucket + "/" + key
}
