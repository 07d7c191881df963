// Package archive uploads a deleted block's final metadata log to S3, so
// the append-only log is not lost once the metadata store removes it.
// Disabled by default; the delete orchestrator calls Archive only when a
// non-nil *Archiver is configured.
package archive

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Config holds the S3 destination for archived metadata logs.
type Config struct {
	Bucket         string
	Prefix         string // prepended to every key; should end in "/" if set
	Region         string
	Endpoint       string // non-empty for S3-compatible services (MinIO, etc.)
	ForcePathStyle bool
}

// Archiver uploads block metadata logs to S3.
type Archiver struct {
	client *s3.Client
	bucket string
	prefix string
}

// New builds an Archiver from an existing S3 client, for tests.
func New(client *s3.Client, cfg Config) *Archiver {
	return &Archiver{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}
}

// NewFromConfig builds an Archiver, loading AWS credentials and region from
// the environment/shared config per the default SDK credential chain.
func NewFromConfig(ctx context.Context, cfg Config) (*Archiver, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config for archiver: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) { o.BaseEndpoint = aws.String(cfg.Endpoint) })
	}
	if cfg.ForcePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) { o.UsePathStyle = true })
	}

	return New(s3.NewFromConfig(awsCfg, s3Opts...), cfg), nil
}

// key builds the object key a deleted block's log is stored under.
func (a *Archiver) key(volume, block, gbid string) string {
	return fmt.Sprintf("%s%s/%s-%s.log", a.prefix, volume, block, gbid)
}

// Archive uploads raw, a block's final metadata log, keyed by volume,
// block, and its GBID so a re-created block under the same name does not
// collide with a prior archive.
func (a *Archiver) Archive(ctx context.Context, volume, block, gbid string, raw []byte) error {
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(a.key(volume, block, gbid)),
		Body:   bytes.NewReader(raw),
	})
	if err != nil {
		return fmt.Errorf("archive %s/%s metadata log: %w", volume, block, err)
	}
	return nil
}

// Healthcheck verifies the configured bucket is reachable.
func (a *Archiver) Healthcheck(ctx context.Context) error {
	_, err := a.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(a.bucket)})
	if err != nil {
		return fmt.Errorf("archive bucket health check: %w", err)
	}
	return nil
}
