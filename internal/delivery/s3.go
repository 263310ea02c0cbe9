package delivery

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config configures the s3 backend. Endpoint is optional and enables
// path-style addressing for S3-compatible stores.
type S3Config struct {
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
	Prefix    string
	Endpoint  string
}

// S3 uploads outputs to a bucket.
type S3 struct {
	cfg      S3Config
	uploader *manager.Uploader
}

// NewS3 builds the client once; credentials are static when given.
func NewS3(cfg S3Config) (*S3, error) {
	if cfg.Bucket == "" || cfg.Region == "" {
		return nil, fmt.Errorf("%w: s3 bucket and region", ErrMissingConfig)
	}

	opts := s3.Options{Region: cfg.Region}
	if cfg.AccessKey != "" {
		opts.Credentials = credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
		opts.UsePathStyle = true
	}
	client := s3.New(opts)

	return &S3{cfg: cfg, uploader: manager.NewUploader(client)}, nil
}

// Name implements Backend.
func (b *S3) Name() string { return BackendS3 }

// Key returns the object key used for name.
func (b *S3) Key(name string) string { return joinKey(b.cfg.Prefix, name) }

// Put implements Backend.
func (b *S3) Put(ctx context.Context, obj Object) (Location, error) {
	key := b.Key(obj.Name)
	input := &s3.PutObjectInput{
		Bucket: aws.String(b.cfg.Bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(obj.Data),
	}
	if obj.MimeType != "" {
		input.ContentType = aws.String(obj.MimeType)
	}

	out, err := b.uploader.Upload(ctx, input)
	if err != nil {
		return Location{}, fmt.Errorf("failed to upload object %s to bucket %s: %w", key, b.cfg.Bucket, err)
	}

	return Location{
		Backend: BackendS3,
		Bucket:  b.cfg.Bucket,
		Key:     key,
		URL:     out.Location,
		Size:    int64(len(obj.Data)),
	}, nil
}

// Close implements Backend.
func (b *S3) Close() error { return nil }
