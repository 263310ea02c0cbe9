package delivery

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSConfig configures the gcs backend. Without a credentials file the
// client falls back to application default credentials.
type GCSConfig struct {
	Bucket          string
	CredentialsFile string
	Prefix          string
}

// GCS uploads outputs to a Cloud Storage bucket.
type GCS struct {
	cfg    GCSConfig
	client *storage.Client
}

// NewGCS creates the storage client.
func NewGCS(ctx context.Context, cfg GCSConfig) (*GCS, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("%w: gcs bucket", ErrMissingConfig)
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("storage.NewClient: %w", err)
	}
	return &GCS{cfg: cfg, client: client}, nil
}

// Name implements Backend.
func (b *GCS) Name() string { return BackendGCS }

// Put implements Backend.
func (b *GCS) Put(ctx context.Context, obj Object) (Location, error) {
	name := joinKey(b.cfg.Prefix, obj.Name)
	wc := b.client.Bucket(b.cfg.Bucket).Object(name).NewWriter(ctx)
	wc.ContentType = obj.MimeType

	if _, err := wc.Write(obj.Data); err != nil {
		_ = wc.Close()
		return Location{}, fmt.Errorf("Writer.Write: %w", err)
	}
	// The upload is only committed on Close.
	if err := wc.Close(); err != nil {
		return Location{}, fmt.Errorf("Writer.Close: %w", err)
	}

	return Location{
		Backend: BackendGCS,
		Bucket:  b.cfg.Bucket,
		Key:     name,
		URL:     fmt.Sprintf("gs://%s/%s", b.cfg.Bucket, name),
		Size:    int64(len(obj.Data)),
	}, nil
}

// Close releases the client.
func (b *GCS) Close() error { return b.client.Close() }
