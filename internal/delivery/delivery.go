package delivery

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"media-converter/internal/logging"
	"media-converter/internal/metrics"
)

// Backend names accepted by New.
const (
	BackendDirect = "direct"
	BackendLocal  = "local"
	BackendS3     = "s3"
	BackendGCS    = "gcs"
	BackendSFTP   = "sftp"
)

// ErrMissingConfig is returned by New when a backend lacks a required setting.
var ErrMissingConfig = errors.New("missing delivery configuration")

var logger = logging.For("delivery")

// Object is a converted output ready to be delivered.
type Object struct {
	Name     string
	MimeType string
	Data     []byte
}

// Location tells the caller where an object ended up.
type Location struct {
	Backend string `json:"backend"`
	Bucket  string `json:"bucket,omitempty"`
	Key     string `json:"key,omitempty"`
	Path    string `json:"path,omitempty"`
	Host    string `json:"host,omitempty"`
	URL     string `json:"url,omitempty"`
	Size    int64  `json:"size"`
}

// Backend writes converted outputs somewhere other than the HTTP response.
type Backend interface {
	Name() string
	Put(ctx context.Context, obj Object) (Location, error)
	Close() error
}

// Config selects and configures a backend.
type Config struct {
	Backend  string
	LocalDir string
	S3       S3Config
	GCS      GCSConfig
	SFTP     SFTPConfig
}

// New builds the backend named by cfg.Backend. An empty name selects direct.
func New(ctx context.Context, cfg Config) (Backend, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", BackendDirect:
		return Direct{}, nil
	case BackendLocal:
		return NewLocal(cfg.LocalDir)
	case BackendS3:
		return NewS3(cfg.S3)
	case BackendGCS:
		return NewGCS(ctx, cfg.GCS)
	case BackendSFTP:
		return NewSFTP(cfg.SFTP)
	default:
		return nil, fmt.Errorf("unknown backend type: %s", cfg.Backend)
	}
}

// IsDirect reports whether outputs should be written to the response.
func IsDirect(b Backend) bool {
	return b == nil || b.Name() == BackendDirect
}

// Deliver hands obj to b and records the outcome.
func Deliver(ctx context.Context, b Backend, obj Object) (Location, error) {
	start := time.Now()
	loc, err := b.Put(ctx, obj)

	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.DeliveriesTotal.WithLabelValues(b.Name(), status).Inc()
	metrics.DeliveryDuration.WithLabelValues(b.Name()).Observe(time.Since(start).Seconds())

	if err != nil {
		logger.Error("failed to deliver %s via %s: %v", obj.Name, b.Name(), err)
		return Location{}, fmt.Errorf("failed to deliver to %s: %w", b.Name(), err)
	}
	logger.Info("delivered %s (%d bytes) via %s", obj.Name, len(obj.Data), b.Name())
	return loc, nil
}

// ObjectName builds the stored name for an output.
func ObjectName(id, ext string) string {
	return id + "." + strings.TrimPrefix(ext, ".")
}

func joinKey(prefix, name string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return name
	}
	return path.Join(prefix, name)
}

// Direct leaves the output for the caller to stream back.
type Direct struct{}

// Name implements Backend.
func (Direct) Name() string { return BackendDirect }

// Put implements Backend. Nothing is written.
func (Direct) Put(_ context.Context, obj Object) (Location, error) {
	return Location{Backend: BackendDirect, Size: int64(len(obj.Data))}, nil
}

// Close implements Backend.
func (Direct) Close() error { return nil }
