package delivery

import (
	"context"
	"fmt"
	"path/filepath"

	"media-converter/internal/filesystem"
)

// Local writes outputs into a directory on this host.
type Local struct {
	dir string
}

// NewLocal creates dir if needed.
func NewLocal(dir string) (*Local, error) {
	if dir == "" {
		return nil, fmt.Errorf("%w: local directory", ErrMissingConfig)
	}
	if err := filesystem.MkdirAllWithRetry(dir, 0o755, filesystem.DefaultRetryConfig()); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}
	return &Local{dir: dir}, nil
}

// Name implements Backend.
func (l *Local) Name() string { return BackendLocal }

// Put writes to a temp file and renames it so readers never see a partial
// output.
func (l *Local) Put(ctx context.Context, obj Object) (Location, error) {
	if err := ctx.Err(); err != nil {
		return Location{}, err
	}
	name := filepath.Base(obj.Name)
	if name == "." || name == string(filepath.Separator) {
		return Location{}, fmt.Errorf("invalid object name %q", obj.Name)
	}

	fullPath, err := filesystem.WriteFileAtomic(l.dir, name, obj.Data, filesystem.DefaultRetryConfig())
	if err != nil {
		return Location{}, err
	}

	return Location{Backend: BackendLocal, Path: fullPath, Size: int64(len(obj.Data))}, nil
}

// Close implements Backend.
func (l *Local) Close() error { return nil }
