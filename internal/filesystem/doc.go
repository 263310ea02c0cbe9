/*
Package filesystem wraps the filesystem calls made on shared volumes with
retry logic for NFS stale file handle errors (ESTALE).

The local delivery backend writes finished outputs into a directory that is
often an NFS or SMB mount shared with other services. A server-side change
can invalidate a handle between the create and the rename; such failures
are transient and retried with exponential backoff. Any other error is
returned immediately.

# Usage

	cfg := filesystem.DefaultRetryConfig()

	if err := filesystem.MkdirAllWithRetry("/data/outputs", 0o755, cfg); err != nil {
	    return err
	}

	path, err := filesystem.WriteFileAtomic("/data/outputs", "clip.mp4", data, cfg)

StatWithRetry and OpenWithRetry cover reads.

# Metrics

Retries are labeled with the operation and a volume name. Volumes are
registered once at startup:

	filesystem.SetDefaultVolumeResolver(filesystem.NewVolumeResolver(map[string]string{
	    "work":   cfg.WorkDir,
	    "data":   cfg.DataDir,
	    "output": cfg.Delivery.LocalDir,
	}))
	filesystem.SetObserver(metrics.NewFilesystemObserver())

Paths outside every registered volume are labeled "unknown". Without an
observer no metrics are recorded, which keeps tests free of global state.
*/
package filesystem
