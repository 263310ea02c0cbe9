/*
Package workers sizes and runs bounded worker pools in containerized
environments.

# Sizing

Go 1.19+ sets GOMAXPROCS from the container CPU limit, while runtime.NumCPU
still reports the host. Count and its helpers derive worker counts from
GOMAXPROCS:

	numWorkers := workers.ForCPU(8)   // 1 per CPU, max 8
	numWorkers := workers.ForIO(16)   // 2 per CPU, max 16
	numWorkers := workers.ForMixed(12) // 1.5 per CPU, max 12

The CONVERT_WORKERS environment variable overrides the calculation, still
capped by the limit:

	env:
	- name: CONVERT_WORKERS
	  value: "4"

# Running

Each fans a fixed number of indexed tasks out over a bounded pool. Results
are written by index, so callers keep input order without extra
synchronization:

	frames := make([]string, len(images))
	err := workers.Each(ctx, len(images), workers.ForCPU(8), func(ctx context.Context, i int) error {
		path, err := render(ctx, images[i])
		frames[i] = path
		return err
	})

The first failing task cancels the rest.
*/
package workers
