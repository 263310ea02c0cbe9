// Package memory configures the Go heap limit and applies backpressure to
// conversions in containerized environments.
//
// # Configuration
//
// Call [ConfigureFromEnv] early in main, before significant allocations:
//
//	func main() {
//	    memory.ConfigureFromEnv()
//	    // ...
//	}
//
// Environment variables:
//
//   - GOMEMLIMIT: standard Go variable. If set, it wins.
//   - MEMORY_LIMIT: container limit, as bytes or a size like "2Gi". Usually
//     supplied by the Kubernetes Downward API.
//   - MEMORY_RATIO: share of MEMORY_LIMIT given to the Go heap (default 0.6).
//     ffmpeg and gifsicle run as child processes inside the same container,
//     so the ratio is lower than a pure Go service would use.
//
// Kubernetes example:
//
//	env:
//	- name: MEMORY_LIMIT
//	  valueFrom:
//	    resourceFieldRef:
//	      resource: limits.memory
//
// # Backpressure
//
// A [Monitor] samples the heap every CheckInterval. Uploaded inputs are held
// in memory for the length of a conversion, so handlers call [Monitor.Admit]
// with the request size before reading the body. Admission counts the heap
// plus every outstanding reservation:
//
//	release, ok := monitor.Admit(r.ContentLength)
//	if !ok {
//	    // 503 Service Unavailable
//	}
//	defer release()
//
// When usage reaches CriticalWaterMark the monitor pauses and refuses all
// new work until usage falls below HighWaterMark.
//
// # Metrics
//
//   - media_converter_memory_usage_ratio
//   - media_converter_memory_reserved_bytes
//   - media_converter_memory_paused
//   - media_converter_memory_gc_pauses_total
package memory
