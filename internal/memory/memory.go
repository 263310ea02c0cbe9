package memory

import (
	"math"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"media-converter/internal/logging"
	"media-converter/internal/metrics"
)

// Config holds memory management configuration
type Config struct {
	// MemoryLimitBytes is the soft memory limit (0 = use GOMEMLIMIT or no limit)
	MemoryLimitBytes int64

	// HighWaterMark is the usage ratio below which a paused monitor resumes (0.0-1.0)
	HighWaterMark float64

	// CriticalWaterMark is the usage ratio at which new conversions are refused (0.0-1.0)
	CriticalWaterMark float64

	// CheckInterval is how often to check memory usage
	CheckInterval time.Duration
}

// DefaultConfig returns sensible defaults for memory management
func DefaultConfig() Config {
	return Config{
		MemoryLimitBytes:  0, // Use GOMEMLIMIT if set
		HighWaterMark:     0.7,
		CriticalWaterMark: 0.85,
		CheckInterval:     2 * time.Second,
	}
}

// Monitor tracks heap usage plus the input bytes held by admitted
// conversions, and refuses new work when the sum nears the limit.
type Monitor struct {
	config   Config
	limit    int64
	stopChan chan struct{}
	stopOnce sync.Once

	mu       sync.RWMutex
	current  uint64
	reserved int64
	isPaused bool

	// readAlloc is swapped in tests.
	readAlloc func() uint64
}

// NewMonitor creates a new memory monitor
func NewMonitor(config Config) *Monitor {
	limit := config.MemoryLimitBytes

	if limit == 0 {
		if goMemLimit := debug.SetMemoryLimit(-1); goMemLimit > 0 && goMemLimit < math.MaxInt64 {
			limit = goMemLimit
			logging.Info("Memory monitor using GOMEMLIMIT: %s", formatBytes(limit))
		}
	}

	if limit == 0 {
		logging.Warn("Memory monitor: no memory limit configured, backpressure disabled")
	}

	return &Monitor{
		config:    config,
		limit:     limit,
		stopChan:  make(chan struct{}),
		readAlloc: heapAlloc,
	}
}

func heapAlloc() uint64 {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	return stats.Alloc
}

// Start begins monitoring memory usage
func (m *Monitor) Start() {
	if m.limit == 0 {
		return
	}
	m.checkMemory()
	go m.monitorLoop()
}

// Stop stops the memory monitor. It is safe to call more than once.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopChan) })
}

func (m *Monitor) monitorLoop() {
	ticker := time.NewTicker(m.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.checkMemory()
		case <-m.stopChan:
			return
		}
	}
}

func (m *Monitor) checkMemory() {
	alloc := m.readAlloc()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.current = alloc
	if m.limit <= 0 {
		return
	}

	usage := m.usageLocked()
	metrics.MemoryUsageRatio.Set(usage)

	switch {
	case usage >= m.config.CriticalWaterMark && !m.isPaused:
		logging.Warn("Memory critical (%.1f%% of limit), refusing new conversions", usage*100)
		m.isPaused = true
		metrics.MemoryPaused.Set(1)
		metrics.MemoryGCPauses.Inc()
		go runtime.GC()
	case usage < m.config.HighWaterMark && m.isPaused:
		logging.Info("Memory recovered (%.1f%% of limit), accepting conversions", usage*100)
		m.isPaused = false
		metrics.MemoryPaused.Set(0)
	}
}

// usageLocked counts reserved input bytes on top of the heap. Callers hold mu.
func (m *Monitor) usageLocked() float64 {
	return (float64(m.current) + float64(m.reserved)) / float64(m.limit)
}

// Admit reserves n bytes for a conversion. It returns false when the monitor
// is paused or the reservation would cross the critical mark. The returned
// release func must be called when the conversion finishes; extra calls are
// no-ops.
func (m *Monitor) Admit(n int64) (release func(), ok bool) {
	if n < 0 {
		n = 0
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.limit > 0 {
		if m.isPaused {
			return func() {}, false
		}
		projected := (float64(m.current) + float64(m.reserved) + float64(n)) / float64(m.limit)
		if projected >= m.config.CriticalWaterMark {
			logging.Debug("Refusing %s conversion at %.1f%% projected usage", formatBytes(n), projected*100)
			return func() {}, false
		}
	}

	m.reserved += n
	metrics.MemoryReservedBytes.Set(float64(m.reserved))

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			m.reserved -= n
			metrics.MemoryReservedBytes.Set(float64(m.reserved))
			m.mu.Unlock()
		})
	}, true
}

// IsPaused returns true if new conversions should be refused
func (m *Monitor) IsPaused() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.isPaused
}

// GetUsage returns current memory usage as a ratio of the limit (0.0-1.0),
// reservations included. Returns 0 if no limit is configured.
func (m *Monitor) GetUsage() float64 {
	if m.limit == 0 {
		return 0
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.usageLocked()
}

// Stats is a point-in-time view of the monitor.
type Stats struct {
	HeapBytes     int64   `json:"heapBytes"`
	ReservedBytes int64   `json:"reservedBytes"`
	LimitBytes    int64   `json:"limitBytes"`
	Usage         float64 `json:"usage"`
	Paused        bool    `json:"paused"`
}

// GetStats returns current memory statistics
func (m *Monitor) GetStats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	heap := int64(math.MaxInt64)
	if m.current <= math.MaxInt64 {
		heap = int64(m.current)
	}

	s := Stats{
		HeapBytes:     heap,
		ReservedBytes: m.reserved,
		LimitBytes:    m.limit,
		Paused:        m.isPaused,
	}
	if m.limit > 0 {
		s.Usage = m.usageLocked()
	}
	return s
}

// ForceGC triggers a garbage collection and returns freed memory to the OS.
func (m *Monitor) ForceGC() {
	debug.FreeOSMemory()
}
