package usage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"media-converter/internal/logging"
)

// DayFormat is the layout of day keys.
const DayFormat = "2006-01-02"

// Snapshot is the usage counted for one day.
type Snapshot struct {
	Day         string `json:"day"`
	Conversions int64  `json:"conversions"`
	Bytes       int64  `json:"bytes"`
}

// Store keeps per-day counters. Add must be atomic with respect to
// concurrent callers, including callers in other processes for shared
// stores.
type Store interface {
	Add(ctx context.Context, day string, conversions, bytes int64) (Snapshot, error)
	Get(ctx context.Context, day string) (Snapshot, error)
	Close() error
}

// Tracker counts conversions against the current local day. Counters start
// from zero when the day changes.
type Tracker struct {
	store Store
	now   func() time.Time
	loc   *time.Location
	log   logging.Logger
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithLocation sets the zone whose midnight ends a day. Defaults to
// time.Local.
func WithLocation(loc *time.Location) Option {
	return func(t *Tracker) { t.loc = loc }
}

// NewTracker creates a Tracker over store.
func NewTracker(store Store, opts ...Option) *Tracker {
	t := &Tracker{
		store: store,
		now:   time.Now,
		loc:   time.Local,
		log:   logging.For("usage"),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Today returns the key of the current day.
func (t *Tracker) Today() string {
	return t.now().In(t.loc).Format(DayFormat)
}

// Record counts one conversion of size bytes.
func (t *Tracker) Record(ctx context.Context, bytes int64) (Snapshot, error) {
	if bytes < 0 {
		bytes = 0
	}
	snap, err := t.store.Add(ctx, t.Today(), 1, bytes)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to record usage: %w", err)
	}
	t.log.Debug("%d conversions, %.2fMB processed on %s", snap.Conversions, float64(snap.Bytes)/(1024*1024), snap.Day)
	return snap, nil
}

// Snapshot returns the counters of the current day.
func (t *Tracker) Snapshot(ctx context.Context) (Snapshot, error) {
	snap, err := t.store.Get(ctx, t.Today())
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to read usage: %w", err)
	}
	return snap, nil
}

// Close closes the underlying store.
func (t *Tracker) Close() error {
	return t.store.Close()
}

// MemoryStore keeps the counters of the latest day seen in process memory.
type MemoryStore struct {
	mu      sync.Mutex
	current Snapshot
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Add increments the counters of day. A day later than the stored one
// replaces it; increments for an earlier day are counted against that day
// only in the returned snapshot and otherwise dropped.
func (m *MemoryStore) Add(_ context.Context, day string, conversions, bytes int64) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case day > m.current.Day:
		m.current = Snapshot{Day: day}
	case day < m.current.Day:
		return Snapshot{Day: day, Conversions: conversions, Bytes: bytes}, nil
	}
	m.current.Conversions += conversions
	m.current.Bytes += bytes
	return m.current, nil
}

// Get returns the counters of day, zero if day is not the current one.
func (m *MemoryStore) Get(_ context.Context, day string) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if day != m.current.Day {
		return Snapshot{Day: day}, nil
	}
	return m.current, nil
}

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }
