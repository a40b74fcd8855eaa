package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Counter names used across the event core
const (
	EventsPublished     = "events_published"
	PublishFailures     = "publish_failures"
	PublishQueueDropped = "publish_queue_dropped"
	EventsProcessed     = "events_processed"
	EventsDuplicate     = "events_duplicate"
	EventsDropped       = "events_dropped"
	EventsRetried       = "events_retried"
	JobsScheduled       = "jobs_scheduled"
	JobsCancelled       = "jobs_cancelled"
)

// MetricValue represents a counter value with metadata
type MetricValue struct {
	Name  string `json:"name"`
	Value int64  `json:"value"`
}

// Metrics is the main metrics collector. Publish failures are absorbed at
// the publish site, so the counters here are the only place they become
// visible besides logs.
type Metrics struct {
	mu        sync.RWMutex
	counters  map[string]*int64
	startTime time.Time
}

// NewMetrics creates a new metrics collector
func NewMetrics() *Metrics {
	return &Metrics{
		counters:  make(map[string]*int64),
		startTime: time.Now(),
	}
}

// IncrCounter increments a named counter
func (m *Metrics) IncrCounter(name string) {
	atomic.AddInt64(m.counter(name), 1)
}

// Counter returns the current value of a named counter
func (m *Metrics) Counter(name string) int64 {
	return atomic.LoadInt64(m.counter(name))
}

func (m *Metrics) counter(name string) *int64 {
	m.mu.RLock()
	c, ok := m.counters[name]
	m.mu.RUnlock()
	if ok {
		return c
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok = m.counters[name]; ok {
		return c
	}
	c = new(int64)
	m.counters[name] = c
	return c
}

// Snapshot returns all counters plus process uptime in seconds
func (m *Metrics) Snapshot() ([]MetricValue, float64) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	values := make([]MetricValue, 0, len(m.counters))
	for name, c := range m.counters {
		values = append(values, MetricValue{Name: name, Value: atomic.LoadInt64(c)})
	}
	return values, time.Since(m.startTime).Seconds()
}
