// Package telemetry aggregates statement statistics in process. Nothing is
// sent anywhere; callers read a Snapshot.
package telemetry

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/satishbabariya/cauldron/runtime/client"
)

// OperationStats summarizes the statements of one operation.
type OperationStats struct {
	Operation string
	Calls     int64
	Errors    int64
	Rows      int64
	Total     time.Duration
	Max       time.Duration
	LastError string
}

// Mean returns the average statement duration.
func (s OperationStats) Mean() time.Duration {
	if s.Calls == 0 {
		return 0
	}
	return s.Total / time.Duration(s.Calls)
}

// Collector records statement events. It is safe for concurrent use.
type Collector struct {
	mu    sync.Mutex
	stats map[string]*OperationStats
	start time.Time
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{stats: make(map[string]*OperationStats), start: time.Now()}
}

// Record adds one finished statement.
func (c *Collector) Record(event *client.QueryEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.stats[event.Operation]
	if !ok {
		s = &OperationStats{Operation: event.Operation}
		c.stats[event.Operation] = s
	}
	s.Calls++
	s.Rows += event.Rows
	s.Total += event.Duration
	s.Max = max(s.Max, event.Duration)
	if event.Error != nil {
		s.Errors++
		s.LastError = event.Error.Error()
	}
}

// Middleware returns a store middleware that feeds the collector.
func (c *Collector) Middleware() client.Middleware {
	return func(ctx context.Context, event *client.QueryEvent, next func() error) error {
		err := next()
		c.Record(event)
		return err
	}
}

// Snapshot returns the statistics sorted by operation name.
func (c *Collector) Snapshot() []OperationStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]OperationStats, 0, len(c.stats))
	for _, s := range c.stats {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Operation < out[j].Operation })
	return out
}

// Since returns when the collector was created or last reset.
func (c *Collector) Since() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.start
}

// Reset clears all statistics.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats = make(map[string]*OperationStats)
	c.start = time.Now()
}
