package vecstore

import (
	"sync/atomic"
	"time"
)

// MetricsCollector receives timing and outcome data for store operations.
// Implementations must be safe for concurrent use.
type MetricsCollector interface {
	// RecordAdd records a single add operation.
	RecordAdd(duration time.Duration, err error)

	// RecordBatchAdd records a batch add. failed is the number of items
	// that were not applied.
	RecordBatchAdd(count, failed int, duration time.Duration)

	// RecordSearch records a search operation.
	RecordSearch(k int, duration time.Duration, err error)

	// RecordGet records a get operation.
	RecordGet(duration time.Duration, err error)

	// RecordUpdate records an update operation.
	RecordUpdate(duration time.Duration, err error)

	// RecordDelete records a delete operation.
	RecordDelete(duration time.Duration, err error)

	// RecordPersist records a durability step: a WAL append or a full
	// snapshot, depending on the store's mode.
	RecordPersist(duration time.Duration, err error)
}

// NoopMetricsCollector discards all metrics. It is the default.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordAdd(duration time.Duration, err error)        {}
func (NoopMetricsCollector) RecordBatchAdd(count, failed int, _ time.Duration) {}
func (NoopMetricsCollector) RecordSearch(k int, _ time.Duration, err error)     {}
func (NoopMetricsCollector) RecordGet(duration time.Duration, err error)        {}
func (NoopMetricsCollector) RecordUpdate(duration time.Duration, err error)     {}
func (NoopMetricsCollector) RecordDelete(duration time.Duration, err error)     {}
func (NoopMetricsCollector) RecordPersist(duration time.Duration, err error)    {}

// BasicMetricsCollector counts operations, errors and cumulative latency
// with atomic counters. Safe for concurrent use.
type BasicMetricsCollector struct {
	addCount   atomic.Int64
	addErrors  atomic.Int64
	addNanos   atomic.Int64
	batchCount atomic.Int64
	batchItems atomic.Int64
	batchFails atomic.Int64

	searchCount  atomic.Int64
	searchErrors atomic.Int64
	searchNanos  atomic.Int64

	getCount  atomic.Int64
	getErrors atomic.Int64

	updateCount  atomic.Int64
	updateErrors atomic.Int64

	deleteCount  atomic.Int64
	deleteErrors atomic.Int64

	persistCount  atomic.Int64
	persistErrors atomic.Int64
	persistNanos  atomic.Int64
}

// NewBasicMetricsCollector creates a collector with all counters at zero.
func NewBasicMetricsCollector() *BasicMetricsCollector {
	return &BasicMetricsCollector{}
}

func (c *BasicMetricsCollector) RecordAdd(duration time.Duration, err error) {
	c.addCount.Add(1)
	c.addNanos.Add(int64(duration))
	if err != nil {
		c.addErrors.Add(1)
	}
}

func (c *BasicMetricsCollector) RecordBatchAdd(count, failed int, duration time.Duration) {
	c.batchCount.Add(1)
	c.batchItems.Add(int64(count))
	c.batchFails.Add(int64(failed))
	c.addNanos.Add(int64(duration))
}

func (c *BasicMetricsCollector) RecordSearch(k int, duration time.Duration, err error) {
	c.searchCount.Add(1)
	c.searchNanos.Add(int64(duration))
	if err != nil {
		c.searchErrors.Add(1)
	}
}

func (c *BasicMetricsCollector) RecordGet(duration time.Duration, err error) {
	c.getCount.Add(1)
	if err != nil {
		c.getErrors.Add(1)
	}
}

func (c *BasicMetricsCollector) RecordUpdate(duration time.Duration, err error) {
	c.updateCount.Add(1)
	if err != nil {
		c.updateErrors.Add(1)
	}
}

func (c *BasicMetricsCollector) RecordDelete(duration time.Duration, err error) {
	c.deleteCount.Add(1)
	if err != nil {
		c.deleteErrors.Add(1)
	}
}

func (c *BasicMetricsCollector) RecordPersist(duration time.Duration, err error) {
	c.persistCount.Add(1)
	c.persistNanos.Add(int64(duration))
	if err != nil {
		c.persistErrors.Add(1)
	}
}

// BasicMetricsStats is a point-in-time snapshot of a BasicMetricsCollector.
type BasicMetricsStats struct {
	AddCount       int64
	AddErrors      int64
	AvgAddTime     time.Duration
	BatchCount     int64
	BatchItems     int64
	BatchFailed    int64
	SearchCount    int64
	SearchErrors   int64
	AvgSearchTime  time.Duration
	GetCount       int64
	GetErrors      int64
	UpdateCount    int64
	UpdateErrors   int64
	DeleteCount    int64
	DeleteErrors   int64
	PersistCount   int64
	PersistErrors  int64
	AvgPersistTime time.Duration
}

// GetStats returns a snapshot of the current counters.
func (c *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		AddCount:       c.addCount.Load(),
		AddErrors:      c.addErrors.Load(),
		AvgAddTime:     avgDuration(c.addNanos.Load(), c.addCount.Load()+c.batchCount.Load()),
		BatchCount:     c.batchCount.Load(),
		BatchItems:     c.batchItems.Load(),
		BatchFailed:    c.batchFails.Load(),
		SearchCount:    c.searchCount.Load(),
		SearchErrors:   c.searchErrors.Load(),
		AvgSearchTime:  avgDuration(c.searchNanos.Load(), c.searchCount.Load()),
		GetCount:       c.getCount.Load(),
		GetErrors:      c.getErrors.Load(),
		UpdateCount:    c.updateCount.Load(),
		UpdateErrors:   c.updateErrors.Load(),
		DeleteCount:    c.deleteCount.Load(),
		DeleteErrors:   c.deleteErrors.Load(),
		PersistCount:   c.persistCount.Load(),
		PersistErrors:  c.persistErrors.Load(),
		AvgPersistTime: avgDuration(c.persistNanos.Load(), c.persistCount.Load()),
	}
}

func avgDuration(nanos, count int64) time.Duration {
	if count == 0 {
		return 0
	}
	return time.Duration(nanos / count)
}
