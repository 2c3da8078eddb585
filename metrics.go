package docbase

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
type MetricsCollector interface {
	// RecordInsert is called after each insert batch. count is the
	// number of documents inserted, duration is the total time taken,
	// err is nil if successful.
	RecordInsert(count int, duration time.Duration, err error)

	// RecordUpsert is called after each upsert batch. inserted is the
	// number of documents inserted (as opposed to replaced).
	RecordUpsert(inserted, total int, duration time.Duration, err error)

	// RecordDrop is called after each collection drop.
	RecordDrop(duration time.Duration, err error)

	// RecordCheckpoint is called after each checkpoint attempt.
	RecordCheckpoint(duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordInsert(int, time.Duration, error)      {}
func (NoopMetricsCollector) RecordUpsert(int, int, time.Duration, error) {}
func (NoopMetricsCollector) RecordDrop(time.Duration, error)             {}
func (NoopMetricsCollector) RecordCheckpoint(time.Duration, error)       {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	InsertBatches    atomic.Int64
	InsertDocs       atomic.Int64
	InsertErrors     atomic.Int64
	InsertTotalNanos atomic.Int64
	UpsertBatches    atomic.Int64
	UpsertInserted   atomic.Int64
	UpsertReplaced   atomic.Int64
	UpsertErrors     atomic.Int64
	DropCount        atomic.Int64
	DropErrors       atomic.Int64
	CheckpointCount  atomic.Int64
	CheckpointErrors atomic.Int64
}

// RecordInsert implements MetricsCollector.
func (b *BasicMetricsCollector) RecordInsert(count int, duration time.Duration, err error) {
	b.InsertBatches.Add(1)
	b.InsertDocs.Add(int64(count))
	b.InsertTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.InsertErrors.Add(1)
	}
}

// RecordUpsert implements MetricsCollector.
func (b *BasicMetricsCollector) RecordUpsert(inserted, total int, duration time.Duration, err error) {
	b.UpsertBatches.Add(1)
	b.UpsertInserted.Add(int64(inserted))
	b.UpsertReplaced.Add(int64(total - inserted))
	if err != nil {
		b.UpsertErrors.Add(1)
	}
}

// RecordDrop implements MetricsCollector.
func (b *BasicMetricsCollector) RecordDrop(duration time.Duration, err error) {
	b.DropCount.Add(1)
	if err != nil {
		b.DropErrors.Add(1)
	}
}

// RecordCheckpoint implements MetricsCollector.
func (b *BasicMetricsCollector) RecordCheckpoint(duration time.Duration, err error) {
	b.CheckpointCount.Add(1)
	if err != nil {
		b.CheckpointErrors.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		InsertBatches:    b.InsertBatches.Load(),
		InsertDocs:       b.InsertDocs.Load(),
		InsertErrors:     b.InsertErrors.Load(),
		InsertAvgNanos:   b.getAvgInsertNanos(),
		UpsertBatches:    b.UpsertBatches.Load(),
		UpsertInserted:   b.UpsertInserted.Load(),
		UpsertReplaced:   b.UpsertReplaced.Load(),
		UpsertErrors:     b.UpsertErrors.Load(),
		DropCount:        b.DropCount.Load(),
		DropErrors:       b.DropErrors.Load(),
		CheckpointCount:  b.CheckpointCount.Load(),
		CheckpointErrors: b.CheckpointErrors.Load(),
	}
}

func (b *BasicMetricsCollector) getAvgInsertNanos() int64 {
	batches := b.InsertBatches.Load()
	if batches == 0 {
		return 0
	}
	return b.InsertTotalNanos.Load() / batches
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	InsertBatches    int64
	InsertDocs       int64
	InsertErrors     int64
	InsertAvgNanos   int64
	UpsertBatches    int64
	UpsertInserted   int64
	UpsertReplaced   int64
	UpsertErrors     int64
	DropCount        int64
	DropErrors       int64
	CheckpointCount  int64
	CheckpointErrors int64
}
