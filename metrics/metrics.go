// Package metrics collects counters during a sink's lifetime and renders a
// final report.
package metrics

import (
	"fmt"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"
)

// Metrics collects counters as files are written, parts upload, and files
// roll over. It uses atomic operations for thread-safe counter updates,
// since parts upload concurrently across per-upload goroutines.
type Metrics struct {
	recordsWritten int64 // Total number of records inserted into the sink
	partsUploaded  int64 // Number of multipart parts successfully uploaded
	filesFinalized int64 // Number of files completed via CloseMultipart
	rollEvents     int64 // Number of times a rolling policy closed a file
	errors         int64 // Number of failed object-store operations
	bytesWritten   int64 // Total bytes handed to AddMultipart

	startTime time.Time
}

// NewMetrics creates a new Metrics instance with the clock started.
func NewMetrics() *Metrics {
	return &Metrics{startTime: time.Now()}
}

// RecordWritten increments the records-written counter.
func (m *Metrics) RecordWritten() {
	atomic.AddInt64(&m.recordsWritten, 1)
}

// RecordPartUploaded increments the parts-uploaded counter and adds n bytes
// to the running byte total.
func (m *Metrics) RecordPartUploaded(n int) {
	atomic.AddInt64(&m.partsUploaded, 1)
	atomic.AddInt64(&m.bytesWritten, int64(n))
}

// RecordFileFinalized increments the files-finalized counter.
func (m *Metrics) RecordFileFinalized() {
	atomic.AddInt64(&m.filesFinalized, 1)
}

// RecordRollEvent increments the roll-events counter.
func (m *Metrics) RecordRollEvent() {
	atomic.AddInt64(&m.rollEvents, 1)
}

// RecordError increments the errors counter.
func (m *Metrics) RecordError() {
	atomic.AddInt64(&m.errors, 1)
}

// Report contains the final metrics snapshot.
type Report struct {
	StartTime      time.Time     `json:"startTime"`
	EndTime        time.Time     `json:"endTime"`
	RecordsWritten int64         `json:"recordsWritten"`
	PartsUploaded  int64         `json:"partsUploaded"`
	FilesFinalized int64         `json:"filesFinalized"`
	RollEvents     int64         `json:"rollEvents"`
	Errors         int64         `json:"errors"`
	BytesWritten   int64         `json:"bytesWritten"`
	Duration       time.Duration `json:"duration"`
	Throughput     float64       `json:"throughput"` // records per second
}

// GenerateReport snapshots all counters and computes derived fields.
func (m *Metrics) GenerateReport() Report {
	endTime := time.Now()
	duration := endTime.Sub(m.startTime)

	var throughput float64
	if duration > 0 {
		throughput = float64(atomic.LoadInt64(&m.recordsWritten)) / duration.Seconds()
	}

	return Report{
		StartTime:      m.startTime,
		EndTime:        endTime,
		RecordsWritten: atomic.LoadInt64(&m.recordsWritten),
		PartsUploaded:  atomic.LoadInt64(&m.partsUploaded),
		FilesFinalized: atomic.LoadInt64(&m.filesFinalized),
		RollEvents:     atomic.LoadInt64(&m.rollEvents),
		Errors:         atomic.LoadInt64(&m.errors),
		BytesWritten:   atomic.LoadInt64(&m.bytesWritten),
		Duration:       duration,
		Throughput:     throughput,
	}
}

// MarshalJSON implements json.Marshaler, formatting Duration as its string
// form so the report reads naturally from the command line.
func (r Report) MarshalJSON() ([]byte, error) {
	type Alias Report
	return json.Marshal(&struct {
		Alias
		Duration string `json:"duration"`
	}{
		Alias:    Alias(r),
		Duration: r.Duration.String(),
	})
}

// String returns a human-readable summary for console output.
func (r Report) String() string {
	return fmt.Sprintf(
		"Sink ran for %s\n"+
			"Records written: %d\n"+
			"Parts uploaded: %d (%d bytes)\n"+
			"Files finalized: %d\n"+
			"Roll events: %d\n"+
			"Errors: %d\n"+
			"Throughput: %.2f records/sec",
		r.Duration,
		r.RecordsWritten,
		r.PartsUploaded, r.BytesWritten,
		r.FilesFinalized,
		r.RollEvents,
		r.Errors,
		r.Throughput,
	)
}
