package metrics

import (
	"strings"
	"testing"
	"time"
)

func TestMetricsHappyPath(t *testing.T) {
	m := NewMetrics()

	m.RecordWritten()
	m.RecordWritten()
	m.RecordPartUploaded(128)
	m.RecordFileFinalized()
	m.RecordRollEvent()
	m.RecordError()

	time.Sleep(10 * time.Millisecond)

	report := m.GenerateReport()

	if report.RecordsWritten != 2 {
		t.Errorf("RecordsWritten = %d, want 2", report.RecordsWritten)
	}
	if report.PartsUploaded != 1 {
		t.Errorf("PartsUploaded = %d, want 1", report.PartsUploaded)
	}
	if report.BytesWritten != 128 {
		t.Errorf("BytesWritten = %d, want 128", report.BytesWritten)
	}
	if report.FilesFinalized != 1 {
		t.Errorf("FilesFinalized = %d, want 1", report.FilesFinalized)
	}
	if report.RollEvents != 1 {
		t.Errorf("RollEvents = %d, want 1", report.RollEvents)
	}
	if report.Errors != 1 {
		t.Errorf("Errors = %d, want 1", report.Errors)
	}
	if report.Duration < 10*time.Millisecond {
		t.Errorf("Duration = %v, want >= 10ms", report.Duration)
	}
	if report.Throughput <= 0 {
		t.Errorf("Throughput = %f, want positive", report.Throughput)
	}

	str := report.String()
	if !strings.Contains(str, "Records written: 2") {
		t.Errorf("String() = %q, want it to mention records written", str)
	}
}

func TestGenerateReport_MarshalJSONFormatsDurationAsString(t *testing.T) {
	m := NewMetrics()
	m.RecordWritten()
	report := m.GenerateReport()

	data, err := report.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON: %v", err)
	}
	if !strings.Contains(string(data), `"duration":"`) {
		t.Errorf("MarshalJSON() = %s, want a quoted duration field", data)
	}
	if !strings.Contains(string(data), `"recordsWritten":1`) {
		t.Errorf("MarshalJSON() = %s, want recordsWritten:1", data)
	}
}
