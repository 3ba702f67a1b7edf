package filewriter

import (
	"testing"
	"time"

	"github.com/gurre/filesystemsink/codec"
	"github.com/gurre/filesystemsink/multipart"
)

type record struct {
	ID int `json:"id"`
}

func newTestWriter(targetPartSize int) *Writer[record, record] {
	return New[record, record](
		codec.NewPassThroughBuilder[record](),
		codec.NewJSONBufferingWriter[record](targetPartSize),
		"00000-000",
	)
}

func TestWriter_NameAppendsEncoderSuffix(t *testing.T) {
	w := newTestWriter(1 << 20)
	if w.Name() != "00000-000.json" {
		t.Errorf("Name() = %q, want %q", w.Name(), "00000-000.json")
	}
}

func TestWriter_InsertValueRequestsInitializeOnFirstEviction(t *testing.T) {
	w := newTestWriter(1) // evict immediately on first insert

	req, err := w.InsertValue(record{ID: 1}, time.Now())
	if err != nil {
		t.Fatalf("InsertValue: %v", err)
	}
	if req == nil || req.Kind != multipart.RequestInitializeMultipart {
		t.Fatalf("req = %+v, want RequestInitializeMultipart", req)
	}

	stats := w.Stats()
	if stats == nil || stats.PartsWritten != 1 {
		t.Fatalf("stats = %+v, want PartsWritten 1", stats)
	}
}

func TestWriter_InsertValueBelowTargetBuffersWithoutRequest(t *testing.T) {
	w := newTestWriter(1 << 20)

	req, err := w.InsertValue(record{ID: 1}, time.Now())
	if err != nil {
		t.Fatalf("InsertValue: %v", err)
	}
	if req != nil {
		t.Fatalf("req = %+v, want nil while below target size", req)
	}
	if w.Stats().BytesWritten == 0 {
		t.Error("expected bytes_written to track buffered bytes even without eviction")
	}
}

func TestWriter_CloseWithBufferedDataFlushesFinalPart(t *testing.T) {
	w := newTestWriter(1 << 20)
	if _, err := w.InsertValue(record{ID: 1}, time.Now()); err != nil {
		t.Fatalf("InsertValue: %v", err)
	}

	req, finished, err := w.Close()
	if err != nil {
		t.Fatalf("Close: %v", err)
	}
	if finished {
		t.Fatal("did not expect already-finished on a writer with buffered data")
	}
	if req == nil || req.Kind != multipart.RequestInitializeMultipart {
		t.Fatalf("req = %+v, want RequestInitializeMultipart (first part written at close)", req)
	}
}

func TestWriter_CloseWithNothingWrittenIsImmediatelyFinished(t *testing.T) {
	w := newTestWriter(1 << 20)
	req, finished, err := w.Close()
	if err != nil {
		t.Fatalf("Close: %v", err)
	}
	if req != nil {
		t.Errorf("req = %+v, want nil", req)
	}
	if !finished {
		t.Error("expected a writer with no writes to be immediately finished on close")
	}
}

func TestWriter_FullLifecycleProducesFinishedFile(t *testing.T) {
	w := newTestWriter(1) // evict every insert to keep this deterministic

	req, err := w.InsertValue(record{ID: 1}, time.Now())
	if err != nil || req == nil {
		t.Fatalf("InsertValue: req=%+v err=%v", req, err)
	}
	initRequests := w.HandleInitialization("upload-1")
	if len(initRequests) != 1 {
		t.Fatalf("expected the one part buffered before initialization to be requested, got %d", len(initRequests))
	}

	// InsertValue only asked to start the upload; the part itself comes back
	// from HandleInitialization and still needs to be "executed" and
	// reported.
	ftf, err := w.HandleCompletedPart(initRequests[0].PartIndex, "etag-0")
	if err != nil {
		t.Fatalf("HandleCompletedPart: %v", err)
	}
	if ftf != nil {
		t.Fatal("writer is not closed yet; should not finish")
	}

	closeReq, finished, err := w.Close()
	if err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !finished {
		t.Fatal("expected already-finished: the only part completed before close and nothing was buffered")
	}
	if closeReq != nil {
		t.Fatalf("closeReq = %+v, want nil (nothing buffered at close)", closeReq)
	}

	if !w.manager.AllUploadsFinished() {
		t.Fatal("expected all uploads finished after the only part completed on a closed writer")
	}
	finishedFile, err := w.FinishedFile()
	if err != nil {
		t.Fatalf("FinishedFile: %v", err)
	}
	if finishedFile.MultipartID != "upload-1" {
		t.Errorf("MultipartID = %q, want upload-1", finishedFile.MultipartID)
	}
	if len(finishedFile.CompletedParts) != 1 || finishedFile.CompletedParts[0] != "etag-0" {
		t.Errorf("CompletedParts = %v, want [etag-0]", finishedFile.CompletedParts)
	}
}
