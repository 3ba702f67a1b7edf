package filewriter

import (
	"fmt"
	"time"

	"github.com/gurre/filesystemsink/codec"
	"github.com/gurre/filesystemsink/multipart"
)

// Writer composes one codec.BatchBuilder, one codec.BatchBufferingWriter,
// and one multipart.Manager into the single-file write path: records come
// in through InsertValue, batches accumulate into parts, and parts are
// handed off to the Manager as multipart.Request values for the caller to
// execute against an object store.
type Writer[T, B any] struct {
	builder   codec.BatchBuilder[T, B]
	buffering codec.BatchBufferingWriter[B]
	manager   *multipart.Manager
	stats     *Stats
}

// New creates a Writer targeting location, with the encoder's suffix
// appended to form the final file name.
func New[T, B any](builder codec.BatchBuilder[T, B], buffering codec.BatchBufferingWriter[B], location string) *Writer[T, B] {
	path := location
	if suffix := buffering.Suffix(); suffix != "" {
		path = fmt.Sprintf("%s.%s", location, suffix)
	}
	return &Writer[T, B]{
		builder:   builder,
		buffering: buffering,
		manager:   multipart.NewManager(path),
	}
}

// Name returns the file path this Writer is producing.
func (w *Writer[T, B]) Name() string { return w.manager.Name() }

// MultipartID returns the upload id assigned once the multipart upload has
// started.
func (w *Writer[T, B]) MultipartID() (string, bool) { return w.manager.MultipartID() }

// Stats returns the writer's accumulated byte/part counters, or nil if
// nothing has been written yet.
func (w *Writer[T, B]) Stats() *Stats { return w.stats }

// InsertValue accepts one input record and returns the multipart.Request to
// perform, if inserting it caused a part to become ready for upload.
func (w *Writer[T, B]) InsertValue(value T, now time.Time) (*multipart.Request, error) {
	if w.stats == nil {
		w.stats = &Stats{FirstWriteAt: now}
	}
	w.stats.LastWriteAt = now

	batch, ready := w.builder.Insert(value)
	if !ready {
		return nil, nil
	}

	prevSize := w.buffering.BufferLength()
	part, partReady, err := w.buffering.AddBatchData(batch)
	if err != nil {
		return nil, fmt.Errorf("filewriter: encode batch for %s: %w", w.Name(), err)
	}
	if !partReady {
		w.stats.BytesWritten += w.buffering.BufferLength() - prevSize
		return nil, nil
	}
	w.stats.BytesWritten += len(part) - prevSize
	w.stats.PartsWritten++
	return w.manager.WriteNextPart(part), nil
}

// HandleInitialization forwards a completed start-multipart call to the
// underlying Manager.
func (w *Writer[T, B]) HandleInitialization(multipartID string) []multipart.Request {
	return w.manager.HandleInitialized(multipartID)
}

// HandleCompletedPart forwards a completed part upload to the underlying
// Manager, returning a FileToFinish once every part has uploaded on a
// closed writer.
func (w *Writer[T, B]) HandleCompletedPart(partIdx int, contentID string) (*multipart.FileToFinish, error) {
	return w.manager.HandleCompletedPart(partIdx, contentID)
}

// InProgressCheckpoint projects the writer's current state into
// checkpointable data, attaching any trailing encoder bytes that have not
// yet been evicted as a part.
func (w *Writer[T, B]) InProgressCheckpoint() (multipart.CheckpointData, error) {
	if w.manager.Closed() {
		return w.manager.ClosedCheckpointData()
	}
	trailing, present := w.buffering.TrailingBytesForCheckpoint()
	return w.manager.InProgressCheckpointData(trailing, present)
}

// BufferedData returns the input records the encoder has accepted but not
// yet promoted into a part, so a checkpoint can replay them after restart.
func (w *Writer[T, B]) BufferedData() []T {
	return w.builder.BufferedInputs()
}

// FinishedFile returns the FileToFinish for a closed, fully-uploaded
// writer.
func (w *Writer[T, B]) FinishedFile() (multipart.FileToFinish, error) {
	return w.manager.FinishedFile()
}

// Close flushes any buffered batch and buffer bytes through the encoder,
// marks the underlying Manager closed, and reports what happens next: a
// Request to perform (uploading the final part), or alreadyFinished=true if
// nothing remains to upload, or neither if parts are still in flight and
// FinishedFile will follow once HandleCompletedPart reports the last one.
// alreadyFinished covers two cases: every part had already uploaded, so
// FinishedFile can be called immediately; or no part was ever written, so
// there is no multipart upload and nothing to finish (MultipartID reports
// false and FinishedFile returns an error).
func (w *Writer[T, B]) Close() (req *multipart.Request, alreadyFinished bool, err error) {
	w.manager.Close()

	var finalBatch *B
	if buffered := w.builder.BufferedInputs(); len(buffered) > 0 {
		fb := w.builder.FlushBuffer()
		finalBatch = &fb
	}

	part, ready, err := w.buffering.Close(finalBatch)
	if err != nil {
		return nil, false, fmt.Errorf("filewriter: close encoder for %s: %w", w.Name(), err)
	}
	if ready {
		return w.manager.WriteNextPart(part), false, nil
	}
	if w.manager.AllUploadsFinished() || w.stats == nil || w.stats.PartsWritten == 0 {
		return nil, true, nil
	}
	return nil, false, nil
}
