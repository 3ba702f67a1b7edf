package sink

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/gurre/filesystemsink/codec"
	"github.com/gurre/filesystemsink/filewriter"
	"github.com/gurre/filesystemsink/multipart"
	"github.com/gurre/filesystemsink/objectstore"
	"github.com/gurre/filesystemsink/recovery"
)

// rollingPolicyCheckInterval mirrors the fixed 100ms tick the original
// actor loop uses to re-evaluate its rolling policy.
const rollingPolicyCheckInterval = 100 * time.Millisecond

type callbackKind int

const (
	callbackInitialized callbackKind = iota
	callbackCompletedPart
)

// pendingResult is what a dispatched upload goroutine reports back on the
// actor's results channel once the object-store call it was given
// completes.
type pendingResult struct {
	writerName  string
	kind        callbackKind
	multipartID string
	partIdx     int
	contentID   string
	err         error
}

// Actor is the single cooperative task per subtask that multiplexes
// inbound messages, in-flight upload results, and rolling-policy ticks.
// It translates Rust's tokio::select!-over-FuturesUnordered loop
// (mod.rs's AsyncMultipartFileSystemWriter::run) into a goroutine-per-
// upload model: instead of the actor awaiting a FuturesUnordered directly,
// every dispatched object-store call runs in its own goroutine and reports
// through a shared results channel that the select loop fans in.
type Actor[T, B any] struct {
	store    objectstore.Port
	basePath string

	newBuilder   func() codec.BatchBuilder[T, B]
	newBuffering func() codec.BatchBufferingWriter[B]
	policy       filewriter.RollingPolicy

	inbound     chan Message[T]
	checkpoints chan CheckpointReport[T]
	results     chan pendingResult
	pending     int

	maxFileIndex      int
	subtaskID         int
	currentWriterName string
	writers           map[string]*filewriter.Writer[T, B]
	filesToFinish     []multipart.FileToFinish
}

// NewActor builds an Actor writing under basePath via store, constructing a
// fresh encoder pair (builder, buffering writer) for every file it opens.
func NewActor[T, B any](
	store objectstore.Port,
	basePath string,
	newBuilder func() codec.BatchBuilder[T, B],
	newBuffering func() codec.BatchBufferingWriter[B],
	policy filewriter.RollingPolicy,
) *Actor[T, B] {
	return &Actor[T, B]{
		store:        store,
		basePath:     basePath,
		newBuilder:   newBuilder,
		newBuffering: newBuffering,
		policy:       policy,
		inbound:      make(chan Message[T], 10000),
		checkpoints:  make(chan CheckpointReport[T], 10000),
		results:      make(chan pendingResult, 256),
		writers:      make(map[string]*filewriter.Writer[T, B]),
	}
}

// Inbound is the channel a facade sends Messages on.
func (a *Actor[T, B]) Inbound() chan<- Message[T] { return a.inbound }

// Checkpoints is the channel a facade receives CheckpointReports from.
func (a *Actor[T, B]) Checkpoints() <-chan CheckpointReport[T] { return a.checkpoints }

// Run drives the actor's message loop until ctx is canceled or Inbound is
// closed. It is meant to be run in its own goroutine, mirroring how
// FileSystemSink::from_config spawns AsyncMultipartFileSystemWriter::run.
func (a *Actor[T, B]) Run(ctx context.Context) error {
	ticker := time.NewTicker(rollingPolicyCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case msg, ok := <-a.inbound:
			if !ok {
				return nil
			}
			if err := a.handle(ctx, msg); err != nil {
				return err
			}

		case res := <-a.results:
			if err := a.processResult(ctx, res); err != nil {
				return err
			}

		case <-ticker.C:
			if err := a.checkRollingPolicy(ctx); err != nil {
				return err
			}
		}
	}
}

func (a *Actor[T, B]) handle(ctx context.Context, msg Message[T]) error {
	switch msg.Kind {
	case MsgData:
		return a.handleData(ctx, msg)
	case MsgInit:
		return a.handleInit(ctx, msg)
	case MsgCheckpoint:
		return a.handleCheckpoint(ctx, msg)
	case MsgFilesToFinish:
		return a.handleFilesToFinish(ctx, msg)
	default:
		return fmt.Errorf("sink: unrecognized message kind %v", msg.Kind)
	}
}

func (a *Actor[T, B]) handleData(ctx context.Context, msg Message[T]) error {
	writer, ok := a.writers[a.currentWriterName]
	if !ok {
		return fmt.Errorf("sink: expected the current writer %q to be initialized", a.currentWriterName)
	}
	req, err := writer.InsertValue(msg.Value, msg.Time)
	if err != nil {
		return err
	}
	a.dispatch(ctx, a.currentWriterName, writer, req)
	return nil
}

func (a *Actor[T, B]) handleInit(ctx context.Context, msg Message[T]) error {
	if err := a.closeCurrentWriter(ctx); err != nil {
		return err
	}
	a.maxFileIndex = msg.MaxFileIndex
	a.subtaskID = msg.SubtaskID
	a.openNewWriter()

	for _, recovered := range msg.RecoveredFiles {
		ftf, err := recovery.FromCheckpoint(ctx, a.store, recovered.Filename, recovered.Data)
		if err != nil {
			return err
		}
		if ftf != nil {
			a.filesToFinish = append(a.filesToFinish, *ftf)
		}

		for _, value := range recovered.BufferedData {
			writer, ok := a.writers[a.currentWriterName]
			if !ok {
				return fmt.Errorf("sink: expected the current writer %q to be initialized during recovery replay", a.currentWriterName)
			}
			req, err := writer.InsertValue(value, time.Now())
			if err != nil {
				return err
			}
			a.dispatch(ctx, a.currentWriterName, writer, req)
		}
	}
	return nil
}

func (a *Actor[T, B]) handleCheckpoint(ctx context.Context, msg Message[T]) error {
	if err := a.flushResults(ctx); err != nil {
		return err
	}
	if msg.ThenStop {
		if err := a.stop(ctx); err != nil {
			return err
		}
	}
	if err := a.takeCheckpoint(); err != nil {
		return err
	}
	a.checkpoints <- CheckpointReport[T]{Finished: true, MaxFileIndex: a.maxFileIndex}
	return nil
}

func (a *Actor[T, B]) handleFilesToFinish(ctx context.Context, msg Message[T]) error {
	for _, ftf := range msg.Files {
		if _, ok := a.writers[ftf.Filename]; ok {
			return fmt.Errorf("sink: refusing to finish %s: it is still an active writer", ftf.Filename)
		}
		if len(ftf.CompletedParts) == 0 {
			log.Printf("sink: no parts to finish for file %s", ftf.Filename)
			continue
		}
		if err := a.store.CloseMultipart(ctx, ftf.Filename, ftf.MultipartID, ftf.CompletedParts); err != nil {
			return fmt.Errorf("sink: close multipart upload for %s: %w", ftf.Filename, err)
		}
	}
	a.checkpoints <- CheckpointReport[T]{Finished: true, MaxFileIndex: a.maxFileIndex}
	return nil
}

// dispatch spawns a goroutine to perform the object-store call req
// describes, reporting its outcome on a.results. A nil req is a no-op, so
// callers can pass the direct result of a Writer method without checking.
func (a *Actor[T, B]) dispatch(ctx context.Context, name string, writer *filewriter.Writer[T, B], req *multipart.Request) {
	if req == nil {
		return
	}
	path := writer.Name()
	a.pending++

	switch req.Kind {
	case multipart.RequestInitializeMultipart:
		go func() {
			id, err := a.store.StartMultipart(ctx, path)
			a.results <- pendingResult{writerName: name, kind: callbackInitialized, multipartID: id, err: err}
		}()

	case multipart.RequestUploadPart:
		multipartID, _ := writer.MultipartID()
		index, data := req.PartIndex, req.Data
		go func() {
			uploaded, err := a.store.AddMultipart(ctx, path, multipartID, objectstore.PartSpec{Index: index, Data: data})
			a.results <- pendingResult{writerName: name, kind: callbackCompletedPart, partIdx: index, contentID: uploaded.ContentID, err: err}
		}()
	}
}

func (a *Actor[T, B]) processResult(ctx context.Context, res pendingResult) error {
	a.pending--
	if res.err != nil {
		return fmt.Errorf("sink: upload callback for %s failed: %w", res.writerName, res.err)
	}
	writer, ok := a.writers[res.writerName]
	if !ok {
		return fmt.Errorf("sink: missing writer %s for completed callback", res.writerName)
	}

	switch res.kind {
	case callbackInitialized:
		for _, req := range writer.HandleInitialization(res.multipartID) {
			req := req
			a.dispatch(ctx, res.writerName, writer, &req)
		}
	case callbackCompletedPart:
		ftf, err := writer.HandleCompletedPart(res.partIdx, res.contentID)
		if err != nil {
			return err
		}
		if ftf != nil {
			a.filesToFinish = append(a.filesToFinish, *ftf)
			delete(a.writers, res.writerName)
		}
	}
	return nil
}

// flushResults drains every dispatched upload that has not yet reported
// back, blocking until none remain. Mirrors flush_futures draining
// FuturesUnordered via try_next().
func (a *Actor[T, B]) flushResults(ctx context.Context) error {
	for a.pending > 0 {
		select {
		case res := <-a.results:
			if err := a.processResult(ctx, res); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// stop closes the current writer and drains every in-flight upload it
// triggers, leaving the actor with nothing outstanding.
func (a *Actor[T, B]) stop(ctx context.Context) error {
	if err := a.closeCurrentWriter(ctx); err != nil {
		return err
	}
	return a.flushResults(ctx)
}

// closeCurrentWriter closes the writer named currentWriterName, if any,
// dispatching its final part upload or finishing it immediately when
// nothing more needs to be written.
func (a *Actor[T, B]) closeCurrentWriter(ctx context.Context) error {
	writer, ok := a.writers[a.currentWriterName]
	if !ok {
		return nil
	}
	req, finished, err := writer.Close()
	if err != nil {
		return err
	}
	if finished {
		if _, hasMultipartID := writer.MultipartID(); !hasMultipartID {
			// nothing was ever written to this file: there is no multipart
			// upload to finish, so drop it rather than leaving a zombie writer.
			delete(a.writers, a.currentWriterName)
			return nil
		}
		ftf, err := writer.FinishedFile()
		if err != nil {
			return err
		}
		a.filesToFinish = append(a.filesToFinish, ftf)
		delete(a.writers, a.currentWriterName)
		return nil
	}
	a.dispatch(ctx, a.currentWriterName, writer, req)
	return nil
}

// openNewWriter creates a writer named from the current max file index and
// subtask id and makes it the current writer.
func (a *Actor[T, B]) openNewWriter() {
	location := fmt.Sprintf("%s/%05d-%03d", a.basePath, a.maxFileIndex, a.subtaskID)
	writer := filewriter.New[T, B](a.newBuilder(), a.newBuffering(), location)
	a.currentWriterName = writer.Name()
	a.writers[writer.Name()] = writer
}

// takeCheckpoint emits one CheckpointReport per still-open writer (carrying
// its in-progress state and any buffered records) and one per file that has
// finished uploading but not yet been closed, then clears filesToFinish
// since it has now been handed to the caller to persist.
func (a *Actor[T, B]) takeCheckpoint() error {
	for name, writer := range a.writers {
		data, err := writer.InProgressCheckpoint()
		if err != nil {
			return err
		}
		a.checkpoints <- CheckpointReport[T]{
			InProgress: multipart.InProgressFileCheckpoint[T]{
				Filename:     name,
				Data:         data,
				BufferedData: writer.BufferedData(),
			},
		}
	}
	for _, ftf := range a.filesToFinish {
		a.checkpoints <- CheckpointReport[T]{
			InProgress: multipart.InProgressFileCheckpoint[T]{
				Filename: ftf.Filename,
				Data: multipart.CheckpointData{
					Kind:           multipart.MultiPartWriterUploadCompleted,
					MultipartID:    ftf.MultipartID,
					CompletedParts: ftf.CompletedParts,
				},
			},
		}
	}
	a.filesToFinish = nil
	return nil
}

// checkRollingPolicy evaluates the configured RollingPolicy against the
// current writer's stats, rolling over to a fresh file if it says to.
func (a *Actor[T, B]) checkRollingPolicy(ctx context.Context) error {
	writer, ok := a.writers[a.currentWriterName]
	if !ok {
		return nil
	}
	stats := writer.Stats()
	if stats == nil {
		return nil
	}
	if !a.policy.ShouldRoll(*stats, time.Now()) {
		return nil
	}
	if err := a.closeCurrentWriter(ctx); err != nil {
		return err
	}
	a.maxFileIndex++
	a.openNewWriter()
	return nil
}
