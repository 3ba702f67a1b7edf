package sink

import (
	"context"
	"fmt"
	"time"

	"github.com/gurre/filesystemsink/codec"
	"github.com/gurre/filesystemsink/filewriter"
	"github.com/gurre/filesystemsink/multipart"
	"github.com/gurre/filesystemsink/objectstore"
)

// Sink is the two-phase-commit facade a dataflow engine drives directly: it
// owns the Actor's goroutine and translates its message/report channels
// into Init/InsertRecord/Checkpoint/Commit calls, mirroring mod.rs's
// TwoPhaseCommitter implementation for FileSystemSink.
type Sink[T any] struct {
	inbound     chan<- Message[T]
	checkpoints <-chan CheckpointReport[T]

	stopped chan struct{}
	runErr  error
}

// New starts an Actor for type parameters T (input record) and B (encoded
// batch) writing under basePath via store, and returns the facade for it.
// The actor runs until ctx is canceled.
func New[T, B any](
	ctx context.Context,
	store objectstore.Port,
	basePath string,
	newBuilder func() codec.BatchBuilder[T, B],
	newBuffering func() codec.BatchBufferingWriter[B],
	policy filewriter.RollingPolicy,
) *Sink[T] {
	actor := NewActor[T, B](store, basePath, newBuilder, newBuffering, policy)

	s := &Sink[T]{
		inbound:     actor.Inbound(),
		checkpoints: actor.Checkpoints(),
		stopped:     make(chan struct{}),
	}
	go func() {
		s.runErr = actor.Run(ctx)
		close(s.stopped)
	}()
	return s
}

// Init (re)initializes the sink with the next unused file index, this
// subtask's id, and files recovered from a prior checkpoint. Per spec, only
// subtask 0 is expected to pass a non-empty recoveredFiles, since recovery
// ownership does not track subtask identity across a changed parallelism.
func (s *Sink[T]) Init(ctx context.Context, maxFileIndex, subtaskID int, recoveredFiles []multipart.InProgressFileCheckpoint[T]) error {
	return s.send(ctx, InitMessage(maxFileIndex, subtaskID, recoveredFiles))
}

// InsertRecord appends one record to the currently open file.
func (s *Sink[T]) InsertRecord(ctx context.Context, value T, at time.Time) error {
	return s.send(ctx, DataMessage(value, at))
}

// Checkpoint snapshots the sink's state: every still-open file's in-progress
// checkpoint data plus buffered records, and every file whose upload has
// completed but not yet been finalized with CloseMultipart (returned keyed
// by filename as preCommit, for Commit to finish once the checkpoint
// barrier lands durably downstream).
func (s *Sink[T]) Checkpoint(ctx context.Context, subtaskID int, stopping bool) (multipart.DataRecovery[T], map[string]multipart.FileToFinish, error) {
	if err := s.send(ctx, CheckpointMessage[T](subtaskID, stopping)); err != nil {
		return multipart.DataRecovery[T]{}, nil, err
	}

	preCommit := make(map[string]multipart.FileToFinish)
	var activeFiles []multipart.InProgressFileCheckpoint[T]

	for {
		report, err := s.recv(ctx)
		if err != nil {
			return multipart.DataRecovery[T]{}, nil, err
		}
		if report.Finished {
			return multipart.DataRecovery[T]{
				NextFileIndex: report.MaxFileIndex + 1,
				ActiveFiles:   activeFiles,
			}, preCommit, nil
		}

		fc := report.InProgress
		if fc.Data.Kind == multipart.MultiPartWriterUploadCompleted {
			preCommit[fc.Filename] = multipart.FileToFinish{
				Filename:       fc.Filename,
				MultipartID:    fc.Data.MultipartID,
				CompletedParts: fc.Data.CompletedParts,
			}
			continue
		}
		activeFiles = append(activeFiles, fc)
	}
}

// Commit finishes every file named in preCommit by completing its
// multipart upload, once the engine has durably recorded the checkpoint
// those files were snapshotted under.
func (s *Sink[T]) Commit(ctx context.Context, preCommit map[string]multipart.FileToFinish) error {
	files := make([]multipart.FileToFinish, 0, len(preCommit))
	for _, ftf := range preCommit {
		files = append(files, ftf)
	}
	if err := s.send(ctx, FilesToFinishMessage[T](files)); err != nil {
		return err
	}

	for {
		report, err := s.recv(ctx)
		if err != nil {
			return err
		}
		if report.Finished {
			return nil
		}
		return fmt.Errorf("sink: unexpected in-progress checkpoint report during commit")
	}
}

func (s *Sink[T]) send(ctx context.Context, msg Message[T]) error {
	select {
	case s.inbound <- msg:
		return nil
	case <-s.stopped:
		return fmt.Errorf("sink: actor has stopped: %w", s.runErr)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Sink[T]) recv(ctx context.Context) (CheckpointReport[T], error) {
	select {
	case report := <-s.checkpoints:
		return report, nil
	case <-s.stopped:
		return CheckpointReport[T]{}, fmt.Errorf("sink: actor has stopped: %w", s.runErr)
	case <-ctx.Done():
		return CheckpointReport[T]{}, ctx.Err()
	}
}
