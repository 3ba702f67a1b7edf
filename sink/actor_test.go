package sink

import (
	"context"
	"testing"
	"time"

	"github.com/gurre/filesystemsink/codec"
	"github.com/gurre/filesystemsink/filewriter"
	"github.com/gurre/filesystemsink/multipart"
)

func TestSink_InitReplaysRecoveredFileToCompletion(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	store := newMemStore()
	s := New[event, event](
		ctx, store, "out",
		func() codec.BatchBuilder[event, event] { return codec.NewPassThroughBuilder[event]() },
		func() codec.BatchBufferingWriter[event] { return codec.NewJSONBufferingWriter[event](1) },
		filewriter.AnyOf{filewriter.PartLimit(filewriter.DefaultPartLimit)},
	)

	recovered := []multipart.InProgressFileCheckpoint[event]{
		{
			Filename: "out/00000-000.json",
			Data: multipart.CheckpointData{
				Kind:       multipart.MultiPartNotCreated,
				PartsToAdd: [][]byte{[]byte(`{"seq":0}` + "\n")},
			},
		},
	}

	// recovery always resumes with the next file index, so a fresh run
	// starts at 1 with the recovered file finishing independently.
	if err := s.Init(ctx, 1, 0, recovered); err != nil {
		t.Fatalf("Init: %v", err)
	}

	recoveryState, preCommit, err := s.Checkpoint(ctx, 0, true)
	if err != nil {
		t.Fatalf("Checkpoint: %v", err)
	}
	if len(recoveryState.ActiveFiles) != 0 {
		t.Errorf("ActiveFiles = %+v, want none", recoveryState.ActiveFiles)
	}
	if _, ok := preCommit["out/00000-000.json"]; !ok {
		t.Fatalf("preCommit = %+v, want the recovered file present", preCommit)
	}

	if err := s.Commit(ctx, preCommit); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if _, ok := store.finalContents("out/00000-000.json"); !ok {
		t.Error("expected the recovered file to have been finalized in the store")
	}
}

func TestHandleFilesToFinish_RejectsStillActiveWriter(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	store := newMemStore()
	a := NewActor[event, event](
		store, "out",
		func() codec.BatchBuilder[event, event] { return codec.NewPassThroughBuilder[event]() },
		func() codec.BatchBufferingWriter[event] { return codec.NewJSONBufferingWriter[event](1) },
		filewriter.AnyOf{filewriter.PartLimit(filewriter.DefaultPartLimit)},
	)

	if err := a.handleInit(ctx, InitMessage[event](0, 0, nil)); err != nil {
		t.Fatalf("handleInit: %v", err)
	}

	active := a.currentWriterName
	err := a.handleFilesToFinish(ctx, FilesToFinishMessage[event]([]multipart.FileToFinish{
		{Filename: active, MultipartID: "upload-1", CompletedParts: []string{"etag-0"}},
	}))
	if err == nil {
		t.Fatalf("expected handleFilesToFinish to reject a still-active writer %q, got nil error", active)
	}
	if _, ok := store.finalContents(active); ok {
		t.Errorf("expected %s to remain unfinished, but it was finalized in the store", active)
	}
}
