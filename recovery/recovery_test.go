package recovery

import (
	"context"
	"testing"

	"github.com/gurre/filesystemsink/multipart"
	"github.com/gurre/filesystemsink/objectstore"
)

type fakeStore struct {
	startCalls int
	nextID     string
	uploads    []objectstore.PartSpec
}

func (f *fakeStore) StartMultipart(ctx context.Context, path string) (string, error) {
	f.startCalls++
	return f.nextID, nil
}

func (f *fakeStore) AddMultipart(ctx context.Context, path, multipartID string, part objectstore.PartSpec) (objectstore.UploadedPart, error) {
	f.uploads = append(f.uploads, part)
	return objectstore.UploadedPart{Index: part.Index, ContentID: "etag"}, nil
}

func TestFromCheckpoint_Empty(t *testing.T) {
	store := &fakeStore{}
	ftf, err := FromCheckpoint(context.Background(), store, "file.json", multipart.CheckpointData{Kind: multipart.Empty})
	if err != nil {
		t.Fatalf("FromCheckpoint: %v", err)
	}
	if ftf != nil {
		t.Errorf("ftf = %+v, want nil for Empty", ftf)
	}
	if store.startCalls != 0 {
		t.Error("Empty checkpoint should never start a multipart upload")
	}
}

func TestFromCheckpoint_MultiPartNotCreated_StartsAndUploadsInIndexOrder(t *testing.T) {
	store := &fakeStore{nextID: "upload-1"}
	data := multipart.CheckpointData{
		Kind:                 multipart.MultiPartNotCreated,
		PartsToAdd:           [][]byte{[]byte("a"), []byte("b")},
		TrailingBytes:        []byte("c"),
		TrailingBytesPresent: true,
	}

	ftf, err := FromCheckpoint(context.Background(), store, "file.json", data)
	if err != nil {
		t.Fatalf("FromCheckpoint: %v", err)
	}
	if ftf == nil {
		t.Fatal("expected a FileToFinish")
	}
	if store.startCalls != 1 {
		t.Errorf("startCalls = %d, want 1", store.startCalls)
	}
	if len(store.uploads) != 3 {
		t.Fatalf("uploads = %+v, want 3 parts (2 buffered + trailing)", store.uploads)
	}
	for i, upload := range store.uploads {
		if upload.Index != i {
			t.Errorf("upload %d has index %d, want %d", i, upload.Index, i)
		}
	}
	if ftf.MultipartID != "upload-1" {
		t.Errorf("MultipartID = %q, want upload-1", ftf.MultipartID)
	}
	if len(ftf.CompletedParts) != 3 {
		t.Errorf("CompletedParts = %v, want 3 entries", ftf.CompletedParts)
	}
}

func TestFromCheckpoint_MultiPartInFlight_ReuploadsOnlyInProgressParts(t *testing.T) {
	store := &fakeStore{}
	data := multipart.CheckpointData{
		Kind:        multipart.MultiPartInFlight,
		MultipartID: "upload-2",
		InFlightParts: []multipart.InFlightPart{
			{Part: 0, Finished: true, ContentID: "etag-0"},
			{Part: 1, Finished: false, Data: []byte("b")},
		},
	}

	ftf, err := FromCheckpoint(context.Background(), store, "file.json", data)
	if err != nil {
		t.Fatalf("FromCheckpoint: %v", err)
	}
	if store.startCalls != 0 {
		t.Error("an in-flight multipart upload must not be restarted")
	}
	if len(store.uploads) != 1 || store.uploads[0].Index != 1 {
		t.Fatalf("uploads = %+v, want exactly one re-upload at index 1", store.uploads)
	}
	if len(ftf.CompletedParts) != 2 {
		t.Fatalf("CompletedParts = %v, want 2 entries", ftf.CompletedParts)
	}
	if ftf.CompletedParts[0] != "etag-0" {
		t.Errorf("finished part content id not preserved: %v", ftf.CompletedParts)
	}
}

func TestFromCheckpoint_MultiPartWriterUploadCompleted_PassesThrough(t *testing.T) {
	store := &fakeStore{}
	data := multipart.CheckpointData{
		Kind:           multipart.MultiPartWriterUploadCompleted,
		MultipartID:    "upload-3",
		CompletedParts: []string{"etag-0", "etag-1"},
	}

	ftf, err := FromCheckpoint(context.Background(), store, "file.json", data)
	if err != nil {
		t.Fatalf("FromCheckpoint: %v", err)
	}
	if len(store.uploads) != 0 || store.startCalls != 0 {
		t.Error("a fully uploaded checkpoint should not touch the store at all")
	}
	if len(ftf.CompletedParts) != 2 {
		t.Errorf("CompletedParts = %v, want the two parts unchanged", ftf.CompletedParts)
	}
}

func TestFromCheckpoint_MultiPartWriterClosed_ReuploadsInOrder(t *testing.T) {
	store := &fakeStore{}
	data := multipart.CheckpointData{
		Kind:        multipart.MultiPartWriterClosed,
		MultipartID: "upload-4",
		InFlightParts: []multipart.InFlightPart{
			{Finished: true, ContentID: "etag-0"},
			{Finished: false, Data: []byte("b")},
			{Finished: false, Data: []byte("c")},
		},
	}

	ftf, err := FromCheckpoint(context.Background(), store, "file.json", data)
	if err != nil {
		t.Fatalf("FromCheckpoint: %v", err)
	}
	if len(store.uploads) != 2 {
		t.Fatalf("uploads = %+v, want 2 re-uploads", store.uploads)
	}
	if store.uploads[0].Index != 1 || store.uploads[1].Index != 2 {
		t.Errorf("uploads = %+v, want indices 1 then 2", store.uploads)
	}
	if len(ftf.CompletedParts) != 3 {
		t.Errorf("CompletedParts = %v, want 3 entries", ftf.CompletedParts)
	}
}
