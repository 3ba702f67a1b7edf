// Package recovery re-drives a file's multipart upload from checkpointed
// state after a restart, preserving exact part indices so the resumed
// upload is byte-identical to what would have been produced had the
// original run never stopped.
package recovery

import (
	"context"
	"fmt"

	"github.com/gurre/filesystemsink/multipart"
	"github.com/gurre/filesystemsink/objectstore"
)

// Store is the subset of objectstore.Port recovery needs to re-drive an
// upload: starting a multipart upload (if one was never created) and
// uploading parts at specific indices.
type Store interface {
	StartMultipart(ctx context.Context, path string) (string, error)
	AddMultipart(ctx context.Context, path, multipartID string, part objectstore.PartSpec) (objectstore.UploadedPart, error)
}

// FromCheckpoint re-drives the file named by path from its checkpointed
// data, re-uploading whatever was buffered but unconfirmed and leaving
// already-finished parts untouched. It returns the FileToFinish ready for
// CloseMultipart, or nil if the file was never written to (Empty).
//
// Ported from mod.rs's from_checkpoint: each FileCheckpointData variant
// determines which parts still need uploading versus which already carry a
// finalized content id.
func FromCheckpoint(ctx context.Context, store Store, path string, data multipart.CheckpointData) (*multipart.FileToFinish, error) {
	var (
		multipartID string
		completed   []string
	)

	switch data.Kind {
	case multipart.Empty:
		return nil, nil

	case multipart.MultiPartNotCreated:
		id, err := store.StartMultipart(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("recovery: start multipart for %s: %w", path, err)
		}
		multipartID = id

		for index, partData := range data.PartsToAdd {
			uploaded, err := store.AddMultipart(ctx, path, multipartID, objectstore.PartSpec{Index: index, Data: partData})
			if err != nil {
				return nil, fmt.Errorf("recovery: upload part %d for %s: %w", index, path, err)
			}
			completed = append(completed, uploaded.ContentID)
		}
		if data.TrailingBytesPresent {
			uploaded, err := store.AddMultipart(ctx, path, multipartID, objectstore.PartSpec{Index: len(completed), Data: data.TrailingBytes})
			if err != nil {
				return nil, fmt.Errorf("recovery: upload trailing bytes for %s: %w", path, err)
			}
			completed = append(completed, uploaded.ContentID)
		}

	case multipart.MultiPartInFlight:
		multipartID = data.MultipartID
		for _, part := range data.InFlightParts {
			if part.Finished {
				completed = append(completed, part.ContentID)
				continue
			}
			uploaded, err := store.AddMultipart(ctx, path, multipartID, objectstore.PartSpec{Index: part.Part, Data: part.Data})
			if err != nil {
				return nil, fmt.Errorf("recovery: upload in-flight part %d for %s: %w", part.Part, path, err)
			}
			completed = append(completed, uploaded.ContentID)
		}
		if data.TrailingBytesPresent {
			uploaded, err := store.AddMultipart(ctx, path, multipartID, objectstore.PartSpec{Index: len(completed), Data: data.TrailingBytes})
			if err != nil {
				return nil, fmt.Errorf("recovery: upload trailing bytes for %s: %w", path, err)
			}
			completed = append(completed, uploaded.ContentID)
		}

	case multipart.MultiPartWriterClosed:
		multipartID = data.MultipartID
		for index, part := range data.InFlightParts {
			if part.Finished {
				completed = append(completed, part.ContentID)
				continue
			}
			uploaded, err := store.AddMultipart(ctx, path, multipartID, objectstore.PartSpec{Index: index, Data: part.Data})
			if err != nil {
				return nil, fmt.Errorf("recovery: upload unfinished part %d for %s: %w", index, path, err)
			}
			completed = append(completed, uploaded.ContentID)
		}

	case multipart.MultiPartWriterUploadCompleted:
		multipartID = data.MultipartID
		completed = append(completed, data.CompletedParts...)

	default:
		return nil, fmt.Errorf("recovery: unrecognized checkpoint kind %v for %s", data.Kind, path)
	}

	return &multipart.FileToFinish{
		Filename:       path,
		MultipartID:    multipartID,
		CompletedParts: completed,
	}, nil
}
