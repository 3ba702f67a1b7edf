// Package objectstore implements the Object-Store Port: the abstract
// multipart-upload capability consumed by the multipart manager and the
// writer actor. It has three concrete backends — S3, GCS, and the local
// filesystem — selected at construction time from a parsed storage URL.
//
// Example:
//
//	store, err := objectstore.Open(ctx, "s3://my-bucket/exports", objectstore.Options{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	id, err := store.StartMultipart(ctx, "00000-000.json")
package objectstore

import "context"

// PartSpec is one numbered byte block handed to AddMultipart. Indices form a
// contiguous prefix of non-negative integers for a given multipart_id.
type PartSpec struct {
	Index int
	Data  []byte
}

// UploadedPart is the store's acknowledgement of a completed AddMultipart
// call. ContentID is opaque to the caller and is echoed back verbatim to
// CloseMultipart in index order.
type UploadedPart struct {
	Index     int
	ContentID string
}

// Port is the four-operation capability every multipart file depends on.
// All four operations return failure on transport error; DeleteIfPresent
// additionally absorbs not-found into success.
type Port interface {
	// StartMultipart initiates a multipart upload at path and returns an
	// opaque multipart id.
	StartMultipart(ctx context.Context, path string) (string, error)

	// AddMultipart uploads one numbered part of an already-initiated
	// multipart upload.
	AddMultipart(ctx context.Context, path, multipartID string, part PartSpec) (UploadedPart, error)

	// CloseMultipart finalizes the multipart upload, supplying content ids
	// in part-index order.
	CloseMultipart(ctx context.Context, path, multipartID string, orderedContentIDs []string) error

	// DeleteIfPresent removes path if it exists; a not-found condition is
	// treated as success.
	DeleteIfPresent(ctx context.Context, path string) error

	// CanonicalURL reports the fully qualified URL a caller can use to
	// reference path in this store, for progress reporting.
	CanonicalURL(path string) string
}

// Aborter is implemented by backends that can cancel an in-progress
// multipart upload outright, freeing the storage it has already consumed.
// Not every backend supports this server-side (GCS's compose-based
// emulation and the local filesystem backend have no open upload to
// cancel), so it's a separate, optional interface rather than part of Port;
// a caller that wants to clean up an orphaned upload type-asserts for it.
type Aborter interface {
	// AbortMultipart cancels the multipart upload identified by
	// multipartID, discarding any parts already uploaded to path.
	AbortMultipart(ctx context.Context, path, multipartID string) error
}
