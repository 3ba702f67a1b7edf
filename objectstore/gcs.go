package objectstore

import (
	"context"
	"fmt"
	"sync"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
)

// gcsComposeBatch is the maximum number of source objects GCS will compose
// into one destination object in a single call.
const gcsComposeBatch = 32

// gcsAPI narrows the GCS client down to the three operations the compose-
// based multipart emulation needs, so composeInBatches and its callers can
// be exercised against a hand-written fake without a live bucket.
type gcsAPI interface {
	writeObject(ctx context.Context, bucket, name string, data []byte) error
	composeObjects(ctx context.Context, bucket, destName string, srcNames []string) error
	deleteObject(ctx context.Context, bucket, name string) error
}

// realGCSClient implements gcsAPI against a live *storage.Client.
type realGCSClient struct {
	client *storage.Client
}

var _ gcsAPI = (*realGCSClient)(nil)

func (c *realGCSClient) writeObject(ctx context.Context, bucket, name string, data []byte) error {
	w := c.client.Bucket(bucket).Object(name).NewWriter(ctx)
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

func (c *realGCSClient) composeObjects(ctx context.Context, bucket, destName string, srcNames []string) error {
	sources := make([]*storage.ObjectHandle, len(srcNames))
	for i, name := range srcNames {
		sources[i] = c.client.Bucket(bucket).Object(name)
	}
	_, err := c.client.Bucket(bucket).Object(destName).ComposerFrom(sources...).Run(ctx)
	return err
}

func (c *realGCSClient) deleteObject(ctx context.Context, bucket, name string) error {
	return c.client.Bucket(bucket).Object(name).Delete(ctx)
}

// gcsUpload tracks one in-progress composite upload: GCS has no native
// multipart-upload primitive, so each part is written as its own temporary
// object and the final object is assembled by composing them in order.
type gcsUpload struct {
	bucket      string
	finalObject string
}

// GCSStore implements Port against a Google Cloud Storage bucket using
// compose-based multipart emulation.
type GCSStore struct {
	client gcsAPI
	bucket string
	prefix string

	mu      sync.Mutex
	uploads map[string]*gcsUpload
}

var _ Port = (*GCSStore)(nil)

// NewGCSStore creates a GCS-backed object store rooted at bucket/prefix.
func NewGCSStore(client *storage.Client, bucket, prefix string) *GCSStore {
	return &GCSStore{
		client:  &realGCSClient{client: client},
		bucket:  bucket,
		prefix:  prefix,
		uploads: make(map[string]*gcsUpload),
	}
}

func (s *GCSStore) fullKey(path string) string {
	if s.prefix == "" {
		return path
	}
	return s.prefix + "/" + path
}

// StartMultipart registers a new composite upload and returns a synthetic
// upload id; GCS has no server-side concept of a multipart session.
func (s *GCSStore) StartMultipart(ctx context.Context, path string) (string, error) {
	id := uuid.New().String()
	s.mu.Lock()
	s.uploads[id] = &gcsUpload{bucket: s.bucket, finalObject: s.fullKey(path)}
	s.mu.Unlock()
	return id, nil
}

// AddMultipart writes part.Data as its own temporary object, named so that
// CloseMultipart can compose the parts back together in index order.
func (s *GCSStore) AddMultipart(ctx context.Context, path, multipartID string, part PartSpec) (UploadedPart, error) {
	s.mu.Lock()
	upload, ok := s.uploads[multipartID]
	s.mu.Unlock()
	if !ok {
		return UploadedPart{}, fmt.Errorf("objectstore: unknown gcs multipart id %q", multipartID)
	}

	partObjectName := fmt.Sprintf("%s.part%05d", upload.finalObject, part.Index)
	if err := s.client.writeObject(ctx, upload.bucket, partObjectName, part.Data); err != nil {
		return UploadedPart{}, fmt.Errorf("objectstore: write gcs part %d for %s: %w", part.Index, path, err)
	}

	return UploadedPart{Index: part.Index, ContentID: partObjectName}, nil
}

// CloseMultipart composes all part objects into the final object, in
// batches of gcsComposeBatch, then deletes the temporary part objects.
// orderedContentIDs must already be in part-index order; the caller (the
// multipart manager) is responsible for that ordering.
func (s *GCSStore) CloseMultipart(ctx context.Context, path, multipartID string, orderedContentIDs []string) error {
	s.mu.Lock()
	upload, ok := s.uploads[multipartID]
	delete(s.uploads, multipartID)
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("objectstore: unknown gcs multipart id %q", multipartID)
	}
	if len(orderedContentIDs) == 0 {
		return fmt.Errorf("objectstore: cannot complete gcs multipart upload for %s with zero parts", path)
	}

	if err := s.composeInBatches(ctx, upload.bucket, upload.finalObject, orderedContentIDs); err != nil {
		return fmt.Errorf("objectstore: compose gcs parts for %s: %w", path, err)
	}

	for _, contentID := range orderedContentIDs {
		_ = s.client.deleteObject(ctx, upload.bucket, contentID)
	}
	return nil
}

// composeInBatches composes sources into an object named finalName, folding
// sources down through intermediate objects when there are more than
// gcsComposeBatch of them — GCS rejects a compose call with more than 32
// components.
func (s *GCSStore) composeInBatches(ctx context.Context, bucket, finalName string, sources []string) error {
	if len(sources) <= gcsComposeBatch {
		return s.client.composeObjects(ctx, bucket, finalName, sources)
	}

	var tempObjects []string
	for i := 0; i < len(sources); i += gcsComposeBatch {
		end := i + gcsComposeBatch
		if end > len(sources) {
			end = len(sources)
		}
		tempName := fmt.Sprintf("%s.compose-%d-%s", finalName, i/gcsComposeBatch, uuid.New().String())
		if err := s.client.composeObjects(ctx, bucket, tempName, sources[i:end]); err != nil {
			for _, t := range tempObjects {
				_ = s.client.deleteObject(ctx, bucket, t)
			}
			return fmt.Errorf("compose batch %d: %w", i/gcsComposeBatch, err)
		}
		tempObjects = append(tempObjects, tempName)
	}

	if err := s.client.composeObjects(ctx, bucket, finalName, tempObjects); err != nil {
		return fmt.Errorf("compose final object: %w", err)
	}
	for _, t := range tempObjects {
		_ = s.client.deleteObject(ctx, bucket, t)
	}
	return nil
}

// DeleteIfPresent removes path, absorbing a not-found response.
func (s *GCSStore) DeleteIfPresent(ctx context.Context, path string) error {
	err := s.client.deleteObject(ctx, s.bucket, s.fullKey(path))
	if err == nil || err == storage.ErrObjectNotExist {
		return nil
	}
	return fmt.Errorf("objectstore: delete %s: %w", path, err)
}

// CanonicalURL reports the https form a caller can use to reference path.
func (s *GCSStore) CanonicalURL(path string) string {
	return fmt.Sprintf("https://%s.storage.googleapis.com/%s", s.bucket, s.fullKey(path))
}
