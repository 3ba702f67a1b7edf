// Package checkpoint persists the state a subtask needs to resume across
// process restarts: the in-progress recovery data returned by
// sink.Sink.Checkpoint, plus the files that were awaiting a final commit
// when the process stopped.
package checkpoint

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	json "github.com/goccy/go-json"
	"github.com/gurre/filesystemsink/awsclient"
	"github.com/gurre/filesystemsink/multipart"
)

// Snapshot bundles everything a subtask needs to resume: the recovery data
// for files still open, plus any files whose commit hadn't been
// acknowledged before the process stopped.
type Snapshot[T any] struct {
	Recovery  multipart.DataRecovery[T]         `json:"recovery"`
	PreCommit map[string]multipart.FileToFinish `json:"preCommit"`
}

// Store persists and restores a Snapshot between subtask restarts.
//
// Example:
//
//	store, err := checkpoint.NewFileStore[json.RawMessage]("file:///var/lib/sink/checkpoint.json")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	snap, found, err := store.Load(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
type Store[T any] interface {
	Load(ctx context.Context) (Snapshot[T], bool, error)
	Save(ctx context.Context, snap Snapshot[T]) error
}

// S3Store implements Store using AWS S3.
type S3Store[T any] struct {
	client awsclient.S3Client
	bucket string
	key    string
}

var _ Store[struct{}] = (*S3Store[struct{}])(nil)

// NewS3Store creates a new S3Store from an s3:// URI.
func NewS3Store[T any](client awsclient.S3Client, uri string) (*S3Store[T], error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: invalid s3 uri %q: %w", uri, err)
	}
	if u.Scheme != "s3" {
		return nil, fmt.Errorf("checkpoint: invalid s3 uri scheme: %s", u.Scheme)
	}
	return &S3Store[T]{client: client, bucket: u.Host, key: strings.TrimPrefix(u.Path, "/")}, nil
}

// Load fetches and decodes the stored Snapshot. A missing object is not an
// error: it reports found=false so the caller starts with an empty
// recovery state.
func (s *S3Store[T]) Load(ctx context.Context) (Snapshot[T], bool, error) {
	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: &s.bucket, Key: &s.key})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return Snapshot[T]{}, false, nil
		}
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return Snapshot[T]{}, false, nil
		}
		return Snapshot[T]{}, false, fmt.Errorf("checkpoint: get %s/%s: %w", s.bucket, s.key, err)
	}
	defer func() { _ = resp.Body.Close() }()

	var snap Snapshot[T]
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return Snapshot[T]{}, false, fmt.Errorf("checkpoint: decode %s/%s: %w", s.bucket, s.key, err)
	}
	return snap, true, nil
}

// Save encodes and stores the Snapshot.
func (s *S3Store[T]) Save(ctx context.Context, snap Snapshot[T]) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("checkpoint: encode snapshot: %w", err)
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: &s.bucket,
		Key:    &s.key,
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("checkpoint: put %s/%s: %w", s.bucket, s.key, err)
	}
	return nil
}

// FileStore implements Store using the local filesystem.
type FileStore[T any] struct {
	path string
}

var _ Store[struct{}] = (*FileStore[struct{}])(nil)

// NewFileStore creates a new FileStore from a file:// URI. The path must be
// absolute and is cleaned to resolve any "." or ".." components.
func NewFileStore[T any](uri string) (*FileStore[T], error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: invalid file uri %q: %w", uri, err)
	}
	if u.Scheme != "file" {
		return nil, fmt.Errorf("checkpoint: invalid file uri scheme: %s", u.Scheme)
	}

	cleanPath := filepath.Clean(u.Path)
	if !filepath.IsAbs(cleanPath) {
		return nil, fmt.Errorf("checkpoint: path must be absolute: %s", cleanPath)
	}

	if err := os.MkdirAll(filepath.Dir(cleanPath), 0o755); err != nil {
		return nil, fmt.Errorf("checkpoint: create directory: %w", err)
	}
	return &FileStore[T]{path: cleanPath}, nil
}

// Load reads and decodes the stored Snapshot. A missing file is not an
// error: it reports found=false.
func (f *FileStore[T]) Load(ctx context.Context) (Snapshot[T], bool, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Snapshot[T]{}, false, nil
		}
		return Snapshot[T]{}, false, fmt.Errorf("checkpoint: read %s: %w", f.path, err)
	}

	var snap Snapshot[T]
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot[T]{}, false, fmt.Errorf("checkpoint: decode %s: %w", f.path, err)
	}
	return snap, true, nil
}

// Save encodes and writes the Snapshot.
func (f *FileStore[T]) Save(ctx context.Context, snap Snapshot[T]) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("checkpoint: encode snapshot: %w", err)
	}
	if err := os.WriteFile(f.path, data, 0o644); err != nil {
		return fmt.Errorf("checkpoint: write %s: %w", f.path, err)
	}
	return nil
}
