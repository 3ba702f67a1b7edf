package objectstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/google/uuid"
)

// LocalStore implements Port against the local filesystem, rooted at dir.
// Parts are buffered as individual files under a per-upload staging
// directory and assembled into the final file with a single linear copy
// followed by an atomic rename, mirroring how a true object store commits
// a multipart upload as one atomic operation.
type LocalStore struct {
	dir string
}

var _ Port = (*LocalStore)(nil)

// NewLocalStore creates a local-filesystem object store rooted at dir,
// creating it if necessary.
func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("objectstore: create local store root %s: %w", dir, err)
	}
	return &LocalStore{dir: dir}, nil
}

func (s *LocalStore) finalPath(path string) string {
	return filepath.Join(s.dir, path)
}

func (s *LocalStore) stagingDir(multipartID string) string {
	return filepath.Join(s.dir, ".multipart-"+multipartID)
}

func (s *LocalStore) partPath(multipartID string, index int) string {
	return filepath.Join(s.stagingDir(multipartID), fmt.Sprintf("part-%010d", index))
}

// StartMultipart creates a staging directory for the upload and returns a
// synthetic multipart id; the local filesystem has no native multipart
// concept.
func (s *LocalStore) StartMultipart(ctx context.Context, path string) (string, error) {
	id := uuid.New().String()
	if err := os.MkdirAll(s.stagingDir(id), 0o755); err != nil {
		return "", fmt.Errorf("objectstore: create staging dir for %s: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(s.finalPath(path)), 0o755); err != nil {
		return "", fmt.Errorf("objectstore: create parent dir for %s: %w", path, err)
	}
	return id, nil
}

// AddMultipart writes part.Data to its own staging file, named so
// CloseMultipart can read them back in index order.
func (s *LocalStore) AddMultipart(ctx context.Context, path, multipartID string, part PartSpec) (UploadedPart, error) {
	partPath := s.partPath(multipartID, part.Index)
	if err := os.WriteFile(partPath, part.Data, 0o644); err != nil {
		return UploadedPart{}, fmt.Errorf("objectstore: write part %d for %s: %w", part.Index, path, err)
	}
	return UploadedPart{Index: part.Index, ContentID: strconv.Itoa(part.Index)}, nil
}

// CloseMultipart concatenates the staged parts named by orderedContentIDs
// (each content id is its part index), sorted by part index, into a temp
// file in the destination directory and atomically renames it into place,
// then removes the staging directory.
func (s *LocalStore) CloseMultipart(ctx context.Context, path, multipartID string, orderedContentIDs []string) error {
	if len(orderedContentIDs) == 0 {
		return fmt.Errorf("objectstore: cannot complete local multipart upload for %s with zero parts", path)
	}

	dest := s.finalPath(path)
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".tmp-"+filepath.Base(dest)+"-*")
	if err != nil {
		return fmt.Errorf("objectstore: create assembly temp file for %s: %w", path, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	indices := make([]int, len(orderedContentIDs))
	for i, contentID := range orderedContentIDs {
		idx, err := strconv.Atoi(contentID)
		if err != nil {
			tmp.Close()
			return fmt.Errorf("objectstore: content id %q is not a part index: %w", contentID, err)
		}
		indices[i] = idx
	}
	sort.Ints(indices)

	for _, idx := range indices {
		data, err := os.ReadFile(s.partPath(multipartID, idx))
		if err != nil {
			tmp.Close()
			return fmt.Errorf("objectstore: read staged part %d for %s: %w", idx, path, err)
		}
		if _, err := tmp.Write(data); err != nil {
			tmp.Close()
			return fmt.Errorf("objectstore: assemble part %d for %s: %w", idx, path, err)
		}
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("objectstore: finalize assembly for %s: %w", path, err)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		return fmt.Errorf("objectstore: rename assembled file into place for %s: %w", path, err)
	}

	_ = os.RemoveAll(s.stagingDir(multipartID))
	return nil
}

// DeleteIfPresent removes path, absorbing a not-found condition.
func (s *LocalStore) DeleteIfPresent(ctx context.Context, path string) error {
	err := os.Remove(s.finalPath(path))
	if err == nil || os.IsNotExist(err) {
		return nil
	}
	return fmt.Errorf("objectstore: delete %s: %w", path, err)
}

// CanonicalURL reports the file:// form a caller can use to reference path.
func (s *LocalStore) CanonicalURL(path string) string {
	return "file://" + s.finalPath(path)
}
