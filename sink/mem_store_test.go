package sink

import (
	"context"
	"fmt"
	"sync"

	"github.com/gurre/filesystemsink/objectstore"
)

// memStore is a minimal in-memory objectstore.Port used to exercise the
// actor and facade without touching a real backend.
type memStore struct {
	mu            sync.Mutex
	seq           int
	partsByUpload map[string]map[int][]byte
	finals        map[string][]byte
	closedOrder   map[string][]string
}

func newMemStore() *memStore {
	return &memStore{
		partsByUpload: make(map[string]map[int][]byte),
		finals:        make(map[string][]byte),
		closedOrder:   make(map[string][]string),
	}
}

var _ objectstore.Port = (*memStore)(nil)

func (s *memStore) StartMultipart(ctx context.Context, path string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	id := fmt.Sprintf("upload-%d", s.seq)
	s.partsByUpload[id] = make(map[int][]byte)
	return id, nil
}

func (s *memStore) AddMultipart(ctx context.Context, path, multipartID string, part objectstore.PartSpec) (objectstore.UploadedPart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	parts, ok := s.partsByUpload[multipartID]
	if !ok {
		return objectstore.UploadedPart{}, fmt.Errorf("memStore: unknown multipart id %s", multipartID)
	}
	data := append([]byte(nil), part.Data...)
	parts[part.Index] = data
	return objectstore.UploadedPart{Index: part.Index, ContentID: fmt.Sprintf("%s#%d", multipartID, part.Index)}, nil
}

func (s *memStore) CloseMultipart(ctx context.Context, path, multipartID string, orderedContentIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	parts := s.partsByUpload[multipartID]
	var buf []byte
	for _, cid := range orderedContentIDs {
		// content ids are "<multipartID>#<index>"; parse the index suffix.
		var index int
		for i := len(cid) - 1; i >= 0; i-- {
			if cid[i] == '#' {
				fmt.Sscanf(cid[i+1:], "%d", &index)
				break
			}
		}
		buf = append(buf, parts[index]...)
	}
	s.finals[path] = buf
	s.closedOrder[path] = append([]string(nil), orderedContentIDs...)
	return nil
}

func (s *memStore) DeleteIfPresent(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.finals, path)
	return nil
}

func (s *memStore) CanonicalURL(path string) string {
	return "mem://" + path
}

func (s *memStore) finalContents(path string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.finals[path]
	return data, ok
}
