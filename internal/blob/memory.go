package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"fieldaudit/internal/audit"
)

// MemoryStore is an in-memory BlobStore, useful for tests and throwaway
// runs. Durable references use the mem://{name}/{key} form. Safe for
// concurrent use.
type MemoryStore struct {
	name string

	mu      sync.RWMutex
	objects map[string][]byte
}

var _ audit.BlobStore = (*MemoryStore)(nil)

func NewMemoryStore(name string) *MemoryStore {
	return &MemoryStore{name: name, objects: make(map[string][]byte)}
}

func (s *MemoryStore) keyURL(key string) string {
	return "mem://" + s.name + "/" + key
}

func (s *MemoryStore) Put(ctx context.Context, key string, r io.Reader, size int64) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("reading object data: %w", err)
	}
	if int64(len(data)) != size {
		return "", fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = data
	return s.keyURL(key), nil
}

func (s *MemoryStore) Get(ctx context.Context, key string, w io.Writer) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.objects[key]
	if !ok {
		return fmt.Errorf("object %s: %w", key, audit.ErrBlobNotExist)
	}
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("writing object data: %w", err)
	}
	return nil
}

func (s *MemoryStore) Stat(ctx context.Context, key string) (audit.BlobInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.objects[key]
	if !ok {
		return audit.BlobInfo{}, fmt.Errorf("object %s: %w", key, audit.ErrBlobNotExist)
	}
	return audit.BlobInfo{Key: key, Size: int64(len(data))}, nil
}

func (s *MemoryStore) List(ctx context.Context, prefix string) ([]audit.BlobInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var infos []audit.BlobInfo
	for key, data := range s.objects {
		if strings.HasPrefix(key, prefix) {
			infos = append(infos, audit.BlobInfo{Key: key, Size: int64(len(data))})
		}
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos, nil
}

func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.objects[key]; !ok {
		return fmt.Errorf("object %s: %w", key, audit.ErrBlobNotExist)
	}
	delete(s.objects, key)
	return nil
}

func (s *MemoryStore) KeyFromURL(url string) (string, bool) {
	return strings.CutPrefix(url, "mem://"+s.name+"/")
}

// ValidateSetup always succeeds for the in-memory store.
func (s *MemoryStore) ValidateSetup() error { return nil }
