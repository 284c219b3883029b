package blob

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"fieldaudit/internal/audit"
)

// FileSystemStore is a filesystem-backed BlobStore. Object keys map directly
// onto paths under the root, so the owners/{ownerID}/{recordID}.jpg layout is
// visible on disk. Durable references are file:// URLs.
type FileSystemStore struct {
	name string
	root string // absolute
}

var _ audit.BlobStore = (*FileSystemStore)(nil)

// NewFileSystemStore creates a store rooted at the given path, creating the
// root directory if needed.
func NewFileSystemStore(name, root string) (*FileSystemStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving blob root: %w", err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("creating blob root: %w", err)
	}
	return &FileSystemStore{name: name, root: abs}, nil
}

func (s *FileSystemStore) keyPath(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(key))
}

func (s *FileSystemStore) keyURL(key string) string {
	return "file://" + filepath.ToSlash(s.keyPath(key))
}

// Put writes size bytes from r under key using an atomic temp-file-and-rename
// write, and returns the object's file:// URL.
func (s *FileSystemStore) Put(ctx context.Context, key string, r io.Reader, size int64) (string, error) {
	destPath := s.keyPath(key)
	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return "", fmt.Errorf("creating object directory: %w", err)
	}

	tmpFile, err := os.CreateTemp(filepath.Dir(destPath), ".tmp-*")
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmpFile, r)
	if err != nil {
		tmpFile.Close()
		return "", fmt.Errorf("writing object data: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return "", fmt.Errorf("closing temp file: %w", err)
	}
	if written != size {
		return "", fmt.Errorf("size mismatch: expected %d bytes, got %d", size, written)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return "", fmt.Errorf("renaming temp file: %w", err)
	}

	success = true
	return s.keyURL(key), nil
}

// Get retrieves the object under key and writes it to w.
func (s *FileSystemStore) Get(ctx context.Context, key string, w io.Writer) error {
	f, err := os.Open(s.keyPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("object %s: %w", key, audit.ErrBlobNotExist)
		}
		return fmt.Errorf("opening object %s: %w", key, err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("reading object %s: %w", key, err)
	}
	return nil
}

// Stat reads object metadata.
func (s *FileSystemStore) Stat(ctx context.Context, key string) (audit.BlobInfo, error) {
	info, err := os.Stat(s.keyPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return audit.BlobInfo{}, fmt.Errorf("object %s: %w", key, audit.ErrBlobNotExist)
		}
		return audit.BlobInfo{}, fmt.Errorf("stat object %s: %w", key, err)
	}
	return audit.BlobInfo{Key: key, Size: info.Size()}, nil
}

// List walks every object under prefix. A missing prefix directory yields an
// empty result.
func (s *FileSystemStore) List(ctx context.Context, prefix string) ([]audit.BlobInfo, error) {
	dir := s.keyPath(prefix)
	var infos []audit.BlobInfo

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		infos = append(infos, audit.BlobInfo{Key: filepath.ToSlash(rel), Size: fi.Size()})
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("listing prefix %s: %w", prefix, err)
	}
	return infos, nil
}

// Delete removes the object under key.
func (s *FileSystemStore) Delete(ctx context.Context, key string) error {
	if err := os.Remove(s.keyPath(key)); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("object %s: %w", key, audit.ErrBlobNotExist)
		}
		return fmt.Errorf("deleting object %s: %w", key, err)
	}
	return nil
}

// KeyFromURL inverts keyURL for file:// references under this store's root.
func (s *FileSystemStore) KeyFromURL(url string) (string, bool) {
	path, ok := strings.CutPrefix(url, "file://")
	if !ok {
		return "", false
	}
	rel, err := filepath.Rel(s.root, filepath.FromSlash(path))
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

// ValidateSetup verifies the root directory is accessible and writable.
func (s *FileSystemStore) ValidateSetup() error {
	info, err := os.Stat(s.root)
	if err != nil {
		return fmt.Errorf("blob root not accessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("blob root is not a directory: %s", s.root)
	}
	return nil
}
