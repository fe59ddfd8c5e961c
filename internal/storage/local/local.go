// Package local implements the storage backend over a directory on the
// worker's filesystem.
package local

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/text/unicode/norm"

	"github.com/printforge/preflight/internal/storage"
)

// Storage serves objects from baseDir. Keys are slash-separated paths
// relative to it.
type Storage struct {
	baseDir string
}

// NewStorage creates the backend rooted at baseDir, creating it if needed.
func NewStorage(baseDir string) (*Storage, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, err
	}
	return &Storage{baseDir: baseDir}, nil
}

// Fetch copies the object at key into dest. Filenames written by other
// systems may differ from the recorded key only in Unicode normalization
// form (macOS writes NFD), so the lookup compares canonical composed
// forms before giving up with not-found.
func (s *Storage) Fetch(ctx context.Context, key, dest string) error {
	src, err := s.resolve(key)
	if err != nil {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return &storage.TransportError{Op: "open", Key: key, Err: err}
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return &storage.TransportError{Op: "create", Key: key, Err: err}
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return &storage.TransportError{Op: "copy", Key: key, Err: err}
	}
	return nil
}

// Store writes the file at src under key. The content type is recorded
// by object-store backends only; local storage ignores it.
func (s *Storage) Store(ctx context.Context, key, src, contentType string) error {
	dst := filepath.Join(s.baseDir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return &storage.TransportError{Op: "mkdir", Key: key, Err: err}
	}

	in, err := os.Open(src)
	if err != nil {
		return &storage.TransportError{Op: "open", Key: key, Err: err}
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return &storage.TransportError{Op: "create", Key: key, Err: err}
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return &storage.TransportError{Op: "copy", Key: key, Err: err}
	}
	return nil
}

// resolve maps key to an existing path, tolerating NFC/NFD mismatches
// between the recorded key and the name on disk.
func (s *Storage) resolve(key string) (string, error) {
	direct := filepath.Join(s.baseDir, filepath.FromSlash(key))
	if _, err := os.Stat(direct); err == nil {
		return direct, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return "", &storage.TransportError{Op: "stat", Key: key, Err: err}
	}

	dir := filepath.Dir(direct)
	want := norm.NFC.String(filepath.Base(direct))

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", storage.ErrNotFound
		}
		return "", &storage.TransportError{Op: "readdir", Key: key, Err: err}
	}
	for _, e := range entries {
		if norm.NFC.String(e.Name()) == want {
			return filepath.Join(dir, e.Name()), nil
		}
	}
	return "", storage.ErrNotFound
}
