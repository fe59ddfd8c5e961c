// Package cdn implements the storage backend over a CDN-fronted object
// store addressed by plain HTTP with a bearer token.
package cdn

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/printforge/preflight/internal/storage"
)

// Storage talks to the CDN origin API.
type Storage struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewStorage creates the backend for the given origin base URL.
func NewStorage(baseURL, token string, timeout time.Duration) *Storage {
	return &Storage{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

func (s *Storage) objectURL(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return s.baseURL + "/" + strings.Join(parts, "/")
}

// Fetch downloads the object at key into dest.
func (s *Storage) Fetch(ctx context.Context, key, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.objectURL(key), nil)
	if err != nil {
		return &storage.TransportError{Op: "get", Key: key, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+s.token)

	resp, err := s.client.Do(req)
	if err != nil {
		return &storage.TransportError{Op: "get", Key: key, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return storage.ErrNotFound
	case resp.StatusCode != http.StatusOK:
		return &storage.TransportError{Op: "get", Key: key, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	out, err := os.Create(dest)
	if err != nil {
		return &storage.TransportError{Op: "create", Key: key, Err: err}
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		return &storage.TransportError{Op: "copy", Key: key, Err: err}
	}
	return nil
}

// Store uploads the file at src under key.
func (s *Storage) Store(ctx context.Context, key, src, contentType string) error {
	f, err := os.Open(src)
	if err != nil {
		return &storage.TransportError{Op: "open", Key: key, Err: err}
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return &storage.TransportError{Op: "stat", Key: key, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, s.objectURL(key), f)
	if err != nil {
		return &storage.TransportError{Op: "put", Key: key, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Content-Type", contentType)
	req.ContentLength = info.Size()

	resp, err := s.client.Do(req)
	if err != nil {
		return &storage.TransportError{Op: "put", Key: key, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusNoContent {
		return &storage.TransportError{Op: "put", Key: key, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}
	return nil
}
