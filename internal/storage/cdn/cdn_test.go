package cdn

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/printforge/preflight/internal/storage"
)

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.URL.Path {
		case "/designs/card.png":
			w.Write([]byte("bytes"))
		case "/designs/missing.png":
			w.WriteHeader(http.StatusNotFound)
		default:
			w.WriteHeader(http.StatusBadGateway)
		}
	}))
	defer srv.Close()

	s := NewStorage(srv.URL, "tok", 5*time.Second)

	dest := filepath.Join(t.TempDir(), "out")
	if err := s.Fetch(context.Background(), "designs/card.png", dest); err != nil {
		t.Fatalf("Fetch() error: %v", err)
	}
	got, _ := os.ReadFile(dest)
	if string(got) != "bytes" {
		t.Errorf("fetched %q", got)
	}

	err := s.Fetch(context.Background(), "designs/missing.png", dest)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("missing object err = %v, want ErrNotFound", err)
	}

	err = s.Fetch(context.Background(), "designs/broken.png", dest)
	var te *storage.TransportError
	if !errors.As(err, &te) {
		t.Errorf("bad gateway err = %v, want TransportError", err)
	}
}

func TestStore(t *testing.T) {
	var gotPath, gotType string
	var gotBody int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		gotPath = r.URL.Path
		gotType = r.Header.Get("Content-Type")
		gotBody = r.ContentLength
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	src := filepath.Join(t.TempDir(), "thumb.png")
	if err := os.WriteFile(src, []byte("pngdata"), 0o644); err != nil {
		t.Fatal(err)
	}

	s := NewStorage(srv.URL, "tok", 5*time.Second)
	if err := s.Store(context.Background(), "designs/card_thumb.png", src, "image/png"); err != nil {
		t.Fatalf("Store() error: %v", err)
	}

	if gotPath != "/designs/card_thumb.png" {
		t.Errorf("path = %q", gotPath)
	}
	if gotType != "image/png" {
		t.Errorf("content type = %q", gotType)
	}
	if gotBody != int64(len("pngdata")) {
		t.Errorf("content length = %d", gotBody)
	}
}

// Key segments with spaces or unicode must be escaped per path segment,
// keeping the slashes intact.
func TestObjectURLEscaping(t *testing.T) {
	s := NewStorage("https://cdn.example.com/origin", "tok", time.Second)
	got := s.objectURL("designs/shop 1/café.png")
	want := "https://cdn.example.com/origin/designs/shop%201/caf%C3%A9.png"
	if got != want {
		t.Errorf("objectURL = %q, want %q", got, want)
	}
}
