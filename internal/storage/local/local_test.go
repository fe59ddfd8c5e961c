package local

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/text/unicode/norm"

	"github.com/printforge/preflight/internal/storage"
)

func TestFetchAndStore(t *testing.T) {
	base := t.TempDir()
	s, err := NewStorage(base)
	if err != nil {
		t.Fatal(err)
	}

	src := filepath.Join(t.TempDir(), "src.png")
	if err := os.WriteFile(src, []byte("payload"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := s.Store(context.Background(), "designs/shop1/card.png", src, "image/png"); err != nil {
		t.Fatalf("Store() error: %v", err)
	}

	dest := filepath.Join(t.TempDir(), "fetched")
	if err := s.Fetch(context.Background(), "designs/shop1/card.png", dest); err != nil {
		t.Fatalf("Fetch() error: %v", err)
	}
	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "payload" {
		t.Errorf("fetched %q, want %q", got, "payload")
	}
}

func TestFetchMissing(t *testing.T) {
	s, err := NewStorage(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	err = s.Fetch(context.Background(), "designs/nope.png", filepath.Join(t.TempDir(), "out"))
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

// A key recorded in composed form must find a file written in decomposed
// form, as macOS clients produce.
func TestFetchNormalizationMismatch(t *testing.T) {
	base := t.TempDir()
	s, err := NewStorage(base)
	if err != nil {
		t.Fatal(err)
	}

	composed := "café.png"
	decomposed := norm.NFD.String(composed)
	if composed == decomposed {
		t.Fatal("fixture must differ between normalization forms")
	}

	dir := filepath.Join(base, "designs")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, decomposed), []byte("latte"), 0o644); err != nil {
		t.Fatal(err)
	}

	dest := filepath.Join(t.TempDir(), "out")
	if err := s.Fetch(context.Background(), "designs/"+composed, dest); err != nil {
		t.Fatalf("Fetch() error: %v", err)
	}
	got, _ := os.ReadFile(dest)
	if string(got) != "latte" {
		t.Errorf("fetched %q, want %q", got, "latte")
	}
}
