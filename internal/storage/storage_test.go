package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestDerivedKey(t *testing.T) {
	tests := []struct {
		key, suffix, want string
	}{
		{"designs/a/card.pdf", "_thumb.png", "designs/a/card_thumb.png"},
		{"designs/a/card.pdf", "_converted.png", "designs/a/card_converted.png"},
		{"card.png", "_thumb.png", "card_thumb.png"},
		{"designs/noext", "_thumb.png", "designs/noext_thumb.png"},
		{"designs/a.b/file.tar.gz", "_thumb.png", "designs/a.b/file.tar_thumb.png"},
	}
	for _, tt := range tests {
		if got := DerivedKey(tt.key, tt.suffix); got != tt.want {
			t.Errorf("DerivedKey(%q, %q) = %q, want %q", tt.key, tt.suffix, got, tt.want)
		}
	}
}

func TestRetryable(t *testing.T) {
	if Retryable(nil) {
		t.Error("nil must not be retryable")
	}
	if Retryable(ErrNotFound) {
		t.Error("not-found must not be retryable")
	}
	if !Retryable(&TransportError{Op: "get", Key: "k", Err: errors.New("timeout")}) {
		t.Error("transport error must be retryable")
	}
	if !Retryable(&ValidationError{Key: "k", Size: 3, Min: 64}) {
		t.Error("truncated download must be retryable")
	}
	if Retryable(errors.New("some other failure")) {
		t.Error("unclassified error must not be retryable")
	}
}

func TestVerifyDownload(t *testing.T) {
	dir := t.TempDir()

	p := filepath.Join(dir, "ok.bin")
	if err := os.WriteFile(p, make([]byte, 100), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := VerifyDownload(p, "k", 64); err != nil {
		t.Errorf("VerifyDownload(100 bytes, min 64) = %v", err)
	}

	short := filepath.Join(dir, "short.bin")
	if err := os.WriteFile(short, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	err := VerifyDownload(short, "k", 64)
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Errorf("VerifyDownload(1 byte, min 64) = %v, want ValidationError", err)
	}

	if err := VerifyDownload(filepath.Join(dir, "missing"), "k", 64); err == nil {
		t.Error("expected error for missing file")
	}
}
