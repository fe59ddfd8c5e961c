// Package storage defines the uniform contract over the per-shop file
// storage backends (local filesystem, S3-compatible object storage,
// CDN-backed object storage).
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"
)

// Backend moves objects between remote storage and local paths.
// Fetch writes the object at key to dest; Store uploads the file at src
// under key. Implementations never delete or overwrite an original key.
type Backend interface {
	Fetch(ctx context.Context, key, dest string) error
	Store(ctx context.Context, key, src, contentType string) error
}

// ErrNotFound reports that the requested key does not exist on the backend.
var ErrNotFound = errors.New("storage: object not found")

// TransportError wraps a network or backend failure. It is retryable.
type TransportError struct {
	Op  string
	Key string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("storage: %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ValidationError reports a downloaded object smaller than the minimum
// plausible size. Treated as a truncated transfer, so it is retryable.
type ValidationError struct {
	Key  string
	Size int64
	Min  int64
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("storage: downloaded %q is %d bytes, below minimum %d", e.Key, e.Size, e.Min)
}

// Retryable reports whether err is a transient storage failure worth
// another attempt. Not-found is final; everything transport-shaped or
// truncation-shaped is not.
func Retryable(err error) bool {
	if err == nil || errors.Is(err, ErrNotFound) {
		return false
	}
	var te *TransportError
	var ve *ValidationError
	return errors.As(err, &te) || errors.As(err, &ve)
}

// VerifyDownload checks that the file at path is at least min bytes.
func VerifyDownload(p, key string, min int64) error {
	info, err := os.Stat(p)
	if err != nil {
		return &TransportError{Op: "verify", Key: key, Err: err}
	}
	if info.Size() < min {
		return &ValidationError{Key: key, Size: info.Size(), Min: min}
	}
	return nil
}

// DerivedKey builds the storage key for an artifact derived from the
// original at key: the extension is replaced by suffix, keeping any
// provider-specific prefix. "designs/a/card.pdf" + "_thumb.png" yields
// "designs/a/card_thumb.png".
func DerivedKey(key, suffix string) string {
	ext := path.Ext(key)
	return strings.TrimSuffix(key, ext) + suffix
}
