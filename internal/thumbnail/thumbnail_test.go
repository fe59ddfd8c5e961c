package thumbnail

import (
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

func TestFromRasterFitsWithinBox(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "wide.png")
	dst := filepath.Join(dir, "wide_thumb.png")

	writePNG(t, src, 1024, 256)

	g := New(256)
	if err := g.FromRaster(src, dst); err != nil {
		t.Fatalf("FromRaster() error: %v", err)
	}

	w, h := decodeSize(t, dst)
	if w != 256 || h != 64 {
		t.Errorf("thumbnail = %dx%d, want 256x64 (aspect preserved)", w, h)
	}
}

func TestFromRasterDoesNotUpscale(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "small.png")
	dst := filepath.Join(dir, "small_thumb.png")

	writePNG(t, src, 32, 32)

	g := New(256)
	if err := g.FromRaster(src, dst); err != nil {
		t.Fatalf("FromRaster() error: %v", err)
	}

	w, h := decodeSize(t, dst)
	if w > 256 || h > 256 {
		t.Errorf("thumbnail = %dx%d, exceeds box", w, h)
	}
}

func TestFromRasterBadInput(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "junk.png")
	if err := os.WriteFile(src, []byte("not an image"), 0o644); err != nil {
		t.Fatal(err)
	}

	g := New(256)
	if err := g.FromRaster(src, filepath.Join(dir, "out.png")); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestPlaceholder(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "ph.png")

	g := New(256)
	if err := g.Placeholder("AI/EPS", dst); err != nil {
		t.Fatalf("Placeholder() error: %v", err)
	}

	w, h := decodeSize(t, dst)
	if w != 256 || h != 256 {
		t.Errorf("placeholder = %dx%d, want 256x256", w, h)
	}
}

func writePNG(t *testing.T, p string, w, h int) {
	t.Helper()
	f, err := os.Create(p)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, image.NewRGBA(image.Rect(0, 0, w, h))); err != nil {
		t.Fatal(err)
	}
}

func decodeSize(t *testing.T, p string) (int, int) {
	t.Helper()
	f, err := os.Open(p)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		t.Fatal(err)
	}
	return cfg.Width, cfg.Height
}
