package convert

import (
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/printforge/preflight/internal/detect"
)

func TestSupports(t *testing.T) {
	c := New(150, time.Minute)

	for _, tp := range []string{detect.TypePDF, detect.TypePostScript, detect.TypeTIFF, detect.TypePSD} {
		if !c.Supports(tp) {
			t.Errorf("Supports(%q) = false, want true", tp)
		}
	}
	for _, tp := range []string{detect.TypePNG, detect.TypeJPEG, detect.TypeUnknown} {
		if c.Supports(tp) {
			t.Errorf("Supports(%q) = true, want false", tp)
		}
	}
}

func TestRasterizeUnknownType(t *testing.T) {
	c := New(150, time.Minute)
	err := c.Rasterize(context.Background(), detect.TypeUnknown, "in.bin", "out.png")
	if err == nil {
		t.Fatal("expected error for unconvertible type")
	}
}

func TestValidateRaster(t *testing.T) {
	dir := t.TempDir()

	good := filepath.Join(dir, "good.png")
	writePNG(t, good, image.NewRGBA(image.Rect(0, 0, 4, 4)))
	if err := validateRaster(good); err != nil {
		t.Errorf("validateRaster(valid png) = %v", err)
	}

	empty := filepath.Join(dir, "empty.png")
	if err := os.WriteFile(empty, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := validateRaster(empty); err == nil {
		t.Error("expected error for empty output")
	}

	junk := filepath.Join(dir, "junk.png")
	if err := os.WriteFile(junk, []byte("Error: /undefined in obj"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := validateRaster(junk); err == nil {
		t.Error("expected error for non-PNG output")
	}

	if err := validateRaster(filepath.Join(dir, "missing.png")); err == nil {
		t.Error("expected error for missing output")
	}
}

func TestProbeFileDimensionsAndAlpha(t *testing.T) {
	dir := t.TempDir()

	opaque := filepath.Join(dir, "opaque.png")
	img := image.NewNRGBA(image.Rect(0, 0, 20, 10))
	for i := range img.Pix {
		img.Pix[i] = 0xFF
	}
	writePNG(t, opaque, img)

	p, err := ProbeFile(opaque)
	if err != nil {
		t.Fatalf("ProbeFile() error: %v", err)
	}
	if p.Width != 20 || p.Height != 10 {
		t.Errorf("dimensions = %dx%d, want 20x10", p.Width, p.Height)
	}
	if p.HasAlpha {
		t.Error("opaque image reported as transparent")
	}
	if p.ColorSpace != "rgb" {
		t.Errorf("ColorSpace = %q, want rgb", p.ColorSpace)
	}

	trans := filepath.Join(dir, "trans.png")
	img2 := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	img2.SetNRGBA(3, 3, color.NRGBA{R: 10, G: 20, B: 30, A: 0})
	writePNG(t, trans, img2)

	p2, err := ProbeFile(trans)
	if err != nil {
		t.Fatalf("ProbeFile() error: %v", err)
	}
	if !p2.HasAlpha {
		t.Error("transparent image reported as opaque")
	}
}

func TestProbeFileGrayscaleJPEG(t *testing.T) {
	p := filepath.Join(t.TempDir(), "gray.jpg")
	f, err := os.Create(p)
	if err != nil {
		t.Fatal(err)
	}
	if err := jpeg.Encode(f, image.NewGray(image.Rect(0, 0, 5, 5)), nil); err != nil {
		t.Fatal(err)
	}
	f.Close()

	probe, err := ProbeFile(p)
	if err != nil {
		t.Fatalf("ProbeFile() error: %v", err)
	}
	if probe.ColorSpace != "grayscale" {
		t.Errorf("ColorSpace = %q, want grayscale", probe.ColorSpace)
	}
	if probe.HasAlpha {
		t.Error("jpeg reported as transparent")
	}
}

func TestProbeFileRejectsNonImage(t *testing.T) {
	p := filepath.Join(t.TempDir(), "doc.pdf")
	if err := os.WriteFile(p, []byte("%PDF-1.4"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ProbeFile(p); err == nil {
		t.Fatal("expected decode error for non-image")
	}
}

func TestPNGDPI(t *testing.T) {
	// Encoders in the standard library never write pHYs, so splice the
	// chunk in by hand: 11811 px/m on both axes is 300 DPI.
	p := filepath.Join(t.TempDir(), "300dpi.png")
	writePNGWithPhys(t, p, 11811)

	probe, err := ProbeFile(p)
	if err != nil {
		t.Fatalf("ProbeFile() error: %v", err)
	}
	if probe.DPI != 300 {
		t.Errorf("DPI = %d, want 300", probe.DPI)
	}
}

func TestPNGWithoutDensity(t *testing.T) {
	p := filepath.Join(t.TempDir(), "plain.png")
	writePNG(t, p, image.NewRGBA(image.Rect(0, 0, 2, 2)))

	probe, err := ProbeFile(p)
	if err != nil {
		t.Fatalf("ProbeFile() error: %v", err)
	}
	if probe.DPI != 0 {
		t.Errorf("DPI = %d, want 0 for file without density", probe.DPI)
	}
}

func writePNG(t *testing.T, p string, img image.Image) {
	t.Helper()
	f, err := os.Create(p)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

// writePNGWithPhys encodes a tiny PNG and inserts a pHYs chunk right
// after IHDR.
func writePNGWithPhys(t *testing.T, p string, ppm uint32) {
	t.Helper()

	tmp := filepath.Join(t.TempDir(), "base.png")
	writePNG(t, tmp, image.NewRGBA(image.Rect(0, 0, 2, 2)))
	raw, err := os.ReadFile(tmp)
	if err != nil {
		t.Fatal(err)
	}

	// Signature (8) + IHDR (8 header + 13 data + 4 crc).
	const ihdrEnd = 8 + 8 + 13 + 4
	phys := make([]byte, 0, 21)
	phys = append(phys, 0, 0, 0, 9) // length
	phys = append(phys, 'p', 'H', 'Y', 's')
	phys = append(phys,
		byte(ppm>>24), byte(ppm>>16), byte(ppm>>8), byte(ppm),
		byte(ppm>>24), byte(ppm>>16), byte(ppm>>8), byte(ppm),
		1) // unit: meters
	crc := crc32PNG(phys[4:])
	phys = append(phys, byte(crc>>24), byte(crc>>16), byte(crc>>8), byte(crc))

	out := make([]byte, 0, len(raw)+len(phys))
	out = append(out, raw[:ihdrEnd]...)
	out = append(out, phys...)
	out = append(out, raw[ihdrEnd:]...)
	if err := os.WriteFile(p, out, 0o644); err != nil {
		t.Fatal(err)
	}
}

func crc32PNG(b []byte) uint32 {
	const poly = 0xEDB88320
	crc := ^uint32(0)
	for _, c := range b {
		crc ^= uint32(c)
		for i := 0; i < 8; i++ {
			if crc&1 != 0 {
				crc = crc>>1 ^ poly
			} else {
				crc >>= 1
			}
		}
	}
	return ^crc
}
