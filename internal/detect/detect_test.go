package detect

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDetect(t *testing.T) {
	tests := []struct {
		name string
		head []byte
		want string
	}{
		{"png", []byte("\x89PNG\r\n\x1a\n....IHDR"), TypePNG},
		{"jpeg", []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F'}, TypeJPEG},
		{"gif87a", []byte("GIF87a...."), TypeGIF},
		{"gif89a", []byte("GIF89a...."), TypeGIF},
		{"webp", []byte("RIFF\x10\x00\x00\x00WEBPVP8 "), TypeWebP},
		{"bmp", []byte("BM\x36\x00\x00\x00"), TypeBMP},
		{"tiff little endian", []byte("II*\x00\x08\x00\x00\x00"), TypeTIFF},
		{"tiff big endian", []byte("MM\x00*\x00\x00\x00\x08"), TypeTIFF},
		{"pdf", []byte("%PDF-1.7\n"), TypePDF},
		{"postscript", []byte("%!PS-Adobe-3.0 EPSF-3.0\n"), TypePostScript},
		{"psd", []byte("8BPS\x00\x01"), TypePSD},
		{"empty", nil, TypeUnknown},
		{"plain text", []byte("hello world"), TypeUnknown},
		{"riff without webp", []byte("RIFF\x10\x00\x00\x00WAVEfmt "), TypeUnknown},
		{"truncated png", []byte("\x89PN"), TypeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Detect(tt.head); got != tt.want {
				t.Errorf("Detect() = %q, want %q", got, tt.want)
			}
		})
	}
}

// A renamed extension must not change the outcome: detection looks at
// bytes only.
func TestDetectFileIgnoresExtension(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "flyer.png")
	if err := os.WriteFile(p, []byte("%PDF-1.4\n%stub"), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := DetectFile(p)
	if err != nil {
		t.Fatalf("DetectFile() error: %v", err)
	}
	if got != TypePDF {
		t.Errorf("DetectFile() = %q, want %q", got, TypePDF)
	}
}

func TestDetectFileMissing(t *testing.T) {
	got, err := DetectFile(filepath.Join(t.TempDir(), "nope.bin"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if got != TypeUnknown {
		t.Errorf("DetectFile() = %q, want %q", got, TypeUnknown)
	}
}

func TestClassification(t *testing.T) {
	rasters := []string{TypePNG, TypeJPEG, TypeGIF, TypeWebP, TypeBMP}
	for _, tp := range rasters {
		if !IsRaster(tp) {
			t.Errorf("IsRaster(%q) = false, want true", tp)
		}
		if NeedsConversion(tp) {
			t.Errorf("NeedsConversion(%q) = true, want false", tp)
		}
	}

	convertibles := []string{TypePDF, TypePostScript, TypeTIFF, TypePSD}
	for _, tp := range convertibles {
		if IsRaster(tp) {
			t.Errorf("IsRaster(%q) = true, want false", tp)
		}
		if !NeedsConversion(tp) {
			t.Errorf("NeedsConversion(%q) = false, want true", tp)
		}
	}

	if IsRaster(TypeUnknown) || NeedsConversion(TypeUnknown) {
		t.Error("unknown type must be neither raster nor convertible")
	}
}

func TestTag(t *testing.T) {
	if got := Tag(TypePostScript); got != "AI/EPS" {
		t.Errorf("Tag(postscript) = %q", got)
	}
	if got := Tag(TypeUnknown); got != "FILE" {
		t.Errorf("Tag(unknown) = %q", got)
	}
	if got := Tag("application/zip"); got != "FILE" {
		t.Errorf("Tag(zip) = %q", got)
	}
}
