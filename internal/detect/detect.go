// Package detect sniffs the real content type of an uploaded file from
// its leading byte signature. The caller-supplied extension and MIME
// type are never trusted.
package detect

import (
	"bytes"
	"io"
	"os"
)

// Canonical type strings produced by the detector.
const (
	TypePNG        = "image/png"
	TypeJPEG       = "image/jpeg"
	TypeGIF        = "image/gif"
	TypeWebP       = "image/webp"
	TypeBMP        = "image/bmp"
	TypeTIFF       = "image/tiff"
	TypePDF        = "application/pdf"
	TypePostScript = "application/postscript"
	TypePSD        = "image/vnd.adobe.photoshop"
	TypeUnknown    = "application/octet-stream"
)

const sniffLen = 512

// Detect returns the canonical type for the given leading bytes. It is
// deterministic and side-effect-free; anything unrecognized degrades to
// TypeUnknown.
func Detect(head []byte) string {
	switch {
	case bytes.HasPrefix(head, []byte("\x89PNG\r\n\x1a\n")):
		return TypePNG
	case bytes.HasPrefix(head, []byte{0xFF, 0xD8, 0xFF}):
		return TypeJPEG
	case bytes.HasPrefix(head, []byte("GIF87a")) || bytes.HasPrefix(head, []byte("GIF89a")):
		return TypeGIF
	case len(head) >= 12 && bytes.Equal(head[0:4], []byte("RIFF")) && bytes.Equal(head[8:12], []byte("WEBP")):
		return TypeWebP
	case bytes.HasPrefix(head, []byte("BM")):
		return TypeBMP
	case bytes.HasPrefix(head, []byte("II*\x00")) || bytes.HasPrefix(head, []byte("MM\x00*")):
		return TypeTIFF
	case bytes.HasPrefix(head, []byte("%PDF")):
		return TypePDF
	// Covers both .ai and .eps: Illustrator files carry a PostScript
	// (or PDF, matched above) signature.
	case bytes.HasPrefix(head, []byte("%!")):
		return TypePostScript
	case bytes.HasPrefix(head, []byte("8BPS")):
		return TypePSD
	default:
		return TypeUnknown
	}
}

// DetectFile sniffs the file at path. The only error source is file IO.
func DetectFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return TypeUnknown, err
	}
	defer f.Close()

	head := make([]byte, sniffLen)
	n, err := f.Read(head)
	if err != nil && err != io.EOF {
		return TypeUnknown, err
	}
	return Detect(head[:n]), nil
}

// IsRaster reports whether t decodes directly as a flat raster image.
func IsRaster(t string) bool {
	switch t {
	case TypePNG, TypeJPEG, TypeGIF, TypeWebP, TypeBMP:
		return true
	}
	return false
}

// NeedsConversion reports whether t must be rasterized before analysis.
func NeedsConversion(t string) bool {
	switch t {
	case TypePDF, TypePostScript, TypeTIFF, TypePSD:
		return true
	}
	return false
}

// Tag is the short human label for a type, used on placeholder thumbnails.
func Tag(t string) string {
	switch t {
	case TypePNG:
		return "PNG"
	case TypeJPEG:
		return "JPEG"
	case TypeGIF:
		return "GIF"
	case TypeWebP:
		return "WEBP"
	case TypeBMP:
		return "BMP"
	case TypeTIFF:
		return "TIFF"
	case TypePDF:
		return "PDF"
	case TypePostScript:
		return "AI/EPS"
	case TypePSD:
		return "PSD"
	default:
		return "FILE"
	}
}
