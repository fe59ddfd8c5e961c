package convert

import (
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
	"io"
	"math"
	"os"

	"github.com/disintegration/imaging"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// Probe describes a decoded raster.
type Probe struct {
	Width  int
	Height int
	// DPI is 0 when the file carries no density metadata.
	DPI         int
	HasAlpha    bool
	ColorSpace  string
	PixelFormat string
}

// ProbeFile decodes the raster at path and reports its geometry, density
// and color characteristics.
func ProbeFile(path string) (*Probe, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("probe: open: %w", err)
	}
	cfg, format, err := image.DecodeConfig(f)
	f.Close()
	if err != nil {
		return nil, fmt.Errorf("probe: decode: %w", err)
	}

	p := &Probe{
		Width:       cfg.Width,
		Height:      cfg.Height,
		DPI:         fileDPI(path, format),
		ColorSpace:  colorSpace(cfg.ColorModel),
		PixelFormat: format,
	}

	img, err := imaging.Open(path)
	if err != nil {
		return nil, fmt.Errorf("probe: decode pixels: %w", err)
	}
	p.HasAlpha = hasAlpha(img)

	return p, nil
}

func colorSpace(m color.Model) string {
	switch m {
	case color.CMYKModel:
		return "cmyk"
	case color.GrayModel, color.Gray16Model:
		return "grayscale"
	case color.YCbCrModel, color.NYCbCrAModel:
		return "rgb"
	case nil:
		return ""
	default:
		return "rgb"
	}
}

// hasAlpha scans for any pixel that is not fully opaque. Large images
// are sampled on a grid; a stride of at most 2048 probes per axis keeps
// the scan cheap without missing transparent regions of meaningful size.
func hasAlpha(img image.Image) bool {
	if o, ok := img.(interface{ Opaque() bool }); ok && o.Opaque() {
		return false
	}

	b := img.Bounds()
	stepX := b.Dx()/2048 + 1
	stepY := b.Dy()/2048 + 1
	for y := b.Min.Y; y < b.Max.Y; y += stepY {
		for x := b.Min.X; x < b.Max.X; x += stepX {
			if _, _, _, a := img.At(x, y).RGBA(); a < 0xffff {
				return true
			}
		}
	}
	return false
}

// fileDPI extracts the embedded density. Neither the standard image
// decoders nor imaging surface it, so the PNG pHYs chunk and the JPEG
// JFIF APP0 segment are read directly. Missing or unparsable metadata
// yields 0; the caller decides what an absent density means.
func fileDPI(path, format string) int {
	f, err := os.Open(path)
	if err != nil {
		return 0
	}
	defer f.Close()

	switch format {
	case "png":
		return pngDPI(f)
	case "jpeg":
		return jpegDPI(f)
	}
	return 0
}

const metersPerInch = 0.0254

// pngDPI walks PNG chunks looking for pHYs (pixels per meter).
func pngDPI(r io.ReadSeeker) int {
	if _, err := r.Seek(8, io.SeekStart); err != nil {
		return 0
	}
	var hdr [8]byte
	for {
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			return 0
		}
		length := binary.BigEndian.Uint32(hdr[0:4])
		typ := string(hdr[4:8])

		switch typ {
		case "pHYs":
			var body [9]byte
			if length != 9 {
				return 0
			}
			if _, err := io.ReadFull(r, body[:]); err != nil {
				return 0
			}
			if body[8] != 1 { // unit is not meters
				return 0
			}
			ppm := binary.BigEndian.Uint32(body[0:4])
			return int(math.Round(float64(ppm) * metersPerInch))
		case "IDAT", "IEND":
			// pHYs must precede IDAT; stop searching.
			return 0
		}
		// Skip chunk body plus CRC.
		if _, err := r.Seek(int64(length)+4, io.SeekCurrent); err != nil {
			return 0
		}
	}
}

// jpegDPI reads the density fields of the JFIF APP0 segment.
func jpegDPI(r io.ReadSeeker) int {
	var soi [2]byte
	if _, err := io.ReadFull(r, soi[:]); err != nil || soi[0] != 0xFF || soi[1] != 0xD8 {
		return 0
	}
	var hdr [4]byte
	for {
		if _, err := io.ReadFull(r, hdr[:2]); err != nil {
			return 0
		}
		if hdr[0] != 0xFF {
			return 0
		}
		marker := hdr[1]
		if marker == 0xD9 || marker == 0xDA { // EOI / start of scan
			return 0
		}
		if _, err := io.ReadFull(r, hdr[2:4]); err != nil {
			return 0
		}
		length := int(binary.BigEndian.Uint16(hdr[2:4]))
		if length < 2 {
			return 0
		}

		if marker == 0xE0 && length >= 16 {
			var body [14]byte
			if _, err := io.ReadFull(r, body[:]); err != nil {
				return 0
			}
			if string(body[0:5]) == "JFIF\x00" && body[7] == 1 { // unit 1: dots per inch
				return int(binary.BigEndian.Uint16(body[8:10]))
			}
			if _, err := r.Seek(int64(length-2-14), io.SeekCurrent); err != nil {
				return 0
			}
			continue
		}

		if _, err := r.Seek(int64(length-2), io.SeekCurrent); err != nil {
			return 0
		}
	}
}
