// Package thumbnail renders preview thumbnails for processed uploads.
// When no raster is available (the original could not be rasterized) it
// draws a labeled placeholder tile instead, so the storefront always
// has something to show.
package thumbnail

import (
	"fmt"
	"image/color"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
)

// Generator produces square PNG thumbnails of a fixed size.
type Generator struct {
	size int
}

// New returns a generator producing size x size thumbnails.
func New(size int) *Generator {
	return &Generator{size: size}
}

// FromRaster scales the raster at src to fit the thumbnail box,
// preserving aspect ratio, and writes it as PNG to dst.
func (g *Generator) FromRaster(src, dst string) error {
	img, err := imaging.Open(src)
	if err != nil {
		return fmt.Errorf("thumbnail: decode %q: %w", src, err)
	}
	thumb := imaging.Fit(img, g.size, g.size, imaging.Lanczos)
	if err := imaging.Save(thumb, dst); err != nil {
		return fmt.Errorf("thumbnail: save %q: %w", dst, err)
	}
	return nil
}

// Placeholder writes a flat tile carrying the file type label, used
// when the original has no raster to preview.
func (g *Generator) Placeholder(label, dst string) error {
	dc := gg.NewContext(g.size, g.size)

	dc.SetColor(color.NRGBA{R: 0xEC, G: 0xEE, B: 0xF1, A: 0xFF})
	dc.Clear()

	dc.SetColor(color.NRGBA{R: 0xB8, G: 0xBE, B: 0xC7, A: 0xFF})
	dc.SetLineWidth(2)
	inset := float64(g.size) / 16
	dc.DrawRectangle(inset, inset, float64(g.size)-2*inset, float64(g.size)-2*inset)
	dc.Stroke()

	// The default bitmap face needs no font files on the host.
	dc.SetColor(color.NRGBA{R: 0x4A, G: 0x50, B: 0x59, A: 0xFF})
	dc.DrawStringAnchored(label, float64(g.size)/2, float64(g.size)/2, 0.5, 0.5)

	if err := dc.SavePNG(dst); err != nil {
		return fmt.Errorf("thumbnail: save placeholder %q: %w", dst, err)
	}
	return nil
}
