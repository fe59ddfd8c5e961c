// Package convert rasterizes non-raster design files (PDF, PostScript,
// TIFF, PSD) into flat PNGs using external tools. Conversion is best
// effort: every failure is reported to the caller, never papered over,
// and the input file is never modified.
package convert

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/printforge/preflight/internal/detect"
)

// Converter runs the external rasterizers.
type Converter struct {
	dpi     int
	timeout time.Duration
}

// New returns a converter that renders at the given density and kills
// any tool that runs longer than timeout.
func New(dpi int, timeout time.Duration) *Converter {
	return &Converter{dpi: dpi, timeout: timeout}
}

// Supports reports whether detected is a type this converter can rasterize.
func (c *Converter) Supports(detected string) bool {
	return detect.NeedsConversion(detected)
}

// Rasterize renders the first page of src into a PNG at dst. The error
// message carries the tool's output so the operator can see what the
// tool itself complained about.
func (c *Converter) Rasterize(ctx context.Context, detected, src, dst string) error {
	var name string
	var args []string

	switch detected {
	case detect.TypePDF:
		name = "gs"
		args = c.gsArgs(src, dst)
	case detect.TypePostScript:
		name = "gs"
		args = append(c.gsArgs(src, dst), "-dEPSCrop")
	case detect.TypeTIFF, detect.TypePSD:
		// [0] picks the first frame/layer composite; -flatten merges
		// remaining layers onto a white background.
		name = "magick"
		args = []string{"-density", strconv.Itoa(c.dpi), src + "[0]", "-flatten", dst}
	default:
		return fmt.Errorf("convert: no rasterizer for %q", detected)
	}

	if _, err := exec.LookPath(name); err != nil {
		return fmt.Errorf("convert: %s not installed: %w", name, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		// A killed tool is a timeout, not a bad file; callers treat it
		// as transient.
		if ctx.Err() != nil {
			return fmt.Errorf("convert: %s timed out after %s: %w", name, c.timeout, ctx.Err())
		}
		return fmt.Errorf("convert: %s failed: %w: %s", name, err, truncate(out, 512))
	}

	return validateRaster(dst)
}

func (c *Converter) gsArgs(src, dst string) []string {
	return []string{
		"-dSAFER", "-dNOPAUSE", "-dBATCH", "-q",
		"-sDEVICE=png16m",
		"-r" + strconv.Itoa(c.dpi),
		"-dFirstPage=1", "-dLastPage=1",
		"-sOutputFile=" + dst,
		src,
	}
}

// validateRaster guards against tools that exit zero but emit garbage:
// the output must exist, be non-empty and start with a PNG signature.
func validateRaster(p string) error {
	f, err := os.Open(p)
	if err != nil {
		return fmt.Errorf("convert: no output produced: %w", err)
	}
	defer f.Close()

	head := make([]byte, 8)
	n, _ := f.Read(head)
	if !bytes.HasPrefix(head[:n], []byte("\x89PNG\r\n\x1a\n")) {
		return fmt.Errorf("convert: output %q is not a PNG", p)
	}
	return nil
}

func truncate(b []byte, n int) []byte {
	b = bytes.TrimSpace(b)
	if len(b) > n {
		return b[:n]
	}
	return b
}
