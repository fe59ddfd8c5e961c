// Package preflight runs the print-readiness checks over an uploaded
// design file. Checks are pure: they read the detected type, the file
// size and the raster probe, and emit one result each in a fixed order.
package preflight

import (
	"fmt"
	"strings"

	"github.com/printforge/preflight/internal/convert"
	"github.com/printforge/preflight/internal/detect"
	"github.com/printforge/preflight/internal/model"
)

// Config is the per-plan check configuration. A zero value for any
// threshold disables that check's corresponding bound.
type Config struct {
	AllowedFormats []string `mapstructure:"allowed_formats"`
	MaxFileSize    int64    `mapstructure:"max_file_size"`
	MinDPI         int      `mapstructure:"min_dpi"`
	MinWidth       int      `mapstructure:"min_width"`
	MinHeight      int      `mapstructure:"min_height"`
	MaxWidth       int      `mapstructure:"max_width"`
	MaxHeight      int      `mapstructure:"max_height"`
}

// Input is everything the checks may look at. Probe is nil when the
// file never yielded a decodable raster.
type Input struct {
	DetectedType string
	FileSize     int64
	Probe        *convert.Probe
}

// Engine evaluates the configured checks.
type Engine struct{}

// NewEngine returns a check engine.
func NewEngine() *Engine {
	return &Engine{}
}

// Run evaluates all checks against in and returns them in declaration
// order. It never fails: unmeasurable properties degrade to warnings.
func (e *Engine) Run(in Input, cfg Config) []model.CheckResult {
	return []model.CheckResult{
		e.checkFormat(in, cfg),
		e.checkFileSize(in, cfg),
		e.checkDPI(in, cfg),
		e.checkDimensions(in, cfg),
		e.checkTransparency(in),
		e.checkColorProfile(in),
	}
}

func (e *Engine) checkFormat(in Input, cfg Config) model.CheckResult {
	r := model.CheckResult{Name: "format", Status: model.CheckOK}
	r.Details = map[string]any{"detectedType": in.DetectedType}

	if in.DetectedType == detect.TypeUnknown {
		r.Status = model.CheckError
		r.Message = "file type could not be identified"
		return r
	}
	if len(cfg.AllowedFormats) > 0 && !contains(cfg.AllowedFormats, in.DetectedType) {
		r.Status = model.CheckError
		r.Message = fmt.Sprintf("%s is not accepted on this plan (allowed: %s)",
			detect.Tag(in.DetectedType), strings.Join(tags(cfg.AllowedFormats), ", "))
		return r
	}
	r.Message = detect.Tag(in.DetectedType)
	return r
}

func (e *Engine) checkFileSize(in Input, cfg Config) model.CheckResult {
	r := model.CheckResult{Name: "file_size", Status: model.CheckOK}
	r.Details = map[string]any{"bytes": in.FileSize}

	if cfg.MaxFileSize > 0 && in.FileSize > cfg.MaxFileSize {
		r.Status = model.CheckError
		r.Message = fmt.Sprintf("file is %d bytes, plan limit is %d", in.FileSize, cfg.MaxFileSize)
		return r
	}
	return r
}

func (e *Engine) checkDPI(in Input, cfg Config) model.CheckResult {
	r := model.CheckResult{Name: "dpi", Status: model.CheckOK}

	if cfg.MinDPI <= 0 {
		return r
	}
	if in.Probe == nil {
		r.Status = model.CheckWarning
		r.Message = "resolution could not be measured"
		return r
	}

	dpi := in.Probe.DPI
	if dpi == 0 {
		// No embedded density; assume the screen default.
		dpi = 72
	}
	r.Details = map[string]any{"dpi": dpi}
	if dpi < cfg.MinDPI {
		r.Status = model.CheckWarning
		r.Message = fmt.Sprintf("%d DPI is below the recommended %d; print may look blurry", dpi, cfg.MinDPI)
	}
	return r
}

func (e *Engine) checkDimensions(in Input, cfg Config) model.CheckResult {
	r := model.CheckResult{Name: "dimensions", Status: model.CheckOK}

	if in.Probe == nil {
		if cfg.MinWidth > 0 || cfg.MinHeight > 0 || cfg.MaxWidth > 0 || cfg.MaxHeight > 0 {
			r.Status = model.CheckWarning
			r.Message = "dimensions could not be measured"
		}
		return r
	}

	w, h := in.Probe.Width, in.Probe.Height
	r.Details = map[string]any{"width": w, "height": h}

	switch {
	case (cfg.MinWidth > 0 && w < cfg.MinWidth) || (cfg.MinHeight > 0 && h < cfg.MinHeight):
		r.Status = model.CheckWarning
		r.Message = fmt.Sprintf("%dx%d px is below the minimum %dx%d", w, h, cfg.MinWidth, cfg.MinHeight)
	case (cfg.MaxWidth > 0 && w > cfg.MaxWidth) || (cfg.MaxHeight > 0 && h > cfg.MaxHeight):
		r.Status = model.CheckWarning
		r.Message = fmt.Sprintf("%dx%d px exceeds the maximum %dx%d", w, h, cfg.MaxWidth, cfg.MaxHeight)
	}
	return r
}

func (e *Engine) checkTransparency(in Input) model.CheckResult {
	r := model.CheckResult{Name: "transparency", Status: model.CheckOK}

	if in.Probe == nil {
		r.Status = model.CheckWarning
		r.Message = "transparency could not be measured"
		return r
	}
	r.Details = map[string]any{"hasAlpha": in.Probe.HasAlpha}
	if in.Probe.HasAlpha {
		r.Status = model.CheckWarning
		r.Message = "image contains transparent areas; they will print as white"
	}
	return r
}

func (e *Engine) checkColorProfile(in Input) model.CheckResult {
	r := model.CheckResult{Name: "color_profile", Status: model.CheckOK}

	if in.Probe == nil || in.Probe.ColorSpace == "" {
		r.Status = model.CheckWarning
		r.Message = "color space could not be determined"
		return r
	}
	r.Details = map[string]any{"colorSpace": in.Probe.ColorSpace}
	r.Message = in.Probe.ColorSpace
	return r
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func tags(types []string) []string {
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = detect.Tag(t)
	}
	return out
}
