// Package config holds the settings of the edit pipeline and loads them from
// YAML files and INKCLEAN_* environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/wudi/inkclean/history"
	"github.com/wudi/inkclean/inpaint"
	"github.com/wudi/inkclean/ocr"
	"github.com/wudi/inkclean/recovery"
	"github.com/wudi/inkclean/textmask"
	"github.com/wudi/inkclean/tiling"
)

// Config is the top-level configuration.
type Config struct {
	Detect  DetectConfig  `mapstructure:"detect" yaml:"detect"`
	Mask    MaskConfig    `mapstructure:"mask" yaml:"mask"`
	Tiling  TilingConfig  `mapstructure:"tiling" yaml:"tiling"`
	Model   ModelConfig   `mapstructure:"model" yaml:"model"`
	History HistoryConfig `mapstructure:"history" yaml:"history"`
}

// DetectConfig selects the text detector.
type DetectConfig struct {
	Engine      string `mapstructure:"engine" yaml:"engine"`
	Language    string `mapstructure:"language" yaml:"language"`
	ChunkHeight int    `mapstructure:"chunk_height" yaml:"chunk_height"`
	DPI         int    `mapstructure:"dpi" yaml:"dpi"`
	WordLevel   bool   `mapstructure:"word_level" yaml:"word_level"`
	// PSM is the Tesseract page segmentation mode; zero keeps the engine
	// default.
	PSM int `mapstructure:"psm" yaml:"psm"`
	// Variables are passed to the engine verbatim.
	Variables map[string]string `mapstructure:"variables" yaml:"variables,omitempty"`
	// OnError is "strict" to fail a scan on any detector error or
	// "lenient" to skip the failed chunk.
	OnError string `mapstructure:"on_error" yaml:"on_error"`
}

// MaskConfig tunes mask synthesis.
type MaskConfig struct {
	MinConfidence    float64 `mapstructure:"min_confidence" yaml:"min_confidence"`
	InkThreshold     int     `mapstructure:"ink_threshold" yaml:"ink_threshold"`
	GlowThreshold    int     `mapstructure:"glow_threshold" yaml:"glow_threshold"`
	MinComponentArea int     `mapstructure:"min_component_area" yaml:"min_component_area"`
	DilateKernel     int     `mapstructure:"dilate_kernel" yaml:"dilate_kernel"`
	DilateIterations int     `mapstructure:"dilate_iterations" yaml:"dilate_iterations"`
	MedianSize       int     `mapstructure:"median_size" yaml:"median_size"`
	// Merge ORs a synthesized mask into the current one instead of
	// replacing it.
	Merge bool `mapstructure:"merge" yaml:"merge"`
}

// TilingConfig controls how images are split for the model.
type TilingConfig struct {
	Bands           int `mapstructure:"bands" yaml:"bands"`
	MaxBandHeight   int `mapstructure:"max_band_height" yaml:"max_band_height"`
	Overlap         int `mapstructure:"overlap" yaml:"overlap"`
	AutoSplitHeight int `mapstructure:"auto_split_height" yaml:"auto_split_height"`
	MaskThreshold   int `mapstructure:"mask_threshold" yaml:"mask_threshold"`
}

// ModelConfig selects the inpainting backend.
type ModelConfig struct {
	Backend        string `mapstructure:"backend" yaml:"backend"`
	URL            string `mapstructure:"url" yaml:"url"`
	ReleasePath    string `mapstructure:"release_path" yaml:"release_path"`
	AuthToken      string `mapstructure:"auth_token" yaml:"auth_token"`
	RequestTimeout int    `mapstructure:"request_timeout_seconds" yaml:"request_timeout_seconds"`
	MaxConns       int    `mapstructure:"max_conns" yaml:"max_conns"`
	Iterations     int    `mapstructure:"iterations" yaml:"iterations"`
}

type HistoryConfig struct {
	Depth int `mapstructure:"depth" yaml:"depth"`
}

const (
	EngineTesseract = "tesseract"
	EngineNone      = "none"

	BackendDiffuse = "diffuse"
	BackendLaMa    = "lama"
)

// Default returns the built-in configuration.
func Default() Config {
	tm := textmask.DefaultConfig()
	return Config{
		Detect: DetectConfig{
			Engine:      EngineTesseract,
			Language:    "en",
			ChunkHeight: tm.ChunkHeight,
			DPI:         300,
			OnError:     recovery.Strict,
		},
		Mask: MaskConfig{
			MinConfidence:    tm.MinConfidence,
			InkThreshold:     int(tm.InkThreshold),
			GlowThreshold:    int(tm.GlowThreshold),
			MinComponentArea: tm.MinComponentArea,
			DilateKernel:     tm.DilateKernel,
			DilateIterations: tm.DilateIterations,
			MedianSize:       tm.MedianSize,
		},
		Tiling: TilingConfig{
			Bands:           1,
			Overlap:         tiling.DefaultOverlap,
			AutoSplitHeight: 3000,
			MaskThreshold:   inpaint.DefaultMaskThreshold,
		},
		Model: ModelConfig{
			Backend:        BackendDiffuse,
			ReleasePath:    "/release",
			RequestTimeout: 120,
			MaxConns:       2,
		},
		History: HistoryConfig{Depth: history.DefaultDepth},
	}
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch c.Detect.Engine {
	case EngineTesseract, EngineNone:
	default:
		return fmt.Errorf("unsupported detect.engine %q", c.Detect.Engine)
	}
	if _, err := recovery.ForName(c.Detect.OnError, nil); err != nil {
		return fmt.Errorf("detect.on_error: %w", err)
	}
	if c.Detect.ChunkHeight < 0 {
		return fmt.Errorf("detect.chunk_height must not be negative")
	}
	if c.Mask.MinConfidence < 0.15 || c.Mask.MinConfidence > 0.3 {
		return fmt.Errorf("mask.min_confidence %.2f outside [0.15, 0.30]", c.Mask.MinConfidence)
	}
	for name, v := range map[string]int{
		"mask.ink_threshold":    c.Mask.InkThreshold,
		"mask.glow_threshold":   c.Mask.GlowThreshold,
		"tiling.mask_threshold": c.Tiling.MaskThreshold,
	} {
		if v < 0 || v > 255 {
			return fmt.Errorf("%s %d outside [0, 255]", name, v)
		}
	}
	if c.Mask.DilateKernel < 0 || (c.Mask.DilateKernel > 0 && c.Mask.DilateKernel%2 == 0) {
		return fmt.Errorf("mask.dilate_kernel must be zero or odd, got %d", c.Mask.DilateKernel)
	}
	if c.Tiling.Bands < 0 || c.Tiling.MaxBandHeight < 0 || c.Tiling.AutoSplitHeight < 0 {
		return fmt.Errorf("tiling values must not be negative")
	}
	switch c.Model.Backend {
	case BackendDiffuse:
	case BackendLaMa:
		if c.Model.URL == "" {
			return fmt.Errorf("model.url is required for backend %q", BackendLaMa)
		}
	default:
		return fmt.Errorf("unsupported model.backend %q", c.Model.Backend)
	}
	if c.History.Depth <= 0 {
		return fmt.Errorf("history.depth must be positive")
	}
	return nil
}

// TextMask converts the mask and detect sections.
func (c Config) TextMask() textmask.Config {
	var opts []ocr.InputOption
	if len(c.Detect.Variables) > 0 {
		opts = append(opts, ocr.WithMetadata(c.Detect.Variables))
	}
	if c.Detect.PSM > 0 {
		opts = append(opts, ocr.WithTesseractPSM(c.Detect.PSM))
	}
	return textmask.Config{
		MinConfidence:    c.Mask.MinConfidence,
		InkThreshold:     uint8(c.Mask.InkThreshold),
		GlowThreshold:    uint8(c.Mask.GlowThreshold),
		MinComponentArea: c.Mask.MinComponentArea,
		DilateKernel:     c.Mask.DilateKernel,
		DilateIterations: c.Mask.DilateIterations,
		MedianSize:       c.Mask.MedianSize,
		ChunkHeight:      c.Detect.ChunkHeight,
		DPI:              c.Detect.DPI,
		DetectOptions:    opts,
	}
}

// Inpaint converts the tiling section. bands overrides the configured band
// count when positive.
func (c Config) Inpaint(bands int) inpaint.Options {
	if bands <= 0 {
		bands = c.Tiling.Bands
	}
	return inpaint.Options{
		Tiling: tiling.Options{
			Bands:           bands,
			MaxBandHeight:   c.Tiling.MaxBandHeight,
			Overlap:         c.Tiling.Overlap,
			AutoSplitHeight: c.Tiling.AutoSplitHeight,
		},
		MaskThreshold: uint8(c.Tiling.MaskThreshold),
	}
}

func (c ModelConfig) Timeout() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Second
}
