package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/wudi/inkclean/ocr"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "inkclean.yaml")
	if err := os.WriteFile(path, []byte(strings.TrimSpace(content)+"\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}
	tm := cfg.TextMask()
	if tm.MinConfidence != 0.3 || tm.InkThreshold != 200 || tm.GlowThreshold != 45 || tm.DilateKernel != 9 || tm.ChunkHeight != 2000 {
		t.Fatalf("unexpected textmask config %+v", tm)
	}
	opts := cfg.Inpaint(0)
	if opts.Tiling.Overlap != 64 || opts.Tiling.AutoSplitHeight != 3000 || opts.MaskThreshold != 10 || opts.Tiling.Bands != 1 {
		t.Fatalf("unexpected inpaint options %+v", opts)
	}
	if got := cfg.Inpaint(4).Tiling.Bands; got != 4 {
		t.Fatalf("band override = %d", got)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.History.Depth != 20 || cfg.Model.Backend != BackendDiffuse {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	path := writeConfig(t, `
detect:
  language: ko
tiling:
  bands: 4
  overlap: 32
model:
  backend: lama
  url: http://127.0.0.1:8090
`)
	t.Setenv("INKCLEAN_HISTORY_DEPTH", "5")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Detect.Language != "ko" || cfg.Tiling.Bands != 4 || cfg.Tiling.Overlap != 32 {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.Model.Backend != BackendLaMa || cfg.Model.URL != "http://127.0.0.1:8090" {
		t.Fatalf("model = %+v", cfg.Model)
	}
	if cfg.History.Depth != 5 {
		t.Fatalf("env override not applied: depth=%d", cfg.History.Depth)
	}
	if cfg.Mask.InkThreshold != 200 {
		t.Fatalf("defaults lost: %+v", cfg.Mask)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"confidence": "mask:\n  min_confidence: 0.5",
		"kernel":     "mask:\n  dilate_kernel: 8",
		"backend":    "model:\n  backend: gpu",
		"lama url":   "model:\n  backend: lama",
		"engine":     "detect:\n  engine: paddle",
		"on_error":   "detect:\n  on_error: retry",
	}
	for name, content := range cases {
		if _, err := Load(writeConfig(t, content)); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestDumpRedactsToken(t *testing.T) {
	cfg := Default()
	cfg.Model.AuthToken = "secret"
	data, err := Dump(cfg)
	if err != nil {
		t.Fatalf("Dump() error = %v", err)
	}
	if strings.Contains(string(data), "secret") {
		t.Fatalf("token leaked: %s", data)
	}
	var back Config
	if err := yaml.Unmarshal(data, &back); err != nil {
		t.Fatalf("yaml.Unmarshal() error = %v", err)
	}
	if back.Tiling.Overlap != 64 || back.Mask.MinConfidence != 0.3 {
		t.Fatalf("dump lost values: %+v", back)
	}
	if cfg.Model.AuthToken != "secret" {
		t.Fatalf("Dump must not modify its argument")
	}
}

func TestTextMaskDetectOptions(t *testing.T) {
	path := writeConfig(t, `
detect:
  psm: 11
  variables:
    preserve_interword_spaces: "1"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	tm := cfg.TextMask()
	if len(tm.DetectOptions) != 2 {
		t.Fatalf("expected 2 detect options, got %d", len(tm.DetectOptions))
	}
	in := ocr.Input{}
	for _, opt := range tm.DetectOptions {
		opt(&in)
	}
	if in.Metadata["tessedit_pageseg_mode"] != "11" || in.Metadata["preserve_interword_spaces"] != "1" {
		t.Fatalf("unexpected metadata %v", in.Metadata)
	}
}
