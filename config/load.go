package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes environment overrides, e.g. INKCLEAN_MODEL_URL.
const EnvPrefix = "INKCLEAN"

// Load reads configuration from path on top of Default. An empty path or a
// missing file yields the defaults plus environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, cfg)

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return Config{}, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if !errors.Is(err, fs.ErrNotExist) {
			return Config{}, err
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("detect.engine", cfg.Detect.Engine)
	v.SetDefault("detect.language", cfg.Detect.Language)
	v.SetDefault("detect.chunk_height", cfg.Detect.ChunkHeight)
	v.SetDefault("detect.dpi", cfg.Detect.DPI)
	v.SetDefault("detect.word_level", cfg.Detect.WordLevel)
	v.SetDefault("detect.psm", cfg.Detect.PSM)
	v.SetDefault("detect.on_error", cfg.Detect.OnError)
	v.SetDefault("mask.min_confidence", cfg.Mask.MinConfidence)
	v.SetDefault("mask.ink_threshold", cfg.Mask.InkThreshold)
	v.SetDefault("mask.glow_threshold", cfg.Mask.GlowThreshold)
	v.SetDefault("mask.min_component_area", cfg.Mask.MinComponentArea)
	v.SetDefault("mask.dilate_kernel", cfg.Mask.DilateKernel)
	v.SetDefault("mask.dilate_iterations", cfg.Mask.DilateIterations)
	v.SetDefault("mask.median_size", cfg.Mask.MedianSize)
	v.SetDefault("mask.merge", cfg.Mask.Merge)
	v.SetDefault("tiling.bands", cfg.Tiling.Bands)
	v.SetDefault("tiling.max_band_height", cfg.Tiling.MaxBandHeight)
	v.SetDefault("tiling.overlap", cfg.Tiling.Overlap)
	v.SetDefault("tiling.auto_split_height", cfg.Tiling.AutoSplitHeight)
	v.SetDefault("tiling.mask_threshold", cfg.Tiling.MaskThreshold)
	v.SetDefault("model.backend", cfg.Model.Backend)
	v.SetDefault("model.url", cfg.Model.URL)
	v.SetDefault("model.release_path", cfg.Model.ReleasePath)
	v.SetDefault("model.auth_token", cfg.Model.AuthToken)
	v.SetDefault("model.request_timeout_seconds", cfg.Model.RequestTimeout)
	v.SetDefault("model.max_conns", cfg.Model.MaxConns)
	v.SetDefault("model.iterations", cfg.Model.Iterations)
	v.SetDefault("history.depth", cfg.History.Depth)
}

// Dump renders cfg as YAML. The auth token is redacted.
func Dump(cfg Config) ([]byte, error) {
	if cfg.Model.AuthToken != "" {
		cfg.Model.AuthToken = "<redacted>"
	}
	return yaml.Marshal(cfg)
}
