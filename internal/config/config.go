package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/gwlsn/cropdetect/internal/crop"
	"github.com/gwlsn/cropdetect/internal/ffmpeg"
)

// EnvPrefix namespaces environment overrides, e.g. CROPDETECT_THRESHOLD
const EnvPrefix = "CROPDETECT_"

// DefaultFramePath is the intermediate still written by ffmpeg
const DefaultFramePath = "extracted_frame.jpg"

type Config struct {
	// FFmpegPath is the path to ffmpeg binary (default: "ffmpeg")
	FFmpegPath string `yaml:"ffmpeg_path" env:"FFMPEG_PATH"`

	// FFprobePath is the path to ffprobe binary (default: "ffprobe")
	FFprobePath string `yaml:"ffprobe_path" env:"FFPROBE_PATH"`

	// FramePath is where the extracted frame is written (default: extracted_frame.jpg)
	FramePath string `yaml:"frame_path" env:"FRAME_PATH"`

	// OutputPath receives the "x y w h" line (default: crop_params.txt)
	OutputPath string `yaml:"output_path" env:"OUTPUT_PATH"`

	// Timestamp is the HH:MM:SS position of the analysed frame (default: 00:00:05)
	Timestamp string `yaml:"timestamp" env:"TIMESTAMP"`

	// LetterboxColor is the R, G, B of the padding bars (default: 24, 24, 24)
	LetterboxColor []int `yaml:"letterbox_color,flow" env:"LETTERBOX_COLOR" envSeparator:","`

	// Threshold is the summed channel distance a pixel must exceed to count as content (default 30)
	Threshold int `yaml:"threshold" env:"THRESHOLD"`

	// Probe checks the timestamp against the video duration with ffprobe before extracting
	Probe bool `yaml:"probe" env:"PROBE"`

	// KeepFrame leaves the extracted frame on disk after a successful run (default true)
	KeepFrame bool `yaml:"keep_frame" env:"KEEP_FRAME"`

	// ExtractTimeout bounds the ffmpeg run; zero waits forever
	ExtractTimeout time.Duration `yaml:"extract_timeout" env:"EXTRACT_TIMEOUT"`

	// HistoryDB is the SQLite file recording past detections; empty disables history
	HistoryDB string `yaml:"history_db" env:"HISTORY_DB"`

	// LogLevel is one of debug, info, warn, error (default info)
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	lb := crop.DefaultLetterbox
	return &Config{
		FFmpegPath:     "ffmpeg",
		FFprobePath:    "ffprobe",
		FramePath:      DefaultFramePath,
		OutputPath:     crop.DefaultParamsFile,
		Timestamp:      ffmpeg.DefaultTimestamp,
		LetterboxColor: []int{int(lb.R), int(lb.G), int(lb.B)},
		Threshold:      crop.DefaultThreshold,
		Probe:          false,
		KeepFrame:      true,
		ExtractTimeout: 0, // no timeout
		HistoryDB:      "",
		LogLevel:       "info",
	}
}

// Load reads config from a YAML file, applying defaults for missing values
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// No config file - use defaults
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	cfg.applyDefaults()
	return cfg, nil
}

// ApplyEnv overrides fields from CROPDETECT_* environment variables.
// Unset variables leave the current value alone.
func ApplyEnv(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("environment: %w", err)
	}
	cfg.applyDefaults()
	return nil
}

// applyDefaults fills values a file or environment left empty
func (c *Config) applyDefaults() {
	if c.FFmpegPath == "" {
		c.FFmpegPath = "ffmpeg"
	}
	if c.FFprobePath == "" {
		c.FFprobePath = "ffprobe"
	}
	if c.FramePath == "" {
		c.FramePath = DefaultFramePath
	}
	if c.OutputPath == "" {
		c.OutputPath = crop.DefaultParamsFile
	}
	if c.Timestamp == "" {
		c.Timestamp = ffmpeg.DefaultTimestamp
	}
	if len(c.LetterboxColor) == 0 {
		lb := crop.DefaultLetterbox
		c.LetterboxColor = []int{int(lb.R), int(lb.G), int(lb.B)}
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Validate reports the first setting that cannot work
func (c *Config) Validate() error {
	if _, err := ffmpeg.ParseTimestamp(c.Timestamp); err != nil {
		return err
	}
	if _, err := c.Letterbox(); err != nil {
		return err
	}
	if c.Threshold < 0 {
		return fmt.Errorf("threshold must be >= 0, got %d", c.Threshold)
	}
	if c.ExtractTimeout < 0 {
		return fmt.Errorf("extract_timeout must be >= 0, got %s", c.ExtractTimeout)
	}
	if c.FramePath == c.OutputPath {
		return errors.New("frame_path and output_path must differ")
	}
	return nil
}

// Letterbox converts LetterboxColor into a crop.Color
func (c *Config) Letterbox() (crop.Color, error) {
	if len(c.LetterboxColor) != 3 {
		return crop.Color{}, fmt.Errorf("letterbox_color needs 3 components, got %d", len(c.LetterboxColor))
	}
	var rgb [3]uint8
	for i, v := range c.LetterboxColor {
		if v < 0 || v > 255 {
			return crop.Color{}, fmt.Errorf("letterbox_color component %d out of range: %d", i, v)
		}
		rgb[i] = uint8(v)
	}
	return crop.Color{R: rgb[0], G: rgb[1], B: rgb[2]}, nil
}

// Save writes the config to a YAML file
func (c *Config) Save(path string) error {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
