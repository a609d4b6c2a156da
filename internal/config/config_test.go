package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gwlsn/cropdetect/internal/crop"
	"github.com/gwlsn/cropdetect/internal/ffmpeg"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "ffmpeg", cfg.FFmpegPath)
	assert.Equal(t, "extracted_frame.jpg", cfg.FramePath)
	assert.Equal(t, "crop_params.txt", cfg.OutputPath)
	assert.Equal(t, "00:00:05", cfg.Timestamp)
	assert.Equal(t, 30, cfg.Threshold)
	assert.True(t, cfg.KeepFrame)
	assert.False(t, cfg.Probe)
	assert.Zero(t, cfg.ExtractTimeout)
	assert.Empty(t, cfg.HistoryDB)
	require.NoError(t, cfg.Validate())

	lb, err := cfg.Letterbox()
	require.NoError(t, err)
	assert.Equal(t, crop.Color{R: 24, G: 24, B: 24}, lb)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cropdetect.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
timestamp: "00:01:30"
letterbox_color: [0, 0, 0]
threshold: 12
keep_frame: false
extract_timeout: 45s
ffmpeg_path: ""
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "00:01:30", cfg.Timestamp)
	assert.Equal(t, []int{0, 0, 0}, cfg.LetterboxColor)
	assert.Equal(t, 12, cfg.Threshold)
	assert.False(t, cfg.KeepFrame)
	assert.Equal(t, 45*time.Second, cfg.ExtractTimeout)

	// Untouched and blanked values fall back to defaults
	assert.Equal(t, "ffmpeg", cfg.FFmpegPath)
	assert.Equal(t, "crop_params.txt", cfg.OutputPath)
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("threshold: [not, an, int"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "cropdetect.yaml")

	cfg := DefaultConfig()
	cfg.Timestamp = "00:00:42"
	cfg.HistoryDB = "history.db"
	cfg.ExtractTimeout = 2 * time.Minute
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("CROPDETECT_TIMESTAMP", "00:00:10")
	t.Setenv("CROPDETECT_LETTERBOX_COLOR", "16,16,16")
	t.Setenv("CROPDETECT_THRESHOLD", "40")
	t.Setenv("CROPDETECT_PROBE", "true")
	t.Setenv("CROPDETECT_EXTRACT_TIMEOUT", "1m")

	cfg := DefaultConfig()
	cfg.OutputPath = "from_file.txt"
	require.NoError(t, ApplyEnv(cfg))

	assert.Equal(t, "00:00:10", cfg.Timestamp)
	assert.Equal(t, []int{16, 16, 16}, cfg.LetterboxColor)
	assert.Equal(t, 40, cfg.Threshold)
	assert.True(t, cfg.Probe)
	assert.Equal(t, time.Minute, cfg.ExtractTimeout)

	// Unset variables keep earlier layers
	assert.Equal(t, "from_file.txt", cfg.OutputPath)
	assert.True(t, cfg.KeepFrame)
}

func TestApplyEnvInvalid(t *testing.T) {
	t.Setenv("CROPDETECT_THRESHOLD", "lots")
	assert.Error(t, ApplyEnv(DefaultConfig()))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		ok     bool
	}{
		{"defaults", func(*Config) {}, true},
		{"zero threshold", func(c *Config) { c.Threshold = 0 }, true},
		{"negative threshold", func(c *Config) { c.Threshold = -1 }, false},
		{"bad timestamp", func(c *Config) { c.Timestamp = "5" }, false},
		{"two color components", func(c *Config) { c.LetterboxColor = []int{1, 2} }, false},
		{"color out of range", func(c *Config) { c.LetterboxColor = []int{0, 256, 0} }, false},
		{"negative timeout", func(c *Config) { c.ExtractTimeout = -time.Second }, false},
		{"frame and output collide", func(c *Config) { c.OutputPath = c.FramePath }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestValidateTimestampSentinel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Timestamp = "00:99:00"
	assert.ErrorIs(t, cfg.Validate(), ffmpeg.ErrInvalidTimestamp)
}
