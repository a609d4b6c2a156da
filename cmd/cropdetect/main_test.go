package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gwlsn/cropdetect/internal/config"
	"github.com/gwlsn/cropdetect/internal/crop"
	"github.com/gwlsn/cropdetect/internal/ffmpeg"
)

// isolate runs the test in an empty directory with no config sources set
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("CONFIG_PATH", "")
	for _, kv := range os.Environ() {
		if name, _, ok := strings.Cut(kv, "="); ok && strings.HasPrefix(name, config.EnvPrefix) {
			t.Setenv(name, "")
			os.Unsetenv(name)
		}
	}
	return dir
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

// effectiveConfig runs -write-config and loads the result back
func effectiveConfig(t *testing.T, dir string, args ...string) *config.Config {
	t.Helper()
	out := filepath.Join(dir, "effective.yaml")
	var stderr bytes.Buffer
	if code := run(append(args, "-write-config", out), &bytes.Buffer{}, &stderr); code != 0 {
		t.Fatalf("run exited %d: %s", code, stderr.String())
	}
	cfg, err := config.Load(out)
	if err != nil {
		t.Fatalf("failed to load written config: %v", err)
	}
	return cfg
}

func TestErrorKind(t *testing.T) {
	tests := []struct {
		err  error
		kind string
	}{
		{fmt.Errorf("validate: %w", ffmpeg.ErrInvalidTimestamp), "invalid_timestamp"},
		{fmt.Errorf("probe: %w", ffmpeg.ErrTimestampOutOfRange), "timestamp_out_of_range"},
		{fmt.Errorf("extract: %w", ffmpeg.ErrExtractFailed), "extract_failed"},
		{fmt.Errorf("find: %w", crop.ErrDecode), "decode_failed"},
		{fmt.Errorf("find: %w", crop.ErrNoContent), "no_content"},
		{context.Canceled, "cancelled"},
		{fmt.Errorf("write: disk full"), "other"},
	}

	for _, tt := range tests {
		if got := errorKind(tt.err); got != tt.kind {
			t.Errorf("errorKind(%v) = %q, expected %q", tt.err, got, tt.kind)
		}
	}
}

func TestRunExitCodes(t *testing.T) {
	isolate(t)

	tests := []struct {
		name string
		args []string
		want int
	}{
		{"unknown flag", []string{"-bogus", "movie.mp4"}, 1},
		{"bad flag value", []string{"-print=maybe", "movie.mp4"}, 1},
		{"no video", nil, 1},
		{"two videos", []string{"a.mp4", "b.mp4"}, 1},
		{"help", []string{"-h"}, 0},
		{"version", []string{"-version"}, 0},
		{"history disabled", []string{"-history", "movie.mp4"}, 1},
	}

	for _, tt := range tests {
		var stdout, stderr bytes.Buffer
		if got := run(tt.args, &stdout, &stderr); got != tt.want {
			t.Errorf("%s: run(%v) = %d, expected %d (stderr: %s)", tt.name, tt.args, got, tt.want, stderr.String())
		}
	}
}

func TestRunUsageOnMissingVideo(t *testing.T) {
	isolate(t)

	var stdout, stderr bytes.Buffer
	if code := run(nil, &stdout, &stderr); code != 1 {
		t.Fatalf("expected exit 1, got %d", code)
	}
	if !strings.Contains(stderr.String(), "Usage: cropdetect") {
		t.Errorf("expected usage on stderr, got %q", stderr.String())
	}
	if stdout.Len() != 0 {
		t.Errorf("expected nothing on stdout, got %q", stdout.String())
	}
}

func TestRunVersion(t *testing.T) {
	isolate(t)

	var stdout bytes.Buffer
	if code := run([]string{"-version"}, &stdout, &bytes.Buffer{}); code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}
	if !strings.HasPrefix(stdout.String(), "cropdetect ") {
		t.Errorf("unexpected version output %q", stdout.String())
	}
}

func TestRunInvalidConfig(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "bad.yaml")
	writeFile(t, path, "timestamp: \"5s\"\n")

	if code := run([]string{"-config", path, "movie.mp4"}, &bytes.Buffer{}, &bytes.Buffer{}); code != 1 {
		t.Errorf("expected exit 1 for invalid timestamp, got %d", code)
	}
}

func TestConfigDefaults(t *testing.T) {
	dir := isolate(t)

	cfg := effectiveConfig(t, dir)
	if cfg.Timestamp != ffmpeg.DefaultTimestamp {
		t.Errorf("expected default timestamp, got %s", cfg.Timestamp)
	}
	if cfg.Threshold != crop.DefaultThreshold {
		t.Errorf("expected default threshold, got %d", cfg.Threshold)
	}
	if cfg.OutputPath != crop.DefaultParamsFile {
		t.Errorf("expected default output path, got %s", cfg.OutputPath)
	}
}

func TestConfigPrecedence(t *testing.T) {
	dir := isolate(t)

	// Lowest file layer: ./cropdetect.yaml
	writeFile(t, filepath.Join(dir, defaultConfigPath), "threshold: 10\ntimestamp: \"00:00:01\"\n")
	cfg := effectiveConfig(t, dir)
	if cfg.Threshold != 10 || cfg.Timestamp != "00:00:01" {
		t.Errorf("expected ./cropdetect.yaml values, got threshold=%d timestamp=%s", cfg.Threshold, cfg.Timestamp)
	}

	// CONFIG_PATH replaces the default file
	envFile := filepath.Join(dir, "env.yaml")
	writeFile(t, envFile, "threshold: 20\n")
	t.Setenv("CONFIG_PATH", envFile)
	cfg = effectiveConfig(t, dir)
	if cfg.Threshold != 20 {
		t.Errorf("expected CONFIG_PATH threshold 20, got %d", cfg.Threshold)
	}
	if cfg.Timestamp != ffmpeg.DefaultTimestamp {
		t.Errorf("expected default timestamp when CONFIG_PATH is used, got %s", cfg.Timestamp)
	}

	// -config beats CONFIG_PATH
	flagFile := filepath.Join(dir, "flag.yaml")
	writeFile(t, flagFile, "threshold: 40\n")
	cfg = effectiveConfig(t, dir, "-config", flagFile)
	if cfg.Threshold != 40 {
		t.Errorf("expected -config threshold 40, got %d", cfg.Threshold)
	}

	// Environment beats every file
	t.Setenv("CROPDETECT_THRESHOLD", "50")
	cfg = effectiveConfig(t, dir, "-config", flagFile)
	if cfg.Threshold != 50 {
		t.Errorf("expected CROPDETECT_THRESHOLD 50, got %d", cfg.Threshold)
	}
}

func TestRunPrintReadsParamsFile(t *testing.T) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skipf("ffmpeg not available: %v", err)
	}
	dir := isolate(t)

	video := filepath.Join(dir, "letterboxed.mp4")
	cmd := exec.Command("ffmpeg", "-y", "-loglevel", "error",
		"-f", "lavfi", "-i", "color=c=0x181818:s=320x240:r=10:d=7",
		"-f", "lavfi", "-i", "color=c=white:s=320x160:r=10:d=7",
		"-filter_complex", "[0][1]overlay=0:40",
		"-pix_fmt", "yuv420p",
		video,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("failed to render test video: %v\n%s", err, out)
	}

	var stdout, stderr bytes.Buffer
	if code := run([]string{"-print", video}, &stdout, &stderr); code != 0 {
		t.Fatalf("expected exit 0, got %d: %s", code, stderr.String())
	}

	data, err := os.ReadFile(filepath.Join(dir, crop.DefaultParamsFile))
	if err != nil {
		t.Fatalf("params file not written: %v", err)
	}
	if stdout.String() != string(data) {
		t.Errorf("stdout %q does not match params file %q", stdout.String(), data)
	}
	if _, err := os.Stat(filepath.Join(dir, config.DefaultFramePath)); err != nil {
		t.Errorf("expected extracted frame to be left behind: %v", err)
	}
}
