package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	ffmpeggo "github.com/u2takey/ffmpeg-go"

	"github.com/gwlsn/cropdetect/internal/logger"
)

// lastLines returns the last n non-empty lines from output
func lastLines(output string, n int) string {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, " | ")
}

// Extractor pulls single still frames out of a video with ffmpeg
type Extractor struct {
	ffmpegPath string
}

// NewExtractor creates a new Extractor with the given ffmpeg path
func NewExtractor(ffmpegPath string) *Extractor {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &Extractor{ffmpegPath: ffmpegPath}
}

// frameArgs builds the ffmpeg argument list for a single-frame grab.
// The seek is placed after -i so the frame is decoded at the exact position
// rather than snapped to the previous keyframe.
func frameArgs(videoPath, framePath, timestamp string) []string {
	return ffmpeggo.
		Input(videoPath).
		Output(framePath, ffmpeggo.KwArgs{
			"ss":      timestamp,
			"vframes": 1,
		}).
		GlobalArgs("-loglevel", "warning").
		OverWriteOutput().
		GetArgs()
}

// ExtractFrame writes the frame at timestamp (HH:MM:SS) of videoPath to framePath.
// An existing file at framePath is replaced. The arguments are passed to
// ffmpeg directly, never through a shell.
func (e *Extractor) ExtractFrame(ctx context.Context, videoPath, framePath, timestamp string) error {
	if _, err := ParseTimestamp(timestamp); err != nil {
		return err
	}

	// ffmpeg exits 0 without writing anything when seeking past the end,
	// so a stale frame from an earlier run must not survive.
	if err := os.Remove(framePath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: remove stale frame: %v", ErrExtractFailed, err)
	}

	args := frameArgs(videoPath, framePath, timestamp)
	logger.Debug("Extracting frame", "ffmpeg", e.ffmpegPath, "args", strings.Join(args, " "))

	cmd := exec.CommandContext(ctx, e.ffmpegPath, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%w: %v", ErrExtractFailed, ctxErr)
		}
		logger.Error("FFmpeg frame extraction failed", "video", videoPath, "error", err, "stderr", lastLines(string(output), 5))
		return fmt.Errorf("%w: %v (%s)", ErrExtractFailed, err, lastLines(string(output), 3))
	}

	info, err := os.Stat(framePath)
	if err != nil || info.Size() == 0 {
		return fmt.Errorf("%w: no frame written to %s (timestamp %s may be past the end of the video)",
			ErrExtractFailed, framePath, timestamp)
	}

	return nil
}
