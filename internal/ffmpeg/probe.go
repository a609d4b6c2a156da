package ffmpeg

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// ProbeResult contains the video metadata needed to place a frame grab
type ProbeResult struct {
	Path       string        `json:"path"`
	Duration   time.Duration `json:"duration"`
	Format     string        `json:"format"`
	VideoCodec string        `json:"video_codec"`
	Width      int           `json:"width"`
	Height     int           `json:"height"`
	FrameRate  float64       `json:"frame_rate"`
}

// ffprobeOutput represents the JSON output from ffprobe
type ffprobeOutput struct {
	Format  ffprobeFormat   `json:"format"`
	Streams []ffprobeStream `json:"streams"`
}

type ffprobeFormat struct {
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
}

type ffprobeStream struct {
	CodecType    string `json:"codec_type"`
	CodecName    string `json:"codec_name"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	RFrameRate   string `json:"r_frame_rate"`
	AvgFrameRate string `json:"avg_frame_rate"`
	Duration     string `json:"duration"`
}

// Prober wraps ffprobe functionality
type Prober struct {
	ffprobePath string
}

// NewProber creates a new Prober with the given ffprobe path
func NewProber(ffprobePath string) *Prober {
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &Prober{ffprobePath: ffprobePath}
}

// Probe returns metadata about a video file
func (p *Prober) Probe(ctx context.Context, path string) (*ProbeResult, error) {
	cmd := exec.CommandContext(ctx, p.ffprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		"-select_streams", "v:0",
		path,
	)

	output, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return nil, fmt.Errorf("%w: %s", ErrProbeFailed, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, fmt.Errorf("%w: %v", ErrProbeFailed, err)
	}

	return parseProbeOutput(path, output)
}

// parseProbeOutput turns raw ffprobe JSON into a ProbeResult
func parseProbeOutput(path string, output []byte) (*ProbeResult, error) {
	var probeOutput ffprobeOutput
	if err := json.Unmarshal(output, &probeOutput); err != nil {
		return nil, fmt.Errorf("%w: parse output: %v", ErrProbeFailed, err)
	}

	result := &ProbeResult{
		Path:     path,
		Format:   probeOutput.Format.FormatName,
		Duration: parseSeconds(probeOutput.Format.Duration),
	}

	for i := range probeOutput.Streams {
		stream := &probeOutput.Streams[i]
		if stream.CodecType != "video" {
			continue
		}
		result.VideoCodec = stream.CodecName
		result.Width = stream.Width
		result.Height = stream.Height
		result.FrameRate = parseFrameRate(stream.RFrameRate)
		if result.FrameRate == 0 {
			result.FrameRate = parseFrameRate(stream.AvgFrameRate)
		}
		// Some containers only carry duration on the stream
		if result.Duration == 0 {
			result.Duration = parseSeconds(stream.Duration)
		}
		break
	}

	if result.VideoCodec == "" {
		return nil, fmt.Errorf("%w: no video stream in %s", ErrProbeFailed, path)
	}

	return result, nil
}

// CheckTimestamp reports whether a frame can exist at timestamp.
// A zero duration means ffprobe could not tell, so any timestamp passes.
func CheckTimestamp(probe *ProbeResult, timestamp string) error {
	pos, err := ParseTimestamp(timestamp)
	if err != nil {
		return err
	}
	if probe == nil || probe.Duration <= 0 {
		return nil
	}
	if pos >= probe.Duration {
		return fmt.Errorf("%w: %s >= %s", ErrTimestampOutOfRange, timestamp, probe.Duration.Round(time.Millisecond))
	}
	return nil
}

func parseSeconds(s string) time.Duration {
	if s == "" {
		return 0
	}
	sec, err := strconv.ParseFloat(s, 64)
	if err != nil || sec < 0 {
		return 0
	}
	return time.Duration(sec * float64(time.Second))
}

// parseFrameRate parses a frame rate string like "30000/1001" or "30/1"
func parseFrameRate(s string) float64 {
	if s == "" || s == "0/0" {
		return 0
	}
	parts := strings.Split(s, "/")
	if len(parts) != 2 {
		f, _ := strconv.ParseFloat(s, 64)
		return f
	}
	num, _ := strconv.ParseFloat(parts[0], 64)
	den, _ := strconv.ParseFloat(parts[1], 64)
	if den == 0 {
		return 0
	}
	return num / den
}
