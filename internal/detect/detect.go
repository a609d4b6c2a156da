// Package detect runs the extract, find, write sequence for one video.
package detect

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"time"

	"github.com/spf13/afero"

	"github.com/gwlsn/cropdetect/internal/config"
	"github.com/gwlsn/cropdetect/internal/crop"
	"github.com/gwlsn/cropdetect/internal/ffmpeg"
	"github.com/gwlsn/cropdetect/internal/logger"
	"github.com/gwlsn/cropdetect/internal/store"
)

// Step names a stage of a run, used in logs and error messages.
type Step string

const (
	StepValidate Step = "validate"
	StepProbe    Step = "probe"
	StepExtract  Step = "extract"
	StepFind     Step = "find"
	StepWrite    Step = "write"
)

// FrameExtractor writes one still of a video to disk.
type FrameExtractor interface {
	ExtractFrame(ctx context.Context, videoPath, framePath, timestamp string) error
}

// VideoProber reads video metadata.
type VideoProber interface {
	Probe(ctx context.Context, path string) (*ffmpeg.ProbeResult, error)
}

// Recorder stores finished detections.
type Recorder interface {
	SaveDetection(d *store.Detection) error
}

// Options are the per-run file locations and frame position.
type Options struct {
	FramePath      string
	OutputPath     string
	Timestamp      string
	KeepFrame      bool
	ExtractTimeout time.Duration
}

// OptionsFromConfig copies the run settings out of cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		FramePath:      cfg.FramePath,
		OutputPath:     cfg.OutputPath,
		Timestamp:      cfg.Timestamp,
		KeepFrame:      cfg.KeepFrame,
		ExtractTimeout: cfg.ExtractTimeout,
	}
}

// Result describes a completed detection.
type Result struct {
	VideoPath   string
	FramePath   string
	OutputPath  string
	Timestamp   string
	Rect        crop.Rect
	FrameBounds image.Rectangle
	DetectedAt  time.Time
}

// Detector runs detections with a fixed set of collaborators.
type Detector struct {
	extractor FrameExtractor
	finder    *crop.Finder
	fs        afero.Fs
	opts      Options

	prober  VideoProber // optional pre-flight duration check
	history Recorder    // optional
}

// New creates a Detector. fs is where the frame is read and the params written;
// it must see the same files the extractor writes.
func New(extractor FrameExtractor, finder *crop.Finder, fs afero.Fs, opts Options) *Detector {
	return &Detector{
		extractor: extractor,
		finder:    finder,
		fs:        fs,
		opts:      opts,
	}
}

// SetProber enables the timestamp-versus-duration check before extraction.
func (d *Detector) SetProber(p VideoProber) {
	d.prober = p
}

// SetHistory enables recording of successful detections.
func (d *Detector) SetHistory(r Recorder) {
	d.history = r
}

// Run extracts a frame from videoPath, finds its content region and writes
// the crop parameters. Errors keep their sentinel from the failing package.
func (d *Detector) Run(ctx context.Context, videoPath string) (*Result, error) {
	log := logger.With("video", videoPath)

	if _, err := ffmpeg.ParseTimestamp(d.opts.Timestamp); err != nil {
		return nil, stepError(StepValidate, err)
	}

	if d.prober != nil {
		if err := d.checkDuration(ctx, videoPath); err != nil {
			return nil, stepError(StepProbe, err)
		}
	}

	extractCtx := ctx
	if d.opts.ExtractTimeout > 0 {
		var cancel context.CancelFunc
		extractCtx, cancel = context.WithTimeout(ctx, d.opts.ExtractTimeout)
		defer cancel()
	}

	start := time.Now()
	if err := d.extractor.ExtractFrame(extractCtx, videoPath, d.opts.FramePath, d.opts.Timestamp); err != nil {
		return nil, stepError(StepExtract, err)
	}
	log.Debug("Frame extracted", "frame", d.opts.FramePath, "timestamp", d.opts.Timestamp, "elapsed", time.Since(start))

	rect, bounds, err := d.finder.FindFile(d.fs, d.opts.FramePath)
	if err != nil {
		return nil, stepError(StepFind, err)
	}
	log.Debug("Content found", "rect", rect.String(), "frame_size", bounds.Size())

	if err := crop.WriteParams(d.fs, d.opts.OutputPath, rect); err != nil {
		return nil, stepError(StepWrite, err)
	}

	result := &Result{
		VideoPath:   videoPath,
		FramePath:   d.opts.FramePath,
		OutputPath:  d.opts.OutputPath,
		Timestamp:   d.opts.Timestamp,
		Rect:        rect,
		FrameBounds: bounds,
		DetectedAt:  time.Now(),
	}

	if !d.opts.KeepFrame {
		if err := d.fs.Remove(d.opts.FramePath); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Warn("Could not remove extracted frame", "frame", d.opts.FramePath, "error", err)
		}
	}

	d.record(result)

	log.Info("Crop detected", "x", rect.X, "y", rect.Y, "w", rect.W, "h", rect.H, "output", d.opts.OutputPath)
	return result, nil
}

// checkDuration rejects timestamps past the end of the video. Probe failures
// only warn; ffmpeg gets the final say.
func (d *Detector) checkDuration(ctx context.Context, videoPath string) error {
	probe, err := d.prober.Probe(ctx, videoPath)
	if err != nil {
		logger.Warn("Probe failed, skipping duration check", "video", videoPath, "error", err)
		return nil
	}
	logger.Debug("Video probed",
		"video", videoPath,
		"duration", probe.Duration,
		"size", fmt.Sprintf("%dx%d", probe.Width, probe.Height),
		"frame_rate", probe.FrameRate,
		"codec", probe.VideoCodec,
	)
	return ffmpeg.CheckTimestamp(probe, d.opts.Timestamp)
}

// record saves result to history. The params file is already written, so a
// history failure is logged rather than failing the run.
func (d *Detector) record(r *Result) {
	if d.history == nil {
		return
	}
	det := &store.Detection{
		VideoPath:   r.VideoPath,
		Timestamp:   r.Timestamp,
		X:           r.Rect.X,
		Y:           r.Rect.Y,
		W:           r.Rect.W,
		H:           r.Rect.H,
		FrameWidth:  r.FrameBounds.Dx(),
		FrameHeight: r.FrameBounds.Dy(),
		CreatedAt:   r.DetectedAt,
	}
	if err := d.history.SaveDetection(det); err != nil {
		logger.Warn("Could not record detection", "video", r.VideoPath, "error", err)
		return
	}
	logger.Debug("Detection recorded", "id", det.ID)
}

func stepError(step Step, err error) error {
	return fmt.Errorf("%s: %w", step, err)
}
