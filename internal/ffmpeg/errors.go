package ffmpeg

import "errors"

// Sentinel errors for frame extraction.
// These can be checked with errors.Is().
var (
	ErrInvalidTimestamp    = errors.New("invalid timestamp")
	ErrTimestampOutOfRange = errors.New("timestamp beyond video duration")
	ErrExtractFailed       = errors.New("frame extraction failed")
	ErrProbeFailed         = errors.New("ffprobe failed")
)
