package ffmpeg

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"time"
)

// DefaultTimestamp is where the frame is taken when nothing else is configured.
const DefaultTimestamp = "00:00:05"

var timestampRe = regexp.MustCompile(`^(\d{2,}):([0-5]\d):([0-5]\d)$`)

// maxSeconds is the longest position a time.Duration can hold.
const maxSeconds = math.MaxInt64 / int64(time.Second)

// ParseTimestamp parses an HH:MM:SS position into a duration.
// Hours may have more than two digits; minutes and seconds must be below 60.
func ParseTimestamp(s string) (time.Duration, error) {
	m := timestampRe.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("%w: %q (want HH:MM:SS)", ErrInvalidTimestamp, s)
	}
	hours, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil || hours > maxSeconds/3600 {
		return 0, fmt.Errorf("%w: %q: hours out of range", ErrInvalidTimestamp, s)
	}
	minutes, _ := strconv.ParseInt(m[2], 10, 64)
	seconds, _ := strconv.ParseInt(m[3], 10, 64)

	total := hours*3600 + minutes*60 + seconds
	if total > maxSeconds {
		return 0, fmt.Errorf("%w: %q: out of range", ErrInvalidTimestamp, s)
	}
	return time.Duration(total) * time.Second, nil
}

// FormatTimestamp renders d as HH:MM:SS, truncating sub-second precision.
// Negative durations render as 00:00:00.
func FormatTimestamp(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total/60)%60, total%60)
}
