package store

import "time"

// Detection is one recorded crop analysis of a video.
type Detection struct {
	ID          string    `json:"id"`
	VideoPath   string    `json:"video_path"`
	Timestamp   string    `json:"timestamp"` // HH:MM:SS position of the analysed frame
	X           int       `json:"x"`
	Y           int       `json:"y"`
	W           int       `json:"w"`
	H           int       `json:"h"`
	FrameWidth  int       `json:"frame_width"`
	FrameHeight int       `json:"frame_height"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store defines the persistence interface for detection history.
// Implementations must be safe for concurrent use.
type Store interface {
	// SaveDetection persists a detection, assigning an ID and CreatedAt if unset.
	SaveDetection(d *Detection) error

	// ListDetections returns detections for videoPath, newest first.
	// An empty videoPath lists every video. limit <= 0 means no limit.
	ListDetections(videoPath string, limit int) ([]*Detection, error)

	// Close closes the store and releases resources.
	Close() error
}
