package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const schemaVersion = 1

const schema = `
CREATE TABLE IF NOT EXISTS detections (
	id TEXT PRIMARY KEY,
	video_path TEXT NOT NULL,
	timestamp TEXT NOT NULL,
	x INTEGER NOT NULL,
	y INTEGER NOT NULL,
	w INTEGER NOT NULL,
	h INTEGER NOT NULL,
	frame_width INTEGER,
	frame_height INTEGER,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL,
	applied_at TEXT DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_detections_video_created ON detections(video_path, created_at);
`

const detectionColumns = `id, video_path, timestamp, x, y, w, h, frame_width, frame_height, created_at`

var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db   *sql.DB
	mu   sync.RWMutex // Protects concurrent access
	path string
}

// NewSQLiteStore creates a new SQLite-backed store.
// The database file is created if it doesn't exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// WAL so a concurrent -history read never blocks a detection write
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	var version int
	err = db.QueryRow("SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&version)
	switch {
	case err == sql.ErrNoRows:
		if _, err := db.Exec("INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
			db.Close()
			return nil, fmt.Errorf("insert schema version: %w", err)
		}
	case err != nil:
		db.Close()
		return nil, fmt.Errorf("check schema version: %w", err)
	case version > schemaVersion:
		db.Close()
		return nil, fmt.Errorf("database schema v%d is newer than supported v%d", version, schemaVersion)
	}

	return &SQLiteStore{db: db, path: dbPath}, nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

// SaveDetection persists a detection using INSERT OR REPLACE.
func (s *SQLiteStore) SaveDetection(d *Detection) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO detections (`+detectionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		d.ID, d.VideoPath, d.Timestamp, d.X, d.Y, d.W, d.H,
		nullInt(d.FrameWidth), nullInt(d.FrameHeight), formatTime(d.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("save detection: %w", err)
	}
	return nil
}

// ListDetections returns detections newest first.
func (s *SQLiteStore) ListDetections(videoPath string, limit int) ([]*Detection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}

	query := `SELECT ` + detectionColumns + ` FROM detections`
	args := []any{}
	if videoPath != "" {
		query += ` WHERE video_path = ?`
		args = append(args, videoPath)
	}
	query += ` ORDER BY created_at DESC, rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list detections: %w", err)
	}
	defer rows.Close()

	var list []*Detection
	for rows.Next() {
		d, err := scanDetection(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, d)
	}

	return list, rows.Err()
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDetection(row rowScanner) (*Detection, error) {
	var d Detection
	var frameWidth, frameHeight sql.NullInt64
	var createdAt string

	err := row.Scan(
		&d.ID, &d.VideoPath, &d.Timestamp, &d.X, &d.Y, &d.W, &d.H,
		&frameWidth, &frameHeight, &createdAt,
	)
	if err != nil {
		return nil, err
	}

	d.FrameWidth = int(frameWidth.Int64)
	d.FrameHeight = int(frameHeight.Int64)
	d.CreatedAt = parseTime(createdAt)
	return &d, nil
}

func nullInt(i int) interface{} {
	if i == 0 {
		return nil
	}
	return i
}

// Fixed-width fractions keep lexical order equal to time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, _ := time.Parse(timeLayout, s)
	return t
}
