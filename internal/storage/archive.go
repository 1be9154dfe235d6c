package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotArchived is returned when no archive row exists for a job id.
var ErrNotArchived = errors.New("extraction not archived")

// Archive is the sqlite record of completed extractions. It outlives the
// job store's retention window so finished lyrics stay retrievable.
type Archive struct {
	db *sql.DB
}

// Entry is one archived extraction.
type Entry struct {
	JobID     string    `json:"job_id"`
	Filename  string    `json:"filename"`
	Language  string    `json:"language"`
	Duration  float64   `json:"duration_seconds"`
	WordCount int       `json:"word_count"`
	LocalPath string    `json:"local_path"`
	DriveURL  string    `json:"drive_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// NewArchive opens (and if needed initializes) the archive database.
func NewArchive(dbPath string) (*Archive, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS extractions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		job_id TEXT NOT NULL UNIQUE,
		filename TEXT NOT NULL,
		language TEXT,
		duration REAL,
		word_count INTEGER,
		local_path TEXT NOT NULL,
		drive_url TEXT,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_extractions_created_at ON extractions(created_at);
	`
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Archive{db: db}, nil
}

// Save inserts one completed extraction.
func (a *Archive) Save(e Entry) error {
	_, err := a.db.Exec(`
	INSERT INTO extractions (job_id, filename, language, duration, word_count, local_path, drive_url, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.JobID, e.Filename, e.Language, e.Duration, e.WordCount, e.LocalPath, e.DriveURL, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("save extraction: %w", err)
	}
	return nil
}

// Get retrieves an archived extraction by job id.
func (a *Archive) Get(jobID string) (*Entry, error) {
	row := a.db.QueryRow(`
	SELECT job_id, filename, language, duration, word_count, local_path, drive_url, created_at
	FROM extractions WHERE job_id = ?`, jobID)

	var e Entry
	var driveURL sql.NullString
	err := row.Scan(&e.JobID, &e.Filename, &e.Language, &e.Duration, &e.WordCount, &e.LocalPath, &driveURL, &e.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotArchived
	}
	if err != nil {
		return nil, fmt.Errorf("get extraction: %w", err)
	}
	e.DriveURL = driveURL.String
	return &e, nil
}

// List returns the most recent archived extractions.
func (a *Archive) List(limit int) ([]Entry, error) {
	rows, err := a.db.Query(`
	SELECT job_id, filename, language, duration, word_count, local_path, drive_url, created_at
	FROM extractions ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list extractions: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var driveURL sql.NullString
		if err := rows.Scan(&e.JobID, &e.Filename, &e.Language, &e.Duration, &e.WordCount, &e.LocalPath, &driveURL, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan extraction: %w", err)
		}
		e.DriveURL = driveURL.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Purge deletes archive rows older than cutoff and returns how many.
func (a *Archive) Purge(cutoff time.Time) (int64, error) {
	res, err := a.db.Exec(`DELETE FROM extractions WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge extractions: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the database connection.
func (a *Archive) Close() error {
	return a.db.Close()
}
