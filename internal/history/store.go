// Package history persists OCR job records and per-page thumbnails.
//
// Layout under the data directory:
//
//	<data>/
//	├── history.db                  # SQLite database
//	└── static/images/<job>/page_N.jpg
//
// History is best-effort by design: the pipeline records what it can and the
// service keeps serving OCR traffic when the database is unavailable.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"github.com/rs/zerolog"
)

// Job statuses.
const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Job is one recorded processing run.
type Job struct {
	ID           string     `json:"id"`
	Filename     string     `json:"filename"`
	Status       string     `json:"status"`
	ErrorMessage *string    `json:"error_message"`
	TotalPages   int        `json:"total_pages"`
	FullText     *string    `json:"full_text"`
	CreatedAt    time.Time  `json:"created_at"`
	CompletedAt  *time.Time `json:"completed_at"`
	Pages        []PageRec  `json:"pages,omitempty"`
}

// PageRec is one processed page within a job.
type PageRec struct {
	ID         string    `json:"id"`
	JobID      string    `json:"job_id"`
	PageNumber int       `json:"page_number"`
	ImagePath  *string   `json:"image_path"`
	Text       string    `json:"text"`
	Confidence float64   `json:"confidence"`
	CreatedAt  time.Time `json:"created_at"`
}

// JobList is a page of jobs plus pagination info.
type JobList struct {
	Jobs  []Job `json:"jobs"`
	Total int   `json:"total"`
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Pages int   `json:"pages"`
}

// Stats aggregates over all recorded jobs.
type Stats struct {
	TotalJobs      int     `json:"total_jobs"`
	CompletedJobs  int     `json:"completed_jobs"`
	FailedJobs     int     `json:"failed_jobs"`
	PagesProcessed int     `json:"pages_processed"`
	MeanConfidence float64 `json:"mean_confidence"`
}

// Store handles persistence of job history.
type Store struct {
	db        *sql.DB
	imagesDir string
	log       zerolog.Logger
}

// New opens (or creates) the history database under dataDir and ensures the
// schema and image directories exist.
func New(dataDir string, log zerolog.Logger) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	imagesDir := filepath.Join(dataDir, "static", "images")
	if err := os.MkdirAll(imagesDir, 0755); err != nil {
		return nil, fmt.Errorf("create images directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "history.db")
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &Store{db: db, imagesDir: imagesDir, log: log}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS processing_jobs (
		id TEXT PRIMARY KEY,
		filename TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'processing',
		error_message TEXT,
		total_pages INTEGER NOT NULL DEFAULT 0,
		full_text TEXT,
		created_at DATETIME NOT NULL,
		completed_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_jobs_created ON processing_jobs(created_at);

	CREATE TABLE IF NOT EXISTS processing_pages (
		id TEXT PRIMARY KEY,
		job_id TEXT NOT NULL REFERENCES processing_jobs(id) ON DELETE CASCADE,
		page_number INTEGER NOT NULL,
		image_path TEXT,
		text TEXT,
		confidence REAL,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_pages_job ON processing_pages(job_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	return s.db.Close()
}

// ImagesDir is the root under which page thumbnails are stored.
func (s *Store) ImagesDir() string { return s.imagesDir }

// CreateJob inserts a new job in the processing state and returns its ID.
func (s *Store) CreateJob(ctx context.Context, filename string) (string, error) {
	id := uuid.New().String()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO processing_jobs (id, filename, status, created_at) VALUES (?, ?, ?, ?)`,
		id, filename, StatusProcessing, time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("create job: %w", err)
	}
	return id, nil
}

// AddPage records one processed page. thumbSrc, when non-empty, names a page
// image on disk to store as a thumbnail; thumbnail failures only drop the
// image, never the record.
func (s *Store) AddPage(ctx context.Context, jobID string, pageNumber int, thumbSrc, text string, confidence float64) error {
	var imagePath *string
	if thumbSrc != "" {
		dest := filepath.Join(s.imagesDir, jobID, fmt.Sprintf("page_%d.jpg", pageNumber))
		if err := SaveThumbnail(thumbSrc, dest); err != nil {
			s.log.Warn().Err(err).Str("job_id", jobID).Int("page", pageNumber).
				Msg("thumbnail write failed")
		} else {
			web := fmt.Sprintf("/static/images/%s/page_%d.jpg", jobID, pageNumber)
			imagePath = &web
		}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO processing_pages (id, job_id, page_number, image_path, text, confidence, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), jobID, pageNumber, imagePath, text, confidence, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("add page %d: %w", pageNumber, err)
	}
	return nil
}

// CompleteJob marks a job completed with its final text and page count.
func (s *Store) CompleteJob(ctx context.Context, jobID, fullText string, totalPages int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE processing_jobs SET status = ?, full_text = ?, total_pages = ?, completed_at = ? WHERE id = ?`,
		StatusCompleted, fullText, totalPages, time.Now().UTC(), jobID)
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	return requireRow(res, jobID)
}

// FailJob marks a job failed with the error detail.
func (s *Store) FailJob(ctx context.Context, jobID, message string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE processing_jobs SET status = ?, error_message = ?, completed_at = ? WHERE id = ?`,
		StatusFailed, message, time.Now().UTC(), jobID)
	if err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	return requireRow(res, jobID)
}

// ListJobs returns jobs newest-first with optional filename substring search.
// page is 1-indexed.
func (s *Store) ListJobs(ctx context.Context, page, limit int, search string) (JobList, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	where := ""
	args := []any{}
	if search != "" {
		where = " WHERE filename LIKE ?"
		args = append(args, "%"+search+"%")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM processing_jobs"+where, args...).Scan(&total); err != nil {
		return JobList{}, fmt.Errorf("count jobs: %w", err)
	}

	query := `SELECT id, filename, status, error_message, total_pages, full_text, created_at, completed_at
		FROM processing_jobs` + where + ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, (page-1)*limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return JobList{}, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	list := JobList{Jobs: []Job{}, Total: total, Page: page, Limit: limit, Pages: (total + limit - 1) / limit}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return JobList{}, err
		}
		list.Jobs = append(list.Jobs, job)
	}
	return list, rows.Err()
}

// GetJob returns one job with its pages in page order, or sql.ErrNoRows.
func (s *Store) GetJob(ctx context.Context, jobID string) (Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, filename, status, error_message, total_pages, full_text, created_at, completed_at
		 FROM processing_jobs WHERE id = ?`, jobID)
	job, err := scanJob(row)
	if err != nil {
		return Job{}, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, job_id, page_number, image_path, text, confidence, created_at
		 FROM processing_pages WHERE job_id = ? ORDER BY page_number`, jobID)
	if err != nil {
		return Job{}, fmt.Errorf("load pages: %w", err)
	}
	defer rows.Close()

	job.Pages = []PageRec{}
	for rows.Next() {
		var p PageRec
		var imagePath, text sql.NullString
		var conf sql.NullFloat64
		if err := rows.Scan(&p.ID, &p.JobID, &p.PageNumber, &imagePath, &text, &conf, &p.CreatedAt); err != nil {
			return Job{}, err
		}
		if imagePath.Valid {
			p.ImagePath = &imagePath.String
		}
		p.Text = text.String
		p.Confidence = conf.Float64
		job.Pages = append(job.Pages, p)
	}
	return job, rows.Err()
}

// DeleteJob removes a job, its page rows, and its thumbnail directory.
// Returns false when the job does not exist.
func (s *Store) DeleteJob(ctx context.Context, jobID string) (bool, error) {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM processing_pages WHERE job_id = ?`, jobID); err != nil {
		return false, fmt.Errorf("delete pages: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM processing_jobs WHERE id = ?`, jobID)
	if err != nil {
		return false, fmt.Errorf("delete job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}

	if err := os.RemoveAll(filepath.Join(s.imagesDir, jobID)); err != nil {
		s.log.Warn().Err(err).Str("job_id", jobID).Msg("thumbnail cleanup failed")
	}
	return true, nil
}

// GetStats aggregates job and page counters.
func (s *Store) GetStats(ctx context.Context) (Stats, error) {
	var stats Stats
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0)
		FROM processing_jobs`).
		Scan(&stats.TotalJobs, &stats.CompletedJobs, &stats.FailedJobs)
	if err != nil {
		return Stats{}, fmt.Errorf("job stats: %w", err)
	}

	var meanConf sql.NullFloat64
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), AVG(confidence) FROM processing_pages`).
		Scan(&stats.PagesProcessed, &meanConf)
	if err != nil {
		return Stats{}, fmt.Errorf("page stats: %w", err)
	}
	stats.MeanConfidence = meanConf.Float64
	return stats, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (Job, error) {
	var job Job
	var errMsg, fullText sql.NullString
	var completedAt sql.NullTime
	err := row.Scan(&job.ID, &job.Filename, &job.Status, &errMsg, &job.TotalPages, &fullText,
		&job.CreatedAt, &completedAt)
	if err != nil {
		return Job{}, err
	}
	if errMsg.Valid {
		job.ErrorMessage = &errMsg.String
	}
	if fullText.Valid {
		job.FullText = &fullText.String
	}
	if completedAt.Valid {
		t := completedAt.Time
		job.CompletedAt = &t
	}
	return job, nil
}

func requireRow(res sql.Result, jobID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("job %s not found", jobID)
	}
	return nil
}
