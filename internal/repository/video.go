// Package repository provides the video-table data access the worker needs:
// find one row by id, and write back the post-transcode state.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

type Status string

const (
	StatusUploaded  Status = "uploaded"
	StatusProcessed Status = "processed"
	StatusDeleted   Status = "deleted"
	StatusFailed    Status = "failed"
)

// ErrNotFound is returned by FindByID when no row matches the given id.
var ErrNotFound = errors.New("repository: video not found")

// Video is the authoritative record the worker reads and writes.
type Video struct {
	ID            string
	OwnerID       string
	RawBlobID     string
	ProcessedID   sql.NullString
	Title         string
	Status        Status
	UploadedAt    time.Time
	ProcessedAt   sql.NullTime
	OriginalURL   string
	ProcessedURL  sql.NullString
	VoteCount     int
}

// Update is the target state written by a single UPDATE statement; the
// repository never reads before writing.
type Update struct {
	Status       Status
	ProcessedID  sql.NullString
	ProcessedURL sql.NullString
	ProcessedAt  sql.NullTime
}

// Repository is the capability the process-task use case is written
// against.
type Repository interface {
	FindByID(ctx context.Context, id string) (Video, error)
	Update(ctx context.Context, id string, upd Update) error
}

// PostgresRepository implements Repository over database/sql + lib/pq.
type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) FindByID(ctx context.Context, id string) (Video, error) {
	const query = `
		SELECT id, owner_id, raw_blob_id, processed_blob_id, title, status,
		       uploaded_at, processed_at, original_url, processed_url, vote_count
		FROM videos
		WHERE id = $1`

	var v Video
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&v.ID, &v.OwnerID, &v.RawBlobID, &v.ProcessedID, &v.Title, &v.Status,
		&v.UploadedAt, &v.ProcessedAt, &v.OriginalURL, &v.ProcessedURL, &v.VoteCount,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Video{}, ErrNotFound
	}
	if err != nil {
		return Video{}, err
	}
	return v, nil
}

// Update writes status, processed blob id, processed URL, and processed-at
// in a single statement keyed by id. It does not read-modify-write; the
// caller supplies the complete target state.
func (r *PostgresRepository) Update(ctx context.Context, id string, upd Update) error {
	const query = `
		UPDATE videos
		SET status = $2, processed_blob_id = $3, processed_url = $4, processed_at = $5
		WHERE id = $1`

	_, err := r.db.ExecContext(ctx, query, id, upd.Status, upd.ProcessedID, upd.ProcessedURL, upd.ProcessedAt)
	return err
}
