package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"pictor/internal/model"
)

// RecordStore is the durable persistence capability behind the job
// registry. The registry owns all in-memory state and transition
// checks; the store only mirrors records so they survive restarts.
type RecordStore interface {
	// InsertJob persists a freshly created record.
	InsertJob(ctx context.Context, rec model.JobRecord) error
	// UpdateJobTerminal writes the terminal fields of a record that
	// has already transitioned to success or failed.
	UpdateJobTerminal(ctx context.Context, rec model.JobRecord) error
	// ListJobs returns every persisted record, ordered by created_at.
	ListJobs(ctx context.Context) ([]model.JobRecord, error)
	// Ping reports whether the backing storage is reachable.
	Ping(ctx context.Context) error
}

// Store is the Postgres-backed RecordStore over a shared *sql.DB with
// pooling.
type Store struct {
	DB *sql.DB
}

// New creates a Store on an already-opened database handle.
func New(database *sql.DB) *Store {
	return &Store{DB: database}
}

func (s *Store) InsertJob(ctx context.Context, rec model.JobRecord) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO images (id, original_filename, mime_type, size_bytes, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.ID, rec.OriginalFileName, rec.MimeType, rec.SizeBytes, string(rec.Status), rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (s *Store) UpdateJobTerminal(ctx context.Context, rec model.JobRecord) error {
	var width, height sql.NullInt32
	var format, caption, thumbSmall, thumbMedium, errMsg sql.NullString
	if rec.Metadata != nil {
		width = sql.NullInt32{Int32: int32(rec.Metadata.Width), Valid: true}
		height = sql.NullInt32{Int32: int32(rec.Metadata.Height), Valid: true}
		format = sql.NullString{String: rec.Metadata.Format, Valid: true}
	}
	if rec.Caption != "" {
		caption = sql.NullString{String: rec.Caption, Valid: true}
	}
	if ref, ok := rec.ThumbnailRefs[model.VariantSmall]; ok {
		thumbSmall = sql.NullString{String: ref, Valid: true}
	}
	if ref, ok := rec.ThumbnailRefs[model.VariantMedium]; ok {
		thumbMedium = sql.NullString{String: ref, Valid: true}
	}
	if rec.Error != "" {
		errMsg = sql.NullString{String: rec.Error, Valid: true}
	}

	var processedAt sql.NullTime
	if rec.ProcessedAt != nil {
		processedAt = sql.NullTime{Time: *rec.ProcessedAt, Valid: true}
	}

	res, err := s.DB.ExecContext(ctx, `
		UPDATE images
		SET status=$1, processed_at=$2, processing_seconds=$3,
		    width=$4, height=$5, format=$6, caption=$7,
		    thumb_small_ref=$8, thumb_medium_ref=$9, error=$10
		WHERE id=$11`,
		string(rec.Status), processedAt, rec.ProcessingDurationSeconds,
		width, height, format, caption,
		thumbSmall, thumbMedium, errMsg,
		rec.ID,
	)
	if err != nil {
		return fmt.Errorf("update job terminal: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update job terminal: no row for id %s", rec.ID)
	}
	return nil
}

func (s *Store) ListJobs(ctx context.Context) ([]model.JobRecord, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, original_filename, mime_type, size_bytes, status, created_at,
		       processed_at, processing_seconds, width, height, format, caption,
		       thumb_small_ref, thumb_medium_ref, error
		FROM images
		ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var out []model.JobRecord
	for rows.Next() {
		rec, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.DB.PingContext(ctx)
}

func scanJob(rows *sql.Rows) (model.JobRecord, error) {
	var rec model.JobRecord
	var id uuid.UUID
	var status string
	var processedAt sql.NullTime
	var processingSeconds sql.NullFloat64
	var width, height sql.NullInt32
	var format, caption, thumbSmall, thumbMedium, errMsg sql.NullString

	err := rows.Scan(
		&id, &rec.OriginalFileName, &rec.MimeType, &rec.SizeBytes, &status, &rec.CreatedAt,
		&processedAt, &processingSeconds, &width, &height, &format, &caption,
		&thumbSmall, &thumbMedium, &errMsg,
	)
	if err != nil {
		return model.JobRecord{}, err
	}

	rec.ID = id
	rec.Status = model.Status(status)
	if processedAt.Valid {
		t := processedAt.Time
		rec.ProcessedAt = &t
	}
	if processingSeconds.Valid {
		rec.ProcessingDurationSeconds = processingSeconds.Float64
	}
	if width.Valid && height.Valid && format.Valid {
		rec.Metadata = &model.ImageMetadata{
			Width:  int(width.Int32),
			Height: int(height.Int32),
			Format: format.String,
		}
	}
	if caption.Valid {
		rec.Caption = caption.String
	}
	if thumbSmall.Valid || thumbMedium.Valid {
		rec.ThumbnailRefs = make(map[model.Variant]string, 2)
		if thumbSmall.Valid {
			rec.ThumbnailRefs[model.VariantSmall] = thumbSmall.String
		}
		if thumbMedium.Valid {
			rec.ThumbnailRefs[model.VariantMedium] = thumbMedium.String
		}
	}
	if errMsg.Valid {
		rec.Error = errMsg.String
	}
	return rec, nil
}
