// Package registry holds the authoritative, concurrency-safe index of
// image job records. All mutation goes through Create, Complete and
// Fail; each is atomic with respect to a single record, and the lock
// is never held across a RecordStore call.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"pictor/internal/model"
	"pictor/internal/store"
)

var (
	// ErrNotFound is returned by Get when no record exists for an id.
	ErrNotFound = errors.New("job not found")

	// ErrInvalidTransition is returned when a terminal transition is
	// requested for a record that is missing or already terminal. It
	// indicates a caller bug, not an expected runtime condition.
	ErrInvalidTransition = errors.New("invalid job status transition")
)

// Registry is the shared job index. Reads return deep-copied
// snapshots; a single mutex is enough for this workload (small
// records, low write frequency).
type Registry struct {
	mu      sync.RWMutex
	records map[uuid.UUID]*model.JobRecord

	store  store.RecordStore
	logger *slog.Logger
	now    func() time.Time
}

// New creates a Registry backed by the given RecordStore.
func New(st store.RecordStore, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		records: make(map[uuid.UUID]*model.JobRecord),
		store:   st,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Load populates the in-memory index from the RecordStore. Call once
// at startup before serving traffic.
func (r *Registry) Load(ctx context.Context) error {
	recs, err := r.store.ListJobs(ctx)
	if err != nil {
		return fmt.Errorf("load records: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range recs {
		rec := rec
		r.records[rec.ID] = &rec
	}
	return nil
}

// FailInterrupted marks every record still in processing as failed.
// Pipeline tasks do not survive a restart and there are no retries, so
// a processing record at boot can never finish.
func (r *Registry) FailInterrupted(ctx context.Context) int {
	var stale []uuid.UUID
	r.mu.RLock()
	for id, rec := range r.records {
		if rec.Status == model.StatusProcessing {
			stale = append(stale, id)
		}
	}
	r.mu.RUnlock()

	for _, id := range stale {
		if err := r.Fail(ctx, id, "processing interrupted by restart"); err != nil {
			r.logger.Error("fail interrupted job", "job_id", id.String(), "error", err)
		}
	}
	return len(stale)
}

// Create allocates a fresh id, stores a new processing record and
// returns a snapshot of it. Safe under concurrent invocation; ids
// never collide.
func (r *Registry) Create(ctx context.Context, fileName, mimeType string, sizeBytes int64) (model.JobRecord, error) {
	rec := &model.JobRecord{
		Status:           model.StatusProcessing,
		OriginalFileName: fileName,
		MimeType:         mimeType,
		SizeBytes:        sizeBytes,
		CreatedAt:        r.now(),
	}

	r.mu.Lock()
	for {
		rec.ID = newID()
		if _, taken := r.records[rec.ID]; !taken {
			break
		}
	}
	r.records[rec.ID] = rec
	snapshot := rec.Clone()
	r.mu.Unlock()

	if err := r.store.InsertJob(ctx, snapshot); err != nil {
		r.mu.Lock()
		delete(r.records, snapshot.ID)
		r.mu.Unlock()
		return model.JobRecord{}, fmt.Errorf("persist job: %w", err)
	}
	return snapshot, nil
}

// Get returns an immutable snapshot of the record at call time.
func (r *Registry) Get(id uuid.UUID) (model.JobRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[id]
	if !ok {
		return model.JobRecord{}, ErrNotFound
	}
	return rec.Clone(), nil
}

// List returns a point-in-time snapshot of all records, ordered by
// creation time ascending (id as tie-break for records created within
// the same tick).
func (r *Registry) List() []model.JobRecord {
	r.mu.RLock()
	out := make([]model.JobRecord, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec.Clone())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

// Complete atomically transitions a processing record to success and
// records the enrichment artifacts. Returns ErrInvalidTransition if
// the record is missing or already terminal.
func (r *Registry) Complete(ctx context.Context, id uuid.UUID, md model.ImageMetadata, caption string, refs map[model.Variant]string) error {
	snapshot, err := r.transition(id, func(rec *model.JobRecord) {
		rec.Status = model.StatusSuccess
		m := md
		rec.Metadata = &m
		rec.Caption = caption
		rec.ThumbnailRefs = make(map[model.Variant]string, len(refs))
		for k, v := range refs {
			rec.ThumbnailRefs[k] = v
		}
	})
	if err != nil {
		return err
	}
	return r.persistTerminal(ctx, snapshot)
}

// Fail atomically transitions a processing record to failed with the
// given error message. Same transition discipline as Complete.
func (r *Registry) Fail(ctx context.Context, id uuid.UUID, errorMessage string) error {
	snapshot, err := r.transition(id, func(rec *model.JobRecord) {
		rec.Status = model.StatusFailed
		rec.Error = errorMessage
	})
	if err != nil {
		return err
	}
	return r.persistTerminal(ctx, snapshot)
}

// transition applies the terminal mutation under the lock. Exactly one
// caller can win the processing -> terminal transition for a record.
func (r *Registry) transition(id uuid.UUID, apply func(*model.JobRecord)) (model.JobRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return model.JobRecord{}, fmt.Errorf("job %s: %w", id, ErrInvalidTransition)
	}
	if rec.Status.Terminal() {
		return model.JobRecord{}, fmt.Errorf("job %s already %s: %w", id, rec.Status, ErrInvalidTransition)
	}

	now := r.now()
	rec.ProcessedAt = &now
	rec.ProcessingDurationSeconds = now.Sub(rec.CreatedAt).Seconds()
	apply(rec)
	return rec.Clone(), nil
}

// persistTerminal mirrors a completed transition to the RecordStore.
// The in-memory transition has already happened and stands either way;
// a persistence failure is surfaced so callers can log it.
func (r *Registry) persistTerminal(ctx context.Context, rec model.JobRecord) error {
	if err := r.store.UpdateJobTerminal(ctx, rec); err != nil {
		r.logger.Error("persist terminal transition", "job_id", rec.ID.String(), "status", string(rec.Status), "error", err)
		return fmt.Errorf("persist terminal transition: %w", err)
	}
	return nil
}

func newID() uuid.UUID {
	if id, err := uuid.NewV7(); err == nil {
		return id
	}
	return uuid.New()
}
