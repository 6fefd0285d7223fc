// Package thumbs stores generated thumbnails addressed by
// (job id, size variant). References are derived deterministically
// from the key, so retrieval needs no indirection table.
package thumbs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"pictor/internal/metrics"
	"pictor/internal/model"
)

var (
	// ErrNotFound is returned when no thumbnail exists for the key:
	// the job is still processing, it failed, or the id is unknown.
	ErrNotFound = errors.New("thumbnail not found")

	// ErrInvalidVariant is returned for variants outside the closed
	// {small, medium} set.
	ErrInvalidVariant = errors.New("invalid size variant")
)

const cacheTTL = time.Hour

// Store persists thumbnails on the filesystem, with an optional
// read-through Redis byte cache in front of it. Writes to distinct
// (job id, variant) keys land in distinct files and need no global
// lock.
type Store struct {
	dir string
	rdb *redis.Client
}

// New creates a Store rooted at <dataDir>/thumbs. rdb may be nil to
// disable caching.
func New(dataDir string, rdb *redis.Client) *Store {
	return &Store{dir: filepath.Join(dataDir, "thumbs"), rdb: rdb}
}

// Put persists the thumbnail bytes and returns the opaque storage
// reference for the key.
func (s *Store) Put(ctx context.Context, jobID uuid.UUID, variant model.Variant, data []byte) (string, error) {
	if !model.ValidVariant(variant) {
		return "", fmt.Errorf("%w: %q", ErrInvalidVariant, variant)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create thumbs directory: %w", err)
	}

	ref := refFor(jobID, variant)
	if err := os.WriteFile(filepath.Join(s.dir, ref), data, 0o644); err != nil {
		return "", fmt.Errorf("write thumbnail: %w", err)
	}

	if s.rdb != nil {
		// Cache failures never fail the write; the file is the source
		// of truth.
		_ = s.rdb.Set(ctx, cacheKey(jobID, variant), data, cacheTTL).Err()
	}
	return ref, nil
}

// Get retrieves the thumbnail bytes for the key, consulting the cache
// first when one is configured.
func (s *Store) Get(ctx context.Context, jobID uuid.UUID, variant model.Variant) ([]byte, error) {
	if !model.ValidVariant(variant) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidVariant, variant)
	}

	if s.rdb != nil {
		if data, err := s.rdb.Get(ctx, cacheKey(jobID, variant)).Bytes(); err == nil {
			metrics.RecordThumbnailCache(true)
			return data, nil
		}
		metrics.RecordThumbnailCache(false)
	}

	data, err := os.ReadFile(filepath.Join(s.dir, refFor(jobID, variant)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: job %s variant %s", ErrNotFound, jobID, variant)
		}
		return nil, fmt.Errorf("read thumbnail: %w", err)
	}

	if s.rdb != nil {
		_ = s.rdb.Set(ctx, cacheKey(jobID, variant), data, cacheTTL).Err()
	}
	return data, nil
}

func refFor(jobID uuid.UUID, variant model.Variant) string {
	return jobID.String() + "_" + string(variant) + ".jpg"
}

func cacheKey(jobID uuid.UUID, variant model.Variant) string {
	return "thumb:" + jobID.String() + ":" + string(variant)
}
