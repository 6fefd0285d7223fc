// Package pipeline runs the enrichment steps for one uploaded image:
// metadata extraction, thumbnail generation, caption generation. Steps
// run strictly in order and fail fast; a job is binary success/failed
// with no partial results and no retries.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"pictor/internal/caption"
	"pictor/internal/codec"
	"pictor/internal/metrics"
	"pictor/internal/model"
	"pictor/internal/registry"
	"pictor/internal/thumbs"
)

// Step identifies which pipeline step failed. Step kinds are internal:
// they feed logs and metrics, while clients only ever see the error
// message on the failed record.
type Step string

const (
	StepLoadOriginal Step = "load_original"
	StepMetadata     Step = "metadata_extraction"
	StepThumbnail    Step = "thumbnail_generation"
	StepCaption      Step = "caption"
	StepTimeout      Step = "timeout"
)

// Executor runs the full pipeline for a single job. It never holds any
// registry lock across collaborator calls: the registry is only
// touched for the final terminal transition.
type Executor struct {
	registry     *registry.Registry
	codec        codec.ImageCodec
	captioner    caption.Model
	thumbs       *thumbs.Store
	originalsDir string
	logger       *slog.Logger
}

// NewExecutor wires the executor's collaborators. originalsDir is
// where the upload handler stored the raw image bytes.
func NewExecutor(reg *registry.Registry, c codec.ImageCodec, cm caption.Model, th *thumbs.Store, originalsDir string, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		registry:     reg,
		codec:        c,
		captioner:    cm,
		thumbs:       th,
		originalsDir: originalsDir,
		logger:       logger,
	}
}

// Process runs all steps for one job and transitions it to a terminal
// state. Collaborator failures are converted into a failed job, never
// propagated.
func (e *Executor) Process(ctx context.Context, rec model.JobRecord) {
	data, err := os.ReadFile(filepath.Join(e.originalsDir, rec.StoredName()))
	if err != nil {
		e.fail(ctx, rec, StepLoadOriginal, fmt.Errorf("load original image: %w", err))
		return
	}

	md, err := e.codec.ExtractMetadata(data)
	if err != nil {
		e.fail(ctx, rec, StepMetadata, fmt.Errorf("metadata extraction failed: %w", err))
		return
	}

	refs := make(map[model.Variant]string, 2)
	for _, variant := range model.Variants() {
		if err := ctx.Err(); err != nil {
			e.fail(ctx, rec, StepThumbnail, err)
			return
		}
		thumbBytes, err := e.codec.Resize(data, variant)
		if err != nil {
			e.fail(ctx, rec, StepThumbnail, fmt.Errorf("thumbnail generation failed for %s: %w", variant, err))
			return
		}
		ref, err := e.thumbs.Put(ctx, rec.ID, variant, thumbBytes)
		if err != nil {
			e.fail(ctx, rec, StepThumbnail, fmt.Errorf("thumbnail generation failed for %s: %w", variant, err))
			return
		}
		refs[variant] = ref
	}

	if err := ctx.Err(); err != nil {
		e.fail(ctx, rec, StepCaption, err)
		return
	}
	capText, err := e.captioner.Caption(ctx, data, rec.MimeType)
	if err != nil {
		e.fail(ctx, rec, StepCaption, fmt.Errorf("caption generation failed: %w", err))
		return
	}

	if err := e.registry.Complete(ctx, rec.ID, md, capText, refs); err != nil {
		// An invalid transition here means another writer touched the
		// record; that is a registry-contract bug, not a job failure.
		e.logger.Error("complete job", "job_id", rec.ID.String(), "error", err)
		return
	}

	metrics.RecordJobProcessed("success")
	e.logger.Info("job processed",
		"job_id", rec.ID.String(),
		"width", md.Width,
		"height", md.Height,
		"format", md.Format,
	)
}

// fail records the terminal failure for the job. The write uses a
// fresh context so it still lands when the task context is already
// past its deadline.
func (e *Executor) fail(ctx context.Context, rec model.JobRecord, step Step, err error) {
	if ctxErr := ctx.Err(); errors.Is(ctxErr, context.DeadlineExceeded) {
		step = StepTimeout
		err = errors.New("processing timed out")
	}

	metrics.RecordStepFailure(string(step))
	metrics.RecordJobProcessed("failed")
	e.logger.Error("pipeline step failed",
		"job_id", rec.ID.String(),
		"step", string(step),
		"error", err,
	)

	if ferr := e.registry.Fail(context.Background(), rec.ID, err.Error()); ferr != nil {
		e.logger.Error("fail job", "job_id", rec.ID.String(), "error", ferr)
	}
}
