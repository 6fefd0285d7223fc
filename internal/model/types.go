package model

import (
	"time"

	"github.com/google/uuid"
)

// Status represents the lifecycle state of an image job. A job starts
// as processing and transitions exactly once to success or failed;
// terminal states are never left.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusSuccess    Status = "success"
	StatusFailed     Status = "failed"
)

// Terminal reports whether the status is success or failed.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// Variant names a thumbnail size. The set is closed: only small and
// medium exist.
type Variant string

const (
	VariantSmall  Variant = "small"
	VariantMedium Variant = "medium"
)

// Variants returns the closed set of thumbnail variants in a stable order.
func Variants() []Variant {
	return []Variant{VariantSmall, VariantMedium}
}

// ValidVariant reports whether v is one of the known size variants.
func ValidVariant(v Variant) bool {
	return v == VariantSmall || v == VariantMedium
}

// ImageMetadata holds the dimensions and decoded format of an image,
// populated by the pipeline on success.
type ImageMetadata struct {
	Width  int
	Height int
	Format string
}

// JobRecord is the registry's view of one uploaded image. Identity and
// upload attributes are immutable after creation; enrichment fields
// are written exactly once at the terminal transition.
type JobRecord struct {
	ID               uuid.UUID
	Status           Status
	OriginalFileName string
	MimeType         string
	SizeBytes        int64
	CreatedAt        time.Time

	// Set only at the terminal transition.
	ProcessedAt               *time.Time
	ProcessingDurationSeconds float64

	// Populated iff Status == StatusSuccess.
	Metadata      *ImageMetadata
	Caption       string
	ThumbnailRefs map[Variant]string

	// Populated iff Status == StatusFailed.
	Error string
}

// StoredName returns the file name under which the original upload
// bytes are kept. It is derived from the job id and mime type so no
// extra indirection needs to be persisted.
func (r JobRecord) StoredName() string {
	ext := ".png"
	if r.MimeType == "image/jpeg" {
		ext = ".jpg"
	}
	return r.ID.String() + ext
}

// Clone returns a deep copy of the record so callers can hand out
// snapshots without exposing shared mutable state.
func (r JobRecord) Clone() JobRecord {
	out := r
	if r.ProcessedAt != nil {
		t := *r.ProcessedAt
		out.ProcessedAt = &t
	}
	if r.Metadata != nil {
		m := *r.Metadata
		out.Metadata = &m
	}
	if r.ThumbnailRefs != nil {
		refs := make(map[Variant]string, len(r.ThumbnailRefs))
		for k, v := range r.ThumbnailRefs {
			refs[k] = v
		}
		out.ThumbnailRefs = refs
	}
	return out
}
