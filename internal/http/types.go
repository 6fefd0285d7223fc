package http

import (
	"strings"
	"time"

	"pictor/internal/model"
)

// UploadResponse is returned by POST /api/images as soon as the job is
// registered, before any pipeline step runs.
type UploadResponse struct {
	ImageID string `json:"image_id"`
	Status  string `json:"status"`
}

// ImageMetadataPayload is the metadata block exposed on successful
// jobs.
type ImageMetadataPayload struct {
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Format    string `json:"format"`
	SizeBytes int64  `json:"size_bytes"`
	Caption   string `json:"caption"`
}

// ImageData is the data block of an image envelope.
type ImageData struct {
	ImageID      string                `json:"image_id"`
	OriginalName string                `json:"original_name"`
	ProcessedAt  *string               `json:"processed_at"`
	Metadata     *ImageMetadataPayload `json:"metadata,omitempty"`
	Thumbnails   map[string]string     `json:"thumbnails,omitempty"`
}

// ImageEnvelope wraps every image response: status is the job status
// string, or "error" for request-level failures.
type ImageEnvelope struct {
	Status string     `json:"status"`
	Data   *ImageData `json:"data"`
	Error  *string    `json:"error"`
}

func errorEnvelope(msg string) ImageEnvelope {
	return ImageEnvelope{Status: "error", Error: &msg}
}

// envelopeFor renders a registry snapshot into the wire shape.
// Metadata and thumbnail URLs appear only on success; the error string
// only on failure.
func envelopeFor(baseURL string, rec model.JobRecord) ImageEnvelope {
	data := &ImageData{
		ImageID:      rec.ID.String(),
		OriginalName: rec.OriginalFileName,
	}
	if rec.ProcessedAt != nil {
		ts := rec.ProcessedAt.UTC().Format(time.RFC3339)
		data.ProcessedAt = &ts
	}

	if rec.Status == model.StatusSuccess && rec.Metadata != nil {
		data.Metadata = &ImageMetadataPayload{
			Width:     rec.Metadata.Width,
			Height:    rec.Metadata.Height,
			Format:    normalizeFormat(rec.Metadata.Format),
			SizeBytes: rec.SizeBytes,
			Caption:   rec.Caption,
		}
		data.Thumbnails = make(map[string]string, len(rec.ThumbnailRefs))
		for variant := range rec.ThumbnailRefs {
			data.Thumbnails[string(variant)] = baseURL + "/api/images/" + rec.ID.String() + "/thumbnails/" + string(variant)
		}
	}

	env := ImageEnvelope{Status: string(rec.Status), Data: data}
	if rec.Status == model.StatusFailed {
		msg := rec.Error
		env.Error = &msg
	}
	return env
}

// normalizeFormat lowercases the decoded format name and maps jpeg to
// jpg for API consistency with file extensions.
func normalizeFormat(format string) string {
	f := strings.ToLower(format)
	if f == "jpeg" {
		return "jpg"
	}
	return f
}
