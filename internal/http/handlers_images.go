package http

import (
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"pictor/internal/config"
	"pictor/internal/model"
	"pictor/internal/pipeline"
	"pictor/internal/registry"
	"pictor/internal/thumbs"
)

func uploadImageHandler(c *fiber.Ctx) error {
	cfg := c.Locals("config").(*config.Config)
	reg := c.Locals("registry").(*registry.Registry)
	disp := c.Locals("dispatcher").(*pipeline.Dispatcher)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errorEnvelope("Missing multipart field 'file'."))
	}

	mimeType := fileHeader.Header.Get("Content-Type")
	if mimeType != "image/jpeg" && mimeType != "image/png" {
		return c.Status(fiber.StatusBadRequest).JSON(errorEnvelope("Only JPG and PNG are allowed."))
	}

	f, err := fileHeader.Open()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errorEnvelope("Unreadable upload."))
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errorEnvelope("Unreadable upload."))
	}
	if len(data) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(errorEnvelope("Empty upload."))
	}

	rec, err := reg.Create(c.Context(), fileHeader.Filename, mimeType, int64(len(data)))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(errorEnvelope("Failed to register upload."))
	}

	originalsDir := filepath.Join(cfg.Storage.DataDir, "originals")
	if err := os.MkdirAll(originalsDir, 0o755); err == nil {
		err = os.WriteFile(filepath.Join(originalsDir, rec.StoredName()), data, 0o644)
	}
	if err != nil {
		// The record exists but its bytes never landed; the pipeline
		// could only fail later anyway, so fail it now.
		_ = reg.Fail(c.Context(), rec.ID, "store original image: "+err.Error())
		return c.Status(fiber.StatusInternalServerError).JSON(errorEnvelope("Failed to store upload."))
	}

	disp.Dispatch(rec)

	if loggerVal := c.Locals("logger"); loggerVal != nil {
		if lg, ok := loggerVal.(interface{ Info(msg string, args ...any) }); ok {
			lg.Info("image_enqueued",
				"job_id", rec.ID.String(),
				"original_name", rec.OriginalFileName,
				"mime_type", mimeType,
				"size_bytes", rec.SizeBytes,
			)
		}
	}

	return c.JSON(UploadResponse{ImageID: rec.ID.String(), Status: string(model.StatusProcessing)})
}

func listImagesHandler(c *fiber.Ctx) error {
	reg := c.Locals("registry").(*registry.Registry)

	recs := reg.List()
	base := c.BaseURL()
	out := make([]ImageEnvelope, 0, len(recs))
	for _, rec := range recs {
		out = append(out, envelopeFor(base, rec))
	}
	return c.JSON(out)
}

func getImageHandler(c *fiber.Ctx) error {
	reg := c.Locals("registry").(*registry.Registry)

	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(errorEnvelope("Image not found."))
	}

	rec, err := reg.Get(id)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(errorEnvelope("Image not found."))
		}
		return c.Status(fiber.StatusInternalServerError).JSON(errorEnvelope("Image lookup failed."))
	}

	return c.JSON(envelopeFor(c.BaseURL(), rec))
}

func thumbnailHandler(c *fiber.Ctx) error {
	reg := c.Locals("registry").(*registry.Registry)
	th := c.Locals("thumbs").(*thumbs.Store)

	variant := model.Variant(c.Params("variant"))
	if !model.ValidVariant(variant) {
		return c.Status(fiber.StatusBadRequest).JSON(errorEnvelope("Size variant must be 'small' or 'medium'."))
	}

	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(errorEnvelope("Image not found."))
	}

	rec, err := reg.Get(id)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(errorEnvelope("Image not found."))
	}
	// Thumbnails exist for clients only once the whole job succeeded;
	// processing and failed jobs never serve partial artifacts.
	if rec.Status != model.StatusSuccess {
		return c.Status(fiber.StatusNotFound).JSON(errorEnvelope("Thumbnail not found."))
	}

	data, err := th.Get(c.Context(), id, variant)
	if err != nil {
		if errors.Is(err, thumbs.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(errorEnvelope("Thumbnail not found."))
		}
		return c.Status(fiber.StatusInternalServerError).JSON(errorEnvelope("Thumbnail read failed."))
	}

	c.Set(fiber.HeaderContentType, "image/jpeg")
	return c.Send(data)
}
