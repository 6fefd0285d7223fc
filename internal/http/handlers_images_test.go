package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"pictor/internal/config"
	"pictor/internal/model"
	"pictor/internal/pipeline"
	"pictor/internal/registry"
	"pictor/internal/store"
	"pictor/internal/thumbs"
)

type stubCodec struct{}

func (stubCodec) ExtractMetadata(data []byte) (model.ImageMetadata, error) {
	return model.ImageMetadata{Width: 640, Height: 480, Format: "jpeg"}, nil
}

func (stubCodec) Resize(data []byte, variant model.Variant) ([]byte, error) {
	return []byte("thumb-" + string(variant)), nil
}

type stubCaption struct{}

func (stubCaption) Caption(ctx context.Context, data []byte, mimeType string) (string, error) {
	return "a test image", nil
}

type testServer struct {
	srv  *Server
	reg  *registry.Registry
	disp *pipeline.Dispatcher
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	cfg := &config.Config{}
	cfg.Storage.DataDir = t.TempDir()

	reg := registry.New(store.NewMemory(), nil)
	th := thumbs.New(cfg.Storage.DataDir, nil)
	exec := pipeline.NewExecutor(reg, stubCodec{}, stubCaption{}, th, cfg.Storage.DataDir+"/originals", nil)
	disp := pipeline.NewDispatcher(context.Background(), exec, 2, 0)

	srv := NewServer(Deps{
		Config:     cfg,
		Registry:   reg,
		Thumbs:     th,
		Dispatcher: disp,
		Records:    store.NewMemory(),
	})
	return &testServer{srv: srv, reg: reg, disp: disp}
}

func multipartUpload(t *testing.T, fileName, contentType string, data []byte) *http.Request {
	t.Helper()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="`+fileName+`"`)
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	if err != nil {
		t.Fatalf("create multipart part: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("write multipart part: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/images", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func decodeJSON(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode response body: %v", err)
	}
}

func TestRootEndpoint(t *testing.T) {
	ts := newTestServer(t)

	resp, err := ts.srv.app.Test(httptest.NewRequest(http.MethodGet, "/", nil), -1)
	if err != nil {
		t.Fatalf("app.Test error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var body map[string]string
	decodeJSON(t, resp, &body)
	if body["message"] == "" {
		t.Fatalf("expected message field, got %v", body)
	}
}

func TestUploadRejectsInvalidFileType(t *testing.T) {
	ts := newTestServer(t)

	req := multipartUpload(t, "notes.txt", "text/plain", []byte("not an image"))
	resp, err := ts.srv.app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test error: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}

	// Rejection happens at the boundary: no job may be created.
	if n := len(ts.reg.List()); n != 0 {
		t.Fatalf("expected no job records after rejected upload, got %d", n)
	}
}

func TestUploadRejectsEmptyFile(t *testing.T) {
	ts := newTestServer(t)

	req := multipartUpload(t, "empty.png", "image/png", nil)
	resp, err := ts.srv.app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test error: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestUploadReturnsProcessingImmediately(t *testing.T) {
	ts := newTestServer(t)

	req := multipartUpload(t, "photo.jpg", "image/jpeg", []byte("raw-jpeg"))
	resp, err := ts.srv.app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var body UploadResponse
	decodeJSON(t, resp, &body)
	if body.ImageID == "" {
		t.Fatalf("expected image_id in response")
	}
	if body.Status != "processing" {
		t.Fatalf("expected status processing, got %q", body.Status)
	}
}

func TestUploadProcessAndFetchFlow(t *testing.T) {
	ts := newTestServer(t)

	req := multipartUpload(t, "photo.jpg", "image/jpeg", []byte("raw-jpeg"))
	resp, err := ts.srv.app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test error: %v", err)
	}
	var created UploadResponse
	decodeJSON(t, resp, &created)

	ts.disp.Wait()

	resp, err = ts.srv.app.Test(httptest.NewRequest(http.MethodGet, "/api/images/"+created.ImageID, nil), -1)
	if err != nil {
		t.Fatalf("app.Test error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var env ImageEnvelope
	decodeJSON(t, resp, &env)
	if env.Status != "success" {
		t.Fatalf("expected success envelope, got %q (error %v)", env.Status, env.Error)
	}
	if env.Data == nil || env.Data.Metadata == nil {
		t.Fatalf("expected data with metadata, got %+v", env.Data)
	}
	md := env.Data.Metadata
	if md.Width != 640 || md.Height != 480 {
		t.Fatalf("unexpected dimensions %dx%d", md.Width, md.Height)
	}
	if md.Format != "jpg" {
		t.Fatalf("expected normalized format jpg, got %q", md.Format)
	}
	if md.SizeBytes != int64(len("raw-jpeg")) {
		t.Fatalf("unexpected size_bytes %d", md.SizeBytes)
	}
	if md.Caption != "a test image" {
		t.Fatalf("unexpected caption %q", md.Caption)
	}
	if env.Data.ProcessedAt == nil {
		t.Fatalf("expected processed_at on terminal record")
	}
	for _, variant := range []string{"small", "medium"} {
		url, ok := env.Data.Thumbnails[variant]
		if !ok || !strings.Contains(url, "/api/images/"+created.ImageID+"/thumbnails/"+variant) {
			t.Fatalf("missing or malformed %s thumbnail url: %q", variant, url)
		}
	}

	// Fetch a thumbnail through the API.
	resp, err = ts.srv.app.Test(httptest.NewRequest(http.MethodGet, "/api/images/"+created.ImageID+"/thumbnails/small", nil), -1)
	if err != nil {
		t.Fatalf("app.Test error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for thumbnail, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "image/jpeg") {
		t.Fatalf("expected image/jpeg content type, got %q", ct)
	}
	data, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(data) != "thumb-small" {
		t.Fatalf("unexpected thumbnail bytes %q", data)
	}
}

func TestGetUnknownImage(t *testing.T) {
	ts := newTestServer(t)

	for _, path := range []string{"/api/images/not-a-uuid", "/api/images/0d9a55df-6a42-4ad0-8a0a-7b78b1fa2dd1"} {
		resp, err := ts.srv.app.Test(httptest.NewRequest(http.MethodGet, path, nil), -1)
		if err != nil {
			t.Fatalf("app.Test error: %v", err)
		}
		if resp.StatusCode != http.StatusNotFound {
			t.Fatalf("expected 404 for %s, got %d", path, resp.StatusCode)
		}
		var env ImageEnvelope
		decodeJSON(t, resp, &env)
		if env.Status != "error" || env.Error == nil {
			t.Fatalf("expected error envelope, got %+v", env)
		}
	}
}

func TestListImages(t *testing.T) {
	ts := newTestServer(t)

	for i := 0; i < 3; i++ {
		req := multipartUpload(t, "photo.png", "image/png", []byte("raw-png"))
		if _, err := ts.srv.app.Test(req, -1); err != nil {
			t.Fatalf("app.Test error: %v", err)
		}
	}
	ts.disp.Wait()

	resp, err := ts.srv.app.Test(httptest.NewRequest(http.MethodGet, "/api/images", nil), -1)
	if err != nil {
		t.Fatalf("app.Test error: %v", err)
	}
	var envs []ImageEnvelope
	decodeJSON(t, resp, &envs)
	if len(envs) != 3 {
		t.Fatalf("expected 3 envelopes, got %d", len(envs))
	}
}

func TestThumbnailInvalidVariant(t *testing.T) {
	ts := newTestServer(t)

	resp, err := ts.srv.app.Test(httptest.NewRequest(http.MethodGet, "/api/images/0d9a55df-6a42-4ad0-8a0a-7b78b1fa2dd1/thumbnails/huge", nil), -1)
	if err != nil {
		t.Fatalf("app.Test error: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid variant, got %d", resp.StatusCode)
	}
}

func TestThumbnailWhileProcessing(t *testing.T) {
	ts := newTestServer(t)

	// Register a job but never run its pipeline.
	rec, err := ts.reg.Create(context.Background(), "photo.png", "image/png", 4)
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	resp, err := ts.srv.app.Test(httptest.NewRequest(http.MethodGet, "/api/images/"+rec.ID.String()+"/thumbnails/small", nil), -1)
	if err != nil {
		t.Fatalf("app.Test error: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 while processing, got %d", resp.StatusCode)
	}
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)

	resp, err := ts.srv.app.Test(httptest.NewRequest(http.MethodGet, "/healthz", nil), -1)
	if err != nil {
		t.Fatalf("app.Test error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	resp, err = ts.srv.app.Test(httptest.NewRequest(http.MethodGet, "/healthz?deep=true", nil), -1)
	if err != nil {
		t.Fatalf("app.Test error: %v", err)
	}
	var body map[string]string
	decodeJSON(t, resp, &body)
	if body["status"] != "ok" || body["store"] != "ok" || body["redis"] != "disabled" {
		t.Fatalf("unexpected deep health body: %v", body)
	}
}
