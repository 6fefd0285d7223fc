package http

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"pictor/internal/config"
	"pictor/internal/metrics"
	"pictor/internal/pipeline"
	"pictor/internal/registry"
	"pictor/internal/store"
	"pictor/internal/thumbs"
)

const defaultBodyLimit = 20 * 1024 * 1024

// Deps groups everything the HTTP layer needs.
type Deps struct {
	Config     *config.Config
	Registry   *registry.Registry
	Thumbs     *thumbs.Store
	Dispatcher *pipeline.Dispatcher
	Records    store.RecordStore
	Redis      *redis.Client
	Logger     *slog.Logger
}

type Server struct {
	app    *fiber.App
	config *config.Config
}

func NewServer(d Deps) *Server {
	bodyLimit := d.Config.Upload.MaxSizeBytes
	if bodyLimit <= 0 {
		bodyLimit = defaultBodyLimit
	}
	app := fiber.New(fiber.Config{BodyLimit: bodyLimit})

	// Inject collaborators into context for handlers
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("config", d.Config)
		c.Locals("registry", d.Registry)
		c.Locals("thumbs", d.Thumbs)
		c.Locals("dispatcher", d.Dispatcher)
		return c.Next()
	})

	// Request logging + metrics middleware
	app.Use(func(c *fiber.Ctx) error {
		start := time.Now()

		// Ensure a request ID exists
		reqID := c.Get("X-Request-Id")
		if reqID == "" {
			reqID = uuid.New().String()
		}
		c.Locals("request_id", reqID)
		if d.Logger != nil {
			c.Locals("logger", d.Logger)
		}

		err := c.Next()

		latency := time.Since(start)
		status := c.Response().StatusCode()
		method := c.Method()
		path := c.Path()

		metrics.RecordRequest(method, path, status, latency.Milliseconds())

		if d.Logger != nil {
			d.Logger.Info("request",
				"request_id", reqID,
				"method", method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		}

		return err
	})

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"message": "API is working"})
	})

	// Health endpoints
	app.Get("/healthz", func(c *fiber.Ctx) error {
		// Shallow health: process is up
		if c.Query("deep") != "true" {
			return c.JSON(fiber.Map{"status": "ok"})
		}

		// Deep health: check record store and Redis connectivity.
		ctx, cancel := context.WithTimeout(c.Context(), 2*time.Second)
		defer cancel()

		storeStatus := "ok"
		if err := d.Records.Ping(ctx); err != nil {
			storeStatus = "error"
		}

		redisStatus := "disabled"
		if d.Redis != nil {
			if err := d.Redis.Ping(ctx).Err(); err != nil {
				redisStatus = "error"
			} else {
				redisStatus = "ok"
			}
		}

		status := "ok"
		if storeStatus != "ok" || redisStatus == "error" {
			status = "error"
		}

		return c.JSON(fiber.Map{
			"status": status,
			"store":  storeStatus,
			"redis":  redisStatus,
		})
	})

	// Prometheus-style metrics endpoint
	app.Get("/metrics", func(c *fiber.Ctx) error {
		c.Type("txt")
		return c.SendString(metrics.Export())
	})

	api := app.Group("/api")
	api.Post("/images", uploadImageHandler)
	api.Get("/images", listImagesHandler)
	api.Get("/images/:id", getImageHandler)
	api.Get("/images/:id/thumbnails/:variant", thumbnailHandler)
	api.Get("/stats", statsHandler)

	return &Server{app: app, config: d.Config}
}

func (s *Server) Listen() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	return s.app.Listen(addr)
}

// Shutdown stops accepting new requests and drains in-flight ones.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
