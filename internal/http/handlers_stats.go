package http

import (
	"github.com/gofiber/fiber/v2"

	"pictor/internal/registry"
	"pictor/internal/stats"
)

func statsHandler(c *fiber.Ctx) error {
	reg := c.Locals("registry").(*registry.Registry)
	return c.JSON(stats.Compute(reg))
}
