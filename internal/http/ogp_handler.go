package http

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"portfolio/internal/ogp"
)

// OGPAction returns link preview metadata for ?url=.
func OGPAction(store ogp.Store) func(*cartridge.Context) error {
	return func(ctx *cartridge.Context) error {
		return linkPreview(ctx.Ctx, store, ctx.Logger)
	}
}

func linkPreview(c *fiber.Ctx, store ogp.Store, logger *slog.Logger) error {
	preview, err := store.Get(c.Query("url"))
	if err != nil {
		if errors.Is(err, ogp.ErrInvalidURL) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid URL"})
		}
		logger.Error("Link preview failed", slog.Any("error", err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch preview"})
	}
	return c.JSON(preview)
}
