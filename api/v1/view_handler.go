package v1

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"
	"gorm.io/gorm"

	"portfolio/internal/views"
)

const (
	errInvalidRequest  = "Invalid request"
	errPostIDRequired  = "postId is required"
	errInternalFailure = "Internal server error"
)

type RecordViewParams struct {
	PostID string `json:"postId"`
}

type recordViewResponse struct {
	Success bool   `json:"success"`
	Counted bool   `json:"counted"`
	Reason  string `json:"reason,omitempty"`
}

// RecordViewHandler returns the handler for POST /api/blog/view.
func RecordViewHandler(recorder *views.Recorder, clientIP IPResolver) func(*cartridge.Context) error {
	return func(ctx *cartridge.Context) error {
		return recordView(ctx.Ctx, ctx.DB(), recorder, clientIP)
	}
}

func recordView(c *fiber.Ctx, db *gorm.DB, recorder *views.Recorder, clientIP IPResolver) error {
	var params RecordViewParams
	if err := c.BodyParser(&params); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   errInvalidRequest,
		})
	}

	params.PostID = strings.TrimSpace(params.PostID)
	if params.PostID == "" {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   errPostIDRequired,
		})
	}

	result, err := recorder.RecordView(c.UserContext(), db, views.RecordInput{
		PostID:    params.PostID,
		UserAgent: c.Get(fiber.HeaderUserAgent),
		ClientIP:  clientIP(c),
	})
	if err != nil {
		recorder.Logger.Error("Failed to record view",
			slog.String("postId", params.PostID),
			slog.Any("error", err))
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   errInternalFailure,
		})
	}

	return c.JSON(recordViewResponse{
		Success: true,
		Counted: result.Counted,
		Reason:  result.Reason,
	})
}
