package http

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"portfolio/internal/config"
	"portfolio/internal/users"
)

var errMissingCredentials = errors.New("email and password are required")

type loginParams struct {
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

// parseCredentials accepts JSON or form bodies.
func parseCredentials(c *fiber.Ctx) (loginParams, error) {
	var params loginParams
	if err := c.BodyParser(&params); err != nil {
		return params, errMissingCredentials
	}
	params.Email = strings.TrimSpace(params.Email)
	if params.Email == "" || params.Password == "" {
		return params, errMissingCredentials
	}
	return params, nil
}

// loginFailure maps an authentication error to a response. The message never
// tells whether the email exists.
func loginFailure(c *fiber.Ctx, err error, logger *slog.Logger) error {
	switch {
	case errors.Is(err, errMissingCredentials):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Email and password are required"})
	case errors.Is(err, users.ErrInvalidCredentials):
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid email or password"})
	default:
		logger.Error("Login failed", slog.Any("error", err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Login failed"})
	}
}

// LoginAction authenticates the admin and starts a session.
func LoginAction(ctx *cartridge.Context) error {
	params, err := parseCredentials(ctx.Ctx)
	if err != nil {
		return loginFailure(ctx.Ctx, err, ctx.Logger)
	}

	user, err := users.Authenticate(ctx.DB(), params.Email, params.Password)
	if err != nil {
		ctx.Logger.Debug("Login rejected", slog.String("email", params.Email))
		return loginFailure(ctx.Ctx, err, ctx.Logger)
	}

	if err := ctx.Session.SetSession(ctx.Ctx, user.ID); err != nil {
		return loginFailure(ctx.Ctx, err, ctx.Logger)
	}
	ctx.Logger.Debug("Login successful",
		slog.String("email", user.Email),
		slog.Int("userId", int(user.ID)))

	return ctx.JSON(fiber.Map{
		"success": true,
		"email":   user.Email,
		"admin":   users.IsAdminEmail(user.Email, config.GetConfig().AdminEmails()),
	})
}

// LogoutAction ends the session.
func LogoutAction(ctx *cartridge.Context) error {
	userID, isAuthenticated := ctx.Session.GetUserID(ctx.Ctx)
	ctx.Logger.Debug("Logging out",
		slog.Uint64("userID", uint64(userID)),
		slog.Bool("isAuthenticated", isAuthenticated))

	ctx.Session.ClearSession(ctx.Ctx)
	return ctx.JSON(fiber.Map{"success": true})
}
