package middleware

import (
	"crypto/subtle"
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"portfolio/internal/users"
)

const adminUserKey = "admin_user"

// SessionReader resolves the logged in user of a request.
type SessionReader interface {
	GetUserID(c *fiber.Ctx) (uint, bool)
}

// AdminUser returns the admin set by RequireAdmin or AnalyticsAuth, or nil
// when the request was authorized by API key.
func AdminUser(c *fiber.Ctx) *users.User {
	user, _ := c.Locals(adminUserKey).(*users.User)
	return user
}

func unauthorized(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"error": "Unauthorized",
	})
}

// sessionAdmin loads the session user and checks the allowlist.
func sessionAdmin(c *fiber.Ctx, sessions SessionReader, db *gorm.DB, allowlist []string, logger *slog.Logger) (*users.User, bool) {
	userID, ok := sessions.GetUserID(c)
	if !ok {
		return nil, false
	}
	user, err := users.FindByID(db, userID)
	if err != nil {
		logger.Debug("Session user not found", slog.Uint64("userID", uint64(userID)), slog.Any("error", err))
		return nil, false
	}
	if !users.IsAdminEmail(user.Email, allowlist) {
		logger.Warn("Authenticated user is not an admin", slog.String("email", user.Email))
		return nil, false
	}
	return user, true
}

// RequireAdmin only lets requests through whose session belongs to an
// allowlisted admin.
func RequireAdmin(sessions SessionReader, db *gorm.DB, allowlist []string, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, ok := sessionAdmin(c, sessions, db, allowlist, logger)
		if !ok {
			return unauthorized(c)
		}
		c.Locals(adminUserKey, user)
		return c.Next()
	}
}

// AnalyticsAuth accepts either Authorization: Bearer <apiKey> or an admin
// session. An empty apiKey disables the bearer path.
func AnalyticsAuth(apiKey string, sessions SessionReader, db *gorm.DB, allowlist []string, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if authHeader := c.Get(fiber.HeaderAuthorization); strings.HasPrefix(authHeader, "Bearer ") {
			providedKey := strings.TrimPrefix(authHeader, "Bearer ")
			if apiKey != "" && providedKey != "" && secureCompare(providedKey, apiKey) {
				return c.Next()
			}
			logger.Warn("Rejected analytics API key", slog.String("ip", c.IP()))
		}

		user, ok := sessionAdmin(c, sessions, db, allowlist, logger)
		if !ok {
			return unauthorized(c)
		}
		c.Locals(adminUserKey, user)
		return c.Next()
	}
}

func secureCompare(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
