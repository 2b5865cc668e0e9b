package internal

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/karloscodes/cartridge"
	cartridgemiddleware "github.com/karloscodes/cartridge/middleware"

	v1 "portfolio/api/v1"
	"portfolio/internal/config"
	"portfolio/internal/http"
	"portfolio/internal/http/middleware"
	"portfolio/internal/jobs"
	"portfolio/internal/ogp"
	"portfolio/internal/timeframe"
	"portfolio/internal/views"
)

// publicCORSConfig is shared by every endpoint the blog frontend calls
// cross-origin.
var publicCORSConfig = &cors.Config{
	AllowOrigins: "*",
	AllowMethods: "POST,GET,OPTIONS",
	AllowHeaders: "Origin, Content-Type, Accept, Authorization, User-Agent",
}

// Dependencies are the stateful collaborators of the routes. Nil fields are
// replaced by in-memory defaults.
type Dependencies struct {
	Runner         *jobs.Runner
	Previews       ogp.Store
	LimiterStorage fiber.Storage
}

func (d Dependencies) withDefaults(srv *cartridge.Server, cfg *config.Config) Dependencies {
	logger := srv.GetLogger()
	if d.Runner == nil {
		d.Runner = jobs.NewRunner(srv.GetDBManager(), logger, cfg.Location(), cfg.RetentionDays())
	}
	if d.Previews == nil {
		d.Previews = ogp.NewCachedStore(logger, cfg.GetOGPCacheTTL(), ogp.NewFetcher(cfg.GetOGPFetchTimeout()))
	}
	return d
}

// SetupSession configures the admin session cookie.
func SetupSession(srv *cartridge.Server) {
	cfg := config.GetConfig()
	sessionMgr := cartridge.NewSessionManager(cartridge.SessionConfig{
		CookieName: cfg.AppName + "_session",
		Secret:     cfg.GetSessionSecret(),
		TTL:        time.Duration(cfg.GetLoginSessionTimeout()) * time.Second,
		Secure:     cfg.IsProduction(),
		LoginPath:  "/api/auth/login",
	})
	srv.SetSession(sessionMgr)
}

// MountAppRoutes mounts all routes with default dependencies.
func MountAppRoutes(srv *cartridge.Server) {
	MountAppRoutesWith(Dependencies{})(srv)
}

// MountAppRoutesWith returns a mount function using deps, so the server and
// the scheduler can share one runner.
func MountAppRoutesWith(deps Dependencies) func(*cartridge.Server) {
	return func(srv *cartridge.Server) {
		SetupSession(srv)
		mountRoutes(srv, deps)
	}
}

func mountRoutes(srv *cartridge.Server, deps Dependencies) {
	cfg := config.GetConfig()
	deps = deps.withDefaults(srv, cfg)
	sessionMgr := srv.Session()
	db := srv.GetDBManager().GetConnection()
	logger := srv.GetLogger()
	loc := cfg.Location()

	// Rate limiting only applies in production; it would interfere with
	// development and tests.
	conditionalRateLimiter := func(limiter fiber.Handler) fiber.Handler {
		return func(c *fiber.Ctx) error {
			if cfg.IsProduction() {
				return limiter(c)
			}
			return c.Next()
		}
	}

	clientIP := v1.ClientIPResolver(cfg.TrustProxyHeaders)
	publicRateLimiter := conditionalRateLimiter(limiter.New(limiter.Config{
		Max:          cfg.ViewRateLimitMax,
		Expiration:   time.Minute,
		KeyGenerator: clientIP,
		Storage:      deps.LimiterStorage,
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"success": false,
				"error":   "Too many requests",
			})
		},
	}))

	// Brute force protection for the login form
	authRateLimiter := conditionalRateLimiter(cartridgemiddleware.RateLimiter(
		cartridgemiddleware.WithMax(10),
		cartridgemiddleware.WithDuration(time.Minute),
	))

	publicAPIConfig := &cartridge.RouteConfig{
		EnableCORS:       true,
		CustomMiddleware: []fiber.Handler{publicRateLimiter},
		CORSConfig:       publicCORSConfig,
	}

	// Called by schedulers and scripts, which send no Sec-Fetch-Site header.
	aggregateConfig := &cartridge.RouteConfig{
		EnableSecFetchSite: cartridge.Bool(false),
		CustomMiddleware: []fiber.Handler{
			middleware.AnalyticsAuth(cfg.AnalyticsAPIKey, sessionMgr, db, cfg.AdminEmails(), logger),
		},
	}

	adminAPIConfig := &cartridge.RouteConfig{
		CustomMiddleware: []fiber.Handler{
			middleware.RequireAdmin(sessionMgr, db, cfg.AdminEmails(), logger),
		},
	}

	loginConfig := &cartridge.RouteConfig{
		CustomMiddleware: []fiber.Handler{authRateLimiter},
	}

	noContent := func(ctx *cartridge.Context) error {
		return ctx.SendStatus(fiber.StatusNoContent)
	}

	// === HEALTH ===
	srv.Get("/_health", http.HealthIndexAction)
	srv.Head("/_health", http.HealthIndexAction)

	// === PUBLIC API ===
	srv.Post("/api/blog/view", v1.RecordViewHandler(views.NewRecorder(loc, logger), clientIP), publicAPIConfig)
	srv.Options("/api/blog/view", noContent, publicAPIConfig)
	srv.Get("/api/blog/posts/:slug", http.PublicPostAction, publicAPIConfig)
	srv.Get("/api/ogp", http.OGPAction(deps.Previews), publicAPIConfig)

	// === AUTHENTICATION ===
	srv.Post("/api/auth/login", http.LoginAction, loginConfig)
	srv.Post("/api/auth/logout", http.LogoutAction)

	// === ANALYTICS ===
	srv.Post("/api/admin/analytics/aggregate", http.AggregateAction(deps.Runner), aggregateConfig)
	srv.Get("/api/admin/analytics/overview", http.OverviewAction(loc, &timeframe.DefaultTimeProvider{}), adminAPIConfig)

	// === POSTS ===
	srv.Get("/api/admin/blog", http.PostsIndexAction, adminAPIConfig)
	srv.Post("/api/admin/blog", http.PostsCreateAction, adminAPIConfig)
	srv.Get("/api/admin/blog/:id", http.PostsShowAction, adminAPIConfig)
	srv.Put("/api/admin/blog/:id", http.PostsUpdateAction, adminAPIConfig)
	srv.Delete("/api/admin/blog/:id", http.PostsDeleteAction, adminAPIConfig)
	srv.Post("/api/admin/tags", http.TagsCreateAction, adminAPIConfig)
}
