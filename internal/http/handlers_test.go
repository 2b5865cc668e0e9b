package http

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"portfolio/internal/analytics"
	"portfolio/internal/devices"
	"portfolio/internal/jobs"
	"portfolio/internal/ogp"
	"portfolio/internal/posts"
	"portfolio/internal/testsupport"
	"portfolio/internal/timeframe"
	"portfolio/internal/users"
	"portfolio/internal/views"
)

const chromeUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 Chrome/120.0 Safari/537.36"

func doRequest(t *testing.T, app *fiber.App, method, target, body string) (*http.Response, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var decoded map[string]any
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &decoded))
	}
	return resp, decoded
}

func TestHealthStatus(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	logger := testsupport.GetLogger()

	health := healthStatus(db, logger)
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "ok", health.DBStatus)

	health = healthStatus(nil, logger)
	assert.Equal(t, "degraded", health.Status)
	assert.Equal(t, "error", health.DBStatus)
}

func TestLoginHelpers(t *testing.T) {
	logger := testsupport.GetLogger()
	app := fiber.New()
	app.Post("/login", func(c *fiber.Ctx) error {
		params, err := parseCredentials(c)
		if err != nil {
			return loginFailure(c, err, logger)
		}
		return c.JSON(fiber.Map{"email": params.Email})
	})
	app.Post("/denied", func(c *fiber.Ctx) error {
		return loginFailure(c, users.ErrInvalidCredentials, logger)
	})

	resp, body := doRequest(t, app, "POST", "/login", `{"email":"  admin@example.com ","password":"secret"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "admin@example.com", body["email"])

	resp, body = doRequest(t, app, "POST", "/login", `{"email":"admin@example.com"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Email and password are required", body["error"])

	resp, _ = doRequest(t, app, "POST", "/login", `not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = doRequest(t, app, "POST", "/denied", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Invalid email or password", body["error"])
}

func aggregateApp(t *testing.T, current time.Time) (*fiber.App, *gorm.DB) {
	t.Helper()
	dbManager, logger := testsupport.SetupTestDBManager(t)
	runner := jobs.NewRunner(dbManager, logger, time.UTC, 90)
	runner.Clock = &timeframe.FixedTimeProvider{Time: current}

	app := fiber.New()
	app.Post("/api/analytics/aggregate", func(c *fiber.Ctx) error {
		return aggregate(c, runner, logger)
	})
	return app, dbManager.GetConnection()
}

func TestAggregate(t *testing.T) {
	current := time.Date(2024, 3, 16, 10, 0, 0, 0, time.UTC)

	t.Run("runs every step", func(t *testing.T) {
		app, db := aggregateApp(t, current)
		testsupport.CreateRawView(t, db, "post-1", "hash-a", chromeUA, time.Date(2024, 3, 15, 8, 0, 0, 0, time.UTC))
		testsupport.CreateRawView(t, db, "post-1", "hash-b", chromeUA, time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC))

		resp, body := doRequest(t, app, "POST", "/api/analytics/aggregate", `{"type":"all","date":"2024-03-15"}`)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, true, body["success"])
		assert.Equal(t, "all", body["type"])

		daily := body["daily"].(map[string]any)
		assert.Equal(t, float64(1), daily["aggregated"])
		assert.Equal(t, "2024-03-15", daily["date"])
		assert.NotContains(t, daily, "error")

		monthly := body["monthly"].(map[string]any)
		assert.Equal(t, "2024-03", monthly["yearMonth"])
		assert.Contains(t, body, "cleanup")
	})

	t.Run("invalid requests", func(t *testing.T) {
		app, _ := aggregateApp(t, current)
		for _, payload := range []string{
			`{"type":"weekly"}`,
			`{"type":"daily","date":"15/03/2024"}`,
			`{"type":"monthly","date":"2024-3"}`,
			`{broken`,
		} {
			resp, body := doRequest(t, app, "POST", "/api/analytics/aggregate", payload)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode, payload)
			assert.Equal(t, false, body["success"], payload)
			assert.NotEmpty(t, body["error"], payload)
		}
	})

	t.Run("partial failure", func(t *testing.T) {
		app, db := aggregateApp(t, current)
		require.NoError(t, db.Migrator().DropTable(&analytics.MonthlyAggregate{}))

		resp, body := doRequest(t, app, "POST", "/api/analytics/aggregate", `{"type":"all"}`)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, false, body["success"])
		assert.Equal(t, "monthly aggregation failed", body["monthly"].(map[string]any)["error"])
	})

	t.Run("all steps failed", func(t *testing.T) {
		app, db := aggregateApp(t, current)
		require.NoError(t, db.Migrator().DropTable(&views.RawView{}))

		resp, body := doRequest(t, app, "POST", "/api/analytics/aggregate", `{"type":"daily"}`)
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		assert.Equal(t, false, body["success"])
		assert.Equal(t, "daily aggregation failed", body["daily"].(map[string]any)["error"])
	})
}

func TestParsePeriod(t *testing.T) {
	assert.Equal(t, 7, parsePeriod(""))
	assert.Equal(t, 30, parsePeriod("30"))
	assert.Equal(t, 90, parsePeriod("90"))
	assert.Equal(t, 7, parsePeriod("14"))
	assert.Equal(t, 7, parsePeriod("abc"))
}

func TestOverview(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	logger := testsupport.GetLogger()
	current := time.Date(2024, 3, 16, 10, 0, 0, 0, time.UTC)

	first := testsupport.CreateTestPost(t, db, "First", "first", posts.StatusPublished)
	second := testsupport.CreateTestPost(t, db, "Second", "second", posts.StatusDraft)

	testsupport.CreateMonthlyAggregate(t, db, first.ID, "2024-01", 40, 30)
	testsupport.CreateDailyAggregate(t, db, first.ID, "2024-03-14", 5, 5, devices.Stats{DesktopWindows: 5})
	testsupport.CreateDailyAggregate(t, db, second.ID, "2024-03-15", 3, 3, devices.Stats{MobileIOS: 3})
	testsupport.CreateDailyAggregate(t, db, "gone", "2024-03-15", 2, 2, devices.Stats{MobileAndroid: 2})
	testsupport.CreateRawView(t, db, second.ID, "hash-a", chromeUA, time.Date(2024, 3, 16, 8, 0, 0, 0, time.UTC))

	app := fiber.New()
	app.Get("/api/admin/analytics/overview", func(c *fiber.Ctx) error {
		return overview(c, db, time.UTC, current, logger)
	})

	resp, body := doRequest(t, app, "GET", "/api/admin/analytics/overview?period=30", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, float64(30), body["period"])
	assert.Equal(t, float64(2), body["totalPosts"])
	assert.Equal(t, float64(1), body["publishedPosts"])
	assert.Equal(t, float64(51), body["totalViews"])
	assert.Equal(t, float64(1), body["todayViews"])
	assert.Equal(t, float64(10), body["periodViews"])

	daily := body["dailyViews"].([]any)
	assert.Len(t, daily, 30)
	assert.Equal(t, "2024-03-16", daily[29].(map[string]any)["date"])
	assert.Equal(t, float64(5), daily[28].(map[string]any)["views"])

	popular := body["popularPosts"].([]any)
	require.Len(t, popular, 3)
	top := popular[0].(map[string]any)
	assert.Equal(t, first.ID, top["id"])
	assert.Equal(t, "first", top["slug"])
	assert.Equal(t, float64(45), top["viewCount"])
	deleted := popular[2].(map[string]any)
	assert.Equal(t, "gone", deleted["id"])
	assert.Equal(t, "(deleted post)", deleted["title"])

	history := body["monthlyHistory"].([]any)
	require.Len(t, history, 1)
	assert.Equal(t, "2024-01", history[0].(map[string]any)["yearMonth"])

	_, body = doRequest(t, app, "GET", "/api/admin/analytics/overview?period=12", "")
	assert.Equal(t, float64(7), body["period"])
	assert.Len(t, body["dailyViews"].([]any), 7)
}

func postsApp(db *gorm.DB, admin *users.User) *fiber.App {
	logger := testsupport.GetLogger()
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		if admin != nil {
			c.Locals("admin_user", admin)
		}
		return c.Next()
	})
	app.Get("/api/admin/blog", func(c *fiber.Ctx) error { return listPosts(c, db, logger) })
	app.Post("/api/admin/blog", func(c *fiber.Ctx) error { return createPost(c, db, logger) })
	app.Get("/api/admin/blog/:id", func(c *fiber.Ctx) error { return showPost(c, db, logger) })
	app.Put("/api/admin/blog/:id", func(c *fiber.Ctx) error { return updatePost(c, db, logger) })
	app.Delete("/api/admin/blog/:id", func(c *fiber.Ctx) error { return deletePost(c, db, logger) })
	app.Post("/api/admin/tags", func(c *fiber.Ctx) error { return createTag(c, db, logger) })
	app.Get("/api/blog/posts/:slug", func(c *fiber.Ctx) error {
		return publicPost(c, db, time.Now().UTC().Add(time.Minute), logger)
	})
	return app
}

func TestPostsHandlers(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	admin := testsupport.CreateTestUserForAuth(t, db, "admin@example.com", "password123")
	app := postsApp(db, admin)

	resp, tag := doRequest(t, app, "POST", "/api/admin/tags", `{"name":"Go"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp, _ = doRequest(t, app, "POST", "/api/admin/tags", `{"name":"go"}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, created := doRequest(t, app, "POST", "/api/admin/blog",
		`{"title":"Hello World","content":"## Intro\n\nSome **bold** text","status":"published","tag_ids":["`+tag["id"].(string)+`"]}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	id := created["id"].(string)
	assert.Equal(t, "hello-world", created["slug"])
	assert.Equal(t, float64(admin.ID), created["author_id"])
	assert.Len(t, created["tags"], 1)

	resp, _ = doRequest(t, app, "POST", "/api/admin/blog", `{"title":"Hello World"}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode, "duplicate slug")

	resp, _ = doRequest(t, app, "POST", "/api/admin/blog", `{"title":""}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "missing title")

	testsupport.CreateRawView(t, db, id, "hash-a", chromeUA, time.Now().UTC())
	resp, public := doRequest(t, app, "GET", "/api/blog/posts/hello-world", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Hello World", public["title"])
	assert.Contains(t, public["html"], "<strong>bold</strong>")
	assert.Equal(t, float64(1), public["totalViews"])

	resp, updated := doRequest(t, app, "PUT", "/api/admin/blog/"+id, `{"title":"Hello Again","slug":"hello-again","status":"draft"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "hello-again", updated["slug"])

	resp, _ = doRequest(t, app, "GET", "/api/blog/posts/hello-again", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "drafts are not public")

	resp, shown := doRequest(t, app, "GET", "/api/admin/blog/"+id, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Hello Again", shown["title"])

	resp, deleted := doRequest(t, app, "DELETE", "/api/admin/blog/"+id, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Deleted", deleted["message"])

	resp, _ = doRequest(t, app, "DELETE", "/api/admin/blog/"+id, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp, _ = doRequest(t, app, "GET", "/api/admin/blog/"+id, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

type stubPreviews struct{}

func (stubPreviews) Get(rawURL string) (ogp.Preview, error) {
	if _, err := ogp.ParseTarget(rawURL); err != nil {
		return ogp.Preview{}, err
	}
	return ogp.Preview{URL: rawURL, Title: "Example"}, nil
}

func TestLinkPreview(t *testing.T) {
	logger := testsupport.GetLogger()
	app := fiber.New()
	app.Get("/api/ogp", func(c *fiber.Ctx) error { return linkPreview(c, stubPreviews{}, logger) })

	resp, body := doRequest(t, app, "GET", "/api/ogp?url=https://example.com/post", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Example", body["title"])

	resp, body = doRequest(t, app, "GET", "/api/ogp?url=ftp://example.com", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Invalid URL", body["error"])

	resp, _ = doRequest(t, app, "GET", "/api/ogp", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
