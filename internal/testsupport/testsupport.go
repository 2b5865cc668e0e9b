package testsupport

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/karloscodes/cartridge"
	"github.com/karloscodes/cartridge/cache"
	ctestsupport "github.com/karloscodes/cartridge/testsupport"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"portfolio/internal/analytics"
	"portfolio/internal/config"
	"portfolio/internal/devices"
	"portfolio/internal/posts"
	"portfolio/internal/users"
	"portfolio/internal/views"
)

func init() {
	// Package tests run without the Makefile environment; never fall back to
	// the development database.
	if os.Getenv("PORTFOLIO_ENV") == "" {
		os.Setenv("PORTFOLIO_ENV", config.Test)
	}
}

// testDBCache caches test databases by test name to allow multiple calls
// within the same test to share the same database
var testDBCache = make(map[string]*gorm.DB)
var testDBCacheMu sync.Mutex

// TestDBManager wraps cartridge's TestDBManager
type TestDBManager struct {
	*ctestsupport.TestDBManager
}

// NewTestDBManager creates a TestDBManager that implements cartridge.DBManager
func NewTestDBManager(db *gorm.DB) *TestDBManager {
	return &TestDBManager{
		TestDBManager: ctestsupport.NewTestDBManager(db),
	}
}

var _ cartridge.DBManager = (*TestDBManager)(nil)

// allModels returns every model for migration
func allModels() []any {
	return []any{
		&cache.CacheRecord{},
		&users.User{},
		&posts.Category{},
		&posts.Tag{},
		&posts.Post{},
		&views.RawView{},
		&analytics.DailyAggregate{},
		&analytics.MonthlyAggregate{},
	}
}

// SetupTestDB creates a test database with all models migrated.
// Uses a named in-memory database with cache=shared to allow multiple connections
// to share the same database within a test. Caches the database by test name
// so multiple calls within the same test return the same database.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	// Use root test name for caching to handle closure issues where
	// setup functions capture the outer t while t.Run has subtest t
	rootName := t.Name()
	if idx := strings.Index(rootName, "/"); idx > 0 {
		rootName = rootName[:idx]
	}

	testDBCacheMu.Lock()
	if db, exists := testDBCache[rootName]; exists {
		testDBCacheMu.Unlock()
		return db
	}
	testDBCacheMu.Unlock()

	sanitizedName := strings.ReplaceAll(rootName, "/", "_")
	dsn := fmt.Sprintf("file:test_%s_%d?mode=memory&cache=shared", sanitizedName, time.Now().UnixNano())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("testsupport: failed to open test database: %v", err)
	}

	db.Exec("PRAGMA foreign_keys = ON")
	db.Exec("PRAGMA busy_timeout = 5000")

	if err := db.AutoMigrate(allModels()...); err != nil {
		t.Fatalf("testsupport: failed to migrate models: %v", err)
	}

	testDBCacheMu.Lock()
	testDBCache[rootName] = db
	testDBCacheMu.Unlock()

	t.Cleanup(func() {
		testDBCacheMu.Lock()
		delete(testDBCache, rootName)
		testDBCacheMu.Unlock()
		sqlDB, err := db.DB()
		if err == nil {
			sqlDB.Close()
		}
	})

	return db
}

// SetupTestDBManager creates a test DB manager using cartridge's testsupport
func SetupTestDBManager(t *testing.T) (*TestDBManager, *slog.Logger) {
	t.Helper()
	cfg := config.GetConfig()

	// SAFETY CHECK: Ensure we're in test environment
	if cfg.Environment != config.Test {
		t.Fatalf("CRITICAL: Tests must run in test environment! Current: %s. Set PORTFOLIO_ENV=test", cfg.Environment)
	}

	db := SetupTestDB(t)
	return NewTestDBManager(db), GetLogger()
}

// CleanAllTables clears all non-system tables in the database
func CleanAllTables(db *gorm.DB) {
	var tableNames []string
	db.Raw("SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%'").Scan(&tableNames)

	CleanTables(db, tableNames)
}

// CleanTables cleans specific tables
func CleanTables(db *gorm.DB, tables []string) {
	if len(tables) == 0 {
		return
	}

	db.Exec("PRAGMA foreign_keys = OFF")
	defer db.Exec("PRAGMA foreign_keys = ON")

	db.Transaction(func(tx *gorm.DB) error {
		for _, table := range tables {
			tx.Exec("DELETE FROM " + table)
			tx.Exec("DELETE FROM sqlite_sequence WHERE name=?", table)
		}
		return nil
	})
}

// GetLogger returns a test logger
func GetLogger() *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError})
	return slog.New(handler)
}

// CreateTestUser creates a test user in the database
func CreateTestUser(db *gorm.DB, email, password string) users.User {
	var user users.User
	if db.Where("email = ?", email).First(&user).Error == nil {
		return user
	}

	user = users.User{
		Email:             email,
		EncryptedPassword: password,
		CreatedAt:         time.Now().UTC(),
		UpdatedAt:         time.Now().UTC(),
	}
	db.Create(&user)
	return user
}

// CreateTestUserForAuth creates a user with properly hashed password for auth testing
func CreateTestUserForAuth(t *testing.T, db *gorm.DB, email, password string) *users.User {
	t.Helper()

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)

	user := &users.User{
		Email:             email,
		EncryptedPassword: string(hashedPassword),
		CreatedAt:         time.Now().UTC(),
		UpdatedAt:         time.Now().UTC(),
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

// CreateTestPost creates a post with the given status.
func CreateTestPost(t *testing.T, db *gorm.DB, title, slug string, status posts.Status) posts.Post {
	t.Helper()

	post := posts.Post{
		ID:      uuid.NewString(),
		Title:   title,
		Slug:    slug,
		Content: "# " + title + "\n\nBody of " + title,
		Status:  status,
	}
	if status == posts.StatusPublished {
		publishedAt := time.Now().UTC()
		post.PublishedAt = &publishedAt
	}
	require.NoError(t, db.Create(&post).Error)
	return post
}

// CreateRawView inserts a raw view bucketed in UTC.
func CreateRawView(t *testing.T, db *gorm.DB, postID, ipHash, userAgent string, viewedAt time.Time) views.RawView {
	t.Helper()

	view := views.NewRawView(postID, ipHash, userAgent, viewedAt, time.UTC)
	require.NoError(t, db.Create(&view).Error)
	return view
}

// CreateDailyAggregate inserts a daily aggregate row directly.
func CreateDailyAggregate(t *testing.T, db *gorm.DB, postID, date string, viewCount, uniqueVisitors int, stats devices.Stats) analytics.DailyAggregate {
	t.Helper()

	row := analytics.DailyAggregate{
		PostID:          postID,
		Date:            date,
		ViewCount:       viewCount,
		UniqueVisitors:  uniqueVisitors,
		DeviceStatsJSON: datatypes.JSON(stats.Encode()),
	}
	require.NoError(t, db.Create(&row).Error)
	return row
}

// CreateMonthlyAggregate inserts a monthly aggregate row directly.
func CreateMonthlyAggregate(t *testing.T, db *gorm.DB, postID, yearMonth string, viewCount, uniqueVisitors int) analytics.MonthlyAggregate {
	t.Helper()

	row := analytics.MonthlyAggregate{
		PostID:          postID,
		YearMonth:       yearMonth,
		ViewCount:       viewCount,
		UniqueVisitors:  uniqueVisitors,
		DeviceStatsJSON: datatypes.JSON(devices.Stats{}.Encode()),
	}
	require.NoError(t, db.Create(&row).Error)
	return row
}
