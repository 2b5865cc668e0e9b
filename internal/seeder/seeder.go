package seeder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/karloscodes/cartridge"
	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"portfolio/internal/posts"
	"portfolio/internal/timeframe"
	"portfolio/internal/users"
	"portfolio/internal/views"
)

const (
	adminEmail = "admin@example.com"
	batchSize  = 500
)

// Seeder fills a development database with posts and raw views.
type Seeder struct {
	DBManager cartridge.DBManager
	Logger    *slog.Logger
	Location  *time.Location
	Clock     timeframe.TimeProvider
	// ViewCount is the number of view attempts spread over Days.
	ViewCount int
	Days      int

	rng *rand.Rand
}

// NewSeeder creates a new seeder instance
func NewSeeder(dbManager cartridge.DBManager, logger *slog.Logger, loc *time.Location, viewCount, days int) *Seeder {
	if logger == nil {
		logger = slog.Default()
	}
	if loc == nil {
		loc = time.Local
	}
	if days <= 0 {
		days = 30
	}
	return &Seeder{
		DBManager: dbManager,
		Logger:    logger,
		Location:  loc,
		Clock:     &timeframe.DefaultTimeProvider{},
		ViewCount: viewCount,
		Days:      days,
		rng:       rand.New(rand.NewPCG(42, 1024)),
	}
}

type samplePost struct {
	title   string
	content string
	tags    []string
	weight  int
}

var samplePosts = []samplePost{
	{
		title:   "Building a blog with Go",
		content: "## Why Go\n\nA single binary and a small standard library.\n\n```go\nfmt.Println(\"hello\")\n```",
		tags:    []string{"Go", "Web"},
		weight:  5,
	},
	{
		title:   "SQLite in production",
		content: "## WAL mode\n\nEnable WAL and keep writes short.",
		tags:    []string{"Databases"},
		weight:  3,
	},
	{
		title:   "Counting views without cookies",
		content: "Hash the address with the date and never store it.",
		tags:    []string{"Privacy", "Web"},
		weight:  4,
	},
	{
		title:   "Notes on cron expressions",
		content: "`15 0 * * *` runs every day at 00:15.",
		tags:    []string{"Go"},
		weight:  1,
	},
	{
		title:   "Draft: upcoming talk",
		content: "Outline goes here.",
		weight:  0,
	},
}

// Run executes the seeding process. Existing posts and tags are reused, so
// running it twice only adds views.
func (s *Seeder) Run(ctx context.Context) error {
	start := time.Now()
	s.Logger.Info("Starting database seeding...", slog.Int("viewCount", s.ViewCount), slog.Int("days", s.Days))

	user, err := s.seedUser()
	if err != nil {
		return fmt.Errorf("failed to seed user: %w", err)
	}

	tags, err := s.seedTags()
	if err != nil {
		return fmt.Errorf("failed to seed tags: %w", err)
	}

	seeded, err := s.seedPosts(user.ID, tags)
	if err != nil {
		return fmt.Errorf("failed to seed posts: %w", err)
	}

	created, err := s.generateViews(ctx, seeded)
	if err != nil {
		return fmt.Errorf("failed to generate views: %w", err)
	}

	s.Logger.Info("Seeding completed successfully",
		slog.Int("posts", len(seeded)),
		slog.Int("views", created),
		slog.Duration("elapsed", time.Since(start)))
	return nil
}

// seedUser ensures the default admin user exists
func (s *Seeder) seedUser() (*users.User, error) {
	db := s.DBManager.GetConnection()
	users.SetupAdminUserIfNotExists(db, adminEmail)

	user, err := users.FindByEmail(db, adminEmail)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch admin user: %w", err)
	}
	return user, nil
}

func (s *Seeder) seedTags() (map[string]posts.Tag, error) {
	db := s.DBManager.GetConnection()
	byName := make(map[string]posts.Tag)
	for _, sample := range samplePosts {
		for _, name := range sample.tags {
			if _, ok := byName[name]; ok {
				continue
			}
			tag, err := posts.CreateTag(db, s.Logger, name)
			if errors.Is(err, posts.ErrTagExists) {
				var existing posts.Tag
				if err := db.Where("name = ?", name).First(&existing).Error; err != nil {
					return nil, err
				}
				tag = &existing
			} else if err != nil {
				return nil, err
			}
			byName[name] = *tag
		}
	}
	return byName, nil
}

type weightedPost struct {
	post   *posts.Post
	weight int
}

func (s *Seeder) seedPosts(authorID uint, tags map[string]posts.Tag) ([]weightedPost, error) {
	db := s.DBManager.GetConnection()
	current := s.Clock.Now(s.Location)

	var seeded []weightedPost
	for i, sample := range samplePosts {
		slug := posts.GenerateSlug(sample.title)

		var existing posts.Post
		err := db.Where("slug = ?", slug).First(&existing).Error
		if err == nil {
			s.Logger.Info("Post already exists", slog.String("slug", slug))
			seeded = append(seeded, weightedPost{post: &existing, weight: sample.weight})
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}

		in := posts.Input{
			Title:   sample.title,
			Slug:    slug,
			Content: sample.content,
			Status:  posts.StatusPublished,
		}
		if sample.weight == 0 {
			in.Status = posts.StatusDraft
		} else {
			publishedAt := current.AddDate(0, 0, -(s.Days + len(samplePosts) - i)).UTC()
			in.PublishedAt = &publishedAt
		}
		for _, name := range sample.tags {
			in.TagIDs = append(in.TagIDs, tags[name].ID)
		}

		post, err := posts.Create(db, s.Logger, authorID, in)
		if err != nil {
			return nil, err
		}
		seeded = append(seeded, weightedPost{post: post, weight: sample.weight})
	}
	return seeded, nil
}

func (s *Seeder) pickPost(seeded []weightedPost) *posts.Post {
	total := 0
	for _, wp := range seeded {
		total += wp.weight
	}
	if total == 0 {
		return nil
	}
	n := s.rng.IntN(total)
	for _, wp := range seeded {
		if n < wp.weight {
			return wp.post
		}
		n -= wp.weight
	}
	return nil
}

// generateViews spreads ViewCount attempts over the past Days with a
// realistic device mix. Crawler agents are skipped and repeat visits on the
// same day collapse through the dedup index, so fewer rows than attempts
// are written.
func (s *Seeder) generateViews(ctx context.Context, seeded []weightedPost) (int, error) {
	db := s.DBManager.GetConnection().WithContext(ctx)
	ipPool := generateIPPool(s.rng, 200)
	userAgents := getUserAgents()
	today := timeframe.StartOfDay(s.Clock.Now(s.Location), s.Location)

	batch := make([]views.RawView, 0, batchSize)
	created := 0
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		err := sqlite.PerformWrite(s.Logger, db, func(tx *gorm.DB) error {
			result := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&batch)
			created += int(result.RowsAffected)
			return result.Error
		})
		batch = batch[:0]
		return err
	}

	for i := 0; i < s.ViewCount; i++ {
		if err := ctx.Err(); err != nil {
			return created, err
		}
		post := s.pickPost(seeded)
		if post == nil {
			break
		}
		ua := userAgents[s.rng.IntN(len(userAgents))]
		if views.IsBot(ua) {
			continue
		}

		// Today is excluded so the daily job has a full day to aggregate.
		daysAgo := 1 + s.rng.IntN(s.Days)
		viewedAt := today.AddDate(0, 0, -daysAgo).
			Add(time.Duration(s.rng.IntN(24*60)) * time.Minute)
		day := timeframe.DayKey(viewedAt, s.Location)
		ip := ipPool[s.rng.IntN(len(ipPool))]

		batch = append(batch, views.NewRawView(post.ID, views.HashIP(ip, post.ID, day), ua, viewedAt, s.Location))
		if len(batch) == batchSize {
			if err := flush(); err != nil {
				return created, err
			}
		}
	}
	if err := flush(); err != nil {
		return created, err
	}
	return created, nil
}

// generateIPPool creates a pool of unique IPv4 addresses
func generateIPPool(rng *rand.Rand, count int) []string {
	seen := make(map[string]bool)
	var ips []string
	for len(ips) < count {
		ip := fmt.Sprintf("%d.%d.%d.%d", rng.IntN(223)+1, rng.IntN(256), rng.IntN(256), rng.IntN(254)+1)
		if !seen[ip] {
			seen[ip] = true
			ips = append(ips, ip)
		}
	}
	return ips
}

// getUserAgents returns a list of common user agent strings
func getUserAgents() []string {
	return []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
		"Mozilla/5.0 (iPhone; CPU iPhone OS 17_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Mobile/15E148 Safari/604.1",
		"Mozilla/5.0 (iPhone; CPU iPhone OS 16_6 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.6 Mobile/15E148 Safari/604.1",
		"Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Mobile Safari/537.36",
		"Mozilla/5.0 (iPad; CPU OS 17_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Mobile/15E148 Safari/604.1",
		"Mozilla/5.0 (Linux; Android 13; SM-X700) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		"Googlebot/2.1 (+http://www.google.com/bot.html)",
	}
}
