package posts_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfolio/internal/posts"
	"portfolio/internal/testsupport"
)

func TestGenerateSlug(t *testing.T) {
	cases := map[string]string{
		"Hello World":          "hello-world",
		"  Go 1.25 -- Notes  ": "go-1-25-notes",
		"Next.js & Prisma":     "next-js-prisma",
		"日本語のタグ":               "日本語のタグ",
		"Go と ひらがな":           "go-と-ひらがな",
		"!!!":                  "",
	}
	for input, want := range cases {
		assert.Equal(t, want, posts.GenerateSlug(input), "input %q", input)
	}
}

func TestRenderContent(t *testing.T) {
	t.Run("renders markdown", func(t *testing.T) {
		html, err := posts.RenderContent("# Title\n\nSome **bold** text.")
		require.NoError(t, err)
		assert.Contains(t, html, "<h1")
		assert.Contains(t, html, "<strong>bold</strong>")
	})

	t.Run("strips scripts", func(t *testing.T) {
		html, err := posts.RenderContent("hello <script>alert(1)</script>")
		require.NoError(t, err)
		assert.NotContains(t, html, "<script>")
	})

	t.Run("renders tables", func(t *testing.T) {
		html, err := posts.RenderContent("| a | b |\n|---|---|\n| 1 | 2 |\n")
		require.NoError(t, err)
		assert.Contains(t, html, "<table>")
	})
}

func TestCreateAndGet(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	logger := testsupport.GetLogger()

	tag, err := posts.CreateTag(db, logger, "Go")
	require.NoError(t, err)
	assert.Equal(t, "go", tag.Slug)

	t.Run("creates a draft with generated slug", func(t *testing.T) {
		post, err := posts.Create(db, logger, 1, posts.Input{Title: "First Post", Content: "body"})
		require.NoError(t, err)
		assert.Equal(t, "first-post", post.Slug)
		assert.Equal(t, posts.StatusDraft, post.Status)
		assert.Nil(t, post.PublishedAt)
		assert.Len(t, post.ID, 36)
	})

	t.Run("links tags", func(t *testing.T) {
		post, err := posts.Create(db, logger, 1, posts.Input{
			Title:  "Tagged",
			Status: posts.StatusPublished,
			TagIDs: []string{tag.ID},
		})
		require.NoError(t, err)
		require.Len(t, post.Tags, 1)
		assert.Equal(t, "Go", post.Tags[0].Name)
		assert.NotNil(t, post.PublishedAt)
	})

	t.Run("rejects duplicate slug", func(t *testing.T) {
		_, err := posts.Create(db, logger, 1, posts.Input{Title: "Another", Slug: "first-post"})
		assert.ErrorIs(t, err, posts.ErrSlugTaken)
	})

	t.Run("rejects missing title", func(t *testing.T) {
		_, err := posts.Create(db, logger, 1, posts.Input{Title: "   "})
		assert.ErrorIs(t, err, posts.ErrInvalidPost)
	})

	t.Run("rejects unknown status", func(t *testing.T) {
		_, err := posts.Create(db, logger, 1, posts.Input{Title: "Odd", Status: "archived"})
		assert.ErrorIs(t, err, posts.ErrInvalidPost)
	})

	t.Run("rejects unknown tag", func(t *testing.T) {
		_, err := posts.Create(db, logger, 1, posts.Input{Title: "Bad tag", TagIDs: []string{"missing"}})
		assert.ErrorIs(t, err, posts.ErrInvalidPost)
	})

	t.Run("get reports missing post", func(t *testing.T) {
		_, err := posts.Get(db, "does-not-exist")
		assert.ErrorIs(t, err, posts.ErrPostNotFound)
	})
}

func TestUpdateAndDelete(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	logger := testsupport.GetLogger()

	goTag, err := posts.CreateTag(db, logger, "Go")
	require.NoError(t, err)
	sqlTag, err := posts.CreateTag(db, logger, "SQL")
	require.NoError(t, err)

	post, err := posts.Create(db, logger, 1, posts.Input{Title: "Draft", TagIDs: []string{goTag.ID}})
	require.NoError(t, err)
	other := testsupport.CreateTestPost(t, db, "Other", "other", posts.StatusDraft)

	t.Run("replaces fields and tags", func(t *testing.T) {
		updated, err := posts.Update(db, logger, post.ID, posts.Input{
			Title:   "Renamed",
			Slug:    "renamed",
			Content: "new body",
			Status:  posts.StatusPublished,
			TagIDs:  []string{sqlTag.ID},
		})
		require.NoError(t, err)
		assert.Equal(t, "Renamed", updated.Title)
		assert.Equal(t, "renamed", updated.Slug)
		require.Len(t, updated.Tags, 1)
		assert.Equal(t, "SQL", updated.Tags[0].Name)
	})

	t.Run("clears tags", func(t *testing.T) {
		updated, err := posts.Update(db, logger, post.ID, posts.Input{Title: "Renamed", Slug: "renamed"})
		require.NoError(t, err)
		assert.Empty(t, updated.Tags)
	})

	t.Run("keeps its own slug but not another's", func(t *testing.T) {
		_, err := posts.Update(db, logger, post.ID, posts.Input{Title: "Renamed", Slug: "renamed"})
		require.NoError(t, err)

		_, err = posts.Update(db, logger, post.ID, posts.Input{Title: "Renamed", Slug: other.Slug})
		assert.ErrorIs(t, err, posts.ErrSlugTaken)
	})

	t.Run("update of missing post", func(t *testing.T) {
		_, err := posts.Update(db, logger, "missing", posts.Input{Title: "x"})
		assert.ErrorIs(t, err, posts.ErrPostNotFound)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, posts.Delete(db, logger, post.ID))
		_, err := posts.Get(db, post.ID)
		assert.ErrorIs(t, err, posts.ErrPostNotFound)
		assert.ErrorIs(t, posts.Delete(db, logger, post.ID), posts.ErrPostNotFound)
	})
}

func TestCreateTag(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	logger := testsupport.GetLogger()

	_, err := posts.CreateTag(db, logger, "Web Dev")
	require.NoError(t, err)

	_, err = posts.CreateTag(db, logger, "Web Dev")
	assert.ErrorIs(t, err, posts.ErrTagExists)

	// Different name, same slug
	_, err = posts.CreateTag(db, logger, "web-dev")
	assert.ErrorIs(t, err, posts.ErrTagExists)

	_, err = posts.CreateTag(db, logger, " ")
	assert.ErrorIs(t, err, posts.ErrInvalidPost)
}

func TestGetPublishedBySlug(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	now := time.Now().UTC()

	published := testsupport.CreateTestPost(t, db, "Live", "live", posts.StatusPublished)
	testsupport.CreateTestPost(t, db, "Hidden", "hidden", posts.StatusDraft)

	scheduled := testsupport.CreateTestPost(t, db, "Later", "later", posts.StatusPublished)
	future := now.Add(48 * time.Hour)
	require.NoError(t, db.Model(&posts.Post{}).Where("id = ?", scheduled.ID).Update("published_at", future).Error)

	got, err := posts.GetPublishedBySlug(db, "live", now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, published.ID, got.ID)

	_, err = posts.GetPublishedBySlug(db, "hidden", now)
	assert.ErrorIs(t, err, posts.ErrPostNotFound)

	_, err = posts.GetPublishedBySlug(db, "later", now)
	assert.ErrorIs(t, err, posts.ErrPostNotFound)
}

func TestSummariesAndCounts(t *testing.T) {
	db := testsupport.SetupTestDB(t)

	a := testsupport.CreateTestPost(t, db, "Alpha", "alpha", posts.StatusPublished)
	b := testsupport.CreateTestPost(t, db, "Beta", "beta", posts.StatusDraft)

	summaries, err := posts.SummariesByID(db, []string{a.ID, b.ID, "missing"})
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, posts.Summary{ID: a.ID, Title: "Alpha", Slug: "alpha", Status: posts.StatusPublished}, summaries[a.ID])
	assert.Equal(t, posts.StatusDraft, summaries[b.ID].Status)

	counts, err := posts.CountByStatus(db)
	require.NoError(t, err)
	assert.Equal(t, posts.Counts{Total: 2, Published: 1, Drafts: 1}, counts)
}
