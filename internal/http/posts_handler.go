package http

import (
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"
	"gorm.io/gorm"

	"portfolio/internal/analytics"
	"portfolio/internal/http/middleware"
	"portfolio/internal/posts"
)

// postError maps store errors to status codes.
func postError(c *fiber.Ctx, err error, logger *slog.Logger) error {
	switch {
	case errors.Is(err, posts.ErrPostNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Post not found"})
	case errors.Is(err, posts.ErrSlugTaken), errors.Is(err, posts.ErrTagExists):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, posts.ErrInvalidPost):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	default:
		logger.Error("Post operation failed", slog.Any("error", err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Internal server error"})
	}
}

func invalidBody(c *fiber.Ctx) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
}

// PostsIndexAction lists every post, drafts included.
func PostsIndexAction(ctx *cartridge.Context) error {
	return listPosts(ctx.Ctx, ctx.DB(), ctx.Logger)
}

func listPosts(c *fiber.Ctx, db *gorm.DB, logger *slog.Logger) error {
	list, err := posts.List(db)
	if err != nil {
		return postError(c, err, logger)
	}
	return c.JSON(list)
}

// PostsShowAction returns one post by ID.
func PostsShowAction(ctx *cartridge.Context) error {
	return showPost(ctx.Ctx, ctx.DB(), ctx.Logger)
}

func showPost(c *fiber.Ctx, db *gorm.DB, logger *slog.Logger) error {
	post, err := posts.Get(db, c.Params("id"))
	if err != nil {
		return postError(c, err, logger)
	}
	return c.JSON(post)
}

// PostsCreateAction creates a post authored by the logged in admin.
func PostsCreateAction(ctx *cartridge.Context) error {
	return createPost(ctx.Ctx, ctx.DB(), ctx.Logger)
}

func createPost(c *fiber.Ctx, db *gorm.DB, logger *slog.Logger) error {
	var in posts.Input
	if err := c.BodyParser(&in); err != nil {
		return invalidBody(c)
	}

	var authorID uint
	if admin := middleware.AdminUser(c); admin != nil {
		authorID = admin.ID
	}

	post, err := posts.Create(db, logger, authorID, in)
	if err != nil {
		return postError(c, err, logger)
	}
	return c.Status(fiber.StatusCreated).JSON(post)
}

// PostsUpdateAction replaces the editable fields of a post.
func PostsUpdateAction(ctx *cartridge.Context) error {
	return updatePost(ctx.Ctx, ctx.DB(), ctx.Logger)
}

func updatePost(c *fiber.Ctx, db *gorm.DB, logger *slog.Logger) error {
	var in posts.Input
	if err := c.BodyParser(&in); err != nil {
		return invalidBody(c)
	}
	post, err := posts.Update(db, logger, c.Params("id"), in)
	if err != nil {
		return postError(c, err, logger)
	}
	return c.JSON(post)
}

// PostsDeleteAction removes a post. Its view history is kept.
func PostsDeleteAction(ctx *cartridge.Context) error {
	return deletePost(ctx.Ctx, ctx.DB(), ctx.Logger)
}

func deletePost(c *fiber.Ctx, db *gorm.DB, logger *slog.Logger) error {
	if err := posts.Delete(db, logger, c.Params("id")); err != nil {
		return postError(c, err, logger)
	}
	return c.JSON(fiber.Map{"message": "Deleted"})
}

type tagParams struct {
	Name string `json:"name" form:"name"`
}

// TagsCreateAction adds a tag.
func TagsCreateAction(ctx *cartridge.Context) error {
	return createTag(ctx.Ctx, ctx.DB(), ctx.Logger)
}

func createTag(c *fiber.Ctx, db *gorm.DB, logger *slog.Logger) error {
	var params tagParams
	if err := c.BodyParser(&params); err != nil {
		return invalidBody(c)
	}
	tag, err := posts.CreateTag(db, logger, strings.TrimSpace(params.Name))
	if err != nil {
		return postError(c, err, logger)
	}
	return c.Status(fiber.StatusCreated).JSON(tag)
}

type publicPostResponse struct {
	*posts.Post
	HTML       string `json:"html"`
	TotalViews int64  `json:"totalViews"`
}

// PublicPostAction serves a published post with rendered content.
func PublicPostAction(ctx *cartridge.Context) error {
	return publicPost(ctx.Ctx, ctx.DB(), time.Now().UTC(), ctx.Logger)
}

func publicPost(c *fiber.Ctx, db *gorm.DB, current time.Time, logger *slog.Logger) error {
	post, err := posts.GetPublishedBySlug(db, c.Params("slug"), current)
	if err != nil {
		return postError(c, err, logger)
	}

	html, err := posts.RenderContent(post.Content)
	if err != nil {
		return postError(c, err, logger)
	}

	total, err := analytics.TotalViews(c.UserContext(), db, post.ID)
	if err != nil {
		return postError(c, err, logger)
	}

	return c.JSON(publicPostResponse{Post: post, HTML: html, TotalViews: total})
}
