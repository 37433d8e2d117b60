package posts

import (
	"github.com/iwongu/pottery-app/internal/media"
	"github.com/iwongu/pottery-app/internal/shared/apperr"
	"github.com/iwongu/pottery-app/internal/users"

	"github.com/gofiber/fiber/v2"
)

const (
	defaultPostLimit     = 10
	defaultCommentLimit  = 20
	defaultShowcaseLimit = 100
)

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Get("/", func(c *fiber.Ctx) error {
		page := NewPage(c.QueryInt("skip", 0), c.QueryInt("limit", defaultPostLimit), defaultPostLimit)
		posts, err := svc.ListPosts(c.Context(), page)
		if err != nil {
			return apperr.HTTP(err)
		}
		return c.JSON(posts)
	})

	r.Get("/homepage", func(c *fiber.Ctx) error {
		posts, err := svc.HomepagePosts(c.Context(), c.QueryInt("limit", defaultPostLimit), svc.homepageMinLikes)
		if err != nil {
			return apperr.HTTP(err)
		}
		return c.JSON(posts)
	})

	r.Post("/", authMiddleware, func(c *fiber.Ctx) error {
		caller, err := users.RequireCurrent(c)
		if err != nil {
			return err
		}
		image, closeImage, err := media.FormUpload(c, "image")
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		defer closeImage()

		var title string
		if v := media.FormField(c, "title"); v != nil {
			title = *v
		}
		post, err := svc.CreatePost(c.Context(), caller, title, media.FormField(c, "text_content"), image)
		if err != nil {
			return apperr.HTTP(err)
		}
		return c.Status(fiber.StatusCreated).JSON(post)
	})

	r.Get("/:id", func(c *fiber.Ctx) error {
		post, err := svc.GetPost(c.Context(), c.Params("id"))
		if err != nil {
			return apperr.HTTP(err)
		}
		return c.JSON(post)
	})

	r.Put("/:id", authMiddleware, func(c *fiber.Ctx) error {
		caller, err := users.RequireCurrent(c)
		if err != nil {
			return err
		}
		image, closeImage, err := media.FormUpload(c, "image")
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		defer closeImage()

		patch := Patch{
			Title:       media.FormField(c, "title"),
			TextContent: media.FormField(c, "text_content"),
		}
		post, err := svc.UpdatePost(c.Context(), c.Params("id"), caller, patch, image, media.FormBool(c, "remove_image"))
		if err != nil {
			return apperr.HTTP(err)
		}
		return c.JSON(post)
	})

	r.Delete("/:id", authMiddleware, func(c *fiber.Ctx) error {
		caller, err := users.RequireCurrent(c)
		if err != nil {
			return err
		}
		if err := svc.DeletePost(c.Context(), c.Params("id"), caller); err != nil {
			return apperr.HTTP(err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	r.Post("/:id/like", authMiddleware, func(c *fiber.Ctx) error {
		caller, err := users.RequireCurrent(c)
		if err != nil {
			return err
		}
		like, err := svc.Like(c.Context(), c.Params("id"), caller)
		if err != nil {
			return apperr.HTTP(err)
		}
		return c.Status(fiber.StatusCreated).JSON(like)
	})

	r.Delete("/:id/like", authMiddleware, func(c *fiber.Ctx) error {
		caller, err := users.RequireCurrent(c)
		if err != nil {
			return err
		}
		if err := svc.Unlike(c.Context(), c.Params("id"), caller); err != nil {
			return apperr.HTTP(err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	r.Get("/:id/likes", func(c *fiber.Ctx) error {
		id := c.Params("id")
		n, err := svc.LikeCount(c.Context(), id)
		if err != nil {
			return apperr.HTTP(err)
		}
		return c.JSON(fiber.Map{"post_id": id, "like_count": n})
	})

	showcase := func(show bool) fiber.Handler {
		return func(c *fiber.Ctx) error {
			caller, err := users.RequireCurrent(c)
			if err != nil {
				return err
			}
			post, err := svc.SetShowcase(c.Context(), c.Params("id"), caller, show)
			if err != nil {
				return apperr.HTTP(err)
			}
			return c.JSON(post)
		}
	}
	r.Post("/:id/showcase", authMiddleware, showcase(true))
	r.Delete("/:id/showcase", authMiddleware, showcase(false))

	r.Get("/:id/comments", func(c *fiber.Ctx) error {
		page := NewPage(c.QueryInt("skip", 0), c.QueryInt("limit", defaultCommentLimit), defaultCommentLimit)
		comments, err := svc.ListComments(c.Context(), c.Params("id"), page)
		if err != nil {
			return apperr.HTTP(err)
		}
		return c.JSON(comments)
	})

	r.Post("/:id/comments", authMiddleware, func(c *fiber.Ctx) error {
		caller, err := users.RequireCurrent(c)
		if err != nil {
			return err
		}
		var body struct {
			Text string `json:"text" form:"text"`
		}
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid payload")
		}
		comment, err := svc.AddComment(c.Context(), c.Params("id"), caller, body.Text)
		if err != nil {
			return apperr.HTTP(err)
		}
		return c.Status(fiber.StatusCreated).JSON(comment)
	})
}

// RegisterUserRoutes mounts the post listings that live under /users.
func RegisterUserRoutes(r fiber.Router, svc *Service) {
	r.Get("/:id/showcased-posts", func(c *fiber.Ctx) error {
		page := NewPage(c.QueryInt("skip", 0), c.QueryInt("limit", defaultShowcaseLimit), defaultShowcaseLimit)
		posts, err := svc.ListShowcased(c.Context(), c.Params("id"), page)
		if err != nil {
			return apperr.HTTP(err)
		}
		return c.JSON(posts)
	})
}
