package users

import (
	"github.com/iwongu/pottery-app/internal/media"
	"github.com/iwongu/pottery-app/internal/shared/apperr"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Get("/me", authMiddleware, func(c *fiber.Ctx) error {
		user, err := RequireCurrent(c)
		if err != nil {
			return err
		}
		return c.JSON(user)
	})

	r.Put("/me/profile", authMiddleware, func(c *fiber.Ctx) error {
		caller, err := RequireCurrent(c)
		if err != nil {
			return err
		}
		photo, closePhoto, err := media.FormUpload(c, "photo")
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		defer closePhoto()

		patch := ProfilePatch{
			Name: media.FormField(c, "name"),
			Bio:  media.FormField(c, "bio"),
		}
		user, err := svc.UpdateProfile(c.Context(), caller, patch, photo, media.FormBool(c, "clear_photo"))
		if err != nil {
			return apperr.HTTP(err)
		}
		return c.JSON(user)
	})

	r.Get("/:id", func(c *fiber.Ctx) error {
		user, err := svc.GetByID(c.Context(), c.Params("id"))
		if err != nil {
			return apperr.HTTP(err)
		}
		return c.JSON(user)
	})
}
