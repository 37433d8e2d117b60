package users

import "github.com/gofiber/fiber/v2"

const localsKey = "current_user"

// SetCurrent stores the authenticated caller on the request.
func SetCurrent(c *fiber.Ctx, u User) {
	c.Locals(localsKey, u)
}

// CurrentUser returns the caller placed on the request by the auth middleware.
func CurrentUser(c *fiber.Ctx) (User, bool) {
	u, ok := c.Locals(localsKey).(User)
	return u, ok
}

// RequireCurrent is CurrentUser for routes behind the auth middleware.
func RequireCurrent(c *fiber.Ctx) (User, error) {
	u, ok := CurrentUser(c)
	if !ok {
		return User{}, fiber.NewError(fiber.StatusUnauthorized, "could not validate credentials")
	}
	return u, nil
}
