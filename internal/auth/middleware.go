package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"transit-backend/internal/resource"
)

// Middleware resolves the bearer token into a principal. Requests without
// credentials pass through anonymous; whether an anonymous request may
// proceed is the permission gate's call, made per resource and operation.
// A token that is present but invalid is always rejected.
func Middleware(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get("Authorization")
		if header == "" {
			return c.Next()
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return resource.UnauthorizedError("Invalid auth header format")
		}

		claims, err := ParseAccessToken(parts[1], secret)
		if err != nil {
			return resource.UnauthorizedError("Invalid or expired token")
		}

		c.Locals(resource.PrincipalKey, &resource.Principal{
			ID:          claims.Subject,
			Roles:       claims.Roles,
			Permissions: claims.Permissions,
		})
		return c.Next()
	}
}
