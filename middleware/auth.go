package middleware

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const (
	ActorHeader = "X-Actor-Phone"
	actorKey    = "actor_id"
)

// ActorLookup maps an organizer's contact address to their player id.
// found is false when nobody is registered under it.
type ActorLookup func(ctx context.Context, address string) (id string, found bool, err error)

// ActorContext resolves the X-Actor-Phone header of admin calls so audit
// entries can name who acted. An unknown or missing phone leaves no actor.
func ActorContext(lookup ActorLookup, log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		phone := strings.TrimSpace(c.Get(ActorHeader))
		if phone == "" {
			return c.Next()
		}
		id, found, err := lookup(c.UserContext(), phone)
		if err != nil {
			log.Error("actor lookup failed", zap.String("path", c.Path()), zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "actor lookup failed"})
		}
		if !found {
			log.Warn("👤 unknown actor phone", zap.String("path", c.Path()))
			return c.Next()
		}
		c.Locals(actorKey, id)
		return c.Next()
	}
}

// Actor returns the resolved actor id for the request, or nil.
func Actor(c *fiber.Ctx) *string {
	id, ok := c.Locals(actorKey).(string)
	if !ok || id == "" {
		return nil
	}
	return &id
}
