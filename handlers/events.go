package handlers

import (
	"challenge-ladder/middleware"
	"challenge-ladder/services"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// SetupEventRoutes exposes the inbound webhook the chat gateway posts to.
func SetupEventRoutes(app fiber.Router, router *services.Router, token string, log *zap.Logger) {
	app.Post("/events", middleware.TokenAuth(token, "webhook", log), func(c *fiber.Ctx) error {
		var ev services.IncomingEvent
		if err := c.BodyParser(&ev); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid event body"})
		}
		if err := validate.Struct(ev); err != nil {
			return badRequest(c, err)
		}
		if err := router.Handle(c.UserContext(), ev); err != nil {
			log.Error("❌ event failed", zap.String("message_id", ev.MessageID), zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(fiber.Map{"status": "ok"})
	})
}
