package handlers

import (
	"challenge-ladder/services"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const maxRankingLimit = 500

func SetupRankingRoutes(app fiber.Router, ranking *services.RankingEngine, log *zap.Logger) {
	app.Get("/ranking", func(c *fiber.Ctx) error {
		limit := c.QueryInt("limit", 50)
		if limit <= 0 || limit > maxRankingLimit {
			limit = maxRankingLimit
		}
		list, err := ranking.GetRankingList(c.UserContext(), nil, limit)
		if err != nil {
			log.Error("ranking failed", zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(fiber.Map{"ranking": list})
	})
}
