package handlers

import (
	"context"
	"time"

	"challenge-ladder/middleware"
	"challenge-ladder/services"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// AdminServices are the services behind the organizer routes. Export may be nil.
type AdminServices struct {
	Players *services.PlayerService
	Matches *services.MatchService
	Results *services.ResultService
	Audit   *services.AuditTrail
	Export  *services.ExportService
}

type confirmCourtRequest struct {
	Time *time.Time `json:"time"`
}

type walkoverRequest struct {
	WinnerID string `json:"winner_id" validate:"required"`
}

type resolveRequest struct {
	Score string `json:"score" validate:"required,max=64"`
}

type renameRequest struct {
	DisplayName string `json:"display_name" validate:"required,max=80"`
}

type auditParams struct {
	Entity string `validate:"oneof=challenge match player"`
	ID     string `validate:"required"`
}

func SetupAdminRoutes(app fiber.Router, svc AdminServices, token string, log *zap.Logger) {
	lookup := func(ctx context.Context, address string) (string, bool, error) {
		p, err := svc.Players.FindByAddress(ctx, address)
		if err != nil || p == nil {
			return "", false, err
		}
		return p.ID, true, nil
	}
	admin := app.Group("/admin", middleware.TokenAuth(token, "admin", log), middleware.ActorContext(lookup, log))

	matches := admin.Group("/matches/:id")

	matches.Get("/", func(c *fiber.Ctx) error {
		m, err := svc.Matches.Get(c.UserContext(), c.Params("id"))
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		}
		if m == nil {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "match not found"})
		}
		return c.JSON(m)
	})

	matches.Post("/hold-court", func(c *fiber.Ctx) error {
		out, err := svc.Matches.HoldCourt(c.UserContext(), c.Params("id"), middleware.Actor(c))
		return respond(c, log, "hold_court", out, err)
	})

	matches.Post("/confirm-court", func(c *fiber.Ctx) error {
		var req confirmCourtRequest
		if err := parseBody(c, &req); err != nil {
			return badRequest(c, err)
		}
		out, err := svc.Matches.ConfirmCourt(c.UserContext(), c.Params("id"), req.Time, middleware.Actor(c))
		return respond(c, log, "confirm_court", out, err)
	})

	matches.Post("/walkover", func(c *fiber.Ctx) error {
		var req walkoverRequest
		if err := parseBody(c, &req); err != nil {
			return badRequest(c, err)
		}
		out, err := svc.Results.ApplyWalkover(c.UserContext(), c.Params("id"), req.WinnerID, middleware.Actor(c))
		return respond(c, log, "apply_walkover", out, err)
	})

	matches.Post("/resolve", func(c *fiber.Ctx) error {
		var req resolveRequest
		if err := parseBody(c, &req); err != nil {
			return badRequest(c, err)
		}
		out, err := svc.Results.ResolveDispute(c.UserContext(), c.Params("id"), req.Score, middleware.Actor(c))
		return respond(c, log, "resolve_dispute", out, err)
	})

	matches.Post("/cancel", func(c *fiber.Ctx) error {
		out, err := svc.Matches.CancelMatch(c.UserContext(), c.Params("id"), middleware.Actor(c))
		return respond(c, log, "cancel_match", out, err)
	})

	admin.Put("/players/:id/name", func(c *fiber.Ctx) error {
		var req renameRequest
		if err := parseBody(c, &req); err != nil {
			return badRequest(c, err)
		}
		out, err := svc.Players.UpdateDisplayName(c.UserContext(), c.Params("id"), req.DisplayName, middleware.Actor(c))
		return respond(c, log, "rename_player", out, err)
	})

	admin.Post("/players/:id/deactivate", func(c *fiber.Ctx) error {
		out, err := svc.Players.Deactivate(c.UserContext(), c.Params("id"), middleware.Actor(c))
		return respond(c, log, "deactivate_player", out, err)
	})

	admin.Post("/export", func(c *fiber.Ctx) error {
		if svc.Export == nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "export is not configured"})
		}
		res, err := svc.Export.Export(c.UserContext())
		if err != nil {
			log.Error("❌ export failed", zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(res)
	})

	admin.Get("/audit/:entity/:id", func(c *fiber.Ctx) error {
		p := auditParams{Entity: c.Params("entity"), ID: c.Params("id")}
		if err := validate.Struct(p); err != nil {
			return badRequest(c, err)
		}
		entries, err := svc.Audit.List(p.Entity, p.ID)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(fiber.Map{"entries": entries})
	})
}
