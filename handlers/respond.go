package handlers

import (
	"errors"

	"challenge-ladder/services"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// respond writes an operation result: 500 for infrastructure errors, 422 for
// refused operations, 200 otherwise.
func respond(c *fiber.Ctx, log *zap.Logger, op string, out *services.Outcome, err error) error {
	if err != nil {
		log.Error("operation failed", zap.String("op", op), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	if !out.OK {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(out)
	}
	return c.JSON(out)
}

var errInvalidBody = errors.New("invalid request body")

// parseBody decodes and validates a JSON body into v. An empty body is
// validated as the zero value.
func parseBody(c *fiber.Ctx, v any) error {
	if len(c.Body()) > 0 {
		if err := c.BodyParser(v); err != nil {
			return errInvalidBody
		}
	}
	return validate.Struct(v)
}

func badRequest(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
}
