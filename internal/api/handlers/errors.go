package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/nainovate/Evaluation-UI-sub000/internal/evalmetrics"
	"github.com/nainovate/Evaluation-UI-sub000/internal/storage/sqlite"
	"github.com/nainovate/Evaluation-UI-sub000/internal/wizard"
)

func errorJSON(c *fiber.Ctx, status int, msg string, details ...string) error {
	body := fiber.Map{"error": msg}
	if len(details) > 0 {
		body["details"] = details
	}
	return c.Status(status).JSON(body)
}

// wizardError maps controller and catalog errors onto HTTP responses.
func wizardError(c *fiber.Ctx, err error) error {
	var shapeErr *wizard.ShapeError
	switch {
	case errors.As(err, &shapeErr):
		return errorJSON(c, fiber.StatusUnprocessableEntity, "Invalid step payload", shapeErr.Messages...)
	case errors.Is(err, wizard.ErrUnknownStep),
		errors.Is(err, evalmetrics.ErrUnknownCategory),
		errors.Is(err, evalmetrics.ErrUnknownSubMetric):
		return errorJSON(c, fiber.StatusNotFound, err.Error())
	case errors.Is(err, wizard.ErrStepMismatch),
		errors.Is(err, wizard.ErrGateClosed),
		errors.Is(err, wizard.ErrAtFirstStep),
		errors.Is(err, evalmetrics.ErrCategoryNotSelected):
		return errorJSON(c, fiber.StatusConflict, err.Error())
	default:
		return errorJSON(c, fiber.StatusInternalServerError, err.Error())
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, sqlite.ErrNotFound)
}
