package handlers

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"

	"github.com/saeid-a/TrainerLedgerBack/internal/fees"
	"github.com/saeid-a/TrainerLedgerBack/internal/services"
)

func parseActorID(c *fiber.Ctx) (int64, error) {
	userIDValue := c.Locals("user_id")
	userIDStr, ok := userIDValue.(string)
	if !ok {
		return 0, strconv.ErrSyntax
	}
	return strconv.ParseInt(userIDStr, 10, 64)
}

// requireTrainer resolves the authenticated trainer id or writes the
// appropriate error response and returns ok=false.
func requireTrainer(c *fiber.Ctx) (int64, bool) {
	role, ok := c.Locals("role").(string)
	if !ok || role != "trainer" {
		_ = c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
		return 0, false
	}

	trainerID, err := parseActorID(c)
	if err != nil {
		_ = c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
		return 0, false
	}
	return trainerID, true
}

func mapLedgerError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, services.ErrInvalidInput), errors.Is(err, fees.ErrInvalidAmount):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, services.ErrForbidden):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	case errors.Is(err, services.ErrClientNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Client not found"})
	case errors.Is(err, services.ErrPackageNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Package not found"})
	case errors.Is(err, services.ErrInsufficientBalance):
		return c.Status(fiber.StatusUnprocessableEntity).
			JSON(fiber.Map{"error": "Insufficient remaining sessions or credit"})
	case errors.Is(err, services.ErrAlreadyCompleted),
		errors.Is(err, services.ErrInvalidStateTransition):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, services.ErrLedgerBusy):
		return c.Status(fiber.StatusServiceUnavailable).
			JSON(fiber.Map{"error": "Ledger busy", "retryable": true})
	case errors.Is(err, services.ErrAuditWriteFailed):
		return c.Status(fiber.StatusInternalServerError).
			JSON(fiber.Map{"error": "Failed to record payment audit trail"})
	case errors.Is(err, pgx.ErrNoRows):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Not found"})
	default:
		return c.Status(fiber.StatusInternalServerError).
			JSON(fiber.Map{"error": "Failed to process ledger request"})
	}
}
