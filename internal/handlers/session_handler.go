package handlers

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/saeid-a/TrainerLedgerBack/internal/models"
	"github.com/saeid-a/TrainerLedgerBack/internal/repository"
	"github.com/saeid-a/TrainerLedgerBack/internal/services"
)

type SessionHandler struct {
	service sessionLedgerService
}

type sessionLedgerService interface {
	ScheduleSession(ctx context.Context, trainerID int64, input services.ScheduleSessionInput) (*models.Session, error)
	CompleteSession(ctx context.Context, trainerID int64, sessionID int64, notes *string) (*models.Session, error)
	CancelSession(ctx context.Context, trainerID int64, sessionID int64, reason *string) (*models.Session, error)
	GetSession(ctx context.Context, trainerID int64, sessionID int64) (*models.Session, error)
	ListSessions(ctx context.Context, trainerID int64, filter repository.SessionListFilter) ([]models.Session, error)
}

func NewSessionHandler(service sessionLedgerService) *SessionHandler {
	return &SessionHandler{service: service}
}

type scheduleSessionRequest struct {
	PackageID       int64   `json:"package_id"`
	ScheduledAt     string  `json:"scheduled_at"`
	DurationMinutes int     `json:"duration_minutes"`
	Notes           *string `json:"notes"`
}

type completeSessionRequest struct {
	Notes *string `json:"notes"`
}

type cancelSessionRequest struct {
	Reason *string `json:"reason"`
}

func (h *SessionHandler) ScheduleSession(c *fiber.Ctx) error {
	trainerID, ok := requireTrainer(c)
	if !ok {
		return nil
	}

	var req scheduleSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	scheduledAt, err := time.Parse(time.RFC3339, strings.TrimSpace(req.ScheduledAt))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).
			JSON(fiber.Map{"error": "scheduled_at must be a valid RFC3339 timestamp"})
	}
	if req.DurationMinutes <= 0 {
		return c.Status(fiber.StatusBadRequest).
			JSON(fiber.Map{"error": "duration_minutes must be greater than 0"})
	}

	session, err := h.service.ScheduleSession(c.Context(), trainerID, services.ScheduleSessionInput{
		PackageID:       req.PackageID,
		ScheduledAt:     scheduledAt,
		DurationMinutes: req.DurationMinutes,
		Notes:           req.Notes,
	})
	if err != nil {
		return mapLedgerError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"session": session})
}

func (h *SessionHandler) CompleteSession(c *fiber.Ctx) error {
	trainerID, ok := requireTrainer(c)
	if !ok {
		return nil
	}

	sessionID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || sessionID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid session id"})
	}

	var req completeSessionRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
		}
	}

	session, err := h.service.CompleteSession(c.Context(), trainerID, sessionID, req.Notes)
	if err != nil {
		return mapLedgerError(c, err)
	}

	return c.JSON(fiber.Map{"session": session})
}

func (h *SessionHandler) CancelSession(c *fiber.Ctx) error {
	trainerID, ok := requireTrainer(c)
	if !ok {
		return nil
	}

	sessionID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || sessionID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid session id"})
	}

	var req cancelSessionRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
		}
	}

	session, err := h.service.CancelSession(c.Context(), trainerID, sessionID, req.Reason)
	if err != nil {
		return mapLedgerError(c, err)
	}

	return c.JSON(fiber.Map{"session": session})
}

func (h *SessionHandler) GetSession(c *fiber.Ctx) error {
	trainerID, ok := requireTrainer(c)
	if !ok {
		return nil
	}

	sessionID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || sessionID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid session id"})
	}

	session, err := h.service.GetSession(c.Context(), trainerID, sessionID)
	if err != nil {
		return mapLedgerError(c, err)
	}

	return c.JSON(fiber.Map{"session": session})
}

func (h *SessionHandler) ListSessions(c *fiber.Ctx) error {
	trainerID, ok := requireTrainer(c)
	if !ok {
		return nil
	}

	timeframe := strings.TrimSpace(c.Query("timeframe"))
	if timeframe != "" && timeframe != "upcoming" && timeframe != "past" {
		return c.Status(fiber.StatusBadRequest).
			JSON(fiber.Map{"error": "timeframe must be upcoming or past"})
	}

	filter := repository.SessionListFilter{
		Status:    strings.TrimSpace(c.Query("status")),
		Timeframe: timeframe,
	}
	if clientID := c.QueryInt("client_id"); clientID > 0 {
		filter.ClientID = int64(clientID)
	}

	sessions, err := h.service.ListSessions(c.Context(), trainerID, filter)
	if err != nil {
		return mapLedgerError(c, err)
	}

	return c.JSON(fiber.Map{"sessions": sessions})
}
