package handlers

import (
	"context"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/saeid-a/TrainerLedgerBack/internal/fees"
	"github.com/saeid-a/TrainerLedgerBack/internal/models"
	"github.com/saeid-a/TrainerLedgerBack/internal/repository"
	"github.com/saeid-a/TrainerLedgerBack/internal/services"
)

type PackageHandler struct {
	service    packageLedgerService
	calculator *fees.Calculator
}

type packageLedgerService interface {
	CreatePackage(ctx context.Context, trainerID int64, input services.CreatePackageInput) (*models.PurchaseDetail, error)
	TopUp(ctx context.Context, trainerID int64, input services.TopUpInput) (*models.PurchaseDetail, error)
	GetPackageSummary(ctx context.Context, trainerID int64, packageID int64) (*models.PackageSummary, error)
	ListPackages(ctx context.Context, trainerID int64, activeOnly bool) ([]models.Package, error)
	ListPayments(ctx context.Context, trainerID int64, filter repository.PaymentListFilter) ([]models.PaymentRecord, int, error)
	GetFeeAuditTrail(ctx context.Context, trainerID int64, packageID int64) ([]models.FeeAuditEntry, error)
	DeactivatePackage(ctx context.Context, trainerID int64, packageID int64) (*models.Package, error)
}

func NewPackageHandler(service packageLedgerService, calculator *fees.Calculator) *PackageHandler {
	return &PackageHandler{service: service, calculator: calculator}
}

type createPackageRequest struct {
	ClientID     int64   `json:"client_id"`
	Name         string  `json:"name"`
	GrossAmount  int64   `json:"gross_amount"`
	SessionPrice int64   `json:"session_price"`
	Method       string  `json:"method"`
	Description  *string `json:"description"`
	Notes        *string `json:"notes"`
}

type topUpRequest struct {
	ClientID    int64   `json:"client_id"`
	GrossAmount int64   `json:"gross_amount"`
	Method      string  `json:"method"`
	Description *string `json:"description"`
}

func (h *PackageHandler) CreatePackage(c *fiber.Ctx) error {
	trainerID, ok := requireTrainer(c)
	if !ok {
		return nil
	}

	var req createPackageRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.GrossAmount <= 0 {
		return c.Status(fiber.StatusBadRequest).
			JSON(fiber.Map{"error": "gross_amount must be greater than 0"})
	}
	if req.SessionPrice <= 0 {
		return c.Status(fiber.StatusBadRequest).
			JSON(fiber.Map{"error": "session_price must be greater than 0"})
	}

	detail, err := h.service.CreatePackage(c.Context(), trainerID, services.CreatePackageInput{
		ClientID:     req.ClientID,
		Name:         req.Name,
		GrossAmount:  req.GrossAmount,
		SessionPrice: req.SessionPrice,
		Method:       req.Method,
		Description:  req.Description,
		Notes:        req.Notes,
	})
	if err != nil {
		return mapLedgerError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"purchase": detail})
}

func (h *PackageHandler) TopUp(c *fiber.Ctx) error {
	trainerID, ok := requireTrainer(c)
	if !ok {
		return nil
	}

	packageID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || packageID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid package id"})
	}

	var req topUpRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.GrossAmount <= 0 {
		return c.Status(fiber.StatusBadRequest).
			JSON(fiber.Map{"error": "gross_amount must be greater than 0"})
	}

	detail, err := h.service.TopUp(c.Context(), trainerID, services.TopUpInput{
		PackageID:   packageID,
		GrossAmount: req.GrossAmount,
		Method:      req.Method,
		Description: req.Description,
	})
	if err != nil {
		return mapLedgerError(c, err)
	}

	return c.JSON(fiber.Map{"purchase": detail})
}

// TopUpClient targets the client's latest active package instead of an
// explicit package id.
func (h *PackageHandler) TopUpClient(c *fiber.Ctx) error {
	trainerID, ok := requireTrainer(c)
	if !ok {
		return nil
	}

	var req topUpRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.ClientID <= 0 {
		return c.Status(fiber.StatusBadRequest).
			JSON(fiber.Map{"error": "client_id must be greater than 0"})
	}
	if req.GrossAmount <= 0 {
		return c.Status(fiber.StatusBadRequest).
			JSON(fiber.Map{"error": "gross_amount must be greater than 0"})
	}

	detail, err := h.service.TopUp(c.Context(), trainerID, services.TopUpInput{
		ClientID:    req.ClientID,
		GrossAmount: req.GrossAmount,
		Method:      req.Method,
		Description: req.Description,
	})
	if err != nil {
		return mapLedgerError(c, err)
	}

	return c.JSON(fiber.Map{"purchase": detail})
}

func (h *PackageHandler) GetPackageSummary(c *fiber.Ctx) error {
	trainerID, ok := requireTrainer(c)
	if !ok {
		return nil
	}

	packageID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || packageID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid package id"})
	}

	summary, err := h.service.GetPackageSummary(c.Context(), trainerID, packageID)
	if err != nil {
		return mapLedgerError(c, err)
	}

	return c.JSON(fiber.Map{"summary": summary})
}

func (h *PackageHandler) ListPackages(c *fiber.Ctx) error {
	trainerID, ok := requireTrainer(c)
	if !ok {
		return nil
	}

	activeOnly := strings.TrimSpace(c.Query("active")) == "true"
	packages, err := h.service.ListPackages(c.Context(), trainerID, activeOnly)
	if err != nil {
		return mapLedgerError(c, err)
	}

	return c.JSON(fiber.Map{"packages": packages})
}

func (h *PackageHandler) ListPayments(c *fiber.Ctx) error {
	trainerID, ok := requireTrainer(c)
	if !ok {
		return nil
	}

	page := parsePositiveInt(c.Query("page"), 1)
	limit := parsePositiveInt(c.Query("limit"), defaultPageLimit)
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	filter := repository.PaymentListFilter{
		Limit:  limit,
		Offset: (page - 1) * limit,
	}
	if clientID := c.QueryInt("client_id"); clientID > 0 {
		filter.ClientID = int64(clientID)
	}
	if packageID := c.QueryInt("package_id"); packageID > 0 {
		filter.PackageID = int64(packageID)
	}

	payments, total, err := h.service.ListPayments(c.Context(), trainerID, filter)
	if err != nil {
		return mapLedgerError(c, err)
	}

	return c.JSON(fiber.Map{
		"payments":   payments,
		"pagination": buildPaginationMeta(page, limit, total),
	})
}

func (h *PackageHandler) GetFeeAuditTrail(c *fiber.Ctx) error {
	trainerID, ok := requireTrainer(c)
	if !ok {
		return nil
	}

	packageID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || packageID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid package id"})
	}

	entries, err := h.service.GetFeeAuditTrail(c.Context(), trainerID, packageID)
	if err != nil {
		return mapLedgerError(c, err)
	}

	return c.JSON(fiber.Map{"audit_entries": entries})
}

func (h *PackageHandler) DeactivatePackage(c *fiber.Ctx) error {
	trainerID, ok := requireTrainer(c)
	if !ok {
		return nil
	}

	packageID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || packageID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid package id"})
	}

	pkg, err := h.service.DeactivatePackage(c.Context(), trainerID, packageID)
	if err != nil {
		return mapLedgerError(c, err)
	}

	return c.JSON(fiber.Map{"package": pkg})
}

// QuoteFees previews a fee decomposition (or recomposition when net is
// given) without touching the ledger.
func (h *PackageHandler) QuoteFees(c *fiber.Ctx) error {
	if _, ok := requireTrainer(c); !ok {
		return nil
	}

	gross := int64(c.QueryInt("gross"))
	net := int64(c.QueryInt("net"))
	if (gross > 0) == (net > 0) {
		return c.Status(fiber.StatusBadRequest).
			JSON(fiber.Map{"error": "Provide exactly one of gross or net"})
	}

	var (
		breakdown fees.Breakdown
		err       error
	)
	if gross > 0 {
		breakdown, err = h.calculator.Decompose(gross)
	} else {
		breakdown, err = h.calculator.Recompose(net)
	}
	if err != nil {
		return mapLedgerError(c, err)
	}

	return c.JSON(fiber.Map{"breakdown": breakdown})
}
