package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/saeid-a/TrainerLedgerBack/internal/fees"
	"github.com/saeid-a/TrainerLedgerBack/internal/models"
	"github.com/saeid-a/TrainerLedgerBack/internal/repository"
	"github.com/saeid-a/TrainerLedgerBack/internal/services"
)

type stubLedgerService struct {
	purchaseResult *models.PurchaseDetail
	purchaseErr    error
	summaryResult  *models.PackageSummary
	summaryErr     error
	packagesResult []models.Package
	packagesErr    error
	paymentsResult []models.PaymentRecord
	paymentsTotal  int
	paymentsErr    error
	auditResult    []models.FeeAuditEntry
	auditErr       error

	lastTrainerID     int64
	lastPackageID     int64
	lastActiveOnly    bool
	lastCreateInput   services.CreatePackageInput
	lastTopUpInput    services.TopUpInput
	lastPaymentFilter repository.PaymentListFilter
}

func (s *stubLedgerService) CreatePackage(
	_ context.Context,
	trainerID int64,
	input services.CreatePackageInput,
) (*models.PurchaseDetail, error) {
	s.lastTrainerID = trainerID
	s.lastCreateInput = input
	return s.purchaseResult, s.purchaseErr
}

func (s *stubLedgerService) TopUp(
	_ context.Context,
	trainerID int64,
	input services.TopUpInput,
) (*models.PurchaseDetail, error) {
	s.lastTrainerID = trainerID
	s.lastTopUpInput = input
	return s.purchaseResult, s.purchaseErr
}

func (s *stubLedgerService) GetPackageSummary(
	_ context.Context,
	trainerID int64,
	packageID int64,
) (*models.PackageSummary, error) {
	s.lastTrainerID = trainerID
	s.lastPackageID = packageID
	return s.summaryResult, s.summaryErr
}

func (s *stubLedgerService) ListPackages(
	_ context.Context,
	trainerID int64,
	activeOnly bool,
) ([]models.Package, error) {
	s.lastTrainerID = trainerID
	s.lastActiveOnly = activeOnly
	return s.packagesResult, s.packagesErr
}

func (s *stubLedgerService) ListPayments(
	_ context.Context,
	trainerID int64,
	filter repository.PaymentListFilter,
) ([]models.PaymentRecord, int, error) {
	s.lastTrainerID = trainerID
	s.lastPaymentFilter = filter
	return s.paymentsResult, s.paymentsTotal, s.paymentsErr
}

func (s *stubLedgerService) GetFeeAuditTrail(
	_ context.Context,
	trainerID int64,
	packageID int64,
) ([]models.FeeAuditEntry, error) {
	s.lastTrainerID = trainerID
	s.lastPackageID = packageID
	return s.auditResult, s.auditErr
}

func (s *stubLedgerService) DeactivatePackage(
	_ context.Context,
	trainerID int64,
	packageID int64,
) (*models.Package, error) {
	s.lastTrainerID = trainerID
	s.lastPackageID = packageID
	return &models.Package{ID: packageID, IsActive: false}, nil
}

func newTrainerApp(handler func(*fiber.Ctx) error, method, path string) *fiber.App {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("role", "trainer")
		c.Locals("user_id", "7")
		return c.Next()
	})
	app.Add(method, path, handler)
	return app
}

func jsonRequest(method, target string, payload any) *http.Request {
	body, _ := json.Marshal(payload)
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestCreatePackageForwardsTrainerAndInput(t *testing.T) {
	service := &stubLedgerService{
		purchaseResult: &models.PurchaseDetail{
			Package: models.Package{ID: 5, TrainerID: 7, ClientID: 42, NetAmount: 1_730_700},
		},
	}
	handler := NewPackageHandler(service, fees.NewCalculator(fees.DefaultVATRateBP, fees.DefaultFeeRateBP))

	app := newTrainerApp(handler.CreatePackage, http.MethodPost, "/api/v1/packages")
	req := jsonRequest(http.MethodPost, "/api/v1/packages", map[string]any{
		"client_id":     42,
		"name":          "Quarterly",
		"gross_amount":  1_980_000,
		"session_price": 60_000,
	})

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	if service.lastTrainerID != 7 {
		t.Fatalf("expected trainer id 7, got %d", service.lastTrainerID)
	}
	if service.lastCreateInput.ClientID != 42 || service.lastCreateInput.GrossAmount != 1_980_000 {
		t.Fatalf("unexpected input forwarding: %+v", service.lastCreateInput)
	}

	var payload struct {
		Purchase struct {
			Package map[string]any `json:"package"`
		} `json:"purchase"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if payload.Purchase.Package["id"].(float64) != 5 {
		t.Fatalf("unexpected package payload: %+v", payload.Purchase.Package)
	}
}

func TestCreatePackageRejectsNonTrainer(t *testing.T) {
	service := &stubLedgerService{}
	handler := NewPackageHandler(service, fees.NewCalculator(fees.DefaultVATRateBP, fees.DefaultFeeRateBP))

	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("role", "client")
		c.Locals("user_id", "42")
		return c.Next()
	})
	app.Post("/api/v1/packages", handler.CreatePackage)

	resp, err := app.Test(jsonRequest(http.MethodPost, "/api/v1/packages", map[string]any{
		"client_id":     42,
		"name":          "Quarterly",
		"gross_amount":  1_980_000,
		"session_price": 60_000,
	}))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
	if service.lastTrainerID != 0 {
		t.Fatalf("service must not be called for non-trainers")
	}
}

func TestCreatePackageRejectsNonPositiveAmounts(t *testing.T) {
	service := &stubLedgerService{}
	handler := NewPackageHandler(service, fees.NewCalculator(fees.DefaultVATRateBP, fees.DefaultFeeRateBP))
	app := newTrainerApp(handler.CreatePackage, http.MethodPost, "/api/v1/packages")

	resp, err := app.Test(jsonRequest(http.MethodPost, "/api/v1/packages", map[string]any{
		"client_id":     42,
		"name":          "Quarterly",
		"gross_amount":  0,
		"session_price": 60_000,
	}))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestTopUpMapsLedgerBusyToRetryable(t *testing.T) {
	service := &stubLedgerService{purchaseErr: services.ErrLedgerBusy}
	handler := NewPackageHandler(service, fees.NewCalculator(fees.DefaultVATRateBP, fees.DefaultFeeRateBP))
	app := newTrainerApp(handler.TopUp, http.MethodPost, "/api/v1/packages/:id/topup")

	resp, err := app.Test(jsonRequest(http.MethodPost, "/api/v1/packages/5/topup", map[string]any{
		"gross_amount": 660_000,
	}))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.StatusCode)
	}

	var payload struct {
		Retryable bool `json:"retryable"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !payload.Retryable {
		t.Fatalf("expected retryable flag on busy ledger")
	}
	if service.lastTopUpInput.PackageID != 5 {
		t.Fatalf("expected package id 5, got %d", service.lastTopUpInput.PackageID)
	}
}

func TestTopUpClientRequiresClientID(t *testing.T) {
	service := &stubLedgerService{}
	handler := NewPackageHandler(service, fees.NewCalculator(fees.DefaultVATRateBP, fees.DefaultFeeRateBP))
	app := newTrainerApp(handler.TopUpClient, http.MethodPost, "/api/v1/packages/topup")

	resp, err := app.Test(jsonRequest(http.MethodPost, "/api/v1/packages/topup", map[string]any{
		"gross_amount": 660_000,
	}))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestGetPackageSummaryMapsNotFound(t *testing.T) {
	service := &stubLedgerService{summaryErr: services.ErrPackageNotFound}
	handler := NewPackageHandler(service, fees.NewCalculator(fees.DefaultVATRateBP, fees.DefaultFeeRateBP))
	app := newTrainerApp(handler.GetPackageSummary, http.MethodGet, "/api/v1/packages/:id")

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/packages/99", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestListPackagesForwardsActiveFilter(t *testing.T) {
	service := &stubLedgerService{packagesResult: []models.Package{{ID: 5}}}
	handler := NewPackageHandler(service, fees.NewCalculator(fees.DefaultVATRateBP, fees.DefaultFeeRateBP))
	app := newTrainerApp(handler.ListPackages, http.MethodGet, "/api/v1/packages")

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/packages?active=true", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if !service.lastActiveOnly {
		t.Fatalf("expected active filter to be forwarded")
	}
}

func TestListPaymentsForwardsFiltersAndPaging(t *testing.T) {
	service := &stubLedgerService{paymentsResult: []models.PaymentRecord{}, paymentsTotal: 23}
	handler := NewPackageHandler(service, fees.NewCalculator(fees.DefaultVATRateBP, fees.DefaultFeeRateBP))
	app := newTrainerApp(handler.ListPayments, http.MethodGet, "/api/v1/payments")

	resp, err := app.Test(httptest.NewRequest(
		http.MethodGet,
		"/api/v1/payments?client_id=42&package_id=5&page=2&limit=10",
		nil,
	))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if service.lastPaymentFilter.ClientID != 42 || service.lastPaymentFilter.PackageID != 5 {
		t.Fatalf("unexpected filter forwarding: %+v", service.lastPaymentFilter)
	}
	if service.lastPaymentFilter.Limit != 10 || service.lastPaymentFilter.Offset != 10 {
		t.Fatalf("unexpected paging forwarding: %+v", service.lastPaymentFilter)
	}

	var payload struct {
		Pagination models.PaginationMeta `json:"pagination"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if payload.Pagination.Total != 23 || payload.Pagination.TotalPages != 3 {
		t.Fatalf("unexpected pagination meta: %+v", payload.Pagination)
	}
}

func TestQuoteFeesRequiresExactlyOneAmount(t *testing.T) {
	handler := NewPackageHandler(&stubLedgerService{}, fees.NewCalculator(fees.DefaultVATRateBP, fees.DefaultFeeRateBP))
	app := newTrainerApp(handler.QuoteFees, http.MethodGet, "/api/v1/fees/quote")

	for _, target := range []string{
		"/api/v1/fees/quote",
		"/api/v1/fees/quote?gross=100&net=100",
	} {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, target, nil))
		if err != nil {
			t.Fatalf("app.Test(%s): %v", target, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", target, resp.StatusCode)
		}
	}
}

func TestQuoteFeesDecomposesGross(t *testing.T) {
	handler := NewPackageHandler(&stubLedgerService{}, fees.NewCalculator(fees.DefaultVATRateBP, fees.DefaultFeeRateBP))
	app := newTrainerApp(handler.QuoteFees, http.MethodGet, "/api/v1/fees/quote")

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/fees/quote?gross=1980000", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var payload struct {
		Breakdown struct {
			Gross int64 `json:"gross"`
			VAT   int64 `json:"vat"`
			Fee   int64 `json:"fee"`
			Net   int64 `json:"net"`
		} `json:"breakdown"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if payload.Breakdown.VAT != 180_000 || payload.Breakdown.Fee != 69_300 || payload.Breakdown.Net != 1_730_700 {
		t.Fatalf("unexpected breakdown: %+v", payload.Breakdown)
	}
}
