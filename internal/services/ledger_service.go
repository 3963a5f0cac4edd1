package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/saeid-a/TrainerLedgerBack/internal/fees"
	"github.com/saeid-a/TrainerLedgerBack/internal/models"
	"github.com/saeid-a/TrainerLedgerBack/internal/repository"
	ledgerws "github.com/saeid-a/TrainerLedgerBack/internal/websocket"
)

var (
	ErrInvalidInput           = errors.New("invalid input")
	ErrForbidden              = errors.New("forbidden")
	ErrClientNotFound         = errors.New("client not found")
	ErrPackageNotFound        = errors.New("package not found")
	ErrInsufficientBalance    = errors.New("insufficient balance")
	ErrAlreadyCompleted       = errors.New("session already completed")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrLedgerBusy             = errors.New("ledger busy, retry")
	ErrAuditWriteFailed       = errors.New("audit write failed")
)

// Bound on waiting for the package row lock; past it the operation fails
// with ErrLedgerBusy and can be retried since nothing was committed.
const lockTimeoutSQL = "SET LOCAL lock_timeout = '3s'"

type userReader interface {
	GetByID(ctx context.Context, id int64) (*models.User, error)
}

type eventBroadcaster interface {
	Broadcast(event ledgerws.Event)
}

// CreditLedgerService turns gross payments into audited credit and keeps
// package balances, session counters and the append-only payment/audit logs
// consistent. Every balance mutation runs in one transaction that locks the
// package row, so concurrent top-ups and completions serialize instead of
// applying against stale balances.
type CreditLedgerService struct {
	db          *pgxpool.Pool
	calculator  *fees.Calculator
	packageRepo *repository.PackageRepository
	sessionRepo *repository.SessionRepository
	paymentRepo *repository.PaymentRepository
	auditRepo   *repository.FeeAuditRepository
	userRepo    userReader
	events      eventBroadcaster
}

func NewCreditLedgerService(
	db *pgxpool.Pool,
	calculator *fees.Calculator,
	packageRepo *repository.PackageRepository,
	sessionRepo *repository.SessionRepository,
	paymentRepo *repository.PaymentRepository,
	auditRepo *repository.FeeAuditRepository,
	userRepo userReader,
	events eventBroadcaster,
) *CreditLedgerService {
	return &CreditLedgerService{
		db:          db,
		calculator:  calculator,
		packageRepo: packageRepo,
		sessionRepo: sessionRepo,
		paymentRepo: paymentRepo,
		auditRepo:   auditRepo,
		userRepo:    userRepo,
		events:      events,
	}
}

type CreatePackageInput struct {
	ClientID     int64
	Name         string
	GrossAmount  int64
	SessionPrice int64
	Method       string
	Description  *string
	Notes        *string
}

// CreatePackage sells a new package: decomposes the gross payment, seeds the
// package balances and writes the payment and fee-audit rows, all in one
// transaction. Exactly one payment and one audit entry exist per commit.
func (s *CreditLedgerService) CreatePackage(
	ctx context.Context,
	trainerID int64,
	input CreatePackageInput,
) (*models.PurchaseDetail, error) {
	if input.ClientID <= 0 || input.SessionPrice <= 0 || strings.TrimSpace(input.Name) == "" {
		return nil, ErrInvalidInput
	}
	if input.ClientID == trainerID {
		return nil, ErrInvalidInput
	}

	client, err := s.userRepo.GetByID(ctx, input.ClientID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrClientNotFound
		}
		return nil, err
	}
	if client.Role != "client" {
		return nil, ErrInvalidInput
	}

	breakdown, err := s.calculator.Decompose(input.GrossAmount)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	txPackageRepo := repository.NewPackageRepository(tx)

	pkg, err := txPackageRepo.Create(ctx, repository.CreatePackageInput{
		ClientID:     input.ClientID,
		TrainerID:    trainerID,
		Name:         strings.TrimSpace(input.Name),
		Breakdown:    breakdown,
		SessionPrice: input.SessionPrice,
		Notes:        input.Notes,
	})
	if err != nil {
		return nil, err
	}

	payment, audit, err := s.recordPurchase(
		ctx, tx, pkg, breakdown, trainerID,
		models.CalculationTypeCreation, input.Method, input.Description,
	)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	s.publish(ledgerws.Event{
		Type:              ledgerws.EventPackageCreated,
		TrainerID:         strconv.FormatInt(trainerID, 10),
		PackageID:         pkg.ID,
		RemainingCredit:   pkg.RemainingCredit,
		RemainingSessions: pkg.RemainingSessions,
	})

	return &models.PurchaseDetail{Package: *pkg, Payment: *payment, Audit: *audit}, nil
}

type TopUpInput struct {
	PackageID   int64
	ClientID    int64
	GrossAmount int64
	Method      string
	Description *string
}

// TopUp adds a gross payment to an existing package. The target is either an
// explicit package id or, when only a client id is given, the client's latest
// active package. The package row is locked for the whole transaction.
func (s *CreditLedgerService) TopUp(
	ctx context.Context,
	trainerID int64,
	input TopUpInput,
) (*models.PurchaseDetail, error) {
	if input.PackageID <= 0 && input.ClientID <= 0 {
		return nil, ErrInvalidInput
	}

	breakdown, err := s.calculator.Decompose(input.GrossAmount)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if _, err := tx.Exec(ctx, lockTimeoutSQL); err != nil {
		return nil, err
	}

	txPackageRepo := repository.NewPackageRepository(tx)

	packageID := input.PackageID
	if packageID <= 0 {
		latest, err := txPackageRepo.LatestActiveByClient(ctx, trainerID, input.ClientID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, ErrPackageNotFound
			}
			return nil, err
		}
		packageID = latest.ID
	}

	pkg, err := txPackageRepo.GetByIDForUpdate(ctx, packageID)
	if err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			return nil, ErrPackageNotFound
		case isLockTimeout(err):
			return nil, ErrLedgerBusy
		}
		return nil, err
	}
	if pkg.TrainerID != trainerID {
		return nil, ErrForbidden
	}
	if !pkg.IsActive {
		return nil, ErrInvalidInput
	}

	addedSessions := int(breakdown.Gross / pkg.SessionPrice)
	pkg, err = txPackageRepo.ApplyTopUp(ctx, pkg.ID, breakdown, addedSessions)
	if err != nil {
		return nil, err
	}

	payment, audit, err := s.recordPurchase(
		ctx, tx, pkg, breakdown, trainerID,
		models.CalculationTypeTopUp, input.Method, input.Description,
	)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	s.publish(ledgerws.Event{
		Type:              ledgerws.EventPackageToppedUp,
		TrainerID:         strconv.FormatInt(trainerID, 10),
		PackageID:         pkg.ID,
		RemainingCredit:   pkg.RemainingCredit,
		RemainingSessions: pkg.RemainingSessions,
	})

	return &models.PurchaseDetail{Package: *pkg, Payment: *payment, Audit: *audit}, nil
}

// recordPurchase writes the payment and fee-audit rows inside the caller's
// transaction. A failed write aborts the whole purchase: money movement
// without an audit trail must never be committed.
func (s *CreditLedgerService) recordPurchase(
	ctx context.Context,
	tx repository.DBTX,
	pkg *models.Package,
	breakdown fees.Breakdown,
	trainerID int64,
	calculationType string,
	method string,
	description *string,
) (*models.PaymentRecord, *models.FeeAuditEntry, error) {
	payment, err := repository.NewPaymentRepository(tx).Create(ctx, repository.CreatePaymentInput{
		Reference:   uuid.NewString(),
		ClientID:    pkg.ClientID,
		TrainerID:   trainerID,
		PackageID:   &pkg.ID,
		Breakdown:   breakdown,
		Method:      normalizeMethod(method),
		Description: description,
		PaidAt:      time.Now().UTC(),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("%w: payment record: %v", ErrAuditWriteFailed, err)
	}

	audit, err := repository.NewFeeAuditRepository(tx).Create(ctx, repository.CreateFeeAuditInput{
		PackageID:       pkg.ID,
		PaymentID:       payment.ID,
		CalculationType: calculationType,
		Breakdown:       breakdown,
		ActorTrainerID:  trainerID,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("%w: fee audit entry: %v", ErrAuditWriteFailed, err)
	}

	return payment, audit, nil
}

type ScheduleSessionInput struct {
	PackageID       int64
	ScheduledAt     time.Time
	DurationMinutes int
	Notes           *string
}

// ScheduleSession books a session against a package. The cost is copied from
// the package's session price and reserved implicitly: nothing is deducted
// until the session completes.
func (s *CreditLedgerService) ScheduleSession(
	ctx context.Context,
	trainerID int64,
	input ScheduleSessionInput,
) (*models.Session, error) {
	if input.PackageID <= 0 || input.DurationMinutes <= 0 || input.ScheduledAt.IsZero() {
		return nil, ErrInvalidInput
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if _, err := tx.Exec(ctx, lockTimeoutSQL); err != nil {
		return nil, err
	}

	pkg, err := repository.NewPackageRepository(tx).GetByIDForUpdate(ctx, input.PackageID)
	if err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			return nil, ErrPackageNotFound
		case isLockTimeout(err):
			return nil, ErrLedgerBusy
		}
		return nil, err
	}
	if pkg.TrainerID != trainerID {
		return nil, ErrForbidden
	}
	if !pkg.IsActive {
		return nil, ErrInvalidInput
	}
	if pkg.RemainingSessions <= 0 || pkg.RemainingCredit < pkg.SessionPrice {
		return nil, ErrInsufficientBalance
	}

	session, err := repository.NewSessionRepository(tx).Create(ctx, repository.CreateSessionInput{
		PackageID:       pkg.ID,
		ClientID:        pkg.ClientID,
		TrainerID:       trainerID,
		ScheduledAt:     input.ScheduledAt.UTC(),
		DurationMinutes: input.DurationMinutes,
		Cost:            pkg.SessionPrice,
		Notes:           input.Notes,
	})
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	s.publish(ledgerws.Event{
		Type:              ledgerws.EventSessionBooked,
		TrainerID:         strconv.FormatInt(trainerID, 10),
		PackageID:         pkg.ID,
		SessionID:         session.ID,
		RemainingCredit:   pkg.RemainingCredit,
		RemainingSessions: pkg.RemainingSessions,
	})

	return session, nil
}

// CompleteSession moves a scheduled session to completed and deducts its cost
// and one session count from the owning package. The package row is locked
// first, so two completions on the same package serialize and neither applies
// against a stale balance.
func (s *CreditLedgerService) CompleteSession(
	ctx context.Context,
	trainerID int64,
	sessionID int64,
	notes *string,
) (*models.Session, error) {
	if sessionID <= 0 {
		return nil, ErrInvalidInput
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if _, err := tx.Exec(ctx, lockTimeoutSQL); err != nil {
		return nil, err
	}

	txSessionRepo := repository.NewSessionRepository(tx)
	txPackageRepo := repository.NewPackageRepository(tx)

	session, err := txSessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.TrainerID != trainerID {
		return nil, ErrForbidden
	}

	// Lock order: package first, then the session transitively through it.
	pkg, err := txPackageRepo.GetByIDForUpdate(ctx, session.PackageID)
	if err != nil {
		if isLockTimeout(err) {
			return nil, ErrLedgerBusy
		}
		return nil, err
	}

	session, err = txSessionRepo.GetByIDForUpdate(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	switch session.Status {
	case models.SessionStatusScheduled:
	case models.SessionStatusCompleted:
		return nil, ErrAlreadyCompleted
	default:
		return nil, ErrInvalidStateTransition
	}

	completed, err := txSessionRepo.CompleteIfScheduled(ctx, sessionID, notes)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvalidStateTransition
		}
		return nil, err
	}

	pkg, err = txPackageRepo.DeductForSession(ctx, pkg.ID, completed.Cost)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInsufficientBalance
		}
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	s.publish(ledgerws.Event{
		Type:              ledgerws.EventSessionDone,
		TrainerID:         strconv.FormatInt(trainerID, 10),
		PackageID:         pkg.ID,
		SessionID:         completed.ID,
		RemainingCredit:   pkg.RemainingCredit,
		RemainingSessions: pkg.RemainingSessions,
	})

	return completed, nil
}

// CancelSession releases a scheduled session. The cost was never deducted,
// so cancellation is a pure status change; terminal states fail the
// compare-and-set and report ErrInvalidStateTransition.
func (s *CreditLedgerService) CancelSession(
	ctx context.Context,
	trainerID int64,
	sessionID int64,
	reason *string,
) (*models.Session, error) {
	if sessionID <= 0 {
		return nil, ErrInvalidInput
	}

	session, err := s.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.TrainerID != trainerID {
		return nil, ErrForbidden
	}

	cancelled, err := s.sessionRepo.CancelIfScheduled(ctx, sessionID, reason)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvalidStateTransition
		}
		return nil, err
	}

	s.publish(ledgerws.Event{
		Type:      ledgerws.EventSessionDropped,
		TrainerID: strconv.FormatInt(trainerID, 10),
		PackageID: cancelled.PackageID,
		SessionID: cancelled.ID,
	})

	return cancelled, nil
}

// GetPackageSummary is a pure projection of ledger state; it never touches
// the fee calculator.
func (s *CreditLedgerService) GetPackageSummary(
	ctx context.Context,
	trainerID int64,
	packageID int64,
) (*models.PackageSummary, error) {
	pkg, err := s.packageRepo.GetByID(ctx, packageID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPackageNotFound
		}
		return nil, err
	}
	if pkg.TrainerID != trainerID {
		return nil, ErrForbidden
	}

	sessions, err := s.sessionRepo.ListByPackage(ctx, packageID)
	if err != nil {
		return nil, err
	}

	return buildPackageSummary(pkg, sessions), nil
}

func buildPackageSummary(pkg *models.Package, sessions []models.Session) *models.PackageSummary {
	usedSessions := pkg.TotalSessions - pkg.RemainingSessions
	utilization := 0
	if pkg.TotalSessions > 0 {
		utilization = usedSessions * 100 / pkg.TotalSessions
	}

	return &models.PackageSummary{
		Package:            *pkg,
		Sessions:           sessions,
		UsedCredits:        pkg.NetAmount - pkg.RemainingCredit,
		UsedSessions:       usedSessions,
		UtilizationPercent: utilization,
	}
}

func (s *CreditLedgerService) ListPackages(
	ctx context.Context,
	trainerID int64,
	activeOnly bool,
) ([]models.Package, error) {
	return s.packageRepo.ListByTrainer(ctx, trainerID, activeOnly)
}

func (s *CreditLedgerService) ListSessions(
	ctx context.Context,
	trainerID int64,
	filter repository.SessionListFilter,
) ([]models.Session, error) {
	filter.TrainerID = trainerID
	return s.sessionRepo.List(ctx, filter)
}

func (s *CreditLedgerService) GetSession(
	ctx context.Context,
	trainerID int64,
	sessionID int64,
) (*models.Session, error) {
	session, err := s.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.TrainerID != trainerID {
		return nil, ErrForbidden
	}
	return session, nil
}

// ListPayments returns one page of payment history plus the unpaged total.
func (s *CreditLedgerService) ListPayments(
	ctx context.Context,
	trainerID int64,
	filter repository.PaymentListFilter,
) ([]models.PaymentRecord, int, error) {
	filter.TrainerID = trainerID

	payments, err := s.paymentRepo.List(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	total, err := s.paymentRepo.Count(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	return payments, total, nil
}

func (s *CreditLedgerService) GetFeeAuditTrail(
	ctx context.Context,
	trainerID int64,
	packageID int64,
) ([]models.FeeAuditEntry, error) {
	pkg, err := s.packageRepo.GetByID(ctx, packageID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPackageNotFound
		}
		return nil, err
	}
	if pkg.TrainerID != trainerID {
		return nil, ErrForbidden
	}

	return s.auditRepo.ListByPackage(ctx, packageID)
}

// DeactivatePackage retires a package from further scheduling and top-ups.
// Its history stays queryable; packages are never deleted.
func (s *CreditLedgerService) DeactivatePackage(
	ctx context.Context,
	trainerID int64,
	packageID int64,
) (*models.Package, error) {
	pkg, err := s.packageRepo.GetByID(ctx, packageID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPackageNotFound
		}
		return nil, err
	}
	if pkg.TrainerID != trainerID {
		return nil, ErrForbidden
	}

	return s.packageRepo.Deactivate(ctx, packageID)
}

func (s *CreditLedgerService) publish(event ledgerws.Event) {
	if s.events == nil {
		return
	}
	s.events.Broadcast(event)
}

func normalizeMethod(method string) string {
	method = strings.ToLower(strings.TrimSpace(method))
	if method == "" {
		return "card"
	}
	return method
}

func isLockTimeout(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "55P03"
}
