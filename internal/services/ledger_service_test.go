package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/saeid-a/TrainerLedgerBack/internal/fees"
	"github.com/saeid-a/TrainerLedgerBack/internal/models"
	"github.com/saeid-a/TrainerLedgerBack/internal/repository"
	ledgerws "github.com/saeid-a/TrainerLedgerBack/internal/websocket"
)

type stubUserRepo struct {
	user *models.User
	err  error
}

func (r *stubUserRepo) GetByID(_ context.Context, _ int64) (*models.User, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.user, nil
}

type stubBroadcaster struct {
	events []ledgerws.Event
}

func (b *stubBroadcaster) Broadcast(event ledgerws.Event) {
	b.events = append(b.events, event)
}

type stubRow struct {
	values []any
	err    error
}

func (r stubRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i := range dest {
		switch target := dest[i].(type) {
		case *int64:
			*target = r.values[i].(int64)
		case **int64:
			*target = r.values[i].(*int64)
		case *int:
			*target = r.values[i].(int)
		case *string:
			*target = r.values[i].(string)
		case **string:
			*target = r.values[i].(*string)
		case *bool:
			*target = r.values[i].(bool)
		case *time.Time:
			*target = r.values[i].(time.Time)
		case **time.Time:
			*target = r.values[i].(*time.Time)
		default:
			return errors.New("unsupported scan target")
		}
	}
	return nil
}

type stubDBTX struct {
	queryRowFn func(ctx context.Context, query string, args ...any) stubRow
}

func (db *stubDBTX) Exec(_ context.Context, _ string, _ ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}

func (db *stubDBTX) Query(_ context.Context, _ string, _ ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func (db *stubDBTX) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	return db.queryRowFn(ctx, query, args...)
}

var testTime = time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)

func sessionRowValues(trainerID int64, status string) []any {
	return []any{
		int64(11), int64(5), int64(42), trainerID, testTime, 60, int64(60_000),
		status, (*string)(nil), (*time.Time)(nil), testTime, testTime,
	}
}

func newTestService(sessionDB *stubDBTX, userRepo userReader, events eventBroadcaster) *CreditLedgerService {
	var sessionRepo *repository.SessionRepository
	if sessionDB != nil {
		sessionRepo = repository.NewSessionRepository(sessionDB)
	}
	return NewCreditLedgerService(
		nil,
		fees.NewCalculator(fees.DefaultVATRateBP, fees.DefaultFeeRateBP),
		nil,
		sessionRepo,
		nil,
		nil,
		userRepo,
		events,
	)
}

func TestCreatePackageRejectsInvalidInput(t *testing.T) {
	service := newTestService(nil, nil, nil)

	cases := []CreatePackageInput{
		{ClientID: 0, Name: "Starter", GrossAmount: 100, SessionPrice: 10},
		{ClientID: 42, Name: "   ", GrossAmount: 100, SessionPrice: 10},
		{ClientID: 42, Name: "Starter", GrossAmount: 100, SessionPrice: 0},
		{ClientID: 7, Name: "Starter", GrossAmount: 100, SessionPrice: 10}, // client == trainer
	}
	for _, input := range cases {
		if _, err := service.CreatePackage(context.Background(), 7, input); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("CreatePackage(%+v): expected ErrInvalidInput, got %v", input, err)
		}
	}
}

func TestCreatePackageRejectsNonPositiveGross(t *testing.T) {
	userRepo := &stubUserRepo{user: &models.User{ID: 42, Role: "client"}}
	service := newTestService(nil, userRepo, nil)

	_, err := service.CreatePackage(context.Background(), 7, CreatePackageInput{
		ClientID:     42,
		Name:         "Starter",
		GrossAmount:  0,
		SessionPrice: 60_000,
	})
	if !errors.Is(err, fees.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestCreatePackageRejectsUnknownClient(t *testing.T) {
	service := newTestService(nil, &stubUserRepo{err: pgx.ErrNoRows}, nil)

	_, err := service.CreatePackage(context.Background(), 7, CreatePackageInput{
		ClientID:     42,
		Name:         "Starter",
		GrossAmount:  1_980_000,
		SessionPrice: 60_000,
	})
	if !errors.Is(err, ErrClientNotFound) {
		t.Fatalf("expected ErrClientNotFound, got %v", err)
	}
}

func TestCreatePackageRejectsNonClientRole(t *testing.T) {
	service := newTestService(nil, &stubUserRepo{user: &models.User{ID: 42, Role: "trainer"}}, nil)

	_, err := service.CreatePackage(context.Background(), 7, CreatePackageInput{
		ClientID:     42,
		Name:         "Starter",
		GrossAmount:  1_980_000,
		SessionPrice: 60_000,
	})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestTopUpRequiresTarget(t *testing.T) {
	service := newTestService(nil, nil, nil)

	_, err := service.TopUp(context.Background(), 7, TopUpInput{GrossAmount: 660_000})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestScheduleSessionRejectsInvalidInput(t *testing.T) {
	service := newTestService(nil, nil, nil)

	cases := []ScheduleSessionInput{
		{PackageID: 0, ScheduledAt: testTime, DurationMinutes: 60},
		{PackageID: 5, ScheduledAt: testTime, DurationMinutes: 0},
		{PackageID: 5, DurationMinutes: 60},
	}
	for _, input := range cases {
		if _, err := service.ScheduleSession(context.Background(), 7, input); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("ScheduleSession(%+v): expected ErrInvalidInput, got %v", input, err)
		}
	}
}

func TestCancelSessionRequiresOwnership(t *testing.T) {
	db := &stubDBTX{
		queryRowFn: func(_ context.Context, query string, _ ...any) stubRow {
			if strings.Contains(query, "FROM sessions") {
				return stubRow{values: sessionRowValues(9, models.SessionStatusScheduled)}
			}
			return stubRow{err: pgx.ErrNoRows}
		},
	}
	service := newTestService(db, nil, nil)

	_, err := service.CancelSession(context.Background(), 7, 11, nil)
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestCancelSessionFromTerminalState(t *testing.T) {
	db := &stubDBTX{
		queryRowFn: func(_ context.Context, query string, _ ...any) stubRow {
			if strings.Contains(query, "UPDATE sessions") {
				// CAS misses: the session is no longer scheduled.
				return stubRow{err: pgx.ErrNoRows}
			}
			return stubRow{values: sessionRowValues(7, models.SessionStatusCancelled)}
		},
	}
	service := newTestService(db, nil, nil)

	_, err := service.CancelSession(context.Background(), 7, 11, nil)
	if !errors.Is(err, ErrInvalidStateTransition) {
		t.Fatalf("expected ErrInvalidStateTransition, got %v", err)
	}
}

func TestCancelSessionPublishesEvent(t *testing.T) {
	db := &stubDBTX{
		queryRowFn: func(_ context.Context, query string, _ ...any) stubRow {
			if strings.Contains(query, "UPDATE sessions") {
				return stubRow{values: sessionRowValues(7, models.SessionStatusCancelled)}
			}
			return stubRow{values: sessionRowValues(7, models.SessionStatusScheduled)}
		},
	}
	events := &stubBroadcaster{}
	service := newTestService(db, nil, events)

	session, err := service.CancelSession(context.Background(), 7, 11, nil)
	if err != nil {
		t.Fatalf("CancelSession: %v", err)
	}
	if session.Status != models.SessionStatusCancelled {
		t.Fatalf("expected cancelled session, got %q", session.Status)
	}

	if len(events.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events.events))
	}
	if events.events[0].Type != ledgerws.EventSessionDropped {
		t.Errorf("expected %s event, got %s", ledgerws.EventSessionDropped, events.events[0].Type)
	}
	if events.events[0].TrainerID != "7" {
		t.Errorf("expected trainer id 7 in event, got %q", events.events[0].TrainerID)
	}
}

func paymentRowValues(packageID int64) []any {
	return []any{
		int64(21), "ref-1", int64(42), int64(7), &packageID,
		int64(660_000), int64(60_000), int64(23_100), int64(576_900),
		int64(1000), int64(350), "card", (*string)(nil), testTime, testTime,
	}
}

func TestRecordPurchaseWrapsPaymentInsertFailure(t *testing.T) {
	service := newTestService(nil, nil, nil)
	breakdown, err := fees.NewCalculator(fees.DefaultVATRateBP, fees.DefaultFeeRateBP).Decompose(660_000)
	if err != nil {
		t.Fatalf("Decompose: %v", err)
	}

	insertErr := errors.New("connection reset")
	db := &stubDBTX{
		queryRowFn: func(_ context.Context, _ string, _ ...any) stubRow {
			return stubRow{err: insertErr}
		},
	}

	pkg := &models.Package{ID: 5, ClientID: 42}
	_, _, err = service.recordPurchase(
		context.Background(), db, pkg, breakdown, 7,
		models.CalculationTypeCreation, "card", nil,
	)
	if !errors.Is(err, ErrAuditWriteFailed) {
		t.Fatalf("expected ErrAuditWriteFailed, got %v", err)
	}
}

func TestRecordPurchaseWrapsAuditInsertFailure(t *testing.T) {
	service := newTestService(nil, nil, nil)
	breakdown, err := fees.NewCalculator(fees.DefaultVATRateBP, fees.DefaultFeeRateBP).Decompose(660_000)
	if err != nil {
		t.Fatalf("Decompose: %v", err)
	}

	insertErr := errors.New("connection reset")
	db := &stubDBTX{
		queryRowFn: func(_ context.Context, query string, _ ...any) stubRow {
			if strings.Contains(query, "INSERT INTO payments") {
				return stubRow{values: paymentRowValues(5)}
			}
			return stubRow{err: insertErr}
		},
	}

	pkg := &models.Package{ID: 5, ClientID: 42}
	_, _, err = service.recordPurchase(
		context.Background(), db, pkg, breakdown, 7,
		models.CalculationTypeTopUp, "card", nil,
	)
	if !errors.Is(err, ErrAuditWriteFailed) {
		t.Fatalf("expected ErrAuditWriteFailed, got %v", err)
	}
}

func TestGetSessionRequiresOwnership(t *testing.T) {
	db := &stubDBTX{
		queryRowFn: func(_ context.Context, _ string, _ ...any) stubRow {
			return stubRow{values: sessionRowValues(9, models.SessionStatusScheduled)}
		},
	}
	service := newTestService(db, nil, nil)

	if _, err := service.GetSession(context.Background(), 7, 11); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestBuildPackageSummary(t *testing.T) {
	pkg := &models.Package{
		NetAmount:         1_730_700,
		RemainingCredit:   1_550_700,
		TotalSessions:     33,
		RemainingSessions: 30,
	}

	summary := buildPackageSummary(pkg, nil)

	if summary.UsedCredits != 180_000 {
		t.Errorf("expected used credits 180000, got %d", summary.UsedCredits)
	}
	if summary.UsedSessions != 3 {
		t.Errorf("expected 3 used sessions, got %d", summary.UsedSessions)
	}
	if summary.UtilizationPercent != 9 {
		t.Errorf("expected 9%% utilization, got %d", summary.UtilizationPercent)
	}
}

func TestBuildPackageSummaryEmptyPackage(t *testing.T) {
	summary := buildPackageSummary(&models.Package{}, nil)
	if summary.UtilizationPercent != 0 {
		t.Errorf("expected 0%% utilization for empty package, got %d", summary.UtilizationPercent)
	}
}

func TestIsLockTimeout(t *testing.T) {
	if !isLockTimeout(&pgconn.PgError{Code: "55P03"}) {
		t.Error("expected lock_not_available to be a lock timeout")
	}
	if isLockTimeout(&pgconn.PgError{Code: "23505"}) {
		t.Error("unique violation must not be a lock timeout")
	}
	if isLockTimeout(errors.New("plain error")) {
		t.Error("plain error must not be a lock timeout")
	}
}

func TestNormalizeMethod(t *testing.T) {
	if got := normalizeMethod("  Card "); got != "card" {
		t.Errorf("expected card, got %q", got)
	}
	if got := normalizeMethod(""); got != "card" {
		t.Errorf("expected card default, got %q", got)
	}
	if got := normalizeMethod("bank_transfer"); got != "bank_transfer" {
		t.Errorf("expected bank_transfer, got %q", got)
	}
}
