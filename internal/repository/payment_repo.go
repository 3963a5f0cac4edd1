package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/saeid-a/TrainerLedgerBack/internal/fees"
	"github.com/saeid-a/TrainerLedgerBack/internal/models"
)

type CreatePaymentInput struct {
	Reference   string
	ClientID    int64
	TrainerID   int64
	PackageID   *int64
	Breakdown   fees.Breakdown
	Method      string
	Description *string
	PaidAt      time.Time
}

// defaultListLimit caps unpaginated list queries.
const defaultListLimit = 100

type PaymentListFilter struct {
	TrainerID int64
	ClientID  int64
	PackageID int64
	Limit     int
	Offset    int
}

// PaymentRepository is append-only: payment rows are inserted once per
// package creation or top-up and no update or delete method exists.
type PaymentRepository struct {
	db DBTX
}

func NewPaymentRepository(db DBTX) *PaymentRepository {
	return &PaymentRepository{db: db}
}

const paymentColumns = `id, reference, client_id, trainer_id, package_id, gross_amount, vat_amount,
		fee_amount, net_amount, vat_rate_bp, fee_rate_bp, method, description, paid_at, created_at`

func scanPayment(row pgx.Row) (*models.PaymentRecord, error) {
	var payment models.PaymentRecord
	err := row.Scan(
		&payment.ID,
		&payment.Reference,
		&payment.ClientID,
		&payment.TrainerID,
		&payment.PackageID,
		&payment.GrossAmount,
		&payment.VATAmount,
		&payment.FeeAmount,
		&payment.NetAmount,
		&payment.VATRateBP,
		&payment.FeeRateBP,
		&payment.Method,
		&payment.Description,
		&payment.PaidAt,
		&payment.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *PaymentRepository) Create(
	ctx context.Context,
	input CreatePaymentInput,
) (*models.PaymentRecord, error) {
	query := `
		INSERT INTO payments (
			reference, client_id, trainer_id, package_id, gross_amount, vat_amount, fee_amount,
			net_amount, vat_rate_bp, fee_rate_bp, method, description, paid_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING ` + paymentColumns

	return scanPayment(r.db.QueryRow(
		ctx,
		query,
		input.Reference,
		input.ClientID,
		input.TrainerID,
		input.PackageID,
		input.Breakdown.Gross,
		input.Breakdown.VAT,
		input.Breakdown.Fee,
		input.Breakdown.Net,
		input.Breakdown.VATRateBP,
		input.Breakdown.FeeRateBP,
		input.Method,
		input.Description,
		input.PaidAt,
	))
}

func (r *PaymentRepository) ListByPackage(
	ctx context.Context,
	packageID int64,
) ([]models.PaymentRecord, error) {
	query := `
		SELECT ` + paymentColumns + `
		FROM payments
		WHERE package_id = $1
		ORDER BY id ASC
	`

	rows, err := r.db.Query(ctx, query, packageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectPayments(rows)
}

func (r *PaymentRepository) List(
	ctx context.Context,
	filter PaymentListFilter,
) ([]models.PaymentRecord, error) {
	query := `
		SELECT ` + paymentColumns + `
		FROM payments
		WHERE trainer_id = $1
		  AND ($2 = 0 OR client_id = $2)
		  AND ($3 = 0 OR package_id = $3)
		ORDER BY id ASC
		LIMIT $4 OFFSET $5
	`

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	rows, err := r.db.Query(
		ctx,
		query,
		filter.TrainerID,
		filter.ClientID,
		filter.PackageID,
		limit,
		filter.Offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectPayments(rows)
}

func (r *PaymentRepository) Count(ctx context.Context, filter PaymentListFilter) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM payments
		WHERE trainer_id = $1
		  AND ($2 = 0 OR client_id = $2)
		  AND ($3 = 0 OR package_id = $3)
	`

	var total int
	err := r.db.QueryRow(ctx, query, filter.TrainerID, filter.ClientID, filter.PackageID).
		Scan(&total)
	if err != nil {
		return 0, err
	}
	return total, nil
}

func collectPayments(rows pgx.Rows) ([]models.PaymentRecord, error) {
	payments := make([]models.PaymentRecord, 0)
	for rows.Next() {
		payment, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, *payment)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return payments, nil
}
