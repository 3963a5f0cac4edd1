package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/saeid-a/TrainerLedgerBack/internal/fees"
	"github.com/saeid-a/TrainerLedgerBack/internal/models"
)

type CreateFeeAuditInput struct {
	PackageID       int64
	PaymentID       int64
	CalculationType string
	Breakdown       fees.Breakdown
	ActorTrainerID  int64
}

// FeeAuditRepository is append-only; entries exist for reconciliation of
// historical rounding behavior and are never mutated.
type FeeAuditRepository struct {
	db DBTX
}

func NewFeeAuditRepository(db DBTX) *FeeAuditRepository {
	return &FeeAuditRepository{db: db}
}

const feeAuditColumns = `id, package_id, payment_id, calculation_type, gross_amount, vat_amount,
		fee_amount, net_amount, vat_rate_bp, fee_rate_bp, actor_trainer_id, created_at`

func scanFeeAudit(row pgx.Row) (*models.FeeAuditEntry, error) {
	var entry models.FeeAuditEntry
	err := row.Scan(
		&entry.ID,
		&entry.PackageID,
		&entry.PaymentID,
		&entry.CalculationType,
		&entry.GrossAmount,
		&entry.VATAmount,
		&entry.FeeAmount,
		&entry.NetAmount,
		&entry.VATRateBP,
		&entry.FeeRateBP,
		&entry.ActorTrainerID,
		&entry.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *FeeAuditRepository) Create(
	ctx context.Context,
	input CreateFeeAuditInput,
) (*models.FeeAuditEntry, error) {
	query := `
		INSERT INTO fee_audit_entries (
			package_id, payment_id, calculation_type, gross_amount, vat_amount, fee_amount,
			net_amount, vat_rate_bp, fee_rate_bp, actor_trainer_id
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING ` + feeAuditColumns

	return scanFeeAudit(r.db.QueryRow(
		ctx,
		query,
		input.PackageID,
		input.PaymentID,
		input.CalculationType,
		input.Breakdown.Gross,
		input.Breakdown.VAT,
		input.Breakdown.Fee,
		input.Breakdown.Net,
		input.Breakdown.VATRateBP,
		input.Breakdown.FeeRateBP,
		input.ActorTrainerID,
	))
}

func (r *FeeAuditRepository) ListByPackage(
	ctx context.Context,
	packageID int64,
) ([]models.FeeAuditEntry, error) {
	query := `
		SELECT ` + feeAuditColumns + `
		FROM fee_audit_entries
		WHERE package_id = $1
		ORDER BY id ASC
	`

	rows, err := r.db.Query(ctx, query, packageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]models.FeeAuditEntry, 0)
	for rows.Next() {
		entry, err := scanFeeAudit(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return entries, nil
}
