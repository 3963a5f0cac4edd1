package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/saeid-a/TrainerLedgerBack/internal/fees"
	"github.com/saeid-a/TrainerLedgerBack/internal/models"
)

type CreatePackageInput struct {
	ClientID     int64
	TrainerID    int64
	Name         string
	Breakdown    fees.Breakdown
	SessionPrice int64
	Notes        *string
}

type PackageRepository struct {
	db DBTX
}

func NewPackageRepository(db DBTX) *PackageRepository {
	return &PackageRepository{db: db}
}

const packageColumns = `id, client_id, trainer_id, name, gross_amount, vat_amount, fee_amount, net_amount,
		vat_rate_bp, fee_rate_bp, session_price, total_sessions, remaining_sessions, remaining_credit,
		notes, is_active, created_at, updated_at`

func scanPackage(row pgx.Row) (*models.Package, error) {
	var pkg models.Package
	err := row.Scan(
		&pkg.ID,
		&pkg.ClientID,
		&pkg.TrainerID,
		&pkg.Name,
		&pkg.GrossAmount,
		&pkg.VATAmount,
		&pkg.FeeAmount,
		&pkg.NetAmount,
		&pkg.VATRateBP,
		&pkg.FeeRateBP,
		&pkg.SessionPrice,
		&pkg.TotalSessions,
		&pkg.RemainingSessions,
		&pkg.RemainingCredit,
		&pkg.Notes,
		&pkg.IsActive,
		&pkg.CreatedAt,
		&pkg.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &pkg, nil
}

// Create inserts a package. Session counts are sized off the gross amount
// charged, not the net credit after fees, and are fixed at creation time.
func (r *PackageRepository) Create(
	ctx context.Context,
	input CreatePackageInput,
) (*models.Package, error) {
	totalSessions := int(input.Breakdown.Gross / input.SessionPrice)

	query := `
		INSERT INTO packages (
			client_id, trainer_id, name, gross_amount, vat_amount, fee_amount, net_amount,
			vat_rate_bp, fee_rate_bp, session_price, total_sessions, remaining_sessions,
			remaining_credit, notes
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11, $12, $13)
		RETURNING ` + packageColumns

	return scanPackage(r.db.QueryRow(
		ctx,
		query,
		input.ClientID,
		input.TrainerID,
		input.Name,
		input.Breakdown.Gross,
		input.Breakdown.VAT,
		input.Breakdown.Fee,
		input.Breakdown.Net,
		input.Breakdown.VATRateBP,
		input.Breakdown.FeeRateBP,
		input.SessionPrice,
		totalSessions,
		input.Breakdown.Net,
		input.Notes,
	))
}

func (r *PackageRepository) GetByID(ctx context.Context, packageID int64) (*models.Package, error) {
	query := `
		SELECT ` + packageColumns + `
		FROM packages
		WHERE id = $1
	`
	return scanPackage(r.db.QueryRow(ctx, query, packageID))
}

// GetByIDForUpdate locks the package row for the rest of the transaction.
// The package row is the lock unit for every balance mutation.
func (r *PackageRepository) GetByIDForUpdate(ctx context.Context, packageID int64) (*models.Package, error) {
	query := `
		SELECT ` + packageColumns + `
		FROM packages
		WHERE id = $1
		FOR UPDATE
	`
	return scanPackage(r.db.QueryRow(ctx, query, packageID))
}

// ApplyTopUp adds a breakdown to the package's running totals and grants the
// sessions the added gross bought at the package's session price.
func (r *PackageRepository) ApplyTopUp(
	ctx context.Context,
	packageID int64,
	breakdown fees.Breakdown,
	addedSessions int,
) (*models.Package, error) {
	query := `
		UPDATE packages
		SET gross_amount = gross_amount + $2,
			vat_amount = vat_amount + $3,
			fee_amount = fee_amount + $4,
			net_amount = net_amount + $5,
			remaining_credit = remaining_credit + $5,
			total_sessions = total_sessions + $6,
			remaining_sessions = remaining_sessions + $6,
			updated_at = NOW()
		WHERE id = $1
		RETURNING ` + packageColumns

	return scanPackage(r.db.QueryRow(
		ctx,
		query,
		packageID,
		breakdown.Gross,
		breakdown.VAT,
		breakdown.Fee,
		breakdown.Net,
		addedSessions,
	))
}

// DeductForSession subtracts one session's cost and one session count. The
// WHERE guard keeps remaining_credit and remaining_sessions non-negative;
// a failed guard surfaces as pgx.ErrNoRows.
func (r *PackageRepository) DeductForSession(
	ctx context.Context,
	packageID int64,
	cost int64,
) (*models.Package, error) {
	query := `
		UPDATE packages
		SET remaining_credit = remaining_credit - $2,
			remaining_sessions = remaining_sessions - 1,
			updated_at = NOW()
		WHERE id = $1
		  AND remaining_credit >= $2
		  AND remaining_sessions > 0
		RETURNING ` + packageColumns

	return scanPackage(r.db.QueryRow(ctx, query, packageID, cost))
}

func (r *PackageRepository) ListByTrainer(
	ctx context.Context,
	trainerID int64,
	activeOnly bool,
) ([]models.Package, error) {
	query := `
		SELECT ` + packageColumns + `
		FROM packages
		WHERE trainer_id = $1 AND ($2 = FALSE OR is_active)
		ORDER BY id ASC
	`

	rows, err := r.db.Query(ctx, query, trainerID, activeOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	packages := make([]models.Package, 0)
	for rows.Next() {
		pkg, err := scanPackage(rows)
		if err != nil {
			return nil, err
		}
		packages = append(packages, *pkg)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return packages, nil
}

// LatestActiveByClient resolves the implicit top-up target when a caller
// tops up a client rather than a specific package.
func (r *PackageRepository) LatestActiveByClient(
	ctx context.Context,
	trainerID int64,
	clientID int64,
) (*models.Package, error) {
	query := `
		SELECT ` + packageColumns + `
		FROM packages
		WHERE trainer_id = $1 AND client_id = $2 AND is_active
		ORDER BY id DESC
		LIMIT 1
	`
	return scanPackage(r.db.QueryRow(ctx, query, trainerID, clientID))
}

// Deactivate flags a package inactive. Packages are never deleted.
func (r *PackageRepository) Deactivate(ctx context.Context, packageID int64) (*models.Package, error) {
	query := `
		UPDATE packages
		SET is_active = FALSE, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + packageColumns

	return scanPackage(r.db.QueryRow(ctx, query, packageID))
}
