package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/saeid-a/TrainerLedgerBack/internal/models"
)

type CreateSessionInput struct {
	PackageID       int64
	ClientID        int64
	TrainerID       int64
	ScheduledAt     time.Time
	DurationMinutes int
	Cost            int64
	Notes           *string
}

type SessionListFilter struct {
	TrainerID int64
	ClientID  int64
	Status    string
	Timeframe string
}

type SessionRepository struct {
	db DBTX
}

func NewSessionRepository(db DBTX) *SessionRepository {
	return &SessionRepository{db: db}
}

const sessionColumns = `id, package_id, client_id, trainer_id, scheduled_at, duration_min, cost,
		status, notes, completed_at, created_at, updated_at`

func scanSession(row pgx.Row) (*models.Session, error) {
	var session models.Session
	err := row.Scan(
		&session.ID,
		&session.PackageID,
		&session.ClientID,
		&session.TrainerID,
		&session.ScheduledAt,
		&session.DurationMinutes,
		&session.Cost,
		&session.Status,
		&session.Notes,
		&session.CompletedAt,
		&session.CreatedAt,
		&session.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *SessionRepository) Create(
	ctx context.Context,
	input CreateSessionInput,
) (*models.Session, error) {
	query := `
		INSERT INTO sessions (package_id, client_id, trainer_id, scheduled_at, duration_min, cost, status, notes)
		VALUES ($1, $2, $3, $4, $5, $6, 'scheduled', $7)
		RETURNING ` + sessionColumns

	return scanSession(r.db.QueryRow(
		ctx,
		query,
		input.PackageID,
		input.ClientID,
		input.TrainerID,
		input.ScheduledAt,
		input.DurationMinutes,
		input.Cost,
		input.Notes,
	))
}

func (r *SessionRepository) GetByID(ctx context.Context, sessionID int64) (*models.Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM sessions
		WHERE id = $1
	`
	return scanSession(r.db.QueryRow(ctx, query, sessionID))
}

func (r *SessionRepository) GetByIDForUpdate(
	ctx context.Context,
	sessionID int64,
) (*models.Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM sessions
		WHERE id = $1
		FOR UPDATE
	`
	return scanSession(r.db.QueryRow(ctx, query, sessionID))
}

// CompleteIfScheduled moves a session to completed and stamps completed_at,
// but only from the scheduled state. Terminal states surface as pgx.ErrNoRows.
func (r *SessionRepository) CompleteIfScheduled(
	ctx context.Context,
	sessionID int64,
	notes *string,
) (*models.Session, error) {
	query := `
		UPDATE sessions
		SET status = 'completed', completed_at = NOW(), notes = COALESCE($2, notes), updated_at = NOW()
		WHERE id = $1 AND status = 'scheduled'
		RETURNING ` + sessionColumns

	return scanSession(r.db.QueryRow(ctx, query, sessionID, notes))
}

// CancelIfScheduled moves a session to cancelled from the scheduled state
// only. The optional reason replaces the session notes.
func (r *SessionRepository) CancelIfScheduled(
	ctx context.Context,
	sessionID int64,
	reason *string,
) (*models.Session, error) {
	query := `
		UPDATE sessions
		SET status = 'cancelled', notes = COALESCE($2, notes), updated_at = NOW()
		WHERE id = $1 AND status = 'scheduled'
		RETURNING ` + sessionColumns

	return scanSession(r.db.QueryRow(ctx, query, sessionID, reason))
}

func (r *SessionRepository) ListByPackage(
	ctx context.Context,
	packageID int64,
) ([]models.Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM sessions
		WHERE package_id = $1
		ORDER BY scheduled_at ASC, id ASC
	`

	rows, err := r.db.Query(ctx, query, packageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectSessions(rows)
}

func (r *SessionRepository) List(
	ctx context.Context,
	filter SessionListFilter,
) ([]models.Session, error) {
	args := []any{filter.TrainerID}
	whereParts := []string{"trainer_id = $1"}

	if filter.ClientID > 0 {
		args = append(args, filter.ClientID)
		whereParts = append(whereParts, fmt.Sprintf("client_id = $%d", len(args)))
	}
	if status := strings.TrimSpace(filter.Status); status != "" {
		args = append(args, status)
		whereParts = append(whereParts, fmt.Sprintf("status = $%d", len(args)))
	}

	switch strings.TrimSpace(filter.Timeframe) {
	case "upcoming":
		whereParts = append(
			whereParts,
			"(scheduled_at + (duration_min * INTERVAL '1 minute')) > NOW()",
		)
	case "past":
		whereParts = append(
			whereParts,
			"(scheduled_at + (duration_min * INTERVAL '1 minute')) <= NOW()",
		)
	}

	query := fmt.Sprintf(`
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE %s
		ORDER BY scheduled_at ASC, id ASC
	`, strings.Join(whereParts, " AND "))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectSessions(rows)
}

func collectSessions(rows pgx.Rows) ([]models.Session, error) {
	sessions := make([]models.Session, 0)
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *session)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return sessions, nil
}
