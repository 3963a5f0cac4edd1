package models

import "time"

const (
	SessionStatusScheduled = "scheduled"
	SessionStatusCompleted = "completed"
	SessionStatusCancelled = "cancelled"
)

// Session is one training appointment drawing against a package. Cost is
// copied from the package's session price at scheduling time and immutable
// afterwards; it is only deducted from the package on completion.
type Session struct {
	ID              int64      `json:"id"`
	PackageID       int64      `json:"package_id"`
	ClientID        int64      `json:"client_id"`
	TrainerID       int64      `json:"trainer_id"`
	ScheduledAt     time.Time  `json:"scheduled_at"`
	DurationMinutes int        `json:"duration_minutes"`
	Cost            int64      `json:"cost"`
	Status          string     `json:"status"`
	Notes           *string    `json:"notes"`
	CompletedAt     *time.Time `json:"completed_at"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}
