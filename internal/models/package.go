package models

import "time"

// Package is one prepaid credit pool a trainer sold to a client. Money fields
// are integer minor currency units; rates are basis points (10000 bp = 100%).
// Gross/vat/fee/net are running totals across the initial sale and every
// top-up. A package is never deleted, only flagged inactive.
type Package struct {
	ID                int64     `json:"id"`
	ClientID          int64     `json:"client_id"`
	TrainerID         int64     `json:"trainer_id"`
	Name              string    `json:"name"`
	GrossAmount       int64     `json:"gross_amount"`
	VATAmount         int64     `json:"vat_amount"`
	FeeAmount         int64     `json:"fee_amount"`
	NetAmount         int64     `json:"net_amount"`
	VATRateBP         int64     `json:"vat_rate_bp"`
	FeeRateBP         int64     `json:"fee_rate_bp"`
	SessionPrice      int64     `json:"session_price"`
	TotalSessions     int       `json:"total_sessions"`
	RemainingSessions int       `json:"remaining_sessions"`
	RemainingCredit   int64     `json:"remaining_credit"`
	Notes             *string   `json:"notes"`
	IsActive          bool      `json:"is_active"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// PurchaseDetail bundles the package with the payment and audit rows written
// in the same transaction as a creation or top-up.
type PurchaseDetail struct {
	Package Package       `json:"package"`
	Payment PaymentRecord `json:"payment"`
	Audit   FeeAuditEntry `json:"audit"`
}

// PackageSummary is a read-only projection of a package and its sessions.
type PackageSummary struct {
	Package            Package   `json:"package"`
	Sessions           []Session `json:"sessions"`
	UsedCredits        int64     `json:"used_credits"`
	UsedSessions       int       `json:"used_sessions"`
	UtilizationPercent int       `json:"utilization_percent"`
}
