package models

import "time"

const (
	CalculationTypeCreation = "creation"
	CalculationTypeTopUp    = "topup"
)

// PaymentRecord is an append-only record of money received. Rows are inserted
// once per package creation or top-up and never updated or deleted.
type PaymentRecord struct {
	ID          int64     `json:"id"`
	Reference   string    `json:"reference"`
	ClientID    int64     `json:"client_id"`
	TrainerID   int64     `json:"trainer_id"`
	PackageID   *int64    `json:"package_id"`
	GrossAmount int64     `json:"gross_amount"`
	VATAmount   int64     `json:"vat_amount"`
	FeeAmount   int64     `json:"fee_amount"`
	NetAmount   int64     `json:"net_amount"`
	VATRateBP   int64     `json:"vat_rate_bp"`
	FeeRateBP   int64     `json:"fee_rate_bp"`
	Method      string    `json:"method"`
	Description *string   `json:"description"`
	PaidAt      time.Time `json:"paid_at"`
	CreatedAt   time.Time `json:"created_at"`
}

type PaginationMeta struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// FeeAuditEntry records one fee calculation alongside the payment it backed,
// for reconciliation of historical rounding behavior. Insert-only.
type FeeAuditEntry struct {
	ID              int64     `json:"id"`
	PackageID       int64     `json:"package_id"`
	PaymentID       int64     `json:"payment_id"`
	CalculationType string    `json:"calculation_type"`
	GrossAmount     int64     `json:"gross_amount"`
	VATAmount       int64     `json:"vat_amount"`
	FeeAmount       int64     `json:"fee_amount"`
	NetAmount       int64     `json:"net_amount"`
	VATRateBP       int64     `json:"vat_rate_bp"`
	FeeRateBP       int64     `json:"fee_rate_bp"`
	ActorTrainerID  int64     `json:"actor_trainer_id"`
	CreatedAt       time.Time `json:"created_at"`
}
