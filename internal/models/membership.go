package models

import "time"

// MembershipPlan is a fee schedule for a paid membership period.
type MembershipPlan struct {
	ID           string    `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	PeriodMonths int       `db:"period_months" json:"period_months"`
	Fee          int64     `db:"fee" json:"fee"`
	Active       bool      `db:"active" json:"active"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// MembershipApplication is a priced request for a membership period, funded by
// the wallet/gateway split and deduplicated by the caller's idempotency key.
type MembershipApplication struct {
	ID             string        `db:"id" json:"id"`
	MemberID       string        `db:"member_id" json:"member_id"`
	PlanID         string        `db:"plan_id" json:"plan_id"`
	IdempotencyKey string        `db:"idempotency_key" json:"idempotency_key"`
	Status         RequestStatus `db:"status" json:"status"`
	WalletRefunded bool          `db:"wallet_refunded" json:"wallet_refunded"`
	PaymentSplit
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// MembershipApplicationDetail joins plan context for read endpoints.
type MembershipApplicationDetail struct {
	MembershipApplication
	PlanName     string               `db:"plan_name" json:"plan_name"`
	PeriodMonths int                  `db:"period_months" json:"period_months"`
	History      []StatusHistoryEntry `json:"history,omitempty"`
}
