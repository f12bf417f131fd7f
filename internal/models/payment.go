package models

import "time"

// PaymentStatus tracks an external gateway charge.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentConfirmed PaymentStatus = "CONFIRMED"
	PaymentFailed    PaymentStatus = "FAILED"
)

// PaymentTransaction correlates one gateway charge with the request it funds.
// GatewayRef is unique; callbacks are matched on it and applied idempotently.
type PaymentTransaction struct {
	ID          string        `db:"id" json:"id"`
	RequestKind string        `db:"request_kind" json:"request_kind"`
	RequestID   string        `db:"request_id" json:"request_id"`
	MemberID    string        `db:"member_id" json:"member_id"`
	GatewayRef  string        `db:"gateway_ref" json:"gateway_ref"`
	Amount      int64         `db:"amount" json:"amount"`
	Currency    string        `db:"currency" json:"currency"`
	Status      PaymentStatus `db:"status" json:"status"`
	CreatedAt   time.Time     `db:"created_at" json:"created_at"`
	SettledAt   *time.Time    `db:"settled_at" json:"settled_at,omitempty"`
}
