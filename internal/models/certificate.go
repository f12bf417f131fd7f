package models

import "time"

// CertificateType is an issuable certificate definition with its base fee.
type CertificateType struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Body      string    `db:"body" json:"body"`
	Fee       int64     `db:"fee" json:"fee"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// CertificateRequest is a priced request for an issued certificate. Delivery
// adds a method-specific fee; HOME requires an address, BRANCH a target branch.
type CertificateRequest struct {
	ID              string         `db:"id" json:"id"`
	MemberID        string         `db:"member_id" json:"member_id"`
	TypeID          string         `db:"type_id" json:"type_id"`
	IdempotencyKey  string         `db:"idempotency_key" json:"idempotency_key"`
	DeliveryMethod  DeliveryMethod `db:"delivery_method" json:"delivery_method"`
	DeliveryAddress string         `db:"delivery_address" json:"delivery_address,omitempty"`
	TargetBranch    string         `db:"target_branch" json:"target_branch,omitempty"`
	DeliveryFee     int64          `db:"delivery_fee" json:"delivery_fee"`
	Status          RequestStatus  `db:"status" json:"status"`
	WalletRefunded  bool           `db:"wallet_refunded" json:"wallet_refunded"`
	SerialNumber    string         `db:"serial_number" json:"serial_number,omitempty"`
	DocumentPath    string         `db:"document_path" json:"-"`
	PaymentSplit
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// CertificateRequestDetail joins type context for read endpoints.
type CertificateRequestDetail struct {
	CertificateRequest
	TypeName string               `db:"type_name" json:"type_name"`
	History  []StatusHistoryEntry `json:"history,omitempty"`
}
