package models

import (
	"fmt"
	"time"
)

// RequestStatus is the state of a priced member request. The machine is fixed:
// PENDING -> APPROVED | REJECTED; APPROVED -> FULFILLED; any non-terminal
// -> CANCELLED; gateway failures park the request in PAYMENT_FAILED.
type RequestStatus string

const (
	RequestStatusPending       RequestStatus = "PENDING"
	RequestStatusApproved      RequestStatus = "APPROVED"
	RequestStatusRejected      RequestStatus = "REJECTED"
	RequestStatusFulfilled     RequestStatus = "FULFILLED"
	RequestStatusCancelled     RequestStatus = "CANCELLED"
	RequestStatusPaymentFailed RequestStatus = "PAYMENT_FAILED"
)

var requestTransitions = map[RequestStatus][]RequestStatus{
	RequestStatusPending:       {RequestStatusApproved, RequestStatusRejected, RequestStatusCancelled, RequestStatusPaymentFailed},
	RequestStatusApproved:      {RequestStatusFulfilled, RequestStatusCancelled},
	RequestStatusPaymentFailed: {RequestStatusCancelled},
}

// CanTransitionRequest reports whether a request status change is allowed.
func CanTransitionRequest(from, to RequestStatus) bool {
	for _, allowed := range requestTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Terminal reports whether the status admits no further transitions.
func (s RequestStatus) Terminal() bool {
	return s == RequestStatusFulfilled || s == RequestStatusRejected || s == RequestStatusCancelled
}

// PaymentSplit tracks how a priced request is funded. Invariant:
// Wallet + Gateway + Remaining == Total at every observed state.
type PaymentSplit struct {
	TotalAmount     int64 `db:"total_amount" json:"total_amount"`
	WalletAmount    int64 `db:"wallet_amount" json:"wallet_amount"`
	GatewayAmount   int64 `db:"gateway_amount" json:"gateway_amount"`
	RemainingAmount int64 `db:"remaining_amount" json:"remaining_amount"`
}

// Validate checks the split invariant.
func (p PaymentSplit) Validate() error {
	if p.WalletAmount < 0 || p.GatewayAmount < 0 || p.RemainingAmount < 0 {
		return fmt.Errorf("payment split has negative component: %+v", p)
	}
	if p.WalletAmount+p.GatewayAmount+p.RemainingAmount != p.TotalAmount {
		return fmt.Errorf("payment split out of balance: wallet %d + gateway %d + remaining %d != total %d",
			p.WalletAmount, p.GatewayAmount, p.RemainingAmount, p.TotalAmount)
	}
	return nil
}

// SplitFor computes the wallet draw and outstanding gateway share for a total
// given the current wallet balance.
func SplitFor(total, walletBalance int64) PaymentSplit {
	wallet := walletBalance
	if wallet > total {
		wallet = total
	}
	if wallet < 0 {
		wallet = 0
	}
	return PaymentSplit{
		TotalAmount:     total,
		WalletAmount:    wallet,
		GatewayAmount:   0,
		RemainingAmount: total - wallet,
	}
}

// StatusHistoryEntry is one append-only audit row of a request's lifecycle.
type StatusHistoryEntry struct {
	ID          string        `db:"id" json:"id"`
	RequestKind string        `db:"request_kind" json:"request_kind"`
	RequestID   string        `db:"request_id" json:"request_id"`
	FromStatus  RequestStatus `db:"from_status" json:"from_status"`
	ToStatus    RequestStatus `db:"to_status" json:"to_status"`
	Actor       string        `db:"actor" json:"actor"`
	Note        string        `db:"note" json:"note,omitempty"`
	CreatedAt   time.Time     `db:"created_at" json:"created_at"`
}

// Request kinds used in status history and payment correlation.
const (
	RequestKindMembership  = "MEMBERSHIP"
	RequestKindCertificate = "CERTIFICATE"
)

// DeliveryMethod selects how an issued document reaches the member.
type DeliveryMethod string

const (
	DeliveryHome   DeliveryMethod = "HOME"
	DeliveryBranch DeliveryMethod = "BRANCH"
)
