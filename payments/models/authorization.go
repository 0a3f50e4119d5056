package models

import (
	"time"

	"github.com/alovak/fakepay/internal/expiry"
)

type AuthorizationRequest struct {
	Amount int64 `json:"amount"`
}

type AuthorizationResult struct {
	Success    bool        `json:"success"`
	AuthToken  string      `json:"auth_token,omitempty"`
	FailReason string      `json:"fail_reason,omitempty"`
	FailCode   FailureCode `json:"fail_code,omitempty"`
}

// Err returns nil for a successful authorization and a *Failure otherwise.
func (r AuthorizationResult) Err() error {
	if r.Success {
		return nil
	}
	return &Failure{Code: r.FailCode, Reason: r.FailReason}
}

type CompletionRequest struct {
	AuthToken string `json:"auth_token"`
}

type CompletionResult struct {
	Success    bool        `json:"success"`
	TxID       string      `json:"txid,omitempty"`
	FailReason string      `json:"fail_reason,omitempty"`
	FailCode   FailureCode `json:"fail_code,omitempty"`
}

func (r CompletionResult) Err() error {
	if r.Success {
		return nil
	}
	return &Failure{Code: r.FailCode, Reason: r.FailReason}
}

type AuthorizationState string

const (
	AuthorizationStatePending   AuthorizationState = "PENDING"
	AuthorizationStateCompleted AuthorizationState = "COMPLETED"
	AuthorizationStateExpired   AuthorizationState = "EXPIRED"
)

// AuthorizationRecord is the ledger entry behind an authorization token.
// ExpiresAt is zero when authorizations never lapse.
type AuthorizationRecord struct {
	Token       string             `json:"token"`
	Amount      int64              `json:"amount"`
	State       AuthorizationState `json:"state"`
	CreatedAt   time.Time          `json:"created_at"`
	ExpiresAt   time.Time          `json:"expires_at,omitempty"`
	CompletedAt time.Time          `json:"completed_at,omitempty"`
	TxID        uint64             `json:"txid,omitempty"`
}

// Redeemable reports whether the record can still be completed at the given time.
func (r *AuthorizationRecord) Redeemable(at time.Time) bool {
	return r.State == AuthorizationStatePending && !expiry.IsExpired(r.ExpiresAt, at)
}
