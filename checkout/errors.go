package checkout

import (
	"errors"
	"fmt"

	"github.com/alovak/fakepay/payments/models"
)

var (
	ErrAuthorizationFailed = errors.New("authorization failed")
	// ErrPartialCheckout means the authorization succeeded but completion
	// failed, leaving a pending authorization behind.
	ErrPartialCheckout = errors.New("partial checkout")
)

type Stage string

const (
	StageAuthorize Stage = "authorize"
	StageComplete  Stage = "complete"
)

// Error is a checkout declined by the payment service at one of its stages.
type Error struct {
	Stage  Stage
	Code   models.FailureCode
	Reason string
	// Token is the orphaned authorization for a StageComplete failure.
	Token string
}

func (e *Error) Error() string {
	return fmt.Sprintf("checkout %s failed: %s", e.Stage, e.Reason)
}

func (e *Error) Unwrap() []error {
	sentinel := ErrAuthorizationFailed
	if e.Stage == StageComplete {
		sentinel = ErrPartialCheckout
	}
	return []error{sentinel, &models.Failure{Code: e.Code, Reason: e.Reason}}
}
