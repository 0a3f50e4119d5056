package models

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidParameter is matched by every caller-recoverable decline:
	// out-of-policy or malformed amounts and unknown, used or expired tokens.
	ErrInvalidParameter = errors.New("invalid parameter")
	// ErrServiceUnavailable means the payment service could not be reached.
	ErrServiceUnavailable = errors.New("payment service unavailable")
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
)

type FailureCode string

const (
	FailureInvalidParameter FailureCode = "INVALID_PARAMETER"
	FailureLimitExceeded    FailureCode = "LIMIT_EXCEEDED"
)

const (
	ReasonAmountExceedsLimit = "too much to pay"
	ReasonNegativeAmount     = "amount must not be negative"
	ReasonAuthCodeInvalid    = "auth code invalid"
)

// Failure is a structured decline returned by the payment service.
type Failure struct {
	Code   FailureCode
	Reason string
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %s", f.Code, f.Reason)
}

func (f *Failure) Is(target error) bool {
	return target == ErrInvalidParameter
}
