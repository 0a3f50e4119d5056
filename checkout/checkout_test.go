package checkout

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/alovak/fakepay/payments/models"
	"github.com/stretchr/testify/require"
)

type mockPayments struct {
	authorized     []int64
	authResult     models.AuthorizationResult
	authErr        error
	completed      []string
	completeResult models.CompletionResult
	completeErr    error
}

func (m *mockPayments) Authorize(ctx context.Context, amount int64) (models.AuthorizationResult, error) {
	m.authorized = append(m.authorized, amount)
	return m.authResult, m.authErr
}

func (m *mockPayments) Complete(ctx context.Context, token string) (models.CompletionResult, error) {
	m.completed = append(m.completed, token)
	return m.completeResult, m.completeErr
}

func approvingPayments() *mockPayments {
	return &mockPayments{
		authResult:     models.AuthorizationResult{Success: true, AuthToken: "T1"},
		completeResult: models.CompletionResult{Success: true, TxID: "1"},
	}
}

func TestCheckoutSuccess(t *testing.T) {
	payments := approvingPayments()
	orchestrator := New(payments, 0, nil)

	txid, err := orchestrator.Checkout(context.Background(), 10)
	require.NoError(t, err)
	require.Equal(t, "1", txid)
	require.Equal(t, []int64{10}, payments.authorized)
	require.Equal(t, []string{"T1"}, payments.completed)
}

func TestCheckoutAuthorizationDeclined(t *testing.T) {
	payments := &mockPayments{
		authResult: models.AuthorizationResult{
			FailCode:   models.FailureLimitExceeded,
			FailReason: models.ReasonAmountExceedsLimit,
		},
	}
	orchestrator := New(payments, 0, nil)

	txid, err := orchestrator.Checkout(context.Background(), 150)
	require.Empty(t, txid)
	require.ErrorIs(t, err, ErrAuthorizationFailed)
	require.ErrorIs(t, err, models.ErrInvalidParameter)
	require.NotErrorIs(t, err, ErrPartialCheckout)

	var checkoutErr *Error
	require.ErrorAs(t, err, &checkoutErr)
	require.Equal(t, StageAuthorize, checkoutErr.Stage)
	require.Equal(t, models.ReasonAmountExceedsLimit, checkoutErr.Reason)
	require.Equal(t, models.FailureLimitExceeded, checkoutErr.Code)

	// complete must not be attempted with a fabricated token
	require.Empty(t, payments.completed)
}

func TestCheckoutPartialFailure(t *testing.T) {
	payments := approvingPayments()
	payments.completeResult = models.CompletionResult{
		FailCode:   models.FailureInvalidParameter,
		FailReason: models.ReasonAuthCodeInvalid,
	}
	orchestrator := New(payments, 0, nil)

	_, err := orchestrator.Checkout(context.Background(), 10)
	require.ErrorIs(t, err, ErrPartialCheckout)
	require.NotErrorIs(t, err, ErrAuthorizationFailed)

	var checkoutErr *Error
	require.ErrorAs(t, err, &checkoutErr)
	require.Equal(t, StageComplete, checkoutErr.Stage)
	require.Equal(t, "T1", checkoutErr.Token)
	require.Equal(t, models.ReasonAuthCodeInvalid, checkoutErr.Reason)

	var failure *models.Failure
	require.ErrorAs(t, err, &failure)
	require.Equal(t, models.FailureInvalidParameter, failure.Code)
}

func TestCheckoutServiceUnavailable(t *testing.T) {
	unavailable := fmt.Errorf("%w: dial tcp: connection refused", models.ErrServiceUnavailable)

	t.Run("on authorize", func(t *testing.T) {
		payments := &mockPayments{authErr: unavailable}
		_, err := New(payments, 0, nil).Checkout(context.Background(), 10)
		require.Same(t, unavailable, err)
		require.Empty(t, payments.completed)
	})

	t.Run("on complete", func(t *testing.T) {
		payments := approvingPayments()
		payments.completeErr = unavailable
		_, err := New(payments, 0, nil).Checkout(context.Background(), 10)
		require.True(t, errors.Is(err, models.ErrServiceUnavailable))
		require.Same(t, unavailable, err)
	})
}

func TestCheckoutFixedAmount(t *testing.T) {
	payments := approvingPayments()
	orchestrator := New(payments, 10, nil)

	_, err := orchestrator.Checkout(context.Background(), 99)
	require.NoError(t, err)
	require.Equal(t, []int64{10}, payments.authorized)
}

func TestCheckoutCallsEachStepOnce(t *testing.T) {
	payments := approvingPayments()
	payments.completeErr = errors.New("boom")
	orchestrator := New(payments, 0, nil)

	_, err := orchestrator.Checkout(context.Background(), 10)
	require.Error(t, err)
	require.Len(t, payments.authorized, 1)
	require.Len(t, payments.completed, 1)
}
