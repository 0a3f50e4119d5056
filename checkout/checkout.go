package checkout

import (
	"context"
	"errors"

	"github.com/alovak/fakepay/internal/metrics"
	"github.com/alovak/fakepay/internal/tracing"
	"github.com/alovak/fakepay/payments/models"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/exp/slog"
)

// Payments is the two-phase protocol the orchestrator drives. It is
// satisfied by the in-process service and by the HTTP and ISO 8583 clients.
type Payments interface {
	Authorize(ctx context.Context, amount int64) (models.AuthorizationResult, error)
	Complete(ctx context.Context, token string) (models.CompletionResult, error)
}

type Orchestrator struct {
	payments    Payments
	fixedAmount int64
	logger      *slog.Logger
}

// New returns an orchestrator over payments. When fixedAmount is positive it
// is authorized instead of the requested amount.
func New(payments Payments, fixedAmount int64, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		payments:    payments,
		fixedAmount: fixedAmount,
		logger:      logger.With(slog.String("component", "checkout")),
	}
}

// Checkout authorizes amount and completes the authorization, returning the
// transaction id. Each step is attempted once. A declined step returns an
// *Error; transport failures are returned unchanged.
func (o *Orchestrator) Checkout(ctx context.Context, amount int64) (string, error) {
	if o.fixedAmount > 0 {
		amount = o.fixedAmount
	}

	ctx, span := tracing.Tracer().Start(ctx, "checkout")
	defer span.End()
	span.SetAttributes(attribute.Int64("checkout.amount", amount))

	token, err := o.authorize(ctx, amount)
	if err != nil {
		o.fail(span, err)
		return "", err
	}

	txid, err := o.complete(ctx, token)
	if err != nil {
		o.fail(span, err)
		return "", err
	}

	metrics.Checkouts.WithLabelValues(metrics.ResultApproved).Inc()
	span.SetAttributes(attribute.String("checkout.txid", txid))
	return txid, nil
}

func (o *Orchestrator) authorize(ctx context.Context, amount int64) (string, error) {
	ctx, span := tracing.Tracer().Start(ctx, "checkout.authorize")
	defer span.End()

	result, err := o.payments.Authorize(ctx, amount)
	if err != nil {
		return "", err
	}
	if !result.Success {
		o.logger.Info("authorization declined",
			slog.Int64("amount", amount),
			slog.String("code", string(result.FailCode)),
			slog.String("reason", result.FailReason))
		return "", &Error{Stage: StageAuthorize, Code: result.FailCode, Reason: result.FailReason}
	}
	return result.AuthToken, nil
}

func (o *Orchestrator) complete(ctx context.Context, token string) (string, error) {
	ctx, span := tracing.Tracer().Start(ctx, "checkout.complete")
	defer span.End()

	result, err := o.payments.Complete(ctx, token)
	if err != nil {
		o.logger.Warn("completion failed after authorization",
			slog.String("token", token), "err", err)
		metrics.PartialCheckouts.Inc()
		return "", err
	}
	if !result.Success {
		o.logger.Warn("completion declined, authorization left pending",
			slog.String("token", token),
			slog.String("code", string(result.FailCode)),
			slog.String("reason", result.FailReason))
		metrics.PartialCheckouts.Inc()
		return "", &Error{Stage: StageComplete, Code: result.FailCode, Reason: result.FailReason, Token: token}
	}
	return result.TxID, nil
}

func (o *Orchestrator) fail(span trace.Span, err error) {
	result := metrics.ResultError
	switch {
	case errors.Is(err, ErrPartialCheckout):
		result = metrics.ResultPartial
	case errors.Is(err, ErrAuthorizationFailed):
		result = metrics.ResultDeclined
	}
	metrics.Checkouts.WithLabelValues(result).Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
