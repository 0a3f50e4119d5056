package payments

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/alovak/fakepay/internal/expiry"
	"github.com/alovak/fakepay/internal/metrics"
	"github.com/alovak/fakepay/payments/models"
	"github.com/google/uuid"
	"golang.org/x/exp/slog"
)

const tokenAttempts = 5

type Service struct {
	ledger Ledger
	cfg    *Config
	logger *slog.Logger
	now    func() time.Time
}

func NewService(ledger Ledger, cfg *Config, logger *slog.Logger) *Service {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		ledger: ledger,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "payments")),
		now:    expiry.Now,
	}
}

// Authorize validates that a payment of amount can go through and, if so,
// issues a single-use token that Complete redeems. Declines are reported in
// the result; the error is reserved for ledger failures.
func (s *Service) Authorize(ctx context.Context, amount int64) (models.AuthorizationResult, error) {
	if amount < 0 {
		metrics.Authorizations.WithLabelValues(metrics.ResultInvalid).Inc()
		return models.AuthorizationResult{
			FailCode:   models.FailureInvalidParameter,
			FailReason: models.ReasonNegativeAmount,
		}, nil
	}
	if amount > s.cfg.AmountCeiling {
		metrics.Authorizations.WithLabelValues(metrics.ResultDeclined).Inc()
		s.logger.Info("authorization declined",
			slog.Int64("amount", amount),
			slog.Int64("ceiling", s.cfg.AmountCeiling))
		return models.AuthorizationResult{
			FailCode:   models.FailureLimitExceeded,
			FailReason: models.ReasonAmountExceedsLimit,
		}, nil
	}

	now := s.now()
	for attempt := 0; attempt < tokenAttempts; attempt++ {
		token, err := generateToken()
		if err != nil {
			return models.AuthorizationResult{}, fmt.Errorf("generating token: %w", err)
		}
		record := &models.AuthorizationRecord{
			Token:     token,
			Amount:    amount,
			State:     models.AuthorizationStatePending,
			CreatedAt: now,
			ExpiresAt: expiry.ExpiresAt(now, s.cfg.AuthorizationTTL),
		}
		err = s.ledger.Insert(ctx, record)
		if err == nil {
			metrics.Authorizations.WithLabelValues(metrics.ResultApproved).Inc()
			return models.AuthorizationResult{Success: true, AuthToken: token}, nil
		}
		if errors.Is(err, models.ErrConflict) {
			continue
		}
		metrics.Authorizations.WithLabelValues(metrics.ResultError).Inc()
		return models.AuthorizationResult{}, fmt.Errorf("recording authorization: %w", err)
	}
	metrics.Authorizations.WithLabelValues(metrics.ResultError).Inc()
	return models.AuthorizationResult{}, fmt.Errorf("could not issue unique token after retries")
}

// Complete redeems a pending authorization and returns the transaction id.
// Unknown, used and expired tokens all fail the same way.
func (s *Service) Complete(ctx context.Context, token string) (models.CompletionResult, error) {
	if token == "" {
		metrics.Completions.WithLabelValues(metrics.ResultInvalid).Inc()
		return invalidAuthCode(), nil
	}

	txid, err := s.ledger.Complete(ctx, token, s.now())
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			metrics.Completions.WithLabelValues(metrics.ResultInvalid).Inc()
			return invalidAuthCode(), nil
		}
		metrics.Completions.WithLabelValues(metrics.ResultError).Inc()
		return models.CompletionResult{}, fmt.Errorf("completing authorization: %w", err)
	}

	metrics.Completions.WithLabelValues(metrics.ResultApproved).Inc()
	return models.CompletionResult{
		Success: true,
		TxID:    strconv.FormatUint(txid, 10),
	}, nil
}

// GetPaymentMethods returns the configured catalog of payment method tokens.
func (s *Service) GetPaymentMethods(ctx context.Context) ([]models.PaymentMethod, error) {
	methods := make([]models.PaymentMethod, len(s.cfg.PaymentMethods))
	copy(methods, s.cfg.PaymentMethods)
	return methods, nil
}

// Authorization returns the ledger record for a token. Expired records are
// reported as models.ErrNotFound.
func (s *Service) Authorization(ctx context.Context, token string) (*models.AuthorizationRecord, error) {
	record, err := s.ledger.Get(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("finding authorization: %w", err)
	}
	if record.State == models.AuthorizationStateExpired ||
		(record.State == models.AuthorizationStatePending && !record.Redeemable(s.now())) {
		return nil, fmt.Errorf("finding authorization: %w", models.ErrNotFound)
	}
	return record, nil
}

// ExpirePending marks lapsed pending authorizations expired.
func (s *Service) ExpirePending(ctx context.Context) (int, error) {
	batch := s.cfg.SweepBatch
	if batch <= 0 {
		batch = DefaultConfig().SweepBatch
	}
	n, err := s.ledger.ExpirePending(ctx, s.now(), batch)
	if err != nil {
		return 0, fmt.Errorf("expiring authorizations: %w", err)
	}
	if n > 0 {
		metrics.Expired.Add(float64(n))
		s.logger.Info("expired pending authorizations", slog.Int("count", n))
	}
	return n, nil
}

func (s *Service) Ping(ctx context.Context) error {
	return s.ledger.Ping(ctx)
}

func invalidAuthCode() models.CompletionResult {
	return models.CompletionResult{
		FailCode:   models.FailureInvalidParameter,
		FailReason: models.ReasonAuthCodeInvalid,
	}
}

func generateToken() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
