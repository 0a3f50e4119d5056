package iso8583

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/alovak/fakepay/payments/models"
	"github.com/moov-io/iso8583"
	connection "github.com/moov-io/iso8583-connection"
	"github.com/moov-io/iso8583-connection/server"
	"golang.org/x/exp/slog"
)

const handleTimeout = 5 * time.Second

// Payments is the protocol the server exposes over ISO 8583.
type Payments interface {
	Authorize(ctx context.Context, amount int64) (models.AuthorizationResult, error)
	Complete(ctx context.Context, token string) (models.CompletionResult, error)
}

// Server accepts ISO 8583 authorization and completion requests over TCP.
type Server struct {
	Addr     string
	logger   *slog.Logger
	payments Payments
	server   *server.Server
}

func NewServer(logger *slog.Logger, addr string, payments Payments) *Server {
	return &Server{
		Addr:     addr,
		logger:   logger.With(slog.String("component", "iso8583-server")),
		payments: payments,
	}
}

func (s *Server) Start() error {
	srv := server.New(spec, readMessageLength, writeMessageLength,
		connection.InboundMessageHandler(s.handleMessage),
	)
	if err := srv.Start(s.Addr); err != nil {
		return fmt.Errorf("starting iso8583 server: %w", err)
	}
	s.server = srv
	s.Addr = srv.Addr
	s.logger.Info("iso8583 server started", slog.String("addr", s.Addr))
	return nil
}

func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}
	s.server.Close()
	return nil
}

func (s *Server) handleMessage(c *connection.Connection, message *iso8583.Message) {
	mti, err := message.GetMTI()
	if err != nil {
		s.logger.Error("reading mti", "err", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
	defer cancel()

	var response *iso8583.Message
	switch mti {
	case MTIAuthorizationRequest:
		response, err = s.authorize(ctx, message)
	case MTICompletionRequest:
		response, err = s.complete(ctx, message)
	default:
		s.logger.Info("unsupported mti", slog.String("mti", mti))
		return
	}
	if err != nil {
		s.logger.Error("building response", slog.String("mti", mti), "err", err)
		return
	}

	if err := c.Reply(response); err != nil {
		s.logger.Error("replying", slog.String("mti", mti), "err", err)
	}
}

func (s *Server) authorize(ctx context.Context, request *iso8583.Message) (*iso8583.Message, error) {
	values := map[int]string{fieldSTAN: getString(request, fieldSTAN)}

	amount, err := strconv.ParseInt(getString(request, fieldAmount), 10, 64)
	if err != nil {
		values[fieldResponseCode] = ResponseInvalidParameter
		values[fieldFailReason] = "amount is required"
		return reply(MTIAuthorizationResponse, values)
	}

	result, err := s.payments.Authorize(ctx, amount)
	switch {
	case err != nil:
		s.logger.Error("authorizing", "err", err)
		values[fieldResponseCode] = ResponseSystemError
	case result.Success:
		values[fieldResponseCode] = ResponseApproved
		values[fieldAuthToken] = result.AuthToken
	default:
		values[fieldResponseCode] = responseCode(result.FailCode)
		values[fieldFailReason] = result.FailReason
	}
	return reply(MTIAuthorizationResponse, values)
}

func (s *Server) complete(ctx context.Context, request *iso8583.Message) (*iso8583.Message, error) {
	values := map[int]string{fieldSTAN: getString(request, fieldSTAN)}

	result, err := s.payments.Complete(ctx, getString(request, fieldAuthToken))
	switch {
	case err != nil:
		s.logger.Error("completing", "err", err)
		values[fieldResponseCode] = ResponseSystemError
	case result.Success:
		values[fieldResponseCode] = ResponseApproved
		values[fieldTxID] = result.TxID
	default:
		values[fieldResponseCode] = responseCode(result.FailCode)
		values[fieldFailReason] = result.FailReason
	}
	return reply(MTICompletionResponse, values)
}

func reply(mti string, values map[int]string) (*iso8583.Message, error) {
	response := iso8583.NewMessage(spec)
	if err := setFields(response, mti, values); err != nil {
		return nil, err
	}
	return response, nil
}

func responseCode(code models.FailureCode) string {
	if code == models.FailureLimitExceeded {
		return ResponseLimitExceeded
	}
	return ResponseInvalidParameter
}
