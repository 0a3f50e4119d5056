package iso8583

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/alovak/fakepay/payments/models"
	"github.com/moov-io/iso8583"
	connection "github.com/moov-io/iso8583-connection"
)

const sendTimeout = 5 * time.Second

// Client sends authorization and completion requests to a Server.
type Client struct {
	conn *connection.Connection
	stan atomic.Uint32
}

func NewClient(addr string) (*Client, error) {
	conn, err := connection.New(addr, spec, readMessageLength, writeMessageLength,
		connection.SendTimeout(sendTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("creating iso8583 connection: %w", err)
	}
	return &Client{conn: conn}, nil
}

func (c *Client) Connect() error {
	if err := c.conn.Connect(); err != nil {
		return fmt.Errorf("%w: connecting iso8583: %v", models.ErrServiceUnavailable, err)
	}
	return nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) Authorize(ctx context.Context, amount int64) (models.AuthorizationResult, error) {
	if amount < 0 {
		return models.AuthorizationResult{
			FailCode:   models.FailureInvalidParameter,
			FailReason: models.ReasonNegativeAmount,
		}, nil
	}
	if amount > maxAmount {
		// does not fit field 4; the service would reject it on policy anyway
		return models.AuthorizationResult{
			FailCode:   models.FailureLimitExceeded,
			FailReason: models.ReasonAmountExceedsLimit,
		}, nil
	}

	response, err := c.send(ctx, MTIAuthorizationRequest, map[int]string{
		fieldAmount: strconv.FormatInt(amount, 10),
	})
	if err != nil {
		return models.AuthorizationResult{}, err
	}

	switch code := getString(response, fieldResponseCode); code {
	case ResponseApproved:
		return models.AuthorizationResult{Success: true, AuthToken: getString(response, fieldAuthToken)}, nil
	case ResponseSystemError:
		return models.AuthorizationResult{}, fmt.Errorf("%w: authorization response code %s", models.ErrServiceUnavailable, code)
	default:
		return models.AuthorizationResult{
			FailCode:   failureCode(code),
			FailReason: getString(response, fieldFailReason),
		}, nil
	}
}

func (c *Client) Complete(ctx context.Context, token string) (models.CompletionResult, error) {
	if len(token) > maxTokenLength {
		// no token this long is ever issued
		return models.CompletionResult{
			FailCode:   models.FailureInvalidParameter,
			FailReason: models.ReasonAuthCodeInvalid,
		}, nil
	}
	response, err := c.send(ctx, MTICompletionRequest, map[int]string{
		fieldAuthToken: token,
	})
	if err != nil {
		return models.CompletionResult{}, err
	}

	switch code := getString(response, fieldResponseCode); code {
	case ResponseApproved:
		return models.CompletionResult{Success: true, TxID: getString(response, fieldTxID)}, nil
	case ResponseSystemError:
		return models.CompletionResult{}, fmt.Errorf("%w: completion response code %s", models.ErrServiceUnavailable, code)
	default:
		return models.CompletionResult{
			FailCode:   failureCode(code),
			FailReason: getString(response, fieldFailReason),
		}, nil
	}
}

func (c *Client) send(ctx context.Context, mti string, values map[int]string) (*iso8583.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	values[fieldSTAN] = c.nextSTAN()

	request := iso8583.NewMessage(spec)
	if err := setFields(request, mti, values); err != nil {
		return nil, err
	}
	response, err := c.conn.Send(request)
	if err != nil {
		return nil, fmt.Errorf("%w: sending %s: %v", models.ErrServiceUnavailable, mti, err)
	}
	return response, nil
}

func (c *Client) nextSTAN() string {
	n := (c.stan.Add(1)-1)%999_999 + 1
	return fmt.Sprintf("%06d", n)
}

func failureCode(code string) models.FailureCode {
	if code == ResponseLimitExceeded {
		return models.FailureLimitExceeded
	}
	return models.FailureInvalidParameter
}
