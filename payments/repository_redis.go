package payments

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/alovak/fakepay/internal/expiry"
	"github.com/alovak/fakepay/payments/models"
	"github.com/redis/go-redis/v9"
)

const (
	authorizationKeyPrefix = "payments:authorization:"
	txidCounterKey         = "payments:txid"
	// completed records outlive their TTL so they can still be inspected
	completedRetention = 24 * time.Hour
)

// insertScript writes a new authorization hash with its TTL in one step.
// It returns 0 when the token is already taken. A non-positive TTL means the
// key never expires.
var insertScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
  return 0
end
redis.call("HSET", KEYS[1], "state", ARGV[1], "amount", ARGV[2], "created_at", ARGV[3])
local ttl = tonumber(ARGV[4])
if ttl > 0 then
  redis.call("PEXPIRE", KEYS[1], ttl)
end
return 1
`)

// completeScript redeems a pending authorization and allocates the next
// transaction id in one atomic step. It returns false when the key is missing
// (never issued or expired) or not pending.
var completeScript = redis.NewScript(`
local state = redis.call("HGET", KEYS[1], "state")
if state ~= "PENDING" then
  return false
end
local txid = redis.call("INCR", KEYS[2])
redis.call("HSET", KEYS[1], "state", "COMPLETED", "completed_at", ARGV[1], "txid", txid)
redis.call("EXPIRE", KEYS[1], ARGV[2])
return txid
`)

// RedisRepository is a ledger on Redis. Authorization expiry is delegated to
// key TTLs, so an expired authorization is indistinguishable from an unknown one.
type RedisRepository struct {
	client *redis.Client
}

func NewRedisRepository(client *redis.Client) *RedisRepository {
	return &RedisRepository{client: client}
}

func (r *RedisRepository) key(token string) string {
	return authorizationKeyPrefix + token
}

func (r *RedisRepository) Insert(ctx context.Context, record *models.AuthorizationRecord) error {
	// -1 keeps the key forever; a lapsed or sub-millisecond TTL still expires
	ttl := int64(-1)
	if remaining := expiry.Remaining(record.ExpiresAt, record.CreatedAt); remaining >= 0 {
		ttl = max(remaining.Milliseconds(), 1)
	}
	created, err := insertScript.Run(ctx, r.client,
		[]string{r.key(record.Token)},
		string(record.State), record.Amount, record.CreatedAt.UnixNano(), ttl,
	).Int64()
	if err != nil {
		return fmt.Errorf("redis insert: %w", err)
	}
	if created == 0 {
		return models.ErrConflict
	}
	return nil
}

func (r *RedisRepository) Complete(ctx context.Context, token string, now time.Time) (uint64, error) {
	if ctx.Err() != nil {
		return 0, ctx.Err()
	}
	res, err := completeScript.Run(ctx, r.client,
		[]string{r.key(token), txidCounterKey},
		now.UnixNano(), int64(completedRetention/time.Second),
	).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, models.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("redis complete: %w", err)
	}
	return uint64(res), nil
}

func (r *RedisRepository) Get(ctx context.Context, token string) (*models.AuthorizationRecord, error) {
	k := r.key(token)
	fields, err := r.client.HGetAll(ctx, k).Result()
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	if len(fields) == 0 {
		return nil, models.ErrNotFound
	}

	record := &models.AuthorizationRecord{
		Token: token,
		State: models.AuthorizationState(fields["state"]),
	}
	record.Amount, _ = strconv.ParseInt(fields["amount"], 10, 64)
	record.CreatedAt = unixNano(fields["created_at"])
	record.CompletedAt = unixNano(fields["completed_at"])
	record.TxID, _ = strconv.ParseUint(fields["txid"], 10, 64)

	if record.State == models.AuthorizationStatePending {
		ttl, err := r.client.PTTL(ctx, k).Result()
		if err != nil {
			return nil, fmt.Errorf("redis pttl: %w", err)
		}
		if ttl > 0 {
			record.ExpiresAt = time.Now().Add(ttl)
		}
	}
	return record, nil
}

// ExpirePending is a no-op: Redis evicts lapsed authorizations itself.
func (r *RedisRepository) ExpirePending(ctx context.Context, now time.Time, batch int) (int, error) {
	return 0, nil
}

func (r *RedisRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func unixNano(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
