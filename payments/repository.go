package payments

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alovak/fakepay/payments/models"
	"github.com/jackc/pgconn"
	"github.com/lib/pq"
)

// Ledger stores authorization records and allocates transaction IDs.
type Ledger interface {
	// Insert stores a new pending record. It returns models.ErrConflict when the token exists.
	Insert(ctx context.Context, record *models.AuthorizationRecord) error
	// Complete moves a redeemable record to completed and returns the allocated
	// transaction ID. Anything else returns models.ErrNotFound and leaves the ledger unchanged,
	// except that a lapsed pending record is marked expired.
	Complete(ctx context.Context, token string, now time.Time) (uint64, error)
	// Get returns a copy of the record, or models.ErrNotFound.
	Get(ctx context.Context, token string) (*models.AuthorizationRecord, error)
	// ExpirePending marks up to batch lapsed pending records expired and returns how many.
	ExpirePending(ctx context.Context, now time.Time, batch int) (int, error)
	Ping(ctx context.Context) error
}

type entry struct {
	mu     sync.Mutex
	record models.AuthorizationRecord
}

// Repository is the in-memory ledger, or a Postgres-backed one when built with NewPGRepository.
type Repository struct {
	mu      sync.RWMutex
	entries map[string]*entry
	txid    atomic.Uint64

	db *sql.DB
}

func NewRepository() *Repository {
	return &Repository{
		entries: make(map[string]*entry),
	}
}

// NewPGRepository constructs a db-backed repository.
func NewPGRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Insert(ctx context.Context, record *models.AuthorizationRecord) error {
	if r.db == nil {
		r.mu.Lock()
		defer r.mu.Unlock()
		if _, ok := r.entries[record.Token]; ok {
			return fmt.Errorf("token exists: %w", models.ErrConflict)
		}
		r.entries[record.Token] = &entry{record: *record}
		return nil
	}
	_, err := r.db.ExecContext(ctx, `
        INSERT INTO payments.authorizations(token, amount, state, created_at, expires_at)
        VALUES ($1,$2,$3,$4,$5)
    `, record.Token, record.Amount, string(record.State), record.CreatedAt, nullTime(record.ExpiresAt))
	if isUniqueViolation(err) {
		return models.ErrConflict
	}
	return err
}

func (r *Repository) lookup(token string) (*entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[token]
	return e, ok
}

func (r *Repository) Complete(ctx context.Context, token string, now time.Time) (uint64, error) {
	if r.db == nil {
		e, ok := r.lookup(token)
		if !ok {
			return 0, models.ErrNotFound
		}
		// only this record is locked; other tokens complete in parallel
		e.mu.Lock()
		defer e.mu.Unlock()
		if !e.record.Redeemable(now) {
			if e.record.State == models.AuthorizationStatePending {
				e.record.State = models.AuthorizationStateExpired
			}
			return 0, models.ErrNotFound
		}
		txid := r.txid.Add(1)
		e.record.State = models.AuthorizationStateCompleted
		e.record.CompletedAt = now
		e.record.TxID = txid
		return txid, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, "set local statement_timeout = '3s'"); err != nil {
		return 0, err
	}

	var state string
	var expiresAt sql.NullTime
	err = tx.QueryRowContext(ctx, `
      select state, expires_at from payments.authorizations where token=$1 for update
    `, token).Scan(&state, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, models.ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	record := models.AuthorizationRecord{State: models.AuthorizationState(state), ExpiresAt: expiresAt.Time}
	if !record.Redeemable(now) {
		if record.State == models.AuthorizationStatePending {
			if _, err := tx.ExecContext(ctx, `update payments.authorizations set state='EXPIRED' where token=$1`, token); err != nil {
				return 0, err
			}
			if err := tx.Commit(); err != nil {
				return 0, err
			}
		}
		return 0, models.ErrNotFound
	}

	var txid uint64
	if err := tx.QueryRowContext(ctx, `
      update payments.authorizations
         set state='COMPLETED', completed_at=$2, txid=nextval('payments.txid_seq')
       where token=$1
      returning txid
    `, token, now).Scan(&txid); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return txid, nil
}

func (r *Repository) Get(ctx context.Context, token string) (*models.AuthorizationRecord, error) {
	if r.db == nil {
		e, ok := r.lookup(token)
		if !ok {
			return nil, models.ErrNotFound
		}
		e.mu.Lock()
		defer e.mu.Unlock()
		record := e.record
		return &record, nil
	}
	row := r.db.QueryRowContext(ctx, `
        SELECT token, amount, state, created_at, expires_at, completed_at, txid
          FROM payments.authorizations WHERE token=$1
    `, token)
	var record models.AuthorizationRecord
	var state string
	var expiresAt, completedAt sql.NullTime
	var txid sql.NullInt64
	if err := row.Scan(&record.Token, &record.Amount, &state, &record.CreatedAt, &expiresAt, &completedAt, &txid); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	record.State = models.AuthorizationState(state)
	record.ExpiresAt = expiresAt.Time
	record.CompletedAt = completedAt.Time
	record.TxID = uint64(txid.Int64)
	return &record, nil
}

func (r *Repository) ExpirePending(ctx context.Context, now time.Time, batch int) (int, error) {
	if r.db == nil {
		r.mu.RLock()
		candidates := make([]*entry, 0)
		for _, e := range r.entries {
			candidates = append(candidates, e)
		}
		r.mu.RUnlock()

		expired := 0
		for _, e := range candidates {
			if expired >= batch {
				break
			}
			e.mu.Lock()
			if e.record.State == models.AuthorizationStatePending && !e.record.Redeemable(now) {
				e.record.State = models.AuthorizationStateExpired
				expired++
			}
			e.mu.Unlock()
		}
		return expired, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, "set local statement_timeout = '5s'"); err != nil {
		return 0, err
	}
	res, err := tx.ExecContext(ctx, `
      update payments.authorizations set state='EXPIRED'
       where token in (
         select token from payments.authorizations
          where state='PENDING' and expires_at is not null and expires_at < $1
          order by expires_at asc
          limit $2 for update skip locked
       )
    `, now, batch)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return int(n), nil
}

// Ping returns DB readiness
func (r *Repository) Ping(ctx context.Context) error {
	if r.db == nil {
		return nil
	}
	return r.db.PingContext(ctx)
}

const schema = `
create schema if not exists payments;
create sequence if not exists payments.txid_seq;
create table if not exists payments.authorizations (
    token        text primary key,
    amount       bigint not null check (amount >= 0),
    state        text not null,
    created_at   timestamptz not null,
    expires_at   timestamptz,
    completed_at timestamptz,
    txid         bigint unique
);
create index if not exists authorizations_pending_expiry
    on payments.authorizations (expires_at) where state = 'PENDING';
`

// Migrate creates the ledger schema when it does not exist.
func (r *Repository) Migrate(ctx context.Context) error {
	if r.db == nil {
		return nil
	}
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrating payments schema: %w", err)
	}
	return nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

func isUniqueViolation(err error) bool {
	var pe *pq.Error
	if errors.As(err, &pe) && pe.Code == "23505" {
		return true
	}
	var pgerr *pgconn.PgError
	if errors.As(err, &pgerr) && pgerr.Code == "23505" {
		return true
	}
	return false
}
