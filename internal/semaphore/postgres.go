package semaphore

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/relaycore/relay/internal/dbmetrics"
)

const component = "semaphore"

func classify(err error) string { return dbmetrics.DefaultClassifier(err) }

// PostgresStore is the Postgres adapter for Store, calling the
// semaphore_try_acquire/renew/release/reap functions defined in
// schema/migrations. The row lock taken on the semaphores row inside
// semaphore_try_acquire is what linearises concurrent acquires per name -
// see that function's comment for the derivation from the source's
// "underlying transaction serialises the increment" invariant.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore { return &PostgresStore{pool: pool} }

func (s *PostgresStore) EnsureExists(ctx context.Context, name string, limit int) error {
	if err := validateName(name); err != nil {
		return err
	}
	if err := validateLimit(limit); err != nil {
		return err
	}
	return dbmetrics.InstrumentVoid(component, "ensure_exists", classify, func() error {
		_, err := s.pool.Exec(ctx, `SELECT semaphore_ensure_exists($1, $2)`, name, limit)
		return err
	})
}

func (s *PostgresStore) TryAcquire(ctx context.Context, name string, ttlSeconds int, ownerID string, clientRequestID *string) (AcquireResult, error) {
	if err := validateName(name); err != nil {
		return AcquireResult{}, err
	}
	if err := validateTTL(ttlSeconds); err != nil {
		return AcquireResult{}, err
	}
	if ownerID == "" {
		return AcquireResult{}, ErrInvalidArgument
	}

	return dbmetrics.Instrument(component, "try_acquire", classify, func() (AcquireResult, error) {
		token := uuid.New()
		var result AcquireResult
		var tokenOut uuid.UUID
		err := s.pool.QueryRow(ctx, `SELECT acquired, out_token, fencing, expires_at_utc FROM semaphore_try_acquire($1, $2, $3, $4, $5)`,
			name, ttlSeconds, ownerID, clientRequestID, token).
			Scan(&result.Acquired, &tokenOut, &result.Fencing, &result.ExpiresAtUTC)
		if err != nil {
			return AcquireResult{}, err
		}
		if result.Acquired {
			result.Token = tokenOut.String()
		}
		return result, nil
	})
}

func (s *PostgresStore) Renew(ctx context.Context, name, token string, ttlSeconds int) (RenewResult, error) {
	if err := validateTTL(ttlSeconds); err != nil {
		return RenewResult{}, err
	}
	return dbmetrics.Instrument(component, "renew", classify, func() (RenewResult, error) {
		var result RenewResult
		err := s.pool.QueryRow(ctx, `SELECT renewed, expires_at_utc FROM semaphore_renew($1, $2, $3)`, name, token, ttlSeconds).
			Scan(&result.Renewed, &result.ExpiresAtUTC)
		return result, err
	})
}

func (s *PostgresStore) Release(ctx context.Context, name, token string) (bool, error) {
	return dbmetrics.Instrument(component, "release", classify, func() (bool, error) {
		var released bool
		err := s.pool.QueryRow(ctx, `SELECT semaphore_release($1, $2)`, name, token).Scan(&released)
		return released, err
	})
}

func (s *PostgresStore) UpdateLimit(ctx context.Context, name string, newLimit int, ensureIfMissing bool) error {
	if err := validateLimit(newLimit); err != nil {
		return err
	}
	return dbmetrics.InstrumentVoid(component, "update_limit", classify, func() error {
		_, err := s.pool.Exec(ctx, `SELECT semaphore_update_limit($1, $2, $3)`, name, newLimit, ensureIfMissing)
		return err
	})
}

func (s *PostgresStore) ReapExpired(ctx context.Context, name string, maxRows int) (int, error) {
	return dbmetrics.Instrument(component, "reap_expired", classify, func() (int, error) {
		var n int
		err := s.pool.QueryRow(ctx, `SELECT semaphore_reap_expired($1, $2)`, name, maxRows).Scan(&n)
		return n, err
	})
}
