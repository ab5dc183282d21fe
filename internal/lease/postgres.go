package lease

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/relaycore/relay/internal/dbmetrics"
)

const component = "lease"

func classify(err error) string { return dbmetrics.DefaultClassifier(err) }

// PostgresStore is the Postgres adapter for Store, calling the
// lease_acquire/lease_renew/lease_release functions defined in
// schema/migrations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore { return &PostgresStore{pool: pool} }

func (s *PostgresStore) Acquire(ctx context.Context, name, owner string, duration time.Duration) (AcquireResult, error) {
	return dbmetrics.Instrument(component, "acquire", classify, func() (AcquireResult, error) {
		var result AcquireResult
		err := s.pool.QueryRow(ctx, `SELECT acquired, epoch, expires_at FROM lease_acquire($1, $2, $3)`,
			name, owner, int(duration.Seconds())).
			Scan(&result.Acquired, &result.Epoch, &result.ExpiresAt)
		return result, err
	})
}

func (s *PostgresStore) Renew(ctx context.Context, name string, epoch int64, duration time.Duration) (RenewResult, error) {
	return dbmetrics.Instrument(component, "renew", classify, func() (RenewResult, error) {
		var result RenewResult
		err := s.pool.QueryRow(ctx, `SELECT renewed, expires_at FROM lease_renew($1, $2, $3)`,
			name, epoch, int(duration.Seconds())).
			Scan(&result.Renewed, &result.ExpiresAt)
		return result, err
	})
}

func (s *PostgresStore) Release(ctx context.Context, name string, epoch int64) (bool, error) {
	return dbmetrics.Instrument(component, "release", classify, func() (bool, error) {
		var released bool
		err := s.pool.QueryRow(ctx, `SELECT lease_release($1, $2)`, name, epoch).Scan(&released)
		return released, err
	})
}
