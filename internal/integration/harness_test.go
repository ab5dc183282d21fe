//go:build integration

// Package integration runs the end-to-end scenarios against a real
// Postgres instance, started fresh per test via testcontainers. These
// complement the fake-backed unit tests in each component package: the
// fakes exercise protocol logic in isolation, this package exercises the
// actual server-side functions in schema/migrations.
package integration

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/relaycore/relay/internal/ids"
	"github.com/relaycore/relay/internal/inbox"
	"github.com/relaycore/relay/internal/join"
	"github.com/relaycore/relay/internal/lease"
	"github.com/relaycore/relay/internal/outbox"
	"github.com/relaycore/relay/internal/semaphore"
	"github.com/relaycore/relay/schema"
)

// outboxJoinWaitPayload encodes a join.wait payload the way
// outbox.EnqueueJoinWait would, without going through the outbox store -
// these tests invoke package join's handler directly against the harness's
// join store rather than through the dispatcher.
func outboxJoinWaitPayload(t *testing.T, joinID ids.JoinID, failIfAnyStepFailed bool, onCompleteTopic *string) string {
	t.Helper()
	return join.EncodeWaitPayload(joinID, failIfAnyStepFailed, onCompleteTopic, nil, nil, nil)
}

// joinHandler builds the join.wait handler against the harness's join and
// outbox stores, satisfying join.OutboxEnqueuer via outbox.PostgresStore's
// EnqueueSimple.
func joinHandler(h *harness) func(ctx context.Context, payload string) error {
	return join.Handler(h.join, h.outbox)
}

// harness wires one Postgres testcontainer to every component's Postgres
// adapter, migrated and ready to use. Each test gets its own container -
// slower than sharing one, but it means no test can leak state into
// another's rows.
type harness struct {
	pool     *pgxpool.Pool
	outbox   *outbox.PostgresStore
	inbox    *inbox.PostgresStore
	join     *join.PostgresStore
	semaphore *semaphore.PostgresStore
	lease    *lease.PostgresStore
	instance ids.InstanceID
}

func newHarness(ctx context.Context, t *testing.T) *harness {
	t.Helper()

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("relaycore"),
		postgres.WithUsername("relaycore"),
		postgres.WithPassword("relaycore"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("terminate postgres container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("connection string: %v", err)
	}

	migrateDB, err := sql.Open("pgx", connStr)
	if err != nil {
		t.Fatalf("open migration connection: %v", err)
	}
	defer migrateDB.Close()
	if err := schema.Migrate(migrateDB); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		t.Fatalf("open pgx pool: %v", err)
	}
	t.Cleanup(pool.Close)

	joinStore := join.NewPostgresStore(pool)
	return &harness{
		pool:      pool,
		outbox:    outbox.NewPostgresStore(pool, joinStore),
		inbox:     inbox.NewPostgresStore(pool),
		join:      joinStore,
		semaphore: semaphore.NewPostgresStore(pool),
		lease:     lease.NewPostgresStore(pool),
		instance:  ids.NewInstanceID("integration-test"),
	}
}
