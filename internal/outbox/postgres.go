package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/relaycore/relay/internal/dbmetrics"
	"github.com/relaycore/relay/internal/ids"
	"github.com/relaycore/relay/internal/join"
	"github.com/relaycore/relay/internal/workqueue"
)

const component = "outbox"

func classify(err error) string {
	if errors.Is(err, workqueue.ErrInvalidArgument) {
		return "invalid_argument"
	}
	return dbmetrics.DefaultClassifier(err)
}

// PostgresStore is the Postgres adapter for Store, calling the
// outbox_claim/outbox_ack/... server-side functions defined in
// schema/migrations. It diverges intentionally from the teacher's
// repository_postgres.go no-locking design: every claim here is safe under
// N concurrent callers, not just one poller gated by leader election.
type PostgresStore struct {
	pool  *pgxpool.Pool
	joins JoinAdvancer
}

// NewPostgresStore constructs a Store against pool. joins may be nil if the
// deployment never uses the Join barrier - Ack/Fail then skip advancement.
func NewPostgresStore(pool *pgxpool.Pool, joins JoinAdvancer) *PostgresStore {
	return &PostgresStore{pool: pool, joins: joins}
}

func (s *PostgresStore) Enqueue(ctx context.Context, topic, payload string, opts EnqueueOptions) (ids.OutboxMessageID, ids.OutboxWorkItemID, error) {
	if topic == "" {
		return ids.OutboxMessageID{}, ids.OutboxWorkItemID{}, fmt.Errorf("outbox: %w: topic must not be empty", workqueue.ErrInvalidArgument)
	}
	messageID := ids.NewOutboxMessageID()
	workItemID := ids.NewOutboxWorkItemID()

	_, err := dbmetrics.Instrument(component, "enqueue", classify, func() (struct{}, error) {
		_, err := s.pool.Exec(ctx,
			`INSERT INTO outbox (id, message_id, topic, payload, correlation_id, created_at, due_time_utc, is_processed, retry_count, status)
			 VALUES ($1, $2, $3, $4, $5, now(), $6, false, 0, 0)`,
			mustParse(workItemID.String()), mustParse(messageID.String()), topic, payload, opts.CorrelationID, opts.DueTimeUTC)
		return struct{}{}, err
	})
	if err != nil {
		return ids.OutboxMessageID{}, ids.OutboxWorkItemID{}, err
	}
	return messageID, workItemID, nil
}

// mustParse re-parses a uuid.String() back into a uuid.UUID; the ids
// package intentionally doesn't expose the underlying uuid.UUID, so the
// Postgres adapter round-trips through the canonical string form at the
// boundary where pgx needs a concrete type.
func mustParse(s string) uuid.UUID {
	u, err := uuid.Parse(s)
	if err != nil {
		panic(err)
	}
	return u
}

func (s *PostgresStore) EnqueueSimple(ctx context.Context, topic, payload string) (ids.OutboxMessageID, ids.OutboxWorkItemID, error) {
	return s.Enqueue(ctx, topic, payload, EnqueueOptions{})
}

func (s *PostgresStore) EnqueueJoinWait(ctx context.Context, joinID ids.JoinID, failIfAnyStepFailed bool, onCompleteTopic, onCompletePayload, onFailTopic, onFailPayload *string) (ids.OutboxMessageID, error) {
	payload := join.EncodeWaitPayload(joinID, failIfAnyStepFailed, onCompleteTopic, onCompletePayload, onFailTopic, onFailPayload)
	messageID, _, err := s.Enqueue(ctx, JoinWaitTopic, payload, EnqueueOptions{})
	return messageID, err
}

func (s *PostgresStore) Claim(ctx context.Context, owner ids.OwnerToken, leaseSeconds, batchSize int) ([]ids.OutboxWorkItemID, error) {
	if err := validateClaimInputs(owner, leaseSeconds, batchSize); err != nil {
		return nil, err
	}
	return dbmetrics.Instrument(component, "claim", classify, func() ([]ids.OutboxWorkItemID, error) {
		rows, err := s.pool.Query(ctx, `SELECT id FROM outbox_claim($1, $2, $3, $4)`,
			mustParse(owner.String()), leaseSeconds, batchSize, workqueue.DefaultReapBatch)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		var claimed []ids.OutboxWorkItemID
		for rows.Next() {
			var u uuid.UUID
			if err := rows.Scan(&u); err != nil {
				return nil, err
			}
			id, err := ids.ParseOutboxWorkItemID(u.String())
			if err != nil {
				return nil, err
			}
			claimed = append(claimed, id)
		}
		return claimed, rows.Err()
	})
}

// LoadForDispatch fetches the full row state for a claimed batch. The
// dispatcher itself only reads Topic/Payload/ID - the rest of the row
// (Status, OwnerToken, IsProcessed, ...) is populated too so that callers
// diagnosing a row's post-Ack/Abandon/Fail outcome (tests among them) see
// its real state rather than the Row zero value.
func (s *PostgresStore) LoadForDispatch(ctx context.Context, items []ids.OutboxWorkItemID) ([]Row, error) {
	if len(items) == 0 {
		return nil, nil
	}
	return dbmetrics.Instrument(component, "load_for_dispatch", classify, func() ([]Row, error) {
		rows, err := s.pool.Query(ctx, `SELECT id, message_id, topic, payload, correlation_id, created_at,
			due_time_utc, is_processed, processed_at, processed_by, retry_count, last_error,
			next_attempt_at, status, locked_until, owner_token
			FROM outbox WHERE id = ANY($1)`, toUUIDs(items))
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		var out []Row
		for rows.Next() {
			var idUUID, messageUUID uuid.UUID
			var ownerUUID *uuid.UUID
			var status int
			var row Row
			if err := rows.Scan(&idUUID, &messageUUID, &row.Topic, &row.Payload, &row.CorrelationID,
				&row.CreatedAt, &row.DueTimeUTC, &row.IsProcessed, &row.ProcessedAt, &row.ProcessedBy,
				&row.RetryCount, &row.LastError, &row.NextAttemptAt, &status, &row.LockedUntil,
				&ownerUUID); err != nil {
				return nil, err
			}
			id, err := ids.ParseOutboxWorkItemID(idUUID.String())
			if err != nil {
				return nil, err
			}
			messageID, err := ids.ParseOutboxMessageID(messageUUID.String())
			if err != nil {
				return nil, err
			}
			row.ID = id
			row.MessageID = messageID
			row.Status = Status(status)
			if ownerUUID != nil {
				owner, err := ids.ParseOwnerToken(ownerUUID.String())
				if err != nil {
					return nil, err
				}
				row.OwnerToken = &owner
			}
			out = append(out, row)
		}
		return out, rows.Err()
	})
}

func (s *PostgresStore) Ack(ctx context.Context, owner ids.OwnerToken, items []ids.OutboxWorkItemID) error {
	if len(items) == 0 {
		return nil
	}
	return dbmetrics.InstrumentVoid(component, "ack", classify, func() error {
		transitioned, err := s.queryTransitionedIDs(ctx, `SELECT id FROM outbox_ack($1, $2)`, owner, items)
		if err != nil {
			return err
		}
		return s.advanceJoins(ctx, transitioned, true)
	})
}

func (s *PostgresStore) Abandon(ctx context.Context, owner ids.OwnerToken, items []ids.OutboxWorkItemID, lastError string, delay *time.Duration) error {
	if len(items) == 0 {
		return nil
	}
	var delaySeconds *int
	if delay != nil {
		d := int(delay.Seconds())
		delaySeconds = &d
	}
	return dbmetrics.InstrumentVoid(component, "abandon", classify, func() error {
		_, err := s.pool.Exec(ctx, `SELECT outbox_abandon($1, $2, $3, $4)`,
			mustParse(owner.String()), toUUIDs(items), lastError, delaySeconds)
		return err
	})
}

func (s *PostgresStore) Fail(ctx context.Context, owner ids.OwnerToken, items []ids.OutboxWorkItemID, lastError string, processedBy ids.InstanceID) error {
	if len(items) == 0 {
		return nil
	}
	return dbmetrics.InstrumentVoid(component, "fail", classify, func() error {
		processedByLabel := fmt.Sprintf("FAILED:%s", processedBy.String())
		transitioned, err := s.queryTransitionedIDs(ctx, `SELECT id FROM outbox_fail($1, $2, $3, $4)`,
			owner, items, lastError, processedByLabel)
		if err != nil {
			return err
		}
		return s.advanceJoins(ctx, transitioned, false)
	})
}

func (s *PostgresStore) ReapExpired(ctx context.Context, maxRows int) (int, error) {
	return dbmetrics.Instrument(component, "reap_expired", classify, func() (int, error) {
		var n int
		err := s.pool.QueryRow(ctx, `SELECT outbox_reap_expired($1)`, maxRows).Scan(&n)
		return n, err
	})
}

func (s *PostgresStore) Cleanup(ctx context.Context, retention time.Duration, maxRows int) (int, error) {
	return dbmetrics.Instrument(component, "cleanup", classify, func() (int, error) {
		var n int
		err := s.pool.QueryRow(ctx, `SELECT outbox_cleanup($1, $2)`, int(retention.Seconds()), maxRows).Scan(&n)
		return n, err
	})
}

// queryTransitionedIDs calls an outbox_ack/outbox_fail-shaped function and
// returns only the ids it actually transitioned (RETURNING id), never the
// full input batch - a stale-owner or already-terminal id is silently
// skipped by the function and must not be treated as transitioned by the
// caller.
func (s *PostgresStore) queryTransitionedIDs(ctx context.Context, sql string, owner ids.OwnerToken, items []ids.OutboxWorkItemID, extraArgs ...any) ([]ids.OutboxWorkItemID, error) {
	args := append([]any{mustParse(owner.String()), toUUIDs(items)}, extraArgs...)
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ids.OutboxWorkItemID
	for rows.Next() {
		var u uuid.UUID
		if err := rows.Scan(&u); err != nil {
			return nil, err
		}
		id, err := ids.ParseOutboxWorkItemID(u.String())
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// advanceJoins looks up the message id for each newly-transitioned work
// item and advances any join it's a member of. Membership is looked up via
// the JoinAdvancer rather than cached locally, since the core holds no
// in-process state shared across workers (spec CONCURRENCY & RESOURCE MODEL).
// items must already be restricted to the ids outbox_ack/outbox_fail
// actually transitioned - a stale-owner or already-terminal id must never
// reach this function, or a join member gets counted as completed/failed
// before its row has really transitioned.
func (s *PostgresStore) advanceJoins(ctx context.Context, items []ids.OutboxWorkItemID, completed bool) error {
	if s.joins == nil {
		return nil
	}
	for _, item := range items {
		var messageUUID uuid.UUID
		err := s.pool.QueryRow(ctx, `SELECT message_id FROM outbox WHERE id = $1`, mustParse(item.String())).Scan(&messageUUID)
		if errors.Is(err, pgx.ErrNoRows) {
			continue
		}
		if err != nil {
			return err
		}
		messageID, err := ids.ParseOutboxMessageID(messageUUID.String())
		if err != nil {
			return err
		}
		joinIDs, err := s.joins.JoinsForMessage(ctx, messageID)
		if err != nil {
			return err
		}
		for _, joinID := range joinIDs {
			if completed {
				err = s.joins.IncrementCompleted(ctx, joinID, messageID)
			} else {
				err = s.joins.IncrementFailed(ctx, joinID, messageID)
			}
			if err != nil {
				return err
			}
		}
	}
	return nil
}

func toUUIDs(items []ids.OutboxWorkItemID) []uuid.UUID {
	out := make([]uuid.UUID, len(items))
	for i, item := range items {
		out[i] = mustParse(item.String())
	}
	return out
}
