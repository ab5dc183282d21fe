package join

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/relaycore/relay/internal/dbmetrics"
	"github.com/relaycore/relay/internal/ids"
)

const component = "join"

func classify(err error) string { return dbmetrics.DefaultClassifier(err) }

func mustParse(s string) uuid.UUID {
	u, err := uuid.Parse(s)
	if err != nil {
		panic(err)
	}
	return u
}

// PostgresStore is the Postgres adapter for Store.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore { return &PostgresStore{pool: pool} }

func (s *PostgresStore) CreateJoin(ctx context.Context, tenantID int64, expectedSteps int, metadata *string) (Join, error) {
	if err := validateCreate(expectedSteps); err != nil {
		return Join{}, err
	}
	joinID := ids.NewJoinID()
	return dbmetrics.Instrument(component, "create_join", classify, func() (Join, error) {
		_, err := s.pool.Exec(ctx, `SELECT join_create($1, $2, $3, $4)`,
			mustParse(joinID.String()), tenantID, expectedSteps, metadata)
		if err != nil {
			return Join{}, err
		}
		return Join{
			ID:            joinID,
			TenantID:      tenantID,
			ExpectedSteps: expectedSteps,
			Status:        StatusPending,
			Metadata:      metadata,
		}, nil
	})
}

func (s *PostgresStore) AttachMessage(ctx context.Context, joinID ids.JoinID, messageID ids.OutboxMessageID) error {
	return dbmetrics.InstrumentVoid(component, "attach_message", classify, func() error {
		_, err := s.pool.Exec(ctx, `SELECT join_attach_message($1, $2)`,
			mustParse(joinID.String()), mustParse(messageID.String()))
		return err
	})
}

func (s *PostgresStore) IncrementCompleted(ctx context.Context, joinID ids.JoinID, messageID ids.OutboxMessageID) error {
	return s.increment(ctx, joinID, messageID, MemberCompleted)
}

func (s *PostgresStore) IncrementFailed(ctx context.Context, joinID ids.JoinID, messageID ids.OutboxMessageID) error {
	return s.increment(ctx, joinID, messageID, MemberFailed)
}

func (s *PostgresStore) increment(ctx context.Context, joinID ids.JoinID, messageID ids.OutboxMessageID, newStatus MemberStatus) error {
	return dbmetrics.InstrumentVoid(component, "increment", classify, func() error {
		_, err := s.pool.Exec(ctx, `SELECT * FROM join_increment($1, $2, $3)`,
			mustParse(joinID.String()), mustParse(messageID.String()), string(newStatus))
		return err
	})
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, joinID ids.JoinID, status Status) error {
	return dbmetrics.InstrumentVoid(component, "update_status", classify, func() error {
		_, err := s.pool.Exec(ctx, `SELECT join_update_status($1, $2)`, mustParse(joinID.String()), string(status))
		return err
	})
}

func (s *PostgresStore) GetJoin(ctx context.Context, joinID ids.JoinID) (Join, error) {
	return dbmetrics.Instrument(component, "get_join", classify, func() (Join, error) {
		var j Join
		var idUUID uuid.UUID
		var status string
		err := s.pool.QueryRow(ctx,
			`SELECT join_id, tenant_id, expected_steps, completed_steps, failed_steps, status, metadata, created_utc, last_updated_utc
			 FROM outbox_joins WHERE join_id = $1`, mustParse(joinID.String())).
			Scan(&idUUID, &j.TenantID, &j.ExpectedSteps, &j.CompletedSteps, &j.FailedSteps, &status, &j.Metadata, &j.CreatedUTC, &j.LastUpdatedUTC)
		if err != nil {
			return Join{}, err
		}
		parsed, err := ids.ParseJoinID(idUUID.String())
		if err != nil {
			return Join{}, err
		}
		j.ID = parsed
		j.Status = Status(status)
		return j, nil
	})
}

func (s *PostgresStore) GetJoinMessages(ctx context.Context, joinID ids.JoinID) ([]ids.OutboxMessageID, error) {
	return dbmetrics.Instrument(component, "get_join_messages", classify, func() ([]ids.OutboxMessageID, error) {
		rows, err := s.pool.Query(ctx, `SELECT outbox_message_id FROM outbox_join_members WHERE join_id = $1`, mustParse(joinID.String()))
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		var out []ids.OutboxMessageID
		for rows.Next() {
			var u uuid.UUID
			if err := rows.Scan(&u); err != nil {
				return nil, err
			}
			messageID, err := ids.ParseOutboxMessageID(u.String())
			if err != nil {
				return nil, err
			}
			out = append(out, messageID)
		}
		return out, rows.Err()
	})
}

func (s *PostgresStore) JoinsForMessage(ctx context.Context, messageID ids.OutboxMessageID) ([]ids.JoinID, error) {
	return dbmetrics.Instrument(component, "joins_for_message", classify, func() ([]ids.JoinID, error) {
		rows, err := s.pool.Query(ctx, `SELECT join_id FROM outbox_join_members WHERE outbox_message_id = $1`, mustParse(messageID.String()))
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		var out []ids.JoinID
		for rows.Next() {
			var u uuid.UUID
			if err := rows.Scan(&u); err != nil {
				return nil, err
			}
			joinID, err := ids.ParseJoinID(u.String())
			if err != nil {
				return nil, err
			}
			out = append(out, joinID)
		}
		return out, rows.Err()
	})
}
