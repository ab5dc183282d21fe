package inbox

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/relaycore/relay/internal/dbmetrics"
	"github.com/relaycore/relay/internal/ids"
	"github.com/relaycore/relay/internal/workqueue"
)

const component = "inbox"

func classify(err error) string { return dbmetrics.DefaultClassifier(err) }

func mustOwnerUUID(owner ids.OwnerToken) uuid.UUID {
	u, err := uuid.Parse(owner.String())
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

func (s *PostgresStore) AlreadyProcessed(ctx context.Context, messageID ids.InboxMessageID, source string, hash []byte) (bool, error) {
	return dbmetrics.Instrument(component, "already_processed", classify, func() (bool, error) {
		var alreadyProcessed bool
		err := s.pool.QueryRow(ctx, `SELECT already_processed FROM inbox_touch($1, $2, $3, $4, $5)`,
			messageID.String(), source, "", "", hash).Scan(&alreadyProcessed)
		return alreadyProcessed, err
	})
}

func (s *PostgresStore) Enqueue(ctx context.Context, topic, source string, messageID ids.InboxMessageID, payload string) error {
	return dbmetrics.InstrumentVoid(component, "enqueue", classify, func() error {
		_, err := s.pool.Exec(ctx, `SELECT inbox_touch($1, $2, $3, $4, NULL)`, messageID.String(), source, topic, payload)
		return err
	})
}

func (s *PostgresStore) MarkProcessing(ctx context.Context, messageID ids.InboxMessageID, source string) error {
	return dbmetrics.InstrumentVoid(component, "mark_processing", classify, func() error {
		_, err := s.pool.Exec(ctx, `UPDATE inbox SET status = 'Processing' WHERE message_id = $1 AND source = $2 AND status = 'Seen'`,
			messageID.String(), source)
		return err
	})
}

func (s *PostgresStore) MarkProcessed(ctx context.Context, messageID ids.InboxMessageID, source string) error {
	return dbmetrics.InstrumentVoid(component, "mark_processed", classify, func() error {
		_, err := s.pool.Exec(ctx, `UPDATE inbox SET status = 'Done', processed_utc = now() WHERE message_id = $1 AND source = $2`,
			messageID.String(), source)
		return err
	})
}

func (s *PostgresStore) MarkDead(ctx context.Context, messageID ids.InboxMessageID, source string) error {
	return dbmetrics.InstrumentVoid(component, "mark_dead", classify, func() error {
		_, err := s.pool.Exec(ctx, `UPDATE inbox SET status = 'Dead', processed_utc = now() WHERE message_id = $1 AND source = $2`,
			messageID.String(), source)
		return err
	})
}

func (s *PostgresStore) Peek(ctx context.Context, messageID ids.InboxMessageID, source string) (Row, error) {
	return dbmetrics.Instrument(component, "peek", classify, func() (Row, error) {
		var row Row
		var messageIDStr, status string
		var ownerUUID *uuid.UUID
		err := s.pool.QueryRow(ctx,
			`SELECT message_id, source, topic, payload, hash, first_seen_utc, last_seen_utc,
				processed_utc, attempts, status, owner_token, locked_until
			 FROM inbox WHERE message_id = $1 AND source = $2`,
			messageID.String(), source).
			Scan(&messageIDStr, &row.Source, &row.Topic, &row.Payload, &row.Hash, &row.FirstSeenUTC,
				&row.LastSeenUTC, &row.ProcessedUTC, &row.Attempts, &status, &ownerUUID, &row.LockedUntil)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return Row{}, workqueue.ErrNotFound
			}
			return Row{}, err
		}
		parsedID, err := ids.NewInboxMessageID(messageIDStr)
		if err != nil {
			return Row{}, err
		}
		row.MessageID = parsedID
		row.Status = Status(status)
		if ownerUUID != nil {
			owner, err := ids.ParseOwnerToken(ownerUUID.String())
			if err != nil {
				return Row{}, err
			}
			row.OwnerToken = &owner
		}
		return row, nil
	})
}

func (s *PostgresStore) Claim(ctx context.Context, owner ids.OwnerToken, source string, leaseSeconds, batchSize int) ([]ItemID, error) {
	if err := validateClaimInputs(owner, leaseSeconds, batchSize); err != nil {
		return nil, err
	}
	return dbmetrics.Instrument(component, "claim", classify, func() ([]ItemID, error) {
		rows, err := s.pool.Query(ctx, `SELECT message_id, source FROM inbox_claim($1, $2, $3, $4)`,
			mustOwnerUUID(owner), leaseSeconds, batchSize, workqueue.DefaultReapBatch)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		var claimed []ItemID
		for rows.Next() {
			var messageIDStr, src string
			if err := rows.Scan(&messageIDStr, &src); err != nil {
				return nil, err
			}
			messageID, err := ids.NewInboxMessageID(messageIDStr)
			if err != nil {
				return nil, err
			}
			claimed = append(claimed, ItemID{MessageID: messageID, Source: src})
		}
		return claimed, rows.Err()
	})
}

func (s *PostgresStore) LoadForDispatch(ctx context.Context, items []ItemID) ([]Row, error) {
	if len(items) == 0 {
		return nil, nil
	}
	return dbmetrics.Instrument(component, "load_for_dispatch", classify, func() ([]Row, error) {
		var out []Row
		err := s.bySource(items, func(source string, messageIDs []string) error {
			rows, err := s.pool.Query(ctx, `SELECT message_id, source, topic, payload FROM inbox WHERE source = $1 AND message_id = ANY($2)`,
				source, messageIDs)
			if err != nil {
				return err
			}
			defer rows.Close()

			for rows.Next() {
				var row Row
				var messageIDStr string
				if err := rows.Scan(&messageIDStr, &row.Source, &row.Topic, &row.Payload); err != nil {
					return err
				}
				messageID, err := ids.NewInboxMessageID(messageIDStr)
				if err != nil {
					return err
				}
				row.MessageID = messageID
				out = append(out, row)
			}
			return rows.Err()
		})
	})
}

func (s *PostgresStore) Ack(ctx context.Context, owner ids.OwnerToken, items []ItemID) error {
	if len(items) == 0 {
		return nil
	}
	return dbmetrics.InstrumentVoid(component, "ack", classify, func() error {
		return s.bySource(items, func(source string, messageIDs []string) error {
			_, err := s.pool.Exec(ctx, `SELECT inbox_ack($1, $2, $3)`, mustOwnerUUID(owner), messageIDs, source)
			return err
		})
	})
}

func (s *PostgresStore) Abandon(ctx context.Context, owner ids.OwnerToken, items []ItemID, lastError string) error {
	if len(items) == 0 {
		return nil
	}
	return dbmetrics.InstrumentVoid(component, "abandon", classify, func() error {
		return s.bySource(items, func(source string, messageIDs []string) error {
			_, err := s.pool.Exec(ctx, `SELECT inbox_abandon($1, $2, $3, $4)`, mustOwnerUUID(owner), messageIDs, source, lastError)
			return err
		})
	})
}

func (s *PostgresStore) Fail(ctx context.Context, owner ids.OwnerToken, items []ItemID) error {
	if len(items) == 0 {
		return nil
	}
	return dbmetrics.InstrumentVoid(component, "fail", classify, func() error {
		return s.bySource(items, func(source string, messageIDs []string) error {
			_, err := s.pool.Exec(ctx, `SELECT inbox_fail($1, $2, $3)`, mustOwnerUUID(owner), messageIDs, source)
			return err
		})
	})
}

func (s *PostgresStore) ReapExpired(ctx context.Context, maxRows int) (int, error) {
	return dbmetrics.Instrument(component, "reap_expired", classify, func() (int, error) {
		var n int
		err := s.pool.QueryRow(ctx, `SELECT inbox_reap_expired($1)`, maxRows).Scan(&n)
		return n, err
	})
}

// bySource groups items by Source, since the inbox_* batch functions take
// a single source and a list of message ids (the inbox primary key is the
// pair, and in practice a given claim batch rarely spans many sources).
func (s *PostgresStore) bySource(items []ItemID, fn func(source string, messageIDs []string) error) error {
	bySource := make(map[string][]string)
	for _, item := range items {
		bySource[item.Source] = append(bySource[item.Source], item.MessageID.String())
	}
	for source, messageIDs := range bySource {
		if err := fn(source, messageIDs); err != nil {
			return err
		}
	}
	return nil
}
