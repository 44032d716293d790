package events

import (
	"context"
	"errors"
	"fmt"

	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/db"
)

var (
	ErrMissingPartitionKey = errors.New("partition key is required")
	ErrRecordNotFound      = errors.New("outbox record not found")
)

type PostgresOutbox struct {
	db db.Executor
}

func NewPostgresOutbox(exec db.Executor) *PostgresOutbox {
	return &PostgresOutbox{db: exec}
}

func (o *PostgresOutbox) NextSequence(ctx context.Context, partitionKey string) (int64, error) {
	if partitionKey == "" {
		return 0, ErrMissingPartitionKey
	}
	var seq int64
	if err := o.db.QueryRow(ctx, `
		INSERT INTO event_sequence (partition_key, last_sequence, updated_at)
		VALUES ($1, 1, NOW())
		ON CONFLICT (partition_key)
		DO UPDATE SET last_sequence = event_sequence.last_sequence + 1, updated_at = NOW()
		RETURNING last_sequence
	`, partitionKey).Scan(&seq); err != nil {
		return 0, fmt.Errorf("next sequence: %w", err)
	}
	return seq, nil
}

func (o *PostgresOutbox) Enqueue(ctx context.Context, rec Record) error {
	_, err := o.db.Exec(ctx, `
		INSERT INTO outbox (event_id, topic, partition_key, payload, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, rec.EventID, rec.Topic, rec.PartitionKey, []byte(rec.Payload), rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert outbox: %w", err)
	}
	return nil
}

func (o *PostgresOutbox) FetchPending(ctx context.Context, limit int) ([]Record, error) {
	rows, err := o.db.Query(ctx, `
		SELECT id, event_id, topic, partition_key, payload, created_at, sent_at
		FROM outbox
		WHERE sent_at IS NULL
		ORDER BY id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("select outbox: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		var payload []byte
		if err := rows.Scan(&rec.ID, &rec.EventID, &rec.Topic, &rec.PartitionKey, &payload, &rec.CreatedAt, &rec.SentAt); err != nil {
			return nil, fmt.Errorf("scan outbox: %w", err)
		}
		rec.Payload = payload
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (o *PostgresOutbox) MarkSent(ctx context.Context, id int64) error {
	tag, err := o.db.Exec(ctx, `UPDATE outbox SET sent_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark outbox sent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("mark outbox sent %d: %w", id, ErrRecordNotFound)
	}
	return nil
}
