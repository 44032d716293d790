package events

import (
	"context"
	"encoding/json"
	"time"
)

// Record is one event waiting in the outbox. ID is assigned by the store.
type Record struct {
	ID           int64           `json:"id"`
	EventID      string          `json:"eventId"`
	Topic        string          `json:"topic"`
	PartitionKey string          `json:"partitionKey"`
	Payload      json.RawMessage `json:"payload"`
	CreatedAt    time.Time       `json:"createdAt"`
	SentAt       *time.Time      `json:"sentAt,omitempty"`
}

// Outbox is the write side used inside a checkout transaction.
type Outbox interface {
	NextSequence(ctx context.Context, partitionKey string) (int64, error)
	Enqueue(ctx context.Context, rec Record) error
}

// OutboxReader is the relay side. FetchPending returns unsent records in
// insertion order.
type OutboxReader interface {
	FetchPending(ctx context.Context, limit int) ([]Record, error)
	MarkSent(ctx context.Context, id int64) error
}
