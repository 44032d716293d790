package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/order"
)

const (
	OrderCreatedEventName    = "OrderCreated"
	OrderCreatedEventVersion = 1
	orderCreatedSchema       = "contracts/events/order/OrderCreated.v1.payload.schema.json"
)

type OrderCreatedItem struct {
	ProductID      string `json:"productId"`
	Name           string `json:"name"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unitPriceCents"`
}

type OrderCreatedPayload struct {
	OrderID    string             `json:"orderId"`
	CartID     string             `json:"cartId"`
	UserID     string             `json:"userId"`
	Items      []OrderCreatedItem `json:"items"`
	TotalCents int64              `json:"totalCents"`
	Timestamp  time.Time          `json:"timestamp"`
}

type OrderCreatedEnvelope = EventEnvelope[OrderCreatedPayload]

// BuildOrderCreatedEnvelope partitions by cart so that every event about a
// cart's lifecycle is ordered on the same key.
func BuildOrderCreatedEnvelope(o order.Order, seq int64, producer string, meta EnvelopeMetadata, occurredAt time.Time) OrderCreatedEnvelope {
	if meta.CorrelationID == "" {
		meta.CorrelationID = uuid.NewString()
	}

	items := make([]OrderCreatedItem, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, OrderCreatedItem{
			ProductID:      it.ProductID,
			Name:           it.Name,
			Quantity:       it.Quantity,
			UnitPriceCents: it.UnitPriceCents,
		})
	}

	return OrderCreatedEnvelope{
		EventName:     OrderCreatedEventName,
		EventVersion:  OrderCreatedEventVersion,
		EventID:       uuid.NewString(),
		CorrelationID: meta.CorrelationID,
		CausationID:   meta.CausationID,
		Producer:      producer,
		PartitionKey:  o.CartID,
		Sequence:      seq,
		OccurredAt:    occurredAt.UTC(),
		Schema:        orderCreatedSchema,
		Payload: OrderCreatedPayload{
			OrderID:    o.ID,
			CartID:     o.CartID,
			UserID:     o.UserID,
			Items:      items,
			TotalCents: o.TotalCents,
			Timestamp:  o.CreatedAt.UTC(),
		},
	}
}

// NewRecord serializes an envelope into a pending outbox record.
func NewRecord[T any](topic string, env EventEnvelope[T]) (Record, error) {
	body, err := json.Marshal(env)
	if err != nil {
		return Record{}, fmt.Errorf("marshal %s envelope: %w", env.EventName, err)
	}
	return Record{
		EventID:      env.EventID,
		Topic:        topic,
		PartitionKey: env.PartitionKey,
		Payload:      body,
		CreatedAt:    env.OccurredAt,
	}, nil
}
