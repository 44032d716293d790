package events

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/segmentio/kafka-go"
)

// Publisher delivers one outbox record to a broker.
type Publisher interface {
	Publish(ctx context.Context, rec Record) error
	Close() error
}

const publishTimeout = 3 * time.Second

type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// RabbitPublisher publishes to the topic exchange, using the record topic
// as routing key.
type RabbitPublisher struct {
	ch amqpChannel
}

func NewRabbitPublisher(conn *amqp.Connection) (*RabbitPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := declareEventsExchange(ch); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("declare events exchange: %w", err)
	}
	return &RabbitPublisher{ch: ch}, nil
}

func (p *RabbitPublisher) Publish(ctx context.Context, rec Record) error {
	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	return p.ch.PublishWithContext(
		pubCtx,
		EventsExchange,
		rec.Topic,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    rec.EventID,
			Timestamp:    rec.CreatedAt,
			Headers:      amqp.Table{"partitionKey": rec.PartitionKey},
			Body:         rec.Payload,
		},
	)
}

func (p *RabbitPublisher) Close() error {
	return p.ch.Close()
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher keys messages by partition key so a partition's events land
// on one Kafka partition in order.
type KafkaPublisher struct {
	w messageWriter
}

func NewKafkaPublisher(topic string, brokers ...string) *KafkaPublisher {
	return &KafkaPublisher{w: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}}
}

func (p *KafkaPublisher) Publish(ctx context.Context, rec Record) error {
	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	return p.w.WriteMessages(pubCtx, kafka.Message{
		Key:   []byte(rec.PartitionKey),
		Value: rec.Payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(rec.Topic)},
			{Key: "event_id", Value: []byte(rec.EventID)},
		},
	})
}

func (p *KafkaPublisher) Close() error {
	return p.w.Close()
}
