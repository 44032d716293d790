package events

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

type RelayConfig struct {
	Interval        time.Duration
	BatchSize       int
	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

func (c RelayConfig) withDefaults() RelayConfig {
	if c.Interval <= 0 {
		c.Interval = time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.BreakerFailures == 0 {
		c.BreakerFailures = 5
	}
	if c.BreakerTimeout <= 0 {
		c.BreakerTimeout = 30 * time.Second
	}
	return c
}

// Publish results reported to the observer.
const (
	ResultSent   = "sent"
	ResultFailed = "failed"
	ResultOpen   = "breaker_open"
)

// Relay moves committed outbox records to the broker. A batch stops at the
// first failed record so records sharing a partition key are never
// published out of order; the record stays pending and is retried on the
// next tick.
type Relay struct {
	reader  OutboxReader
	pub     Publisher
	breaker *gobreaker.CircuitBreaker[struct{}]
	cfg     RelayConfig
	logger  zerolog.Logger
	observe func(result string)
}

type RelayOption func(*Relay)

func WithPublishObserver(fn func(result string)) RelayOption {
	return func(r *Relay) { r.observe = fn }
}

func NewRelay(reader OutboxReader, pub Publisher, cfg RelayConfig, logger zerolog.Logger, opts ...RelayOption) *Relay {
	cfg = cfg.withDefaults()
	r := &Relay{
		reader:  reader,
		pub:     pub,
		cfg:     cfg,
		logger:  logger.With().Str("component", "outbox-relay").Logger(),
		observe: func(string) {},
	}
	r.breaker = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "outbox-publish",
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			r.logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
		},
	})
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run polls until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := r.Flush(ctx); err != nil && ctx.Err() == nil {
				r.logger.Error().Err(err).Msg("outbox flush failed")
			}
		}
	}
}

// Flush publishes one batch and returns how many records were marked sent.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	records, err := r.reader.FetchPending(ctx, r.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, rec := range records {
		_, err := r.breaker.Execute(func() (struct{}, error) {
			return struct{}{}, r.pub.Publish(ctx, rec)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				r.observe(ResultOpen)
				r.logger.Debug().Int64("outboxId", rec.ID).Msg("publish skipped, breaker open")
			} else {
				r.observe(ResultFailed)
				r.logger.Warn().Err(err).Int64("outboxId", rec.ID).Str("eventId", rec.EventID).Msg("publish failed")
			}
			return sent, nil
		}

		if err := r.reader.MarkSent(ctx, rec.ID); err != nil {
			return sent, err
		}
		r.observe(ResultSent)
		sent++
	}
	return sent, nil
}

func (r *Relay) BreakerState() gobreaker.State {
	return r.breaker.State()
}
