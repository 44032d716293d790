package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/cart"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/events"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/inventory"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/order"
)

type Config struct {
	// Timeout bounds the whole attempt including lock waits. Zero means
	// only the caller's deadline applies.
	Timeout  time.Duration
	Producer string
}

type Observer interface {
	ObserveCheckout(outcome string, elapsed time.Duration)
}

type Coordinator struct {
	uow    UnitOfWork
	cfg    Config
	logger zerolog.Logger
	obs    Observer
	now    func() time.Time
}

type Option func(*Coordinator)

func WithObserver(o Observer) Option {
	return func(c *Coordinator) { c.obs = o }
}

func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

func NewCoordinator(uow UnitOfWork, cfg Config, logger zerolog.Logger, opts ...Option) *Coordinator {
	if cfg.Producer == "" {
		cfg.Producer = "checkout-service"
	}
	c := &Coordinator{
		uow:    uow,
		cfg:    cfg,
		logger: logger.With().Str("component", "checkout").Logger(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Checkout commits the cart as an order. It never retries: a caller that
// gets ErrConflict or ErrCheckoutTimeout may simply call again.
func (c *Coordinator) Checkout(ctx context.Context, cartID string) (order.Order, error) {
	start := time.Now()
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	state := StateStarted
	var placed order.Order

	err := c.uow.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		ct, err := tx.Carts().GetForUpdate(ctx, cartID)
		if err != nil {
			return err
		}
		if ct.Status != cart.StatusOpen {
			return ErrCartAlreadyCheckedOut
		}
		if len(ct.Items) == 0 {
			return ErrEmptyCart
		}
		state = StateValidated

		demands := make([]inventory.Demand, 0, len(ct.Items))
		for _, it := range ct.Items {
			demands = append(demands, inventory.Demand{ProductID: it.ProductID, Quantity: it.Quantity})
		}
		reserved, err := tx.Stock().ReserveAll(ctx, demands)
		if err != nil {
			return err
		}
		state = StateReserved

		items := make([]order.Item, 0, len(reserved))
		for _, r := range reserved {
			items = append(items, order.Item{
				ProductID:      r.ProductID,
				Name:           r.Name,
				Quantity:       r.Quantity,
				UnitPriceCents: r.UnitPriceCents,
			})
		}
		o := order.Order{
			ID:         uuid.NewString(),
			CartID:     ct.ID,
			UserID:     ct.UserID,
			Items:      items,
			TotalCents: order.TotalCents(items),
			CreatedAt:  c.now().UTC(),
		}

		if _, err := tx.Orders().RecordOrder(ctx, o); err != nil {
			if errors.Is(err, order.ErrDuplicateOrder) {
				return ErrCartAlreadyCheckedOut
			}
			return err
		}
		if err := tx.Carts().MarkCheckedOut(ctx, ct.ID); err != nil {
			if errors.Is(err, cart.ErrCartClosed) {
				return ErrCartAlreadyCheckedOut
			}
			return err
		}
		if err := c.enqueueOrderCreated(ctx, tx.Outbox(), o); err != nil {
			return err
		}

		placed = o
		return nil
	})

	err = classify(ctx, err)
	outcome := Outcome(err)
	elapsed := time.Since(start)
	if c.obs != nil {
		c.obs.ObserveCheckout(outcome, elapsed)
	}

	if err != nil {
		ev := c.logger.Info()
		if outcome == OutcomeError {
			ev = c.logger.Error()
		}
		ev.Err(err).
			Str("cartId", cartID).
			Str("state", string(state)).
			Str("outcome", outcome).
			Dur("elapsed", elapsed).
			Msg("checkout aborted")
		return order.Order{}, err
	}

	c.logger.Info().
		Str("cartId", cartID).
		Str("orderId", placed.ID).
		Int64("totalCents", placed.TotalCents).
		Str("state", string(StateCommitted)).
		Dur("elapsed", elapsed).
		Msg("checkout committed")
	return placed, nil
}

func (c *Coordinator) enqueueOrderCreated(ctx context.Context, ob events.Outbox, o order.Order) error {
	seq, err := ob.NextSequence(ctx, o.CartID)
	if err != nil {
		return fmt.Errorf("reserve event sequence: %w", err)
	}
	env := events.BuildOrderCreatedEnvelope(o, seq, c.cfg.Producer, events.EnvelopeMetadata{
		CorrelationID: events.CorrelationID(ctx),
	}, c.now())
	rec, err := events.NewRecord(events.OrderCreatedRoutingKey, env)
	if err != nil {
		return err
	}
	if err := ob.Enqueue(ctx, rec); err != nil {
		return fmt.Errorf("enqueue order created: %w", err)
	}
	return nil
}

// classify maps deadline expiry onto ErrCheckoutTimeout. ctx is the
// attempt context, so an expired caller deadline also counts. Domain errors
// keep their type even when they surface after the deadline.
func classify(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrCheckoutTimeout) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrCheckoutTimeout, err)
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		switch Outcome(err) {
		case OutcomeError, OutcomeCanceled:
			return fmt.Errorf("%w: %v", ErrCheckoutTimeout, err)
		}
	}
	return err
}
