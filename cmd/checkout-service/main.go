package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/checkout"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/config"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/events"
	httpapi "github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/http"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/idempotency"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/logging"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/metrics"
)

const serviceName = "checkout-service"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(serviceName, cfg.LogLevel, cfg.LogFormat)

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("checkout-service stopped")
	}
	logger.Info().Msg("shutdown complete")
}

func run(cfg config.Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- storage ---
	be, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer be.close()

	if cfg.SeedProducts {
		if err := be.seed(ctx); err != nil {
			return fmt.Errorf("seed products: %w", err)
		}
		logger.Info().Int("products", len(demoCatalog)).Msg("catalog seeded")
	}

	m := metrics.NewServerMetrics("checkout")
	coord := checkout.NewCoordinator(be.uow, checkout.Config{
		Timeout:  cfg.CheckoutTimeout,
		Producer: serviceName,
	}, logger, checkout.WithObserver(m))

	// --- idempotency ---
	idem, closeIdem := openIdempotency(ctx, cfg, logger)
	defer closeIdem()

	// --- events ---
	pub, err := openPublisher(cfg)
	if err != nil {
		return err
	}

	// --- HTTP ---
	h := httpapi.NewHandler(httpapi.Deps{
		Carts:       be.carts,
		Catalog:     be.catalog,
		Orders:      be.orders,
		Checkout:    coord,
		Idempotency: idem,
		Metrics:     m,
		Logger:      logger,
	})
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.NewRouter(h),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("addr", cfg.HTTPAddr).Str("store", cfg.Store).Msg("http listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	if pub != nil {
		relay := events.NewRelay(be.outbox, pub, events.RelayConfig{
			Interval:  cfg.OutboxPollInterval,
			BatchSize: cfg.OutboxBatch,
		}, logger, events.WithPublishObserver(m.ObserveOutboxPublish))
		g.Go(func() error {
			defer pub.Close()
			logger.Info().Str("broker", cfg.Broker).Msg("outbox relay started")
			return relay.Run(gctx)
		})
	} else {
		logger.Warn().Msg("no broker configured, outbox records stay pending")
	}

	// --- graceful shutdown ---
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func openIdempotency(ctx context.Context, cfg config.Config, logger zerolog.Logger) (idempotency.Store, func()) {
	if cfg.RedisAddr == "" {
		return idempotency.NewLRUStore(10_000, cfg.IdempotencyTTL), func() {}
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unavailable, using in-process idempotency cache")
		_ = client.Close()
		return idempotency.NewLRUStore(10_000, cfg.IdempotencyTTL), func() {}
	}
	return idempotency.NewRedisStore(client, cfg.IdempotencyTTL), func() { _ = client.Close() }
}

// openPublisher returns nil when no broker is configured.
func openPublisher(cfg config.Config) (events.Publisher, error) {
	switch cfg.Broker {
	case config.BrokerRabbitMQ:
		conn, err := amqp.Dial(cfg.RabbitURL)
		if err != nil {
			return nil, fmt.Errorf("dial rabbitmq: %w", err)
		}
		pub, err := events.NewRabbitPublisher(conn)
		if err != nil {
			_ = conn.Close()
			return nil, err
		}
		return &connPublisher{Publisher: pub, conn: conn}, nil
	case config.BrokerKafka:
		return events.NewKafkaPublisher(cfg.KafkaTopic, cfg.KafkaBrokers...), nil
	default:
		return nil, nil
	}
}

// connPublisher closes the AMQP connection along with its channel.
type connPublisher struct {
	events.Publisher
	conn *amqp.Connection
}

func (p *connPublisher) Close() error {
	return errors.Join(p.Publisher.Close(), p.conn.Close())
}
