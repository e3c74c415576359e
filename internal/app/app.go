package app

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	healthcheck "github.com/vladislavdragonenkov/storefront/internal/health"
	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/service/checkout"
	"github.com/vladislavdragonenkov/storefront/internal/service/gateway"
	"github.com/vladislavdragonenkov/storefront/internal/service/outbox"
	"github.com/vladislavdragonenkov/storefront/internal/service/sweeper"
	httptransport "github.com/vladislavdragonenkov/storefront/internal/transport/http"
	"github.com/vladislavdragonenkov/storefront/internal/version"
)

// Run поднимает приложение целиком: хранилища, платёжные шлюзы, движок,
// фоновые воркеры и HTTP-серверы. Блокируется до отмены ctx.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	deps, err := NewDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.Close()

	// Kafka опционален: без брокера события копятся в outbox и будут
	// опубликованы после подключения воркера.
	var kafkaProducer *kafka.Producer
	if len(cfg.KafkaBrokers) > 0 {
		producer, err := kafka.NewProducer(cfg.KafkaBrokers)
		if err != nil {
			logger.WithError(err).Warn("failed to create kafka producer, continuing without kafka")
		} else {
			kafkaProducer = producer
			logger.WithField("brokers", cfg.KafkaBrokers).Info("kafka producer initialized")
		}
	}

	// NOTE: Using the mock card provider for development/demo purposes.
	// In production, replace with the real PSP client.
	cardProvider := gateway.NewMockCardProvider()

	engine := checkout.NewEngine(checkout.Deps{
		Orders:   deps.Orders,
		Catalog:  deps.Catalog,
		Ledger:   deps.Ledger,
		Carts:    deps.Carts,
		Notifier: deps.Notifier,
		Outbox:   deps.Outbox,
		Timeline: deps.Timeline,
		Gateways: []gateway.Gateway{
			gateway.NewCardGateway(cardProvider, cfg.CardMinAmountMinor, logger.WithField("component", "gateway-card")),
			gateway.NewRedirectGateway(cfg.Redirect, logger.WithField("component", "gateway-redirect")),
			gateway.NewCODGateway(),
		},
		Logger:           logger.WithField("component", "checkout"),
		Metrics:          metrics.NewCheckoutMetrics(),
		ShippingFeeMinor: cfg.ShippingFeeMinor,
		Currency:         cfg.Currency,
	})

	healthHandler := healthcheck.NewHandler(version.GetVersion())
	deps.RegisterHealthCheckers(healthHandler)

	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)

	var workers sync.WaitGroup

	workers.Add(1)
	go func() {
		defer workers.Done()
		sweeper.NewWorker(deps.Orders,
			sweeper.WithLogger(logger.WithField("component", "sweeper")),
			sweeper.WithInterval(cfg.SweepInterval),
			sweeper.WithTimeout(cfg.AbandonTimeout),
			sweeper.WithBatchSize(cfg.SweepBatchSize),
		).Run(ctx)
	}()

	if kafkaProducer != nil {
		publisher := kafka.NewOutboxPublisher(kafkaProducer, kafka.TopicOrderEvents)
		dlq := kafka.NewDLQPublisher(kafkaProducer, kafka.TopicDeadLetterQueue)

		workers.Add(1)
		go func() {
			defer workers.Done()
			outbox.NewWorker(deps.Outbox, publisher,
				outbox.WithLogger(logger.WithField("component", "outbox-worker")),
				outbox.WithDLQPublisher(dlq),
			).Run(ctx)
		}()
	}

	server := httptransport.NewServer(engine, logger.WithField("component", "http"))
	err = server.Run(ctx, cfg.HTTPAddr)

	workers.Wait()
	shutdownHTTP(metricsSrv, logger)

	if kafkaProducer != nil {
		if closeErr := kafkaProducer.Close(); closeErr != nil {
			logger.WithError(closeErr).Warn("failed to close kafka producer")
		} else {
			logger.Info("kafka producer closed")
		}
	}

	return err
}

// startMetricsServer запускает HTTP-обработчики /metrics и health-проб.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		logger.Infof("health checks: %s/healthz, %s/livez, %s/readyz", addr, addr, addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("metrics shutdown with error")
	}
}
