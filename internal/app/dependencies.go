package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/health"
	"github.com/vladislavdragonenkov/storefront/internal/notify"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
	"github.com/vladislavdragonenkov/storefront/internal/storage/postgres"
	redisstore "github.com/vladislavdragonenkov/storefront/internal/storage/redis"
)

// Dependencies содержит хранилища и внешние коллабораторы приложения.
type Dependencies struct {
	Orders   domain.OrderRepository
	Catalog  domain.Catalog
	Ledger   domain.InventoryLedger
	Carts    domain.CartStore
	Notifier domain.Notifier
	Outbox   domain.OutboxRepository
	Timeline domain.TimelineRepository

	Store      *postgres.Store
	RedisCarts *redisstore.CartStore

	Logger *log.Entry
}

// NewDependencies собирает зависимости: PostgreSQL и Redis подключаются при
// наличии настроек, иначе используются in-memory реализации для локального
// запуска и тестов.
func NewDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*Dependencies, error) {
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	deps := &Dependencies{
		Logger:   logger,
		Notifier: notify.NewLogNotifier(logger.WithField("component", "notifier")),
	}

	if cfg.PostgresDSN != "" {
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := store.EnsureSchema(ctx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("ensure postgres schema: %w", err)
		}

		catalog := postgres.NewCatalogRepository(store)
		deps.Store = store
		deps.Orders = postgres.NewOrderRepository(store)
		deps.Catalog = catalog
		deps.Ledger = catalog
		deps.Outbox = postgres.NewOutboxRepository(store)
		deps.Timeline = postgres.NewTimelineRepository(store)
		logger.Info("postgres storage initialized")
	} else {
		// Демо-каталог для локального запуска без базы.
		catalog := memory.NewCatalog(
			domain.Product{ID: "tee-classic", Name: "Classic Tee", PriceMinor: 10000, Sizes: []string{"S", "M", "L", "XL"}, StockQuantity: 50, InStock: true},
			domain.Product{ID: "hoodie-zip", Name: "Zip Hoodie", PriceMinor: 35000, Sizes: []string{"M", "L"}, StockQuantity: 20, InStock: true},
			domain.Product{ID: "cap-logo", Name: "Logo Cap", PriceMinor: 7500, StockQuantity: 35, InStock: true},
		)
		deps.Orders = memory.NewOrderRepository()
		deps.Catalog = catalog
		deps.Ledger = catalog
		deps.Outbox = memory.NewOutboxRepository()
		deps.Timeline = memory.NewTimelineRepository()
		logger.Warn("postgres is not configured, using in-memory storage")
	}

	if cfg.RedisAddr != "" {
		carts, err := redisstore.NewCartStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			deps.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		deps.RedisCarts = carts
		deps.Carts = carts
		logger.Info("redis cart store initialized")
	} else {
		deps.Carts = memory.NewCartStore()
		logger.Warn("redis is not configured, using in-memory cart store")
	}

	return deps, nil
}

// RegisterHealthCheckers подключает проверки внешних хранилищ.
func (d *Dependencies) RegisterHealthCheckers(handler *health.Handler) {
	if d.Store != nil {
		handler.RegisterChecker("postgres", health.NewPingChecker("postgres", d.Store, 0))
	}
	if d.RedisCarts != nil {
		handler.RegisterChecker("redis", health.NewPingChecker("redis", d.RedisCarts, 0))
	}
}

// Close освобождает подключения к внешним хранилищам.
func (d *Dependencies) Close() {
	if d.RedisCarts != nil {
		if err := d.RedisCarts.Close(); err != nil {
			d.Logger.WithError(err).Warn("failed to close redis connection")
		}
	}
	if d.Store != nil {
		if err := d.Store.Close(); err != nil {
			d.Logger.WithError(err).Warn("failed to close postgres connection")
		}
	}
}
