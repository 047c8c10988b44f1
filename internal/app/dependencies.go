package app

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/mediashop/internal/checkout"
	"github.com/vladislavdragonenkov/mediashop/internal/domain"
	"github.com/vladislavdragonenkov/mediashop/internal/lifecycle"
	"github.com/vladislavdragonenkov/mediashop/internal/metrics"
	"github.com/vladislavdragonenkov/mediashop/internal/pricing"
	"github.com/vladislavdragonenkov/mediashop/internal/service/payment"
	"github.com/vladislavdragonenkov/mediashop/internal/stock"
	"github.com/vladislavdragonenkov/mediashop/internal/storage/memory"
	"github.com/vladislavdragonenkov/mediashop/internal/storage/postgres"
	redisstore "github.com/vladislavdragonenkov/mediashop/internal/storage/redis"
)

// Dependencies содержит все зависимости приложения.
type Dependencies struct {
	Products     domain.ProductRepository
	Orders       domain.OrderRepository
	Carts        domain.CartRepository
	Reservations domain.ReservationRepository
	Outbox       domain.OutboxRepository
	Timeline     domain.TimelineRepository
	Gateway      domain.PaymentGateway

	Ledger    *stock.Ledger
	Engine    *pricing.Engine
	Checkout  *checkout.Pipeline
	Lifecycle *lifecycle.Manager

	// Store и Redis равны nil при in-memory конфигурации.
	Store *postgres.Store
	Redis *goredis.Client

	Logger *log.Entry
}

// NewDependencies создаёт и инициализирует все зависимости приложения.
// Хранилище выбирается по конфигурации: PostgreSQL и Redis, если они
// настроены, иначе in-memory реализации для локальной разработки.
// NOTE: платёжный шлюз здесь мок; в production окружении его заменяет
// клиент реального провайдера.
func NewDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*Dependencies, error) {
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	deps := &Dependencies{
		Gateway: payment.NewMockGateway(),
		Logger:  logger,
	}

	if cfg.PostgresDSN != "" {
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := store.EnsureSchema(ctx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("apply migrations: %w", err)
		}
		deps.Store = store
		deps.Products = postgres.NewProductRepository(store)
		deps.Orders = postgres.NewOrderRepository(store)
		deps.Reservations = postgres.NewReservationRepository(store)
		deps.Outbox = postgres.NewOutboxRepository(store)
		deps.Timeline = postgres.NewTimelineRepository(store)
		logger.Info("использую PostgreSQL хранилище")
	} else {
		deps.Products = memory.NewProductRepository()
		deps.Orders = memory.NewOrderRepository()
		deps.Reservations = memory.NewReservationRepository()
		deps.Outbox = memory.NewOutboxRepository()
		deps.Timeline = memory.NewTimelineRepository()
		logger.Info("использую in-memory хранилище")
	}

	if cfg.RedisAddr != "" {
		client, err := redisstore.NewClient(ctx, cfg.RedisAddr)
		if err != nil {
			deps.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		deps.Redis = client
		deps.Carts = redisstore.NewCartRepository(client)
		logger.WithField("addr", cfg.RedisAddr).Info("корзины хранятся в Redis")
	} else {
		deps.Carts = memory.NewCartRepository()
	}

	deps.Engine = pricing.NewEngine(pricing.DefaultConfig())
	deps.Ledger = stock.NewLedger(
		deps.Products,
		deps.Reservations,
		stock.WithLogger(logger.WithField("component", "stock")),
		stock.WithMetrics(metrics.NewStockMetrics()),
	)
	deps.Checkout = checkout.NewPipeline(
		deps.Carts,
		deps.Products,
		deps.Orders,
		deps.Ledger,
		deps.Engine,
		checkout.WithLogger(logger.WithField("component", "checkout")),
		checkout.WithMetrics(metrics.NewCheckoutMetrics()),
		checkout.WithOutbox(deps.Outbox),
	)
	deps.Lifecycle = lifecycle.NewManager(
		deps.Orders,
		deps.Ledger,
		deps.Engine,
		deps.Gateway,
		lifecycle.WithLogger(logger.WithField("component", "lifecycle")),
		lifecycle.WithMetrics(metrics.NewLifecycleMetrics()),
		lifecycle.WithOutbox(deps.Outbox),
		lifecycle.WithTimeline(deps.Timeline),
	)

	if cfg.SeedCatalog && cfg.PostgresDSN == "" {
		seedCatalog(deps.Products, logger)
	}

	return deps, nil
}

// Close освобождает внешние подключения.
func (d *Dependencies) Close() {
	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			d.Logger.WithError(err).Warn("ошибка при закрытии redis")
		}
	}
	if d.Store != nil {
		if err := d.Store.Close(); err != nil {
			d.Logger.WithError(err).Warn("ошибка при закрытии postgres")
		}
	}
}

// seedCatalog наполняет каталог демо-товарами для локального запуска.
func seedCatalog(products domain.ProductRepository, logger *log.Entry) {
	now := time.Now().UTC()
	seed := []domain.Product{
		{ID: "bk-go-prog", Title: "The Go Programming Language", Media: domain.MediaTypeBook, Category: "programming", PriceMinor: 50_000, OnHand: 10, Version: 1, RushEligible: false, CreatedAt: now, UpdatedAt: now},
		{ID: "bk-ddd", Title: "Domain-Driven Design", Media: domain.MediaTypeBook, Category: "programming", PriceMinor: 65_000, OnHand: 5, Version: 1, RushEligible: false, CreatedAt: now, UpdatedAt: now},
		{ID: "cd-kind-of-blue", Title: "Kind of Blue", Media: domain.MediaTypeCD, Category: "jazz", PriceMinor: 40_000, OnHand: 8, Version: 1, RushEligible: true, CreatedAt: now, UpdatedAt: now},
		{ID: "dvd-seven-samurai", Title: "Seven Samurai", Media: domain.MediaTypeDVD, Category: "classic", PriceMinor: 45_000, OnHand: 3, Version: 1, RushEligible: true, CreatedAt: now, UpdatedAt: now},
		{ID: "lp-abbey-road", Title: "Abbey Road", Media: domain.MediaTypeLP, Category: "rock", PriceMinor: 120_000, OnHand: 2, Version: 1, RushEligible: true, CreatedAt: now, UpdatedAt: now},
	}
	for _, product := range seed {
		if err := products.Create(product); err != nil {
			logger.WithError(err).WithField("product_id", product.ID).Warn("не удалось добавить демо-товар")
		}
	}
	logger.WithField("count", len(seed)).Info("каталог наполнен демо-товарами")
}
