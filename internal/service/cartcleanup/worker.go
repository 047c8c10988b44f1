// Package cartcleanup удаляет брошенные сессионные корзины. Корзины не
// держат резервов стока, поэтому очистка сводится к удалению записей,
// не менявшихся дольше заданного TTL.
package cartcleanup

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/mediashop/internal/domain"
)

const (
	defaultCleanupInterval  = 15 * time.Minute
	defaultCartTTL          = 24 * time.Hour
	defaultCleanupBatchSize = 500
)

var (
	cartCleanupRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediashop_cart_cleanup_runs_total",
		Help: "Total number of stale cart cleanup runs grouped by result.",
	}, []string{"result"})
	cartCleanupDeletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mediashop_cart_cleanup_deleted_total",
		Help: "Total number of deleted stale carts.",
	})
	cartCleanupLastDeleted = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mediashop_cart_cleanup_last_deleted",
		Help: "Number of deleted carts during the last cleanup run.",
	})
)

// Options задаёт параметры воркера очистки корзин.
type Options struct {
	Logger    *log.Entry
	Interval  time.Duration
	TTL       time.Duration
	BatchSize int
}

// Option настраивает Worker.
type Option func(*Options)

// WithLogger задаёт logger для воркера.
func WithLogger(logger *log.Entry) Option {
	return func(opts *Options) {
		opts.Logger = logger
	}
}

// WithInterval задаёт интервал между cleanup-циклами.
func WithInterval(interval time.Duration) Option {
	return func(opts *Options) {
		opts.Interval = interval
	}
}

// WithTTL задаёт срок жизни неактивной корзины.
func WithTTL(ttl time.Duration) Option {
	return func(opts *Options) {
		opts.TTL = ttl
	}
}

// WithBatchSize задаёт размер batch для одного удаления.
func WithBatchSize(batchSize int) Option {
	return func(opts *Options) {
		opts.BatchSize = batchSize
	}
}

// Worker периодически удаляет просроченные корзины.
type Worker struct {
	repo      domain.CartRepository
	logger    *log.Entry
	interval  time.Duration
	ttl       time.Duration
	batchSize int
}

// NewWorker создаёт воркер очистки корзин.
func NewWorker(repo domain.CartRepository, options ...Option) *Worker {
	opts := Options{
		Interval:  defaultCleanupInterval,
		TTL:       defaultCartTTL,
		BatchSize: defaultCleanupBatchSize,
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "cart-cleanup-worker")
	}

	if opts.Interval <= 0 {
		opts.Interval = defaultCleanupInterval
	}
	if opts.TTL <= 0 {
		opts.TTL = defaultCartTTL
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultCleanupBatchSize
	}

	return &Worker{
		repo:      repo,
		logger:    logger,
		interval:  opts.Interval,
		ttl:       opts.TTL,
		batchSize: opts.BatchSize,
	}
}

// Run запускает периодическую очистку до отмены ctx.
func (w *Worker) Run(ctx context.Context) {
	if w.repo == nil {
		w.logger.Warn("cart cleanup worker is disabled: repo is nil")
		return
	}

	w.cleanup(ctx, time.Now().UTC().Add(-w.ttl))

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.cleanup(ctx, time.Now().UTC().Add(-w.ttl))
		}
	}
}

func (w *Worker) cleanup(ctx context.Context, before time.Time) {
	deleted, err := w.DeleteStale(ctx, before)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		cartCleanupRunsTotal.WithLabelValues("error").Inc()
		w.logger.WithError(err).Warn("cart cleanup run failed")
		return
	}

	cartCleanupRunsTotal.WithLabelValues("ok").Inc()
	cartCleanupLastDeleted.Set(float64(deleted))
	if deleted > 0 {
		w.logger.WithField("deleted", deleted).Info("cart cleanup completed")
	}
}

// DeleteStale удаляет все корзины, не менявшиеся с before, порциями batchSize.
func (w *Worker) DeleteStale(ctx context.Context, before time.Time) (int, error) {
	if before.IsZero() {
		before = time.Now().UTC().Add(-w.ttl)
	}

	totalDeleted := 0
	for {
		if err := ctx.Err(); err != nil {
			return totalDeleted, err
		}

		deleted, err := w.repo.DeleteStale(before, w.batchSize)
		if err != nil {
			return totalDeleted, err
		}

		totalDeleted += deleted
		if deleted > 0 {
			cartCleanupDeletedTotal.Add(float64(deleted))
		}

		if deleted < w.batchSize {
			break
		}
	}

	return totalDeleted, nil
}
