package sweeper

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const (
	DefaultSweepInterval  = 10 * time.Minute
	DefaultAbandonTimeout = 30 * time.Minute
	DefaultSweepBatchSize = 500
)

var (
	sweepRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_abandonment_sweep_runs_total",
		Help: "Total number of abandonment sweep runs grouped by result.",
	}, []string{"result"})
	sweepCancelledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storefront_abandonment_sweep_cancelled_total",
		Help: "Total number of abandoned orders cancelled by the sweeper.",
	})
	sweepLastCancelled = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "storefront_abandonment_sweep_last_cancelled",
		Help: "Number of orders cancelled during the last sweep run.",
	})
)

// Options задает параметры воркера abandonment sweep.
type Options struct {
	Logger    *log.Entry
	Interval  time.Duration
	Timeout   time.Duration
	BatchSize int
}

// Option настраивает Worker.
type Option func(*Options)

// WithLogger задает logger для воркера.
func WithLogger(logger *log.Entry) Option {
	return func(opts *Options) {
		opts.Logger = logger
	}
}

// WithInterval задает интервал между sweep-циклами.
func WithInterval(interval time.Duration) Option {
	return func(opts *Options) {
		opts.Interval = interval
	}
}

// WithTimeout задает возраст payment_pending заказа, после которого он
// считается брошенным.
func WithTimeout(timeout time.Duration) Option {
	return func(opts *Options) {
		opts.Timeout = timeout
	}
}

// WithBatchSize задает размер batch для одного условного обновления.
func WithBatchSize(batchSize int) Option {
	return func(opts *Options) {
		opts.BatchSize = batchSize
	}
}

// Worker периодически отменяет заказы, застрявшие в payment_pending дольше
// таймаута. Отмена условная (только если заказ всё ещё payment_pending),
// поэтому воркер безопасно гоняется с живыми подтверждениями и перезапуск
// после падения ничем не грозит.
type Worker struct {
	orders    domain.OrderRepository
	logger    *log.Entry
	interval  time.Duration
	timeout   time.Duration
	batchSize int
}

// NewWorker создает воркер abandonment sweep.
func NewWorker(orders domain.OrderRepository, options ...Option) *Worker {
	opts := Options{
		Interval:  DefaultSweepInterval,
		Timeout:   DefaultAbandonTimeout,
		BatchSize: DefaultSweepBatchSize,
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "abandonment-sweeper")
	}

	if opts.Interval <= 0 {
		opts.Interval = DefaultSweepInterval
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultAbandonTimeout
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultSweepBatchSize
	}

	return &Worker{
		orders:    orders,
		logger:    logger,
		interval:  opts.Interval,
		timeout:   opts.Timeout,
		batchSize: opts.BatchSize,
	}
}

// Run запускает периодический sweep до отмены ctx.
func (w *Worker) Run(ctx context.Context) {
	if w.orders == nil {
		w.logger.Warn("abandonment sweeper is disabled: order repository is nil")
		return
	}

	w.sweep(ctx, time.Now().UTC())

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweep(ctx, time.Now().UTC())
		}
	}
}

func (w *Worker) sweep(ctx context.Context, now time.Time) {
	cancelled, err := w.CancelAbandoned(ctx, now)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		sweepRunsTotal.WithLabelValues("error").Inc()
		w.logger.WithError(err).Warn("abandonment sweep run failed")
		return
	}

	sweepRunsTotal.WithLabelValues("ok").Inc()
	sweepLastCancelled.Set(float64(cancelled))
	if cancelled > 0 {
		w.logger.WithField("cancelled", cancelled).Info("abandonment sweep completed")
	}
}

// CancelAbandoned отменяет все payment_pending заказы старше now-timeout
// порциями batchSize.
func (w *Worker) CancelAbandoned(ctx context.Context, now time.Time) (int, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	before := now.Add(-w.timeout)

	totalCancelled := 0
	for {
		if err := ctx.Err(); err != nil {
			return totalCancelled, err
		}

		cancelled, err := w.orders.CancelAbandoned(before, w.batchSize)
		if err != nil {
			return totalCancelled, err
		}

		totalCancelled += cancelled
		if cancelled > 0 {
			sweepCancelledTotal.Add(float64(cancelled))
		}

		if cancelled < w.batchSize {
			break
		}
	}

	return totalCancelled, nil
}
