package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CheckoutMetrics содержит метрики reconciliation-движка заказов.
type CheckoutMetrics struct {
	// Счётчики операций
	ordersCreated    *prometheus.CounterVec
	ordersConfirmed  *prometheus.CounterVec
	ordersCancelled  *prometheus.CounterVec
	confirmRejected  *prometheus.CounterVec
	versionConflicts prometheus.Counter

	// Гистограммы времени выполнения
	confirmDuration prometheus.Histogram
	stepDuration    *prometheus.HistogramVec

	// Счётчики событий timeline и outbox
	timelineEvents prometheus.Counter
	outboxEvents   prometheus.Counter

	// Gauge для заказов, ожидающих оплату
	pendingOrders prometheus.Gauge
}

// NewCheckoutMetrics создаёт новый экземпляр метрик движка.
func NewCheckoutMetrics() *CheckoutMetrics {
	return newCheckoutMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func newCheckoutMetricsWithRegisterer(registerer prometheus.Registerer) *CheckoutMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &CheckoutMetrics{
		ordersCreated: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_orders_created_total",
			Help: "Total number of orders created",
		}, []string{"method"}),
		ordersConfirmed: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_orders_confirmed_total",
			Help: "Total number of orders confirmed after payment verification",
		}, []string{"method"}),
		ordersCancelled: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_orders_cancelled_total",
			Help: "Total number of orders cancelled",
		}, []string{"source"}),
		confirmRejected: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_confirm_rejected_total",
			Help: "Total number of rejected payment confirmations",
		}, []string{"reason"}),
		versionConflicts: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_order_version_conflicts_total",
			Help: "Total number of optimistic locking conflicts on order save",
		}),
		confirmDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "storefront_confirm_duration_seconds",
			Help:    "Duration of payment confirmation handling in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		stepDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "storefront_checkout_step_duration_seconds",
			Help:    "Duration of individual checkout steps in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"step"}),
		timelineEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_timeline_events_total",
			Help: "Total number of timeline events recorded",
		}),
		outboxEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_outbox_events_total",
			Help: "Total number of outbox events enqueued",
		}),
		pendingOrders: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "storefront_pending_orders",
			Help: "Number of orders currently awaiting payment",
		}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	collector := prometheus.NewGauge(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Gauge)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register gauge %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	collector := prometheus.NewHistogram(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Histogram)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogramVec(registerer prometheus.Registerer, opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	collector := prometheus.NewHistogramVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.HistogramVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram vec %q: %v", opts.Name, err))
	}
	return collector
}

// RecordOrderCreated увеличивает счётчик созданных заказов.
func (m *CheckoutMetrics) RecordOrderCreated(method string) {
	m.ordersCreated.WithLabelValues(method).Inc()
}

// RecordOrderConfirmed увеличивает счётчик подтверждённых заказов.
func (m *CheckoutMetrics) RecordOrderConfirmed(method string) {
	m.ordersConfirmed.WithLabelValues(method).Inc()
}

// RecordOrderCancelled увеличивает счётчик отменённых заказов.
// source: customer, admin, sweeper, gateway.
func (m *CheckoutMetrics) RecordOrderCancelled(source string) {
	m.ordersCancelled.WithLabelValues(source).Inc()
}

// RecordConfirmRejected увеличивает счётчик отклонённых подтверждений.
func (m *CheckoutMetrics) RecordConfirmRejected(reason string) {
	m.confirmRejected.WithLabelValues(reason).Inc()
}

// RecordVersionConflict увеличивает счётчик конфликтов optimistic locking.
func (m *CheckoutMetrics) RecordVersionConflict() {
	m.versionConflicts.Inc()
}

// RecordConfirmDuration записывает время обработки подтверждения оплаты.
func (m *CheckoutMetrics) RecordConfirmDuration(duration time.Duration) {
	m.confirmDuration.Observe(duration.Seconds())
}

// RecordStepDuration записывает время выполнения шага checkout.
func (m *CheckoutMetrics) RecordStepDuration(step string, duration time.Duration) {
	m.stepDuration.WithLabelValues(step).Observe(duration.Seconds())
}

// RecordTimelineEvent увеличивает счётчик событий timeline.
func (m *CheckoutMetrics) RecordTimelineEvent() {
	m.timelineEvents.Inc()
}

// RecordOutboxEvent увеличивает счётчик событий outbox.
func (m *CheckoutMetrics) RecordOutboxEvent() {
	m.outboxEvents.Inc()
}

// PendingOrderOpened увеличивает gauge ожидающих оплату заказов.
func (m *CheckoutMetrics) PendingOrderOpened() {
	m.pendingOrders.Inc()
}

// PendingOrderClosed уменьшает gauge ожидающих оплату заказов.
func (m *CheckoutMetrics) PendingOrderClosed() {
	m.pendingOrders.Dec()
}
