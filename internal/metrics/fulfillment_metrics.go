package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// StockMetrics содержит метрики операций Stock Ledger.
type StockMetrics struct {
	reserveTotal *prometheus.CounterVec
	releaseTotal prometheus.Counter
}

// NewStockMetrics создаёт и регистрирует метрики стока.
func NewStockMetrics() *StockMetrics {
	return newStockMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func newStockMetricsWithRegisterer(registerer prometheus.Registerer) *StockMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	return &StockMetrics{
		reserveTotal: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "mediashop_stock_reserve_total",
			Help: "Total number of stock reserve attempts grouped by result",
		}, []string{"result"}),
		releaseTotal: registerCounter(registerer, prometheus.CounterOpts{
			Name: "mediashop_stock_release_total",
			Help: "Total number of stock reservation releases",
		}),
	}
}

// RecordReserve увеличивает счётчик попыток резервирования по результату
// (ok / conflict / insufficient).
func (m *StockMetrics) RecordReserve(result string) {
	m.reserveTotal.WithLabelValues(result).Inc()
}

// RecordRelease увеличивает счётчик снятых резервов.
func (m *StockMetrics) RecordRelease() {
	m.releaseTotal.Inc()
}

// CheckoutMetrics содержит метрики пайплайна конвертации корзины.
type CheckoutMetrics struct {
	conversionsTotal  *prometheus.CounterVec
	conversionSeconds prometheus.Histogram
	rollbacksTotal    prometheus.Counter
}

// NewCheckoutMetrics создаёт и регистрирует метрики checkout.
func NewCheckoutMetrics() *CheckoutMetrics {
	return newCheckoutMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func newCheckoutMetricsWithRegisterer(registerer prometheus.Registerer) *CheckoutMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	return &CheckoutMetrics{
		conversionsTotal: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "mediashop_checkout_conversions_total",
			Help: "Total number of cart-to-order conversions grouped by result",
		}, []string{"result"}),
		conversionSeconds: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "mediashop_checkout_conversion_seconds",
			Help:    "Duration of cart-to-order conversions in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		rollbacksTotal: registerCounter(registerer, prometheus.CounterOpts{
			Name: "mediashop_checkout_reservation_rollbacks_total",
			Help: "Total number of multi-line reservation rollbacks",
		}),
	}
}

// RecordConversion фиксирует результат конвертации корзины.
func (m *CheckoutMetrics) RecordConversion(result string, duration time.Duration) {
	m.conversionsTotal.WithLabelValues(result).Inc()
	m.conversionSeconds.Observe(duration.Seconds())
}

// RecordRollback увеличивает счётчик компенсационных откатов резервов.
func (m *CheckoutMetrics) RecordRollback() {
	m.rollbacksTotal.Inc()
}

// LifecycleMetrics содержит метрики переходов статуса заказа.
type LifecycleMetrics struct {
	transitionsTotal *prometheus.CounterVec
	invalidTotal     prometheus.Counter
	paymentsTotal    *prometheus.CounterVec
}

// NewLifecycleMetrics создаёт и регистрирует метрики жизненного цикла.
func NewLifecycleMetrics() *LifecycleMetrics {
	return newLifecycleMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func newLifecycleMetricsWithRegisterer(registerer prometheus.Registerer) *LifecycleMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	return &LifecycleMetrics{
		transitionsTotal: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "mediashop_order_transitions_total",
			Help: "Total number of order status transitions grouped by target status",
		}, []string{"to"}),
		invalidTotal: registerCounter(registerer, prometheus.CounterOpts{
			Name: "mediashop_order_invalid_transitions_total",
			Help: "Total number of rejected illegal order status transitions",
		}),
		paymentsTotal: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "mediashop_order_payments_total",
			Help: "Total number of payment attempts grouped by result",
		}, []string{"result"}),
	}
}

// RecordTransition фиксирует успешный переход статуса.
func (m *LifecycleMetrics) RecordTransition(to string) {
	m.transitionsTotal.WithLabelValues(to).Inc()
}

// RecordInvalidTransition увеличивает счётчик отклонённых переходов.
func (m *LifecycleMetrics) RecordInvalidTransition() {
	m.invalidTotal.Inc()
}

// RecordPayment фиксирует результат попытки оплаты (ok / failed / stock_validation).
func (m *LifecycleMetrics) RecordPayment(result string) {
	m.paymentsTotal.WithLabelValues(result).Inc()
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
