package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, counter prometheus.Counter) float64 {
	t.Helper()

	metric := &dto.Metric{}
	if err := counter.Write(metric); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return metric.Counter.GetValue()
}

func TestStockMetrics_RecordReserve(t *testing.T) {
	metrics := newStockMetricsWithRegisterer(prometheus.NewRegistry())

	metrics.RecordReserve("ok")
	metrics.RecordReserve("ok")
	metrics.RecordReserve("conflict")
	metrics.RecordReserve("insufficient")

	if got := counterValue(t, metrics.reserveTotal.WithLabelValues("ok")); got != 2.0 {
		t.Errorf("ok reserves = %f, want 2.0", got)
	}
	if got := counterValue(t, metrics.reserveTotal.WithLabelValues("conflict")); got != 1.0 {
		t.Errorf("conflict reserves = %f, want 1.0", got)
	}
	if got := counterValue(t, metrics.reserveTotal.WithLabelValues("insufficient")); got != 1.0 {
		t.Errorf("insufficient reserves = %f, want 1.0", got)
	}
}

func TestStockMetrics_RecordRelease(t *testing.T) {
	metrics := newStockMetricsWithRegisterer(prometheus.NewRegistry())

	metrics.RecordRelease()
	metrics.RecordRelease()

	if got := counterValue(t, metrics.releaseTotal); got != 2.0 {
		t.Errorf("releases = %f, want 2.0", got)
	}
}

func TestCheckoutMetrics_RecordConversion(t *testing.T) {
	metrics := newCheckoutMetricsWithRegisterer(prometheus.NewRegistry())

	metrics.RecordConversion("ok", 100*time.Millisecond)
	metrics.RecordConversion("ok", 500*time.Millisecond)
	metrics.RecordConversion("insufficient_stock", 50*time.Millisecond)

	if got := counterValue(t, metrics.conversionsTotal.WithLabelValues("ok")); got != 2.0 {
		t.Errorf("ok conversions = %f, want 2.0", got)
	}

	metric := &dto.Metric{}
	if err := metrics.conversionSeconds.Write(metric); err != nil {
		t.Fatalf("write histogram: %v", err)
	}
	if metric.Histogram.GetSampleCount() != 3 {
		t.Errorf("samples = %d, want 3", metric.Histogram.GetSampleCount())
	}
	sum := metric.Histogram.GetSampleSum()
	if sum < 0.6 || sum > 0.7 {
		t.Errorf("sum = %f, want about 0.65", sum)
	}
}

func TestCheckoutMetrics_RecordRollback(t *testing.T) {
	metrics := newCheckoutMetricsWithRegisterer(prometheus.NewRegistry())

	metrics.RecordRollback()

	if got := counterValue(t, metrics.rollbacksTotal); got != 1.0 {
		t.Errorf("rollbacks = %f, want 1.0", got)
	}
}

func TestLifecycleMetrics(t *testing.T) {
	metrics := newLifecycleMetricsWithRegisterer(prometheus.NewRegistry())

	metrics.RecordTransition("pending_payment")
	metrics.RecordTransition("pending_payment")
	metrics.RecordInvalidTransition()
	metrics.RecordPayment("ok")
	metrics.RecordPayment("failed")

	if got := counterValue(t, metrics.transitionsTotal.WithLabelValues("pending_payment")); got != 2.0 {
		t.Errorf("transitions = %f, want 2.0", got)
	}
	if got := counterValue(t, metrics.invalidTotal); got != 1.0 {
		t.Errorf("invalid transitions = %f, want 1.0", got)
	}
	if got := counterValue(t, metrics.paymentsTotal.WithLabelValues("failed")); got != 1.0 {
		t.Errorf("failed payments = %f, want 1.0", got)
	}
}

func TestRegisterTwiceReusesCollector(t *testing.T) {
	registry := prometheus.NewRegistry()

	first := newStockMetricsWithRegisterer(registry)
	second := newStockMetricsWithRegisterer(registry)

	first.RecordRelease()
	second.RecordRelease()

	// Повторная регистрация возвращает уже существующий collector.
	if got := counterValue(t, first.releaseTotal); got != 2.0 {
		t.Errorf("releases = %f, want 2.0", got)
	}
}
