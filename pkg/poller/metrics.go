package poller

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName          = "lens-sync.poller"
	metricPagesTotal   = "lens_poller_pages_total"
	metricCyclesTotal  = "lens_poller_cycles_total"
	metricFetchLatency = "lens_poller_fetch_latency_seconds"
	metricPaused       = "lens_poller_paused"

	outcomeSuccess = "success"
	outcomeError   = "error"
)

var (
	//nolint:gochecknoglobals // metrics instruments are shared across the process intentionally
	meterOnce sync.Once
	//nolint:gochecknoglobals // metrics instruments are shared across the process intentionally
	pagesCounter metric.Int64Counter
	//nolint:gochecknoglobals // metrics instruments are shared across the process intentionally
	cyclesCounter metric.Int64Counter
	//nolint:gochecknoglobals // metrics instruments are shared across the process intentionally
	fetchHistogram metric.Float64Histogram
	//nolint:gochecknoglobals // read by the observable gauge callback
	pausedValue atomic.Int64
)

func initMeter() {
	meter := otel.Meter(meterName)

	pages, err := meter.Int64Counter(
		metricPagesTotal,
		metric.WithDescription("Total device pages fetched by the poller"),
	)
	if err != nil {
		otel.Handle(err)
	}
	pagesCounter = pages

	cycles, err := meter.Int64Counter(
		metricCyclesTotal,
		metric.WithDescription("Total completed passes over the remote fleet"),
	)
	if err != nil {
		otel.Handle(err)
	}
	cyclesCounter = cycles

	hist, err := meter.Float64Histogram(
		metricFetchLatency,
		metric.WithDescription("Latency of single device page fetches"),
		metric.WithUnit("s"),
	)
	if err != nil {
		otel.Handle(err)
	}
	fetchHistogram = hist

	_, err = meter.Int64ObservableGauge(
		metricPaused,
		metric.WithDescription("1 while the inactivity watchdog has paused polling"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(pausedValue.Load())
			return nil
		}),
	)
	if err != nil {
		otel.Handle(err)
	}
}

func recordPage(ctx context.Context, outcome string, latency time.Duration) {
	meterOnce.Do(initMeter)

	attrs := metric.WithAttributes(attribute.String("outcome", outcome))

	if pagesCounter != nil {
		pagesCounter.Add(ctx, 1, attrs)
	}

	if fetchHistogram != nil {
		fetchHistogram.Record(ctx, latency.Seconds(), attrs)
	}
}

func recordCycle(ctx context.Context, reset bool) {
	meterOnce.Do(initMeter)
	if cyclesCounter == nil {
		return
	}

	cyclesCounter.Add(ctx, 1, metric.WithAttributes(attribute.Bool("cache_reset", reset)))
}

func recordPaused(paused bool) {
	meterOnce.Do(initMeter)

	if paused {
		pausedValue.Store(1)
		return
	}

	pausedValue.Store(0)
}
