package devicecache

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName           = "lens-sync.devicecache"
	metricResetsTotal   = "lens_cache_resets_total"
	metricMergedRecords = "lens_cache_merged_records_total"
)

var (
	//nolint:gochecknoglobals // metrics instruments are shared across the process intentionally
	meterOnce sync.Once
	//nolint:gochecknoglobals // metrics instruments are shared across the process intentionally
	resetCounter metric.Int64Counter
	//nolint:gochecknoglobals // metrics instruments are shared across the process intentionally
	mergedCounter metric.Int64Counter
)

func initMeter() {
	meter := otel.Meter(meterName)

	resets, err := meter.Int64Counter(
		metricResetsTotal,
		metric.WithDescription("Total cache clears triggered by a shrinking remote device count"),
	)
	if err != nil {
		otel.Handle(err)
	}
	resetCounter = resets

	merged, err := meter.Int64Counter(
		metricMergedRecords,
		metric.WithDescription("Total device records merged into the cache"),
	)
	if err != nil {
		otel.Handle(err)
	}
	mergedCounter = merged
}

func recordReset(ctx context.Context) {
	meterOnce.Do(initMeter)
	if resetCounter == nil {
		return
	}

	resetCounter.Add(ctx, 1)
}

func recordMerged(ctx context.Context, count int) {
	if count == 0 {
		return
	}

	meterOnce.Do(initMeter)
	if mergedCounter == nil {
		return
	}

	mergedCounter.Add(ctx, int64(count))
}
