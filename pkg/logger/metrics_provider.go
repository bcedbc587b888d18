/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package logger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.31.0"
)

// Static errors to match err113 guidance.
var ErrOTelMetricsDisabled = errors.New("OTel metrics exporter disabled")

// meterProvider tracks the global metrics provider so we can shut it down cleanly.
//
//nolint:gochecknoglobals // global state is required for coordinated shutdown
var meterProvider *sdkmetric.MeterProvider

// guard concurrent initialisation of the metrics provider.
//
//nolint:gochecknoglobals // package-level guard for init logic
var meterMu sync.Mutex

const (
	defaultServiceName    = "lens-sync"
	defaultServiceVersion = "1.0.0"
	defaultExportInterval = 15 * time.Second
)

// OTelConfig describes the OTLP metrics exporter.
type OTelConfig struct {
	Enabled        bool              `json:"enabled" yaml:"enabled"`
	Endpoint       string            `json:"endpoint" yaml:"endpoint"`
	Headers        map[string]string `json:"headers" yaml:"headers"`
	Insecure       bool              `json:"insecure" yaml:"insecure"`
	ExportInterval time.Duration     `json:"-" yaml:"-"`
}

// MetricsConfig captures the information required to initialise the OTEL metrics pipeline.
type MetricsConfig struct {
	ServiceName    string
	ServiceVersion string
	OTel           *OTelConfig
}

// InitializeMetrics configures the global MeterProvider and wires an OTLP exporter so
// in-process instruments (poller and cache metrics) are delivered to the collector.
//
// It is safe to call this multiple times; subsequent calls will return the already
// initialised provider. If metrics exporting is disabled it returns ErrOTelMetricsDisabled.
func InitializeMetrics(ctx context.Context, config MetricsConfig) (*sdkmetric.MeterProvider, error) {
	if config.OTel == nil || !config.OTel.Enabled || config.OTel.Endpoint == "" {
		return nil, ErrOTelMetricsDisabled
	}

	meterMu.Lock()
	defer meterMu.Unlock()

	if meterProvider != nil {
		return meterProvider, nil
	}

	serviceName := config.ServiceName
	if serviceName == "" {
		serviceName = defaultServiceName
	}

	serviceVersion := config.ServiceVersion
	if serviceVersion == "" {
		serviceVersion = defaultServiceVersion
	}

	opts := []otlpmetricgrpc.Option{
		otlpmetricgrpc.WithEndpoint(config.OTel.Endpoint),
	}

	if config.OTel.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}

	if len(config.OTel.Headers) > 0 {
		opts = append(opts, otlpmetricgrpc.WithHeaders(config.OTel.Headers))
	}

	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP metric exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics resource: %w", err)
	}

	interval := config.OTel.ExportInterval
	if interval <= 0 {
		interval = defaultExportInterval
	}

	reader := sdkmetric.NewPeriodicReader(
		exporter,
		sdkmetric.WithInterval(interval),
	)

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)

	otel.SetMeterProvider(provider)
	meterProvider = provider

	return meterProvider, nil
}

// ShutdownMetrics flushes and stops the metrics pipeline.
func ShutdownMetrics(ctx context.Context) error {
	meterMu.Lock()
	defer meterMu.Unlock()

	if meterProvider == nil {
		return nil
	}

	if err := meterProvider.Shutdown(ctx); err != nil {
		return err
	}

	meterProvider = nil

	return nil
}
