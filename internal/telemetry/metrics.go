// Package telemetry sets up the agent's Prometheus metrics exporter
// on top of the OpenTelemetry metrics SDK.
package telemetry

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// NewHandler creates the Prometheus exporter and installs it as the
// global OTel MeterProvider, mirroring the control plane's own
// registration: counters in this package are obtained from
// otel.Meter at package-init time, before a real provider exists, and
// the global package retroactively wires them once one is
// registered here. Returns the scrape handler to mount at /metrics.
func NewHandler() (http.Handler, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, err
	}

	otel.SetMeterProvider(sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter)))

	return promhttp.Handler(), nil
}

// Shutdown flushes and stops the meter provider. No-op if NewHandler
// was never called (e.g. in unit tests).
func Shutdown(ctx context.Context) error {
	if mp, ok := otel.GetMeterProvider().(*sdkmetric.MeterProvider); ok {
		return mp.Shutdown(ctx)
	}
	return nil
}
