package telemetry

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var meter = otel.Meter("zexio-agent")

// TunnelSessionsOpened counts tunnel sessions opened by the
// multiplexer, one per inbound request_id.
var TunnelSessionsOpened = mustInt64Counter("zexio_tunnel_sessions_opened_total", "tunnel sessions opened")

// TunnelReconnects counts relay reconnect attempts.
var TunnelReconnects = mustInt64Counter("zexio_tunnel_reconnects_total", "tunnel reconnect attempts")

// HeartbeatFailures counts failed control-plane heartbeats.
var HeartbeatFailures = mustInt64Counter("zexio_heartbeat_failures_total", "failed control-plane heartbeats")

// MeshRequestsRejected counts mesh proxy requests rejected by
// authorization (missing/invalid token or tenant mismatch).
var MeshRequestsRejected = mustInt64Counter("zexio_mesh_requests_rejected_total", "mesh proxy requests rejected")

func mustInt64Counter(name, description string) metric.Int64Counter {
	c, err := meter.Int64Counter(name, metric.WithDescription(description))
	if err != nil {
		// Only reachable if name is malformed, which is a
		// programmer error caught immediately by any test that
		// exercises telemetry.
		slog.Error("telemetry: failed to create counter", "name", name, "error", err)
		return noopCounter{}
	}
	return c
}

// noopCounter satisfies metric.Int64Counter when registration fails,
// so callers never need a nil check.
type noopCounter struct{ metric.Int64Counter }

func (noopCounter) Add(context.Context, int64, ...metric.AddOption) {}
