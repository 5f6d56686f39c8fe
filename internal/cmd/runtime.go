// Package cmd wires the agent's components into a single runtime and
// exposes it as a Cobra command.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zexio-io/zexio-agent/internal/config"
	"github.com/zexio-io/zexio-agent/internal/controlplane"
	"github.com/zexio-io/zexio-agent/internal/core"
	"github.com/zexio-io/zexio-agent/internal/hostresolver"
	"github.com/zexio-io/zexio-agent/internal/identity"
	"github.com/zexio-io/zexio-agent/internal/mesh"
	"github.com/zexio-io/zexio-agent/internal/stats"
	"github.com/zexio-io/zexio-agent/internal/telemetry"
	"github.com/zexio-io/zexio-agent/internal/tunnel"
	"github.com/zexio-io/zexio-agent/internal/workload"
)

// Runtime owns every long-running activity the agent binary performs:
// identity bootstrap, heartbeats, the reverse tunnel, the stats
// stream, the mesh proxy, and the Service Directory refresh loop.
type Runtime struct {
	conf           *config.Config
	identityStore  *identity.Store
	controlPlane   *controlplane.Client
	workloadStore  *workload.Store
	directory      *hostresolver.InMemoryDirectory
	resolver       *hostresolver.Resolver
	version        string
	log            *slog.Logger
}

// NewRuntime assembles a Runtime from its configured components.
func NewRuntime(
	conf *config.Config,
	identityStore *identity.Store,
	controlPlane *controlplane.Client,
	workloadStore *workload.Store,
	directory *hostresolver.InMemoryDirectory,
	resolver *hostresolver.Resolver,
	version core.Version,
) *Runtime {
	return &Runtime{
		conf:          conf,
		identityStore: identityStore,
		controlPlane:  controlPlane,
		workloadStore: workloadStore,
		directory:     directory,
		resolver:      resolver,
		version:       string(version),
		log:           slog.Default().With("component", "cmd"),
	}
}

// Run bootstraps the node identity (if necessary), then starts every
// long-running activity and blocks until one of them fails or ctx is
// cancelled.
func (r *Runtime) Run(ctx context.Context) error {
	rec, err := r.identityStore.Bootstrap(r.conf.ProvisioningToken(), r.register)
	if err != nil {
		return fmt.Errorf("cmd: bootstrap identity: %w", err)
	}

	relayURL := r.conf.RelayURL()
	if relayURL == "" {
		relayURL = rec.RelayURL
	}

	sampler, err := stats.NewSampler()
	if err != nil {
		return fmt.Errorf("cmd: new sampler: %w", err)
	}

	statsStreamer := stats.NewStreamer(rec.NodeID, sampler, r.workloadStore)
	tunnelClient := tunnel.NewClient(relayURL, rec.NodeID, rec.NodeSecret, r.dialTarget, statsStreamer)
	meshProxy := mesh.NewProxy(r.resolver, []byte(r.conf.MeshSecret()), r.conf.MeshAllowedOrigins())

	group, gctx := errgroup.WithContext(ctx)

	group.Go(func() error { return tunnelClient.Run(gctx) })
	group.Go(func() error { return r.directory.Run(gctx) })
	group.Go(func() error { return r.heartbeatLoop(gctx, rec.NodeID, rec.NodeSecret) })
	group.Go(func() error { return r.serveMesh(gctx, meshProxy) })
	group.Go(func() error { return r.serveMetrics(gctx) })

	return group.Wait()
}

// register implements identity.RegisterFunc by calling the
// control-plane registration endpoint. The control plane, not this
// agent, mints the node_id and node_secret returned here.
func (r *Runtime) register(provisioningToken string) (nodeID, nodeSecret, relayURL string, err error) {
	hostname, hostErr := os.Hostname()
	if hostErr != nil {
		hostname = "unknown"
	}

	resp, err := r.controlPlane.Register(context.Background(), controlplane.RegisterRequest{
		ProvisioningToken: provisioningToken,
		Hostname:          hostname,
		OSType:            osType(),
		Arch:              runtime.GOARCH,
	})
	if err != nil {
		return "", "", "", err
	}
	return resp.NodeID, resp.NodeSecret, resp.RelayURL, nil
}

// heartbeatLoop periodically reports liveness to the control plane. A
// 403 or 404 response means the control plane no longer recognizes
// this node (e.g. it was deleted server-side); the local identity is
// discarded so the next run re-bootstraps rather than heartbeating
// forever against an identity the control plane has forgotten.
func (r *Runtime) heartbeatLoop(ctx context.Context, nodeID, nodeSecret string) error {
	ticker := time.NewTicker(r.conf.HeartbeatInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.controlPlane.Heartbeat(ctx, nodeID, nodeSecret); err != nil {
				r.log.Warn("heartbeat failed", "error", err)
				telemetry.HeartbeatFailures.Add(ctx, 1)

				var statusErr *controlplane.StatusError
				if errors.As(err, &statusErr) && (statusErr.StatusCode == http.StatusForbidden || statusErr.StatusCode == http.StatusNotFound) {
					r.log.Warn("node no longer recognized by control plane, discarding local identity", "status", statusErr.StatusCode)
					if removeErr := r.identityStore.Remove(); removeErr != nil {
						r.log.Warn("failed to discard local identity", "error", removeErr)
					}
					return fmt.Errorf("cmd: node deregistered by control plane: %w", err)
				}
			}
		}
	}
}

func (r *Runtime) serveMesh(ctx context.Context, proxy *mesh.Proxy) error {
	srv := &http.Server{
		Addr:              r.conf.MeshListenAddress(),
		Handler:           proxy.Handler(),
		ReadHeaderTimeout: time.Second,
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.ListenAndServe() }()

	select {
	case err := <-serveErr:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("cmd: mesh proxy: %w", err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (r *Runtime) serveMetrics(ctx context.Context) error {
	handler, err := telemetry.NewHandler()
	if err != nil {
		return fmt.Errorf("cmd: metrics handler: %w", err)
	}

	srv := &http.Server{
		Addr:              r.conf.MetricsListenAddress(),
		Handler:           handler,
		ReadHeaderTimeout: time.Second,
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.ListenAndServe() }()

	select {
	case err := <-serveErr:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("cmd: metrics server: %w", err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		defer telemetry.Shutdown(shutdownCtx)
		return srv.Shutdown(shutdownCtx)
	}
}

// dialTarget opens a TCP connection to the agent's configured local
// target port. Every inbound tunnel session is forwarded to this one
// fixed address; the relay, not the agent, decides which external
// listener a given request_id originated from.
func (r *Runtime) dialTarget(ctx context.Context, _ string) (net.Conn, error) {
	var d net.Dialer
	return d.DialContext(ctx, "tcp", fmt.Sprintf("127.0.0.1:%d", r.conf.TunnelTargetPort()))
}

// osType reports the node's OS for registration, overridable for
// environments (e.g. containers pretending to be a host) where
// runtime.GOOS doesn't reflect what the control plane should record.
func osType() string {
	if v := os.Getenv("ZEXIO_OS_TYPE_OVERRIDE"); v != "" {
		return v
	}
	return runtime.GOOS
}
