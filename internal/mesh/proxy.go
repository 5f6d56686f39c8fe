package mesh

import (
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/rs/cors"

	"github.com/zexio-io/zexio-agent/internal/core"
	"github.com/zexio-io/zexio-agent/internal/hostresolver"
	"github.com/zexio-io/zexio-agent/internal/telemetry"
)

// Proxy is the inbound service-mesh reverse proxy: it terminates
// virtual-host HTTP(S) requests, checks the bearer token's tenant
// claim against the host's owner_id before forwarding, and proxies the
// request to the resolved upstream.
type Proxy struct {
	resolver       *hostresolver.Resolver
	secret         []byte
	allowedOrigins []string
	log            *slog.Logger
}

// NewProxy returns a Proxy that resolves hosts via resolver and
// verifies bearer tokens against secret.
func NewProxy(resolver *hostresolver.Resolver, secret []byte, allowedOrigins []string) *Proxy {
	return &Proxy{
		resolver:       resolver,
		secret:         secret,
		allowedOrigins: allowedOrigins,
		log:            slog.Default().With("component", "mesh"),
	}
}

// Handler returns the CORS-wrapped HTTP handler to mount.
func (p *Proxy) Handler() http.Handler {
	var corsHandler *cors.Cors
	if len(p.allowedOrigins) == 0 {
		corsHandler = cors.AllowAll()
	} else {
		corsHandler = cors.New(cors.Options{
			AllowedOrigins:   p.allowedOrigins,
			AllowCredentials: true,
		})
	}
	return corsHandler.Handler(http.HandlerFunc(p.serveHTTP))
}

func (p *Proxy) serveHTTP(w http.ResponseWriter, r *http.Request) {
	host := r.Host
	if host == "" {
		http.Error(w, "missing host", http.StatusBadRequest)
		return
	}

	addr, ownerID, err := p.resolver.Resolve(r.Context(), host)
	if err != nil {
		p.log.Warn("mesh request host resolution failed", "host", host, "error", err)
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	claims, err := p.authorize(r, ownerID)
	if err != nil {
		p.log.Warn("mesh request rejected", "host", host, "error", err)
		telemetry.MeshRequestsRejected.Add(r.Context(), 1)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	proxy := p.reverseProxy(addr)
	p.log.Debug("forwarding mesh request", "host", host, "org", claims.OrgID, "upstream", addr)
	proxy.ServeHTTP(w, r)
}

// authorize extracts and verifies the bearer token, enforcing tenant
// isolation: a token scoped to an org other than the one that owns the
// resolved host must never be allowed to forward.
func (p *Proxy) authorize(r *http.Request, ownerID string) (*Claims, error) {
	token := bearerToken(r)
	if token == "" {
		return nil, &core.DomainError{Code: core.ErrorCodeAuthFailed, Message: "missing bearer token"}
	}

	claims, err := VerifyBearerToken(p.secret, token)
	if err != nil {
		return nil, &core.DomainError{Code: core.ErrorCodeAuthFailed, Message: err.Error()}
	}

	if claims.OrgID != ownerID {
		return nil, &core.DomainError{
			Code:    core.ErrorCodeTenantMismatch,
			Message: "bearer token org does not match host owner",
		}
	}

	return claims, nil
}

func (p *Proxy) reverseProxy(addr string) *httputil.ReverseProxy {
	target := &url.URL{Scheme: "http", Host: addr}
	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.Director = func(req *http.Request) {
		req.URL.Scheme = target.Scheme
		req.URL.Host = target.Host
		req.Host = target.Host
	}
	proxy.ErrorHandler = func(w http.ResponseWriter, _ *http.Request, err error) {
		p.log.Warn("mesh upstream unreachable", "upstream", addr, "error", err)
		http.Error(w, "upstream unavailable", http.StatusBadGateway)
	}
	return proxy
}

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, prefix) {
		return ""
	}
	return strings.TrimPrefix(h, prefix)
}
