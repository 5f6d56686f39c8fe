package hostresolver

import (
	"context"
	"fmt"
	"hash/crc32"
	"strings"

	"github.com/zexio-io/zexio-agent/internal/core"
)

// basePort and portRange define the deterministic fallback port
// formula for legacy/wildcard zone hosts: 8000 + (CRC32(project_id)
// mod 1000).
const (
	basePort  = 8000
	portRange = 1000
)

// internalZoneSuffix and appZoneSuffix identify the two zones a
// request's Host header can fall in. internalZoneSuffix is shared by
// both rules below: a host with at least two labels ahead of it is
// "managed" (Service Directory backed); a host with exactly one label
// ahead of it, or a managed host with no directory entry, is "legacy"
// (deterministic port), same as appZoneSuffix.
const (
	internalZoneSuffix = ".zexio.internal"
	appZoneSuffix      = ".zexio.app"
)

// managedZoneMinLabels is the minimum total label count (including the
// two labels of internalZoneSuffix itself) a host must have to be
// routed through the managed zone's Service Directory lookup rather
// than treated as a single-label legacy host on the same suffix.
const managedZoneMinLabels = 4

// Resolver maps an inbound Host header to the local or remote address
// a request should be forwarded to, plus the owner_id the mesh proxy
// checks a bearer token's org claim against.
type Resolver struct {
	directory Directory
	publicIP  string
}

// NewResolver returns a Resolver backed by directory. publicIP is this
// node's configured public IP address, used to recognize a Service
// Directory entry that points back at this same node so its upstream
// can be collapsed to 127.0.0.1 rather than routed out over the
// network to itself.
func NewResolver(directory Directory, publicIP string) *Resolver {
	return &Resolver{directory: directory, publicIP: publicIP}
}

// Resolve returns the upstream address for host and the owner_id that
// a forwarded request's bearer claims must match. Managed-zone hosts
// are looked up by the exact host in the Service Directory; a
// directory miss falls through to the legacy/wildcard rule rather than
// failing outright. A host that matches neither zone is reported as
// core.ErrorCodeUnknownHost.
func (r *Resolver) Resolve(ctx context.Context, host string) (addr, ownerID string, err error) {
	host = stripPort(host)

	if isManagedZoneHost(host) {
		entry, found, lookupErr := r.directory.Lookup(ctx, host)
		if lookupErr != nil {
			return "", "", fmt.Errorf("hostresolver: resolve %s: %w", host, lookupErr)
		}
		if found {
			upstreamHost := entry.WorkerIP
			if r.isLoopback(upstreamHost) {
				upstreamHost = "127.0.0.1"
			}
			return fmt.Sprintf("%s:%d", upstreamHost, entry.Port), entry.OwnerID, nil
		}
		// No directory entry for this managed-zone host: fall through
		// to the legacy rule below rather than failing outright.
	}

	if prefix, ok := legacyPrefix(host); ok {
		return legacyAddr(legacyProjectID(prefix)), "", nil
	}

	return "", "", &core.DomainError{
		Code:    core.ErrorCodeUnknownHost,
		Message: fmt.Sprintf("hostresolver: no rule matches host %s", host),
	}
}

// isLoopback reports whether ip is this node's own public address (so
// a Service Directory entry pointing at it can be dialed over
// loopback instead of the network) or a recognized loopback literal.
func (r *Resolver) isLoopback(ip string) bool {
	if ip == "" {
		return false
	}
	if r.publicIP != "" && ip == r.publicIP {
		return true
	}
	switch ip {
	case "127.0.0.1", "::1", "localhost":
		return true
	default:
		return false
	}
}

// isManagedZoneHost reports whether host is suffixed with
// internalZoneSuffix and has at least two labels ahead of it (the
// label-count rule that distinguishes a managed-zone host like
// "web.prod.zexio.internal" from a legacy single-label one like
// "acme.zexio.internal").
func isManagedZoneHost(host string) bool {
	return strings.HasSuffix(host, internalZoneSuffix) && labelCount(host) >= managedZoneMinLabels
}

// labelCount returns the number of dot-separated labels in host.
func labelCount(host string) int {
	if host == "" {
		return 0
	}
	return len(strings.Split(host, "."))
}

// legacyPrefix strips whichever legacy/wildcard zone suffix host
// carries (internalZoneSuffix or appZoneSuffix), returning ok=false if
// host matches neither or the prefix is empty. The prefix is not
// checked for label count: a multi-label internalZoneSuffix prefix
// reaches here when a managed-zone host has no directory entry.
func legacyPrefix(host string) (string, bool) {
	var prefix string
	switch {
	case strings.HasSuffix(host, internalZoneSuffix):
		prefix = strings.TrimSuffix(host, internalZoneSuffix)
	case strings.HasSuffix(host, appZoneSuffix):
		prefix = strings.TrimSuffix(host, appZoneSuffix)
	default:
		return "", false
	}
	if prefix == "" {
		return "", false
	}
	return prefix, true
}

// legacyProjectID extracts the project id from a legacy/wildcard zone
// prefix. A prefix of the form "<env>--<uuid>" (e.g.
// "prod--3fa85f64-5717-4562-b3fc-2c963f66afa6") prefers the uuid after
// the last "--"; any other shape uses the whole prefix unchanged, e.g.
// "my-project" -> "my-project".
func legacyProjectID(prefix string) string {
	if idx := strings.LastIndex(prefix, "--"); idx != -1 {
		return prefix[idx+2:]
	}
	return prefix
}

// legacyAddr derives the deterministic local address for a
// legacy/wildcard zone project: port = 8000 + (CRC32(project_id) mod
// 1000), bound to localhost since legacy workloads always run
// alongside the agent.
func legacyAddr(projectID string) string {
	port := basePort + int(crc32.ChecksumIEEE([]byte(projectID))%portRange)
	return fmt.Sprintf("127.0.0.1:%d", port)
}

func stripPort(host string) string {
	if idx := strings.LastIndex(host, ":"); idx != -1 {
		return host[:idx]
	}
	return host
}
