package hostresolver

import (
	"context"
	"errors"
	"testing"

	"github.com/zexio-io/zexio-agent/internal/core"
)

type fakeDirectory struct {
	entries map[string]Entry
}

func (f fakeDirectory) Lookup(_ context.Context, host string) (Entry, bool, error) {
	e, ok := f.entries[host]
	return e, ok, nil
}

func TestResolver_ManagedZoneLooksUpDirectory(t *testing.T) {
	t.Parallel()

	dir := fakeDirectory{entries: map[string]Entry{
		"web.prod.zexio.internal": {Host: "web.prod.zexio.internal", WorkerIP: "10.0.0.5", Port: 9000, OwnerID: "org-acme"},
	}}
	resolver := NewResolver(dir, "")

	addr, ownerID, err := resolver.Resolve(context.Background(), "web.prod.zexio.internal")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if addr != "10.0.0.5:9000" {
		t.Fatalf("addr = %q, want 10.0.0.5:9000", addr)
	}
	if ownerID != "org-acme" {
		t.Fatalf("ownerID = %q, want org-acme", ownerID)
	}
}

func TestResolver_ManagedZoneCollapsesOwnPublicIPToLoopback(t *testing.T) {
	t.Parallel()

	dir := fakeDirectory{entries: map[string]Entry{
		"web.prod.zexio.internal": {Host: "web.prod.zexio.internal", WorkerIP: "203.0.113.9", Port: 9000, OwnerID: "org-acme"},
	}}
	resolver := NewResolver(dir, "203.0.113.9")

	addr, _, err := resolver.Resolve(context.Background(), "web.prod.zexio.internal")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if addr != "127.0.0.1:9000" {
		t.Fatalf("addr = %q, want 127.0.0.1:9000", addr)
	}
}

func TestResolver_ManagedZoneMissingEntryFallsThroughToLegacy(t *testing.T) {
	t.Parallel()

	resolver := NewResolver(fakeDirectory{entries: map[string]Entry{}}, "")

	addr, ownerID, err := resolver.Resolve(context.Background(), "web.prod.zexio.internal")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if ownerID != "" {
		t.Fatalf("ownerID = %q, want empty on legacy fallthrough", ownerID)
	}
	want := legacyAddr(legacyProjectID("web.prod"))
	if addr != want {
		t.Fatalf("addr = %q, want %q", addr, want)
	}
}

func TestResolver_SingleLabelInternalHostIsLegacy(t *testing.T) {
	t.Parallel()

	dir := fakeDirectory{entries: map[string]Entry{
		// Even if an entry happened to exist keyed by this host, a
		// single-label prefix must never take the managed-zone path.
		"acme.zexio.internal": {Host: "acme.zexio.internal", WorkerIP: "10.0.0.9", Port: 1, OwnerID: "org-x"},
	}}
	resolver := NewResolver(dir, "")

	addr, ownerID, err := resolver.Resolve(context.Background(), "acme.zexio.internal")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if ownerID != "" {
		t.Fatalf("ownerID = %q, want empty for a legacy host", ownerID)
	}
	if want := legacyAddr("acme"); addr != want {
		t.Fatalf("addr = %q, want %q", addr, want)
	}
}

func TestResolver_LegacyZoneIsDeterministic(t *testing.T) {
	t.Parallel()

	resolver := NewResolver(fakeDirectory{}, "")

	addr1, _, err := resolver.Resolve(context.Background(), "my-project.zexio.app")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	addr2, _, err := resolver.Resolve(context.Background(), "my-project.zexio.app:443")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if addr1 != addr2 {
		t.Fatalf("resolution not stable across calls: %q != %q", addr1, addr2)
	}
}

func TestResolver_LegacyZoneDifferentProjectsDifferentPorts(t *testing.T) {
	t.Parallel()

	resolver := NewResolver(fakeDirectory{}, "")

	a, _, _ := resolver.Resolve(context.Background(), "project-a.zexio.app")
	b, _, _ := resolver.Resolve(context.Background(), "project-b.zexio.app")
	if a == b {
		t.Fatalf("expected different projects to map to different ports, both got %q", a)
	}
}

func TestResolver_WildcardZonePrefersUUIDAfterDoubleDash(t *testing.T) {
	t.Parallel()

	resolver := NewResolver(fakeDirectory{}, "")

	withUUID, _, err := resolver.Resolve(context.Background(), "prod--3fa85f64-5717-4562-b3fc-2c963f66afa6.zexio.app")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	bare, _, err := resolver.Resolve(context.Background(), "3fa85f64-5717-4562-b3fc-2c963f66afa6.zexio.app")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if withUUID != bare {
		t.Fatalf("env--uuid prefix did not resolve to the same address as the bare uuid: %q != %q", withUUID, bare)
	}
}

func TestResolver_UnknownZoneReturnsNotFound(t *testing.T) {
	t.Parallel()

	resolver := NewResolver(fakeDirectory{}, "")

	_, _, err := resolver.Resolve(context.Background(), "evil.example.com")
	if err == nil {
		t.Fatal("expected an error for a host matching neither zone")
	}
	var domainErr *core.DomainError
	if !errors.As(err, &domainErr) || domainErr.Code != core.ErrorCodeUnknownHost {
		t.Fatalf("err = %v, want a core.DomainError with ErrorCodeUnknownHost", err)
	}
}

func TestLegacyAddr_MatchesFormula(t *testing.T) {
	t.Parallel()

	// 8000 + (CRC32-IEEE("acme") mod 1000) = 8814.
	got := legacyAddr("acme")
	want := "127.0.0.1:8814"
	if got != want {
		t.Fatalf("legacyAddr(acme) = %q, want %q", got, want)
	}
}
