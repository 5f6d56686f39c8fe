// Package hostresolver resolves an inbound virtual host to a local or
// remote workload address: managed internal zone hosts are looked up
// in the Service Directory, legacy/wildcard zone hosts fall back to a
// deterministic port derived from the project id.
package hostresolver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Entry is one Service Directory record, keyed by the exact incoming
// virtual host: the worker carrying that host's upstream, and the
// owner_id the mesh proxy's tenant-isolation check compares a bearer
// token's org claim against.
type Entry struct {
	Host     string `json:"host"`
	WorkerIP string `json:"worker_ip"`
	Port     int    `json:"port"`
	OwnerID  string `json:"owner_id"`
}

// Directory looks up Service Directory entries by the exact incoming
// virtual host. The shipped implementation is an in-process,
// poll-refreshed cache: no Redis client exists anywhere in this
// codebase's dependency stack, so REDIS_URL is read only to log where
// a real backend would point; InMemoryDirectory itself is seeded from a
// local JSON snapshot. A Redis-backed Directory is a drop-in
// replacement behind this interface.
type Directory interface {
	Lookup(ctx context.Context, host string) (Entry, bool, error)
}

// InMemoryDirectory implements Directory with a mutex-guarded map
// refreshed from a JSON snapshot file on a fixed interval (see Run).
// Concurrent lookups for the same host are deduplicated via
// singleflight; a lookup, hit or miss, never triggers a refresh.
type InMemoryDirectory struct {
	snapshotPath string
	refresh      time.Duration

	mu      sync.RWMutex
	entries map[string]Entry

	group singleflight.Group
	log   *slog.Logger
}

// NewInMemoryDirectory returns a Directory seeded from snapshotPath
// and refreshed every refresh interval. If REDIS_URL is set in the
// environment it is only logged, noting the intended backend for a
// future adapter; this implementation does not dial it.
func NewInMemoryDirectory(snapshotPath string, refresh time.Duration) *InMemoryDirectory {
	d := &InMemoryDirectory{
		snapshotPath: snapshotPath,
		refresh:      refresh,
		entries:      make(map[string]Entry),
		log:          slog.Default().With("component", "hostresolver"),
	}
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		d.log.Info("REDIS_URL configured but no redis-backed directory is wired; serving from local snapshot", "redis_url", redisURL)
	}
	d.load()
	return d
}

// Run refreshes the directory from disk every refresh interval until
// ctx is cancelled.
func (d *InMemoryDirectory) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.refresh)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			d.load()
		}
	}
}

func (d *InMemoryDirectory) load() {
	data, err := os.ReadFile(d.snapshotPath)
	if err != nil {
		if !os.IsNotExist(err) {
			d.log.Warn("failed to read service directory snapshot", "path", d.snapshotPath, "error", err)
		}
		return
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		d.log.Warn("failed to parse service directory snapshot", "path", d.snapshotPath, "error", err)
		return
	}

	byHost := make(map[string]Entry, len(entries))
	for _, e := range entries {
		byHost[e.Host] = e
	}

	d.mu.Lock()
	d.entries = byHost
	d.mu.Unlock()
}

// Lookup returns the entry for the exact virtual host, deduplicating
// concurrent lookups for the same host via singleflight.
func (d *InMemoryDirectory) Lookup(ctx context.Context, host string) (Entry, bool, error) {
	v, err, _ := d.group.Do(host, func() (any, error) {
		d.mu.RLock()
		entry, ok := d.entries[host]
		d.mu.RUnlock()
		if !ok {
			return nil, nil
		}
		return entry, nil
	})
	if err != nil {
		return Entry{}, false, fmt.Errorf("hostresolver: lookup %s: %w", host, err)
	}
	if v == nil {
		return Entry{}, false, nil
	}
	return v.(Entry), true, nil
}
