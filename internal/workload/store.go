// Package workload holds the agent's local view of the workloads
// running on this node: the config the stats streamer probes for
// reachability.
package workload

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/zexio-io/zexio-agent/internal/stats"
)

// Entry describes one locally-registered workload.
type Entry struct {
	Name string `json:"name"`
	Addr string `json:"addr"` // host:port
}

// Store is a file-backed, in-memory cache of workload entries. It
// implements stats.WorkloadLister.
type Store struct {
	path string

	mu      sync.RWMutex
	entries []Entry
}

// NewStore loads entries from path, following the same file-backed
// config pattern used for viper's config.yaml: a missing file is not
// an error, it just means no workloads are configured yet.
func NewStore(path string) (*Store, error) {
	s := &Store{path: path}
	if err := s.reload(); err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	return s, nil
}

func (s *Store) reload() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("workload: parse %s: %w", s.path, err)
	}

	s.mu.Lock()
	s.entries = entries
	s.mu.Unlock()
	return nil
}

// List returns the current workload entries as stats.Workload values.
func (s *Store) List() []stats.Workload {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]stats.Workload, len(s.entries))
	for i, e := range s.entries {
		out[i] = stats.Workload{Name: e.Name, Addr: e.Addr}
	}
	return out
}

// Lookup returns the entry registered under name, if any.
func (s *Store) Lookup(name string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.entries {
		if e.Name == name {
			return e, true
		}
	}
	return Entry{}, false
}
