package stats

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"
)

// reachTimeout bounds how long a per-workload reachability check may
// block, so one unreachable workload cannot delay an entire sample.
const reachTimeout = 2 * time.Second

// Workload describes one locally-configured workload whose
// reachability is reported in every sample.
type Workload struct {
	Name string
	Addr string // host:port
}

// WorkloadLister supplies the current set of workloads to probe.
// Implemented by the workload config store.
type WorkloadLister interface {
	List() []Workload
}

// Streamer collects one Sample every 5 seconds and hands it to a send
// function supplied by the caller. It owns no connection of its own:
// samples are piggy-backed on the tunnel's authenticated connection, so
// Streamer is driven as a child of the tunnel's lifecycle rather than
// dialing and reconnecting independently.
type Streamer struct {
	nodeID  string
	sampler *Sampler
	lister  WorkloadLister
	log     *slog.Logger
}

// NewStreamer returns a Streamer reporting samples for nodeID.
func NewStreamer(nodeID string, sampler *Sampler, lister WorkloadLister) *Streamer {
	return &Streamer{
		nodeID:  nodeID,
		sampler: sampler,
		lister:  lister,
		log:     slog.Default().With("component", "stats"),
	}
}

// Run collects a sample every 5 seconds and passes it to send until ctx
// is cancelled or send returns an error. It implements
// tunnel.StatsEmitter: the tunnel client calls Run once per relay
// connection and cancels ctx when the tunnel connection ends, so a failed
// send (the underlying connection is gone) simply ends this stream
// rather than retrying on its own.
func (s *Streamer) Run(ctx context.Context, send func(Sample) error) error {
	ticker := time.NewTicker(sampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			sample := s.collect()
			if err := send(sample); err != nil {
				return fmt.Errorf("send sample: %w", err)
			}
		}
	}
}

func (s *Streamer) collect() Sample {
	var workloads []WorkloadReachability
	if s.lister != nil {
		for _, w := range s.lister.List() {
			workloads = append(workloads, WorkloadReachability{
				Name:      w.Name,
				Reachable: probe(w.Addr),
			})
		}
	}

	return Sample{
		NodeID:      s.nodeID,
		Timestamp:   time.Now().UTC(),
		CPUPercent:  s.sampler.CPUPercent(),
		MemPercent:  s.sampler.MemPercent(),
		DiskPercent: s.sampler.DiskPercent(),
		Workloads:   workloads,
	}
}

func probe(addr string) bool {
	conn, err := net.DialTimeout("tcp", addr, reachTimeout)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
