package stats

import (
	"context"
	"errors"
	"net"
	"testing"
)

type fakeLister struct {
	workloads []Workload
}

func (f fakeLister) List() []Workload { return f.workloads }

func TestStreamer_CollectReportsReachability(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	sampler, err := NewSampler()
	if err != nil {
		t.Fatalf("NewSampler: %v", err)
	}

	lister := fakeLister{workloads: []Workload{
		{Name: "up", Addr: ln.Addr().String()},
		{Name: "down", Addr: "127.0.0.1:1"},
	}}

	streamer := NewStreamer("node-1", sampler, lister)
	sample := streamer.collect()

	if sample.NodeID != "node-1" {
		t.Fatalf("NodeID = %q, want node-1", sample.NodeID)
	}
	if len(sample.Workloads) != 2 {
		t.Fatalf("len(Workloads) = %d, want 2", len(sample.Workloads))
	}

	byName := map[string]bool{}
	for _, w := range sample.Workloads {
		byName[w.Name] = w.Reachable
	}
	if !byName["up"] {
		t.Error("expected \"up\" workload to be reachable")
	}
	if byName["down"] {
		t.Error("expected \"down\" workload to be unreachable")
	}
}

func TestProbe_UnreachablePortReturnsFalse(t *testing.T) {
	t.Parallel()

	if probe("127.0.0.1:1") {
		t.Fatal("expected port 1 to be unreachable")
	}
}

func TestStreamer_Run_EndsWhenContextCancelled(t *testing.T) {
	t.Parallel()

	sampler, err := NewSampler()
	if err != nil {
		t.Fatalf("NewSampler: %v", err)
	}
	streamer := NewStreamer("node-1", sampler, fakeLister{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = streamer.Run(ctx, func(Sample) error {
		t.Fatal("send should not be called on an already-cancelled context")
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run error = %v, want context.Canceled", err)
	}
}
