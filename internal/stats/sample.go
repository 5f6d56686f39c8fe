// Package stats samples host resource usage and per-workload
// reachability, and emits one Sample every sampleInterval, piggy-backed
// on the tunnel's authenticated connection rather than a connection of
// its own.
package stats

import "time"

// sampleInterval is the fixed period between stats samples.
const sampleInterval = 5 * time.Second

// WorkloadReachability reports whether a TCP connect to a configured
// workload port succeeded.
type WorkloadReachability struct {
	Name      string `json:"name"`
	Reachable bool   `json:"reachable"`
}

// Sample is one point-in-time measurement of host and workload
// health, matching the Stats Sample data model.
type Sample struct {
	NodeID      string                 `json:"node_id"`
	Timestamp   time.Time              `json:"timestamp"`
	CPUPercent  float64                `json:"cpu_percent"`
	MemPercent  float64                `json:"mem_percent"`
	DiskPercent float64                `json:"disk_percent"`
	Workloads   []WorkloadReachability `json:"workloads"`
}
