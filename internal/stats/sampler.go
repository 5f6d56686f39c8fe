package stats

import (
	"sync"

	"github.com/prometheus/procfs"
)

// Sampler measures host CPU and memory usage via procfs. Disk usage
// is reported as 0.0: no portable, dependency-free way to get a
// single "disk usage percent" for an arbitrary host layout exists in
// this codebase's stack, matching the original agent's v1 behavior.
type Sampler struct {
	fs       procfs.FS
	mu       sync.Mutex
	prevStat procfs.CPUStat
	prevSet  bool
}

// NewSampler opens the default procfs mount (/proc). On platforms
// without /proc (non-Linux), NewSampler still succeeds but samples
// will read zero values; CPU/mem sampling is treated as best-effort,
// matching the spec's tolerance for a degraded stats stream.
func NewSampler() (*Sampler, error) {
	fs, err := procfs.NewDefaultFS()
	if err != nil {
		return &Sampler{}, nil //nolint:nilerr // best-effort: report zeros rather than fail startup
	}
	return &Sampler{fs: fs}, nil
}

// CPUPercent returns the percentage of CPU time spent non-idle since
// the previous call. The first call always returns 0, since there is
// no prior sample to diff against.
func (s *Sampler) CPUPercent() float64 {
	stat, err := s.fs.Stat()
	if err != nil {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur := stat.CPUTotal
	if !s.prevSet {
		s.prevStat = cur
		s.prevSet = true
		return 0
	}

	prevTotal := cpuTotal(s.prevStat)
	curTotal := cpuTotal(cur)
	prevIdle := s.prevStat.Idle + s.prevStat.Iowait
	curIdle := cur.Idle + cur.Iowait

	s.prevStat = cur

	totalDelta := curTotal - prevTotal
	idleDelta := curIdle - prevIdle
	if totalDelta <= 0 {
		return 0
	}
	return clampPercent((totalDelta - idleDelta) / totalDelta * 100)
}

func cpuTotal(s procfs.CPUStat) float64 {
	return s.User + s.Nice + s.System + s.Idle + s.Iowait + s.IRQ + s.SoftIRQ + s.Steal
}

// MemPercent returns the percentage of physical memory currently in
// use.
func (s *Sampler) MemPercent() float64 {
	info, err := s.fs.Meminfo()
	if err != nil || info.MemTotal == nil || *info.MemTotal == 0 {
		return 0
	}

	total := float64(*info.MemTotal)
	var available float64
	if info.MemAvailable != nil {
		available = float64(*info.MemAvailable)
	} else if info.MemFree != nil {
		available = float64(*info.MemFree)
	}

	return clampPercent((total - available) / total * 100)
}

// DiskPercent always reports 0.0 in this version of the agent.
func (s *Sampler) DiskPercent() float64 {
	return 0
}

func clampPercent(p float64) float64 {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	default:
		return p
	}
}
