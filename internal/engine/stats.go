package engine

import (
	"github.com/docker/docker/api/types/container"
)

const mib = 1024 * 1024

// RawCounters is the typed decode of one raw engine stats response. All
// derived percentage and rate math operates on this struct, so daemon API
// shape changes stay isolated to the decode below.
type RawCounters struct {
	CPUTotal     uint64 // cumulative container CPU time, nanoseconds
	CPUSystem    uint64 // cumulative host CPU time, nanoseconds
	PreCPUTotal  uint64 // previous reading, for delta derivation
	PreCPUSystem uint64
	OnlineCPUs   uint32

	MemoryUsage uint64 // bytes, including page cache
	MemoryCache uint64 // bytes of reclaimable cache to subtract
	MemoryLimit uint64 // bytes, 0 when unlimited
}

func decodeCounters(s container.StatsResponse) RawCounters {
	rc := RawCounters{
		CPUTotal:     s.CPUStats.CPUUsage.TotalUsage,
		CPUSystem:    s.CPUStats.SystemUsage,
		PreCPUTotal:  s.PreCPUStats.CPUUsage.TotalUsage,
		PreCPUSystem: s.PreCPUStats.SystemUsage,
		OnlineCPUs:   s.CPUStats.OnlineCPUs,
		MemoryUsage:  s.MemoryStats.Usage,
		MemoryLimit:  s.MemoryStats.Limit,
	}
	if rc.OnlineCPUs == 0 {
		rc.OnlineCPUs = uint32(len(s.CPUStats.CPUUsage.PercpuUsage))
	}
	// cgroup v1 reports reclaimable cache as "cache", v2 as "inactive_file".
	if v, ok := s.MemoryStats.Stats["cache"]; ok {
		rc.MemoryCache = v
	} else if v, ok := s.MemoryStats.Stats["inactive_file"]; ok {
		rc.MemoryCache = v
	}
	return rc
}

// CPUPercent derives CPU usage from the cumulative counter deltas. Counter
// resets (current below previous) and a zero system delta both yield 0; the
// result is always clamped to [0, 100].
func (rc RawCounters) CPUPercent() float64 {
	if rc.CPUTotal < rc.PreCPUTotal || rc.CPUSystem < rc.PreCPUSystem {
		return 0
	}
	cpuDelta := float64(rc.CPUTotal - rc.PreCPUTotal)
	sysDelta := float64(rc.CPUSystem - rc.PreCPUSystem)
	if sysDelta <= 0 {
		return 0
	}
	cpus := float64(rc.OnlineCPUs)
	if cpus == 0 {
		cpus = 1
	}
	return clampPercent(cpuDelta / sysDelta * cpus * 100)
}

// MemoryUsedMB returns used memory in MB with reclaimable cache subtracted.
func (rc RawCounters) MemoryUsedMB() float64 {
	used := rc.MemoryUsage
	if rc.MemoryCache < used {
		used -= rc.MemoryCache
	}
	return float64(used) / mib
}

// MemoryLimitMB returns the memory ceiling in MB, 0 when unlimited.
func (rc RawCounters) MemoryLimitMB() float64 {
	return float64(rc.MemoryLimit) / mib
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
