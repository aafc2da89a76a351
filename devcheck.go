// Package devcheck holds the shared records exchanged between the
// container-validation components: the launch spec, resource usage
// samples, alerts, probe results, and the final validation report.
package devcheck

import (
	"math"
	"time"
)

// ContainerSpec describes one container to launch for a validation run.
// Immutable once handed to the launcher.
type ContainerSpec struct {
	Image      string
	Name       string
	Env        map[string]string
	Binds      []string          // host:container volume binds
	Ports      map[string]string // containerPort[/proto] -> hostPort
	Command    []string
	WorkingDir string
	MemoryMB   int64 // memory ceiling, 0 = unlimited
	CPUShares  int64 // relative weight, 0 = engine default
}

// ResourceKind identifies which resource an alert refers to.
type ResourceKind uint8

const (
	ResourceMemory ResourceKind = iota + 1
	ResourceCPU
	ResourceDisk
)

func (k ResourceKind) String() string {
	switch k {
	case ResourceMemory:
		return "memory"
	case ResourceCPU:
		return "cpu"
	case ResourceDisk:
		return "disk"
	default:
		return "unknown"
	}
}

// MemoryUsage is a point-in-time memory sample in MB.
type MemoryUsage struct {
	UsedMB           float64
	LimitMB          float64
	WarningThreshold float64 // percent at which memory alerts start
}

// Percent returns used memory as a percentage of the limit.
func (m MemoryUsage) Percent() float64 {
	if m.LimitMB <= 0 {
		return 0
	}
	return m.UsedMB / m.LimitMB * 100
}

// CPUUsage is a point-in-time CPU sample.
type CPUUsage struct {
	UsagePercent float64 // clamped to [0, 100]
	Cores        int
}

// DiskUsage is a point-in-time disk sample in MB.
type DiskUsage struct {
	UsedMB      float64
	AvailableMB float64
}

// Percent returns used disk as a percentage of total capacity.
func (d DiskUsage) Percent() float64 {
	total := d.UsedMB + d.AvailableMB
	if total <= 0 {
		return 0
	}
	return d.UsedMB / total * 100
}

// ResourceUsage is one derived sample. It is recomputed from raw engine
// counters on every sample and never treated as authoritative state.
type ResourceUsage struct {
	Memory    MemoryUsage
	CPU       CPUUsage
	Disk      DiskUsage
	SampledAt time.Time
}

// Severity grades an alert.
type Severity uint8

const (
	SeverityWarning Severity = iota + 1
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "warning"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Alert records one threshold crossing.
type Alert struct {
	Time      time.Time
	Kind      ResourceKind
	Severity  Severity
	Message   string
	Value     float64 // observed usage percent
	Threshold float64 // percent that was crossed
}

// CheckStatus is the outcome class of one diagnostic probe.
type CheckStatus uint8

const (
	CheckPassed CheckStatus = iota + 1
	CheckWarning
	CheckFailed
)

func (s CheckStatus) String() string {
	switch s {
	case CheckPassed:
		return "passed"
	case CheckWarning:
		return "warning"
	case CheckFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// EnvironmentCheck is the result of one diagnostic probe executed inside
// a container. Immutable after creation.
type EnvironmentCheck struct {
	Name     string
	Status   CheckStatus
	Message  string
	Duration time.Duration
	Details  map[string]string
}

// ToolStatus records whether a developer tool was found in the container.
type ToolStatus struct {
	Name    string
	Present bool
	Version string
}

// ValidationStatus is the final verdict of a validation run.
type ValidationStatus uint8

const (
	ValidationRunning ValidationStatus = iota + 1 // container reached a usable state
	ValidationFailed
)

func (s ValidationStatus) String() string {
	switch s {
	case ValidationRunning:
		return "running"
	case ValidationFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Validation is the final report of one create→ready→probe→snapshot→cleanup
// run against a single container. Never mutated after assembly.
type Validation struct {
	RunID       string
	ContainerID string
	Image       string
	Status      ValidationStatus
	BuildTime   time.Duration // create + start
	StartupTime time.Duration // start until readiness confirmed
	Resources   ResourceUsage
	Checks      []EnvironmentCheck
	Tools       []ToolStatus
	Error       string // populated when Status is ValidationFailed
	StartedAt   time.Time
	FinishedAt  time.Time
}

// FailedChecks returns the probes that ended in CheckFailed.
func (v Validation) FailedChecks() []EnvironmentCheck {
	var out []EnvironmentCheck
	for _, c := range v.Checks {
		if c.Status == CheckFailed {
			out = append(out, c)
		}
	}
	return out
}

// Warnings returns the probes that ended in CheckWarning.
func (v Validation) Warnings() []EnvironmentCheck {
	var out []EnvironmentCheck
	for _, c := range v.Checks {
		if c.Status == CheckWarning {
			out = append(out, c)
		}
	}
	return out
}

// RoundPercent rounds a usage percentage to one decimal for display.
func RoundPercent(p float64) float64 {
	return math.Round(p*10) / 10
}
