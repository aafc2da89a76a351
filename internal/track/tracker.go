// Package track evaluates resource-usage samples against configured
// thresholds, de-duplicates warning alerts with hysteresis, and keeps a
// bounded rolling alert history.
package track

import (
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"devcheck"
	"devcheck/internal/logging"
	"devcheck/internal/poll"
)

// Critical bands are fixed; only the warning thresholds are configurable.
const (
	criticalMemory = 95.0
	criticalCPU    = 95.0
	criticalDisk   = 98.0
)

const (
	// maxHistory caps the alert buffer; on overflow the oldest evictBatch
	// entries are dropped so sustained alerting doesn't thrash the slice.
	maxHistory = 1000
	evictBatch = 500
)

// Thresholds are the warning bands, in percent.
type Thresholds struct {
	Memory float64
	CPU    float64
	Disk   float64
}

// DefaultThresholds returns the stock warning bands.
func DefaultThresholds() Thresholds {
	return Thresholds{Memory: 80, CPU: 80, Disk: 90}
}

// AlertCounts is the per-kind alert counter snapshot after one evaluation.
type AlertCounts struct {
	Memory int
	CPU    int
	Disk   int
}

// Evaluation is the outcome of tracking one sample.
type Evaluation struct {
	Alerts          AlertCounts
	Warnings        []string
	Recommendations []string
}

// Window selects the sliding timeframe for alert summaries.
type Window uint8

const (
	WindowHour Window = iota + 1
	WindowDay
	WindowWeek
)

func (w Window) Duration() time.Duration {
	switch w {
	case WindowHour:
		return time.Hour
	case WindowDay:
		return 24 * time.Hour
	case WindowWeek:
		return 7 * 24 * time.Hour
	default:
		return time.Hour
	}
}

func (w Window) String() string {
	switch w {
	case WindowHour:
		return "hour"
	case WindowDay:
		return "day"
	case WindowWeek:
		return "week"
	default:
		return "hour"
	}
}

// Summary aggregates alerts over a sliding window.
type Summary struct {
	Window     Window
	Total      int
	ByKind     map[devcheck.ResourceKind]int
	BySeverity map[devcheck.Severity]int
	Recent     []devcheck.Alert // newest last, at most 10
}

// Tracker is one explicit alerting instance. Callers that need isolated
// alert state (one per validation run, one per monitored container) create
// their own instead of sharing a process-wide buffer.
type Tracker struct {
	mu         sync.Mutex
	clock      poll.Clock
	thresholds Thresholds
	counts     map[devcheck.ResourceKind]int
	history    []devcheck.Alert
	log        *slog.Logger
}

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithThresholds overrides the warning bands.
func WithThresholds(t Thresholds) TrackerOption {
	return func(tr *Tracker) { tr.thresholds = t }
}

// WithClock sets the clock used for alert timestamps.
func WithClock(c poll.Clock) TrackerOption {
	return func(tr *Tracker) { tr.clock = c }
}

// New creates a Tracker with default thresholds.
func New(opts ...TrackerOption) *Tracker {
	t := &Tracker{
		clock:      poll.RealClock{},
		thresholds: DefaultThresholds(),
		counts:     make(map[devcheck.ResourceKind]int),
		log:        logging.Component("tracker"),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Track evaluates one sample. Per resource kind, independently: at or above
// the critical band the counter increments every sample; at or above the
// warning band it increments only on the first crossing and then stays
// pinned; below the warning band it resets to zero.
func (t *Tracker) Track(usage devcheck.ResourceUsage) Evaluation {
	t.mu.Lock()
	defer t.mu.Unlock()

	var eval Evaluation
	t.evaluate(&eval, devcheck.ResourceMemory, usage.Memory.Percent(), t.thresholds.Memory, criticalMemory)
	t.evaluate(&eval, devcheck.ResourceCPU, usage.CPU.UsagePercent, t.thresholds.CPU, criticalCPU)
	t.evaluate(&eval, devcheck.ResourceDisk, usage.Disk.Percent(), t.thresholds.Disk, criticalDisk)

	eval.Alerts = AlertCounts{
		Memory: t.counts[devcheck.ResourceMemory],
		CPU:    t.counts[devcheck.ResourceCPU],
		Disk:   t.counts[devcheck.ResourceDisk],
	}
	eval.Recommendations = t.recommend(usage)
	return eval
}

func (t *Tracker) evaluate(eval *Evaluation, kind devcheck.ResourceKind, pct, warning, critical float64) {
	switch {
	case pct >= critical:
		t.counts[kind]++
		t.raise(eval, kind, devcheck.SeverityCritical, pct, critical)
	case pct >= warning:
		// Hysteresis: sustained-but-stable elevated usage counts once.
		if t.counts[kind] == 0 {
			t.counts[kind] = 1
			t.raise(eval, kind, devcheck.SeverityWarning, pct, warning)
		}
	default:
		t.counts[kind] = 0
	}
}

func (t *Tracker) raise(eval *Evaluation, kind devcheck.ResourceKind, sev devcheck.Severity, pct, threshold float64) {
	alert := devcheck.Alert{
		Time:      t.clock.Now(),
		Kind:      kind,
		Severity:  sev,
		Message:   fmt.Sprintf("%s usage at %.1f%% (threshold %.0f%%)", kind, pct, threshold),
		Value:     pct,
		Threshold: threshold,
	}
	eval.Warnings = append(eval.Warnings, alert.Message)

	t.history = append(t.history, alert)
	if len(t.history) > maxHistory {
		t.history = append(t.history[:0:0], t.history[len(t.history)-evictBatch:]...)
	}
	t.log.Debug("alert raised", "kind", kind.String(), "severity", sev.String(), "value", pct)
}

func (t *Tracker) recommend(usage devcheck.ResourceUsage) []string {
	var recs []string
	if pct := usage.Memory.Percent(); pct >= t.thresholds.Memory {
		recs = append(recs, "consider raising the container memory limit or reducing workload memory use")
	}
	if usage.CPU.UsagePercent >= t.thresholds.CPU {
		recs = append(recs, "consider allocating more CPU shares or spreading work over time")
	}
	if pct := usage.Disk.Percent(); pct >= t.thresholds.Disk {
		recs = append(recs, "clean up build artifacts or grow the container filesystem")
	}
	return recs
}

// WithinLimits reports whether every resource kind is at or below its
// configured warning threshold. Exactly-at-threshold counts as within.
func (t *Tracker) WithinLimits(usage devcheck.ResourceUsage) bool {
	return usage.Memory.Percent() <= t.thresholds.Memory &&
		usage.CPU.UsagePercent <= t.thresholds.CPU &&
		usage.Disk.Percent() <= t.thresholds.Disk
}

// EfficiencyScore compresses a sample into a single 0–100 health number:
// headroom per kind weighted 40/40/20 memory/cpu/disk.
func (t *Tracker) EfficiencyScore(usage devcheck.ResourceUsage) int {
	score := 0.4*(100-usage.Memory.Percent()) +
		0.4*(100-usage.CPU.UsagePercent) +
		0.2*(100-usage.Disk.Percent())
	if score < 0 {
		score = 0
	}
	return int(math.Round(score))
}

// AlertSummary aggregates the alert history over a sliding window and
// returns the 10 most recent alerts within it.
func (t *Tracker) AlertSummary(w Window) Summary {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := t.clock.Now().Add(-w.Duration())
	s := Summary{
		Window:     w,
		ByKind:     make(map[devcheck.ResourceKind]int),
		BySeverity: make(map[devcheck.Severity]int),
	}
	for _, a := range t.history {
		if a.Time.Before(cutoff) {
			continue
		}
		s.Total++
		s.ByKind[a.Kind]++
		s.BySeverity[a.Severity]++
		s.Recent = append(s.Recent, a)
	}
	if len(s.Recent) > 10 {
		s.Recent = s.Recent[len(s.Recent)-10:]
	}
	return s
}

// Alerts returns a copy of the current alert history, oldest first.
func (t *Tracker) Alerts() []devcheck.Alert {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]devcheck.Alert(nil), t.history...)
}

// Counts returns the current per-kind alert counters.
func (t *Tracker) Counts() AlertCounts {
	t.mu.Lock()
	defer t.mu.Unlock()
	return AlertCounts{
		Memory: t.counts[devcheck.ResourceMemory],
		CPU:    t.counts[devcheck.ResourceCPU],
		Disk:   t.counts[devcheck.ResourceDisk],
	}
}
