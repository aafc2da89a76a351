// Package monitor drives periodic resource sampling for registered
// containers, feeds samples into per-container trackers, and keeps a
// bounded time-series history for reporting.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"devcheck"
	"devcheck/internal/logging"
	"devcheck/internal/poll"
	"devcheck/internal/track"
)

const (
	defaultInterval = 5 * time.Second

	// History is capped at maxPoints and halved on overflow so a
	// long-running monitor neither grows unbounded nor reslices every tick.
	maxPoints    = 1000
	halvedPoints = 500
)

// Sampler takes one resource sample for a container. The engine adapter
// satisfies this.
type Sampler interface {
	Sample(ctx context.Context, id string) (devcheck.ResourceUsage, error)
}

// Point is one history entry.
type Point struct {
	Time  time.Time
	Usage devcheck.ResourceUsage
}

// Stats summarizes a series of percentages.
type Stats struct {
	Avg float64
	Min float64
	Max float64
}

// Report is a point-in-time view of one monitored container.
type Report struct {
	ContainerID     string
	GeneratedAt     time.Time
	Active          bool
	Samples         int
	MemoryPercent   Stats
	CPUPercent      Stats
	Alerts          track.AlertCounts
	Recommendations []string
}

// Summary aggregates across every registered container.
type Summary struct {
	Containers       int
	Active           int
	TotalSamples     int
	Alerts           track.AlertCounts
	AvgMemoryPercent float64
	AvgCPUPercent    float64
}

type worker struct {
	cancel  context.CancelFunc
	done    chan struct{}
	tracker *track.Tracker

	mu      sync.Mutex
	history []Point
	active  bool
}

func (w *worker) push(p Point) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.history = append(w.history, p)
	if len(w.history) > maxPoints {
		w.history = append(w.history[:0:0], w.history[len(w.history)-halvedPoints:]...)
	}
}

func (w *worker) snapshot() ([]Point, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]Point(nil), w.history...), w.active
}

func (w *worker) setActive(v bool) {
	w.mu.Lock()
	w.active = v
	w.mu.Unlock()
}

// Monitor owns the sampling workers. One Monitor per observation context;
// no process-wide state.
type Monitor struct {
	mu         sync.Mutex
	workers    map[string]*worker
	rootCtx    context.Context
	sampler    Sampler
	interval   time.Duration
	thresholds track.Thresholds
	clock      poll.Clock
	log        *slog.Logger
}

// MonitorOption configures a Monitor.
type MonitorOption func(*Monitor)

// WithInterval overrides the sampling interval.
func WithInterval(d time.Duration) MonitorOption {
	return func(m *Monitor) { m.interval = d }
}

// WithThresholds sets the warning bands handed to per-container trackers.
func WithThresholds(t track.Thresholds) MonitorOption {
	return func(m *Monitor) { m.thresholds = t }
}

// WithClock sets the clock used for history timestamps.
func WithClock(c poll.Clock) MonitorOption {
	return func(m *Monitor) { m.clock = c }
}

// New creates a Monitor. Workers inherit ctx: cancelling it stops all
// sampling.
func New(ctx context.Context, sampler Sampler, opts ...MonitorOption) *Monitor {
	m := &Monitor{
		workers:    make(map[string]*worker),
		rootCtx:    ctx,
		sampler:    sampler,
		interval:   defaultInterval,
		thresholds: track.DefaultThresholds(),
		clock:      poll.RealClock{},
		log:        logging.Component("monitor"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start registers id for periodic sampling. Restarting an id that is
// already monitored replaces its timer but keeps its tracker and history.
func (m *Monitor) Start(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.workers[id]
	if ok && w.cancel != nil {
		m.log.Info("restarting monitoring", "id", id)
		w.cancel()
		<-w.done
	}
	if !ok {
		w = &worker{tracker: track.New(track.WithThresholds(m.thresholds), track.WithClock(m.clock))}
		m.workers[id] = w
	}

	ctx, cancel := context.WithCancel(m.rootCtx)
	done := make(chan struct{})
	w.cancel = cancel
	w.done = done
	w.setActive(true)
	m.log.Info("monitoring started", "id", id, "interval", m.interval)

	go func() {
		defer close(done)
		m.run(ctx, id, w)
	}()
}

// Stop cancels the sampling timer for id without discarding its history.
// Returns false when id was never registered.
func (m *Monitor) Stop(id string) bool {
	m.mu.Lock()
	w, ok := m.workers[id]
	if !ok {
		m.mu.Unlock()
		return false
	}
	// Hand the cancel/done pair out under the lock so a concurrent Start
	// on the same id cannot race the nil-out.
	cancel, done := w.cancel, w.done
	w.cancel = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	w.setActive(false)
	m.log.Info("monitoring stopped", "id", id)
	return true
}

// Close stops every worker.
func (m *Monitor) Close() {
	m.mu.Lock()
	ids := make([]string, 0, len(m.workers))
	for id := range m.workers {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	for _, id := range ids {
		m.Stop(id)
	}
}

func (m *Monitor) run(ctx context.Context, id string, w *worker) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	defer w.setActive(false)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.tick(ctx, id, w)
		}
	}
}

// tick takes one sample. A failed sample is logged and skipped; the timer
// keeps running.
func (m *Monitor) tick(ctx context.Context, id string, w *worker) {
	sampleCtx, cancel := context.WithTimeout(ctx, m.interval)
	defer cancel()

	usage, err := m.sampler.Sample(sampleCtx, id)
	if err != nil {
		m.log.Warn("sample failed", "id", id, "err", err)
		return
	}

	eval := w.tracker.Track(usage)
	w.push(Point{Time: m.clock.Now(), Usage: usage})
	m.log.Debug("sampled", "id", id,
		"memory_pct", devcheck.RoundPercent(usage.Memory.Percent()),
		"cpu_pct", devcheck.RoundPercent(usage.CPU.UsagePercent),
		"alerts", eval.Alerts.Memory+eval.Alerts.CPU+eval.Alerts.Disk)
}

// Current takes one ad-hoc sample outside the periodic cycle. It does not
// touch the history.
func (m *Monitor) Current(ctx context.Context, id string) (devcheck.ResourceUsage, error) {
	return m.sampler.Sample(ctx, id)
}

// Tracker returns the per-container tracker, for alert summaries.
func (m *Monitor) Tracker(id string) (*track.Tracker, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.workers[id]
	if !ok {
		return nil, false
	}
	return w.tracker, true
}

// Report computes statistics and recommendations over id's history.
func (m *Monitor) Report(id string) (Report, error) {
	m.mu.Lock()
	w, ok := m.workers[id]
	m.mu.Unlock()
	if !ok {
		return Report{}, fmt.Errorf("container %s is not monitored", id)
	}

	history, active := w.snapshot()
	r := Report{
		ContainerID: id,
		GeneratedAt: m.clock.Now(),
		Active:      active,
		Samples:     len(history),
		Alerts:      w.tracker.Counts(),
	}
	if len(history) == 0 {
		return r, nil
	}

	r.MemoryPercent = seriesStats(history, func(p Point) float64 { return p.Usage.Memory.Percent() })
	r.CPUPercent = seriesStats(history, func(p Point) float64 { return p.Usage.CPU.UsagePercent })
	r.Recommendations = m.recommend(r)
	return r, nil
}

// recommend applies the fixed report rules: a sustained average close to
// the warning band suggests raising the allocation, repeated alerts
// suggest a leak.
func (m *Monitor) recommend(r Report) []string {
	var recs []string
	if r.MemoryPercent.Avg > 0.8*m.thresholds.Memory {
		recs = append(recs, "average memory usage is close to the warning band; increase the memory allocation")
	}
	if r.CPUPercent.Avg > 0.8*m.thresholds.CPU {
		recs = append(recs, "average CPU usage is close to the warning band; increase the CPU allocation")
	}
	if r.Alerts.Memory > 5 {
		recs = append(recs, "repeated memory alerts; investigate a possible memory leak")
	}
	if r.Alerts.CPU > 5 {
		recs = append(recs, "repeated CPU alerts; investigate runaway processes")
	}
	return recs
}

// Summary aggregates every registered container.
func (m *Monitor) Summary() Summary {
	m.mu.Lock()
	workers := make(map[string]*worker, len(m.workers))
	for id, w := range m.workers {
		workers[id] = w
	}
	m.mu.Unlock()

	var s Summary
	var memSum, cpuSum float64
	var sampled int
	for _, w := range workers {
		s.Containers++
		history, active := w.snapshot()
		if active {
			s.Active++
		}
		s.TotalSamples += len(history)
		counts := w.tracker.Counts()
		s.Alerts.Memory += counts.Memory
		s.Alerts.CPU += counts.CPU
		s.Alerts.Disk += counts.Disk
		for _, p := range history {
			memSum += p.Usage.Memory.Percent()
			cpuSum += p.Usage.CPU.UsagePercent
			sampled++
		}
	}
	if sampled > 0 {
		s.AvgMemoryPercent = memSum / float64(sampled)
		s.AvgCPUPercent = cpuSum / float64(sampled)
	}
	return s
}

func seriesStats(history []Point, value func(Point) float64) Stats {
	s := Stats{Min: value(history[0]), Max: value(history[0])}
	var sum float64
	for _, p := range history {
		v := value(p)
		sum += v
		if v < s.Min {
			s.Min = v
		}
		if v > s.Max {
			s.Max = v
		}
	}
	s.Avg = sum / float64(len(history))
	return s
}
