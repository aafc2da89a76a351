// Package launch owns the create/start/stop/remove lifecycle for named
// containers, runs ad-hoc commands inside them, and answers readiness.
package launch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"devcheck"
	"devcheck/internal/check"
	"devcheck/internal/engine"
	"devcheck/internal/logging"
	"devcheck/internal/poll"
)

const (
	defaultStopTimeout = 10 * time.Second
	readyPollInterval  = 2 * time.Second
	// minUptime is the readiness dwell: a container that has not stayed
	// running this long is considered flapping, not ready.
	minUptime = 5 * time.Second
)

// Result is the outcome of one Exec call.
type Result struct {
	ExitCode      int
	Output        string
	ErrorOutput   string
	ExecutionTime time.Duration
}

// CleanupResult tallies a CleanupAll pass.
type CleanupResult struct {
	Stopped  int
	Removed  int
	Failures int
}

// Launcher creates and tracks containers through one engine client.
type Launcher struct {
	mu     sync.Mutex
	states map[string]*State

	engine      engine.Client
	clock       poll.Clock
	log         *slog.Logger
	stopTimeout time.Duration
	pollEvery   time.Duration
	dwell       time.Duration
}

// LauncherOption configures a Launcher.
type LauncherOption func(*Launcher)

// WithClock sets the clock used for uptime measurement.
func WithClock(c poll.Clock) LauncherOption {
	return func(l *Launcher) { l.clock = c }
}

// WithStopTimeout overrides the graceful-stop window.
func WithStopTimeout(d time.Duration) LauncherOption {
	return func(l *Launcher) { l.stopTimeout = d }
}

// WithReadyPoll overrides the readiness poll cadence and dwell. Intended
// for tests; production uses the 2s/5s defaults.
func WithReadyPoll(every, dwell time.Duration) LauncherOption {
	return func(l *Launcher) {
		l.pollEvery = every
		l.dwell = dwell
	}
}

// New creates a Launcher on top of an engine client.
func New(eng engine.Client, opts ...LauncherOption) *Launcher {
	check.Assert(eng != nil, "launch.New: engine must not be nil")
	l := &Launcher{
		states:      make(map[string]*State),
		engine:      eng,
		clock:       poll.RealClock{},
		log:         logging.Component("launcher"),
		stopTimeout: defaultStopTimeout,
		pollEvery:   readyPollInterval,
		dwell:       minUptime,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Launch creates and starts a container from the spec and registers its
// state. Expected operational failures do not raise: the returned State is
// already in the failed phase and carries the reason, so callers branch on
// state instead of wrapping the call in error handling.
func (l *Launcher) Launch(ctx context.Context, spec devcheck.ContainerSpec) *State {
	if spec.Name == "" {
		spec.Name = "devcheck-" + uuid.NewString()[:8]
	}

	id, err := l.engine.Create(ctx, spec)
	if err != nil {
		l.log.Warn("launch failed at create", "image", spec.Image, "err", err)
		st := newState(spec.Name, spec)
		st.MarkFailed(fmt.Sprintf("create: %v", err))
		l.register(st)
		return st
	}

	st := newState(id, spec)
	l.register(st)

	if err := l.engine.Start(ctx, id); err != nil {
		l.log.Warn("launch failed at start", "id", id, "err", err)
		st.MarkFailed(fmt.Sprintf("start: %v", err))
		return st
	}

	st.MarkStarted(l.clock.Now())
	l.log.Info("container launched", "id", id, "image", spec.Image)
	return st
}

func (l *Launcher) register(st *State) {
	l.mu.Lock()
	l.states[st.ID()] = st
	l.mu.Unlock()
}

// Get returns the state registered under id.
func (l *Launcher) Get(id string) (*State, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	st, ok := l.states[id]
	return st, ok
}

// Snapshots returns a copy of every registered container state.
func (l *Launcher) Snapshots() []Snapshot {
	l.mu.Lock()
	states := make([]*State, 0, len(l.states))
	for _, st := range l.states {
		states = append(states, st)
	}
	l.mu.Unlock()

	out := make([]Snapshot, 0, len(states))
	for _, st := range states {
		out = append(out, st.Snapshot())
	}
	return out
}

// Stop stops the container. It is idempotent: stopping an already stopped
// or already removed container reports true rather than failing.
func (l *Launcher) Stop(ctx context.Context, id string, timeout time.Duration) bool {
	st, ok := l.Get(id)
	if !ok {
		return false
	}
	if p := st.Phase(); p == PhaseStopped || p == PhaseRemoved {
		return true
	}
	if timeout <= 0 {
		timeout = l.stopTimeout
	}

	st.MarkStopping()
	if err := l.engine.Stop(ctx, id, timeout); err != nil {
		if engine.IsNotFound(err) {
			st.MarkStopped()
			return true
		}
		l.log.Warn("stop failed", "id", id, "err", err)
		return false
	}
	st.MarkStopped()
	return true
}

// Remove removes the container from the engine and drops it from the
// registry. A second Remove for the same id reports false — the id is no
// longer registered — rather than failing.
func (l *Launcher) Remove(ctx context.Context, id string) bool {
	st, ok := l.Get(id)
	if !ok {
		return false
	}

	err := l.engine.Remove(ctx, id, engine.RemoveOptions{Force: true, RemoveVolumes: true})
	if err != nil && !engine.IsNotFound(err) {
		l.log.Warn("remove failed", "id", id, "err", err)
		return false
	}

	st.MarkRemoved()
	l.mu.Lock()
	delete(l.states, id)
	l.mu.Unlock()
	return true
}

// Exec runs a command inside a registered container under a hard timeout.
func (l *Launcher) Exec(ctx context.Context, id string, cmd []string, opts engine.ExecOptions) (Result, error) {
	if _, ok := l.Get(id); !ok {
		return Result{}, fmt.Errorf("container %s is not registered", id)
	}

	res, err := l.engine.Exec(ctx, id, cmd, opts)
	if err != nil {
		if errors.Is(err, engine.ErrExecutionTimeout) {
			return Result{}, err
		}
		return Result{}, fmt.Errorf("exec in %s: %w", id, err)
	}
	return Result{
		ExitCode:      res.ExitCode,
		Output:        res.Stdout,
		ErrorOutput:   res.Stderr,
		ExecutionTime: res.Duration,
	}, nil
}

// Logs returns the container's accumulated log lines.
func (l *Launcher) Logs(ctx context.Context, id string, opts engine.LogOptions) ([]string, error) {
	if _, ok := l.Get(id); !ok {
		return nil, fmt.Errorf("container %s is not registered", id)
	}
	return l.engine.Logs(ctx, id, opts)
}

// WaitReady polls until the container has been continuously running for
// the minimum dwell time. A container that exits, flaps, or never reaches
// the dwell before the timeout is not ready; WaitReady then reports false
// instead of failing.
func (l *Launcher) WaitReady(ctx context.Context, id string, timeout time.Duration) bool {
	st, registered := l.Get(id)

	var firstRunning time.Time
	ready, err := poll.Interval(ctx, l.pollEvery, timeout, func(ctx context.Context) (bool, error) {
		info, err := l.engine.Inspect(ctx, id)
		if err != nil {
			l.log.Debug("readiness inspect failed", "id", id, "err", err)
			firstRunning = time.Time{}
			return false, nil
		}
		if info.Exited() {
			return false, errContainerExited
		}
		if !info.Running {
			firstRunning = time.Time{}
			return false, nil
		}

		// Prefer the engine's start timestamp: a restart resets it, so
		// dwell measures continuous uptime, not time since first launch.
		since := info.StartedAt
		if since.IsZero() {
			if firstRunning.IsZero() {
				firstRunning = l.clock.Now()
			}
			since = firstRunning
		}
		return l.clock.Now().Sub(since) >= l.dwell, nil
	})
	if err != nil {
		if !errors.Is(err, errContainerExited) {
			l.log.Warn("readiness poll aborted", "id", id, "err", err)
		}
		return false
	}
	if ready && registered {
		st.MarkRunning()
	}
	return ready
}

var errContainerExited = errors.New("container exited")

// CleanupAll stops and removes every registered container. Individual
// failures are tallied, not fatal; the pass never aborts early.
func (l *Launcher) CleanupAll(ctx context.Context) CleanupResult {
	l.mu.Lock()
	ids := make([]string, 0, len(l.states))
	for id := range l.states {
		ids = append(ids, id)
	}
	l.mu.Unlock()

	var res CleanupResult
	for _, id := range ids {
		if l.Stop(ctx, id, l.stopTimeout) {
			res.Stopped++
		} else {
			res.Failures++
		}
		if l.Remove(ctx, id) {
			res.Removed++
		} else {
			res.Failures++
		}
	}
	l.log.Info("cleanup finished", "stopped", res.Stopped, "removed", res.Removed, "failures", res.Failures)
	return res
}
