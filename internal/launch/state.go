package launch

import (
	"sync"
	"time"

	"devcheck"
	"devcheck/internal/check"
)

// Phase describes the container lifecycle state.
type Phase uint8

const (
	PhaseCreated Phase = iota + 1
	PhaseStarted
	PhaseRunning
	PhaseStopping
	PhaseStopped
	PhaseRemoved
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseCreated:
		return "created"
	case PhaseStarted:
		return "started"
	case PhaseRunning:
		return "running"
	case PhaseStopping:
		return "stopping"
	case PhaseStopped:
		return "stopped"
	case PhaseRemoved:
		return "removed"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions are possible.
func (p Phase) Terminal() bool {
	return p == PhaseRemoved || p == PhaseFailed
}

// State identifies one launched container. It is owned by the Launcher
// that created it; other components hold only the id. The phase moves
// monotonically along the happy path, and MarkFailed is reachable from any
// non-terminal phase. All mutation goes through the Mark methods.
type State struct {
	mu        sync.Mutex
	id        string
	image     string
	phase     Phase
	startedAt time.Time
	lastUsage devcheck.ResourceUsage
	ports     map[string]string
	env       map[string]string
	volumes   []string
	meta      map[string]string
	errMsg    string
}

// Snapshot is a read-only copy of a State.
type Snapshot struct {
	ID        string
	Image     string
	Phase     Phase
	StartedAt time.Time
	LastUsage devcheck.ResourceUsage
	Ports     map[string]string
	Env       map[string]string
	Volumes   []string
	Meta      map[string]string
	Error     string
}

func newState(id string, spec devcheck.ContainerSpec) *State {
	return &State{
		id:      id,
		image:   spec.Image,
		phase:   PhaseCreated,
		ports:   copyMap(spec.Ports),
		env:     copyMap(spec.Env),
		volumes: append([]string(nil), spec.Binds...),
		meta:    make(map[string]string),
	}
}

func (s *State) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

func (s *State) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

func (s *State) Failed() bool { return s.Phase() == PhaseFailed }

func (s *State) Err() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errMsg
}

// advance moves to a later happy-path phase. Backward or terminal-escaping
// moves are refused. Failed is not a happy-path target; it is reached only
// through MarkFailed.
func (s *State) advance(to Phase) bool {
	check.Assertf(to >= PhaseStarted && to <= PhaseRemoved, "state advance: %s is not a lifecycle target", to)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase.Terminal() || to <= s.phase {
		return false
	}
	s.phase = to
	return true
}

// MarkStarted records a successful engine start.
func (s *State) MarkStarted(at time.Time) bool {
	if !s.advance(PhaseStarted) {
		return false
	}
	s.mu.Lock()
	s.startedAt = at
	s.mu.Unlock()
	return true
}

// MarkRunning records that the container was observed running.
func (s *State) MarkRunning() bool { return s.advance(PhaseRunning) }

// MarkStopping records that a stop was requested.
func (s *State) MarkStopping() bool { return s.advance(PhaseStopping) }

// MarkStopped records a completed stop.
func (s *State) MarkStopped() bool { return s.advance(PhaseStopped) }

// MarkRemoved records removal from the engine.
func (s *State) MarkRemoved() bool { return s.advance(PhaseRemoved) }

// MarkFailed moves to the terminal failed phase from any non-terminal one.
func (s *State) MarkFailed(reason string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase.Terminal() {
		return false
	}
	s.phase = PhaseFailed
	s.errMsg = reason
	return true
}

// SetUsage records the last-known resource sample.
func (s *State) SetUsage(u devcheck.ResourceUsage) {
	s.mu.Lock()
	s.lastUsage = u
	s.mu.Unlock()
}

// SetMeta attaches arbitrary metadata.
func (s *State) SetMeta(key, value string) {
	s.mu.Lock()
	s.meta[key] = value
	s.mu.Unlock()
}

func (s *State) StartedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startedAt
}

// Snapshot returns a consistent copy for callers outside the Launcher.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		ID:        s.id,
		Image:     s.image,
		Phase:     s.phase,
		StartedAt: s.startedAt,
		LastUsage: s.lastUsage,
		Ports:     copyMap(s.ports),
		Env:       copyMap(s.env),
		Volumes:   append([]string(nil), s.volumes...),
		Meta:      copyMap(s.meta),
		Error:     s.errMsg,
	}
}

func copyMap(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
