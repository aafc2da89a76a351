// Package validate orchestrates one validation run: launch a container,
// wait for readiness, run the diagnostic suite, take a resource snapshot,
// and assemble the report with guaranteed best-effort cleanup.
package validate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"devcheck"
	checkpkg "devcheck/internal/check"
	"devcheck/internal/engine"
	"devcheck/internal/launch"
	"devcheck/internal/logging"
	"devcheck/internal/poll"
	"devcheck/internal/telemetry"
	"devcheck/internal/track"
)

const (
	defaultRunTimeout   = 300 * time.Second
	defaultReadyTimeout = 120 * time.Second
	livenessTimeout     = 10 * time.Second
)

// RunPhase is the per-run orchestration state.
type RunPhase uint8

const (
	RunPending RunPhase = iota + 1
	RunBuilding
	RunRunning
	RunCompleted
	RunFailed
)

func (p RunPhase) String() string {
	switch p {
	case RunPending:
		return "pending"
	case RunBuilding:
		return "building"
	case RunRunning:
		return "running"
	case RunCompleted:
		return "completed"
	case RunFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Sampler matches the engine adapter's one-shot resource sample.
type Sampler interface {
	Sample(ctx context.Context, id string) (devcheck.ResourceUsage, error)
}

// Validator runs validations. One Validator may serve concurrent runs;
// each run owns its own container and state.
type Validator struct {
	launcher *launch.Launcher
	sampler  Sampler
	clock    poll.Clock
	tracer   trace.Tracer
	log      *slog.Logger

	runTimeout   time.Duration
	readyTimeout time.Duration
	probeCfg     ProbeConfig
	thresholds   track.Thresholds
}

// ValidatorOption configures a Validator.
type ValidatorOption func(*Validator)

// WithRunTimeout bounds the whole run.
func WithRunTimeout(d time.Duration) ValidatorOption {
	return func(v *Validator) { v.runTimeout = d }
}

// WithReadyTimeout bounds the readiness sub-step.
func WithReadyTimeout(d time.Duration) ValidatorOption {
	return func(v *Validator) { v.readyTimeout = d }
}

// WithTracer attaches step telemetry.
func WithTracer(t trace.Tracer) ValidatorOption {
	return func(v *Validator) { v.tracer = t }
}

// WithClock sets the clock for timing measurements.
func WithClock(c poll.Clock) ValidatorOption {
	return func(v *Validator) { v.clock = c }
}

// WithProbeConfig tunes the diagnostic suite.
func WithProbeConfig(cfg ProbeConfig) ValidatorOption {
	return func(v *Validator) { v.probeCfg = cfg }
}

// WithThresholds sets the limits the resource snapshot is judged against.
func WithThresholds(t track.Thresholds) ValidatorOption {
	return func(v *Validator) { v.thresholds = t }
}

// New creates a Validator on a launcher and sampler.
func New(launcher *launch.Launcher, sampler Sampler, opts ...ValidatorOption) *Validator {
	checkpkg.Assert(launcher != nil, "validate.New: launcher must not be nil")
	checkpkg.Assert(sampler != nil, "validate.New: sampler must not be nil")
	v := &Validator{
		launcher:     launcher,
		sampler:      sampler,
		clock:        poll.RealClock{},
		log:          logging.Component("validator"),
		runTimeout:   defaultRunTimeout,
		readyTimeout: defaultReadyTimeout,
		thresholds:   track.DefaultThresholds(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate runs one complete validation. It always returns a fully
// assembled report: expected failures land in the report's status and
// error, never as a raised error.
func (v *Validator) Validate(ctx context.Context, spec devcheck.ContainerSpec) devcheck.Validation {
	run := devcheck.Validation{
		RunID:     uuid.NewString(),
		Image:     spec.Image,
		Status:    devcheck.ValidationFailed,
		StartedAt: v.clock.Now(),
	}
	log := v.log.With("run", run.RunID, "image", spec.Image)

	ctx, cancel := context.WithTimeout(ctx, v.runTimeout)
	defer cancel()

	op := telemetry.Start(ctx, v.tracer, "validate")
	ctx = op.Context()
	phase := RunPending
	setPhase := func(p RunPhase) {
		phase = p
		log.Info("run phase", "phase", phase.String())
	}

	var st *launch.State
	defer func() {
		v.cleanup(st, log)
	}()

	// Step 1: create and start.
	setPhase(RunBuilding)
	err := op.RunStep(ctx, "launch", func(ctx context.Context) error {
		buildStart := v.clock.Now()
		st = v.launcher.Launch(ctx, spec)
		run.ContainerID = st.ID()
		run.BuildTime = v.clock.Now().Sub(buildStart)
		if st.Failed() {
			return errors.New(st.Err())
		}
		return nil
	})
	if err != nil {
		return v.fail(op, &run, setPhase, err)
	}

	// Step 2: readiness — continuous uptime plus a liveness exec.
	startupStart := v.clock.Now()
	err = op.RunStep(ctx, "ready", func(ctx context.Context) error {
		if !v.launcher.WaitReady(ctx, st.ID(), v.readyTimeout) {
			return fmt.Errorf("container did not become ready within %s", v.readyTimeout)
		}
		return v.liveness(ctx, st.ID())
	})
	if err != nil {
		return v.fail(op, &run, setPhase, err)
	}
	run.StartupTime = v.clock.Now().Sub(startupStart)
	setPhase(RunRunning)

	// Step 3: diagnostic probes. Individual probes degrade, never abort.
	_ = op.RunStep(ctx, "probes", func(ctx context.Context) error {
		run.Checks, run.Tools = runProbes(ctx, v.launcher, st.ID(), v.probeCfg)
		return nil
	})

	// Step 4: one resource snapshot, judged by a per-run tracker. A failed
	// sample is reported as a degraded check, not a failed run.
	_ = op.RunStep(ctx, "snapshot", func(ctx context.Context) error {
		usage, err := v.sampler.Sample(ctx, st.ID())
		if err != nil {
			log.Warn("resource snapshot failed", "err", err)
			run.Checks = append(run.Checks, devcheck.EnvironmentCheck{
				Name:    "resource snapshot",
				Status:  devcheck.CheckWarning,
				Message: fmt.Sprintf("stats collection failed: %v", err),
			})
			return nil
		}
		run.Resources = usage
		st.SetUsage(usage)

		tr := track.New(track.WithThresholds(v.thresholds), track.WithClock(v.clock))
		eval := tr.Track(usage)
		if !tr.WithinLimits(usage) {
			run.Checks = append(run.Checks, devcheck.EnvironmentCheck{
				Name:    "resource limits",
				Status:  devcheck.CheckWarning,
				Message: strings.Join(eval.Warnings, "; "),
			})
		}
		log.Debug("resource snapshot", "efficiency", tr.EfficiencyScore(usage))
		return nil
	})

	// Step 5: verdict. An absent toolchain fails the run even though the
	// suite itself completed.
	if len(run.FailedChecks()) > 0 {
		return v.fail(op, &run, setPhase, errors.New("essential environment check failed"))
	}

	run.Status = devcheck.ValidationRunning
	run.FinishedAt = v.clock.Now()
	setPhase(RunCompleted)
	op.End(nil)
	return run
}

// liveness retries a trivial in-container command until it succeeds or the
// liveness window closes.
func (v *Validator) liveness(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, livenessTimeout)
	defer cancel()

	err := poll.Retry(ctx, 250*time.Millisecond, 2*time.Second, livenessTimeout, func() error {
		res, err := v.launcher.Exec(ctx, id, []string{"/bin/sh", "-c", "exit 0"}, engine.ExecOptions{Timeout: livenessTimeout})
		if err != nil {
			return err
		}
		if res.ExitCode != 0 {
			return fmt.Errorf("liveness command exit code %d", res.ExitCode)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("liveness probe: %w", err)
	}
	return nil
}

func (v *Validator) fail(op *telemetry.Operation, run *devcheck.Validation, setPhase func(RunPhase), err error) devcheck.Validation {
	run.Status = devcheck.ValidationFailed
	run.Error = err.Error()
	run.FinishedAt = v.clock.Now()
	setPhase(RunFailed)
	op.End(err)
	return *run
}

// cleanup stops and removes the run's container. It uses a fresh context
// so an expired run deadline cannot block teardown, and failures are
// logged, never surfaced: they must not mask the computed verdict.
func (v *Validator) cleanup(st *launch.State, log *slog.Logger) {
	if st == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	id := st.ID()
	if id == "" {
		return
	}
	if !v.launcher.Stop(ctx, id, 0) {
		log.Warn("cleanup stop failed", "id", id)
	}
	if !v.launcher.Remove(ctx, id) {
		log.Warn("cleanup remove failed", "id", id)
	}
}
