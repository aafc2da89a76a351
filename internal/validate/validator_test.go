package validate

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"devcheck"
	"devcheck/internal/engine"
	"devcheck/internal/launch"
)

// fakeEngine dispatches exec calls per command so each probe can be
// scripted independently.
type fakeEngine struct {
	mu    sync.Mutex
	calls []string

	createID  string
	createErr error
	startErr  error

	inspectSeq []engine.ContainerInfo // consumed one per Inspect, last repeats

	execFn func(cmd []string) (engine.ExecResult, error)

	usage     devcheck.ResourceUsage
	sampleErr error
}

func (f *fakeEngine) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeEngine) recorded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeEngine) Ping(context.Context) error { return nil }

func (f *fakeEngine) Create(_ context.Context, _ devcheck.ContainerSpec) (string, error) {
	f.record("create")
	if f.createErr != nil {
		return "", f.createErr
	}
	return f.createID, nil
}

func (f *fakeEngine) Start(_ context.Context, _ string) error {
	f.record("start")
	return f.startErr
}

func (f *fakeEngine) Stop(_ context.Context, _ string, _ time.Duration) error {
	f.record("stop")
	return nil
}

func (f *fakeEngine) Remove(_ context.Context, _ string, _ engine.RemoveOptions) error {
	f.record("remove")
	return nil
}

func (f *fakeEngine) Inspect(_ context.Context, id string) (engine.ContainerInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.inspectSeq) == 0 {
		return engine.ContainerInfo{ID: id, Running: true, Status: "running"}, nil
	}
	info := f.inspectSeq[0]
	if len(f.inspectSeq) > 1 {
		f.inspectSeq = f.inspectSeq[1:]
	}
	return info, nil
}

func (f *fakeEngine) Exec(_ context.Context, _ string, cmd []string, _ engine.ExecOptions) (engine.ExecResult, error) {
	f.record("exec")
	if f.execFn != nil {
		return f.execFn(cmd)
	}
	return engine.ExecResult{}, nil
}

func (f *fakeEngine) Sample(_ context.Context, _ string) (devcheck.ResourceUsage, error) {
	f.record("sample")
	return f.usage, f.sampleErr
}

func (f *fakeEngine) Logs(_ context.Context, _ string, _ engine.LogOptions) ([]string, error) {
	return nil, nil
}

func (f *fakeEngine) List(_ context.Context, _ bool) ([]engine.ContainerSummary, error) {
	return nil, nil
}

func (f *fakeEngine) PullImage(_ context.Context, _ string, _ func(string)) error {
	return nil
}

// runningSince yields inspect results for a container that has been up
// long enough to satisfy the readiness dwell immediately.
func runningSince(id string, ago time.Duration) []engine.ContainerInfo {
	return []engine.ContainerInfo{{
		ID:        id,
		Running:   true,
		Status:    "running",
		StartedAt: time.Now().Add(-ago),
	}}
}

// gitAbsent scripts a container where the runtime works but git is
// missing. Everything else succeeds.
func gitAbsent(cmd []string) (engine.ExecResult, error) {
	joined := strings.Join(cmd, " ")
	switch {
	case strings.Contains(joined, "node --version"):
		return engine.ExecResult{Stdout: "v20.11.0\n"}, nil
	case cmd[0] == "git":
		return engine.ExecResult{ExitCode: 127}, nil
	case strings.Contains(joined, "command -v"):
		return engine.ExecResult{Stdout: "/usr/bin/npm\n"}, nil
	default:
		return engine.ExecResult{}, nil
	}
}

func newTestValidator(eng *fakeEngine, opts ...ValidatorOption) *Validator {
	l := launch.New(eng, launch.WithReadyPoll(time.Millisecond, 5*time.Second))
	return New(l, eng, opts...)
}

func TestValidateHealthyEnvironmentWithMissingGit(t *testing.T) {
	eng := &fakeEngine{
		createID:   "c1",
		inspectSeq: runningSince("c1", 10*time.Second),
		execFn:     gitAbsent,
		usage: devcheck.ResourceUsage{
			Memory: devcheck.MemoryUsage{UsedMB: 256, LimitMB: 2048},
			CPU:    devcheck.CPUUsage{UsagePercent: 12},
		},
	}
	v := newTestValidator(eng)

	run := v.Validate(context.Background(), devcheck.ContainerSpec{Image: "node:20"})

	if run.Status != devcheck.ValidationRunning {
		t.Fatalf("status = %s, want running (error: %q)", run.Status, run.Error)
	}
	if run.RunID == "" || run.ContainerID != "c1" {
		t.Fatalf("run identity = %q/%q", run.RunID, run.ContainerID)
	}
	if len(run.Checks) != 5 {
		t.Fatalf("checks = %d, want 5", len(run.Checks))
	}
	warnings := run.Warnings()
	if len(warnings) != 1 || warnings[0].Name != "version control" {
		t.Fatalf("warnings = %+v, want single version control warning", warnings)
	}
	if len(run.FailedChecks()) != 0 {
		t.Fatalf("failed checks = %+v, want none", run.FailedChecks())
	}
	if run.Resources.Memory.UsedMB != 256 {
		t.Fatalf("snapshot memory = %v, want 256", run.Resources.Memory.UsedMB)
	}
	var gitTool *devcheck.ToolStatus
	for i := range run.Tools {
		if run.Tools[i].Name == "git" {
			gitTool = &run.Tools[i]
		}
	}
	if gitTool == nil || gitTool.Present {
		t.Fatalf("git tool status = %+v, want absent entry", gitTool)
	}
	if run.FinishedAt.Before(run.StartedAt) {
		t.Fatalf("finished %v before started %v", run.FinishedAt, run.StartedAt)
	}
	assertCleanedUp(t, eng)
}

func TestValidateFailsWhenToolchainMissing(t *testing.T) {
	eng := &fakeEngine{
		createID:   "c1",
		inspectSeq: runningSince("c1", 10*time.Second),
		execFn: func(cmd []string) (engine.ExecResult, error) {
			if strings.Contains(strings.Join(cmd, " "), "node --version") {
				return engine.ExecResult{ExitCode: 127}, nil
			}
			return engine.ExecResult{}, nil
		},
	}
	v := newTestValidator(eng)

	run := v.Validate(context.Background(), devcheck.ContainerSpec{Image: "scratch"})

	if run.Status != devcheck.ValidationFailed {
		t.Fatalf("status = %s, want failed", run.Status)
	}
	failed := run.FailedChecks()
	if len(failed) != 1 || failed[0].Name != "toolchain" {
		t.Fatalf("failed checks = %+v, want toolchain", failed)
	}
	// The remaining probes still ran.
	if len(run.Checks) != 5 {
		t.Fatalf("checks = %d, want 5", len(run.Checks))
	}
	assertCleanedUp(t, eng)
}

func TestValidateFailsWhenContainerExitsBeforeReady(t *testing.T) {
	eng := &fakeEngine{
		createID: "c1",
		inspectSeq: []engine.ContainerInfo{
			{ID: "c1", Running: true, Status: "running"},
			{ID: "c1", Status: "exited", ExitCode: 1},
		},
	}
	v := newTestValidator(eng, WithReadyTimeout(time.Second))

	run := v.Validate(context.Background(), devcheck.ContainerSpec{Image: "crash:latest"})

	if run.Status != devcheck.ValidationFailed {
		t.Fatalf("status = %s, want failed", run.Status)
	}
	if !strings.Contains(run.Error, "ready") {
		t.Fatalf("error = %q, want readiness failure", run.Error)
	}
	if len(run.Checks) != 0 {
		t.Fatalf("checks = %d, want none after readiness failure", len(run.Checks))
	}
	assertCleanedUp(t, eng)
}

func TestValidateFailsOnCreateError(t *testing.T) {
	eng := &fakeEngine{createErr: errors.New("no such image")}
	v := newTestValidator(eng)

	run := v.Validate(context.Background(), devcheck.ContainerSpec{Image: "ghost:latest"})

	if run.Status != devcheck.ValidationFailed {
		t.Fatalf("status = %s, want failed", run.Status)
	}
	if !strings.Contains(run.Error, "no such image") {
		t.Fatalf("error = %q, want create error surfaced", run.Error)
	}
}

func TestValidateSampleFailureDegradesToWarning(t *testing.T) {
	eng := &fakeEngine{
		createID:   "c1",
		inspectSeq: runningSince("c1", 10*time.Second),
		execFn:     gitAbsent,
		sampleErr:  errors.New("stats stream closed"),
	}
	v := newTestValidator(eng)

	run := v.Validate(context.Background(), devcheck.ContainerSpec{Image: "node:20"})

	if run.Status != devcheck.ValidationRunning {
		t.Fatalf("status = %s, want running despite sample failure", run.Status)
	}
	var snap *devcheck.EnvironmentCheck
	for i := range run.Checks {
		if run.Checks[i].Name == "resource snapshot" {
			snap = &run.Checks[i]
		}
	}
	if snap == nil || snap.Status != devcheck.CheckWarning {
		t.Fatalf("snapshot check = %+v, want warning", snap)
	}
}

func assertCleanedUp(t *testing.T, eng *fakeEngine) {
	t.Helper()
	var stopped, removed bool
	for _, c := range eng.recorded() {
		switch c {
		case "stop":
			stopped = true
		case "remove":
			removed = true
		}
	}
	if !stopped || !removed {
		t.Fatalf("cleanup calls = %v, want stop and remove", eng.recorded())
	}
}

func TestValidateOverLimitSnapshotAddsWarningCheck(t *testing.T) {
	eng := &fakeEngine{
		createID:   "c7",
		inspectSeq: runningSince("c7", 10*time.Second),
		execFn:     gitAbsent,
		usage: devcheck.ResourceUsage{
			Memory: devcheck.MemoryUsage{UsedMB: 1900, LimitMB: 2048},
			CPU:    devcheck.CPUUsage{UsagePercent: 12},
		},
	}
	v := newTestValidator(eng)

	run := v.Validate(context.Background(), devcheck.ContainerSpec{Image: "node:20"})

	if run.Status != devcheck.ValidationRunning {
		t.Fatalf("status = %s, want running; a limits breach degrades, it does not fail", run.Status)
	}
	var limits *devcheck.EnvironmentCheck
	for i := range run.Checks {
		if run.Checks[i].Name == "resource limits" {
			limits = &run.Checks[i]
		}
	}
	if limits == nil {
		t.Fatalf("checks = %+v, want a resource limits warning", run.Checks)
	}
	if limits.Status != devcheck.CheckWarning {
		t.Fatalf("limits status = %s, want warning", limits.Status)
	}
	if !strings.Contains(limits.Message, "memory") {
		t.Fatalf("limits message = %q, want mention of memory", limits.Message)
	}
	assertCleanedUp(t, eng)
}

func TestValidateWithinLimitsAddsNoLimitsCheck(t *testing.T) {
	eng := &fakeEngine{
		createID:   "c8",
		inspectSeq: runningSince("c8", 10*time.Second),
		execFn:     gitAbsent,
		usage: devcheck.ResourceUsage{
			Memory: devcheck.MemoryUsage{UsedMB: 256, LimitMB: 2048},
			CPU:    devcheck.CPUUsage{UsagePercent: 12},
		},
	}
	v := newTestValidator(eng)

	run := v.Validate(context.Background(), devcheck.ContainerSpec{Image: "node:20"})

	for _, c := range run.Checks {
		if c.Name == "resource limits" {
			t.Fatalf("unexpected resource limits check for a healthy sample: %+v", c)
		}
	}
	if len(run.Checks) != 5 {
		t.Fatalf("checks = %d, want the 5 probe checks only", len(run.Checks))
	}
}
