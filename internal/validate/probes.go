package validate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"devcheck"
	"devcheck/internal/engine"
	"devcheck/internal/launch"
)

const defaultProbeTimeout = 15 * time.Second

// CommandRunner executes a command inside a registered container. The
// Launcher satisfies this.
type CommandRunner interface {
	Exec(ctx context.Context, id string, cmd []string, opts engine.ExecOptions) (launch.Result, error)
}

// ProbeConfig tunes the diagnostic suite.
type ProbeConfig struct {
	// Toolchain is the essential runtime check. The default accepts any
	// of the common dev-container runtimes.
	Toolchain []string
	// ScratchDir is where the filesystem round-trip writes.
	ScratchDir string
	// NetworkTarget is the single outbound reachability target.
	NetworkTarget string
	// Timeout bounds each probe independently.
	Timeout time.Duration
}

func (c ProbeConfig) withDefaults() ProbeConfig {
	if len(c.Toolchain) == 0 {
		c.Toolchain = []string{"/bin/sh", "-c",
			"node --version 2>/dev/null || python3 --version 2>/dev/null || go version 2>/dev/null"}
	}
	if c.ScratchDir == "" {
		c.ScratchDir = "/tmp"
	}
	if c.NetworkTarget == "" {
		c.NetworkTarget = "1.1.1.1"
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultProbeTimeout
	}
	return c
}

// probe is one entry of the closed diagnostic suite. Every probe degrades
// to a check result; none may abort the remaining suite.
type probe struct {
	name string
	run  func(ctx context.Context) (devcheck.EnvironmentCheck, []devcheck.ToolStatus)
}

type probeSuite struct {
	runner CommandRunner
	id     string
	cfg    ProbeConfig
}

// newProbeSuite builds the fixed-order diagnostic suite for one container.
func newProbeSuite(r CommandRunner, id string, cfg ProbeConfig) []probe {
	s := &probeSuite{runner: r, id: id, cfg: cfg.withDefaults()}
	return []probe{
		{name: "toolchain", run: s.toolchain},
		{name: "version control", run: s.git},
		{name: "package managers", run: s.packageManagers},
		{name: "filesystem write", run: s.scratchWrite},
		{name: "network reachability", run: s.network},
	}
}

// runProbes executes the suite in order. Each probe owns its timeout and
// failure containment, so one broken probe never skips the rest.
func runProbes(ctx context.Context, r CommandRunner, id string, cfg ProbeConfig) ([]devcheck.EnvironmentCheck, []devcheck.ToolStatus) {
	var checks []devcheck.EnvironmentCheck
	var tools []devcheck.ToolStatus
	for _, p := range newProbeSuite(r, id, cfg) {
		check, probeTools := p.run(ctx)
		checks = append(checks, check)
		tools = append(tools, probeTools...)
	}
	return checks, tools
}

// exec runs cmd under the probe timeout and folds transport errors into a
// degraded result via the onError status.
func (s *probeSuite) exec(ctx context.Context, cmd []string) (launch.Result, error) {
	return s.runner.Exec(ctx, s.id, cmd, engine.ExecOptions{Timeout: s.cfg.Timeout})
}

func check(name string, status devcheck.CheckStatus, msg string, took time.Duration, details map[string]string) devcheck.EnvironmentCheck {
	return devcheck.EnvironmentCheck{
		Name:     name,
		Status:   status,
		Message:  msg,
		Duration: took,
		Details:  details,
	}
}

// toolchain is the only essential probe: a container with no usable
// runtime is reported as failed, not merely degraded.
func (s *probeSuite) toolchain(ctx context.Context) (devcheck.EnvironmentCheck, []devcheck.ToolStatus) {
	start := time.Now()
	res, err := s.exec(ctx, s.cfg.Toolchain)
	took := time.Since(start)

	if err != nil {
		return check("toolchain", devcheck.CheckFailed,
			fmt.Sprintf("toolchain probe errored: %v", err), took,
			map[string]string{"error": err.Error()}), nil
	}
	if res.ExitCode != 0 {
		return check("toolchain", devcheck.CheckFailed,
			"no development runtime found in container", took, nil), nil
	}

	version := strings.TrimSpace(res.Output)
	return check("toolchain", devcheck.CheckPassed, version, took, nil),
		[]devcheck.ToolStatus{{Name: "runtime", Present: true, Version: version}}
}

// git absence degrades to a warning: the environment is usable without it.
func (s *probeSuite) git(ctx context.Context) (devcheck.EnvironmentCheck, []devcheck.ToolStatus) {
	start := time.Now()
	res, err := s.exec(ctx, []string{"git", "--version"})
	took := time.Since(start)

	if err != nil || res.ExitCode != 0 {
		return check("version control", devcheck.CheckWarning,
				"git is not available in the container", took, nil),
			[]devcheck.ToolStatus{{Name: "git"}}
	}
	version := strings.TrimSpace(res.Output)
	return check("version control", devcheck.CheckPassed, version, took, nil),
		[]devcheck.ToolStatus{{Name: "git", Present: true, Version: version}}
}

func (s *probeSuite) packageManagers(ctx context.Context) (devcheck.EnvironmentCheck, []devcheck.ToolStatus) {
	start := time.Now()
	res, err := s.exec(ctx, []string{"/bin/sh", "-c",
		"command -v npm || command -v pip || command -v pip3 || command -v apt-get || command -v apk"})
	took := time.Since(start)

	if err != nil || res.ExitCode != 0 {
		return check("package managers", devcheck.CheckWarning,
			"no package manager found", took, nil), nil
	}
	found := strings.TrimSpace(res.Output)
	return check("package managers", devcheck.CheckPassed,
			fmt.Sprintf("found %s", found), took, nil),
		[]devcheck.ToolStatus{{Name: "package manager", Present: true, Version: found}}
}

// scratchWrite round-trips a file through the scratch directory. Denial is
// a warning: read-only containers can still be usable.
func (s *probeSuite) scratchWrite(ctx context.Context) (devcheck.EnvironmentCheck, []devcheck.ToolStatus) {
	start := time.Now()
	script := fmt.Sprintf("echo devcheck > %[1]s/.devcheck-probe && rm %[1]s/.devcheck-probe", s.cfg.ScratchDir)
	res, err := s.exec(ctx, []string{"/bin/sh", "-c", script})
	took := time.Since(start)

	if err != nil || res.ExitCode != 0 {
		return check("filesystem write", devcheck.CheckWarning,
			fmt.Sprintf("cannot write to %s", s.cfg.ScratchDir), took, nil), nil
	}
	return check("filesystem write", devcheck.CheckPassed,
		fmt.Sprintf("%s is writable", s.cfg.ScratchDir), took, nil), nil
}

// network tries one outbound probe. Failure is a warning because the
// environment may be intentionally offline.
func (s *probeSuite) network(ctx context.Context) (devcheck.EnvironmentCheck, []devcheck.ToolStatus) {
	start := time.Now()
	script := fmt.Sprintf("wget -q --spider -T 5 http://%[1]s 2>/dev/null || ping -c 1 -W 3 %[1]s", s.cfg.NetworkTarget)
	res, err := s.exec(ctx, []string{"/bin/sh", "-c", script})
	took := time.Since(start)

	if err != nil || res.ExitCode != 0 {
		return check("network reachability", devcheck.CheckWarning,
			fmt.Sprintf("no outbound route to %s", s.cfg.NetworkTarget), took, nil), nil
	}
	return check("network reachability", devcheck.CheckPassed,
		fmt.Sprintf("%s reachable", s.cfg.NetworkTarget), took, nil), nil
}
