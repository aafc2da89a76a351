package validate

import (
	"context"
	"errors"
	"strings"
	"testing"

	"devcheck"
	"devcheck/internal/engine"
	"devcheck/internal/launch"
)

type fakeRunner struct {
	fn    func(cmd []string) (launch.Result, error)
	cmds  [][]string
	calls int
}

func (f *fakeRunner) Exec(_ context.Context, _ string, cmd []string, _ engine.ExecOptions) (launch.Result, error) {
	f.calls++
	f.cmds = append(f.cmds, cmd)
	if f.fn != nil {
		return f.fn(cmd)
	}
	return launch.Result{}, nil
}

func TestProbeSuiteOrderIsFixed(t *testing.T) {
	r := &fakeRunner{}
	checks, _ := runProbes(context.Background(), r, "c1", ProbeConfig{})

	want := []string{"toolchain", "version control", "package managers", "filesystem write", "network reachability"}
	if len(checks) != len(want) {
		t.Fatalf("checks = %d, want %d", len(checks), len(want))
	}
	for i, name := range want {
		if checks[i].Name != name {
			t.Fatalf("checks[%d] = %q, want %q", i, checks[i].Name, name)
		}
	}
}

func TestProbeTransportErrorDoesNotAbortSuite(t *testing.T) {
	r := &fakeRunner{fn: func(cmd []string) (launch.Result, error) {
		if cmd[0] == "git" {
			return launch.Result{}, errors.New("exec attach failed")
		}
		return launch.Result{Output: "ok"}, nil
	}}
	checks, _ := runProbes(context.Background(), r, "c1", ProbeConfig{})

	if len(checks) != 5 {
		t.Fatalf("checks = %d, want all 5 despite probe error", len(checks))
	}
	if checks[1].Status != devcheck.CheckWarning {
		t.Fatalf("version control status = %s, want warning", checks[1].Status)
	}
	if checks[4].Status != devcheck.CheckPassed {
		t.Fatalf("later probe status = %s, want passed", checks[4].Status)
	}
}

func TestToolchainErrorIsEssentialFailure(t *testing.T) {
	r := &fakeRunner{fn: func(cmd []string) (launch.Result, error) {
		if strings.Contains(strings.Join(cmd, " "), "node --version") {
			return launch.Result{}, errors.New("exec create failed")
		}
		return launch.Result{}, nil
	}}
	checks, tools := runProbes(context.Background(), r, "c1", ProbeConfig{})

	if checks[0].Status != devcheck.CheckFailed {
		t.Fatalf("toolchain status = %s, want failed", checks[0].Status)
	}
	for _, tool := range tools {
		if tool.Name == "runtime" {
			t.Fatal("runtime tool reported despite failed probe")
		}
	}
}

func TestScratchWriteUsesConfiguredDir(t *testing.T) {
	r := &fakeRunner{fn: func(cmd []string) (launch.Result, error) {
		joined := strings.Join(cmd, " ")
		if strings.Contains(joined, "/workspace/.devcheck-probe") {
			return launch.Result{ExitCode: 1}, nil
		}
		return launch.Result{Output: "ok"}, nil
	}}
	checks, _ := runProbes(context.Background(), r, "c1", ProbeConfig{ScratchDir: "/workspace"})

	if checks[3].Status != devcheck.CheckWarning {
		t.Fatalf("filesystem write status = %s, want warning", checks[3].Status)
	}
	if !strings.Contains(checks[3].Message, "/workspace") {
		t.Fatalf("message = %q, want configured dir", checks[3].Message)
	}
}

func TestNetworkUnreachableDegradesToWarning(t *testing.T) {
	r := &fakeRunner{fn: func(cmd []string) (launch.Result, error) {
		if strings.Contains(strings.Join(cmd, " "), "wget") {
			return launch.Result{ExitCode: 1}, nil
		}
		return launch.Result{Output: "ok"}, nil
	}}
	checks, _ := runProbes(context.Background(), r, "c1", ProbeConfig{NetworkTarget: "10.0.0.1"})

	if checks[4].Status != devcheck.CheckWarning {
		t.Fatalf("network status = %s, want warning", checks[4].Status)
	}
	if !strings.Contains(checks[4].Message, "10.0.0.1") {
		t.Fatalf("message = %q, want target named", checks[4].Message)
	}
}

func TestPassedToolchainReportsRuntimeVersion(t *testing.T) {
	r := &fakeRunner{fn: func(cmd []string) (launch.Result, error) {
		if strings.Contains(strings.Join(cmd, " "), "node --version") {
			return launch.Result{Output: "v20.11.0\n"}, nil
		}
		return launch.Result{Output: "ok"}, nil
	}}
	checks, tools := runProbes(context.Background(), r, "c1", ProbeConfig{})

	if checks[0].Status != devcheck.CheckPassed || checks[0].Message != "v20.11.0" {
		t.Fatalf("toolchain check = %+v, want passed v20.11.0", checks[0])
	}
	found := false
	for _, tool := range tools {
		if tool.Name == "runtime" && tool.Present && tool.Version == "v20.11.0" {
			found = true
		}
	}
	if !found {
		t.Fatalf("tools = %+v, want runtime v20.11.0", tools)
	}
}
