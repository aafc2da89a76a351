package launch

import (
	"testing"
	"time"

	"devcheck"
)

func TestPhaseHappyPathIsMonotonic(t *testing.T) {
	st := newState("c1", devcheck.ContainerSpec{Image: "alpine:latest"})
	if st.Phase() != PhaseCreated {
		t.Fatalf("initial phase = %s, want created", st.Phase())
	}

	steps := []struct {
		name string
		mark func() bool
		want Phase
	}{
		{"started", func() bool { return st.MarkStarted(time.Now()) }, PhaseStarted},
		{"running", st.MarkRunning, PhaseRunning},
		{"stopping", st.MarkStopping, PhaseStopping},
		{"stopped", st.MarkStopped, PhaseStopped},
		{"removed", st.MarkRemoved, PhaseRemoved},
	}
	for _, step := range steps {
		if !step.mark() {
			t.Fatalf("transition to %s refused", step.name)
		}
		if st.Phase() != step.want {
			t.Fatalf("phase = %s, want %s", st.Phase(), step.want)
		}
	}
}

func TestPhaseBackwardTransitionRefused(t *testing.T) {
	st := newState("c1", devcheck.ContainerSpec{})
	st.MarkStarted(time.Now())
	st.MarkRunning()

	if st.MarkStarted(time.Now()) {
		t.Fatal("running -> started must be refused")
	}
	if st.Phase() != PhaseRunning {
		t.Fatalf("phase = %s, want running", st.Phase())
	}
}

func TestFailedReachableFromAnyNonTerminalPhase(t *testing.T) {
	fresh := func(to Phase) *State {
		st := newState("c1", devcheck.ContainerSpec{})
		switch to {
		case PhaseStarted:
			st.MarkStarted(time.Now())
		case PhaseRunning:
			st.MarkStarted(time.Now())
			st.MarkRunning()
		case PhaseStopping:
			st.MarkStarted(time.Now())
			st.MarkRunning()
			st.MarkStopping()
		}
		return st
	}

	for _, phase := range []Phase{PhaseCreated, PhaseStarted, PhaseRunning, PhaseStopping} {
		st := fresh(phase)
		if !st.MarkFailed("boom") {
			t.Fatalf("MarkFailed from %s refused", phase)
		}
		if st.Phase() != PhaseFailed {
			t.Fatalf("phase = %s, want failed", st.Phase())
		}
		if st.Err() != "boom" {
			t.Fatalf("error = %q, want boom", st.Err())
		}
	}
}

func TestFailedIsTerminal(t *testing.T) {
	st := newState("c1", devcheck.ContainerSpec{})
	st.MarkFailed("boom")

	if st.MarkStarted(time.Now()) {
		t.Fatal("failed -> started must be refused")
	}
	if st.MarkFailed("again") {
		t.Fatal("failed -> failed must be refused")
	}
	if st.Err() != "boom" {
		t.Fatalf("error = %q, want original reason", st.Err())
	}
}

func TestRemovedIsTerminal(t *testing.T) {
	st := newState("c1", devcheck.ContainerSpec{})
	st.MarkStarted(time.Now())
	st.MarkRunning()
	st.MarkStopping()
	st.MarkStopped()
	st.MarkRemoved()

	if st.MarkFailed("late") {
		t.Fatal("removed -> failed must be refused")
	}
}

func TestSnapshotCopiesMaps(t *testing.T) {
	spec := devcheck.ContainerSpec{
		Image: "alpine:latest",
		Env:   map[string]string{"A": "1"},
		Ports: map[string]string{"8080/tcp": "8080"},
		Binds: []string{"/tmp:/work"},
	}
	st := newState("c1", spec)
	snap := st.Snapshot()

	snap.Env["A"] = "mutated"
	if st.Snapshot().Env["A"] != "1" {
		t.Fatal("snapshot map mutation leaked into state")
	}
	if snap.Image != "alpine:latest" || len(snap.Volumes) != 1 {
		t.Fatalf("snapshot = %+v, want populated copy", snap)
	}
}
