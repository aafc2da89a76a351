package history

import (
	"path/filepath"
	"testing"
	"time"

	"devcheck"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleRun(id string, started time.Time) devcheck.Validation {
	return devcheck.Validation{
		RunID:       id,
		ContainerID: "c-" + id,
		Image:       "node:20",
		Status:      devcheck.ValidationRunning,
		BuildTime:   2 * time.Second,
		StartupTime: 7 * time.Second,
		Checks: []devcheck.EnvironmentCheck{
			{Name: "toolchain", Status: devcheck.CheckPassed, Message: "v20.11.0"},
			{Name: "version control", Status: devcheck.CheckWarning, Message: "git is not available in the container"},
		},
		Tools: []devcheck.ToolStatus{
			{Name: "runtime", Present: true, Version: "v20.11.0"},
		},
		StartedAt:  started,
		FinishedAt: started.Add(15 * time.Second),
	}
}

func TestHistory_SaveAndGet(t *testing.T) {
	store := openTestStore(t)
	run := sampleRun("r1", time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC))

	if err := store.Save(run); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, found, err := store.Get("r1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !found {
		t.Fatal("Get returned found=false for saved run")
	}
	if got.RunID != run.RunID || got.ContainerID != run.ContainerID {
		t.Errorf("identity: got %q/%q, want %q/%q", got.RunID, got.ContainerID, run.RunID, run.ContainerID)
	}
	if got.Status != devcheck.ValidationRunning {
		t.Errorf("Status: got %s, want running", got.Status)
	}
	if got.BuildTime != run.BuildTime || got.StartupTime != run.StartupTime {
		t.Errorf("timings: got %v/%v, want %v/%v", got.BuildTime, got.StartupTime, run.BuildTime, run.StartupTime)
	}
	if len(got.Checks) != 2 || got.Checks[1].Status != devcheck.CheckWarning {
		t.Errorf("Checks: got %+v, want the saved two", got.Checks)
	}
	if len(got.Tools) != 1 || !got.Tools[0].Present {
		t.Errorf("Tools: got %+v, want runtime present", got.Tools)
	}
}

func TestHistory_ListNewestFirst(t *testing.T) {
	store := openTestStore(t)
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)

	for i, id := range []string{"old", "mid", "new"} {
		if err := store.Save(sampleRun(id, base.Add(time.Duration(i)*time.Hour))); err != nil {
			t.Fatalf("Save(%q): %v", id, err)
		}
	}

	got, err := store.List(0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("List returned %d runs, want 3", len(got))
	}
	wantOrder := []string{"new", "mid", "old"}
	for i, id := range wantOrder {
		if got[i].RunID != id {
			t.Errorf("List[%d].RunID = %q, want %q", i, got[i].RunID, id)
		}
	}

	limited, err := store.List(2)
	if err != nil {
		t.Fatalf("List(2): %v", err)
	}
	if len(limited) != 2 || limited[0].RunID != "new" {
		t.Fatalf("List(2) = %d runs starting %q, want 2 starting new", len(limited), limited[0].RunID)
	}
}

func TestHistory_SaveReplacesSameRun(t *testing.T) {
	store := openTestStore(t)
	started := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)

	run := sampleRun("r1", started)
	if err := store.Save(run); err != nil {
		t.Fatalf("Save (original): %v", err)
	}

	run.Status = devcheck.ValidationFailed
	run.Error = "container did not become ready within 2m0s"
	if err := store.Save(run); err != nil {
		t.Fatalf("Save (updated): %v", err)
	}

	got, found, err := store.Get("r1")
	if err != nil || !found {
		t.Fatalf("Get: %v found=%v", err, found)
	}
	if got.Status != devcheck.ValidationFailed || got.Error == "" {
		t.Errorf("updated run = %s/%q, want failed with error", got.Status, got.Error)
	}

	all, err := store.List(0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("expected 1 run after upsert, got %d", len(all))
	}
}

func TestHistory_GetMissing(t *testing.T) {
	store := openTestStore(t)

	_, found, err := store.Get("nonexistent")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if found {
		t.Error("expected found=false for non-existent run")
	}
}

func TestHistory_Prune(t *testing.T) {
	store := openTestStore(t)
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		run := sampleRun("r"+string(rune('a'+i)), base.Add(time.Duration(i)*time.Minute))
		if err := store.Save(run); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}

	pruned, err := store.Prune(2)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if pruned != 3 {
		t.Errorf("Prune removed %d runs, want 3", pruned)
	}

	got, err := store.List(0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("List returned %d runs after prune, want 2", len(got))
	}
	// Newest two survive.
	if got[0].RunID != "re" || got[1].RunID != "rd" {
		t.Errorf("survivors = %q, %q, want re, rd", got[0].RunID, got[1].RunID)
	}
}
