package sched

import (
	"testing"

	"github.com/mcorley/jos/defs"
	"github.com/mcorley/jos/env"
	"github.com/mcorley/jos/mem"
)

func TestRunSkipsIdleWhenOthersRunnable(t *testing.T) {
	pm := mem.NewPhysmem(64)
	envs := env.NewTable(pm)

	idleId, _ := envs.Alloc(0) // table index 0: the idle environment
	idle, _ := envs.Lookup(idleId, 0)
	idle.Status = defs.StatusRunnable

	workerId, _ := envs.Alloc(0)
	worker, _ := envs.Lookup(workerId, 0)
	worker.Status = defs.StatusRunnable

	s := New(envs)
	e, ok := s.Run()
	if !ok {
		t.Fatal("Run reported nothing runnable")
	}
	if e.Id != worker.Id {
		t.Fatalf("picked env %#x, want worker %#x (idle should be skipped)", e.Id, worker.Id)
	}
}

func TestRunFallsBackToIdle(t *testing.T) {
	pm := mem.NewPhysmem(64)
	envs := env.NewTable(pm)
	idleId, _ := envs.Alloc(0)
	idle, _ := envs.Lookup(idleId, 0)
	idle.Status = defs.StatusRunnable

	s := New(envs)
	e, ok := s.Run()
	if !ok || e.Id != idle.Id {
		t.Fatalf("expected fallback to idle, got %v ok=%v", e, ok)
	}
}

func TestRunReportsNoneRunnable(t *testing.T) {
	pm := mem.NewPhysmem(64)
	envs := env.NewTable(pm)
	envs.Alloc(0) // NOT_RUNNABLE by default

	s := New(envs)
	if _, ok := s.Run(); ok {
		t.Fatal("expected no runnable environment")
	}
}

func TestRoundRobinAdvancesPastLastPick(t *testing.T) {
	pm := mem.NewPhysmem(64)
	envs := env.NewTable(pm)
	envs.Alloc(0) // idle, index 0

	var ids []defs.Id
	for i := 0; i < 3; i++ {
		id, _ := envs.Alloc(0)
		e, _ := envs.Lookup(id, 0)
		e.Status = defs.StatusRunnable
		ids = append(ids, id)
	}

	s := New(envs)
	seen := map[defs.Id]bool{}
	for i := 0; i < 3; i++ {
		e, ok := s.Run()
		if !ok {
			t.Fatal("expected runnable env")
		}
		seen[e.Id] = true
	}
	for _, id := range ids {
		if !seen[id] {
			t.Fatalf("round-robin never visited env %#x", id)
		}
	}
}
