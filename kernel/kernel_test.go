package kernel

import (
	"testing"

	"github.com/mcorley/jos/defs"
)

type testConsole struct{}

func (testConsole) Puts(string)        {}
func (testConsole) Getc() (byte, bool) { return 0, false }

func TestSpawnThenStepRuns(t *testing.T) {
	m := NewMachine(1024, testConsole{})
	id, err := m.Spawn(0, 0x400000)
	if err != 0 {
		t.Fatalf("Spawn failed: %v", err)
	}

	e, ok := m.Step()
	if !ok {
		t.Fatal("expected a runnable environment")
	}
	if e.Id != id {
		t.Fatalf("stepped env %#x, want %#x", e.Id, id)
	}
	if m.Clock.Millis() == 0 {
		t.Fatal("expected the clock to advance on Step")
	}
}

func TestDestroyFreesPages(t *testing.T) {
	m := NewMachine(1024, testConsole{})
	before := m.Pm.NFree()
	id, _ := m.Spawn(0, 0)
	if err := m.Envs.Destroy(id); err != 0 {
		t.Fatalf("Destroy failed: %v", err)
	}
	if after := m.Pm.NFree(); after != before {
		t.Fatalf("NFree after destroy = %d, want %d (no leaked pages)", after, before)
	}
}

func TestHandleTrapFatalDestroysEnv(t *testing.T) {
	m := NewMachine(1024, testConsole{})
	id, _ := m.Spawn(0, 0)
	e, _ := m.Envs.Lookup(id, 0)

	m.HandleTrap(e, defs.GPFault, 0)

	if _, err := m.Envs.Lookup(id, 0); err == 0 {
		t.Fatal("expected env destroyed after a fatal trap")
	}
}
