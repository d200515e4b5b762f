package trapentry

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/mcorley/jos/defs"
	"github.com/mcorley/jos/env"
	"github.com/mcorley/jos/kconfig"
	"github.com/mcorley/jos/mem"
	"github.com/mcorley/jos/vm"
)

type nopSyscaller struct{ called bool }

func (s *nopSyscaller) Dispatch(caller *env.Env, tf *env.TrapFrame) uint32 {
	s.called = true
	return 7
}

func TestDispatchRoutesSyscall(t *testing.T) {
	pm := mem.NewPhysmem(16)
	envs := env.NewTable(pm)
	id, _ := envs.Alloc(0)
	cur, _ := envs.Lookup(id, 0)
	sc := &nopSyscaller{}

	resched := Dispatch(envs, pm, sc, cur, defs.Syscall, 0)
	if !sc.called {
		t.Fatal("expected syscall vector to reach Syscaller.Dispatch")
	}
	if cur.Tf.Eax != 7 {
		t.Fatalf("Tf.Eax = %d, want 7 (syscall return value installed)", cur.Tf.Eax)
	}
	if resched {
		t.Fatal("a syscall should not force a reschedule by itself")
	}
}

func TestPagefaultDestroysEnvWithoutUpcall(t *testing.T) {
	pm := mem.NewPhysmem(16)
	envs := env.NewTable(pm)
	id, _ := envs.Alloc(0)
	cur, _ := envs.Lookup(id, 0)
	sc := &nopSyscaller{}

	if resched := Dispatch(envs, pm, sc, cur, defs.PgFault, 0x1000); !resched {
		t.Fatal("expected reschedule after destroying a faulting env")
	}
	if _, err := envs.Lookup(id, 0); err == 0 {
		t.Fatal("expected env to be destroyed")
	}
}

func TestPagefaultBuildsUpcallFrame(t *testing.T) {
	pm := mem.NewPhysmem(16)
	envs := env.NewTable(pm)
	id, _ := envs.Alloc(0)
	cur, _ := envs.Lookup(id, 0)
	cur.PgfaultUpcall = 0xabcd
	cur.Tf.Esp = kconfig.UXSTACKTOP

	// Map the exception stack page so Pagefault's check that the
	// destination is mapped present, user and writable succeeds.
	pa, _ := pm.RefpgNew()
	exVa := uint32(kconfig.UXSTACKTOP - kconfig.PGSIZE)
	vm.Insert(pm, cur.Pgdir, exVa, pa, mem.PteW|mem.PteU)

	if err := Pagefault(envs, pm, cur, 0x1000); err != 0 {
		t.Fatalf("Pagefault failed: %v", err)
	}
	if cur.Tf.Eip != cur.PgfaultUpcall {
		t.Fatalf("Tf.Eip = %#x, want upcall %#x", cur.Tf.Eip, cur.PgfaultUpcall)
	}
	if cur.Utf.Fault_va != 0x1000 {
		t.Fatalf("Utf.Fault_va = %#x, want 0x1000", cur.Utf.Fault_va)
	}

	// The saved Regs half of the upcall frame must be an exact copy of
	// the trapframe the fault interrupted, taken before Pagefault
	// rewrote Esp/Eip to point at the upcall. Compare the whole
	// embedded struct with go-cmp rather than field by field, so a
	// future field added to TrapFrame can't silently go unchecked here.
	wantRegs := env.TrapFrame{Esp: kconfig.UXSTACKTOP}
	if diff := cmp.Diff(wantRegs, cur.Utf.Regs); diff != "" {
		t.Fatalf("Utf.Regs mismatch (-want +got):\n%s", diff)
	}
}
