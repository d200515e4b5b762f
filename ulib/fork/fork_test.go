package fork

import (
	"testing"

	"github.com/mcorley/jos/defs"
	"github.com/mcorley/jos/env"
	"github.com/mcorley/jos/kconfig"
	"github.com/mcorley/jos/mem"
	"github.com/mcorley/jos/sched"
	"github.com/mcorley/jos/syscall"
	"github.com/mcorley/jos/ulib/pfault"
	"github.com/mcorley/jos/vm"
)

type nopConsole struct{}

func (nopConsole) Puts(string)      {}
func (nopConsole) Getc() (byte, bool) { return 0, false }

type zeroClock struct{}

func (zeroClock) Millis() uint64 { return 0 }

func newMachine(t *testing.T) (*syscall.Table, *env.Table, *mem.Physmem) {
	t.Helper()
	pm := mem.NewPhysmem(4096)
	envs := env.NewTable(pm)
	sc := &syscall.Table{
		Envs:    envs,
		Pm:      pm,
		Sched:   sched.New(envs),
		Console: nopConsole{},
		Clock:   zeroClock{},
	}
	return sc, envs, pm
}

func TestForkSharesPagesCopyOnWrite(t *testing.T) {
	sc, envs, pm := newMachine(t)
	parentId, _ := envs.Alloc(0)
	parent, _ := envs.Lookup(parentId, 0)

	const va = 0x10000
	tf := env.TrapFrame{Eax: defs.SysPageAlloc, Edx: 0, Ecx: va, Ebx: uint32(mem.PteP | mem.PteW | mem.PteU)}
	if r := sc.Dispatch(parent, &tf); int32(r) != 0 {
		t.Fatalf("page_alloc failed: %d", int32(r))
	}

	pte := vm.Lookup(pm, parent.Pgdir, va)
	copy(pm.Bytes(*pte&mem.PteAddr), []byte("hello"))

	const upcall = 0xdeadbeef
	childId, err := Fork(sc, pm, parent, upcall)
	if err != 0 {
		t.Fatalf("Fork failed: %v", err)
	}
	child, _ := envs.Lookup(childId, 0)

	parentPte := vm.Lookup(pm, parent.Pgdir, va)
	childPte := vm.Lookup(pm, child.Pgdir, va)
	if parentPte == nil || childPte == nil {
		t.Fatal("expected va mapped in both parent and child")
	}
	if *parentPte&mem.PteAddr != *childPte&mem.PteAddr {
		t.Fatal("expected parent and child to share the same physical frame")
	}
	if *parentPte&mem.PteCow == 0 || *childPte&mem.PteCow == 0 {
		t.Fatal("expected both mappings marked copy-on-write")
	}
	if *parentPte&mem.PteW != 0 || *childPte&mem.PteW != 0 {
		t.Fatal("COW mappings must not also be directly writable")
	}

	if child.PgfaultUpcall != upcall {
		t.Fatalf("child upcall = %#x, want %#x", child.PgfaultUpcall, upcall)
	}
	if child.Status != defs.StatusRunnable {
		t.Fatalf("child status = %v, want RUNNABLE", child.Status)
	}

	exceptionPage := uint32(kconfig.UXSTACKTOP - kconfig.PGSIZE)
	if vm.Lookup(pm, child.Pgdir, exceptionPage) == nil {
		t.Fatal("expected child to have its own exception stack page")
	}
	if *vm.Lookup(pm, child.Pgdir, exceptionPage)&mem.PteCow != 0 {
		t.Fatal("exception stack page must never be copy-on-write")
	}
}

func TestCOWFaultGivesChildPrivateCopy(t *testing.T) {
	sc, envs, pm := newMachine(t)
	parentId, _ := envs.Alloc(0)
	parent, _ := envs.Lookup(parentId, 0)

	const va = 0x10000
	tf := env.TrapFrame{Eax: defs.SysPageAlloc, Edx: 0, Ecx: va, Ebx: uint32(mem.PteP | mem.PteW | mem.PteU)}
	sc.Dispatch(parent, &tf)
	pte := vm.Lookup(pm, parent.Pgdir, va)
	copy(pm.Bytes(*pte&mem.PteAddr), []byte("original"))

	childId, err := Fork(sc, pm, parent, 0xcafe)
	if err != 0 {
		t.Fatalf("Fork failed: %v", err)
	}
	child, _ := envs.Lookup(childId, 0)

	origParentPa := *vm.Lookup(pm, parent.Pgdir, va) & mem.PteAddr

	child.Tf.Esp = kconfig.UXSTACKTOP
	child.Tf.ErrCode = 1 << 1 // FEC_WR: the fault was a write
	child.Utf.Fault_va = va
	child.Utf.Err = child.Tf.ErrCode

	pfault.Handle(sc, pm, child)

	childPte := vm.Lookup(pm, child.Pgdir, va)
	if *childPte&mem.PteAddr == origParentPa {
		t.Fatal("expected child to get a private frame after COW fault")
	}
	if string(pm.Bytes(*childPte&mem.PteAddr)[:8]) != "original" {
		t.Fatal("expected child's private copy to preserve the shared page's contents")
	}

	parentBytes := pm.Bytes(origParentPa)
	if string(parentBytes[:8]) != "original" {
		t.Fatal("parent's page must be unaffected by the child's COW fault")
	}
}
