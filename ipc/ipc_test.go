package ipc

import (
	"testing"

	"github.com/mcorley/jos/defs"
	"github.com/mcorley/jos/env"
	"github.com/mcorley/jos/mem"
	"github.com/mcorley/jos/vm"
)

func newEnvs(t *testing.T, pm *mem.Physmem) *env.Table {
	t.Helper()
	return env.NewTable(pm)
}

func TestTrySendFailsWithoutReceiver(t *testing.T) {
	pm := mem.NewPhysmem(64)
	envs := newEnvs(t, pm)
	fromId, _ := envs.Alloc(0)
	toId, _ := envs.Alloc(0)
	from, _ := envs.Lookup(fromId, 0)
	to, _ := envs.Lookup(toId, 0)

	if err := TrySend(pm, from, to, 42, 0, 0); err != defs.IpcNotRecv {
		t.Fatalf("TrySend without receiver = %v, want IpcNotRecv", err)
	}
}

func TestSendRecvRoundTrip(t *testing.T) {
	pm := mem.NewPhysmem(64)
	envs := newEnvs(t, pm)
	fromId, _ := envs.Alloc(0)
	toId, _ := envs.Alloc(0)
	from, _ := envs.Lookup(fromId, 0)
	to, _ := envs.Lookup(toId, 0)

	Recv(to, 0)
	if err := TrySend(pm, from, to, 7, 0, 0); err != 0 {
		t.Fatalf("TrySend failed: %v", err)
	}
	if to.IpcValue != 7 || to.IpcFrom != from.Id {
		t.Fatalf("got value=%d from=%#x, want value=7 from=%#x", to.IpcValue, to.IpcFrom, from.Id)
	}
	if to.Status != defs.StatusRunnable {
		t.Fatalf("receiver status = %v, want RUNNABLE", to.Status)
	}
}

func TestSendGrantsPage(t *testing.T) {
	pm := mem.NewPhysmem(64)
	envs := newEnvs(t, pm)
	fromId, _ := envs.Alloc(0)
	toId, _ := envs.Alloc(0)
	from, _ := envs.Lookup(fromId, 0)
	to, _ := envs.Lookup(toId, 0)

	pa, _ := pm.RefpgNew()
	const srcVa = 0x5000
	const dstVa = 0x6000
	vm.Insert(pm, from.Pgdir, srcVa, pa, mem.PteW|mem.PteU)

	Recv(to, dstVa)
	if err := TrySend(pm, from, to, 0, srcVa, mem.PteP|mem.PteW|mem.PteU); err != 0 {
		t.Fatalf("TrySend failed: %v", err)
	}

	pte := vm.Lookup(pm, to.Pgdir, dstVa)
	if pte == nil || *pte&mem.PteAddr != pa {
		t.Fatalf("page not granted to receiver at dstVa")
	}
	if to.IpcPerm&mem.PteW == 0 {
		t.Fatal("expected granted perm to include write")
	}
}

func TestTrySendRejectsWriteGrantFromCowPage(t *testing.T) {
	pm := mem.NewPhysmem(64)
	envs := newEnvs(t, pm)
	fromId, _ := envs.Alloc(0)
	toId, _ := envs.Alloc(0)
	from, _ := envs.Lookup(fromId, 0)
	to, _ := envs.Lookup(toId, 0)

	pa, _ := pm.RefpgNew()
	const srcVa = 0x5000
	const dstVa = 0x6000
	// A COW page is PTE_U|PTE_P|PTE_COW with PTE_W clear -- the sender
	// must not be able to launder it into a writable grant.
	vm.Insert(pm, from.Pgdir, srcVa, pa, mem.PteU|mem.PteCow)

	Recv(to, dstVa)
	if err := TrySend(pm, from, to, 0, srcVa, mem.PteP|mem.PteU|mem.PteW); err != defs.Inval {
		t.Fatalf("TrySend(write grant from COW page) = %v, want Inval", err)
	}
}

func TestSecondRecvAfterConsumedSendFails(t *testing.T) {
	pm := mem.NewPhysmem(64)
	envs := newEnvs(t, pm)
	fromId, _ := envs.Alloc(0)
	toId, _ := envs.Alloc(0)
	from, _ := envs.Lookup(fromId, 0)
	to, _ := envs.Lookup(toId, 0)

	Recv(to, 0)
	TrySend(pm, from, to, 1, 0, 0)

	if err := TrySend(pm, from, to, 2, 0, 0); err != defs.IpcNotRecv {
		t.Fatalf("second TrySend without a new Recv = %v, want IpcNotRecv", err)
	}
}
