// Package ipc implements the synchronous one-shot rendezvous
// (component G): TrySend succeeds only against a receiver already
// blocked in Recv, optionally granting one page across the address
// space boundary. Grounded on original_source/kern/syscall.c's
// sys_ipc_try_send/sys_ipc_recv -- this package is their exact
// semantics factored out from the syscall dispatch switch -- and on
// lib/ipc.c's ipc_send retry-on-E_IPC_NOT_RECV loop, which is why
// TrySend is named Try and leaves the yield-and-retry decision to the
// caller (ulib) rather than blocking itself.
package ipc

import (
	"github.com/mcorley/jos/defs"
	"github.com/mcorley/jos/env"
	"github.com/mcorley/jos/kconfig"
	"github.com/mcorley/jos/mem"
	"github.com/mcorley/jos/vm"
)

// Recv marks e blocked waiting for a message, recording the
// destination it wants a granted page mapped at (0 means "no page
// wanted") and clearing the previous rendezvous's from/value/perm so
// a receiver can never observe a stale delivery (spec.md §4.6: the
// receiver clears these on every call). The scheduler will not run e
// again until a TrySend targets it.
func Recv(e *env.Env, dstVa uint32) {
	e.IpcRecving = true
	e.IpcDstva = dstVa
	e.IpcFrom = 0
	e.IpcValue = 0
	e.IpcPerm = 0
	e.Status = defs.StatusNotRunnable
}

// TrySend delivers value (and, if srcVa is non-zero, a mapping of the
// page at srcVa in from's address space) to to, if and only if to is
// currently blocked in Recv. It fails with IpcNotRecv otherwise --
// the caller is expected to yield and retry, exactly as
// original_source/lib/ipc.c's ipc_send does.
func TrySend(pm *mem.Physmem, from, to *env.Env, value uint32, srcVa uint32, perm mem.Pa_t) defs.Err_t {
	if !to.IpcRecving {
		return defs.IpcNotRecv
	}

	grantedPerm := mem.Pa_t(0)
	if srcVa != 0 {
		if !kconfig.Pgaligned(srcVa) || srcVa >= kconfig.UTOP {
			return defs.Inval
		}
		if perm&^mem.PteUser != 0 || perm&(mem.PteU|mem.PteP) != mem.PteU|mem.PteP {
			return defs.Inval
		}
		pte := vm.Lookup(pm, from.Pgdir, srcVa)
		if pte == nil || *pte&mem.PteP == 0 {
			return defs.Inval
		}
		// No COW exception here either: original_source/kern/syscall.c's
		// sys_ipc_try_send rejects granting WRITE whenever the source
		// PTE itself lacks PTE_W, same as sys_page_map.
		if perm&mem.PteW != 0 && *pte&mem.PteW == 0 {
			return defs.Inval
		}
		if to.IpcDstva != 0 {
			pa := *pte & mem.PteAddr
			if !vm.Insert(pm, to.Pgdir, to.IpcDstva, pa, perm|mem.PteP) {
				return defs.NoMem
			}
			grantedPerm = perm | mem.PteP
		}
	}

	to.IpcRecving = false
	to.IpcFrom = from.Id
	to.IpcValue = value
	to.IpcPerm = grantedPerm
	to.Status = defs.StatusRunnable
	to.Tf.Eax = 0
	return 0
}
