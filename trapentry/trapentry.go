// Package trapentry implements trap dispatch and the page-fault
// upcall (components D and F): routing a vector number to the right
// handler, and building the UTrapframe a user pgfault handler runs on
// when a write to a COW page (or any other fault) needs attention.
//
// Grounded on original_source/kern/trap.c's trap_dispatch/trap and
// page_fault_handler -- the exact recursive-exception-stack detection
// this package's Pagefault implements follows that file line for
// line -- and on the teacher's kernel/main.go trapstub for the shape
// of a vector-number switch feeding a handler table.
package trapentry

import (
	"github.com/mcorley/jos/defs"
	"github.com/mcorley/jos/env"
	"github.com/mcorley/jos/kconfig"
	"github.com/mcorley/jos/klog"
	"github.com/mcorley/jos/mem"
	"github.com/mcorley/jos/vm"
)

// Syscaller is the narrow interface trapentry needs from the syscall
// package; kept as an interface (rather than a direct import) so
// syscall can import trapentry's types without an import cycle.
type Syscaller interface {
	Dispatch(caller *env.Env, tf *env.TrapFrame) uint32
}

// Dispatch routes one trap vector for the currently running
// environment, mutating its Tf if it returns to user mode normally.
// It returns true if control should return to the scheduler (cur was
// destroyed, or the timer fired) and false if cur should keep running
// (its Tf was updated in place).
//
// faultVa is the address that faulted, valid only when vector is
// defs.PgFault. The hosted simulation has no MMU to raise a fault
// itself, so whatever detected it (a vm.Insert/Lookup miss, or a test
// harness) passes the address through here instead of it being read
// off a simulated %cr2 register.
func Dispatch(t *env.Table, pm *mem.Physmem, sc Syscaller, cur *env.Env, vector, faultVa uint32) (resched bool) {
	switch {
	case vector == defs.PgFault:
		if err := Pagefault(t, pm, cur, faultVa); err != 0 {
			klog.WithEnv(uint32(cur.Id)).Warnf("unhandled page fault, destroying")
			t.Destroy(cur.Id)
			return true
		}
		return false

	case vector == defs.Syscall:
		cur.Tf.Eax = sc.Dispatch(cur, &cur.Tf)
		return false

	case vector == defs.IntTimer:
		return true

	case vector == defs.IntSpurious:
		klog.Debugf("spurious irq7")
		return false

	case vector == defs.GPFault, vector == defs.UD, vector == defs.DivZero:
		klog.WithEnv(uint32(cur.Id)).Warnf("fatal trap %d, destroying", vector)
		t.Destroy(cur.Id)
		return true

	default:
		klog.WithEnv(uint32(cur.Id)).Warnf("unexpected trap vector %d, destroying", vector)
		t.Destroy(cur.Id)
		return true
	}
}

// uframeSize is sizeof(UTrapframe) on the wire: one uint32 fault_va,
// one uint32 err, then a full Trapframe. No inc/trap.h made it into
// the retrieved sources to size the embedded Trapframe against, so
// this counts env.TrapFrame's own fields instead (56 bytes, unpadded;
// see DESIGN.md).
const uframeSize = 4 + 4 + 56

// Pagefault implements the kernel-side half of the upcall contract
// (spec.md §4.4): if cur has no pgfault upcall installed, or the new
// frame would not lie in present, user-writable memory, it returns
// Inval and Dispatch destroys cur; otherwise a UTrapframe is built on the user
// exception stack -- below UXSTACKTOP normally, or immediately below
// the current %esp minus a 4-byte gap if the fault happened while
// already running on the exception stack (the recursive-fault case
// original_source/kern/trap.c's page_fault_handler detects via esp's
// membership in [UXSTACKTOP-PGSIZE, UXSTACKTOP)).
func Pagefault(t *env.Table, pm *mem.Physmem, cur *env.Env, faultVa uint32) defs.Err_t {
	if cur.PgfaultUpcall == 0 {
		return defs.Inval
	}

	var stackTop uint32
	onExceptionStack := cur.Tf.Esp >= kconfig.UXSTACKTOP-kconfig.PGSIZE && cur.Tf.Esp < kconfig.UXSTACKTOP
	if onExceptionStack {
		stackTop = cur.Tf.Esp - 4
	} else {
		stackTop = kconfig.UXSTACKTOP
	}

	dst := stackTop - uframeSize
	if !framePresent(pm, cur, dst, stackTop) {
		return defs.Inval
	}

	cur.Utf = env.UTrapframe{
		Fault_va: faultVa,
		Err:      cur.Tf.ErrCode,
		Regs:     cur.Tf,
	}
	cur.Tf.Esp = dst
	cur.Tf.Eip = cur.PgfaultUpcall
	return 0
}

// framePresent reports whether every page spanning [lo, hi) is
// mapped present, user-accessible and writable -- spec.md §4.4 step 4
// requires the whole new frame satisfy this before it is written,
// not merely its first page.
func framePresent(pm *mem.Physmem, cur *env.Env, lo, hi uint32) bool {
	first := kconfig.Pgrounddown(lo)
	last := kconfig.Pgrounddown(hi - 1)
	for pg := first; pg <= last; pg += kconfig.PGSIZE {
		pte := vm.Lookup(pm, cur.Pgdir, pg)
		if pte == nil || *pte&(mem.PteP|mem.PteU|mem.PteW) != mem.PteP|mem.PteU|mem.PteW {
			return false
		}
	}
	return true
}
