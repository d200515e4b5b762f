// Package fork is the user-level copy-on-write fork (the other half of
// component I), grounded on original_source/lib/fork.c's fork() and
// duppage(): exofork a child, duplicate every writable or COW page
// below the exception stack as a shared COW mapping in both parent
// and child, give the child its own private exception-stack page, and
// start it running.
package fork

import (
	"github.com/mcorley/jos/defs"
	"github.com/mcorley/jos/env"
	"github.com/mcorley/jos/kconfig"
	"github.com/mcorley/jos/mem"
	"github.com/mcorley/jos/syscall"
	"github.com/mcorley/jos/ulib"
	"github.com/mcorley/jos/vm"
)

// PgfaultUpcallEntry is the user entry point installed on both the
// parent (by whoever first calls Fork) and every child; a real build
// points this at the assembly trampoline lib/pfentry.S installs
// (spec.md §4.9a). There is no assembler here to target, so the value
// is only stored as the upcall address; tests pass an arbitrary
// address and call pfault.Handle directly.
type PgfaultUpcallEntry = uint32

// duppage maps page pn from parent into child at the same address.
// Writable or already-COW pages become COW in both; read-only pages
// are mapped as-is, following fork.c's duppage exactly.
func duppage(sc *syscall.Table, pm *mem.Physmem, parent *env.Env, child defs.Id, va uint32) defs.Err_t {
	pte := vm.Lookup(pm, parent.Pgdir, va)
	if pte == nil || *pte&mem.PteP == 0 {
		return 0
	}
	var perm mem.Pa_t
	if *pte&mem.PteW != 0 || *pte&mem.PteCow != 0 {
		perm = mem.PteP | mem.PteU | mem.PteCow
	} else {
		perm = mem.PteP | mem.PteU
	}
	if err := ulib.PageMap(sc, parent, 0, va, child, va, perm); err != 0 {
		return err
	}
	if perm&mem.PteCow != 0 {
		if err := ulib.PageMap(sc, parent, 0, va, 0, va, perm); err != 0 {
			return err
		}
	}
	return 0
}

// Fork creates a child of parent, sharing parent's writable pages
// copy-on-write, and returns the child's id. The caller is
// responsible for resuming the child separately -- in a real fork()
// this is the same call returning twice (0 in the child); the hosted
// simulation can't do that, so the child's own continuation is left
// to whoever drives the scheduler, exactly like any other newly
// Alloc'd environment.
func Fork(sc *syscall.Table, pm *mem.Physmem, parent *env.Env, upcall PgfaultUpcallEntry) (defs.Id, defs.Err_t) {
	if err := ulib.SetPgfaultUpcall(sc, parent, 0, upcall); err != 0 {
		return 0, err
	}

	child, err := ulib.Exofork(sc, parent)
	if err != 0 {
		return 0, err
	}

	exceptionPage := uint32(kconfig.UXSTACKTOP - kconfig.PGSIZE)
	vm.ForEachUserPage(pm, parent.Pgdir, kconfig.UTOP, func(va uint32, pa mem.Pa_t, perm mem.Pa_t) {
		if err != 0 || va == exceptionPage {
			return
		}
		err = duppage(sc, pm, parent, child, va)
	})
	if err != 0 {
		return 0, err
	}

	if err := ulib.PageAlloc(sc, parent, child, exceptionPage, mem.PteP|mem.PteU|mem.PteW); err != 0 {
		return 0, err
	}
	if err := ulib.SetPgfaultUpcall(sc, parent, child, upcall); err != 0 {
		return 0, err
	}
	if err := ulib.SetStatus(sc, parent, child, defs.StatusRunnable); err != 0 {
		return 0, err
	}

	return child, 0
}
