// Package pfault is the user-level copy-on-write page-fault handler
// (half of component I), grounded on original_source/lib/fork.c's
// pgfault: on a write fault to a COW page, stage a private copy at a
// scratch address, then remap it over the fault address.
package pfault

import (
	"fmt"

	"github.com/mcorley/jos/env"
	"github.com/mcorley/jos/kconfig"
	"github.com/mcorley/jos/mem"
	"github.com/mcorley/jos/syscall"
	"github.com/mcorley/jos/ulib"
	"github.com/mcorley/jos/vm"
)

// Handle runs the COW page-fault handler for self in response to the
// upcall frame self.Utf carries (set by trapentry.Pagefault). It
// panics on anything fork.c itself would panic on: a fault that isn't
// a write, or isn't to a COW page -- those indicate a bug in the
// faulting program, not a recoverable condition.
func Handle(sc *syscall.Table, pm *mem.Physmem, self *env.Env) {
	utf := self.Utf
	const FecWr = 1 << 1

	if utf.Err&FecWr == 0 {
		panic("pfault: faulting access not a write")
	}

	va := kconfig.Pgrounddown(utf.Fault_va)
	pte := vm.Lookup(pm, self.Pgdir, va)
	if pte == nil || *pte&mem.PteCow == 0 {
		panic("pfault: faulting access not to a copy-on-write page")
	}

	perm := mem.PteP | mem.PteU | mem.PteW
	if err := ulib.PageAlloc(sc, self, 0, kconfig.PFTEMP, perm); err != 0 {
		panic(fmt.Sprintf("pfault: page_alloc: %v", err))
	}

	scratch := pm.Bytes(*vm.Lookup(pm, self.Pgdir, kconfig.PFTEMP) & mem.PteAddr)
	orig := pm.Bytes(*pte & mem.PteAddr)
	copy(scratch, orig)

	if err := ulib.PageMap(sc, self, 0, kconfig.PFTEMP, 0, va, perm); err != 0 {
		panic(fmt.Sprintf("pfault: page_map: %v", err))
	}
	if err := ulib.PageUnmap(sc, self, 0, kconfig.PFTEMP); err != 0 {
		panic(fmt.Sprintf("pfault: page_unmap: %v", err))
	}
}
