// Package vm implements address-space primitives (component B): a
// two-level x86 page directory/page table walk, and Lookup/Insert/
// Remove operations that the syscall layer builds page_alloc,
// page_map and page_unmap from.
//
// Grounded on the teacher's (mit-pdos-biscuit) vm/pmap.go walk idiom
// (_instpg, pmap_pgtbl, Pmap_lookup) generalized from its 4-level
// x86-64 table down to the 2-level x86-32 layout spec.md §4.1
// describes, and with the SMP-only machinery dropped: no per-CPU TLB
// shootdown IPIs, no PS (superpage) handling, no kpages bookkeeping --
// one CPU, one kind of page.
package vm

import (
	"fmt"
	"unsafe"

	"github.com/mcorley/jos/mem"
)

const (
	NPDENTRIES = 1024
	PDXSHIFT   = 22
	PTXSHIFT   = 12
)

// Table is a page directory or page table: 1024 four-byte entries,
// exactly one physical frame.
type Table [NPDENTRIES]mem.Pa_t

func pdx(va uint32) uint32 { return (va >> PDXSHIFT) & (NPDENTRIES - 1) }
func ptx(va uint32) uint32 { return (va >> PTXSHIFT) & (NPDENTRIES - 1) }

// asTable reinterprets a physical frame's bytes as a Table. Physical
// memory is backed by an arena of mem.Page rather than real RAM, so
// this is the hosted-simulation analogue of the teacher's direct map
// (mem.Vdirect + phys) cast through unsafe.Pointer.
func asTable(pm *mem.Physmem, pa mem.Pa_t) *Table {
	b := pm.Bytes(pa)
	return (*Table)(unsafe.Pointer(&b[0]))
}

// NewPagedir allocates and zeroes a fresh, empty page directory and
// returns its physical address with one reference held.
func NewPagedir(pm *mem.Physmem) (mem.Pa_t, bool) {
	pa, ok := pm.RefpgNew()
	if !ok {
		return 0, false
	}
	pm.Refup(pa)
	return pa, true
}

// instpg allocates a fresh page table page, installs it at tbl[idx]
// with perms, and returns the new PDE.
func instpg(pm *mem.Physmem, tbl *Table, idx uint32, perms mem.Pa_t) (mem.Pa_t, bool) {
	pa, ok := pm.RefpgNew()
	if !ok {
		return 0, false
	}
	pm.Refup(pa)
	pte := pa | perms | mem.PteP
	tbl[idx] = pte
	return pte, true
}

// walk returns a pointer to the PTE for va within pgdir, creating
// intermediate page table pages along the way when create is true.
// It returns nil if the page table covering va doesn't exist and create
// is false, or if create is true but allocation failed. Once the page
// table exists, the returned entry may be one that is not present.
func walk(pm *mem.Physmem, pgdir mem.Pa_t, va uint32, create bool, perms mem.Pa_t) *mem.Pa_t {
	pd := asTable(pm, pgdir)
	pdeIdx := pdx(va)
	pde := pd[pdeIdx]
	if pde&mem.PteP == 0 {
		if !create {
			return nil
		}
		npde, ok := instpg(pm, pd, pdeIdx, perms)
		if !ok {
			return nil
		}
		pde = npde
	} else if perms&mem.PteU != 0 && pde&mem.PteU == 0 {
		pd[pdeIdx] = pde | mem.PteU
	}
	pt := asTable(pm, pde&mem.PteAddr)
	return &pt[ptx(va)]
}

// Lookup returns the PTE for va in pgdir, or nil if no page table
// covers va. The PTE is returned even when its present bit is clear, so
// callers check PteP themselves.
func Lookup(pm *mem.Physmem, pgdir mem.Pa_t, va uint32) *mem.Pa_t {
	return walk(pm, pgdir, va, false, 0)
}

// Insert maps va to pa in pgdir with the given permission bits,
// replacing any existing mapping. It takes a reference on pa and
// drops one from whatever va used to map to (spec.md §4.1 Insert).
func Insert(pm *mem.Physmem, pgdir mem.Pa_t, va uint32, pa mem.Pa_t, perms mem.Pa_t) bool {
	pte := walk(pm, pgdir, va, true, perms|mem.PteU)
	if pte == nil {
		return false
	}
	pm.Refup(pa)
	if *pte&mem.PteP != 0 {
		oldpa := *pte & mem.PteAddr
		if oldpa != pa {
			pm.Refdown(oldpa)
		} else {
			// remapping the same frame to itself at different
			// perms: undo the speculative Refup above.
			pm.Refdown(pa)
		}
	}
	*pte = pa | perms | mem.PteP
	return true
}

// Remove unmaps va from pgdir, if it is mapped, dropping a reference
// on the underlying frame.
func Remove(pm *mem.Physmem, pgdir mem.Pa_t, va uint32) {
	pte := walk(pm, pgdir, va, false, 0)
	if pte == nil || *pte&mem.PteP == 0 {
		return
	}
	pa := *pte & mem.PteAddr
	pm.Refdown(pa)
	*pte = 0
}

// AssertUnmapped panics if va is mapped in pgdir. It is a sanity-check
// helper; no test or teardown path in this module calls it.
func AssertUnmapped(pm *mem.Physmem, pgdir mem.Pa_t, va uint32) {
	if pte := Lookup(pm, pgdir, va); pte != nil && *pte&mem.PteP != 0 {
		panic(fmt.Sprintf("va %#x is mapped", va))
	}
}

// FreePagedir drops the reference on every mapped leaf page below
// utop, every page table page, and finally pgdir itself. Grounded on
// the teacher's pmfree/Uvmfree_inner, simplified to the one
// two-level layout this package implements.
func FreePagedir(pm *mem.Physmem, pgdir mem.Pa_t, utop uint32) {
	pd := asTable(pm, pgdir)
	for pdeIdx := uint32(0); pdeIdx < pdx(utop)+1; pdeIdx++ {
		pde := pd[pdeIdx]
		if pde&mem.PteP == 0 {
			continue
		}
		ptpa := pde & mem.PteAddr
		pt := asTable(pm, ptpa)
		for ptx, pte := range pt {
			va := pdeIdx<<PDXSHIFT | uint32(ptx)<<PTXSHIFT
			if pte&mem.PteP != 0 && va < utop {
				pm.Refdown(pte & mem.PteAddr)
			}
		}
		pd[pdeIdx] = 0
		pm.Refdown(ptpa)
	}
	pm.Refdown(pgdir)
}

// ForEachUserPage visits every present, user-accessible mapping below
// utop in address order. It stands in for the self-mapped page table
// (UVPT) that JOS's user-mode fork() peeks through directly; here the
// page directory is still kernel-side state; fork reaches it the same
// way every other syscall-layer operation does, through this package.
func ForEachUserPage(pm *mem.Physmem, pgdir mem.Pa_t, utop uint32, visit func(va uint32, pa mem.Pa_t, perm mem.Pa_t)) {
	pd := asTable(pm, pgdir)
	for pdeIdx := uint32(0); pdeIdx < pdx(utop)+1; pdeIdx++ {
		pde := pd[pdeIdx]
		if pde&mem.PteP == 0 {
			continue
		}
		pt := asTable(pm, pde&mem.PteAddr)
		for ptx, pte := range pt {
			if pte&mem.PteP == 0 || pte&mem.PteU == 0 {
				continue
			}
			va := pdeIdx<<PDXSHIFT | uint32(ptx)<<PTXSHIFT
			if va >= utop {
				continue
			}
			visit(va, pte&mem.PteAddr, pte&mem.PteUser)
		}
	}
}
