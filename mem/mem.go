// Package mem is the physical page allocator (component A): a
// refcounted freelist over a fixed arena, plus a direct byte-level
// view of any frame so vm can read and write page contents without
// knowing how physical memory is backed.
//
// The teacher (mit-pdos-biscuit) backs this with real physical RAM
// discovered at boot and a per-CPU freelist cache for SMP scalability.
// This module targets a single-CPU 32-bit machine (spec.md §5: "no
// locks are required at this machine-size"), so the per-CPU caching,
// the TLB-shootdown cpu mask and the pmap-specific free class are
// gone; what's left is the teacher's core refcounted-freelist idiom.
package mem

import "github.com/mcorley/jos/kconfig"

const (
	PGSHIFT = kconfig.PGSHIFT
	PGSIZE  = kconfig.PGSIZE
)

// Pa_t is a physical address: an index into the arena, always
// page-aligned when naming a frame.
type Pa_t uint32

// Permission/status bits carried in a page table entry. COW is the
// one OS-defined bit (spec.md §3 "Permission bits on a mapping"); the
// rest name real x86 PTE bits.
const (
	PteP   Pa_t = 1 << 0 // present
	PteW   Pa_t = 1 << 1 // writable
	PteU   Pa_t = 1 << 2 // user-accessible
	PteCow Pa_t = 1 << 9 // OS-defined: "conceptually writable"

	PgOffset Pa_t = PGSIZE - 1
	PteAddr  Pa_t = ^PgOffset

	// PteUser is every permission bit a user syscall may legally set.
	PteUser = PteP | PteW | PteU | PteCow
)

// Page is the fixed-size content of one physical frame.
type Page [PGSIZE]byte

// physpg_t is the per-frame bookkeeping record: a refcount and a
// freelist link.
type physpg_t struct {
	refcnt int32
	nexti  uint32 // index of next free frame; freeSentinel if none
}

const freeSentinel = ^uint32(0)

// Physmem is one machine's physical memory. Unlike the teacher's
// package-level singleton, each NewPhysmem call builds an independent
// instance (a kernel.Machine or a test owns its own), and it carries
// no locks -- per spec.md §5, the
// environment table and physical allocator are touched only from the
// single kernel execution stream.
type Physmem struct {
	arena []Page
	pgs   []physpg_t
	freei uint32
	nfree int
}

// NewPhysmem reserves npages frames, all initially free.
func NewPhysmem(npages int) *Physmem {
	p := &Physmem{
		arena: make([]Page, npages),
		pgs:   make([]physpg_t, npages),
	}
	for i := range p.pgs {
		next := freeSentinel
		if i+1 < npages {
			next = uint32(i + 1)
		}
		p.pgs[i] = physpg_t{refcnt: 0, nexti: next}
	}
	if npages > 0 {
		p.freei = 0
		p.nfree = npages
	} else {
		p.freei = freeSentinel
	}
	return p
}

func (p *Physmem) idx(pa Pa_t) uint32 {
	if pa&PgOffset != 0 {
		panic("unaligned physical address")
	}
	return uint32(pa) >> PGSHIFT
}

// Refcnt returns the current reference count of the frame at pa.
func (p *Physmem) Refcnt(pa Pa_t) int {
	return int(p.pgs[p.idx(pa)].refcnt)
}

// Refup increments pa's refcount. Every mapping of a frame holds one
// reference (spec.md §3 Lifetime/ownership).
func (p *Physmem) Refup(pa Pa_t) {
	pg := &p.pgs[p.idx(pa)]
	pg.refcnt++
	if pg.refcnt <= 0 {
		panic("refup: non-positive refcount")
	}
}

// Refdown decrements pa's refcount, returning the frame to the
// freelist and reporting true when it reaches zero.
func (p *Physmem) Refdown(pa Pa_t) bool {
	idx := p.idx(pa)
	pg := &p.pgs[idx]
	pg.refcnt--
	if pg.refcnt < 0 {
		panic("refdown: negative refcount")
	}
	if pg.refcnt == 0 {
		pg.nexti = p.freei
		p.freei = idx
		p.nfree++
		return true
	}
	return false
}

// refpg_new pops a free frame off the freelist, without zeroing it
// and without taking a reference -- the caller (usually via Insert)
// is responsible for the first Refup.
func (p *Physmem) refpg_new() (Pa_t, bool) {
	if p.freei == freeSentinel {
		return 0, false
	}
	idx := p.freei
	pg := &p.pgs[idx]
	if pg.refcnt != 0 {
		panic("free frame has live refs")
	}
	p.freei = pg.nexti
	p.nfree--
	return Pa_t(idx) << PGSHIFT, true
}

// RefpgNewNozero allocates a frame with unspecified contents.
func (p *Physmem) RefpgNewNozero() (Pa_t, bool) {
	return p.refpg_new()
}

// RefpgNew allocates a zero-filled frame (spec.md §4.5 page_alloc:
// "contents are set to 0").
func (p *Physmem) RefpgNew() (Pa_t, bool) {
	pa, ok := p.refpg_new()
	if !ok {
		return 0, false
	}
	pg := p.Bytes(pa)
	for i := range pg {
		pg[i] = 0
	}
	return pa, true
}

// Bytes returns a direct, mutable view of the frame's full contents.
// This plays the role of the teacher's direct map (mem.Dmap): vm
// dereferences page table entries and page contents through it
// without needing its own notion of physical memory.
func (p *Physmem) Bytes(pa Pa_t) []byte {
	idx := p.idx(pa)
	return p.arena[idx][:]
}

// NPages reports the arena's total frame count, used by tests and the
// CLI's allocation-accounting report.
func (p *Physmem) NPages() int { return len(p.arena) }

// NFree reports the number of frames currently on the freelist.
func (p *Physmem) NFree() int { return p.nfree }
