// Package kconfig holds the build-time constants that size and lay out
// the kernel: the environment table capacity and the fixed addresses
// that separate user and kernel memory.
package kconfig

const (
	// PGSHIFT is the page size in bits; PGSIZE the page size in bytes.
	PGSHIFT = 12
	PGSIZE  = 1 << PGSHIFT
	PGOFF   = PGSIZE - 1

	// NENV is the number of slots in the environment table.
	NENV = 1024

	// UTOP separates user-accessible memory (below) from kernel-only
	// memory (at or above). Mappings at or above UTOP are never visible
	// to user mode.
	UTOP = 0xf0000000

	// UXSTACKTOP is the top of the user exception stack. The single
	// page below it, [UXSTACKTOP-PGSIZE, UXSTACKTOP), is private and
	// always writable -- it is never COW.
	UXSTACKTOP = UTOP

	// USTACKTOP is one page below UXSTACKTOP: the regular user stack
	// grows down from here, leaving the exception stack page private.
	USTACKTOP = UXSTACKTOP - PGSIZE

	// PFTEMP is a scratch address the COW page-fault handler uses to
	// stage a fresh copy of a faulting page before remapping it over
	// the original. It sits well below the stack region so it can
	// never collide with USTACKTOP/UXSTACKTOP.
	PFTEMP = USTACKTOP - 0x400000
)

// Pgroundup rounds v up to the nearest page boundary.
func Pgroundup(v uint32) uint32 {
	return (v + PGOFF) &^ PGOFF
}

// Pgrounddown rounds v down to the nearest page boundary.
func Pgrounddown(v uint32) uint32 {
	return v &^ PGOFF
}

// Pgaligned reports whether v lies on a page boundary.
func Pgaligned(v uint32) bool {
	return v&PGOFF == 0
}
