package defs

// Err_t is the kernel's own error type: syscalls return a signed int,
// so kernel code threads this type through instead of the builtin
// error until it reaches a boundary (CLI, tests) that wants one.
type Err_t int32

// Error implements the error interface so an Err_t can cross into
// idiomatic Go code (the CLI, tests) without a second error type.
func (e Err_t) Error() string {
	if s, ok := errnames[e]; ok {
		return s
	}
	return "unknown error"
}

const (
	// BadEnv: envid doesn't currently exist, or the caller lacks
	// permission to name it (the descendant check in env.Table.Lookup).
	BadEnv Err_t = -1 - iota
	// Inval: a bad argument -- unaligned va, va >= UTOP, a disallowed
	// permission bit, a bad status value.
	Inval
	// NoMem: the physical allocator or a page-table allocation failed.
	NoMem
	// NoFreeEnv: the environment table has no FREE slot.
	NoFreeEnv
	// IpcNotRecv: the IPC target is not currently blocked in Recv, or
	// another sender already won this round.
	IpcNotRecv
)

const (
	// CblFull: the NIC transmit DMA ring has no free descriptor.
	CblFull Err_t = -100 - iota
	// CblEmpty: the NIC transmit ring has nothing queued.
	CblEmpty
	// RfaFull: the NIC receive ring has no free descriptor to post.
	RfaFull
	// RfaEmpty: the NIC receive ring has no completed frame.
	RfaEmpty
)

var errnames = map[Err_t]string{
	BadEnv:     "bad environment",
	Inval:      "invalid argument",
	NoMem:      "out of memory",
	NoFreeEnv:  "no free environment",
	IpcNotRecv: "ipc target not receiving",
	CblFull:    "transmit ring full",
	CblEmpty:   "transmit ring empty",
	RfaFull:    "receive ring full",
	RfaEmpty:   "receive ring empty",
}
