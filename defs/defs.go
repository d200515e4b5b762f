package defs

// Id is a generational environment handle: low bits are the table
// index, high bits a per-slot generation counter. 0 means "none".
type Id uint32

// Trap vector numbers dispatched by trapentry.Dispatch (spec.md §4.3).
// Numbering follows the teacher's defs.go convention of naming
// architectural exceptions and a single syscall vector.
const (
	DivZero = 0
	UD      = 6
	GPFault = 13
	PgFault = 14

	IrqBase     = 32
	IrqTimer    = 0
	IrqSpurious = 7
	IntTimer    = IrqBase + IrqTimer
	IntSpurious = IrqBase + IrqSpurious

	Syscall = 48
)

// GdUt is the user code segment selector at privilege level 3; used by
// EnvSetTrapframe to force user mode on an installed trap frame.
const GdUt = 0x18 | 3

// FlIf is the interrupt-enable bit of EFLAGS.
const FlIf = 1 << 9
