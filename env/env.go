// Package env implements the environment table (component C): a
// fixed-size array of environments addressed by a generational id, the
// descendant-chain permission check that gates Lookup, and the
// lifecycle transitions every syscall and trap handler drives.
//
// The teacher (mit-pdos-biscuit) keeps processes in a hashtable_t
// keyed by a monotonically increasing pid (proc/proc.go's ptable_t);
// that scales better for a general-purpose kernel but loses the
// property this exokernel needs: an id that is cheap to validate and
// that can never be silently reused to mean a different environment.
// So the table itself follows spec.md's own algorithm -- the
// generational index scheme original_source/kern/syscall.c's
// envid2env/ENVX rely on -- rather than the teacher's hashtable.
package env

import (
	"github.com/mcorley/jos/defs"
	"github.com/mcorley/jos/kconfig"
	"github.com/mcorley/jos/mem"
	"github.com/mcorley/jos/vm"
)

const (
	logNenv  = 10 // kconfig.NENV == 1 << logNenv
	idxMask  = kconfig.NENV - 1
	genShift = logNenv
)

// Env is one environment's complete state: address space, saved
// trapframe, status, and the IPC rendezvous fields a blocked receiver
// waits on.
type Env struct {
	Id       defs.Id
	ParentId defs.Id
	Status   defs.Status
	Pgdir    mem.Pa_t
	Runs     uint32

	Tf TrapFrame

	// Utf holds the most recently constructed upcall frame (see
	// trapentry.Pagefault); user code "reads" it by resuming at
	// PgfaultUpcall with Tf.Esp pointing at where it would live on the
	// exception stack.
	Utf UTrapframe

	// PgfaultUpcall is the user entry point installed by
	// env_set_pgfault_upcall; zero means "none installed" (spec.md
	// §4.4: an env with no upcall is destroyed on fault).
	PgfaultUpcall uint32

	// IPC rendezvous state (spec.md §4.6). IpcRecving and IpcDstva
	// describe a pending Recv; IpcFrom, IpcValue and IpcPerm hold the
	// delivery that cleared IpcRecving.
	IpcRecving bool
	IpcFrom    defs.Id
	IpcValue   uint32
	IpcDstva   uint32
	// IpcPerm is the permission of the page granted by the sender, or
	// 0 if no page was transferred this rendezvous.
	IpcPerm mem.Pa_t
}

// TrapFrame is the saved user register state (spec.md §6): the
// teacher's defs.go names an analogous struct for its own ABI; this
// one matches the 32-bit protected-mode layout the spec's trap
// dispatch and env_set_trapframe describe.
type TrapFrame struct {
	Edi, Esi, Ebp, Ebx, Edx, Ecx, Eax uint32
	Es, Ds                            uint16
	TrapNo                            uint32
	ErrCode                           uint32
	Eip                               uint32
	Cs                                uint16
	Eflags                            uint32
	Esp                               uint32
	Ss                                uint16
}

// UTrapframe is pushed onto the user exception stack before invoking
// the installed page-fault upcall (spec.md §4.4), mirroring
// original_source/inc/trap.h's UTrapframe layout: faulting address,
// error code, then a full copy of the interrupted trapframe.
type UTrapframe struct {
	Fault_va uint32
	Err      uint32
	Regs     TrapFrame
}

// Table is the fixed-size environment table (spec.md §3 "at most
// kconfig.NENV live environments at a time").
type Table struct {
	pm   *mem.Physmem
	envs [kconfig.NENV]Env
	gens [kconfig.NENV]uint32
	// next threads a singly linked freelist through FREE slots,
	// following the teacher's freelist-over-an-array idiom from
	// mem.Physmem. Kept separate from Env fields so the sentinel
	// doesn't have to be shoehorned into the unsigned Id type.
	next     [kconfig.NENV]int
	freeHead int
}

const noFree = -1

// NewTable builds an environment table with every slot FREE.
func NewTable(pm *mem.Physmem) *Table {
	t := &Table{pm: pm}
	for i := range t.envs {
		t.envs[i].Status = defs.StatusFree
		t.gens[i] = 1
		t.next[i] = i + 1
	}
	t.next[kconfig.NENV-1] = noFree
	t.freeHead = 0
	return t
}

func mkid(idx, gen int) defs.Id {
	return defs.Id(uint32(gen)<<genShift | uint32(idx))
}

func splitid(id defs.Id) (idx, gen int) {
	return int(uint32(id) & idxMask), int(uint32(id) >> genShift)
}

// Alloc takes a FREE slot off the freelist, gives it a fresh address
// space, and marks it NOT_RUNNABLE (spec.md §4.5 exofork: "begins
// life NOT_RUNNABLE"). It fails with NoFreeEnv if the table is full
// or NoMem if the page directory allocation fails.
func (t *Table) Alloc(parent defs.Id) (defs.Id, defs.Err_t) {
	if t.freeHead == noFree {
		return 0, defs.NoFreeEnv
	}
	idx := t.freeHead
	e := &t.envs[idx]
	t.freeHead = t.next[idx]

	pgdir, ok := vm.NewPagedir(t.pm)
	if !ok {
		// put the slot back
		t.next[idx] = t.freeHead
		t.freeHead = idx
		return 0, defs.NoMem
	}

	t.gens[idx]++
	id := mkid(idx, int(t.gens[idx]))

	*e = Env{
		Id:       id,
		ParentId: parent,
		Status:   defs.StatusNotRunnable,
		Pgdir:    pgdir,
	}
	return id, 0
}

// Lookup resolves id to its Env, enforcing the descendant-chain
// permission check: checkPerm is the caller's own id, and the lookup
// fails with BadEnv unless id names checkPerm itself or one of its
// descendants (spec.md §4.2 Lookup permission rule). Passing a zero
// checkPerm (the kernel's own identity) skips the check.
func (t *Table) Lookup(id, checkPerm defs.Id) (*Env, defs.Err_t) {
	if id == 0 {
		if checkPerm == 0 {
			return nil, defs.BadEnv
		}
		return t.Lookup(checkPerm, 0)
	}
	idx, gen := splitid(id)
	if idx < 0 || idx >= kconfig.NENV {
		return nil, defs.BadEnv
	}
	e := &t.envs[idx]
	if e.Status == defs.StatusFree || int(t.gens[idx]) != gen {
		return nil, defs.BadEnv
	}
	if checkPerm != 0 && !t.isDescendant(e.Id, checkPerm) {
		return nil, defs.BadEnv
	}
	return e, 0
}

// isDescendant reports whether target is checker or a descendant of
// checker, walking ParentId links. The chain is bounded by
// kconfig.NENV, so this always terminates.
func (t *Table) isDescendant(target, checker defs.Id) bool {
	id := target
	for i := 0; i < kconfig.NENV; i++ {
		if id == checker {
			return true
		}
		if id == 0 {
			return false
		}
		idx, gen := splitid(id)
		e := &t.envs[idx]
		if int(t.gens[idx]) != gen {
			return false
		}
		id = e.ParentId
	}
	return false
}

// Destroy tears down id's address space and returns its slot to the
// freelist. Safe to call on an env already marked DYING.
func (t *Table) Destroy(id defs.Id) defs.Err_t {
	idx, gen := splitid(id)
	if idx < 0 || idx >= kconfig.NENV || int(t.gens[idx]) != gen {
		return defs.BadEnv
	}
	e := &t.envs[idx]
	if e.Status == defs.StatusFree {
		return defs.BadEnv
	}
	vm.FreePagedir(t.pm, e.Pgdir, kconfig.UTOP)
	e.Status = defs.StatusFree
	t.next[idx] = t.freeHead
	t.freeHead = idx
	return 0
}

// SetStatus validates and installs a new status (spec.md §4.5
// env_set_status: only RUNNABLE or NOT_RUNNABLE are user-settable).
func (t *Table) SetStatus(e *Env, st defs.Status) defs.Err_t {
	if st != defs.StatusRunnable && st != defs.StatusNotRunnable {
		return defs.Inval
	}
	e.Status = st
	return 0
}

// All returns every live (non-FREE) environment, in table order, for
// the scheduler's round-robin scan and the CLI's inspection report.
func (t *Table) All() []*Env {
	out := make([]*Env, 0, kconfig.NENV)
	for i := range t.envs {
		if t.envs[i].Status != defs.StatusFree {
			out = append(out, &t.envs[i])
		}
	}
	return out
}

// Idx returns id's table index, for callers (the scheduler) that need
// a stable position to resume scanning from.
func Idx(id defs.Id) int {
	idx, _ := splitid(id)
	return idx
}

// EnvAt returns the slot at table index idx directly, regardless of
// generation; used by the scheduler, which iterates by position.
func (t *Table) EnvAt(idx int) *Env {
	return &t.envs[idx]
}
