// Package syscall implements the capability-checked syscall surface
// (component E): one dispatch entry point, a six-register calling
// convention, and the validation order and error codes
// original_source/kern/syscall.c's syscall() and its sys_* functions
// define. The teacher's kernel/syscall.go contributes the dispatch
// idiom (a table of numbers driving a switch) rather than any of its
// Linux-shaped argument semantics, which don't apply here.
package syscall

import (
	"unsafe"

	"github.com/mcorley/jos/defs"
	"github.com/mcorley/jos/env"
	"github.com/mcorley/jos/ipc"
	"github.com/mcorley/jos/kconfig"
	"github.com/mcorley/jos/klog"
	"github.com/mcorley/jos/mem"
	"github.com/mcorley/jos/netglue"
	"github.com/mcorley/jos/sched"
	"github.com/mcorley/jos/vm"
)

// Console is the narrow interface cputs/cgetc need; the CLI harness
// supplies the concrete implementation (a terminal or a test buffer).
type Console interface {
	Puts(s string)
	Getc() (byte, bool)
}

// Clock reports milliseconds since boot for sys_time_msec.
type Clock interface {
	Millis() uint64
}

// Table is the syscall dispatcher: it closes over the kernel-global
// state (the environment table, the physical allocator, the
// scheduler) that every service needs.
type Table struct {
	Envs    *env.Table
	Pm      *mem.Physmem
	Sched   *sched.Sched
	Console Console
	Clock   Clock

	// Tx/Rx back sys_xmit_frame/sys_rx; nil rings make those syscalls
	// always report the ring as full/empty, which is a valid state
	// for a machine never wired to a simulated NIC.
	Tx *netglue.Ring
	Rx *netglue.Ring
}

// regs is the six-register argument convention spec.md §4.5 uses,
// matching original_source/kern/syscall.c's syscall(envid_t, uint32_t
// num, a1..a5) signature.
type regs struct{ a1, a2, a3, a4, a5 uint32 }

// Dispatch is the entry point trapentry.Dispatch calls on a Syscall
// vector. caller is the environment that trapped; tf its trapframe,
// whose general-purpose registers hold the syscall number and
// arguments on entry (spec.md §4.5's calling convention). It returns
// the value to install in %eax: a non-negative result or a negative
// Err_t, exactly as original_source's syscall() does.
func (t *Table) Dispatch(caller *env.Env, tf *env.TrapFrame) uint32 {
	num := tf.Eax
	r := regs{tf.Edx, tf.Ecx, tf.Ebx, tf.Edi, tf.Esi}

	var ret int32
	switch num {
	case defs.SysCputs:
		ret = t.sysCputs(caller, r.a1, r.a2)
	case defs.SysCgetc:
		ret = t.sysCgetc()
	case defs.SysGetenvid:
		ret = int32(caller.Id)
	case defs.SysEnvDestroy:
		ret = int32(t.sysEnvDestroy(caller, defs.Id(r.a1)))
	case defs.SysYield:
		t.Sched.Yield()
		return 0
	case defs.SysExofork:
		ret = t.sysExofork(caller)
	case defs.SysEnvSetStatus:
		ret = int32(t.sysEnvSetStatus(caller, defs.Id(r.a1), defs.Status(r.a2)))
	case defs.SysEnvSetTrapframe:
		ret = int32(t.sysEnvSetTrapframe(caller, defs.Id(r.a1), r.a2))
	case defs.SysEnvSetPgfaultUpcall:
		ret = int32(t.sysEnvSetPgfaultUpcall(caller, defs.Id(r.a1), r.a2))
	case defs.SysPageAlloc:
		ret = int32(t.sysPageAlloc(caller, defs.Id(r.a1), r.a2, mem.Pa_t(r.a3)))
	case defs.SysPageMap:
		ret = int32(t.sysPageMap(caller, defs.Id(r.a1), r.a2, defs.Id(r.a3), r.a4, mem.Pa_t(r.a5)))
	case defs.SysPageUnmap:
		ret = int32(t.sysPageUnmap(caller, defs.Id(r.a1), r.a2))
	case defs.SysIpcTrySend:
		ret = int32(t.sysIpcTrySend(caller, defs.Id(r.a1), r.a2, r.a3, mem.Pa_t(r.a4)))
	case defs.SysIpcRecv:
		ret = int32(t.sysIpcRecv(caller, r.a1))
	case defs.SysTimeMsec:
		ret = int32(t.Clock.Millis())
	case defs.SysNicXmit:
		ret = int32(t.sysNicXmit(caller, r.a1, r.a2))
	case defs.SysNicRx:
		ret = int32(t.sysNicRx(caller, r.a1))
	default:
		klog.WithEnv(uint32(caller.Id)).Warnf("bad syscall number %d", num)
		ret = int32(defs.Inval)
	}
	return uint32(ret)
}

func (t *Table) resolve(caller *env.Env, id defs.Id) (*env.Env, defs.Err_t) {
	if id == 0 {
		return caller, 0
	}
	return t.Envs.Lookup(id, caller.Id)
}

// sysCputs requires the whole [va, va+length) range be present and
// user-readable, exactly as original_source/kern/syscall.c's
// user_mem_assert does for sys_cputs; on a bad pointer it destroys the
// caller outright and then returns Inval, which no live environment
// receives (spec.md §4.5, §7: "bad pointer passed to cputs ...
// environment destroyed").
func (t *Table) sysCputs(caller *env.Env, va, length uint32) int32 {
	if length > 1<<20 {
		return int32(defs.Inval)
	}
	buf := make([]byte, 0, length)
	for i := uint32(0); i < length; i++ {
		pte := vm.Lookup(t.Pm, caller.Pgdir, kconfig.Pgrounddown(va+i))
		if pte == nil || *pte&mem.PteP == 0 || *pte&mem.PteU == 0 {
			klog.WithEnv(uint32(caller.Id)).Warnf("bad cputs pointer %#x, destroying", va+i)
			t.Envs.Destroy(caller.Id)
			return int32(defs.Inval)
		}
		leaf := *pte & mem.PteAddr
		off := (va + i) & kconfig.PGOFF
		buf = append(buf, t.Pm.Bytes(leaf)[off])
	}
	t.Console.Puts(string(buf))
	return 0
}

func (t *Table) sysCgetc() int32 {
	c, ok := t.Console.Getc()
	if !ok {
		return 0
	}
	return int32(c)
}

func (t *Table) sysEnvDestroy(caller *env.Env, id defs.Id) defs.Err_t {
	target, err := t.resolve(caller, id)
	if err != 0 {
		return err
	}
	return t.Envs.Destroy(target.Id)
}

func (t *Table) sysExofork(caller *env.Env) int32 {
	child, err := t.Envs.Alloc(caller.Id)
	if err != 0 {
		return int32(err)
	}
	c, _ := t.Envs.Lookup(child, 0)
	c.Tf = caller.Tf
	c.Tf.Eax = 0 // the child sees exofork() return 0
	return int32(child)
}

func (t *Table) sysEnvSetStatus(caller *env.Env, id defs.Id, st defs.Status) defs.Err_t {
	target, err := t.resolve(caller, id)
	if err != 0 {
		return err
	}
	return t.Envs.SetStatus(target, st)
}

// sysEnvSetTrapframe installs the trap frame the caller has built at
// tfva into target, matching original_source/kern/syscall.c's
// sys_env_set_trapframe (e->env_tf = *tf), then forces the segment
// and interrupt-enable bits the kernel never lets a user frame clear
// (a user environment may not return to ring 0, or with interrupts
// disabled).
func (t *Table) sysEnvSetTrapframe(caller *env.Env, id defs.Id, tfva uint32) defs.Err_t {
	target, err := t.resolve(caller, id)
	if err != 0 {
		return err
	}
	pte := vm.Lookup(t.Pm, caller.Pgdir, kconfig.Pgrounddown(tfva))
	if pte == nil || *pte&mem.PteP == 0 || *pte&mem.PteU == 0 {
		return defs.Inval
	}
	leaf := *pte & mem.PteAddr
	off := tfva & kconfig.PGOFF
	tf := (*env.TrapFrame)(unsafe.Pointer(&t.Pm.Bytes(leaf)[off]))
	target.Tf = *tf
	target.Tf.Cs = defs.GdUt
	target.Tf.Eflags |= defs.FlIf
	return 0
}

func (t *Table) sysEnvSetPgfaultUpcall(caller *env.Env, id defs.Id, upcall uint32) defs.Err_t {
	target, err := t.resolve(caller, id)
	if err != 0 {
		return err
	}
	target.PgfaultUpcall = upcall
	return 0
}

// sysPageAlloc validates va and perm exactly as
// original_source/kern/syscall.c's sys_page_alloc does: va must be
// page-aligned and below UTOP, perm may not set bits outside
// mem.PteUser (PTE_U|PTE_W|PTE_P plus the OS-defined PTE_COW), and
// PTE_U|PTE_P must both be set.
func (t *Table) sysPageAlloc(caller *env.Env, id defs.Id, va uint32, perm mem.Pa_t) defs.Err_t {
	target, err := t.resolve(caller, id)
	if err != 0 {
		return err
	}
	if !validUva(va) {
		return defs.Inval
	}
	if perm&^mem.PteUser != 0 || perm&(mem.PteU|mem.PteP) != mem.PteU|mem.PteP {
		return defs.Inval
	}
	pa, ok := t.Pm.RefpgNew()
	if !ok {
		return defs.NoMem
	}
	if !vm.Insert(t.Pm, target.Pgdir, va, pa, perm|mem.PteP) {
		// RefpgNew hands back an unreferenced frame; nothing has
		// Refup'd it yet, so returning it to the freelist goes
		// through Refup+Refdown rather than a bare Refdown, which
		// would underflow 0 and panic.
		t.Pm.Refup(pa)
		t.Pm.Refdown(pa)
		return defs.NoMem
	}
	return 0
}

func (t *Table) sysPageMap(caller *env.Env, srcId defs.Id, srcVa uint32, dstId defs.Id, dstVa uint32, perm mem.Pa_t) defs.Err_t {
	src, err := t.resolve(caller, srcId)
	if err != 0 {
		return err
	}
	dst, err := t.resolve(caller, dstId)
	if err != 0 {
		return err
	}
	if !validUva(srcVa) || !validUva(dstVa) {
		return defs.Inval
	}
	if perm&^mem.PteUser != 0 || perm&(mem.PteU|mem.PteP) != mem.PteU|mem.PteP {
		return defs.Inval
	}
	pte := vm.Lookup(t.Pm, src.Pgdir, srcVa)
	if pte == nil || *pte&mem.PteP == 0 {
		return defs.Inval
	}
	// Granting WRITE always requires the source mapping itself be
	// writable -- original_source/kern/syscall.c's sys_page_map makes
	// no COW exception, since a COW page (PTE_U|PTE_P, PTE_W clear)
	// must never become writable through a second mapping or COW
	// isolation breaks.
	if perm&mem.PteW != 0 && *pte&mem.PteW == 0 {
		return defs.Inval
	}
	pa := *pte & mem.PteAddr
	if !vm.Insert(t.Pm, dst.Pgdir, dstVa, pa, perm|mem.PteP) {
		return defs.NoMem
	}
	return 0
}

func (t *Table) sysPageUnmap(caller *env.Env, id defs.Id, va uint32) defs.Err_t {
	target, err := t.resolve(caller, id)
	if err != 0 {
		return err
	}
	if !validUva(va) {
		return defs.Inval
	}
	vm.Remove(t.Pm, target.Pgdir, va)
	return 0
}

func (t *Table) sysIpcTrySend(caller *env.Env, to defs.Id, value uint32, srcVa uint32, perm mem.Pa_t) defs.Err_t {
	target, err := t.Envs.Lookup(to, 0)
	if err != 0 {
		return defs.BadEnv
	}
	return ipc.TrySend(t.Pm, caller, target, value, srcVa, perm)
}

func (t *Table) sysIpcRecv(caller *env.Env, dstVa uint32) defs.Err_t {
	if dstVa != 0 && !validUva(dstVa) {
		return defs.Inval
	}
	ipc.Recv(caller, dstVa)
	t.Sched.Yield()
	return 0
}

// sysNicXmit queues length bytes starting at va on the transmit ring,
// matching original_source/net/output.c's sys_xmit_frame call site.
// It fails with CblFull when no ring is wired or the ring is full, and
// with Inval when length exceeds netglue.MaxPktLen or a byte of the
// range is not mapped present.
func (t *Table) sysNicXmit(caller *env.Env, va, length uint32) defs.Err_t {
	if t.Tx == nil {
		return defs.CblFull
	}
	if length > netglue.MaxPktLen {
		return defs.Inval
	}
	buf := make([]byte, length)
	for i := range buf {
		pte := vm.Lookup(t.Pm, caller.Pgdir, kconfig.Pgrounddown(va+uint32(i)))
		if pte == nil || *pte&mem.PteP == 0 {
			return defs.Inval
		}
		buf[i] = t.Pm.Bytes(*pte&mem.PteAddr)[(va+uint32(i))&kconfig.PGOFF]
	}
	if !t.Tx.Push(buf) {
		return defs.CblFull
	}
	return 0
}

// sysNicRx copies the oldest completed receive-ring packet into va,
// matching original_source/net/input.c's sys_rx poll loop (a caller
// that gets RfaEmpty is expected to sys_yield and retry).
func (t *Table) sysNicRx(caller *env.Env, va uint32) int32 {
	if t.Rx == nil {
		return int32(defs.RfaEmpty)
	}
	pkt, ok := t.Rx.Pop()
	if !ok {
		return int32(defs.RfaEmpty)
	}
	for i, b := range pkt.Bytes() {
		pte := vm.Lookup(t.Pm, caller.Pgdir, kconfig.Pgrounddown(va+uint32(i)))
		if pte == nil || *pte&mem.PteP == 0 || *pte&mem.PteW == 0 {
			return int32(defs.Inval)
		}
		t.Pm.Bytes(*pte&mem.PteAddr)[(va+uint32(i))&kconfig.PGOFF] = b
	}
	return int32(pkt.Len)
}

func validUva(va uint32) bool {
	return kconfig.Pgaligned(va) && va < kconfig.UTOP
}
