// Package ulib is the thin user-mode calling convention the
// user-level helpers in this module (fork, pfault) issue syscalls
// through. In a real JOS a syscall is an int
// 0x30 instruction; in this hosted simulation it is a direct call into
// syscall.Table.Dispatch with a scratch trapframe carrying the number
// and arguments in the same six-register layout spec.md §4.5
// describes -- which keeps ulib code working against the identical
// ABI a real trap would deliver, rather than a shortcut API.
package ulib

import (
	"github.com/mcorley/jos/defs"
	"github.com/mcorley/jos/env"
	"github.com/mcorley/jos/mem"
	"github.com/mcorley/jos/syscall"
)

// call issues one syscall on self's behalf without disturbing self's
// real trapframe, exactly as a real syscall instruction wouldn't
// disturb memory outside the registers it uses.
func call(sc *syscall.Table, self *env.Env, num uint32, a1, a2, a3, a4, a5 uint32) int32 {
	tf := env.TrapFrame{Eax: num, Edx: a1, Ecx: a2, Ebx: a3, Edi: a4, Esi: a5}
	return int32(sc.Dispatch(self, &tf))
}

func GetEnvId(sc *syscall.Table, self *env.Env) defs.Id {
	return defs.Id(call(sc, self, defs.SysGetenvid, 0, 0, 0, 0, 0))
}

func Exofork(sc *syscall.Table, self *env.Env) (defs.Id, defs.Err_t) {
	r := call(sc, self, defs.SysExofork, 0, 0, 0, 0, 0)
	if r < 0 {
		return 0, defs.Err_t(r)
	}
	return defs.Id(r), 0
}

func PageAlloc(sc *syscall.Table, self *env.Env, id defs.Id, va uint32, perm mem.Pa_t) defs.Err_t {
	return defs.Err_t(call(sc, self, defs.SysPageAlloc, uint32(id), va, uint32(perm), 0, 0))
}

func PageMap(sc *syscall.Table, self *env.Env, srcId defs.Id, srcVa uint32, dstId defs.Id, dstVa uint32, perm mem.Pa_t) defs.Err_t {
	return defs.Err_t(call(sc, self, defs.SysPageMap, uint32(srcId), srcVa, uint32(dstId), dstVa, uint32(perm)))
}

func PageUnmap(sc *syscall.Table, self *env.Env, id defs.Id, va uint32) defs.Err_t {
	return defs.Err_t(call(sc, self, defs.SysPageUnmap, uint32(id), va, 0, 0, 0))
}

func SetPgfaultUpcall(sc *syscall.Table, self *env.Env, id defs.Id, upcall uint32) defs.Err_t {
	return defs.Err_t(call(sc, self, defs.SysEnvSetPgfaultUpcall, uint32(id), upcall, 0, 0, 0))
}

// SetTrapframe installs the trap frame built at tfva (a page the
// caller owns) as id's saved register state.
func SetTrapframe(sc *syscall.Table, self *env.Env, id defs.Id, tfva uint32) defs.Err_t {
	return defs.Err_t(call(sc, self, defs.SysEnvSetTrapframe, uint32(id), tfva, 0, 0, 0))
}

func SetStatus(sc *syscall.Table, self *env.Env, id defs.Id, st defs.Status) defs.Err_t {
	return defs.Err_t(call(sc, self, defs.SysEnvSetStatus, uint32(id), uint32(st), 0, 0, 0))
}

func IpcRecv(sc *syscall.Table, self *env.Env, dstVa uint32) defs.Err_t {
	return defs.Err_t(call(sc, self, defs.SysIpcRecv, dstVa, 0, 0, 0, 0))
}

func IpcTrySend(sc *syscall.Table, self *env.Env, to defs.Id, value uint32, srcVa uint32, perm mem.Pa_t) defs.Err_t {
	return defs.Err_t(call(sc, self, defs.SysIpcTrySend, uint32(to), value, srcVa, uint32(perm), 0))
}

func Yield(sc *syscall.Table, self *env.Env) {
	call(sc, self, defs.SysYield, 0, 0, 0, 0, 0)
}
