// Package kernel wires the environment table, physical allocator,
// scheduler and syscall dispatcher into a runnable machine, and drives
// its main loop. It is the adapted, hosted-simulation descendant of
// the teacher's kernel/main.go: that file's boot sequence brings up
// real per-CPU APIC timers and hands each timer IRQ to trapstub; this
// package's Step plays the same role against a virtual clock, since
// there is no hardware timer to wait on.
package kernel

import (
	"github.com/mcorley/jos/defs"
	"github.com/mcorley/jos/env"
	"github.com/mcorley/jos/klog"
	"github.com/mcorley/jos/mem"
	"github.com/mcorley/jos/sched"
	"github.com/mcorley/jos/syscall"
	"github.com/mcorley/jos/trapentry"
)

// Clock is a virtual millisecond counter standing in for the
// timer-interrupt-driven clock original_source's kernel keeps; Step
// advances it once per quantum.
type Clock struct{ ms uint64 }

func (c *Clock) Millis() uint64 { return c.ms }
func (c *Clock) tick(quantumMs uint64) { c.ms += quantumMs }

// Machine is one complete, runnable kernel instance.
type Machine struct {
	Pm    *mem.Physmem
	Envs  *env.Table
	Sched *sched.Sched
	Sys   *syscall.Table
	Clock *Clock

	QuantumMs uint64
}

// NewMachine builds a machine with npages physical frames and the
// given console (the CLI harness's terminal, or a test's in-memory
// buffer) wired to sys_cputs/sys_cgetc.
func NewMachine(npages int, console syscall.Console) *Machine {
	pm := mem.NewPhysmem(npages)
	envs := env.NewTable(pm)
	sc := sched.New(envs)
	clock := &Clock{}
	sys := &syscall.Table{
		Envs:    envs,
		Pm:      pm,
		Sched:   sc,
		Console: console,
		Clock:   clock,
	}
	return &Machine{
		Pm:        pm,
		Envs:      envs,
		Sched:     sc,
		Sys:       sys,
		Clock:     clock,
		QuantumMs: 10,
	}
}

// Spawn creates a new environment as a child of parent (0 for a
// top-level environment created directly by the kernel rather than by
// exofork) and marks it RUNNABLE with eip as its entry point.
func (m *Machine) Spawn(parent defs.Id, eip uint32) (defs.Id, defs.Err_t) {
	id, err := m.Envs.Alloc(parent)
	if err != 0 {
		return 0, err
	}
	e, _ := m.Envs.Lookup(id, 0)
	e.Tf.Eip = eip
	e.Tf.Eflags = defs.FlIf
	e.Tf.Cs = defs.GdUt
	e.Status = defs.StatusRunnable
	return id, 0
}

// Step runs one scheduling quantum: picks the next RUNNABLE
// environment and returns it so the caller's trap loop (a test, or a
// real trap simulator) can drive it. It returns false if nothing is
// runnable.
func (m *Machine) Step() (*env.Env, bool) {
	m.Clock.tick(m.QuantumMs)
	e, ok := m.Sched.Run()
	if !ok {
		klog.Warnf("no runnable environment")
	}
	return e, ok
}

// HandleTrap is the hosted-simulation stand-in for a real trap: a
// test or driver calls this instead of actually faulting, to dispatch
// vector for cur. faultVa matters only for defs.PgFault.
func (m *Machine) HandleTrap(cur *env.Env, vector, faultVa uint32) {
	trapentry.Dispatch(m.Envs, m.Pm, m.Sys, cur, vector, faultVa)
}
