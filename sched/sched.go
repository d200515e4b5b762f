// Package sched implements the scheduler contract (component H):
// plain round-robin over RUNNABLE environments, skipping the idle
// environment (table index 0) unless nothing else is runnable.
// Grounded on original_source/kern/sched.c's sched_yield, including its
// idle-fallback order. Where sched_yield drops into the monitor when
// even idle isn't runnable, Run instead reports that nothing is
// runnable, since a hosted simulation has no monitor to drop into.
package sched

import (
	"github.com/mcorley/jos/defs"
	"github.com/mcorley/jos/env"
	"github.com/mcorley/jos/kconfig"
)

// Sched tracks only the position to resume scanning from; all other
// scheduling state lives in the environment table itself.
type Sched struct {
	envs *env.Table
	last int
}

func New(envs *env.Table) *Sched {
	return &Sched{envs: envs}
}

// Yield is the synchronous entry point SysYield and SysIpcRecv use: it
// picks the next environment to run right now rather than returning
// to a caller that will run one later, matching how
// original_source/kern/sched.c's sched_yield is called directly from
// the syscall handler, not deferred.
func (s *Sched) Yield() (*env.Env, bool) {
	return s.Run()
}

// Run picks the next RUNNABLE environment in round-robin order
// starting just after the last one picked, wrapping around the table.
// Index 0 (idle) is only chosen if no other slot is runnable.
func (s *Sched) Run() (*env.Env, bool) {
	n := kconfig.NENV
	start := (s.last + 1) % n
	for i := 0; i < n; i++ {
		idx := (start + i) % n
		if idx == 0 {
			continue
		}
		e := s.envs.EnvAt(idx)
		if e.Status == defs.StatusRunnable {
			s.last = idx
			return e, true
		}
	}
	idle := s.envs.EnvAt(0)
	if idle.Status == defs.StatusRunnable {
		s.last = 0
		return idle, true
	}
	return nil, false
}
