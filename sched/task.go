// Package sched implements the Yuheng scheduler: a preemptive,
// priority-ordered round-robin scheduler over a fixed-capacity task table,
// with the vruntime/weight fields and helpers CFS will eventually consult
// present but, for now, inert.
//
// Grounded on src/kernel/scheduler/{sched.c,task.c}: the flat
// task_table[MAX_TASKS] array indexed by PID, the priority-ordered
// singly-linked ready queue, and the first-task-bootstrap vs. general
// schedule() split.
package sched

import (
	"zixiao/mem"
	"zixiao/util"
)

// MaxTasks bounds the fixed-capacity task table, mirroring the original's
// task_table[MAX_TASKS] array-of-structs design rather than a pointer graph.
const MaxTasks = 64

// DefaultTimeslice is the number of ticks a ROUND_ROBIN task runs before its
// slice is exhausted: 10 ticks = 100 ms at 100 Hz.
const DefaultTimeslice = 10

// DefaultWeight is priority_to_weight's current constant output; every
// priority maps to the same CFS weight until fair-scheduling is enabled.
const DefaultWeight = 1024

// MaxNameLen is the longest task name kept, not counting the trailing NUL a
// C implementation would need.
const MaxNameLen = 15

// Policy selects how a RUNNING task's time slice is governed.
type Policy int

const (
	PolicyFIFO Policy = iota
	PolicyRoundRobin
	PolicyNormal
)

// State is a task's position in its lifecycle.
type State int

const (
	StateReady State = iota
	StateRunning
	StateBlocked
	StateSleeping
	StateZombie
)

// Regs is the saved register set an architecture context switch preserves:
// callee-saved general-purpose registers, frame pointer, program counter
// (link register on ARM), and stack pointer. Nothing populates or reads it:
// sched treats it as opaque, and both arch backends keep their own
// per-task register slots (regsAsm) instead.
type Regs struct {
	Callee [12]uint64 // callee-saved GPRs; width covers both amd64 and arm64
	FP     uint64
	PC     uint64
	SP     uint64
}

// Task is a process control block. Pid is stable for the task's lifetime;
// pid 0 is reserved for the idle task.
type Task struct {
	Pid      uint32
	Name     string
	Priority uint8 // 0-9
	Policy   Policy
	State    State

	TimeSlice int // ticks remaining in the current quantum

	// TotalRuntime is the plain tick count scheduler_tick accumulates
	// against the running task, independent of the CFS bookkeeping below.
	TotalRuntime uint64

	// Fair-scheduling bookkeeping: present per spec, not yet consulted by
	// pick_next. See PriorityToWeight/UpdateCurrRuntime/CheckPreemptCurr.
	Weight         uint64
	VRuntime       uint64
	SumExecRuntime uint64
	ExecStart      uint64

	Switches uint64

	Regs Regs

	KernelStack     mem.VirtAddr
	KernelStackSize uintptr

	next int // index of the next task in the ready queue, -1 if none
}

func truncateName(name string) string {
	return name[:util.Min(len(name), MaxNameLen)]
}

// PriorityToWeight converts a [0,9] priority into a CFS weight. It is a
// stub: every priority currently maps to DefaultWeight, matching
// priority_to_weight's own placeholder in the original scheduler -- the
// real nice-value weight table is future work.
func PriorityToWeight(priority uint8) uint64 {
	return DefaultWeight
}

// UpdateCurrRuntime accounts delta ticks of execution against task. It
// always updates SumExecRuntime; VRuntime is incremented linearly rather
// than scaled by weight, since the weighted-fairness formula
// (vruntime += delta * (NICE_0_WEIGHT / weight)) is not yet wired into
// pick_next. idle never accrues runtime.
func UpdateCurrRuntime(task *Task, isIdle bool, delta uint64) {
	if task == nil || isIdle {
		return
	}
	task.SumExecRuntime += delta
	task.VRuntime += delta
}

// CheckPreemptCurr reports whether next should preempt curr under a
// vruntime-based policy (next.vruntime + threshold < curr.vruntime). It
// always returns false today: time-slice-based round robin governs
// preemption until fair scheduling is enabled.
func CheckPreemptCurr(curr, next *Task) bool {
	return false
}
