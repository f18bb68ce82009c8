package sched

import (
	"fmt"

	"zixiao/kmalloc"
	"zixiao/mem"
	"zixiao/stats"
)

// ContextSwitcher is the architecture back-end the scheduler calls into. On
// real hardware SwitchTo and FirstSwitch save/restore registers and resume
// execution on the target task's stack; FirstSwitch never returns to its
// caller since there is no caller context to resume. Test fakes may return
// normally from both.
type ContextSwitcher interface {
	// SetupContext writes a saved register set into task such that the
	// first switch into it resumes execution at entry on its own stack.
	SetupContext(task *Task, entry func())
	// SwitchTo saves prev's callee-saved state and restores next's,
	// resuming execution in next. Returns once prev is switched back to.
	SwitchTo(prev, next *Task)
	// FirstSwitch restores next's saved state and jumps to it directly,
	// with no save step, since there is no previous task.
	FirstSwitch(next *Task)
}

// Scheduler is the Yuheng scheduler: a fixed-capacity PCB table, a
// priority-ordered ready queue, and the pick-next/schedule/tick state
// machine.
type Scheduler struct {
	heap *kmalloc.Heap
	arch ContextSwitcher

	table    [MaxTasks]Task
	used     [MaxTasks]bool
	nextSlot int

	readyHead int // index into table, -1 if empty
	idleIdx   int
	currentIdx int // -1 before boot

	started bool
	clock   uint64

	// Schedules counts every Schedule call, bootstrap or general path. A
	// no-op unless stats.Enabled is flipped on.
	Schedules stats.Counter_t
}

const noTask = -1

// New constructs a Scheduler, creates the idle task (pid 0, priority 0),
// and marks it current without enqueuing it, matching scheduler_init's
// handoff before the first real schedule() call.
func New(heap *kmalloc.Heap, arch ContextSwitcher, idleStackSize uintptr, idleEntry func()) (*Scheduler, error) {
	s := &Scheduler{heap: heap, arch: arch, readyHead: noTask, currentIdx: noTask, idleIdx: noTask}
	idx, err := s.newTask("idle", idleEntry, 0, idleStackSize)
	if err != nil {
		return nil, fmt.Errorf("sched: creating idle task: %w", err)
	}
	s.table[idx].Pid = 0
	s.idleIdx = idx
	s.currentIdx = idx
	return s, nil
}

func (s *Scheduler) isIdle(idx int) bool { return idx == s.idleIdx }

func (s *Scheduler) newTask(name string, entry func(), priority uint8, stackSize uintptr) (int, error) {
	if s.nextSlot >= MaxTasks {
		return 0, fmt.Errorf("sched: MAX_TASKS (%d) reached", MaxTasks)
	}
	stackPtr, ok := s.heap.Alloc(stackSize)
	if !ok {
		return 0, fmt.Errorf("sched: failed to allocate %d-byte stack for task %q", stackSize, name)
	}

	idx := s.nextSlot
	s.nextSlot++
	s.used[idx] = true

	t := &s.table[idx]
	*t = Task{}
	t.Pid = uint32(idx)
	t.Name = truncateName(name)
	t.Priority = priority
	t.Policy = PolicyRoundRobin
	t.State = StateReady
	t.TimeSlice = DefaultTimeslice
	t.Weight = PriorityToWeight(priority)
	t.KernelStack = mem.VirtAddr(stackPtr)
	t.KernelStackSize = stackSize
	t.next = noTask

	s.arch.SetupContext(t, entry)
	return idx, nil
}

// TaskCreate allocates a PCB slot (failing if MaxTasks is reached), an
// owned kernel stack from the heap, and an architecture-specific initial
// register set so the task's first run begins at entry.
func (s *Scheduler) TaskCreate(name string, entry func(), priority uint8, stackSize uintptr) (*Task, error) {
	idx, err := s.newTask(name, entry, priority, stackSize)
	if err != nil {
		return nil, err
	}
	return &s.table[idx], nil
}

// TaskReady inserts task into the ready queue, ordered by descending
// priority with FIFO ordering preserved within a priority band, and marks
// it READY.
func (s *Scheduler) TaskReady(task *Task) {
	task.State = StateReady
	idx := s.indexOf(task)

	if s.readyHead == noTask || task.Priority > s.table[s.readyHead].Priority {
		s.table[idx].next = s.readyHead
		s.readyHead = idx
		return
	}
	cur := s.readyHead
	for s.table[cur].next != noTask && s.table[s.table[cur].next].Priority >= task.Priority {
		cur = s.table[cur].next
	}
	s.table[idx].next = s.table[cur].next
	s.table[cur].next = idx
}

func (s *Scheduler) dequeue(idx int) {
	if s.readyHead == idx {
		s.readyHead = s.table[idx].next
	} else {
		cur := s.readyHead
		for cur != noTask && s.table[cur].next != idx {
			cur = s.table[cur].next
		}
		if cur != noTask {
			s.table[cur].next = s.table[idx].next
		}
	}
	s.table[idx].next = noTask
}

func (s *Scheduler) pickNext() int {
	if s.readyHead != noTask {
		return s.readyHead
	}
	return s.idleIdx
}

func (s *Scheduler) indexOf(task *Task) int {
	return int(task.Pid)
}

// Current returns the currently RUNNING task.
func (s *Scheduler) Current() *Task {
	if s.currentIdx == noTask {
		return nil
	}
	return &s.table[s.currentIdx]
}

// Tick advances the scheduler clock and, unless the running task is idle,
// accounts one tick of execution against it and decrements its time slice
// under round-robin policy. Called from the timer IRQ strictly before any
// Schedule triggered by the same tick.
func (s *Scheduler) Tick() {
	s.clock++
	if s.currentIdx == noTask || s.isIdle(s.currentIdx) {
		return
	}
	cur := &s.table[s.currentIdx]
	cur.TotalRuntime++
	UpdateCurrRuntime(cur, false, 1)
	if cur.Policy == PolicyRoundRobin && cur.TimeSlice > 0 {
		cur.TimeSlice--
	}
}

// ClockTicks returns the scheduler's own monotonic tick counter.
func (s *Scheduler) ClockTicks() uint64 { return s.clock }

// Schedule picks the next task to run and context-switches to it. The first
// call bootstraps via scheduleFirstTask instead.
func (s *Scheduler) Schedule() {
	s.Schedules.Inc()
	if s.currentIdx == noTask {
		return
	}
	if !s.started {
		s.scheduleFirstTask()
		return
	}

	prevIdx := s.currentIdx
	nextIdx := s.pickNext()
	if prevIdx == nextIdx {
		return
	}

	prev := &s.table[prevIdx]
	if prev.State == StateRunning && prevIdx != s.idleIdx {
		if prev.TimeSlice == 0 {
			prev.TimeSlice = DefaultTimeslice
		}
		s.TaskReady(prev)
	}

	if nextIdx != s.idleIdx {
		s.dequeue(nextIdx)
	}
	next := &s.table[nextIdx]
	next.State = StateRunning
	next.Switches++
	s.currentIdx = nextIdx

	s.arch.SwitchTo(prev, next)
}

// scheduleFirstTask performs the bootstrap switch: there is no previous
// context to save, so it restores next and jumps directly.
func (s *Scheduler) scheduleFirstTask() {
	nextIdx := s.pickNext()
	s.started = true
	if nextIdx == s.idleIdx {
		return // nothing ready yet; idle keeps running on the next Schedule call
	}

	s.dequeue(nextIdx)
	next := &s.table[nextIdx]
	next.State = StateRunning
	next.Switches++
	s.currentIdx = nextIdx

	s.arch.FirstSwitch(next)
}

// Yield voluntarily relinquishes the CPU, equivalent to a preemption at the
// current instant.
func (s *Scheduler) Yield() {
	s.Schedule()
}

// TaskExit marks the current task ZOMBIE, frees its kernel stack, and calls
// Schedule, which never switches back to it.
func (s *Scheduler) TaskExit() {
	task := s.Current()
	if task == nil || s.isIdle(s.currentIdx) {
		return
	}
	task.State = StateZombie
	s.heap.Free(uintptr(task.KernelStack))
	task.KernelStack = 0
	s.Schedule()
}
