// Package task implements the task record and round-robin scheduler (spec
// §4.7): single-CPU, preemptive on timer tick, cooperative on explicit
// yield. Scheduling adds one layer spec §4.7 leaves implicit — a tiny
// priority tier over the FIFO ready queue (priority 0-7, default 3): a
// higher-priority ready task always runs before a lower-priority one, and
// FIFO-per-quantum-expiry governs ordering within a priority.
package task

import (
	"unsafe"

	"github.com/Acteus/vibos/internal/arch"
	"github.com/Acteus/vibos/internal/ksync"
)

// State is a task's position in its lifecycle (spec §3's task data model).
type State int

const (
	Ready State = iota
	Running
	Blocked
	Zombie
)

func (s State) String() string {
	switch s {
	case Ready:
		return "ready"
	case Running:
		return "running"
	case Blocked:
		return "blocked"
	case Zombie:
		return "zombie"
	default:
		return "unknown"
	}
}

const (
	MinPriority     = 0
	MaxPriority     = 7
	DefaultPriority = 3

	// MinStackSize is the smallest stack a task may be created with (spec
	// §4.7: "a stack (>= 16 KiB)").
	MinStackSize = 16 * 1024

	// defaultQuantum is how many timer ticks a task runs before the
	// scheduler forces a switch to the next ready task of equal or lower
	// priority.
	defaultQuantum = 10
)

// Task is one schedulable unit: identity, lifecycle state, saved register
// context, and the owned stack backing it.
type Task[C any] struct {
	ID       uint64
	State    State
	Priority int
	Context  C
	Stack    []byte

	Parent   *Task[C]
	Children []*Task[C]

	quantum int
}

// Scheduler is the kernel's single-CPU round-robin scheduler. The ready
// queue and every state transition are protected by one spinlock acquired
// with IRQ-save (spec §4.7's "critical section discipline"); that lock is
// never held across a Switch call, since Switch may not return until
// another task switches back into this one.
type Scheduler[C any] struct {
	switcher arch.ContextSwitcher[C]

	lock  ksync.SpinLock
	ready [MaxPriority + 1][]*Task[C]

	current *Task[C]
	nextID  uint64
}

// NewScheduler builds a Scheduler driven by switcher.
func NewScheduler[C any](switcher arch.ContextSwitcher[C]) *Scheduler[C] {
	return &Scheduler[C]{switcher: switcher}
}

// Spawn creates a task per spec §4.7's task_create: allocates a stack,
// initializes the context via the architecture's ContextSwitcher.Init, and
// enqueues it on the ready queue. priority is clamped to [MinPriority,
// MaxPriority]; pass DefaultPriority when the caller has no preference.
func (s *Scheduler[C]) Spawn(entry, arg uintptr, priority int, stackSize int) *Task[C] {
	if priority < MinPriority {
		priority = MinPriority
	}
	if priority > MaxPriority {
		priority = MaxPriority
	}
	if stackSize < MinStackSize {
		stackSize = MinStackSize
	}

	t := &Task[C]{
		Priority: priority,
		Stack:    make([]byte, stackSize),
		quantum:  defaultQuantum,
	}

	s.lock.Lock()
	s.nextID++
	t.ID = s.nextID
	s.lock.Unlock()

	// Stacks grow down; stackTop is one-past-the-end of the backing slice.
	// Taking its address this way mirrors internal/arch/reg's use of
	// unsafe.Pointer over real Go-heap memory to stand in for identity-
	// mapped physical memory in a hosted build.
	stackTop := uintptr(unsafe.Pointer(&t.Stack[0])) + uintptr(len(t.Stack))
	s.switcher.Init(&t.Context, entry, stackTop, arg)

	s.enqueue(t)
	return t
}

// enqueue appends t to the ready queue for its priority, marking it Ready.
func (s *Scheduler[C]) enqueue(t *Task[C]) {
	s.lock.Lock()
	t.State = Ready
	s.ready[t.Priority] = append(s.ready[t.Priority], t)
	s.lock.Unlock()
}

// dequeueHighest pops the front of the highest non-empty priority queue,
// the strict priority-before-FIFO dispatch rule this scheduler adds over
// spec §4.7's bare round robin.
func (s *Scheduler[C]) dequeueHighest() *Task[C] {
	for p := MaxPriority; p >= MinPriority; p-- {
		q := s.ready[p]
		if len(q) == 0 {
			continue
		}
		t := q[0]
		s.ready[p] = q[1:]
		return t
	}
	return nil
}

// Current returns the task presently running, or nil before the first
// switch (Spawn only queues a task as Ready; it never makes it current).
func (s *Scheduler[C]) Current() *Task[C] {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.current
}

// Tick is the timer-driven entry point (spec §4.7): decrements the running
// task's quantum and, once it has expired, performs a round-robin switch
// to the next ready task, requeuing the current one at the tail of its
// priority's queue.
func (s *Scheduler[C]) Tick(m arch.IRQMasker) {
	s.lock.Lock()
	if s.current == nil {
		s.lock.Unlock()
		return
	}
	s.current.quantum--
	expired := s.current.quantum <= 0
	s.lock.Unlock()
	if expired {
		s.switchOut(m, true)
	}
}

// Yield performs the same switch as an expired quantum, immediately,
// regardless of how much of the current quantum remains (spec §4.7:
// "Cooperative yield performs the same switch immediately").
func (s *Scheduler[C]) Yield(m arch.IRQMasker) {
	s.switchOut(m, true)
}

// Block removes the running task from scheduling without requeuing it
// (spec §4.7: "A blocked task is not on the ready queue"). The caller is
// responsible for calling Wake once its condition is satisfied.
func (s *Scheduler[C]) Block(m arch.IRQMasker) {
	s.switchOut(m, false)
}

// Wake returns a previously Blocked task to the ready queue.
func (s *Scheduler[C]) Wake(t *Task[C]) {
	s.enqueue(t)
}

// switchOut picks the next ready task and performs the register-level
// switch. requeueCurrent is false for Block, where the caller is
// responsible for re-adding the task via Wake.
func (s *Scheduler[C]) switchOut(m arch.IRQMasker, requeueCurrent bool) {
	tok := s.lock.LockIRQSave(m)

	next := s.dequeueHighest()
	if next == nil {
		// Nothing else is ready; keep running the current task.
		if s.current != nil {
			s.current.quantum = defaultQuantum
		}
		s.lock.UnlockIRQRestore(tok)
		return
	}

	prev := s.current
	if prev != nil {
		if requeueCurrent {
			prev.State = Ready
			prev.quantum = defaultQuantum
			s.ready[prev.Priority] = append(s.ready[prev.Priority], prev)
		} else {
			prev.State = Blocked
		}
	}
	next.State = Running
	next.quantum = defaultQuantum
	s.current = next

	s.lock.UnlockIRQRestore(tok)

	// The switch itself must happen outside the lock: Switch may not
	// return until some other task switches back into prev, and holding
	// the ready-queue lock across that would deadlock (spec §4.7's
	// critical-section discipline).
	if prev != nil {
		s.switcher.Switch(&prev.Context, &next.Context)
	} else {
		var discard C
		s.switcher.Switch(&discard, &next.Context)
	}
}
