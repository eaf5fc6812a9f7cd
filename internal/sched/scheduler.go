// internal/sched/scheduler.go

package sched

import (
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"minikern/internal/arch"
)

// currentIDs are the process-wide "who is running" cells. Only the
// GlobalScheduler writes them; anyone may read them.
type currentIDs struct {
	task    atomic.Uint64
	process atomic.Uint64
	thread  atomic.Uint64
}

func (c *currentIDs) TaskID() TaskID       { return TaskID(c.task.Load()) }
func (c *currentIDs) ProcessID() ProcessID { return ProcessID(c.process.Load()) }
func (c *currentIDs) ThreadID() ThreadID   { return ThreadID(c.thread.Load()) }

func (c *currentIDs) setTask(id TaskID)       { c.task.Store(uint64(id)) }
func (c *currentIDs) setProcess(id ProcessID) { c.process.Store(uint64(id)) }
func (c *currentIDs) setThread(id ThreadID)   { c.thread.Store(uint64(id)) }

// GlobalScheduler orchestrates the run queue and the task registry. It is
// the only component that mutates the current task/process/thread cells or
// performs a context switch.
type GlobalScheduler struct {
	mu    sync.Mutex
	queue *TaskQueue[RoundRobinMetadata, *RoundRobinScheduling]

	tasks   *TaskRegistry
	threads *ThreadRegistry
	current *currentIDs

	pic arch.InterruptController
	ctx arch.ContextOps
	log *logrus.Logger
}

// NewGlobalScheduler builds a scheduler over an empty round-robin queue.
func NewGlobalScheduler(tasks *TaskRegistry, threads *ThreadRegistry, current *currentIDs,
	pic arch.InterruptController, ctx arch.ContextOps, log *logrus.Logger) *GlobalScheduler {
	return &GlobalScheduler{
		queue:   NewTaskQueue[RoundRobinMetadata](NewRoundRobinScheduling()),
		tasks:   tasks,
		threads: threads,
		current: current,
		pic:     pic,
		ctx:     ctx,
		log:     log,
	}
}

// Enqueue admits a task into the run queue.
func (s *GlobalScheduler) Enqueue(id TaskID) {
	s.mu.Lock()
	s.queue.QueueTask(NewRoundRobinMetadata(id))
	s.mu.Unlock()
	s.log.WithField("task", id).Debug("task enqueued")
}

// Dequeue withdraws a task from the run queue, e.g. on a voluntary block.
func (s *GlobalScheduler) Dequeue(id TaskID) {
	s.mu.Lock()
	s.queue.RemoveTask(id)
	s.mu.Unlock()
	s.log.WithField("task", id).Debug("task dequeued")
}

// QueueLen returns the number of queued tasks.
func (s *GlobalScheduler) QueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Len()
}

// irqScheduleNext performs the interrupt-driven switch. The caller must hold
// s.mu; ownership of the lock transfers here, and it is released on every
// path — on the switch path explicitly before end-of-interrupt and the
// context transfer, which never returns to the interrupted code.
//
// End-of-interrupt is signaled here only when a switch is performed; on the
// other outcomes the caller still owns the acknowledge.
func (s *GlobalScheduler) irqScheduleNext(frame *arch.InterruptFrame) TickOutcome {
	nextID, ok := s.queue.NextTask()
	if !ok {
		s.mu.Unlock()
		return TickNoRunnableTask
	}

	currentID := s.current.TaskID()
	if nextID == currentID {
		// Only one runnable task: leave its record and the frame alone.
		s.mu.Unlock()
		return TickSelfSelection
	}

	nextTask, ok := s.tasks.Get(nextID)
	if !ok {
		// The queue and the registry have desynchronized.
		s.mu.Unlock()
		panic("sched: attempted to switch to a non-existent task")
	}

	if currentTask, ok := s.tasks.Get(currentID); ok {
		currentTask.mu.Lock()
		currentTask.state = TaskWaiting
		currentTask.regs = frame.Regs
		currentTask.rip = frame.RIP
		currentTask.stack = frame.RSP
		currentTask.mu.Unlock()
	}

	newFrame := s.dispatch(nextTask, frame)

	s.mu.Unlock()
	s.pic.SignalEndOfInterrupt()
	s.ctx.RestoreContext(newFrame)
	return TickSwitched
}

// SwitchTo synchronously transfers control to the given task. Unlike the
// interrupt path it runs with interrupts enabled and may block on the
// scheduler lock.
func (s *GlobalScheduler) SwitchTo(id TaskID) {
	s.mu.Lock()

	currentID := s.current.TaskID()
	if id == currentID {
		s.mu.Unlock()
		return
	}

	nextTask, ok := s.tasks.Get(id)
	if !ok {
		s.mu.Unlock()
		panic("sched: attempted to switch to a non-existent task")
	}
	currentTask, ok := s.tasks.Get(currentID)
	if !ok {
		s.mu.Unlock()
		panic("sched: could not find current task context")
	}

	frame := s.ctx.SaveContext()

	currentTask.mu.Lock()
	currentTask.state = TaskWaiting
	currentTask.regs = frame.Regs
	currentTask.rip = frame.RIP
	currentTask.stack = frame.RSP
	currentTask.mu.Unlock()

	newFrame := s.dispatch(nextTask, &frame)

	s.mu.Unlock()
	s.ctx.RestoreContext(newFrame)
}

// dispatch marks next Running, builds its return frame and points the
// current cells at it. For a task that never ran, the saved instruction
// pointer is its entry point and the saved stack is the one allocated at
// creation, so the first dispatch needs no special case beyond the state
// change. Segment selectors and RFLAGS are architecture bookkeeping, not
// per-task state, and carry over from the interrupted frame.
//
// Caller must hold s.mu.
func (s *GlobalScheduler) dispatch(next *Task, frame *arch.InterruptFrame) arch.InterruptFrame {
	next.mu.Lock()
	next.state = TaskRunning
	newFrame := arch.InterruptFrame{
		RIP:    next.rip,
		CS:     frame.CS,
		RFlags: frame.RFlags,
		RSP:    next.stack,
		SS:     frame.SS,
		Regs:   next.regs,
	}
	nextID := next.id
	nextPID := next.pid
	next.mu.Unlock()

	s.current.setTask(nextID)
	s.current.setProcess(nextPID)
	if tid, ok := s.threads.ByTask(nextID); ok {
		s.current.setThread(tid)
	}

	s.log.WithFields(logrus.Fields{
		"task":    nextID,
		"process": nextPID,
	}).Debug("dispatching task")

	return newFrame
}
