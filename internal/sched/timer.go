// internal/sched/timer.go

package sched

import (
	"sync/atomic"

	"minikern/internal/arch"
)

// TickOutcome classifies what a single timer tick did.
type TickOutcome int

const (
	// TickSwitched means the scheduler transferred control to another
	// task.
	TickSwitched TickOutcome = iota

	// TickNoRunnableTask means the run queue was empty.
	TickNoRunnableTask

	// TickSelfSelection means the queue selected the task that is already
	// running; nothing was touched.
	TickSelfSelection

	// TickSchedulerContended means the scheduler lock was held by
	// preempted code; the tick was skipped.
	TickSchedulerContended

	// TickContextContended means the current process or thread record
	// could not be resolved without blocking; the tick was skipped.
	TickContextContended

	// TickProcessOptOut means the current process carries NO_PREEMPT.
	TickProcessOptOut

	// TickThreadOptOut means the current thread carries NO_PREEMPT.
	TickThreadOptOut
)

func (o TickOutcome) String() string {
	switch o {
	case TickSwitched:
		return "Switched"
	case TickNoRunnableTask:
		return "NoRunnableTask"
	case TickSelfSelection:
		return "SelfSelection"
	case TickSchedulerContended:
		return "SchedulerContended"
	case TickContextContended:
		return "ContextContended"
	case TickProcessOptOut:
		return "ProcessOptOut"
	case TickThreadOptOut:
		return "ThreadOptOut"
	default:
		return "Unknown"
	}
}

// Skipped reports whether the tick left the running task in place.
func (o TickOutcome) Skipped() bool { return o != TickSwitched }

// TimerEntry is the hardware-facing boundary of the scheduler, consulted on
// every timer tick. It must never block: every acquisition on this path is a
// non-blocking attempt that degrades to "skip this tick".
type TimerEntry struct {
	scheduler *GlobalScheduler
	processes *ProcessRegistry
	threads   *ThreadRegistry
	current   *currentIDs

	pic arch.InterruptController

	// failures counts ticks skipped because of lock contention, never
	// because of an intentional opt-out. Purely diagnostic.
	failures atomic.Uint64
}

// NewTimerEntry wires the preemption gate. Bind HandleTimerInterrupt to the
// timer vector to activate it.
func NewTimerEntry(scheduler *GlobalScheduler, processes *ProcessRegistry, threads *ThreadRegistry,
	current *currentIDs, pic arch.InterruptController) *TimerEntry {
	return &TimerEntry{
		scheduler: scheduler,
		processes: processes,
		threads:   threads,
		current:   current,
		pic:       pic,
	}
}

// Failures returns the diagnostic count of contention-skipped ticks.
func (e *TimerEntry) Failures() uint64 {
	return e.failures.Load()
}

// HandleTimerInterrupt is the handler bound to the timer vector.
func (e *TimerEntry) HandleTimerInterrupt(frame *arch.InterruptFrame) {
	e.tick(frame)
}

// tick runs the preemption policy for one timer interrupt and acknowledges
// the interrupt exactly once: on the switch path the scheduler acknowledges
// after dropping its lock, on every other path the acknowledge happens here.
func (e *TimerEntry) tick(frame *arch.InterruptFrame) TickOutcome {
	if !e.scheduler.mu.TryLock() {
		e.failures.Add(1)
		e.pic.SignalEndOfInterrupt()
		return TickSchedulerContended
	}

	processFlags, threadFlags, ok := e.currentFlags()
	if !ok {
		e.scheduler.mu.Unlock()
		e.failures.Add(1)
		e.pic.SignalEndOfInterrupt()
		return TickContextContended
	}

	if processFlags.Has(ProcessNoPreempt) {
		e.scheduler.mu.Unlock()
		e.failures.Store(0)
		e.pic.SignalEndOfInterrupt()
		return TickProcessOptOut
	}
	if threadFlags.Has(ThreadNoPreempt) {
		e.scheduler.mu.Unlock()
		e.failures.Store(0)
		e.pic.SignalEndOfInterrupt()
		return TickThreadOptOut
	}

	// A serviced tick is never congestion, whatever the queue decides.
	e.failures.Store(0)

	// Lock ownership transfers to the scheduler here.
	outcome := e.scheduler.irqScheduleNext(frame)
	if outcome != TickSwitched {
		e.pic.SignalEndOfInterrupt()
	}
	return outcome
}

// currentFlags resolves the preemption flags of the current process and
// thread without blocking. Any lock that cannot be taken immediately fails
// the resolution.
func (e *TimerEntry) currentFlags() (ProcessFlags, ThreadFlags, bool) {
	if !e.processes.mu.TryRLock() {
		return 0, 0, false
	}
	v, ok := e.processes.processes.Get(e.current.ProcessID())
	e.processes.mu.RUnlock()
	if !ok {
		return 0, 0, false
	}
	process := v.(*Process)
	if !process.mu.TryLock() {
		return 0, 0, false
	}
	processFlags := process.flags
	process.mu.Unlock()

	if !e.threads.mu.TryRLock() {
		return 0, 0, false
	}
	tv, ok := e.threads.threads.Get(e.current.ThreadID())
	e.threads.mu.RUnlock()
	if !ok {
		return 0, 0, false
	}
	thread := tv.(*Thread)
	if !thread.mu.TryLock() {
		return 0, 0, false
	}
	threadFlags := thread.flags
	thread.mu.Unlock()

	return processFlags, threadFlags, true
}
