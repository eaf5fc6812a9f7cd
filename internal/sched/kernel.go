// Package sched implements the kernel's scheduling and execution-context
// subsystem: the task registry, the pluggable run-queue strategy, the
// process/thread ownership model and the interrupt-driven context switch.
package sched

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"minikern/internal/arch"
)

// Hardware is everything the subsystem consumes from the machine. The
// simulated arch.Machine satisfies it; on real hardware these would be the
// memory manager, the IDT and the interrupt controller.
type Hardware interface {
	arch.StackAllocator
	arch.InterruptRegistrar
	arch.InterruptController
	arch.ContextOps
	arch.MemoryAllocator

	// KernelPageTable returns the physical address of the kernel's page
	// table root, installed into the kernel process record.
	KernelPageTable() uint64
}

// Kernel is the scheduling context of one boot: the three registries, the
// scheduler, the timer entry and the current-id cells.
//
// It is constructed exactly once, at boot, and passed by reference to every
// subsystem that needs it; there are no ambient singletons.
type Kernel struct {
	Tasks     *TaskRegistry
	Processes *ProcessRegistry
	Threads   *ThreadRegistry
	Scheduler *GlobalScheduler
	Timer     *TimerEntry

	current *currentIDs
	log     *logrus.Logger
}

// NewKernel boots the scheduling subsystem: it registers the boot execution
// context as task 0 / thread 0 under the kernel process, binds the timer
// vector, and admits the boot task into the run queue.
func NewKernel(cfg Config, hw Hardware) *Kernel {
	log := logrus.New()
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}

	current := &currentIDs{}
	tasks := NewTaskRegistry(hw, cfg.StackSize)
	processes := NewProcessRegistry(hw, hw.KernelPageTable())
	threads := NewThreadRegistry(tasks, processes)
	scheduler := NewGlobalScheduler(tasks, threads, current, hw, hw, log)
	timer := NewTimerEntry(scheduler, processes, threads, current, hw)

	hw.RegisterHandler(cfg.TimerVector, timer.HandleTimerInterrupt)
	scheduler.Enqueue(InitTask)

	log.WithFields(logrus.Fields{
		"timer_vector": fmt.Sprintf("%#x", cfg.TimerVector),
		"stack_size":   cfg.StackSize,
	}).Info("scheduling subsystem up")

	return &Kernel{
		Tasks:     tasks,
		Processes: processes,
		Threads:   threads,
		Scheduler: scheduler,
		Timer:     timer,
		current:   current,
		log:       log,
	}
}

// CurrentTaskID returns the id of the running task.
func (k *Kernel) CurrentTaskID() TaskID { return k.current.TaskID() }

// CurrentProcessID returns the id of the process owning the running task.
func (k *Kernel) CurrentProcessID() ProcessID { return k.current.ProcessID() }

// CurrentThreadID returns the id of the thread owning the running task.
func (k *Kernel) CurrentThreadID() ThreadID { return k.current.ThreadID() }

// CurrentTask looks up the running task's record.
func (k *Kernel) CurrentTask() (*Task, bool) {
	return k.Tasks.Get(k.current.TaskID())
}

// SpawnKernelThread creates a kernel thread starting at entry. The thread is
// registered but not scheduled.
func (k *Kernel) SpawnKernelThread(entry uint64) ThreadID {
	tid := k.Threads.SpawnKernelThread(entry)
	k.log.WithFields(logrus.Fields{
		"thread": tid,
		"entry":  fmt.Sprintf("%#x", entry),
	}).Info("kernel thread spawned")
	return tid
}

// ScheduleThread admits an existing thread's task into the run queue.
func (k *Kernel) ScheduleThread(id ThreadID) error {
	thread, ok := k.Threads.Get(id)
	if !ok {
		return fmt.Errorf("schedule thread: unknown thread %d", id)
	}
	thread.Schedule(k.Scheduler)
	return nil
}

// SpawnProcess allocates an address space and registers a new, threadless
// process.
func (k *Kernel) SpawnProcess(name string, flags ProcessFlags) (ProcessID, error) {
	pid, err := k.Processes.SpawnProcess(name, flags)
	if err != nil {
		return 0, err
	}
	k.log.WithFields(logrus.Fields{
		"process": pid,
		"name":    name,
	}).Info("process spawned")
	return pid, nil
}
