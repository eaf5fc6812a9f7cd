package sched

import (
	"sync"
	"sync/atomic"

	"github.com/emirpasic/gods/maps/treemap"

	"minikern/internal/arch"
)

// TaskID uniquely identifies a task in the scheduler.
type TaskID uint64

// InitTask is the task id of the boot execution context, registered before
// any task is created.
const InitTask TaskID = 0

// TaskState is the current running status of a Task.
type TaskState int

const (
	// TaskUninitialized marks a task that is new and never got any CPU
	// time allocated. A task leaves this state exactly once, by being
	// dispatched for the first time.
	TaskUninitialized TaskState = iota

	// TaskWaiting marks a task waiting to be scheduled for execution.
	TaskWaiting

	// TaskRunning marks the task currently being executed by the CPU.
	TaskRunning
)

func (s TaskState) String() string {
	switch s {
	case TaskUninitialized:
		return "Uninitialized"
	case TaskWaiting:
		return "Waiting"
	case TaskRunning:
		return "Running"
	default:
		return "Unknown"
	}
}

// Task represents one code execution context: all information needed to
// perform a task switch. Fields are mutated only by the scheduler, under the
// task's lock.
type Task struct {
	mu sync.Mutex

	id    TaskID
	pid   ProcessID
	state TaskState
	stack uint64 // saved stack pointer
	rip   uint64 // saved instruction pointer
	regs  arch.Regs
}

// ID returns the task's identifier.
func (t *Task) ID() TaskID { return t.id }

// Process returns the id of the process owning this task.
func (t *Task) Process() ProcessID {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pid
}

// State returns the task's current lifecycle state.
func (t *Task) State() TaskState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Context returns the task's saved stack pointer, instruction pointer and
// register snapshot.
func (t *Task) Context() (stack, rip uint64, regs arch.Regs) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stack, t.rip, t.regs
}

// TaskRegistry is the system's task directory. It contains every existing
// task, running or not, and is the only place tasks are created.
type TaskRegistry struct {
	mu    sync.RWMutex
	tasks *treemap.Map // TaskID -> *Task

	nextID    atomic.Uint64
	stacks    arch.StackAllocator
	stackSize uint64
}

func taskIDComparator(a, b interface{}) int {
	ka, kb := a.(TaskID), b.(TaskID)
	switch {
	case ka < kb:
		return -1
	case ka > kb:
		return 1
	default:
		return 0
	}
}

// NewTaskRegistry builds the task directory, pre-registering the boot
// context as InitTask. The boot task is already executing, so it starts out
// Running.
func NewTaskRegistry(stacks arch.StackAllocator, stackSize uint64) *TaskRegistry {
	r := &TaskRegistry{
		tasks:     treemap.NewWith(taskIDComparator),
		stacks:    stacks,
		stackSize: stackSize,
	}
	r.nextID.Store(uint64(InitTask) + 1)
	r.tasks.Put(InitTask, &Task{
		id:    InitTask,
		pid:   KernelInitPID,
		state: TaskRunning,
	})
	return r
}

// CreateKernelTask creates a new kernel task that will start executing at
// entry once first dispatched, and registers it. The task gets a fresh
// kernel stack and starts Uninitialized.
func (r *TaskRegistry) CreateKernelTask(entry uint64) TaskID {
	id := TaskID(r.nextID.Add(1) - 1)

	task := &Task{
		id:    id,
		pid:   KernelInitPID,
		state: TaskUninitialized,
		rip:   entry,
		stack: r.stacks.AllocKernelStack(r.stackSize),
	}

	r.mu.Lock()
	r.tasks.Put(id, task)
	r.mu.Unlock()

	return id
}

// Get looks up a task by id.
func (r *TaskRegistry) Get(id TaskID) (*Task, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.tasks.Get(id)
	if !ok {
		return nil, false
	}
	return v.(*Task), true
}

// Len returns the number of registered tasks.
func (r *TaskRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tasks.Size()
}
