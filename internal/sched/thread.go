package sched

import (
	"sync"
	"sync/atomic"

	"github.com/emirpasic/gods/maps/hashmap"
	"github.com/emirpasic/gods/sets/hashset"
)

// ThreadID uniquely identifies a thread on the system.
type ThreadID uint64

// KernelInitTID is the thread id of the boot thread.
const KernelInitTID ThreadID = 0

// ThreadGroupID uniquely identifies a thread group.
type ThreadGroupID uint64

// KernelInitTGID is the group id of the kernel process's thread group.
const KernelInitTGID ThreadGroupID = 0

// ThreadFlags holds thread-level option bits.
type ThreadFlags uint64

// ThreadNoPreempt opts a single thread out of timer preemption.
const ThreadNoPreempt ThreadFlags = 1 << iota

// Has reports whether all bits of flag are set.
func (f ThreadFlags) Has(flag ThreadFlags) bool { return f&flag == flag }

// Thread is a schedulable unit within a process, wrapping exactly one task.
type Thread struct {
	mu sync.Mutex

	id    ThreadID
	task  *Task
	flags ThreadFlags
}

// ID returns the thread identifier.
func (t *Thread) ID() ThreadID { return t.id }

// Task returns the execution context backing this thread.
func (t *Thread) Task() *Task {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.task
}

// Flags returns the thread's option bits.
func (t *Thread) Flags() ThreadFlags {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.flags
}

// SetFlags replaces the thread's option bits.
func (t *Thread) SetFlags(flags ThreadFlags) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.flags = flags
}

// Schedule admits the thread's task into the run queue. Spawning does not
// schedule; a thread only competes for CPU time after this call.
func (t *Thread) Schedule(scheduler *GlobalScheduler) {
	scheduler.Enqueue(t.Task().ID())
}

// ThreadGroup is the set of thread ids belonging to one process. It is
// guarded by the owning process's lock.
type ThreadGroup struct {
	id      ThreadGroupID
	threads *hashset.Set
}

func newThreadGroup(id ThreadGroupID) *ThreadGroup {
	return &ThreadGroup{id: id, threads: hashset.New()}
}

// ID returns the group identifier.
func (g *ThreadGroup) ID() ThreadGroupID { return g.id }

// Insert adds a thread to the group. Inserting a present id is a no-op.
func (g *ThreadGroup) Insert(id ThreadID) {
	g.threads.Add(id)
}

// Remove takes a thread out of the group. Removing an absent id is a no-op.
func (g *ThreadGroup) Remove(id ThreadID) {
	g.threads.Remove(id)
}

// Contains reports whether the thread belongs to the group.
func (g *ThreadGroup) Contains(id ThreadID) bool {
	return g.threads.Contains(id)
}

// Len returns the number of threads in the group.
func (g *ThreadGroup) Len() int {
	return g.threads.Size()
}

// ThreadRegistry is the system's thread directory.
type ThreadRegistry struct {
	mu      sync.RWMutex
	threads *hashmap.Map // ThreadID -> *Thread
	byTask  *hashmap.Map // TaskID -> ThreadID

	nextID    atomic.Uint64
	tasks     *TaskRegistry
	processes *ProcessRegistry
}

// NewThreadRegistry builds the thread directory and registers the boot
// thread: tid 0, wrapping the boot task, member of the kernel process's
// group.
func NewThreadRegistry(tasks *TaskRegistry, processes *ProcessRegistry) *ThreadRegistry {
	r := &ThreadRegistry{
		threads:   hashmap.New(),
		byTask:    hashmap.New(),
		tasks:     tasks,
		processes: processes,
	}
	r.nextID.Store(uint64(KernelInitTID) + 1)

	initTask, ok := tasks.Get(InitTask)
	if !ok {
		panic("boot task missing from task registry")
	}
	r.threads.Put(KernelInitTID, &Thread{id: KernelInitTID, task: initTask})
	r.byTask.Put(InitTask, KernelInitTID)
	return r
}

// SpawnKernelThread creates the backing task for entry, wraps it in a new
// preemptible thread under the kernel process, and registers it. The thread
// is not enqueued for scheduling; call Thread.Schedule for that.
func (r *ThreadRegistry) SpawnKernelThread(entry uint64) ThreadID {
	tid := ThreadID(r.nextID.Add(1) - 1)

	taskID := r.tasks.CreateKernelTask(entry)
	task, ok := r.tasks.Get(taskID)
	if !ok {
		panic("freshly created task missing from task registry")
	}

	kernelProcess, ok := r.processes.Get(KernelInitPID)
	if !ok {
		panic("kernel process not initialized")
	}
	kernelProcess.mu.Lock()
	kernelProcess.threads.Insert(tid)
	kernelProcess.mu.Unlock()

	r.mu.Lock()
	r.threads.Put(tid, &Thread{id: tid, task: task})
	r.byTask.Put(taskID, tid)
	r.mu.Unlock()

	return tid
}

// Get looks up a thread by id.
func (r *ThreadRegistry) Get(id ThreadID) (*Thread, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.threads.Get(id)
	if !ok {
		return nil, false
	}
	return v.(*Thread), true
}

// ByTask resolves the thread owning the given task.
func (r *ThreadRegistry) ByTask(id TaskID) (ThreadID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.byTask.Get(id)
	if !ok {
		return 0, false
	}
	return v.(ThreadID), true
}

// Len returns the number of registered threads.
func (r *ThreadRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.threads.Size()
}
