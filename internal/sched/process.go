package sched

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/emirpasic/gods/maps/treemap"

	"minikern/internal/arch"
)

// ProcessID uniquely identifies a process on the system.
type ProcessID uint64

// KernelInitPID is the process id of the kernel process created at boot.
const KernelInitPID ProcessID = 0

// ProcessFlags holds process-level option bits.
type ProcessFlags uint64

const (
	// UserProcess marks a process whose threads run in user mode.
	UserProcess ProcessFlags = 1 << iota

	// ProcessNoPreempt opts every thread of the process out of timer
	// preemption.
	ProcessNoPreempt
)

// Has reports whether all bits of flag are set.
func (f ProcessFlags) Has(flag ProcessFlags) bool { return f&flag == flag }

// Process is an address-space-owning unit grouping one or more threads.
type Process struct {
	mu sync.Mutex

	id        ProcessID
	name      string
	threads   *ThreadGroup
	parent    *ProcessID
	pageTable uint64
	flags     ProcessFlags
}

// ID returns the process identifier.
func (p *Process) ID() ProcessID { return p.id }

// Name returns the process name.
func (p *Process) Name() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.name
}

// PageTable returns the physical address of the process's page table root.
func (p *Process) PageTable() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pageTable
}

// Flags returns the process's option bits.
func (p *Process) Flags() ProcessFlags {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.flags
}

// SetFlags replaces the process's option bits.
func (p *Process) SetFlags(flags ProcessFlags) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.flags = flags
}

// Threads returns the process's thread group. The group is guarded by the
// process lock; callers mutate it through the registry spawn paths only.
func (p *Process) Threads() *ThreadGroup {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.threads
}

// ProcessRegistry is the system's process directory.
type ProcessRegistry struct {
	mu        sync.RWMutex
	processes *treemap.Map // ProcessID -> *Process

	nextID      atomic.Uint64
	nextGroupID atomic.Uint64
	memory      arch.MemoryAllocator
}

func processIDComparator(a, b interface{}) int {
	ka, kb := a.(ProcessID), b.(ProcessID)
	switch {
	case ka < kb:
		return -1
	case ka > kb:
		return 1
	default:
		return 0
	}
}

// NewProcessRegistry builds the process directory and registers the kernel
// process: pid 0, named "system", owning the boot thread, using the kernel
// page table.
func NewProcessRegistry(memory arch.MemoryAllocator, kernelPageTable uint64) *ProcessRegistry {
	r := &ProcessRegistry{
		processes: treemap.NewWith(processIDComparator),
		memory:    memory,
	}
	r.nextID.Store(uint64(KernelInitPID) + 1)

	kernelGroup := newThreadGroup(KernelInitTGID)
	kernelGroup.Insert(KernelInitTID)

	r.processes.Put(KernelInitPID, &Process{
		id:        KernelInitPID,
		name:      "system",
		threads:   kernelGroup,
		pageTable: kernelPageTable,
	})
	return r
}

// SpawnProcess allocates a fresh address space and registers a new process
// with an empty thread group. Callers are responsible for spawning and
// scheduling the process's first thread.
func (r *ProcessRegistry) SpawnProcess(name string, flags ProcessFlags) (ProcessID, error) {
	pageTable, err := r.memory.AllocPage(arch.PageSize)
	if err != nil {
		return 0, fmt.Errorf("spawn process %q: page table allocation: %w", name, err)
	}

	pid := ProcessID(r.nextID.Add(1) - 1)
	process := &Process{
		id:        pid,
		name:      name,
		threads:   newThreadGroup(ThreadGroupID(r.nextGroupID.Add(1))),
		pageTable: pageTable,
		flags:     flags,
	}

	r.mu.Lock()
	r.processes.Put(pid, process)
	r.mu.Unlock()

	return pid, nil
}

// Get looks up a process by id.
func (r *ProcessRegistry) Get(id ProcessID) (*Process, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.processes.Get(id)
	if !ok {
		return nil, false
	}
	return v.(*Process), true
}

// Len returns the number of registered processes.
func (r *ProcessRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.processes.Size()
}
