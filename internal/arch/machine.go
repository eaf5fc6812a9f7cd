package arch

import (
	"sync"
	"sync/atomic"
)

// PageSize is the size of a physical page handed out by AllocPage.
const PageSize = 4096

const (
	// Selector and flag values installed into the boot context.
	kernelCS     = 0x08
	kernelSS     = 0x10
	bootRFlags   = 0x202
	stackRegion  = 0x0000_0000_0020_0000
	pageRegion   = 0x0000_0000_0100_0000
	bootStackTop = stackRegion
)

// Machine is a simulated x86 machine: a bump stack allocator, a vector
// table, an interrupt controller and one CPU execution context. It
// implements every port the scheduling subsystem consumes.
type Machine struct {
	mu       sync.Mutex
	vectors  [256]Handler
	frame    InterruptFrame
	stackEnd uint64
	pageEnd  uint64

	kernelPageTable uint64

	eoiCount   atomic.Uint64
	restoreSeq uint64
}

// NewMachine builds a machine whose CPU is executing the boot context on the
// boot stack, with a kernel page table already allocated.
func NewMachine() *Machine {
	m := &Machine{
		stackEnd: stackRegion,
		pageEnd:  pageRegion,
		frame: InterruptFrame{
			CS:     kernelCS,
			SS:     kernelSS,
			RFlags: bootRFlags,
			RSP:    bootStackTop,
		},
	}
	m.kernelPageTable, _ = m.AllocPage(PageSize)
	return m
}

// KernelPageTable returns the physical address of the kernel page table
// root.
func (m *Machine) KernelPageTable() uint64 { return m.kernelPageTable }

// AllocKernelStack reserves size bytes above the previously allocated stack
// and returns the new stack top.
func (m *Machine) AllocKernelStack(size uint64) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stackEnd += size
	return m.stackEnd
}

// AllocPage reserves one page and returns its physical address.
func (m *Machine) AllocPage(size uint64) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	addr := m.pageEnd
	m.pageEnd += size
	return addr, nil
}

// RegisterHandler binds handler to the given interrupt vector, replacing any
// previous binding.
func (m *Machine) RegisterHandler(vector uint8, handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vectors[vector] = handler
}

// SignalEndOfInterrupt acknowledges the in-service interrupt.
func (m *Machine) SignalEndOfInterrupt() {
	m.eoiCount.Add(1)
}

// EOICount returns the number of end-of-interrupt signals received.
func (m *Machine) EOICount() uint64 {
	return m.eoiCount.Load()
}

// SaveContext captures the currently executing CPU context.
func (m *Machine) SaveContext() InterruptFrame {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.frame
}

// RestoreContext installs frame as the executing CPU context. This is the
// simulated iret: once called, the interrupted context is gone and any
// in-flight handler frame is discarded on return.
func (m *Machine) RestoreContext(frame InterruptFrame) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frame = frame
	m.restoreSeq++
}

// Frame returns a copy of the executing CPU context.
func (m *Machine) Frame() InterruptFrame {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.frame
}

// Raise delivers an interrupt on the given vector: the CPU pushes a frame
// describing the interrupted context and invokes the bound handler with it.
// If the handler returns without restoring a context, its modifications to
// the frame are propagated back, as on hardware.
func (m *Machine) Raise(vector uint8) {
	m.mu.Lock()
	handler := m.vectors[vector]
	frame := m.frame
	seqBefore := m.restoreSeq
	m.mu.Unlock()

	if handler == nil {
		return
	}
	handler(&frame)

	m.mu.Lock()
	if m.restoreSeq == seqBefore {
		m.frame = frame
	}
	m.mu.Unlock()
}
