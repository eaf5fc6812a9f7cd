// Package arch is the hardware boundary of the scheduling subsystem.
//
// It defines the register-snapshot and interrupt-frame layouts the CPU hands
// to interrupt handlers, plus the narrow ports (stack allocation, interrupt
// registration, end-of-interrupt, context save/restore) through which the
// scheduler talks to the machine. Everything above this package is
// architecture-neutral.
package arch

// Regs contains a snapshot of the general purpose register values at the
// moment an interrupt occurred.
type Regs struct {
	RAX uint64
	RBX uint64
	RCX uint64
	RDX uint64
	RSI uint64
	RDI uint64
	RBP uint64
	R8  uint64
	R9  uint64
	R10 uint64
	R11 uint64
	R12 uint64
	R13 uint64
	R14 uint64
	R15 uint64
}

// InterruptFrame describes the stack frame set up by the CPU when an
// interrupt is raised. Handlers receive it by pointer; modifications are
// propagated back to the interrupted context when the handler returns.
type InterruptFrame struct {
	// RIP is the saved instruction pointer prior to the interrupt.
	RIP uint64

	// CS is the saved code segment selector.
	CS uint64

	// RFlags is the saved content of the RFLAGS register.
	RFlags uint64

	// RSP is the saved stack pointer prior to the interrupt.
	RSP uint64

	// SS is the saved stack segment selector.
	SS uint64

	// Regs holds the saved general purpose registers.
	Regs Regs
}

// Handler is invoked when its registered interrupt vector fires.
type Handler func(*InterruptFrame)

// StackAllocator hands out kernel stacks. Allocation never fails; stack
// exhaustion is a fatal machine condition, not a recoverable error.
type StackAllocator interface {
	// AllocKernelStack reserves size bytes and returns the address of the
	// stack top (stacks grow downwards).
	AllocKernelStack(size uint64) uint64
}

// InterruptRegistrar binds handlers to interrupt vectors.
type InterruptRegistrar interface {
	RegisterHandler(vector uint8, handler Handler)
}

// InterruptController acknowledges serviced interrupts. SignalEndOfInterrupt
// must be called exactly once per serviced interrupt, after all scheduler
// state has been unlocked.
type InterruptController interface {
	SignalEndOfInterrupt()
}

// ContextOps exposes the two architecture-specific context primitives. The
// switch algorithm only ever copies frames through this boundary, never
// interprets register contents.
type ContextOps interface {
	// SaveContext captures the execution context of the caller.
	SaveContext() InterruptFrame

	// RestoreContext transfers control into the given context. On real
	// hardware this is an iret and does not return; implementations model
	// that by making the frame the machine's executing context.
	RestoreContext(InterruptFrame)
}

// MemoryAllocator hands out physical pages, used for process page-table
// roots.
type MemoryAllocator interface {
	// AllocPage reserves one page of the given size and returns its
	// physical address, or an error if no page is available.
	AllocPage(size uint64) (uint64, error)
}
