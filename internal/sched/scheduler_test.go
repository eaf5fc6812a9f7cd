package sched

import (
	"testing"

	"minikern/internal/arch"
)

// newTestKernel boots the subsystem on a fresh simulated machine with quiet
// logging.
func newTestKernel() (*Kernel, *arch.Machine, Config) {
	cfg := defaultConfig()
	cfg.LogLevel = "error"
	machine := arch.NewMachine()
	return NewKernel(cfg, machine), machine, cfg
}

func TestSelfSelectionIsNoOp(t *testing.T) {
	kernel, machine, cfg := newTestKernel()

	// only the boot task is runnable
	before := machine.Frame()
	bootTask, _ := kernel.CurrentTask()

	for i := 0; i < 5; i++ {
		machine.Raise(cfg.TimerVector)
	}

	if after := machine.Frame(); after != before {
		t.Errorf("expected frame to be untouched by self-selection; got %+v, want %+v", after, before)
	}
	if got := kernel.CurrentTaskID(); got != InitTask {
		t.Errorf("expected current task to remain %d; got %d", InitTask, got)
	}
	if got := bootTask.State(); got != TaskRunning {
		t.Errorf("expected boot task to remain Running; got %s", got)
	}
	stack, rip, regs := bootTask.Context()
	if stack != 0 || rip != 0 || regs != (arch.Regs{}) {
		t.Errorf("expected boot task record to be unmodified; got stack=%#x rip=%#x regs=%+v", stack, rip, regs)
	}
}

func TestInterruptSwitchRoundRobin(t *testing.T) {
	kernel, machine, cfg := newTestKernel()

	// spawn T1, T2, T3 and make T1 the running thread with a queue of
	// exactly those three
	var tids []ThreadID
	for _, entry := range []uint64{0x401000, 0x402000, 0x403000} {
		tid := kernel.SpawnKernelThread(entry)
		if err := kernel.ScheduleThread(tid); err != nil {
			t.Fatalf("schedule thread %d: %v", tid, err)
		}
		tids = append(tids, tid)
	}
	kernel.Scheduler.Dequeue(InitTask)

	machine.Raise(cfg.TimerVector) // boot task -> T1
	if got := kernel.CurrentThreadID(); got != tids[0] {
		t.Fatalf("expected T1 (%d) running after first tick; got thread %d", tids[0], got)
	}

	want := []ThreadID{tids[1], tids[2], tids[0], tids[1]}
	for i, exp := range want {
		machine.Raise(cfg.TimerVector)
		if got := kernel.CurrentThreadID(); got != exp {
			t.Errorf("[tick %d] expected current thread %d; got %d", i, exp, got)
		}
	}
}

func TestStateMachineFidelity(t *testing.T) {
	kernel, machine, cfg := newTestKernel()

	tid := kernel.SpawnKernelThread(0x401000)
	thread, _ := kernel.Threads.Get(tid)
	task := thread.Task()
	bootTask, _ := kernel.Tasks.Get(InitTask)

	if got := task.State(); got != TaskUninitialized {
		t.Fatalf("expected fresh task to be Uninitialized; got %s", got)
	}

	// not yet scheduled: ticks must not touch it
	machine.Raise(cfg.TimerVector)
	if got := task.State(); got != TaskUninitialized {
		t.Fatalf("expected unscheduled task to stay Uninitialized; got %s", got)
	}

	if err := kernel.ScheduleThread(tid); err != nil {
		t.Fatalf("schedule thread: %v", err)
	}
	kernel.Scheduler.Dequeue(InitTask)
	machine.Raise(cfg.TimerVector)

	// first dispatch: Uninitialized -> Running, never through Waiting
	if got := task.State(); got != TaskRunning {
		t.Errorf("expected first-dispatched task to be Running; got %s", got)
	}
	if got := bootTask.State(); got != TaskWaiting {
		t.Errorf("expected replaced boot task to be Waiting; got %s", got)
	}
	if got := kernel.CurrentTaskID(); got != task.ID() {
		t.Errorf("expected current task %d; got %d", task.ID(), got)
	}

	// the dispatched frame runs the thread entry on its own stack
	frame := machine.Frame()
	if frame.RIP != 0x401000 {
		t.Errorf("expected dispatched rip %#x; got %#x", 0x401000, frame.RIP)
	}
	stack, _, _ := task.Context()
	if frame.RSP != stack {
		t.Errorf("expected dispatched rsp %#x; got %#x", stack, frame.RSP)
	}
}

func TestVoluntarySwitchRoundTrip(t *testing.T) {
	kernel, machine, _ := newTestKernel()

	tid := kernel.SpawnKernelThread(0x401000)
	thread, _ := kernel.Threads.Get(tid)
	target := thread.Task().ID()

	before := machine.Frame()

	kernel.Scheduler.SwitchTo(target)
	if got := kernel.CurrentTaskID(); got != target {
		t.Fatalf("expected current task %d after voluntary switch; got %d", target, got)
	}
	if got := kernel.CurrentThreadID(); got != tid {
		t.Errorf("expected current thread %d; got %d", tid, got)
	}
	if got := machine.Frame().RIP; got != 0x401000 {
		t.Errorf("expected rip %#x after switch; got %#x", 0x401000, got)
	}

	bootTask, _ := kernel.Tasks.Get(InitTask)
	if got := bootTask.State(); got != TaskWaiting {
		t.Errorf("expected boot task to be Waiting; got %s", got)
	}

	// switching back restores the saved boot context bit-for-bit
	kernel.Scheduler.SwitchTo(InitTask)
	if got := machine.Frame(); got != before {
		t.Errorf("expected boot context to be restored; got %+v, want %+v", got, before)
	}
	if got := bootTask.State(); got != TaskRunning {
		t.Errorf("expected boot task to be Running again; got %s", got)
	}
}

func TestVoluntarySwitchToSelfIsNoOp(t *testing.T) {
	kernel, machine, _ := newTestKernel()

	before := machine.Frame()
	kernel.Scheduler.SwitchTo(InitTask)

	if got := machine.Frame(); got != before {
		t.Errorf("expected frame unchanged; got %+v, want %+v", got, before)
	}
}

func TestSwitchToUnknownTaskPanics(t *testing.T) {
	kernel, _, _ := newTestKernel()

	defer func() {
		if recover() == nil {
			t.Error("expected switch to unknown task to panic")
		}
	}()
	kernel.Scheduler.SwitchTo(TaskID(42))
}

func TestEndOfInterruptOncePerTick(t *testing.T) {
	kernel, machine, cfg := newTestKernel()

	tid := kernel.SpawnKernelThread(0x401000)
	if err := kernel.ScheduleThread(tid); err != nil {
		t.Fatalf("schedule thread: %v", err)
	}

	// mix of switch, self-selection and opt-out ticks
	for i := 0; i < 4; i++ {
		machine.Raise(cfg.TimerVector)
	}
	kernelProcess, _ := kernel.Processes.Get(KernelInitPID)
	kernelProcess.SetFlags(ProcessNoPreempt)
	for i := 0; i < 3; i++ {
		machine.Raise(cfg.TimerVector)
	}

	if got := machine.EOICount(); got != 7 {
		t.Errorf("expected exactly one EOI per serviced tick (7); got %d", got)
	}
}
