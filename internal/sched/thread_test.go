package sched

import (
	"testing"

	"minikern/internal/arch"
)

func TestSpawnKernelThread(t *testing.T) {
	kernel, _, _ := newTestKernel()

	queuedBefore := kernel.Scheduler.QueueLen()

	tid := kernel.SpawnKernelThread(0x401000)
	if tid != ThreadID(1) {
		t.Fatalf("expected first spawned thread to get tid 1; got %d", tid)
	}

	thread, ok := kernel.Threads.Get(tid)
	if !ok {
		t.Fatal("expected spawned thread to be registered")
	}
	if got := thread.Flags(); got != 0 {
		t.Errorf("expected spawned thread to be preemptible by default; got flags %b", got)
	}

	task := thread.Task()
	if task == nil {
		t.Fatal("expected spawned thread to own a task")
	}
	if _, rip, _ := task.Context(); rip != 0x401000 {
		t.Errorf("expected backing task entry %#x; got %#x", 0x401000, rip)
	}
	if got := task.Process(); got != KernelInitPID {
		t.Errorf("expected backing task to belong to the kernel process; got pid %d", got)
	}

	kernelProcess, _ := kernel.Processes.Get(KernelInitPID)
	if !kernelProcess.Threads().Contains(tid) {
		t.Error("expected spawned thread to join the kernel thread group")
	}

	if got, ok := kernel.Threads.ByTask(task.ID()); !ok || got != tid {
		t.Errorf("expected task %d to resolve to thread %d; got %d (ok=%v)", task.ID(), tid, got, ok)
	}

	// spawning must not schedule
	if got := kernel.Scheduler.QueueLen(); got != queuedBefore {
		t.Errorf("expected spawn to leave the run queue untouched; queue grew from %d to %d", queuedBefore, got)
	}
}

func TestThreadScheduleEnqueues(t *testing.T) {
	kernel, _, _ := newTestKernel()

	tid := kernel.SpawnKernelThread(0x401000)
	thread, _ := kernel.Threads.Get(tid)

	before := kernel.Scheduler.QueueLen()
	thread.Schedule(kernel.Scheduler)

	if got := kernel.Scheduler.QueueLen(); got != before+1 {
		t.Errorf("expected queue to grow by one; got %d, was %d", got, before)
	}
}

func TestScheduleUnknownThread(t *testing.T) {
	kernel, _, _ := newTestKernel()

	if err := kernel.ScheduleThread(ThreadID(42)); err == nil {
		t.Error("expected scheduling an unknown thread to fail")
	}
}

func TestBootThreadRegistered(t *testing.T) {
	machine := arch.NewMachine()
	tasks := NewTaskRegistry(machine, 16*1024)
	processes := NewProcessRegistry(machine, machine.KernelPageTable())
	threads := NewThreadRegistry(tasks, processes)

	bootThread, ok := threads.Get(KernelInitTID)
	if !ok {
		t.Fatal("expected boot thread to be registered")
	}
	if got := bootThread.Task().ID(); got != InitTask {
		t.Errorf("expected boot thread to wrap task %d; got %d", InitTask, got)
	}
	if got := threads.Len(); got != 1 {
		t.Errorf("expected exactly one thread after boot; got %d", got)
	}
	if got, ok := threads.ByTask(InitTask); !ok || got != KernelInitTID {
		t.Errorf("expected boot task to resolve to thread %d; got %d (ok=%v)", KernelInitTID, got, ok)
	}
}
