package sched

import (
	"errors"
	"testing"

	"minikern/internal/arch"
)

type failingMemory struct{}

func (failingMemory) AllocPage(size uint64) (uint64, error) {
	return 0, errors.New("out of physical pages")
}

func TestKernelProcessBoot(t *testing.T) {
	machine := arch.NewMachine()
	reg := NewProcessRegistry(machine, machine.KernelPageTable())

	kernelProcess, ok := reg.Get(KernelInitPID)
	if !ok {
		t.Fatal("expected kernel process to be registered at boot")
	}
	if got := kernelProcess.Name(); got != "system" {
		t.Errorf("expected kernel process name %q; got %q", "system", got)
	}
	if got := kernelProcess.PageTable(); got != machine.KernelPageTable() {
		t.Errorf("expected kernel page table %#x; got %#x", machine.KernelPageTable(), got)
	}

	group := kernelProcess.Threads()
	if got := group.ID(); got != KernelInitTGID {
		t.Errorf("expected kernel thread group id %d; got %d", KernelInitTGID, got)
	}
	if !group.Contains(KernelInitTID) {
		t.Error("expected kernel thread group to contain the boot thread")
	}
	if got := group.Len(); got != 1 {
		t.Errorf("expected kernel thread group size 1; got %d", got)
	}
}

func TestSpawnProcess(t *testing.T) {
	machine := arch.NewMachine()
	reg := NewProcessRegistry(machine, machine.KernelPageTable())

	var lastPageTable uint64
	for i, name := range []string{"initd", "shell"} {
		pid, err := reg.SpawnProcess(name, UserProcess)
		if err != nil {
			t.Fatalf("spawn %q: %v", name, err)
		}
		if want := ProcessID(i + 1); pid != want {
			t.Fatalf("expected monotonically assigned pid %d; got %d", want, pid)
		}

		process, ok := reg.Get(pid)
		if !ok {
			t.Fatalf("process %d not registered after spawn", pid)
		}
		if got := process.Name(); got != name {
			t.Errorf("expected name %q; got %q", name, got)
		}
		if !process.Flags().Has(UserProcess) {
			t.Errorf("expected process %d to carry UserProcess", pid)
		}
		if got := process.Threads().Len(); got != 0 {
			t.Errorf("expected process %d to start with an empty thread group; got %d threads", pid, got)
		}
		if pt := process.PageTable(); pt == 0 || pt == lastPageTable || pt == machine.KernelPageTable() {
			t.Errorf("expected process %d to get a fresh page table root; got %#x", pid, pt)
		}
		lastPageTable = process.PageTable()
	}
}

func TestSpawnProcessAllocationFailure(t *testing.T) {
	reg := NewProcessRegistry(failingMemory{}, 0x1000)

	if _, err := reg.SpawnProcess("doomed", 0); err == nil {
		t.Fatal("expected spawn to surface the page allocation error")
	}
	if got := reg.Len(); got != 1 {
		t.Errorf("expected only the kernel process to remain registered; got %d", got)
	}
}

func TestThreadGroupIdempotence(t *testing.T) {
	group := newThreadGroup(7)

	group.Insert(3)
	group.Insert(3)
	if got := group.Len(); got != 1 {
		t.Errorf("expected double insert to be a no-op; got size %d", got)
	}

	group.Remove(9)
	if got := group.Len(); got != 1 {
		t.Errorf("expected removal of absent id to be a no-op; got size %d", got)
	}

	group.Remove(3)
	if group.Contains(3) || group.Len() != 0 {
		t.Error("expected group to be empty after removal")
	}
}

func TestProcessFlagsHas(t *testing.T) {
	specs := []struct {
		flags ProcessFlags
		check ProcessFlags
		exp   bool
	}{
		{0, ProcessNoPreempt, false},
		{ProcessNoPreempt, ProcessNoPreempt, true},
		{UserProcess, ProcessNoPreempt, false},
		{UserProcess | ProcessNoPreempt, ProcessNoPreempt, true},
		{UserProcess | ProcessNoPreempt, UserProcess | ProcessNoPreempt, true},
	}

	for specIndex, spec := range specs {
		if got := spec.flags.Has(spec.check); got != spec.exp {
			t.Errorf("[spec %d] expected Has(%b) on %b to be %v", specIndex, spec.check, spec.flags, spec.exp)
		}
	}
}
