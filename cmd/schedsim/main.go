package main

import (
	"fmt"
	"time"

	"minikern/internal/arch"
	"minikern/internal/sched"
)

func main() {
	// Read the configuration
	cfg := sched.Load("config.yml")
	fmt.Printf("Loaded config: %+v\n", cfg)

	machine := arch.NewMachine()
	kernel := sched.NewKernel(cfg, machine)

	// Spawn three kernel threads and let them compete with the boot task
	for _, entry := range []uint64{0x401000, 0x402000, 0x403000} {
		tid := kernel.SpawnKernelThread(entry)
		if err := kernel.ScheduleThread(tid); err != nil {
			panic(err)
		}
	}

	clock := arch.NewTickClock(machine, cfg.TimerVector)
	clock.Start(time.Duration(cfg.TickMS) * time.Millisecond)

	for i := 0; i < 12; i++ {
		time.Sleep(time.Duration(cfg.TickMS) * time.Millisecond)
		fmt.Printf("tick %03d => task: %d, thread: %d, rip: %#x, contended skips: %d\n",
			clock.Count(),
			kernel.CurrentTaskID(),
			kernel.CurrentThreadID(),
			machine.Frame().RIP,
			kernel.Timer.Failures(),
		)
	}
	clock.Stop()
}
