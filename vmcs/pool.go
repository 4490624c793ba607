package vmcs

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"
)

// LogicalCPU identifies a host logical processor. It is only meaningful
// to RunFleet; a single Coordinator is unaware of which CPU it runs on.
type LogicalCPU int

// RunFleet launches one Coordinator per logical CPU concurrently, each
// pinned to its CPU before VMPTRLD, and returns the first error any of
// them produces. Generalizes the single-machine, single-locked-thread
// model of the teacher's RunInfiniteLoop (sandbox/machine/machine.go) to
// many logical CPUs bound to independent VMCS regions.
func RunFleet(ctx context.Context, cpus []LogicalCPU, newIntrinsics func(LogicalCPU) Intrinsics, mem MemoryPort, hostRIP uint64, hostFor, guestFor func(LogicalCPU) StateSnapshot) error {
	g, _ := errgroup.WithContext(ctx)
	for _, cpu := range cpus {
		cpu := cpu
		g.Go(func() error {
			runtime.LockOSThread()
			defer runtime.UnlockOSThread()

			if err := pinToCPU(cpu); err != nil {
				return fmt.Errorf("vmcs: pin logical cpu %d: %w", cpu, err)
			}

			co := &Coordinator{
				Intrinsics: newIntrinsics(cpu),
				Memory:     mem,
				HostRIP:    hostRIP,
			}
			if err := co.Launch(hostFor(cpu), guestFor(cpu)); err != nil {
				return fmt.Errorf("vmcs: logical cpu %d: %w", cpu, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// pinToCPU matches the calling OS thread's affinity to cpu, since VT-x
// requires the thread that executed VMPTRLD to stay on that physical core
// for the life of the VMCS.
func pinToCPU(cpu LogicalCPU) error {
	var set unix.CPUSet
	set.Zero()
	set.Set(int(cpu))
	return unix.SchedSetaffinity(0, &set)
}
