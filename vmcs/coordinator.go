package vmcs

import "log"

// coordinatorState names the points in the launch pipeline, mirroring the
// Idle -> RegionCreated -> ... -> Launched|Failed state machine.
type coordinatorState int

const (
	stateIdle coordinatorState = iota
	stateRegionCreated
	stateStackCreated
	stateCleared
	stateLoaded
	stateStateWritten
	stateControlsWritten
	stateLaunched
	stateFailed
)

// Coordinator owns one VMCS region and exit-handler stack for the
// duration of a single launch attempt. It is not safe for concurrent use;
// RunFleet (pool.go) gives each logical CPU its own Coordinator.
type Coordinator struct {
	Intrinsics Intrinsics
	Memory     MemoryPort
	Checker    Checker

	// HostRIP is the exit-handler entry address written verbatim into
	// VMCS_HOST_RIP. The coordinator does not interpret it.
	HostRIP uint64

	state  coordinatorState
	region *VmcsRegion
	stack  *ExitHandlerStack
}

// Launch executes create-region -> create-stack -> VMCLEAR -> VMPTRLD ->
// write guest fields -> write host fields -> seed + synthesize controls
// -> VMLAUNCH. Any failure before VMLAUNCH releases acquired resources in
// LIFO order and returns immediately. Failure at VMLAUNCH runs the
// checker and diagnostics before returning LaunchFailedError.
func (co *Coordinator) Launch(host, guest StateSnapshot) error {
	co.state = stateIdle

	region, err := createRegion(co.Memory, co.Intrinsics)
	if err != nil {
		co.state = stateFailed
		return err
	}
	co.region = region
	co.state = stateRegionCreated

	co.stack = createExitHandlerStack()
	co.state = stateStackCreated

	if !co.Intrinsics.VMClear(&co.region.phys) {
		co.releaseAll()
		return &VmxInstructionFailedError{Which: WhichClear}
	}
	co.state = stateCleared

	if !co.Intrinsics.VMPtrld(&co.region.phys) {
		co.releaseAll()
		return &VmxInstructionFailedError{Which: WhichLoad}
	}
	co.state = stateLoaded

	acc := &vmcsAccess{in: co.Intrinsics}

	if err := writeGuestState(acc, guest); err != nil {
		co.releaseAll()
		return err
	}
	if err := writeHostState(acc, host, co.stack, co.HostRIP); err != nil {
		co.releaseAll()
		return err
	}
	co.state = stateStateWritten

	if err := seedControlFields(acc); err != nil {
		co.releaseAll()
		return err
	}
	if err := synthesizeControls(acc); err != nil {
		co.releaseAll()
		return err
	}
	co.state = stateControlsWritten

	if !co.Intrinsics.VMLaunch() {
		err := co.diagnoseLaunchFailure(acc, host, guest)
		co.releaseAll()
		return err
	}
	co.state = stateLaunched
	return nil
}

// diagnoseLaunchFailure runs the checker, prints diagnostics, and reads
// VM_INSTRUCTION_ERROR, matching §4.6's post-checker sequence.
func (co *Coordinator) diagnoseLaunchFailure(acc *vmcsAccess, host, guest StateSnapshot) error {
	caps, err := ProbeCapabilities(co.Intrinsics)
	if err != nil {
		return err
	}
	if checkErr := co.Checker.Run(acc, caps, host, guest); checkErr != nil {
		if debug {
			log.Printf("coordinator: launch failed, first violated check: %v", checkErr)
		}
	}

	DumpControls(acc)
	host.Dump()
	guest.Dump()
	DisassembleFaultingInstruction(guest, guest.RIP())

	errCode, rerr := acc.vmread(fieldVMInstructionError)
	if rerr != nil {
		return rerr
	}
	return &LaunchFailedError{VMInstructionError: errCode}
}

// releaseAll releases the stack then the region, LIFO order of
// acquisition, and marks the coordinator Failed. Safe to call multiple
// times.
func (co *Coordinator) releaseAll() {
	co.stack.release()
	co.region.release()
	co.state = stateFailed
}

// Resume transfers control through the resume trampoline with the saved
// state pointer. The trampoline is not expected to return; if it does,
// that is itself an error.
func (co *Coordinator) Resume(trampoline func()) error {
	trampoline()
	return ErrResumeReturned
}

// Promote transfers control through the promotion trampoline, restoring
// host state as a regular non-VMX context. Not expected to return.
func (co *Coordinator) Promote(trampoline func(hostGSBase uint64), hostGSBase uint64) error {
	trampoline(hostGSBase)
	return ErrPromoteReturned
}
