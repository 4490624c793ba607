package vmcs

import (
	"errors"
	"testing"
)

func minimalState(name string) *StaticState {
	return &StaticState{
		Name: name,
		Cr0:  0x8001_0031,
		Cr3:  0x1000,
		Cr4:  0x2020,
	}
}

func TestLaunchHappyPath(t *testing.T) {
	in := NewMockIntrinsics()
	in.MSRs[msrIA32VMXBasic] = 0x1234
	mem := &MockMemory{}

	co := &Coordinator{Intrinsics: in, Memory: mem, HostRIP: 0xF000}
	host := minimalState("host")
	guest := minimalState("guest")

	if err := co.Launch(host, guest); err != nil {
		t.Fatalf("Launch: %v", err)
	}
	if co.state != stateLaunched {
		t.Errorf("state = %v, want stateLaunched", co.state)
	}
	if co.region.Phys() == 0 {
		t.Errorf("region released after successful launch")
	}
}

func TestLaunchAllocationFail(t *testing.T) {
	in := NewMockIntrinsics()
	mem := &MockMemory{FailVirtToPhys: true}

	co := &Coordinator{Intrinsics: in, Memory: mem}
	err := co.Launch(minimalState("host"), minimalState("guest"))
	if !errors.Is(err, ErrRegionAllocationFailed) {
		t.Fatalf("Launch error = %v, want ErrRegionAllocationFailed", err)
	}
	if len(in.Fields) != 0 {
		t.Errorf("vmwrite observed before allocation failure: %v", in.Fields)
	}
}

func TestLaunchVMClearFail(t *testing.T) {
	in := NewMockIntrinsics()
	in.FailVMClear = true
	mem := &MockMemory{}

	co := &Coordinator{Intrinsics: in, Memory: mem}
	err := co.Launch(minimalState("host"), minimalState("guest"))

	var vmxErr *VmxInstructionFailedError
	if !errors.As(err, &vmxErr) {
		t.Fatalf("Launch error = %v, want *VmxInstructionFailedError", err)
	}
	if vmxErr.Which != WhichClear {
		t.Errorf("Which = %v, want WhichClear", vmxErr.Which)
	}
	if in.LastLoadedPhys != nil {
		t.Errorf("vmptrld called after vmclear failure")
	}
	if co.region.Phys() != 0 {
		t.Errorf("region.Phys() = %#x after failure, want 0", co.region.Phys())
	}
	if co.stack.base != 0 {
		t.Errorf("stack not released after failure")
	}
}

func TestLaunchHostRSPIsVirtualNotPhysical(t *testing.T) {
	in := NewMockIntrinsics()
	mem := &MockMemory{Offset: 0x1_0000_0000} // nonzero, so identity mapping would be a bug we'd catch

	co := &Coordinator{Intrinsics: in, Memory: mem, HostRIP: 0xF000}
	if err := co.Launch(minimalState("host"), minimalState("guest")); err != nil {
		t.Fatalf("Launch: %v", err)
	}

	gotRSP := in.Fields[fieldHostRSP]
	if gotRSP != co.stack.top() {
		t.Fatalf("HOST_RSP = %#x, want stack.top() = %#x", gotRSP, co.stack.top())
	}

	// A stack physical address would differ from the virtual one by
	// mem.Offset; if the stack were ever translated through the memory
	// port, HOST_RSP would not match the top computed from the raw
	// buffer address.
	rawTop := (uint64(regionVirtAddr(co.stack.buf)) + uint64(len(co.stack.buf))) &^ 0xF
	if gotRSP != rawTop {
		t.Fatalf("HOST_RSP = %#x looks like a translated physical address, want the raw virtual stack top %#x", gotRSP, rawTop)
	}
}

func TestLaunchFailWithChecker(t *testing.T) {
	in := NewMockIntrinsics()
	in.FailVMLaunch = true
	in.MSRs[msrIA32VMXCR0Fixed0] = 0x1 // bit 0 forced on
	in.MSRs[msrIA32VMXCR0Fixed1] = 0xFFFFFFFF
	in.VMInstructionErrorOnFail = 7

	mem := &MockMemory{}
	co := &Coordinator{Intrinsics: in, Memory: mem}

	host := minimalState("host")
	host.Cr0 = 0 // violates CR0_FIXED0's forced bit 0

	err := co.Launch(host, minimalState("guest"))

	var launchErr *LaunchFailedError
	if !errors.As(err, &launchErr) {
		t.Fatalf("Launch error = %v, want *LaunchFailedError", err)
	}
	if launchErr.VMInstructionError != 7 {
		t.Errorf("VMInstructionError = %d, want 7", launchErr.VMInstructionError)
	}
	if co.region.Phys() != 0 {
		t.Errorf("region not released after launch failure")
	}
}
