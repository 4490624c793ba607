package vmcs

// CapabilitySet bundles every capability MSR the control synthesizer and
// checker consult, read once up front so neither has to re-query the
// intrinsics port per call site. Grounded on the teacher's
// KVMCapabilities/ProbeCPUID helpers (sandbox/machine/cap.go), which probe
// a fixed set of capability bits once rather than per call site.
type CapabilitySet struct {
	Basic uint64

	PinbasedAllowed0, PinbasedAllowed1     uint32
	ProcbasedAllowed0, ProcbasedAllowed1   uint32
	Procbased2Allowed0, Procbased2Allowed1 uint32
	ExitAllowed0, ExitAllowed1             uint32
	EntryAllowed0, EntryAllowed1           uint32

	CR0Fixed0, CR0Fixed1 uint64
	CR4Fixed0, CR4Fixed1 uint64

	// PhysAddrWidth is the maximum physical address width reported by
	// CPUID leaf 0x80000008, EAX[7:0].
	PhysAddrWidth uint8
}

// ProbeCapabilities reads IA32_VMX_BASIC, the five control capability
// MSRs, the four CR0/CR4 fixed-bit MSRs and the physical address width
// once, returning the control MSRs pre-split into allowed0/allowed1 pairs.
func ProbeCapabilities(in Intrinsics) (*CapabilitySet, error) {
	cs := &CapabilitySet{
		Basic:     in.ReadMSR(msrIA32VMXBasic),
		CR0Fixed0: in.ReadMSR(msrIA32VMXCR0Fixed0),
		CR0Fixed1: in.ReadMSR(msrIA32VMXCR0Fixed1),
		CR4Fixed0: in.ReadMSR(msrIA32VMXCR4Fixed0),
		CR4Fixed1: in.ReadMSR(msrIA32VMXCR4Fixed1),
	}
	cs.PinbasedAllowed0, cs.PinbasedAllowed1 = splitAllowed(in.ReadMSR(msrIA32VMXTruePinbasedCtls))
	cs.ProcbasedAllowed0, cs.ProcbasedAllowed1 = splitAllowed(in.ReadMSR(msrIA32VMXTrueProcbasedCtls))
	cs.Procbased2Allowed0, cs.Procbased2Allowed1 = splitAllowed(in.ReadMSR(msrIA32VMXProcbasedCtls2))
	cs.ExitAllowed0, cs.ExitAllowed1 = splitAllowed(in.ReadMSR(msrIA32VMXTrueExitCtls))
	cs.EntryAllowed0, cs.EntryAllowed1 = splitAllowed(in.ReadMSR(msrIA32VMXTrueEntryCtls))
	cs.PhysAddrWidth = uint8(in.CPUIDEax(0x80000008) & 0xFF)
	if cs.PhysAddrWidth == 0 {
		cs.PhysAddrWidth = 36 // conservative default when the leaf is unavailable
	}
	return cs, nil
}

// physAddrCeiling is the highest representable physical address given the
// probed width, used by the host CR3 check.
func (cs *CapabilitySet) physAddrCeiling() uint64 {
	return (uint64(1) << cs.PhysAddrWidth) - 1
}
