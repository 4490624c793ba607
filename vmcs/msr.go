package vmcs

// MSR indices consumed by capability probing, control synthesis, and the
// field writer. Named the way the SDM names them.
const (
	msrIA32VMXBasic              uint32 = 0x480
	msrIA32VMXCR0Fixed0          uint32 = 0x486
	msrIA32VMXCR0Fixed1          uint32 = 0x487
	msrIA32VMXCR4Fixed0          uint32 = 0x488
	msrIA32VMXCR4Fixed1          uint32 = 0x489
	msrIA32VMXTruePinbasedCtls   uint32 = 0x48D
	msrIA32VMXTrueProcbasedCtls  uint32 = 0x48E
	msrIA32VMXTrueExitCtls       uint32 = 0x48F
	msrIA32VMXTrueEntryCtls      uint32 = 0x490
	msrIA32VMXProcbasedCtls2     uint32 = 0x48B

	msrIA32SysenterCS  uint32 = 0x174
	msrIA32SysenterESP uint32 = 0x175
	msrIA32SysenterEIP uint32 = 0x176
	msrIA32DebugCtl    uint32 = 0x1D9
	msrIA32Pat         uint32 = 0x277
	msrIA32Efer        uint32 = 0xC0000080
	msrIA32FSBase      uint32 = 0xC0000100
	msrIA32GSBase      uint32 = 0xC0000101
	msrIA32PerfGlobalCtrl uint32 = 0x38F
)

// vmxRevisionID returns the value stamped into the first 32 bits of a
// VMCS region: IA32_VMX_BASIC masked with 0x7FFFFFFFF, as
// create_vmcs_region() does, truncated to the 32-bit word it is stored in.
func vmxRevisionID(basic uint64) uint32 {
	return uint32(basic & 0x7FFFFFFFF)
}

// splitAllowed splits a capability MSR into its allowed-0 (bits that must
// be 1) and allowed-1 (bits that may be 1) halves.
func splitAllowed(cap uint64) (allowed0, allowed1 uint32) {
	return uint32(cap), uint32(cap >> 32)
}

// seedValue returns the initial control word the 32-bit control-state
// writer seeds a field with before desired bits are OR'd in: every bit
// the processor both forces on and permits.
func seedValue(cap uint64) uint32 {
	allowed0, allowed1 := splitAllowed(cap)
	return allowed0 & allowed1
}
