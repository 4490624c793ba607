package vmcs

// VMCS field identifiers, SDM Appendix B encodings. Named are the fields
// this package reads or writes, plus the CR0/CR4 guest/host masks and read
// shadows and guest RSP/RIP, which are named but not written. The rest of
// the architectural set is unnamed and left unwritten (it stays zero after
// VMCLEAR).
const (
	// 16-bit guest-state fields.
	fieldGuestESSelector    uint64 = 0x0800
	fieldGuestCSSelector    uint64 = 0x0802
	fieldGuestSSSelector    uint64 = 0x0804
	fieldGuestDSSelector    uint64 = 0x0806
	fieldGuestFSSelector    uint64 = 0x0808
	fieldGuestGSSelector    uint64 = 0x080A
	fieldGuestLDTRSelector  uint64 = 0x080C
	fieldGuestTRSelector    uint64 = 0x080E

	// 16-bit host-state fields.
	fieldHostESSelector uint64 = 0x0C00
	fieldHostCSSelector uint64 = 0x0C02
	fieldHostSSSelector uint64 = 0x0C04
	fieldHostDSSelector uint64 = 0x0C06
	fieldHostFSSelector uint64 = 0x0C08
	fieldHostGSSelector uint64 = 0x0C0A
	fieldHostTRSelector uint64 = 0x0C0C

	// 64-bit guest-state fields.
	fieldVMCSLinkPointer          uint64 = 0x2800
	fieldGuestIA32DebugCtl        uint64 = 0x2802
	fieldGuestIA32Pat             uint64 = 0x2804
	fieldGuestIA32Efer            uint64 = 0x2806
	fieldGuestIA32PerfGlobalCtrl  uint64 = 0x2808

	// 64-bit host-state fields.
	fieldHostIA32Pat            uint64 = 0x2C00
	fieldHostIA32Efer           uint64 = 0x2C02
	fieldHostIA32PerfGlobalCtrl uint64 = 0x2C04

	// 32-bit control fields (capability-derived seeds and synthesized
	// execution controls).
	fieldPinBasedVMExecControl    uint64 = 0x4000
	fieldProcBasedVMExecControl   uint64 = 0x4002
	fieldVMExitControls           uint64 = 0x400C
	fieldVMEntryControls          uint64 = 0x4012
	fieldSecondaryVMExecControl   uint64 = 0x401E
	fieldVMInstructionError       uint64 = 0x4400

	// 32-bit guest-state fields.
	fieldGuestESLimit        uint64 = 0x4800
	fieldGuestCSLimit        uint64 = 0x4802
	fieldGuestSSLimit        uint64 = 0x4804
	fieldGuestDSLimit        uint64 = 0x4806
	fieldGuestFSLimit        uint64 = 0x4808
	fieldGuestGSLimit        uint64 = 0x480A
	fieldGuestLDTRLimit      uint64 = 0x480C
	fieldGuestTRLimit        uint64 = 0x480E
	fieldGuestGDTRLimit      uint64 = 0x4810
	fieldGuestIDTRLimit      uint64 = 0x4812
	fieldGuestESAccessRights uint64 = 0x4814
	fieldGuestCSAccessRights uint64 = 0x4816
	fieldGuestSSAccessRights uint64 = 0x4818
	fieldGuestDSAccessRights uint64 = 0x481A
	fieldGuestFSAccessRights uint64 = 0x481C
	fieldGuestGSAccessRights uint64 = 0x481E
	fieldGuestLDTRAccessRights uint64 = 0x4820
	fieldGuestTRAccessRights uint64 = 0x4822
	fieldGuestSysenterCS     uint64 = 0x482A

	// 32-bit host-state fields.
	fieldHostSysenterCS uint64 = 0x4C00

	// natural-width control fields.
	fieldCR0GuestHostMask uint64 = 0x6000
	fieldCR4GuestHostMask uint64 = 0x6002
	fieldCR0ReadShadow    uint64 = 0x6004
	fieldCR4ReadShadow    uint64 = 0x6006

	// natural-width guest-state fields.
	fieldGuestCR0       uint64 = 0x6800
	fieldGuestCR3       uint64 = 0x6802
	fieldGuestCR4       uint64 = 0x6804
	fieldGuestESBase    uint64 = 0x6806
	fieldGuestCSBase    uint64 = 0x6808
	fieldGuestSSBase    uint64 = 0x680A
	fieldGuestDSBase    uint64 = 0x680C
	fieldGuestFSBase    uint64 = 0x680E
	fieldGuestGSBase    uint64 = 0x6810
	fieldGuestLDTRBase  uint64 = 0x6812
	fieldGuestTRBase    uint64 = 0x6814
	fieldGuestGDTRBase  uint64 = 0x6816
	fieldGuestIDTRBase  uint64 = 0x6818
	fieldGuestDR7       uint64 = 0x681A
	fieldGuestRSP       uint64 = 0x681C
	fieldGuestRIP       uint64 = 0x681E
	fieldGuestRFLAGS    uint64 = 0x6820
	fieldGuestSysenterESP uint64 = 0x6824
	fieldGuestSysenterEIP uint64 = 0x6826

	// natural-width host-state fields.
	fieldHostCR0        uint64 = 0x6C00
	fieldHostCR3        uint64 = 0x6C02
	fieldHostCR4        uint64 = 0x6C04
	fieldHostFSBase     uint64 = 0x6C06
	fieldHostGSBase     uint64 = 0x6C08
	fieldHostTRBase     uint64 = 0x6C0A
	fieldHostGDTRBase   uint64 = 0x6C0C
	fieldHostIDTRBase   uint64 = 0x6C0E
	fieldHostSysenterESP uint64 = 0x6C10
	fieldHostSysenterEIP uint64 = 0x6C12
	fieldHostRSP        uint64 = 0x6C14
	fieldHostRIP        uint64 = 0x6C16
)

// vmInstructionErrorNames maps the small SDM-defined VM_INSTRUCTION_ERROR
// enumeration to a human-readable string for diagnostics.
var vmInstructionErrorNames = map[uint64]string{
	1:  "VMCALL in VMX root operation",
	2:  "VMCLEAR with invalid physical address",
	3:  "VMCLEAR with VMXON pointer",
	4:  "VMLAUNCH with non-clear VMCS",
	5:  "VMRESUME with non-launched VMCS",
	6:  "VMRESUME after VMXOFF",
	7:  "VM entry with invalid control field(s)",
	8:  "VM entry with invalid host-state field(s)",
	9:  "VMPTRLD with invalid physical address",
	10: "VMPTRLD with VMXON pointer",
	11: "VMPTRLD with incorrect VMCS revision identifier",
	12: "VMREAD/VMWRITE from/to unsupported VMCS component",
	13: "VMWRITE to read-only VMCS component",
	15: "VMXON executed in VMX root operation",
	16: "VM entry with invalid executive-VMCS pointer",
	17: "VM entry with non-launched executive VMCS",
	18: "VM entry with executive-VMCS pointer not VMXON pointer",
	19: "VMCALL with non-clear VMCS",
	20: "VMCALL with invalid VM-exit control fields",
	22: "VMCALL with incorrect MSEG revision identifier",
	23: "VMXOFF under dual-monitor treatment of SMIs and SMM",
	24: "VMCALL with invalid SMM-monitor features",
	25: "VM entry with invalid VM-execution control fields in executive VMCS",
	26: "VM entry with events blocked by MOV SS",
	28: "Invalid operand to INVEPT/INVVPID",
}

func vmInstructionErrorName(code uint64) string {
	if name, ok := vmInstructionErrorNames[code]; ok {
		return name
	}
	return "unknown"
}
