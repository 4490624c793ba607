package vmcs

import (
	"log"

	"golang.org/x/arch/x86/x86asm"
)

// DumpControls prints the five execution-control fields, the first half
// of the diagnostic dump on launch failure. VM_INSTRUCTION_ERROR is read
// by the coordinator and reported through LaunchFailedError.
func DumpControls(c *vmcsAccess) {
	fields := []struct {
		name  string
		field uint64
	}{
		{"pin_based", fieldPinBasedVMExecControl},
		{"proc_based", fieldProcBasedVMExecControl},
		{"proc_based2", fieldSecondaryVMExecControl},
		{"vm_exit", fieldVMExitControls},
		{"vm_entry", fieldVMEntryControls},
	}
	for _, f := range fields {
		v, err := c.vmread(f.field)
		if err != nil {
			log.Printf("controls: %s unreadable: %v", f.name, err)
			continue
		}
		log.Printf("controls: %s = %#010x", f.name, v)
	}
}

// DisassembleFaultingInstruction decodes and prints the guest instruction
// at rip using the bytes s supplies, the same x86asm.Decode/GNUSyntax
// pair the teacher's Inst()/Asm() helpers use (sandbox/machine/
// debug_amd64.go). It is best-effort: an unmapped or undecodable range
// logs nothing rather than failing the diagnostic dump.
func DisassembleFaultingInstruction(s StateSnapshot, rip uint64) {
	buf := make([]byte, 16)
	n := s.InstructionBytes(rip, buf)
	if n == 0 {
		return
	}
	inst, err := x86asm.Decode(buf[:n], 64)
	if err != nil {
		log.Printf("diagnostics: decode at rip %#x failed: %v", rip, err)
		return
	}
	log.Printf("diagnostics: rip %#x: %s", rip, x86asm.GNUSyntax(inst, rip, nil))
}
