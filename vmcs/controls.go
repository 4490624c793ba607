package vmcs

import "log"

// Desired execution-control bits for a minimum-viable launch. Bit values
// per Intel SDM Appendix A; only the bits this package actually sets are
// named, matching the teacher convention of naming constants at their
// point of use rather than transcribing the full architectural set.
const (
	pinDesired uint32 = 0

	procActivateSecondaryControls uint32 = 1 << 31
	procDesired                   uint32 = procActivateSecondaryControls

	proc2EnableRDTSCP        uint32 = 1 << 3
	proc2EnableINVPCID       uint32 = 1 << 12
	proc2EnableXSavesXRstors uint32 = 1 << 20
	proc2Desired             uint32 = proc2EnableRDTSCP | proc2EnableINVPCID | proc2EnableXSavesXRstors

	exitSaveDebugControls         uint32 = 1 << 2
	exitHostAddressSpaceSize      uint32 = 1 << 9
	exitLoadIA32PerfGlobalCtrl    uint32 = 1 << 12
	exitAckInterruptOnExit        uint32 = 1 << 15
	exitSaveIA32Pat               uint32 = 1 << 18
	exitLoadIA32Pat                uint32 = 1 << 19
	exitSaveIA32Efer              uint32 = 1 << 20
	exitLoadIA32Efer              uint32 = 1 << 21
	exitDesired = exitSaveDebugControls | exitHostAddressSpaceSize | exitLoadIA32PerfGlobalCtrl |
		exitAckInterruptOnExit | exitSaveIA32Pat | exitLoadIA32Pat | exitSaveIA32Efer | exitLoadIA32Efer

	entryLoadDebugControls      uint32 = 1 << 2
	entryIA32eModeGuest         uint32 = 1 << 9
	entryLoadIA32PerfGlobalCtrl uint32 = 1 << 13
	entryLoadIA32Pat            uint32 = 1 << 14
	entryLoadIA32Efer           uint32 = 1 << 15
	entryDesired = entryLoadDebugControls | entryIA32eModeGuest | entryLoadIA32PerfGlobalCtrl |
		entryLoadIA32Pat | entryLoadIA32Efer
)

// filterUnsupported is the capability-MSR reconciliation algorithm: force
// on every bit the processor requires (allowed0), then mask off every bit
// the processor does not permit (allowed1). Order matters — see the
// capability-reconciliation testable property. Never fails; it only logs
// when it mutates the caller's intent, grounded on filter_unsupported()
// in the original VMCS implementation.
func filterUnsupported(cap uint64, ctrl uint32) uint32 {
	allowed0, allowed1 := splitAllowed(cap)

	if allowed0&ctrl != allowed0 {
		forced := ctrl | allowed0
		if debug {
			log.Printf("controls: forcing allowed-0 bits, %#x -> %#x (allowed0=%#x)", ctrl, forced, allowed0)
		}
		ctrl = forced
	}
	if ctrl&^allowed1 != 0 {
		masked := ctrl & allowed1
		if debug {
			log.Printf("controls: masking unsupported bits, %#x -> %#x (allowed1=%#x)", ctrl, masked, allowed1)
		}
		ctrl = masked
	}
	return ctrl
}

// seedControlFields writes the 32-bit control-state seed (allowed0 &
// allowed1 of each capability MSR) into the four VMCS control fields this
// package synthesizes bits for. Secondary proc-based controls are not
// seeded from a capability MSR directly — the original implementation
// leaves them at zero until synthesizeControls decides whether to
// activate them.
func seedControlFields(c *vmcsAccess) error {
	seeds := []struct {
		field uint64
		msr   uint32
	}{
		{fieldPinBasedVMExecControl, msrIA32VMXTruePinbasedCtls},
		{fieldProcBasedVMExecControl, msrIA32VMXTrueProcbasedCtls},
		{fieldVMExitControls, msrIA32VMXTrueExitCtls},
		{fieldVMEntryControls, msrIA32VMXTrueEntryCtls},
	}
	for _, s := range seeds {
		cap := c.in.ReadMSR(s.msr)
		if err := c.vmwrite(s.field, uint64(seedValue(cap))); err != nil {
			return err
		}
	}
	return nil
}

// synthesizeControls runs the four-step algorithm of §4.4 for each of
// pin/proc/proc2/exit/entry: read current, OR in desired bits, filter
// against the capability MSR, write back. proc2 is synthesized only when
// the filtered primary controls keep ACTIVATE_SECONDARY_CONTROLS set;
// otherwise the secondary field is left at zero.
func synthesizeControls(c *vmcsAccess) error {
	if err := synthesizeOne(c, fieldPinBasedVMExecControl, msrIA32VMXTruePinbasedCtls, pinDesired); err != nil {
		return err
	}
	if err := synthesizeOne(c, fieldProcBasedVMExecControl, msrIA32VMXTrueProcbasedCtls, procDesired); err != nil {
		return err
	}
	proc, err := c.vmread(fieldProcBasedVMExecControl)
	if err != nil {
		return err
	}
	if uint32(proc)&procActivateSecondaryControls != 0 {
		if err := synthesizeOne(c, fieldSecondaryVMExecControl, msrIA32VMXProcbasedCtls2, proc2Desired); err != nil {
			return err
		}
	}
	if err := synthesizeOne(c, fieldVMExitControls, msrIA32VMXTrueExitCtls, exitDesired); err != nil {
		return err
	}
	if err := synthesizeOne(c, fieldVMEntryControls, msrIA32VMXTrueEntryCtls, entryDesired); err != nil {
		return err
	}
	return nil
}

func synthesizeOne(c *vmcsAccess, field uint64, msr uint32, desired uint32) error {
	current, err := c.vmread(field)
	if err != nil {
		return err
	}
	ctrl := uint32(current) | desired
	ctrl = filterUnsupported(c.in.ReadMSR(msr), ctrl)
	return c.vmwrite(field, uint64(ctrl))
}
