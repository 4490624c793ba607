package vmcs

// writeGuestState writes every guest-state field the field-writer table
// in §4.2 lists, across all four width classes. Ordering within a width
// class is irrelevant; this package writes 16 then 64 then 32 then
// natural, matching the order the original vmcs_intel_x64.cpp methods
// are invoked in (guest_vm_state, then guest_vm_control_state).
func writeGuestState(c *vmcsAccess, s StateSnapshot) error {
	sixteen := []struct {
		field uint64
		sel   Selector
	}{
		{fieldGuestESSelector, s.ES().Selector},
		{fieldGuestCSSelector, s.CS().Selector},
		{fieldGuestSSSelector, s.SS().Selector},
		{fieldGuestDSSelector, s.DS().Selector},
		{fieldGuestFSSelector, s.FS().Selector},
		{fieldGuestGSSelector, s.GS().Selector},
		{fieldGuestLDTRSelector, s.LDTR().Selector},
		{fieldGuestTRSelector, s.TR().Selector},
	}
	for _, w := range sixteen {
		if err := c.vmwrite(w.field, uint64(w.sel)); err != nil {
			return err
		}
	}

	sixtyfour := []struct {
		field uint64
		value uint64
	}{
		{fieldVMCSLinkPointer, 0xFFFFFFFFFFFFFFFF},
		{fieldGuestIA32DebugCtl, s.IA32DebugCtl()},
		{fieldGuestIA32Pat, s.IA32Pat()},
		{fieldGuestIA32Efer, s.IA32Efer()},
		{fieldGuestIA32PerfGlobalCtrl, s.IA32PerfGlobalCtrl()},
	}
	for _, w := range sixtyfour {
		if err := c.vmwrite(w.field, w.value); err != nil {
			return err
		}
	}

	thirtytwo := []struct {
		field uint64
		value uint64
	}{
		{fieldGuestESLimit, uint64(s.ES().Limit)},
		{fieldGuestCSLimit, uint64(s.CS().Limit)},
		{fieldGuestSSLimit, uint64(s.SS().Limit)},
		{fieldGuestDSLimit, uint64(s.DS().Limit)},
		{fieldGuestFSLimit, uint64(s.FS().Limit)},
		{fieldGuestGSLimit, uint64(s.GS().Limit)},
		{fieldGuestLDTRLimit, uint64(s.LDTR().Limit)},
		{fieldGuestTRLimit, uint64(s.TR().Limit)},
		{fieldGuestGDTRLimit, uint64(s.GDTR().Limit)},
		{fieldGuestIDTRLimit, uint64(s.IDTR().Limit)},
		{fieldGuestESAccessRights, uint64(s.ES().AccessRights)},
		{fieldGuestCSAccessRights, uint64(s.CS().AccessRights)},
		{fieldGuestSSAccessRights, uint64(s.SS().AccessRights)},
		{fieldGuestDSAccessRights, uint64(s.DS().AccessRights)},
		{fieldGuestFSAccessRights, uint64(s.FS().AccessRights)},
		{fieldGuestGSAccessRights, uint64(s.GS().AccessRights)},
		{fieldGuestLDTRAccessRights, uint64(s.LDTR().AccessRights)},
		{fieldGuestTRAccessRights, uint64(s.TR().AccessRights)},
		{fieldGuestSysenterCS, uint64(s.IA32SysenterCS())},
	}
	for _, w := range thirtytwo {
		if err := c.vmwrite(w.field, w.value); err != nil {
			return err
		}
	}

	natural := []struct {
		field uint64
		value uint64
	}{
		{fieldGuestCR0, s.CR0()},
		{fieldGuestCR3, s.CR3()},
		{fieldGuestCR4, s.CR4()},
		{fieldGuestESBase, s.ES().Base},
		{fieldGuestCSBase, s.CS().Base},
		{fieldGuestSSBase, s.SS().Base},
		{fieldGuestDSBase, s.DS().Base},
		{fieldGuestFSBase, c.in.ReadMSR(msrIA32FSBase)},
		{fieldGuestGSBase, c.in.ReadMSR(msrIA32GSBase)},
		{fieldGuestLDTRBase, s.LDTR().Base},
		{fieldGuestTRBase, s.TR().Base},
		{fieldGuestGDTRBase, s.GDTR().Base},
		{fieldGuestIDTRBase, s.IDTR().Base},
		{fieldGuestDR7, s.DR7()},
		{fieldGuestRFLAGS, s.RFLAGS()},
		{fieldGuestSysenterESP, s.IA32SysenterESP()},
		{fieldGuestSysenterEIP, s.IA32SysenterEIP()},
	}
	for _, w := range natural {
		if err := c.vmwrite(w.field, w.value); err != nil {
			return err
		}
	}
	return nil
}

// writeHostState writes every host-state field §4.2 lists. hostRIP is the
// exit-handler entry address written verbatim into VMCS_HOST_RIP; stack
// supplies VMCS_HOST_RSP via its 16-byte-aligned top.
func writeHostState(c *vmcsAccess, s StateSnapshot, stack *ExitHandlerStack, hostRIP uint64) error {
	sixteen := []struct {
		field uint64
		sel   Selector
	}{
		{fieldHostESSelector, s.ES().Selector},
		{fieldHostCSSelector, s.CS().Selector},
		{fieldHostSSSelector, s.SS().Selector},
		{fieldHostDSSelector, s.DS().Selector},
		{fieldHostFSSelector, s.FS().Selector},
		{fieldHostGSSelector, s.GS().Selector},
		{fieldHostTRSelector, s.TR().Selector},
	}
	for _, w := range sixteen {
		if err := c.vmwrite(w.field, uint64(w.sel)); err != nil {
			return err
		}
	}

	sixtyfour := []struct {
		field uint64
		value uint64
	}{
		{fieldHostIA32Pat, s.IA32Pat()},
		{fieldHostIA32Efer, s.IA32Efer()},
		{fieldHostIA32PerfGlobalCtrl, s.IA32PerfGlobalCtrl()},
	}
	for _, w := range sixtyfour {
		if err := c.vmwrite(w.field, w.value); err != nil {
			return err
		}
	}

	if err := c.vmwrite(fieldHostSysenterCS, uint64(s.IA32SysenterCS())); err != nil {
		return err
	}

	natural := []struct {
		field uint64
		value uint64
	}{
		{fieldHostCR0, s.CR0()},
		{fieldHostCR3, s.CR3()},
		{fieldHostCR4, s.CR4()},
		{fieldHostFSBase, c.in.ReadMSR(msrIA32FSBase)},
		{fieldHostGSBase, c.in.ReadMSR(msrIA32GSBase)},
		{fieldHostTRBase, s.TR().Base},
		{fieldHostGDTRBase, s.GDTR().Base},
		{fieldHostIDTRBase, s.IDTR().Base},
		{fieldHostSysenterESP, s.IA32SysenterESP()},
		{fieldHostSysenterEIP, s.IA32SysenterEIP()},
		{fieldHostRSP, stack.top()},
		{fieldHostRIP, hostRIP},
	}
	for _, w := range natural {
		if err := c.vmwrite(w.field, w.value); err != nil {
			return err
		}
	}
	return nil
}
