package vmcs

import "testing"

func TestFilterUnsupportedForceThenMask(t *testing.T) {
	tests := []struct {
		name string
		cap  uint64
		ctrl uint32
		want uint32
	}{
		{"already compliant", 0x0000_0004_0000_0004, 0x4, 0x4},
		{"force missing allowed0 bit", 0x0000_0006_0000_0002, 0x4, 0x6},
		{"conflicting caps clear the bit", 0x0000_0004_0000_0002, 0x1, 0x0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := filterUnsupported(tt.cap, tt.ctrl)
			if got != tt.want {
				t.Errorf("filterUnsupported(%#x, %#x) = %#x, want %#x", tt.cap, tt.ctrl, got, tt.want)
			}
		})
	}
}

func TestFilterUnsupportedIdempotent(t *testing.T) {
	caps := []uint64{0x0000_0004_0000_0002, 0x0000_00FF_0000_0F0F, 0}
	ctrls := []uint32{0x0, 0x1, 0xFFFFFFFF, 0x1234}
	for _, cap := range caps {
		for _, ctrl := range ctrls {
			once := filterUnsupported(cap, ctrl)
			twice := filterUnsupported(cap, once)
			if once != twice {
				t.Errorf("filterUnsupported not idempotent for cap=%#x ctrl=%#x: once=%#x twice=%#x", cap, ctrl, once, twice)
			}
		}
	}
}

func TestFilterUnsupportedPostCondition(t *testing.T) {
	cap := uint64(0x0000_00F0_0000_000F)
	allowed0, allowed1 := splitAllowed(cap)
	for _, ctrl := range []uint32{0, 0xF, 0xFF00, 0xFFFFFFFF} {
		got := filterUnsupported(cap, ctrl)
		if got&allowed0 != allowed0 {
			t.Errorf("post-condition allowed0 violated: ctrl=%#x got=%#x allowed0=%#x", ctrl, got, allowed0)
		}
		if got&^allowed1 != 0 {
			t.Errorf("post-condition allowed1 violated: ctrl=%#x got=%#x allowed1=%#x", ctrl, got, allowed1)
		}
	}
}

func TestSeedControlFieldsWritesAllowed0And1(t *testing.T) {
	in := NewMockIntrinsics()
	in.MSRs[msrIA32VMXTruePinbasedCtls] = 0x0000_0006_0000_0002
	in.MSRs[msrIA32VMXTrueProcbasedCtls] = 0x0000_000C_0000_0004
	in.MSRs[msrIA32VMXTrueExitCtls] = 0x0000_0030_0000_0010
	in.MSRs[msrIA32VMXTrueEntryCtls] = 0x0000_00C0_0000_0040

	acc := &vmcsAccess{in: in}
	if err := seedControlFields(acc); err != nil {
		t.Fatalf("seedControlFields: %v", err)
	}

	cases := []struct {
		field uint64
		msr   uint32
	}{
		{fieldPinBasedVMExecControl, msrIA32VMXTruePinbasedCtls},
		{fieldProcBasedVMExecControl, msrIA32VMXTrueProcbasedCtls},
		{fieldVMExitControls, msrIA32VMXTrueExitCtls},
		{fieldVMEntryControls, msrIA32VMXTrueEntryCtls},
	}
	for _, c := range cases {
		want := uint64(seedValue(in.ReadMSR(c.msr)))
		got := in.Fields[c.field]
		if got != want {
			t.Errorf("field %#x = %#x, want %#x", c.field, got, want)
		}
	}
}
