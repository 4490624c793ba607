package vmcs

import (
	"errors"
	"testing"
)

func TestCheckHostCR0UnsupportedBits(t *testing.T) {
	tests := []struct {
		name    string
		cr0     uint64
		fixed0  uint64
		fixed1  uint64
		wantErr bool
	}{
		{"compliant", 0x21, 0x21, 0xFFFFFFFF, false},
		{"missing forced bit", 0x0, 0x21, 0xFFFFFFFF, true},
		{"sets unsupported bit", 0x21 | 1<<40, 0x21, 0x21, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := NewMockIntrinsics()
			in.Fields[fieldHostCR0] = tt.cr0
			acc := &vmcsAccess{in: in}
			caps := &CapabilitySet{CR0Fixed0: tt.fixed0, CR0Fixed1: tt.fixed1}

			err := findCheck("check_host_cr0_for_unsupported_bits", hostChecks).run(acc, caps, nil, nil)
			if (err != nil) != tt.wantErr {
				t.Errorf("err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCheckerRunReturnsFirstFailure(t *testing.T) {
	in := NewMockIntrinsics()
	// Leave everything zeroed so the very first control check (pin-based
	// reserved bits) fails against a non-trivial allowed0.
	acc := &vmcsAccess{in: in}
	caps := &CapabilitySet{PinbasedAllowed0: 0x1}

	ck := &Checker{}
	err := ck.Run(acc, caps, minimalState("host"), minimalState("guest"))

	var checkErr *ArchCheckFailedError
	if !errors.As(err, &checkErr) {
		t.Fatalf("Run error = %v, want *ArchCheckFailedError", err)
	}
	if checkErr.Check != "check_control_pin_based_ctls_reserved_properly_set" {
		t.Errorf("Check = %q, want the first control check", checkErr.Check)
	}
}

func TestCheckerOrdersCR3BeforeCR4(t *testing.T) {
	in := NewMockIntrinsics()
	// CR0 must pass so the CR0 check doesn't mask the ordering under test.
	in.Fields[fieldHostCR3] = 1 << 40 // exceeds any physical-address ceiling
	in.Fields[fieldHostCR4] = 0       // missing every CR4Fixed0 bit below

	acc := &vmcsAccess{in: in}
	caps := &CapabilitySet{
		CR0Fixed1:     0xFFFFFFFF,
		CR4Fixed0:     0x1,
		CR4Fixed1:     0xFFFFFFFF,
		PhysAddrWidth: 36,
	}

	ck := &Checker{}
	err := ck.Run(acc, caps, minimalState("host"), minimalState("guest"))

	var checkErr *ArchCheckFailedError
	if !errors.As(err, &checkErr) {
		t.Fatalf("Run error = %v, want *ArchCheckFailedError", err)
	}
	if checkErr.Check != "check_host_cr3_for_unsupported_bits" {
		t.Errorf("Check = %q, want CR3 to be reported before CR4", checkErr.Check)
	}
}

func TestCheckGuestSegmentUnusable(t *testing.T) {
	tests := []struct {
		name  string
		field uint64
		check string
	}{
		{"cs", fieldGuestCSAccessRights, "check_guest_cs_access_rights_not_unusable"},
		{"ss", fieldGuestSSAccessRights, "check_guest_ss_access_rights_not_unusable"},
		{"tr", fieldGuestTRAccessRights, "check_guest_tr_access_rights_not_unusable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := NewMockIntrinsics()
			in.Fields[tt.field] = 0x1_0000 // unusable bit set
			acc := &vmcsAccess{in: in}

			err := findCheck(tt.check, guestChecks).run(acc, nil, nil, nil)
			var checkErr *ArchCheckFailedError
			if !errors.As(err, &checkErr) || checkErr.Check != tt.check {
				t.Errorf("err = %v, want ArchCheckFailedError{%s}", err, tt.check)
			}
		})
	}
}

func TestCheckerRunsGuestChecksAfterHostChecks(t *testing.T) {
	in := NewMockIntrinsics()
	in.Fields[fieldHostCR0] = 1 // passes, since CR0Fixed1 below is all-ones and CR0Fixed0 is 0
	in.Fields[fieldHostCR3] = 0
	in.Fields[fieldHostCR4] = 0
	// Non-zero host CS/TR/SS selectors so the host selector checks pass.
	in.Fields[fieldHostCSSelector] = 8
	in.Fields[fieldHostTRSelector] = 8
	in.Fields[fieldHostSSSelector] = 8
	in.Fields[fieldGuestCSAccessRights] = 0x1_0000 // unusable bit set

	acc := &vmcsAccess{in: in}
	caps := &CapabilitySet{CR0Fixed1: 0xFFFFFFFF, CR4Fixed1: 0xFFFFFFFF}

	ck := &Checker{}
	err := ck.Run(acc, caps, minimalState("host"), minimalState("guest"))

	var checkErr *ArchCheckFailedError
	if !errors.As(err, &checkErr) {
		t.Fatalf("Run error = %v, want *ArchCheckFailedError", err)
	}
	if checkErr.Check != "check_guest_cs_access_rights_not_unusable" {
		t.Errorf("Check = %q, want the guest CS unusable check", checkErr.Check)
	}
}

func TestCheckerToleratesEmptyGuestChecks(t *testing.T) {
	in := NewMockIntrinsics()
	acc := &vmcsAccess{in: in}
	caps := &CapabilitySet{CR0Fixed1: 0xFFFFFFFF, CR4Fixed1: 0xFFFFFFFF}
	// Give every host/control check a trivially passing state.
	in.Fields[fieldHostCSSelector] = 8
	in.Fields[fieldHostTRSelector] = 8
	in.Fields[fieldHostSSSelector] = 8

	ck := &Checker{}
	if err := ck.Run(acc, caps, minimalState("host"), minimalState("guest")); err != nil {
		t.Fatalf("Run with no guest checks registered: %v", err)
	}
}

func findCheck(name string, checks []checkFunc) checkFunc {
	for _, c := range checks {
		if c.name == name {
			return c
		}
	}
	panic("check not found: " + name)
}
