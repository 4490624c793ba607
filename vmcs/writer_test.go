package vmcs

import "testing"

func TestWriteGuestStateWritesLinkPointer(t *testing.T) {
	in := NewMockIntrinsics()
	acc := &vmcsAccess{in: in}

	s := &StaticState{Seg: struct{ ES, CS, SS, DS, FS, GS, LDTR, TR Segment }{
		CS: Segment{Selector: 0x10},
	}}

	if err := writeGuestState(acc, s); err != nil {
		t.Fatalf("writeGuestState: %v", err)
	}
	if in.Fields[fieldVMCSLinkPointer] != 0xFFFFFFFFFFFFFFFF {
		t.Errorf("VMCS_LINK_POINTER = %#x, want all-ones", in.Fields[fieldVMCSLinkPointer])
	}
	if in.Fields[fieldGuestCSSelector] != 0x10 {
		t.Errorf("guest CS selector = %#x, want 0x10", in.Fields[fieldGuestCSSelector])
	}
}

func TestWriteGuestStatePropagatesVmwriteFailure(t *testing.T) {
	in := NewMockIntrinsics()
	in.FailVMWrite[fieldGuestCSSelector] = true
	acc := &vmcsAccess{in: in}

	err := writeGuestState(acc, &StaticState{})
	if err == nil {
		t.Fatalf("writeGuestState: want error, got nil")
	}
	wfErr, ok := err.(*VmwriteFailedError)
	if !ok {
		t.Fatalf("err = %T, want *VmwriteFailedError", err)
	}
	if wfErr.Field != fieldGuestCSSelector {
		t.Errorf("Field = %#x, want CS selector field", wfErr.Field)
	}
}

func TestWriteHostStateHostRSPFromStackTop(t *testing.T) {
	in := NewMockIntrinsics()
	acc := &vmcsAccess{in: in}
	stack := newExitHandlerStackAt(0x2000, 0x4000)

	if err := writeHostState(acc, &StaticState{}, stack, 0xABCD); err != nil {
		t.Fatalf("writeHostState: %v", err)
	}
	if in.Fields[fieldHostRSP] != stack.top() {
		t.Errorf("HOST_RSP = %#x, want %#x", in.Fields[fieldHostRSP], stack.top())
	}
	if in.Fields[fieldHostRIP] != 0xABCD {
		t.Errorf("HOST_RIP = %#x, want 0xABCD", in.Fields[fieldHostRIP])
	}
}
