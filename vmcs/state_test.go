package vmcs

import "testing"

func TestCanonical(t *testing.T) {
	tests := []struct {
		name string
		addr uint64
		want bool
	}{
		{"zero", 0, true},
		{"low canonical", 0x0000_7FFF_FFFF_FFFF, true},
		{"first non-canonical above", 0x0000_8000_0000_0000, false},
		{"high canonical", 0xFFFF_8000_0000_0000, true},
		{"last non-canonical below", 0xFFFF_7FFF_FFFF_FFFF, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := canonical(tt.addr); got != tt.want {
				t.Errorf("canonical(%#x) = %v, want %v", tt.addr, got, tt.want)
			}
		})
	}
}

func TestStaticStateInstructionBytes(t *testing.T) {
	s := &StaticState{CodeBase: 0x1000, Code: []byte{0x90, 0x90, 0xC3}}

	buf := make([]byte, 16)
	n := s.InstructionBytes(0x1000, buf)
	if n != 3 {
		t.Fatalf("InstructionBytes returned %d bytes, want 3", n)
	}
	if buf[0] != 0x90 || buf[2] != 0xC3 {
		t.Errorf("InstructionBytes copied wrong bytes: %v", buf[:n])
	}

	if n := s.InstructionBytes(0x2000, buf); n != 0 {
		t.Errorf("InstructionBytes outside range returned %d, want 0", n)
	}
}

func TestAccessRightsUnusable(t *testing.T) {
	if accessRightsUnusable(0x93) {
		t.Errorf("0x93 reported unusable")
	}
	if !accessRightsUnusable(0x1_0000) {
		t.Errorf("bit 16 set not reported unusable")
	}
}
