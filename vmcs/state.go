package vmcs

import "log"

// Selector is a 16-bit segment selector.
type Selector uint16

// Segment bundles the fields the guest-state field writer needs for a
// single segment register. Host segments only ever need Selector and
// Base; Limit and AccessRights are guest-only per the field table.
type Segment struct {
	Selector      Selector
	Base          uint64
	Limit         uint32
	AccessRights  uint32
}

// DescriptorTable is a GDTR/IDTR-shaped base/limit pair.
type DescriptorTable struct {
	Base  uint64
	Limit uint32
}

// StateSnapshot is a read-only view of a CPU context (host or guest) that
// the field writer copies into the VMCS. Implementations are supplied by
// the caller; this package never constructs one itself outside of tests.
type StateSnapshot interface {
	ES() Segment
	CS() Segment
	SS() Segment
	DS() Segment
	FS() Segment
	GS() Segment
	LDTR() Segment
	TR() Segment

	GDTR() DescriptorTable
	IDTR() DescriptorTable

	CR0() uint64
	CR3() uint64
	CR4() uint64

	DR7() uint64
	RFLAGS() uint64
	RIP() uint64
	RSP() uint64

	IA32DebugCtl() uint64
	IA32Pat() uint64
	IA32Efer() uint64
	IA32PerfGlobalCtrl() uint64
	IA32SysenterCS() uint32
	IA32SysenterESP() uint64
	IA32SysenterEIP() uint64

	// InstructionBytes returns up to len(buf) bytes of code starting at
	// the supplied virtual address, for diagnostics disassembly. It
	// returns fewer bytes (possibly zero) if the range isn't mapped.
	InstructionBytes(addr uint64, buf []byte) int

	// Dump prints a human-readable rendering of the state; the
	// coordinator calls it on launch failure.
	Dump()
}

// StaticState is a plain-struct StateSnapshot, used by tests and by
// callers that already hold a fully materialized register set rather
// than a live CPU to query. Grounded on the teacher's Regs/Sregs structs
// (sandbox/machine/regs.go), generalized into getter methods so it can
// satisfy StateSnapshot for both the host and the guest role.
type StaticState struct {
	Name string

	Seg struct {
		ES, CS, SS, DS, FS, GS, LDTR, TR Segment
	}
	Gdtr, Idtr DescriptorTable

	Cr0, Cr3, Cr4 uint64
	Dr7           uint64
	Rflags        uint64
	Rip, Rsp      uint64

	DebugCtl        uint64
	Pat             uint64
	Efer            uint64
	PerfGlobalCtrl  uint64
	SysenterCS      uint32
	SysenterESP     uint64
	SysenterEIP     uint64

	// Code optionally backs InstructionBytes: bytes starting at CodeBase.
	CodeBase uint64
	Code     []byte
}

func (s *StaticState) ES() Segment   { return s.Seg.ES }
func (s *StaticState) CS() Segment   { return s.Seg.CS }
func (s *StaticState) SS() Segment   { return s.Seg.SS }
func (s *StaticState) DS() Segment   { return s.Seg.DS }
func (s *StaticState) FS() Segment   { return s.Seg.FS }
func (s *StaticState) GS() Segment   { return s.Seg.GS }
func (s *StaticState) LDTR() Segment { return s.Seg.LDTR }
func (s *StaticState) TR() Segment   { return s.Seg.TR }

func (s *StaticState) GDTR() DescriptorTable { return s.Gdtr }
func (s *StaticState) IDTR() DescriptorTable { return s.Idtr }

func (s *StaticState) CR0() uint64 { return s.Cr0 }
func (s *StaticState) CR3() uint64 { return s.Cr3 }
func (s *StaticState) CR4() uint64 { return s.Cr4 }

func (s *StaticState) DR7() uint64    { return s.Dr7 }
func (s *StaticState) RFLAGS() uint64 { return s.Rflags }
func (s *StaticState) RIP() uint64    { return s.Rip }
func (s *StaticState) RSP() uint64    { return s.Rsp }

func (s *StaticState) IA32DebugCtl() uint64       { return s.DebugCtl }
func (s *StaticState) IA32Pat() uint64            { return s.Pat }
func (s *StaticState) IA32Efer() uint64           { return s.Efer }
func (s *StaticState) IA32PerfGlobalCtrl() uint64 { return s.PerfGlobalCtrl }
func (s *StaticState) IA32SysenterCS() uint32     { return s.SysenterCS }
func (s *StaticState) IA32SysenterESP() uint64    { return s.SysenterESP }
func (s *StaticState) IA32SysenterEIP() uint64    { return s.SysenterEIP }

func (s *StaticState) InstructionBytes(addr uint64, buf []byte) int {
	if s.Code == nil || addr < s.CodeBase {
		return 0
	}
	off := addr - s.CodeBase
	if off >= uint64(len(s.Code)) {
		return 0
	}
	n := copy(buf, s.Code[off:])
	return n
}

func (s *StaticState) Dump() {
	log.Printf("state %q: cs=%#x ss=%#x cr0=%#x cr3=%#x cr4=%#x rip=%#x rsp=%#x rflags=%#x",
		s.Name, s.Seg.CS.Selector, s.Seg.SS.Selector, s.Cr0, s.Cr3, s.Cr4, s.Rip, s.Rsp, s.Rflags)
}

// accessRightsUnusable reports whether a segment's access-rights word has
// bit 16 (the "unusable" bit) set, per SDM 24.4.1.
func accessRightsUnusable(ar uint32) bool { return ar&(1<<16) != 0 }

// canonical reports whether a 64-bit virtual address is in canonical
// form: bits [63:47] all equal to bit 47 (48-bit linear addressing,
// the only width this package assumes).
func canonical(addr uint64) bool {
	const signBit = uint64(1) << 47
	upper := addr >> 47
	if addr&signBit != 0 {
		return upper == (^uint64(0) >> 47)
	}
	return upper == 0
}
