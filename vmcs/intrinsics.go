package vmcs

// Intrinsics is the hardware capability surface the core calls into. A
// real implementation issues RDMSR/CPUID/VMREAD/VMWRITE/VMPTRLD/VMCLEAR/
// VMLAUNCH directly; this package only depends on the interface so it can
// be exercised against MockIntrinsics in tests.
type Intrinsics interface {
	ReadMSR(msr uint32) uint64
	CPUIDEax(leaf uint32) uint32
	VMRead(field uint64) (uint64, bool)
	VMWrite(field uint64, value uint64) bool
	VMPtrld(phys *uint64) bool
	VMClear(phys *uint64) bool
	VMLaunch() bool
}

// MockIntrinsics is an in-memory Intrinsics backed by plain maps, used by
// every test in this package. It replaces the process-wide global maps the
// original test harness used with per-instance state.
type MockIntrinsics struct {
	MSRs   map[uint32]uint64
	Fields map[uint64]uint64

	FailVMClear  bool
	FailVMPtrld  bool
	FailVMLaunch bool
	// VMInstructionErrorOnFail is the value VMLaunch stamps into the
	// VM_INSTRUCTION_ERROR field when FailVMLaunch is set, mimicking
	// what real hardware would leave behind for the coordinator to read.
	VMInstructionErrorOnFail uint64

	// FailVMWrite, when non-nil, fails exactly the field ids it names.
	FailVMWrite map[uint64]bool
	// FailVMRead, when non-nil, fails exactly the field ids it names.
	FailVMRead map[uint64]bool

	// CPUID maps a leaf number to the EAX value CPUIDEax returns for it.
	CPUID map[uint32]uint32

	LastClearedPhys *uint64
	LastLoadedPhys  *uint64
	Launched        bool
}

// NewMockIntrinsics returns a MockIntrinsics with all maps initialized and
// every call defaulting to success.
func NewMockIntrinsics() *MockIntrinsics {
	return &MockIntrinsics{
		MSRs:        make(map[uint32]uint64),
		Fields:      make(map[uint64]uint64),
		FailVMWrite: make(map[uint64]bool),
		FailVMRead:  make(map[uint64]bool),
		CPUID:       make(map[uint32]uint32),
	}
}

func (m *MockIntrinsics) ReadMSR(msr uint32) uint64 { return m.MSRs[msr] }

func (m *MockIntrinsics) CPUIDEax(leaf uint32) uint32 { return m.CPUID[leaf] }

func (m *MockIntrinsics) VMRead(field uint64) (uint64, bool) {
	if m.FailVMRead[field] {
		return 0, false
	}
	return m.Fields[field], true
}

func (m *MockIntrinsics) VMWrite(field uint64, value uint64) bool {
	if m.FailVMWrite[field] {
		return false
	}
	m.Fields[field] = value
	return true
}

func (m *MockIntrinsics) VMPtrld(phys *uint64) bool {
	if m.FailVMPtrld {
		return false
	}
	m.LastLoadedPhys = phys
	return true
}

func (m *MockIntrinsics) VMClear(phys *uint64) bool {
	if m.FailVMClear {
		return false
	}
	m.LastClearedPhys = phys
	// VMCLEAR resets the fields of the targeted VMCS, same as real hardware.
	m.Fields = make(map[uint64]uint64)
	return true
}

func (m *MockIntrinsics) VMLaunch() bool {
	if m.FailVMLaunch {
		m.Fields[fieldVMInstructionError] = m.VMInstructionErrorOnFail
		return false
	}
	m.Launched = true
	return true
}
