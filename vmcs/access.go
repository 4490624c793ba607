package vmcs

// debug gates the debug-level log.Printf call sites of the capability
// filter and the coordinator's failure path. Off by default, matching the
// teacher's package-level debug bool.
var debug bool

// DebugEnabled turns on debug-level logging for the capability filter and
// the coordinator's failure path.
func DebugEnabled(on bool) { debug = on }

// vmcsAccess wraps an Intrinsics with the two primitives the rest of the
// core uses to touch the VMCS: vmread and vmwrite. Nothing else in this
// package calls into Intrinsics directly for VMREAD/VMWRITE.
type vmcsAccess struct {
	in Intrinsics
}

func (c *vmcsAccess) vmread(field uint64) (uint64, error) {
	v, ok := c.in.VMRead(field)
	if !ok {
		return 0, &VmreadFailedError{Field: field}
	}
	return v, nil
}

func (c *vmcsAccess) vmwrite(field uint64, value uint64) error {
	if !c.in.VMWrite(field, value) {
		return &VmwriteFailedError{Field: field, Value: value}
	}
	return nil
}
