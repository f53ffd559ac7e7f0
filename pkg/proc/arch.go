package proc

// Arch describes the properties of the target CPU the breakpoint code
// depends on.
type Arch struct {
	// BreakpointInstruction is the single byte trap instruction written
	// over the first byte of a breakpointed instruction.
	BreakpointInstruction byte
	// BreakpointSize is the number of bytes the instruction pointer has
	// advanced by when the trap is reported.
	BreakpointSize uint64
}

var amd64BreakInstruction byte = 0xCC // INT 3

// AMD64Arch returns the description of the AMD64 CPU architecture.
func AMD64Arch() *Arch {
	return &Arch{
		BreakpointInstruction: amd64BreakInstruction,
		BreakpointSize:        1,
	}
}
