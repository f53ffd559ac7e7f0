package proc

// RecoverBreakpoint checks whether the target stopped because it executed
// the trap instruction of one of the breakpoints in bpmap.
//
// The CPU reports the trap with the instruction pointer already past the
// trap instruction, so the candidate breakpoint is at PC-BreakpointSize.
// If one is found its original byte is restored (nothing is written if it
// was already removed) and the instruction pointer is moved back to the
// breakpoint address, so that resuming executes the original instruction.
// Returns nil, without writing anything, if no breakpoint matches.
func RecoverBreakpoint(t Tracee, bpmap *BreakpointMap) (*Breakpoint, error) {
	regs, err := t.Registers()
	if err != nil {
		return nil, &TraceError{Op: "get registers", Err: err}
	}
	pc := regs.PC()
	if pc < bpmap.arch.BreakpointSize {
		return nil, nil
	}
	bp, ok := bpmap.Find(pc - bpmap.arch.BreakpointSize)
	if !ok {
		return nil, nil
	}
	if err := bp.uninstall(t); err != nil {
		return nil, err
	}
	regs.SetPC(bp.Addr)
	if err := t.SetRegisters(regs); err != nil {
		return nil, &TraceError{Op: "set registers", Err: err}
	}
	return bp, nil
}
