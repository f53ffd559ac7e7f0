package proc

// Command is a request issued to a Session. The set of commands is closed:
// only the types declared in this file implement it.
type Command interface {
	command()
}

// SingleStep executes a single instruction.
type SingleStep struct{}

// ContinueUntilBreakpoint resumes the target until it hits a breakpoint,
// receives a signal or exits.
type ContinueUntilBreakpoint struct{}

// ContinueUntilSyscall resumes the target until the next system call
// boundary, a breakpoint, a signal or exit.
type ContinueUntilSyscall struct{}

// ShowRegisters reads the register file of the target.
type ShowRegisters struct{}

// ShowMemory reads the machine word at Addr.
type ShowMemory struct {
	Addr uint64
}

// AddBreakpoint sets a breakpoint at Addr.
type AddBreakpoint struct {
	Addr uint64
}

// ListBreakpoints lists the breakpoints of the session.
type ListBreakpoints struct{}

// ShowHelp asks the front end to print its help.
type ShowHelp struct{}

func (SingleStep) command()              {}
func (ContinueUntilBreakpoint) command() {}
func (ContinueUntilSyscall) command()    {}
func (ShowRegisters) command()           {}
func (ShowMemory) command()              {}
func (AddBreakpoint) command()           {}
func (ListBreakpoints) command()         {}
func (ShowHelp) command()                {}

// Report is the result of executing a Command. The set of reports is
// closed: only the types declared in this file implement it.
type Report interface {
	report()
}

// ExitedReport is returned when the target terminated. The session is over.
type ExitedReport struct {
	Pid    int
	Status int
}

// BreakpointHitReport is returned when the target stopped on a breakpoint.
// The instruction pointer has already been moved back to the breakpoint
// address.
type BreakpointHitReport struct {
	Breakpoint *Breakpoint
}

// StoppedReport is returned when the target stopped for any other reason.
type StoppedReport struct {
	Event *StopEvent
}

// RegistersReport carries a register snapshot.
type RegistersReport struct {
	Registers Registers
}

// MemoryReport carries the word read at Addr.
type MemoryReport struct {
	Addr uint64
	Word uint64
}

// BreakpointAddedReport is returned by AddBreakpoint. Created is false if
// a breakpoint already existed at the requested address.
type BreakpointAddedReport struct {
	Breakpoint *Breakpoint
	Created    bool
}

// BreakpointsReport lists the breakpoints, sorted by ID.
type BreakpointsReport struct {
	Breakpoints []*Breakpoint
}

// HelpReport is returned for ShowHelp.
type HelpReport struct{}

func (ExitedReport) report()          {}
func (BreakpointHitReport) report()   {}
func (StoppedReport) report()         {}
func (RegistersReport) report()       {}
func (MemoryReport) report()          {}
func (BreakpointAddedReport) report() {}
func (BreakpointsReport) report()     {}
func (HelpReport) report()            {}
