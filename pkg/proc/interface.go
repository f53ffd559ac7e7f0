package proc

// MemoryReadWriter reads and writes machine words in the address space of
// the target process.
type MemoryReadWriter interface {
	ReadWord(addr uint64) (uint64, error)
	WriteWord(addr uint64, word uint64) error
}

// Tracee represents a process under the control of the debugger.
//
// All methods except Wait may only be called while the process is stopped.
// Step, Continue and ContinueToSyscall return as soon as the request has
// been accepted by the kernel, Wait blocks until the process stops again.
type Tracee interface {
	MemoryReadWriter

	Pid() int

	// Registers returns a fresh snapshot of the register file.
	Registers() (Registers, error)
	// SetRegisters writes the snapshot back to the register file.
	SetRegisters(Registers) error

	Step() error
	Continue() error
	ContinueToSyscall() error

	Wait() (*StopEvent, error)
}
