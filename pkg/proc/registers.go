package proc

// Registers is an interface for a generic register type. The
// interface encapsulates the generic values / actions
// we need independent of arch. The concrete register types
// will be different depending on OS/Arch.
type Registers interface {
	PC() uint64
	// SetPC changes the instruction pointer in the snapshot, it does not
	// touch the target until the snapshot is written back with
	// Tracee.SetRegisters.
	SetPC(uint64)
	Slice() []Register
}

// Register represents a CPU register.
type Register struct {
	Name  string
	Value uint64
}
