package proc

import (
	"errors"
	"fmt"
	"sort"

	"github.com/tdb-debugger/tdb/pkg/logflags"
)

// Breakpoint represents a software breakpoint. Stores information on the
// break point including the byte of data that originally was stored at
// that address.
type Breakpoint struct {
	ID   int    // Sequential ID, assigned when the breakpoint is added
	Addr uint64 // Address breakpoint is set for.

	// OriginalByte is the byte that was at Addr before the trap instruction
	// was ever written there.
	OriginalByte byte

	// installed is true while the trap instruction is present in the
	// memory of the target.
	installed bool
}

func (bp *Breakpoint) String() string {
	return fmt.Sprintf("Breakpoint %d at %#x", bp.ID, bp.Addr)
}

// Installed returns true if the trap instruction is currently written into
// the memory of the target, false if the breakpoint is pending.
func (bp *Breakpoint) Installed() bool {
	return bp.installed
}

// install writes the trap instruction over the low byte of the word at
// bp.Addr, leaving the other bytes of the word untouched.
func (bp *Breakpoint) install(mem MemoryReadWriter, instr byte) error {
	if bp.installed {
		return nil
	}
	word, err := mem.ReadWord(bp.Addr)
	if err != nil {
		return &TraceError{Op: "read memory", Addr: bp.Addr, Err: err}
	}
	if err := mem.WriteWord(bp.Addr, word&^0xff|uint64(instr)); err != nil {
		return &TraceError{Op: "write breakpoint", Addr: bp.Addr, Err: err}
	}
	bp.installed = true
	return nil
}

// uninstall puts OriginalByte back. It does nothing for a pending
// breakpoint, so that a byte restored earlier is never written twice.
func (bp *Breakpoint) uninstall(mem MemoryReadWriter) error {
	if !bp.installed {
		return nil
	}
	word, err := mem.ReadWord(bp.Addr)
	if err != nil {
		return &TraceError{Op: "read memory", Addr: bp.Addr, Err: err}
	}
	if err := mem.WriteWord(bp.Addr, word&^0xff|uint64(bp.OriginalByte)); err != nil {
		return &TraceError{Op: "clear breakpoint", Addr: bp.Addr, Err: err}
	}
	bp.installed = false
	return nil
}

// BreakpointMap represents an (address, breakpoint) map.
type BreakpointMap struct {
	M map[uint64]*Breakpoint

	arch                *Arch
	breakpointIDCounter int
}

// NewBreakpointMap creates a new BreakpointMap for the given architecture.
func NewBreakpointMap(arch *Arch) *BreakpointMap {
	return &BreakpointMap{
		M:    make(map[uint64]*Breakpoint),
		arch: arch,
	}
}

// Add records a pending breakpoint at addr. The byte currently at addr is
// saved as the original byte, so Add must only be called while the target
// is stopped and no breakpoint is installed.
//
// If a breakpoint already exists at addr it is returned unchanged and the
// second return value is false; the target is not accessed.
func (bpmap *BreakpointMap) Add(mem MemoryReadWriter, addr uint64) (*Breakpoint, bool, error) {
	if bp, ok := bpmap.M[addr]; ok {
		return bp, false, nil
	}
	word, err := mem.ReadWord(addr)
	if err != nil {
		return nil, false, &TraceError{Op: "read memory", Addr: addr, Err: err}
	}
	bpmap.breakpointIDCounter++
	bp := &Breakpoint{
		ID:           bpmap.breakpointIDCounter,
		Addr:         addr,
		OriginalByte: byte(word),
	}
	bpmap.M[addr] = bp
	if logflags.Breakpoints() {
		logflags.BreakpointsLogger().Debugf("added breakpoint %d at %#x, original byte %#02x", bp.ID, addr, bp.OriginalByte)
	}
	return bp, true, nil
}

// Apply installs every pending breakpoint. It stops at the first failure;
// the breakpoints installed before it stay installed and will be cleaned
// up by the next call to Remove.
func (bpmap *BreakpointMap) Apply(mem MemoryReadWriter) error {
	for _, bp := range bpmap.List() {
		if err := bp.install(mem, bpmap.arch.BreakpointInstruction); err != nil {
			logflags.BreakpointsLogger().Errorf("could not install breakpoint %d: %v", bp.ID, err)
			return err
		}
	}
	if logflags.Breakpoints() {
		logflags.BreakpointsLogger().Debugf("installed %d breakpoints", len(bpmap.M))
	}
	return nil
}

// Remove restores the original byte of every installed breakpoint. Pending
// breakpoints are left alone, calling Remove twice is harmless.
// Every breakpoint is attempted even if some of them fail.
func (bpmap *BreakpointMap) Remove(mem MemoryReadWriter) error {
	var errs []error
	for _, bp := range bpmap.List() {
		if err := bp.uninstall(mem); err != nil {
			logflags.BreakpointsLogger().Errorf("could not remove breakpoint %d: %v", bp.ID, err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Find returns the breakpoint set at addr.
func (bpmap *BreakpointMap) Find(addr uint64) (*Breakpoint, bool) {
	bp, ok := bpmap.M[addr]
	return bp, ok
}

// Len returns the number of breakpoints.
func (bpmap *BreakpointMap) Len() int {
	return len(bpmap.M)
}

// List returns all breakpoints sorted by ID.
func (bpmap *BreakpointMap) List() []*Breakpoint {
	bps := make([]*Breakpoint, 0, len(bpmap.M))
	for _, bp := range bpmap.M {
		bps = append(bps, bp)
	}
	sort.Slice(bps, func(i, j int) bool { return bps[i].ID < bps[j].ID })
	return bps
}
