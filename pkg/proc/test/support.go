// Package test contains a scripted in-memory tracee used to exercise the
// debugger core without a real process.
package test

import (
	"encoding/binary"
	"fmt"
	"syscall"

	"github.com/tdb-debugger/tdb/pkg/proc"
	"github.com/tdb-debugger/tdb/pkg/proc/linutil"
)

// Opcodes understood by FakeTracee. Every instruction is one byte long.
const (
	OpNop     byte = 0x90 // advances the instruction pointer
	OpTrap    byte = 0xCC // raises SIGTRAP with the instruction pointer past the trap
	OpSyscall byte = 0x05 // system call boundary, a no-op otherwise
	OpExit    byte = 0xF4 // exits with the low byte of Rdi as status
)

// DefaultStepLimit is the number of instructions a continue executes
// before the fake reports the process as stopped by SIGSTOP.
const DefaultStepLimit = 4096

type resumeMode uint8

const (
	modeStep resumeMode = iota
	modeContinue
	modeSyscall
)

// FakeTracee implements proc.Tracee on top of a sparse byte map.
// Reading or writing a word that is not fully mapped fails with EIO,
// executing unmapped memory stops the fake with SIGSEGV.
type FakeTracee struct {
	PID  int
	Mem  map[uint64]byte
	Regs linutil.AMD64PtraceRegs

	// StepLimit bounds the number of instructions executed by a continue.
	StepLimit int

	// FailWrite makes WriteWord fail for the given addresses.
	FailWrite map[uint64]error
	// ResumeErr is returned by Step, Continue and ContinueToSyscall.
	ResumeErr error
	// ContinueErr is returned by Continue and ContinueToSyscall only.
	ContinueErr error
	// WaitErr is returned by the next Wait.
	WaitErr error

	// Reads and Writes record the addresses passed to ReadWord and
	// WriteWord, RegWrites counts calls to SetRegisters.
	Reads     []uint64
	Writes    []uint64
	RegWrites int

	pending *proc.StopEvent
	exited  bool
}

// NewFakeTracee returns a stopped fake with code mapped at base and the
// instruction pointer on its first byte.
func NewFakeTracee(pid int, base uint64, code []byte) *FakeTracee {
	ft := &FakeTracee{
		PID:       pid,
		Mem:       make(map[uint64]byte),
		StepLimit: DefaultStepLimit,
		FailWrite: make(map[uint64]error),
	}
	ft.Map(base, code)
	ft.Regs.Rip = base
	return ft
}

// Map copies data into the fake address space at addr.
func (ft *FakeTracee) Map(addr uint64, data []byte) {
	for i, b := range data {
		ft.Mem[addr+uint64(i)] = b
	}
}

// Byte returns the byte at addr, panics if addr is not mapped.
func (ft *FakeTracee) Byte(addr uint64) byte {
	b, ok := ft.Mem[addr]
	if !ok {
		panic(fmt.Sprintf("address %#x not mapped", addr))
	}
	return b
}

func (ft *FakeTracee) Pid() int {
	return ft.PID
}

func (ft *FakeTracee) checkAlive() error {
	if ft.exited {
		return syscall.ESRCH
	}
	return nil
}

func (ft *FakeTracee) ReadWord(addr uint64) (uint64, error) {
	if err := ft.checkAlive(); err != nil {
		return 0, err
	}
	ft.Reads = append(ft.Reads, addr)
	var buf [8]byte
	for i := range buf {
		b, ok := ft.Mem[addr+uint64(i)]
		if !ok {
			return 0, syscall.EIO
		}
		buf[i] = b
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

func (ft *FakeTracee) WriteWord(addr, word uint64) error {
	if err := ft.checkAlive(); err != nil {
		return err
	}
	if err := ft.FailWrite[addr]; err != nil {
		return err
	}
	for i := uint64(0); i < 8; i++ {
		if _, ok := ft.Mem[addr+i]; !ok {
			return syscall.EIO
		}
	}
	ft.Writes = append(ft.Writes, addr)
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], word)
	ft.Map(addr, buf[:])
	return nil
}

func (ft *FakeTracee) Registers() (proc.Registers, error) {
	if err := ft.checkAlive(); err != nil {
		return nil, err
	}
	regs := ft.Regs
	return linutil.NewAMD64Registers(&regs), nil
}

func (ft *FakeTracee) SetRegisters(r proc.Registers) error {
	if err := ft.checkAlive(); err != nil {
		return err
	}
	regs, ok := r.(*linutil.AMD64Registers)
	if !ok {
		return fmt.Errorf("unsupported register set %T", r)
	}
	ft.RegWrites++
	ft.Regs = *regs.Regs
	return nil
}

func (ft *FakeTracee) Step() error {
	return ft.resume(modeStep)
}

func (ft *FakeTracee) Continue() error {
	return ft.resume(modeContinue)
}

func (ft *FakeTracee) ContinueToSyscall() error {
	return ft.resume(modeSyscall)
}

func (ft *FakeTracee) Wait() (*proc.StopEvent, error) {
	if ft.WaitErr != nil {
		err := ft.WaitErr
		ft.WaitErr = nil
		return nil, err
	}
	if ft.pending == nil {
		return nil, syscall.ECHILD
	}
	ev := ft.pending
	ft.pending = nil
	return ev, nil
}

func (ft *FakeTracee) resume(mode resumeMode) error {
	if err := ft.checkAlive(); err != nil {
		return err
	}
	if ft.ResumeErr != nil {
		return ft.ResumeErr
	}
	if mode != modeStep && ft.ContinueErr != nil {
		return ft.ContinueErr
	}
	if mode == modeStep {
		ev := ft.exec(mode)
		if ev == nil {
			ev = &proc.StopEvent{Reason: proc.StopTrap, Signal: syscall.SIGTRAP}
		}
		ft.stop(ev)
		return nil
	}
	for i := 0; i < ft.StepLimit; i++ {
		if ev := ft.exec(mode); ev != nil {
			ft.stop(ev)
			return nil
		}
	}
	ft.stop(&proc.StopEvent{Reason: proc.StopSignal, Signal: syscall.SIGSTOP})
	return nil
}

func (ft *FakeTracee) stop(ev *proc.StopEvent) {
	if ev.Exited() {
		ft.exited = true
	}
	ft.pending = ev
}

// exec runs the instruction at Rip and returns the stop event it causes,
// if any.
func (ft *FakeTracee) exec(mode resumeMode) *proc.StopEvent {
	op, ok := ft.Mem[ft.Regs.Rip]
	if !ok {
		return &proc.StopEvent{Reason: proc.StopSignal, Signal: syscall.SIGSEGV}
	}
	switch op {
	case OpTrap:
		ft.Regs.Rip++
		return &proc.StopEvent{Reason: proc.StopTrap, Signal: syscall.SIGTRAP}
	case OpExit:
		return &proc.StopEvent{Reason: proc.StopExited, Status: int(ft.Regs.Rdi & 0xff)}
	case OpSyscall:
		ft.Regs.Rip++
		if mode == modeSyscall {
			return &proc.StopEvent{Reason: proc.StopSyscall}
		}
	default:
		ft.Regs.Rip++
	}
	return nil
}
