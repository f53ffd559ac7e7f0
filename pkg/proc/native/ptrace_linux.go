//go:build linux && amd64

package native

import (
	"encoding/binary"
	"fmt"
	"syscall"

	sys "golang.org/x/sys/unix"

	"github.com/tdb-debugger/tdb/pkg/logflags"
	"github.com/tdb-debugger/tdb/pkg/proc"
	"github.com/tdb-debugger/tdb/pkg/proc/linutil"
)

// ptraceAttach executes the sys.PtraceAttach call.
func ptraceAttach(pid int) error {
	return sys.PtraceAttach(pid)
}

// ptraceDetach calls ptrace(PTRACE_DETACH).
func ptraceDetach(tid, sig int) error {
	_, _, err := sys.Syscall6(sys.SYS_PTRACE, sys.PTRACE_DETACH, uintptr(tid), 1, uintptr(sig), 0, 0)
	if err != syscall.Errno(0) {
		return err
	}
	return nil
}

// ptraceSingleStep executes ptrace PTRACE_SINGLESTEP
func ptraceSingleStep(pid, sig int) error {
	_, _, e1 := sys.Syscall6(sys.SYS_PTRACE, uintptr(sys.PTRACE_SINGLESTEP), uintptr(pid), uintptr(0), uintptr(sig), 0, 0)
	if e1 != 0 {
		return e1
	}
	return nil
}

// ReadWord reads the 8 bytes at addr, in target byte order.
func (dbp *Process) ReadWord(addr uint64) (uint64, error) {
	var buf [8]byte
	err := dbp.ptrace(func() error {
		n, err := sys.PtracePeekData(dbp.pid, uintptr(addr), buf[:])
		if err == nil && n != len(buf) {
			err = fmt.Errorf("short read (%d bytes)", n)
		}
		return err
	})
	if err != nil {
		return 0, err
	}
	word := binary.LittleEndian.Uint64(buf[:])
	if logflags.Ptrace() {
		dbp.log.Debugf("peek %#x = %#016x", addr, word)
	}
	return word, nil
}

// WriteWord writes the 8 bytes of word at addr.
func (dbp *Process) WriteWord(addr, word uint64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], word)
	if logflags.Ptrace() {
		dbp.log.Debugf("poke %#x = %#016x", addr, word)
	}
	return dbp.ptrace(func() error {
		_, err := sys.PtracePokeData(dbp.pid, uintptr(addr), buf[:])
		return err
	})
}

// Registers returns the general purpose registers of the process.
func (dbp *Process) Registers() (proc.Registers, error) {
	var regs linutil.AMD64PtraceRegs
	err := dbp.ptrace(func() error { return sys.PtraceGetRegs(dbp.pid, (*sys.PtraceRegs)(&regs)) })
	if err != nil {
		return nil, err
	}
	return linutil.NewAMD64Registers(&regs), nil
}

// SetRegisters writes r back to the process.
func (dbp *Process) SetRegisters(r proc.Registers) error {
	regs, ok := r.(*linutil.AMD64Registers)
	if !ok {
		return fmt.Errorf("unsupported register set %T", r)
	}
	if logflags.Ptrace() {
		dbp.log.Debugf("set registers, pc=%#x", regs.PC())
	}
	return dbp.ptrace(func() error { return sys.PtraceSetRegs(dbp.pid, (*sys.PtraceRegs)(regs.Regs)) })
}

// Step executes exactly one instruction. Pending signals are discarded.
func (dbp *Process) Step() error {
	if logflags.Ptrace() {
		dbp.log.Debugf("single step")
	}
	return dbp.ptrace(func() error { return ptraceSingleStep(dbp.pid, 0) })
}

// Continue resumes the process. Pending signals are discarded.
func (dbp *Process) Continue() error {
	if logflags.Ptrace() {
		dbp.log.Debugf("continue")
	}
	return dbp.ptrace(func() error { return sys.PtraceCont(dbp.pid, 0) })
}

// ContinueToSyscall resumes the process until the next system call entry
// or exit.
func (dbp *Process) ContinueToSyscall() error {
	if logflags.Ptrace() {
		dbp.log.Debugf("continue to syscall")
	}
	return dbp.ptrace(func() error { return sys.PtraceSyscall(dbp.pid, 0) })
}
