//go:build !linux || !amd64

package native

import (
	"github.com/tdb-debugger/tdb/pkg/proc"
)

// Launch returns ErrNativeBackendDisabled.
func Launch(_ []string, _ string, _ LaunchFlags) (*Process, error) {
	return nil, ErrNativeBackendDisabled
}

// Attach returns ErrNativeBackendDisabled.
func Attach(_ int) (*Process, error) {
	return nil, ErrNativeBackendDisabled
}

func (dbp *Process) Detach(kill bool) error { return ErrNativeBackendDisabled }

func (dbp *Process) Halt() error { return ErrNativeBackendDisabled }

func (dbp *Process) Wait() (*proc.StopEvent, error) { return nil, ErrNativeBackendDisabled }

func (dbp *Process) ReadWord(addr uint64) (uint64, error) { return 0, ErrNativeBackendDisabled }

func (dbp *Process) WriteWord(addr, word uint64) error { return ErrNativeBackendDisabled }

func (dbp *Process) Registers() (proc.Registers, error) { return nil, ErrNativeBackendDisabled }

func (dbp *Process) SetRegisters(proc.Registers) error { return ErrNativeBackendDisabled }

func (dbp *Process) Step() error { return ErrNativeBackendDisabled }

func (dbp *Process) Continue() error { return ErrNativeBackendDisabled }

func (dbp *Process) ContinueToSyscall() error { return ErrNativeBackendDisabled }
