package proc

import (
	"errors"
	"fmt"
	"syscall"
)

// ErrProcessExited indicates that the process has exited and contains both
// process id and exit status.
type ErrProcessExited struct {
	Pid    int
	Status int
}

func (pe ErrProcessExited) Error() string {
	return fmt.Sprintf("Process %d has exited with status %d", pe.Pid, pe.Status)
}

// TraceError is returned when the kernel rejects a tracing request, for
// example because the address is not mapped or the process is gone.
type TraceError struct {
	Op   string
	Addr uint64
	Err  error
}

func (e *TraceError) Error() string {
	if e.Addr != 0 {
		return fmt.Sprintf("could not %s at %#x: %v", e.Op, e.Addr, e.Err)
	}
	return fmt.Sprintf("could not %s: %v", e.Op, e.Err)
}

func (e *TraceError) Unwrap() error {
	return e.Err
}

// WaitError is returned when waiting for the target to stop fails. The state
// of the target is unknown afterwards and the session can not continue.
type WaitError struct {
	Pid int
	Err error
}

func (e *WaitError) Error() string {
	return fmt.Sprintf("wait for process %d failed: %v", e.Pid, e.Err)
}

func (e *WaitError) Unwrap() error {
	return e.Err
}

// LostError is returned when resuming the target fails after the step
// forward succeeded. Breakpoints may be installed and the target may or may
// not be running, the session can not continue.
type LostError struct {
	Pid int
	Err error
}

func (e *LostError) Error() string {
	return fmt.Sprintf("lost control of process %d: %v", e.Pid, e.Err)
}

func (e *LostError) Unwrap() error {
	return e.Err
}

// IsFatal returns true if err ended the session.
func IsFatal(err error) bool {
	var werr *WaitError
	var lerr *LostError
	return errors.As(err, &werr) || errors.As(err, &lerr)
}

// StopReason describes the reason why the target process is stopped.
type StopReason uint8

// String maps StopReason to string representation.
func (sr StopReason) String() string {
	switch sr {
	case StopUnknown:
		return "unknown"
	case StopExited:
		return "exited"
	case StopKilled:
		return "killed"
	case StopTrap:
		return "trap"
	case StopSignal:
		return "signal"
	case StopSyscall:
		return "syscall"
	default:
		return ""
	}
}

const (
	StopUnknown StopReason = iota
	StopExited             // The target process terminated normally
	StopKilled             // The target process was terminated by a signal
	StopTrap               // The target process received SIGTRAP (breakpoint or completed step)
	StopSignal             // The target process is in a signal-delivery-stop for another signal
	StopSyscall            // The target process stopped at a system call boundary
)

// StopEvent is the state change reported by Tracee.Wait.
type StopEvent struct {
	Reason StopReason
	// Status is the exit status for StopExited.
	Status int
	// Signal is the stop signal for StopSignal and the terminating signal
	// for StopKilled.
	Signal syscall.Signal
}

// Exited returns true if the process does not exist anymore.
func (ev *StopEvent) Exited() bool {
	return ev.Reason == StopExited || ev.Reason == StopKilled
}

// ExitStatus returns the exit status of the process, negated signal
// number if it was killed.
func (ev *StopEvent) ExitStatus() int {
	if ev.Reason == StopKilled {
		return -int(ev.Signal)
	}
	return ev.Status
}

func (ev *StopEvent) String() string {
	switch ev.Reason {
	case StopExited:
		return fmt.Sprintf("exited with status %d", ev.Status)
	case StopKilled:
		return fmt.Sprintf("killed by %v", ev.Signal)
	case StopSignal:
		return fmt.Sprintf("stopped by signal %v", ev.Signal)
	case StopSyscall:
		return "stopped at syscall boundary"
	case StopTrap:
		return "stopped by trap"
	}
	return ev.Reason.String()
}
