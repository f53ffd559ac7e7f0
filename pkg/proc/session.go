package proc

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/tdb-debugger/tdb/pkg/logflags"
)

// SessionState is the state of the execution controller.
type SessionState uint8

const (
	AwaitingCommand    SessionState = iota // Initial state, the target is stopped after launch or attach
	SteppingForward                        // Stepping off the current instruction before breakpoints are installed
	Resuming                               // The target is running, waiting for it to stop
	StoppedInspectable                     // The target stopped and all breakpoints are removed from its memory
	Exited                                 // The target is gone, terminal state
)

func (s SessionState) String() string {
	switch s {
	case AwaitingCommand:
		return "awaiting command"
	case SteppingForward:
		return "stepping forward"
	case Resuming:
		return "resuming"
	case StoppedInspectable:
		return "stopped"
	case Exited:
		return "exited"
	}
	return fmt.Sprintf("SessionState(%d)", uint8(s))
}

// Session is a debugging session on a single target process. It owns the
// breakpoints of the target and makes sure that they are only present in
// the memory of the target while it runs: every stop removes them, every
// resume installs them again.
//
// A Session is not safe for concurrent use.
type Session struct {
	tracee      Tracee
	breakpoints *BreakpointMap

	state      SessionState
	exitStatus int

	log *logrus.Entry
}

// NewSession creates a session for t, which must be stopped.
func NewSession(t Tracee, arch *Arch) *Session {
	return &Session{
		tracee:      t,
		breakpoints: NewBreakpointMap(arch),
		state:       AwaitingCommand,
		log:         logflags.DebuggerLogger().WithField("pid", t.Pid()),
	}
}

// State returns the current state of the session.
func (s *Session) State() SessionState {
	return s.state
}

// Pid returns the pid of the target.
func (s *Session) Pid() int {
	return s.tracee.Pid()
}

// Breakpoints returns the breakpoint table of the session.
func (s *Session) Breakpoints() *BreakpointMap {
	return s.breakpoints
}

// Execute dispatches cmd.
func (s *Session) Execute(cmd Command) (Report, error) {
	if logflags.Debugger() {
		s.log.Debugf("execute %T in state %v", cmd, s.state)
	}
	switch cmd := cmd.(type) {
	case SingleStep:
		return s.Step()
	case ContinueUntilBreakpoint:
		return s.Continue()
	case ContinueUntilSyscall:
		return s.ContinueToSyscall()
	case ShowRegisters:
		regs, err := s.Registers()
		if err != nil {
			return nil, err
		}
		return RegistersReport{Registers: regs}, nil
	case ShowMemory:
		word, err := s.ReadWord(cmd.Addr)
		if err != nil {
			return nil, err
		}
		return MemoryReport{Addr: cmd.Addr, Word: word}, nil
	case AddBreakpoint:
		bp, created, err := s.AddBreakpoint(cmd.Addr)
		if err != nil {
			return nil, err
		}
		return BreakpointAddedReport{Breakpoint: bp, Created: created}, nil
	case ListBreakpoints:
		return BreakpointsReport{Breakpoints: s.breakpoints.List()}, nil
	case ShowHelp:
		return HelpReport{}, nil
	default:
		return nil, fmt.Errorf("unknown command %T", cmd)
	}
}

func (s *Session) checkStopped() error {
	if s.state == Exited {
		return ErrProcessExited{Pid: s.tracee.Pid(), Status: s.exitStatus}
	}
	return nil
}

// Registers returns a fresh register snapshot of the target.
func (s *Session) Registers() (Registers, error) {
	if err := s.checkStopped(); err != nil {
		return nil, err
	}
	regs, err := s.tracee.Registers()
	if err != nil {
		return nil, &TraceError{Op: "get registers", Err: err}
	}
	return regs, nil
}

// ReadWord reads the machine word at addr.
func (s *Session) ReadWord(addr uint64) (uint64, error) {
	if err := s.checkStopped(); err != nil {
		return 0, err
	}
	word, err := s.tracee.ReadWord(addr)
	if err != nil {
		return 0, &TraceError{Op: "read memory", Addr: addr, Err: err}
	}
	return word, nil
}

// AddBreakpoint sets a breakpoint at addr. It is written into memory the
// next time the target is continued.
func (s *Session) AddBreakpoint(addr uint64) (*Breakpoint, bool, error) {
	if err := s.checkStopped(); err != nil {
		return nil, false, err
	}
	return s.breakpoints.Add(s.tracee, addr)
}

// Step executes a single instruction. Breakpoints are not installed.
func (s *Session) Step() (Report, error) {
	if err := s.checkStopped(); err != nil {
		return nil, err
	}
	prev := s.state
	s.state = Resuming
	if err := s.tracee.Step(); err != nil {
		s.state = prev
		return nil, &TraceError{Op: "single step", Err: err}
	}
	ev, err := s.wait()
	if err != nil {
		return nil, err
	}
	// No breakpoint was in memory, a trap here is the completed step and the
	// PC must not be rewound even if it lands right after a breakpoint.
	return s.handleStop(ev, false)
}

// Continue resumes the target until it hits a breakpoint, receives a
// signal or exits.
func (s *Session) Continue() (Report, error) {
	return s.resume("continue", s.tracee.Continue)
}

// ContinueToSyscall resumes the target until it reaches a system call
// boundary, hits a breakpoint, receives a signal or exits.
func (s *Session) ContinueToSyscall() (Report, error) {
	return s.resume("continue to syscall", s.tracee.ContinueToSyscall)
}

// resume moves the target one instruction forward before installing the
// breakpoints and calling resumeFn. The instruction pointer could be
// sitting on a breakpoint address, installing the breakpoints first would
// make the target trap again right away without making any progress.
func (s *Session) resume(op string, resumeFn func() error) (Report, error) {
	if err := s.checkStopped(); err != nil {
		return nil, err
	}
	prev := s.state

	s.state = SteppingForward
	if err := s.tracee.Step(); err != nil {
		s.state = prev
		return nil, &TraceError{Op: "single step", Err: err}
	}
	ev, err := s.wait()
	if err != nil {
		return nil, err
	}
	if ev.Reason != StopTrap {
		s.log.Debugf("step before %s ended with %v", op, ev)
		return s.handleStop(ev, false)
	}

	if err := s.breakpoints.Apply(s.tracee); err != nil {
		s.state = StoppedInspectable
		if rerr := s.breakpoints.Remove(s.tracee); rerr != nil {
			err = errors.Join(err, rerr)
		}
		return nil, err
	}

	s.state = Resuming
	if err := resumeFn(); err != nil {
		s.state = Exited
		s.log.Errorf("%s failed: %v", op, err)
		if rerr := s.breakpoints.Remove(s.tracee); rerr != nil {
			s.log.Errorf("could not remove breakpoints: %v", rerr)
		}
		return nil, &LostError{Pid: s.tracee.Pid(), Err: &TraceError{Op: op, Err: err}}
	}
	ev, err = s.wait()
	if err != nil {
		return nil, err
	}
	return s.handleStop(ev, true)
}

func (s *Session) wait() (*StopEvent, error) {
	ev, err := s.tracee.Wait()
	if err != nil {
		s.state = Exited
		s.log.Errorf("wait failed: %v", err)
		return nil, &WaitError{Pid: s.tracee.Pid(), Err: err}
	}
	s.log.Debugf("stop event: %v", ev)
	return ev, nil
}

// handleStop removes the breakpoints from memory so that the target can be
// inspected, then figures out why it stopped. armed is true if breakpoints
// were installed while the target was running.
func (s *Session) handleStop(ev *StopEvent, armed bool) (Report, error) {
	if ev.Exited() {
		s.state = Exited
		s.exitStatus = ev.ExitStatus()
		return ExitedReport{Pid: s.tracee.Pid(), Status: s.exitStatus}, nil
	}

	s.state = StoppedInspectable
	if err := s.breakpoints.Remove(s.tracee); err != nil {
		return nil, err
	}

	if ev.Reason == StopTrap && armed {
		bp, err := RecoverBreakpoint(s.tracee, s.breakpoints)
		if err != nil {
			return nil, err
		}
		if bp != nil {
			s.log.Debugf("hit %v", bp)
			return BreakpointHitReport{Breakpoint: bp}, nil
		}
	}
	return StoppedReport{Event: ev}, nil
}
