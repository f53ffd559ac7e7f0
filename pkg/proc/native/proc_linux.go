//go:build linux && amd64

package native

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"

	sys "golang.org/x/sys/unix"

	"github.com/tdb-debugger/tdb/pkg/proc"
)

const (
	personalityGetPersonality = 0xffffffff // argument to pass to personality syscall to get the current personality
	_ADDR_NO_RANDOMIZE        = 0x0040000  // ADDR_NO_RANDOMIZE linux constant

	// Syscall stops are reported as SIGTRAP|0x80 so that they can be told
	// apart from breakpoint and single step traps.
	ptraceOptionsAttach = sys.PTRACE_O_TRACESYSGOOD
	ptraceOptionsLaunch = sys.PTRACE_O_TRACESYSGOOD | sys.PTRACE_O_EXITKILL

	syscallTrap = sys.SIGTRAP | 0x80
)

// Launch creates and begins debugging a new process. First entry in
// `cmd` is the program to run, and then rest are the arguments
// to be supplied to that process. `wd` is working directory of the program.
// The process is stopped on the first instruction after execve.
func Launch(cmd []string, wd string, flags LaunchFlags) (*Process, error) {
	if len(cmd) == 0 {
		return nil, fmt.Errorf("no program to launch")
	}
	var (
		process *exec.Cmd
		err     error
	)

	dbp := New(0)
	dbp.execPtraceFunc(func() {
		if flags&LaunchDisableASLR != 0 {
			oldPersonality, _, err := syscall.Syscall(sys.SYS_PERSONALITY, personalityGetPersonality, 0, 0)
			if err == syscall.Errno(0) {
				newPersonality := oldPersonality | _ADDR_NO_RANDOMIZE
				syscall.Syscall(sys.SYS_PERSONALITY, newPersonality, 0, 0)
				defer syscall.Syscall(sys.SYS_PERSONALITY, oldPersonality, 0, 0)
			}
		}

		process = exec.Command(cmd[0])
		process.Args = cmd
		process.Stdin = os.Stdin
		process.Stdout = os.Stdout
		process.Stderr = os.Stderr
		// The target gets its own process group so that a ^C typed at the
		// prompt only reaches the debugger.
		process.SysProcAttr = &syscall.SysProcAttr{
			Ptrace:  true,
			Setpgid: true,
		}
		if wd != "" {
			process.Dir = wd
		}
		err = process.Start()
	})
	if err != nil {
		dbp.postExit()
		return nil, err
	}
	dbp.pid = process.Process.Pid
	dbp.childProcess = true
	dbp.log = dbp.log.WithField("pid", dbp.pid)

	ev, err := dbp.Wait()
	if err != nil {
		return nil, fmt.Errorf("waiting for target execve failed: %s", err)
	}
	if ev.Exited() {
		return nil, fmt.Errorf("process %d %v before it could be traced", dbp.pid, ev)
	}
	if err := dbp.ptrace(func() error { return sys.PtraceSetOptions(dbp.pid, ptraceOptionsLaunch) }); err != nil {
		_ = dbp.Detach(true)
		return nil, fmt.Errorf("could not set ptrace options: %v", err)
	}
	dbp.log.Debugf("launched %q", cmd)
	return dbp, nil
}

// Attach to an existing process with the given PID.
func Attach(pid int) (*Process, error) {
	dbp := New(pid)
	dbp.log = dbp.log.WithField("pid", pid)

	var err error
	dbp.execPtraceFunc(func() { err = ptraceAttach(dbp.pid) })
	if err != nil {
		dbp.postExit()
		return nil, err
	}
	ev, err := dbp.Wait()
	if err != nil {
		return nil, err
	}
	if ev.Exited() {
		return nil, proc.ErrProcessExited{Pid: pid, Status: ev.ExitStatus()}
	}
	if err := dbp.ptrace(func() error { return sys.PtraceSetOptions(dbp.pid, ptraceOptionsAttach) }); err != nil {
		_ = dbp.Detach(false)
		return nil, fmt.Errorf("could not set ptrace options: %v", err)
	}
	dbp.log.Debugf("attached")
	return dbp, nil
}

// Detach from the process being debugged, optionally killing it.
// Processes started by Launch are always killed.
func (dbp *Process) Detach(kill bool) (err error) {
	if dbp.Exited() {
		return nil
	}
	if kill || dbp.childProcess {
		return dbp.kill()
	}
	dbp.execPtraceFunc(func() {
		err = ptraceDetach(dbp.pid, 0)
	})
	if err != nil {
		return err
	}
	dbp.stopMu.Lock()
	dbp.detached = true
	dbp.stopMu.Unlock()
	dbp.postExit()
	return nil
}

func (dbp *Process) kill() error {
	if err := sys.Kill(dbp.pid, sys.SIGKILL); err != nil {
		return fmt.Errorf("could not deliver signal: %v", err)
	}
	for {
		var status sys.WaitStatus
		wpid, err := sys.Wait4(dbp.pid, &status, sys.WALL, nil)
		if err == sys.EINTR {
			continue
		}
		if err != nil {
			break
		}
		if wpid == dbp.pid && (status.Exited() || status.Signaled()) {
			break
		}
	}
	dbp.postExit()
	return nil
}

// Halt stops the process with SIGSTOP, the pending Wait returns a
// StopSignal event.
func (dbp *Process) Halt() error {
	dbp.stopMu.Lock()
	defer dbp.stopMu.Unlock()
	if dbp.exited || dbp.detached {
		return nil
	}
	dbp.log.Debugf("requesting manual stop")
	return sys.Kill(dbp.pid, sys.SIGSTOP)
}

// Wait blocks until the process changes state and classifies the change.
func (dbp *Process) Wait() (*proc.StopEvent, error) {
	var (
		status sys.WaitStatus
		wpid   int
		err    error
	)
	for {
		wpid, err = sys.Wait4(dbp.pid, &status, sys.WALL, nil)
		if err != sys.EINTR {
			break
		}
	}
	if err != nil {
		if err == sys.ECHILD {
			dbp.postExit()
		}
		return nil, err
	}
	if wpid != dbp.pid {
		return nil, fmt.Errorf("unexpected wait status for pid %d", wpid)
	}
	ev := classifyWaitStatus(status)
	dbp.log.Debugf("wait status %#x: %v", uint32(status), ev)
	if ev.Exited() {
		dbp.postExit()
	}
	return ev, nil
}

func classifyWaitStatus(status sys.WaitStatus) *proc.StopEvent {
	switch {
	case status.Exited():
		return &proc.StopEvent{Reason: proc.StopExited, Status: status.ExitStatus()}
	case status.Signaled():
		// Signaled means the process was terminated due to a signal.
		return &proc.StopEvent{Reason: proc.StopKilled, Signal: status.Signal()}
	case status.Stopped():
		switch sig := status.StopSignal(); sig {
		case syscallTrap:
			return &proc.StopEvent{Reason: proc.StopSyscall}
		case sys.SIGTRAP:
			return &proc.StopEvent{Reason: proc.StopTrap, Signal: sig}
		default:
			return &proc.StopEvent{Reason: proc.StopSignal, Signal: sig}
		}
	}
	return &proc.StopEvent{Reason: proc.StopUnknown}
}
