package native

import (
	"errors"
	"runtime"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/tdb-debugger/tdb/pkg/logflags"
	"github.com/tdb-debugger/tdb/pkg/proc"
)

// ErrNativeBackendDisabled is returned when the native backend is not
// available on this platform.
var ErrNativeBackendDisabled = errors.New("native backend disabled")

// LaunchFlags modify how a process is started.
type LaunchFlags uint8

const (
	LaunchDisableASLR LaunchFlags = 1 << iota
)

// Process represents all of the information the debugger
// is holding onto regarding the process we are debugging.
type Process struct {
	pid int // Process Pid

	stopMu         sync.Mutex
	ptraceChan     chan func()
	ptraceDoneChan chan interface{}
	childProcess   bool // this process was launched, not attached to

	exited, detached bool

	log *logrus.Entry
}

// New returns an initialized Process struct. Before returning,
// it will also launch a goroutine in order to handle ptrace(2)
// functions. For more information, see the documentation on
// `handlePtraceFuncs`.
func New(pid int) *Process {
	dbp := &Process{
		pid:            pid,
		ptraceChan:     make(chan func()),
		ptraceDoneChan: make(chan interface{}),
		log:            logflags.PtraceLogger(),
	}
	go dbp.handlePtraceFuncs()
	return dbp
}

// Pid returns the process ID.
func (dbp *Process) Pid() int {
	return dbp.pid
}

// Exited returns whether the debugged
// process has exited.
func (dbp *Process) Exited() bool {
	dbp.stopMu.Lock()
	defer dbp.stopMu.Unlock()
	return dbp.exited
}

// Valid returns whether the process is still attached to and
// has not exited.
func (dbp *Process) Valid() (bool, error) {
	dbp.stopMu.Lock()
	defer dbp.stopMu.Unlock()
	if dbp.detached {
		return false, errors.New("detached from the process")
	}
	if dbp.exited {
		return false, proc.ErrProcessExited{Pid: dbp.pid}
	}
	return true, nil
}

func (dbp *Process) handlePtraceFuncs() {
	// We must ensure here that we are running on the same thread during
	// while invoking the ptrace(2) syscall. This is due to the fact that ptrace(2) expects
	// all commands after PTRACE_ATTACH to come from the same thread.
	runtime.LockOSThread()

	for fn := range dbp.ptraceChan {
		fn()
		dbp.ptraceDoneChan <- nil
	}
}

func (dbp *Process) execPtraceFunc(fn func()) {
	dbp.ptraceChan <- fn
	<-dbp.ptraceDoneChan
}

// ptrace runs fn on the ptrace thread, unless the process is already gone.
func (dbp *Process) ptrace(fn func() error) error {
	if ok, err := dbp.Valid(); !ok {
		return err
	}
	var err error
	dbp.execPtraceFunc(func() { err = fn() })
	return err
}

func (dbp *Process) postExit() {
	dbp.stopMu.Lock()
	defer dbp.stopMu.Unlock()
	if dbp.exited {
		return
	}
	dbp.exited = true
	close(dbp.ptraceChan)
	close(dbp.ptraceDoneChan)
}
