// Package proc is a low-level package that provides methods to manipulate
// the process we are debugging.
//
// proc implements the core of the debugger:
// * the breakpoint table and the read-modify-write protocol used to patch
//   trap instructions into the memory of the target
// * recovery of the target state after it stops on a breakpoint trap
// * the session state machine that sequences step, install and resume
//
// The operating system specific half lives in proc/native.
package proc
