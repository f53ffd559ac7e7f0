package terminal

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"

	"github.com/tdb-debugger/tdb/pkg/config"
	"github.com/tdb-debugger/tdb/pkg/proc"
	protest "github.com/tdb-debugger/tdb/pkg/proc/test"
)

const textAddr = 0x401000

type FakeTerminal struct {
	*Term
	out *bytes.Buffer
	ft  *protest.FakeTracee
}

func newFakeTerminal(t *testing.T, n int) *FakeTerminal {
	code := make([]byte, n)
	for i := range code {
		code[i] = protest.OpNop
	}
	code = append(code, protest.OpExit)
	code = append(code, make([]byte, 8)...)
	ft := protest.NewFakeTracee(42, textAddr, code)
	out := new(bytes.Buffer)
	term := &Term{
		debugger: proc.NewSession(ft, proc.AMD64Arch()),
		conf:     &config.Config{HitColor: defaultColor},
		prompt:   "(tdb) ",
		cmds:     DebugCommands(),
		dumb:     true,
		stdout:   out,
		stderr:   out,
	}
	return &FakeTerminal{Term: term, out: out, ft: ft}
}

func (ft *FakeTerminal) Exec(t *testing.T, cmdstr string) string {
	t.Helper()
	ft.out.Reset()
	if err := ft.cmds.Call(cmdstr, ft.Term); err != nil {
		t.Fatalf("Error executing %q: %v", cmdstr, err)
	}
	return ft.out.String()
}

func (ft *FakeTerminal) AssertExecError(t *testing.T, cmdstr, tgterr string) {
	t.Helper()
	err := ft.cmds.Call(cmdstr, ft.Term)
	if err == nil {
		t.Fatalf("Expected error executing %q", cmdstr)
	}
	if !strings.Contains(err.Error(), tgterr) {
		t.Fatalf("Expected error %q executing %q, got error %q", tgterr, cmdstr, err.Error())
	}
}

func TestParseAddress(t *testing.T) {
	good := map[string]uint64{
		"0xdead":             0xdead,
		"0x0":                0,
		"0xffffffffffffffff": 0xffffffffffffffff,
		"0x7FFC1234":         0x7ffc1234,
	}
	for in, want := range good {
		got, err := parseAddress(in)
		if err != nil || got != want {
			t.Fatalf("parseAddress(%q) = %#x, %v; expected %#x", in, got, err, want)
		}
	}
	for _, in := range []string{"dead", "0X10", "0x", "0xzz", "0x10000000000000000", "-0x1"} {
		_, err := parseAddress(in)
		var ierr *InputError
		if !errors.As(err, &ierr) {
			t.Fatalf("parseAddress(%q): expected input error, got %v", in, err)
		}
	}
}

func TestInputErrorsDoNotTouchTarget(t *testing.T) {
	term := newFakeTerminal(t, 32)
	for _, cmdstr := range []string{"b dead", "b", "b 0x1 0x2", "m 0xzz", "x", "c now", "regs all", "frobnicate", "B 0x10"} {
		err := term.cmds.Call(cmdstr, term.Term)
		var ierr *InputError
		if !errors.As(err, &ierr) {
			t.Fatalf("%q: expected input error, got %v", cmdstr, err)
		}
	}
	if len(term.ft.Reads) != 0 || len(term.ft.Writes) != 0 || term.ft.RegWrites != 0 {
		t.Fatal("malformed input reached the target")
	}
	if out := term.Exec(t, ""); out != "" {
		t.Fatalf("empty command printed %q", out)
	}
}

func TestBreakContinueExamine(t *testing.T) {
	term := newFakeTerminal(t, 32)

	if out := term.Exec(t, "b 0x401010"); out != "Breakpoint 1 at 0x401010 set\n" {
		t.Fatalf("break: %q", out)
	}
	if out := term.Exec(t, "break 0x401010"); out != "Breakpoint 1 at 0x401010 already exists\n" {
		t.Fatalf("duplicate break: %q", out)
	}
	if out := term.Exec(t, "bp"); out != "Breakpoint 1 at 0x401010 (original byte 0x90)\n" {
		t.Fatalf("breakpoints: %q", out)
	}
	if out := term.Exec(t, "c"); out != "Hit breakpoint 1 at 0x401010\n" {
		t.Fatalf("continue: %q", out)
	}
	if out := term.Exec(t, "m 0x401010"); out != "0x9090909090909090\n" {
		t.Fatalf("examinemem: %q", out)
	}
	out := term.Exec(t, "r")
	if !strings.Contains(out, "       Rip = 0x0000000000401010\n") {
		t.Fatalf("regs: %q", out)
	}
	if out := term.Exec(t, "continue"); out != "Process 42 has exited with status 0\n" {
		t.Fatalf("continue to exit: %q", out)
	}
	term.AssertExecError(t, "regs", "has exited with status 0")
}

func TestStepInstruction(t *testing.T) {
	term := newFakeTerminal(t, 4)
	for _, cmdstr := range []string{"n", "si", "step-instruction"} {
		out := term.Exec(t, cmdstr)
		if out != "Process 42 stopped by trap\n" {
			t.Fatalf("%s: %q", cmdstr, out)
		}
	}
	if term.ft.Regs.Rip != textAddr+3 {
		t.Fatalf("pc %#x after three steps", term.ft.Regs.Rip)
	}
}

func TestSyscallStop(t *testing.T) {
	term := newFakeTerminal(t, 0)
	term.ft.Map(textAddr, []byte{protest.OpNop, protest.OpNop, protest.OpSyscall, protest.OpExit})
	term.ft.Regs.Orig_rax = 231
	if out := term.Exec(t, "s"); out != "Stopped at syscall #231\n" {
		t.Fatalf("syscall: %q", out)
	}
}

func TestExamineUnmapped(t *testing.T) {
	term := newFakeTerminal(t, 4)
	term.AssertExecError(t, "x 0x10", "could not read memory at 0x10")
}

func TestHelp(t *testing.T) {
	term := newFakeTerminal(t, 4)
	out := term.Exec(t, "help")
	for _, s := range []string{"continue (alias: c)", "examinemem (alias: x | m)", "step-instruction (alias: si | n)", "Manipulating breakpoints:"} {
		if !strings.Contains(out, s) {
			t.Fatalf("help output does not contain %q:\n%s", s, out)
		}
	}
	out = term.Exec(t, "h b")
	if !strings.HasPrefix(out, "Sets a breakpoint.") {
		t.Fatalf("help break: %q", out)
	}
	term.AssertExecError(t, "help nothing", "command not available")
}

func TestExit(t *testing.T) {
	term := newFakeTerminal(t, 4)
	for _, cmdstr := range []string{"exit", "quit", "q"} {
		if _, ok := term.cmds.Call(cmdstr, term.Term).(ExitRequestError); !ok {
			t.Fatalf("%s did not request exit", cmdstr)
		}
	}
}

func TestContinueFromBreakpointAtPC(t *testing.T) {
	// A breakpoint at the current pc must not be reported again when
	// continuing from it.
	term := newFakeTerminal(t, 8)
	term.Exec(t, "b 0x401000")
	if out := term.Exec(t, "c"); out != "Process 42 has exited with status 0\n" {
		t.Fatalf("continue: %q", out)
	}
}

func TestConfigAliases(t *testing.T) {
	term := newFakeTerminal(t, 8)
	term.cmds.Merge(map[string][]string{"continue": {"go"}})
	term.cmds.Merge(map[string][]string{"continue": {"run"}})
	if out := term.Exec(t, "run"); out != "Process 42 has exited with status 0\n" {
		t.Fatalf("alias: %q", out)
	}
	term.AssertExecError(t, "go", "command not available")
}

func TestExecuteFile(t *testing.T) {
	term := newFakeTerminal(t, 32)
	path := filepath.Join(t.TempDir(), "init")
	script := "# set up\nb 0x401008\n\nbogus\nc\nc\nregs\n"
	if err := os.WriteFile(path, []byte(script), 0600); err != nil {
		t.Fatal(err)
	}
	if err := term.cmds.executeFile(term.Term, path); err != nil {
		t.Fatal(err)
	}
	out := term.out.String()
	for _, s := range []string{"Breakpoint 1 at 0x401008 set", path + ":4: command not available", "Hit breakpoint 1 at 0x401008", "has exited with status 0"} {
		if !strings.Contains(out, s) {
			t.Fatalf("output does not contain %q:\n%s", s, out)
		}
	}
	if strings.Contains(out, "Rip") {
		t.Fatal("commands after exit were executed")
	}
}

func TestExecuteFileStopsOnLostTarget(t *testing.T) {
	term := newFakeTerminal(t, 32)
	term.ft.ContinueErr = syscall.ESRCH
	path := filepath.Join(t.TempDir(), "init")
	if err := os.WriteFile(path, []byte("b 0x401008\nc\nregs\n"), 0600); err != nil {
		t.Fatal(err)
	}
	err := term.cmds.executeFile(term.Term, path)
	if !proc.IsFatal(err) {
		t.Fatalf("expected fatal error, got %v", err)
	}
	if term.debugger.State() != proc.Exited {
		t.Fatalf("state %v", term.debugger.State())
	}
	if strings.Contains(term.out.String(), "Rip") {
		t.Fatal("commands after the failure were executed")
	}
}

func TestHighlight(t *testing.T) {
	term := newFakeTerminal(t, 4)
	term.dumb = false
	term.conf.HitColor = 35
	term.Println("Hit breakpoint", " 1 at 0x1")
	if out := term.out.String(); out != "\033[35mHit breakpoint\033[0m 1 at 0x1\n" {
		t.Fatalf("highlighted output %q", out)
	}
}
