// Package terminal implements functions for responding to user
// input and dispatching to appropriate backend commands.
package terminal

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/cosiner/argv"

	"github.com/tdb-debugger/tdb/pkg/proc"
)

type cmdfunc func(t *Term, args string) error

type command struct {
	aliases        []string
	builtinAliases []string
	group          commandGroup
	helpMsg        string
	cmdFn          cmdfunc
}

// Returns true if the command string matches one of the aliases for this command
func (c command) match(cmdstr string) bool {
	for _, v := range c.aliases {
		if v == cmdstr {
			return true
		}
	}
	return false
}

// Commands represents the commands for the tdb terminal process.
type Commands struct {
	cmds []command
}

// byFirstAlias will sort by the first
// alias of a command.
type byFirstAlias []command

func (a byFirstAlias) Len() int           { return len(a) }
func (a byFirstAlias) Swap(i, j int)      { a[i], a[j] = a[j], a[i] }
func (a byFirstAlias) Less(i, j int) bool { return a[i].aliases[0] < a[j].aliases[0] }

// DebugCommands returns a Commands struct with default commands defined.
func DebugCommands() *Commands {
	c := &Commands{}

	c.cmds = []command{
		{aliases: []string{"help", "h"}, cmdFn: c.help, helpMsg: `Prints the help message.

	help [command]

Type "help" followed by the name of a command for more information about it.`},
		{aliases: []string{"break", "b"}, group: breakCmds, cmdFn: breakpoint, helpMsg: `Sets a breakpoint.

	break <address>

The address is hexadecimal and must start with 0x. The breakpoint is written
into memory the next time the program is continued and removed again every
time the program stops.`},
		{aliases: []string{"breakpoints", "bp"}, group: breakCmds, cmdFn: breakpoints, helpMsg: "Print out info for active breakpoints."},
		{aliases: []string{"continue", "c"}, group: runCmds, cmdFn: cont, helpMsg: "Run until breakpoint or program termination."},
		{aliases: []string{"syscall", "s"}, group: runCmds, cmdFn: contSyscall, helpMsg: `Run until the next system call boundary.

Stops at system call entry and exit, at breakpoints and on program termination.`},
		{aliases: []string{"step-instruction", "si", "n"}, group: runCmds, cmdFn: stepInstruction, helpMsg: `Single step a single cpu instruction.

Breakpoints are not inserted while stepping.`},
		{aliases: []string{"regs", "r"}, group: dataCmds, cmdFn: regs, helpMsg: "Print contents of CPU registers."},
		{aliases: []string{"examinemem", "x", "m"}, group: dataCmds, cmdFn: examineMemory, helpMsg: `Examine raw memory at the given address.

	examinemem <address>

Prints the 8 byte word stored at address. The address is hexadecimal and
must start with 0x.`},
		{aliases: []string{"exit", "quit", "q"}, cmdFn: exitCommand, helpMsg: `Exit the debugger.

A program started by the debugger is killed, an attached process is released.`},
	}

	sort.Sort(byFirstAlias(c.cmds))
	return c
}

// Find will look up the command function for the given command input.
// If it cannot find the command it will default to noCmdAvailable().
// An empty command does nothing.
func (c *Commands) Find(cmdstr string) cmdfunc {
	if cmdstr == "" {
		return nullCommand
	}

	for _, v := range c.cmds {
		if v.match(cmdstr) {
			return v.cmdFn
		}
	}

	return noCmdAvailable
}

// Call takes a command to execute.
func (c *Commands) Call(cmdstr string, t *Term) error {
	vals := strings.SplitN(strings.TrimSpace(cmdstr), " ", 2)
	cmdname := vals[0]
	var args string
	if len(vals) > 1 {
		args = strings.TrimSpace(vals[1])
	}
	return c.Find(cmdname)(t, args)
}

// Merge takes aliases defined in the config struct and merges them with the default aliases.
func (c *Commands) Merge(allAliases map[string][]string) {
	for i := range c.cmds {
		if c.cmds[i].builtinAliases != nil {
			c.cmds[i].aliases = append(c.cmds[i].aliases[:0], c.cmds[i].builtinAliases...)
		}
	}
	for i := range c.cmds {
		if aliases, ok := allAliases[c.cmds[i].aliases[0]]; ok {
			if c.cmds[i].builtinAliases == nil {
				c.cmds[i].builtinAliases = make([]string, len(c.cmds[i].aliases))
				copy(c.cmds[i].builtinAliases, c.cmds[i].aliases)
			}
			c.cmds[i].aliases = append(c.cmds[i].aliases, aliases...)
		}
	}
}

// InputError is returned for malformed commands. The target is never
// accessed when the input could not be parsed.
type InputError struct {
	msg string
}

func (e *InputError) Error() string {
	return e.msg
}

func inputErrorf(format string, args ...interface{}) error {
	return &InputError{msg: fmt.Sprintf(format, args...)}
}

var noCmdError = &InputError{msg: "command not available"}

func noCmdAvailable(t *Term, args string) error {
	return noCmdError
}

func nullCommand(t *Term, args string) error {
	return nil
}

func (c *Commands) help(t *Term, args string) error {
	if args != "" {
		for _, cmd := range c.cmds {
			for _, alias := range cmd.aliases {
				if alias == args {
					fmt.Fprintln(t.stdout, cmd.helpMsg)
					return nil
				}
			}
		}
		return noCmdError
	}
	return t.execute(proc.ShowHelp{})
}

func (c *Commands) printHelp(w io.Writer) error {
	fmt.Fprintln(w, "The following commands are available:")

	for _, cgd := range commandGroupDescriptions {
		fmt.Fprintf(w, "\n%s:\n", cgd.description)
		tw := new(tabwriter.Writer)
		tw.Init(w, 0, 8, 0, '-', 0)
		for _, cmd := range c.cmds {
			if cmd.group != cgd.group {
				continue
			}
			h := cmd.helpMsg
			if idx := strings.Index(h, "\n"); idx >= 0 {
				h = h[:idx]
			}
			if len(cmd.aliases) > 1 {
				fmt.Fprintf(tw, "    %s (alias: %s) \t %s\n", cmd.aliases[0], strings.Join(cmd.aliases[1:], " | "), h)
			} else {
				fmt.Fprintf(tw, "    %s \t %s\n", cmd.aliases[0], h)
			}
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Type help followed by a command for full documentation.")
	return nil
}

// splitArgs splits the arguments of a command the way a shell would.
func splitArgs(args string) ([]string, error) {
	if args == "" {
		return nil, nil
	}
	v, err := argv.Argv(args,
		func(s string) (string, error) {
			return "", fmt.Errorf("backtick not supported in '%s'", s)
		},
		nil)
	if err != nil {
		return nil, inputErrorf("%v", err)
	}
	if len(v) != 1 {
		return nil, inputErrorf("illegal arguments '%s'", args)
	}
	return v[0], nil
}

func noArgs(args string) error {
	if args != "" {
		return inputErrorf("command does not take arguments")
	}
	return nil
}

func addressArg(args string) (uint64, error) {
	v, err := splitArgs(args)
	if err != nil {
		return 0, err
	}
	if len(v) != 1 {
		return 0, inputErrorf("expected exactly one address")
	}
	return parseAddress(v[0])
}

// parseAddress parses a hexadecimal address with a mandatory 0x prefix.
func parseAddress(s string) (uint64, error) {
	if !strings.HasPrefix(s, "0x") {
		return 0, inputErrorf("address should start with 0x: %q", s)
	}
	addr, err := strconv.ParseUint(s[2:], 16, 64)
	if err != nil {
		var nerr *strconv.NumError
		if errors.As(err, &nerr) {
			err = nerr.Err
		}
		return 0, inputErrorf("could not parse address %q: %v", s, err)
	}
	return addr, nil
}

func cont(t *Term, args string) error {
	if err := noArgs(args); err != nil {
		return err
	}
	return t.execute(proc.ContinueUntilBreakpoint{})
}

func contSyscall(t *Term, args string) error {
	if err := noArgs(args); err != nil {
		return err
	}
	return t.execute(proc.ContinueUntilSyscall{})
}

func stepInstruction(t *Term, args string) error {
	if err := noArgs(args); err != nil {
		return err
	}
	return t.execute(proc.SingleStep{})
}

func regs(t *Term, args string) error {
	if err := noArgs(args); err != nil {
		return err
	}
	return t.execute(proc.ShowRegisters{})
}

func examineMemory(t *Term, args string) error {
	addr, err := addressArg(args)
	if err != nil {
		return err
	}
	return t.execute(proc.ShowMemory{Addr: addr})
}

func breakpoint(t *Term, args string) error {
	addr, err := addressArg(args)
	if err != nil {
		return err
	}
	return t.execute(proc.AddBreakpoint{Addr: addr})
}

func breakpoints(t *Term, args string) error {
	if err := noArgs(args); err != nil {
		return err
	}
	return t.execute(proc.ListBreakpoints{})
}

// ExitRequestError is returned when the user
// exits tdb.
type ExitRequestError struct{}

func (ere ExitRequestError) Error() string {
	return ""
}

func exitCommand(t *Term, args string) error {
	return ExitRequestError{}
}

// execute sends cmd to the debugger and prints the report. SIGINT halts
// the target while a run command is executing.
func (t *Term) execute(cmd proc.Command) error {
	switch cmd.(type) {
	case proc.SingleStep, proc.ContinueUntilBreakpoint, proc.ContinueUntilSyscall:
		t.running.Store(true)
		defer t.running.Store(false)
	}
	rep, err := t.debugger.Execute(cmd)
	if err != nil {
		return err
	}
	return t.printReport(rep)
}

func (t *Term) printReport(rep proc.Report) error {
	switch rep := rep.(type) {
	case proc.ExitedReport:
		fmt.Fprintf(t.stdout, "Process %d has exited with status %d\n", rep.Pid, rep.Status)
	case proc.BreakpointHitReport:
		t.Println("Hit breakpoint", fmt.Sprintf(" %d at %#x", rep.Breakpoint.ID, rep.Breakpoint.Addr))
	case proc.StoppedReport:
		t.printStop(rep.Event)
	case proc.RegistersReport:
		printRegisters(t.stdout, rep.Registers)
	case proc.MemoryReport:
		fmt.Fprintf(t.stdout, "%#018x\n", rep.Word)
	case proc.BreakpointAddedReport:
		if rep.Created {
			fmt.Fprintf(t.stdout, "%s set\n", rep.Breakpoint)
		} else {
			fmt.Fprintf(t.stdout, "%s already exists\n", rep.Breakpoint)
		}
	case proc.BreakpointsReport:
		if len(rep.Breakpoints) == 0 {
			fmt.Fprintln(t.stdout, "No breakpoints set")
		}
		for _, bp := range rep.Breakpoints {
			fmt.Fprintf(t.stdout, "%s (original byte %#02x)\n", bp, bp.OriginalByte)
		}
	case proc.HelpReport:
		return t.cmds.printHelp(t.stdout)
	default:
		return fmt.Errorf("unknown report %T", rep)
	}
	return nil
}

func (t *Term) printStop(ev *proc.StopEvent) {
	if ev.Reason == proc.StopSyscall {
		rep, err := t.debugger.Execute(proc.ShowRegisters{})
		if err == nil {
			if regs, ok := rep.(proc.RegistersReport); ok {
				for _, reg := range regs.Registers.Slice() {
					if reg.Name == "Orig_rax" {
						fmt.Fprintf(t.stdout, "Stopped at syscall #%d\n", reg.Value)
						return
					}
				}
			}
		}
	}
	fmt.Fprintf(t.stdout, "Process %d %v\n", t.debugger.Pid(), ev)
}

func printRegisters(w io.Writer, regs proc.Registers) {
	for _, reg := range regs.Slice() {
		fmt.Fprintf(w, "%10s = %#018x\n", reg.Name, reg.Value)
	}
}

func (c *Commands) executeFile(t *Term, name string) error {
	fh, err := os.Open(name)
	if err != nil {
		return err
	}
	defer fh.Close()

	scanner := bufio.NewScanner(fh)
	lineno := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		lineno++

		if line == "" || line[0] == '#' {
			continue
		}

		if err := c.Call(line, t); err != nil {
			if _, isExitRequest := err.(ExitRequestError); isExitRequest {
				return err
			}
			if proc.IsFatal(err) {
				return err
			}
			fmt.Fprintf(t.stdout, "%s:%d: %v\n", name, lineno, err)
		}
		if t.debugger.State() == proc.Exited {
			break
		}
	}

	return scanner.Err()
}
