package terminal

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"

	"github.com/derekparker/trie"
	"github.com/go-delve/liner"
	colorable "github.com/mattn/go-colorable"
	isatty "github.com/mattn/go-isatty"

	"github.com/tdb-debugger/tdb/pkg/config"
	"github.com/tdb-debugger/tdb/pkg/proc"
)

const (
	historyFile                 string = ".tdb_history"
	terminalHighlightEscapeCode string = "\033[%2dm"
	terminalResetEscapeCode     string = "\033[0m"
)

const (
	ansiBlack    = 30
	ansiGreen    = 32
	ansiWhite    = 37
	ansiBrBlack  = 90
	ansiBrWhite  = 97
	defaultColor = ansiGreen
)

// Debugger is the part of proc.Session driven by the terminal.
type Debugger interface {
	Execute(proc.Command) (proc.Report, error)
	State() proc.SessionState
	Pid() int
}

// Term represents the terminal running tdb.
type Term struct {
	debugger Debugger
	conf     *config.Config
	prompt   string
	line     *liner.State
	cmds     *Commands
	dumb     bool
	stdout   io.Writer
	stderr   io.Writer
	InitFile string

	// Halt stops the target. It is called when SIGINT is received while
	// a run command is in progress.
	Halt func() error

	running atomic.Bool
}

// New returns a new Term.
func New(debugger Debugger, conf *config.Config) *Term {
	cmds := DebugCommands()
	if conf != nil && conf.Aliases != nil {
		cmds.Merge(conf.Aliases)
	}

	if conf == nil {
		conf = &config.Config{}
	}

	var w io.Writer

	dumb := strings.ToLower(os.Getenv("TERM")) == "dumb" || !isatty.IsTerminal(os.Stdout.Fd())
	if dumb {
		w = os.Stdout
	} else {
		w = colorable.NewColorableStdout()
	}

	if (conf.HitColor > ansiWhite &&
		conf.HitColor < ansiBrBlack) ||
		conf.HitColor < ansiBlack ||
		conf.HitColor > ansiBrWhite {
		conf.HitColor = defaultColor
	}

	return &Term{
		debugger: debugger,
		conf:     conf,
		prompt:   "(tdb) ",
		line:     liner.NewLiner(),
		cmds:     cmds,
		dumb:     dumb,
		stdout:   w,
		stderr:   os.Stderr,
	}
}

// Close returns the terminal to its previous mode.
func (t *Term) Close() {
	if t.line != nil {
		t.line.Close()
	}
}

func (t *Term) sigintGuard(ch <-chan os.Signal) {
	for range ch {
		if !t.running.Load() || t.Halt == nil {
			continue
		}
		fmt.Fprintf(t.stdout, "received SIGINT, stopping process (will not forward signal)\n")
		if err := t.Halt(); err != nil {
			fmt.Fprintf(t.stderr, "%v\n", err)
		}
	}
}

// Run begins running tdb in the terminal. It returns when the user exits,
// the target exits or the target can no longer be waited for.
func (t *Term) Run() (int, error) {
	defer t.Close()

	// Stop the target on SIGINT instead of dying.
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT)
	defer signal.Stop(ch)
	go t.sigintGuard(ch)

	completions := trie.New()
	for _, cmd := range t.cmds.cmds {
		for _, alias := range cmd.aliases {
			completions.Add(alias, nil)
		}
	}
	t.line.SetCompleter(func(line string) []string {
		return completions.PrefixSearch(strings.ToLower(line))
	})

	fullHistoryFile, err := config.GetConfigFilePath(historyFile)
	if err != nil {
		fmt.Printf("Unable to load history file: %v.", err)
	}

	f, err := os.Open(fullHistoryFile)
	if err != nil {
		f, err = os.Create(fullHistoryFile)
		if err != nil {
			fmt.Printf("Unable to open history file: %v. History will not be saved for this session.", err)
		}
	}
	if f != nil {
		t.line.ReadHistory(f)
		f.Close()
	}
	fmt.Fprintf(t.stdout, "Process started %d\n", t.debugger.Pid())
	fmt.Fprintln(t.stdout, "Type 'help' for list of commands.")

	if t.InitFile != "" {
		err := t.cmds.executeFile(t, t.InitFile)
		if err != nil {
			if _, ok := err.(ExitRequestError); ok {
				return t.handleExit(0)
			}
			if proc.IsFatal(err) {
				fmt.Fprintln(t.stderr, err)
				return t.handleExit(1)
			}
			fmt.Fprintf(t.stderr, "Error executing init file: %s\n", err)
		}
	}

	for {
		if t.debugger.State() == proc.Exited {
			return t.handleExit(0)
		}

		cmdstr, err := t.promptForInput()
		if err != nil {
			if err == io.EOF {
				fmt.Fprintln(t.stdout, "exit")
				return t.handleExit(0)
			}
			return 1, fmt.Errorf("Prompt for input failed.\n")
		}

		if err := t.cmds.Call(cmdstr, t); err != nil {
			if _, ok := err.(ExitRequestError); ok {
				return t.handleExit(0)
			}
			if proc.IsFatal(err) {
				fmt.Fprintln(t.stderr, err)
				return t.handleExit(1)
			}
			var ierr *InputError
			if errors.As(err, &ierr) {
				fmt.Fprintln(t.stderr, err)
				continue
			}
			fmt.Fprintf(t.stderr, "Command failed: %s\n", err)
		}
	}
}

// Println prints a line to the terminal, highlighting prefix.
func (t *Term) Println(prefix, str string) {
	if !t.dumb {
		terminalColorEscapeCode := fmt.Sprintf(terminalHighlightEscapeCode, t.conf.HitColor)
		prefix = fmt.Sprintf("%s%s%s", terminalColorEscapeCode, prefix, terminalResetEscapeCode)
	}
	fmt.Fprintf(t.stdout, "%s%s\n", prefix, str)
}

func (t *Term) promptForInput() (string, error) {
	l, err := t.line.Prompt(t.prompt)
	if err != nil {
		return "", err
	}

	l = strings.TrimSuffix(l, "\n")
	if l != "" {
		t.line.AppendHistory(l)
	}

	return l, nil
}

func (t *Term) handleExit(status int) (int, error) {
	fullHistoryFile, err := config.GetConfigFilePath(historyFile)
	if err != nil {
		fmt.Println("Error saving history file:", err)
		return status, nil
	}
	if f, err := os.OpenFile(fullHistoryFile, os.O_RDWR, 0666); err == nil {
		_, err = t.line.WriteHistory(f)
		if err != nil {
			fmt.Println("readline history error:", err)
		}
		f.Close()
	}
	return status, nil
}
