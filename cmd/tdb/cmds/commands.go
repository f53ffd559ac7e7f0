package cmds

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/tdb-debugger/tdb/pkg/config"
	"github.com/tdb-debugger/tdb/pkg/logflags"
	"github.com/tdb-debugger/tdb/pkg/proc"
	"github.com/tdb-debugger/tdb/pkg/proc/native"
	"github.com/tdb-debugger/tdb/pkg/terminal"
	"github.com/tdb-debugger/tdb/pkg/version"
)

var (
	// log is whether to log debug statements.
	log bool
	// logOutput is a comma separated list of components that should produce debug output.
	logOutput string
	// logDest is the file path or file descriptor where logs should go.
	logDest string
	// initFile is the path to initialization file.
	initFile string
	// workingDir is the working directory for running the program.
	workingDir string
	// disableASLR launches the program with address space randomization disabled.
	disableASLR bool
	// verbose prints build information with the version.
	verbose bool

	// rootCommand is the root of the command tree.
	rootCommand *cobra.Command

	conf *config.Config
)

const tdbCommandLongDesc = `tdb is a minimal debugger for x86-64 Linux programs.

tdb starts or attaches to a process, stops it and lets you single step it,
continue it to the next breakpoint or system call, and inspect its registers
and memory.

Pass flags to the program you are debugging using ` + "`--`" + `, for example:

` + "`tdb exec ./hello -- server --config conf/config.toml`"

// New returns an initialized command tree.
func New() *cobra.Command {
	// Config setup and load.
	conf = config.LoadConfig()

	// Main tdb root command.
	rootCommand = &cobra.Command{
		Use:   "tdb",
		Short: "tdb is a minimal ptrace debugger.",
		Long:  tdbCommandLongDesc,
	}

	rootCommand.PersistentFlags().BoolVarP(&log, "log", "", false, "Enable debugger logging.")
	rootCommand.PersistentFlags().StringVarP(&logOutput, "log-output", "", "", `Comma separated list of components that should produce debug output (see 'tdb help log')`)
	rootCommand.PersistentFlags().StringVarP(&logDest, "log-dest", "", "", "Writes logs to the specified file or file descriptor (see 'tdb help log').")
	rootCommand.PersistentFlags().StringVar(&initFile, "init", "", "Init file, executed by the terminal client.")
	rootCommand.PersistentFlags().StringVar(&workingDir, "wd", ".", "Working directory for running the program.")

	// 'attach' subcommand.
	attachCommand := &cobra.Command{
		Use:   "attach pid",
		Short: "Attach to running process and begin debugging.",
		Long: `Attach to an already running process and begin debugging it.

The process is stopped while tdb attaches to it. When you exit the debugger
the process is released and keeps running.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return errors.New("you must provide a PID")
			}
			return nil
		},
		Run: attachCmd,
	}
	rootCommand.AddCommand(attachCommand)

	// 'exec' subcommand.
	execCommand := &cobra.Command{
		Use:   "exec <path/to/binary>",
		Short: "Execute a precompiled binary, and begin a debug session.",
		Long: `Execute a precompiled binary and begin a debug session.

This command will cause tdb to exec the binary and stop it on its first
instruction. The program is killed when you exit the debugger.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return errors.New("you must provide a path to a binary")
			}
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			os.Exit(execute(0, args, conf))
		},
	}
	execCommand.Flags().BoolVar(&disableASLR, "disable-aslr", conf.DisableASLR, "Disables address space randomization of the program.")
	rootCommand.AddCommand(execCommand)

	// 'version' subcommand.
	versionCommand := &cobra.Command{
		Use:   "version",
		Short: "Prints version.",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "tdb Debugger\n%s\n", version.TdbVersion)
			if verbose {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\n", version.BuildInfo())
			}
		},
	}
	versionCommand.Flags().BoolVarP(&verbose, "verbose", "v", false, "print verbose version info")
	rootCommand.AddCommand(versionCommand)

	rootCommand.AddCommand(&cobra.Command{
		Use:   "log",
		Short: "Help about logging flags.",
		Long: `Logging can be enabled by specifying the --log flag and using the
--log-output flag to select which components should produce logs.

The argument of --log-output must be a comma separated list of component
names selected from this list:


	debugger	Log debugger commands and stop events
	ptrace		Log every ptrace request sent to the target
	breakpoints	Log breakpoint insertion and removal

Additionally --log-dest can be used to specify where the logs should be
written.
If the argument is a number it will be interpreted as a file descriptor,
otherwise as a file path.

`,
	})

	rootCommand.DisableAutoGenTag = true

	return rootCommand
}

func attachCmd(cmd *cobra.Command, args []string) {
	pid, err := strconv.Atoi(args[0])
	if err != nil || pid <= 0 {
		fmt.Fprintf(os.Stderr, "Invalid pid: %s\n", args[0])
		os.Exit(1)
	}
	os.Exit(execute(pid, nil, conf))
}

func execute(attachPid int, processArgs []string, conf *config.Config) int {
	if err := logflags.Setup(log, logOutput, logDest); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	defer logflags.Close()

	var (
		p   *native.Process
		err error
	)
	if attachPid != 0 {
		p, err = native.Attach(attachPid)
	} else {
		var flags native.LaunchFlags
		if disableASLR {
			flags |= native.LaunchDisableASLR
		}
		p, err = native.Launch(processArgs, workingDir, flags)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not start debugging: %v\n", err)
		return 1
	}
	logflags.DebuggerLogger().Debugf("debugging process %d", p.Pid())

	session := proc.NewSession(p, proc.AMD64Arch())

	term := terminal.New(session, conf)
	term.InitFile = initFile
	term.Halt = p.Halt
	status, err := term.Run()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
	}

	if err := p.Detach(attachPid == 0); err != nil {
		fmt.Fprintf(os.Stderr, "could not detach: %v\n", err)
		if status == 0 {
			status = 1
		}
	}
	return status
}
