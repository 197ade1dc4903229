package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"scriptls/internal/core/config"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

const versionString = "0.4.0"

type cliOptions struct {
	configPath string
	verbose    bool

	noHost  bool
	timeout time.Duration
	format  string

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

// Run executes the command line and returns the process exit code.
func Run(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return run(ctx, args, os.Stdin, os.Stdout, os.Stderr)
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	opts := &cliOptions{stdin: stdin, stdout: stdout, stderr: stderr}
	root := newRootCmd(opts)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	if code, ok := err.(exitCode); ok {
		return int(code)
	}
	fmt.Fprintf(stderr, "Error: %s\n", err)
	return 1
}

// exitCode ends a command with a specific status without printing anything.
type exitCode int

func (c exitCode) Error() string { return fmt.Sprintf("exit status %d", int(c)) }

func newRootCmd(opts *cliOptions) *cobra.Command {
	root := &cobra.Command{
		Use:           "scriptls",
		Short:         "Language server for Unreal Angelscript",
		Long:          "scriptls analyses .as scripts incrementally and serves the results to editors over the language server protocol.",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to config file (default: ./"+config.DefaultFile+" if present)")
	root.PersistentFlags().BoolVar(&opts.verbose, "verbose", false, "enable debug logging")

	root.AddCommand(newServeCmd(opts))
	root.AddCommand(newCheckCmd(opts))
	root.AddCommand(newReportCmd(opts))
	root.AddCommand(newVersionCmd(opts))
	return root
}

func newServeCmd(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the language server protocol on stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
	// Editors commonly pass --stdio; it is the only transport.
	cmd.Flags().Bool("stdio", true, "communicate over stdin/stdout")
	cmd.Flags().BoolVar(&opts.noHost, "no-host", false, "do not connect to the editor host")
	return cmd
}

func newCheckCmd(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check [path...]",
		Short: "Analyse a workspace once and print its diagnostics",
		Long:  "Discovers every script under the given roots (or the configured ones), waits until analysis settles and prints the diagnostics. Exits 1 when errors are found.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd.Context(), opts, args)
		},
	}
	cmd.Flags().BoolVar(&opts.noHost, "no-host", false, "do not wait for engine types from the editor host")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 2*time.Minute, "give up when analysis has not settled after this long")
	cmd.Flags().StringVar(&opts.format, "format", "text", "output format: text|json")
	return cmd
}

func newReportCmd(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print the diagnostics persisted by the last run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runReport(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringVar(&opts.format, "format", "text", "output format: text|json")
	return cmd
}

func newVersionCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(opts.stdout, "scriptls v%s\n", versionString)
		},
	}
}

func validateFormat(format string) error {
	switch format {
	case "text", "json":
		return nil
	default:
		return fmt.Errorf("invalid --format %q: must be text or json", format)
	}
}
