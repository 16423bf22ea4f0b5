// Package main is the folder-sanitizer command line tool.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"

	"folder-sanitizer/internal/exitcodes"
)

// exitError carries the process exit code of a failed command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func exitWith(code int, err error) error {
	return &exitError{code: code, err: err}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := fang.Execute(
		ctx,
		newRootCmd(),
		fang.WithVersion(version),
		fang.WithoutCompletions(),
		fang.WithoutManpage(),
	)
	stop()
	os.Exit(exitCode(err))
}

func exitCode(err error) int {
	if err == nil {
		return exitcodes.Success
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return 1
}

func newRootCmd() *cobra.Command {
	opts := &options{metricsPort: -1}

	root := &cobra.Command{
		Use:   "folder-sanitizer",
		Short: "Strip marketing prefixes and junk files from downloaded folders",
		Long: `folder-sanitizer walks one or more directory trees, removes configured
promotional prefixes from file and folder names and deletes files matching
blacklist rules (regular expressions, globs or exact names).

Settings come from a YAML file; flags override them for a single run and
--save writes the effective settings back.`,
		SilenceUsage: true,
	}
	opts.register(root)

	root.AddCommand(newRunCmd(opts), newWatchCmd(opts))
	return root
}

func newRunCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "run [root...]",
		Short: "Sanitize the roots once and exit",
		Example: `folder-sanitizer run --prefix "[SW.BAND] " --pattern '\[DMC\.RIP\].*\.url$' ~/Downloads/course
folder-sanitizer run --dry-run ~/Downloads`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd, opts, args)
		},
	}
}

func newWatchCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch [root...]",
		Short: "Sanitize the roots on an interval, on HTTP trigger and on changes",
		Long: `watch sweeps the roots at startup and then every interval_minutes.
With a prometheus port configured it serves /metrics, /health, /trigger and
/reload. SIGHUP reloads the configuration file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, opts, args)
		},
	}
	cmd.Flags().IntVar(&opts.interval, "interval", 0, "minutes between sweeps (overrides interval_minutes)")
	cmd.Flags().IntVar(&opts.metricsPort, "metrics-port", -1, "port for the metrics server, 0 disables it")
	cmd.Flags().BoolVar(&opts.fsEvents, "fs-events", false, "also sweep when entries are created under the roots")
	return cmd
}

func usageError(err error) error {
	return exitWith(exitcodes.InvalidConfig, fmt.Errorf("invalid configuration: %w", err))
}
