// Command adbsnap is the direct-invocation CLI surface described in
// spec section 6. Grounded on the teacher's cli/main.go flag wiring and
// graceful-shutdown pattern, rebuilt on cobra/pflag (section AMBIENT
// STACK/Configuration) in place of the stdlib flag package, and wired to
// pkg/pullengine rather than pkg/engine+pkg/state.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/adbsnap/adbsnap/internal/exclude"
	"github.com/adbsnap/adbsnap/internal/progress"
	"github.com/adbsnap/adbsnap/internal/pullerr"
	"github.com/adbsnap/adbsnap/pkg/pullengine"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Exit codes per spec section 6.
const (
	exitOK            = 0
	exitConfigError   = 1
	exitTransportErr  = 2
	exitActionFailure = 3
	exitCancelled     = 130
)

type cliOptions struct {
	device       string
	excludeFrom  string
	excludes     []string
	reference    string
	delete       bool
	noDelete     bool
	dryRun       bool
	concurrency  int
	verbose      bool
	jsonOutput   bool
	fatTolerance bool
}

func main() {
	os.Exit(run())
}

func run() int {
	opts := &cliOptions{}

	cmd := &cobra.Command{
		Use:           "adbsnap [flags] <remote_root> <local_root>",
		Short:         "Incrementally pull a directory tree from an Android device over adb",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.device, "device", "", "adb device serial (required if more than one device is attached)")
	flags.StringVar(&opts.excludeFrom, "exclude-from", "", "path to a gitignore-style exclude file")
	flags.StringArrayVar(&opts.excludes, "exclude", nil, "exclude pattern (repeatable)")
	flags.StringVar(&opts.reference, "reference", "", "prior local snapshot directory to hard-link unchanged files from")
	flags.BoolVar(&opts.delete, "delete", false, "delete local files absent from the remote tree (default unless --reference is set)")
	flags.BoolVar(&opts.noDelete, "no-delete", false, "keep local files absent from the remote tree (default when --reference is set)")
	flags.BoolVar(&opts.dryRun, "dry-run", false, "compute the action plan without executing it (planned actions are logged at debug level)")
	flags.IntVar(&opts.concurrency, "concurrency", 4, "number of concurrent worker pulls")
	flags.BoolVar(&opts.verbose, "verbose", false, "enable debug-level logging")
	flags.BoolVar(&opts.jsonOutput, "json", false, "emit machine-readable JSON events instead of text logs")
	flags.BoolVar(&opts.fatTolerance, "fat-tolerance", false, "use the 2-second mtime tolerance for FAT/exFAT destinations")

	var exitCode int
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		exitCode = execute(cmd.Context(), args[0], args[1], opts, cmd.Flags())
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nshutdown signal received, finishing in-flight actions...")
		cancel()
	}()

	cmd.SetContext(ctx)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitConfigError
	}
	return exitCode
}

func execute(ctx context.Context, remoteRoot, localRoot string, c *cliOptions, flags *pflag.FlagSet) int {
	if c.delete && c.noDelete {
		fmt.Fprintln(os.Stderr, "error: --delete and --no-delete are mutually exclusive")
		return exitConfigError
	}

	// Section 3: delete_extraneous defaults to true for a standalone
	// (single-version, no --reference) pull and false when maintaining a
	// snapshot chain (--reference given), since deleting extraneous files
	// is safe for a plain mirror but destroys history in the other mode.
	// An explicit --delete/--no-delete always wins over that default.
	deleteExtraneous := c.reference == ""
	switch {
	case flags.Changed("delete"):
		deleteExtraneous = c.delete
	case flags.Changed("no-delete"):
		deleteExtraneous = !c.noDelete
	}

	localRoot, err := pullengine.ResolveAbs(localRoot)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitConfigError
	}

	excludeSet, err := buildExcludes(c)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitConfigError
	}

	var log logrus.FieldLogger
	var emitter progress.Emitter
	if c.jsonOutput {
		r := pullengine.NewJSONReporter()
		log = r.Logger()
		emitter = r
	} else {
		r := pullengine.NewConsoleReporter(c.verbose)
		log = r.Logger()
		emitter = r
	}

	summary, err := pullengine.Pull(ctx, remoteRoot, localRoot, pullengine.Options{
		DeviceSerial:      c.device,
		Excludes:          excludeSet,
		DeleteExtraneous:  deleteExtraneous,
		Concurrency:       c.concurrency,
		DryRun:            c.dryRun,
		FATTolerance:      c.fatTolerance,
		ReferenceSnapshot: c.reference,
		Emitter:           emitter,
		Log:               log,
	})
	if err != nil {
		return exitCodeFor(err)
	}

	fmt.Fprintf(os.Stdout, "pulled=%d linked=%d copied=%d deleted=%d bytes=%d failures=%d\n",
		summary.FilesPulled, summary.FilesLinked, summary.FilesCopied,
		summary.FilesDeleted, summary.BytesTransferred, len(summary.Failures))

	if len(summary.Failures) > 0 {
		return exitActionFailure
	}
	return exitOK
}

func buildExcludes(c *cliOptions) (*exclude.Set, error) {
	if c.excludeFrom == "" && len(c.excludes) == 0 {
		return exclude.Empty(), nil
	}
	var fileLines []string
	if c.excludeFrom != "" {
		lines, err := exclude.ReadPatternFile(c.excludeFrom)
		if err != nil {
			return nil, err
		}
		fileLines = lines
	}
	return exclude.Compile(exclude.Merge(fileLines, c.excludes))
}

func exitCodeFor(err error) int {
	if err == nil {
		return exitOK
	}
	if _, ok := err.(*pullerr.Cancelled); ok {
		return exitCancelled
	}
	if _, ok := err.(*pullerr.ConfigError); ok {
		return exitConfigError
	}
	if _, ok := err.(*pullerr.TransportError); ok {
		return exitTransportErr
	}
	if _, ok := err.(*pullerr.FilesystemError); ok {
		return exitConfigError
	}
	return exitActionFailure
}
