// Package adbshell is the sole transport façade (spec component C1): it
// runs adb subcommands against a selected device serial, streams stdout,
// and reports exit status. Grounded on the command-construction and
// timeout/connection-check patterns of the teacher's adb_adapter.go, but
// generalized into a reusable façade instead of being embedded directly
// in the scanner/copier types.
package adbshell

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/adbsnap/adbsnap/internal/pullerr"
	"github.com/sirupsen/logrus"
)

// Default per-call timeouts (spec section 5).
const (
	DefaultShellTimeout = 2 * time.Minute
	DefaultPullTimeout   = 5 * time.Minute
)

// Facade runs adb subcommands against one device serial.
type Facade struct {
	Serial string
	Binary string // defaults to "adb"
	Log    logrus.FieldLogger
}

// New returns a Facade bound to serial. If log is nil, logrus's standard
// logger is used.
func New(serial string, log logrus.FieldLogger) *Facade {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Facade{Serial: serial, Binary: "adb", Log: log}
}

func (f *Facade) binary() string {
	if f.Binary == "" {
		return "adb"
	}
	return f.Binary
}

// argv builds the full adb invocation, always carrying "-s <serial>" per
// section 4.1.
func (f *Facade) argv(args ...string) []string {
	full := make([]string, 0, len(args)+2)
	full = append(full, "-s", f.Serial)
	full = append(full, args...)
	return full
}

// Run executes adb with argv and a timeout, returning exit code, stdout and
// stderr. Callers never construct raw command lines containing untrusted
// path fragments — quoting for "shell" subcommands is done by QuotePOSIX.
func (f *Facade) Run(ctx context.Context, timeout time.Duration, args ...string) (int, []byte, []byte, error) {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, f.binary(), f.argv(args...)...)
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return -1, nil, nil, &pullerr.TransportError{Msg: fmt.Sprintf("failed to run adb %v", args), Err: err}
		}
	}

	out := []byte(stdout.String())
	errOut := []byte(stderr.String())

	if exitCode != 0 {
		if len(out) == 0 {
			// Non-zero exit with empty stdout: retryable transport fault.
			return exitCode, out, errOut, &pullerr.TransportError{
				Msg: fmt.Sprintf("adb %v exited %d with no output", args, exitCode),
			}
		}
		// Non-zero exit with parseable stderr: permanent fault.
		return exitCode, out, errOut, &pullerr.TransportError{
			Msg: fmt.Sprintf("adb %v exited %d", args, exitCode),
			Err: fmt.Errorf("%s", strings.TrimSpace(string(errOut))),
		}
	}

	return exitCode, out, errOut, nil
}

// RunStreaming runs argv and yields stdout lines to onLine as they arrive.
// The command is killed if ctx is cancelled.
func (f *Facade) RunStreaming(ctx context.Context, timeout time.Duration, onLine func(string) error, args ...string) error {
	return f.RunStreamingSplit(ctx, timeout, bufio.ScanLines, onLine, args...)
}

// RunStreamingSplit is RunStreaming with a caller-chosen bufio.SplitFunc.
// The remote scanner uses a NUL-byte split so that filenames containing
// newlines are handled correctly (section 4.2).
func (f *Facade) RunStreamingSplit(ctx context.Context, timeout time.Duration, split bufio.SplitFunc, onLine func(string) error, args ...string) error {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, f.binary(), f.argv(args...)...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return &pullerr.TransportError{Msg: "failed to open stdout pipe", Err: err}
	}
	var stderr strings.Builder
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return &pullerr.TransportError{Msg: fmt.Sprintf("failed to start adb %v", args), Err: err}
	}

	scanner := bufio.NewScanner(stdout)
	scanner.Split(split)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	var scanErr error
	for scanner.Scan() {
		if err := onLine(scanner.Text()); err != nil {
			scanErr = err
			_ = cmd.Process.Kill()
			break
		}
	}
	if scanErr == nil {
		scanErr = scanner.Err()
	}

	waitErr := cmd.Wait()
	if scanErr != nil {
		return scanErr
	}
	if waitErr != nil {
		if runCtx.Err() != nil {
			return &pullerr.TransportError{Msg: fmt.Sprintf("adb %v timed out", args), Err: runCtx.Err()}
		}
		return &pullerr.TransportError{Msg: fmt.Sprintf("adb %v failed", args), Err: fmt.Errorf("%s", strings.TrimSpace(stderr.String()))}
	}
	return nil
}

// Pull invokes "adb pull -a <remote> <local>", preserving the remote mtime
// where the adb implementation supports it (section 4.6). The executor
// still explicitly sets mtime afterwards to defend against adb
// implementations that don't preserve it.
func (f *Facade) Pull(ctx context.Context, timeout time.Duration, remote, local string) error {
	_, _, stderr, err := f.Run(ctx, timeout, "pull", "-a", remote, local)
	if err != nil {
		return err
	}
	_ = stderr
	return nil
}

// Devices reports whether the bound serial currently appears in "adb
// devices" as an authorized device — used as a connection health check.
func (f *Facade) Devices(ctx context.Context) (bool, error) {
	runCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	cmd := exec.CommandContext(runCtx, f.binary(), "devices")
	out, err := cmd.Output()
	if err != nil {
		return false, &pullerr.TransportError{Msg: "failed to list adb devices", Err: err}
	}
	for _, line := range strings.Split(string(out), "\n") {
		fields := strings.Fields(line)
		if len(fields) == 2 && fields[0] == f.Serial && fields[1] == "device" {
			return true, nil
		}
	}
	return false, nil
}

// ScanNUL is a bufio.SplitFunc that splits on NUL bytes instead of
// newlines, for parsing "find -printf ... \0" output.
func ScanNUL(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexByte(data, 0); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// QuotePOSIX wraps a remote path fragment in single quotes for use inside
// an "adb shell" command line, escaping embedded single quotes as '\''
// per section 4.1. Callers must never interpolate untrusted fragments
// into a shell command any other way.
func QuotePOSIX(path string) string {
	return "'" + strings.ReplaceAll(path, "'", `'\''`) + "'"
}
