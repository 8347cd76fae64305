// Console/JSON progress reporters, grounded on the teacher's
// cli/reporter.go ConsoleReporter/JSONReporter split, rebuilt on top of
// logrus's formatters (section AMBIENT STACK/Logging) and the
// progress.Event shape instead of the teacher's byte-rate ProgressUpdate.
package pullengine

import (
	"os"

	"github.com/adbsnap/adbsnap/internal/progress"
	"github.com/sirupsen/logrus"
)

// ConsoleReporter prints one human-readable log line per event, through a
// dedicated logrus.Logger using the TextFormatter.
type ConsoleReporter struct {
	logger *logrus.Logger
}

// NewConsoleReporter returns a reporter writing text-formatted lines to
// stderr (stdout is reserved for any piped data in non-interactive use).
func NewConsoleReporter(verbose bool) *ConsoleReporter {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	l.SetOutput(os.Stderr)
	if verbose {
		l.SetLevel(logrus.DebugLevel)
	} else {
		l.SetLevel(logrus.InfoLevel)
	}
	return &ConsoleReporter{logger: l}
}

func (r *ConsoleReporter) Emit(e progress.Event) {
	entry := r.logger.WithField("action", e.Action)
	if e.Path != "" {
		entry = entry.WithField("path", e.Path)
	}
	if e.Bytes > 0 {
		entry = entry.WithField("bytes", e.Bytes)
	}
	if e.Err != nil {
		entry.WithError(e.Err).Warn("action failed")
		return
	}
	if e.Action == "failure" {
		entry.Warn("action failed")
		return
	}
	entry.Info("action")
}

// Logger returns the underlying logrus.Logger, e.g. for the orchestrator's
// Options.Log field.
func (r *ConsoleReporter) Logger() *logrus.Logger { return r.logger }

// JSONReporter emits one JSON object per line (logrus's JSONFormatter),
// machine-readable for scripting/automation — the teacher's --json mode
// (cli/main.go's jsonOutput flag) generalized from byte-rate fields to
// action events.
type JSONReporter struct {
	logger *logrus.Logger
}

// NewJSONReporter returns a reporter writing JSON lines to stdout.
func NewJSONReporter() *JSONReporter {
	l := logrus.New()
	l.SetFormatter(&logrus.JSONFormatter{})
	l.SetOutput(os.Stdout)
	return &JSONReporter{logger: l}
}

func (r *JSONReporter) Emit(e progress.Event) {
	entry := r.logger.WithFields(logrus.Fields{
		"seq":    e.Seq,
		"action": e.Action,
		"path":   e.Path,
		"bytes":  e.Bytes,
	})
	if e.Err != nil {
		entry.WithError(e.Err).Error("event")
		return
	}
	entry.Info("event")
}

func (r *JSONReporter) Logger() *logrus.Logger { return r.logger }
