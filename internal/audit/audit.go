// Package audit maintains the ordered, append-only trail of everything a
// GraphToolKit command did during one invocation. The log is created at the
// top of a command and passed down explicitly; there is no package-level
// state, so parallel tests (and any future concurrent callers) stay safe.
//
// Entries are never filtered by severity: every message is recorded in
// order, and severity exists only so the export and the mirrored console
// logger can classify them.
package audit

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"graphtoolkit/internal/common/logger"
)

// Severity classifies an audit entry. Purely informational: nothing is
// suppressed based on it.
type Severity string

const (
	SeverityVerbose     Severity = "Verbose"
	SeverityWarning     Severity = "Warning"
	SeverityError       Severity = "Error"
	SeverityInformation Severity = "Information"
)

// Entry is a single audit record. Ordering within a Log is the authoritative
// sequence of events; the timestamp is a convenience for the CSV export.
type Entry struct {
	Time     time.Time
	Function string
	Message  string
	Severity Severity
}

// Log is the per-invocation audit trail.
type Log struct {
	mu            sync.Mutex
	command       string
	correlationID string
	entries       []Entry
	functions     []string // stack of BeginFunction names
	slogger       *slog.Logger
	started       time.Time
}

// New creates a Log for the named command, writes the begin marker, and tags
// the run with a correlation ID so exported logs from concurrent operators
// can be told apart.
func New(command string, slogger *slog.Logger) *Log {
	l := &Log{
		command:       command,
		correlationID: uuid.NewString(),
		slogger:       slogger,
		started:       time.Now(),
	}
	l.Append(fmt.Sprintf("=== %s started (run %s) ===", command, l.correlationID), SeverityInformation)
	return l
}

// CorrelationID returns the run identifier written into the begin marker.
func (l *Log) CorrelationID() string {
	return l.correlationID
}

// BeginFunction records entry into a named component function. Nesting is
// tracked so EndFunction can bracket correctly; the log itself is never
// reset by these markers.
func (l *Log) BeginFunction(name string) {
	l.mu.Lock()
	l.functions = append(l.functions, name)
	l.mu.Unlock()
	l.Append(fmt.Sprintf("--> %s", name), SeverityVerbose)
}

// EndFunction records exit from the innermost function bracket.
func (l *Log) EndFunction() {
	l.mu.Lock()
	name := ""
	if n := len(l.functions); n > 0 {
		name = l.functions[n-1]
		l.functions = l.functions[:n-1]
	}
	l.mu.Unlock()
	l.Append(fmt.Sprintf("<-- %s", name), SeverityVerbose)
}

// Append adds a message to the trail and mirrors it to the structured logger.
func (l *Log) Append(message string, severity Severity) {
	l.mu.Lock()
	fn := ""
	if n := len(l.functions); n > 0 {
		fn = l.functions[n-1]
	}
	l.entries = append(l.entries, Entry{
		Time:     time.Now(),
		Function: fn,
		Message:  message,
		Severity: severity,
	})
	l.mu.Unlock()

	switch severity {
	case SeverityWarning:
		logger.LogWarn(l.slogger, message, "function", fn)
	case SeverityError:
		logger.LogError(l.slogger, message, "function", fn)
	case SeverityVerbose:
		logger.LogDebug(l.slogger, message, "function", fn)
	default:
		logger.LogInfo(l.slogger, message, "function", fn)
	}
}

// Errorf appends an Error entry built from a format string and returns the
// formatted error, so call sites can log and propagate in one step.
func (l *Log) Errorf(format string, args ...any) error {
	err := fmt.Errorf(format, args...)
	l.Append(err.Error(), SeverityError)
	return err
}

// Entries returns a copy of the recorded entries in order.
func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// End writes the closing marker and, when outputPath is non-empty, exports
// the full trail as CSV. The export uses each entry's own timestamp rather
// than the write time.
func (l *Log) End(outputPath string) error {
	l.Append(fmt.Sprintf("=== %s finished after %s ===", l.command, time.Since(l.started).Round(time.Millisecond)), SeverityInformation)

	if outputPath == "" {
		return nil
	}

	csvLogger, err := logger.OpenCSVLogger(outputPath)
	if err != nil {
		return fmt.Errorf("audit export failed: %w", err)
	}

	if newFile, err := csvLogger.ShouldWriteHeader(); err == nil && newFile {
		if err := csvLogger.WriteHeader([]string{"Timestamp", "Function", "Severity", "Message"}); err != nil {
			csvLogger.Close()
			return fmt.Errorf("audit export failed: %w", err)
		}
	}

	for _, e := range l.Entries() {
		row := []string{
			e.Time.Format("2006-01-02 15:04:05"),
			e.Function,
			string(e.Severity),
			e.Message,
		}
		if err := csvLogger.WriteRow(row); err != nil {
			csvLogger.Close()
			return fmt.Errorf("audit export failed: %w", err)
		}
	}

	return csvLogger.Close()
}
