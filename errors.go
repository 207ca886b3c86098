package voxline

import (
	"errors"
	"fmt"
	"strings"
)

// ErrCachingStarted is returned when StartCaching is called more than once.
var ErrCachingStarted = errors.New("caching already started")

// FileError describes a recoverable failure tied to one source file.
// Batch operations collect these instead of aborting; a few malformed files
// in a large series is the expected steady state.
type FileError struct {
	Message string
	Path    string
}

func (e FileError) Error() string {
	return fmt.Sprintf("%s in '%s'", e.Message, e.Path)
}

// ErrorReporter receives file errors that occur on paths where no caller is
// synchronously waiting (background loads). Implementations must not block
// for long and must not panic back into the cache.
type ErrorReporter interface {
	FileErrors(errs []FileError)
}

// summaryLines caps the number of distinct messages in a condensed report.
const summaryLines = 5

// SummarizeFileErrors condenses a batch of file errors for display. Each
// distinct message gets one line; repeated messages are collapsed to
// "... and N other file(s)", and the report is capped at a handful of
// distinct messages.
func SummarizeFileErrors(errs []FileError) string {
	var order []string
	paths := make(map[string][]string)
	for _, e := range errs {
		if _, ok := paths[e.Message]; !ok {
			order = append(order, e.Message)
		}
		paths[e.Message] = append(paths[e.Message], e.Path)
	}

	var lines []string
	for _, msg := range order {
		if len(lines) >= summaryLines {
			lines = append(lines, fmt.Sprintf("... and %d other error(s).", len(order)-summaryLines))
			break
		}
		p := paths[msg]
		if len(p) == 1 {
			lines = append(lines, fmt.Sprintf("%s in '%s'", msg, p[0]))
		} else {
			lines = append(lines, fmt.Sprintf("%s in '%s' and %d other file(s).", msg, p[0], len(p)-1))
		}
	}
	return strings.Join(lines, "\n\n")
}

// LogReporter is an ErrorReporter that writes condensed summaries through a
// Logger. It is the default sink when none is injected.
type LogReporter struct {
	logger *Logger
}

// NewLogReporter creates a LogReporter.
func NewLogReporter(logger *Logger) *LogReporter {
	return &LogReporter{logger: logger}
}

// FileErrors implements ErrorReporter.
func (r *LogReporter) FileErrors(errs []FileError) {
	if len(errs) == 0 {
		return
	}
	r.logger.Warn("file errors",
		"count", len(errs),
		"summary", SummarizeFileErrors(errs),
	)
}
