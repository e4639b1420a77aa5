// logging.go - structured, rate-limited logging for non-hot-path events

package beatcore

import (
	"os"

	"github.com/charmbracelet/log"
)

// defaultLogger is the package-wide structured logger. Core.ProcessHop calls
// it only on lock-state transitions and, rate-limited to one in every 100
// misses, on per-hop deadline misses; no other event is logged.
var defaultLogger = log.NewWithOptions(os.Stderr, log.Options{
	ReportTimestamp: true,
	Prefix:          "beatcore",
})

// SetLogger overrides the package logger, e.g. to redirect to a file or a
// different sink in the demo harness.
func SetLogger(l *log.Logger) {
	defaultLogger = l
}

type eventLogger struct {
	everyNHops int
	hopCount   uint64
}

func newEventLogger(everyNHops int) *eventLogger {
	if everyNHops < 1 {
		everyNHops = 1
	}
	return &eventLogger{everyNHops: everyNHops}
}

func (e *eventLogger) shouldLog() bool {
	e.hopCount++
	return e.hopCount%uint64(e.everyNHops) == 0
}
