package channel

import (
	"log"
	"os"
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

// LogLevel controls worker event verbosity.
type LogLevel int

const (
	LogLevelNone LogLevel = iota
	LogLevelError
	LogLevelWarn
	LogLevelInfo
	LogLevelDebug
	LogLevelTrace
)

func (l LogLevel) String() string {
	switch l {
	case LogLevelError:
		return "error"
	case LogLevelWarn:
		return "warn"
	case LogLevelInfo:
		return "info"
	case LogLevelDebug:
		return "debug"
	case LogLevelTrace:
		return "trace"
	default:
		return "none"
	}
}

// ParseLogLevel maps a level name or digit to a LogLevel. Unknown input means warn.
func ParseLogLevel(raw string) LogLevel {
	switch strings.TrimSpace(strings.ToLower(raw)) {
	case "none", "off", "0":
		return LogLevelNone
	case "error", "err", "1":
		return LogLevelError
	case "warn", "warning", "2", "":
		return LogLevelWarn
	case "info", "3":
		return LogLevelInfo
	case "debug", "4":
		return LogLevelDebug
	case "trace", "5":
		return LogLevelTrace
	default:
		return LogLevelWarn
	}
}

// EventLogger writes one JSON object per event for a named worker component.
// The threshold comes from FG_WORKER_LOG_LEVEL unless set explicitly.
type EventLogger struct {
	component string
	level     LogLevel
	logger    *log.Logger
}

// NewEventLogger returns a logger for component at the environment's level.
func NewEventLogger(component string) *EventLogger {
	return &EventLogger{
		component: component,
		level:     ParseLogLevel(os.Getenv("FG_WORKER_LOG_LEVEL")),
		logger:    log.Default(),
	}
}

// WithLevel overrides the threshold.
func (l *EventLogger) WithLevel(level LogLevel) *EventLogger {
	l.level = level
	return l
}

// WithLogger redirects output.
func (l *EventLogger) WithLogger(logger *log.Logger) *EventLogger {
	if logger != nil {
		l.logger = logger
	}
	return l
}

// Enabled reports whether events at level would be written.
func (l *EventLogger) Enabled(level LogLevel) bool {
	return l != nil && level != LogLevelNone && l.level != LogLevelNone && level <= l.level
}

// Event writes event with fields if level passes the threshold.
func (l *EventLogger) Event(level LogLevel, event string, fields map[string]any) {
	if !l.Enabled(level) {
		return
	}

	payload := map[string]any{
		"ts":        time.Now().UTC().Format(time.RFC3339Nano),
		"level":     level.String(),
		"component": l.component,
		"event":     event,
	}
	for k, v := range fields {
		payload[k] = v
	}
	b, err := json.Marshal(payload)
	if err != nil {
		l.logger.Printf("%s: failed to marshal log event %s: %v", l.component, event, err)
		return
	}
	l.logger.Printf("%s", b)
}
