package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Logger defines a minimal, printf-style logging contract.
//
// Components depend on this interface rather than a concrete logger so they
// can be exercised in tests with Nop() and composed with Multi().
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// Nop returns a logger that discards all output.
func Nop() Logger {
	return nopLogger{}
}

// IsNil reports whether logger is nil or wraps a nil pointer receiver.
func IsNil(logger Logger) bool {
	if logger == nil {
		return true
	}
	val := reflect.ValueOf(logger)
	switch val.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Slice, reflect.Map, reflect.Func:
		return val.IsNil()
	default:
		return false
	}
}

// OrNop returns logger when non-nil, otherwise a no-op logger.
func OrNop(logger Logger) Logger {
	if IsNil(logger) {
		return Nop()
	}
	return logger
}

// Level orders log severities. Messages below the active level are dropped.
type Level int32

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return fmt.Sprintf("level(%d)", int32(l))
	}
}

// ParseLevel maps a level name to a Level. Unknown names fall back to info.
func ParseLevel(name string) Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Format selects the output encoding of the standard logger.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// StdLogger writes leveled log lines to a writer. The active level and the
// output format can be changed while the logger is in use, which is how a
// live logging.level update takes effect without recreating the logger.
type StdLogger struct {
	mu     sync.Mutex
	out    io.Writer
	level  atomic.Int32
	format atomic.Value // Format
	now    func() time.Time
}

// New returns a StdLogger writing to out at the given level.
func New(out io.Writer, level Level, format Format) *StdLogger {
	if out == nil {
		out = os.Stderr
	}
	l := &StdLogger{out: out, now: time.Now}
	l.level.Store(int32(level))
	if format != FormatJSON {
		format = FormatText
	}
	l.format.Store(format)
	return l
}

// SetLevel switches the active level. Safe for concurrent use.
func (l *StdLogger) SetLevel(level Level) {
	l.level.Store(int32(level))
}

// SetFormat switches the output encoding. Safe for concurrent use.
func (l *StdLogger) SetFormat(format Format) {
	if format != FormatJSON {
		format = FormatText
	}
	l.format.Store(format)
}

func (l *StdLogger) Debug(format string, args ...any) { l.emit(LevelDebug, format, args...) }
func (l *StdLogger) Info(format string, args ...any)  { l.emit(LevelInfo, format, args...) }
func (l *StdLogger) Warn(format string, args ...any)  { l.emit(LevelWarn, format, args...) }
func (l *StdLogger) Error(format string, args ...any) { l.emit(LevelError, format, args...) }

func (l *StdLogger) emit(level Level, format string, args ...any) {
	if int32(level) < l.level.Load() {
		return
	}
	msg := fmt.Sprintf(format, args...)
	ts := l.now().Format(time.RFC3339)

	var line []byte
	if l.format.Load().(Format) == FormatJSON {
		encoded, err := json.Marshal(map[string]string{
			"ts":    ts,
			"level": level.String(),
			"msg":   msg,
		})
		if err != nil {
			return
		}
		line = append(encoded, '\n')
	} else {
		line = []byte(fmt.Sprintf("%s [%s] %s\n", ts, strings.ToUpper(level.String()), msg))
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = l.out.Write(line)
}

type multiLogger struct {
	loggers []Logger
}

// Multi returns a logger fan-out that calls every non-nil logger in order.
func Multi(loggers ...Logger) Logger {
	flattened := make([]Logger, 0, len(loggers))
	for _, logger := range loggers {
		if IsNil(logger) {
			continue
		}
		if ml, ok := logger.(*multiLogger); ok {
			flattened = append(flattened, ml.loggers...)
			continue
		}
		flattened = append(flattened, logger)
	}
	if len(flattened) == 0 {
		return Nop()
	}
	if len(flattened) == 1 {
		return flattened[0]
	}
	return &multiLogger{loggers: flattened}
}

func (l *multiLogger) Debug(format string, args ...any) {
	for _, logger := range l.loggers {
		logger.Debug(format, args...)
	}
}

func (l *multiLogger) Info(format string, args ...any) {
	for _, logger := range l.loggers {
		logger.Info(format, args...)
	}
}

func (l *multiLogger) Warn(format string, args ...any) {
	for _, logger := range l.loggers {
		logger.Warn(format, args...)
	}
}

func (l *multiLogger) Error(format string, args ...any) {
	for _, logger := range l.loggers {
		logger.Error(format, args...)
	}
}
