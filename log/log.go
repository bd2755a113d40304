// Package log wraps a global zerolog logger. Every package of the node logs
// through it so a single Init call controls level, format and destination.
package log

import (
	"cmp"
	"fmt"
	"io"
	"os"
	"path"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
	LogLevelFatal = "fatal"

	RFC3339Milli = "2006-01-02T15:04:05.000Z07:00" // like time.RFC3339Nano but with 3 fixed-width decimals
)

var levels = map[string]zerolog.Level{
	LogLevelDebug: zerolog.DebugLevel,
	LogLevelInfo:  zerolog.InfoLevel,
	LogLevelWarn:  zerolog.WarnLevel,
	LogLevelError: zerolog.ErrorLevel,
	LogLevelFatal: zerolog.FatalLevel,
}

var (
	log   zerolog.Logger
	logMu sync.RWMutex
)

func init() {
	// $LOG_LEVEL also applies to tests, which never call Init themselves.
	Init(cmp.Or(os.Getenv("LOG_LEVEL"), LogLevelError), "stderr", nil)
}

// Logger provides access to the global logger (zerolog).
func Logger() *zerolog.Logger {
	logger := getLogger()
	return &logger
}

func getLogger() zerolog.Logger {
	logMu.RLock()
	defer logMu.RUnlock()
	return log
}

func setLogger(logger zerolog.Logger) {
	logMu.Lock()
	log = logger
	logMu.Unlock()
}

// testWriter replaces the output named testOutput, with a fixed timestamp.
var testWriter io.Writer

const testOutput = "log_test_writer"

var testTime, _ = time.Parse(RFC3339Milli, "2006-01-02T15:04:05.000Z")

// warnWriter forwards only warnings and errors.
type warnWriter struct {
	io.Writer
}

var _ zerolog.LevelWriter = &warnWriter{}

func (w *warnWriter) Write(p []byte) (int, error) {
	return w.Writer.Write(p)
}

func (w *warnWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	if level < zerolog.WarnLevel {
		return len(p), nil
	}
	return w.Writer.Write(p)
}

func console(out io.Writer, noColor bool) zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{Out: out, TimeFormat: RFC3339Milli, NoColor: noColor}
}

// Init configures the global logger. output is stdout, stderr or a file
// path. A path ending in .json receives JSON lines while stdout keeps the
// console format, so log collectors and operators both get theirs.
// errorOutput, if not nil, additionally receives warnings and errors.
// Init panics on an unknown level or an unwritable file.
func Init(level, output string, errorOutput io.Writer) {
	lvl, ok := levels[level]
	if !ok {
		panic(fmt.Sprintf("invalid log level: %q", level))
	}

	var outputs []io.Writer
	switch output {
	case "stdout":
		outputs = append(outputs, console(os.Stdout, false))
	case "stderr":
		outputs = append(outputs, console(os.Stderr, false))
	case testOutput:
		outputs = append(outputs, console(testWriter, true))
	default:
		f, err := os.OpenFile(output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			panic(fmt.Sprintf("cannot create log output: %v", err))
		}
		if strings.HasSuffix(output, ".json") {
			outputs = append(outputs, f, console(os.Stdout, false))
		} else {
			outputs = append(outputs, console(f, true))
		}
	}
	if errorOutput != nil {
		outputs = append(outputs, &warnWriter{console(errorOutput, true)})
	}

	var out io.Writer = outputs[0]
	if len(outputs) > 1 {
		out = zerolog.MultiLevelWriter(outputs...)
	}

	if output == testOutput {
		zerolog.TimestampFunc = func() time.Time { return testTime }
	}
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	// skip the frames of this wrapper
	zerolog.CallerSkipFrameCount = 3
	zerolog.CallerMarshalFunc = func(pc uintptr, file string, line int) string {
		return fmt.Sprintf("%s/%s:%d", path.Base(path.Dir(file)), path.Base(file), line)
	}

	logger := zerolog.New(out).Level(lvl).With().Timestamp().Caller().Logger()
	setLogger(logger)
	logger.Debug().Msgf("logger ready at level %s with output %s", level, output)
}

// Level returns the current log level
func Level() string {
	current := getLogger().GetLevel()
	for name, lvl := range levels {
		if lvl == current {
			return name
		}
	}
	return current.String()
}

// Debug sends a debug level log message
func Debug(args ...any) {
	logger := getLogger()
	if logger.GetLevel() > zerolog.DebugLevel {
		return
	}
	logger.Debug().Msg(fmt.Sprint(args...))
}

// Info sends an info level log message
func Info(args ...any) {
	logger := getLogger()
	logger.Info().Msg(fmt.Sprint(args...))
}

// Monitor logs a set of counters at info level, without caller.
func Monitor(msg string, args map[string]any) {
	logger := getLogger()
	logger.Info().CallerSkipFrame(100).Fields(args).Msg(msg)
}

// Warn sends a warn level log message
func Warn(args ...any) {
	logger := getLogger()
	logger.Warn().Msg(fmt.Sprint(args...))
}

// Error sends an error level log message
func Error(args ...any) {
	logger := getLogger()
	logger.Error().Msg(fmt.Sprint(args...))
}

// Fatal logs the message with the stack trace and exits.
func Fatal(args ...any) {
	logger := getLogger()
	logger.Fatal().Msg(fmt.Sprint(args...) + "\n" + string(debug.Stack()))
	panic("unreachable")
}

// Debugf sends a formatted debug level log message
func Debugf(template string, args ...any) {
	Logger().Debug().Msgf(template, args...)
}

// Infof sends a formatted info level log message
func Infof(template string, args ...any) {
	Logger().Info().Msgf(template, args...)
}

// Warnf sends a formatted warn level log message
func Warnf(template string, args ...any) {
	Logger().Warn().Msgf(template, args...)
}

// Fatalf logs the formatted message and exits.
func Fatalf(template string, args ...any) {
	Logger().Fatal().Msgf(template, args...)
}

// Debugw sends a debug level log message with key-value pairs.
func Debugw(msg string, keyvalues ...any) {
	Logger().Debug().Fields(keyvalues).Msg(msg)
}

// Infow sends an info level log message with key-value pairs.
func Infow(msg string, keyvalues ...any) {
	Logger().Info().Fields(keyvalues).Msg(msg)
}

// Warnw sends a warning level log message with key-value pairs.
func Warnw(msg string, keyvalues ...any) {
	Logger().Warn().Fields(keyvalues).Msg(msg)
}

// Errorw logs err with msg at error level.
func Errorw(err error, msg string) {
	Logger().Error().Err(err).Msg(msg)
}
