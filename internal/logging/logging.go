// Package logging adapts logrus to the service Logger interface.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Format selects the logrus formatter.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// Options configures New.
type Options struct {
	Level  string
	Format Format
	Output io.Writer
}

// Logger writes key/value pairs as logrus fields.
type Logger struct {
	entry *logrus.Entry
}

// New builds a logger. An empty level means info; an unknown level is an error.
func New(opts Options) (*Logger, error) {
	base := logrus.New()
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	base.SetOutput(out)

	switch Format(strings.ToLower(string(opts.Format))) {
	case FormatJSON:
		base.SetFormatter(&logrus.JSONFormatter{})
	case FormatText, "":
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, DisableColors: true})
	default:
		return nil, fmt.Errorf("unknown log format %q", opts.Format)
	}

	level := logrus.InfoLevel
	if opts.Level != "" {
		parsed, err := logrus.ParseLevel(opts.Level)
		if err != nil {
			return nil, err
		}
		level = parsed
	}
	base.SetLevel(level)
	return &Logger{entry: logrus.NewEntry(base)}, nil
}

// Wrap adapts an existing logrus logger.
func Wrap(l *logrus.Logger) *Logger {
	return &Logger{entry: logrus.NewEntry(l)}
}

// Logrus exposes the underlying logger, e.g. for HTTP request logging.
func (l *Logger) Logrus() *logrus.Logger {
	return l.entry.Logger
}

// With returns a child logger carrying the given key/value pairs.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{entry: l.entry.WithFields(fields(args))}
}

func (l *Logger) Debug(msg string, args ...any) { l.entry.WithFields(fields(args)).Debug(msg) }
func (l *Logger) Info(msg string, args ...any)  { l.entry.WithFields(fields(args)).Info(msg) }
func (l *Logger) Warn(msg string, args ...any)  { l.entry.WithFields(fields(args)).Warn(msg) }
func (l *Logger) Error(msg string, args ...any) { l.entry.WithFields(fields(args)).Error(msg) }

// fields pairs up args. A trailing key without a value is kept under
// "!BADKEY"; non-string keys are formatted with %v. Errors are stored as
// their message.
func fields(args []any) logrus.Fields {
	if len(args) == 0 {
		return nil
	}
	out := make(logrus.Fields, (len(args)+1)/2)
	for i := 0; i < len(args); i += 2 {
		if i+1 >= len(args) {
			out["!BADKEY"] = args[i]
			break
		}
		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprint(args[i])
		}
		value := args[i+1]
		if err, ok := value.(error); ok && err != nil {
			value = err.Error()
		}
		out[key] = value
	}
	return out
}
