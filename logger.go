package modbus

import (
	"fmt"
	"log"
	"os"
)

type LeveledLogger interface {
	Info(msg string)
	Infof(format string, msg ...interface{})
	Warning(msg string)
	Warningf(format string, msg ...interface{})
	Error(msg string)
	Errorf(format string, msg ...interface{})
	Fatal(msg string)
	Fatalf(format string, msg ...interface{})
}

var _ LeveledLogger = (*logger)(nil)

type logger struct {
	prefix string
	custom *log.Logger
}

// newLogger returns a logger writing to stdout under the given
// prefix, unless customLogger is non-nil, in which case all output is
// routed through it instead.
func newLogger(prefix string, customLogger *log.Logger) (l *logger) {
	l = &logger{
		prefix: prefix,
		custom: customLogger,
	}

	return
}

func (l *logger) Info(msg string) {
	l.write(false, fmt.Sprintf("%s [info]: %s\n", l.prefix, msg))
}

func (l *logger) Infof(format string, msg ...interface{}) {
	l.write(false, fmt.Sprintf("%s [info]: %s\n", l.prefix, fmt.Sprintf(format, msg...)))
}

func (l *logger) Warning(msg string) {
	l.write(false, fmt.Sprintf("%s [warn]: %s\n", l.prefix, msg))
}

func (l *logger) Warningf(format string, msg ...interface{}) {
	l.write(false, fmt.Sprintf("%s [warn]: %s\n", l.prefix, fmt.Sprintf(format, msg...)))
}

func (l *logger) Error(msg string) {
	l.write(false, fmt.Sprintf("%s [error]: %s\n", l.prefix, msg))
}

func (l *logger) Errorf(format string, msg ...interface{}) {
	l.write(false, fmt.Sprintf("%s [error]: %s\n", l.prefix, fmt.Sprintf(format, msg...)))
}

func (l *logger) Fatal(msg string) {
	l.Error(msg)
	os.Exit(1)
}

func (l *logger) Fatalf(format string, msg ...interface{}) {
	l.Errorf(format, msg...)
	os.Exit(1)
}

func (l *logger) write(stderr bool, msg string) {
	if l.custom != nil {
		l.custom.Print(msg)
		return
	}

	if stderr {
		os.Stderr.WriteString(msg)
	} else {
		os.Stdout.WriteString(msg)
	}
}

// NopLogger discards everything. Useful for callers that want the
// LeveledLogger interface satisfied without any output, e.g. in tests.
type NopLogger struct{}

var _ LeveledLogger = (*NopLogger)(nil)

func (NopLogger) Info(msg string)                          {}
func (NopLogger) Infof(format string, msg ...interface{})    {}
func (NopLogger) Warning(msg string)                        {}
func (NopLogger) Warningf(format string, msg ...interface{}) {}
func (NopLogger) Error(msg string)                          {}
func (NopLogger) Errorf(format string, msg ...interface{})   {}
func (NopLogger) Fatal(msg string)                          {}
func (NopLogger) Fatalf(format string, msg ...interface{})   {}
