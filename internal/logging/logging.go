// Package logging provides the leveled logger shared by gitcon components.
package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/thediveo/enumflag/v2"
)

type Level enumflag.Flag

const (
	Info Level = iota
	Debug
	Warn
	Error
)

var levelIDs = map[Level][]string{
	Debug: {"debug"},
	Info:  {"info"},
	Warn:  {"warn", "warning"},
	Error: {"error"},
}

func (l Level) zerolog() zerolog.Level {
	switch l {
	case Debug:
		return zerolog.DebugLevel
	case Warn:
		return zerolog.WarnLevel
	case Error:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

type Format enumflag.Flag

const (
	Text Format = iota
	JSON
)

var formatIDs = map[Format][]string{
	Text: {"text", "console"},
	JSON: {"json"},
}

type Config struct {
	Level  Level
	Format Format
	Output io.Writer
}

// AddFlags registers --log-level and --log-format on fs, bound to c.
func (c *Config) AddFlags(fs *pflag.FlagSet) {
	fs.Var(enumflag.New(&c.Level, "level", levelIDs, enumflag.EnumCaseInsensitive), "log-level", "log level: debug, info, warn or error")
	fs.Var(enumflag.New(&c.Format, "format", formatIDs, enumflag.EnumCaseInsensitive), "log-format", "log format: text or json")
}

type Logger struct {
	zl    zerolog.Logger
	level Level
}

func NewLogger(cfg Config) *Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	if cfg.Format == Text {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	}

	zl := zerolog.New(out).Level(cfg.Level.zerolog()).With().Timestamp().Logger()
	return &Logger{zl: zl, level: cfg.Level}
}

// NewNop returns a logger that discards everything.
func NewNop() *Logger {
	return &Logger{zl: zerolog.Nop(), level: Error}
}

// Or returns l, or a no-op logger if l is nil.
func Or(l *Logger) *Logger {
	if l == nil {
		return NewNop()
	}
	return l
}

// With returns a child logger that tags every entry with key=value.
func (l *Logger) With(key, value string) *Logger {
	return &Logger{zl: l.zl.With().Str(key, value).Logger(), level: l.level}
}

func (l *Logger) DebugEnabled() bool {
	return l.zl.GetLevel() <= zerolog.DebugLevel
}

func (l *Logger) Debugf(format string, args ...any) {
	l.zl.Debug().Msgf(format, args...)
}

func (l *Logger) Infof(format string, args ...any) {
	l.zl.Info().Msgf(format, args...)
}

func (l *Logger) Warnf(format string, args ...any) {
	l.zl.Warn().Msgf(format, args...)
}

func (l *Logger) Errorf(format string, args ...any) {
	l.zl.Error().Msgf(format, args...)
}

// Writer returns an io.Writer that logs each write at debug level.
func (l *Logger) Writer() io.Writer {
	return debugWriter{l}
}

type debugWriter struct{ l *Logger }

func (w debugWriter) Write(p []byte) (int, error) {
	w.l.zl.Debug().Msg(string(p))
	return len(p), nil
}
