// Package hostlog provides a nil-safe structured logger shared by every
// component, following the teacher repo's convention of threading an
// optional logger through constructors rather than reaching for a package
// global. When no logger is supplied, a disabled zerolog.Logger is used so
// call sites never need a nil check.
package hostlog

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// New returns a console-friendly logger writing to stderr at the given
// level. Intended for cmd/ wiring; library code should accept a
// *zerolog.Logger from its caller instead of calling this.
func New(debug bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).
		Level(level).
		With().Timestamp().Logger()
}

// Disabled returns a logger that discards everything, used as the default
// when a component is constructed without a logger.
func Disabled() zerolog.Logger {
	return zerolog.New(io.Discard).Level(zerolog.Disabled)
}

// Or returns logger if non-nil, otherwise a disabled logger. Components keep
// a zerolog.Logger value (not a pointer) internally and use this only at
// construction time.
func Or(logger *zerolog.Logger) zerolog.Logger {
	if logger == nil {
		return Disabled()
	}
	return *logger
}
