// Package errors provides error handling for dasladen.
//
// It re-exports github.com/cockroachdb/errors so every error created in the
// module carries a stack trace, and adds the error kinds used to classify
// failures in run logs:
//
//	return errors.Configurationf("connection %q: missing driver", name)
//
//	if errors.Is(err, errors.ErrSchedule) {
//	    // invalid schedule section
//	}
//
// The full diagnostic trace of an error is its "%+v" rendering.
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
	WithHint     = crdb.WithHint
	WithDetailf  = crdb.WithDetailf
)

// Error inspection
var (
	Is        = crdb.Is
	IsAny     = crdb.IsAny
	As        = crdb.As
	Unwrap    = crdb.Unwrap
	UnwrapAll = crdb.UnwrapAll
	Mark      = crdb.Mark
)

// Kinds. Match with errors.Is.
var (
	// ErrConfiguration marks a malformed descriptor, a missing key or an
	// unknown connection/driver/task type.
	ErrConfiguration = New("configuration error")

	// ErrTransform marks a failure while reading, transforming or writing records.
	ErrTransform = New("transform error")

	// ErrIO marks filesystem, archive, database and network failures.
	ErrIO = New("io error")

	// ErrSchedule marks a schedule section that cannot be turned into triggers.
	ErrSchedule = New("schedule error")
)

func mark(err, kind error) error {
	if err == nil {
		return nil
	}
	return crdb.Mark(crdb.WithStackDepth(err, 2), kind)
}

func Configuration(err error) error { return mark(err, ErrConfiguration) }
func Transform(err error) error     { return mark(err, ErrTransform) }
func IO(err error) error            { return mark(err, ErrIO) }
func Schedule(err error) error      { return mark(err, ErrSchedule) }

func Configurationf(format string, args ...any) error {
	return crdb.Mark(crdb.NewWithDepthf(1, format, args...), ErrConfiguration)
}

func Transformf(format string, args ...any) error {
	return crdb.Mark(crdb.NewWithDepthf(1, format, args...), ErrTransform)
}

func IOf(format string, args ...any) error {
	return crdb.Mark(crdb.NewWithDepthf(1, format, args...), ErrIO)
}

func Schedulef(format string, args ...any) error {
	return crdb.Mark(crdb.NewWithDepthf(1, format, args...), ErrSchedule)
}

// KindOf names the kind of err, or "unknown" when it carries none.
func KindOf(err error) string {
	switch {
	case err == nil:
		return ""
	case Is(err, ErrConfiguration):
		return "configuration"
	case Is(err, ErrTransform):
		return "transform"
	case Is(err, ErrIO):
		return "io"
	case Is(err, ErrSchedule):
		return "schedule"
	default:
		return "unknown"
	}
}
