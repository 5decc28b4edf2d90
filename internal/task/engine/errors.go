package engine

import (
	"dasladen/internal/errors"
)

var (
	ErrInvalidTask = errors.New("invalid task")

	// ErrPanic marks an error recovered from a panicking task.
	ErrPanic = errors.New("task panicked")
)

// IsPanic reports whether err was recovered from a panic.
func IsPanic(err error) bool { return errors.Is(err, ErrPanic) }

func panicError(r any) error {
	if err, ok := r.(error); ok {
		return errors.Mark(errors.Wrap(err, "panic"), ErrPanic)
	}
	return errors.Mark(errors.Newf("panic: %v", r), ErrPanic)
}
