// Package scheduler registers recurring and timed descriptors as jobs and
// fires them from a tick-driven timeline.
//
// The scheduler owns no goroutines. The driving loop calls Tick with the
// current time; every due trigger fires on the caller's goroutine, one after
// the other, through the task engine.
package scheduler
