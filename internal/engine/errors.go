package engine

import "fmt"

// SystemError reports a system that failed during a tick. The tick carries
// on with the next system.
type SystemError struct {
	System string
	Tick   int64
	Err    error
}

// Error implements the error interface.
func (e *SystemError) Error() string {
	return fmt.Sprintf("system %s failed at tick %d: %v", e.System, e.Tick, e.Err)
}

// Unwrap returns the underlying error.
func (e *SystemError) Unwrap() error { return e.Err }
