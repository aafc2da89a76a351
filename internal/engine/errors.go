package engine

import (
	"errors"
	"fmt"

	"github.com/containerd/errdefs"
)

// ErrEngineUnavailable means the container engine daemon did not answer a
// ping before a lifecycle call. Distinct from a lifecycle call that reached
// the daemon and failed.
var ErrEngineUnavailable = errors.New("container engine unavailable")

// ErrExecutionTimeout means an exec, probe, or readiness wait exceeded its
// deadline.
var ErrExecutionTimeout = errors.New("execution timed out")

// ErrSampleFailed means a stats collection attempt failed.
var ErrSampleFailed = errors.New("resource sample failed")

// LifecycleError wraps a failed create/start/stop/remove call with the
// operation and container it was aimed at.
type LifecycleError struct {
	Op  string
	ID  string
	Err error
}

func (e *LifecycleError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.ID, e.Err)
}

func (e *LifecycleError) Unwrap() error { return e.Err }

// IsNotFound reports whether err means the container no longer exists.
// Kept here so no other package imports the engine SDK's error helpers.
func IsNotFound(err error) bool { return errdefs.IsNotFound(err) }
