// Package transport implements the bidirectional control-protocol
// transport: process lifecycle, stream framing, scheduler separation,
// request/response correlation, and graceful shutdown.
package transport

import (
	"errors"
	"fmt"
)

// Sentinel errors for conditions that carry no extra data, following the
// same convention as the teacher's claude.ErrAlreadyStarted family.
var (
	// ErrTransportClosed is returned by any API called while the transport
	// is in CLOSING or CLOSED state.
	ErrTransportClosed = errors.New("transport: closed")

	// ErrIllegalState is returned when an API is called in a state that is
	// valid but not the one the call requires (e.g. send before start).
	ErrIllegalState = errors.New("transport: illegal state for this call")

	// ErrRequestTimeout is returned when a host-originated control request
	// receives no response within its deadline.
	ErrRequestTimeout = errors.New("transport: control request timed out")

	// ErrEmitFailure is returned when the outbound channel refuses a
	// record (closed, or full under the non-blocking enqueue policy).
	ErrEmitFailure = errors.New("transport: outbound channel rejected record")
)

// ProcessLaunchError means the child process could not be started.
type ProcessLaunchError struct {
	Path  string
	Cause error
}

func (e *ProcessLaunchError) Error() string {
	return fmt.Sprintf("transport: failed to launch %q: %v", e.Path, e.Cause)
}

func (e *ProcessLaunchError) Unwrap() error { return e.Cause }

// ProcessExitError means the child exited with a non-zero code while
// WaitForCompletion was active.
type ProcessExitError struct {
	ExitCode int
	Cause    error
}

func (e *ProcessExitError) Error() string {
	return fmt.Sprintf("transport: CLI process exited with code %d", e.ExitCode)
}

func (e *ProcessExitError) Unwrap() error { return e.Cause }

// HookExecutionError names the kind (spec.md §7: HookExecutionError) a
// hook callback failure falls under. It is never constructed on the
// ExecuteHook path — hooks.Registry.ExecuteHook converts a thrown callback
// directly into a block-decision HookOutput string, per spec.md's
// "the CLI must see some response" requirement — so this type is available
// to callers that want a typed error for a hook failure observed some other
// way (e.g. a host wrapping its own HookFunc), not something this package
// constructs itself today.
type HookExecutionError struct {
	CallbackID string
	Cause      error
}

func (e *HookExecutionError) Error() string {
	return fmt.Sprintf("transport: hook %q failed: %v", e.CallbackID, e.Cause)
}

func (e *HookExecutionError) Unwrap() error { return e.Cause }

// PolicyError names the kind (spec.md §7: PolicyError) a permission-policy
// failure falls under. Like HookExecutionError, the actual conversion
// happens inline in permission.Evaluate (a policy error becomes a Deny
// result with a formatted reason) rather than through this type; it is
// available to callers that need a typed error for a policy failure
// observed outside that path.
type PolicyError struct {
	ToolName string
	Cause    error
}

func (e *PolicyError) Error() string {
	return fmt.Sprintf("transport: permission policy failed for tool %q: %v", e.ToolName, e.Cause)
}

func (e *PolicyError) Unwrap() error { return e.Cause }
