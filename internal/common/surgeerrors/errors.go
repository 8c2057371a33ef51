// Package surgeerrors contains the error types returned by the orchestration
// code. Callers are expected to match on these types with errors.As, as
// opposed to just considering the topmost error in the chain.
//
// If multiple errors occur in some function (e.g., during cleanup, where each
// step is attempted regardless of earlier failures), that function should
// return an error of type multierror.Error from package
// github.com/hashicorp/go-multierror that encapsulates those individual errors.
package surgeerrors

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
)

// ErrInvalidArgument is a generic error to be returned on invalid argument.
// Message is optional and is omitted from the error message if not provided.
type ErrInvalidArgument struct {
	Name    string      // Name of the field referred to, e.g., "targetRate"
	Value   interface{} // The invalid value that was provided
	Message string      // An optional message explaining why the value is invalid
}

func (err *ErrInvalidArgument) Error() string {
	if err.Message == "" {
		return fmt.Sprintf("value %v is invalid for field %q", err.Value, err.Name)
	} else {
		return fmt.Sprintf("value %v is invalid for field %q; %s", err.Value, err.Name, err.Message)
	}
}

// ErrNotFound is a generic error to be returned whenever some resource isn't found.
// Type and Message are optional and are omitted from the error message if not provided.
type ErrNotFound struct {
	Type    string // Resource type, e.g., "execution" or "stream"
	Value   string // Resource name or id
	Message string
}

func (err *ErrNotFound) Error() (s string) {
	if err.Type != "" {
		s = fmt.Sprintf("resource %q of type %q does not exist", err.Value, err.Type)
	} else {
		s = fmt.Sprintf("resource %q does not exist", err.Value)
	}
	if err.Message != "" {
		return s + fmt.Sprintf("; %s", err.Message)
	} else {
		return s
	}
}

// ErrPrecheckFailed indicates that an account- or environment-level capability
// required by the requested operation is not enabled. The operation was
// rejected before any resource was mutated. Remediation names the out-of-band
// action that enables the capability.
type ErrPrecheckFailed struct {
	Capability  string // The missing capability, e.g., "warm capacity"
	Subject     string // What the capability was required for, e.g., a stream name
	Remediation string // How to enable it, e.g., a CLI command
}

func (err *ErrPrecheckFailed) Error() (s string) {
	if err.Subject != "" {
		s = fmt.Sprintf("account is not enabled for %s (required by %q)", err.Capability, err.Subject)
	} else {
		s = fmt.Sprintf("account is not enabled for %s", err.Capability)
	}
	if err.Remediation != "" {
		s = s + fmt.Sprintf("; run %q first", err.Remediation)
	}
	return
}

// ErrResourceFailed indicates that a polled resource entered a state from
// which the target state is unreachable, e.g., a stream that went into
// DELETING while we were waiting for ACTIVE.
type ErrResourceFailed struct {
	Type   string // Resource type, e.g., "stream" or "fleet"
	Name   string
	State  string // The state the resource was observed in
	Reason string // Optional provider-supplied detail
}

func (err *ErrResourceFailed) Error() (s string) {
	s = fmt.Sprintf("%s %q entered state %q", err.Type, err.Name, err.State)
	if err.Reason != "" {
		s = s + fmt.Sprintf(": %s", err.Reason)
	}
	return
}

// ErrPollTimeout indicates that a resource did not reach the target state
// within the configured bound. LastState records the final observation so
// operators can tell a slow transition from a stuck one.
type ErrPollTimeout struct {
	Type      string
	Name      string
	Target    string // The state we were waiting for
	LastState string // The state last observed before giving up
	Waited    time.Duration
}

func (err *ErrPollTimeout) Error() string {
	return fmt.Sprintf(
		"timed out after %s waiting for %s %q to reach %q; last observed %q",
		err.Waited, err.Type, err.Name, err.Target, err.LastState)
}

// ErrStabilizationTimeout indicates that a fleet accepted a new size but did
// not converge on it within the configured bound. The partial observation is
// retained; no rollback is attempted.
type ErrStabilizationTimeout struct {
	Fleet   string
	Desired int
	Running int // Workers observed running when the bound expired
	Waited  time.Duration
}

func (err *ErrStabilizationTimeout) Error() string {
	return fmt.Sprintf(
		"fleet %q did not stabilize at %d workers within %s; %d/%d running",
		err.Fleet, err.Desired, err.Waited, err.Running, err.Desired)
}

// ErrConflict is returned when starting an execution against a (fleet, stream)
// pair that already has an active execution. The new request is rejected
// outright; it is never queued or retried.
type ErrConflict struct {
	Fleet       string
	Stream      string
	ExecutionId string // The execution already holding the pair
}

func (err *ErrConflict) Error() string {
	return fmt.Sprintf(
		"an execution is already active for fleet %q and stream %q (execution %s)",
		err.Fleet, err.Stream, err.ExecutionId)
}

// IsRetryable returns true for errors that may resolve on a retry of the
// failed step: timeouts and resource failures are often transient (throttled
// control planes, slow convergence), whereas invalid input, failed prechecks,
// and conflicts will fail identically on every attempt.
func IsRetryable(err error) bool {
	var pollTimeout *ErrPollTimeout
	if errors.As(err, &pollTimeout) {
		return true
	}
	var stabilizationTimeout *ErrStabilizationTimeout
	if errors.As(err, &stabilizationTimeout) {
		return true
	}
	var resourceFailed *ErrResourceFailed
	if errors.As(err, &resourceFailed) {
		return true
	}
	return false
}
