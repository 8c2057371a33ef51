// Package health wires process liveness checks into an http endpoint.
package health

// Checker reports whether one aspect of the process is healthy.
type Checker interface {
	Check() error
}
