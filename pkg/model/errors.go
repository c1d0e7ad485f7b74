package model

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedContinuation is returned when a pagination cursor cannot be
	// decoded. It is a caller error and is never retried.
	ErrMalformedContinuation = errors.New("malformed continuation")

	// ErrStoreUnavailable is returned after retries against the document store
	// are exhausted. It is terminal for the calling request.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrIndexNotFound is returned when an operation targets a logical index
	// whose alias does not resolve.
	ErrIndexNotFound = errors.New("index not found")
)

// StoreError carries the document store's own error metadata. Any store error
// that is not classified transient is fatal and propagates with full context.
type StoreError struct {
	Op         string // the store operation that failed
	StatusCode int    // HTTP status from the store, 0 for connectivity faults
	Type       string // store error type, e.g. "version_conflict_engine_exception"
	Reason     string
	Aborted    bool // the store aborted the operation mid-flight
}

func (e *StoreError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("store %s: connection fault: %s", e.Op, e.Reason)
	}
	return fmt.Sprintf("store %s: [%d] %s: %s", e.Op, e.StatusCode, e.Type, e.Reason)
}

// Transient reports whether the failure is expected to clear on an immediate
// retry: the store aborted the operation, or signaled a node-connectivity
// fault. Everything else, malformed queries included, is fatal.
func (e *StoreError) Transient() bool {
	if e.Aborted || e.StatusCode == 0 {
		return true
	}
	switch e.Type {
	case "node_disconnected_exception",
		"node_not_connected_exception",
		"es_rejected_execution_exception":
		return true
	}
	return false
}

// IsTransient reports whether err wraps a transient StoreError.
func IsTransient(err error) bool {
	var se *StoreError
	if errors.As(err, &se) {
		return se.Transient()
	}
	return false
}

// IsConflict reports whether err is the store's optimistic-concurrency
// version conflict.
func IsConflict(err error) bool {
	var se *StoreError
	if errors.As(err, &se) {
		return se.Type == "version_conflict_engine_exception" || se.StatusCode == 409
	}
	return false
}
