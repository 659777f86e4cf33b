package domain

import "errors"

var (
	// ErrNotFound indicates resource not found
	ErrNotFound = errors.New("resource not found")
	// ErrInvalidRequest indicates invalid request
	ErrInvalidRequest = errors.New("invalid request")
	// ErrUnauthorized indicates unauthorized access
	ErrUnauthorized = errors.New("unauthorized")
	// ErrBusy indicates a response is still streaming
	ErrBusy = errors.New("a response is already in progress")
	// ErrEmptyInput indicates a blank query
	ErrEmptyInput = errors.New("query cannot be empty")
	// ErrAlreadyActive indicates the selected session is already active
	ErrAlreadyActive = errors.New("session already active")
	// ErrLeaseReleased indicates a stream lease was used after release
	ErrLeaseReleased = errors.New("stream lease already released")
	// ErrTransportUnreachable indicates the backend could not be reached
	ErrTransportUnreachable = errors.New("backend unreachable")
	// ErrBackendRejected indicates a non-success response status
	ErrBackendRejected = errors.New("backend rejected request")
	// ErrStreamTruncated indicates the stream ended without done or error
	ErrStreamTruncated = errors.New("stream ended before completion")
)

// ErrorKind classifies why an assistant message ended in the Errored phase
type ErrorKind string

const (
	ErrorKindTransportUnreachable ErrorKind = "transport_unreachable"
	ErrorKindBackendRejected      ErrorKind = "backend_rejected"
	ErrorKindBackendSignaled      ErrorKind = "backend_signaled"
	ErrorKindStreamTruncated      ErrorKind = "stream_truncated"
	ErrorKindCancelled            ErrorKind = "cancelled"
)
