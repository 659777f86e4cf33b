package client

import (
	"fmt"
	"net/http"

	"github.com/liliang-cn/lexrag/internal/domain"
)

// TransportError means the request never produced a response
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, domain.ErrTransportUnreachable, e.Err)
}

func (e *TransportError) Unwrap() []error {
	return []error{domain.ErrTransportUnreachable, e.Err}
}

// StatusError is a non-success response from the backend
type StatusError struct {
	StatusCode int
	// Detail is the server-provided explanation, or the status text
	Detail string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s (%d): %s", domain.ErrBackendRejected, e.StatusCode, e.Detail)
}

func (e *StatusError) Unwrap() []error {
	errs := []error{domain.ErrBackendRejected}
	switch e.StatusCode {
	case http.StatusNotFound:
		errs = append(errs, domain.ErrNotFound)
	case http.StatusUnauthorized, http.StatusForbidden:
		errs = append(errs, domain.ErrUnauthorized)
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		errs = append(errs, domain.ErrInvalidRequest)
	}
	return errs
}
