package services

import (
	"errors"
	"net/http"
	"strings"

	"github.com/isdelr/practice-server/internal/auth"
	"github.com/isdelr/practice-server/internal/query"
	"github.com/isdelr/practice-server/internal/rules"
	"github.com/isdelr/practice-server/internal/store"
)

// ServiceError is an error with an HTTP status that is safe to show to the
// client.
type ServiceError struct {
	Status  int
	Message string
	Err     error
}

func (e *ServiceError) Error() string {
	return e.Message
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func newServiceError(status int, fallback string, message []string) *ServiceError {
	msg := fallback
	if len(message) > 0 && message[0] != "" {
		msg = message[0]
	}
	return &ServiceError{Status: status, Message: msg}
}

// RequestError is a malformed request (400).
func RequestError(message ...string) *ServiceError {
	return newServiceError(http.StatusBadRequest, "Request error", message)
}

// NotFoundError is a missing collection or record (404).
func NotFoundError(message ...string) *ServiceError {
	return newServiceError(http.StatusNotFound, "Resource not found", message)
}

// ConflictError is a duplicate resource (409).
func ConflictError(message ...string) *ServiceError {
	return newServiceError(http.StatusConflict, "Resource conflict", message)
}

// AuthorizationError means the request needs a user (401).
func AuthorizationError(message ...string) *ServiceError {
	return newServiceError(http.StatusUnauthorized, "Unauthorized", message)
}

// CredentialError means the request was denied (403).
func CredentialError(message ...string) *ServiceError {
	return newServiceError(http.StatusForbidden, "Forbidden", message)
}

// AsServiceError extracts a ServiceError from err.
func AsServiceError(err error) (*ServiceError, bool) {
	var se *ServiceError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// FromAuthError maps auth package errors onto service errors. Unknown errors
// are returned unchanged and end up as 500s.
func FromAuthError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, auth.ErrMissingFields):
		return RequestError("Missing fields")
	case errors.Is(err, auth.ErrConflict):
		msg := err.Error()
		if _, detail, ok := strings.Cut(msg, ": "); ok {
			msg = detail
		}
		return ConflictError(msg)
	case errors.Is(err, auth.ErrInvalidCredentials):
		return CredentialError("Login or password don't match")
	case errors.Is(err, auth.ErrInvalidToken):
		return CredentialError("Invalid access token")
	case errors.Is(err, auth.ErrNoSession):
		return CredentialError("User session does not exist")
	default:
		return err
	}
}

// fromRuleError maps access rule denials.
func fromRuleError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, rules.ErrUnauthorized):
		return AuthorizationError()
	case errors.Is(err, rules.ErrForbidden):
		return CredentialError()
	default:
		return err
	}
}

// fromReadError maps failures while reading and shaping records: anything
// that does not exist is a 404, everything else is the client's fault.
func fromReadError(err error) error {
	var qerr *query.Error
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrCollectionNotFound), errors.Is(err, store.ErrEntryNotFound):
		return NotFoundError()
	case errors.As(err, &qerr):
		return RequestError(qerr.Error())
	default:
		return RequestError(err.Error())
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, store.ErrCollectionNotFound) || errors.Is(err, store.ErrEntryNotFound)
}
