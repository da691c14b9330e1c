package mowen

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorKind is the closed classification of publish-API failures.
// Callers branch on the kind, never on raw status codes or messages.
type ErrorKind string

const (
	ErrUnauthorized       ErrorKind = "unauthorized"
	ErrRateLimited        ErrorKind = "rate_limited"
	ErrServiceUnavailable ErrorKind = "service_unavailable"
	ErrContentTooLong     ErrorKind = "content_too_long"
	ErrTimeout            ErrorKind = "timeout"
	ErrUnknown            ErrorKind = "unknown"
)

// APIError is a classified publish-API failure. Some error responses
// still carry the ID of a note that was in fact created; NoteID holds
// it so callers can salvage the note instead of retrying into a
// duplicate.
type APIError struct {
	Kind    ErrorKind
	Status  int    // HTTP status, 0 for transport failures
	Code    int    // envelope code, 0 when absent
	Message string
	NoteID  string // salvaged from the error payload, may be empty
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("mowen: %s (http %d, code %d): %s", e.Kind, e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("mowen: %s (http %d, code %d)", e.Kind, e.Status, e.Code)
}

// Kind extracts the classification from any error returned by this
// package. Context deadline errors map to ErrTimeout.
func Kind(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	return ErrUnknown
}

// SalvagedNoteID returns the note ID carried by an error response, if
// any.
func SalvagedNoteID(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.NoteID
	}
	return ""
}

// classify maps transport status and envelope code/message onto the
// closed kind set. The envelope code wins when the HTTP layer reported
// success, which the API does even for most failures.
func classify(status, code int, message string) ErrorKind {
	if tooLongMessage(message) || status == 413 {
		return ErrContentTooLong
	}
	switch {
	case status == 401 || status == 403 || code == 401 || code == 403:
		return ErrUnauthorized
	case status == 429 || code == 429:
		return ErrRateLimited
	case status == 408 || status == 504:
		return ErrTimeout
	case status >= 500, code >= 500 && code < 600:
		return ErrServiceUnavailable
	default:
		return ErrUnknown
	}
}

// tooLongMessage recognizes the server's length-limit rejection, which
// arrives with a generic code but a stable message vocabulary.
func tooLongMessage(message string) bool {
	m := strings.ToLower(message)
	for _, needle := range []string{"too long", "too large", "exceed", "内容过长", "超出", "字数"} {
		if strings.Contains(m, needle) {
			return true
		}
	}
	return false
}
