package errors

import "fmt"

// Type classifies errors by the layer they originated in
type Type string

const (
	// TypeTransport covers timeouts, connection failures and non-2xx responses
	TypeTransport Type = "transport"
	// TypeParse covers malformed or unexpected markup
	TypeParse Type = "parse"
	// TypeFilesystem covers directory creation and file write failures
	TypeFilesystem Type = "filesystem"
	TypeUnknown    Type = "unknown"
)

// Error is a typed error carrying the HTTP status code when one applies
type Error struct {
	Type    Type
	Message string
	Code    int
}

func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s error (status %d): %s", e.Type, e.Code, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Type, e.Message)
}

// IsRetryable reports whether an error of this type is worth retrying.
// Parse errors are final: retrying the same markup yields the same result.
// Filesystem errors retry because a failed file write counts as a failed
// download attempt.
func IsRetryable(errorType Type) bool {
	switch errorType {
	case TypeTransport, TypeFilesystem:
		return true
	case TypeParse:
		return false
	default:
		return false
	}
}

// IsRetryableStatusCode reports whether an HTTP status justifies a retry
func IsRetryableStatusCode(statusCode int) bool {
	switch statusCode {
	case 0: // network error, no response
		return true
	case 429:
		return true
	case 401, 403, 404:
		return false
	default:
		return statusCode >= 500
	}
}
