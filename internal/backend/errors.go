package backend

import (
	"errors"
	"fmt"
)

// Common errors returned by backend operations.
//
// These can be checked with errors.Is() for proper error handling:
//
//	if errors.Is(err, backend.ErrAuth) {
//	    // Credentials are bad; retrying cannot help.
//	}
var (
	// ErrAuth is returned when the backend rejects the configured
	// credential. Fatal until the user reconfigures the connection.
	ErrAuth = errors.New("authentication failed")

	// ErrNotFound is returned when a remote resource (record, gist,
	// or table) does not exist.
	ErrNotFound = errors.New("remote resource not found")

	// ErrNetwork is returned for transport failures and server errors.
	// Transient; eligible for retry with backoff.
	ErrNetwork = errors.New("network failure")

	// ErrUnsupported is returned when the backend variant does not
	// offer the requested operation.
	ErrUnsupported = errors.New("operation not supported by this backend")

	// ErrTableMissing is returned when the Supabase programs table has
	// not been provisioned. Unlike ErrNetwork this is not retryable:
	// the user must run the setup SQL out of band.
	ErrTableMissing = errors.New("programs table does not exist")
)

// Error wraps a backend failure with operation context.
type Error struct {
	Backend Type   // which variant failed
	Op      string // "testConnection", "fetchAll", "create", "update", "delete"
	Err     error  // underlying sentinel error
	Detail  string // server message or setup guidance, if any
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s %s: %v: %s", e.Backend, e.Op, e.Err, e.Detail)
	}
	return fmt.Sprintf("%s %s: %v", e.Backend, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsRetryable returns true if the error is likely to succeed on retry.
// Only transient network failures qualify; auth and missing-resource
// errors need user action first.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrNetwork)
}

// IsFatal returns true if the error cannot be resolved without the user
// reconfiguring the connection.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrAuth)
}

// IsSetupRequired returns true if the error indicates the remote schema
// must be provisioned before the backend is usable.
func IsSetupRequired(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrTableMissing)
}

// SetupInstructions extracts provisioning guidance from an error chain.
// Returns the empty string when the error carries none.
func SetupInstructions(err error) string {
	var be *Error
	if errors.As(err, &be) && IsSetupRequired(be.Err) {
		return be.Detail
	}
	return ""
}
