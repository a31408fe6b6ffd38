// Package errors defines the error taxonomy for the certswap library.
package errors

import "fmt"

// DomainError represents errors in the credential domain logic.
type DomainError struct {
	Code    string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is reports whether target is a DomainError carrying the same code, so that
// errors.Is matches wrapped instances against the sentinel values below.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Common domain errors. All are fatal at construction/resolution time; see the
// reload package for the retention semantics at reload time.
var (
	ErrBundleNotFound = &DomainError{
		Code:    "BUNDLE_NOT_FOUND",
		Message: "named ssl bundle is not known to the material source",
	}

	ErrNoIdentityMaterial = &DomainError{
		Code:    "NO_IDENTITY_MATERIAL",
		Message: "ssl bundle contains no usable identity material",
	}

	ErrNoTrustMaterial = &DomainError{
		Code:    "NO_TRUST_MATERIAL",
		Message: "ssl bundle contains no usable trust material",
	}
)

// NewDomainError wraps a cause with the code and message of a base error.
func NewDomainError(base *DomainError, err error) error {
	return &DomainError{
		Code:    base.Code,
		Message: base.Message,
		Err:     err,
	}
}

// ChainValidationError reports a peer certificate chain rejected by the current
// trust material. It is an ordinary per-handshake error, never fatal to the server.
type ChainValidationError struct {
	Reason string
	Err    error
}

func (e *ChainValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("peer chain rejected: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("peer chain rejected: %s", e.Reason)
}

func (e *ChainValidationError) Unwrap() error {
	return e.Err
}

// ValidationError represents input validation errors.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field '%s': %s (value: %v)", e.Field, e.Message, e.Value)
}
