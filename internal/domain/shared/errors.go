package shared

import "errors"

// DomainError represents a domain-level error with a stable code
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// Is matches another DomainError by code
func (e *DomainError) Is(target error) bool {
	var other *DomainError
	if !errors.As(target, &other) {
		return false
	}
	return other.Code == e.Code
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// Build error codes. All of them describe malformed or incomplete event data
// and are never retried.
const (
	CodeInvalidEvent          = "INVALID_EVENT"
	CodeInvalidQuantity       = "INVALID_QUANTITY"
	CodeMissingSite           = "MISSING_SITE"
	CodeSiteConflict          = "SITE_CONFLICT"
	CodeMissingAccountMapping = "MISSING_ACCOUNT_MAPPING"
	CodeUnsupportedVersion    = "UNSUPPORTED_VERSION"
)

// Common domain errors
var (
	ErrInvalidEvent          = NewDomainError(CodeInvalidEvent, "Invalid inventory event")
	ErrInvalidQuantity       = NewDomainError(CodeInvalidQuantity, "Invalid quantity")
	ErrMissingSite           = NewDomainError(CodeMissingSite, "Missing inventory site")
	ErrSiteConflict          = NewDomainError(CodeSiteConflict, "Lines disagree on inventory site")
	ErrMissingAccountMapping = NewDomainError(CodeMissingAccountMapping, "Missing account mapping")
	ErrUnsupportedVersion    = NewDomainError(CodeUnsupportedVersion, "Unsupported qbXML version")
)

// IsBuildError reports whether err carries a DomainError
func IsBuildError(err error) bool {
	var de *DomainError
	return errors.As(err, &de)
}
