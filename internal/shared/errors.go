package shared

import "errors"

var (
	// ErrNotFound indicates the referenced invitation, role, permission, location or user is absent.
	ErrNotFound = errors.New("not found")
	// ErrPermissionDenied indicates the actor lacks the required capability.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrExpired indicates an invitation whose expires_at has passed.
	ErrExpired = errors.New("invitation expired")
	// ErrAlreadyAccepted indicates a transition attempted on an accepted invitation.
	ErrAlreadyAccepted = errors.New("invitation already accepted")
	// ErrAlreadyRevoked indicates a transition attempted on a revoked invitation.
	ErrAlreadyRevoked = errors.New("invitation already revoked")
	// ErrInvalidInvitation wraps every reason an invitation cannot be redeemed.
	ErrInvalidInvitation = errors.New("invalid invitation")
	// ErrValidation indicates malformed input.
	ErrValidation = errors.New("validation failed")
	// ErrConflict indicates a uniqueness violation.
	ErrConflict = errors.New("conflict")
	// ErrPersistence indicates a storage-layer failure rather than a business rule.
	ErrPersistence = errors.New("persistence failure")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUnauthenticated indicates a missing or invalid bearer credential.
	ErrUnauthenticated = errors.New("authentication required")
)

var domainErrors = []error{
	ErrNotFound,
	ErrPermissionDenied,
	ErrExpired,
	ErrAlreadyAccepted,
	ErrAlreadyRevoked,
	ErrInvalidInvitation,
	ErrValidation,
	ErrConflict,
	ErrInvalidCredentials,
	ErrUnauthenticated,
}

// IsDomainError reports whether err carries a business-rule sentinel.
func IsDomainError(err error) bool {
	for _, target := range domainErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// DetailError attaches a user-facing message to a sentinel.
type DetailError struct {
	Kind    error
	Message string
}

func (e *DetailError) Error() string { return e.Message }

func (e *DetailError) Unwrap() error { return e.Kind }

// Detail builds a DetailError for kind.
func Detail(kind error, message string) error {
	return &DetailError{Kind: kind, Message: message}
}

const genericFailure = "Something went wrong, please try again later"

// UserSafeMessage returns text suitable for display. Storage failures are masked and
// wrapping prefixes are dropped.
func UserSafeMessage(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, ErrPersistence) {
		return genericFailure
	}
	var detail *DetailError
	if errors.As(err, &detail) {
		return detail.Message
	}
	for _, target := range domainErrors {
		if errors.Is(err, target) {
			return target.Error()
		}
	}
	return genericFailure
}
