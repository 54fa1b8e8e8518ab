package accounts

import (
	"context"
	"errors"
	"fmt"

	goerrors "github.com/goliatone/go-errors"
)

const (
	// TextCodeForbidden marks a failed capability check
	TextCodeForbidden = "ADMIN_CAPABILITY_REQUIRED"
	// TextCodeUserNotFound marks a missing or undecodable user identifier
	TextCodeUserNotFound = "USER_NOT_FOUND"
	// TextCodeGroupNotFound marks an unknown group identifier
	TextCodeGroupNotFound = "GROUP_NOT_FOUND"
	// TextCodeEmailTaken marks an email unique-constraint violation
	TextCodeEmailTaken = "EMAIL_TAKEN"
	// TextCodeInvalidCreds marks an old-password mismatch
	TextCodeInvalidCreds = "INVALID_CREDENTIALS"
	// TextCodeStoreUnavailable marks a store timeout or connection failure
	TextCodeStoreUnavailable = "STORE_UNAVAILABLE"
	// TextCodeEmptyPassword marks an empty password input
	TextCodeEmptyPassword = "EMPTY_PASSWORD"
)

// ErrForbidden is returned when the acting principal lacks the admin
// capability. Fatal to the request, no retry.
var ErrForbidden = goerrors.New("admin capability required", goerrors.CategoryAuthz).
	WithTextCode(TextCodeForbidden).
	WithCode(goerrors.CodeForbidden)

// ErrUserNotFound covers missing users and external identifiers that
// fail to decode. Tampered tokens never resolve to a different user.
var ErrUserNotFound = goerrors.New("user not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeUserNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrGroupNotFound is returned when a referenced group does not exist
var ErrGroupNotFound = goerrors.New("group not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeGroupNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrEmailTaken is returned on email unique-constraint violations.
// Recoverable: the caller picks a different address and resubmits.
var ErrEmailTaken = goerrors.New("email address already in use", goerrors.CategoryConflict).
	WithTextCode(TextCodeEmailTaken).
	WithCode(goerrors.CodeConflict)

// ErrMismatchedHashAndPassword is returned when the provided password
// does not verify against the stored hash. Recoverable: the caller
// should re-prompt, and the message is surfaced verbatim.
var ErrMismatchedHashAndPassword = goerrors.New("the credentials provided are invalid", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCreds).
	WithCode(goerrors.CodeUnauthorized)

// ErrStoreUnavailable wraps store timeouts and connection failures.
// Retryable.
var ErrStoreUnavailable = goerrors.New("account store unavailable", goerrors.CategoryOperation).
	WithTextCode(TextCodeStoreUnavailable).
	WithCode(goerrors.CodeInternal)

// ErrNoEmptyString rejects empty passwords before hashing
var ErrNoEmptyString = goerrors.New("password cannot be empty", goerrors.CategoryValidation).
	WithTextCode(TextCodeEmptyPassword).
	WithCode(goerrors.CodeBadRequest)

// IsRetryable reports whether the caller may retry the operation
func IsRetryable(err error) bool {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	return richErr.TextCode == TextCodeStoreUnavailable
}

// userNotFound clones ErrUserNotFound with the offending identifier
// attached so the message can be rendered without a stack trace.
func userNotFound(identifier string) error {
	clone := ErrUserNotFound.Clone()
	if clone == nil {
		return ErrUserNotFound
	}
	clone.Source = ErrUserNotFound
	return clone.WithMetadata(map[string]any{"identifier": identifier})
}

// groupNotFound clones ErrGroupNotFound naming the missing group ids
func groupNotFound(ids ...string) error {
	clone := ErrGroupNotFound.Clone()
	if clone == nil {
		return ErrGroupNotFound
	}
	clone.Message = fmt.Sprintf("unknown group ids: %v", ids)
	clone.Source = ErrGroupNotFound
	return clone.WithMetadata(map[string]any{"group_ids": ids})
}

// mapStoreError normalizes raw store failures into the service error
// taxonomy: deadline and cancellation become a retryable unavailable
// error, everything else keeps its category or gains an internal one.
func mapStoreError(err error, op string) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		clone := ErrStoreUnavailable.Clone()
		if clone == nil {
			return ErrStoreUnavailable
		}
		clone.Source = err
		return clone.WithMetadata(map[string]any{"operation": op})
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr
	}

	return goerrors.Wrap(err, goerrors.CategoryInternal, fmt.Sprintf("%s failed", op))
}
