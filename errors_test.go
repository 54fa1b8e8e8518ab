package accounts_test

import (
	"context"
	"errors"
	"testing"

	accounts "github.com/goliatone/go-accounts"
	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
)

func TestErrorTaxonomy(t *testing.T) {
	tests := []struct {
		name     string
		err      *goerrors.Error
		category goerrors.Category
		textCode string
	}{
		{
			name:     "Forbidden",
			err:      accounts.ErrForbidden,
			category: goerrors.CategoryAuthz,
			textCode: accounts.TextCodeForbidden,
		},
		{
			name:     "User not found",
			err:      accounts.ErrUserNotFound,
			category: goerrors.CategoryNotFound,
			textCode: accounts.TextCodeUserNotFound,
		},
		{
			name:     "Group not found",
			err:      accounts.ErrGroupNotFound,
			category: goerrors.CategoryNotFound,
			textCode: accounts.TextCodeGroupNotFound,
		},
		{
			name:     "Email taken",
			err:      accounts.ErrEmailTaken,
			category: goerrors.CategoryConflict,
			textCode: accounts.TextCodeEmailTaken,
		},
		{
			name:     "Invalid credentials",
			err:      accounts.ErrMismatchedHashAndPassword,
			category: goerrors.CategoryAuth,
			textCode: accounts.TextCodeInvalidCreds,
		},
		{
			name:     "Store unavailable",
			err:      accounts.ErrStoreUnavailable,
			category: goerrors.CategoryOperation,
			textCode: accounts.TextCodeStoreUnavailable,
		},
		{
			name:     "Empty password",
			err:      accounts.ErrNoEmptyString,
			category: goerrors.CategoryValidation,
			textCode: accounts.TextCodeEmptyPassword,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.category, tt.err.Category)
			assert.Equal(t, tt.textCode, tt.err.TextCode)
		})
	}
}

func TestInvalidCredentialsMessageIsUserFacing(t *testing.T) {
	assert.Equal(t, "the credentials provided are invalid", accounts.ErrMismatchedHashAndPassword.Message)
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			name:     "Store unavailable is retryable",
			err:      accounts.ErrStoreUnavailable,
			expected: true,
		},
		{
			name:     "Forbidden is fatal",
			err:      accounts.ErrForbidden,
			expected: false,
		},
		{
			name:     "Not found is fatal",
			err:      accounts.ErrUserNotFound,
			expected: false,
		},
		{
			name:     "Plain error",
			err:      errors.New("boom"),
			expected: false,
		},
		{
			name:     "Nil error",
			err:      nil,
			expected: false,
		},
		{
			name:     "Raw context deadline is not yet mapped",
			err:      context.DeadlineExceeded,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, accounts.IsRetryable(tt.err))
		})
	}
}
