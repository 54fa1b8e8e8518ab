package accounts

import (
	"context"

	"github.com/google/uuid"
)

// SessionInvalidator revokes every live session for a user after a
// credential change. The credential layer owns session storage, the
// service only signals it.
type SessionInvalidator interface {
	InvalidateSessions(ctx context.Context, userID uuid.UUID) error
}

// SessionInvalidatorFunc adapts a function to the SessionInvalidator interface.
type SessionInvalidatorFunc func(ctx context.Context, userID uuid.UUID) error

// InvalidateSessions implements SessionInvalidator.
func (f SessionInvalidatorFunc) InvalidateSessions(ctx context.Context, userID uuid.UUID) error {
	if f == nil {
		return nil
	}
	return f(ctx, userID)
}

type noopSessionInvalidator struct{}

func (noopSessionInvalidator) InvalidateSessions(context.Context, uuid.UUID) error {
	return nil
}

func normalizeSessionInvalidator(s SessionInvalidator) SessionInvalidator {
	if s == nil {
		return noopSessionInvalidator{}
	}
	return s
}
