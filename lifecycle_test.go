package accounts_test

import (
	"context"
	"errors"
	"testing"
	"time"

	accounts "github.com/goliatone/go-accounts"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var testClock = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestLifecycle(store accounts.FlagStore, sink accounts.ActivitySink) accounts.UserLifecycle {
	return accounts.NewUserLifecycle(store,
		accounts.WithLifecycleClock(func() time.Time { return testClock }),
		accounts.WithLifecycleActivitySink(sink),
	)
}

func adminActor() accounts.ActorRef {
	return accounts.ActorRef{ID: "admin-1", Type: "principal"}
}

func TestLifecycleSuspendIsIdempotent(t *testing.T) {
	store := new(MockUserStore)
	sink := new(MockActivitySink)
	lc := newTestLifecycle(store, sink)

	suspendedAt := testClock.Add(-time.Hour)
	user := &accounts.User{
		ID:          uuid.New(),
		Activated:   true,
		SuspendedAt: &suspendedAt,
	}

	result, err := lc.Apply(context.Background(), adminActor(), user, accounts.FlagSuspended, true)
	require.NoError(t, err)
	assert.Same(t, user, result)

	store.AssertNotCalled(t, "SetFlag", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	assert.Empty(t, sink.Events)
}

func TestLifecycleSuspend(t *testing.T) {
	store := new(MockUserStore)
	sink := new(MockActivitySink)
	lc := newTestLifecycle(store, sink)

	user := &accounts.User{ID: uuid.New(), Activated: true}

	updated := &accounts.User{
		ID:          user.ID,
		Activated:   true,
		SuspendedAt: &testClock,
	}

	store.On("SetFlag", mock.Anything, user.ID, accounts.FlagSuspended, true).Return(updated, nil)
	sink.On("Record", mock.Anything, mock.Anything).Return(nil)

	result, err := lc.Apply(context.Background(), adminActor(), user, accounts.FlagSuspended, true,
		accounts.WithTransitionReason("abuse report"))
	require.NoError(t, err)
	assert.NotNil(t, result.SuspendedAt)

	require.Len(t, sink.Events, 1)
	event := sink.Events[0]
	assert.Equal(t, accounts.ActivityEventUserStatusChanged, event.EventType)
	assert.Equal(t, accounts.UserStatusActive, event.FromStatus)
	assert.Equal(t, accounts.UserStatusSuspended, event.ToStatus)
	assert.Equal(t, "abuse report", event.Metadata["reason"])
	assert.Equal(t, "admin-1", event.Actor.ID)

	store.AssertExpectations(t)
}

func TestLifecycleSuspensionWindow(t *testing.T) {
	store := new(MockUserStore)
	sink := new(MockActivitySink)
	lc := newTestLifecycle(store, sink)

	user := &accounts.User{ID: uuid.New(), Activated: true}

	// store returns nil record so the lifecycle synthesizes the flags
	store.On("SetFlag", mock.Anything, user.ID, accounts.FlagSuspended, true).Return(nil, nil)
	sink.On("Record", mock.Anything, mock.Anything).Return(nil)

	result, err := lc.Apply(context.Background(), adminActor(), user, accounts.FlagSuspended, true,
		accounts.WithSuspensionWindow(time.Hour))
	require.NoError(t, err)

	require.NotNil(t, result.SuspendedUntil)
	assert.Equal(t, testClock.Add(time.Hour), *result.SuspendedUntil)

	assert.Equal(t, accounts.UserStatusSuspended, result.DerivedStatusAt(testClock))
	assert.Equal(t, accounts.UserStatusActive, result.DerivedStatusAt(testClock.Add(2*time.Hour)))
}

func TestLifecycleBanDominatesSuspension(t *testing.T) {
	store := new(MockUserStore)
	sink := new(MockActivitySink)
	lc := newTestLifecycle(store, sink)

	suspendedAt := testClock.Add(-time.Hour)
	user := &accounts.User{
		ID:          uuid.New(),
		Activated:   true,
		SuspendedAt: &suspendedAt,
	}

	updated := &accounts.User{
		ID:          user.ID,
		Activated:   true,
		SuspendedAt: &suspendedAt,
		BannedAt:    &testClock,
	}

	store.On("SetFlag", mock.Anything, user.ID, accounts.FlagBanned, true).Return(updated, nil)
	sink.On("Record", mock.Anything, mock.Anything).Return(nil)

	result, err := lc.Apply(context.Background(), adminActor(), user, accounts.FlagBanned, true)
	require.NoError(t, err)
	assert.True(t, result.IsBanned())

	require.Len(t, sink.Events, 1)
	assert.Equal(t, accounts.UserStatusSuspended, sink.Events[0].FromStatus)
	assert.Equal(t, accounts.UserStatusBanned, sink.Events[0].ToStatus)
}

func TestLifecycleUnban(t *testing.T) {
	store := new(MockUserStore)
	sink := new(MockActivitySink)
	lc := newTestLifecycle(store, sink)

	bannedAt := testClock.Add(-time.Hour)
	user := &accounts.User{ID: uuid.New(), Activated: true, BannedAt: &bannedAt}

	updated := &accounts.User{ID: user.ID, Activated: true}

	store.On("SetFlag", mock.Anything, user.ID, accounts.FlagBanned, false).Return(updated, nil)
	sink.On("Record", mock.Anything, mock.Anything).Return(nil)

	result, err := lc.Apply(context.Background(), adminActor(), user, accounts.FlagBanned, false)
	require.NoError(t, err)
	assert.False(t, result.IsBanned())

	require.Len(t, sink.Events, 1)
	assert.Equal(t, accounts.UserStatusBanned, sink.Events[0].FromStatus)
	assert.Equal(t, accounts.UserStatusActive, sink.Events[0].ToStatus)
}

func TestLifecycleActivate(t *testing.T) {
	store := new(MockUserStore)
	sink := new(MockActivitySink)
	lc := newTestLifecycle(store, sink)

	user := &accounts.User{ID: uuid.New()}
	updated := &accounts.User{ID: user.ID, Activated: true}

	store.On("SetActivated", mock.Anything, user.ID, true).Return(updated, nil)
	sink.On("Record", mock.Anything, mock.Anything).Return(nil)

	result, err := lc.Activate(context.Background(), adminActor(), user)
	require.NoError(t, err)
	assert.True(t, result.Activated)

	require.Len(t, sink.Events, 1)
	assert.Equal(t, accounts.UserStatusPending, sink.Events[0].FromStatus)
	assert.Equal(t, accounts.UserStatusActive, sink.Events[0].ToStatus)
}

func TestLifecycleActivateRejectsBanned(t *testing.T) {
	store := new(MockUserStore)
	sink := new(MockActivitySink)
	lc := newTestLifecycle(store, sink)

	bannedAt := testClock.Add(-time.Hour)
	user := &accounts.User{ID: uuid.New(), BannedAt: &bannedAt}

	_, err := lc.Activate(context.Background(), adminActor(), user)
	require.Error(t, err)

	store.AssertNotCalled(t, "SetActivated", mock.Anything, mock.Anything, mock.Anything)
}

func TestLifecycleActivateIsIdempotent(t *testing.T) {
	store := new(MockUserStore)
	sink := new(MockActivitySink)
	lc := newTestLifecycle(store, sink)

	user := &accounts.User{ID: uuid.New(), Activated: true}

	result, err := lc.Activate(context.Background(), adminActor(), user)
	require.NoError(t, err)
	assert.Same(t, user, result)

	store.AssertNotCalled(t, "SetActivated", mock.Anything, mock.Anything, mock.Anything)
	assert.Empty(t, sink.Events)
}

func TestLifecycleRejectsUnknownFlag(t *testing.T) {
	store := new(MockUserStore)
	lc := newTestLifecycle(store, new(MockActivitySink))

	user := &accounts.User{ID: uuid.New()}

	_, err := lc.Apply(context.Background(), adminActor(), user, accounts.LifecycleFlag("archived"), true)
	assert.Error(t, err)
}

func TestLifecycleBeforeHookFailureStopsPersistence(t *testing.T) {
	store := new(MockUserStore)
	sink := new(MockActivitySink)

	hookErr := errors.New("policy veto")

	lc := accounts.NewUserLifecycle(store,
		accounts.WithLifecycleClock(func() time.Time { return testClock }),
		accounts.WithLifecycleActivitySink(sink),
		accounts.WithLifecycleHookErrorHandler(func(ctx context.Context, phase accounts.TransitionHookPhase, err error, tc accounts.TransitionContext) error {
			return err
		}),
	)

	user := &accounts.User{ID: uuid.New(), Activated: true}

	_, err := lc.Apply(context.Background(), adminActor(), user, accounts.FlagSuspended, true,
		accounts.WithBeforeTransitionHook(func(ctx context.Context, tc accounts.TransitionContext) error {
			return hookErr
		}))

	require.ErrorIs(t, err, hookErr)
	store.AssertNotCalled(t, "SetFlag", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	assert.Empty(t, sink.Events)
}

func TestLifecycleHooksRunAroundTransition(t *testing.T) {
	store := new(MockUserStore)
	sink := new(MockActivitySink)
	lc := newTestLifecycle(store, sink)

	user := &accounts.User{ID: uuid.New(), Activated: true}
	updated := &accounts.User{ID: user.ID, Activated: true, SuspendedAt: &testClock}

	store.On("SetFlag", mock.Anything, user.ID, accounts.FlagSuspended, true).Return(updated, nil)
	sink.On("Record", mock.Anything, mock.Anything).Return(nil)

	calls := []string{}

	_, err := lc.Apply(context.Background(), adminActor(), user, accounts.FlagSuspended, true,
		accounts.WithBeforeTransitionHook(func(ctx context.Context, tc accounts.TransitionContext) error {
			calls = append(calls, "before")
			return nil
		}),
		accounts.WithAfterTransitionHook(func(ctx context.Context, tc accounts.TransitionContext) error {
			calls = append(calls, "after")
			assert.Equal(t, accounts.UserStatusSuspended, tc.To)
			return nil
		}),
	)

	require.NoError(t, err)
	assert.Equal(t, []string{"before", "after"}, calls)
}

func TestLifecycleCurrentStatus(t *testing.T) {
	lc := newTestLifecycle(new(MockUserStore), new(MockActivitySink))

	until := testClock.Add(-time.Minute)
	suspendedAt := testClock.Add(-time.Hour)

	expired := &accounts.User{
		Activated:      true,
		SuspendedAt:    &suspendedAt,
		SuspendedUntil: &until,
	}

	assert.Equal(t, accounts.UserStatusActive, lc.CurrentStatus(expired))
	assert.Equal(t, accounts.UserStatus(""), lc.CurrentStatus(nil))
}
