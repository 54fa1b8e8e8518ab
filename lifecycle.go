package accounts

import (
	"context"
	"fmt"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

const textCodeInvalidTransition = "INVALID_USER_STATE_TRANSITION"

// ErrInvalidTransition is returned when a requested lifecycle change is not allowed.
var ErrInvalidTransition = goerrors.New("invalid user state transition", goerrors.CategoryValidation).
	WithTextCode(textCodeInvalidTransition).
	WithCode(goerrors.CodeBadRequest)

// LifecycleFlag names a blocking flag on a user record.
type LifecycleFlag string

const (
	// FlagSuspended is the reversible, optionally time-bounded lock
	FlagSuspended LifecycleFlag = "suspended"
	// FlagBanned is the permanent block
	FlagBanned LifecycleFlag = "banned"
)

// FlagStore persists lifecycle flag changes. Implemented by the users
// repository.
type FlagStore interface {
	SetFlag(ctx context.Context, id uuid.UUID, flag LifecycleFlag, value bool, opts ...FlagUpdateOption) (*User, error)
	SetActivated(ctx context.Context, id uuid.UUID, value bool) (*User, error)
}

// FlagUpdateOption mutates the pending flag write before persistence.
type FlagUpdateOption func(*flagUpdate)

type flagUpdate struct {
	at    time.Time
	until *time.Time
}

// WithFlagTime overrides the timestamp recorded with the flag.
func WithFlagTime(t time.Time) FlagUpdateOption {
	return func(u *flagUpdate) {
		u.at = t
	}
}

// WithSuspensionExpiry bounds a suspension; nil means indefinite.
func WithSuspensionExpiry(until *time.Time) FlagUpdateOption {
	return func(u *flagUpdate) {
		u.until = until
	}
}

// TransitionMetadata captures extra context for a transition.
type TransitionMetadata struct {
	Reason   string
	Metadata map[string]any
}

// TransitionContext is passed into hooks for additional processing.
type TransitionContext struct {
	Actor ActorRef
	User  *User
	From  UserStatus
	To    UserStatus
	Meta  TransitionMetadata
}

// TransitionHook is executed before or after a transition.
type TransitionHook func(ctx context.Context, tc TransitionContext) error

// TransitionHookPhase identifies whether a hook ran before or after persistence.
type TransitionHookPhase string

const (
	HookPhaseBefore TransitionHookPhase = "before_transition"
	HookPhaseAfter  TransitionHookPhase = "after_transition"
)

// TransitionOption customizes a single lifecycle change.
type TransitionOption func(*transitionOptions)

// HookErrorHandler handles errors surfaced by transition hooks.
type HookErrorHandler func(ctx context.Context, phase TransitionHookPhase, err error, tc TransitionContext) error

// UserLifecycle applies flag changes to users. Setting a flag to the
// value it already holds is a successful no-op.
type UserLifecycle interface {
	Apply(ctx context.Context, actor ActorRef, user *User, flag LifecycleFlag, value bool, opts ...TransitionOption) (*User, error)
	Activate(ctx context.Context, actor ActorRef, user *User, opts ...TransitionOption) (*User, error)
	CurrentStatus(user *User) UserStatus
}

// LifecycleOption customizes lifecycle construction.
type LifecycleOption func(*userLifecycle)

// WithLifecycleClock injects a custom clock (useful for tests).
func WithLifecycleClock(clock func() time.Time) LifecycleOption {
	return func(lc *userLifecycle) {
		if clock != nil {
			lc.now = clock
		}
	}
}

// WithLifecycleActivitySink sets the ActivitySink used to publish lifecycle events.
func WithLifecycleActivitySink(sink ActivitySink) LifecycleOption {
	return func(lc *userLifecycle) {
		lc.activitySink = normalizeActivitySink(sink)
	}
}

// WithLifecycleHookErrorHandler overrides how hook failures are propagated.
// Provide a handler to convert hook errors into domain-specific responses,
// otherwise the default handler panics with guidance for developers.
func WithLifecycleHookErrorHandler(handler HookErrorHandler) LifecycleOption {
	return func(lc *userLifecycle) {
		if handler != nil {
			lc.hookErrorHandler = handler
		}
	}
}

// WithLifecycleLogger overrides the logger used for sink failures.
func WithLifecycleLogger(logger Logger) LifecycleOption {
	return func(lc *userLifecycle) {
		if logger != nil {
			lc.logger = logger
		}
	}
}

// WithTransitionReason sets the human-readable reason for the transition.
func WithTransitionReason(reason string) TransitionOption {
	return func(opts *transitionOptions) {
		opts.metadata.Reason = reason
	}
}

// WithTransitionMetadata merges metadata into the transition context.
func WithTransitionMetadata(metadata map[string]any) TransitionOption {
	return func(opts *transitionOptions) {
		if len(metadata) == 0 {
			return
		}
		if opts.metadata.Metadata == nil {
			opts.metadata.Metadata = make(map[string]any, len(metadata))
		}
		for k, v := range metadata {
			opts.metadata.Metadata[k] = v
		}
	}
}

// WithBeforeTransitionHook adds a hook executed before the flag update.
func WithBeforeTransitionHook(h TransitionHook) TransitionOption {
	return func(opts *transitionOptions) {
		if h != nil {
			opts.beforeHooks = append(opts.beforeHooks, h)
		}
	}
}

// WithAfterTransitionHook adds a hook executed after the flag update succeeds.
func WithAfterTransitionHook(h TransitionHook) TransitionOption {
	return func(opts *transitionOptions) {
		if h != nil {
			opts.afterHooks = append(opts.afterHooks, h)
		}
	}
}

// WithSuspensionTime overrides the timestamp recorded when entering suspension.
func WithSuspensionTime(t time.Time) TransitionOption {
	return func(opts *transitionOptions) {
		opts.suspensionTime = &t
	}
}

// WithSuspensionWindow bounds the suspension to a duration from now.
// Omitting it makes the suspension indefinite.
func WithSuspensionWindow(d time.Duration) TransitionOption {
	return func(opts *transitionOptions) {
		if d > 0 {
			opts.suspensionWindow = &d
		}
	}
}

// NewUserLifecycle returns the default implementation backed by the provided store.
func NewUserLifecycle(store FlagStore, opts ...LifecycleOption) UserLifecycle {
	lc := &userLifecycle{
		store:        store,
		now:          time.Now,
		activitySink: noopActivitySink{},
		logger:       defLogger{},
		hookErrorHandler: func(ctx context.Context, phase TransitionHookPhase, err error, tc TransitionContext) error {
			return defaultHookErrorHandler(ctx, phase, err, tc)
		},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(lc)
		}
	}

	return lc
}

type userLifecycle struct {
	store            FlagStore
	now              func() time.Time
	activitySink     ActivitySink
	logger           Logger
	hookErrorHandler HookErrorHandler
}

type transitionOptions struct {
	metadata         TransitionMetadata
	beforeHooks      []TransitionHook
	afterHooks       []TransitionHook
	suspensionTime   *time.Time
	suspensionWindow *time.Duration
}

func (o *transitionOptions) cloneMetadata() TransitionMetadata {
	var cloned map[string]any
	if len(o.metadata.Metadata) > 0 {
		cloned = make(map[string]any, len(o.metadata.Metadata))
		for k, v := range o.metadata.Metadata {
			cloned[k] = v
		}
	}

	return TransitionMetadata{
		Reason:   o.metadata.Reason,
		Metadata: cloned,
	}
}

func (lc *userLifecycle) Apply(ctx context.Context, actor ActorRef, user *User, flag LifecycleFlag, value bool, opts ...TransitionOption) (*User, error) {
	if user == nil {
		return nil, ErrInvalidTransition.WithMetadata(map[string]any{
			"flag":   flag,
			"reason": "user is nil",
		})
	}

	if flag != FlagSuspended && flag != FlagBanned {
		return nil, ErrInvalidTransition.WithMetadata(map[string]any{
			"flag":   flag,
			"reason": "unknown flag",
		})
	}

	now := lc.now()
	if lc.flagValue(user, flag, now) == value {
		// Idempotent: already in the requested state.
		return user, nil
	}

	options := lc.buildTransitionOptions(opts...)
	from := user.DerivedStatusAt(now)

	ctxData := TransitionContext{
		Actor: actor,
		User:  user,
		From:  from,
		Meta:  options.cloneMetadata(),
	}

	if err := lc.runHooks(ctx, options.beforeHooks, ctxData, HookPhaseBefore); err != nil {
		return nil, err
	}

	updated, err := lc.store.SetFlag(ctx, user.ID, flag, value, lc.buildFlagOptions(now, flag, value, options)...)
	if err != nil {
		return nil, err
	}

	lc.applyUpdates(user, updated, flag, value, now, options)

	ctxData.To = user.DerivedStatusAt(now)

	if err := lc.runHooks(ctx, options.afterHooks, ctxData, HookPhaseAfter); err != nil {
		return nil, err
	}

	lc.recordActivity(ctx, ActivityEvent{
		EventType:  ActivityEventUserStatusChanged,
		Actor:      actor,
		UserID:     user.ID.String(),
		FromStatus: from,
		ToStatus:   ctxData.To,
		Metadata:   lc.transitionMetadata(ctxData.Meta),
	})

	return user, nil
}

func (lc *userLifecycle) Activate(ctx context.Context, actor ActorRef, user *User, opts ...TransitionOption) (*User, error) {
	if user == nil {
		return nil, ErrInvalidTransition.WithMetadata(map[string]any{
			"reason": "user is nil",
		})
	}

	if user.IsBanned() {
		return nil, ErrInvalidTransition.WithMetadata(map[string]any{
			"from": UserStatusBanned,
			"to":   UserStatusActive,
		})
	}

	if user.Activated {
		return user, nil
	}

	now := lc.now()
	options := lc.buildTransitionOptions(opts...)
	from := user.DerivedStatusAt(now)

	ctxData := TransitionContext{
		Actor: actor,
		User:  user,
		From:  from,
		Meta:  options.cloneMetadata(),
	}

	if err := lc.runHooks(ctx, options.beforeHooks, ctxData, HookPhaseBefore); err != nil {
		return nil, err
	}

	updated, err := lc.store.SetActivated(ctx, user.ID, true)
	if err != nil {
		return nil, err
	}

	if updated != nil {
		user.Activated = updated.Activated
	} else {
		user.Activated = true
	}

	ctxData.To = user.DerivedStatusAt(now)

	if err := lc.runHooks(ctx, options.afterHooks, ctxData, HookPhaseAfter); err != nil {
		return nil, err
	}

	lc.recordActivity(ctx, ActivityEvent{
		EventType:  ActivityEventUserStatusChanged,
		Actor:      actor,
		UserID:     user.ID.String(),
		FromStatus: from,
		ToStatus:   ctxData.To,
		Metadata:   lc.transitionMetadata(ctxData.Meta),
	})

	return user, nil
}

func (lc *userLifecycle) CurrentStatus(user *User) UserStatus {
	if user == nil {
		return ""
	}
	return user.DerivedStatusAt(lc.now())
}

func (lc *userLifecycle) flagValue(user *User, flag LifecycleFlag, now time.Time) bool {
	if flag == FlagBanned {
		return user.IsBanned()
	}
	return user.IsSuspendedAt(now)
}

func (lc *userLifecycle) buildFlagOptions(now time.Time, flag LifecycleFlag, value bool, opts *transitionOptions) []FlagUpdateOption {
	flagOpts := []FlagUpdateOption{}

	if flag == FlagSuspended && value {
		at := now
		if opts.suspensionTime != nil {
			at = *opts.suspensionTime
		}
		flagOpts = append(flagOpts, WithFlagTime(at))

		if opts.suspensionWindow != nil {
			until := at.Add(*opts.suspensionWindow)
			flagOpts = append(flagOpts, WithSuspensionExpiry(&until))
		}
		return flagOpts
	}

	if value {
		flagOpts = append(flagOpts, WithFlagTime(now))
	}

	return flagOpts
}

func (lc *userLifecycle) applyUpdates(user, updated *User, flag LifecycleFlag, value bool, now time.Time, opts *transitionOptions) {
	if updated != nil {
		user.SuspendedAt = updated.SuspendedAt
		user.SuspendedUntil = updated.SuspendedUntil
		user.BannedAt = updated.BannedAt
		return
	}

	switch flag {
	case FlagSuspended:
		if value {
			at := now
			if opts.suspensionTime != nil {
				at = *opts.suspensionTime
			}
			user.SuspendedAt = &at
			user.SuspendedUntil = nil
			if opts.suspensionWindow != nil {
				until := at.Add(*opts.suspensionWindow)
				user.SuspendedUntil = &until
			}
		} else {
			user.SuspendedAt = nil
			user.SuspendedUntil = nil
		}
	case FlagBanned:
		if value {
			at := now
			user.BannedAt = &at
		} else {
			user.BannedAt = nil
		}
	}
}

func (lc *userLifecycle) runHooks(ctx context.Context, hooks []TransitionHook, data TransitionContext, phase TransitionHookPhase) error {
	for _, hook := range hooks {
		if hook == nil {
			continue
		}
		if err := hook(ctx, data); err != nil {
			if lc.hookErrorHandler == nil {
				return err
			}
			return lc.hookErrorHandler(ctx, phase, err, data)
		}
	}
	return nil
}

func (lc *userLifecycle) buildTransitionOptions(opts ...TransitionOption) *transitionOptions {
	options := &transitionOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(options)
		}
	}
	return options
}

func defaultHookErrorHandler(_ context.Context, phase TransitionHookPhase, err error, tc TransitionContext) error {
	panic(fmt.Sprintf(
		"go-accounts: %s transition hook failed: %v\nUserID: %s from=%s to=%s reason=%s\nProvide accounts.WithLifecycleHookErrorHandler to customize error handling in production.",
		phase,
		err,
		tc.User.ID,
		tc.From,
		tc.To,
		tc.Meta.Reason,
	))
}

func (lc *userLifecycle) recordActivity(ctx context.Context, event ActivityEvent) {
	if event.Actor == (ActorRef{}) {
		event.Actor = ActorRef{Type: "system"}
	}

	if event.OccurredAt.IsZero() {
		event.OccurredAt = lc.now()
	}

	sink := normalizeActivitySink(lc.activitySink)
	if err := sink.Record(ctx, event); err != nil {
		lc.logger.Warn("lifecycle activity sink error: %v", err)
	}
}

func (lc *userLifecycle) transitionMetadata(meta TransitionMetadata) map[string]any {
	if meta.Reason == "" && len(meta.Metadata) == 0 {
		return nil
	}

	result := map[string]any{}
	if meta.Reason != "" {
		result["reason"] = meta.Reason
	}
	for k, v := range meta.Metadata {
		result[k] = v
	}
	return result
}
