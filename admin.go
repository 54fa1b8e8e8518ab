package accounts

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const (
	// DefaultPageSize is used when the caller does not request a page size
	DefaultPageSize = 25
	// MaxPageSize caps the page size regardless of what the caller asks for
	MaxPageSize = 100
)

// DefaultAdminTimeout bounds every store round trip made by the service
var DefaultAdminTimeout = time.Second * 10

// AdminUserStore is the user persistence surface the service consumes
type AdminUserStore interface {
	UserStore
	RegisterTx(ctx context.Context, tx bun.IDB, user *User) (*User, error)
}

// AdminGroupStore is the group persistence surface the service consumes
type AdminGroupStore interface {
	GroupStore
	SetMembershipsTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, groupIDs []uuid.UUID) error
}

// Admin implements account administration. Every operation except a
// self-service password change demands the admin capability on the
// principal carried by the context, checked before any other work.
type Admin struct {
	users     AdminUserStore
	groups    AdminGroupStore
	tx        repository.TransactionManager
	codec     IDCodec
	hasher    PasswordAuthenticator
	sessions  SessionInvalidator
	lifecycle UserLifecycle
	activity  ActivitySink
	logger    Logger
	policy    PasswordPolicy
	timeout   time.Duration
}

// AdminOption customizes service construction
type AdminOption func(*Admin)

// WithAdminUserStore overrides the user store, mostly for tests
func WithAdminUserStore(store AdminUserStore) AdminOption {
	return func(a *Admin) {
		if store != nil {
			a.users = store
		}
	}
}

// WithAdminGroupStore overrides the group store, mostly for tests
func WithAdminGroupStore(store AdminGroupStore) AdminOption {
	return func(a *Admin) {
		if store != nil {
			a.groups = store
		}
	}
}

// WithAdminTransactionManager overrides how transactions are opened
func WithAdminTransactionManager(tx repository.TransactionManager) AdminOption {
	return func(a *Admin) {
		if tx != nil {
			a.tx = tx
		}
	}
}

// WithAdminHasher overrides the password hasher
func WithAdminHasher(hasher PasswordAuthenticator) AdminOption {
	return func(a *Admin) {
		if hasher != nil {
			a.hasher = hasher
		}
	}
}

// WithAdminSessionInvalidator wires the credential layer callback used
// after password changes and deletions
func WithAdminSessionInvalidator(sessions SessionInvalidator) AdminOption {
	return func(a *Admin) {
		a.sessions = normalizeSessionInvalidator(sessions)
	}
}

// WithAdminLifecycle overrides the lifecycle used for flag changes
func WithAdminLifecycle(lifecycle UserLifecycle) AdminOption {
	return func(a *Admin) {
		if lifecycle != nil {
			a.lifecycle = lifecycle
		}
	}
}

// WithAdminActivitySink wires the audit sink
func WithAdminActivitySink(sink ActivitySink) AdminOption {
	return func(a *Admin) {
		a.activity = normalizeActivitySink(sink)
	}
}

// WithAdminLogger overrides the logger
func WithAdminLogger(logger Logger) AdminOption {
	return func(a *Admin) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithAdminPasswordPolicy overrides the password length policy
func WithAdminPasswordPolicy(policy PasswordPolicy) AdminOption {
	return func(a *Admin) {
		a.policy = policy.withDefaults()
	}
}

// WithAdminTimeout bounds each operation; zero disables the bound
func WithAdminTimeout(d time.Duration) AdminOption {
	return func(a *Admin) {
		a.timeout = d
	}
}

// NewAdmin builds the administration service. Pass a nil repo only
// when every store is injected through options.
func NewAdmin(repo RepositoryManager, codec IDCodec, opts ...AdminOption) *Admin {
	a := &Admin{
		codec:    codec,
		hasher:   bcryptHasher{},
		sessions: noopSessionInvalidator{},
		activity: noopActivitySink{},
		logger:   defLogger{},
		policy:   DefaultPasswordPolicy,
		timeout:  DefaultAdminTimeout,
	}

	if repo != nil {
		a.users = repo.Users()
		a.groups = repo.Groups()
		a.tx = repo
	}

	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}

	if a.users == nil {
		panic("Missing user store in accounts admin...")
	}

	if a.codec == nil {
		panic("Missing id codec in accounts admin...")
	}

	if a.lifecycle == nil {
		a.lifecycle = NewUserLifecycle(a.users,
			WithLifecycleActivitySink(a.activity),
			WithLifecycleLogger(a.logger),
		)
	}

	return a
}

// UserSummary is the boundary projection of a user. ID carries the
// obfuscated token, never the internal id.
type UserSummary struct {
	ID        string     `json:"id"`
	FirstName string     `json:"first_name,omitempty"`
	LastName  string     `json:"last_name,omitempty"`
	Username  string     `json:"username"`
	Email     string     `json:"email"`
	Status    UserStatus `json:"status"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

// GroupInfo is the boundary projection of a group
type GroupInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// UserDetail extends the summary with everything a single-user view needs
type UserDetail struct {
	UserSummary
	Phone          string         `json:"phone_number,omitempty"`
	Groups         []GroupInfo    `json:"groups,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	SuspendedAt    *time.Time     `json:"suspended_at,omitempty"`
	SuspendedUntil *time.Time     `json:"suspended_until,omitempty"`
	BannedAt       *time.Time     `json:"banned_at,omitempty"`
	UpdatedAt      *time.Time     `json:"updated_at,omitempty"`
}

// UserPage is one page of user summaries
type UserPage struct {
	Items   []UserSummary `json:"items"`
	Page    int           `json:"page"`
	PerPage int           `json:"per_page"`
}

// CreateUserInput carries the fields for a new account
type CreateUserInput struct {
	FirstName string         `json:"first_name"`
	LastName  string         `json:"last_name"`
	Username  string         `json:"username"`
	Email     string         `json:"email"`
	Phone     string         `json:"phone_number"`
	Password  string         `json:"password"`
	GroupIDs  []string       `json:"group_ids"`
	Activate  bool           `json:"activate"`
	UseHashid bool           `json:"-"`
	Metadata  map[string]any `json:"metadata"`
}

// Validate will run validation rules
func (r CreateUserInput) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.FirstName, validation.Length(1, 200)),
		validation.Field(&r.LastName, validation.Length(1, 200)),
		validation.Field(&r.Username, validation.Length(1, 100)),
		validation.Field(&r.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&r.Phone, validation.By(ValidatePhoneNumber("US"))),
		validation.Field(&r.Password, validation.Required, validation.Length(10, 100)),
	)
}

// UpdateUserInput carries a partial update; nil fields are untouched
type UpdateUserInput struct {
	FirstName *string        `json:"first_name"`
	LastName  *string        `json:"last_name"`
	Username  *string        `json:"username"`
	Email     *string        `json:"email"`
	Phone     *string        `json:"phone_number"`
	Metadata  map[string]any `json:"metadata"`
}

// Validate will run validation rules
func (r UpdateUserInput) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.FirstName, validation.Length(1, 200)),
		validation.Field(&r.LastName, validation.Length(1, 200)),
		validation.Field(&r.Username, validation.Length(1, 100)),
		validation.Field(&r.Email, validation.Length(6, 100), is.Email),
		validation.Field(&r.Phone, validation.By(ValidatePhoneNumber("US"))),
	)
}

func (a *Admin) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, a.timeout)
}

// requireAdmin resolves the acting principal and rejects anything
// short of the admin capability before the operation touches the store.
func (a *Admin) requireAdmin(ctx context.Context) (Principal, error) {
	principal, ok := PrincipalFromContext(ctx)
	if !ok {
		return Principal{}, forbidden("missing principal")
	}

	if !principal.IsAdmin() {
		return principal, forbidden(principal.ID)
	}

	return principal, nil
}

func forbidden(actor string) error {
	clone := ErrForbidden.Clone()
	if clone == nil {
		return ErrForbidden
	}
	clone.Source = ErrForbidden
	return clone.WithMetadata(map[string]any{"actor": actor})
}

// ListUsers returns one ordered page of summaries. Pages start at 1;
// any out-of-range page, zero and below included, yields an empty
// page rather than an error.
func (a *Admin) ListUsers(ctx context.Context, page, perPage int) (*UserPage, error) {
	if _, err := a.requireAdmin(ctx); err != nil {
		return nil, err
	}

	if perPage <= 0 {
		perPage = DefaultPageSize
	}
	if perPage > MaxPageSize {
		perPage = MaxPageSize
	}

	if page < 1 {
		return &UserPage{Items: []UserSummary{}, Page: page, PerPage: perPage}, nil
	}

	ctx, cancel := a.opCtx(ctx)
	defer cancel()

	records, err := a.users.ListPage(ctx, (page-1)*perPage, perPage)
	if err != nil {
		return nil, mapStoreError(err, "list users")
	}

	items := make([]UserSummary, 0, len(records))
	for _, record := range records {
		summary, err := a.summarize(record)
		if err != nil {
			return nil, err
		}
		items = append(items, summary)
	}

	return &UserPage{Items: items, Page: page, PerPage: perPage}, nil
}

// CreateUser provisions a new account inside a single transaction,
// memberships included. The account comes up pending unless the input
// asks for immediate activation.
func (a *Admin) CreateUser(ctx context.Context, input CreateUserInput) (*UserDetail, error) {
	principal, err := a.requireAdmin(ctx)
	if err != nil {
		return nil, err
	}

	if err := input.Validate(); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid user payload").
			WithCode(goerrors.CodeBadRequest)
	}

	groupIDs, err := parseGroupIDs(input.GroupIDs)
	if err != nil {
		return nil, err
	}

	ctx, cancel := a.opCtx(ctx)
	defer cancel()

	if err := a.ensureEmailFree(ctx, input.Email, uuid.Nil); err != nil {
		return nil, err
	}

	if err := a.groups.EnsureExist(ctx, groupIDs); err != nil {
		return nil, mapStoreError(err, "resolve groups")
	}

	hash, err := a.hasher.HashPassword(input.Password)
	if err != nil {
		return nil, err
	}

	user := &User{
		FirstName:    input.FirstName,
		LastName:     input.LastName,
		Username:     input.Username,
		Email:        input.Email,
		Phone:        input.Phone,
		PasswordHash: hash,
		Activated:    input.Activate,
		Metadata:     input.Metadata,
	}

	if input.UseHashid {
		if id, err := NewDeterministicUserID(input.Email); err == nil {
			user.ID = id
		}
	}

	err = a.tx.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		created, err := a.users.RegisterTx(ctx, tx, user)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryConflict, "could not create user").
				WithCode(goerrors.CodeConflict)
		}
		user = created

		if len(groupIDs) > 0 {
			if err := a.groups.SetMembershipsTx(ctx, tx, user.ID, groupIDs); err != nil {
				return err
			}
		}

		return nil
	})

	if err != nil {
		return nil, mapStoreError(err, "create user")
	}

	a.record(ctx, ActivityEvent{
		EventType: ActivityEventUserCreated,
		Actor:     principal.ActorRef(),
		UserID:    user.ID.String(),
		ToStatus:  user.DerivedStatus(),
	})

	return a.detail(ctx, user.ID)
}

// GetUser resolves the external token and returns the full record,
// groups included. Tokens that fail to decode read as not found.
func (a *Admin) GetUser(ctx context.Context, token string) (*UserDetail, error) {
	if _, err := a.requireAdmin(ctx); err != nil {
		return nil, err
	}

	id, err := a.codec.Decode(token)
	if err != nil {
		return nil, err
	}

	ctx, cancel := a.opCtx(ctx)
	defer cancel()

	return a.detailOr(ctx, id, token)
}

// UpdateUser applies a partial update to the profile fields. Changing
// the email to one already held by another account is a conflict.
func (a *Admin) UpdateUser(ctx context.Context, token string, input UpdateUserInput) (*UserDetail, error) {
	principal, err := a.requireAdmin(ctx)
	if err != nil {
		return nil, err
	}

	if err := input.Validate(); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid user payload").
			WithCode(goerrors.CodeBadRequest)
	}

	id, err := a.codec.Decode(token)
	if err != nil {
		return nil, err
	}

	ctx, cancel := a.opCtx(ctx)
	defer cancel()

	user, err := a.users.FindByID(ctx, id)
	if err != nil {
		return nil, a.notFoundOr(err, token, "find user")
	}

	if input.Email != nil && *input.Email != user.Email {
		if err := a.ensureEmailFree(ctx, *input.Email, user.ID); err != nil {
			return nil, err
		}
		user.Email = *input.Email
	}

	if input.FirstName != nil {
		user.FirstName = *input.FirstName
	}
	if input.LastName != nil {
		user.LastName = *input.LastName
	}
	if input.Username != nil {
		user.Username = *input.Username
	}
	if input.Phone != nil {
		user.Phone = *input.Phone
	}
	for k, v := range input.Metadata {
		user.AddMetadata(k, v)
	}

	updated, err := a.users.UpdateFields(ctx, user)
	if err != nil {
		return nil, a.notFoundOr(err, token, "update user")
	}

	a.record(ctx, ActivityEvent{
		EventType: ActivityEventUserUpdated,
		Actor:     principal.ActorRef(),
		UserID:    updated.ID.String(),
	})

	return a.detail(ctx, updated.ID)
}

// DeleteUser removes the account and revokes its live sessions
func (a *Admin) DeleteUser(ctx context.Context, token string) error {
	principal, err := a.requireAdmin(ctx)
	if err != nil {
		return err
	}

	id, err := a.codec.Decode(token)
	if err != nil {
		return err
	}

	ctx, cancel := a.opCtx(ctx)
	defer cancel()

	if err := a.users.Remove(ctx, id); err != nil {
		return a.notFoundOr(err, token, "delete user")
	}

	if err := a.sessions.InvalidateSessions(ctx, id); err != nil {
		a.logger.Warn("session invalidation after delete: %v", err)
	}

	a.record(ctx, ActivityEvent{
		EventType: ActivityEventUserDeleted,
		Actor:     principal.ActorRef(),
		UserID:    id.String(),
	})

	return nil
}

// SetGroupMemberships replaces the user's memberships with exactly the
// given set. Unknown group ids fail the whole operation before any
// membership row changes.
func (a *Admin) SetGroupMemberships(ctx context.Context, token string, rawGroupIDs []string) ([]GroupInfo, error) {
	principal, err := a.requireAdmin(ctx)
	if err != nil {
		return nil, err
	}

	id, err := a.codec.Decode(token)
	if err != nil {
		return nil, err
	}

	groupIDs, err := parseGroupIDs(rawGroupIDs)
	if err != nil {
		return nil, err
	}

	ctx, cancel := a.opCtx(ctx)
	defer cancel()

	if _, err := a.users.FindByID(ctx, id); err != nil {
		return nil, a.notFoundOr(err, token, "find user")
	}

	if err := a.groups.EnsureExist(ctx, groupIDs); err != nil {
		return nil, mapStoreError(err, "resolve groups")
	}

	if err := a.groups.SetMemberships(ctx, id, groupIDs); err != nil {
		return nil, mapStoreError(err, "set memberships")
	}

	a.record(ctx, ActivityEvent{
		EventType: ActivityEventUserMembershipsChanged,
		Actor:     principal.ActorRef(),
		UserID:    id.String(),
		Metadata:  map[string]any{"group_count": len(groupIDs)},
	})

	current, err := a.groups.MembershipsFor(ctx, id)
	if err != nil {
		return nil, mapStoreError(err, "load memberships")
	}

	return groupInfos(current), nil
}

// ChangePassword rotates the account credential. An admin principal
// skips the old-password check; anyone else must be changing their own
// password and present the current one. The stored hash only changes
// after verification succeeds.
func (a *Admin) ChangePassword(ctx context.Context, token, oldPassword, newPassword string) error {
	principal, ok := PrincipalFromContext(ctx)
	if !ok {
		return forbidden("missing principal")
	}

	id, err := a.codec.Decode(token)
	if err != nil {
		return err
	}

	adminOverride := principal.IsAdmin()

	ctx, cancel := a.opCtx(ctx)
	defer cancel()

	if !adminOverride {
		if !principalOwns(principal, token, id) {
			return forbidden(principal.ID)
		}

		if err := a.users.VerifyPassword(ctx, id, oldPassword); err != nil {
			return a.notFoundOr(err, token, "verify password")
		}
	}

	if err := a.checkPasswordPolicy(newPassword); err != nil {
		return err
	}

	hash, err := a.hasher.HashPassword(newPassword)
	if err != nil {
		return err
	}

	if err := a.users.SetPassword(ctx, id, hash); err != nil {
		return a.notFoundOr(err, token, "set password")
	}

	if err := a.sessions.InvalidateSessions(ctx, id); err != nil {
		a.logger.Warn("session invalidation after password change: %v", err)
	}

	a.record(ctx, ActivityEvent{
		EventType: ActivityEventUserPasswordChanged,
		Actor:     principal.ActorRef(),
		UserID:    id.String(),
		Metadata:  map[string]any{"admin_override": adminOverride},
	})

	return nil
}

// Suspend places a temporary or indefinite lock on the account.
// Suspending an already suspended account is a successful no-op.
func (a *Admin) Suspend(ctx context.Context, token string, opts ...TransitionOption) (*UserSummary, error) {
	return a.applyFlag(ctx, token, FlagSuspended, true, opts...)
}

// Unsuspend clears the suspension lock
func (a *Admin) Unsuspend(ctx context.Context, token string, opts ...TransitionOption) (*UserSummary, error) {
	return a.applyFlag(ctx, token, FlagSuspended, false, opts...)
}

// Ban places the permanent block on the account. Ban dominates any
// live suspension in the derived status.
func (a *Admin) Ban(ctx context.Context, token string, opts ...TransitionOption) (*UserSummary, error) {
	return a.applyFlag(ctx, token, FlagBanned, true, opts...)
}

// Unban lifts the permanent block
func (a *Admin) Unban(ctx context.Context, token string, opts ...TransitionOption) (*UserSummary, error) {
	return a.applyFlag(ctx, token, FlagBanned, false, opts...)
}

func (a *Admin) applyFlag(ctx context.Context, token string, flag LifecycleFlag, value bool, opts ...TransitionOption) (*UserSummary, error) {
	principal, err := a.requireAdmin(ctx)
	if err != nil {
		return nil, err
	}

	id, err := a.codec.Decode(token)
	if err != nil {
		return nil, err
	}

	ctx, cancel := a.opCtx(ctx)
	defer cancel()

	user, err := a.users.FindByID(ctx, id)
	if err != nil {
		return nil, a.notFoundOr(err, token, "find user")
	}

	updated, err := a.lifecycle.Apply(ctx, principal.ActorRef(), user, flag, value, opts...)
	if err != nil {
		return nil, a.notFoundOr(err, token, "apply lifecycle flag")
	}

	summary, err := a.summarize(updated)
	if err != nil {
		return nil, err
	}

	return &summary, nil
}

func (a *Admin) checkPasswordPolicy(password string) error {
	policy := a.policy.withDefaults()

	if password == "" {
		return ErrNoEmptyString
	}

	if len(password) < policy.MinLength || len(password) > policy.MaxLength {
		return goerrors.New("password length out of bounds", goerrors.CategoryValidation).
			WithCode(goerrors.CodeBadRequest).
			WithMetadata(map[string]any{
				"min_length": policy.MinLength,
				"max_length": policy.MaxLength,
			})
	}

	return nil
}

// ensureEmailFree fails with a conflict when another account already
// holds the address. ignore skips the account being updated.
func (a *Admin) ensureEmailFree(ctx context.Context, email string, ignore uuid.UUID) error {
	existing, err := a.users.FindByEmail(ctx, email)
	if err != nil {
		if repository.IsRecordNotFound(err) || goerrors.IsNotFound(err) {
			return nil
		}
		return mapStoreError(err, "check email")
	}

	if existing != nil && existing.ID != ignore {
		clone := ErrEmailTaken.Clone()
		if clone == nil {
			return ErrEmailTaken
		}
		clone.Source = ErrEmailTaken
		return clone.WithMetadata(map[string]any{"email": email})
	}

	return nil
}

// notFoundOr rewrites store not-found failures into the boundary
// not-found error carrying the external token, never the internal id
func (a *Admin) notFoundOr(err error, token, op string) error {
	if err == nil {
		return nil
	}

	if repository.IsRecordNotFound(err) || goerrors.IsNotFound(err) {
		return userNotFound(token)
	}

	return mapStoreError(err, op)
}

func (a *Admin) record(ctx context.Context, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}

	if err := a.activity.Record(ctx, event); err != nil {
		a.logger.Warn("activity sink error: %v", err)
	}
}

func (a *Admin) summarize(user *User) (UserSummary, error) {
	token, err := a.codec.Encode(user.ID)
	if err != nil {
		return UserSummary{}, err
	}

	return UserSummary{
		ID:        token,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Username:  user.Username,
		Email:     user.Email,
		Status:    a.lifecycle.CurrentStatus(user),
		CreatedAt: user.CreatedAt,
	}, nil
}

func (a *Admin) detail(ctx context.Context, id uuid.UUID) (*UserDetail, error) {
	user, err := a.users.FindWithGroups(ctx, id)
	if err != nil {
		return nil, mapStoreError(err, "load user")
	}

	summary, err := a.summarize(user)
	if err != nil {
		return nil, err
	}

	return &UserDetail{
		UserSummary:    summary,
		Phone:          user.Phone,
		Groups:         groupInfos(user.Groups),
		Metadata:       user.Metadata,
		SuspendedAt:    user.SuspendedAt,
		SuspendedUntil: user.SuspendedUntil,
		BannedAt:       user.BannedAt,
		UpdatedAt:      user.UpdatedAt,
	}, nil
}

func (a *Admin) detailOr(ctx context.Context, id uuid.UUID, token string) (*UserDetail, error) {
	detail, err := a.detail(ctx, id)
	if err != nil {
		return nil, a.notFoundOr(err, token, "load user")
	}
	return detail, nil
}

// principalOwns reports whether the principal refers to the same
// account as the decoded token, matching either representation
func principalOwns(principal Principal, token string, id uuid.UUID) bool {
	return principal.ID == token || principal.ID == id.String()
}

func parseGroupIDs(raw []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(raw))
	for _, value := range raw {
		id, err := uuid.Parse(value)
		if err != nil {
			return nil, goerrors.New("invalid group id", goerrors.CategoryValidation).
				WithCode(goerrors.CodeBadRequest).
				WithMetadata(map[string]any{"group_id": value})
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func groupInfos(records []*Group) []GroupInfo {
	if len(records) == 0 {
		return nil
	}

	infos := make([]GroupInfo, 0, len(records))
	for _, record := range records {
		infos = append(infos, GroupInfo{
			ID:   record.ID.String(),
			Name: record.Name,
		})
	}
	return infos
}
