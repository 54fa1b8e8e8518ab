package accounts

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// UserStatus is the derived lifecycle state of an account
type UserStatus = string

const (
	// UserStatusPending is a created account awaiting activation
	UserStatusPending UserStatus = "pending"
	// UserStatusActive is an activated account with no blocking flags
	UserStatusActive UserStatus = "active"
	// UserStatusSuspended is an account under a temporary or indefinite lock
	UserStatusSuspended UserStatus = "suspended"
	// UserStatusBanned is an account under a permanent block
	UserStatusBanned UserStatus = "banned"
)

// User is the account model. Status is not stored: it is derived from
// the activation and suspension/ban flags, ban taking precedence.
type User struct {
	bun.BaseModel  `bun:"table:users,alias:usr"`
	ID             uuid.UUID      `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	FirstName      string         `bun:"first_name" json:"first_name,omitempty"`
	LastName       string         `bun:"last_name" json:"last_name,omitempty"`
	Username       string         `bun:"username,notnull,unique" json:"username,omitempty"`
	Email          string         `bun:"email,notnull,unique" json:"email,omitempty"`
	Phone          string         `bun:"phone_number" json:"phone_number,omitempty"`
	PasswordHash   string         `bun:"password_hash" json:"-"`
	Activated      bool           `bun:"is_activated" json:"is_activated,omitempty"`
	SuspendedAt    *time.Time     `bun:"suspended_at,nullzero" json:"suspended_at,omitempty"`
	SuspendedUntil *time.Time     `bun:"suspended_until,nullzero" json:"suspended_until,omitempty"`
	BannedAt       *time.Time     `bun:"banned_at,nullzero" json:"banned_at,omitempty"`
	Groups         []*Group       `bun:"m2m:group_memberships,join:User=Group" json:"groups,omitempty"`
	Metadata       map[string]any `bun:"metadata" json:"metadata,omitempty"`
	CreatedAt      *time.Time     `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt      *time.Time     `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt      *time.Time     `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// AddMetadata will append information to a metadata attribute
func (u *User) AddMetadata(key string, val any) *User {
	if u.Metadata == nil {
		u.Metadata = make(map[string]any)
	}
	u.Metadata[key] = val
	return u
}

// IsBanned reports whether the permanent block flag is set
func (u *User) IsBanned() bool {
	return u.BannedAt != nil
}

// IsSuspended reports whether the account is currently locked. A
// suspension with an expiry window reads as cleared once the window
// has elapsed; one without an expiry is indefinite.
func (u *User) IsSuspended() bool {
	return u.IsSuspendedAt(time.Now())
}

// IsSuspendedAt is IsSuspended against an explicit clock
func (u *User) IsSuspendedAt(now time.Time) bool {
	if u.SuspendedAt == nil {
		return false
	}
	if u.SuspendedUntil == nil {
		return true
	}
	return now.Before(*u.SuspendedUntil)
}

// DerivedStatus computes the display status. Banned dominates
// suspended, which dominates the activation state.
func (u *User) DerivedStatus() UserStatus {
	return u.DerivedStatusAt(time.Now())
}

// DerivedStatusAt is DerivedStatus against an explicit clock
func (u *User) DerivedStatusAt(now time.Time) UserStatus {
	switch {
	case u.IsBanned():
		return UserStatusBanned
	case u.IsSuspendedAt(now):
		return UserStatusSuspended
	case u.Activated:
		return UserStatusActive
	default:
		return UserStatusPending
	}
}

// Group is a named permission set users can belong to
type Group struct {
	bun.BaseModel `bun:"table:groups,alias:grp"`
	ID            uuid.UUID       `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Name          string          `bun:"name,notnull,unique" json:"name,omitempty"`
	Permissions   map[string]bool `bun:"permissions,type:jsonb" json:"permissions,omitempty"`
	CreatedAt     *time.Time      `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time      `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt     *time.Time      `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// Allows reports whether the group grants the named permission
func (g *Group) Allows(permission string) bool {
	if g == nil || g.Permissions == nil {
		return false
	}
	return g.Permissions[permission]
}

// GroupMembership links a user to a group. Set semantics: the
// composite key makes duplicate memberships impossible.
type GroupMembership struct {
	bun.BaseModel `bun:"table:group_memberships,alias:gm"`
	UserID        uuid.UUID  `bun:"user_id,pk,type:uuid" json:"user_id,omitempty"`
	User          *User      `bun:"rel:belongs-to,join:user_id=id" json:"user,omitempty"`
	GroupID       uuid.UUID  `bun:"group_id,pk,type:uuid" json:"group_id,omitempty"`
	Group         *Group     `bun:"rel:belongs-to,join:group_id=id" json:"group,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}
