package accounts

import (
	"context"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

var SetUserPasswordSQL = `UPDATE "users" AS "usr"
SET
	"password_hash" = ?
WHERE
	"usr"."deleted_at" IS NULL
AND (
	"usr"."id" = ?
) RETURNING *;`

var SetUserSuspensionSQL = `UPDATE "users" AS "usr"
SET
	"suspended_at" = ?,
	"suspended_until" = ?
WHERE
	"usr"."deleted_at" IS NULL
AND (
	"usr"."id" = ?
) RETURNING *;`

var SetUserBanSQL = `UPDATE "users" AS "usr"
SET
	"banned_at" = ?
WHERE
	"usr"."deleted_at" IS NULL
AND (
	"usr"."id" = ?
) RETURNING *;`

var SetUserActivatedSQL = `UPDATE "users" AS "usr"
SET
	"is_activated" = ?
WHERE
	"usr"."deleted_at" IS NULL
AND (
	"usr"."id" = ?
) RETURNING *;`

// UserStore is the collaborator contract the administration service
// consumes. Users extends it with transactional variants.
type UserStore interface {
	FlagStore

	FindByID(ctx context.Context, id uuid.UUID) (*User, error)
	FindWithGroups(ctx context.Context, id uuid.UUID) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	ListPage(ctx context.Context, offset, limit int) ([]*User, error)
	Register(ctx context.Context, user *User) (*User, error)
	UpdateFields(ctx context.Context, record *User) (*User, error)
	Remove(ctx context.Context, id uuid.UUID) error
	SetPassword(ctx context.Context, id uuid.UUID, passwordHash string) error
	VerifyPassword(ctx context.Context, id uuid.UUID, plaintext string) error
}

type Users interface {
	repository.Repository[*User]
	UserStore

	RegisterTx(ctx context.Context, tx bun.IDB, user *User) (*User, error)
	UpdateFieldsTx(ctx context.Context, tx bun.IDB, record *User) (*User, error)
	RemoveTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error
	SetPasswordTx(ctx context.Context, tx bun.IDB, id uuid.UUID, passwordHash string) error
	SetFlagTx(ctx context.Context, tx bun.IDB, id uuid.UUID, flag LifecycleFlag, value bool, opts ...FlagUpdateOption) (*User, error)
	SetActivatedTx(ctx context.Context, tx bun.IDB, id uuid.UUID, value bool) (*User, error)
}

type users struct {
	repository.Repository[*User]
	db     *bun.DB
	hasher PasswordAuthenticator
}

var (
	_ Users                        = (*users)(nil)
	_ UserStore                    = (*users)(nil)
	_ repository.Repository[*User] = (*users)(nil)
)

type UsersOption func(*users)

// WithUsersHasher overrides the password hasher used by VerifyPassword.
func WithUsersHasher(hasher PasswordAuthenticator) UsersOption {
	return func(u *users) {
		if hasher != nil {
			u.hasher = hasher
		}
	}
}

func NewUsersRepository(db *bun.DB, opts ...UsersOption) Users {
	repo := repository.NewRepository[*User](db, repository.ModelHandlers[*User]{
		NewRecord: func() *User { return &User{} },
		GetID: func(u *User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *User, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
	})

	repoUsers := &users{
		Repository: repo,
		db:         db,
		hasher:     bcryptHasher{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(repoUsers)
		}
	}

	return repoUsers
}

func (a *users) Register(ctx context.Context, user *User) (*User, error) {
	return a.RegisterTx(ctx, a.db, user)
}

func (a *users) RegisterTx(ctx context.Context, tx bun.IDB, user *User) (*User, error) {
	prepareUserDefaults(user)
	return a.Repository.CreateTx(ctx, tx, user)
}

func (a *users) FindByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return a.Repository.GetByID(ctx, id.String())
}

func (a *users) FindWithGroups(ctx context.Context, id uuid.UUID) (*User, error) {
	record := &User{}
	err := a.db.NewSelect().
		Model(record).
		Relation("Groups").
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{"id": id.String()})
		}
		return nil, err
	}

	return record, nil
}

func (a *users) FindByEmail(ctx context.Context, email string) (*User, error) {
	record := &User{}
	err := a.db.NewSelect().
		Model(record).
		Where("?TableAlias.email = ?", strings.TrimSpace(strings.ToLower(email))).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{"email": email})
		}
		return nil, err
	}

	return record, nil
}

// ListPage returns one ordered page of users. An out-of-range offset
// yields an empty page, not an error.
func (a *users) ListPage(ctx context.Context, offset, limit int) ([]*User, error) {
	records := []*User{}

	err := a.db.NewSelect().
		Model(&records).
		Order("created_at ASC", "id ASC").
		Offset(offset).
		Limit(limit).
		Scan(ctx)

	if err != nil && !repository.IsRecordNotFound(err) {
		return nil, err
	}

	return records, nil
}

func (a *users) UpdateFields(ctx context.Context, record *User) (*User, error) {
	return a.UpdateFieldsTx(ctx, a.db, record)
}

func (a *users) UpdateFieldsTx(ctx context.Context, tx bun.IDB, record *User) (*User, error) {
	return a.Repository.UpdateTx(ctx, tx, record, repository.UpdateByID(record.ID.String()))
}

func (a *users) Remove(ctx context.Context, id uuid.UUID) error {
	return a.RemoveTx(ctx, a.db, id)
}

func (a *users) RemoveTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	res, err := tx.NewDelete().
		Model((*User)(nil)).
		Where("?TableAlias.id = ?", id).
		Exec(ctx)

	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}

	if affected == 0 {
		return repository.NewRecordNotFound().
			WithMetadata(map[string]any{"id": id.String()})
	}

	return nil
}

func (a *users) SetPassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	return a.SetPasswordTx(ctx, a.db, id, passwordHash)
}

func (a *users) SetPasswordTx(ctx context.Context, tx bun.IDB, id uuid.UUID, passwordHash string) error {
	res, err := a.Repository.RawTx(ctx, tx, SetUserPasswordSQL, passwordHash, id.String())
	if err != nil {
		return err
	}

	if len(res) == 0 {
		return repository.NewRecordNotFound().
			WithMetadata(map[string]any{"id": id.String()})
	}

	return nil
}

// VerifyPassword compares the plaintext against the stored hash.
// Mismatch surfaces as invalid credentials, not a generic failure.
func (a *users) VerifyPassword(ctx context.Context, id uuid.UUID, plaintext string) error {
	user, err := a.FindByID(ctx, id)
	if err != nil {
		return err
	}

	return a.hasher.ComparePasswordAndHash(plaintext, user.PasswordHash)
}

func (a *users) SetFlag(ctx context.Context, id uuid.UUID, flag LifecycleFlag, value bool, opts ...FlagUpdateOption) (*User, error) {
	return a.SetFlagTx(ctx, a.db, id, flag, value, opts...)
}

func (a *users) SetFlagTx(ctx context.Context, tx bun.IDB, id uuid.UUID, flag LifecycleFlag, value bool, opts ...FlagUpdateOption) (*User, error) {
	update := flagUpdate{at: time.Now()}
	for _, opt := range opts {
		if opt != nil {
			opt(&update)
		}
	}

	var res []*User
	var err error

	switch flag {
	case FlagSuspended:
		if value {
			res, err = a.Repository.RawTx(ctx, tx, SetUserSuspensionSQL, update.at, update.until, id.String())
		} else {
			res, err = a.Repository.RawTx(ctx, tx, SetUserSuspensionSQL, nil, nil, id.String())
		}
	case FlagBanned:
		if value {
			res, err = a.Repository.RawTx(ctx, tx, SetUserBanSQL, update.at, id.String())
		} else {
			res, err = a.Repository.RawTx(ctx, tx, SetUserBanSQL, nil, id.String())
		}
	default:
		return nil, ErrInvalidTransition.WithMetadata(map[string]any{"flag": flag})
	}

	if err != nil {
		return nil, err
	}

	if len(res) == 0 {
		return nil, repository.NewRecordNotFound().
			WithMetadata(map[string]any{"id": id.String()})
	}

	return res[0], nil
}

func (a *users) SetActivated(ctx context.Context, id uuid.UUID, value bool) (*User, error) {
	return a.SetActivatedTx(ctx, a.db, id, value)
}

func (a *users) SetActivatedTx(ctx context.Context, tx bun.IDB, id uuid.UUID, value bool) (*User, error) {
	res, err := a.Repository.RawTx(ctx, tx, SetUserActivatedSQL, value, id.String())
	if err != nil {
		return nil, err
	}

	if len(res) == 0 {
		return nil, repository.NewRecordNotFound().
			WithMetadata(map[string]any{"id": id.String()})
	}

	return res[0], nil
}

func prepareUserDefaults(record *User) {
	if record == nil {
		return
	}

	record.Email = strings.TrimSpace(strings.ToLower(record.Email))
	record.Username = getUsername(record.Username, record.Email)

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
}

func getUsername(username, email string) string {
	if username != "" {
		return username
	}

	if strings.Contains(email, "@") {
		username = strings.Split(email, "@")[0]
	}

	return username
}
