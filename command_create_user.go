package accounts

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

// CreateUserMessage provisions an account through the command bus
// instead of the Admin service. Same transactional semantics: the user
// row and its memberships land together or not at all.
type CreateUserMessage struct {
	FirstName string      `json:"first_name"`
	LastName  string      `json:"last_name"`
	Username  string      `json:"username"`
	Email     string      `json:"email"`
	Phone     string      `json:"phone"`
	Password  string      `json:"password"`
	GroupIDs  []string    `json:"group_ids"`
	Activate  bool        `json:"activate"`
	UseHashid bool        `json:"-"`
	OnCreated func(*User) `json:"-"`
}

func (e CreateUserMessage) Type() string { return "user.admin.create" }

type CreateUserHandler struct {
	repo RepositoryManager
}

func NewCreateUserHandler(repo RepositoryManager) *CreateUserHandler {
	return &CreateUserHandler{repo: repo}
}

func (h *CreateUserHandler) Execute(ctx context.Context, event CreateUserMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during user creation",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *CreateUserHandler) execute(ctx context.Context, event CreateUserMessage) error {
	user := &User{}
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	groupIDs, err := parseGroupIDs(event.GroupIDs)
	if err != nil {
		return err
	}

	// Resolve groups on the pool before the write transaction opens;
	// a read inside the tx closure would run on a second connection.
	if len(groupIDs) > 0 {
		if err := h.repo.Groups().EnsureExist(ctx, groupIDs); err != nil {
			return mapStoreError(err, "resolve groups")
		}
	}

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		hash, err := HashPassword(event.Password)
		if err != nil {
			var richErr *goerrors.Error
			if goerrors.As(err, &richErr) {
				return goerrors.Wrap(richErr, goerrors.CategoryValidation, "invalid password provided")
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
		}

		user.PasswordHash = hash
		user.Email = event.Email
		user.Phone = event.Phone
		user.FirstName = event.FirstName
		user.LastName = event.LastName
		user.Username = getUsername(event.Username, event.Email)
		user.Activated = event.Activate
		if event.UseHashid {
			if id, err := NewDeterministicUserID(event.Email); err == nil {
				user.ID = id
			}
		}

		if user, err = h.repo.Users().RegisterTx(ctx, tx, user); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryConflict, "could not create user")
		}

		if len(groupIDs) > 0 {
			if err := h.repo.Groups().SetMembershipsTx(ctx, tx, user.ID, groupIDs); err != nil {
				return err
			}
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}

		return goerrors.Wrap(err, goerrors.CategoryInternal, "user creation transaction failed")
	}

	if event.OnCreated != nil {
		event.OnCreated(user)
	}

	return nil
}
