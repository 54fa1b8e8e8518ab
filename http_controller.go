package accounts

import (
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"github.com/goliatone/go-router/flash"
)

// RegisterAdminRoutes mounts the account administration endpoints.
// Every route runs behind the admin capability guard except the
// password change, which also serves self-service changes.
func RegisterAdminRoutes[T any](app router.Router[T], cfg Config, opts ...UsersControllerOption) {

	controller := NewUsersController(opts...)

	admin := RequireAdmin(cfg, controller.guardErrorHandler())
	authed := RequireCapability(cfg, CapabilityView, controller.guardErrorHandler())

	base := controller.Routes.Users

	app.Get(base, admin(controller.List)).SetName("admin-users.list")
	app.Get(base+"/new", admin(controller.New)).SetName("admin-users.new")
	app.Post(base, admin(controller.Create)).SetName("admin-users.create")

	app.Get(base+"/:id", admin(controller.Show)).SetName("admin-users.show")
	app.Get(base+"/:id/edit", admin(controller.Edit)).SetName("admin-users.edit")
	app.Post(base+"/:id", admin(controller.Update)).SetName("admin-users.update")
	app.Post(base+"/:id/delete", admin(controller.Delete)).SetName("admin-users.delete")

	app.Post(base+"/:id/groups", admin(controller.SetGroups)).SetName("admin-users.groups")

	app.Post(base+"/:id/password", authed(controller.ChangePassword)).SetName("admin-users.password")

	app.Post(base+"/:id/suspend", admin(controller.Suspend)).SetName("admin-users.suspend")
	app.Post(base+"/:id/unsuspend", admin(controller.Unsuspend)).SetName("admin-users.unsuspend")
	app.Post(base+"/:id/ban", admin(controller.Ban)).SetName("admin-users.ban")
	app.Post(base+"/:id/unban", admin(controller.Unban)).SetName("admin-users.unban")
}

type UsersControllerRoutes struct {
	Users string
}

type UsersControllerViews struct {
	Index  string
	Show   string
	New    string
	Edit   string
	Errors string
}

type UsersController struct {
	Debug        bool
	Logger       Logger
	Admin        *Admin
	Routes       *UsersControllerRoutes
	Views        *UsersControllerViews
	ErrorHandler router.ErrorHandler
}

type UsersControllerOption func(*UsersController) *UsersController

func WithControllerAdmin(admin *Admin) UsersControllerOption {
	return func(c *UsersController) *UsersController {
		c.Admin = admin
		return c
	}
}

func WithControllerLogger(logger Logger) UsersControllerOption {
	return func(c *UsersController) *UsersController {
		c.Logger = logger
		return c
	}
}

func WithControllerDebug(debug bool) UsersControllerOption {
	return func(c *UsersController) *UsersController {
		c.Debug = debug
		return c
	}
}

func WithControllerRoutes(routes *UsersControllerRoutes) UsersControllerOption {
	return func(c *UsersController) *UsersController {
		c.Routes = routes
		return c
	}
}

func WithControllerViews(views *UsersControllerViews) UsersControllerOption {
	return func(c *UsersController) *UsersController {
		c.Views = views
		return c
	}
}

func WithControllerErrorHandler(handler router.ErrorHandler) UsersControllerOption {
	return func(c *UsersController) *UsersController {
		c.ErrorHandler = handler
		return c
	}
}

func NewUsersController(opts ...UsersControllerOption) *UsersController {
	c := &UsersController{
		Logger: defLogger{},
		Routes: &UsersControllerRoutes{
			Users: "/admin/users",
		},
		Views: &UsersControllerViews{
			Index:  "admin/users/index",
			Show:   "admin/users/show",
			New:    "admin/users/new",
			Edit:   "admin/users/edit",
			Errors: "errors/500",
		},
	}
	c.ErrorHandler = c.defaultErrHandler

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Admin == nil {
		panic("Missing Admin service in users controller...")
	}

	return c
}

func (a *UsersController) guardErrorHandler() func(router.Context, error) error {
	return func(ctx router.Context, err error) error {
		return a.ErrorHandler(ctx, err)
	}
}

func (a *UsersController) List(ctx router.Context) error {
	page := ctx.QueryInt("page", 1)
	perPage := ctx.QueryInt("per_page", DefaultPageSize)

	result, err := a.Admin.ListUsers(ctx.Context(), page, perPage)
	if err != nil {
		a.Logger.Error("list users error: ", "error", err)
		return a.ErrorHandler(ctx, err)
	}

	if a.Debug {
		fmt.Println("======= ADMIN USERS ======")
		fmt.Println(print.MaybePrettyJSON(result))
		fmt.Println("==========================")
	}

	return ctx.Render(a.Views.Index, router.ViewContext{
		"users":    result.Items,
		"page":     result.Page,
		"per_page": result.PerPage,
	})
}

func (a *UsersController) Show(ctx router.Context) error {
	detail, err := a.Admin.GetUser(ctx.Context(), ctx.Param("id", ""))
	if err != nil {
		a.Logger.Error("show user error: ", "error", err)
		return a.ErrorHandler(ctx, err)
	}

	return ctx.Render(a.Views.Show, router.ViewContext{
		"record": detail,
	})
}

func (a *UsersController) New(ctx router.Context) error {
	return ctx.Render(a.Views.New, router.ViewContext{
		"errors": map[string]string{},
		"record": CreateUserPayload{},
	})
}

// CreateUserPayload is the form payload for a new account
type CreateUserPayload struct {
	FirstName       string   `form:"first_name" json:"first_name"`
	LastName        string   `form:"last_name" json:"last_name"`
	Username        string   `form:"username" json:"username"`
	Email           string   `form:"email" json:"email"`
	Phone           string   `form:"phone_number" json:"phone_number"`
	Password        string   `form:"password" json:"password"`
	ConfirmPassword string   `form:"confirm_password" json:"confirm_password"`
	GroupIDs        []string `form:"group_ids" json:"group_ids"`
	Activate        bool     `form:"activate" json:"activate"`
}

// Validate will validate the payload
func (r CreateUserPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.FirstName, validation.Length(1, 200)),
		validation.Field(&r.LastName, validation.Length(1, 200)),
		validation.Field(&r.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&r.Phone, validation.By(ValidatePhoneNumber("US"))),
		validation.Field(&r.Password, validation.Required, validation.Length(10, 100)),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.Length(10, 100),
			validation.By(ValidateStringEquals(r.Password)),
		),
	)
}

func (a *UsersController) Create(ctx router.Context) error {
	payload := new(CreateUserPayload)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("create user parse payload: ", "error", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error parsing body",
		}).Status(fiber.StatusBadRequest).Render(a.Views.New, router.ViewContext{
			"errors": map[string]string{"form": "Failed to parse form"},
			"record": payload,
		})
	}

	if err := payload.Validate(); err != nil {
		errors := FormatValidationErrorToMap(err)
		a.Logger.Error("create user validate payload: ", "error", err)

		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error validating payload",
		}).Render(a.Views.New, router.ViewContext{
			"record":     payload,
			"validation": errors,
		})
	}

	if a.Debug {
		fmt.Println("======= ADMIN CREATE USER ======")
		fmt.Println(print.MaybePrettyJSON(payload))
		fmt.Println("================================")
	}

	detail, err := a.Admin.CreateUser(ctx.Context(), CreateUserInput{
		FirstName: payload.FirstName,
		LastName:  payload.LastName,
		Username:  payload.Username,
		Email:     payload.Email,
		Phone:     payload.Phone,
		Password:  payload.Password,
		GroupIDs:  payload.GroupIDs,
		Activate:  payload.Activate,
	})

	if err != nil {
		a.Logger.Error("create user error: ", "error", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error creating user",
		}).Status(statusForError(err)).Render(a.Views.New, router.ViewContext{
			"record": payload,
			"errors": []string{err.Error()},
		})
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "User created",
	}).Redirect(a.Routes.Users+"/"+detail.ID, fiber.StatusSeeOther)
}

func (a *UsersController) Edit(ctx router.Context) error {
	detail, err := a.Admin.GetUser(ctx.Context(), ctx.Param("id", ""))
	if err != nil {
		a.Logger.Error("edit user error: ", "error", err)
		return a.ErrorHandler(ctx, err)
	}

	return ctx.Render(a.Views.Edit, router.ViewContext{
		"errors": map[string]string{},
		"record": detail,
	})
}

// UpdateUserPayload is the form payload for a profile update. Empty
// fields are left untouched.
type UpdateUserPayload struct {
	FirstName *string `form:"first_name" json:"first_name"`
	LastName  *string `form:"last_name" json:"last_name"`
	Username  *string `form:"username" json:"username"`
	Email     *string `form:"email" json:"email"`
	Phone     *string `form:"phone_number" json:"phone_number"`
}

// Validate will validate the payload
func (r UpdateUserPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.FirstName, validation.Length(1, 200)),
		validation.Field(&r.LastName, validation.Length(1, 200)),
		validation.Field(&r.Username, validation.Length(1, 100)),
		validation.Field(&r.Email, validation.Length(6, 100), is.Email),
		validation.Field(&r.Phone, validation.By(ValidatePhoneNumber("US"))),
	)
}

func (a *UsersController) Update(ctx router.Context) error {
	payload := new(UpdateUserPayload)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("update user parse payload: ", "error", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error parsing body",
		}).Status(fiber.StatusBadRequest).Render(a.Views.Edit, router.ViewContext{
			"errors": map[string]string{"form": "Failed to parse form"},
			"record": payload,
		})
	}

	if err := payload.Validate(); err != nil {
		errors := FormatValidationErrorToMap(err)
		a.Logger.Error("update user validate payload: ", "error", err)

		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error validating payload",
		}).Render(a.Views.Edit, router.ViewContext{
			"record":     payload,
			"validation": errors,
		})
	}

	token := ctx.Param("id", "")

	detail, err := a.Admin.UpdateUser(ctx.Context(), token, UpdateUserInput{
		FirstName: payload.FirstName,
		LastName:  payload.LastName,
		Username:  payload.Username,
		Email:     payload.Email,
		Phone:     payload.Phone,
	})

	if err != nil {
		a.Logger.Error("update user error: ", "error", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error updating user",
		}).Status(statusForError(err)).Render(a.Views.Edit, router.ViewContext{
			"record": payload,
			"errors": []string{err.Error()},
		})
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "User updated",
	}).Redirect(a.Routes.Users+"/"+detail.ID, fiber.StatusSeeOther)
}

func (a *UsersController) Delete(ctx router.Context) error {
	token := ctx.Param("id", "")

	if err := a.Admin.DeleteUser(ctx.Context(), token); err != nil {
		a.Logger.Error("delete user error: ", "error", err)
		return a.ErrorHandler(ctx, err)
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "User deleted",
	}).Redirect(a.Routes.Users, fiber.StatusSeeOther)
}

// MembershipsPayload replaces the full set of group memberships
type MembershipsPayload struct {
	GroupIDs []string `form:"group_ids" json:"group_ids"`
}

// Validate will validate the payload
func (r MembershipsPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.GroupIDs, validation.Each(is.UUIDv4)),
	)
}

func (a *UsersController) SetGroups(ctx router.Context) error {
	payload := new(MembershipsPayload)
	token := ctx.Param("id", "")

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("set groups parse payload: ", "error", err)
		return a.ErrorHandler(ctx, err)
	}

	groups, err := a.Admin.SetGroupMemberships(ctx.Context(), token, payload.GroupIDs)
	if err != nil {
		a.Logger.Error("set groups error: ", "error", err)
		return a.ErrorHandler(ctx, err)
	}

	if a.Debug {
		fmt.Println("======= ADMIN SET GROUPS ======")
		fmt.Println(print.MaybePrettyJSON(groups))
		fmt.Println("===============================")
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "Group memberships updated",
	}).Redirect(a.Routes.Users+"/"+token, fiber.StatusSeeOther)
}

// ChangePasswordPayload rotates an account credential. OldPassword is
// ignored for admin principals.
type ChangePasswordPayload struct {
	OldPassword     string `form:"old_password" json:"old_password"`
	Password        string `form:"password" json:"password"`
	ConfirmPassword string `form:"confirm_password" json:"confirm_password"`
}

// Validate will validate the payload
func (r ChangePasswordPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Password,
			validation.Required,
			validation.Length(10, 100),
		),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.Length(10, 100),
			validation.By(ValidateStringEquals(r.Password)),
		),
	)
}

func (a *UsersController) ChangePassword(ctx router.Context) error {
	payload := new(ChangePasswordPayload)
	token := ctx.Param("id", "")

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("change password parse payload: ", "error", err)
		return a.ErrorHandler(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		errors := FormatValidationErrorToMap(err)
		a.Logger.Error("change password validate payload: ", "error", err)

		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error validating payload",
		}).Status(fiber.StatusBadRequest).Render(a.Views.Show, router.ViewContext{
			"validation": errors,
		})
	}

	if err := a.Admin.ChangePassword(ctx.Context(), token, payload.OldPassword, payload.Password); err != nil {
		a.Logger.Error("change password error: ", "error", err)
		return a.ErrorHandler(ctx, err)
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "Password changed",
	}).Redirect(a.Routes.Users+"/"+token, fiber.StatusSeeOther)
}

// SuspendPayload optionally bounds the suspension window in days
type SuspendPayload struct {
	Days   int    `form:"days" json:"days"`
	Reason string `form:"reason" json:"reason"`
}

// Validate will validate the payload
func (r SuspendPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Days, validation.Min(0)),
		validation.Field(&r.Reason, validation.Length(0, 500)),
	)
}

func (a *UsersController) Suspend(ctx router.Context) error {
	payload := new(SuspendPayload)
	token := ctx.Param("id", "")

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("suspend parse payload: ", "error", err)
		return a.ErrorHandler(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		a.Logger.Error("suspend validate payload: ", "error", err)
		return a.ErrorHandler(ctx, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid suspension payload").
			WithCode(goerrors.CodeBadRequest))
	}

	opts := []TransitionOption{}
	if payload.Reason != "" {
		opts = append(opts, WithTransitionReason(payload.Reason))
	}
	if payload.Days > 0 {
		opts = append(opts, WithSuspensionWindow(time.Duration(payload.Days)*24*time.Hour))
	}

	return a.applyFlagRoute(ctx, token, func() (*UserSummary, error) {
		return a.Admin.Suspend(ctx.Context(), token, opts...)
	}, "User suspended")
}

func (a *UsersController) Unsuspend(ctx router.Context) error {
	token := ctx.Param("id", "")
	return a.applyFlagRoute(ctx, token, func() (*UserSummary, error) {
		return a.Admin.Unsuspend(ctx.Context(), token)
	}, "Suspension lifted")
}

func (a *UsersController) Ban(ctx router.Context) error {
	token := ctx.Param("id", "")
	return a.applyFlagRoute(ctx, token, func() (*UserSummary, error) {
		return a.Admin.Ban(ctx.Context(), token)
	}, "User banned")
}

func (a *UsersController) Unban(ctx router.Context) error {
	token := ctx.Param("id", "")
	return a.applyFlagRoute(ctx, token, func() (*UserSummary, error) {
		return a.Admin.Unban(ctx.Context(), token)
	}, "Ban lifted")
}

func (a *UsersController) applyFlagRoute(ctx router.Context, token string, apply func() (*UserSummary, error), message string) error {
	summary, err := apply()
	if err != nil {
		a.Logger.Error("lifecycle change error: ", "error", err)
		return a.ErrorHandler(ctx, err)
	}

	if a.Debug {
		fmt.Println("======= ADMIN LIFECYCLE ======")
		fmt.Println(print.MaybePrettyJSON(summary))
		fmt.Println("==============================")
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": message,
	}).Redirect(a.Routes.Users+"/"+token, fiber.StatusSeeOther)
}

func (a *UsersController) defaultErrHandler(c router.Context, err error) error {
	return c.JSON(statusForError(err), map[string]string{
		"error": err.Error(),
	})
}

// statusForError maps the error taxonomy onto HTTP status codes
func statusForError(err error) int {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return fiber.StatusInternalServerError
	}

	switch richErr.Category {
	case goerrors.CategoryAuthz:
		return fiber.StatusForbidden
	case goerrors.CategoryAuth:
		return fiber.StatusUnauthorized
	case goerrors.CategoryNotFound:
		return fiber.StatusNotFound
	case goerrors.CategoryConflict:
		return fiber.StatusConflict
	case goerrors.CategoryValidation, goerrors.CategoryBadInput:
		return fiber.StatusBadRequest
	case goerrors.CategoryOperation:
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}
