package accounts

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
)

// ErrUnableToFindSession is the error when our request has no session token
var ErrUnableToFindSession = errors.New("unable to find session")

// ErrUnableToDecodeSession unable to decode JWT from session cookie
var ErrUnableToDecodeSession = errors.New("unable to decode session")

// ErrUnableToMapClaims unable to get claims from token
var ErrUnableToMapClaims = errors.New("unable to map claims")

// GetRouterPrincipal resolves the acting Principal from the JWT the
// auth middleware stored in the request locals
func GetRouterPrincipal(c router.Context, key string) (*Principal, error) {
	cookie := c.Locals(key)
	if cookie == nil {
		return nil, ErrUnableToFindSession
	}

	token, ok := cookie.(*jwt.Token)
	if token == nil || !ok {
		return nil, ErrUnableToDecodeSession
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if claims == nil || !ok {
		return nil, ErrUnableToMapClaims
	}

	return principalFromClaims(claims)
}

func principalFromClaims(claims jwt.MapClaims) (*Principal, error) {
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, ErrUnableToMapClaims
	}

	role, _ := claims["role"].(string)
	username, _ := claims["username"].(string)

	// Legacy tokens carry role and profile data in a "dat" map
	if dat, ok := claims["dat"].(map[string]any); ok {
		if role == "" {
			role, _ = dat["role"].(string)
		}
		if username == "" {
			username, _ = dat["username"].(string)
		}
	}

	return &Principal{
		ID:           sub,
		Username:     username,
		Capabilities: CapabilitiesFromRole(role),
	}, nil
}

// RequireCapability rejects the request unless the session principal
// holds the named capability. On success the principal travels down
// the chain in the request context.
func RequireCapability(cfg Config, capability Capability, errorHandler func(router.Context, error) error) router.MiddlewareFunc {
	if errorHandler == nil {
		errorHandler = defaultGuardErrHandler
	}

	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			principal, err := GetRouterPrincipal(c, cfg.GetContextKey())
			if err != nil {
				return errorHandler(c, goerrors.Wrap(err, goerrors.CategoryAuth, "invalid session").
					WithCode(goerrors.CodeUnauthorized))
			}

			if !principal.HasCapability(capability) {
				return errorHandler(c, forbidden(principal.ID))
			}

			c.SetContext(WithPrincipal(c.Context(), *principal))

			return next(c)
		}
	}
}

// RequireAdmin is RequireCapability bound to the admin capability
func RequireAdmin(cfg Config, errorHandler func(router.Context, error) error) router.MiddlewareFunc {
	return RequireCapability(cfg, CapabilityAdmin, errorHandler)
}

func defaultGuardErrHandler(c router.Context, err error) error {
	status := router.StatusUnauthorized

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr.Category == goerrors.CategoryAuthz {
		status = router.StatusForbidden
	}

	return c.JSON(status, map[string]string{
		"error": err.Error(),
	})
}
