package echoapi

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/portal/core"
	"github.com/trezcool/portal/core/auth"
	"github.com/trezcool/portal/core/user"
)

type authApi struct {
	usrSvc    *user.Service
	issuer    *auth.TokenIssuer
	blacklist *auth.Blacklist
	validate  *validator.Validate
}

func registerAuthAPI(g *echo.Group, authed echo.MiddlewareFunc, deps ServerDeps) {
	api := authApi{
		usrSvc:    deps.UserSvc,
		issuer:    deps.Issuer,
		blacklist: deps.Blacklist,
		validate:  deps.Validate,
	}

	ag := g.Group("/auth")

	// un-authed endpoints
	ag.POST("/login", api.login)

	// authed endpoints
	ag.POST("/logout", api.logout, authed)
	ag.POST("/token-refresh", api.refreshToken, authed)
	ag.GET("/me", api.me, authed)
	ag.POST("/revoke", api.revoke, authed, adminMiddleware())
}

func (api *authApi) login(ctx echo.Context) error {
	var data LoginRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LoginRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	reqCtx := ctx.Request().Context()
	usr, err := api.usrSvc.Authenticate(reqCtx, user.LoginCredentials{Username: data.Username, Password: data.Password})
	if err != nil {
		return errors.Wrap(err, "authenticating")
	}
	usr = api.usrSvc.SetLastLogin(reqCtx, usr)

	token, err := api.issuer.Issue(api.issuer.ClaimsFor(usr))
	if err != nil {
		return errors.Wrap(err, "generating token")
	}
	return ctx.JSON(http.StatusOK, LoginResponse{Token: token})
}

// logout revokes the caller's token until it expires.
func (api *authApi) logout(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	if err = api.revokeClaims(ctx, claims); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *authApi) refreshToken(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}

	usr, err := api.usrSvc.GetByID(ctx.Request().Context(), claims.Subject)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return errUnauthorized
		}
		return errors.Wrap(err, "finding user by ID")
	}
	if !usr.IsActive {
		return errAccountDeactivated
	}

	newClaims, err := api.issuer.Refresh(claims, usr)
	if err != nil {
		return errors.Wrap(err, "refreshing claims")
	}
	token, err := api.issuer.Issue(newClaims)
	if err != nil {
		return errors.Wrap(err, "generating token")
	}

	// the old token must not outlive its replacement
	if err = api.revokeClaims(ctx, claims); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, LoginResponse{Token: token})
}

func (api *authApi) me(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, claims)
}

func (api *authApi) revoke(ctx echo.Context) error {
	var data RevokeRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to RevokeRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	if err := api.blacklist.Add(ctx.Request().Context(), data.JTI, data.ExpiresAt); err != nil {
		return errors.Wrap(err, "revoking token")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "Token has been revoked."})
}

func (api *authApi) revokeClaims(ctx echo.Context, claims auth.Claims) error {
	if claims.ID == "" {
		return nil
	}
	if err := api.blacklist.Add(ctx.Request().Context(), claims.ID, claims.Expiry()); err != nil {
		return errors.Wrap(err, "revoking token")
	}
	return nil
}

type (
	LoginRequest struct {
		Username string `json:"username" validate:"required"`
		Password string `json:"password" validate:"required"`
	}

	LoginResponse struct {
		Token string `json:"token"`
	}

	RevokeRequest struct {
		JTI       string    `json:"jti" validate:"required"`
		ExpiresAt time.Time `json:"expires_at" validate:"required"`
	}

	SuccessResponse struct {
		Success string `json:"success"`
	}
)

func (lr *LoginRequest) Validate(validate *validator.Validate) error {
	lr.Username = core.CleanString(lr.Username, true /* lower */)
	return validate.Struct(lr)
}

func (rr *RevokeRequest) Validate(validate *validator.Validate) error {
	rr.JTI = core.CleanString(rr.JTI)
	return validate.Struct(rr)
}
