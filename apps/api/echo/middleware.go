package echoapi

import (
	"github.com/labstack/echo/v4"

	"github.com/trezcool/portal/core"
	"github.com/trezcool/portal/core/auth"
)

const contextClaimsKey = "claims"

// rateLimitMiddleware throttles every request per (real client ip, request uri).
// The query string is part of the bucket. Store failures reject the request; a closed store also stops the app.
func rateLimitMiddleware(rl *auth.RateLimiter, conf core.RateLimitConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			req := ctx.Request()
			allowed, err := rl.Check(req.Context(), ctx.RealIP(), req.RequestURI, conf.Limit, conf.Window)
			if err != nil {
				if core.IsShutdown(err) {
					return err
				}
				ctx.Logger().Errorf("rate limiter: %v", err)
				return errServiceUnavailable
			}
			if !allowed {
				return errTooManyRequests
			}
			return next(ctx)
		}
	}
}

// authMiddleware rejects the request unless the guard accepts its bearer token.
// Every rejection gets the same answer.
func authMiddleware(guard *auth.Guard) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			res := guard.VerifyAuth(ctx.Request().Context(), ctx.Request().Header.Get(echo.HeaderAuthorization))
			if !res.Accepted() {
				ctx.Logger().Debugf("auth rejected: %s", res.Reason())
				return errUnauthorized
			}
			ctx.Set(contextClaimsKey, *res.Claims())
			return next(ctx)
		}
	}
}

// roleMiddleware lets through callers holding one of roles. Admins always pass.
func roleMiddleware(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return err
			}
			if claims.HasAnyRole(roles...) {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

func adminMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return err
			}
			if claims.IsAdmin {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

func getContextClaims(ctx echo.Context) (auth.Claims, error) {
	if claims, ok := ctx.Get(contextClaimsKey).(auth.Claims); ok {
		return claims, nil
	}
	return auth.Claims{}, errUnauthorized
}
