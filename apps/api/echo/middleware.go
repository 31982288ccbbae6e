package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/odinschool/odin/core"
	"github.com/odinschool/odin/core/user"
)

func newAccessAttempt(ctx echo.Context, claims Claims) core.AccessAttempt {
	return core.AccessAttempt{
		UserID:     claims.Subject,
		Email:      claims.Email,
		Role:       claims.Role.String(),
		RemoteAddr: ctx.RealIP(),
		Method:     ctx.Request().Method,
		Path:       ctx.Request().URL.Path,
	}
}

// authMiddleware verifies the JWT of the request.
// Requests it rejects are recorded on the audit stream as anonymous access attempts.
func authMiddleware(conf middleware.JWTConfig, audit core.AuditLogger) echo.MiddlewareFunc {
	jwt := middleware.JWTWithConfig(conf)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		guarded := jwt(next)
		return func(ctx echo.Context) error {
			err := guarded(ctx)
			if err != nil && ctx.Get(conf.ContextKey) == nil {
				audit.AccessDenied(newAccessAttempt(ctx, Claims{}))
				accessDeniedTotal.WithLabelValues(deniedUnauthenticated).Inc()
			}
			return err
		}
	}
}

// requireRoles lets the request through only if the authenticated user has one of roles.
// The role is read from the stored account, so a role change applies to tokens issued before it.
// Any other request is recorded on the audit stream and refused without calling next.
func requireRoles(audit core.AuditLogger, usrSvc *user.Service, roles ...user.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				audit.AccessDenied(newAccessAttempt(ctx, claims))
				accessDeniedTotal.WithLabelValues(deniedUnauthenticated).Inc()
				return err
			}

			usr, err := getContextUser(ctx, usrSvc)
			switch {
			case err == errUnauthorized:
				audit.AccessDenied(newAccessAttempt(ctx, claims))
				accessDeniedTotal.WithLabelValues(deniedUnauthenticated).Inc()
				return err
			case err == errAccountDeactivated:
				audit.AccessDenied(newAccessAttempt(ctx, claims))
				accessDeniedTotal.WithLabelValues(deniedForbidden).Inc()
				return err
			case err != nil:
				return err
			}

			if usr.Role.In(roles...) {
				return next(ctx)
			}

			claims.Role = usr.Role
			audit.AccessDenied(newAccessAttempt(ctx, claims))
			accessDeniedTotal.WithLabelValues(deniedForbidden).Inc()
			return errHttpForbidden
		}
	}
}

func (s *Server) requireRoles(roles ...user.Role) echo.MiddlewareFunc {
	return requireRoles(s.deps.Audit, s.deps.UserSvc, roles...)
}
