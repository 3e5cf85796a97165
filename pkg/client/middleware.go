package client

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/render"
	apperrors "github.com/tendant/simple-device-trust/pkg/errors"
)

type errorBody struct {
	Code    apperrors.ErrorCode `json:"code"`
	Message string              `json:"message"`
}

// deny writes the same {code, message} body the device handlers use
func deny(w http.ResponseWriter, r *http.Request, code apperrors.ErrorCode, message string) {
	render.Status(r, apperrors.MapErrorCodeToHTTPStatus(code))
	render.JSON(w, r, errorBody{Code: code, Message: message})
}

// RequireAuth returns 401 unless AuthUserMiddleware stored a user.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := GetAuthUser(r); !ok {
			slog.Debug("Unauthenticated request to protected resource", "path", r.URL.Path)
			deny(w, r, apperrors.ErrCodeUnauthorized, "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole admits users holding any of roles. It returns 401 without a
// user and 403 when the user lacks every role. Must run after AuthUserMiddleware.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authUser, ok := GetAuthUser(r)
			if !ok {
				slog.Debug("Unauthenticated request to role-protected resource", "requiredRoles", roles)
				deny(w, r, apperrors.ErrCodeUnauthorized, "authentication required")
				return
			}
			if !HasAnyRole(authUser, roles...) {
				slog.Warn("User lacks required role", "userID", authUser.UserId, "requiredRoles", roles)
				deny(w, r, apperrors.ErrCodeForbidden, "insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
