package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/render"
	"github.com/tendant/simple-device-trust/pkg/client"
	"github.com/tendant/simple-device-trust/pkg/device"
	apperrors "github.com/tendant/simple-device-trust/pkg/errors"
	"github.com/tendant/simple-device-trust/pkg/trust"
)

// DeviceManagementPath is where clients send users of a blocked account
const DeviceManagementPath = "/device-management"

// RequireActiveAccount rejects requests from users whose account is blocked for
// too many devices. It must run after client.AuthUserMiddleware. Requests with
// no authenticated user are passed through unchanged.
func RequireActiveAccount(registry *device.Registry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authUser, ok := client.GetAuthUser(r)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			state, err := registry.TrustState(r.Context(), authUser.UserId)
			if err != nil {
				renderError(w, r, err)
				return
			}
			if state.State() == trust.StateBlocked {
				slog.Info("Rejected request from blocked account", "userID", authUser.UserId)
				render.Status(r, http.StatusForbidden)
				render.JSON(w, r, ErrorResponse{
					Code:     string(apperrors.ErrCodeAccountBlocked),
					Message:  "account is blocked",
					Details:  map[string]interface{}{"reason": state.BlockedReason},
					Redirect: DeviceManagementPath,
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
