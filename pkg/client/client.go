package client

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/jwtauth/v5"
	apperrors "github.com/tendant/simple-device-trust/pkg/errors"
)

type ExtraClaims struct {
	Username string   `json:"username,omitempty"`
	Email    string   `json:"email,omitempty"`
	Roles    []string `json:"roles,omitempty"`
}

// AuthUser is the identity established by the upstream identity service.
// Device trust only needs UserId; the rest is carried for logging and roles.
type AuthUser struct {
	UserId      string      `json:"user_id,omitempty"`
	DisplayName string      `json:"display_name,omitempty"`
	ExtraClaims ExtraClaims `json:"extra_claims,omitempty"`
}

func (i AuthUser) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("user", i.UserId),
		slog.Any("roles", i.ExtraClaims.Roles),
	)
}

// contextKey is a value for use with context.WithValue. It's used as
// a pointer so it fits in an interface{} without allocation.
type contextKey struct {
	name string
}

func (k *contextKey) String() string {
	return "device trust context value " + k.name
}

const ACCESS_TOKEN_NAME = "access_token"

var AuthUserKey = &contextKey{"AuthUser"}

func LoadFromMap[T any](m map[string]interface{}, c *T) error {
	data, err := json.Marshal(m)
	if err == nil {
		err = json.Unmarshal(data, c)
	}
	return err
}

// AuthUserMiddleware turns verified JWT claims into an *AuthUser in the request
// context. It must run after Verifier. The user id comes from "user_id", or
// from "sub" when "user_id" is absent.
func AuthUserMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, claims, err := jwtauth.FromContext(r.Context())
		if err != nil || claims == nil {
			slog.Debug("Missing or invalid JWT", "err", err)
			deny(w, r, apperrors.ErrCodeUnauthorized, "missing or invalid token")
			return
		}

		authUser := new(AuthUser)
		if err := LoadFromMap(claims, authUser); err != nil {
			slog.Error("failed to parse token claims", "error", err)
			deny(w, r, apperrors.ErrCodeUnauthorized, "invalid token claims")
			return
		}
		if authUser.UserId == "" {
			if sub, ok := claims["sub"].(string); ok {
				authUser.UserId = sub
			}
		}
		if authUser.UserId == "" {
			deny(w, r, apperrors.ErrCodeUnauthorized, "missing user ID in token")
			return
		}

		slog.Debug("authenticated user", "userId", authUser.UserId, "roles", authUser.ExtraClaims.Roles)

		ctx := context.WithValue(r.Context(), AuthUserKey, authUser)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetAuthUser returns the user stored by AuthUserMiddleware
func GetAuthUser(r *http.Request) (*AuthUser, bool) {
	authUser, ok := r.Context().Value(AuthUserKey).(*AuthUser)
	return authUser, ok && authUser != nil
}

// WithAuthUser stores user in ctx. Used by tests and by callers that
// authenticate requests without a JWT.
func WithAuthUser(ctx context.Context, user *AuthUser) context.Context {
	return context.WithValue(ctx, AuthUserKey, user)
}

func Verifier(ja *jwtauth.JWTAuth) func(http.Handler) http.Handler {
	return jwtauth.Verify(ja, jwtauth.TokenFromHeader, TokenFromCookie)
}

func TokenFromCookie(r *http.Request) string {
	cookie, err := r.Cookie(ACCESS_TOKEN_NAME)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// HasAnyRole checks if the user has any of the given roles
func HasAnyRole(user *AuthUser, roles ...string) bool {
	if user == nil {
		return false
	}
	for _, userRole := range user.ExtraClaims.Roles {
		for _, role := range roles {
			if userRole == role {
				return true
			}
		}
	}
	return false
}
