package auth

import (
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// LocalUserMiddleware creates an HTTP middleware that installs a fixed local
// identity without validating anything. The given roles are exposed through
// the realm_access claim so role-gated servers work in local mode.
//
// This is for development and wiring tests only; heavily discouraged outside
// of those.
func LocalUserMiddleware(username string, roles []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			roleValues := make([]any, 0, len(roles))
			for _, role := range roles {
				roleValues = append(roleValues, role)
			}

			claims := jwt.MapClaims{
				"sub":                username,
				"preferred_username": username,
				"iss":                "mcpgate-local",
				"aud":                "mcpgate",
				"exp":                time.Now().Add(24 * time.Hour).Unix(),
				"iat":                time.Now().Unix(),
				"email":              username + "@localhost",
				"name":               "Local User: " + username,
				realmAccessClaim:     map[string]any{"roles": roleValues},
			}

			identity := &Identity{
				Subject:   username,
				Username:  username,
				Name:      "Local User: " + username,
				Email:     username + "@localhost",
				Claims:    claims,
				Token:     "",
				TokenType: "Bearer",
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}
