package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func identityWithRoles(roles ...any) *Identity {
	return &Identity{
		Subject:  "user-1",
		Username: "alice",
		Claims: map[string]any{
			"sub":          "user-1",
			"realm_access": map[string]any{"roles": roles},
		},
	}
}

func TestRealmRoles(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		claims map[string]any
		want   []string
	}{
		{
			name:   "roles present",
			claims: identityWithRoles("crm-user", "viewer").Claims,
			want:   []string{"crm-user", "viewer"},
		},
		{
			name:   "no realm_access claim",
			claims: map[string]any{"sub": "user-1"},
			want:   nil,
		},
		{
			name:   "realm_access not a map",
			claims: map[string]any{"realm_access": "nope"},
			want:   nil,
		},
		{
			name:   "roles not a list",
			claims: map[string]any{"realm_access": map[string]any{"roles": "nope"}},
			want:   nil,
		},
		{
			name:   "non-string entries skipped",
			claims: identityWithRoles("crm-user", 42).Claims,
			want:   []string{"crm-user"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, RealmRoles(tt.claims))
		})
	}
}

func TestHasRole(t *testing.T) {
	t.Parallel()

	assert.True(t, HasRole(identityWithRoles("crm-user"), "crm-user"))
	assert.False(t, HasRole(identityWithRoles("viewer"), "crm-user"))
	assert.False(t, HasRole(&Identity{Subject: "user-1"}, "crm-user"))

	// empty required role always passes
	assert.True(t, HasRole(&Identity{Subject: "user-1"}, ""))
	assert.True(t, HasRole(nil, ""))
	assert.False(t, HasRole(nil, "crm-user"))
}

func TestLocalUserMiddleware(t *testing.T) {
	t.Parallel()

	var gotIdentity *Identity
	handler := LocalUserMiddleware("dev", []string{"crm-user"})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotIdentity, _ = IdentityFromContext(r.Context())
		}))

	req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	require.NotNil(t, gotIdentity)
	assert.Equal(t, "dev", gotIdentity.Username)
	assert.True(t, HasRole(gotIdentity, "crm-user"))
	assert.False(t, HasRole(gotIdentity, "admin"))
}
