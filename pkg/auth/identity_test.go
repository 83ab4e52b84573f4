package auth

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClaimsToIdentity(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		claims  jwt.MapClaims
		want    *Identity
		wantErr bool
	}{
		{
			name: "full claims",
			claims: jwt.MapClaims{
				"sub":                "user-1",
				"preferred_username": "alice",
				"name":               "Alice Example",
				"email":              "alice@example.com",
			},
			want: &Identity{
				Subject:  "user-1",
				Username: "alice",
				Name:     "Alice Example",
				Email:    "alice@example.com",
			},
		},
		{
			name:   "username falls back to subject",
			claims: jwt.MapClaims{"sub": "user-2"},
			want:   &Identity{Subject: "user-2", Username: "user-2"},
		},
		{
			name:    "missing sub",
			claims:  jwt.MapClaims{"preferred_username": "alice"},
			wantErr: true,
		},
		{
			name:    "empty sub",
			claims:  jwt.MapClaims{"sub": ""},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			identity, err := claimsToIdentity(tt.claims, "raw-token")
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want.Subject, identity.Subject)
			assert.Equal(t, tt.want.Username, identity.Username)
			assert.Equal(t, tt.want.Name, identity.Name)
			assert.Equal(t, tt.want.Email, identity.Email)
			assert.Equal(t, "raw-token", identity.Token)
			assert.Equal(t, "Bearer", identity.TokenType)
		})
	}
}

func TestIdentity_Redaction(t *testing.T) {
	t.Parallel()

	identity := &Identity{
		Subject:  "user-1",
		Username: "alice",
		Token:    "super-secret-token",
	}

	assert.NotContains(t, identity.String(), "super-secret-token")

	data, err := json.Marshal(identity)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "super-secret-token")
	assert.Contains(t, string(data), "REDACTED")

	var nilIdentity *Identity
	assert.Equal(t, "<nil>", nilIdentity.String())
	data, err = json.Marshal(nilIdentity)
	require.NoError(t, err)
	assert.Equal(t, "null", string(data))
}

func TestIdentityContext(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	_, ok := IdentityFromContext(ctx)
	assert.False(t, ok)

	identity := &Identity{Subject: "user-1"}
	ctx = WithIdentity(ctx, identity)

	got, ok := IdentityFromContext(ctx)
	require.True(t, ok)
	assert.Same(t, identity, got)

	// nil identity leaves the context unchanged
	ctx2 := WithIdentity(context.Background(), nil)
	_, ok = IdentityFromContext(ctx2)
	assert.False(t, ok)
}
