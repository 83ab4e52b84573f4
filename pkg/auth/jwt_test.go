package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newJWKSFixture generates an RSA key pair, serves the public key as a JWKS
// over httptest, and returns the signer plus the JWKS URL.
func newJWKSFixture(t *testing.T) (*rsa.PrivateKey, string) {
	t.Helper()

	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	key, err := jwk.FromRaw(&privateKey.PublicKey)
	require.NoError(t, err)
	require.NoError(t, key.Set(jwk.KeyIDKey, "test-key-1"))
	require.NoError(t, key.Set(jwk.AlgorithmKey, "RS256"))
	require.NoError(t, key.Set(jwk.KeyUsageKey, "sig"))

	keySet := jwk.NewSet()
	require.NoError(t, keySet.AddKey(key))

	jwksServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		buf, err := json.Marshal(keySet)
		require.NoError(t, err)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(buf)
	}))
	t.Cleanup(jwksServer.Close)

	return privateKey, jwksServer.URL
}

func signToken(t *testing.T, key *rsa.PrivateKey, claims jwt.MapClaims) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = "test-key-1"
	signed, err := token.SignedString(key)
	require.NoError(t, err)
	return signed
}

func TestJWTValidator_ValidateToken(t *testing.T) {
	t.Parallel()

	privateKey, jwksURL := newJWKSFixture(t)
	ctx := context.Background()

	validator, err := NewJWTValidator(ctx, JWTValidatorConfig{
		Issuer:   "test-issuer",
		Audience: "test-audience",
		JWKSURL:  jwksURL,
	})
	require.NoError(t, err)

	tests := []struct {
		name        string
		claims      jwt.MapClaims
		wantErr     error
		wantErrText string
	}{
		{
			name: "valid token",
			claims: jwt.MapClaims{
				"iss": "test-issuer",
				"aud": "test-audience",
				"sub": "alice",
				"exp": time.Now().Add(time.Hour).Unix(),
			},
		},
		{
			name: "invalid issuer",
			claims: jwt.MapClaims{
				"iss": "wrong-issuer",
				"aud": "test-audience",
				"sub": "alice",
				"exp": time.Now().Add(time.Hour).Unix(),
			},
			wantErr: ErrInvalidIssuer,
		},
		{
			name: "invalid audience",
			claims: jwt.MapClaims{
				"iss": "test-issuer",
				"aud": "wrong-audience",
				"sub": "alice",
				"exp": time.Now().Add(time.Hour).Unix(),
			},
			wantErr: ErrInvalidAudience,
		},
		{
			name: "expired token",
			claims: jwt.MapClaims{
				"iss": "test-issuer",
				"aud": "test-audience",
				"sub": "alice",
				"exp": time.Now().Add(-time.Hour).Unix(),
			},
			// jwt.Parse rejects expired tokens itself, wrapping its own
			// error, so match on the message.
			wantErrText: "expired",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tokenString := signToken(t, privateKey, tt.claims)

			claims, err := validator.ValidateToken(ctx, tokenString)
			if tt.wantErr != nil || tt.wantErrText != "" {
				require.Error(t, err)
				if tt.wantErr != nil {
					assert.ErrorIs(t, err, tt.wantErr)
				}
				if tt.wantErrText != "" {
					assert.Contains(t, err.Error(), tt.wantErrText)
				}
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "alice", claims["sub"])
		})
	}
}

func TestNewJWTValidator_RequiresJWKSURL(t *testing.T) {
	t.Parallel()

	_, err := NewJWTValidator(context.Background(), JWTValidatorConfig{Issuer: "x"})
	assert.ErrorIs(t, err, ErrMissingJWKSURL)
}

func TestJWTValidator_Middleware(t *testing.T) {
	t.Parallel()

	privateKey, jwksURL := newJWKSFixture(t)
	ctx := context.Background()

	validator, err := NewJWTValidator(ctx, JWTValidatorConfig{
		Issuer:  "test-issuer",
		JWKSURL: jwksURL,
	})
	require.NoError(t, err)

	var gotIdentity *Identity
	handler := validator.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotIdentity, _ = IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("valid bearer token", func(t *testing.T) {
		tokenString := signToken(t, privateKey, jwt.MapClaims{
			"iss":                "test-issuer",
			"sub":                "user-1",
			"preferred_username": "alice",
			"exp":                time.Now().Add(time.Hour).Unix(),
		})

		req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
		req.Header.Set("Authorization", "Bearer "+tokenString)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		require.NotNil(t, gotIdentity)
		assert.Equal(t, "user-1", gotIdentity.Subject)
		assert.Equal(t, "alice", gotIdentity.Username)
		assert.Equal(t, tokenString, gotIdentity.Token)
	})

	t.Run("missing token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("garbage token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
		req.Header.Set("Authorization", "Bearer not-a-jwt")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}
