// Package auth provides authentication and authorization utilities.
package auth

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Identity represents an authenticated user or service account.
type Identity struct {
	// Subject is the unique identifier for the principal (from 'sub' claim).
	// Always required per OIDC Core 1.0 spec § 5.1.
	Subject string

	// Username is the preferred login name (from 'preferred_username'), used
	// in user-facing messages. Falls back to Subject when absent.
	Username string

	// Name is the human-readable name (from 'name' claim).
	Name string

	// Email is the email address (from 'email' claim, if available).
	Email string

	// Claims contains all claims from the auth token, preserved for
	// authorization decisions (role claim names vary by provider).
	Claims map[string]any

	// Token is the original access token, carried for token exchange.
	// Redacted in String() and MarshalJSON() to prevent leakage.
	Token string

	// TokenType is the type of token (e.g. "Bearer").
	TokenType string
}

// String returns a representation of the Identity with sensitive fields
// redacted, so logging an identity never leaks the token.
func (i *Identity) String() string {
	if i == nil {
		return "<nil>"
	}
	return fmt.Sprintf("Identity{Subject:%q, Username:%q}", i.Subject, i.Username)
}

// MarshalJSON implements json.Marshaler, redacting the token.
func (i *Identity) MarshalJSON() ([]byte, error) {
	if i == nil {
		return []byte("null"), nil
	}

	type safeIdentity struct {
		Subject   string         `json:"subject"`
		Username  string         `json:"username,omitempty"`
		Name      string         `json:"name,omitempty"`
		Email     string         `json:"email,omitempty"`
		Claims    map[string]any `json:"claims,omitempty"`
		Token     string         `json:"token,omitempty"`
		TokenType string         `json:"tokenType,omitempty"`
	}

	token := i.Token
	if token != "" {
		token = "REDACTED"
	}

	return json.Marshal(&safeIdentity{
		Subject:   i.Subject,
		Username:  i.Username,
		Name:      i.Name,
		Email:     i.Email,
		Claims:    i.Claims,
		Token:     token,
		TokenType: i.TokenType,
	})
}

// claimsToIdentity converts JWT claims to an Identity.
// It requires the 'sub' claim per OIDC Core 1.0 spec § 5.1.
// The original token is carried for token exchange.
func claimsToIdentity(claims jwt.MapClaims, token string) (*Identity, error) {
	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return nil, errors.New("missing or invalid 'sub' claim (required by OIDC Core 1.0 § 5.1)")
	}

	identity := &Identity{
		Subject:   sub,
		Username:  sub,
		Claims:    claims,
		Token:     token,
		TokenType: "Bearer",
	}

	if username, ok := claims["preferred_username"].(string); ok && username != "" {
		identity.Username = username
	}
	if name, ok := claims["name"].(string); ok {
		identity.Name = name
	}
	if email, ok := claims["email"].(string); ok {
		identity.Email = email
	}

	return identity, nil
}
