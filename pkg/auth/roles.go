package auth

// realmAccessClaim is the Keycloak-style claim carrying realm role
// membership: {"realm_access": {"roles": ["role-a", "role-b"]}}.
const realmAccessClaim = "realm_access"

// RealmRoles extracts the realm roles from a claims map. A missing or
// malformed claim yields no roles.
func RealmRoles(claims map[string]any) []string {
	realmAccess, ok := claims[realmAccessClaim].(map[string]any)
	if !ok {
		return nil
	}

	rawRoles, ok := realmAccess["roles"].([]any)
	if !ok {
		return nil
	}

	roles := make([]string, 0, len(rawRoles))
	for _, raw := range rawRoles {
		if role, ok := raw.(string); ok {
			roles = append(roles, role)
		}
	}
	return roles
}

// HasRole reports whether the identity holds the given realm role.
// An empty required role always passes; a nil identity never does.
func HasRole(identity *Identity, role string) bool {
	if role == "" {
		return true
	}
	if identity == nil {
		return false
	}
	for _, held := range RealmRoles(identity.Claims) {
		if held == role {
			return true
		}
	}
	return false
}
