// ABOUTME: HTTP credential extraction and optional-auth middleware
// ABOUTME: Resolves identity from the auth cookie or Authorization header, failing closed

package auth

import (
	"net/http"
	"strings"
)

// extractBearerToken extracts a bearer token from the Authorization header.
// Returns the token and an error message (empty if successful).
func extractBearerToken(authHeader string) (string, string) {
	if authHeader == "" {
		return "", "missing authorization header"
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", "invalid authorization header format"
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == "" {
		return "", "empty token"
	}
	return token, ""
}

// CredentialFromRequest extracts the raw bearer credential from a request.
// The auth cookie takes precedence; the Authorization header is the
// fallback. Returns "" when no credential is present.
func CredentialFromRequest(r *http.Request, cookieName string) string {
	if c, err := r.Cookie(cookieName); err == nil && c.Value != "" {
		return c.Value
	}
	token, errMsg := extractBearerToken(r.Header.Get("Authorization"))
	if errMsg != "" {
		return ""
	}
	return token
}

// IdentityFromRequest resolves the authenticated identity for a request,
// checking the cookie first and the Authorization header second. It fails
// closed: any missing, malformed, expired, or unverifiable credential
// yields a nil identity and never an error.
func IdentityFromRequest(r *http.Request, cookieName string, verifier TokenVerifier) *Identity {
	token := CredentialFromRequest(r, cookieName)
	if token == "" {
		return nil
	}
	id, err := verifier.Verify(token)
	if err != nil {
		return nil
	}
	return id
}

// OptionalAuthMiddleware attempts authentication but always allows the
// request through. Authenticated requests get an Identity on the context;
// anonymous or invalid-credential requests proceed as guests.
func OptionalAuthMiddleware(cookieName string, verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if id := IdentityFromRequest(r, cookieName, verifier); id != nil {
				r = r.WithContext(WithIdentity(r.Context(), id))
			}
			next.ServeHTTP(w, r)
		})
	}
}
