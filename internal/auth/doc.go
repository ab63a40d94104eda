// Package auth provides token validation for chat-gateway.
//
// Clients authenticate with HS256-signed JWTs issued at OTP login. A
// credential can arrive two ways, checked in order on every request:
//
//   - the auth cookie (set by the login endpoint)
//   - an Authorization: Bearer header
//
// Validation fails closed: malformed, expired, or unverifiable tokens
// resolve to a nil identity rather than an error, so every endpoint that
// serves both guests and users can treat "no identity" as guest mode.
// Ownership checks against sessions happen in the gateway, not here.
package auth
