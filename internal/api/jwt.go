package api

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// tokenExpiresAt returns the expiry timestamp encoded in a JWT (if present).
//
// The signature is not verified; this is only used for client control flow
// such as proactive refresh. The server remains the source of truth and will
// reject an invalid token with a 401.
func tokenExpiresAt(token string) (time.Time, bool) {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return time.Time{}, false
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// isTokenExpiringSoon reports whether a token is already expired or will
// expire within the given window.
func isTokenExpiringSoon(token string, window time.Duration) (bool, error) {
	if strings.TrimSpace(token) == "" {
		return true, fmt.Errorf("token is empty")
	}
	exp, ok := tokenExpiresAt(token)
	if !ok {
		// No parseable exp claim: treat as non-refreshable but not expired;
		// the server will 401 if it disagrees.
		return false, nil
	}
	return time.Until(exp) <= window, nil
}
