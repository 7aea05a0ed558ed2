package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// InspectToken reads the subject and expiry out of a bearer token without
// verifying its signature. The portal holds the signing key; the client only
// uses the claims to skip round trips that are guaranteed to fail.
func InspectToken(token string) (subject string, expiresAt time.Time, err error) {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return "", time.Time{}, err
	}
	subject, _ = parsed.Claims.GetSubject()
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return subject, time.Time{}, nil
	}
	return subject, exp.Time, nil
}

// TokenExpired reports whether the token carries an expiry in the past. A
// token that cannot be parsed is treated as expired; one without an exp
// claim is not.
func TokenExpired(token string, now time.Time) bool {
	_, expiresAt, err := InspectToken(token)
	if err != nil {
		return true
	}
	if expiresAt.IsZero() {
		return false
	}
	return expiresAt.Before(now)
}
