package transport

import (
	"time"

	"sisi-realtime/internal/auth"
)

// tokenExpired reads the exp claim without verifying the signature; the
// backend is the one that verifies. Tokens that are not JWTs, or carry no
// exp, never expire from the client's point of view.
func tokenExpired(token string, now time.Time) bool {
	claims, err := auth.ReadClaims(token)
	if err != nil {
		return false
	}
	return claims.ExpiredAt(now)
}
