package sessions

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-bsky-client/atproto"
	"github.com/pkg/errors"
)

// Session is an authenticated AT Protocol session. A stored Session is never modified;
// a refresh replaces it with a new one and callers always receive copies.
type Session struct {
	AccessToken  string    // Bearer credential for XRPC calls
	RefreshToken string    // Exchanged for a new token pair when the access token goes stale
	DID          string    // Account identifier, the repo for record writes
	Handle       string    // Account handle, e.g. alice.bsky.social
	IssuedAt     time.Time // When the client obtained this token pair
}

func newSession(resp *atproto.SessionResponse, issuedAt time.Time) *Session {
	return &Session{
		AccessToken:  resp.AccessJwt,
		RefreshToken: resp.RefreshJwt,
		DID:          resp.Did,
		Handle:       resp.Handle,
		IssuedAt:     issuedAt,
	}
}

// Age is how long ago the token pair was obtained.
func (s Session) Age(now time.Time) time.Duration {
	return now.Sub(s.IssuedAt)
}

// AccessTokenExpiry reads the exp claim of the access token without verifying its
// signature. It is informational only; freshness is decided from IssuedAt.
func (s Session) AccessTokenExpiry() (time.Time, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(s.AccessToken, claims); err != nil {
		return time.Time{}, errors.Wrap(err, "[Session.AccessTokenExpiry] access token is not a JWT")
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, errors.Wrap(err, "[Session.AccessTokenExpiry] invalid exp claim")
	}
	if exp == nil {
		return time.Time{}, errors.New("[Session.AccessTokenExpiry] access token has no exp claim")
	}
	return exp.Time, nil
}
