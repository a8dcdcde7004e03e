package config

import "time"

// DefaultTokenFreshness is how long an access token is trusted after it was issued.
// Access tokens nominally live for about an hour but their expiry is not read from the
// token, so the session is treated as stale 10 minutes early.
const DefaultTokenFreshness = 50 * time.Minute

type SessionConfig interface {
	GetAutoRefreshTokens() bool
	GetTokenFreshness() time.Duration
}

type Session struct {
	AutoRefreshTokens bool
	TokenFreshness    time.Duration
}

var _ SessionConfig = Session{}

func (s Session) GetAutoRefreshTokens() bool {
	return s.AutoRefreshTokens
}

func (s Session) GetTokenFreshness() time.Duration {
	if s.TokenFreshness <= 0 {
		return DefaultTokenFreshness
	}
	return s.TokenFreshness
}
