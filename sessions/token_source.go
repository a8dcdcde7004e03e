package sessions

import (
	"context"

	"golang.org/x/oauth2"
)

// Token returns the access token as an oauth2.Token. Expiry is when the session stops
// being considered fresh, not the JWT's own exp claim.
func (m *Manager) Token(ctx context.Context) (*oauth2.Token, error) {
	session, err := m.usableSession(ctx)
	if err != nil {
		return nil, err
	}
	return &oauth2.Token{
		AccessToken: session.AccessToken,
		TokenType:   "Bearer",
		Expiry:      session.IssuedAt.Add(m.cfg.GetTokenFreshness()),
	}, nil
}

// TokenSource adapts the manager to oauth2.TokenSource, for use with oauth2.NewClient.
// Every Token call goes through the manager, so refreshes stay coordinated.
func (m *Manager) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &tokenSource{ctx: ctx, manager: m}
}

type tokenSource struct {
	ctx     context.Context
	manager *Manager
}

func (ts *tokenSource) Token() (*oauth2.Token, error) {
	return ts.manager.Token(ts.ctx)
}
