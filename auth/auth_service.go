package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/jrsteele09/go-bsky-client/atproto"
	"github.com/jrsteele09/go-bsky-client/xrpc"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Caller is the part of the XRPC transport the service needs.
type Caller interface {
	Do(ctx context.Context, req *xrpc.Request, out any) error
}

// Service performs the two session endpoints of the AT Protocol server:
// com.atproto.server.createSession and com.atproto.server.refreshSession.
// It holds no state; the sessions package owns the current session.
type Service struct {
	caller Caller
	logger zerolog.Logger
}

type ServiceOption func(*Service)

// WithLogger sets the logger used for session endpoint calls.
func WithLogger(logger zerolog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// NewService creates a Service that sends its requests through caller.
func NewService(caller Caller, options ...ServiceOption) (*Service, error) {
	if caller == nil {
		return nil, errors.New("[auth.NewService] caller is required")
	}
	s := &Service{
		caller: caller,
		logger: zerolog.Nop(),
	}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

// CreateSession exchanges an identifier (handle, DID or email) and an app password
// for a new session. A rejected login is returned as an xrpc.KindAuth error.
func (s *Service) CreateSession(ctx context.Context, identifier, password string) (*atproto.SessionResponse, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		return nil, ErrMissingCredentials
	}

	var resp atproto.SessionResponse
	err := s.caller.Do(ctx, &xrpc.Request{
		Method: http.MethodPost,
		NSID:   atproto.CreateSessionNSID,
		Body:   atproto.CreateSessionRequest{Identifier: identifier, Password: password},
	}, &resp)
	if err != nil {
		s.logger.Debug().Err(err).Str("identifier", identifier).Msg("createSession failed")
		return nil, asAuthError("login rejected", err)
	}
	if !resp.Complete() {
		return nil, ErrIncompleteSession
	}

	s.logger.Debug().Str("did", resp.Did).Str("handle", resp.Handle).Msg("Session created")
	return &resp, nil
}

// RefreshSession exchanges a refresh token for a new token pair. The refresh token is
// presented as the bearer credential and repeated in the body.
func (s *Service) RefreshSession(ctx context.Context, refreshJwt string) (*atproto.SessionResponse, error) {
	if refreshJwt == "" {
		return nil, ErrMissingRefreshToken
	}

	var resp atproto.SessionResponse
	err := s.caller.Do(ctx, &xrpc.Request{
		Method: http.MethodPost,
		NSID:   atproto.RefreshSessionNSID,
		Body:   atproto.RefreshSessionRequest{RefreshJwt: refreshJwt},
		Bearer: refreshJwt,
	}, &resp)
	if err != nil {
		s.logger.Debug().Err(err).Msg("refreshSession failed")
		return nil, asAuthError("refresh rejected", err)
	}
	if !resp.Complete() {
		return nil, ErrIncompleteSession
	}
	return &resp, nil
}

// asAuthError maps 400/401 responses of the session endpoints to auth errors. Servers
// answer an invalid identifier, password or refresh token with 400 or 401 and an
// error code such as AuthenticationRequired or ExpiredToken.
func asAuthError(message string, err error) error {
	var xerr *xrpc.Error
	if !errors.As(err, &xerr) || xerr.Kind != xrpc.KindAPI {
		return err
	}
	if xerr.StatusCode == http.StatusBadRequest || xerr.StatusCode == http.StatusUnauthorized {
		return xrpc.NewAuthError(message, err)
	}
	return err
}
