package auth

import "github.com/jrsteele09/go-bsky-client/xrpc"

var (
	ErrMissingCredentials  = xrpc.NewAuthError("identifier and password are required", nil)
	ErrMissingRefreshToken = xrpc.NewAuthError("refresh token is required", nil)
	ErrIncompleteSession   = xrpc.NewAuthError("server returned an incomplete session", nil)
)
