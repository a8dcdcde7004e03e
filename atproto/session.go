package atproto

// CreateSessionRequest is the body of com.atproto.server.createSession.
type CreateSessionRequest struct {
	// Identifier is the handle or email of the account.
	// Example: "alice.bsky.social"
	Identifier string `json:"identifier"`

	// Password is the account password or an app password.
	// App passwords are recommended for bots and scripts.
	Password string `json:"password"`
}

// RefreshSessionRequest is the body sent to com.atproto.server.refreshSession.
// The refresh JWT is also presented as the bearer credential.
type RefreshSessionRequest struct {
	RefreshJwt string `json:"refreshJwt"`
}

// SessionResponse is returned by both createSession and refreshSession.
type SessionResponse struct {
	// AccessJwt authenticates XRPC calls.
	// Usage: "Authorization: Bearer <accessJwt>"
	// Lifespan: short-lived (around an hour); the expiry is not read by the client.
	AccessJwt string `json:"accessJwt"`

	// RefreshJwt obtains a new session once the access token goes stale.
	// Lifespan: long-lived; a successful refresh rotates it.
	RefreshJwt string `json:"refreshJwt"`

	// Did is the decentralized identifier of the account, used as the repo for writes.
	// Example: "did:plc:z72i7hdynmk6r22z27h6tvur"
	Did string `json:"did"`

	// Handle is the account's human readable name.
	// Example: "alice.bsky.social"
	Handle string `json:"handle"`
}

// Complete reports whether every field required to build a session is present.
func (r *SessionResponse) Complete() bool {
	return r != nil && r.AccessJwt != "" && r.RefreshJwt != "" && r.Did != "" && r.Handle != ""
}
