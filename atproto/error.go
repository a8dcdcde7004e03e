package atproto

// ErrorResponse is the body XRPC servers return with non-2xx statuses.
// Example: {"error": "ExpiredToken", "message": "Token has expired"}
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
