// Package xrpc is the HTTP transport for AT Protocol XRPC calls. It resolves
// method identifiers against the configured service URL, attaches bearer
// credentials, retries transient failures and maps error responses onto a
// single typed [Error].
//
// # Requests
//
// Procedures are POSTed as JSON ([Client.Procedure]), queries use GET with
// query parameters ([Client.Query]) and blobs are POSTed as raw bytes
// ([Client.Upload]). Every call is sent to {baseURL}/xrpc/{nsid}.
//
// Authenticated calls ask the [TokenSource] for a token once, before the
// first attempt. A failure to obtain a token is returned unchanged and is
// never retried.
//
// # Retry Behavior
//
// Network failures, 408 Request Timeout and 5xx responses are retried with
// exponential backoff, bounded by the retry settings in config. Every other
// status is returned immediately. In particular 429 Too Many Requests is not
// retried here; the caller receives a [KindRateLimit] error carrying the
// server's Retry-After hint.
//
// # Error Handling
//
// Errors returned by the client are *[Error] values. Match on the kind:
//
//	var xerr *xrpc.Error
//	if errors.As(err, &xerr) && xerr.Kind == xrpc.KindRateLimit {
//	    time.Sleep(xerr.RetryAfter)
//	}
//
// or use [IsAuth] and [IsRateLimited].
//
// # Thread Safety
//
// A [Client] is safe for concurrent use.
package xrpc
