package xrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/jrsteele09/go-bsky-client/atproto"
	"github.com/jrsteele09/go-bsky-client/config"
	"github.com/jrsteele09/go-bsky-client/metrics"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	xrpcPathPrefix   = "/xrpc/"
	jsonContentType  = "application/json"
	defaultUserAgent = "go-bsky-client"
	maxResponseBytes = 10 << 20
)

// TokenSource supplies the access token for authenticated calls.
type TokenSource interface {
	Token(ctx context.Context) (*oauth2.Token, error)
}

// Config is the subset of the client configuration the transport reads.
type Config interface {
	config.ClientConfig
	config.RetryConfig
	config.RateLimitConfig
}

// Request describes one XRPC call.
type Request struct {
	Method      string
	NSID        string
	Params      url.Values
	Body        any    // JSON encoded when RawBody is nil
	RawBody     []byte // sent as-is with ContentType
	ContentType string
	Auth        bool   // attach a token from the TokenSource
	Bearer      string // explicit credential; takes precedence over the TokenSource
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
	retry      config.RetryConfig
	limiter    *rate.Limiter
	logger     zerolog.Logger
	metrics    *metrics.Collectors
	userAgent  string
}

type Option func(*Client)

// WithHTTPClient sets the HTTP client requests are sent with. The client is copied and
// the copy's Timeout is set from the configuration.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithTokenSource sets the source of the bearer token attached to authenticated calls
func WithTokenSource(tokens TokenSource) Option {
	return func(c *Client) {
		c.tokens = tokens
	}
}

// WithLogger sets the logger used for request and retry events
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithMetrics sets the collectors that request counts and latencies are recorded on
func WithMetrics(collectors *metrics.Collectors) Option {
	return func(c *Client) {
		c.metrics = collectors
	}
}

// WithUserAgent sets the User-Agent header sent with every request
func WithUserAgent(userAgent string) Option {
	return func(c *Client) {
		c.userAgent = userAgent
	}
}

// New creates a transport for the service at cfg.GetBaseURL().
func New(cfg Config, options ...Option) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("[xrpc.New] config is required")
	}
	baseURL := strings.TrimRight(cfg.GetBaseURL(), "/")
	if baseURL == "" {
		return nil, errors.New("[xrpc.New] base URL is required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, errors.Wrap(err, "[xrpc.New] invalid base URL")
	}

	c := &Client{
		baseURL:   baseURL,
		retry:     cfg,
		logger:    zerolog.Nop(),
		userAgent: defaultUserAgent,
	}
	for _, opt := range options {
		opt(c)
	}

	httpClient := &http.Client{}
	if c.httpClient != nil {
		*httpClient = *c.httpClient
	}
	httpClient.Timeout = cfg.GetTimeout()
	c.httpClient = httpClient

	if rps := cfg.GetRequestsPerSecond(); rps > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(rps), cfg.GetBurst())
	}
	return c, nil
}

// Authenticated returns a client sharing this one's connection pool, pacing and
// retry settings that attaches tokens from tokens.
func (c *Client) Authenticated(tokens TokenSource) *Client {
	clone := *c
	clone.tokens = tokens
	return &clone
}

// Procedure POSTs in as JSON to an authenticated method and decodes the response into out.
func (c *Client) Procedure(ctx context.Context, nsid string, in, out any) error {
	return c.Do(ctx, &Request{Method: http.MethodPost, NSID: nsid, Body: in, Auth: true}, out)
}

// Query GETs an authenticated method.
func (c *Client) Query(ctx context.Context, nsid string, params url.Values, out any) error {
	return c.Do(ctx, &Request{Method: http.MethodGet, NSID: nsid, Params: params, Auth: true}, out)
}

// Upload POSTs raw bytes to an authenticated method.
func (c *Client) Upload(ctx context.Context, nsid, contentType string, data []byte, out any) error {
	return c.Do(ctx, &Request{Method: http.MethodPost, NSID: nsid, RawBody: data, ContentType: contentType, Auth: true}, out)
}

// Do executes req, retrying transient failures, and decodes a successful JSON
// response into out when out is not nil.
func (c *Client) Do(ctx context.Context, req *Request, out any) error {
	start := time.Now()
	defer func() {
		c.metrics.ObserveDuration(req.NSID, time.Since(start))
	}()

	logger := c.logger.With().Str("nsid", req.NSID).Str("request_id", uuid.NewString()).Logger()

	body, contentType, err := encodeBody(req)
	if err != nil {
		return &Error{Kind: KindTransport, Message: "encoding request body", Err: err}
	}

	token, err := c.credential(ctx, req)
	if err != nil {
		return err
	}

	endpoint := c.endpoint(req)
	var responseBody []byte
	var statusCode int

	operation := func() error {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return backoff.Permanent(&Error{Kind: KindTransport, Message: "waiting for rate limiter", Err: err})
			}
		}

		var bodyReader io.Reader = http.NoBody
		if body != nil {
			bodyReader = bytes.NewReader(body)
		}
		httpReq, err := http.NewRequestWithContext(ctx, req.Method, endpoint, bodyReader)
		if err != nil {
			return backoff.Permanent(&Error{Kind: KindTransport, Message: "building request", Err: err})
		}
		httpReq.Header.Set("Accept", jsonContentType)
		httpReq.Header.Set("User-Agent", c.userAgent)
		if contentType != "" {
			httpReq.Header.Set("Content-Type", contentType)
		}
		if token != nil {
			token.SetAuthHeader(httpReq)
		}

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			c.metrics.ObserveRequest(req.NSID, 0)
			transportErr := &Error{Kind: KindTransport, Message: "sending request", Err: err}
			if ctx.Err() != nil {
				return backoff.Permanent(transportErr)
			}
			return transportErr
		}
		defer resp.Body.Close()

		c.metrics.ObserveRequest(req.NSID, resp.StatusCode)
		data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if err != nil {
			return &Error{Kind: KindTransport, StatusCode: resp.StatusCode, Message: "reading response body", Err: err}
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			responseBody = data
			statusCode = resp.StatusCode
			return nil
		}

		apiErr := errorFromResponse(resp, data)
		if retryableStatus(resp.StatusCode) {
			return apiErr
		}
		return backoff.Permanent(apiErr)
	}

	notify := func(err error, wait time.Duration) {
		logger.Warn().Err(err).Dur("backoff", wait).Msg("Retrying XRPC request")
	}

	if err := backoff.RetryNotify(operation, c.newBackOff(ctx), notify); err != nil {
		var xerr *Error
		if !errors.As(err, &xerr) {
			// backoff reports context cancellation during a wait without our wrapping.
			err = &Error{Kind: KindTransport, Message: "request cancelled", Err: err}
		}
		logger.Debug().Err(err).Msg("XRPC request failed")
		return err
	}

	logger.Debug().Int("status", statusCode).Dur("elapsed", time.Since(start)).Msg("XRPC request completed")

	if out == nil || len(bytes.TrimSpace(responseBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(responseBody, out); err != nil {
		return &Error{Kind: KindTransport, StatusCode: statusCode, Message: "decoding response body", Err: err}
	}
	return nil
}

func (c *Client) credential(ctx context.Context, req *Request) (*oauth2.Token, error) {
	if req.Bearer != "" {
		return &oauth2.Token{AccessToken: req.Bearer, TokenType: "Bearer"}, nil
	}
	if !req.Auth {
		return nil, nil
	}
	if c.tokens == nil {
		return nil, &Error{Kind: KindAuth, Message: "no token source configured for authenticated call"}
	}
	return c.tokens.Token(ctx)
}

func (c *Client) endpoint(req *Request) string {
	endpoint := c.baseURL + xrpcPathPrefix + req.NSID
	if len(req.Params) > 0 {
		endpoint += "?" + req.Params.Encode()
	}
	return endpoint
}

func (c *Client) newBackOff(ctx context.Context) backoff.BackOff {
	exponential := backoff.NewExponentialBackOff()
	exponential.InitialInterval = c.retry.GetRetryInitialDelay()
	exponential.MaxInterval = c.retry.GetRetryMaxDelay()
	exponential.MaxElapsedTime = 0
	maxRetries := c.retry.GetMaxRetries()
	if maxRetries < 0 {
		maxRetries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(exponential, uint64(maxRetries)), ctx)
}

func encodeBody(req *Request) ([]byte, string, error) {
	if req.RawBody != nil {
		return req.RawBody, req.ContentType, nil
	}
	if req.Body == nil {
		return nil, "", nil
	}
	data, err := json.Marshal(req.Body)
	if err != nil {
		return nil, "", err
	}
	return data, jsonContentType, nil
}

func errorFromResponse(resp *http.Response, body []byte) *Error {
	xerr := &Error{
		Kind:       kindForStatus(resp.StatusCode),
		StatusCode: resp.StatusCode,
		Message:    http.StatusText(resp.StatusCode),
	}

	var parsed atproto.ErrorResponse
	if err := json.Unmarshal(body, &parsed); err == nil {
		xerr.ErrorCode = parsed.Error
		if parsed.Message != "" {
			xerr.Message = parsed.Message
		}
	} else {
		xerr.Message = fmt.Sprintf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if xerr.Kind == KindRateLimit {
		xerr.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
	}
	return xerr
}
