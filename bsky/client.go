package bsky

import (
	"context"
	"net/http"
	"time"

	"github.com/jrsteele09/go-bsky-client/auth"
	"github.com/jrsteele09/go-bsky-client/config"
	"github.com/jrsteele09/go-bsky-client/media"
	"github.com/jrsteele09/go-bsky-client/metrics"
	"github.com/jrsteele09/go-bsky-client/posts"
	"github.com/jrsteele09/go-bsky-client/sessions"
	"github.com/jrsteele09/go-bsky-client/xrpc"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// Client is a BlueSky client for one account. All of its services share a single
// session, so a refresh triggered by any of them is seen by all.
type Client struct {
	Sessions *sessions.Manager
	Posts    *posts.Service
	Media    *media.Service

	transport *xrpc.Client
	logger    zerolog.Logger
}

type clientOptions struct {
	logger     *zerolog.Logger
	httpClient *http.Client
	registerer prometheus.Registerer
	nowTime    func() time.Time
}

type Option func(*clientOptions)

// WithLogger replaces the default logger, the global zerolog logger at info level
// (debug when logging is enabled in the configuration).
func WithLogger(logger zerolog.Logger) Option {
	return func(o *clientOptions) {
		o.logger = &logger
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(o *clientOptions) {
		o.httpClient = httpClient
	}
}

// WithRegisterer registers the client's Prometheus collectors on reg. Without it no
// metrics are recorded.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *clientOptions) {
		o.registerer = reg
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) Option {
	return func(o *clientOptions) {
		o.nowTime = nowFunc
	}
}

// New creates a client from cfg. No network call is made until Login.
func New(cfg config.Config, options ...Option) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("[bsky.New] config is required")
	}
	if validator, ok := cfg.(interface{ Validate() error }); ok {
		if err := validator.Validate(); err != nil {
			return nil, errors.Wrap(err, "[bsky.New] invalid configuration")
		}
	}

	opts := &clientOptions{nowTime: time.Now}
	for _, opt := range options {
		opt(opts)
	}

	logger := defaultLogger(cfg)
	if opts.logger != nil {
		logger = *opts.logger
	}

	var collectors *metrics.Collectors
	if opts.registerer != nil {
		var err error
		if collectors, err = metrics.New(opts.registerer); err != nil {
			return nil, errors.Wrap(err, "[bsky.New] registering metrics")
		}
	}

	transportOptions := []xrpc.Option{xrpc.WithLogger(logger), xrpc.WithMetrics(collectors)}
	if opts.httpClient != nil {
		transportOptions = append(transportOptions, xrpc.WithHTTPClient(opts.httpClient))
	}
	transport, err := xrpc.New(cfg, transportOptions...)
	if err != nil {
		return nil, errors.Wrap(err, "[bsky.New] creating transport")
	}

	authService, err := auth.NewService(transport, auth.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	manager, err := sessions.NewManager(authService, cfg,
		sessions.WithLogger(logger),
		sessions.WithMetrics(collectors),
		sessions.WithNowTime(opts.nowTime),
	)
	if err != nil {
		return nil, err
	}

	authenticated := transport.Authenticated(manager)
	postService, err := posts.NewService(authenticated, manager, posts.WithLogger(logger), posts.WithNowTime(opts.nowTime))
	if err != nil {
		return nil, err
	}
	mediaService, err := media.NewService(authenticated, postService, media.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	return &Client{
		Sessions:  manager,
		Posts:     postService,
		Media:     mediaService,
		transport: authenticated,
		logger:    logger,
	}, nil
}

// Login authenticates the account, replacing any current session.
func (c *Client) Login(ctx context.Context, identifier, password string) (*sessions.Session, error) {
	return c.Sessions.Authenticate(ctx, identifier, password)
}

// Logout forgets the current session. The server side session is left to expire.
func (c *Client) Logout() {
	c.Sessions.ClearSession()
}

// XRPC returns the authenticated transport for calls the client has no method for.
func (c *Client) XRPC() *xrpc.Client {
	return c.transport
}

// HTTPClient returns an *http.Client that attaches the session's access token to every
// request, for use with code that speaks XRPC on its own.
func (c *Client) HTTPClient(ctx context.Context) *http.Client {
	return oauth2.NewClient(ctx, c.Sessions.TokenSource(ctx))
}

func defaultLogger(cfg config.ClientConfig) zerolog.Logger {
	if cfg.GetEnableLogging() {
		return log.Logger.Level(zerolog.DebugLevel)
	}
	return log.Logger.Level(zerolog.InfoLevel)
}
