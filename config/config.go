package config

import (
	"net/url"
	"time"

	"github.com/pkg/errors"
)

// Config is everything the client needs, split by concern so each component only
// depends on the getters it reads.
type Config interface {
	ClientConfig
	SessionConfig
	RetryConfig
	RateLimitConfig
}

type ClientConfig interface {
	GetBaseURL() string
	GetTimeout() time.Duration
	GetEnableLogging() bool
	GetIdentifier() string
	GetPassword() string
}

// Options is the concrete Config. The zero value is not usable; start from Default or Load.
type Options struct {
	Client
	Session
	Retry
	RateLimit
}

var _ Config = (*Options)(nil)

const (
	DefaultBaseURL = "https://bsky.social"
	DefaultTimeout = 30 * time.Second
)

// Client holds transport level settings.
type Client struct {
	BaseURL       string
	Timeout       time.Duration
	EnableLogging bool // debug level logging when true
	Identifier    string
	Password      string
}

var _ ClientConfig = Client{}

func (c Client) GetBaseURL() string {
	return c.BaseURL
}

func (c Client) GetTimeout() time.Duration {
	return c.Timeout
}

func (c Client) GetEnableLogging() bool {
	return c.EnableLogging
}

func (c Client) GetIdentifier() string {
	return c.Identifier
}

func (c Client) GetPassword() string {
	return c.Password
}

// Default returns the options used when nothing is configured.
func Default() *Options {
	return &Options{
		Client: Client{
			BaseURL: DefaultBaseURL,
			Timeout: DefaultTimeout,
		},
		Session: Session{
			AutoRefreshTokens: true,
			TokenFreshness:    DefaultTokenFreshness,
		},
		Retry: Retry{
			MaxRetries:        DefaultMaxRetries,
			RetryInitialDelay: DefaultRetryInitialDelay,
			RetryMaxDelay:     DefaultRetryMaxDelay,
		},
		RateLimit: RateLimit{
			Burst: 1,
		},
	}
}

// Validate reports the first invalid setting.
func (o *Options) Validate() error {
	if o.BaseURL == "" {
		return errors.New("[config.Validate] base URL is required")
	}
	u, err := url.Parse(o.BaseURL)
	if err != nil {
		return errors.Wrap(err, "[config.Validate] invalid base URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.Errorf("[config.Validate] base URL must be http or https, got %q", o.BaseURL)
	}
	if u.Host == "" {
		return errors.Errorf("[config.Validate] base URL has no host: %q", o.BaseURL)
	}
	if o.Timeout <= 0 {
		return errors.New("[config.Validate] timeout must be positive")
	}
	if o.TokenFreshness <= 0 {
		return errors.New("[config.Validate] token freshness must be positive")
	}
	if o.MaxRetries < 0 {
		return errors.New("[config.Validate] max retries cannot be negative")
	}
	if o.RetryInitialDelay <= 0 {
		return errors.New("[config.Validate] retry initial delay must be positive")
	}
	if o.RetryMaxDelay < o.RetryInitialDelay {
		return errors.New("[config.Validate] retry max delay must not be less than the initial delay")
	}
	if o.RequestsPerSecond < 0 {
		return errors.New("[config.Validate] requests per second cannot be negative")
	}
	if o.RequestsPerSecond > 0 && o.Burst < 1 {
		return errors.New("[config.Validate] burst must be at least 1 when rate limiting")
	}
	return nil
}
