package config

import (
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

const (
	baseURLEnvVar           = "BSKY_BASE_URL"
	timeoutEnvVar           = "BSKY_TIMEOUT_SECONDS"
	enableLoggingEnvVar     = "BSKY_ENABLE_LOGGING"
	identifierEnvVar        = "BSKY_IDENTIFIER"
	passwordEnvVar          = "BSKY_PASSWORD"
	autoRefreshEnvVar       = "BSKY_AUTO_REFRESH_TOKENS"
	freshnessEnvVar         = "BSKY_TOKEN_FRESHNESS_MINUTES"
	maxRetriesEnvVar        = "BSKY_MAX_RETRIES"
	retryInitialDelayEnvVar = "BSKY_RETRY_INITIAL_DELAY_MS"
	retryMaxDelayEnvVar     = "BSKY_RETRY_MAX_DELAY_MS"
	requestsPerSecondEnvVar = "BSKY_REQUESTS_PER_SECOND"
	burstEnvVar             = "BSKY_REQUESTS_BURST"
)

// Load reads the options from the environment. When envFile is not empty it is loaded
// first with godotenv; a missing file is ignored and variables already set in the
// process environment take precedence over the file.
func Load(envFile string) (*Options, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, errors.Wrapf(err, "[config.Load] reading %s", envFile)
		}
	}

	defaults := Default()
	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault(baseURLEnvVar, defaults.BaseURL)
	v.SetDefault(timeoutEnvVar, int(defaults.Timeout/time.Second))
	v.SetDefault(enableLoggingEnvVar, defaults.EnableLogging)
	v.SetDefault(autoRefreshEnvVar, defaults.AutoRefreshTokens)
	v.SetDefault(freshnessEnvVar, int(defaults.TokenFreshness/time.Minute))
	v.SetDefault(maxRetriesEnvVar, defaults.MaxRetries)
	v.SetDefault(retryInitialDelayEnvVar, defaults.RetryInitialDelay.Milliseconds())
	v.SetDefault(retryMaxDelayEnvVar, defaults.RetryMaxDelay.Milliseconds())
	v.SetDefault(requestsPerSecondEnvVar, defaults.RequestsPerSecond)
	v.SetDefault(burstEnvVar, defaults.Burst)

	r := &envReader{v: v}
	opts := &Options{
		Client: Client{
			BaseURL:       v.GetString(baseURLEnvVar),
			Timeout:       time.Duration(r.int(timeoutEnvVar)) * time.Second,
			EnableLogging: r.bool(enableLoggingEnvVar),
			Identifier:    v.GetString(identifierEnvVar),
			Password:      v.GetString(passwordEnvVar),
		},
		Session: Session{
			AutoRefreshTokens: r.bool(autoRefreshEnvVar),
			TokenFreshness:    time.Duration(r.int(freshnessEnvVar)) * time.Minute,
		},
		Retry: Retry{
			MaxRetries:        r.int(maxRetriesEnvVar),
			RetryInitialDelay: time.Duration(r.int64(retryInitialDelayEnvVar)) * time.Millisecond,
			RetryMaxDelay:     time.Duration(r.int64(retryMaxDelayEnvVar)) * time.Millisecond,
		},
		RateLimit: RateLimit{
			RequestsPerSecond: r.float64(requestsPerSecondEnvVar),
			Burst:             r.int(burstEnvVar),
		},
	}
	if r.err != nil {
		return nil, r.err
	}

	if err := opts.Validate(); err != nil {
		return nil, errors.Wrap(err, "[config.Load] invalid configuration")
	}
	return opts, nil
}

// envReader converts viper values to typed settings and keeps the first value that
// does not parse.
type envReader struct {
	v   *viper.Viper
	err error
}

func (r *envReader) fail(key string, err error) {
	if err != nil && r.err == nil {
		r.err = errors.Wrapf(err, "[config.Load] invalid %s", key)
	}
}

func (r *envReader) bool(key string) bool {
	b, err := cast.ToBoolE(r.v.Get(key))
	r.fail(key, err)
	return b
}

func (r *envReader) int(key string) int {
	n, err := cast.ToIntE(r.v.Get(key))
	r.fail(key, err)
	return n
}

func (r *envReader) int64(key string) int64 {
	n, err := cast.ToInt64E(r.v.Get(key))
	r.fail(key, err)
	return n
}

func (r *envReader) float64(key string) float64 {
	f, err := cast.ToFloat64E(r.v.Get(key))
	r.fail(key, err)
	return f
}
