package sessions

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/jrsteele09/go-bsky-client/atproto"
	"github.com/jrsteele09/go-bsky-client/auth"
	"github.com/jrsteele09/go-bsky-client/config"
	"github.com/jrsteele09/go-bsky-client/metrics"
	"github.com/jrsteele09/go-bsky-client/xrpc"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

var (
	ErrNotAuthenticated = xrpc.NewAuthError("not authenticated", nil)
	ErrSessionExpired   = xrpc.NewAuthError("session expired, auto-refresh disabled", nil)

	ErrMissingCredentials = auth.ErrMissingCredentials
	ErrIncompleteSession  = auth.ErrIncompleteSession
)

// Remote is the server side of a session: login and token refresh.
type Remote interface {
	CreateSession(ctx context.Context, identifier, password string) (*atproto.SessionResponse, error)
	RefreshSession(ctx context.Context, refreshJwt string) (*atproto.SessionResponse, error)
}

// Manager owns the current session of one client and hands out access tokens,
// refreshing them when they are estimated to be stale.
//
// The state lock is only held for reads and swaps of the session pointer. The refresh
// network call is guarded by refreshGate alone, so callers holding a fresh token never
// wait behind a refresh.
type Manager struct {
	remote      Remote
	cfg         config.SessionConfig
	logger      zerolog.Logger
	metrics     *metrics.Collectors
	nowTime     func() time.Time
	lock        sync.RWMutex
	session     *Session
	refreshGate *semaphore.Weighted
}

// ManagerOption defines a function type to modify the Manager instance.
type ManagerOption func(*Manager)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowTime = nowFunc
	}
}

// WithLogger sets the logger used for session lifecycle events
func WithLogger(logger zerolog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithMetrics sets the collectors that refresh outcomes are recorded on
func WithMetrics(collectors *metrics.Collectors) ManagerOption {
	return func(m *Manager) {
		m.metrics = collectors
	}
}

// NewManager creates a Manager with no session.
func NewManager(remote Remote, cfg config.SessionConfig, options ...ManagerOption) (*Manager, error) {
	if remote == nil {
		return nil, errors.New("[sessions.NewManager] remote is required")
	}
	if cfg == nil {
		return nil, errors.New("[sessions.NewManager] session config is required")
	}
	m := &Manager{
		remote:      remote,
		cfg:         cfg,
		logger:      zerolog.Nop(),
		nowTime:     time.Now,
		refreshGate: semaphore.NewWeighted(1),
	}
	for _, opt := range options {
		opt(m)
	}
	return m, nil
}

// Authenticate logs in and replaces the current session. On failure the existing
// session, if any, is left as it was.
func (m *Manager) Authenticate(ctx context.Context, identifier, password string) (*Session, error) {
	if strings.TrimSpace(identifier) == "" || password == "" {
		return nil, ErrMissingCredentials
	}

	m.logger.Debug().Str("identifier", identifier).Msg("Authenticating")
	resp, err := m.remote.CreateSession(ctx, identifier, password)
	if err != nil {
		m.logger.Error().Err(err).Str("identifier", identifier).Msg("Authentication failed")
		return nil, asAuthError("authentication failed", err)
	}
	if !resp.Complete() {
		return nil, ErrIncompleteSession
	}

	session := newSession(resp, m.nowTime())
	m.lock.Lock()
	m.session = session
	m.lock.Unlock()

	m.logger.Info().Str("handle", session.Handle).Str("did", session.DID).Msg("Authenticated")
	copied := *session
	return &copied, nil
}

// CurrentSession returns a copy of the current session, or nil when there is none.
func (m *Manager) CurrentSession() *Session {
	current := m.current()
	if current == nil {
		return nil
	}
	copied := *current
	return &copied
}

// ClearSession discards the current session.
func (m *Manager) ClearSession() {
	m.lock.Lock()
	m.session = nil
	m.lock.Unlock()
	m.logger.Debug().Msg("Session cleared")
}

// IsFresh reports whether there is a session young enough to be used without a refresh.
func (m *Manager) IsFresh() bool {
	current := m.current()
	return current != nil && m.fresh(current)
}

// AccessToken returns a usable access token, refreshing the session first when it is
// stale and automatic refresh is enabled. Concurrent callers that find the session
// stale share a single refresh.
func (m *Manager) AccessToken(ctx context.Context) (string, error) {
	session, err := m.usableSession(ctx)
	if err != nil {
		return "", err
	}
	return session.AccessToken, nil
}

func (m *Manager) usableSession(ctx context.Context) (*Session, error) {
	current := m.current()
	if current == nil {
		return nil, ErrNotAuthenticated
	}
	if m.fresh(current) {
		return current, nil
	}
	if !m.cfg.GetAutoRefreshTokens() {
		return nil, ErrSessionExpired
	}
	return m.refresh(ctx)
}

func (m *Manager) refresh(ctx context.Context) (*Session, error) {
	if err := m.refreshGate.Acquire(ctx, 1); err != nil {
		return nil, errors.Wrap(err, "[Manager.AccessToken] waiting for session refresh")
	}
	defer m.refreshGate.Release(1)

	// Another caller may have refreshed, cleared or replaced the session while this one waited.
	stale := m.current()
	if stale == nil {
		return nil, ErrNotAuthenticated
	}
	if m.fresh(stale) {
		m.metrics.ObserveRefresh(metrics.RefreshSkipped)
		return stale, nil
	}

	m.logger.Debug().Str("handle", stale.Handle).Dur("age", stale.Age(m.nowTime())).Msg("Refreshing session")
	resp, err := m.remote.RefreshSession(ctx, stale.RefreshToken)
	if err == nil && !resp.Complete() {
		err = ErrIncompleteSession
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.Wrap(ctx.Err(), "[Manager.AccessToken] session refresh cancelled")
		}
		m.metrics.ObserveRefresh(metrics.RefreshFailed)
		if !m.clearIfCurrent(stale) {
			if current := m.current(); current != nil && m.fresh(current) {
				m.logger.Debug().Err(err).Msg("Session changed during failed refresh, using the new session")
				return current, nil
			}
		}
		m.logger.Error().Err(err).Str("handle", stale.Handle).Msg("Session refresh failed, clearing session")
		return nil, asAuthError("session refresh failed", err)
	}

	refreshed := newSession(resp, m.nowTime())
	if !m.replaceIfCurrent(stale, refreshed) {
		m.logger.Debug().Msg("Session changed during refresh, discarding refreshed tokens")
		current := m.current()
		if current == nil {
			return nil, ErrNotAuthenticated
		}
		return current, nil
	}

	m.metrics.ObserveRefresh(metrics.RefreshSucceeded)
	m.logger.Info().Str("handle", refreshed.Handle).Msg("Session refreshed")
	return refreshed, nil
}

func (m *Manager) current() *Session {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.session
}

func (m *Manager) fresh(s *Session) bool {
	return s.Age(m.nowTime()) < m.cfg.GetTokenFreshness()
}

func (m *Manager) replaceIfCurrent(old, replacement *Session) bool {
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.session != old {
		return false
	}
	m.session = replacement
	return true
}

func (m *Manager) clearIfCurrent(old *Session) bool {
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.session != old {
		return false
	}
	m.session = nil
	return true
}

func asAuthError(message string, err error) error {
	if xrpc.IsAuth(err) {
		return err
	}
	return xrpc.NewAuthError(message, err)
}
