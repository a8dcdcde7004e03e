package sessions_test

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/go-bsky-client/atproto"
	"github.com/jrsteele09/go-bsky-client/config"
	"github.com/jrsteele09/go-bsky-client/metrics"
	"github.com/jrsteele09/go-bsky-client/sessions"
	"github.com/jrsteele09/go-bsky-client/sessions/remotefake"
	"github.com/jrsteele09/go-bsky-client/xrpc"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

const (
	testIdentifier = "user.bsky.app"
	testPassword   = "app-password"
	testDID        = "did:plc:x"
)

var (
	firstPair  = &atproto.SessionResponse{AccessJwt: "A1", RefreshJwt: "R1", Did: testDID, Handle: testIdentifier}
	secondPair = &atproto.SessionResponse{AccessJwt: "A2", RefreshJwt: "R2", Did: testDID, Handle: testIdentifier}
)

// testClock is a settable time source shared with the manager under test.
type testClock struct {
	lock sync.Mutex
	now  time.Time
}

func (c *testClock) Now() time.Time {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.now = c.now.Add(d)
}

type testFixture struct {
	remote  *remotefake.FakeRemote
	clock   *testClock
	metrics *metrics.Collectors
	manager *sessions.Manager
}

func newTestFixture(t *testing.T, autoRefresh bool) *testFixture {
	t.Helper()
	collectors, err := metrics.New(prometheus.NewRegistry())
	require.NoError(t, err)

	f := &testFixture{
		remote:  remotefake.NewFakeRemote(),
		clock:   &testClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)},
		metrics: collectors,
	}
	cfg := config.Session{AutoRefreshTokens: autoRefresh, TokenFreshness: config.DefaultTokenFreshness}
	f.manager, err = sessions.NewManager(f.remote, cfg,
		sessions.WithNowTime(f.clock.Now),
		sessions.WithMetrics(collectors),
	)
	require.NoError(t, err)
	return f
}

// authenticated returns a fixture holding the A1/R1 session.
func authenticated(t *testing.T, autoRefresh bool) *testFixture {
	t.Helper()
	f := newTestFixture(t, autoRefresh)
	f.remote.SetCreateResponse(firstPair, nil)
	_, err := f.manager.Authenticate(context.Background(), testIdentifier, testPassword)
	require.NoError(t, err)
	return f
}

func (f *testFixture) refreshes(result string) float64 {
	return testutil.ToFloat64(f.metrics.SessionRefreshes.WithLabelValues(result))
}

func TestNewManager_Validation(t *testing.T) {
	_, err := sessions.NewManager(nil, config.Session{})
	require.EqualError(t, err, "[sessions.NewManager] remote is required")

	_, err = sessions.NewManager(remotefake.NewFakeRemote(), nil)
	require.EqualError(t, err, "[sessions.NewManager] session config is required")
}

func TestAccessToken_BeforeAuthenticate(t *testing.T) {
	f := newTestFixture(t, true)

	_, err := f.manager.AccessToken(context.Background())

	require.ErrorIs(t, err, sessions.ErrNotAuthenticated)
	require.True(t, xrpc.IsAuth(err))
	require.Nil(t, f.manager.CurrentSession())
	require.False(t, f.manager.IsFresh())
}

func TestAuthenticate_StoresSession(t *testing.T) {
	f := authenticated(t, true)

	session := f.manager.CurrentSession()
	require.NotNil(t, session)
	require.Equal(t, "A1", session.AccessToken)
	require.Equal(t, "R1", session.RefreshToken)
	require.Equal(t, testDID, session.DID)
	require.Equal(t, testIdentifier, session.Handle)
	require.Equal(t, f.clock.Now(), session.IssuedAt)

	token, err := f.manager.AccessToken(context.Background())
	require.NoError(t, err)
	require.Equal(t, "A1", token)
	require.Zero(t, f.remote.RefreshCalls())
	require.Equal(t, 1, f.remote.CreateCalls())
}

func TestAuthenticate_MissingCredentials(t *testing.T) {
	f := newTestFixture(t, true)

	_, err := f.manager.Authenticate(context.Background(), "", testPassword)
	require.ErrorIs(t, err, sessions.ErrMissingCredentials)

	_, err = f.manager.Authenticate(context.Background(), testIdentifier, "")
	require.ErrorIs(t, err, sessions.ErrMissingCredentials)
	require.Zero(t, f.remote.CreateCalls())
}

func TestAuthenticate_FailureKeepsExistingSession(t *testing.T) {
	f := authenticated(t, true)
	cause := &xrpc.Error{Kind: xrpc.KindTransport, Message: "sending request", Err: errors.New("connection refused")}
	f.remote.SetCreateResponse(nil, cause)

	_, err := f.manager.Authenticate(context.Background(), "other.bsky.app", "pw")

	require.True(t, xrpc.IsAuth(err))
	require.ErrorIs(t, err, cause)
	session := f.manager.CurrentSession()
	require.NotNil(t, session)
	require.Equal(t, "A1", session.AccessToken)
}

func TestAuthenticate_IncompleteResponse(t *testing.T) {
	f := newTestFixture(t, true)
	f.remote.SetCreateResponse(&atproto.SessionResponse{AccessJwt: "A1", Did: testDID, Handle: testIdentifier}, nil)

	_, err := f.manager.Authenticate(context.Background(), testIdentifier, testPassword)

	require.ErrorIs(t, err, sessions.ErrIncompleteSession)
	require.Nil(t, f.manager.CurrentSession())
}

func TestCurrentSession_ReturnsCopy(t *testing.T) {
	f := authenticated(t, true)

	session := f.manager.CurrentSession()
	session.AccessToken = "tampered"

	require.Equal(t, "A1", f.manager.CurrentSession().AccessToken)
}

func TestAccessToken_FreshnessBoundary(t *testing.T) {
	f := authenticated(t, true)
	f.remote.SetRefreshResponse(secondPair, nil)

	f.clock.Advance(config.DefaultTokenFreshness - time.Second)
	require.True(t, f.manager.IsFresh())
	token, err := f.manager.AccessToken(context.Background())
	require.NoError(t, err)
	require.Equal(t, "A1", token)
	require.Zero(t, f.remote.RefreshCalls())

	f.clock.Advance(time.Second)
	require.False(t, f.manager.IsFresh())
}

func TestAccessToken_StaleWithoutAutoRefresh(t *testing.T) {
	f := authenticated(t, false)
	f.clock.Advance(51 * time.Minute)

	_, err := f.manager.AccessToken(context.Background())

	require.ErrorIs(t, err, sessions.ErrSessionExpired)
	require.True(t, xrpc.IsAuth(err))
	require.Zero(t, f.remote.RefreshCalls())
	require.NotNil(t, f.manager.CurrentSession())
}

func TestAccessToken_RefreshSucceeds(t *testing.T) {
	f := authenticated(t, true)
	f.remote.SetRefreshResponse(secondPair, nil)
	f.clock.Advance(51 * time.Minute)

	token, err := f.manager.AccessToken(context.Background())

	require.NoError(t, err)
	require.Equal(t, "A2", token)
	session := f.manager.CurrentSession()
	require.Equal(t, "A2", session.AccessToken)
	require.Equal(t, "R2", session.RefreshToken)
	require.Equal(t, f.clock.Now(), session.IssuedAt)
	require.Equal(t, []string{"R1"}, f.remote.RefreshTokens())
	require.Equal(t, 1.0, f.refreshes(metrics.RefreshSucceeded))
}

func TestAccessToken_RefreshFailureClearsSession(t *testing.T) {
	f := authenticated(t, true)
	f.remote.SetRefreshResponse(nil, &xrpc.Error{Kind: xrpc.KindAuth, StatusCode: http.StatusUnauthorized, ErrorCode: "ExpiredToken"})
	f.clock.Advance(51 * time.Minute)

	_, err := f.manager.AccessToken(context.Background())

	require.True(t, xrpc.IsAuth(err))
	require.Nil(t, f.manager.CurrentSession())
	require.Equal(t, 1.0, f.refreshes(metrics.RefreshFailed))

	_, err = f.manager.AccessToken(context.Background())
	require.ErrorIs(t, err, sessions.ErrNotAuthenticated)
	require.Equal(t, 1, f.remote.RefreshCalls())
}

func TestAccessToken_NonAuthRefreshFailureIsAuthError(t *testing.T) {
	f := authenticated(t, true)
	cause := &xrpc.Error{Kind: xrpc.KindAPI, StatusCode: http.StatusInternalServerError}
	f.remote.SetRefreshResponse(nil, cause)
	f.clock.Advance(time.Hour)

	_, err := f.manager.AccessToken(context.Background())

	require.True(t, xrpc.IsAuth(err))
	require.ErrorIs(t, err, cause)
	require.Nil(t, f.manager.CurrentSession())
}

func TestAccessToken_ConcurrentCallersShareOneRefresh(t *testing.T) {
	f := authenticated(t, true)
	f.remote.SetRefreshResponse(secondPair, nil)
	release := f.remote.BlockRefresh()
	f.clock.Advance(51 * time.Minute)

	const callers = 50
	tokens := make([]string, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens[i], errs[i] = f.manager.AccessToken(context.Background())
		}(i)
	}

	<-f.remote.RefreshStarted()
	release()
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, "A2", tokens[i])
	}
	require.Equal(t, 1, f.remote.RefreshCalls())
	require.Equal(t, 1.0, f.refreshes(metrics.RefreshSucceeded))
}

func TestAccessToken_CancelWhileWaitingForGate(t *testing.T) {
	f := authenticated(t, true)
	f.remote.SetRefreshResponse(secondPair, nil)
	release := f.remote.BlockRefresh()
	f.clock.Advance(51 * time.Minute)

	firstDone := make(chan error, 1)
	go func() {
		_, err := f.manager.AccessToken(context.Background())
		firstDone <- err
	}()
	<-f.remote.RefreshStarted()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.manager.AccessToken(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, "A1", f.manager.CurrentSession().AccessToken)

	release()
	require.NoError(t, <-firstDone)
	require.Equal(t, "A2", f.manager.CurrentSession().AccessToken)
	require.Equal(t, 1, f.remote.RefreshCalls())
}

func TestAccessToken_CancelDuringRefreshKeepsSessionAndReleasesGate(t *testing.T) {
	f := authenticated(t, true)
	f.remote.SetRefreshResponse(secondPair, nil)
	f.remote.BlockRefresh()
	f.clock.Advance(51 * time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := f.manager.AccessToken(ctx)
		done <- err
	}()
	<-f.remote.RefreshStarted()
	cancel()

	err := <-done
	require.ErrorIs(t, err, context.Canceled)
	session := f.manager.CurrentSession()
	require.NotNil(t, session)
	require.Equal(t, "A1", session.AccessToken)
	require.Zero(t, f.refreshes(metrics.RefreshFailed))

	// The gate was released: a new caller can refresh.
	f.remote.BlockRefresh()()
	token, err := f.manager.AccessToken(context.Background())
	require.NoError(t, err)
	require.Equal(t, "A2", token)
	require.Equal(t, 2, f.remote.RefreshCalls())
}

func TestAccessToken_ClearDuringRefreshWins(t *testing.T) {
	f := authenticated(t, true)
	f.remote.SetRefreshResponse(secondPair, nil)
	release := f.remote.BlockRefresh()
	f.clock.Advance(51 * time.Minute)

	done := make(chan error, 1)
	go func() {
		_, err := f.manager.AccessToken(context.Background())
		done <- err
	}()
	<-f.remote.RefreshStarted()
	f.manager.ClearSession()
	release()

	require.ErrorIs(t, <-done, sessions.ErrNotAuthenticated)
	require.Nil(t, f.manager.CurrentSession())
}

func TestAccessToken_AuthenticateDuringRefreshWins(t *testing.T) {
	f := authenticated(t, true)
	f.remote.SetRefreshResponse(secondPair, nil)
	release := f.remote.BlockRefresh()
	f.clock.Advance(51 * time.Minute)

	done := make(chan string, 1)
	go func() {
		token, err := f.manager.AccessToken(context.Background())
		if err != nil {
			token = err.Error()
		}
		done <- token
	}()
	<-f.remote.RefreshStarted()
	f.remote.SetCreateResponse(&atproto.SessionResponse{AccessJwt: "A3", RefreshJwt: "R3", Did: testDID, Handle: testIdentifier}, nil)
	_, err := f.manager.Authenticate(context.Background(), testIdentifier, testPassword)
	require.NoError(t, err)
	release()

	require.Equal(t, "A3", <-done)
	require.Equal(t, "A3", f.manager.CurrentSession().AccessToken)
}

func TestAccessToken_AuthenticateDuringFailedRefreshWins(t *testing.T) {
	f := authenticated(t, true)
	f.remote.SetRefreshResponse(nil, &xrpc.Error{Kind: xrpc.KindAuth, StatusCode: http.StatusUnauthorized, ErrorCode: "ExpiredToken"})
	release := f.remote.BlockRefresh()
	f.clock.Advance(51 * time.Minute)

	done := make(chan string, 1)
	go func() {
		token, err := f.manager.AccessToken(context.Background())
		if err != nil {
			token = err.Error()
		}
		done <- token
	}()
	<-f.remote.RefreshStarted()
	f.remote.SetCreateResponse(&atproto.SessionResponse{AccessJwt: "A3", RefreshJwt: "R3", Did: testDID, Handle: testIdentifier}, nil)
	_, err := f.manager.Authenticate(context.Background(), testIdentifier, testPassword)
	require.NoError(t, err)
	release()

	require.Equal(t, "A3", <-done)
	require.Equal(t, "A3", f.manager.CurrentSession().AccessToken)
	require.Equal(t, 1.0, f.refreshes(metrics.RefreshFailed))
}

func TestClearSession(t *testing.T) {
	f := authenticated(t, true)

	f.manager.ClearSession()

	require.Nil(t, f.manager.CurrentSession())
	_, err := f.manager.AccessToken(context.Background())
	require.ErrorIs(t, err, sessions.ErrNotAuthenticated)
}

func TestToken_OAuth2Shape(t *testing.T) {
	f := authenticated(t, true)

	token, err := f.manager.Token(context.Background())

	require.NoError(t, err)
	require.Equal(t, "A1", token.AccessToken)
	require.Equal(t, "Bearer", token.TokenType)
	require.Equal(t, f.clock.Now().Add(config.DefaultTokenFreshness), token.Expiry)

	fromSource, err := f.manager.TokenSource(context.Background()).Token()
	require.NoError(t, err)
	require.Equal(t, "A1", fromSource.AccessToken)
}
