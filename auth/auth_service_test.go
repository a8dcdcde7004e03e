package auth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jrsteele09/go-bsky-client/atproto"
	"github.com/jrsteele09/go-bsky-client/auth"
	"github.com/jrsteele09/go-bsky-client/config"
	"github.com/jrsteele09/go-bsky-client/xrpc"
	"github.com/stretchr/testify/require"
)

const (
	testIdentifier = "alice.bsky.social"
	testPassword   = "app-password-1234"
	testDID        = "did:plc:alice"
	testAccess     = "access-jwt-1"
	testRefresh    = "refresh-jwt-1"
)

// testFixture is an auth service backed by an httptest server whose handler can be
// set per test.
type testFixture struct {
	service *auth.Service
	handler http.HandlerFunc
	hits    atomic.Int32
}

func newTestFixture(t *testing.T, handler http.HandlerFunc) *testFixture {
	t.Helper()
	f := &testFixture{handler: handler}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.hits.Add(1)
		if f.handler != nil {
			f.handler(w, r)
		}
	}))
	t.Cleanup(server.Close)

	opts := config.Default()
	opts.BaseURL = server.URL
	opts.RetryInitialDelay = time.Millisecond
	opts.RetryMaxDelay = time.Millisecond
	client, err := xrpc.New(opts)
	require.NoError(t, err)

	f.service, err = auth.NewService(client)
	require.NoError(t, err)
	return f
}

func writeSession(t *testing.T, w http.ResponseWriter, resp atproto.SessionResponse) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(resp))
}

func TestNewService_RequiresCaller(t *testing.T) {
	_, err := auth.NewService(nil)
	require.EqualError(t, err, "[auth.NewService] caller is required")
}

func TestCreateSession_Success(t *testing.T) {
	f := newTestFixture(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/xrpc/"+atproto.CreateSessionNSID, r.URL.Path)
		require.Empty(t, r.Header.Get("Authorization"))

		var req atproto.CreateSessionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, testIdentifier, req.Identifier)
		require.Equal(t, testPassword, req.Password)

		writeSession(t, w, atproto.SessionResponse{AccessJwt: testAccess, RefreshJwt: testRefresh, Did: testDID, Handle: testIdentifier})
	})

	resp, err := f.service.CreateSession(context.Background(), testIdentifier, testPassword)

	require.NoError(t, err)
	require.Equal(t, testAccess, resp.AccessJwt)
	require.Equal(t, testRefresh, resp.RefreshJwt)
	require.Equal(t, testDID, resp.Did)
	require.Equal(t, testIdentifier, resp.Handle)
}

func TestCreateSession_MissingCredentials(t *testing.T) {
	f := newTestFixture(t, nil)

	_, err := f.service.CreateSession(context.Background(), "  ", testPassword)
	require.ErrorIs(t, err, auth.ErrMissingCredentials)

	_, err = f.service.CreateSession(context.Background(), testIdentifier, "")
	require.ErrorIs(t, err, auth.ErrMissingCredentials)
	require.True(t, xrpc.IsAuth(err))
	require.Zero(t, f.hits.Load())
}

func TestCreateSession_Rejected(t *testing.T) {
	f := newTestFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"AuthenticationRequired","message":"Invalid identifier or password"}`))
	})

	_, err := f.service.CreateSession(context.Background(), testIdentifier, "wrong")

	var xerr *xrpc.Error
	require.ErrorAs(t, err, &xerr)
	require.Equal(t, xrpc.KindAuth, xerr.Kind)
	require.Equal(t, "AuthenticationRequired", xerr.ErrorCode)
	require.EqualValues(t, 1, f.hits.Load())
}

func TestCreateSession_BadRequestIsAuthError(t *testing.T) {
	f := newTestFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"InvalidRequest","message":"Input/identifier must be a string"}`))
	})

	_, err := f.service.CreateSession(context.Background(), testIdentifier, testPassword)

	require.True(t, xrpc.IsAuth(err))
}

func TestCreateSession_ServerErrorKeepsKind(t *testing.T) {
	f := newTestFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := f.service.CreateSession(context.Background(), testIdentifier, testPassword)

	kind, ok := xrpc.KindOf(err)
	require.True(t, ok)
	require.Equal(t, xrpc.KindAPI, kind)
}

func TestCreateSession_IncompleteResponse(t *testing.T) {
	f := newTestFixture(t, func(w http.ResponseWriter, r *http.Request) {
		writeSession(t, w, atproto.SessionResponse{AccessJwt: testAccess, Did: testDID, Handle: testIdentifier})
	})

	_, err := f.service.CreateSession(context.Background(), testIdentifier, testPassword)

	require.ErrorIs(t, err, auth.ErrIncompleteSession)
}

func TestRefreshSession_SendsRefreshTokenAsBearer(t *testing.T) {
	f := newTestFixture(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/xrpc/"+atproto.RefreshSessionNSID, r.URL.Path)
		require.Equal(t, "Bearer "+testRefresh, r.Header.Get("Authorization"))

		var req atproto.RefreshSessionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, testRefresh, req.RefreshJwt)

		writeSession(t, w, atproto.SessionResponse{AccessJwt: "access-jwt-2", RefreshJwt: "refresh-jwt-2", Did: testDID, Handle: testIdentifier})
	})

	resp, err := f.service.RefreshSession(context.Background(), testRefresh)

	require.NoError(t, err)
	require.Equal(t, "access-jwt-2", resp.AccessJwt)
	require.Equal(t, "refresh-jwt-2", resp.RefreshJwt)
}

func TestRefreshSession_ExpiredRefreshToken(t *testing.T) {
	f := newTestFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"ExpiredToken","message":"Token has expired"}`))
	})

	_, err := f.service.RefreshSession(context.Background(), testRefresh)

	var xerr *xrpc.Error
	require.ErrorAs(t, err, &xerr)
	require.Equal(t, xrpc.KindAuth, xerr.Kind)
	require.Equal(t, "ExpiredToken", xerr.ErrorCode)
}

func TestRefreshSession_RequiresToken(t *testing.T) {
	f := newTestFixture(t, nil)

	_, err := f.service.RefreshSession(context.Background(), "")

	require.ErrorIs(t, err, auth.ErrMissingRefreshToken)
	require.Zero(t, f.hits.Load())
}
