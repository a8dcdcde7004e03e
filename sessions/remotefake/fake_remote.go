package remotefake

import (
	"context"
	"sync"

	"github.com/jrsteele09/go-bsky-client/atproto"
	"github.com/jrsteele09/go-bsky-client/sessions"
)

var _ sessions.Remote = (*FakeRemote)(nil)

// FakeRemote is an in-memory sessions.Remote. Responses and errors are configured per
// endpoint and every call is counted.
type FakeRemote struct {
	lock         sync.Mutex
	createResp   *atproto.SessionResponse
	createErr    error
	refreshResp  *atproto.SessionResponse
	refreshErr   error
	createCalls  int
	refreshCalls int
	refreshJwts  []string

	refreshStarted chan struct{}
	refreshRelease chan struct{}
}

func NewFakeRemote() *FakeRemote {
	return &FakeRemote{
		refreshStarted: make(chan struct{}, 1),
	}
}

func (f *FakeRemote) SetCreateResponse(resp *atproto.SessionResponse, err error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.createResp = resp
	f.createErr = err
}

func (f *FakeRemote) SetRefreshResponse(resp *atproto.SessionResponse, err error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.refreshResp = resp
	f.refreshErr = err
}

// BlockRefresh makes RefreshSession wait until the returned release function is
// called or the caller's context ends. RefreshStarted is signalled once a refresh
// is waiting.
func (f *FakeRemote) BlockRefresh() (release func()) {
	f.lock.Lock()
	defer f.lock.Unlock()
	ch := make(chan struct{})
	f.refreshRelease = ch
	var once sync.Once
	return func() {
		once.Do(func() { close(ch) })
	}
}

func (f *FakeRemote) RefreshStarted() <-chan struct{} {
	return f.refreshStarted
}

func (f *FakeRemote) CreateCalls() int {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.createCalls
}

func (f *FakeRemote) RefreshCalls() int {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.refreshCalls
}

// RefreshTokens returns the refresh tokens presented, in call order.
func (f *FakeRemote) RefreshTokens() []string {
	f.lock.Lock()
	defer f.lock.Unlock()
	return append([]string(nil), f.refreshJwts...)
}

func (f *FakeRemote) CreateSession(ctx context.Context, identifier, password string) (*atproto.SessionResponse, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.createCalls++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.createErr != nil {
		return nil, f.createErr
	}
	return copyResponse(f.createResp), nil
}

func (f *FakeRemote) RefreshSession(ctx context.Context, refreshJwt string) (*atproto.SessionResponse, error) {
	f.lock.Lock()
	f.refreshCalls++
	f.refreshJwts = append(f.refreshJwts, refreshJwt)
	release := f.refreshRelease
	f.lock.Unlock()

	if release != nil {
		select {
		case f.refreshStarted <- struct{}{}:
		default:
		}
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.lock.Lock()
	defer f.lock.Unlock()
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	return copyResponse(f.refreshResp), nil
}

func copyResponse(resp *atproto.SessionResponse) *atproto.SessionResponse {
	if resp == nil {
		return nil
	}
	copied := *resp
	return &copied
}
