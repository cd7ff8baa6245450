package goSession

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// refreshFunc obtains a fresh access token for a session from the authority.
type refreshFunc func(ctx context.Context, sessionID string) (string, error)

// tokenCache holds per-session access tokens and coalesces concurrent
// refreshes. A cached token is served only while no refresh for that session
// is in flight; callers arriving mid-refresh join the in-flight call and
// receive its result instead of the stale cached value.
type tokenCache struct {
	mu       sync.Mutex
	tokens   map[string]string
	inflight map[string]int
	group    singleflight.Group
}

func newTokenCache() *tokenCache {
	return &tokenCache{
		tokens:   make(map[string]string),
		inflight: make(map[string]int),
	}
}

// get returns the cached token for the session, or drives a refresh when
// nothing is cached or a refresh is already in flight. The second return
// reports whether the caller was coalesced onto another caller's refresh.
func (tc *tokenCache) get(ctx context.Context, sessionID string, refresh refreshFunc) (string, bool, error) {
	tc.mu.Lock()
	if tc.inflight[sessionID] == 0 {
		if token, ok := tc.tokens[sessionID]; ok {
			tc.mu.Unlock()
			return token, false, nil
		}
	}
	tc.mu.Unlock()

	return tc.force(ctx, sessionID, refresh)
}

// force always drives a refresh, joining one already in flight for the same
// session rather than starting a second.
func (tc *tokenCache) force(ctx context.Context, sessionID string, refresh refreshFunc) (string, bool, error) {
	v, err, shared := tc.group.Do(sessionID, func() (any, error) {
		tc.mu.Lock()
		tc.inflight[sessionID]++
		tc.mu.Unlock()
		defer func() {
			tc.mu.Lock()
			tc.inflight[sessionID]--
			if tc.inflight[sessionID] <= 0 {
				delete(tc.inflight, sessionID)
			}
			tc.mu.Unlock()
		}()

		token, err := refresh(ctx, sessionID)
		if err != nil {
			return "", err
		}

		tc.mu.Lock()
		tc.tokens[sessionID] = token
		tc.mu.Unlock()
		return token, nil
	})
	if err != nil {
		return "", shared, err
	}
	return v.(string), shared, nil
}

// set primes the cache with a token obtained out of band, e.g. from a
// sign-in response.
func (tc *tokenCache) set(sessionID, token string) {
	tc.mu.Lock()
	tc.tokens[sessionID] = token
	tc.mu.Unlock()
}

// invalidate drops the cached token so the next get refreshes.
func (tc *tokenCache) invalidate(sessionID string) {
	tc.mu.Lock()
	delete(tc.tokens, sessionID)
	tc.mu.Unlock()
}

// remove drops all cached state for the session.
func (tc *tokenCache) remove(sessionID string) {
	tc.mu.Lock()
	delete(tc.tokens, sessionID)
	tc.mu.Unlock()
	tc.group.Forget(sessionID)
}

// peek returns the cached token without triggering a refresh.
func (tc *tokenCache) peek(sessionID string) (string, bool) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	token, ok := tc.tokens[sessionID]
	return token, ok
}
