package goSession

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, client
}

type fakeUser struct {
	id       string
	password string
	name     string
}

// fakeAuthority implements Transport with the authority's observable
// behavior: credential checks, per-session token issuance, passwordless
// confirmation polling, and bearer-authenticated user hydration.
type fakeAuthority struct {
	mu sync.Mutex

	users    map[string]fakeUser // email -> account
	sessions map[string]string   // sessionID -> email
	tokens   map[string]string   // issued token -> email
	issued   int

	refreshCalls map[string]int
	signOutPosts []string

	refreshDelay time.Duration
	refreshErr   error
	verifyErr    error

	pendingEmail string
	awaitPolls   int
	pollCount    int

	flags Flags
}

func newFakeAuthority() *fakeAuthority {
	return &fakeAuthority{
		users:        make(map[string]fakeUser),
		sessions:     make(map[string]string),
		tokens:       make(map[string]string),
		refreshCalls: make(map[string]int),
	}
}

func (f *fakeAuthority) addUser(email, password, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[email] = fakeUser{
		id:       "user-" + email,
		password: password,
		name:     name,
	}
}

func (f *fakeAuthority) refreshCount(sessionID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshCalls[sessionID]
}

func (f *fakeAuthority) setRefreshDelay(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshDelay = d
}

func (f *fakeAuthority) setRefreshErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshErr = err
}

func (f *fakeAuthority) setVerifyErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verifyErr = err
}

func (f *fakeAuthority) issue(sessionID string, out any) error {
	f.issued++
	token := fmt.Sprintf("tok-%d", f.issued)
	f.tokens[token] = f.sessions[sessionID]

	expireAt := time.Now().Add(30 * 24 * time.Hour).UTC()
	if data, ok := out.(*SessionData); ok {
		*data = SessionData{
			SessionID: sessionID,
			Token:     token,
			ExpireAt:  &expireAt,
		}
	}
	return nil
}

func (f *fakeAuthority) Get(ctx context.Context, path string, opts CallOptions, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch path {
	case epCurrentUser:
		token := strings.TrimPrefix(opts.Headers["Authorization"], "Bearer ")
		email, ok := f.tokens[token]
		if !ok {
			return &RequestError{Kind: KindUnauthorized, Status: 401, Message: "invalid token"}
		}
		u := f.users[email]
		*out.(*User) = User{ID: u.id, Email: email, Name: u.name, Verified: true}
		return nil
	case epFlags:
		*out.(*Flags) = f.flags
		return nil
	}
	return &RequestError{Kind: KindNotFound, Status: 404, Message: "no such endpoint"}
}

func (f *fakeAuthority) Post(ctx context.Context, path string, body any, _ CallOptions, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	parts := strings.Split(path, "/")
	if len(parts) == 4 && parts[1] == "sessions" && parts[3] == "token" {
		return f.refreshToken(ctx, parts[2], out)
	}
	if len(parts) >= 4 && parts[1] == "sessions" && (parts[3] == "sign-out" || parts[3] == "sign-out-all") {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.signOutPosts = append(f.signOutPosts, path)
		return nil
	}
	if len(parts) == 5 && parts[1] == "sessions" && parts[3] == "passwordless" {
		return f.verifyPasswordless(parts[2], out)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch path {
	case epSignIn:
		req := body.(credentialsRequest)
		u, ok := f.users[req.Email]
		if !ok || u.password != req.Password {
			return &RequestError{Kind: KindUnauthorized, Status: 401, Code: CodeInvalidPassword, Message: "invalid credentials"}
		}
		f.sessions[req.SessionID] = req.Email
		return f.issue(req.SessionID, out)
	case epSignUp:
		req := body.(credentialsRequest)
		if _, ok := f.users[req.Email]; ok {
			return &RequestError{Kind: KindBadRequest, Status: 400, Code: CodeDuplicateUser, Message: "duplicate user"}
		}
		f.users[req.Email] = fakeUser{id: "user-" + req.Email, password: req.Password, name: req.Name}
		f.sessions[req.SessionID] = req.Email
		return f.issue(req.SessionID, out)
	case epPasswordlessRequest:
		req := body.(passwordlessRequestBody)
		f.pendingEmail = req.Email
		f.pollCount = 0
		*out.(*passwordlessConfirmation) = passwordlessConfirmation{ConfirmationID: "conf-1"}
		return nil
	case epPasswordReset, epPasswordResetSet, epPasswordResetVerify, epEmailVerify:
		return nil
	}
	return &RequestError{Kind: KindNotFound, Status: 404, Message: "no such endpoint"}
}

func (f *fakeAuthority) refreshToken(ctx context.Context, sessionID string, out any) error {
	f.mu.Lock()
	f.refreshCalls[sessionID]++
	delay := f.refreshDelay
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.refreshErr != nil {
		return f.refreshErr
	}
	if _, ok := f.sessions[sessionID]; !ok {
		return &RequestError{Kind: KindUnauthorized, Status: 401, Message: "unknown session"}
	}
	return f.issue(sessionID, out)
}

func (f *fakeAuthority) verifyPasswordless(sessionID string, out any) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.pollCount++
	if f.verifyErr != nil {
		return f.verifyErr
	}
	if f.pollCount <= f.awaitPolls {
		return &RequestError{Kind: KindBadRequest, Status: 400, Code: CodeAwaitConfirmation, Message: "awaiting confirmation"}
	}
	if _, ok := f.users[f.pendingEmail]; !ok {
		f.users[f.pendingEmail] = fakeUser{id: "user-" + f.pendingEmail}
	}
	f.sessions[sessionID] = f.pendingEmail
	return f.issue(sessionID, out)
}

func clientTestConfig() Config {
	cfg := DefaultConfig()
	cfg.Passwordless.PollInterval = 20 * time.Millisecond
	return cfg
}

func newTestClient(t *testing.T, auth *fakeAuthority) (*Client, *miniredis.Miniredis, func()) {
	t.Helper()

	mr, rdb := newTestRedis(t)
	client, err := New().
		WithConfig(clientTestConfig()).
		WithRedis(rdb).
		WithTransport(auth).
		Build(context.Background())
	if err != nil {
		mr.Close()
		t.Fatalf("Build failed: %v", err)
	}

	return client, mr, func() {
		client.Close()
		mr.Close()
	}
}

func keyBlobCount(mr *miniredis.Miniredis) int {
	count := 0
	for _, key := range mr.Keys() {
		if strings.HasPrefix(key, "gs:kp:") {
			count++
		}
	}
	return count
}

func TestSignInActivatesSession(t *testing.T) {
	auth := newFakeAuthority()
	auth.addUser("alice@example.com", "correct-password-123", "Alice")
	client, mr, done := newTestClient(t, auth)
	defer done()

	entry, err := client.SignIn(context.Background(), "alice@example.com", "correct-password-123")
	if err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}
	if entry.User == nil || entry.User.Email != "alice@example.com" {
		t.Fatalf("expected hydrated user, got %+v", entry.User)
	}
	if entry.ExpireAt == nil {
		t.Fatal("expected session expiry to be set")
	}

	active := client.Current()
	if active == nil || active.ID != entry.ID {
		t.Fatalf("expected session %s active, got %+v", entry.ID, active)
	}
	if keyBlobCount(mr) != 1 {
		t.Fatalf("expected exactly one key blob, got %d", keyBlobCount(mr))
	}
}

func TestSignInRollbackLeavesNoState(t *testing.T) {
	auth := newFakeAuthority()
	auth.addUser("alice@example.com", "correct-password-123", "Alice")
	client, mr, done := newTestClient(t, auth)
	defer done()

	_, err := client.SignIn(context.Background(), "alice@example.com", "wrong-password")
	if err == nil {
		t.Fatal("expected sign-in to fail")
	}
	if !IsKind(err, KindUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}

	if got := len(client.Sessions()); got != 0 {
		t.Fatalf("expected empty registry after rollback, got %d entries", got)
	}
	if keyBlobCount(mr) != 0 {
		t.Fatalf("expected no key blobs after rollback, got %d", keyBlobCount(mr))
	}
	if client.Current() != nil {
		t.Fatal("expected no active session after rollback")
	}
}

func TestSignUpDuplicateClassified(t *testing.T) {
	auth := newFakeAuthority()
	auth.addUser("alice@example.com", "correct-password-123", "Alice")
	client, _, done := newTestClient(t, auth)
	defer done()

	_, err := client.SignUp(context.Background(), "alice@example.com", "another-password-1", "Alice")
	if err == nil {
		t.Fatal("expected duplicate sign-up to fail")
	}

	reqErr, ok := AsRequestError(err)
	if !ok {
		t.Fatalf("expected RequestError, got %T", err)
	}
	if reqErr.Code != CodeDuplicateUser {
		t.Fatalf("expected code %q, got %q", CodeDuplicateUser, reqErr.Code)
	}
}

func TestDedupOnAuthPreservesOtherAccounts(t *testing.T) {
	auth := newFakeAuthority()
	auth.addUser("alice@example.com", "correct-password-123", "Alice")
	auth.addUser("bob@example.com", "correct-password-456", "Bob")
	client, _, done := newTestClient(t, auth)
	defer done()

	ctx := context.Background()

	first, err := client.SignIn(ctx, "alice@example.com", "correct-password-123")
	if err != nil {
		t.Fatalf("first sign-in failed: %v", err)
	}
	bob, err := client.SignIn(ctx, "bob@example.com", "correct-password-456")
	if err != nil {
		t.Fatalf("bob sign-in failed: %v", err)
	}
	second, err := client.SignIn(ctx, "alice@example.com", "correct-password-123")
	if err != nil {
		t.Fatalf("second alice sign-in failed: %v", err)
	}

	ids := make(map[string]bool)
	for _, s := range client.Sessions() {
		ids[s.ID] = true
	}

	if ids[first.ID] {
		t.Fatal("expected first alice session to be garbage-collected")
	}
	if !ids[second.ID] {
		t.Fatal("expected second alice session to remain")
	}
	if !ids[bob.ID] {
		t.Fatal("expected bob session to be preserved")
	}
	if len(ids) != 2 {
		t.Fatalf("expected exactly 2 sessions, got %d", len(ids))
	}
}

func TestSignOutAllClearsKeysAndPointer(t *testing.T) {
	auth := newFakeAuthority()
	auth.addUser("alice@example.com", "correct-password-123", "Alice")
	auth.addUser("bob@example.com", "correct-password-456", "Bob")
	client, mr, done := newTestClient(t, auth)
	defer done()

	ctx := context.Background()

	if _, err := client.SignIn(ctx, "alice@example.com", "correct-password-123"); err != nil {
		t.Fatalf("alice sign-in failed: %v", err)
	}
	if _, err := client.SignIn(ctx, "bob@example.com", "correct-password-456"); err != nil {
		t.Fatalf("bob sign-in failed: %v", err)
	}

	if err := client.SignOutAll(ctx); err != nil {
		t.Fatalf("SignOutAll failed: %v", err)
	}

	if got := len(client.Sessions()); got != 0 {
		t.Fatalf("expected empty registry, got %d entries", got)
	}
	if keyBlobCount(mr) != 0 {
		t.Fatalf("expected no key blobs, got %d", keyBlobCount(mr))
	}
	if client.Current() != nil {
		t.Fatal("expected no active session")
	}

	active, err := client.Store().GetActive(ctx)
	if err != nil {
		t.Fatalf("GetActive failed: %v", err)
	}
	if active != "" {
		t.Fatalf("expected empty active pointer, got %q", active)
	}
}

func TestSignOutPromotesRemainingSession(t *testing.T) {
	auth := newFakeAuthority()
	auth.addUser("alice@example.com", "correct-password-123", "Alice")
	auth.addUser("bob@example.com", "correct-password-456", "Bob")
	client, _, done := newTestClient(t, auth)
	defer done()

	ctx := context.Background()

	alice, err := client.SignIn(ctx, "alice@example.com", "correct-password-123")
	if err != nil {
		t.Fatalf("alice sign-in failed: %v", err)
	}
	bob, err := client.SignIn(ctx, "bob@example.com", "correct-password-456")
	if err != nil {
		t.Fatalf("bob sign-in failed: %v", err)
	}

	// bob is active after the second sign-in; sign him out.
	if err := client.SignOut(ctx, bob.ID); err != nil {
		t.Fatalf("SignOut failed: %v", err)
	}

	active := client.Current()
	if active == nil || active.ID != alice.ID {
		t.Fatalf("expected alice promoted to active, got %+v", active)
	}
}

func TestCrossInstanceSessionVisibility(t *testing.T) {
	auth := newFakeAuthority()
	auth.addUser("alice@example.com", "correct-password-123", "Alice")

	mr, rdb1 := newTestRedis(t)
	defer mr.Close()
	rdb2 := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	ctx := context.Background()

	client1, err := New().WithConfig(clientTestConfig()).WithRedis(rdb1).WithTransport(auth).Build(ctx)
	if err != nil {
		t.Fatalf("Build client1 failed: %v", err)
	}
	defer client1.Close()

	client2, err := New().WithConfig(clientTestConfig()).WithRedis(rdb2).WithTransport(auth).Build(ctx)
	if err != nil {
		t.Fatalf("Build client2 failed: %v", err)
	}
	defer client2.Close()

	events := make(chan SessionEvent, 16)
	unsubscribe := client2.Subscribe(func(ev SessionEvent) {
		events <- ev
	})
	defer unsubscribe()

	entry, err := client1.SignIn(ctx, "alice@example.com", "correct-password-123")
	if err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case <-events:
			if other := client2.Current(entry.ID); other != nil && other.Authenticated() {
				if other.User.Email != "alice@example.com" {
					t.Fatalf("unexpected user %+v", other.User)
				}
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for cross-instance session visibility")
		}
	}
}

func TestClientNotReadyAfterClose(t *testing.T) {
	auth := newFakeAuthority()
	client, _, done := newTestClient(t, auth)
	defer done()

	client.Close()

	if _, err := client.SignIn(context.Background(), "a@example.com", "pw"); !errors.Is(err, ErrClientNotReady) {
		t.Fatalf("expected ErrClientNotReady, got %v", err)
	}
	if _, err := client.GetToken(context.Background()); !errors.Is(err, ErrClientNotReady) {
		t.Fatalf("expected ErrClientNotReady, got %v", err)
	}
}

func TestFlagsFetch(t *testing.T) {
	auth := newFakeAuthority()
	auth.flags = Flags{SignUpDisabled: true, PasswordResetEnabled: true}
	client, _, done := newTestClient(t, auth)
	defer done()

	flags, err := client.Flags(context.Background())
	if err != nil {
		t.Fatalf("Flags failed: %v", err)
	}
	if !flags.SignUpDisabled || !flags.PasswordResetEnabled || flags.PasswordlessDisabled {
		t.Fatalf("unexpected flags %+v", flags)
	}
}
