package keys

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

type memStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{blobs: make(map[string][]byte)}
}

func (s *memStore) SaveKeyBlob(_ context.Context, sessionID string, blob []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[sessionID] = blob
	return nil
}

func (s *memStore) LoadKeyBlob(_ context.Context, sessionID string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	blob, ok := s.blobs[sessionID]
	if !ok {
		return nil, errors.New("not found")
	}
	return blob, nil
}

func (s *memStore) DeleteKeyBlob(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, sessionID)
	return nil
}

func newTestManager(t *testing.T, alg Algorithm) (*Manager, *memStore) {
	t.Helper()

	store := newMemStore()
	m, err := NewManager(store, Config{Algorithm: alg})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	return m, store
}

func TestSignVerifyRoundTrip(t *testing.T) {
	for _, alg := range []Algorithm{AlgES256, AlgRS256} {
		t.Run(string(alg), func(t *testing.T) {
			m, _ := newTestManager(t, alg)
			ctx := context.Background()

			kp, err := m.Create(ctx, "sess-1", false)
			if err != nil {
				t.Fatalf("Create failed: %v", err)
			}
			publicPEM, err := m.ExportPublicKey(kp)
			if err != nil {
				t.Fatalf("ExportPublicKey failed: %v", err)
			}

			assertion, err := m.Sign(ctx, "sess-1", map[string]any{
				"exp": time.Now().Add(5 * time.Minute).Unix(),
			})
			if err != nil {
				t.Fatalf("Sign failed: %v", err)
			}

			claims, err := VerifyAssertion(assertion, publicPEM)
			if err != nil {
				t.Fatalf("VerifyAssertion failed: %v", err)
			}
			if jti, _ := claims["jti"].(string); jti == "" {
				t.Fatal("expected a jti nonce in the claims")
			}
		})
	}
}

func TestTamperedAssertionRejected(t *testing.T) {
	m, _ := newTestManager(t, AlgES256)
	ctx := context.Background()

	kp, err := m.Create(ctx, "sess-1", false)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	publicPEM, err := m.ExportPublicKey(kp)
	if err != nil {
		t.Fatalf("ExportPublicKey failed: %v", err)
	}

	assertion, err := m.Sign(ctx, "sess-1", map[string]any{
		"exp": time.Now().Add(5 * time.Minute).Unix(),
	})
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}

	parts := strings.Split(assertion, ".")
	if len(parts) != 3 {
		t.Fatalf("expected compact JWS, got %d parts", len(parts))
	}

	// Flip one byte of the claims segment.
	payload := []byte(parts[1])
	if payload[0] == 'A' {
		payload[0] = 'B'
	} else {
		payload[0] = 'A'
	}
	tampered := parts[0] + "." + string(payload) + "." + parts[2]

	if _, err := VerifyAssertion(tampered, publicPEM); err == nil {
		t.Fatal("expected tampered assertion to be rejected")
	}
}

func TestSignWithoutKeysFails(t *testing.T) {
	m, _ := newTestManager(t, AlgES256)

	_, err := m.Sign(context.Background(), "missing", map[string]any{"exp": 0})
	if !errors.Is(err, ErrKeysNotFound) {
		t.Fatalf("expected ErrKeysNotFound, got %v", err)
	}
}

func TestFreshNoncePerAssertion(t *testing.T) {
	m, _ := newTestManager(t, AlgES256)
	ctx := context.Background()

	kp, err := m.Create(ctx, "sess-1", false)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	publicPEM, err := m.ExportPublicKey(kp)
	if err != nil {
		t.Fatalf("ExportPublicKey failed: %v", err)
	}

	claims := map[string]any{"exp": time.Now().Add(time.Minute).Unix()}

	first, err := m.Sign(ctx, "sess-1", claims)
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	second, err := m.Sign(ctx, "sess-1", claims)
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}

	c1, err := VerifyAssertion(first, publicPEM)
	if err != nil {
		t.Fatalf("VerifyAssertion failed: %v", err)
	}
	c2, err := VerifyAssertion(second, publicPEM)
	if err != nil {
		t.Fatalf("VerifyAssertion failed: %v", err)
	}
	if c1["jti"] == c2["jti"] {
		t.Fatal("expected a fresh jti per assertion")
	}
}

func TestExtractableControlsPrivateExport(t *testing.T) {
	m, _ := newTestManager(t, AlgES256)
	ctx := context.Background()

	locked, err := m.Create(ctx, "locked", false)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := locked.PrivatePEM(); !errors.Is(err, ErrNotExtractable) {
		t.Fatalf("expected ErrNotExtractable, got %v", err)
	}

	open, err := m.Create(ctx, "open", true)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	pem, err := open.PrivatePEM()
	if err != nil {
		t.Fatalf("PrivatePEM failed: %v", err)
	}
	if !strings.Contains(string(pem), "PRIVATE KEY") {
		t.Fatal("expected PEM-encoded private key")
	}

	// Loading never re-grants extraction.
	reloaded, err := m.Load(ctx, "open")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if _, err := reloaded.PrivatePEM(); !errors.Is(err, ErrNotExtractable) {
		t.Fatalf("expected ErrNotExtractable on reload, got %v", err)
	}
}

func TestDeleteRemovesKeys(t *testing.T) {
	m, store := newTestManager(t, AlgES256)
	ctx := context.Background()

	if _, err := m.Create(ctx, "sess-1", false); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := m.Delete(ctx, "sess-1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, ok := store.blobs["sess-1"]; ok {
		t.Fatal("expected key blob removed")
	}
	if _, err := m.Load(ctx, "sess-1"); !errors.Is(err, ErrKeysNotFound) {
		t.Fatalf("expected ErrKeysNotFound, got %v", err)
	}
}

func TestManagerConfigValidation(t *testing.T) {
	if _, err := NewManager(nil, Config{}); err == nil {
		t.Fatal("expected error for nil store")
	}
	if _, err := NewManager(newMemStore(), Config{Algorithm: "none"}); err == nil {
		t.Fatal("expected error for unknown algorithm")
	}
	if _, err := NewManager(newMemStore(), Config{Algorithm: AlgRS256, RSABits: 1024}); err == nil {
		t.Fatal("expected error for weak rsa size")
	}
}
