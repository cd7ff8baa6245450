package keys

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrKeysNotFound is returned when no key pair is stored for a session id.
var ErrKeysNotFound = errors.New("keys not found for session")

// ErrNotExtractable is returned when the private half of a non-extractable
// key pair is requested.
var ErrNotExtractable = errors.New("private key is not extractable")

// Algorithm selects the signing algorithm for generated key pairs. The
// choice is uniform configuration, not platform sniffing: the strongest
// supported algorithm is the default.
type Algorithm string

const (
	// AlgES256 is an exported constant or variable used by the session engine.
	AlgES256 Algorithm = "es256"
	// AlgRS256 is an exported constant or variable used by the session engine.
	AlgRS256 Algorithm = "rs256"
)

// Store is the durable object store the manager persists key blobs into.
// It is satisfied by the session persistence layer.
type Store interface {
	SaveKeyBlob(ctx context.Context, sessionID string, blob []byte) error
	LoadKeyBlob(ctx context.Context, sessionID string) ([]byte, error)
	DeleteKeyBlob(ctx context.Context, sessionID string) error
}

// Config defines a public type used by goSession APIs.
//
// Config instances are intended to be configured during initialization and
// then treated as immutable unless documented otherwise.
type Config struct {
	Algorithm Algorithm
	RSABits   int
}

// KeyPair is the handle returned by [Manager.Create]. The private half stays
// inside the keystore; only the public half is exportable unless the pair
// was created extractable.
type KeyPair struct {
	SessionID   string
	extractable bool
	public      crypto.PublicKey
	privatePEM  []byte
}

// Public returns the public half of the pair.
func (kp *KeyPair) Public() crypto.PublicKey {
	return kp.public
}

// PrivatePEM returns the PEM-encoded private key for pairs created
// extractable, or [ErrNotExtractable].
func (kp *KeyPair) PrivatePEM() ([]byte, error) {
	if !kp.extractable {
		return nil, ErrNotExtractable
	}
	return kp.privatePEM, nil
}

// Manager generates, persists, and signs with per-session key pairs.
type Manager struct {
	store   Store
	alg     Algorithm
	rsaBits int
}

// NewManager describes the newmanager operation and its observable behavior.
//
// NewManager may return an error when input validation, dependency calls, or security checks fail.
func NewManager(store Store, cfg Config) (*Manager, error) {
	if store == nil {
		return nil, errors.New("key store required")
	}
	if cfg.Algorithm == "" {
		cfg.Algorithm = AlgES256
	}
	switch cfg.Algorithm {
	case AlgES256, AlgRS256:
	default:
		return nil, fmt.Errorf("unsupported key algorithm %q", cfg.Algorithm)
	}
	if cfg.RSABits == 0 {
		cfg.RSABits = 2048
	}
	if cfg.RSABits < 2048 {
		return nil, errors.New("rsa key size below 2048 bits")
	}

	return &Manager{
		store:   store,
		alg:     cfg.Algorithm,
		rsaBits: cfg.RSABits,
	}, nil
}

// Create generates a new key pair for sessionID and persists the private
// half. Exactly one pair exists per session id: creating again overwrites.
func (m *Manager) Create(ctx context.Context, sessionID string, extractable bool) (*KeyPair, error) {
	signer, err := m.generate()
	if err != nil {
		return nil, err
	}

	der, err := x509.MarshalPKCS8PrivateKey(signer)
	if err != nil {
		return nil, err
	}
	if err := m.store.SaveKeyBlob(ctx, sessionID, der); err != nil {
		return nil, err
	}

	kp := &KeyPair{
		SessionID:   sessionID,
		extractable: extractable,
		public:      publicOf(signer),
	}
	if extractable {
		kp.privatePEM = pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})
	}
	return kp, nil
}

// Load returns the stored key pair handle for sessionID. The returned pair
// is never extractable regardless of how it was created; extraction is only
// offered on the handle returned by [Manager.Create].
func (m *Manager) Load(ctx context.Context, sessionID string) (*KeyPair, error) {
	signer, err := m.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return &KeyPair{
		SessionID: sessionID,
		public:    publicOf(signer),
	}, nil
}

// Sign loads the key pair for sessionID and produces a compact JWS assertion
// over claims plus a fresh jti nonce. Returns [ErrKeysNotFound] when no key
// material is stored for the session.
func (m *Manager) Sign(ctx context.Context, sessionID string, claims map[string]any) (string, error) {
	signer, err := m.load(ctx, sessionID)
	if err != nil {
		return "", err
	}

	method, err := methodFor(signer)
	if err != nil {
		return "", err
	}

	mapped := jwt.MapClaims{}
	for k, v := range claims {
		mapped[k] = v
	}
	// jti prevents assertion replay server-side.
	mapped["jti"] = uuid.NewString()

	return jwt.NewWithClaims(method, mapped).SignedString(signer)
}

// ExportPublicKey returns the PEM-encoded public half of a key pair. It is
// used once, at session creation, to register the key with the authority.
func (m *Manager) ExportPublicKey(kp *KeyPair) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(kp.public)
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
}

// Delete removes the stored key pair for sessionID.
func (m *Manager) Delete(ctx context.Context, sessionID string) error {
	return m.store.DeleteKeyBlob(ctx, sessionID)
}

func (m *Manager) generate() (crypto.Signer, error) {
	switch m.alg {
	case AlgRS256:
		return rsa.GenerateKey(rand.Reader, m.rsaBits)
	default:
		return ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	}
}

func (m *Manager) load(ctx context.Context, sessionID string) (crypto.Signer, error) {
	blob, err := m.store.LoadKeyBlob(ctx, sessionID)
	if err != nil {
		return nil, ErrKeysNotFound
	}

	parsed, err := x509.ParsePKCS8PrivateKey(blob)
	if err != nil {
		return nil, fmt.Errorf("corrupt key blob for session: %w", err)
	}
	signer, ok := parsed.(crypto.Signer)
	if !ok {
		return nil, errors.New("stored key does not implement signing")
	}
	return signer, nil
}

func methodFor(signer crypto.Signer) (jwt.SigningMethod, error) {
	switch signer.(type) {
	case *ecdsa.PrivateKey:
		return jwt.SigningMethodES256, nil
	case *rsa.PrivateKey:
		return jwt.SigningMethodRS256, nil
	default:
		return nil, errors.New("unsupported private key type")
	}
}

func publicOf(signer crypto.Signer) crypto.PublicKey {
	return signer.Public()
}

// VerifyAssertion parses and verifies a compact JWS assertion against a
// PEM-encoded public key, returning the claims. Expiry is enforced.
func VerifyAssertion(assertion string, publicPEM []byte) (jwt.MapClaims, error) {
	block, _ := pem.Decode(publicPEM)
	if block == nil {
		return nil, errors.New("invalid public key pem")
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, err
	}

	claims := jwt.MapClaims{}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{
		jwt.SigningMethodES256.Alg(),
		jwt.SigningMethodRS256.Alg(),
	}))
	token, err := parser.ParseWithClaims(assertion, claims, func(*jwt.Token) (interface{}, error) {
		return pub, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}
