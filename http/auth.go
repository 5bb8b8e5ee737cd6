package http

import (
	"context"
	"crypto/ecdsa"
	"crypto/ed25519"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"gopkg.in/square/go-jose.v2"
	"gopkg.in/square/go-jose.v2/jwt"
)

// ErrUnauthenticated is returned when a controller endpoint is called without
// a valid caller token.
var ErrUnauthenticated = errors.New("caller is not authenticated")

const (
	// DefaultLeeway is the clock skew tolerated on token time claims.
	DefaultLeeway = 30 * time.Second

	// MinSecretLength is the shortest accepted HMAC secret.
	MinSecretLength = 32
)

// Authenticator resolves the caller of a request from its bearer token.
//
// A caller token is a compact JWT whose subject is the caller address and
// whose audience is the served account address. It must carry an expiry.
// Verification uses one key: an HMAC secret shared with the controllers, or
// the public half of an ES256 or EdDSA key that signs their tokens.
//
// Example usage:
//
//	auth, err := NewAuthenticator([]byte(os.Getenv("CONTROLLER_SECRET")), account)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	h := NewHandler(acc, l, WithAuthenticator(auth))
type Authenticator struct {
	key      any
	audience string
	leeway   time.Duration
	now      func() time.Time
}

// AuthOption configures an Authenticator.
type AuthOption func(*Authenticator)

// WithLeeway overrides DefaultLeeway.
func WithLeeway(leeway time.Duration) AuthOption {
	return func(a *Authenticator) {
		if leeway >= 0 {
			a.leeway = leeway
		}
	}
}

// NewAuthenticator creates an Authenticator for tokens addressed to account.
// key is a []byte HMAC secret, an *ecdsa.PublicKey or an ed25519.PublicKey.
func NewAuthenticator(key any, account common.Address, opts ...AuthOption) (*Authenticator, error) {
	switch k := key.(type) {
	case []byte:
		if len(k) < MinSecretLength {
			return nil, fmt.Errorf("hmac secret must be at least %d bytes, got %d", MinSecretLength, len(k))
		}
	case *ecdsa.PublicKey:
		if k == nil {
			return nil, errors.New("ecdsa public key is nil")
		}
	case ed25519.PublicKey:
		if len(k) != ed25519.PublicKeySize {
			return nil, fmt.Errorf("ed25519 public key must be %d bytes, got %d", ed25519.PublicKeySize, len(k))
		}
	default:
		return nil, fmt.Errorf("unsupported verification key type %T", key)
	}
	if account == (common.Address{}) {
		return nil, errors.New("account address is required")
	}

	a := &Authenticator{
		key:      key,
		audience: audienceOf(account),
		leeway:   DefaultLeeway,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Authenticate returns the caller named by the bearer token of r.
func (a *Authenticator) Authenticate(r *http.Request) (common.Address, error) {
	raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	raw = strings.TrimSpace(raw)
	if !ok || raw == "" {
		return common.Address{}, fmt.Errorf("%w: missing bearer token", ErrUnauthenticated)
	}

	tok, err := jwt.ParseSigned(raw)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	var claims jwt.Claims
	if err := tok.Claims(a.key, &claims); err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	if claims.Expiry == nil {
		return common.Address{}, fmt.Errorf("%w: token has no expiry", ErrUnauthenticated)
	}

	expected := jwt.Expected{
		Audience: jwt.Audience{a.audience},
		Time:     a.now(),
	}
	if err := claims.ValidateWithLeeway(expected, a.leeway); err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	if !common.IsHexAddress(claims.Subject) {
		return common.Address{}, fmt.Errorf("%w: subject %q is not an address", ErrUnauthenticated, claims.Subject)
	}
	return common.HexToAddress(claims.Subject), nil
}

// CallerToken signs a token naming caller to the account at account, valid
// for ttl.
func CallerToken(key jose.SigningKey, caller, account common.Address, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		return "", errors.New("token lifetime must be positive")
	}

	sig, err := jose.NewSigner(key, (&jose.SignerOptions{}).WithType("JWT"))
	if err != nil {
		return "", fmt.Errorf("failed to create JWT signer: %w", err)
	}

	now := time.Now()
	claims := jwt.Claims{
		ID:        uuid.NewString(),
		Subject:   caller.Hex(),
		Audience:  jwt.Audience{audienceOf(account)},
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		Expiry:    jwt.NewNumericDate(now.Add(ttl)),
	}

	token, err := jwt.Signed(sig).Claims(claims).CompactSerialize()
	if err != nil {
		return "", fmt.Errorf("failed to serialize JWT: %w", err)
	}
	return token, nil
}

// TokenSource returns the bearer token for the next relay request.
type TokenSource func(ctx context.Context) (string, error)

// StaticToken always returns token.
func StaticToken(token string) TokenSource {
	return func(context.Context) (string, error) {
		return token, nil
	}
}

// SignedTokens mints a fresh caller token for every request.
func SignedTokens(key jose.SigningKey, caller, account common.Address, ttl time.Duration) TokenSource {
	return func(context.Context) (string, error) {
		return CallerToken(key, caller, account, ttl)
	}
}

func audienceOf(account common.Address) string {
	return strings.ToLower(account.Hex())
}
