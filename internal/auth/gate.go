// ABOUTME: Client authentication gate verifying ES256K bearer tokens
// ABOUTME: Supports a self-hosted bypass and caches tokens that already verified

package auth

import (
	"context"
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/2389/vss-gateway/internal/tokencache"
)

// ErrUnauthorized is the only error the gate returns. The specific reason is
// logged at debug level and never reaches the caller.
var ErrUnauthorized = errors.New("unauthorized")

// DefaultLeeway is the clock skew tolerated on exp and nbf
const DefaultLeeway = 60 * time.Second

// GateConfig is built once at startup and passed to NewGate.
type GateConfig struct {
	PublicKey  *ecdsa.PublicKey
	SelfHosted bool
	Leeway     time.Duration
	Cache      *tokencache.Cache // optional
	Logger     *slog.Logger
}

// Gate decides whether a client request may reach the store.
type Gate struct {
	publicKey  *ecdsa.PublicKey
	selfHosted bool
	cache      *tokencache.Cache
	parser     *jwt.Parser
	logger     *slog.Logger
}

// NewGate validates cfg and returns a Gate. A public key is required unless
// the gate runs self-hosted.
func NewGate(cfg GateConfig) (*Gate, error) {
	if !cfg.SelfHosted && cfg.PublicKey == nil {
		return nil, errors.New("auth: public key required unless self-hosted")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	leeway := cfg.Leeway
	if leeway == 0 {
		leeway = DefaultLeeway
	}

	return &Gate{
		publicKey:  cfg.PublicKey,
		selfHosted: cfg.SelfHosted,
		cache:      cfg.Cache,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{AlgES256K}),
			jwt.WithLeeway(leeway),
		),
		logger: logger.With("component", "auth"),
	}, nil
}

// SelfHosted reports whether the gate is disabled
func (g *Gate) SelfHosted() bool {
	return g.selfHosted
}

// Authenticate checks a bearer token and returns the caller's identity.
func (g *Gate) Authenticate(ctx context.Context, bearer string) (*AuthContext, error) {
	if g.selfHosted {
		return &AuthContext{SelfHosted: true}, nil
	}
	if bearer == "" {
		g.reject("missing token")
		return nil, ErrUnauthorized
	}

	fingerprint := tokenFingerprint(bearer)
	if g.cache != nil {
		if sub, ok := g.cache.Get(fingerprint); ok {
			return &AuthContext{StoreID: sub}, nil
		}
	}

	claims := &jwt.RegisteredClaims{}
	_, err := g.parser.ParseWithClaims(bearer, claims, func(t *jwt.Token) (any, error) {
		return g.publicKey, nil
	})
	if err != nil {
		g.reject(err.Error())
		return nil, ErrUnauthorized
	}
	if claims.Subject == "" {
		g.reject("missing sub claim")
		return nil, ErrUnauthorized
	}

	if g.cache != nil {
		var exp time.Time
		if claims.ExpiresAt != nil {
			exp = claims.ExpiresAt.Time
		}
		g.cache.Put(fingerprint, claims.Subject, exp)
	}
	return &AuthContext{StoreID: claims.Subject}, nil
}

func (g *Gate) reject(reason string) {
	g.logger.Debug("token rejected", "reason", reason)
}

// tokenFingerprint keys the cache without holding raw tokens in memory
func tokenFingerprint(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
