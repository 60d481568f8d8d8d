// ABOUTME: ES256K JWT signing method (ECDSA over secp256k1 with SHA-256)
// ABOUTME: Registers "ES256K" with golang-jwt and provides key parsing, signing and keygen

package auth

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/golang-jwt/jwt/v5"
)

// AlgES256K is the JOSE algorithm identifier. It is distinct from ES256,
// which uses the P-256 curve.
const AlgES256K = "ES256K"

// signatureSize is the raw R||S length
const signatureSize = 64

// SigningMethodES256K implements jwt.SigningMethod for secp256k1.
type SigningMethodES256K struct{}

// ES256K is the shared signing method instance
var ES256K = &SigningMethodES256K{}

func init() {
	jwt.RegisterSigningMethod(AlgES256K, func() jwt.SigningMethod {
		return ES256K
	})
}

// Alg returns the algorithm identifier
func (m *SigningMethodES256K) Alg() string {
	return AlgES256K
}

// Verify checks a 64-byte R||S signature over SHA-256(signingString).
// key must be an *ecdsa.PublicKey on secp256k1.
func (m *SigningMethodES256K) Verify(signingString string, sig []byte, key any) error {
	pub, ok := key.(*ecdsa.PublicKey)
	if !ok {
		return jwt.ErrInvalidKeyType
	}
	if len(sig) != signatureSize {
		return jwt.ErrSignatureInvalid
	}

	digest := sha256.Sum256([]byte(signingString))
	if !ethcrypto.VerifySignature(ethcrypto.FromECDSAPub(pub), digest[:], sig) {
		return jwt.ErrSignatureInvalid
	}
	return nil
}

// Sign produces a 64-byte R||S signature. key must be an *ecdsa.PrivateKey
// on secp256k1.
func (m *SigningMethodES256K) Sign(signingString string, key any) ([]byte, error) {
	priv, ok := key.(*ecdsa.PrivateKey)
	if !ok {
		return nil, jwt.ErrInvalidKeyType
	}

	digest := sha256.Sum256([]byte(signingString))
	sig, err := ethcrypto.Sign(digest[:], priv)
	if err != nil {
		return nil, fmt.Errorf("signing: %w", err)
	}
	// Drop the recovery id
	return sig[:signatureSize], nil
}

// ParsePublicKey decodes a hex secp256k1 public key in compressed (33 byte)
// or uncompressed (65 byte) SEC1 form.
func ParsePublicKey(s string) (*ecdsa.PublicKey, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if err != nil {
		return nil, fmt.Errorf("decoding public key hex: %w", err)
	}

	switch len(raw) {
	case 33:
		pub, err := ethcrypto.DecompressPubkey(raw)
		if err != nil {
			return nil, fmt.Errorf("parsing compressed public key: %w", err)
		}
		return pub, nil
	case 65:
		pub, err := ethcrypto.UnmarshalPubkey(raw)
		if err != nil {
			return nil, fmt.Errorf("parsing uncompressed public key: %w", err)
		}
		return pub, nil
	default:
		return nil, fmt.Errorf("public key must be 33 or 65 bytes, got %d", len(raw))
	}
}

// EncodePublicKey returns the compressed hex form accepted by ParsePublicKey
func EncodePublicKey(pub *ecdsa.PublicKey) string {
	return hex.EncodeToString(ethcrypto.CompressPubkey(pub))
}

// ParsePrivateKey decodes a 32-byte hex secp256k1 private key
func ParsePrivateKey(s string) (*ecdsa.PrivateKey, error) {
	priv, err := ethcrypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}
	return priv, nil
}

// EncodePrivateKey returns the hex form accepted by ParsePrivateKey
func EncodePrivateKey(priv *ecdsa.PrivateKey) string {
	return hex.EncodeToString(ethcrypto.FromECDSA(priv))
}

// GenerateKey creates a new secp256k1 key pair
func GenerateKey() (*ecdsa.PrivateKey, error) {
	return ethcrypto.GenerateKey()
}

// Signer mints ES256K tokens whose subject is a store id.
type Signer struct {
	key *ecdsa.PrivateKey
	now func() time.Time
}

// NewSigner creates a Signer for key
func NewSigner(key *ecdsa.PrivateKey) *Signer {
	return &Signer{key: key, now: time.Now}
}

// Sign issues a token for storeID. A zero ttl omits the exp claim.
func (s *Signer) Sign(storeID string, ttl time.Duration) (string, error) {
	now := s.now()
	claims := jwt.RegisteredClaims{
		Subject:  storeID,
		IssuedAt: jwt.NewNumericDate(now),
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}

	token := jwt.NewWithClaims(ES256K, claims)
	return token.SignedString(s.key)
}
