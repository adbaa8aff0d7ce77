// Package vault seals the commercially sensitive fields of a bid until the opening ceremony.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

const KeySize = 32

var (
	// ErrSealIntegrity is returned when a blob cannot be authenticated or decoded.
	ErrSealIntegrity = errors.New("sealed bid failed integrity check")
	ErrMissingKey    = errors.New("bid encryption key is not configured")
)

// Fields are the bid values that stay sealed until opening.
type Fields struct {
	Amount               float64   `json:"bid_amount"`
	TechnicalSummary     *string   `json:"technical_proposal_summary"`
	DeliveryTimelineDays *int      `json:"delivery_timeline_days"`
	WarrantyMonths       *int      `json:"warranty_period_months"`
	SubmittedAt          time.Time `json:"submitted_at"`
}

// Vault encrypts with AES-256-GCM. A sealed blob is nonce || ciphertext.
type Vault struct {
	aead cipher.AEAD
	rand io.Reader
}

// New builds a vault from a 32-byte key.
func New(key []byte) (*Vault, error) {
	if len(key) == 0 {
		return nil, ErrMissingKey
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("bid encryption key must be %d bytes, got %d", KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Vault{aead: aead, rand: rand.Reader}, nil
}

// ParseKey accepts a base64 (std or url) or hex encoded 32-byte key.
func ParseKey(encoded string) ([]byte, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return nil, ErrMissingKey
	}
	if b, err := hex.DecodeString(encoded); err == nil && len(b) == KeySize {
		return b, nil
	}
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.URLEncoding, base64.RawStdEncoding, base64.RawURLEncoding} {
		if b, err := enc.DecodeString(encoded); err == nil && len(b) == KeySize {
			return b, nil
		}
	}
	return nil, fmt.Errorf("bid encryption key must be %d bytes encoded as hex or base64", KeySize)
}

// Seal serializes f and encrypts it under a fresh random nonce.
func (v *Vault) Seal(f Fields) ([]byte, error) {
	f.SubmittedAt = f.SubmittedAt.UTC()
	plain, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("encode sealed fields: %w", err)
	}
	nonce := make([]byte, v.aead.NonceSize())
	if _, err := io.ReadFull(v.rand, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return v.aead.Seal(nonce, nonce, plain, nil), nil
}

// Unseal reverses Seal. Every failure wraps ErrSealIntegrity.
func (v *Vault) Unseal(blob []byte) (Fields, error) {
	ns := v.aead.NonceSize()
	if len(blob) < ns+v.aead.Overhead() {
		return Fields{}, fmt.Errorf("%w: blob too short", ErrSealIntegrity)
	}
	plain, err := v.aead.Open(nil, blob[:ns], blob[ns:], nil)
	if err != nil {
		return Fields{}, fmt.Errorf("%w: %v", ErrSealIntegrity, err)
	}
	var f Fields
	if err := json.Unmarshal(plain, &f); err != nil {
		return Fields{}, fmt.Errorf("%w: %v", ErrSealIntegrity, err)
	}
	return f, nil
}
