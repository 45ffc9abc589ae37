package signer

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"

	"oneauth/internal/intent"
)

// Signer wraps the developer's Ed25519 key and identity. SignIntent is a
// pure function of its inputs apart from nonce and expiry generation.
type Signer struct {
	key         ed25519.PrivateKey
	developerID string
}

// New parses a hex-encoded Ed25519 seed or full private key.
func New(privateKeyHex, developerID string) (*Signer, error) {
	if privateKeyHex == "" {
		return nil, fmt.Errorf("private key is required")
	}
	if developerID == "" {
		return nil, fmt.Errorf("developer id is required")
	}
	raw, err := hex.DecodeString(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	var key ed25519.PrivateKey
	switch len(raw) {
	case ed25519.SeedSize:
		key = ed25519.NewKeyFromSeed(raw)
	case ed25519.PrivateKeySize:
		key = ed25519.PrivateKey(raw)
	default:
		return nil, fmt.Errorf("private key must be %d or %d bytes, got %d", ed25519.SeedSize, ed25519.PrivateKeySize, len(raw))
	}
	return &Signer{key: key, developerID: developerID}, nil
}

// Public returns the verifying key.
func (s *Signer) Public() ed25519.PublicKey {
	return s.key.Public().(ed25519.PublicKey)
}

// SignIntent produces a signed intent over the canonical encoding.
func (s *Signer) SignIntent(req intent.SignRequest) (*intent.Signed, error) {
	return intent.Sign(s.key, s.developerID, req)
}
