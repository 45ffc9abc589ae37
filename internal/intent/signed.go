package intent

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
)

// Signed is an intent plus an Ed25519 signature over its canonical JSON
// encoding. Immutable once constructed; the nonce and expiry are generated
// at signing time and never reused.
type Signed struct {
	DeveloperID    string         `json:"developerId"`
	TargetChain    int64          `json:"targetChain"`
	Calls          []Call         `json:"calls"`
	TokenRequests  []TokenRequest `json:"tokenRequests,omitempty"`
	Username       string         `json:"username,omitempty"`
	AccountAddress string         `json:"accountAddress,omitempty"`
	Nonce          string         `json:"nonce"`
	ExpiresAt      int64          `json:"expiresAt"`
	Signature      string         `json:"signature"`
}

// canonicalCall is the call shape covered by the signature: normalized to
// lower-case with empty optional fields defaulted, labels excluded.
type canonicalCall struct {
	To    string `json:"to"`
	Data  string `json:"data"`
	Value string `json:"value"`
}

type canonicalIntent struct {
	DeveloperID    string          `json:"developerId"`
	TargetChain    int64           `json:"targetChain"`
	Calls          []canonicalCall `json:"calls"`
	Username       string          `json:"username,omitempty"`
	AccountAddress string          `json:"accountAddress,omitempty"`
	Nonce          string          `json:"nonce"`
	ExpiresAt      int64           `json:"expiresAt"`
}

// CanonicalMessage produces the exact byte sequence the Ed25519 signature
// covers. Input casing of addresses and calldata does not affect the output.
func (s *Signed) CanonicalMessage() ([]byte, error) {
	calls := make([]canonicalCall, len(s.Calls))
	for i, c := range s.Calls {
		n := NormalizeCall(c)
		calls[i] = canonicalCall{To: n.To, Data: n.Data, Value: n.Value}
	}
	return json.Marshal(canonicalIntent{
		DeveloperID:    s.DeveloperID,
		TargetChain:    s.TargetChain,
		Calls:          calls,
		Username:       s.Username,
		AccountAddress: strings.ToLower(s.AccountAddress),
		Nonce:          s.Nonce,
		ExpiresAt:      s.ExpiresAt,
	})
}

// SignRequest is the input to Sign, mirroring the signer service contract.
type SignRequest struct {
	Username       string         `json:"username,omitempty"`
	AccountAddress string         `json:"accountAddress,omitempty"`
	TargetChain    int64          `json:"targetChain"`
	Calls          []Call         `json:"calls"`
	TokenRequests  []TokenRequest `json:"tokenRequests,omitempty"`
}

// SignTTL bounds how long a signed intent stays valid.
const SignTTL = 5 * time.Minute

// Sign builds a Signed intent with a fresh nonce and expiry.
func Sign(key ed25519.PrivateKey, developerID string, req SignRequest) (*Signed, error) {
	if developerID == "" {
		return nil, E(CodeInvalidOptions, "developer id is required")
	}
	if req.Username == "" && req.AccountAddress == "" {
		return nil, E(CodeInvalidOptions, "username or account address is required")
	}
	if req.TargetChain <= 0 {
		return nil, E(CodeInvalidChain, "target chain %d is not valid", req.TargetChain)
	}
	if err := ValidateCalls(req.Calls); err != nil {
		return nil, err
	}

	signed := &Signed{
		DeveloperID:    developerID,
		TargetChain:    req.TargetChain,
		Calls:          NormalizeCalls(req.Calls),
		TokenRequests:  req.TokenRequests,
		Username:       req.Username,
		AccountAddress: strings.ToLower(req.AccountAddress),
		Nonce:          uuid.NewString(),
		ExpiresAt:      time.Now().Add(SignTTL).Unix(),
	}
	msg, err := signed.CanonicalMessage()
	if err != nil {
		return nil, E(CodeSigningFailed, "canonical encoding: %v", err)
	}
	signed.Signature = base64.StdEncoding.EncodeToString(ed25519.Sign(key, msg))
	return signed, nil
}

// Verify checks the Ed25519 signature against the canonical encoding.
func Verify(pub ed25519.PublicKey, s *Signed) bool {
	sig, err := base64.StdEncoding.DecodeString(s.Signature)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return false
	}
	msg, err := s.CanonicalMessage()
	if err != nil {
		return false
	}
	return ed25519.Verify(pub, msg, sig)
}

// BatchCommitment derives the single challenge a batch of intents shares:
// keccak over the keccak of every per-intent challenge, in order. One passkey
// ceremony over this value covers all intents in the set.
func BatchCommitment(challenges []string) string {
	leaves := make([][]byte, len(challenges))
	for i, c := range challenges {
		h := crypto.Keccak256([]byte(c))
		leaves[i] = h
	}
	return crypto.Keccak256Hash(leaves...).Hex()
}
