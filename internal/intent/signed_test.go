package intent

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(t *testing.T) ed25519.PrivateKey {
	t.Helper()
	_, key, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return key
}

func TestSignAndVerify(t *testing.T) {
	key := testKey(t)
	signed, err := Sign(key, "dev-1", SignRequest{
		Username:    "alice",
		TargetChain: 8453,
		Calls:       []Call{{To: "0x1111111111111111111111111111111111111111", Value: "5"}},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, signed.Nonce)
	assert.NotZero(t, signed.ExpiresAt)
	assert.True(t, Verify(key.Public().(ed25519.PublicKey), signed))
}

func TestCanonicalMessageIgnoresInputCasing(t *testing.T) {
	base := &Signed{
		DeveloperID:    "dev-1",
		TargetChain:    10,
		Calls:          []Call{{To: "0xabcd000000000000000000000000000000001111", Data: "0xdeadbeef", Value: "2"}},
		AccountAddress: "0x2222222222222222222222222222222222222222",
		Nonce:          "n-1",
		ExpiresAt:      1700000000,
	}
	shouty := &Signed{
		DeveloperID:    "dev-1",
		TargetChain:    10,
		Calls:          []Call{{To: "0xABCD000000000000000000000000000000001111", Data: "0xDEADBEEF", Value: "2"}},
		AccountAddress: "0x2222222222222222222222222222222222222222",
		Nonce:          "n-1",
		ExpiresAt:      1700000000,
	}

	a, err := base.CanonicalMessage()
	require.NoError(t, err)
	b, err := shouty.CanonicalMessage()
	require.NoError(t, err)
	assert.Equal(t, a, b)

	key := testKey(t)
	msg, err := base.CanonicalMessage()
	require.NoError(t, err)
	shouty.Signature = base64Sig(key, msg)
	assert.True(t, Verify(key.Public().(ed25519.PublicKey), shouty))
}

func TestCanonicalMessageDefaultsEmptyFields(t *testing.T) {
	withDefaults := &Signed{
		DeveloperID: "dev-1",
		TargetChain: 1,
		Calls:       []Call{{To: "0x1111111111111111111111111111111111111111"}},
		Username:    "alice",
		Nonce:       "n",
	}
	explicit := &Signed{
		DeveloperID: "dev-1",
		TargetChain: 1,
		Calls:       []Call{{To: "0x1111111111111111111111111111111111111111", Data: "0x", Value: "0"}},
		Username:    "alice",
		Nonce:       "n",
	}
	a, err := withDefaults.CanonicalMessage()
	require.NoError(t, err)
	b, err := explicit.CanonicalMessage()
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestSignValidation(t *testing.T) {
	key := testKey(t)
	validCalls := []Call{{To: "0x1111111111111111111111111111111111111111"}}

	_, err := Sign(key, "", SignRequest{Username: "alice", TargetChain: 1, Calls: validCalls})
	assert.Equal(t, CodeInvalidOptions, CodeOf(err))

	_, err = Sign(key, "dev-1", SignRequest{TargetChain: 1, Calls: validCalls})
	assert.Equal(t, CodeInvalidOptions, CodeOf(err))

	_, err = Sign(key, "dev-1", SignRequest{Username: "alice", Calls: validCalls})
	assert.Equal(t, CodeInvalidChain, CodeOf(err))

	_, err = Sign(key, "dev-1", SignRequest{Username: "alice", TargetChain: 1})
	assert.Equal(t, CodeInvalidOptions, CodeOf(err))
}

func TestSignGeneratesFreshNonces(t *testing.T) {
	key := testKey(t)
	req := SignRequest{
		Username:    "alice",
		TargetChain: 1,
		Calls:       []Call{{To: "0x1111111111111111111111111111111111111111"}},
	}
	a, err := Sign(key, "dev-1", req)
	require.NoError(t, err)
	b, err := Sign(key, "dev-1", req)
	require.NoError(t, err)
	assert.NotEqual(t, a.Nonce, b.Nonce)
}

func TestBatchCommitment(t *testing.T) {
	a := BatchCommitment([]string{"c1", "c2", "c3"})
	b := BatchCommitment([]string{"c1", "c2", "c3"})
	assert.Equal(t, a, b)

	reordered := BatchCommitment([]string{"c2", "c1", "c3"})
	assert.NotEqual(t, a, reordered)

	assert.Len(t, a, 66) // 0x + 32 bytes hex
}

func base64Sig(key ed25519.PrivateKey, msg []byte) string {
	return base64.StdEncoding.EncodeToString(ed25519.Sign(key, msg))
}
