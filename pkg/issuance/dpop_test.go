package issuance

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDPoPKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	return key
}

func TestDPoPProofRoundTrips(t *testing.T) {
	key := newTestDPoPKey(t)

	proof, err := NewDPoPProof(key, "POST", "https://issuer.example/token", "server-nonce")
	require.NoError(t, err)

	pub, err := VerifyDPoPProof(proof, "POST", "https://issuer.example/token", "server-nonce", time.Minute)
	require.NoError(t, err)
	assert.True(t, pub.Equal(&key.PublicKey))
}

func TestVerifyDPoPProofRejectsWrongMethod(t *testing.T) {
	key := newTestDPoPKey(t)

	proof, err := NewDPoPProof(key, "POST", "https://issuer.example/token", "")
	require.NoError(t, err)

	_, err = VerifyDPoPProof(proof, "GET", "https://issuer.example/token", "", time.Minute)
	assert.ErrorIs(t, err, ErrDPoPMismatch)
}

func TestVerifyDPoPProofRejectsWrongNonce(t *testing.T) {
	key := newTestDPoPKey(t)

	proof, err := NewDPoPProof(key, "POST", "https://issuer.example/token", "expected-nonce")
	require.NoError(t, err)

	_, err = VerifyDPoPProof(proof, "POST", "https://issuer.example/token", "other-nonce", time.Minute)
	assert.ErrorIs(t, err, ErrDPoPMismatch)
}

func TestVerifyDPoPProofRejectsExpired(t *testing.T) {
	key := newTestDPoPKey(t)

	proof, err := NewDPoPProof(key, "POST", "https://issuer.example/token", "")
	require.NoError(t, err)

	_, err = VerifyDPoPProof(proof, "POST", "https://issuer.example/token", "", 0)
	assert.Error(t, err)
}

func TestVerifyDPoPProofRejectsTamperedSignature(t *testing.T) {
	key := newTestDPoPKey(t)
	other := newTestDPoPKey(t)

	proof, err := NewDPoPProof(key, "POST", "https://issuer.example/token", "")
	require.NoError(t, err)

	parts, err := splitJWT(proof)
	require.NoError(t, err)

	tampered, err := NewDPoPProof(other, "POST", "https://issuer.example/token", "")
	require.NoError(t, err)
	otherParts, err := splitJWT(tampered)
	require.NoError(t, err)

	// Swap in the other key's signature under this proof's own header
	// (which advertises `key`'s public key) so verification must fail.
	forged := parts[0] + "." + parts[1] + "." + otherParts[2]
	_, err = VerifyDPoPProof(forged, "POST", "https://issuer.example/token", "", time.Minute)
	assert.Error(t, err)
}
