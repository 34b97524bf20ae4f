package cose

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignVerifyES256RoundTrip(t *testing.T) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	payload := []byte("mobile security object bytes")
	sign1, err := Sign(payload, priv, AlgorithmES256, nil, nil)
	require.NoError(t, err)

	require.NoError(t, Verify(sign1, nil, &priv.PublicKey, nil))
}

func TestSignVerifyDetached(t *testing.T) {
	priv, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	require.NoError(t, err)

	payload := []byte("detached payload")
	sign1, err := SignDetached(payload, priv, AlgorithmES384, nil, nil)
	require.NoError(t, err)
	assert.Nil(t, sign1.Payload)

	require.NoError(t, Verify(sign1, payload, &priv.PublicKey, nil))
}

func TestVerifyRejectsTamperedPayload(t *testing.T) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	sign1, err := Sign([]byte("original"), priv, AlgorithmES256, nil, nil)
	require.NoError(t, err)

	sign1.Payload = []byte("tampered")
	err = Verify(sign1, nil, &priv.PublicKey, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrVerification))
}

func TestEdDSARoundTrip(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	sign1, err := Sign([]byte("eddsa payload"), priv, AlgorithmEdDSA, nil, nil)
	require.NoError(t, err)
	require.NoError(t, Verify(sign1, nil, pub, nil))
}

func TestMACRoundTrip(t *testing.T) {
	key := []byte("0123456789abcdef0123456789abcdef")
	mac0, err := MAC([]byte("device auth bytes"), key, AlgorithmHMAC256, nil)
	require.NoError(t, err)

	require.NoError(t, VerifyMAC(mac0, key, nil))
}

func TestMACRejectsWrongKey(t *testing.T) {
	mac0, err := MAC([]byte("payload"), []byte("key-one-aaaaaaaaaaaaaaaaaaaaaaaa"), AlgorithmHMAC256, nil)
	require.NoError(t, err)

	err = VerifyMAC(mac0, []byte("key-two-bbbbbbbbbbbbbbbbbbbbbbbb"), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrVerification))
}

func TestKeyFromECDSARoundTrip(t *testing.T) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	coseKey, err := KeyFromECDSA(&priv.PublicKey)
	require.NoError(t, err)

	pub, err := coseKey.PublicKey()
	require.NoError(t, err)

	ecPub, ok := pub.(*ecdsa.PublicKey)
	require.True(t, ok)
	assert.Equal(t, 0, priv.PublicKey.X.Cmp(ecPub.X))
	assert.Equal(t, 0, priv.PublicKey.Y.Cmp(ecPub.Y))
}

func TestKeyFromEd25519RoundTrip(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	coseKey := KeyFromEd25519(pub)
	recovered, err := coseKey.PublicKey()
	require.NoError(t, err)
	assert.Equal(t, ed25519.PublicKey(pub), recovered)
}

func TestAlgorithmForKey(t *testing.T) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	alg, err := AlgorithmForKey(priv)
	require.NoError(t, err)
	assert.Equal(t, AlgorithmES256, alg)

	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	alg, err = AlgorithmForKey(pub)
	require.NoError(t, err)
	assert.Equal(t, AlgorithmEdDSA, alg)
}
