package wscd_test

import (
	"context"
	"crypto/ecdsa"
	"crypto/sha256"
	"math/big"
	"testing"

	"github.com/MinBZK/nl-wallet-sub004/pkg/wscd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateBindsKeyToIdentifier(t *testing.T) {
	w := wscd.NewMemoryWSCD()
	pub, err := w.Generate(context.Background(), "key-1")
	require.NoError(t, err)
	assert.NotNil(t, pub)
}

func TestGenerateRejectsDuplicateIdentifier(t *testing.T) {
	w := wscd.NewMemoryWSCD()
	ctx := context.Background()
	_, err := w.Generate(ctx, "key-1")
	require.NoError(t, err)

	_, err = w.Generate(ctx, "key-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, wscd.ErrIdentifierExists)
}

func TestSignRejectsUnknownIdentifier(t *testing.T) {
	w := wscd.NewMemoryWSCD()
	_, err := w.Sign(context.Background(), "missing", []byte("msg"))
	require.Error(t, err)
	assert.ErrorIs(t, err, wscd.ErrIdentifierNotFound)
}

func TestSignProducesVerifiableSignature(t *testing.T) {
	ctx := context.Background()
	w := wscd.NewMemoryWSCD()
	pub, err := w.Generate(ctx, "key-1")
	require.NoError(t, err)

	sig, err := w.Sign(ctx, "key-1", []byte("hello"))
	require.NoError(t, err)
	assert.NotEmpty(t, sig)

	require.Len(t, sig, 64)
	digest := sha256.Sum256([]byte("hello"))
	r := new(big.Int).SetBytes(sig[:32])
	s := new(big.Int).SetBytes(sig[32:])
	assert.True(t, ecdsa.Verify(pub, digest[:], r, s))
}

func TestSignMultipleFailsAtomicallyOnUnknownIdentifier(t *testing.T) {
	ctx := context.Background()
	w := wscd.NewMemoryWSCD()
	_, err := w.Generate(ctx, "key-1")
	require.NoError(t, err)

	_, err = w.SignMultiple(ctx, []wscd.SignRequest{
		{Identifier: "key-1", Message: []byte("a")},
		{Identifier: "missing", Message: []byte("b")},
	}, nil)
	require.Error(t, err)
	var signingErr *wscd.SigningError
	require.ErrorAs(t, err, &signingErr)
	assert.Equal(t, "missing", signingErr.Identifier)
}

func TestSignMultipleWithoutPoAInputOmitsPoA(t *testing.T) {
	ctx := context.Background()
	w := wscd.NewMemoryWSCD()
	_, err := w.Generate(ctx, "key-1")
	require.NoError(t, err)

	result, err := w.SignMultiple(ctx, []wscd.SignRequest{
		{Identifier: "key-1", Message: []byte("a")},
	}, nil)
	require.NoError(t, err)
	assert.Len(t, result.Signatures, 1)
	assert.Empty(t, result.PoA)
}

func TestSignMultipleProducesVerifiablePoA(t *testing.T) {
	ctx := context.Background()
	w := wscd.NewMemoryWSCD()
	pub1, err := w.Generate(ctx, "key-1")
	require.NoError(t, err)
	pub2, err := w.Generate(ctx, "key-2")
	require.NoError(t, err)

	poaInput := []byte("session-transcript-hash")
	result, err := w.SignMultiple(ctx, []wscd.SignRequest{
		{Identifier: "key-1", Message: []byte("challenge-a")},
		{Identifier: "key-2", Message: []byte("challenge-b")},
	}, poaInput)
	require.NoError(t, err)
	require.Len(t, result.Signatures, 2)
	require.NotEmpty(t, result.PoA)

	keys := map[string]*ecdsa.PublicKey{"key-1": pub1, "key-2": pub2}
	assert.NoError(t, wscd.VerifyProofOfAssociation(result.PoA, keys, poaInput))
}

func TestVerifyProofOfAssociationRejectsWrongPoAInput(t *testing.T) {
	ctx := context.Background()
	w := wscd.NewMemoryWSCD()
	pub1, err := w.Generate(ctx, "key-1")
	require.NoError(t, err)

	result, err := w.SignMultiple(ctx, []wscd.SignRequest{
		{Identifier: "key-1", Message: []byte("challenge-a")},
	}, []byte("correct-input"))
	require.NoError(t, err)

	keys := map[string]*ecdsa.PublicKey{"key-1": pub1}
	err = wscd.VerifyProofOfAssociation(result.PoA, keys, []byte("wrong-input"))
	require.Error(t, err)
	assert.ErrorIs(t, err, wscd.ErrPoAVerification)
}

func TestVerifyProofOfAssociationRejectsMissingSignature(t *testing.T) {
	ctx := context.Background()
	w := wscd.NewMemoryWSCD()
	pub1, err := w.Generate(ctx, "key-1")
	require.NoError(t, err)
	pub2, err := w.Generate(ctx, "key-2")
	require.NoError(t, err)

	poaInput := []byte("input")
	result, err := w.SignMultiple(ctx, []wscd.SignRequest{
		{Identifier: "key-1", Message: []byte("a")},
	}, poaInput)
	require.NoError(t, err)

	keys := map[string]*ecdsa.PublicKey{"key-1": pub1, "key-2": pub2}
	err = wscd.VerifyProofOfAssociation(result.PoA, keys, poaInput)
	require.Error(t, err)
	assert.ErrorIs(t, err, wscd.ErrPoAVerification)
}
