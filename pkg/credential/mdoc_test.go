package credential

import (
	"errors"
	"testing"
	"time"

	"github.com/MinBZK/nl-wallet-sub004/pkg/credential/cbor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIssuerSignedItemGeneratesFullSalt(t *testing.T) {
	item, err := NewIssuerSignedItem(1, "family_name", "Doe")
	require.NoError(t, err)
	assert.Len(t, item.Random, saltLength)
	assert.Equal(t, "family_name", item.ElementIdentifier)
}

func TestNewIssuerNameSpacesRejectsEmpty(t *testing.T) {
	_, err := NewIssuerNameSpaces(nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEmptyNamespace))
}

func TestNewIssuerNameSpacesRejectsDuplicateDigestID(t *testing.T) {
	itemA, err := NewIssuerSignedItem(1, "given_name", "Jane")
	require.NoError(t, err)
	itemB, err := NewIssuerSignedItem(1, "family_name", "Doe")
	require.NoError(t, err)

	_, err = NewIssuerNameSpaces(map[string][]IssuerSignedItem{
		"org.iso.18013.5.1": {itemA, itemB},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicateDigestID))
}

func TestValueDigestsRoundTrip(t *testing.T) {
	enc, err := cbor.New()
	require.NoError(t, err)

	itemA, err := NewIssuerSignedItem(1, "given_name", "Jane")
	require.NoError(t, err)
	itemB, err := NewIssuerSignedItem(2, "family_name", "Doe")
	require.NoError(t, err)

	ns, err := NewIssuerNameSpaces(map[string][]IssuerSignedItem{
		"org.iso.18013.5.1": {itemA, itemB},
	})
	require.NoError(t, err)

	digests, err := ComputeValueDigests(ns, DigestSHA256, enc)
	require.NoError(t, err)

	require.NoError(t, VerifyValueDigests(ns, digests, DigestSHA256, enc))
}

func TestVerifyValueDigestsDetectsTampering(t *testing.T) {
	enc, err := cbor.New()
	require.NoError(t, err)

	item, err := NewIssuerSignedItem(1, "given_name", "Jane")
	require.NoError(t, err)

	ns, err := NewIssuerNameSpaces(map[string][]IssuerSignedItem{
		"org.iso.18013.5.1": {item},
	})
	require.NoError(t, err)

	digests, err := ComputeValueDigests(ns, DigestSHA256, enc)
	require.NoError(t, err)
	digests["org.iso.18013.5.1"][1][0] ^= 0xFF

	err = VerifyValueDigests(ns, digests, DigestSHA256, enc)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDigestMismatch))
}

func TestNewValidityInfoRejectsInvertedWindow(t *testing.T) {
	now := time.Now()
	_, err := NewValidityInfo(now, now.Add(time.Hour), now, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidValidity))
}

func TestNewValidityInfoRejectsSignedAfterValidFrom(t *testing.T) {
	now := time.Now()
	_, err := NewValidityInfo(now.Add(time.Hour), now, now.Add(2*time.Hour), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidValidity))
}

func TestNewValidityInfoAccepts(t *testing.T) {
	now := time.Now()
	vi, err := NewValidityInfo(now, now, now.Add(time.Hour), nil)
	require.NoError(t, err)
	assert.Equal(t, now, vi.Signed)
}

func TestNewMobileSecurityObjectRejectsBadIntegrityToken(t *testing.T) {
	now := time.Now()
	validity, err := NewValidityInfo(now, now, now.Add(time.Hour), nil)
	require.NoError(t, err)

	bad := "not-a-valid-token"
	_, err = NewMobileSecurityObject("example.doctype", DigestSHA256, ValueDigests{}, DeviceKeyInfo{}, validity, nil, &bad)
	require.Error(t, err)
}
