package cbor

import (
	"errors"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaggedBytesRoundTrip(t *testing.T) {
	enc, err := New()
	require.NoError(t, err)

	type item struct {
		Name  string `cbor:"name"`
		Value int    `cbor:"value"`
	}

	tagged, err := WrapTagged(enc, item{Name: "family_name", Value: 7})
	require.NoError(t, err)

	wireBytes, err := cbor.Marshal(tagged)
	require.NoError(t, err)

	var decodedTag TaggedBytes[item]
	require.NoError(t, cbor.Unmarshal(wireBytes, &decodedTag))

	got, err := decodedTag.Unwrap(enc)
	require.NoError(t, err)
	assert.Equal(t, item{Name: "family_name", Value: 7}, got)
}

func TestTaggedBytesRejectsWrongTag(t *testing.T) {
	wrongTag, err := cbor.Marshal(cbor.Tag{Number: 99, Content: []byte{0x01}})
	require.NoError(t, err)

	var decoded TaggedBytes[int]
	err = decoded.UnmarshalCBOR(wrongTag)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnexpectedTag))
}

type deviceAuthenticationLiteral struct{}

func (deviceAuthenticationLiteral) Value() string { return "DeviceAuthentication" }

func TestRequiredValueRoundTrip(t *testing.T) {
	var rv RequiredValue[deviceAuthenticationLiteral]
	wireBytes, err := rv.MarshalCBOR()
	require.NoError(t, err)

	var decoded RequiredValue[deviceAuthenticationLiteral]
	require.NoError(t, decoded.UnmarshalCBOR(wireBytes))
}

func TestRequiredValueRejectsMismatch(t *testing.T) {
	other, err := cbor.Marshal("ReaderAuthentication")
	require.NoError(t, err)

	var decoded RequiredValue[deviceAuthenticationLiteral]
	err = decoded.UnmarshalCBOR(other)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRequiredValue))
}
