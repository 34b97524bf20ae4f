package integrity

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeAndVerifyRoundTrip(t *testing.T) {
	data := []byte("vct metadata document")
	token, err := Compute("sha-256", data)
	require.NoError(t, err)

	require.NoError(t, VerifyString(token, data))
}

func TestVerifyRejectsTamperedData(t *testing.T) {
	token, err := Compute("sha-256", []byte("original"))
	require.NoError(t, err)

	err = VerifyString(token, []byte("tampered"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMismatch))
}

func TestComputeRejectsWeakAlgorithm(t *testing.T) {
	_, err := Compute("sha-1", []byte("data"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAlgorithmInsecure))
}

func TestParseRejectsWeakAlgorithm(t *testing.T) {
	_, err := Parse("md5-deadbeef")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAlgorithmInsecure))
}

func TestParseRejectsMalformed(t *testing.T) {
	_, err := Parse("sha-256-")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformed))

	_, err = Parse("nohyphenatall")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformed))
}

func TestParseRejectsBadBase64(t *testing.T) {
	_, err := Parse("sha-256-not base64!!")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformed))
}

func TestSha384AndSha512Accepted(t *testing.T) {
	data := []byte("payload")
	for _, algo := range []string{"sha-384", "sha-512"} {
		token, err := Compute(algo, data)
		require.NoError(t, err)
		require.NoError(t, VerifyString(token, data))
	}
}
