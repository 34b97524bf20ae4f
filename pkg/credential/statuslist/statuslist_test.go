package statuslist

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBitsForStatusesSelectsMinimumWidth(t *testing.T) {
	assert.Equal(t, 1, BitsForStatuses([]uint8{0, 1, 0, 1}))
	assert.Equal(t, 2, BitsForStatuses([]uint8{0, 1, 2, 3}))
	assert.Equal(t, 4, BitsForStatuses([]uint8{0, 0x0b, 0x0f}))
	assert.Equal(t, 8, BitsForStatuses([]uint8{200}))
}

func TestPackUnpackRoundTrip(t *testing.T) {
	for _, bits := range []int{1, 2, 4, 8} {
		statuses := []uint8{0, 1, 2, 3, 1, 0, 2, 3, 1}
		max := uint8(1<<bits) - 1
		for i := range statuses {
			if statuses[i] > max {
				statuses[i] = max
			}
		}
		packed, err := Pack(statuses, bits)
		require.NoError(t, err)
		unpacked, err := Unpack(packed, bits, len(statuses))
		require.NoError(t, err)
		assert.Equal(t, statuses, unpacked)
	}
}

func TestPackRejectsUnsupportedBitWidth(t *testing.T) {
	_, err := Pack([]uint8{1}, 3)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBitWidth)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	statuses := []uint8{StatusValid, StatusInvalid, StatusSuspended, StatusValid, 0x0b}
	lst, bits, err := Encode(statuses)
	require.NoError(t, err)
	require.NotEmpty(t, lst)

	decoded, err := Decode(lst, bits, len(statuses))
	require.NoError(t, err)
	assert.Equal(t, statuses, decoded)
}

func TestDecompressRejectsEmpty(t *testing.T) {
	_, err := Decompress(nil, 1, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmptyIndex)
}

func TestGetSetStatus(t *testing.T) {
	statuses := []uint8{0, 1, 2}
	got, err := GetStatus(statuses, 1)
	require.NoError(t, err)
	assert.Equal(t, uint8(1), got)

	updated, err := SetStatus(statuses, 1, 9)
	require.NoError(t, err)
	assert.Equal(t, uint8(9), updated[1])
	assert.Equal(t, uint8(1), statuses[1], "SetStatus must not mutate its input")

	_, err = GetStatus(statuses, -1)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
}

func signingKeyAndFunc(t *testing.T) (*ecdsa.PrivateKey, jwt.Keyfunc) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	return key, func(*jwt.Token) (any, error) { return &key.PublicKey, nil }
}

func TestSignVerifyRoundTrip(t *testing.T) {
	key, keyFunc := signingKeyAndFunc(t)
	statuses := []uint8{0, 1, 2, 3}

	tokenString, err := Sign("https://issuer.example", "list-1", statuses, time.Hour, key, jwt.SigningMethodES256, "key-1")
	require.NoError(t, err)

	claims, err := Verify(tokenString, keyFunc)
	require.NoError(t, err)
	assert.Equal(t, "https://issuer.example", claims.Issuer)

	status, err := StatusAt(claims, 2, len(statuses))
	require.NoError(t, err)
	assert.Equal(t, uint8(2), status)
}

func TestVerifyRejectsWrongTyp(t *testing.T) {
	key, keyFunc := signingKeyAndFunc(t)
	claims := TokenClaims{RegisteredClaims: jwt.RegisteredClaims{Issuer: "x"}}
	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	token.Header["typ"] = "JWT"
	tokenString, err := token.SignedString(key)
	require.NoError(t, err)

	_, err = Verify(tokenString, keyFunc)
	require.Error(t, err)
}

func TestPublisherPublishesOnceAtHigherVersion(t *testing.T) {
	dir := t.TempDir()
	listPath := filepath.Join(dir, "status-list.bin")
	pub := NewPublisher(listPath)

	calls := 0
	build := func() ([]byte, error) {
		calls++
		return []byte("content"), nil
	}

	published, err := pub.Publish(context.Background(), 1, build)
	require.NoError(t, err)
	assert.True(t, published)
	assert.Equal(t, 1, calls)

	published, err = pub.Publish(context.Background(), 1, build)
	require.NoError(t, err)
	assert.False(t, published, "same version must no-op")
	assert.Equal(t, 1, calls)

	published, err = pub.Publish(context.Background(), 2, build)
	require.NoError(t, err)
	assert.True(t, published)
	assert.Equal(t, 2, calls)

	data, err := os.ReadFile(listPath)
	require.NoError(t, err)
	assert.Equal(t, "content", string(data))
}

func TestConsulterFetchesVerifiesAndCaches(t *testing.T) {
	key, keyFunc := signingKeyAndFunc(t)
	statuses := []uint8{0, 1, 2}
	tokenString, err := Sign("https://issuer.example", "list-1", statuses, time.Hour, key, jwt.SigningMethodES256, "")
	require.NoError(t, err)

	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.Write([]byte(tokenString))
	}))
	defer server.Close()

	consulter := NewConsulter(server.Client(), keyFunc, time.Minute)
	defer consulter.Stop()

	status, err := consulter.Status(context.Background(), Claim{Idx: 1, URI: server.URL}, len(statuses))
	require.NoError(t, err)
	assert.Equal(t, uint8(1), status)

	status, err = consulter.Status(context.Background(), Claim{Idx: 2, URI: server.URL}, len(statuses))
	require.NoError(t, err)
	assert.Equal(t, uint8(2), status)
	assert.Equal(t, 1, requests, "second lookup must be served from cache")
}
