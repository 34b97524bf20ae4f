package androidattest

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

// buildLegacyCertPair signs tbs with parentKey and hand-encodes a
// Certificate whose signatureAlgorithm carries an explicit NULL
// parameter on ecdsa-with-SHA256 — the legacy encoding §4.11 requires
// accepting alongside the normal parameter-less form.
func buildLegacyCertPair(t *testing.T, parentKey *ecdsa.PrivateKey) *x509.Certificate {
	t.Helper()

	tbs := []byte("arbitrary TBSCertificate content for the legacy-signature test")
	digest := sha256.Sum256(tbs)
	r, s, err := ecdsa.Sign(rand.Reader, parentKey, digest[:])
	require.NoError(t, err)

	sigDER, err := asn1.Marshal(struct{ R, S *big.Int }{r, s})
	require.NoError(t, err)

	tbsRaw, err := asn1.Marshal(struct{ X int }{1})
	require.NoError(t, err)

	raw := rawCertificate{
		TBSCertificate: asn1.RawValue{FullBytes: tbsRaw},
		SignatureAlgorithm: pkix.AlgorithmIdentifier{
			Algorithm:  oidECDSAWithSHA256,
			Parameters: asn1.NullRawValue,
		},
		SignatureValue: asn1.BitString{Bytes: sigDER, BitLength: len(sigDER) * 8},
	}
	rawDER, err := asn1.Marshal(raw)
	require.NoError(t, err)

	return &x509.Certificate{
		Raw:               rawDER,
		RawTBSCertificate: tbs,
		Signature:         sigDER,
	}
}

func TestVerifySignatureTolerantAcceptsLegacyNullParameter(t *testing.T) {
	parentKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	parent := &x509.Certificate{PublicKey: &parentKey.PublicKey}

	cert := buildLegacyCertPair(t, parentKey)

	require.NoError(t, verifySignatureTolerant(cert, parent))
}

func TestVerifySignatureTolerantRejectsWrongKey(t *testing.T) {
	parentKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	otherKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	cert := buildLegacyCertPair(t, parentKey)
	wrongParent := &x509.Certificate{PublicKey: &otherKey.PublicKey}

	require.Error(t, verifySignatureTolerant(cert, wrongParent))
}
