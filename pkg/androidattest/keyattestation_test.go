package androidattest_test

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"math/big"
	"testing"
	"time"

	"github.com/MinBZK/nl-wallet-sub004/pkg/androidattest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testKeyDescription mirrors the wire shape of the key-attestation
// extension closely enough to produce a decodable payload; it is not
// the package's own (unexported) asn1KeyDescription type, matching how
// a real attestation service would independently encode the extension.
type testKeyDescription struct {
	AttestationVersion       int
	AttestationSecurityLevel asn1.Enumerated
	KeymasterVersion         int
	KeymasterSecurityLevel   asn1.Enumerated
	AttestationChallenge     []byte
	UniqueID                 []byte
	SoftwareEnforced         asn1.RawValue
	TeeEnforced              asn1.RawValue
}

func emptyAuthorizationList(t *testing.T) asn1.RawValue {
	t.Helper()
	b, err := asn1.Marshal(struct{}{})
	require.NoError(t, err)
	return asn1.RawValue{FullBytes: b}
}

func buildChain(t *testing.T, challenge []byte) (leaf *x509.Certificate, root *x509.Certificate, roots *x509.CertPool) {
	t.Helper()

	rootKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	now := time.Now()
	rootTemplate := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "test google root"},
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.Add(10 * 365 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	rootDER, err := x509.CreateCertificate(rand.Reader, rootTemplate, rootTemplate, &rootKey.PublicKey, rootKey)
	require.NoError(t, err)
	root, err = x509.ParseCertificate(rootDER)
	require.NoError(t, err)

	leafKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	desc := testKeyDescription{
		AttestationVersion:       4,
		AttestationSecurityLevel: 1,
		KeymasterVersion:         4,
		KeymasterSecurityLevel:   1,
		AttestationChallenge:     challenge,
		UniqueID:                 nil,
		SoftwareEnforced:         emptyAuthorizationList(t),
		TeeEnforced:              emptyAuthorizationList(t),
	}
	descDER, err := asn1.Marshal(desc)
	require.NoError(t, err)

	leafTemplate := &x509.Certificate{
		SerialNumber:          big.NewInt(2),
		Subject:               pkix.Name{CommonName: "test attested key"},
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.Add(365 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		ExtraExtensions: []pkix.Extension{
			{Id: androidattest.OIDKeyAttestation, Value: descDER},
		},
	}
	leafDER, err := x509.CreateCertificate(rand.Reader, leafTemplate, root, &leafKey.PublicKey, rootKey)
	require.NoError(t, err)
	leaf, err = x509.ParseCertificate(leafDER)
	require.NoError(t, err)

	roots = x509.NewCertPool()
	roots.AddCert(root)
	return leaf, root, roots
}

func TestVerifyKeyAttestationDecodesChallenge(t *testing.T) {
	leaf, _, roots := buildChain(t, []byte("registration-challenge"))

	desc, err := androidattest.VerifyKeyAttestation([]*x509.Certificate{leaf}, roots, time.Now())
	require.NoError(t, err)
	assert.Equal(t, []byte("registration-challenge"), desc.AttestationChallenge)
	assert.Equal(t, 4, desc.AttestationVersion)
}

func TestVerifyKeyAttestationRejectsMissingExtension(t *testing.T) {
	rootKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	now := time.Now()
	rootTemplate := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "test root"},
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.Add(time.Hour * 24 * 365),
		KeyUsage:              x509.KeyUsageCertSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	rootDER, err := x509.CreateCertificate(rand.Reader, rootTemplate, rootTemplate, &rootKey.PublicKey, rootKey)
	require.NoError(t, err)
	root, err := x509.ParseCertificate(rootDER)
	require.NoError(t, err)

	leafKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	leafTemplate := &x509.Certificate{
		SerialNumber:          big.NewInt(2),
		Subject:               pkix.Name{CommonName: "no extension"},
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.Add(time.Hour * 24 * 365),
		BasicConstraintsValid: true,
	}
	leafDER, err := x509.CreateCertificate(rand.Reader, leafTemplate, root, &leafKey.PublicKey, rootKey)
	require.NoError(t, err)
	leaf, err := x509.ParseCertificate(leafDER)
	require.NoError(t, err)

	roots := x509.NewCertPool()
	roots.AddCert(root)

	_, err = androidattest.VerifyKeyAttestation([]*x509.Certificate{leaf}, roots, time.Now())
	require.Error(t, err)
	assert.ErrorIs(t, err, androidattest.ErrKeyAttestationExtensionMissing)
}

func TestVerifyKeyAttestationRejectsUntrustedRoot(t *testing.T) {
	leaf, _, _ := buildChain(t, []byte("challenge"))
	_, err := androidattest.VerifyKeyAttestation([]*x509.Certificate{leaf}, x509.NewCertPool(), time.Now())
	require.Error(t, err)
	assert.ErrorIs(t, err, androidattest.ErrKeyAttestationInvalid)
}
