// Package certchaintest builds deterministic CA -> leaf certificate
// chains, with the custom extensions of spec §4.4 attached to the
// leaf, for use in tests only.
//
// Grounded on the teacher's pkg/mdoc/iaca.go (x509.CreateCertificate
// template pattern for a self-signed root plus a signed leaf) and on
// original_source's mock_chain.rs (a deterministic CA-chain builder
// kept out of the production tree and used only by tests).
package certchaintest

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"time"

	"github.com/MinBZK/nl-wallet-sub004/pkg/credential/cbor"
	"github.com/MinBZK/nl-wallet-sub004/pkg/credential/certchain"
)

// Chain is a generated root-CA + leaf pair, DER-decoded for immediate
// use with certchain.Verify.
type Chain struct {
	Root    *x509.Certificate
	Leaf    *x509.Certificate
	LeafKey *ecdsa.PrivateKey
	Roots   *x509.CertPool
}

// Option customizes the generated leaf certificate.
type Option func(*x509.Certificate)

// WithDNSName sets the leaf's SAN DNS name (the verifier's client_id).
func WithDNSName(name string) Option {
	return func(c *x509.Certificate) { c.DNSNames = []string{name} }
}

// WithReaderRegistration attaches a CBOR-encoded ReaderRegistration
// under OID 2.1.123.1 and the reader-auth EKU.
func WithReaderRegistration(reg certchain.ReaderRegistration) Option {
	return func(c *x509.Certificate) {
		enc, err := cbor.New()
		if err != nil {
			panic(err)
		}
		payload, err := enc.Marshal(reg)
		if err != nil {
			panic(err)
		}
		c.ExtraExtensions = append(c.ExtraExtensions, pkix.Extension{
			Id:    certchain.OIDReaderRegistrationExtension,
			Value: payload,
		})
		c.UnknownExtKeyUsage = append(c.UnknownExtKeyUsage, certchain.OIDReaderAuthEKU)
	}
}

// WithIssuerRegistration attaches a CBOR-encoded IssuerRegistration
// and the doc-signing EKU.
func WithIssuerRegistration(reg certchain.IssuerRegistration) Option {
	return func(c *x509.Certificate) {
		enc, err := cbor.New()
		if err != nil {
			panic(err)
		}
		payload, err := enc.Marshal(reg)
		if err != nil {
			panic(err)
		}
		c.ExtraExtensions = append(c.ExtraExtensions, pkix.Extension{
			Id:    certchain.OIDIssuerRegistrationExtension,
			Value: payload,
		})
		c.UnknownExtKeyUsage = append(c.UnknownExtKeyUsage, certchain.OIDDocSigningEKU)
	}
}

// Generate builds a self-signed root CA and a leaf signed by it, with
// the given options applied to the leaf template before signing.
func Generate(opts ...Option) (*Chain, error) {
	rootKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("certchaintest: generating root key: %w", err)
	}

	now := time.Now()
	rootTemplate := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "test root CA"},
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.Add(10 * 365 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}

	rootDER, err := x509.CreateCertificate(rand.Reader, rootTemplate, rootTemplate, &rootKey.PublicKey, rootKey)
	if err != nil {
		return nil, fmt.Errorf("certchaintest: creating root certificate: %w", err)
	}
	root, err := x509.ParseCertificate(rootDER)
	if err != nil {
		return nil, fmt.Errorf("certchaintest: parsing root certificate: %w", err)
	}

	leafKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("certchaintest: generating leaf key: %w", err)
	}

	leafTemplate := &x509.Certificate{
		SerialNumber:          big.NewInt(2),
		Subject:               pkix.Name{CommonName: "test leaf"},
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.Add(365 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  false,
	}
	for _, opt := range opts {
		opt(leafTemplate)
	}

	leafDER, err := x509.CreateCertificate(rand.Reader, leafTemplate, root, &leafKey.PublicKey, rootKey)
	if err != nil {
		return nil, fmt.Errorf("certchaintest: creating leaf certificate: %w", err)
	}
	leaf, err := x509.ParseCertificate(leafDER)
	if err != nil {
		return nil, fmt.Errorf("certchaintest: parsing leaf certificate: %w", err)
	}

	roots := x509.NewCertPool()
	roots.AddCert(root)

	return &Chain{Root: root, Leaf: leaf, LeafKey: leafKey, Roots: roots}, nil
}
