package androidattest

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"fmt"
	"math/big"
	"time"
)

// OIDKeyAttestation is the Android key-attestation certificate
// extension OID (§4.11).
var OIDKeyAttestation = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 11129, 2, 1, 17}

// oidECDSAWithSHA256 is used to recognise the legacy encoding below,
// independent of crypto/x509's stricter signature-algorithm table.
var oidECDSAWithSHA256 = asn1.ObjectIdentifier{1, 2, 840, 10045, 4, 3, 2}

// Errors returned by VerifyKeyAttestation.
var (
	ErrKeyAttestationExtensionMissing = fmt.Errorf("androidattest: key attestation extension not present")
	ErrKeyAttestationInvalid          = fmt.Errorf("androidattest: key attestation chain invalid")
)

// KeyDescription is the subset of the ASN.1 KeyDescription structure
// (Android key-attestation extension) this verifier decodes. The two
// AuthorizationList SEQUENCEs (softwareEnforced, teeEnforced) carry a
// large, device-dependent set of optional IMPLICIT-tagged fields
// (purpose, padding, digest, rootOfTrust, application id, ...); §4.11
// only requires verifying the chain and the extension's presence and
// challenge, so those lists are kept as opaque DER here rather than
// fully schema'd — a caller needing a specific field decodes
// SoftwareEnforced/TeeEnforced itself.
type KeyDescription struct {
	AttestationVersion       int
	AttestationSecurityLevel int
	KeymasterVersion         int
	KeymasterSecurityLevel   int
	AttestationChallenge     []byte
	UniqueID                 []byte
	SoftwareEnforced         []byte
	TeeEnforced              []byte
}

// asn1KeyDescription mirrors the extension's wire structure.
type asn1KeyDescription struct {
	AttestationVersion       int
	AttestationSecurityLevel asn1.Enumerated
	KeymasterVersion         int
	KeymasterSecurityLevel   asn1.Enumerated
	AttestationChallenge     []byte
	UniqueID                 []byte
	SoftwareEnforced         asn1.RawValue
	TeeEnforced              asn1.RawValue
}

// rawCertificate exposes the AlgorithmIdentifier crypto/x509.Certificate
// decodes but does not re-expose, needed by verifySignatureTolerant's
// legacy-encoding fallback below.
type rawCertificate struct {
	TBSCertificate     asn1.RawValue
	SignatureAlgorithm pkix.AlgorithmIdentifier
	SignatureValue     asn1.BitString
}

// VerifyKeyAttestation verifies chain (leaf first) up to roots,
// tolerating the legacy NULL-parameter ECDSA signature-algorithm
// encoding some Android devices emit (§4.11), and returns the decoded
// KeyDescription from the leaf's key-attestation extension.
func VerifyKeyAttestation(chain []*x509.Certificate, roots *x509.CertPool, at time.Time) (*KeyDescription, error) {
	if len(chain) == 0 {
		return nil, fmt.Errorf("%w: empty chain", ErrKeyAttestationInvalid)
	}
	leaf := chain[0]

	if err := verifyChainTolerant(chain, roots, at); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyAttestationInvalid, err)
	}

	var ext *pkix.Extension
	for i := range leaf.Extensions {
		if leaf.Extensions[i].Id.Equal(OIDKeyAttestation) {
			ext = &leaf.Extensions[i]
			break
		}
	}
	if ext == nil {
		return nil, ErrKeyAttestationExtensionMissing
	}

	var wire asn1KeyDescription
	if _, err := asn1.Unmarshal(ext.Value, &wire); err != nil {
		return nil, fmt.Errorf("%w: malformed KeyDescription: %v", ErrKeyAttestationInvalid, err)
	}

	return &KeyDescription{
		AttestationVersion:       wire.AttestationVersion,
		AttestationSecurityLevel: int(wire.AttestationSecurityLevel),
		KeymasterVersion:         wire.KeymasterVersion,
		KeymasterSecurityLevel:   int(wire.KeymasterSecurityLevel),
		AttestationChallenge:     wire.AttestationChallenge,
		UniqueID:                 wire.UniqueID,
		SoftwareEnforced:         wire.SoftwareEnforced.FullBytes,
		TeeEnforced:              wire.TeeEnforced.FullBytes,
	}, nil
}

// verifyChainTolerant verifies that each certificate in chain (leaf
// first, root last) is signed by the next, and that the final
// certificate chains to roots. Signature checks use
// verifySignatureTolerant so a legacy NULL-parameter ECDSA signature
// is accepted as a recognised alternate algorithm encoding rather than
// rejected outright, per §4.11.
func verifyChainTolerant(chain []*x509.Certificate, roots *x509.CertPool, at time.Time) error {
	for i := 0; i < len(chain)-1; i++ {
		if err := verifySignatureTolerant(chain[i], chain[i+1]); err != nil {
			return fmt.Errorf("certificate %d not signed by certificate %d: %w", i, i+1, err)
		}
	}

	root := chain[len(chain)-1]
	if _, err := root.Verify(x509.VerifyOptions{Roots: roots, CurrentTime: at, KeyUsages: []x509.ExtKeyUsage{x509.ExtKeyUsageAny}}); err != nil {
		return fmt.Errorf("root certificate not trusted: %w", err)
	}
	for _, c := range chain {
		if at.Before(c.NotBefore) || at.After(c.NotAfter) {
			return fmt.Errorf("certificate %q not valid at %s", c.Subject, at)
		}
	}
	return nil
}

// verifySignatureTolerant verifies that parent signed cert. It first
// tries crypto/x509's own CheckSignatureFrom; if that fails, it
// re-parses the raw certificate to read the signature
// AlgorithmIdentifier directly and, when the OID is
// ecdsa-with-SHA256 regardless of its parameter encoding (the legacy
// form carries an explicit NULL parameter, normally reserved for
// RSA), verifies the ECDSA signature manually.
func verifySignatureTolerant(cert, parent *x509.Certificate) error {
	if err := cert.CheckSignatureFrom(parent); err == nil {
		return nil
	}

	pub, ok := parent.PublicKey.(*ecdsa.PublicKey)
	if !ok {
		return fmt.Errorf("legacy signature fallback requires an ECDSA parent key, got %T", parent.PublicKey)
	}

	var raw rawCertificate
	if _, err := asn1.Unmarshal(cert.Raw, &raw); err != nil {
		return fmt.Errorf("parse raw certificate: %w", err)
	}
	if !raw.SignatureAlgorithm.Algorithm.Equal(oidECDSAWithSHA256) {
		return fmt.Errorf("unrecognised legacy signature algorithm %v", raw.SignatureAlgorithm.Algorithm)
	}

	var sig struct{ R, S *big.Int }
	if _, err := asn1.Unmarshal(cert.Signature, &sig); err != nil {
		return fmt.Errorf("parse ECDSA signature: %w", err)
	}

	digest := sha256.Sum256(cert.RawTBSCertificate)
	if !ecdsa.Verify(pub, digest[:], sig.R, sig.S) {
		return fmt.Errorf("legacy ECDSA signature verification failed")
	}
	return nil
}
