// Package certchain verifies X.509 certificate chains against a set of
// trust anchors and decodes the two custom extensions carried by
// issuer and reader/verifier certificates: ReaderRegistration (the
// authorised-attribute tree a verifier may request) and
// IssuerRegistration (the organisation an issuer signs on behalf of).
//
// Grounded on the teacher's pkg/mdoc/iaca.go (trust-anchor chain
// validation via crypto/x509.Verify) and pkg/mdoc/reader_auth.go
// (custom-extension decoding, role/EKU checks); generalized from the
// teacher's mDL-only OIDs to the two custom extensions of spec §4.4.
package certchain

import (
	"crypto/x509"
	"encoding/asn1"
	"fmt"
	"time"

	"github.com/MinBZK/nl-wallet-sub004/pkg/credential/cbor"
)

// Errors returned by this package. Callers branch on these, not on
// error strings.
var (
	ErrChainInvalid              = fmt.Errorf("certchain: chain does not validate to a trust anchor")
	ErrRoleMismatch              = fmt.Errorf("certchain: leaf EKU does not match requested role")
	ErrMissingReaderRegistration = fmt.Errorf("certchain: verifier leaf carries no reader-registration extension")
	ErrMissingIssuerRegistration = fmt.Errorf("certchain: issuer leaf carries no issuer-registration extension")
	ErrClientIDMismatch          = fmt.Errorf("certchain: client_id does not match leaf SAN DNS name")
	ErrMalformedExtension        = fmt.Errorf("certchain: malformed custom extension")
)

// OIDs for the two custom extensions and the two leaf EKUs, per
// spec §4.4. Root OID arcs follow the teacher's ISO-18013-5 Annex B
// numbering style (pkg/mdoc/iaca.go); the reader-authorisation arm is
// pinned exactly to 2.1.123.1 as spec'd.
var (
	OIDReaderRegistrationExtension = asn1.ObjectIdentifier{2, 1, 123, 1}
	OIDIssuerRegistrationExtension = asn1.ObjectIdentifier{2, 1, 123, 2}

	OIDReaderAuthEKU = asn1.ObjectIdentifier{2, 1, 123, 10}
	OIDDocSigningEKU = asn1.ObjectIdentifier{2, 1, 123, 11}
)

// Role is the capability a leaf certificate is being verified for.
type Role int

const (
	RoleVerifier Role = iota
	RoleIssuer
)

// ekuOID returns the extended-key-usage OID required for r.
func (r Role) ekuOID() asn1.ObjectIdentifier {
	if r == RoleIssuer {
		return OIDDocSigningEKU
	}
	return OIDReaderAuthEKU
}

// AttributeTree is a namespace -> attribute -> sub-tree authorization
// tree, mirroring the recursive structure reader_auth.rs carries
// (not just a flat namespace/attribute set): an empty sub-tree still
// authorizes the attribute itself. A namespace authorizes only the
// attributes listed under it; an empty namespace map authorizes none.
type AttributeTree map[string]map[string]AttributeTree

// Contains reports whether t authorizes every namespace/attribute
// pair named in requested. Extra entries in t beyond what's requested
// are fine; requested must be a subset.
func (t AttributeTree) Contains(requested map[string][]string) (missing map[string][]string) {
	missing = map[string][]string{}
	for ns, attrs := range requested {
		authorizedAttrs, ok := t[ns]
		for _, attr := range attrs {
			if !ok {
				missing[ns] = append(missing[ns], attr)
				continue
			}
			if _, ok := authorizedAttrs[attr]; !ok {
				missing[ns] = append(missing[ns], attr)
			}
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return missing
}

// ReaderRegistration is the CBOR payload of the reader-authorisation
// extension (OID 2.1.123.1): purpose, retention/sharing/deletion
// policy statements and the authorised attribute tree.
type ReaderRegistration struct {
	Organization string        `cbor:"organization"`
	Purpose      string        `cbor:"purpose"`
	RetentionDays *int         `cbor:"retention_days,omitempty"`
	SharesData   bool          `cbor:"shares_data"`
	DeletesOnUse bool          `cbor:"deletes_on_use"`
	Attributes   AttributeTree `cbor:"attributes"`
}

// UnregisteredAttributesError reports attributes requested in a
// session that the leaf's ReaderRegistration does not authorize.
type UnregisteredAttributesError struct {
	Missing map[string][]string
}

func (e *UnregisteredAttributesError) Error() string {
	return fmt.Sprintf("certchain: unregistered attributes requested: %v", e.Missing)
}

// IssuerRegistration is the CBOR payload of the issuer-authorisation
// extension: the organisation the document-signer leaf signs on
// behalf of.
type IssuerRegistration struct {
	Organization string `cbor:"organization"`
}

// VerifyOptions configures chain verification.
type VerifyOptions struct {
	// Roots are the configured trust anchors.
	Roots *x509.CertPool

	// Intermediates, if any, supplied alongside the leaf.
	Intermediates *x509.CertPool

	// AtTime is the point in time validity is evaluated at.
	AtTime time.Time

	// Role is the capability being claimed by the leaf.
	Role Role

	// RequestedAttributes, for RoleVerifier, are the namespace ->
	// attribute names actually requested in the session; the leaf's
	// ReaderRegistration.Attributes must be a superset.
	RequestedAttributes map[string][]string

	// ClientID, for RoleVerifier, is the authorization request's
	// client_id; it must equal the leaf's SAN DNS name.
	ClientID string
}

// Result carries the decoded registration extracted from the leaf,
// whichever role was verified.
type Result struct {
	Chain              []*x509.Certificate
	ReaderRegistration *ReaderRegistration
	IssuerRegistration *IssuerRegistration
}

// Verify validates leaf (plus any supplied intermediates) against the
// configured trust anchors and enforces the role-specific rules of
// spec §4.4: EKU match, registration-extension presence, the
// authorized-attribute superset check for verifiers, and the
// client_id/SAN match for verifiers.
func Verify(leaf *x509.Certificate, opts VerifyOptions) (*Result, error) {
	verifyOpts := x509.VerifyOptions{
		Roots:         opts.Roots,
		Intermediates: opts.Intermediates,
		CurrentTime:   opts.AtTime,
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	}

	chains, err := leaf.Verify(verifyOpts)
	if err != nil || len(chains) == 0 {
		return nil, fmt.Errorf("%w: %v", ErrChainInvalid, err)
	}

	if !hasEKU(leaf, opts.Role.ekuOID()) {
		return nil, ErrRoleMismatch
	}

	result := &Result{Chain: chains[0]}

	switch opts.Role {
	case RoleVerifier:
		reg, err := decodeReaderRegistration(leaf)
		if err != nil {
			return nil, err
		}
		if missing := reg.Attributes.Contains(opts.RequestedAttributes); missing != nil {
			return nil, &UnregisteredAttributesError{Missing: missing}
		}
		if err := matchClientID(leaf, opts.ClientID); err != nil {
			return nil, err
		}
		result.ReaderRegistration = reg

	case RoleIssuer:
		reg, err := decodeIssuerRegistration(leaf)
		if err != nil {
			return nil, err
		}
		result.IssuerRegistration = reg
	}

	return result, nil
}

func hasEKU(cert *x509.Certificate, oid asn1.ObjectIdentifier) bool {
	for _, got := range cert.UnknownExtKeyUsage {
		if got.Equal(oid) {
			return true
		}
	}
	return false
}

func matchClientID(cert *x509.Certificate, clientID string) error {
	for _, name := range cert.DNSNames {
		if name == clientID {
			return nil
		}
	}
	return ErrClientIDMismatch
}

func extensionPayload(cert *x509.Certificate, oid asn1.ObjectIdentifier) ([]byte, bool) {
	for _, ext := range cert.Extensions {
		if ext.Id.Equal(oid) {
			return ext.Value, true
		}
	}
	return nil, false
}

func decodeReaderRegistration(cert *x509.Certificate) (*ReaderRegistration, error) {
	payload, ok := extensionPayload(cert, OIDReaderRegistrationExtension)
	if !ok {
		return nil, ErrMissingReaderRegistration
	}
	enc, err := cbor.New()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedExtension, err)
	}
	var reg ReaderRegistration
	if err := enc.Unmarshal(payload, &reg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedExtension, err)
	}
	if reg.Attributes == nil {
		reg.Attributes = AttributeTree{}
	}
	return &reg, nil
}

func decodeIssuerRegistration(cert *x509.Certificate) (*IssuerRegistration, error) {
	payload, ok := extensionPayload(cert, OIDIssuerRegistrationExtension)
	if !ok {
		return nil, ErrMissingIssuerRegistration
	}
	enc, err := cbor.New()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedExtension, err)
	}
	var reg IssuerRegistration
	if err := enc.Unmarshal(payload, &reg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedExtension, err)
	}
	return &reg, nil
}
