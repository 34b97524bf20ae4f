// Package credential implements the attestation data model shared by
// MDOC (ISO/IEC 18013-5) and SD-JWT VC credentials: the types,
// invariant-enforcing constructors, and digest computation described
// in spec §3/§4.2.
//
// Grounded on dc4eu-vc's pkg/mdoc/mdoc.go and pkg/mdoc/mso.go, but
// generalized away from the mDL-specific MDoc struct (FamilyName,
// DrivingPrivileges, ...) to an attribute-map model: any doctype and
// namespace set, not just org.iso.18013.5.1.mDL, per spec §3's "map
// from namespace to an ordered list of IssuerSignedItem records".
package credential

import (
	"crypto/rand"
	"fmt"
	"time"

	"github.com/MinBZK/nl-wallet-sub004/pkg/credential/cbor"
	"github.com/MinBZK/nl-wallet-sub004/pkg/credential/integrity"
	"github.com/MinBZK/nl-wallet-sub004/pkg/credential/vecnonempty"
)

// saltLength is the minimum salt size mandated for MDOC (§3 invariant 4:
// "Salts are at least 128 bits (MDOC uses 256 bits)").
const saltLength = 32

// Errors returned by this package's constructors and verifiers.
var (
	ErrEmptyNamespace     = fmt.Errorf("credential: namespace cannot be empty")
	ErrDuplicateDigestID  = fmt.Errorf("credential: duplicate digestID in namespace")
	ErrInvalidValidity    = fmt.Errorf("credential: invalid validity window")
	ErrDigestMismatch     = fmt.Errorf("credential: digest mismatch")
	ErrUnknownDigestAlgo  = fmt.Errorf("credential: unknown digest algorithm")
	ErrMissingDigest      = fmt.Errorf("credential: no digest recorded for item")
)

// DigestAlgorithm names the hash used for IssuerSignedItem digests.
type DigestAlgorithm string

const (
	DigestSHA256 DigestAlgorithm = "SHA-256"
	DigestSHA512 DigestAlgorithm = "SHA-512"
)

// IssuerSignedItem is a single signed data element within a namespace.
type IssuerSignedItem struct {
	DigestID          uint64 `cbor:"digestID"`
	Random            []byte `cbor:"random"`
	ElementIdentifier string `cbor:"elementIdentifier"`
	ElementValue      any    `cbor:"elementValue"`
}

// NewIssuerSignedItem constructs an IssuerSignedItem with a fresh
// saltLength-byte random salt, per §4.2's "IssuerSignedItem::new(digest_id,
// name, value) generates a fresh 32-byte salt".
func NewIssuerSignedItem(digestID uint64, name string, value any) (IssuerSignedItem, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return IssuerSignedItem{}, fmt.Errorf("credential: generating salt: %w", err)
	}
	return IssuerSignedItem{
		DigestID:          digestID,
		Random:            salt,
		ElementIdentifier: name,
		ElementValue:      value,
	}, nil
}

func (i IssuerSignedItem) digestID() uint64 { return i.DigestID }

// IssuerNameSpaces maps a namespace to its non-empty, digestID-unique
// list of signed items. §4.2: "IssuerNameSpaces ... cannot be
// constructed empty"; digestIDs are unique within a namespace but the
// map itself need not be contiguous (§3 invariant 5).
type IssuerNameSpaces map[string]vecnonempty.VecNonEmptyUnique[IssuerSignedItem, uint64]

// NewIssuerNameSpaces validates and wraps a namespace -> items map.
// Each namespace's item list must be non-empty and have unique
// digestIDs; the outer map itself must be non-empty.
func NewIssuerNameSpaces(items map[string][]IssuerSignedItem) (IssuerNameSpaces, error) {
	if len(items) == 0 {
		return nil, ErrEmptyNamespace
	}
	out := make(IssuerNameSpaces, len(items))
	for ns, list := range items {
		vec, err := vecnonempty.TryNewUnique(list, IssuerSignedItem.digestID)
		if err != nil {
			return nil, fmt.Errorf("%w: namespace %q: %v", ErrDuplicateDigestID, ns, err)
		}
		out[ns] = vec
	}
	return out, nil
}

// ValueDigests maps namespace -> (digestID -> digest value).
type ValueDigests map[string]map[uint64][]byte

// ComputeValueDigests implements §4.2's "ValueDigests::try_from(&IssuerNameSpaces)
// computes cbor_digest(tagged_bytes(item)) for each item": the digest
// algorithm is supplied by the enclosing MSO, not the namespace set.
func ComputeValueDigests(ns IssuerNameSpaces, algo DigestAlgorithm, enc *cbor.Encoder) (ValueDigests, error) {
	hasher, err := newDigester(algo)
	if err != nil {
		return nil, err
	}

	out := make(ValueDigests, len(ns))
	for namespace, items := range ns {
		digestsForNS := make(map[uint64][]byte, items.Len())
		for _, item := range items.Items() {
			tagged, err := cbor.WrapTagged(enc, item)
			if err != nil {
				return nil, fmt.Errorf("credential: tagging item %d in %q: %w", item.DigestID, namespace, err)
			}
			taggedBytes, err := tagged.MarshalCBOR()
			if err != nil {
				return nil, fmt.Errorf("credential: encoding tagged item %d in %q: %w", item.DigestID, namespace, err)
			}
			digestsForNS[item.DigestID] = hasher(taggedBytes)
		}
		out[namespace] = digestsForNS
	}
	return out, nil
}

// VerifyValueDigests checks that every item in ns hashes to the digest
// recorded in digests, per §3 invariant 1 ("every retained disclosure
// hashes ... to exactly one digest listed in the issuer-signed envelope").
func VerifyValueDigests(ns IssuerNameSpaces, digests ValueDigests, algo DigestAlgorithm, enc *cbor.Encoder) error {
	hasher, err := newDigester(algo)
	if err != nil {
		return err
	}

	for namespace, items := range ns {
		nsDigests, ok := digests[namespace]
		if !ok {
			return fmt.Errorf("%w: namespace %q missing from value digests", ErrMissingDigest, namespace)
		}
		for _, item := range items.Items() {
			want, ok := nsDigests[item.DigestID]
			if !ok {
				return fmt.Errorf("%w: digestID %d in namespace %q", ErrMissingDigest, item.DigestID, namespace)
			}
			tagged, err := cbor.WrapTagged(enc, item)
			if err != nil {
				return fmt.Errorf("credential: tagging item %d in %q: %w", item.DigestID, namespace, err)
			}
			taggedBytes, err := tagged.MarshalCBOR()
			if err != nil {
				return fmt.Errorf("credential: encoding tagged item %d in %q: %w", item.DigestID, namespace, err)
			}
			got := hasher(taggedBytes)
			if !bytesEqual(got, want) {
				return fmt.Errorf("%w: digestID %d in namespace %q", ErrDigestMismatch, item.DigestID, namespace)
			}
		}
	}
	return nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func newDigester(algo DigestAlgorithm) (func([]byte) []byte, error) {
	switch algo {
	case DigestSHA256:
		return sha256Digest, nil
	case DigestSHA512:
		return sha512Digest, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDigestAlgo, algo)
	}
}

// DeviceKeyInfo describes the device-bound public key and its
// authorized scope of disclosure.
type DeviceKeyInfo struct {
	DeviceKey         []byte             `cbor:"deviceKey"`
	KeyAuthorizations *KeyAuthorizations `cbor:"keyAuthorizations,omitempty"`
}

// KeyAuthorizations restricts which namespaces/elements a device key
// may be used to disclose.
type KeyAuthorizations struct {
	NameSpaces   []string            `cbor:"nameSpaces,omitempty"`
	DataElements map[string][]string `cbor:"dataElements,omitempty"`
}

// ValidityInfo carries the MSO's validity window.
type ValidityInfo struct {
	Signed         time.Time  `cbor:"signed"`
	ValidFrom      time.Time  `cbor:"validFrom"`
	ValidUntil     time.Time  `cbor:"validUntil"`
	ExpectedUpdate *time.Time `cbor:"expectedUpdate,omitempty"`
}

// NewValidityInfo validates the window per §3 invariant 3: "Validity
// windows are non-empty; valid_from <= valid_until; signed <= valid_from
// for MDOC."
func NewValidityInfo(signed, validFrom, validUntil time.Time, expectedUpdate *time.Time) (ValidityInfo, error) {
	if validFrom.After(validUntil) {
		return ValidityInfo{}, fmt.Errorf("%w: valid_from %s after valid_until %s", ErrInvalidValidity, validFrom, validUntil)
	}
	if signed.After(validFrom) {
		return ValidityInfo{}, fmt.Errorf("%w: signed %s after valid_from %s", ErrInvalidValidity, signed, validFrom)
	}
	return ValidityInfo{Signed: signed, ValidFrom: validFrom, ValidUntil: validUntil, ExpectedUpdate: expectedUpdate}, nil
}

// MobileSecurityObject is the issuer-signed MSO: digest lists, holder
// key, validity window, and doctype/type-metadata provenance.
type MobileSecurityObject struct {
	Version                  string          `cbor:"version"`
	DigestAlgorithm          DigestAlgorithm `cbor:"digestAlgorithm"`
	ValueDigests             ValueDigests    `cbor:"valueDigests"`
	DeviceKeyInfo            DeviceKeyInfo   `cbor:"deviceKeyInfo"`
	DocType                  string          `cbor:"docType"`
	ValidityInfo             ValidityInfo    `cbor:"validityInfo"`
	IssuerURI                *string         `cbor:"issuerUri,omitempty"`
	AttestationQualification *string         `cbor:"attestationQualification,omitempty"`
	TypeMetadataIntegrity    *string         `cbor:"typeMetadataIntegrity,omitempty"` // integrity.Token, formatted
}

// NewMobileSecurityObject builds an MSO from already-computed digests,
// validating that docType is non-empty; validity is taken as given.
// typeMetadataIntegrity, if non-nil, is an encoded integrity.Token
// string (see pkg/credential/integrity) binding this MSO to its
// SD-JWT-style type-metadata chain (§4.6).
func NewMobileSecurityObject(
	docType string,
	algo DigestAlgorithm,
	digests ValueDigests,
	deviceKey DeviceKeyInfo,
	validity ValidityInfo,
	issuerURI *string,
	typeMetadataIntegrity *string,
) (MobileSecurityObject, error) {
	if docType == "" {
		return MobileSecurityObject{}, fmt.Errorf("credential: docType cannot be empty")
	}
	if typeMetadataIntegrity != nil {
		if _, err := integrity.Parse(*typeMetadataIntegrity); err != nil {
			return MobileSecurityObject{}, fmt.Errorf("credential: typeMetadataIntegrity: %w", err)
		}
	}
	return MobileSecurityObject{
		Version:               "1.0",
		DigestAlgorithm:       algo,
		ValueDigests:          digests,
		DeviceKeyInfo:         deviceKey,
		DocType:               docType,
		ValidityInfo:          validity,
		IssuerURI:             issuerURI,
		TypeMetadataIntegrity: typeMetadataIntegrity,
	}, nil
}

// IssuerSigned bundles the namespace data with the COSE_Sign1-wrapped
// MSO (opaque bytes here; signing/verification lives in pkg/credential/cose).
type IssuerSigned struct {
	NameSpaces IssuerNameSpaces `cbor:"nameSpaces"`
	IssuerAuth []byte           `cbor:"issuerAuth"`
}

// DeviceAuth carries either a device signature or a device MAC,
// mutually exclusive.
type DeviceAuth struct {
	DeviceSignature []byte `cbor:"deviceSignature,omitempty"`
	DeviceMac       []byte `cbor:"deviceMac,omitempty"`
}

// DeviceSigned bundles the device-signed namespaces with their proof
// of device-key possession.
type DeviceSigned struct {
	NameSpaces []byte     `cbor:"nameSpaces"`
	DeviceAuth DeviceAuth `cbor:"deviceAuth"`
}

// Document is a complete MDOC document as returned in a DeviceResponse.
type Document struct {
	DocType      string                    `cbor:"docType"`
	IssuerSigned IssuerSigned              `cbor:"issuerSigned"`
	DeviceSigned DeviceSigned              `cbor:"deviceSigned"`
	Errors       map[string]map[string]int `cbor:"errors,omitempty"`
}

// DeviceResponse is the top-level MDOC presentation response.
type DeviceResponse struct {
	Version        string              `cbor:"version"`
	Documents      []Document          `cbor:"documents,omitempty"`
	DocumentErrors []map[string]int    `cbor:"documentErrors,omitempty"`
	Status         uint                `cbor:"status"`
}

// DeviceRequest is the top-level MDOC presentation request.
type DeviceRequest struct {
	Version     string       `cbor:"version"`
	DocRequests []DocRequest `cbor:"docRequests"`
}

// DocRequest requests a single document type with reader authentication.
type DocRequest struct {
	ItemsRequest []byte `cbor:"itemsRequest"`
	ReaderAuth   []byte `cbor:"readerAuth,omitempty"`
}

// ItemsRequest is the decoded payload of DocRequest.ItemsRequest.
type ItemsRequest struct {
	DocType     string                    `cbor:"docType"`
	NameSpaces  map[string]map[string]bool `cbor:"nameSpaces"`
	RequestInfo map[string]any            `cbor:"requestInfo,omitempty"`
}
