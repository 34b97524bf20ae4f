// Credential ownership/lifecycle and the request-fingerprint type
// used to coalesce issuance and presentation matching, per spec §3's
// "Ownership / lifecycle" and "Request fingerprint" paragraphs. No
// direct teacher analog (dc4eu-vc persists documents straight to
// Mongo with no copy_count notion); grounded in shape on
// original_source/wallet_core's stored-credential copy model.
package credential

import (
	"fmt"
	"time"
)

// Format distinguishes the two attestation wire formats.
type Format string

const (
	FormatMDOC   Format = "mso_mdoc"
	FormatSDJWT  Format = "dc+sd-jwt"
)

// Fingerprint is the tuple used to coalesce issuance previews and
// presentation-matcher requests for what is conceptually "the same"
// credential ask: (format, attestation_type, ordered claim paths).
type Fingerprint struct {
	Format          Format
	AttestationType string
	ClaimPaths      []string // order-significant; see §4.7's ordering rule
}

// NewFingerprint copies claimPaths defensively so later mutation of
// the caller's slice cannot retroactively change an already-issued
// fingerprint's identity.
func NewFingerprint(format Format, attestationType string, claimPaths []string) Fingerprint {
	cp := make([]string, len(claimPaths))
	copy(cp, claimPaths)
	return Fingerprint{Format: format, AttestationType: attestationType, ClaimPaths: cp}
}

// Key returns a comparable string suitable for map-keying fingerprints.
func (f Fingerprint) Key() string {
	key := string(f.Format) + "|" + f.AttestationType
	for _, p := range f.ClaimPaths {
		key += "|" + p
	}
	return key
}

// CredentialStatus reflects the local revocation cache, the only
// mutation a stored credential undergoes outside of destruction.
type CredentialStatus int

const (
	StatusValid CredentialStatus = iota
	StatusInvalid
	StatusSuspended
)

// Copy is one of a credential's copy_count disclosable copies: same
// attribute set as its siblings, distinct salts and holder key.
type Copy struct {
	HolderKeyID string // identifies the secure-element key bound to this copy
	MDOC        *IssuerSigned
	SDJWT       *SDJWTClaims
}

// StoredCredential is a wallet-owned credential: a fingerprint-keyed
// attestation with copy_count disclosable copies and a mutable status.
type StoredCredential struct {
	ID          string
	Fingerprint Fingerprint
	IssuedAt    time.Time
	Status      CredentialStatus
	Copies      []Copy
}

// NewStoredCredential constructs a credential from its issued copies;
// a credential must have at least one copy (§3: "disclosable copies
// (copy_count many) are kept").
func NewStoredCredential(id string, fp Fingerprint, issuedAt time.Time, copies []Copy) (StoredCredential, error) {
	if len(copies) == 0 {
		return StoredCredential{}, fmt.Errorf("credential: stored credential %q must have at least one copy", id)
	}
	cp := make([]Copy, len(copies))
	copy(cp, copies)
	return StoredCredential{ID: id, Fingerprint: fp, IssuedAt: issuedAt, Status: StatusValid, Copies: cp}, nil
}

// ConsumeCopy removes and returns one disclosable copy, simulating
// the "each disclosure consumes a fresh copy" rule. Returns false if
// no copies remain.
func (s *StoredCredential) ConsumeCopy() (Copy, bool) {
	if len(s.Copies) == 0 {
		return Copy{}, false
	}
	oldest := s.Copies[0]
	s.Copies = s.Copies[1:]
	return oldest, true
}

// SetStatus applies a local revocation-cache update; it is the only
// mutation a stored credential undergoes short of destruction.
func (s *StoredCredential) SetStatus(status CredentialStatus) {
	s.Status = status
}
