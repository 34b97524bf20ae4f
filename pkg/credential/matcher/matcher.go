// Package matcher implements the disclosure matcher of spec §4.7: for
// a normalised set of credential requests, decide which locally stored
// credentials can satisfy every request, or report what's missing.
//
// Grounded on the request shape of teacher pkg/openid4vp/dcql.go's
// CredentialQuery (id, format, claims) simplified to the tuple spec.md
// §4.7 actually names — (format, attestation_type, claim_paths,
// intent_to_retain) — since the full DCQL credential_sets evaluation
// is out of scope for this matcher (see DESIGN.md); and on
// original_source/wallet_core/mdoc/src/holder/disclosure's
// candidate-collection algorithm (attribute-availability check per
// stored credential, coalesce by attestation_type, all-or-nothing
// Candidates/MissingAttributes result).
package matcher

import (
	"github.com/MinBZK/nl-wallet-sub004/pkg/credential"
)

// Request is one normalised credential request.
type Request struct {
	Format          credential.Format
	AttestationType string
	ClaimPaths      []string // order-significant; proposal claim order follows this, not storage order
	IntentToRetain  bool
}

// Store is the abstract credential store the matcher reads from.
type Store interface {
	// CredentialsFor returns every locally stored, non-invalid
	// credential of the given attestation type, oldest first.
	CredentialsFor(attestationType string) []*credential.StoredCredential
}

// ProposedDocument is a candidate disclosure: the slim issuer-signed
// view of stored, restricted to the requested attribute identifiers,
// ready to be paired with a device-signed challenge at presentation
// time.
type ProposedDocument struct {
	AttestationType string
	Stored          *credential.StoredCredential
	ClaimPaths      []string // in request order, per §4.7's ordering rule
	IntentToRetain  bool
}

// Candidates maps each requested attestation_type to its proposed
// documents.
type Candidates map[string][]ProposedDocument

// MissingAttributes lists the attribute identifiers that could not be
// satisfied by any stored credential.
type MissingAttributes []string

// Match runs the §4.7 algorithm: deduplicate attestation types, fetch
// all stored credentials for each, and for each candidate compute
// whether it carries every requested attribute. Candidates is returned
// only when every requested attestation_type has at least one
// candidate; otherwise MissingAttributes is returned.
func Match(requests []Request, store Store) (Candidates, MissingAttributes) {
	coalesced := coalesceByAttestationType(requests)

	candidates := make(Candidates, len(coalesced))
	var missing MissingAttributes

	for attestationType, req := range coalesced {
		stored := store.CredentialsFor(attestationType)

		var proposals []ProposedDocument
		var missingForType []string
		for _, sc := range stored {
			if sc.Status != credential.StatusValid {
				continue
			}
			available := attributeSet(sc.Fingerprint.ClaimPaths)
			missingForThisCopy := missingFrom(req.ClaimPaths, available)
			if len(missingForThisCopy) == 0 {
				proposals = append(proposals, ProposedDocument{
					AttestationType: attestationType,
					Stored:          sc,
					ClaimPaths:      req.ClaimPaths,
					IntentToRetain:  req.IntentToRetain,
				})
				continue
			}
			missingForType = append(missingForType, missingForThisCopy...)
		}

		if len(proposals) == 0 {
			if len(missingForType) == 0 {
				missingForType = req.ClaimPaths
			}
			missing = append(missing, missingForType...)
			continue
		}
		candidates[attestationType] = proposals
	}

	if len(candidates) != len(coalesced) {
		return nil, dedupe(missing)
	}
	return candidates, nil
}

// coalesceByAttestationType merges requests sharing the same
// attestation_type into one, unioning their claim paths in
// first-seen order (§4.7's "coalesced into a single candidate list"
// rule).
func coalesceByAttestationType(requests []Request) map[string]Request {
	out := make(map[string]Request, len(requests))
	seen := make(map[string]map[string]bool, len(requests))

	for _, r := range requests {
		merged, ok := out[r.AttestationType]
		if !ok {
			merged = Request{Format: r.Format, AttestationType: r.AttestationType, IntentToRetain: r.IntentToRetain}
			seen[r.AttestationType] = map[string]bool{}
		}
		for _, path := range r.ClaimPaths {
			if !seen[r.AttestationType][path] {
				seen[r.AttestationType][path] = true
				merged.ClaimPaths = append(merged.ClaimPaths, path)
			}
		}
		out[r.AttestationType] = merged
	}
	return out
}

func attributeSet(claimPaths []string) map[string]bool {
	set := make(map[string]bool, len(claimPaths))
	for _, p := range claimPaths {
		set[p] = true
	}
	return set
}

func missingFrom(requested []string, available map[string]bool) []string {
	var missing []string
	for _, r := range requested {
		if !available[r] {
			missing = append(missing, r)
		}
	}
	return missing
}

func dedupe(attrs []string) MissingAttributes {
	if len(attrs) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(attrs))
	out := make(MissingAttributes, 0, len(attrs))
	for _, a := range attrs {
		if !seen[a] {
			seen[a] = true
			out = append(out, a)
		}
	}
	return out
}
