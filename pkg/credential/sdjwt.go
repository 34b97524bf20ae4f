// SD-JWT VC attestation types: disclosures, the hashed-digest claim
// set, and type metadata (VCTM), generalized from dc4eu-vc's
// pkg/sdjwtvc/types.go (Discloser, VCTM, Claim) and pkg/sdjwt3/types.go.
package credential

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"hash"
)

// Disclosure is a single selectively-disclosable claim or array
// element, per draft-ietf-oauth-selective-disclosure-jwt.
type Disclosure struct {
	Salt      string `json:"-"`
	ClaimName string `json:"-"` // empty for array-element disclosures
	Value     any    `json:"-"`
	IsArray   bool   `json:"-"`
}

// NewDisclosure builds an object-property disclosure with a fresh
// 128-bit salt (§3 invariant 4's general "at least 128 bits" floor).
func NewDisclosure(claimName string, value any) (Disclosure, error) {
	salt, err := randomSalt()
	if err != nil {
		return Disclosure{}, err
	}
	return Disclosure{Salt: salt, ClaimName: claimName, Value: value}, nil
}

// NewArrayElementDisclosure builds an array-element disclosure.
func NewArrayElementDisclosure(value any) (Disclosure, error) {
	salt, err := randomSalt()
	if err != nil {
		return Disclosure{}, err
	}
	return Disclosure{Salt: salt, Value: value, IsArray: true}, nil
}

func randomSalt() (string, error) {
	raw := make([]byte, 16)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("credential: generating disclosure salt: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// Encode renders the disclosure's [salt, claim_name, value] (or
// [salt, value] for array elements) array as base64url JSON, and
// returns its digest under hasher.
func (d Disclosure) Encode(hasher hash.Hash) (digest, encoded string, err error) {
	var arr []any
	if d.IsArray {
		arr = []any{d.Salt, d.Value}
	} else {
		arr = []any{d.Salt, d.ClaimName, d.Value}
	}

	raw, err := json.Marshal(arr)
	if err != nil {
		return "", "", fmt.Errorf("credential: encoding disclosure: %w", err)
	}
	encoded = base64.RawURLEncoding.EncodeToString(raw)

	hasher.Reset()
	if _, err := hasher.Write([]byte(encoded)); err != nil {
		return "", "", fmt.Errorf("credential: hashing disclosure: %w", err)
	}
	digest = base64.RawURLEncoding.EncodeToString(hasher.Sum(nil))
	return digest, encoded, nil
}

// VCTMDisplay is one locale's rendering metadata.
type VCTMDisplay struct {
	Lang        string `json:"lang"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
}

// ClaimMetadata describes one claim's validation/display metadata.
type ClaimMetadata struct {
	Path     []string `json:"path"`
	Selected bool     `json:"selectively_disclosable,omitempty"`
}

// VCTM is SD-JWT VC type metadata per draft-ietf-oauth-sd-jwt-vc §6;
// the `extends`/`extends_integrity` pair is what C6's chain resolver
// walks.
type VCTM struct {
	VCT                string          `json:"vct"`
	Name               string          `json:"name,omitempty"`
	Description        string          `json:"description,omitempty"`
	Display            []VCTMDisplay   `json:"display,omitempty"`
	Claims             []ClaimMetadata `json:"claims,omitempty"`
	SchemaURL          string          `json:"schema_url,omitempty"`
	SchemaURLIntegrity string          `json:"schema_url#integrity,omitempty"`
	Extends            string          `json:"extends,omitempty"`
	ExtendsIntegrity   string          `json:"extends#integrity,omitempty"`
}

// Encode JSON-marshals and base64url-encodes the VCTM document, the
// form it is published in at its `vct`'s well-known location.
func (v VCTM) Encode() (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("credential: encoding VCTM: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// SDJWTClaims is the hashed-digest payload of an SD-JWT VC: always-
// disclosed claims plus the `_sd` digest list and declared hash algorithm.
type SDJWTClaims struct {
	VCT          string         `json:"vct"`
	Issuer       string         `json:"iss"`
	SD           []string       `json:"_sd,omitempty"`
	SDAlg        string         `json:"_sd_alg,omitempty"`
	CNF          map[string]any `json:"cnf,omitempty"` // holder key confirmation
	AlwaysClaims map[string]any `json:"-"`              // not included in the JSON encoding
}

// NewSDJWTClaims validates the minimum shape of an SD-JWT VC payload.
func NewSDJWTClaims(vct, issuer string, disclosures []Disclosure, sdAlg string, hasher hash.Hash, cnf map[string]any) (SDJWTClaims, []string, error) {
	if vct == "" {
		return SDJWTClaims{}, nil, fmt.Errorf("credential: vct cannot be empty")
	}
	if issuer == "" {
		return SDJWTClaims{}, nil, fmt.Errorf("credential: iss cannot be empty")
	}

	digests := make([]string, 0, len(disclosures))
	encoded := make([]string, 0, len(disclosures))
	for _, d := range disclosures {
		digest, enc, err := d.Encode(hasher)
		if err != nil {
			return SDJWTClaims{}, nil, err
		}
		digests = append(digests, digest)
		encoded = append(encoded, enc)
	}

	return SDJWTClaims{
		VCT:    vct,
		Issuer: issuer,
		SD:     digests,
		SDAlg:  sdAlg,
		CNF:    cnf,
	}, encoded, nil
}
