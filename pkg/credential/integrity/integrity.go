// Package integrity implements the JSON resource-integrity token used
// to bind SD-JWT type-metadata documents to each other and to chain
// into the concrete attestation, per spec §4.1 and §4.6.
//
// Token format: "<algo>-<base64(hash(bytes))>", modeled on the W3C
// Subresource Integrity string format the teacher already parses ad
// hoc in pkg/sdjwtvc's VCTM "...#integrity" fields; this factors that
// parse/verify logic into one reusable type.
package integrity

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"fmt"
	"hash"
	"strings"
)

// ErrAlgorithmInsecure is returned when the token names a hash weaker
// than sha-256.
var ErrAlgorithmInsecure = fmt.Errorf("integrity: algorithm insecure")

// ErrMalformed is returned when the token cannot be parsed.
var ErrMalformed = fmt.Errorf("integrity: malformed token")

// ErrMismatch is returned when Verify finds the digest doesn't match.
var ErrMismatch = fmt.Errorf("integrity: digest mismatch")

// Token is a parsed resource-integrity value.
type Token struct {
	Algorithm string
	Digest    []byte
}

var hashers = map[string]func() hash.Hash{
	"sha-256": sha256.New,
	"sha-384": sha512.New384,
	"sha-512": sha512.New,
}

// Parse parses an "<algo>-<base64 digest>" token, rejecting algorithms
// weaker than sha-256.
func Parse(s string) (Token, error) {
	idx := strings.LastIndexByte(s, '-')
	if idx <= 0 || idx == len(s)-1 {
		return Token{}, fmt.Errorf("%w: %q", ErrMalformed, s)
	}
	algo := s[:idx]
	encodedDigest := s[idx+1:]

	if _, ok := hashers[algo]; !ok {
		return Token{}, fmt.Errorf("%w: %q", ErrAlgorithmInsecure, algo)
	}

	digest, err := base64.StdEncoding.DecodeString(encodedDigest)
	if err != nil {
		return Token{}, fmt.Errorf("%w: bad base64 digest: %v", ErrMalformed, err)
	}

	return Token{Algorithm: algo, Digest: digest}, nil
}

// Compute hashes data with algo ("sha-256", "sha-384", or "sha-512")
// and returns the formatted token.
func Compute(algo string, data []byte) (string, error) {
	newHash, ok := hashers[algo]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrAlgorithmInsecure, algo)
	}
	h := newHash()
	h.Write(data)
	digest := base64.StdEncoding.EncodeToString(h.Sum(nil))
	return algo + "-" + digest, nil
}

// Verify checks that data hashes, under t.Algorithm, to t.Digest.
func (t Token) Verify(data []byte) error {
	newHash, ok := hashers[t.Algorithm]
	if !ok {
		return fmt.Errorf("%w: %q", ErrAlgorithmInsecure, t.Algorithm)
	}
	h := newHash()
	h.Write(data)
	sum := h.Sum(nil)
	if len(sum) != len(t.Digest) {
		return ErrMismatch
	}
	for i := range sum {
		if sum[i] != t.Digest[i] {
			return ErrMismatch
		}
	}
	return nil
}

// VerifyString parses token and verifies it against data in one step.
func VerifyString(token string, data []byte) error {
	t, err := Parse(token)
	if err != nil {
		return err
	}
	return t.Verify(data)
}
