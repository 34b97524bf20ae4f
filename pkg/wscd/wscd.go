// Package wscd abstracts the wallet secure cryptographic device: a
// secure element that owns private keys keyed by opaque identifiers
// and signs on the holder's behalf, per spec §4.10.
//
// Grounded on the teacher's pkg/signing (Signer interface,
// SoftwareSigner) for the per-key signing primitive — SoftwareSigner's
// ECDSA path already hashes and emits a fixed-size R||S signature,
// which is exactly the JWS ES256 signature encoding the
// Proof-of-Association JWT needs, so no new signing primitive is
// introduced here. The Proof-of-Association itself (a JWS General
// Serialization carrying one signature per associated key) has no
// teacher equivalent — dc4eu-vc's pkg/jose and golang-jwt/jwt/v5 both
// only produce single-signature compact JWTs — so it is hand-built
// here from SoftwareSigner.Sign, following the JWS general-serialization
// layout of RFC 7515 §7.2.
package wscd

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/MinBZK/nl-wallet-sub004/pkg/signing"
)

// Errors returned by this package.
var (
	ErrIdentifierNotFound = fmt.Errorf("wscd: identifier not bound to a key")
	ErrIdentifierExists   = fmt.Errorf("wscd: identifier already bound to a key")
	ErrPoAVerification    = fmt.Errorf("wscd: proof of association verification failed")
)

// SigningError is returned by SignMultiple when any part of the
// operation fails; per §4.10 the operation is then atomic in the
// other direction too — no signatures are returned and no state is
// mutated.
type SigningError struct {
	Identifier string
	Err        error
}

func (e *SigningError) Error() string {
	if e.Identifier == "" {
		return fmt.Sprintf("wscd: sign_multiple failed: %v", e.Err)
	}
	return fmt.Sprintf("wscd: sign_multiple failed for identifier %q: %v", e.Identifier, e.Err)
}

func (e *SigningError) Unwrap() error { return e.Err }

// SignRequest is one (key_id, message) pair submitted to SignMultiple.
type SignRequest struct {
	Identifier string
	Message    []byte
}

// Signature pairs a produced signature with the identifier that
// produced it, preserving request order.
type Signature struct {
	Identifier string
	Signature  []byte
}

// SignMultipleResult is the atomic result of SignMultiple: every
// requested signature, and the Proof-of-Association JWT when PoaInput
// was supplied to the call.
type SignMultipleResult struct {
	Signatures []Signature
	PoA        string
}

// WSCD is the abstract wallet secure cryptographic device of §4.10.
type WSCD interface {
	// Generate binds a fresh ECDSA P-256 key to identifier and returns
	// its public key. Generating over an already-bound identifier
	// fails with ErrIdentifierExists.
	Generate(ctx context.Context, identifier string) (*ecdsa.PublicKey, error)

	// Sign produces a signature over message using the key bound to
	// identifier.
	Sign(ctx context.Context, identifier string, message []byte) ([]byte, error)

	// SignMultiple signs every request atomically and, when poaInput
	// is non-nil, additionally produces a Proof-of-Association JWT
	// signed by every listed key with a nonce derived from poaInput.
	SignMultiple(ctx context.Context, requests []SignRequest, poaInput []byte) (SignMultipleResult, error)
}

// MemoryWSCD is the in-memory reference WSCD: every key lives in
// process memory, generated with crypto/rand. Multi-key signing is
// serialised behind a single mutex so that, per §5's thread-safety
// requirement, a PoA nonce cannot be smuggled between concurrent
// sign_multiple callers.
type MemoryWSCD struct {
	mu      sync.Mutex
	signers map[string]*signing.SoftwareSigner
}

// NewMemoryWSCD returns an empty in-memory WSCD.
func NewMemoryWSCD() *MemoryWSCD {
	return &MemoryWSCD{signers: make(map[string]*signing.SoftwareSigner)}
}

func (w *MemoryWSCD) Generate(_ context.Context, identifier string) (*ecdsa.PublicKey, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, exists := w.signers[identifier]; exists {
		return nil, fmt.Errorf("%w: %s", ErrIdentifierExists, identifier)
	}

	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("wscd: key generation: %w", err)
	}
	signer, err := signing.NewSoftwareSigner(priv, identifier)
	if err != nil {
		return nil, fmt.Errorf("wscd: key generation: %w", err)
	}

	w.signers[identifier] = signer
	return &priv.PublicKey, nil
}

func (w *MemoryWSCD) Sign(ctx context.Context, identifier string, message []byte) ([]byte, error) {
	w.mu.Lock()
	signer, ok := w.signers[identifier]
	w.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrIdentifierNotFound, identifier)
	}
	return signer.Sign(ctx, message)
}

func (w *MemoryWSCD) SignMultiple(ctx context.Context, requests []SignRequest, poaInput []byte) (SignMultipleResult, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	signers := make([]*signing.SoftwareSigner, len(requests))
	for i, r := range requests {
		signer, ok := w.signers[r.Identifier]
		if !ok {
			return SignMultipleResult{}, &SigningError{Identifier: r.Identifier, Err: ErrIdentifierNotFound}
		}
		signers[i] = signer
	}

	signatures := make([]Signature, len(requests))
	for i, r := range requests {
		sig, err := signers[i].Sign(ctx, r.Message)
		if err != nil {
			return SignMultipleResult{}, &SigningError{Identifier: r.Identifier, Err: err}
		}
		signatures[i] = Signature{Identifier: r.Identifier, Signature: sig}
	}

	result := SignMultipleResult{Signatures: signatures}
	if poaInput != nil {
		poa, err := signProofOfAssociation(ctx, signers, poaInput)
		if err != nil {
			return SignMultipleResult{}, &SigningError{Err: err}
		}
		result.PoA = poa
	}
	return result, nil
}

// proofOfAssociationClaims is the PoA JWT payload: a nonce derived
// from the caller's poa_input, binding the association to that
// specific request.
type proofOfAssociationClaims struct {
	Nonce    string `json:"nonce"`
	IssuedAt int64  `json:"iat"`
}

// jwsGeneral is the JWS General JSON Serialization (RFC 7515 §7.2),
// used here instead of compact serialization because the PoA carries
// one signature per associated key over a single shared payload.
type jwsGeneral struct {
	Payload    string         `json:"payload"`
	Signatures []jwsSignature `json:"signatures"`
}

type jwsSignature struct {
	Protected string `json:"protected"`
	Signature string `json:"signature"`
}

type protectedHeader struct {
	Alg string `json:"alg"`
	Kid string `json:"kid"`
}

func signProofOfAssociation(ctx context.Context, signers []*signing.SoftwareSigner, poaInput []byte) (string, error) {
	nonce := sha256.Sum256(poaInput)
	claims := proofOfAssociationClaims{
		Nonce:    base64.RawURLEncoding.EncodeToString(nonce[:]),
		IssuedAt: time.Now().Unix(),
	}
	payload, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("wscd: marshal PoA payload: %w", err)
	}
	payloadB64 := base64.RawURLEncoding.EncodeToString(payload)

	sigs := make([]jwsSignature, len(signers))
	for i, signer := range signers {
		header, err := json.Marshal(protectedHeader{Alg: "ES256", Kid: signer.KeyID()})
		if err != nil {
			return "", fmt.Errorf("wscd: marshal PoA header: %w", err)
		}
		headerB64 := base64.RawURLEncoding.EncodeToString(header)

		signingInput := headerB64 + "." + payloadB64
		sig, err := signer.Sign(ctx, []byte(signingInput))
		if err != nil {
			return "", fmt.Errorf("wscd: sign PoA for %q: %w", signer.KeyID(), err)
		}

		sigs[i] = jwsSignature{
			Protected: headerB64,
			Signature: base64.RawURLEncoding.EncodeToString(sig),
		}
	}

	out, err := json.Marshal(jwsGeneral{Payload: payloadB64, Signatures: sigs})
	if err != nil {
		return "", fmt.Errorf("wscd: marshal PoA: %w", err)
	}
	return string(out), nil
}

// VerifyProofOfAssociation checks that poa carries a valid ES256
// signature from every key in keys (keyed by the identifier used when
// generating the key) over a nonce derived from poaInput. It fails
// closed: any missing, extra, or invalid signature is an error.
func VerifyProofOfAssociation(poa string, keys map[string]*ecdsa.PublicKey, poaInput []byte) error {
	var parsed jwsGeneral
	if err := json.Unmarshal([]byte(poa), &parsed); err != nil {
		return fmt.Errorf("%w: %v", ErrPoAVerification, err)
	}
	if len(parsed.Signatures) != len(keys) {
		return fmt.Errorf("%w: expected %d signatures, got %d", ErrPoAVerification, len(keys), len(parsed.Signatures))
	}

	payload, err := base64.RawURLEncoding.DecodeString(parsed.Payload)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPoAVerification, err)
	}
	var claims proofOfAssociationClaims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return fmt.Errorf("%w: %v", ErrPoAVerification, err)
	}
	wantNonce := sha256.Sum256(poaInput)
	if claims.Nonce != base64.RawURLEncoding.EncodeToString(wantNonce[:]) {
		return fmt.Errorf("%w: nonce does not match poa_input", ErrPoAVerification)
	}

	seen := make(map[string]bool, len(parsed.Signatures))
	for _, sig := range parsed.Signatures {
		headerBytes, err := base64.RawURLEncoding.DecodeString(sig.Protected)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrPoAVerification, err)
		}
		var header protectedHeader
		if err := json.Unmarshal(headerBytes, &header); err != nil {
			return fmt.Errorf("%w: %v", ErrPoAVerification, err)
		}
		if header.Alg != "ES256" {
			return fmt.Errorf("%w: unsupported alg %q", ErrPoAVerification, header.Alg)
		}
		pub, ok := keys[header.Kid]
		if !ok {
			return fmt.Errorf("%w: unknown kid %q", ErrPoAVerification, header.Kid)
		}
		if seen[header.Kid] {
			return fmt.Errorf("%w: duplicate signature for kid %q", ErrPoAVerification, header.Kid)
		}
		seen[header.Kid] = true

		sigBytes, err := base64.RawURLEncoding.DecodeString(sig.Signature)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrPoAVerification, err)
		}
		signingInput := sig.Protected + "." + parsed.Payload
		if !verifyES256(pub, []byte(signingInput), sigBytes) {
			return fmt.Errorf("%w: invalid signature for kid %q", ErrPoAVerification, header.Kid)
		}
	}
	return nil
}

func verifyES256(pub *ecdsa.PublicKey, signingInput, sig []byte) bool {
	keyBytes := (pub.Curve.Params().BitSize + 7) / 8
	if len(sig) != 2*keyBytes {
		return false
	}
	r := new(big.Int).SetBytes(sig[:keyBytes])
	s := new(big.Int).SetBytes(sig[keyBytes:])

	hashed := sha256.Sum256(signingInput)
	return ecdsa.Verify(pub, hashed[:], r, s)
}
