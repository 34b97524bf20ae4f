// Package cose implements the subset of RFC 8152 COSE needed by both
// MDOC (COSE_Sign1 over the MobileSecurityObject, COSE_Mac0 for device
// MAC authentication) and the JOSE layer's x5chain handling.
//
// Grounded on dc4eu-vc's pkg/mdoc/cose.go; generalized so it is no
// longer mDL-specific (moved out of package mdoc) and reused by the
// SD-JWT / WSCD code paths that also need COSE_Key <-> crypto.PublicKey
// conversion for device-bound keys.
package cose

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/x509"
	"encoding/asn1"
	"fmt"
	"hash"
	"math/big"

	"github.com/fxamacker/cbor/v2"
)

// Algorithm identifiers per RFC 8152 / ISO 18013-5.
const (
	AlgorithmES256 int64 = -7
	AlgorithmES384 int64 = -35
	AlgorithmES512 int64 = -36
	AlgorithmEdDSA int64 = -8

	AlgorithmHMAC256 int64 = 5
	AlgorithmHMAC384 int64 = 6
	AlgorithmHMAC512 int64 = 7
)

// COSE_Key key types and curves.
const (
	KeyTypeEC2 int64 = 2
	KeyTypeOKP int64 = 1

	CurveP256   int64 = 1
	CurveP384   int64 = 2
	CurveP521   int64 = 3
	CurveEd25519 int64 = 6
)

// Header labels.
const (
	HeaderAlgorithm  int64 = 1
	HeaderKeyID      int64 = 4
	HeaderX5Chain    int64 = 33
	HeaderX5ChainAlt int64 = 34
)

// COSE_Key field labels.
const (
	KeyLabelKty int64 = 1
	KeyLabelAlg int64 = 3
	KeyLabelCrv int64 = -1
	KeyLabelX   int64 = -2
	KeyLabelY   int64 = -3
)

// Errors returned by this package.
var (
	ErrUnsupportedAlgorithm = fmt.Errorf("cose: unsupported algorithm")
	ErrUnsupportedKey       = fmt.Errorf("cose: unsupported key type")
	ErrVerification         = fmt.Errorf("cose: verification failed")
	ErrMalformed            = fmt.Errorf("cose: malformed structure")
)

// Key represents a COSE_Key, restricted to public key material; a
// device's private signing key never crosses this boundary.
type Key struct {
	Kty int64  `cbor:"1,keyasint"`
	Alg int64  `cbor:"3,keyasint,omitempty"`
	Crv int64  `cbor:"-1,keyasint"`
	X   []byte `cbor:"-2,keyasint"`
	Y   []byte `cbor:"-3,keyasint,omitempty"`
}

// KeyFromECDSA builds a COSE_Key from an ECDSA public key.
func KeyFromECDSA(pub *ecdsa.PublicKey) (*Key, error) {
	var crv int64
	switch pub.Curve {
	case elliptic.P256():
		crv = CurveP256
	case elliptic.P384():
		crv = CurveP384
	case elliptic.P521():
		crv = CurveP521
	default:
		return nil, fmt.Errorf("%w: curve %s", ErrUnsupportedKey, pub.Curve.Params().Name)
	}

	byteLen := (pub.Curve.Params().BitSize + 7) / 8
	x := leftPad(pub.X.Bytes(), byteLen)
	y := leftPad(pub.Y.Bytes(), byteLen)

	return &Key{Kty: KeyTypeEC2, Crv: crv, X: x, Y: y}, nil
}

// KeyFromEd25519 builds a COSE_Key from an Ed25519 public key.
func KeyFromEd25519(pub ed25519.PublicKey) *Key {
	return &Key{Kty: KeyTypeOKP, Crv: CurveEd25519, X: []byte(pub)}
}

func leftPad(b []byte, size int) []byte {
	if len(b) >= size {
		return b
	}
	out := make([]byte, size)
	copy(out[size-len(b):], b)
	return out
}

// PublicKey converts a COSE_Key back to a Go crypto public key.
func (k *Key) PublicKey() (crypto.PublicKey, error) {
	switch k.Kty {
	case KeyTypeEC2:
		return k.ecdsaPublicKey()
	case KeyTypeOKP:
		return k.ed25519PublicKey()
	default:
		return nil, fmt.Errorf("%w: kty %d", ErrUnsupportedKey, k.Kty)
	}
}

func (k *Key) ecdsaPublicKey() (*ecdsa.PublicKey, error) {
	var curve elliptic.Curve
	switch k.Crv {
	case CurveP256:
		curve = elliptic.P256()
	case CurveP384:
		curve = elliptic.P384()
	case CurveP521:
		curve = elliptic.P521()
	default:
		return nil, fmt.Errorf("%w: curve %d", ErrUnsupportedKey, k.Crv)
	}
	return &ecdsa.PublicKey{
		Curve: curve,
		X:     new(big.Int).SetBytes(k.X),
		Y:     new(big.Int).SetBytes(k.Y),
	}, nil
}

func (k *Key) ed25519PublicKey() (ed25519.PublicKey, error) {
	if k.Crv != CurveEd25519 {
		return nil, fmt.Errorf("%w: curve %d for OKP", ErrUnsupportedKey, k.Crv)
	}
	if len(k.X) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("%w: Ed25519 public key size", ErrMalformed)
	}
	return ed25519.PublicKey(k.X), nil
}

// Bytes canonically encodes the COSE_Key.
func (k *Key) Bytes() ([]byte, error) {
	return cbor.Marshal(k)
}

// AlgorithmForKey returns the COSE algorithm matching key's type; key
// may be a crypto.Signer or a bare public key.
func AlgorithmForKey(key any) (int64, error) {
	if signer, ok := key.(crypto.Signer); ok {
		key = signer.Public()
	}
	switch k := key.(type) {
	case *ecdsa.PublicKey:
		switch k.Curve {
		case elliptic.P256():
			return AlgorithmES256, nil
		case elliptic.P384():
			return AlgorithmES384, nil
		case elliptic.P521():
			return AlgorithmES512, nil
		default:
			return 0, fmt.Errorf("%w: curve %s", ErrUnsupportedKey, k.Curve.Params().Name)
		}
	case ed25519.PublicKey:
		return AlgorithmEdDSA, nil
	default:
		return 0, fmt.Errorf("%w: %T", ErrUnsupportedKey, key)
	}
}

// Sign1 represents a COSE_Sign1 structure, tag 18.
type Sign1 struct {
	Protected   []byte
	Unprotected map[any]any
	Payload     []byte // nil when detached
	Signature   []byte
}

const tagSign1 = 18
const tagMac0 = 17

// MarshalCBOR implements cbor.Marshaler.
func (s *Sign1) MarshalCBOR() ([]byte, error) {
	arr := []any{s.Protected, s.Unprotected, s.Payload, s.Signature}
	return cbor.Marshal(cbor.Tag{Number: tagSign1, Content: arr})
}

// UnmarshalCBOR implements cbor.Unmarshaler.
func (s *Sign1) UnmarshalCBOR(data []byte) error {
	var tag cbor.Tag
	if err := cbor.Unmarshal(data, &tag); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if tag.Number != tagSign1 {
		return fmt.Errorf("%w: expected COSE_Sign1 tag %d, got %d", ErrMalformed, tagSign1, tag.Number)
	}
	arr, ok := tag.Content.([]any)
	if !ok || len(arr) != 4 {
		return fmt.Errorf("%w: COSE_Sign1 array shape", ErrMalformed)
	}
	s.Protected, _ = arr[0].([]byte)
	s.Unprotected, _ = arr[1].(map[any]any)
	s.Payload, _ = arr[2].([]byte)
	s.Signature, _ = arr[3].([]byte)
	return nil
}

// Sign produces a COSE_Sign1 over payload using signer, with x5chain
// (may be nil) carried in the protected header.
func Sign(payload []byte, signer crypto.Signer, algorithm int64, x5chain [][]byte, externalAAD []byte) (*Sign1, error) {
	protected := map[int64]any{HeaderAlgorithm: algorithm}
	if len(x5chain) > 0 {
		protected[HeaderX5Chain] = x5chain
	}

	protectedBytes, err := cbor.Marshal(protected)
	if err != nil {
		return nil, fmt.Errorf("%w: protected headers: %v", ErrMalformed, err)
	}

	sigStructure := []any{"Signature1", protectedBytes, externalAAD, payload}
	toBeSigned, err := cbor.Marshal(sigStructure)
	if err != nil {
		return nil, fmt.Errorf("%w: Sig_structure: %v", ErrMalformed, err)
	}

	signature, err := signPayload(toBeSigned, signer, algorithm)
	if err != nil {
		return nil, fmt.Errorf("cose: signing: %w", err)
	}

	return &Sign1{
		Protected:   protectedBytes,
		Unprotected: make(map[any]any),
		Payload:     payload,
		Signature:   signature,
	}, nil
}

// SignDetached is Sign with the payload stripped from the result, for
// wire formats (e.g. MSO embedding) that carry the payload alongside.
func SignDetached(payload []byte, signer crypto.Signer, algorithm int64, x5chain [][]byte, externalAAD []byte) (*Sign1, error) {
	result, err := Sign(payload, signer, algorithm, x5chain, externalAAD)
	if err != nil {
		return nil, err
	}
	result.Payload = nil
	return result, nil
}

func signPayload(data []byte, signer crypto.Signer, algorithm int64) ([]byte, error) {
	switch algorithm {
	case AlgorithmES256, AlgorithmES384, AlgorithmES512:
		h := hashFor(algorithm)
		h.Write(data)
		asn1Sig, err := signer.Sign(rand.Reader, h.Sum(nil), crypto.SHA256)
		if err != nil {
			return nil, err
		}
		return asn1ToRaw(asn1Sig, byteLenFor(algorithm))
	case AlgorithmEdDSA:
		return signer.Sign(rand.Reader, data, crypto.Hash(0))
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedAlgorithm, algorithm)
	}
}

func hashFor(algorithm int64) hash.Hash {
	switch algorithm {
	case AlgorithmES384:
		return sha512.New384()
	case AlgorithmES512:
		return sha512.New()
	default:
		return sha256.New()
	}
}

func byteLenFor(algorithm int64) int {
	switch algorithm {
	case AlgorithmES384:
		return 48
	case AlgorithmES512:
		return 66
	default:
		return 32
	}
}

type asn1ECDSASignature struct {
	R, S *big.Int
}

func asn1ToRaw(sig []byte, byteLen int) ([]byte, error) {
	var parsed asn1ECDSASignature
	if _, err := asn1.Unmarshal(sig, &parsed); err != nil {
		return nil, fmt.Errorf("%w: ASN.1 signature: %v", ErrMalformed, err)
	}
	raw := make([]byte, byteLen*2)
	rBytes := parsed.R.Bytes()
	sBytes := parsed.S.Bytes()
	copy(raw[byteLen-len(rBytes):byteLen], rBytes)
	copy(raw[byteLen*2-len(sBytes):], sBytes)
	return raw, nil
}

// Verify checks a COSE_Sign1 signature. payload, if non-nil, is used
// in place of a detached sign1.Payload.
func Verify(sign1 *Sign1, payload []byte, pubKey crypto.PublicKey, externalAAD []byte) error {
	algorithm, err := protectedAlgorithm(sign1.Protected)
	if err != nil {
		return err
	}

	if payload == nil {
		payload = sign1.Payload
	}

	sigStructure := []any{"Signature1", sign1.Protected, externalAAD, payload}
	toBeSigned, err := cbor.Marshal(sigStructure)
	if err != nil {
		return fmt.Errorf("%w: Sig_structure: %v", ErrMalformed, err)
	}

	return verifySignature(toBeSigned, sign1.Signature, pubKey, algorithm)
}

func protectedAlgorithm(protected []byte) (int64, error) {
	var headers map[int64]any
	if err := cbor.Unmarshal(protected, &headers); err != nil {
		return 0, fmt.Errorf("%w: protected headers: %v", ErrMalformed, err)
	}
	algRaw, ok := headers[HeaderAlgorithm]
	if !ok {
		return 0, fmt.Errorf("%w: missing algorithm header", ErrMalformed)
	}
	return asInt64(algRaw)
}

func asInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case uint64:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("%w: non-integer algorithm header %T", ErrMalformed, v)
	}
}

func verifySignature(data, signature []byte, pubKey crypto.PublicKey, algorithm int64) error {
	switch algorithm {
	case AlgorithmES256, AlgorithmES384, AlgorithmES512:
		ecKey, ok := pubKey.(*ecdsa.PublicKey)
		if !ok {
			return fmt.Errorf("%w: expected ECDSA key for algorithm %d", ErrUnsupportedKey, algorithm)
		}
		return verifyECDSA(data, signature, ecKey, algorithm)
	case AlgorithmEdDSA:
		edKey, ok := pubKey.(ed25519.PublicKey)
		if !ok {
			return fmt.Errorf("%w: expected Ed25519 key", ErrUnsupportedKey)
		}
		if !ed25519.Verify(edKey, data, signature) {
			return fmt.Errorf("%w: EdDSA", ErrVerification)
		}
		return nil
	default:
		return fmt.Errorf("%w: %d", ErrUnsupportedAlgorithm, algorithm)
	}
}

func verifyECDSA(data, signature []byte, pubKey *ecdsa.PublicKey, algorithm int64) error {
	byteLen := byteLenFor(algorithm)
	if len(signature) != byteLen*2 {
		return fmt.Errorf("%w: signature length %d, want %d", ErrMalformed, len(signature), byteLen*2)
	}

	h := hashFor(algorithm)
	h.Write(data)

	r := new(big.Int).SetBytes(signature[:byteLen])
	s := new(big.Int).SetBytes(signature[byteLen:])

	if !ecdsa.Verify(pubKey, h.Sum(nil), r, s) {
		return fmt.Errorf("%w: ECDSA", ErrVerification)
	}
	return nil
}

// Mac0 represents a COSE_Mac0 structure, tag 17, used for device MAC
// authentication of the MSO's DeviceKey.
type Mac0 struct {
	Protected   []byte
	Unprotected map[any]any
	Payload     []byte
	Tag         []byte
}

// MarshalCBOR implements cbor.Marshaler.
func (m *Mac0) MarshalCBOR() ([]byte, error) {
	arr := []any{m.Protected, m.Unprotected, m.Payload, m.Tag}
	return cbor.Marshal(cbor.Tag{Number: tagMac0, Content: arr})
}

// UnmarshalCBOR implements cbor.Unmarshaler.
func (m *Mac0) UnmarshalCBOR(data []byte) error {
	var tag cbor.Tag
	if err := cbor.Unmarshal(data, &tag); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if tag.Number != tagMac0 {
		return fmt.Errorf("%w: expected COSE_Mac0 tag %d, got %d", ErrMalformed, tagMac0, tag.Number)
	}
	arr, ok := tag.Content.([]any)
	if !ok || len(arr) != 4 {
		return fmt.Errorf("%w: COSE_Mac0 array shape", ErrMalformed)
	}
	m.Protected, _ = arr[0].([]byte)
	m.Unprotected, _ = arr[1].(map[any]any)
	m.Payload, _ = arr[2].([]byte)
	m.Tag, _ = arr[3].([]byte)
	return nil
}

// MAC produces a COSE_Mac0 over payload using an HMAC key shared with
// the device (the ECDH-derived SKDevice, per §4.3's device-auth flow).
func MAC(payload, key []byte, algorithm int64, externalAAD []byte) (*Mac0, error) {
	protected := map[int64]any{HeaderAlgorithm: algorithm}
	protectedBytes, err := cbor.Marshal(protected)
	if err != nil {
		return nil, fmt.Errorf("%w: protected headers: %v", ErrMalformed, err)
	}

	macStructure := []any{"MAC0", protectedBytes, externalAAD, payload}
	toMAC, err := cbor.Marshal(macStructure)
	if err != nil {
		return nil, fmt.Errorf("%w: MAC_structure: %v", ErrMalformed, err)
	}

	tag, err := computeMAC(toMAC, key, algorithm)
	if err != nil {
		return nil, err
	}

	return &Mac0{
		Protected:   protectedBytes,
		Unprotected: make(map[any]any),
		Payload:     payload,
		Tag:         tag,
	}, nil
}

func computeMAC(data, key []byte, algorithm int64) ([]byte, error) {
	var newHash func() hash.Hash
	switch algorithm {
	case AlgorithmHMAC256:
		newHash = sha256.New
	case AlgorithmHMAC384:
		newHash = sha512.New384
	case AlgorithmHMAC512:
		newHash = sha512.New
	default:
		return nil, fmt.Errorf("%w: MAC algorithm %d", ErrUnsupportedAlgorithm, algorithm)
	}
	mac := hmac.New(newHash, key)
	mac.Write(data)
	return mac.Sum(nil), nil
}

// VerifyMAC checks a COSE_Mac0 tag.
func VerifyMAC(mac0 *Mac0, key []byte, externalAAD []byte) error {
	algorithm, err := protectedAlgorithm(mac0.Protected)
	if err != nil {
		return err
	}

	macStructure := []any{"MAC0", mac0.Protected, externalAAD, mac0.Payload}
	toMAC, err := cbor.Marshal(macStructure)
	if err != nil {
		return fmt.Errorf("%w: MAC_structure: %v", ErrMalformed, err)
	}

	expected, err := computeMAC(toMAC, key, algorithm)
	if err != nil {
		return err
	}
	if !hmac.Equal(mac0.Tag, expected) {
		return fmt.Errorf("%w: MAC0", ErrVerification)
	}
	return nil
}

// CertificateChain extracts and parses the x5chain header from a
// Sign1's protected headers.
func CertificateChain(sign1 *Sign1) ([]*x509.Certificate, error) {
	var headers map[int64]any
	if err := cbor.Unmarshal(sign1.Protected, &headers); err != nil {
		return nil, fmt.Errorf("%w: protected headers: %v", ErrMalformed, err)
	}

	x5chainRaw, ok := headers[HeaderX5Chain]
	if !ok {
		x5chainRaw, ok = headers[HeaderX5ChainAlt]
		if !ok {
			return nil, fmt.Errorf("%w: no x5chain header", ErrMalformed)
		}
	}

	var certBytes [][]byte
	switch v := x5chainRaw.(type) {
	case []byte:
		certBytes = [][]byte{v}
	case []any:
		for _, c := range v {
			b, ok := c.([]byte)
			if !ok {
				return nil, fmt.Errorf("%w: non-bytes entry in x5chain", ErrMalformed)
			}
			certBytes = append(certBytes, b)
		}
	default:
		return nil, fmt.Errorf("%w: x5chain type %T", ErrMalformed, x5chainRaw)
	}

	certs := make([]*x509.Certificate, 0, len(certBytes))
	for _, b := range certBytes {
		cert, err := x509.ParseCertificate(b)
		if err != nil {
			return nil, fmt.Errorf("%w: x5chain certificate: %v", ErrMalformed, err)
		}
		certs = append(certs, cert)
	}
	return certs, nil
}
