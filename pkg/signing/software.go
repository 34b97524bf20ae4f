package signing

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/rand"
	"fmt"
)

// SoftwareSigner implements Signer over an in-memory ECDSA key.
// pkg/wscd.MemoryWSCD is this tree's only caller, and it only ever
// generates P-256 keys, so unlike the teacher's version this signer
// does not carry an RSA path nothing here exercises.
type SoftwareSigner struct {
	privateKey *ecdsa.PrivateKey
	algorithm  string
	keyID      string
}

// NewSoftwareSigner creates a new SoftwareSigner from an ECDSA private key.
func NewSoftwareSigner(privateKey any, keyID string) (*SoftwareSigner, error) {
	key, ok := privateKey.(*ecdsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("unsupported key type: %T", privateKey)
	}

	return &SoftwareSigner{
		privateKey: key,
		algorithm:  ecdsaAlgorithm(key),
		keyID:      keyID,
	}, nil
}

// Sign signs data with the software key, returning a fixed-size R||S
// signature (not the ASN.1 DER encoding crypto/ecdsa.Sign's caller
// would otherwise have to unpack), the encoding JWS/COSE ES256 both
// require.
func (s *SoftwareSigner) Sign(ctx context.Context, data []byte) ([]byte, error) {
	hash := ecdsaHash(s.algorithm)
	h := hash.New()
	h.Write(data)
	hashed := h.Sum(nil)

	r, ss, err := ecdsa.Sign(rand.Reader, s.privateKey, hashed)
	if err != nil {
		return nil, err
	}

	keyBytes := (s.privateKey.Curve.Params().BitSize + 7) / 8
	sig := make([]byte, 2*keyBytes)

	rBytes := r.Bytes()
	sBytes := ss.Bytes()
	copy(sig[keyBytes-len(rBytes):keyBytes], rBytes)
	copy(sig[2*keyBytes-len(sBytes):], sBytes)

	return sig, nil
}

// Algorithm returns the JWT algorithm name.
func (s *SoftwareSigner) Algorithm() string {
	return s.algorithm
}

// KeyID returns the key identifier.
func (s *SoftwareSigner) KeyID() string {
	return s.keyID
}

// PublicKey returns the public key.
func (s *SoftwareSigner) PublicKey() any {
	return &s.privateKey.PublicKey
}

// ecdsaAlgorithm determines the ECDSA algorithm based on curve.
func ecdsaAlgorithm(key *ecdsa.PrivateKey) string {
	switch key.Curve.Params().BitSize {
	case 384:
		return "ES384"
	case 521:
		return "ES512"
	default:
		return "ES256"
	}
}

// ecdsaHash returns the hash function for the given ECDSA algorithm.
func ecdsaHash(alg string) crypto.Hash {
	switch alg {
	case "ES384":
		return crypto.SHA384
	case "ES512":
		return crypto.SHA512
	default:
		return crypto.SHA256
	}
}
