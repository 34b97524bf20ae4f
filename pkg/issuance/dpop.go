// Package issuance implements the OpenID4VCI issuance session of §4.8:
// DPoP-bound token requests, the holder and issuer state machines, and
// the proof-of-possession JWT the holder attaches to each credential
// request. Grounded on dc4eu-vc's pkg/openid4vci wire types (token,
// credential, batch_credential, error) and pkg/sdjwtvc/keybinding.go's
// pinned-typ-header JWT pattern; the DPoP and request-proof JWTs reuse
// that pattern since neither dc4eu-vc nor the rest of the pack
// implements DPoP (RFC 9449) itself.
package issuance

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/MinBZK/nl-wallet-sub004/pkg/credential/jose"
	"github.com/golang-jwt/jwt/v5"
)

// DPoPTyp is the JWT typ header RFC 9449 §4.2 requires.
const DPoPTyp = "dpop+jwt"

// ErrDPoPMismatch is returned when a DPoP proof's htm/htu/nonce does
// not match what the verifier expected.
var ErrDPoPMismatch = fmt.Errorf("issuance: dpop proof mismatch")

// dpopClaims is the DPoP proof JWT payload, RFC 9449 §4.2.
type dpopClaims struct {
	jwt.RegisteredClaims
	HTM   string `json:"htm"`
	HTU   string `json:"htu"`
	Nonce string `json:"nonce,omitempty"`
}

// jwkHeader is the minimal EC JWK this package embeds in DPoP and
// credential-request proof JWT headers.
type jwkHeader struct {
	Kty string `json:"kty"`
	Crv string `json:"crv"`
	X   string `json:"x"`
	Y   string `json:"y"`
}

func jwkHeaderFromPublic(pub *ecdsa.PublicKey) jwkHeader {
	size := (pub.Curve.Params().BitSize + 7) / 8
	x := make([]byte, size)
	y := make([]byte, size)
	pub.X.FillBytes(x)
	pub.Y.FillBytes(y)
	return jwkHeader{
		Kty: "EC",
		Crv: "P-256",
		X:   base64.RawURLEncoding.EncodeToString(x),
		Y:   base64.RawURLEncoding.EncodeToString(y),
	}
}

func (j jwkHeader) publicKey() (*ecdsa.PublicKey, error) {
	x, err := base64.RawURLEncoding.DecodeString(j.X)
	if err != nil {
		return nil, fmt.Errorf("issuance: decode jwk x: %w", err)
	}
	y, err := base64.RawURLEncoding.DecodeString(j.Y)
	if err != nil {
		return nil, fmt.Errorf("issuance: decode jwk y: %w", err)
	}
	return &ecdsa.PublicKey{
		Curve: elliptic.P256(),
		X:     new(big.Int).SetBytes(x),
		Y:     new(big.Int).SetBytes(y),
	}, nil
}

// NewDPoPProof builds a fresh DPoP proof JWT bound to method+url,
// signed with the caller-supplied P-256 signingKey, whose public key is
// embedded in the header. DPoP keys are typically ephemeral per the
// RFC, unlike the credential-binding keys the WSCD manages.
func NewDPoPProof(signingKey *ecdsa.PrivateKey, method, url, nonce string) (string, error) {
	claims := dpopClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:       randomJTI(),
			IssuedAt: jwt.NewNumericDate(time.Now()),
		},
		HTM:   method,
		HTU:   url,
		Nonce: nonce,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	token.Header["typ"] = DPoPTyp
	token.Header["jwk"] = jwkHeaderFromPublic(&signingKey.PublicKey)

	signed, err := token.SignedString(signingKey)
	if err != nil {
		return "", fmt.Errorf("issuance: sign dpop proof: %w", err)
	}
	return signed, nil
}

// VerifyDPoPProof verifies proof was signed by the key embedded in its
// own header (RFC 9449's self-contained trust model), and that its
// htm/htu/nonce/iat match the current request. It returns the holder's
// public key so the issuer can bind the access token to it.
func VerifyDPoPProof(proof, method, url, expectedNonce string, maxAge time.Duration) (*ecdsa.PublicKey, error) {
	var header struct {
		Typ string    `json:"typ"`
		JWK jwkHeader `json:"jwk"`
	}
	if err := decodeJWTHeader(proof, &header); err != nil {
		return nil, fmt.Errorf("issuance: decode dpop header: %w", err)
	}
	if header.Typ != DPoPTyp {
		return nil, fmt.Errorf("%w: expected typ %q, got %q", jose.ErrTypeMismatch, DPoPTyp, header.Typ)
	}

	pub, err := header.JWK.publicKey()
	if err != nil {
		return nil, err
	}

	claims := &dpopClaims{}
	if _, err := jose.VerifyTyped(proof, claims, jose.VerifyOptions{
		Typ:     DPoPTyp,
		KeyFunc: func(*jwt.Token) (any, error) { return pub, nil },
	}); err != nil {
		return nil, err
	}

	if claims.HTM != method || claims.HTU != url {
		return nil, ErrDPoPMismatch
	}
	if expectedNonce != "" && claims.Nonce != expectedNonce {
		return nil, ErrDPoPMismatch
	}
	if claims.IssuedAt == nil || time.Since(claims.IssuedAt.Time) > maxAge {
		return nil, fmt.Errorf("issuance: dpop proof expired")
	}

	return pub, nil
}

func decodeJWTHeader(token string, out any) error {
	parts, err := splitJWT(token)
	if err != nil {
		return err
	}
	raw, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func splitJWT(token string) ([3]string, error) {
	var parts [3]string
	a, rest, ok := cut(token, '.')
	if !ok {
		return parts, fmt.Errorf("issuance: malformed jwt")
	}
	b, c, ok := cut(rest, '.')
	if !ok {
		return parts, fmt.Errorf("issuance: malformed jwt")
	}
	return [3]string{a, b, c}, nil
}

func cut(s string, sep byte) (before, after string, found bool) {
	for i := 0; i < len(s); i++ {
		if s[i] == sep {
			return s[:i], s[i+1:], true
		}
	}
	return s, "", false
}

func randomJTI() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return base64.RawURLEncoding.EncodeToString(buf)
}
