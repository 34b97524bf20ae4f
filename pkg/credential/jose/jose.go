// Package jose implements the JWT/JWE/JWK/HKDF primitives shared by
// the issuance, presentation, status-list and type-metadata layers:
// ES256 JWT sign/verify with pinned `typ` headers and zero clock-skew
// leeway, JWE response encryption (ECDH-ES/A128GCM), JWK import/export,
// and HKDF key derivation.
//
// Grounded on dc4eu-vc's pkg/jose/jwk.go (JWK via lestrrat-go/jwx),
// pkg/sdjwtvc/keybinding.go and pkg/tokenstatuslist/jwt.go (JWT via
// golang-jwt/jwt/v5 with a pinned typ header), dc4eu-vc's
// pkg/openid4vp/encryption_key_cache.go and
// internal/verifier/apiv1/handlers_verification.go (JWE via
// lestrrat-go/jwx/v3's jwe package with jwa.ECDH_ES()), and
// pkg/mdoc/engagement.go's hand-rolled HKDF, replaced here with
// golang.org/x/crypto/hkdf.
package jose

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"fmt"
	"io"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwe"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"golang.org/x/crypto/hkdf"
)

// Errors returned by this package.
var (
	ErrSigning       = fmt.Errorf("jose: signing failed")
	ErrVerification  = fmt.Errorf("jose: verification failed")
	ErrTypeMismatch  = fmt.Errorf("jose: typ header mismatch")
	ErrEncryption    = fmt.Errorf("jose: encryption failed")
	ErrDecryption    = fmt.Errorf("jose: decryption failed")
	ErrKeyConversion = fmt.Errorf("jose: key conversion failed")
)

// SignOptions configures SignTyped.
type SignOptions struct {
	// Typ is the JWT header "typ" value, e.g. "kb+jwt", "statuslist+jwt",
	// "openid4vci-proof+jwt". Required: every JWT this package issues
	// pins its typ so a verifier can reject cross-protocol token reuse.
	Typ string
	// KeyID, if set, is carried as the "kid" header.
	KeyID string
}

// SignTyped signs claims with an ES256 key and a pinned typ header.
func SignTyped(claims jwt.Claims, signingKey *ecdsa.PrivateKey, opts SignOptions) (string, error) {
	if opts.Typ == "" {
		return "", fmt.Errorf("%w: SignOptions.Typ is required", ErrSigning)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	token.Header["typ"] = opts.Typ
	if opts.KeyID != "" {
		token.Header["kid"] = opts.KeyID
	}

	signed, err := token.SignedString(signingKey)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSigning, err)
	}
	return signed, nil
}

// VerifyOptions configures VerifyTyped.
type VerifyOptions struct {
	// Typ is the required JWT header "typ" value.
	Typ string
	// KeyFunc resolves the verification key from the token, matching
	// jwt.Keyfunc's signature so callers can dispatch on kid/x5c.
	KeyFunc jwt.Keyfunc
}

// VerifyTyped parses and verifies a JWT, enforcing the typ header and
// zero additional clock-skew leeway (exp/nbf are checked exactly).
func VerifyTyped(tokenString string, claims jwt.Claims, opts VerifyOptions) (*jwt.Token, error) {
	token, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		opts.KeyFunc,
		jwt.WithValidMethods([]string{"ES256"}),
		jwt.WithLeeway(0),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrVerification, err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("%w: token not valid", ErrVerification)
	}

	typ, ok := token.Header["typ"].(string)
	if !ok || typ != opts.Typ {
		return nil, fmt.Errorf("%w: expected %q, got %v", ErrTypeMismatch, opts.Typ, token.Header["typ"])
	}

	return token, nil
}

// JWKFromECDSA converts an ECDSA private key to a JWK suitable for
// publication (Export) or for passing to the jwe/jws layers.
func JWKFromECDSA(priv *ecdsa.PrivateKey) (jwk.Key, error) {
	key, err := jwk.Import(priv)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyConversion, err)
	}
	return key, nil
}

// JWKFromPublic converts an ECDSA public key to a JWK.
func JWKFromPublic(pub *ecdsa.PublicKey) (jwk.Key, error) {
	key, err := jwk.Import(pub)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyConversion, err)
	}
	return key, nil
}

// ParseJWK parses a JSON-encoded JWK, e.g. one carried in a wire
// message's ephemeral_public_jwk field.
func ParseJWK(raw []byte) (jwk.Key, error) {
	key, err := jwk.ParseKey(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyConversion, err)
	}
	return key, nil
}

// EncryptResponse encrypts payload to recipientKey's holder using
// ECDH-ES key agreement with A128GCM content encryption, the scheme
// OpenID4VP mandates for direct_post.jwt responses (§4.1 of the
// presentation spec).
func EncryptResponse(payload []byte, recipientKey jwk.Key) ([]byte, error) {
	out, err := jwe.Encrypt(
		payload,
		jwe.WithKey(jwa.ECDH_ES(), recipientKey),
		jwe.WithContentEncryption(jwa.A128GCM()),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryption, err)
	}
	return out, nil
}

// DecryptResponse decrypts a JWE produced by EncryptResponse using the
// recipient's (the verifier's) ephemeral private key.
func DecryptResponse(jweBytes []byte, privateKey jwk.Key) ([]byte, error) {
	out, err := jwe.Decrypt(jweBytes, jwe.WithKey(jwa.ECDH_ES(), privateKey))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryption, err)
	}
	return out, nil
}

// HKDFDerive derives length bytes from secret using HKDF-SHA256 with
// the given salt and info, per ISO 18013-5's SKDevice/EMacKey
// derivation and SD-JWT VC's KB-JWT key confirmation.
func HKDFDerive(secret, salt, info []byte, length int) ([]byte, error) {
	reader := hkdf.New(sha256.New, secret, salt, info)
	out := make([]byte, length)
	if _, err := io.ReadFull(reader, out); err != nil {
		return nil, fmt.Errorf("jose: HKDF derive: %w", err)
	}
	return out, nil
}
