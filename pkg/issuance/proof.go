package issuance

import (
	"context"
	"crypto/ecdsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/MinBZK/nl-wallet-sub004/pkg/credential/jose"
	"github.com/MinBZK/nl-wallet-sub004/pkg/wscd"
	"github.com/golang-jwt/jwt/v5"
)

// ProofJWTTyp is the JWT typ header OpenID4VCI §7.2.1 pins for
// CredentialRequestProof::Jwt.
const ProofJWTTyp = "openid4vci-proof+jwt"

// proofClaims is a credential-request proof-of-possession JWT payload.
type proofClaims struct {
	jwt.RegisteredClaims
	Nonce string `json:"nonce"`
}

// NewCredentialRequestProof builds and signs, via identifier in w, a
// CredentialRequestProof::Jwt binding iss (the wallet client ID), aud
// (the credential issuer identifier), and nonce (the server c_nonce),
// publishing the WSCD-held key as the header's jwk so the issuer can
// bind the resulting credential to it (§4.8's `accept` step).
func NewCredentialRequestProof(ctx context.Context, w wscd.WSCD, identifier, iss, aud, nonce string, pub *ecdsa.PublicKey) (string, error) {
	claims := proofClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   iss,
			Audience: jwt.ClaimStrings{aud},
			IssuedAt: jwt.NewNumericDate(time.Now()),
		},
		Nonce: nonce,
	}

	header := map[string]any{
		"alg": "ES256",
		"typ": ProofJWTTyp,
		"jwk": jwkHeaderFromPublic(pub),
	}
	return signWithWSCD(ctx, w, identifier, header, claims)
}

// VerifyCredentialRequestProof verifies a CredentialRequestProof::Jwt
// against expected audience/nonce and returns the holder's published
// public key and its claimed wallet_client_id (the proof's iss).
func VerifyCredentialRequestProof(proofJWT, expectedAudience, expectedNonce string) (pub *ecdsa.PublicKey, walletClientID string, err error) {
	var header struct {
		Typ string    `json:"typ"`
		JWK jwkHeader `json:"jwk"`
	}
	if err := decodeJWTHeader(proofJWT, &header); err != nil {
		return nil, "", fmt.Errorf("issuance: decode proof header: %w", err)
	}
	if header.Typ != ProofJWTTyp {
		return nil, "", fmt.Errorf("%w: expected typ %q, got %q", jose.ErrTypeMismatch, ProofJWTTyp, header.Typ)
	}

	pub, err = header.JWK.publicKey()
	if err != nil {
		return nil, "", err
	}

	claims := &proofClaims{}
	if _, err := jose.VerifyTyped(proofJWT, claims, jose.VerifyOptions{
		Typ:     ProofJWTTyp,
		KeyFunc: func(*jwt.Token) (any, error) { return pub, nil },
	}); err != nil {
		return nil, "", err
	}

	aud, err := claims.GetAudience()
	if err != nil {
		return nil, "", fmt.Errorf("issuance: parse proof aud: %w", err)
	}
	if !slices.Contains(aud, expectedAudience) {
		return nil, "", fmt.Errorf("issuance: proof aud does not match credential issuer identifier")
	}
	if claims.Nonce != expectedNonce {
		return nil, "", fmt.Errorf("issuance: proof nonce does not match c_nonce")
	}

	return pub, claims.Issuer, nil
}

// signWithWSCD signs a compact JWS (header.payload) with the WSCD key
// identified by identifier, following the JWS Compact Serialization
// (RFC 7515 §7.1) over SoftwareSigner's ES256 output — the same
// fixed-size R||S encoding the wscd package's PoA assembly relies on.
func signWithWSCD(ctx context.Context, w wscd.WSCD, identifier string, header map[string]any, claims any) (string, error) {
	headerJSON, err := json.Marshal(header)
	if err != nil {
		return "", fmt.Errorf("issuance: encode jws header: %w", err)
	}
	claimsJSON, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("issuance: encode jws claims: %w", err)
	}

	signingInput := base64.RawURLEncoding.EncodeToString(headerJSON) + "." + base64.RawURLEncoding.EncodeToString(claimsJSON)

	sig, err := w.Sign(ctx, identifier, []byte(signingInput))
	if err != nil {
		return "", fmt.Errorf("issuance: sign proof: %w", err)
	}

	return signingInput + "." + base64.RawURLEncoding.EncodeToString(sig), nil
}
