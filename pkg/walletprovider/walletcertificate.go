package walletprovider

import (
	"crypto/ecdsa"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/x509"
	"fmt"
	"time"

	"github.com/MinBZK/nl-wallet-sub004/pkg/credential/jose"
	"github.com/golang-jwt/jwt/v5"
)

// CertificateVersion is the wallet-certificate claims schema version
// (WALLET_CERTIFICATE_VERSION in the original).
const CertificateVersion = 0

// CertificateJWTTyp pins the wallet certificate's JWT typ header.
const CertificateJWTTyp = "wallet-cert+jwt"

// Errors returned by this file's functions.
var (
	ErrPinPubKeyMismatch = fmt.Errorf("walletprovider: pin public key hash does not match certificate")
	ErrHWPubKeyMismatch  = fmt.Errorf("walletprovider: hardware public key does not match certificate")
)

// CertificateClaims is the wallet certificate: a JWT binding a
// wallet_id to the device (hardware-bound) public key and an HMAC of
// the PIN public key. The HMAC key is internal to the account server;
// the wallet never holds it, so it cannot forge or inspect the hash.
type CertificateClaims struct {
	jwt.RegisteredClaims
	WalletID      string `json:"wallet_id"`
	HWPubKey      []byte `json:"hw_pubkey"`
	PinPubKeyHash []byte `json:"pin_pubkey_hash"`
	Version       int    `json:"version"`
}

// HWPublicKey decodes the claims' DER-encoded hardware public key.
func (c *CertificateClaims) HWPublicKey() (*ecdsa.PublicKey, error) {
	pub, err := x509.ParsePKIXPublicKey(c.HWPubKey)
	if err != nil {
		return nil, fmt.Errorf("walletprovider: decode hw_pubkey: %w", err)
	}
	ecdsaPub, ok := pub.(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("walletprovider: hw_pubkey is not an ECDSA key: %T", pub)
	}
	return ecdsaPub, nil
}

// HashPinPubKey computes the HMAC-SHA256 of the DER encoding of
// pinPub, keyed by a server-internal key never exposed to the wallet.
func HashPinPubKey(pinPub *ecdsa.PublicKey, hmacKey []byte) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(pinPub)
	if err != nil {
		return nil, fmt.Errorf("walletprovider: encode pin pubkey: %w", err)
	}
	mac := hmac.New(sha256.New, hmacKey)
	mac.Write(der)
	return mac.Sum(nil), nil
}

// NewWalletCertificate issues a wallet certificate binding walletID,
// hwPub, and the HMAC of pinPub, signed with signingKey.
func NewWalletCertificate(issuer, walletID string, hwPub *ecdsa.PublicKey, pinPub *ecdsa.PublicKey, hmacKey []byte, signingKey *ecdsa.PrivateKey, keyID string) (string, error) {
	hwDER, err := x509.MarshalPKIXPublicKey(hwPub)
	if err != nil {
		return "", fmt.Errorf("walletprovider: encode hw pubkey: %w", err)
	}
	pinHash, err := HashPinPubKey(pinPub, hmacKey)
	if err != nil {
		return "", err
	}

	claims := CertificateClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  walletID,
			Issuer:   issuer,
			IssuedAt: jwt.NewNumericDate(time.Now()),
		},
		WalletID:      walletID,
		HWPubKey:      hwDER,
		PinPubKeyHash: pinHash,
		Version:       CertificateVersion,
	}

	return jose.SignTyped(claims, signingKey, jose.SignOptions{Typ: CertificateJWTTyp, KeyID: keyID})
}

// VerifyWalletCertificate parses and verifies certificate against
// signingPubKey, returning its claims.
func VerifyWalletCertificate(certificate string, signingPubKey *ecdsa.PublicKey) (*CertificateClaims, error) {
	claims := &CertificateClaims{}
	keyFunc := func(*jwt.Token) (any, error) { return signingPubKey, nil }
	if _, err := jose.VerifyTyped(certificate, claims, jose.VerifyOptions{Typ: CertificateJWTTyp, KeyFunc: keyFunc}); err != nil {
		return nil, err
	}
	return claims, nil
}

// VerifyCertificatePublicKeys checks that claims' hardware public key
// matches hwPub exactly, and that claims' pin_pubkey_hash matches an
// HMAC of pinPub recomputed with hmacKey — the two checks
// verify_wallet_certificate_public_keys performs before a certificate
// is accepted as proof of both device and PIN possession.
func VerifyCertificatePublicKeys(claims *CertificateClaims, hwPub *ecdsa.PublicKey, pinPub *ecdsa.PublicKey, hmacKey []byte) error {
	wantPinHash, err := HashPinPubKey(pinPub, hmacKey)
	if err != nil {
		return err
	}
	if !hmac.Equal(claims.PinPubKeyHash, wantPinHash) {
		return ErrPinPubKeyMismatch
	}

	wantHWDER, err := x509.MarshalPKIXPublicKey(hwPub)
	if err != nil {
		return fmt.Errorf("walletprovider: encode hw pubkey: %w", err)
	}
	if !hmac.Equal(claims.HWPubKey, wantHWDER) {
		return ErrHWPubKeyMismatch
	}
	return nil
}
