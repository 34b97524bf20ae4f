package openid4vci

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// GenerateNonce generates the c_nonce a token or batch-credential
// response hands back for the holder's next proof-of-possession JWT.
// size of 0 defaults to 32 bytes; sizes above 94 are clamped to 94
// (a 128-character nonce), the largest value the issuer session ever
// needs.
func GenerateNonce(size int) (string, error) {
	if size == 0 {
		size = 32
	}
	if size > 94 {
		size = 94
	}
	nonceBytes := make([]byte, size)
	if _, err := rand.Read(nonceBytes); err != nil {
		return "", fmt.Errorf("openid4vci: generate nonce: %w", err)
	}

	return base64.URLEncoding.EncodeToString(nonceBytes), nil
}
