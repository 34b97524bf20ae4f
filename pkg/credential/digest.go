package credential

import (
	"crypto/sha256"
	"crypto/sha512"
)

func sha256Digest(b []byte) []byte {
	sum := sha256.Sum256(b)
	return sum[:]
}

func sha512Digest(b []byte) []byte {
	sum := sha512.Sum512(b)
	return sum[:]
}
