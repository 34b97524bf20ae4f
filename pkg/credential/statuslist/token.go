package statuslist

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWTTyp is the typ header pinned on every status list token, per the
// teacher's pkg/tokenstatuslist/jwt.go JWTTypHeader constant.
const JWTTyp = "statuslist+jwt"

// Claim is the status_list claim embedded in a credential, carrying
// the idx this holder's status lives at and the uri of the list.
type Claim struct {
	Idx int    `json:"idx"`
	URI string `json:"uri"`
}

// ListClaim is the status_list claim carried by the status list
// token itself, grounded on teacher's StatusListClaim (jwt.go).
type ListClaim struct {
	Bits int    `json:"bits"`
	Lst  string `json:"lst"`
}

// TokenClaims is the JWT claim set of a status list token, grounded
// on teacher's JWTClaims (pkg/tokenstatuslist/jwt.go).
type TokenClaims struct {
	jwt.RegisteredClaims
	StatusList ListClaim `json:"status_list"`
	TTL        int64     `json:"ttl,omitempty"`
}

// Sign builds and signs a status list token over statuses, choosing
// the minimum bit width automatically.
func Sign(issuer, subject string, statuses []uint8, ttl time.Duration, signingKey any, signingMethod jwt.SigningMethod, keyID string) (string, error) {
	lst, bits, err := Encode(statuses)
	if err != nil {
		return "", fmt.Errorf("statuslist: encoding list: %w", err)
	}

	now := time.Now()
	claims := TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   issuer,
			Subject:  subject,
			IssuedAt: jwt.NewNumericDate(now),
		},
		StatusList: ListClaim{Bits: bits, Lst: lst},
	}
	if ttl > 0 {
		claims.TTL = int64(ttl.Seconds())
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}

	token := jwt.NewWithClaims(signingMethod, claims)
	token.Header["typ"] = JWTTyp
	if keyID != "" {
		token.Header["kid"] = keyID
	}
	return token.SignedString(signingKey)
}

// Verify parses and verifies a status list token against keyFunc,
// pinning the typ header and ES256, following the same pattern as
// pkg/credential/jose.VerifyTyped rather than the teacher's own
// hand-checked typ comparison in ParseJWT.
func Verify(tokenString string, keyFunc jwt.Keyfunc) (*TokenClaims, error) {
	claims := &TokenClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, keyFunc,
		jwt.WithValidMethods([]string{"ES256"}), jwt.WithLeeway(0))
	if err != nil {
		return nil, fmt.Errorf("statuslist: verifying token: %w", err)
	}
	typ, _ := token.Header["typ"].(string)
	if typ != JWTTyp {
		return nil, fmt.Errorf("statuslist: typ header mismatch: got %q want %q", typ, JWTTyp)
	}
	return claims, nil
}

// StatusAt decodes claims' embedded list and returns the status at idx.
func StatusAt(claims *TokenClaims, idx int, count int) (uint8, error) {
	statuses, err := Decode(claims.StatusList.Lst, claims.StatusList.Bits, count)
	if err != nil {
		return 0, err
	}
	return GetStatus(statuses, idx)
}
