// Package verifier implements the verifier-side state machine of
// §4.9: Created, WaitingForResponse, Done(accepted|failed|cancelled).
// Grounded on the teacher's pkg/openid4vp (authorization_request.go's
// client_id/client_id_scheme/response_mode shape, qr_generator.go's
// same/cross-device session_type distinction) and
// pkg/credential/jose's JWE response encryption and pinned-typ JWT
// signing.
package verifier

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/MinBZK/nl-wallet-sub004/pkg/credential/jose"
	"github.com/MinBZK/nl-wallet-sub004/pkg/presentation"
	"github.com/golang-jwt/jwt/v5"
)

// State is the verifier session's lifecycle state.
type State int

const (
	StateCreated State = iota
	StateWaitingForResponse
	StateDoneAccepted
	StateDoneFailed
	StateDoneCancelled
)

// requestClaims is the signed authorization request object's payload;
// its Issuer must equal the leaf's SAN DNS name (§4.9).
type requestClaims struct {
	jwt.RegisteredClaims
	ClientIDScheme      string                   `json:"client_id_scheme"`
	ResponseURI         string                   `json:"response_uri"`
	Nonce               string                   `json:"nonce"`
	WalletNonce         string                   `json:"wallet_nonce,omitempty"`
	SessionType         presentation.SessionType `json:"session_type"`
	RequestedAttributes map[string][]string      `json:"requested_attributes"`
	EphemeralPublicJWK  json.RawMessage          `json:"ephemeral_public_jwk"`
}

// Session is one verifier-side presentation session.
type Session struct {
	mu sync.Mutex

	state State

	leaf       *x509.Certificate
	signingKey *ecdsa.PrivateKey
	clientID   string

	responseURI         string
	nonce                string
	walletNonce          string
	sessionType          presentation.SessionType
	requestedAttributes  map[string][]string

	redirectNonce string
	expiresAt     time.Time

	ephemeralPriv *ecdsa.PrivateKey

	disclosed *presentation.DeviceResponse
}

// NewSession creates a Created-state verifier session. leaf is the
// verifier's own reader-authentication certificate; signingKey is the
// private key matching its public key, used to sign the request
// object. requestedAttributes must already be authorized by leaf's
// ReaderRegistration extension - callers should have run
// certchain.Verify(leaf, ...) before calling NewSession.
func NewSession(leaf *x509.Certificate, signingKey *ecdsa.PrivateKey, responseURI string, requestedAttributes map[string][]string, sessionType presentation.SessionType, walletNonce string, ttl time.Duration) (*Session, error) {
	clientID, err := leafClientID(leaf)
	if err != nil {
		return nil, err
	}

	nonce, err := randomB64(32)
	if err != nil {
		return nil, fmt.Errorf("presentation: generate nonce: %w", err)
	}
	redirectNonce, err := randomB64(32)
	if err != nil {
		return nil, fmt.Errorf("presentation: generate redirect nonce: %w", err)
	}

	ephemeralPriv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("presentation: generate ephemeral key: %w", err)
	}

	return &Session{
		state:               StateCreated,
		leaf:                leaf,
		signingKey:          signingKey,
		clientID:            clientID,
		responseURI:         responseURI,
		nonce:               nonce,
		walletNonce:         walletNonce,
		sessionType:         sessionType,
		requestedAttributes: requestedAttributes,
		redirectNonce:       redirectNonce,
		expiresAt:           time.Now().Add(ttl),
		ephemeralPriv:       ephemeralPriv,
	}, nil
}

func leafClientID(leaf *x509.Certificate) (string, error) {
	if len(leaf.DNSNames) == 0 {
		return "", fmt.Errorf("presentation: verifier leaf carries no SAN DNS name")
	}
	return leaf.DNSNames[0], nil
}

func randomB64(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// State returns the session's current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// RedirectNonce returns the 256-bit nonce an optional redirect URL
// must carry, and that GetDisclosedAttributes requires back.
func (s *Session) RedirectNonce() string { return s.redirectNonce }

// RequestObject signs and returns the authorization request JWT,
// transitioning Created -> WaitingForResponse.
func (s *Session) RequestObject() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateCreated {
		return "", fmt.Errorf("presentation: request object already issued")
	}

	ephemeralPub, err := jose.JWKFromPublic(&s.ephemeralPriv.PublicKey)
	if err != nil {
		return "", err
	}
	ephemeralPubJSON, err := json.Marshal(ephemeralPub)
	if err != nil {
		return "", fmt.Errorf("presentation: encode ephemeral public key: %w", err)
	}

	claims := requestClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.clientID,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(s.expiresAt),
		},
		ClientIDScheme:      "x509_san_dns",
		ResponseURI:         s.responseURI,
		Nonce:               s.nonce,
		WalletNonce:         s.walletNonce,
		SessionType:         s.sessionType,
		RequestedAttributes: s.requestedAttributes,
		EphemeralPublicJWK:  ephemeralPubJSON,
	}

	token, err := jose.SignTyped(claims, s.signingKey, jose.SignOptions{Typ: presentation.RequestObjectTyp})
	if err != nil {
		return "", err
	}

	s.state = StateWaitingForResponse
	return token, nil
}

// EphemeralPublicKey returns the verifier's ephemeral ECDH public key
// the response must be encrypted to.
func (s *Session) EphemeralPublicKey() *ecdsa.PublicKey { return &s.ephemeralPriv.PublicKey }

// Cancel transitions Created or WaitingForResponse to Done(cancelled).
func (s *Session) Cancel() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateDoneAccepted || s.state == StateDoneFailed || s.state == StateDoneCancelled {
		return fmt.Errorf("presentation: session already done")
	}
	s.state = StateDoneCancelled
	return nil
}

// HandleError records the holder's OAuth-style error object and
// transitions WaitingForResponse -> Done(failed), per §4.9's
// "on error" clause.
func (s *Session) HandleError(errResp presentation.ErrorResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateWaitingForResponse {
		return fmt.Errorf("presentation: session is not awaiting a response")
	}
	s.state = StateDoneFailed
	return fmt.Errorf("presentation: holder reported %s: %s", errResp.Error, errResp.ErrorDescription)
}

// HandleResponse decrypts and validates responseJWE (the POST body of
// the response_uri endpoint): it must have been encrypted to this
// session's ephemeral key, every document's device signature must
// verify against sessionTranscript, and every requested attribute
// must be present. On success, transitions
// WaitingForResponse -> Done(accepted).
func (s *Session) HandleResponse(ctx context.Context, responseJWE []byte, sessionTranscript []byte, documentHolderKeys map[string]*ecdsa.PublicKey) (*presentation.DeviceResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateWaitingForResponse {
		return nil, fmt.Errorf("presentation: session is not awaiting a response")
	}
	if time.Now().After(s.expiresAt) {
		s.state = StateDoneFailed
		return nil, VerificationErrorFromCode(presentation.VerificationErrorExpired)
	}

	ephemeralJWK, err := jose.JWKFromECDSA(s.ephemeralPriv)
	if err != nil {
		s.state = StateDoneFailed
		return nil, err
	}

	payload, err := jose.DecryptResponse(responseJWE, ephemeralJWK)
	if err != nil {
		s.state = StateDoneFailed
		return nil, fmt.Errorf("presentation: decrypt response: %w", err)
	}

	var resp presentation.DeviceResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		s.state = StateDoneFailed
		return nil, fmt.Errorf("presentation: decode device response: %w", err)
	}

	seenAttributes := map[string][]string{}
	for _, doc := range resp.Documents {
		holderKey, ok := documentHolderKeys[doc.DocType]
		if !ok {
			s.state = StateDoneFailed
			return nil, fmt.Errorf("presentation: no known holder key for doc_type %q", doc.DocType)
		}
		if err := presentation.VerifyDeviceSignedDocument(doc.Device, sessionTranscript, holderKey); err != nil {
			s.state = StateDoneFailed
			return nil, fmt.Errorf("presentation: verify device signature for %q: %w", doc.DocType, err)
		}
		for ns, attrs := range doc.Attributes {
			for attr := range attrs {
				seenAttributes[ns] = append(seenAttributes[ns], attr)
			}
		}
	}

	for ns, attrs := range s.requestedAttributes {
		for _, attr := range attrs {
			if !contains(seenAttributes[ns], attr) {
				s.state = StateDoneFailed
				return nil, VerificationErrorFromCode(presentation.VerificationErrorMissingAttributes)
			}
		}
	}

	s.disclosed = &resp
	s.state = StateDoneAccepted
	return &resp, nil
}

func contains(haystack []string, needle string) bool {
	for _, h := range haystack {
		if h == needle {
			return true
		}
	}
	return false
}

// VerificationErrorFromCode wraps a VerificationErrorCode as an error.
func VerificationErrorFromCode(code presentation.VerificationErrorCode) error { return code }

// GetDisclosedAttributes returns the accepted session's disclosed
// documents, requiring the caller to present the session's own
// redirect nonce as the optional-redirect-URL contract of §4.9
// mandates: GET disclosed_attributes?nonce=... otherwise the endpoint
// fails with VerificationErrorNonce.
func (s *Session) GetDisclosedAttributes(nonce string) (*presentation.DeviceResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if nonce != s.redirectNonce {
		return nil, VerificationErrorFromCode(presentation.VerificationErrorNonce)
	}
	if s.state != StateDoneAccepted {
		return nil, fmt.Errorf("presentation: session has no accepted disclosure")
	}
	return s.disclosed, nil
}

// VerifySessionType refuses a same-device completion against a
// cross-device session and vice versa, per §4.9.
func (s *Session) VerifySessionType(completionType presentation.SessionType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if completionType != s.sessionType {
		return VerificationErrorFromCode(presentation.VerificationErrorSessionTypeMismatch)
	}
	return nil
}
