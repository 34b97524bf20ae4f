// Package issuer implements the issuer-side state machine of §4.8:
// Created, WaitingForResponse, and Done(issued|cancelled|expired),
// keyed by an access token that is the concatenation of 32 random
// bytes and the pre-authorised code so the server can recover the
// session by a suffix match. Grounded on dc4eu-vc's pkg/openid4vci
// wire types (TokenRequest/Response, CredentialRequest/Response,
// BatchCredentialRequest/Response, Error) and its error-taxonomy
// table in error.go.
package issuer

import (
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"github.com/MinBZK/nl-wallet-sub004/pkg/issuance"
	"github.com/MinBZK/nl-wallet-sub004/pkg/logger"
	"github.com/MinBZK/nl-wallet-sub004/pkg/openid4vci"
)

var log = logger.NewSimple("issuer")

// State is the issuer session's lifecycle state.
type State int

const (
	StateCreated State = iota
	StateWaitingForResponse
	StateDoneIssued
	StateDoneCancelled
	StateDoneExpired
)

// CredentialOffer is what the session promises to issue: one entry
// per requested credential copy, carrying the attestation type/format
// and the attribute set the holder will eventually see as a preview.
type CredentialOffer struct {
	Format     string
	VCT        string
	Attributes map[string]any
	Copies     int
}

// IssueFunc produces the raw issued credential (SD-JWT VC / mdoc
// compact serialization) bound to holderKey for one requested copy of
// offer. Left to the caller: the wire shape is format-specific and
// belongs to C1-C7, not to this session's protocol plumbing.
type IssueFunc func(offer CredentialOffer, holderKey *ecdsa.PublicKey) (credential string, err error)

// Session is one issuer-side OpenID4VCI issuance session.
type Session struct {
	mu sync.Mutex

	state       State
	accessToken string
	preAuthCode string
	cNonce      string
	expiresAt   time.Time

	issuerIdentifier string
	walletClientID   string
	offer            CredentialOffer
	issue            IssueFunc
}

// NewSession creates a Created-state session for the pre-authorised
// code preAuthCode, offering offer once the holder's token request
// arrives. walletClientID is the wallet_client_id the issued proof's
// iss claim must match.
func NewSession(issuerIdentifier, walletClientID, preAuthCode string, offer CredentialOffer, issue IssueFunc) *Session {
	return &Session{
		state:            StateCreated,
		preAuthCode:      preAuthCode,
		issuerIdentifier: issuerIdentifier,
		walletClientID:   walletClientID,
		offer:            offer,
		issue:            issue,
	}
}

// State returns the session's current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// HandleTokenRequest validates a DPoP-bound token request and, on
// success, transitions Created -> WaitingForResponse, minting an
// access token bound to the holder's DPoP key.
func (s *Session) HandleTokenRequest(req openid4vci.TokenRequest, tokenEndpoint string, dpopMaxAge time.Duration) (openid4vci.TokenResponse, *openid4vci.Error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateCreated {
		return openid4vci.TokenResponse{}, &openid4vci.Error{Err: openid4vci.ErrTokenInvalidGrant, ErrorDescription: "session is not awaiting a token request"}
	}
	if err := openid4vci.CheckSimple(req); err != nil {
		return openid4vci.TokenResponse{}, &openid4vci.Error{Err: openid4vci.ErrTokenInvalidRequest, ErrorDescription: err.Error()}
	}

	if _, err := issuance.VerifyDPoPProof(req.DPOP, "POST", tokenEndpoint, "", dpopMaxAge); err != nil {
		return openid4vci.TokenResponse{}, &openid4vci.Error{Err: openid4vci.ErrTokenInvalidRequest, ErrorDescription: err.Error()}
	}

	token, err := newAccessToken(s.preAuthCode)
	if err != nil {
		return openid4vci.TokenResponse{}, &openid4vci.Error{Err: openid4vci.ErrTokenServerError, ErrorDescription: err.Error()}
	}
	nonce, err := openid4vci.GenerateNonce(0)
	if err != nil {
		return openid4vci.TokenResponse{}, &openid4vci.Error{Err: openid4vci.ErrTokenServerError, ErrorDescription: err.Error()}
	}

	s.accessToken = token
	s.cNonce = nonce
	s.expiresAt = time.Now().Add(5 * time.Minute)
	s.state = StateWaitingForResponse
	log.Info("issued access token", "wallet_client_id", s.walletClientID)

	return openid4vci.TokenResponse{
		AccessToken:     token,
		TokenType:       "DPoP",
		ExpiresIn:       300,
		CNonce:          nonce,
		CNonceExpiresIn: 300,
		AuthorizationDetails: []openid4vci.AuthorizationDetailsParameter{{
			Type:   "openid_credential",
			Format: s.offer.Format,
			VCT:    s.offer.VCT,
		}},
	}, nil
}

// SessionForToken recovers session from the received access token by
// the pre-authorised-code suffix match §4.8 specifies, given a lookup
// table keyed by pre-authorised code.
func SessionForToken(token string, byPreAuthCode map[string]*Session) (*Session, bool) {
	for code, s := range byPreAuthCode {
		if len(token) > len(code) && token[len(token)-len(code):] == code {
			return s, true
		}
	}
	return nil, false
}

// HandleBatchCredentialRequest validates the access token and every
// proof in req, then issues one credential per requested copy.
// A proof-count/copy-count mismatch, an invalid proof, or an IssueFunc
// failure all fail the whole batch — partial issuance is not offered.
func (s *Session) HandleBatchCredentialRequest(accessToken string, req openid4vci.BatchCredentialRequest) (openid4vci.BatchCredentialResponse, *openid4vci.Error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateWaitingForResponse {
		return openid4vci.BatchCredentialResponse{}, &openid4vci.Error{Err: openid4vci.ErrInvalidRequest, ErrorDescription: "session is not awaiting a credential request"}
	}
	if accessToken != s.accessToken {
		return openid4vci.BatchCredentialResponse{}, &openid4vci.Error{Err: openid4vci.ErrInvalidToken, ErrorDescription: "unknown access token"}
	}
	if time.Now().After(s.expiresAt) {
		s.state = StateDoneExpired
		return openid4vci.BatchCredentialResponse{}, &openid4vci.Error{Err: openid4vci.ErrInvalidToken, ErrorDescription: "access token expired"}
	}
	if err := openid4vci.CheckSimple(req); err != nil {
		return openid4vci.BatchCredentialResponse{}, &openid4vci.Error{Err: openid4vci.ErrInvalidCredentialRequest, ErrorDescription: err.Error()}
	}
	if len(req.CredentialRequests) != s.offer.Copies {
		return openid4vci.BatchCredentialResponse{}, &openid4vci.Error{Err: openid4vci.ErrInvalidCredentialRequest, ErrorDescription: "requested copy count does not match the offer"}
	}

	responses := make([]openid4vci.CredentialResponse, 0, len(req.CredentialRequests))
	for _, cr := range req.CredentialRequests {
		if cr.Proof == nil || cr.Proof.ProofType != "jwt" {
			return openid4vci.BatchCredentialResponse{}, &openid4vci.Error{Err: openid4vci.ErrInvalidProof, ErrorDescription: "credential request proof or proofs missing"}
		}

		holderKey, proofIss, err := issuance.VerifyCredentialRequestProof(cr.Proof.JWT, s.issuerIdentifier, s.cNonce)
		if err != nil {
			return openid4vci.BatchCredentialResponse{}, &openid4vci.Error{Err: openid4vci.ErrInvalidProof, ErrorDescription: err.Error()}
		}
		if proofIss != s.walletClientID {
			return openid4vci.BatchCredentialResponse{}, &openid4vci.Error{Err: openid4vci.ErrInvalidProof, ErrorDescription: "proof iss does not match wallet_client_id"}
		}

		credential, err := s.issue(s.offer, holderKey)
		if err != nil {
			return openid4vci.BatchCredentialResponse{}, &openid4vci.Error{Err: openid4vci.ErrCredentialRequestDenied, ErrorDescription: err.Error()}
		}

		responses = append(responses, openid4vci.CredentialResponse{
			Credentials: []openid4vci.Credential{{Credential: credential}},
		})
	}

	s.state = StateDoneIssued
	log.Info("issued credentials", "wallet_client_id", s.walletClientID, "copies", len(responses))
	return openid4vci.BatchCredentialResponse{CredentialResponses: responses}, nil
}

// HandleReject transitions the session to Done(cancelled), as if the
// holder had rejected the preview rather than requesting credentials.
func (s *Session) HandleReject(accessToken string) *openid4vci.Error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateWaitingForResponse {
		return &openid4vci.Error{Err: openid4vci.ErrInvalidRequest, ErrorDescription: "session is not awaiting a response"}
	}
	if accessToken != s.accessToken {
		return &openid4vci.Error{Err: openid4vci.ErrInvalidToken, ErrorDescription: "unknown access token"}
	}

	s.state = StateDoneCancelled
	return nil
}

func newAccessToken(preAuthorizedCode string) (string, error) {
	random := make([]byte, 32)
	if _, err := rand.Read(random); err != nil {
		return "", fmt.Errorf("issuer: generate access token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(random) + preAuthorizedCode, nil
}
