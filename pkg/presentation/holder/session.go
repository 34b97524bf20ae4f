// Package holder implements the holder-side state machine of §4.9:
// Scanned, Matched(candidates), Disclosed, Failed, Cancelled.
// Grounded on pkg/issuance/holder/session.go's pluggable Transport
// pattern (HTTP transport is out of scope; the network boundary is a
// caller-supplied interface) and pkg/presentation's device-signed
// challenge and JWE response encryption.
package holder

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/MinBZK/nl-wallet-sub004/pkg/credential/jose"
	"github.com/MinBZK/nl-wallet-sub004/pkg/presentation"
	"github.com/MinBZK/nl-wallet-sub004/pkg/wscd"
)

// State is the holder-side presentation session's lifecycle state.
type State int

const (
	StateScanned State = iota
	StateMatched
	StateDisclosed
	StateFailed
	StateCancelled
)

// Candidate is one credential in the wallet that can satisfy part of
// the verifier's request.
type Candidate struct {
	DocType      string
	KeyIdentifier string
	Attributes   map[string]map[string]any
}

// Transport carries the response_uri POST; it is left pluggable since
// the actual HTTP client is out of scope here, mirroring
// pkg/issuance/holder's Transport interface.
type Transport interface {
	PostResponse(ctx context.Context, responseURI string, jwe []byte) error
	PostError(ctx context.Context, responseURI string, errResp presentation.ErrorResponse) error
}

// Matcher resolves the verifier's requested attributes against the
// wallet's stored credentials; format-specific matching logic belongs
// to the credential packages, not here.
type Matcher func(requested map[string][]string) ([]Candidate, error)

// Session is one holder-side presentation session, built from a
// parsed and validated presentation.AuthorizationRequest.
type Session struct {
	mu sync.Mutex

	state State

	w         wscd.WSCD
	transport Transport
	match     Matcher

	request           presentation.AuthorizationRequest
	verifierEphemeral json.RawMessage
	sessionTranscript []byte

	candidates []Candidate
	selected   []Candidate
}

// NewSession parses req (already signature- and client_id-SAN-DNS
// verified by the caller, per §4.9's iss/client_id contract) and
// matches it against the wallet via match, transitioning
// Scanned -> Matched.
func NewSession(w wscd.WSCD, transport Transport, match Matcher, req presentation.AuthorizationRequest, sessionTranscript []byte) (*Session, error) {
	candidates, err := match(req.RequestedAttributes)
	if err != nil {
		return nil, fmt.Errorf("presentation: match request: %w", err)
	}

	state := StateScanned
	if len(candidates) > 0 {
		state = StateMatched
	}

	return &Session{
		state:             state,
		w:                 w,
		transport:         transport,
		match:             match,
		request:           req,
		verifierEphemeral: req.EphemeralPublicJWK,
		sessionTranscript: sessionTranscript,
		candidates:        candidates,
	}, nil
}

// State returns the session's current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Candidates returns the matched candidates awaiting selection.
func (s *Session) Candidates() []Candidate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.candidates
}

// Accept signs the device authentication challenge for each selected
// candidate, encrypts the resulting DeviceResponse to the verifier's
// ephemeral public key, and POSTs it to response_uri, transitioning
// Matched -> Disclosed.
func (s *Session) Accept(ctx context.Context, selected []Candidate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateMatched {
		return fmt.Errorf("presentation: session has no matched candidates to accept")
	}
	if len(selected) == 0 {
		s.state = StateFailed
		return fmt.Errorf("presentation: no candidates selected")
	}

	keyIdentifiers := make([]string, len(selected))
	docTypes := make([]string, len(selected))
	for i, c := range selected {
		keyIdentifiers[i] = c.KeyIdentifier
		docTypes[i] = c.DocType
	}

	signed, err := presentation.SignSelectedDocuments(ctx, s.w, keyIdentifiers, docTypes, s.sessionTranscript)
	if err != nil {
		s.state = StateFailed
		return err
	}

	docs := make([]presentation.DisclosedDocument, len(selected))
	for i, c := range selected {
		docs[i] = presentation.DisclosedDocument{
			DocType:    c.DocType,
			Attributes: c.Attributes,
			Device:     signed[i],
		}
	}

	payload, err := json.Marshal(presentation.DeviceResponse{Documents: docs})
	if err != nil {
		s.state = StateFailed
		return fmt.Errorf("presentation: encode device response: %w", err)
	}

	recipientKey, err := jose.ParseJWK(s.verifierEphemeral)
	if err != nil {
		s.state = StateFailed
		return fmt.Errorf("presentation: parse verifier ephemeral key: %w", err)
	}

	jwe, err := jose.EncryptResponse(payload, recipientKey)
	if err != nil {
		s.state = StateFailed
		return fmt.Errorf("presentation: encrypt response: %w", err)
	}

	if err := s.transport.PostResponse(ctx, s.request.ResponseURI, jwe); err != nil {
		s.state = StateFailed
		return fmt.Errorf("presentation: post response: %w", err)
	}

	s.selected = selected
	s.state = StateDisclosed
	return nil
}

// Reject posts an OAuth-style error object instead of a DeviceResponse
// and transitions to Cancelled, per §4.9's "on error" clause.
func (s *Session) Reject(ctx context.Context, reason presentation.ErrorResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateDisclosed || s.state == StateFailed || s.state == StateCancelled {
		return fmt.Errorf("presentation: session already terminal")
	}

	if err := s.transport.PostError(ctx, s.request.ResponseURI, reason); err != nil {
		s.state = StateFailed
		return fmt.Errorf("presentation: post error: %w", err)
	}

	s.state = StateCancelled
	return nil
}

// Selected returns the documents disclosed by a completed Accept.
func (s *Session) Selected() []Candidate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected
}
