// Package holder implements the holder-side state machine of §4.8:
// Idle, WaitingForToken, HasPreview, KeysGenerated, Issued, Cancelled,
// Failed. Grounded on dc4eu-vc's pkg/openid4vci wire types and on
// pkg/issuance's DPoP/proof-of-possession JWT builders; credential
// verification reuses pkg/credential/certchain.Verify and the SD-JWT
// VC cnf-claim shape of pkg/credential.SDJWTClaims.
package holder

import (
	"context"
	"crypto/ecdsa"
	"fmt"

	"github.com/MinBZK/nl-wallet-sub004/pkg/issuance"
	"github.com/MinBZK/nl-wallet-sub004/pkg/openid4vci"
	"github.com/MinBZK/nl-wallet-sub004/pkg/wscd"
)

// State is the holder session's lifecycle state.
type State int

const (
	StateIdle State = iota
	StateWaitingForToken
	StateHasPreview
	StateKeysGenerated
	StateIssued
	StateCancelled
	StateFailed
)

// Preview is one offered credential copy as announced in the token
// response's authorization_details, before the holder has generated
// any keys or requested credentials.
type Preview struct {
	Format                    string
	VCT                       string
	CredentialConfigurationID string
	Copies                    int
}

// Transport performs the three network calls §4.8 describes. HTTP
// transport itself is out of scope for this package (as for the rest
// of the core, per §1); callers supply an implementation wired to
// their own HTTP client.
type Transport interface {
	PostTokenRequest(ctx context.Context, tokenEndpoint string, req openid4vci.TokenRequest) (openid4vci.TokenResponse, error)
	PostBatchCredentialRequest(ctx context.Context, credentialEndpoint, accessToken string, req openid4vci.BatchCredentialRequest) (openid4vci.BatchCredentialResponse, error)
	DeleteCredentialRequest(ctx context.Context, credentialEndpoint, accessToken string) error
}

// IssuedCredential is one verified, issued credential copy bound to
// the key generated for it.
type IssuedCredential struct {
	Credential string
	HolderKey  *ecdsa.PublicKey
}

// Verifier checks an issued credential against the trust anchors and
// the offered preview: chain validity, holder-key binding, attribute
// set, and format. Left pluggable because the check is format-specific
// (MDOC vs SD-JWT VC) and belongs to C1-C7, not to this session's
// protocol plumbing.
type Verifier func(credential string, preview Preview, holderKey *ecdsa.PublicKey) error

// Session is one holder-side OpenID4VCI issuance session.
type Session struct {
	state State

	w              wscd.WSCD
	transport      Transport
	verify         Verifier
	walletClientID string
	issuerID       string

	tokenEndpoint      string
	credentialEndpoint string

	accessToken string
	cNonce      string
	previews    []Preview

	keyIdentifiers []string
	keys           []*ecdsa.PublicKey

	issued []IssuedCredential
}

// NewSession creates an Idle-state holder session for issuerID (the
// credential_issuer_identifier used as the proof's aud), identified
// to the issuer as walletClientID (the proof's iss).
func NewSession(w wscd.WSCD, transport Transport, verify Verifier, walletClientID, issuerID, tokenEndpoint, credentialEndpoint string) *Session {
	return &Session{
		state:              StateIdle,
		w:                  w,
		transport:          transport,
		verify:             verify,
		walletClientID:     walletClientID,
		issuerID:           issuerID,
		tokenEndpoint:      tokenEndpoint,
		credentialEndpoint: credentialEndpoint,
	}
}

// State returns the session's current state.
func (s *Session) State() State { return s.state }

// Start performs the DPoP-bound token POST, transitioning
// Idle -> WaitingForToken -> HasPreview on success, or -> Failed on a
// network or protocol error.
func (s *Session) Start(ctx context.Context, dpopKey *ecdsa.PrivateKey) error {
	if s.state != StateIdle {
		return fmt.Errorf("holder: start called outside Idle")
	}
	s.state = StateWaitingForToken

	proof, err := issuance.NewDPoPProof(dpopKey, "POST", s.tokenEndpoint, "")
	if err != nil {
		s.state = StateFailed
		return fmt.Errorf("holder: build dpop proof: %w", err)
	}

	resp, err := s.transport.PostTokenRequest(ctx, s.tokenEndpoint, openid4vci.TokenRequest{DPOP: proof})
	if err != nil {
		s.state = StateFailed
		return fmt.Errorf("holder: token request: %w", err)
	}

	previews := make([]Preview, 0, len(resp.AuthorizationDetails))
	for _, ad := range resp.AuthorizationDetails {
		previews = append(previews, Preview{
			Format:                    ad.Format,
			VCT:                       ad.VCT,
			CredentialConfigurationID: ad.CredentialConfigurationID,
			Copies:                    1,
		})
	}

	s.accessToken = resp.AccessToken
	s.cNonce = resp.CNonce
	s.previews = previews
	s.state = StateHasPreview
	return nil
}

// Previews returns the offered credential copies once HasPreview has
// been reached.
func (s *Session) Previews() []Preview { return s.previews }

// Accept generates one fresh WSCD key per requested credential copy,
// builds a credential-request proof for each, submits the batch, and
// verifies every returned credential against its preview. A
// proof-count/response-count mismatch or a failed verification is
// fatal and transitions to Failed; otherwise the session reaches
// Issued. keyIdentifierPrefix namespaces the WSCD key identifiers this
// session generates (e.g. a session ID) so repeated Accept calls across
// sessions never collide.
func (s *Session) Accept(ctx context.Context, keyIdentifierPrefix string) ([]IssuedCredential, error) {
	if s.state != StateHasPreview {
		return nil, fmt.Errorf("holder: accept called outside HasPreview")
	}

	totalCopies := 0
	for _, p := range s.previews {
		totalCopies += p.Copies
	}

	keyIDs := make([]string, 0, totalCopies)
	keys := make([]*ecdsa.PublicKey, 0, totalCopies)
	previewOf := make([]Preview, 0, totalCopies)
	proofs := make([]openid4vci.CredentialRequest, 0, totalCopies)

	for pi, p := range s.previews {
		for c := 0; c < p.Copies; c++ {
			keyID := fmt.Sprintf("%s-%d-%d", keyIdentifierPrefix, pi, c)
			pub, err := s.w.Generate(ctx, keyID)
			if err != nil {
				s.state = StateFailed
				return nil, fmt.Errorf("holder: generate credential key: %w", err)
			}

			proofJWT, err := issuance.NewCredentialRequestProof(ctx, s.w, keyID, s.walletClientID, s.issuerID, s.cNonce, pub)
			if err != nil {
				s.state = StateFailed
				return nil, fmt.Errorf("holder: build credential request proof: %w", err)
			}

			keyIDs = append(keyIDs, keyID)
			keys = append(keys, pub)
			previewOf = append(previewOf, p)
			proofs = append(proofs, openid4vci.CredentialRequest{
				Format: p.Format,
				Proof:  &openid4vci.Proof{ProofType: "jwt", JWT: proofJWT},
			})
		}
	}

	s.keyIdentifiers = keyIDs
	s.keys = keys
	s.state = StateKeysGenerated

	resp, err := s.transport.PostBatchCredentialRequest(ctx, s.credentialEndpoint, s.accessToken, openid4vci.BatchCredentialRequest{CredentialRequests: proofs})
	if err != nil {
		s.state = StateFailed
		return nil, fmt.Errorf("holder: batch credential request: %w", err)
	}
	if len(resp.CredentialResponses) != len(proofs) {
		s.state = StateFailed
		return nil, fmt.Errorf("holder: expected %d credential responses, got %d", len(proofs), len(resp.CredentialResponses))
	}

	issued := make([]IssuedCredential, 0, len(resp.CredentialResponses))
	for i, cr := range resp.CredentialResponses {
		if len(cr.Credentials) != 1 {
			s.state = StateFailed
			return nil, fmt.Errorf("holder: expected exactly one credential in response %d, got %d", i, len(cr.Credentials))
		}
		credential := cr.Credentials[0].Credential

		if s.verify != nil {
			if err := s.verify(credential, previewOf[i], keys[i]); err != nil {
				s.state = StateFailed
				return nil, fmt.Errorf("holder: verify issued credential %d: %w", i, err)
			}
		}

		issued = append(issued, IssuedCredential{Credential: credential, HolderKey: keys[i]})
	}

	s.issued = issued
	s.state = StateIssued
	return issued, nil
}

// Reject issues an authenticated DELETE to the credential endpoint and
// transitions HasPreview -> Cancelled. No credentials are stored.
func (s *Session) Reject(ctx context.Context) error {
	if s.state != StateHasPreview {
		return fmt.Errorf("holder: reject called outside HasPreview")
	}
	if err := s.transport.DeleteCredentialRequest(ctx, s.credentialEndpoint, s.accessToken); err != nil {
		s.state = StateFailed
		return fmt.Errorf("holder: reject request: %w", err)
	}
	s.state = StateCancelled
	return nil
}

// Issued returns the verified credentials once Issued has been reached.
func (s *Session) Issued() []IssuedCredential { return s.issued }
