package holder

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"testing"
	"time"

	"github.com/MinBZK/nl-wallet-sub004/pkg/issuance/issuer"
	"github.com/MinBZK/nl-wallet-sub004/pkg/openid4vci"
	"github.com/MinBZK/nl-wallet-sub004/pkg/wscd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testIssuerIdentifier   = "https://issuer.example"
	testWalletClientID     = "wallet-client-1"
	testTokenEndpoint      = "https://issuer.example/token"
	testCredentialEndpoint = "https://issuer.example/credential"
)

// dpopMaxAgeForTest is generous enough that test execution time never
// trips the DPoP proof's freshness check.
const dpopMaxAgeForTest = time.Hour

// inMemoryTransport drives an in-process issuer.Session directly,
// standing in for the HTTP client a real deployment would supply.
type inMemoryTransport struct {
	issuerSession *issuer.Session
}

func (tr *inMemoryTransport) PostTokenRequest(ctx context.Context, tokenEndpoint string, req openid4vci.TokenRequest) (openid4vci.TokenResponse, error) {
	resp, apiErr := tr.issuerSession.HandleTokenRequest(req, tokenEndpoint, dpopMaxAgeForTest)
	if apiErr != nil {
		return openid4vci.TokenResponse{}, apiErr
	}
	return resp, nil
}

func (tr *inMemoryTransport) PostBatchCredentialRequest(ctx context.Context, credentialEndpoint, accessToken string, req openid4vci.BatchCredentialRequest) (openid4vci.BatchCredentialResponse, error) {
	resp, apiErr := tr.issuerSession.HandleBatchCredentialRequest(accessToken, req)
	if apiErr != nil {
		return openid4vci.BatchCredentialResponse{}, apiErr
	}
	return resp, nil
}

func (tr *inMemoryTransport) DeleteCredentialRequest(ctx context.Context, credentialEndpoint, accessToken string) error {
	if apiErr := tr.issuerSession.HandleReject(accessToken); apiErr != nil {
		return apiErr
	}
	return nil
}

func newTestHolderKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	return key
}

func newIssuerOffer() issuer.CredentialOffer {
	return issuer.CredentialOffer{
		Format:     "vc+sd-jwt",
		VCT:        "DiplomaCredential",
		Attributes: map[string]any{"name": "Alice"},
		Copies:     1,
	}
}

func TestHolderSessionFullIssuanceFlow(t *testing.T) {
	ctx := context.Background()
	w := wscd.NewMemoryWSCD()
	dpopKey := newTestHolderKey(t)

	issuerSession := issuer.NewSession(testIssuerIdentifier, testWalletClientID, "pre-auth-code-1", newIssuerOffer(), func(offer issuer.CredentialOffer, holderKey *ecdsa.PublicKey) (string, error) {
		return "issued-credential-for-" + offer.VCT, nil
	})
	transport := &inMemoryTransport{issuerSession: issuerSession}

	verified := false
	verify := func(credential string, preview Preview, holderKey *ecdsa.PublicKey) error {
		verified = true
		assert.Equal(t, "issued-credential-for-DiplomaCredential", credential)
		assert.Equal(t, "DiplomaCredential", preview.VCT)
		return nil
	}

	session := NewSession(w, transport, verify, testWalletClientID, testIssuerIdentifier, testTokenEndpoint, testCredentialEndpoint)

	require.NoError(t, session.Start(ctx, dpopKey))
	assert.Equal(t, StateHasPreview, session.State())
	require.Len(t, session.Previews(), 1)

	issued, err := session.Accept(ctx, "session-1")
	require.NoError(t, err)
	require.Len(t, issued, 1)
	assert.Equal(t, "issued-credential-for-DiplomaCredential", issued[0].Credential)
	assert.True(t, verified)
	assert.Equal(t, StateIssued, session.State())
}

func TestHolderSessionRejectTransitionsToCancelled(t *testing.T) {
	ctx := context.Background()
	w := wscd.NewMemoryWSCD()
	dpopKey := newTestHolderKey(t)

	issuerSession := issuer.NewSession(testIssuerIdentifier, testWalletClientID, "pre-auth-code-2", newIssuerOffer(), func(offer issuer.CredentialOffer, holderKey *ecdsa.PublicKey) (string, error) {
		return "unused", nil
	})
	transport := &inMemoryTransport{issuerSession: issuerSession}

	session := NewSession(w, transport, nil, testWalletClientID, testIssuerIdentifier, testTokenEndpoint, testCredentialEndpoint)
	require.NoError(t, session.Start(ctx, dpopKey))

	require.NoError(t, session.Reject(ctx))
	assert.Equal(t, StateCancelled, session.State())
	assert.Equal(t, issuer.StateDoneCancelled, issuerSession.State())
}

func TestHolderSessionFailsOnVerificationMismatch(t *testing.T) {
	ctx := context.Background()
	w := wscd.NewMemoryWSCD()
	dpopKey := newTestHolderKey(t)

	issuerSession := issuer.NewSession(testIssuerIdentifier, testWalletClientID, "pre-auth-code-3", newIssuerOffer(), func(offer issuer.CredentialOffer, holderKey *ecdsa.PublicKey) (string, error) {
		return "issued-credential", nil
	})
	transport := &inMemoryTransport{issuerSession: issuerSession}

	verify := func(credential string, preview Preview, holderKey *ecdsa.PublicKey) error {
		return assert.AnError
	}

	session := NewSession(w, transport, verify, testWalletClientID, testIssuerIdentifier, testTokenEndpoint, testCredentialEndpoint)
	require.NoError(t, session.Start(ctx, dpopKey))

	_, err := session.Accept(ctx, "session-3")
	assert.Error(t, err)
	assert.Equal(t, StateFailed, session.State())
}

func TestHolderSessionFailsOnCopyCountMismatch(t *testing.T) {
	ctx := context.Background()
	w := wscd.NewMemoryWSCD()
	dpopKey := newTestHolderKey(t)

	offer := newIssuerOffer()
	offer.Copies = 2
	issuerSession := issuer.NewSession(testIssuerIdentifier, testWalletClientID, "pre-auth-code-4", offer, func(offer issuer.CredentialOffer, holderKey *ecdsa.PublicKey) (string, error) {
		return "issued-credential", nil
	})
	transport := &inMemoryTransport{issuerSession: issuerSession}

	session := NewSession(w, transport, nil, testWalletClientID, testIssuerIdentifier, testTokenEndpoint, testCredentialEndpoint)
	require.NoError(t, session.Start(ctx, dpopKey))
	// The holder's own Previews() only ever reports Copies:1 per
	// authorization_details entry (§4.8 doesn't expose per-entry copy
	// counts in the token response), so Accept here requests 1 copy
	// against an issuer offer expecting 2 - triggering the issuer's
	// fatal mismatch check.

	_, err := session.Accept(ctx, "session-4")
	assert.Error(t, err)
	assert.Equal(t, StateFailed, session.State())
}
