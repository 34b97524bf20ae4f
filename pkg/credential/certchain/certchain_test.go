package certchain_test

import (
	"errors"
	"testing"
	"time"

	"github.com/MinBZK/nl-wallet-sub004/pkg/credential/certchain"
	"github.com/MinBZK/nl-wallet-sub004/pkg/credential/certchain/certchaintest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyVerifierAcceptsAuthorizedAttributes(t *testing.T) {
	reg := certchain.ReaderRegistration{
		Organization: "Acme Relying Party",
		Purpose:      "age verification",
		Attributes: certchain.AttributeTree{
			"org.iso.18013.5.1": {"age_over_18": {}},
		},
	}
	chain, err := certchaintest.Generate(
		certchaintest.WithDNSName("rp.example.com"),
		certchaintest.WithReaderRegistration(reg),
	)
	require.NoError(t, err)

	result, err := certchain.Verify(chain.Leaf, certchain.VerifyOptions{
		Roots:               chain.Roots,
		AtTime:              time.Now(),
		Role:                certchain.RoleVerifier,
		RequestedAttributes: map[string][]string{"org.iso.18013.5.1": {"age_over_18"}},
		ClientID:             "rp.example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, "Acme Relying Party", result.ReaderRegistration.Organization)
}

func TestVerifyVerifierRejectsUnregisteredAttributes(t *testing.T) {
	reg := certchain.ReaderRegistration{
		Organization: "Acme Relying Party",
		Attributes: certchain.AttributeTree{
			"org.iso.18013.5.1": {"age_over_18": {}},
		},
	}
	chain, err := certchaintest.Generate(
		certchaintest.WithDNSName("rp.example.com"),
		certchaintest.WithReaderRegistration(reg),
	)
	require.NoError(t, err)

	_, err = certchain.Verify(chain.Leaf, certchain.VerifyOptions{
		Roots:  chain.Roots,
		AtTime: time.Now(),
		Role:   certchain.RoleVerifier,
		RequestedAttributes: map[string][]string{
			"org.iso.18013.5.1": {"age_over_18", "given_name"},
		},
		ClientID: "rp.example.com",
	})
	require.Error(t, err)
	var unregistered *certchain.UnregisteredAttributesError
	require.True(t, errors.As(err, &unregistered))
	assert.Equal(t, []string{"given_name"}, unregistered.Missing["org.iso.18013.5.1"])
}

func TestVerifyVerifierRejectsClientIDMismatch(t *testing.T) {
	reg := certchain.ReaderRegistration{
		Organization: "Acme Relying Party",
		Attributes:   certchain.AttributeTree{"org.iso.18013.5.1": {"age_over_18": {}}},
	}
	chain, err := certchaintest.Generate(
		certchaintest.WithDNSName("rp.example.com"),
		certchaintest.WithReaderRegistration(reg),
	)
	require.NoError(t, err)

	_, err = certchain.Verify(chain.Leaf, certchain.VerifyOptions{
		Roots:               chain.Roots,
		AtTime:              time.Now(),
		Role:                certchain.RoleVerifier,
		RequestedAttributes: map[string][]string{"org.iso.18013.5.1": {"age_over_18"}},
		ClientID:             "impostor.example.com",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, certchain.ErrClientIDMismatch))
}

func TestVerifyVerifierRejectsLeafWithoutReaderAuthEKU(t *testing.T) {
	chain, err := certchaintest.Generate(certchaintest.WithDNSName("rp.example.com"))
	require.NoError(t, err)

	_, err = certchain.Verify(chain.Leaf, certchain.VerifyOptions{
		Roots:  chain.Roots,
		AtTime: time.Now(),
		Role:   certchain.RoleVerifier,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, certchain.ErrRoleMismatch))
}

func TestVerifyIssuerDecodesIssuerRegistration(t *testing.T) {
	reg := certchain.IssuerRegistration{Organization: "Issuing Authority"}
	chain, err := certchaintest.Generate(certchaintest.WithIssuerRegistration(reg))
	require.NoError(t, err)

	result, err := certchain.Verify(chain.Leaf, certchain.VerifyOptions{
		Roots:  chain.Roots,
		AtTime: time.Now(),
		Role:   certchain.RoleIssuer,
	})
	require.NoError(t, err)
	assert.Equal(t, "Issuing Authority", result.IssuerRegistration.Organization)
}

func TestVerifyRejectsExpiredChain(t *testing.T) {
	reg := certchain.IssuerRegistration{Organization: "Issuing Authority"}
	chain, err := certchaintest.Generate(certchaintest.WithIssuerRegistration(reg))
	require.NoError(t, err)

	_, err = certchain.Verify(chain.Leaf, certchain.VerifyOptions{
		Roots:  chain.Roots,
		AtTime: time.Now().Add(1000 * 24 * time.Hour),
		Role:   certchain.RoleIssuer,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, certchain.ErrChainInvalid))
}

func TestAttributeTreeContainsAllowsSupersetTree(t *testing.T) {
	tree := certchain.AttributeTree{
		"ns1": {"a": {}, "b": {}},
		"ns2": {"c": {}},
	}
	missing := tree.Contains(map[string][]string{"ns1": {"a"}})
	assert.Nil(t, missing)
}

func TestAttributeTreeContainsReportsMissingNamespace(t *testing.T) {
	tree := certchain.AttributeTree{"ns1": {"a": {}}}
	missing := tree.Contains(map[string][]string{"ns2": {"x"}})
	require.NotNil(t, missing)
	assert.Equal(t, []string{"x"}, missing["ns2"])
}
