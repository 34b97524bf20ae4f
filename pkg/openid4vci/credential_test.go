package openid4vci

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCredentialRequestRoundTripsThroughJSON(t *testing.T) {
	req := &CredentialRequest{
		Format: "vc+sd-jwt",
		Proof:  &Proof{ProofType: "jwt", JWT: "header.payload.signature"},
	}

	b, err := json.Marshal(req)
	assert.NoError(t, err)

	got := &CredentialRequest{}
	assert.NoError(t, json.Unmarshal(b, got))
	assert.Equal(t, req, got)
}

func TestCredentialResponseRequiresCredentialsOrTransactionID(t *testing.T) {
	withCredentials := CredentialResponse{Credentials: []Credential{{Credential: "abc"}}}
	withTransaction := CredentialResponse{TransactionID: "tx-1"}

	assert.NoError(t, CheckSimple(withCredentials))
	assert.NoError(t, CheckSimple(withTransaction))
	assert.Error(t, CheckSimple(CredentialResponse{}))
}
