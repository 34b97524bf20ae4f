package openid4vci

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenRequestRequiresDPoP(t *testing.T) {
	assert.Error(t, CheckSimple(TokenRequest{PreAuthorizedCode: "abc"}))
	assert.NoError(t, CheckSimple(TokenRequest{DPOP: "header.payload.signature", PreAuthorizedCode: "abc"}))
}

func TestTokenResponseRequiresAccessTokenAndType(t *testing.T) {
	assert.Error(t, CheckSimple(TokenResponse{}))
	assert.Error(t, CheckSimple(TokenResponse{AccessToken: "tok"}))
	assert.NoError(t, CheckSimple(TokenResponse{AccessToken: "tok", TokenType: "DPoP", ExpiresIn: 300}))
}
