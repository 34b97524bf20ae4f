package openid4vci

// TokenRequest https://openid.net/specs/openid-4-verifiable-credential-issuance-1_0-13.html#name-token-request
//
// Only the pre-authorized code flow's fields are modeled: this tree's
// issuer session (pkg/issuance/issuer) only ever offers pre-authorized
// code grants, never the authorization_code flow's redirect dance.
type TokenRequest struct {
	DPOP string `header:"DPoP" validate:"required"`

	// PreAuthorizedCode is the code representing the authorization to
	// obtain Credentials, copied from the credential offer the holder
	// scanned or followed. The issuer session recovers itself from
	// this value via a suffix match against its own access tokens
	// rather than a direct lookup; see SessionForToken.
	PreAuthorizedCode string `json:"pre-authorized_code,omitempty"`

	// TXCode OPTIONAL. The transaction code (wallet PIN/OTP) the
	// credential offer's tx_code object required the holder to enter.
	TXCode string `json:"tx_code,omitempty"`
}

// TokenResponse https://openid.net/specs/openid-4-verifiable-credential-issuance-1_0-13.html#name-successful-token-response
type TokenResponse struct {
	// AccessToken REQUIRED. The access token issued by the authorization server.
	AccessToken string `json:"access_token" validate:"required"`

	// TokenType REQUIRED. The type of the token issued as described in Section 7.1. This tree always issues "DPoP" tokens.
	TokenType string `json:"token_type" validate:"required"`

	// ExpiresIn RECOMMENDED. The lifetime in seconds of the access token.
	ExpiresIn int `json:"expires_in" validate:"required"`

	// CNonce OPTIONAL. String containing a nonce to be used when creating a proof of possession of the key proof (see Section 7.2). When received, the Wallet MUST use this nonce value for its subsequent requests until the Credential Issuer provides a fresh nonce.
	CNonce string `json:"c_nonce,omitempty"`

	// CNonceExpiresIn OPTIONAL. Number denoting the lifetime in seconds of the c_nonce.
	CNonceExpiresIn int `json:"c_nonce_expires_in,omitempty"`

	// AuthorizationDetails REQUIRED when authorization_details parameter is used to request issuance of a certain Credential type, per RFC 9396 §7 extended by Section 5.1.1.
	AuthorizationDetails []AuthorizationDetailsParameter `json:"authorization_details,omitempty"`
}

// AuthorizationDetailsParameter is one element of the authorization_details
// array, RFC 9396 §2 extended per OpenID4VCI §5.1.1 with the
// openid_credential-specific parameters.
type AuthorizationDetailsParameter struct {
	// Type REQUIRED. MUST be "openid_credential".
	Type string `json:"type" validate:"required"`

	// CredentialConfigurationID REQUIRED. String identifying a
	// credential_configurations_supported entry.
	CredentialConfigurationID string `json:"credential_configuration_id,omitempty"`

	// Format is an alternative to CredentialConfigurationID, present
	// when the issuer addresses the credential type by format.
	Format string `json:"format,omitempty"`

	// VCT identifies the SD-JWT VC type when Format is "vc+sd-jwt".
	VCT string `json:"vct,omitempty"`

	// Claims OPTIONAL. Restricts disclosure to a subset of claims.
	Claims map[string]any `json:"claims,omitempty"`
}
