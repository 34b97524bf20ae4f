package openid4vci

import "net/http"

// Error is the OpenID4VCI/OAuth2 error response both the token and
// credential endpoints return on failure.
type Error struct {
	Err              string `json:"error"`
	ErrorDescription any    `json:"error_description,omitempty"`
}

func (e *Error) Error() string {
	return e.Err
}

// Credential-endpoint errors, OpenID4VCI §7.3.1.
const (
	// ErrInvalidCredentialRequest The Credential Request is missing a required parameter, includes an unsupported parameter or parameter value, repeats the same parameter, or is otherwise malformed.
	ErrInvalidCredentialRequest string = "invalid_credential_request"

	// ErrUnsupportedCredentialType Requested Credential type is not supported.
	ErrUnsupportedCredentialType = "unsupported_credential_type"

	// ErrUnsupportedCredentialFormat Requested Credential Format is not supported.
	ErrUnsupportedCredentialFormat = "unsupported_credential_format"

	// ErrInvalidProof The proof or proofs parameter in the Credential Request is invalid: (1) if both fields are missing, or (2) both are present simultaneously, or (3) one of the provided key proofs is invalid, or (4) if at least one of the key proofs does not contain a c_nonce value (refer to Section 7.2).
	ErrInvalidProof = "invalid_proof"

	// ErrInvalidNonce The proof or proofs parameter in the Credential Request uses an invalid nonce: at least one of the key proofs contains an invalid c_nonce value. The wallet should retrieve a new c_nonce value (refer to Section 7).
	ErrInvalidNonce = "invalid_nonce"

	// ErrCredentialRequestDenied The Credential Request has not been accepted by the Credential Issuer.
	ErrCredentialRequestDenied = "credential_request_denied"

	// ErrInvalidToken The Credential Request contains the wrong Access Token or the Access Token is missing, per RFC 6750 §3.1.
	ErrInvalidToken = "invalid_token"
)

// ErrInvalidRequest is returned by both the token and credential
// endpoints when the request is missing a required parameter,
// includes an invalid parameter value, or is otherwise malformed.
const ErrInvalidRequest = "invalid_request"

// Token-endpoint errors, RFC 6749 §5.2 as OpenID4VCI §6.3 narrows them
// for the pre-authorized code flow: this tree's issuer session never
// offers the authorization_code grant, so its client/scope/redirect
// error variants have no path that can produce them.
const (
	// ErrTokenInvalidRequest the Client's DPoP proof, or its
	// Transaction Code, did not match what the pre-authorized code
	// flow expects.
	ErrTokenInvalidRequest = "invalid_request"

	// ErrTokenInvalidGrant the End-User provides the wrong
	// Pre-Authorized Code or the wrong Transaction Code, or the
	// Pre-Authorized Code has expired.
	ErrTokenInvalidGrant = "invalid_grant"

	// ErrTokenServerError the authorization server encountered an
	// unexpected condition that prevented it from fulfilling the
	// request.
	ErrTokenServerError = "server_error"
)

// StatusCode returns the HTTP status code for err.
func StatusCode(err *Error) int {
	switch err.Err {
	case ErrInvalidRequest, ErrInvalidCredentialRequest, ErrUnsupportedCredentialType, ErrUnsupportedCredentialFormat, ErrInvalidProof, ErrInvalidNonce, ErrCredentialRequestDenied, ErrTokenInvalidGrant:
		return http.StatusBadRequest
	case ErrInvalidToken:
		return http.StatusUnauthorized
	case ErrTokenServerError:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}
