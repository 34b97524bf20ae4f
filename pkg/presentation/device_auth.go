// Package presentation implements the OpenID4VP/ISO-18013-7
// presentation session of §4.9: the verifier and holder state
// machines (pkg/presentation/verifier, pkg/presentation/holder), the
// device-signed challenge over the session transcript, and the
// JWE-encrypted DeviceResponse.
//
// Grounded on the teacher's pkg/mdoc/device_auth.go
// (DeviceAuthentication, DeviceAuthBuilder/DeviceAuthVerifier,
// COSE_Sign1 wire shape), generalized here onto the already-generic
// pkg/credential/cbor and pkg/credential/cose packages (C1, C3)
// instead of the mDL-specific pkg/mdoc: this package only ever needed
// the COSE_Sign1 envelope and canonical CBOR encoding, not mdoc's
// MDoc/MobileSecurityObject/Document data model.
// DeviceAuthBuilder.WithDeviceKey requires a crypto.Signer, but the
// WSCD of C10 exposes only an opaque Sign(identifier, message)
// primitive that hashes internally and returns a raw R||S signature -
// exactly what cose.Sign's own signPayload produces for ES256 after
// its ASN.1-to-raw conversion. So rather than wrap WSCD in a
// crypto.Signer adapter, signDeviceAuthentication below reimplements
// cose.SignDetached's Sig_structure construction directly over
// wscd.WSCD.Sign, producing a byte-identical COSE_Sign1 that
// cose.Verify can still verify unchanged.
package presentation

import (
	"context"
	"fmt"

	"github.com/MinBZK/nl-wallet-sub004/pkg/credential/cbor"
	"github.com/MinBZK/nl-wallet-sub004/pkg/credential/cose"
	"github.com/MinBZK/nl-wallet-sub004/pkg/wscd"
	cborcodec "github.com/fxamacker/cbor/v2"
)

// BuildSessionTranscript CBOR-encodes the ISO 18013-7 session
// transcript: the engagement/handover data and the reader/device
// ephemeral public keys are caller-supplied to keep this package
// engagement-method agnostic (QR vs NFC vs same-device redirect all
// assemble the handover element differently, per §4.9 and ISO 18013-7
// Annex B).
func BuildSessionTranscript(handover any, readerEngagement, deviceEngagement []byte) ([]byte, error) {
	transcript := []any{deviceEngagement, readerEngagement, handover}
	encoded, err := cborcodec.Marshal(transcript)
	if err != nil {
		return nil, fmt.Errorf("presentation: encode session transcript: %w", err)
	}
	return encoded, nil
}

// buildDeviceAuthBytes reconstructs the DeviceAuthentication bytes of
// ISO 18013-5 §9.1.3 that both signing and verification sign/check:
// ["DeviceAuthentication", sessionTranscript, docType,
// deviceNameSpacesBytes]. deviceNameSpaces is almost always empty for
// device-signed (as opposed to issuer-signed) presentation, per §4.9's
// "device_signed_challenge" wording.
func buildDeviceAuthBytes(encoder *cbor.Encoder, sessionTranscript []byte, docType string, deviceNameSpacesBytes []byte) ([]byte, error) {
	deviceAuth := []any{"DeviceAuthentication", sessionTranscript, docType, deviceNameSpacesBytes}
	return encoder.Marshal(deviceAuth)
}

// signDeviceAuthentication builds and signs, via the WSCD key bound to
// identifier, the DeviceAuthentication structure for one selected
// document.
func signDeviceAuthentication(ctx context.Context, w wscd.WSCD, identifier, docType string, sessionTranscript []byte, deviceNameSpacesBytes []byte) (*cose.Sign1, error) {
	encoder, err := cbor.New()
	if err != nil {
		return nil, fmt.Errorf("presentation: create cbor encoder: %w", err)
	}

	deviceAuthBytes, err := buildDeviceAuthBytes(encoder, sessionTranscript, docType, deviceNameSpacesBytes)
	if err != nil {
		return nil, fmt.Errorf("presentation: encode device authentication: %w", err)
	}

	protected := map[int64]any{cose.HeaderAlgorithm: cose.AlgorithmES256}
	protectedBytes, err := cborcodec.Marshal(protected)
	if err != nil {
		return nil, fmt.Errorf("presentation: encode protected headers: %w", err)
	}

	sigStructure := []any{"Signature1", protectedBytes, []byte{}, deviceAuthBytes}
	toBeSigned, err := cborcodec.Marshal(sigStructure)
	if err != nil {
		return nil, fmt.Errorf("presentation: encode sig structure: %w", err)
	}

	signature, err := w.Sign(ctx, identifier, toBeSigned)
	if err != nil {
		return nil, fmt.Errorf("presentation: sign device authentication: %w", err)
	}

	return &cose.Sign1{
		Protected:   protectedBytes,
		Unprotected: map[any]any{},
		Payload:     nil,
		Signature:   signature,
	}, nil
}

// DeviceSignedDocument is one selected document's device-signed
// challenge response, ready to fold into a DeviceResponse.
type DeviceSignedDocument struct {
	DocType    string
	NameSpaces []byte // CBOR-encoded device-signed namespaces (empty map unless device-signed attributes were requested)
	Signature  *cose.Sign1
}

// SignSelectedDocuments signs the device authentication challenge for
// every selected document, one WSCD key per document as identified by
// keyIdentifiers (parallel to docTypes).
func SignSelectedDocuments(ctx context.Context, w wscd.WSCD, keyIdentifiers, docTypes []string, sessionTranscript []byte) ([]DeviceSignedDocument, error) {
	if len(keyIdentifiers) != len(docTypes) {
		return nil, fmt.Errorf("presentation: key identifier count does not match document count")
	}

	encoder, err := cbor.New()
	if err != nil {
		return nil, fmt.Errorf("presentation: create cbor encoder: %w", err)
	}
	emptyNameSpaces, err := encoder.Marshal(map[string]map[string]any{})
	if err != nil {
		return nil, fmt.Errorf("presentation: encode empty namespaces: %w", err)
	}

	docs := make([]DeviceSignedDocument, 0, len(docTypes))
	for i, docType := range docTypes {
		sign1, err := signDeviceAuthentication(ctx, w, keyIdentifiers[i], docType, sessionTranscript, emptyNameSpaces)
		if err != nil {
			return nil, fmt.Errorf("presentation: sign document %q: %w", docType, err)
		}
		docs = append(docs, DeviceSignedDocument{DocType: docType, NameSpaces: emptyNameSpaces, Signature: sign1})
	}
	return docs, nil
}

// VerifyDeviceSignedDocument verifies doc's device signature was
// produced over sessionTranscript by holderKey.
func VerifyDeviceSignedDocument(doc DeviceSignedDocument, sessionTranscript []byte, holderKey any) error {
	encoder, err := cbor.New()
	if err != nil {
		return fmt.Errorf("presentation: create cbor encoder: %w", err)
	}

	deviceAuthBytes, err := buildDeviceAuthBytes(encoder, sessionTranscript, doc.DocType, doc.NameSpaces)
	if err != nil {
		return fmt.Errorf("presentation: build device auth bytes: %w", err)
	}

	if err := cose.Verify(doc.Signature, deviceAuthBytes, holderKey, []byte{}); err != nil {
		return fmt.Errorf("presentation: device signature verification failed: %w", err)
	}
	return nil
}
