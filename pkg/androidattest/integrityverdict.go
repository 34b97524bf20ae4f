// Package androidattest verifies the two attestation paths consumed
// at wallet-registration time (§4.11): Google Play Integrity verdicts
// and Android key-attestation certificate chains.
//
// Grounded on original_source/wallet_core/android_attest/src/play_integrity
// (verdict field shape and verification ordering, in Rust) and teacher
// pkg/mdoc/iaca.go's custom-extension OID handling (CBOR there, ASN.1
// here — same "parse known extension OID, verify chain to anchor"
// shape). Neither dc4eu-vc nor the rest of the pack ships an Android
// attestation verifier, so this package is built fresh in their idiom.
package androidattest

import "time"

// AppRecognitionVerdict mirrors Play Integrity's appRecognitionVerdict.
type AppRecognitionVerdict string

const (
	AppRecognitionPlayRecognized      AppRecognitionVerdict = "PLAY_RECOGNIZED"
	AppRecognitionUnrecognizedVersion AppRecognitionVerdict = "UNRECOGNIZED_VERSION"
	AppRecognitionUnevaluated         AppRecognitionVerdict = "UNEVALUATED"
)

// DeviceRecognitionVerdict mirrors Play Integrity's
// deviceRecognitionVerdict entries; a verdict is a set of these.
type DeviceRecognitionVerdict string

const (
	DeviceRecognitionMeetsDeviceIntegrity  DeviceRecognitionVerdict = "MEETS_DEVICE_INTEGRITY"
	DeviceRecognitionMeetsBasicIntegrity   DeviceRecognitionVerdict = "MEETS_BASIC_INTEGRITY"
	DeviceRecognitionMeetsStrongIntegrity  DeviceRecognitionVerdict = "MEETS_STRONG_INTEGRITY"
	DeviceRecognitionMeetsVirtualIntegrity DeviceRecognitionVerdict = "MEETS_VIRTUAL_INTEGRITY"
)

// AppLicensingVerdict mirrors Play Integrity's appLicensingVerdict.
type AppLicensingVerdict string

const (
	AppLicensingLicensed    AppLicensingVerdict = "LICENSED"
	AppLicensingUnlicensed  AppLicensingVerdict = "UNLICENSED"
	AppLicensingUnevaluated AppLicensingVerdict = "UNEVALUATED"
)

// RequestDetails is the requestDetails object of an integrity verdict.
type RequestDetails struct {
	RequestPackageName string
	RequestHash        []byte
	Timestamp          time.Time
}

// AppIntegrityDetails is the optional appDetails object, present only
// when the app was recognized by Play.
type AppIntegrityDetails struct {
	PackageName            string
	CertificateSHA256Digest [][]byte
}

// AppIntegrity is the appIntegrity object.
type AppIntegrity struct {
	AppRecognitionVerdict AppRecognitionVerdict
	Details               *AppIntegrityDetails
}

// DeviceIntegrity is the deviceIntegrity object.
type DeviceIntegrity struct {
	DeviceRecognitionVerdict []DeviceRecognitionVerdict
}

// AccountDetails is the accountDetails object.
type AccountDetails struct {
	AppLicensingVerdict AppLicensingVerdict
}

// IntegrityVerdict is the decoded Play Integrity response token.
type IntegrityVerdict struct {
	RequestDetails  RequestDetails
	AppIntegrity    AppIntegrity
	DeviceIntegrity DeviceIntegrity
	AccountDetails  AccountDetails
}

func (v DeviceIntegrity) contains(want DeviceRecognitionVerdict) bool {
	for _, got := range v.DeviceRecognitionVerdict {
		if got == want {
			return true
		}
	}
	return false
}
