package webauthn

import (
	"fmt"

	cbor "github.com/fxamacker/cbor/v2"
)

// parseAttestationObject CBOR-decodes an attestationObject and then binary-
// decodes the embedded authenticator data.
// https://w3c.github.io/webauthn/#sctn-attestation
func parseAttestationObject(raw []byte) (*AttestationObject, error) {
	var ao AttestationObject
	if err := cbor.Unmarshal(raw, &ao); err != nil {
		return nil, fmt.Errorf("webauthn: cbor.Unmarshal attestationObject: %w", err)
	}
	ad, err := parseAuthenticatorData(ao.RawAuthData)
	if err != nil {
		return nil, fmt.Errorf("webauthn: authData: %w", err)
	}
	ao.AuthData = *ad
	return &ao, nil
}

// marshalAttestationObject re-encodes an AttestationObject, used by the
// round-trip test.
func marshalAttestationObject(ao *AttestationObject) ([]byte, error) {
	return cbor.Marshal(ao)
}
