package webauthn

import (
	"errors"

	cbor "github.com/fxamacker/cbor/v2"
)

// noneVerifier implements the "none" attestation statement format: the
// authenticator makes no attestation claim at all.
// https://w3c.github.io/webauthn/#sctn-none-attestation
type noneVerifier struct{}

func (noneVerifier) Verify(rp *RelyingParty, attStmt []byte, authData AuthenticatorData, clientDataHash []byte) (*attestationResult, error) {
	if len(attStmt) == 0 {
		return &attestationResult{Type: "none"}, nil
	}
	var m map[string]interface{}
	if err := cbor.Unmarshal(attStmt, &m); err != nil {
		return nil, err
	}
	if len(m) != 0 {
		return nil, errors.New("none attestation: attStmt must be empty")
	}
	return &attestationResult{Type: "none"}, nil
}
