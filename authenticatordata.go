package webauthn

import (
	"bytes"
	"encoding/binary"
	"errors"

	cbor "github.com/fxamacker/cbor/v2"
)

// errTooShort indicates a message is too short to decode; wrapped into a
// MalformedInput CeremonyError by the pipeline steps that call these
// parsers directly on untrusted input.
var errTooShort = errors.New("webauthn: authenticator data too short")

// parseAuthenticatorData decodes the flat binary authenticator data
// layout: rpIdHash(32) || flags(1) || signCount(4) || attestedCredentialData? || extensions?
// https://w3c.github.io/webauthn/#sctn-authenticator-data
func parseAuthenticatorData(raw []byte) (*AuthenticatorData, error) {
	if len(raw) < 37 {
		return nil, errTooShort
	}
	ad := &AuthenticatorData{Raw: raw}
	ad.RPIDHash = append([]byte(nil), raw[:32]...)
	rest := raw[32:]

	flags := rest[0]
	ad.UserPresent = flags&1 != 0
	ad.UserVerified = (flags>>2)&1 != 0
	ad.BackupEligible = (flags>>3)&1 != 0
	ad.BackupState = (flags>>4)&1 != 0
	ad.HasAttestedCred = (flags>>6)&1 != 0
	ad.HasExtensions = (flags>>7)&1 != 0
	rest = rest[1:]

	ad.SignCount = binary.BigEndian.Uint32(rest[:4])
	rest = rest[4:]

	if ad.HasAttestedCred {
		acd, remainder, err := parseAttestedCredentialData(rest)
		if err != nil {
			return nil, err
		}
		ad.AttestedCredentialData = acd
		rest = remainder
	}

	if ad.HasExtensions {
		// Extensions are an arbitrary CBOR map; we only need to know its
		// byte extent so later fields (none, here) can be located, and
		// we keep the raw bytes available to callers that asked for
		// specific extensions.
		var ext cbor.RawMessage
		dec := cbor.NewDecoder(bytes.NewReader(rest))
		if err := dec.Decode(&ext); err != nil {
			return nil, err
		}
		ad.Extensions = []byte(ext)
	}

	return ad, nil
}

func parseAttestedCredentialData(raw []byte) (*AttestedCredentialData, []byte, error) {
	if len(raw) < 18 {
		return nil, nil, errTooShort
	}
	acd := &AttestedCredentialData{
		AAGUID: append([]byte(nil), raw[:16]...),
	}
	raw = raw[16:]
	idLen := binary.BigEndian.Uint16(raw[:2])
	raw = raw[2:]
	if int(idLen) > len(raw) {
		return nil, nil, errTooShort
	}
	acd.CredentialID = append([]byte(nil), raw[:idLen]...)
	raw = raw[idLen:]

	var key cbor.RawMessage
	dec := cbor.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(&key); err != nil {
		return nil, nil, err
	}
	acd.COSEKeyRaw = append([]byte(nil), key...)

	return acd, raw[len(key):], nil
}
