package webauthn

import (
	"crypto/subtle"
	"encoding/base64"
	"errors"
)

// encodeB64/decodeB64 implement the unpadded base64url encoding used at
// the wire boundary for id/rawId/userHandle-shaped strings.
func encodeB64(b []byte) string { return base64.RawURLEncoding.EncodeToString(b) }

func decodeB64(s string) ([]byte, error) { return base64.RawURLEncoding.DecodeString(s) }

var errAttestedCredentialDataMissing = errors.New("webauthn: attestedCredentialData absent from authenticator data")

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}

func originAllowed(allowed []string, origin string) bool {
	for _, o := range allowed {
		if o == origin {
			return true
		}
	}
	return false
}

// verifyTokenBinding implements the token binding policy shared by
// registration and assertion: if the caller observed a token binding id,
// it must equal the one the browser reported; if the browser reported
// one but the caller didn't observe any, that's also a mismatch; if
// neither side reports one, pass only when allowMissing is true.
func verifyTokenBinding(reported *TokenBinding, observed string, allowMissing bool) error {
	reportedID := ""
	reportedPresent := reported != nil && reported.Status == "present"
	if reportedPresent {
		reportedID = reported.ID
	}
	switch {
	case reportedPresent && observed != "":
		if !tokenBindingIDMatches(reportedID, observed) {
			return errors.New("token binding id mismatch")
		}
		return nil
	case reportedPresent && observed == "":
		return errors.New("token binding reported by client but not observed by caller")
	case !reportedPresent && observed != "":
		return errors.New("token binding observed by caller but not reported by client")
	default: // neither side reports a token binding id
		if !allowMissing {
			return errors.New("token binding required but absent")
		}
		return nil
	}
}
