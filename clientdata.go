package webauthn

import (
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
)

// rawTokenBinding mirrors the wire shape of the optional tokenBinding
// member of CollectedClientData.
type rawTokenBinding struct {
	Status string `json:"status"`
	ID     string `json:"id,omitempty"`
}

type rawClientData struct {
	Type                    string                 `json:"type"`
	Challenge               string                 `json:"challenge"`
	Origin                  string                 `json:"origin"`
	HashAlgorithm           string                 `json:"hashAlgorithm"`
	TokenBinding            *rawTokenBinding       `json:"tokenBinding,omitempty"`
	ClientExtensions        map[string]interface{} `json:"clientExtensions,omitempty"`
	AuthenticatorExtensions map[string]interface{} `json:"authenticatorExtensions,omitempty"`
}

// parseClientData decodes clientDataJSON. It performs only syntactic
// validation; semantic checks (type, challenge, origin, hashAlgorithm,
// token binding, extensions) happen in the pipeline steps that call it.
func parseClientData(raw []byte) (*CollectedClientData, error) {
	var rcd rawClientData
	if err := json.Unmarshal(raw, &rcd); err != nil {
		return nil, err
	}
	cd := &CollectedClientData{
		Type:                    rcd.Type,
		Challenge:               rcd.Challenge,
		Origin:                  rcd.Origin,
		HashAlgorithm:           rcd.HashAlgorithm,
		ClientExtensions:        rcd.ClientExtensions,
		AuthenticatorExtensions: rcd.AuthenticatorExtensions,
	}
	if rcd.TokenBinding != nil {
		cd.TokenBinding = &TokenBinding{Status: rcd.TokenBinding.Status, ID: rcd.TokenBinding.ID}
	}
	return cd, nil
}

// challengeMatches reports whether the base64url challenge string in the
// client data equals the expected raw challenge bytes, in constant time.
func challengeMatches(clientDataChallenge string, expected []byte) bool {
	got, err := base64.RawURLEncoding.DecodeString(clientDataChallenge)
	if err != nil {
		return false
	}
	if len(got) != len(expected) {
		return false
	}
	return subtle.ConstantTimeCompare(got, expected) == 1
}

// tokenBindingIDMatches reports whether a caller-observed token binding ID
// (from the TLS layer) matches the one the browser reported, in constant
// time.
func tokenBindingIDMatches(reported, observed string) bool {
	if len(reported) != len(observed) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(reported), []byte(observed)) == 1
}
