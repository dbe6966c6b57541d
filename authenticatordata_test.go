package webauthn

import (
	"bytes"
	"testing"
)

func TestParseAuthenticatorDataTooShort(t *testing.T) {
	if _, err := parseAuthenticatorData(make([]byte, 10)); err != errTooShort {
		t.Fatalf("got %v, want errTooShort", err)
	}
}

func TestParseAuthenticatorDataFlags(t *testing.T) {
	auth := NewFakeAuthenticator("https://example.com")
	opts := &CreationOptions{RP: RelyingPartyIdentity{ID: "localhost"}, User: UserIdentity{ID: []byte("u")}, Challenge: make([]byte, 32), PubKeyCredParams: []CredentialParameter{{Type: "public-key", Alg: AlgES256}}}
	_, attObj, _, err := auth.Create(opts)
	if err != nil {
		t.Fatal(err)
	}
	ao, err := parseAttestationObject(attObj)
	if err != nil {
		t.Fatal(err)
	}
	if !ao.AuthData.UserPresent || !ao.AuthData.UserVerified {
		t.Errorf("expected UP and UV set, got up=%v uv=%v", ao.AuthData.UserPresent, ao.AuthData.UserVerified)
	}
	if !ao.AuthData.HasAttestedCred {
		t.Error("expected AT flag set")
	}
	if ao.AuthData.AttestedCredentialData == nil {
		t.Fatal("expected attested credential data")
	}
	if len(ao.AuthData.AttestedCredentialData.AAGUID) != 16 {
		t.Error("expected a 16-byte AAGUID, even if all zero")
	}
}

func TestAttestationObjectRoundTrip(t *testing.T) {
	auth := NewFakeAuthenticator("https://example.com")
	opts := &CreationOptions{RP: RelyingPartyIdentity{ID: "localhost"}, User: UserIdentity{ID: []byte("u")}, Challenge: make([]byte, 32), PubKeyCredParams: []CredentialParameter{{Type: "public-key", Alg: AlgES256}}}
	_, attObj, _, err := auth.Create(opts)
	if err != nil {
		t.Fatal(err)
	}
	ao, err := parseAttestationObject(attObj)
	if err != nil {
		t.Fatal(err)
	}
	reencoded, err := marshalAttestationObject(ao)
	if err != nil {
		t.Fatal(err)
	}
	ao2, err := parseAttestationObject(reencoded)
	if err != nil {
		t.Fatal(err)
	}
	if ao2.Format != ao.Format || !bytes.Equal(ao2.RawAuthData, ao.RawAuthData) {
		t.Errorf("round trip mismatch: %+v vs %+v", ao, ao2)
	}
}
