package webauthn

import (
	"bytes"
	"context"
	"encoding/binary"
	"testing"

	cbor "github.com/fxamacker/cbor/v2"
)

// rawAuthDataWithKey builds a minimal authenticator-data byte buffer with
// the AT flag set and the given raw COSE_Key bytes embedded, so tests can
// exercise authData/COSE-key decoding without a full FakeAuthenticator
// ceremony.
func rawAuthDataWithKey(t *testing.T, rpIDHash []byte, backupEligible, backupState bool, coseKey []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	buf.Write(rpIDHash)
	var flags uint8 = 1 | 1<<6 // UP, AT
	if backupEligible {
		flags |= 1 << 3
	}
	if backupState {
		flags |= 1 << 4
	}
	buf.WriteByte(flags)
	binary.Write(&buf, binary.BigEndian, uint32(0))
	var aaguid [16]byte
	buf.Write(aaguid[:])
	credID := []byte("cred-id")
	binary.Write(&buf, binary.BigEndian, uint16(len(credID)))
	buf.Write(credID)
	buf.Write(coseKey)
	return buf.Bytes()
}

func TestRegistrationMalformedCOSEKeyFails(t *testing.T) {
	repo := newStubRepository()
	rp := newTestRP(t, repo, "https://example.com")

	rpIDHash := rp.cfg.Crypto.Hash([]byte(rp.cfg.RP.ID))
	badKey, err := cbor.Marshal(struct {
		Kty int64 `cbor:"1,keyasint"`
	}{Kty: 99}) // unsupported kty: not EC2 or RSA
	if err != nil {
		t.Fatal(err)
	}
	authData := rawAuthDataWithKey(t, rpIDHash[:], true, false, badKey)
	ao := AttestationObject{Format: "none", RawAuthData: authData}
	attObjBytes, err := cbor.Marshal(ao)
	if err != nil {
		t.Fatal(err)
	}

	opts, _ := rp.StartRegistration(context.Background(), UserIdentity{ID: []byte("u")})
	cdJSON := []byte(`{"type":"webauthn.create","challenge":"` + encodeB64(opts.Challenge) + `","origin":"https://example.com","hashAlgorithm":"SHA-256"}`)
	cred := &PublicKeyCredentialAttestation{ID: []byte("cred-id"), RawClientDataJSON: cdJSON, RawAttestationObject: attObjBytes}

	_, err = rp.FinishRegistration(context.Background(), opts, cred, "")
	ce, ok := err.(*CeremonyError)
	if !ok || ce.Kind != MalformedInput {
		t.Fatalf("got %v, want MalformedInput", err)
	}
}

func TestRegistrationUnsupportedHashAlgorithmRejected(t *testing.T) {
	repo := newStubRepository()
	origin := "https://example.com"
	rp := newTestRP(t, repo, origin)
	auth := NewFakeAuthenticator(origin)

	for _, alg := range []string{"MD5", "SHA1", "SHA-384", ""} {
		opts, _ := rp.StartRegistration(context.Background(), UserIdentity{ID: []byte("u")})
		_, attObj, credID, err := auth.Create(opts)
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		cdJSON := []byte(`{"type":"webauthn.create","challenge":"` + encodeB64(opts.Challenge) + `","origin":"` + origin + `","hashAlgorithm":"` + alg + `"}`)
		cred := &PublicKeyCredentialAttestation{ID: credID, RawClientDataJSON: cdJSON, RawAttestationObject: attObj}

		_, err = rp.FinishRegistration(context.Background(), opts, cred, "")
		ce, ok := err.(*CeremonyError)
		if !ok || ce.Kind != UnsupportedHashAlgorithm {
			t.Fatalf("hashAlgorithm=%q: got %v, want UnsupportedHashAlgorithm", alg, err)
		}
	}
}

func TestAssertionUnsupportedHashAlgorithmRejected(t *testing.T) {
	repo := newStubRepository()
	origin := "https://example.com"
	rp := newTestRP(t, repo, origin)
	auth := NewFakeAuthenticator(origin)

	opts, _ := rp.StartRegistration(context.Background(), UserIdentity{ID: []byte("u")})
	_, _, credID, err := auth.Create(opts)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	key, _ := auth.COSEKeyFor(credID)
	repo.put(credID, key, 0, nil)

	reqOpts, _ := rp.StartAssertion(context.Background(), nil)
	id, _, authData, sig, err := auth.GetWithClientExtensions(reqOpts, credID, nil)
	if err != nil {
		t.Fatalf("GetWithClientExtensions: %v", err)
	}
	cdJSON := []byte(`{"type":"webauthn.get","challenge":"` + encodeB64(reqOpts.Challenge) + `","origin":"` + origin + `","hashAlgorithm":"MD5"}`)
	assertion := &PublicKeyCredentialAssertion{ID: id, RawClientDataJSON: cdJSON, RawAuthenticatorData: authData, Signature: sig}

	_, err = rp.FinishAssertion(context.Background(), reqOpts, assertion, "")
	ce, ok := err.(*CeremonyError)
	if !ok || ce.Kind != UnsupportedHashAlgorithm {
		t.Fatalf("got %v, want UnsupportedHashAlgorithm", err)
	}
}

func TestRegistrationBackupStateInconsistentWarning(t *testing.T) {
	repo := newStubRepository()
	rp := newTestRP(t, repo, "https://example.com")

	rpIDHash := rp.cfg.Crypto.Hash([]byte(rp.cfg.RP.ID))
	auth := NewFakeAuthenticator("https://example.com")
	opts, _ := rp.StartRegistration(context.Background(), UserIdentity{ID: []byte("u")})
	_, attObj, _, err := auth.Create(opts)
	if err != nil {
		t.Fatal(err)
	}
	ao, err := parseAttestationObject(attObj)
	if err != nil {
		t.Fatal(err)
	}
	coseKey := ao.AuthData.AttestedCredentialData.COSEKeyRaw

	// backupEligible=false, backupState=true: a single-device credential
	// claiming to be backed up. Should warn, not fail.
	authData := rawAuthDataWithKey(t, rpIDHash[:], false, true, coseKey)
	ao2 := AttestationObject{Format: "none", RawAuthData: authData}
	attObjBytes, err := cbor.Marshal(ao2)
	if err != nil {
		t.Fatal(err)
	}
	cdJSON := []byte(`{"type":"webauthn.create","challenge":"` + encodeB64(opts.Challenge) + `","origin":"https://example.com","hashAlgorithm":"SHA-256"}`)
	cred := &PublicKeyCredentialAttestation{ID: []byte("cred-id"), RawClientDataJSON: cdJSON, RawAttestationObject: attObjBytes}

	result, err := rp.FinishRegistration(context.Background(), opts, cred, "")
	if err != nil {
		t.Fatalf("FinishRegistration: %v", err)
	}
	found := false
	for _, w := range result.Warnings {
		if w == BackupStateInconsistent {
			found = true
		}
	}
	if !found {
		t.Errorf("expected BackupStateInconsistent in Warnings, got %v", result.Warnings)
	}
}
