package webauthn

import (
	"context"
	"errors"
	"testing"

	"github.com/go-test/deep"
)

var errUnknownCredential = errors.New("stubRepository: unknown credential")

// stubRepository is a minimal in-memory CredentialRepository for tests.
type stubRepository struct {
	creds map[string]*stubCred
}

type stubCred struct {
	key        *COSEKey
	signCount  uint32
	userHandle []byte
}

func newStubRepository() *stubRepository {
	return &stubRepository{creds: make(map[string]*stubCred)}
}

func (r *stubRepository) put(id []byte, key *COSEKey, signCount uint32, userHandle []byte) {
	r.creds[string(id)] = &stubCred{key: key, signCount: signCount, userHandle: userHandle}
}

func (r *stubRepository) Lookup(ctx context.Context, credentialID, userHandle []byte) (*COSEKey, uint32, []byte, bool, error) {
	c, ok := r.creds[string(credentialID)]
	if !ok {
		return nil, 0, nil, false, nil
	}
	if len(userHandle) != 0 && !bytesEqual(userHandle, c.userHandle) {
		return nil, 0, nil, false, nil
	}
	return c.key, c.signCount, c.userHandle, true, nil
}

func (r *stubRepository) Exists(ctx context.Context, credentialID []byte) (bool, error) {
	_, ok := r.creds[string(credentialID)]
	return ok, nil
}

func (r *stubRepository) UpdateSignCount(ctx context.Context, credentialID []byte, signCount uint32) error {
	c, ok := r.creds[string(credentialID)]
	if !ok {
		return errUnknownCredential
	}
	c.signCount = signCount
	return nil
}

func newTestRP(t *testing.T, repo CredentialRepository, origin string) *RelyingParty {
	t.Helper()
	rp, err := New(Config{
		RP:                        RelyingPartyIdentity{ID: "localhost", Name: "Test RP"},
		Origins:                   []string{origin},
		CredentialRepository:      repo,
		AllowUntrustedAttestation: true,
		AllowMissingTokenBinding:  true,
		ValidateTypeAttribute:     true,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return rp
}

func TestRegistrationHappyPath(t *testing.T) {
	repo := newStubRepository()
	origin := "https://example.com"
	rp := newTestRP(t, repo, origin)
	auth := NewFakeAuthenticator(origin)

	opts, err := rp.StartRegistration(context.Background(), UserIdentity{ID: []byte("user1"), Name: "alice"})
	if err != nil {
		t.Fatalf("StartRegistration: %v", err)
	}
	clientDataJSON, attObj, credID, err := auth.Create(opts)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	cred := &PublicKeyCredentialAttestation{
		ID:                   credID,
		RawClientDataJSON:    clientDataJSON,
		RawAttestationObject: attObj,
	}
	result, err := rp.FinishRegistration(context.Background(), opts, cred, "")
	if err != nil {
		t.Fatalf("FinishRegistration: %v", err)
	}
	if result.AttestationType != "none" {
		t.Errorf("AttestationType = %q, want none", result.AttestationType)
	}
	if deep.Equal(result.CredentialID, credID) != nil {
		t.Errorf("CredentialID mismatch: %v", deep.Equal(result.CredentialID, credID))
	}
	repo.put(credID, result.COSEKey, result.SignCount, []byte("user1"))

	// Assertion happy path against the credential just registered.
	reqOpts, err := rp.StartAssertion(context.Background(), nil)
	if err != nil {
		t.Fatalf("StartAssertion: %v", err)
	}
	id, cdJSON, authData, sig, userHandle, err := auth.Get(reqOpts, credID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	assertion := &PublicKeyCredentialAssertion{
		ID:                   id,
		RawClientDataJSON:    cdJSON,
		RawAuthenticatorData: authData,
		Signature:            sig,
		UserHandle:           userHandle,
	}
	ares, err := rp.FinishAssertion(context.Background(), reqOpts, assertion, "")
	if err != nil {
		t.Fatalf("FinishAssertion: %v", err)
	}
	if ares.SignCount != 1 {
		t.Errorf("SignCount = %d, want 1", ares.SignCount)
	}
}

func TestAssertionWrongOrigin(t *testing.T) {
	repo := newStubRepository()
	rp := newTestRP(t, repo, "https://example.com")
	auth := NewFakeAuthenticator("https://evil.example")

	opts, _ := rp.StartRegistration(context.Background(), UserIdentity{ID: []byte("u")})
	_, attObj, credID, err := auth.Create(opts)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	_ = attObj

	reqOpts, _ := rp.StartAssertion(context.Background(), nil)
	id, cdJSON, authData, sig, userHandle, err := auth.Get(reqOpts, credID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	assertion := &PublicKeyCredentialAssertion{ID: id, RawClientDataJSON: cdJSON, RawAuthenticatorData: authData, Signature: sig, UserHandle: userHandle}

	// Credential lookup happens before the origin check in the pipeline,
	// so it must already be registered in repo to reach the origin check.
	key, _ := auth.COSEKeyFor(credID)
	repo.put(credID, key, 0, nil)

	_, err = rp.FinishAssertion(context.Background(), reqOpts, assertion, "")
	ce, ok := err.(*CeremonyError)
	if !ok {
		t.Fatalf("expected *CeremonyError, got %T (%v)", err, err)
	}
	if ce.Kind != OriginMismatch {
		t.Errorf("Kind = %v, want OriginMismatch", ce.Kind)
	}
}

func TestAssertionWrongChallenge(t *testing.T) {
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
	id, cdJSON, authData, sig, userHandle, err := auth.Get(reqOpts, credID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	// Corrupt the stored challenge after the authenticator already signed
	// against the original one.
	reqOpts.Challenge = make([]byte, 16)

	assertion := &PublicKeyCredentialAssertion{ID: id, RawClientDataJSON: cdJSON, RawAuthenticatorData: authData, Signature: sig, UserHandle: userHandle}
	_, err = rp.FinishAssertion(context.Background(), reqOpts, assertion, "")
	ce, ok := err.(*CeremonyError)
	if !ok || ce.Kind != ChallengeMismatch {
		t.Fatalf("got %v, want ChallengeMismatch", err)
	}
}

func TestAssertionMutatedClientData(t *testing.T) {
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
	id, cdJSON, authData, sig, userHandle, err := auth.Get(reqOpts, credID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	mutated := append(cdJSON[:len(cdJSON)-1], []byte(`,"foo":"bar"}`)...)

	assertion := &PublicKeyCredentialAssertion{ID: id, RawClientDataJSON: mutated, RawAuthenticatorData: authData, Signature: sig, UserHandle: userHandle}
	_, err = rp.FinishAssertion(context.Background(), reqOpts, assertion, "")
	ce, ok := err.(*CeremonyError)
	if !ok || ce.Kind != SignatureInvalid {
		t.Fatalf("got %v, want SignatureInvalid", err)
	}
}

func TestAssertionTokenBinding(t *testing.T) {
	repo := newStubRepository()
	origin := "https://example.com"
	rp := newTestRP(t, repo, origin)
	rp.cfg.AllowMissingTokenBinding = false
	auth := NewFakeAuthenticator(origin)

	opts, _ := rp.StartRegistration(context.Background(), UserIdentity{ID: []byte("u")})
	_, _, credID, err := auth.Create(opts)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	key, _ := auth.COSEKeyFor(credID)
	repo.put(credID, key, 0, nil)

	reqOpts, _ := rp.StartAssertion(context.Background(), nil)
	id, cdJSON, authData, sig, userHandle, err := auth.Get(reqOpts, credID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	assertion := &PublicKeyCredentialAssertion{ID: id, RawClientDataJSON: cdJSON, RawAuthenticatorData: authData, Signature: sig, UserHandle: userHandle}

	// Neither side reports a token binding id and AllowMissingTokenBinding
	// is false: must fail.
	_, err = rp.FinishAssertion(context.Background(), reqOpts, assertion, "")
	ce, ok := err.(*CeremonyError)
	if !ok || ce.Kind != TokenBindingMismatch {
		t.Fatalf("got %v, want TokenBindingMismatch", err)
	}
}

func TestAssertionSignatureCounterPolicy(t *testing.T) {
	repo := newStubRepository()
	origin := "https://example.com"
	rp := newTestRP(t, repo, origin)
	rp.cfg.ValidateSignatureCounter = true
	auth := NewFakeAuthenticator(origin)

	opts, _ := rp.StartRegistration(context.Background(), UserIdentity{ID: []byte("u")})
	_, _, credID, err := auth.Create(opts)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	key, _ := auth.COSEKeyFor(credID)
	repo.put(credID, key, 100, nil) // stored counter starts ahead of the authenticator's.
	auth.SetSignCount(credID, 98)   // next Get() increments to 99 < 100.

	reqOpts, _ := rp.StartAssertion(context.Background(), nil)
	id, cdJSON, authData, sig, userHandle, err := auth.Get(reqOpts, credID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	assertion := &PublicKeyCredentialAssertion{ID: id, RawClientDataJSON: cdJSON, RawAuthenticatorData: authData, Signature: sig, UserHandle: userHandle}
	_, err = rp.FinishAssertion(context.Background(), reqOpts, assertion, "")
	ce, ok := err.(*CeremonyError)
	if !ok || ce.Kind != CloneWarning {
		t.Fatalf("got %v, want CloneWarning", err)
	}

	// Same scenario with ValidateSignatureCounter disabled: succeeds with
	// a recorded warning instead of failing.
	rp.cfg.ValidateSignatureCounter = false
	repo.put(credID, key, 100, nil)
	auth.SetSignCount(credID, 98)
	reqOpts2, _ := rp.StartAssertion(context.Background(), nil)
	id2, cdJSON2, authData2, sig2, userHandle2, err := auth.Get(reqOpts2, credID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	assertion2 := &PublicKeyCredentialAssertion{ID: id2, RawClientDataJSON: cdJSON2, RawAuthenticatorData: authData2, Signature: sig2, UserHandle: userHandle2}
	res, err := rp.FinishAssertion(context.Background(), reqOpts2, assertion2, "")
	if err != nil {
		t.Fatalf("FinishAssertion: %v", err)
	}
	found := false
	for _, w := range res.Warnings {
		if w == CloneWarning {
			found = true
		}
	}
	if !found {
		t.Errorf("expected CloneWarning in Warnings, got %v", res.Warnings)
	}
}

func TestExtensionNotRequested(t *testing.T) {
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
	id, cdJSON, authData, sig, err := auth.GetWithClientExtensions(reqOpts, credID, map[string]interface{}{"foo": "boo"})
	if err != nil {
		t.Fatalf("GetWithClientExtensions: %v", err)
	}
	assertion := &PublicKeyCredentialAssertion{ID: id, RawClientDataJSON: cdJSON, RawAuthenticatorData: authData, Signature: sig}
	_, err = rp.FinishAssertion(context.Background(), reqOpts, assertion, "")
	ce, ok := err.(*CeremonyError)
	if !ok || ce.Kind != ExtensionNotRequested {
		t.Fatalf("got %v, want ExtensionNotRequested", err)
	}

	// Requesting the extension up front makes the same response succeed.
	reqOpts2, _ := rp.StartAssertion(context.Background(), nil)
	reqOpts2.Extensions = map[string]interface{}{"foo": true}
	id2, cdJSON2, authData2, sig2, err := auth.GetWithClientExtensions(reqOpts2, credID, map[string]interface{}{"foo": "boo"})
	if err != nil {
		t.Fatalf("GetWithClientExtensions: %v", err)
	}
	assertion2 := &PublicKeyCredentialAssertion{ID: id2, RawClientDataJSON: cdJSON2, RawAuthenticatorData: authData2, Signature: sig2}
	if _, err := rp.FinishAssertion(context.Background(), reqOpts2, assertion2, ""); err != nil {
		t.Fatalf("FinishAssertion with requested extension: %v", err)
	}
}

func TestRegistrationFIDOU2FAndPacked(t *testing.T) {
	repo := newStubRepository()
	origin := "https://example.com"
	rp := newTestRP(t, repo, origin)
	auth := NewFakeAuthenticator(origin)

	opts, _ := rp.StartRegistration(context.Background(), UserIdentity{ID: []byte("u1")})
	cdJSON, attObj, credID, err := auth.CreateFIDOU2F(opts)
	if err != nil {
		t.Fatalf("CreateFIDOU2F: %v", err)
	}
	cred := &PublicKeyCredentialAttestation{ID: credID, RawClientDataJSON: cdJSON, RawAttestationObject: attObj}
	result, err := rp.FinishRegistration(context.Background(), opts, cred, "")
	if err != nil {
		t.Fatalf("FinishRegistration (fido-u2f): %v", err)
	}
	if result.AttestationType != "basic" {
		t.Errorf("AttestationType = %q, want basic", result.AttestationType)
	}

	opts2, _ := rp.StartRegistration(context.Background(), UserIdentity{ID: []byte("u2")})
	cdJSON2, attObj2, credID2, err := auth.CreatePackedSelf(opts2)
	if err != nil {
		t.Fatalf("CreatePackedSelf: %v", err)
	}
	cred2 := &PublicKeyCredentialAttestation{ID: credID2, RawClientDataJSON: cdJSON2, RawAttestationObject: attObj2}
	result2, err := rp.FinishRegistration(context.Background(), opts2, cred2, "")
	if err != nil {
		t.Fatalf("FinishRegistration (packed self): %v", err)
	}
	if result2.AttestationType != "self" {
		t.Errorf("AttestationType = %q, want self", result2.AttestationType)
	}
}

func TestDuplicateCredentialID(t *testing.T) {
	repo := newStubRepository()
	origin := "https://example.com"
	rp := newTestRP(t, repo, origin)
	auth := NewFakeAuthenticator(origin)

	opts, _ := rp.StartRegistration(context.Background(), UserIdentity{ID: []byte("u")})
	cdJSON, attObj, credID, err := auth.Create(opts)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	repo.put(credID, nil, 0, nil) // pretend it's already registered

	cred := &PublicKeyCredentialAttestation{ID: credID, RawClientDataJSON: cdJSON, RawAttestationObject: attObj}
	_, err = rp.FinishRegistration(context.Background(), opts, cred, "")
	ce, ok := err.(*CeremonyError)
	if !ok || ce.Kind != DuplicateCredentialID {
		t.Fatalf("got %v, want DuplicateCredentialID", err)
	}
}
