package webauthn

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"

	"webauthnrp/internal/log"
)

// Config configures a RelyingParty. RP.ID, Origins and
// CredentialRepository are required; ChallengeGenerator and Crypto have
// defaults, and the boolean policy fields default to false.
type Config struct {
	RP RelyingPartyIdentity
	// Origins lists the exact origins (scheme://host[:port]) this relying
	// party accepts responses from. Must be non-empty.
	Origins []string

	CredentialRepository CredentialRepository
	ChallengeGenerator   ChallengeGenerator
	MetadataService       MetadataService
	Crypto                Crypto

	// AllowUntrustedAttestation permits registrations whose attestation
	// trust path could not be verified (including format "none" and
	// unrecognized formats). Most relying parties want this true.
	AllowUntrustedAttestation bool
	// AllowMissingTokenBinding permits clients that did not report a
	// tokenBinding member at all. Token binding is a deprecated,
	// rarely-implemented TLS extension; most relying parties want this true.
	AllowMissingTokenBinding bool
	// ValidateSignatureCounter, when true, fails an assertion outright on
	// a non-increasing signature counter (clone detection). When false,
	// the mismatch is recorded as a CloneWarning in AssertionResult.Warnings
	// and the ceremony otherwise succeeds.
	ValidateSignatureCounter bool
	// ValidateTypeAttribute, when false, skips the clientData.type check
	// (registration step 2, assertion step 4). Exists for interop with
	// non-conformant clients. New does not change it, so the zero value
	// false leaves the check off; set it true to enable the check.
	ValidateTypeAttribute bool
}

// RelyingParty is the verification core for one relying party identity.
// It is stateless aside from its injected collaborators and safe for
// concurrent use from multiple goroutines.
type RelyingParty struct {
	cfg Config
}

// New validates cfg and returns a ready RelyingParty.
func New(cfg Config) (*RelyingParty, error) {
	if cfg.RP.ID == "" {
		return nil, errors.New("webauthn: Config.RP.ID is required")
	}
	if len(cfg.Origins) == 0 {
		return nil, errors.New("webauthn: Config.Origins must be non-empty")
	}
	if cfg.CredentialRepository == nil {
		return nil, errors.New("webauthn: Config.CredentialRepository is required")
	}
	if cfg.ChallengeGenerator == nil {
		cfg.ChallengeGenerator = defaultChallengeGenerator{}
	}
	if cfg.Crypto == nil {
		cfg.Crypto = defaultCrypto{}
	}
	return &RelyingParty{cfg: cfg}, nil
}

type defaultChallengeGenerator struct{}

func (defaultChallengeGenerator) GenerateChallenge() ([]byte, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

// StartRegistration builds the CreationOptions for user, ready to be
// serialized to JSON and sent to the browser.
func (rp *RelyingParty) StartRegistration(ctx context.Context, user UserIdentity, opts ...RegistrationOption) (*CreationOptions, error) {
	challenge, err := rp.cfg.ChallengeGenerator.GenerateChallenge()
	if err != nil {
		return nil, fmt.Errorf("webauthn: GenerateChallenge: %w", err)
	}
	co := &CreationOptions{
		Challenge:        challenge,
		RP:               rp.cfg.RP,
		User:             user,
		PubKeyCredParams: defaultPubKeyCredParams,
		TimeoutMS:        defaultRegistrationTimeoutMS,
		Attestation:      "none",
		UserVerification: "preferred",
	}
	for _, o := range opts {
		o(co)
	}
	return co, nil
}

// StartAssertion builds the RequestOptions for an authentication
// ceremony. allowCredentials may be empty for a discoverable login.
func (rp *RelyingParty) StartAssertion(ctx context.Context, allowCredentials []CredentialDescriptor, opts ...LoginOption) (*RequestOptions, error) {
	challenge, err := rp.cfg.ChallengeGenerator.GenerateChallenge()
	if err != nil {
		return nil, fmt.Errorf("webauthn: GenerateChallenge: %w", err)
	}
	ro := &RequestOptions{
		Challenge:        challenge,
		TimeoutMS:        defaultAssertionTimeoutMS,
		RPID:             rp.cfg.RP.ID,
		AllowCredentials: allowCredentials,
		UserVerification: "preferred",
	}
	for _, o := range opts {
		o(ro)
	}
	return ro, nil
}

// FinishRegistration runs the thirteen-step registration pipeline against
// cred, checking it against opts as stored by the caller (the expected
// challenge and the user verification requirement come from opts; the
// allowed origins come from Config).
func (rp *RelyingParty) FinishRegistration(ctx context.Context, opts *CreationOptions, cred *PublicKeyCredentialAttestation, observedTokenBindingID string) (*RegistrationResult, error) {
	st := &registrationState{opts: opts, cred: cred}
	for _, step := range registrationSteps {
		var err *CeremonyError
		st, err = step(ctx, rp, st, observedTokenBindingID)
		if err != nil {
			recordCeremony("registration", "failure")
			log.Debugf("registration step %s failed: %v", err.Step, err)
			return nil, err
		}
	}
	recordCeremony("registration", "success")
	return &RegistrationResult{
		CredentialID:    st.cred.ID,
		COSEKey:         st.coseKey,
		AttestationType: st.attType,
		Trusted:         st.trusted,
		SignCount:       st.attObj.AuthData.SignCount,
		BackupEligible:  st.attObj.AuthData.BackupEligible,
		BackupState:     st.attObj.AuthData.BackupState,
		AAGUID:          st.attObj.AuthData.AttestedCredentialData.AAGUID,
		Warnings:        st.warnings,
	}, nil
}

// FinishAssertion runs the thirteen-step assertion pipeline.
func (rp *RelyingParty) FinishAssertion(ctx context.Context, opts *RequestOptions, cred *PublicKeyCredentialAssertion, observedTokenBindingID string) (*AssertionResult, error) {
	st := &assertionState{opts: opts, cred: cred}
	for _, step := range assertionSteps {
		var err *CeremonyError
		st, err = step(ctx, rp, st, observedTokenBindingID)
		if err != nil {
			recordCeremony("assertion", "failure")
			log.Debugf("assertion step %s failed: %v", err.Step, err)
			return nil, err
		}
	}
	recordCeremony("assertion", "success")
	return &AssertionResult{
		CredentialID: st.cred.ID,
		UserHandle:   st.cred.UserHandle,
		SignCount:    st.authData.SignCount,
		BackupState:  st.authData.BackupState,
		Warnings:     st.warnings,
	}, nil
}
