package webauthn

import "context"

// registrationStep is one named, ordered step of the registration
// pipeline: a pure function from the prior state to the next, or a
// CeremonyError naming the step that rejected.
type registrationStep func(ctx context.Context, rp *RelyingParty, st *registrationState, observedTokenBindingID string) (*registrationState, *CeremonyError)

var registrationSteps = []registrationStep{
	regParseClientData,
	regVerifyType,
	regVerifyChallenge,
	regVerifyOrigin,
	regVerifyTokenBinding,
	regComputeClientDataHash,
	regDecodeAttestationObject,
	regVerifyRPIDHash,
	regVerifyUserPresence,
	regVerifyAttestationStatement,
	regVerifyTrust,
	regVerifyCredentialUnique,
	regAssembleResult,
}

// Step 1: Parse clientDataJSON.
func regParseClientData(ctx context.Context, rp *RelyingParty, st *registrationState, _ string) (*registrationState, *CeremonyError) {
	cd, err := parseClientData(st.cred.RawClientDataJSON)
	if err != nil {
		return nil, ceremonyErr("ParseClientData", MalformedInput, err)
	}
	st.clientData = cd
	return st, nil
}

// Step 2: Verify type attribute.
func regVerifyType(ctx context.Context, rp *RelyingParty, st *registrationState, _ string) (*registrationState, *CeremonyError) {
	if rp.cfg.ValidateTypeAttribute && st.clientData.Type != "webauthn.create" {
		return nil, ceremonyErr("VerifyType", TypeMismatch, nil)
	}
	return st, nil
}

// Step 3: Verify challenge.
func regVerifyChallenge(ctx context.Context, rp *RelyingParty, st *registrationState, _ string) (*registrationState, *CeremonyError) {
	if !challengeMatches(st.clientData.Challenge, st.opts.Challenge) {
		return nil, ceremonyErr("VerifyChallenge", ChallengeMismatch, nil)
	}
	return st, nil
}

// Step 4: Verify origin.
func regVerifyOrigin(ctx context.Context, rp *RelyingParty, st *registrationState, _ string) (*registrationState, *CeremonyError) {
	if !originAllowed(rp.cfg.Origins, st.clientData.Origin) {
		return nil, ceremonyErr("VerifyOrigin", OriginMismatch, nil)
	}
	return st, nil
}

// Step 5: Verify token binding.
func regVerifyTokenBinding(ctx context.Context, rp *RelyingParty, st *registrationState, observedTokenBindingID string) (*registrationState, *CeremonyError) {
	if err := verifyTokenBinding(st.clientData.TokenBinding, observedTokenBindingID, rp.cfg.AllowMissingTokenBinding); err != nil {
		return nil, ceremonyErr("VerifyTokenBinding", TokenBindingMismatch, err)
	}
	return st, nil
}

// Step 6: Compute clientDataHash. hashAlgorithm must be exactly
// "SHA-256"; MD5, SHA-1, SHA-384, or any other value is rejected before
// the hash is ever computed.
func regComputeClientDataHash(ctx context.Context, rp *RelyingParty, st *registrationState, _ string) (*registrationState, *CeremonyError) {
	if st.clientData.HashAlgorithm != "SHA-256" {
		return nil, ceremonyErr("ComputeClientDataHash", UnsupportedHashAlgorithm, nil)
	}
	st.clientHash = rp.cfg.Crypto.Hash(st.cred.RawClientDataJSON)
	return st, nil
}

// Step 7: Decode attestationObject.
func regDecodeAttestationObject(ctx context.Context, rp *RelyingParty, st *registrationState, _ string) (*registrationState, *CeremonyError) {
	ao, err := parseAttestationObject(st.cred.RawAttestationObject)
	if err != nil {
		return nil, ceremonyErr("DecodeAttestationObject", MalformedInput, err)
	}
	if !ao.AuthData.HasAttestedCred || ao.AuthData.AttestedCredentialData == nil {
		return nil, ceremonyErr("DecodeAttestationObject", MalformedInput, errAttestedCredentialDataMissing)
	}
	key, err := parseCOSEKey(ao.AuthData.AttestedCredentialData.COSEKeyRaw)
	if err != nil {
		return nil, ceremonyErr("DecodeAttestationObject", MalformedInput, err)
	}
	st.attObj = ao
	st.coseKey = key
	return st, nil
}

// Step 8: Verify rpIdHash.
func regVerifyRPIDHash(ctx context.Context, rp *RelyingParty, st *registrationState, _ string) (*registrationState, *CeremonyError) {
	expected := rp.cfg.Crypto.Hash([]byte(rp.cfg.RP.ID))
	if !bytesEqual(st.attObj.AuthData.RPIDHash, expected[:]) {
		return nil, ceremonyErr("VerifyRPIDHash", RPIDHashMismatch, nil)
	}
	return st, nil
}

// Step 9: Verify user-present flag (and user-verified, when the caller's
// authenticator selection required it).
func regVerifyUserPresence(ctx context.Context, rp *RelyingParty, st *registrationState, _ string) (*registrationState, *CeremonyError) {
	if !st.attObj.AuthData.UserPresent {
		return nil, ceremonyErr("VerifyUserPresence", UserPresenceMissing, nil)
	}
	if st.opts.UserVerification == "required" && !st.attObj.AuthData.UserVerified {
		return nil, ceremonyErr("VerifyUserPresence", UserVerificationRequired, nil)
	}
	if !st.attObj.AuthData.BackupEligible && st.attObj.AuthData.BackupState {
		st.warnings = append(st.warnings, BackupStateInconsistent)
	}
	return st, nil
}

// Step 10: Verify attestation statement.
func regVerifyAttestationStatement(ctx context.Context, rp *RelyingParty, st *registrationState, _ string) (*registrationState, *CeremonyError) {
	verifier := lookupAttestationVerifier(st.attObj.Format)
	result, err := verifier.Verify(rp, st.attObj.AttStmt, st.attObj.AuthData, st.clientHash[:])
	if err != nil {
		return nil, ceremonyErr("VerifyAttestationStatement", AttestationStatementInvalid, err)
	}
	st.attType = result.Type
	st.attObj.trustPath = result.TrustPath
	return st, nil
}

// Step 11: Verify trust.
func regVerifyTrust(ctx context.Context, rp *RelyingParty, st *registrationState, _ string) (*registrationState, *CeremonyError) {
	trusted, err := resolveTrust(rp, st.attObj.AuthData.AttestedCredentialData.AAGUID, st.attObj.trustPath)
	if err != nil {
		return nil, ceremonyErr("VerifyTrust", AttestationUntrusted, err)
	}
	trusted = trusted || (st.attType == "self" && rp.cfg.AllowUntrustedAttestation)
	if !trusted && !rp.cfg.AllowUntrustedAttestation {
		return nil, ceremonyErr("VerifyTrust", AttestationUntrusted, nil)
	}
	st.trusted = trusted
	return st, nil
}

// Step 12: Check credential-id uniqueness.
func regVerifyCredentialUnique(ctx context.Context, rp *RelyingParty, st *registrationState, _ string) (*registrationState, *CeremonyError) {
	exists, err := rp.cfg.CredentialRepository.Exists(ctx, st.attObj.AuthData.AttestedCredentialData.CredentialID)
	if err != nil {
		return nil, ceremonyErr("VerifyCredentialUnique", MalformedInput, err)
	}
	if exists {
		return nil, ceremonyErr("VerifyCredentialUnique", DuplicateCredentialID, nil)
	}
	return st, nil
}

// Step 13: Assemble result. Sets st.cred.ID to the credential ID from the
// attested credential data; RelyingParty.FinishRegistration then reads
// the result's fields directly out of st.
func regAssembleResult(ctx context.Context, rp *RelyingParty, st *registrationState, _ string) (*registrationState, *CeremonyError) {
	st.cred.ID = st.attObj.AuthData.AttestedCredentialData.CredentialID
	return st, nil
}
