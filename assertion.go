package webauthn

import "context"

type assertionStep func(ctx context.Context, rp *RelyingParty, st *assertionState, observedTokenBindingID string) (*assertionState, *CeremonyError)

var assertionSteps = []assertionStep{
	asrtResolvePublicKey,
	asrtExtractFields,
	asrtParseClientData,
	asrtVerifyType,
	asrtVerifyChallenge,
	asrtVerifyOrigin,
	asrtVerifyTokenBinding,
	asrtVerifyExtensions,
	asrtDecodeAuthenticatorData,
	asrtVerifyRPIDHash,
	asrtComputeClientDataHash,
	asrtVerifySignature,
	asrtSignatureCounterPolicy,
}

// Step 1: Resolve public key.
func asrtResolvePublicKey(ctx context.Context, rp *RelyingParty, st *assertionState, _ string) (*assertionState, *CeremonyError) {
	key, count, storedUserHandle, ok, err := rp.cfg.CredentialRepository.Lookup(ctx, st.cred.ID, st.cred.UserHandle)
	if err != nil {
		return nil, ceremonyErr("ResolvePublicKey", MalformedInput, err)
	}
	if !ok {
		return nil, ceremonyErr("ResolvePublicKey", UnknownCredential, nil)
	}
	st.storedKey = key
	st.storedCount = count
	if st.cred.UserHandle == nil {
		st.cred.UserHandle = storedUserHandle
	}
	return st, nil
}

// Step 2: Extract fields.
func asrtExtractFields(ctx context.Context, rp *RelyingParty, st *assertionState, _ string) (*assertionState, *CeremonyError) {
	if len(st.cred.RawClientDataJSON) == 0 || len(st.cred.RawAuthenticatorData) == 0 || len(st.cred.Signature) == 0 {
		return nil, ceremonyErr("ExtractFields", MalformedInput, nil)
	}
	return st, nil
}

// Step 3: Parse clientDataJSON.
func asrtParseClientData(ctx context.Context, rp *RelyingParty, st *assertionState, _ string) (*assertionState, *CeremonyError) {
	cd, err := parseClientData(st.cred.RawClientDataJSON)
	if err != nil {
		return nil, ceremonyErr("ParseClientData", MalformedInput, err)
	}
	st.clientData = cd
	return st, nil
}

// Step 4: Verify type.
func asrtVerifyType(ctx context.Context, rp *RelyingParty, st *assertionState, _ string) (*assertionState, *CeremonyError) {
	if rp.cfg.ValidateTypeAttribute && st.clientData.Type != "webauthn.get" {
		return nil, ceremonyErr("VerifyType", TypeMismatch, nil)
	}
	return st, nil
}

// Step 5: Verify challenge.
func asrtVerifyChallenge(ctx context.Context, rp *RelyingParty, st *assertionState, _ string) (*assertionState, *CeremonyError) {
	if !challengeMatches(st.clientData.Challenge, st.opts.Challenge) {
		return nil, ceremonyErr("VerifyChallenge", ChallengeMismatch, nil)
	}
	return st, nil
}

// Step 6: Verify origin.
func asrtVerifyOrigin(ctx context.Context, rp *RelyingParty, st *assertionState, _ string) (*assertionState, *CeremonyError) {
	if !originAllowed(rp.cfg.Origins, st.clientData.Origin) {
		return nil, ceremonyErr("VerifyOrigin", OriginMismatch, nil)
	}
	return st, nil
}

// Step 7: Verify token binding.
func asrtVerifyTokenBinding(ctx context.Context, rp *RelyingParty, st *assertionState, observedTokenBindingID string) (*assertionState, *CeremonyError) {
	if err := verifyTokenBinding(st.clientData.TokenBinding, observedTokenBindingID, rp.cfg.AllowMissingTokenBinding); err != nil {
		return nil, ceremonyErr("VerifyTokenBinding", TokenBindingMismatch, err)
	}
	return st, nil
}

// Step 8: Verify extensions subset. Both clientExtensions and
// authenticatorExtensions in C (the parsed clientDataJSON), if present,
// must be key-subsets of the requested extensions; any unrequested key
// is rejected.
func asrtVerifyExtensions(ctx context.Context, rp *RelyingParty, st *assertionState, _ string) (*assertionState, *CeremonyError) {
	for key := range st.clientData.ClientExtensions {
		if _, requested := st.opts.Extensions[key]; !requested {
			return nil, ceremonyErr("VerifyExtensions", ExtensionNotRequested, nil)
		}
	}
	for key := range st.clientData.AuthenticatorExtensions {
		if _, requested := st.opts.Extensions[key]; !requested {
			return nil, ceremonyErr("VerifyExtensions", ExtensionNotRequested, nil)
		}
	}
	return st, nil
}

// Step 9: Decode authenticatorData.
func asrtDecodeAuthenticatorData(ctx context.Context, rp *RelyingParty, st *assertionState, _ string) (*assertionState, *CeremonyError) {
	ad, err := parseAuthenticatorData(st.cred.RawAuthenticatorData)
	if err != nil {
		return nil, ceremonyErr("DecodeAuthenticatorData", MalformedInput, err)
	}
	st.authData = ad
	return st, nil
}

// Step 9 (cont'd in spec numbering): Verify rpIdHash.
func asrtVerifyRPIDHash(ctx context.Context, rp *RelyingParty, st *assertionState, _ string) (*assertionState, *CeremonyError) {
	expected := rp.cfg.Crypto.Hash([]byte(rp.cfg.RP.ID))
	if !bytesEqual(st.authData.RPIDHash, expected[:]) {
		return nil, ceremonyErr("VerifyRPIDHash", RPIDHashMismatch, nil)
	}
	if !st.authData.UserPresent {
		return nil, ceremonyErr("VerifyRPIDHash", UserPresenceMissing, nil)
	}
	if st.opts.UserVerification == "required" && !st.authData.UserVerified {
		return nil, ceremonyErr("VerifyRPIDHash", UserVerificationRequired, nil)
	}
	if !st.authData.BackupEligible && st.authData.BackupState {
		st.warnings = append(st.warnings, BackupStateInconsistent)
	}
	return st, nil
}

// Step 10: Compute clientDataHash. hashAlgorithm is restricted to
// "SHA-256"; anything else is rejected.
func asrtComputeClientDataHash(ctx context.Context, rp *RelyingParty, st *assertionState, _ string) (*assertionState, *CeremonyError) {
	if st.clientData.HashAlgorithm != "SHA-256" {
		return nil, ceremonyErr("ComputeClientDataHash", UnsupportedHashAlgorithm, nil)
	}
	st.clientHash = rp.cfg.Crypto.Hash(st.cred.RawClientDataJSON)
	return st, nil
}

// Step 11: Verify signature.
func asrtVerifySignature(ctx context.Context, rp *RelyingParty, st *assertionState, _ string) (*assertionState, *CeremonyError) {
	signed := make([]byte, 0, len(st.authData.Raw)+len(st.clientHash))
	signed = append(signed, st.authData.Raw...)
	signed = append(signed, st.clientHash[:]...)
	if err := rp.cfg.Crypto.VerifySignature(st.storedKey, signed, st.cred.Signature); err != nil {
		return nil, ceremonyErr("VerifySignature", SignatureInvalid, err)
	}
	return st, nil
}

// Step 12: Signature counter policy.
func asrtSignatureCounterPolicy(ctx context.Context, rp *RelyingParty, st *assertionState, _ string) (*assertionState, *CeremonyError) {
	newCount := st.authData.SignCount
	switch {
	case newCount > st.storedCount || st.storedCount == 0:
		if err := rp.cfg.CredentialRepository.UpdateSignCount(ctx, st.cred.ID, newCount); err != nil {
			// A counter-update failure is logged by the caller and does
			// not fail the ceremony: storage hiccups shouldn't strand a
			// user who just proved possession of their authenticator.
			st.warnings = append(st.warnings, MalformedInput)
		}
	case newCount != 0:
		if rp.cfg.ValidateSignatureCounter {
			return nil, ceremonyErr("SignatureCounterPolicy", CloneWarning, nil)
		}
		st.warnings = append(st.warnings, CloneWarning)
	}
	return st, nil
}
