package webauthn

// resolveTrust consults the configured MetadataService for aaguid/trustPath.
// A nil MetadataService means nothing is ever trusted through this path;
// the caller's AllowUntrustedAttestation then decides whether the
// ceremony still succeeds.
func resolveTrust(rp *RelyingParty, aaguid []byte, trustPath [][]byte) (bool, error) {
	if rp.cfg.MetadataService == nil {
		return false, nil
	}
	if len(trustPath) == 0 {
		return false, nil
	}
	if err := rp.cfg.Crypto.CheckCertPath(trustPath); err != nil {
		return false, nil
	}
	trusted, _, err := rp.cfg.MetadataService.GetAttestation(aaguid, trustPath)
	if err != nil {
		return false, err
	}
	return trusted, nil
}
