package webauthn

// attestationResult is what an attestation statement verifier produces.
type attestationResult struct {
	Type      string // "none", "self", "basic", "unknown"
	TrustPath [][]byte
}

// attestationVerifier validates one attStmt format.
// https://w3c.github.io/webauthn/#sctn-attestation
type attestationVerifier interface {
	Verify(rp *RelyingParty, attStmt []byte, authData AuthenticatorData, clientDataHash []byte) (*attestationResult, error)
}

var attestationRegistry = map[string]attestationVerifier{
	"none":     noneVerifier{},
	"fido-u2f": fidoU2FVerifier{},
	"packed":   packedVerifier{},
}

// lookupAttestationVerifier returns the registered verifier for format, or
// unknownVerifier{} if none is registered — producing attestationType
// "unknown" rather than failing the ceremony outright, leaving the trust
// decision to the caller's AllowUntrustedAttestation setting.
func lookupAttestationVerifier(format string) attestationVerifier {
	if v, ok := attestationRegistry[format]; ok {
		return v
	}
	return unknownVerifier{}
}

type unknownVerifier struct{}

func (unknownVerifier) Verify(rp *RelyingParty, attStmt []byte, authData AuthenticatorData, clientDataHash []byte) (*attestationResult, error) {
	return &attestationResult{Type: "unknown"}, nil
}
