package webauthn

import "context"

// CredentialRepository is the caller's storage for registered credentials.
// Implementations must be safe for concurrent use.
type CredentialRepository interface {
	// Lookup returns the stored public key and signature counter for a
	// credential ID. If userHandle is non-empty, it must match the
	// credential's stored user handle (spec.md §4.3 step 1: "both must
	// match"); implementations should treat a mismatch the same as an
	// unknown credential. ok is false if the credential is unknown or the
	// user handle doesn't match.
	Lookup(ctx context.Context, credentialID, userHandle []byte) (key *COSEKey, signCount uint32, storedUserHandle []byte, ok bool, err error)
	// Exists reports whether any user already has this credential ID
	// registered, used to reject duplicate registrations.
	Exists(ctx context.Context, credentialID []byte) (bool, error)
	// UpdateSignCount persists a credential's new signature counter after
	// a successful assertion.
	UpdateSignCount(ctx context.Context, credentialID []byte, signCount uint32) error
}

// ChallengeGenerator produces the random challenge embedded in
// CreationOptions/RequestOptions. The default implementation uses
// crypto/rand; callers needing a fixed challenge for tests may supply
// their own.
type ChallengeGenerator interface {
	GenerateChallenge() ([]byte, error)
}

// MetadataService resolves whether an attestation trust path is trusted,
// e.g. against the FIDO Metadata Service. A nil MetadataService means
// every attestation is untrusted unless the RelyingParty was configured
// with AllowUntrustedAttestation.
type MetadataService interface {
	GetAttestation(aaguid []byte, trustPath [][]byte) (trusted bool, metadata interface{}, err error)
}

// Crypto groups the cryptographic primitives the pipelines call through,
// so tests can substitute deterministic or instrumented implementations.
type Crypto interface {
	Hash(data []byte) [32]byte
	VerifySignature(key *COSEKey, signed, signature []byte) error
	CheckCertPath(chain [][]byte) error
}
