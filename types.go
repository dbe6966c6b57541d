// Package webauthn implements the relying-party half of a WebAuthn
// registration and authentication ceremony: given the JSON/CBOR the
// browser hands back from navigator.credentials.create()/.get(), it
// verifies the response against the challenge and origin the caller
// issued and returns a parsed, trust-evaluated result. It does not speak
// HTTP, store challenges, or persist credentials — those are the
// caller's job, represented here only as the interfaces in
// interfaces.go.
package webauthn

import (
	"crypto"
	"time"

	cbor "github.com/fxamacker/cbor/v2"
)

// RelyingPartyIdentity identifies this relying party to the authenticator.
type RelyingPartyIdentity struct {
	ID   string // effective domain, e.g. "example.com"
	Name string
}

// UserIdentity identifies the account a credential is bound to.
type UserIdentity struct {
	ID          []byte // opaque handle, <= 64 bytes, never the username/email
	Name        string
	DisplayName string
}

// CredentialParameter names an acceptable public-key algorithm.
type CredentialParameter struct {
	Type string // always "public-key"
	Alg  int64  // COSEAlgorithmIdentifier, e.g. -7 for ES256
}

// CredentialDescriptor references a specific credential, e.g. to exclude
// or allow it in a ceremony.
type CredentialDescriptor struct {
	Type       string
	ID         []byte
	Transports []string
}

// CreationOptions is the server-computed half of
// PublicKeyCredentialCreationOptions, serialized to JSON for the browser
// by the caller.
type CreationOptions struct {
	Challenge              []byte
	RP                     RelyingPartyIdentity
	User                    UserIdentity
	PubKeyCredParams       []CredentialParameter
	TimeoutMS              int
	ExcludeCredentials     []CredentialDescriptor
	Attestation            string // "none", "indirect", "direct"
	UserVerification       string // "required", "preferred", "discouraged"
	RequireResidentKey     bool
	Extensions             map[string]interface{}
}

// RequestOptions is the server-computed half of
// PublicKeyCredentialRequestOptions.
type RequestOptions struct {
	Challenge        []byte
	TimeoutMS        int
	RPID             string
	AllowCredentials []CredentialDescriptor
	UserVerification string
	Extensions       map[string]interface{}
}

// PublicKeyCredentialAttestation is the parsed body of the browser's
// response to navigator.credentials.create().
type PublicKeyCredentialAttestation struct {
	ID                      []byte
	RawClientDataJSON       []byte
	RawAttestationObject    []byte
	ClientExtensionResults  map[string]interface{}
}

// PublicKeyCredentialAssertion is the parsed body of the browser's
// response to navigator.credentials.get().
type PublicKeyCredentialAssertion struct {
	ID                     []byte
	RawClientDataJSON      []byte
	RawAuthenticatorData   []byte
	Signature              []byte
	UserHandle             []byte
	ClientExtensionResults map[string]interface{}
}

// CollectedClientData is the parsed form of the clientDataJSON object the
// browser returns, https://w3c.github.io/webauthn/#dictionary-client-data.
type CollectedClientData struct {
	Type                    string
	Challenge               string // base64url; decoded, then compared via subtle
	Origin                  string
	HashAlgorithm           string // must be exactly "SHA-256"
	TokenBinding            *TokenBinding
	ClientExtensions        map[string]interface{}
	AuthenticatorExtensions map[string]interface{}
}

// TokenBinding carries the optional tokenBinding member of
// CollectedClientData.
type TokenBinding struct {
	Status string // "present", "supported", "not-supported"
	ID     string // base64url, only when Status == "present"
}

// AttestationObject is the CBOR-decoded attestationObject.
type AttestationObject struct {
	Format      string          `cbor:"fmt"`
	AttStmt     cbor.RawMessage `cbor:"attStmt"`
	RawAuthData []byte          `cbor:"authData"`

	AuthData AuthenticatorData `cbor:"-"`

	// trustPath is populated by the attestation-statement verifier (step
	// 10) and consumed by the trust step (step 11); it never round-trips
	// through CBOR.
	trustPath [][]byte `cbor:"-"`
}

// AuthenticatorData is the binary-decoded authenticator data, present in
// both attestation (within AttestationObject) and assertion responses.
// https://w3c.github.io/webauthn/#sctn-authenticator-data
type AuthenticatorData struct {
	RPIDHash         []byte
	UserPresent      bool
	UserVerified     bool
	BackupEligible   bool
	BackupState      bool
	HasAttestedCred  bool
	HasExtensions    bool
	SignCount        uint32

	AttestedCredentialData *AttestedCredentialData
	Extensions             []byte // raw CBOR, undecoded

	// Raw is the exact byte sequence this struct was parsed from. The
	// signature covers Raw, not a re-encoding of these fields.
	Raw []byte
}

// AttestedCredentialData is present only when AuthenticatorData.HasAttestedCred.
// https://w3c.github.io/webauthn/#sctn-attested-credential-data
type AttestedCredentialData struct {
	AAGUID          []byte
	CredentialID    []byte
	COSEKeyRaw      []byte // raw CBOR-encoded COSE_Key
}

// COSEKey is a decoded COSE_Key public key, convertible to a crypto.PublicKey.
type COSEKey struct {
	Kty   int64
	Alg   int64
	Curve int64 // EC2 only
	X, Y  []byte
	N     []byte // RSA only
	E     int64
}

// PublicKey returns the crypto.PublicKey this COSE_Key represents.
func (k *COSEKey) PublicKey() (crypto.PublicKey, error) {
	return coseKeyToPublicKey(k)
}

// RegistrationResult is returned by FinishRegistration on success.
type RegistrationResult struct {
	CredentialID     []byte
	COSEKey          *COSEKey
	AttestationType  string // "none", "self", "basic", "unknown"
	Trusted          bool
	SignCount        uint32
	BackupEligible   bool
	BackupState      bool
	Transports       []string
	AAGUID           []byte
	Warnings         []ErrorKind
}

// AssertionResult is returned by FinishAssertion on success.
type AssertionResult struct {
	CredentialID   []byte
	UserHandle     []byte
	SignCount      uint32
	BackupState    bool
	Warnings       []ErrorKind
}

// registrationState/assertionState carry state between pipeline steps.
// They are re-architected per-step state, not a lazy generator: each step
// is a pure function from one of these to the next (or an error).

type registrationState struct {
	opts       *CreationOptions
	cred       *PublicKeyCredentialAttestation
	clientData *CollectedClientData
	clientHash [32]byte
	attObj     *AttestationObject
	coseKey    *COSEKey
	attType    string
	trusted    bool
	warnings   []ErrorKind
}

type assertionState struct {
	opts        *RequestOptions
	cred        *PublicKeyCredentialAssertion
	clientData  *CollectedClientData
	clientHash  [32]byte
	authData    *AuthenticatorData
	storedKey   *COSEKey
	storedCount uint32
	warnings    []ErrorKind
}

// now is overridable in tests; production code always uses time.Now.
var now = time.Now
