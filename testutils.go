package webauthn

import (
	"bytes"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/binary"
	"encoding/json"
	"errors"
	"math/big"
	"time"

	cbor "github.com/fxamacker/cbor/v2"
)

// FakeAuthenticator mimics a WebAuthn authenticator for tests: it holds
// private keys and produces the same clientDataJSON/attestationObject/
// authenticatorData/signature shapes a browser would return.
type FakeAuthenticator struct {
	keys     map[string]*fakeAuthKey
	rpIDHash []byte
	origin   string
}

type fakeAuthKey struct {
	id         []byte
	uid        []byte
	rk         bool
	privateKey crypto.Signer
	alg        int64
	signCount  uint32
}

// NewFakeAuthenticator returns a FakeAuthenticator that reports origin in
// every clientDataJSON it produces.
func NewFakeAuthenticator(origin string) *FakeAuthenticator {
	return &FakeAuthenticator{keys: make(map[string]*fakeAuthKey), origin: origin}
}

// Create mimics navigator.credentials.create(), producing a "none"-format
// attestation for the requested algorithm (defaults to ES256).
func (a *FakeAuthenticator) Create(opts *CreationOptions) (clientDataJSON, attestationObject []byte, rawID []byte, err error) {
	alg := int64(AlgES256)
	if len(opts.PubKeyCredParams) > 0 {
		alg = opts.PubKeyCredParams[0].Alg
	}
	key, coseKey, err := a.newKey(alg)
	if err != nil {
		return nil, nil, nil, err
	}
	key.uid = opts.User.ID
	key.rk = opts.RequireResidentKey
	rpIDHash := sha256.Sum256([]byte(opts.RP.ID))
	a.rpIDHash = rpIDHash[:]

	cd := rawClientData{Type: "webauthn.create", Challenge: encodeB64(opts.Challenge), Origin: a.origin, HashAlgorithm: "SHA-256"}
	if clientDataJSON, err = json.Marshal(cd); err != nil {
		return nil, nil, nil, err
	}
	authData, err := key.makeAuthData(a.rpIDHash, coseKey)
	if err != nil {
		return nil, nil, nil, err
	}
	ao := AttestationObject{Format: "none", RawAuthData: authData}
	if attestationObject, err = cbor.Marshal(ao); err != nil {
		return nil, nil, nil, err
	}
	a.keys[encodeB64(key.id)] = key
	return clientDataJSON, attestationObject, key.id, nil
}

// CreateFIDOU2F produces a "fido-u2f" format attestation signed by a
// freshly generated self-signed EC P-256 certificate, exercising
// attest_fidou2f.go's verifier.
func (a *FakeAuthenticator) CreateFIDOU2F(opts *CreationOptions) (clientDataJSON, attestationObject []byte, rawID []byte, err error) {
	key, coseKey, err := a.newKey(AlgES256)
	if err != nil {
		return nil, nil, nil, err
	}
	key.uid = opts.User.ID
	rpIDHash := sha256.Sum256([]byte(opts.RP.ID))
	a.rpIDHash = rpIDHash[:]

	cd := rawClientData{Type: "webauthn.create", Challenge: encodeB64(opts.Challenge), Origin: a.origin, HashAlgorithm: "SHA-256"}
	if clientDataJSON, err = json.Marshal(cd); err != nil {
		return nil, nil, nil, err
	}
	clientDataHash := sha256.Sum256(clientDataJSON)
	authData, err := key.makeAuthData(a.rpIDHash, coseKey)
	if err != nil {
		return nil, nil, nil, err
	}

	leafKey, ok := key.privateKey.(*ecdsa.PrivateKey)
	if !ok {
		return nil, nil, nil, errors.New("fido-u2f fixture requires an EC key")
	}
	leafDER, err := selfSignedCert(leafKey)
	if err != nil {
		return nil, nil, nil, err
	}
	coseK, err := parseCOSEKey(coseKey)
	if err != nil {
		return nil, nil, nil, err
	}
	u2fPoint, err := u2fRawPoint(coseK)
	if err != nil {
		return nil, nil, nil, err
	}
	signingBase := make([]byte, 0, 1+32+32+len(key.id)+len(u2fPoint))
	signingBase = append(signingBase, 0x00)
	signingBase = append(signingBase, a.rpIDHash...)
	signingBase = append(signingBase, clientDataHash[:]...)
	signingBase = append(signingBase, key.id...)
	signingBase = append(signingBase, u2fPoint...)
	digest := sha256.Sum256(signingBase)
	sig, err := ecdsa.SignASN1(rand.Reader, leafKey, digest[:])
	if err != nil {
		return nil, nil, nil, err
	}

	stmt, err := cbor.Marshal(fidoU2FStmt{X5C: []cbor.RawMessage{mustMarshalBytes(leafDER)}, Sig: sig})
	if err != nil {
		return nil, nil, nil, err
	}
	ao := AttestationObject{Format: "fido-u2f", RawAuthData: authData, AttStmt: stmt}
	if attestationObject, err = cbor.Marshal(ao); err != nil {
		return nil, nil, nil, err
	}
	a.keys[encodeB64(key.id)] = key
	return clientDataJSON, attestationObject, key.id, nil
}

// CreatePackedSelf produces a "packed" format self-attestation (no x5c).
func (a *FakeAuthenticator) CreatePackedSelf(opts *CreationOptions) (clientDataJSON, attestationObject []byte, rawID []byte, err error) {
	alg := int64(AlgES256)
	if len(opts.PubKeyCredParams) > 0 {
		alg = opts.PubKeyCredParams[0].Alg
	}
	key, coseKey, err := a.newKey(alg)
	if err != nil {
		return nil, nil, nil, err
	}
	key.uid = opts.User.ID
	rpIDHash := sha256.Sum256([]byte(opts.RP.ID))
	a.rpIDHash = rpIDHash[:]

	cd := rawClientData{Type: "webauthn.create", Challenge: encodeB64(opts.Challenge), Origin: a.origin, HashAlgorithm: "SHA-256"}
	if clientDataJSON, err = json.Marshal(cd); err != nil {
		return nil, nil, nil, err
	}
	clientDataHash := sha256.Sum256(clientDataJSON)
	authData, err := key.makeAuthData(a.rpIDHash, coseKey)
	if err != nil {
		return nil, nil, nil, err
	}
	signed := append(append([]byte(nil), authData...), clientDataHash[:]...)
	digest := sha256.Sum256(signed)
	var sig []byte
	switch priv := key.privateKey.(type) {
	case *ecdsa.PrivateKey:
		sig, err = ecdsa.SignASN1(rand.Reader, priv, digest[:])
	case *rsa.PrivateKey:
		sig, err = rsa.SignPKCS1v15(rand.Reader, priv, crypto.SHA256, digest[:])
	default:
		err = errors.New("unsupported key type")
	}
	if err != nil {
		return nil, nil, nil, err
	}
	stmt, err := cbor.Marshal(packedStmt{Alg: alg, Sig: sig})
	if err != nil {
		return nil, nil, nil, err
	}
	ao := AttestationObject{Format: "packed", RawAuthData: authData, AttStmt: stmt}
	if attestationObject, err = cbor.Marshal(ao); err != nil {
		return nil, nil, nil, err
	}
	a.keys[encodeB64(key.id)] = key
	return clientDataJSON, attestationObject, key.id, nil
}

// Get mimics navigator.credentials.get(). credID may be nil for a
// discoverable (username-less) login, in which case the resolved
// credential ID is returned as id.
func (a *FakeAuthenticator) Get(opts *RequestOptions, credID []byte) (id, clientDataJSON, authData, signature, userHandle []byte, err error) {
	var key *fakeAuthKey
	if credID != nil {
		k, ok := a.keys[encodeB64(credID)]
		if !ok {
			return nil, nil, nil, nil, nil, errors.New("key not found")
		}
		key, id = k, credID
	} else {
		for kid, k := range a.keys {
			if k.rk {
				key = k
				id, _ = decodeB64(kid)
				userHandle = k.uid
				break
			}
		}
	}
	if key == nil {
		return nil, nil, nil, nil, nil, errors.New("key not found")
	}
	cd := rawClientData{Type: "webauthn.get", Challenge: encodeB64(opts.Challenge), Origin: a.origin, HashAlgorithm: "SHA-256"}
	if clientDataJSON, err = json.Marshal(cd); err != nil {
		return
	}
	key.signCount++
	if authData, err = key.makeAuthData(a.rpIDHash, nil); err != nil {
		return
	}
	clientDataHash := sha256.Sum256(clientDataJSON)
	signed := append(append([]byte(nil), authData...), clientDataHash[:]...)
	digest := sha256.Sum256(signed)
	switch priv := key.privateKey.(type) {
	case *ecdsa.PrivateKey:
		signature, err = ecdsa.SignASN1(rand.Reader, priv, digest[:])
	case *rsa.PrivateKey:
		signature, err = rsa.SignPKCS1v15(rand.Reader, priv, crypto.SHA256, digest[:])
	default:
		err = errors.New("unsupported key type")
	}
	return
}

// GetWithClientExtensions behaves like Get but embeds clientExtensions in
// the signed clientDataJSON, exercising the clientData-sourced extension
// subset check (as opposed to the separate clientExtensionResults member
// of the browser's response).
func (a *FakeAuthenticator) GetWithClientExtensions(opts *RequestOptions, credID []byte, clientExtensions map[string]interface{}) (id, clientDataJSON, authData, signature []byte, err error) {
	key, ok := a.keys[encodeB64(credID)]
	if !ok {
		return nil, nil, nil, nil, errors.New("key not found")
	}
	id = credID
	cd := rawClientData{Type: "webauthn.get", Challenge: encodeB64(opts.Challenge), Origin: a.origin, HashAlgorithm: "SHA-256", ClientExtensions: clientExtensions}
	if clientDataJSON, err = json.Marshal(cd); err != nil {
		return
	}
	key.signCount++
	if authData, err = key.makeAuthData(a.rpIDHash, nil); err != nil {
		return
	}
	clientDataHash := sha256.Sum256(clientDataJSON)
	signed := append(append([]byte(nil), authData...), clientDataHash[:]...)
	digest := sha256.Sum256(signed)
	switch priv := key.privateKey.(type) {
	case *ecdsa.PrivateKey:
		signature, err = ecdsa.SignASN1(rand.Reader, priv, digest[:])
	case *rsa.PrivateKey:
		signature, err = rsa.SignPKCS1v15(rand.Reader, priv, crypto.SHA256, digest[:])
	default:
		err = errors.New("unsupported key type")
	}
	return
}

// SetSignCount forces a credential's authenticator-side counter, for
// clone-detection tests.
func (a *FakeAuthenticator) SetSignCount(credID []byte, count uint32) {
	if k, ok := a.keys[encodeB64(credID)]; ok {
		k.signCount = count
	}
}

// COSEKeyFor returns the parsed COSE public key for a credential, so test
// CredentialRepository stubs can return it from Lookup.
func (a *FakeAuthenticator) COSEKeyFor(credID []byte) (*COSEKey, error) {
	k, ok := a.keys[encodeB64(credID)]
	if !ok {
		return nil, errors.New("key not found")
	}
	var coseKey []byte
	var err error
	switch priv := k.privateKey.(type) {
	case *ecdsa.PrivateKey:
		coseKey, err = es256CoseKey(priv.PublicKey)
	case *rsa.PrivateKey:
		coseKey, err = rs256CoseKey(priv.PublicKey)
	default:
		return nil, errors.New("unsupported key type")
	}
	if err != nil {
		return nil, err
	}
	return parseCOSEKey(coseKey)
}

func (a *FakeAuthenticator) newKey(alg int64) (*fakeAuthKey, []byte, error) {
	key := &fakeAuthKey{alg: alg}
	key.id = make([]byte, 32)
	if _, err := rand.Read(key.id); err != nil {
		return nil, nil, err
	}
	var coseKey []byte
	var err error
	switch alg {
	case AlgES256:
		priv, genErr := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		if genErr != nil {
			return nil, nil, genErr
		}
		key.privateKey = priv
		coseKey, err = es256CoseKey(priv.PublicKey)
	case AlgRS256:
		priv, genErr := rsa.GenerateKey(rand.Reader, 2048)
		if genErr != nil {
			return nil, nil, genErr
		}
		key.privateKey = priv
		coseKey, err = rs256CoseKey(priv.PublicKey)
	default:
		return nil, nil, errors.New("unsupported alg")
	}
	if err != nil {
		return nil, nil, err
	}
	return key, coseKey, nil
}

func (k *fakeAuthKey) makeAuthData(rpIDHash, coseKey []byte) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(rpIDHash)
	var bits uint8
	bits |= 1      // UP
	bits |= 1 << 2 // UV
	if coseKey != nil {
		bits |= 1 << 6 // AT
	}
	buf.Write([]byte{bits})
	binary.Write(&buf, binary.BigEndian, k.signCount)
	if coseKey != nil {
		var aaguid [16]byte
		buf.Write(aaguid[:])
		binary.Write(&buf, binary.BigEndian, uint16(len(k.id)))
		buf.Write(k.id)
		buf.Write(coseKey)
	}
	return buf.Bytes(), nil
}

func es256CoseKey(publicKey ecdsa.PublicKey) ([]byte, error) {
	if publicKey.Curve != elliptic.P256() {
		return nil, errors.New("unexpected EC curve")
	}
	ecKey := struct {
		Kty   int64  `cbor:"1,keyasint"`
		Alg   int64  `cbor:"3,keyasint"`
		Curve int64  `cbor:"-1,keyasint"`
		X     []byte `cbor:"-2,keyasint"`
		Y     []byte `cbor:"-3,keyasint"`
	}{Kty: coseKtyEC2, Alg: AlgES256, Curve: coseCrvP256, X: publicKey.X.Bytes(), Y: publicKey.Y.Bytes()}
	return cbor.Marshal(ecKey)
}

func rs256CoseKey(publicKey rsa.PublicKey) ([]byte, error) {
	rsaKey := struct {
		Kty int64  `cbor:"1,keyasint"`
		Alg int64  `cbor:"3,keyasint"`
		N   []byte `cbor:"-1,keyasint"`
		E   int64  `cbor:"-2,keyasint"`
	}{Kty: coseKtyRSA, Alg: AlgRS256, N: publicKey.N.Bytes(), E: int64(publicKey.E)}
	return cbor.Marshal(rsaKey)
}

// selfSignedCert mints a throwaway self-signed EC certificate for
// fido-u2f test fixtures.
func selfSignedCert(priv *ecdsa.PrivateKey) ([]byte, error) {
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "fake-u2f-authenticator"},
		NotBefore:    time.Unix(0, 0),
		NotAfter:     time.Unix(0, 0).AddDate(30, 0, 0),
	}
	return x509.CreateCertificate(rand.Reader, tmpl, tmpl, &priv.PublicKey, priv)
}

func mustMarshalBytes(b []byte) cbor.RawMessage {
	raw, err := cbor.Marshal(b)
	if err != nil {
		panic(err)
	}
	return raw
}
