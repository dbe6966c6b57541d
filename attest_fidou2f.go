package webauthn

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/sha256"
	"crypto/x509"
	"errors"
	"math/big"

	cbor "github.com/fxamacker/cbor/v2"
)

// fidoU2FVerifier implements the "fido-u2f" attestation statement format.
// https://w3c.github.io/webauthn/#sctn-fido-u2f-attestation
type fidoU2FVerifier struct{}

type fidoU2FStmt struct {
	X5C []cbor.RawMessage `cbor:"x5c"`
	Sig []byte            `cbor:"sig"`
}

func (fidoU2FVerifier) Verify(rp *RelyingParty, attStmt []byte, authData AuthenticatorData, clientDataHash []byte) (*attestationResult, error) {
	var stmt fidoU2FStmt
	if err := cbor.Unmarshal(attStmt, &stmt); err != nil {
		return nil, err
	}
	if len(stmt.X5C) != 1 {
		return nil, errors.New("fido-u2f: x5c must contain exactly one certificate")
	}
	var leafDER []byte
	if err := cbor.Unmarshal(stmt.X5C[0], &leafDER); err != nil {
		return nil, err
	}
	leaf, err := x509.ParseCertificate(leafDER)
	if err != nil {
		return nil, err
	}
	leafKey, ok := leaf.PublicKey.(*ecdsa.PublicKey)
	if !ok || leafKey.Curve != elliptic.P256() {
		return nil, errors.New("fido-u2f: leaf certificate key is not EC P-256")
	}
	if authData.AttestedCredentialData == nil {
		return nil, errors.New("fido-u2f: missing attested credential data")
	}
	key, err := parseCOSEKey(authData.AttestedCredentialData.COSEKeyRaw)
	if err != nil {
		return nil, err
	}
	publicKeyU2F, err := u2fRawPoint(key)
	if err != nil {
		return nil, err
	}

	signingBase := make([]byte, 0, 1+32+32+len(authData.AttestedCredentialData.CredentialID)+len(publicKeyU2F))
	signingBase = append(signingBase, 0x00)
	signingBase = append(signingBase, authData.RPIDHash...)
	signingBase = append(signingBase, clientDataHash...)
	signingBase = append(signingBase, authData.AttestedCredentialData.CredentialID...)
	signingBase = append(signingBase, publicKeyU2F...)

	digest := sha256.Sum256(signingBase)
	if !ecdsa.VerifyASN1(leafKey, digest[:], stmt.Sig) {
		return nil, errors.New("fido-u2f: signature verification failed")
	}
	return &attestationResult{Type: "basic", TrustPath: [][]byte{leafDER}}, nil
}

// u2fRawPoint renders an EC2 COSE key as the 65-byte uncompressed U2F
// point encoding 0x04 || X || Y.
func u2fRawPoint(key *COSEKey) ([]byte, error) {
	if key.Kty != coseKtyEC2 {
		return nil, errors.New("fido-u2f: credential public key is not EC2")
	}
	x := new(big.Int).SetBytes(key.X)
	y := new(big.Int).SetBytes(key.Y)
	out := make([]byte, 65)
	out[0] = 0x04
	x.FillBytes(out[1:33])
	y.FillBytes(out[33:65])
	return out, nil
}
