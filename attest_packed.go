package webauthn

import (
	"crypto/x509"
	"errors"

	cbor "github.com/fxamacker/cbor/v2"
)

// packedVerifier implements the "packed" attestation statement format.
// ECDAA attestation is not implemented; any statement naming an ECDAA
// key ID is rejected rather than verified.
// https://w3c.github.io/webauthn/#sctn-packed-attestation
type packedVerifier struct{}

type packedStmt struct {
	Alg        int64              `cbor:"alg"`
	Sig        []byte             `cbor:"sig"`
	X5C        []cbor.RawMessage  `cbor:"x5c"`
	ECDAAKeyID []byte             `cbor:"ecdaaKeyId"`
}

func (packedVerifier) Verify(rp *RelyingParty, attStmt []byte, authData AuthenticatorData, clientDataHash []byte) (*attestationResult, error) {
	var stmt packedStmt
	if err := cbor.Unmarshal(attStmt, &stmt); err != nil {
		return nil, err
	}
	if len(stmt.ECDAAKeyID) != 0 {
		return nil, errors.New("packed: ECDAA attestation is not supported")
	}

	signed := make([]byte, 0, len(authData.Raw)+len(clientDataHash))
	signed = append(signed, authData.Raw...)
	signed = append(signed, clientDataHash...)

	if len(stmt.X5C) > 0 {
		var leafDER []byte
		if err := cbor.Unmarshal(stmt.X5C[0], &leafDER); err != nil {
			return nil, err
		}
		leaf, err := x509.ParseCertificate(leafDER)
		if err != nil {
			return nil, err
		}
		key, err := publicKeyToCOSEKey(leaf.PublicKey, stmt.Alg)
		if err != nil {
			return nil, err
		}
		if err := verifyCOSESignature(key, signed, stmt.Sig); err != nil {
			return nil, err
		}
		chain := make([][]byte, len(stmt.X5C))
		for i, c := range stmt.X5C {
			var der []byte
			if err := cbor.Unmarshal(c, &der); err != nil {
				return nil, err
			}
			chain[i] = der
		}
		return &attestationResult{Type: "basic", TrustPath: chain}, nil
	}

	// Self attestation: the signature is verified with the credential's
	// own public key, and its declared alg must match the statement's.
	if authData.AttestedCredentialData == nil {
		return nil, errors.New("packed: missing attested credential data")
	}
	key, err := parseCOSEKey(authData.AttestedCredentialData.COSEKeyRaw)
	if err != nil {
		return nil, err
	}
	if key.Alg != stmt.Alg {
		return nil, errors.New("packed: self attestation alg mismatch")
	}
	if err := verifyCOSESignature(key, signed, stmt.Sig); err != nil {
		return nil, err
	}
	return &attestationResult{Type: "self"}, nil
}
