package webauthn

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"errors"
	"fmt"
	"math/big"

	cbor "github.com/fxamacker/cbor/v2"
)

// COSE algorithm identifiers, https://www.iana.org/assignments/cose/cose.xhtml
const (
	AlgES256 = -7
	AlgES384 = -35
	AlgES512 = -36
	AlgRS256 = -257
	AlgRS384 = -258
	AlgRS512 = -259
)

const (
	coseKtyEC2 = 2
	coseKtyRSA = 3

	coseCrvP256 = 1
	coseCrvP384 = 2
	coseCrvP521 = 3
)

// parseCOSEKey decodes a COSE_Key CBOR map into a COSEKey, following the
// "N,keyasint" struct-tag convention for decoding integer-keyed CBOR maps.
func parseCOSEKey(raw []byte) (*COSEKey, error) {
	var kty struct {
		Kty int64 `cbor:"1,keyasint"`
	}
	if err := cbor.Unmarshal(raw, &kty); err != nil {
		return nil, fmt.Errorf("cbor.Unmarshal kty: %w", err)
	}
	switch kty.Kty {
	case coseKtyEC2:
		var ec struct {
			Kty   int64  `cbor:"1,keyasint"`
			Alg   int64  `cbor:"3,keyasint"`
			Curve int64  `cbor:"-1,keyasint"`
			X     []byte `cbor:"-2,keyasint"`
			Y     []byte `cbor:"-3,keyasint"`
		}
		if err := cbor.Unmarshal(raw, &ec); err != nil {
			return nil, err
		}
		return &COSEKey{Kty: ec.Kty, Alg: ec.Alg, Curve: ec.Curve, X: ec.X, Y: ec.Y}, nil
	case coseKtyRSA:
		var rs struct {
			Kty int64  `cbor:"1,keyasint"`
			Alg int64  `cbor:"3,keyasint"`
			N   []byte `cbor:"-1,keyasint"`
			E   int64  `cbor:"-2,keyasint"`
		}
		if err := cbor.Unmarshal(raw, &rs); err != nil {
			return nil, err
		}
		return &COSEKey{Kty: rs.Kty, Alg: rs.Alg, N: rs.N, E: rs.E}, nil
	default:
		return nil, fmt.Errorf("webauthn: unsupported COSE key type %d", kty.Kty)
	}
}

func coseKeyToPublicKey(k *COSEKey) (crypto.PublicKey, error) {
	switch k.Kty {
	case coseKtyEC2:
		curve, err := coseCurve(k.Curve)
		if err != nil {
			return nil, err
		}
		pub := &ecdsa.PublicKey{
			Curve: curve,
			X:     new(big.Int).SetBytes(k.X),
			Y:     new(big.Int).SetBytes(k.Y),
		}
		if !curve.IsOnCurve(pub.X, pub.Y) {
			return nil, errors.New("webauthn: EC2 public key is not on curve")
		}
		return pub, nil
	case coseKtyRSA:
		return &rsa.PublicKey{
			N: new(big.Int).SetBytes(k.N),
			E: int(k.E),
		}, nil
	default:
		return nil, fmt.Errorf("webauthn: unsupported COSE key type %d", k.Kty)
	}
}

// publicKeyToCOSEKey wraps a crypto.PublicKey (e.g. from an x509 leaf
// certificate) into the COSEKey shape verifyCOSESignature expects,
// tagged with the algorithm the attestation statement declared.
func publicKeyToCOSEKey(pub crypto.PublicKey, alg int64) (*COSEKey, error) {
	switch p := pub.(type) {
	case *ecdsa.PublicKey:
		crv, err := curveToCOSE(p.Curve)
		if err != nil {
			return nil, err
		}
		return &COSEKey{Kty: coseKtyEC2, Alg: alg, Curve: crv, X: p.X.Bytes(), Y: p.Y.Bytes()}, nil
	case *rsa.PublicKey:
		return &COSEKey{Kty: coseKtyRSA, Alg: alg, N: p.N.Bytes(), E: int64(p.E)}, nil
	default:
		return nil, fmt.Errorf("webauthn: unsupported leaf certificate key type %T", pub)
	}
}

func curveToCOSE(c elliptic.Curve) (int64, error) {
	switch c {
	case elliptic.P256():
		return coseCrvP256, nil
	case elliptic.P384():
		return coseCrvP384, nil
	case elliptic.P521():
		return coseCrvP521, nil
	default:
		return 0, errors.New("webauthn: unsupported EC curve")
	}
}

func coseCurve(c int64) (elliptic.Curve, error) {
	switch c {
	case coseCrvP256:
		return elliptic.P256(), nil
	case coseCrvP384:
		return elliptic.P384(), nil
	case coseCrvP521:
		return elliptic.P521(), nil
	default:
		return nil, fmt.Errorf("webauthn: unsupported EC2 curve %d", c)
	}
}

func coseHash(alg int64) (crypto.Hash, error) {
	switch alg {
	case AlgES256, AlgRS256:
		return crypto.SHA256, nil
	case AlgES384, AlgRS384:
		return crypto.SHA384, nil
	case AlgES512, AlgRS512:
		return crypto.SHA512, nil
	default:
		return 0, fmt.Errorf("webauthn: unsupported algorithm %d", alg)
	}
}

// verifyCOSESignature checks signature over signed using the given
// COSE_Key, dispatching on key type and algorithm across the EC2 curves
// (P-256/P-384/P-521) and RSA hash variants (RS256/RS384/RS512).
func verifyCOSESignature(key *COSEKey, signed, signature []byte) error {
	h, err := coseHash(key.Alg)
	if err != nil {
		return err
	}
	hasher := h.New()
	hasher.Write(signed)
	digest := hasher.Sum(nil)

	pub, err := coseKeyToPublicKey(key)
	if err != nil {
		return err
	}
	switch p := pub.(type) {
	case *ecdsa.PublicKey:
		if key.Alg != AlgES256 && key.Alg != AlgES384 && key.Alg != AlgES512 {
			return fmt.Errorf("webauthn: algorithm %d does not match EC2 key", key.Alg)
		}
		if !ecdsa.VerifyASN1(p, digest, signature) {
			return errors.New("webauthn: invalid ECDSA signature")
		}
		return nil
	case *rsa.PublicKey:
		if key.Alg != AlgRS256 && key.Alg != AlgRS384 && key.Alg != AlgRS512 {
			return fmt.Errorf("webauthn: algorithm %d does not match RSA key", key.Alg)
		}
		if err := rsa.VerifyPKCS1v15(p, h, digest, signature); err != nil {
			return fmt.Errorf("webauthn: invalid RSA signature: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("webauthn: unsupported public key type %T", pub)
	}
}
