package webauthn

import (
	"crypto/sha256"
	"crypto/x509"
	"errors"
)

// defaultCrypto is the stock Crypto implementation. CheckCertPath uses
// crypto/x509 directly; certificate-chain verification has no natural
// third-party substitute in the stdlib's own domain.
type defaultCrypto struct{}

func (defaultCrypto) Hash(data []byte) [32]byte {
	return sha256.Sum256(data)
}

func (defaultCrypto) VerifySignature(key *COSEKey, signed, signature []byte) error {
	return verifyCOSESignature(key, signed, signature)
}

// CheckCertPath verifies that chain[0] (the leaf) chains up to chain[len-1]
// using the intermediates in between. It does not check against any
// system or RP-specific root store; callers that need anchored trust
// should consult MetadataService instead, as CheckCertPath only confirms
// internal chain consistency.
func (defaultCrypto) CheckCertPath(chain [][]byte) error {
	if len(chain) == 0 {
		return errors.New("webauthn: empty certificate chain")
	}
	certs := make([]*x509.Certificate, len(chain))
	for i, der := range chain {
		c, err := x509.ParseCertificate(der)
		if err != nil {
			return err
		}
		certs[i] = c
	}
	if len(certs) == 1 {
		return nil
	}
	intermediates := x509.NewCertPool()
	for _, c := range certs[1 : len(certs)-1] {
		intermediates.AddCert(c)
	}
	roots := x509.NewCertPool()
	roots.AddCert(certs[len(certs)-1])
	opts := x509.VerifyOptions{
		Intermediates: intermediates,
		Roots:         roots,
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	}
	_, err := certs[0].Verify(opts)
	return err
}
