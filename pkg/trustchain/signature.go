/*
Copyright 2020 The cert-manager Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package trustchain

import (
	"crypto"
	"crypto/dsa"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"math/big"

	"github.com/cert-manager/sslcontext/pkg/derasn1"
	"github.com/cert-manager/sslcontext/pkg/sslerr"
	"github.com/cert-manager/sslcontext/pkg/x509lite"
)

// Signature algorithm OIDs this package knows how to verify. A DN match
// alone only says a certificate *claims* to be issued by an anchor;
// verifySignedBy proves it by checking the signature against the anchor's
// public key.
var (
	oidSHA1WithRSA   = derasn1.OID{1, 2, 840, 113549, 1, 1, 5}
	oidSHA256WithRSA = derasn1.OID{1, 2, 840, 113549, 1, 1, 11}
	oidSHA384WithRSA = derasn1.OID{1, 2, 840, 113549, 1, 1, 12}
	oidSHA512WithRSA = derasn1.OID{1, 2, 840, 113549, 1, 1, 13}
	oidDSAWithSHA1   = derasn1.OID{1, 2, 840, 10040, 4, 3}
	oidDSAWithSHA256 = derasn1.OID{2, 16, 840, 1, 101, 3, 4, 3, 2}
)

// verifySignedBy reports whether leaf's signature was produced by issuer's
// private key over leaf's own tbsCertificate bytes. DN matching (done by
// the caller before this runs) only identifies a *candidate* issuer; this
// is what actually proves the candidate signed the certificate.
func verifySignedBy(leaf, issuer *x509lite.Certificate) error {
	hashed, hash, err := hashTBS(leaf.SignatureAlgorithm, leaf.TBSRaw)
	if err != nil {
		return err
	}

	switch {
	case issuer.PublicKey.Modulus != nil && issuer.PublicKey.Exponent != nil:
		pub := &rsa.PublicKey{N: issuer.PublicKey.Modulus, E: int(issuer.PublicKey.Exponent.Int64())}
		if err := rsa.VerifyPKCS1v15(pub, hash, hashed, leaf.Signature); err != nil {
			return &sslerr.TrustFailureError{Reason: "certificate signature does not verify against the matched anchor's public key"}
		}
		return nil
	case issuer.PublicKey.Y != nil:
		r, s, err := unmarshalDSASignature(leaf.Signature)
		if err != nil {
			return err
		}
		pub := &dsa.PublicKey{
			Parameters: dsa.Parameters{P: issuer.PublicKey.P, Q: issuer.PublicKey.Q, G: issuer.PublicKey.G},
			Y:          issuer.PublicKey.Y,
		}
		if !dsa.Verify(pub, hashed, r, s) {
			return &sslerr.TrustFailureError{Reason: "certificate signature does not verify against the matched anchor's public key"}
		}
		return nil
	default:
		return &sslerr.TrustFailureError{Reason: "matched anchor's public key algorithm is not supported for signature verification"}
	}
}

// hashTBS digests tbs with the hash named by alg, the certificate's own
// signatureAlgorithm AlgorithmIdentifier.
func hashTBS(alg derasn1.OID, tbs []byte) ([]byte, crypto.Hash, error) {
	switch {
	case alg.Equal(oidSHA1WithRSA), alg.Equal(oidDSAWithSHA1):
		sum := sha1.Sum(tbs)
		return sum[:], crypto.SHA1, nil
	case alg.Equal(oidSHA256WithRSA), alg.Equal(oidDSAWithSHA256):
		sum := sha256.Sum256(tbs)
		return sum[:], crypto.SHA256, nil
	case alg.Equal(oidSHA384WithRSA):
		sum := sha512.Sum384(tbs)
		return sum[:], crypto.SHA384, nil
	case alg.Equal(oidSHA512WithRSA):
		sum := sha512.Sum512(tbs)
		return sum[:], crypto.SHA512, nil
	default:
		return nil, 0, &sslerr.TrustFailureError{Reason: "certificate signature algorithm " + alg.String() + " is not supported"}
	}
}

// unmarshalDSASignature decodes a Dss-Sig-Value SEQUENCE { r, s INTEGER }.
func unmarshalDSASignature(sig []byte) (r, s *big.Int, err error) {
	obj, decErr := derasn1.Decode(sig)
	if decErr != nil || !obj.Tag.UniversalConstructed(derasn1.TagSequence) || len(obj.Children) != 2 {
		return nil, nil, &sslerr.TrustFailureError{Reason: "malformed DSA Dss-Sig-Value"}
	}
	return new(big.Int).SetBytes(obj.Children[0].Raw), new(big.Int).SetBytes(obj.Children[1].Raw), nil
}
