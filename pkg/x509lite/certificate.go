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

package x509lite

import (
	"math/big"
	"time"

	"github.com/cert-manager/sslcontext/pkg/derasn1"
)

// Certificate is the subset of an X.509 TBSCertificate spec §3 requires:
// version, serial, issuer/subject names, validity window,
// subjectPublicKeyInfo and the subjectAltName extension.
type Certificate struct {
	Raw          []byte
	Version      int
	SerialNumber *big.Int
	Issuer       Name
	Subject      Name
	NotBefore    time.Time
	NotAfter     time.Time
	PublicKey    PublicKey
	SAN          SubjectAltName
	Extensions   map[string][]byte

	// TBSRaw is the re-encoded tbsCertificate, byte-for-byte what the
	// issuer signed. SignatureAlgorithm and Signature are the outer
	// Certificate SEQUENCE's own two remaining fields. Together they let
	// a caller holding the issuer's PublicKey verify that the issuer
	// actually produced this certificate, rather than merely matching
	// names.
	TBSRaw             []byte
	SignatureAlgorithm derasn1.OID
	Signature          []byte
}

// PublicKey is the decoded subjectPublicKeyInfo, enough to run the
// lightweight key/cert consistency check spec §4.4 requires (RSA modulus
// equality, DSA parameter equality) without depending on crypto/rsa's own
// parser.
type PublicKey struct {
	Algorithm derasn1.OID
	// RSA
	Modulus  *big.Int
	Exponent *big.Int
	// DSA
	P, Q, G, Y *big.Int
}

// ParseCertificate decodes a DER-encoded X.509 Certificate.
func ParseCertificate(der []byte) (*Certificate, error) {
	obj, err := derasn1.Decode(der)
	if err != nil {
		return nil, certInvalid("not a valid DER SEQUENCE", err)
	}
	if !obj.Tag.UniversalConstructed(derasn1.TagSequence) || len(obj.Children) < 3 {
		return nil, certInvalid("Certificate must be a SEQUENCE of 3", nil)
	}
	tbs := obj.Children[0]
	if !tbs.Tag.UniversalConstructed(derasn1.TagSequence) {
		return nil, certInvalid("TBSCertificate must be a SEQUENCE", nil)
	}

	sigAlgOID, sigBytes, err := parseSignature(obj)
	if err != nil {
		return nil, err
	}
	tbsRaw, err := derasn1.Encode(tbs)
	if err != nil {
		return nil, certInvalid("re-encoding tbsCertificate", err)
	}

	cert := &Certificate{
		Raw:                der,
		Extensions:         map[string][]byte{},
		TBSRaw:             tbsRaw,
		SignatureAlgorithm: sigAlgOID,
		Signature:          sigBytes,
	}
	idx := 0
	children := tbs.Children

	if idx < len(children) && isContextConstructed(children[idx], 0) {
		inner := children[idx].Children
		if len(inner) != 1 {
			return nil, certInvalid("version must wrap one INTEGER", nil)
		}
		v, err := inner[0].Int()
		if err != nil {
			return nil, certInvalid("version", err)
		}
		cert.Version = int(v)
		idx++
	}

	if idx >= len(children) {
		return nil, certInvalid("missing serialNumber", nil)
	}
	cert.SerialNumber = decodeBigInt(children[idx].Raw)
	idx++

	idx++ // tbsCertificate's own signature AlgorithmIdentifier; the outer copy parsed into cert.SignatureAlgorithm is authoritative

	if idx >= len(children) {
		return nil, certInvalid("missing issuer", nil)
	}
	issuer, err := parseName(children[idx])
	if err != nil {
		return nil, err
	}
	cert.Issuer = issuer
	idx++

	if idx >= len(children) {
		return nil, certInvalid("missing validity", nil)
	}
	notBefore, notAfter, err := parseValidity(children[idx])
	if err != nil {
		return nil, err
	}
	cert.NotBefore, cert.NotAfter = notBefore, notAfter
	idx++

	if idx >= len(children) {
		return nil, certInvalid("missing subject", nil)
	}
	subject, err := parseName(children[idx])
	if err != nil {
		return nil, err
	}
	cert.Subject = subject
	idx++

	if idx >= len(children) {
		return nil, certInvalid("missing subjectPublicKeyInfo", nil)
	}
	pub, err := parsePublicKey(children[idx])
	if err != nil {
		return nil, err
	}
	cert.PublicKey = pub
	idx++

	for idx < len(children) && children[idx].Tag.Class == derasn1.ClassContext &&
		(children[idx].Tag.Number == 1 || children[idx].Tag.Number == 2) {
		idx++ // issuerUniqueID / subjectUniqueID: unused by this library
	}

	if idx < len(children) && isContextConstructed(children[idx], 3) {
		if len(children[idx].Children) != 1 {
			return nil, certInvalid("extensions must wrap one SEQUENCE", nil)
		}
		san, raw, err := parseExtensions(children[idx].Children[0])
		if err != nil {
			return nil, err
		}
		cert.SAN = san
		cert.Extensions = raw
	}

	return cert, nil
}

// parseSignature decodes the outer Certificate SEQUENCE's signatureAlgorithm
// and signatureValue fields (obj.Children[1] and obj.Children[2]).
func parseSignature(obj derasn1.Object) (derasn1.OID, []byte, error) {
	algID := obj.Children[1]
	if !algID.Tag.UniversalConstructed(derasn1.TagSequence) || len(algID.Children) == 0 {
		return derasn1.OID{}, nil, certInvalid("signature AlgorithmIdentifier must be a SEQUENCE", nil)
	}
	oid, err := derasn1.DecodeOID(algID.Children[0].Raw)
	if err != nil {
		return derasn1.OID{}, nil, certInvalid("signature algorithm OID", err)
	}
	sig, _, err := obj.Children[2].BitString()
	if err != nil {
		return derasn1.OID{}, nil, certInvalid("signatureValue", err)
	}
	return oid, sig, nil
}

func isContextConstructed(obj derasn1.Object, number int) bool {
	return obj.Tag.Class == derasn1.ClassContext && obj.Tag.Constructed && obj.Tag.Number == number
}

// decodeBigInt decodes a DER INTEGER's big-endian two's complement content
// into an arbitrary-precision big.Int (serial numbers routinely exceed 64
// bits).
func decodeBigInt(raw []byte) *big.Int {
	if len(raw) == 0 {
		return new(big.Int)
	}
	if raw[0]&0x80 == 0 {
		return new(big.Int).SetBytes(raw)
	}
	magnitude := make([]byte, len(raw))
	carry := byte(1)
	for i := len(raw) - 1; i >= 0; i-- {
		v := ^raw[i] + carry
		if carry == 1 && v == 0 {
			carry = 1
		} else {
			carry = 0
		}
		magnitude[i] = v
	}
	return new(big.Int).Neg(new(big.Int).SetBytes(magnitude))
}

func parseValidity(obj derasn1.Object) (notBefore, notAfter time.Time, err error) {
	if !obj.Tag.UniversalConstructed(derasn1.TagSequence) || len(obj.Children) != 2 {
		return time.Time{}, time.Time{}, certInvalid("Validity must be a SEQUENCE of 2", nil)
	}
	notBefore, err = parseTime(obj.Children[0])
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	notAfter, err = parseTime(obj.Children[1])
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return notBefore, notAfter, nil
}

func parseTime(obj derasn1.Object) (time.Time, error) {
	switch obj.Tag.Number {
	case derasn1.TagUTCTime:
		t, err := time.Parse("060102150405Z0700", string(obj.Raw))
		if err != nil {
			return time.Time{}, certInvalid("UTCTime", err)
		}
		// two-digit years: 00-49 -> 20xx, 50-99 -> 19xx, per RFC 5280.
		// time.Parse itself puts 69-99 in 19xx and 00-68 in 20xx.
		if t.Year() >= 2050 {
			t = t.AddDate(-100, 0, 0)
		}
		return t, nil
	case derasn1.TagGeneralizedTime:
		t, err := time.Parse("20060102150405Z0700", string(obj.Raw))
		if err != nil {
			return time.Time{}, certInvalid("GeneralizedTime", err)
		}
		return t, nil
	default:
		return time.Time{}, certInvalid("time value must be UTCTime or GeneralizedTime", nil)
	}
}

func parsePublicKey(obj derasn1.Object) (PublicKey, error) {
	if !obj.Tag.UniversalConstructed(derasn1.TagSequence) || len(obj.Children) != 2 {
		return PublicKey{}, certInvalid("SubjectPublicKeyInfo must be a SEQUENCE of 2", nil)
	}
	algID := obj.Children[0]
	if !algID.Tag.UniversalConstructed(derasn1.TagSequence) || len(algID.Children) == 0 {
		return PublicKey{}, certInvalid("AlgorithmIdentifier must be a SEQUENCE", nil)
	}
	algOID, err := derasn1.DecodeOID(algID.Children[0].Raw)
	if err != nil {
		return PublicKey{}, certInvalid("public key algorithm OID", err)
	}

	bits, _, err := obj.Children[1].BitString()
	if err != nil {
		return PublicKey{}, certInvalid("subjectPublicKey", err)
	}

	pub := PublicKey{Algorithm: algOID}
	switch {
	case algOID.Equal(oidRSAEncryption):
		keyObj, err := derasn1.Decode(bits)
		if err != nil || !keyObj.Tag.UniversalConstructed(derasn1.TagSequence) || len(keyObj.Children) != 2 {
			return PublicKey{}, certInvalid("RSAPublicKey", err)
		}
		pub.Modulus = new(big.Int).SetBytes(keyObj.Children[0].Raw)
		pub.Exponent = new(big.Int).SetBytes(keyObj.Children[1].Raw)
	case algOID.Equal(oidDSA):
		if len(algID.Children) == 2 {
			params := algID.Children[1]
			if params.Tag.UniversalConstructed(derasn1.TagSequence) && len(params.Children) == 3 {
				pub.P = new(big.Int).SetBytes(params.Children[0].Raw)
				pub.Q = new(big.Int).SetBytes(params.Children[1].Raw)
				pub.G = new(big.Int).SetBytes(params.Children[2].Raw)
			}
		}
		yObj, err := derasn1.Decode(bits)
		if err == nil {
			pub.Y = new(big.Int).SetBytes(yObj.Raw)
		}
	}
	return pub, nil
}
