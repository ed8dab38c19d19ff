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
	"crypto/dsa"
	"crypto/rsa"
	"math/big"

	"github.com/cert-manager/sslcontext/pkg/derasn1"
)

// ParsePKCS8PrivateKey decodes a PrivateKeyInfo (PKCS#8, unencrypted):
// SEQUENCE{ version INTEGER, algorithm AlgorithmIdentifier, privateKey
// OCTET STRING }, dispatching on the algorithm OID to the RSA or DSA raw
// key grammar carried inside the OCTET STRING.
func ParsePKCS8PrivateKey(der []byte) (interface{}, error) {
	obj, err := derasn1.Decode(der)
	if err != nil {
		return nil, certInvalid("PrivateKeyInfo is not valid DER", err)
	}
	if !obj.Tag.UniversalConstructed(derasn1.TagSequence) || len(obj.Children) < 3 {
		return nil, certInvalid("PrivateKeyInfo must be a SEQUENCE of 3", nil)
	}
	algID := obj.Children[1]
	if !algID.Tag.UniversalConstructed(derasn1.TagSequence) || len(algID.Children) == 0 {
		return nil, certInvalid("PrivateKeyInfo algorithm", nil)
	}
	algOID, err := derasn1.DecodeOID(algID.Children[0].Raw)
	if err != nil {
		return nil, certInvalid("PrivateKeyInfo algorithm OID", err)
	}
	keyBytes := obj.Children[2].Raw

	switch {
	case algOID.Equal(oidRSAEncryption):
		return ParseRSAPrivateKey(keyBytes)
	case algOID.Equal(oidDSA):
		var params derasn1.Object
		if len(algID.Children) == 2 {
			params = algID.Children[1]
		}
		return parseDSAPrivateKeyBody(keyBytes, params)
	default:
		return nil, certInvalid("unsupported PKCS#8 algorithm "+algOID.String(), nil)
	}
}

// ParseRSAPrivateKey decodes an RSAPrivateKey (PKCS#1):
// SEQUENCE{ version, n, e, d, p, q, dP, dQ, qInv }.
func ParseRSAPrivateKey(der []byte) (*rsa.PrivateKey, error) {
	obj, err := derasn1.Decode(der)
	if err != nil {
		return nil, certInvalid("RSAPrivateKey is not valid DER", err)
	}
	if !obj.Tag.UniversalConstructed(derasn1.TagSequence) || len(obj.Children) < 9 {
		return nil, certInvalid("RSAPrivateKey must be a SEQUENCE of 9", nil)
	}
	c := obj.Children
	key := &rsa.PrivateKey{
		PublicKey: rsa.PublicKey{
			N: new(big.Int).SetBytes(c[1].Raw),
			E: int(new(big.Int).SetBytes(c[2].Raw).Int64()),
		},
		D: new(big.Int).SetBytes(c[3].Raw),
		Primes: []*big.Int{
			new(big.Int).SetBytes(c[4].Raw),
			new(big.Int).SetBytes(c[5].Raw),
		},
	}
	key.Precompute()
	return key, nil
}

// DSAPrivateKey is the raw (version, p, q, g, pub, priv) grammar used by
// both the classic "DSA PRIVATE KEY" PEM label and PKCS#8's algorithm
// parameters plus OCTET STRING(INTEGER X) encoding.
type DSAPrivateKey struct {
	dsa.PrivateKey
}

func parseDSAPrivateKeyBody(keyBytes []byte, params derasn1.Object) (*DSAPrivateKey, error) {
	xObj, err := derasn1.Decode(keyBytes)
	if err != nil {
		return nil, certInvalid("DSA private key value", err)
	}
	x := new(big.Int).SetBytes(xObj.Raw)
	key := &DSAPrivateKey{}
	key.X = x
	if params.Tag.UniversalConstructed(derasn1.TagSequence) && len(params.Children) == 3 {
		key.P = new(big.Int).SetBytes(params.Children[0].Raw)
		key.Q = new(big.Int).SetBytes(params.Children[1].Raw)
		key.G = new(big.Int).SetBytes(params.Children[2].Raw)
	}
	return key, nil
}

// ParseDSAPrivateKey decodes the legacy "DSA PRIVATE KEY" PEM body:
// SEQUENCE{ version INTEGER, p, q, g, pub, priv }.
func ParseDSAPrivateKey(der []byte) (*DSAPrivateKey, error) {
	obj, err := derasn1.Decode(der)
	if err != nil {
		return nil, certInvalid("DSAPrivateKey is not valid DER", err)
	}
	if !obj.Tag.UniversalConstructed(derasn1.TagSequence) || len(obj.Children) < 6 {
		return nil, certInvalid("DSAPrivateKey must be a SEQUENCE of 6", nil)
	}
	c := obj.Children
	key := &DSAPrivateKey{}
	key.P = new(big.Int).SetBytes(c[1].Raw)
	key.Q = new(big.Int).SetBytes(c[2].Raw)
	key.G = new(big.Int).SetBytes(c[3].Raw)
	key.Y = new(big.Int).SetBytes(c[4].Raw)
	key.X = new(big.Int).SetBytes(c[5].Raw)
	return key, nil
}
