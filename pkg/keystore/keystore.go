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

// Package keystore loads KeyMaterial from PKCS#12, JKS-like and JCEKS-like
// keystore containers under a dual-password model: a store password that
// protects the container's integrity digest, and an optional, separate
// key password that protects each private-key entry (defaulting to the
// store password when absent; PKCS#12 containers are decoded with the
// store password alone). BKS-like containers are recognized and
// refused, since no BKS-compatible provider is wired into this module.
package keystore

import (
	"crypto/rsa"
	"crypto/x509"
	"errors"
	"strings"

	"github.com/cert-manager/sslcontext/pkg/sslerr"
	"github.com/cert-manager/sslcontext/pkg/x509lite"
)

// Entry is one alias's worth of KeyMaterial: the private key and the
// certificate chain that certifies it, chain[0] being the end-entity
// certificate whose public key corresponds to the private key. The chain
// need not reach a root; it may be partial.
type Entry struct {
	Alias      string
	PrivateKey interface{}
	CertChain  []*x509lite.Certificate
}

// KeyMaterial is the result of loading a keystore container: zero or more
// aliased entries, indexed for lookup by alias.
type KeyMaterial struct {
	entries []Entry
	byAlias map[string]Entry
}

// Entries returns every loaded entry, private-key or trusted-cert alike.
func (km KeyMaterial) Entries() []Entry { return append([]Entry{}, km.entries...) }

// ByAlias returns the entry stored under alias, if any.
func (km KeyMaterial) ByAlias(alias string) (Entry, bool) {
	e, ok := km.byAlias[alias]
	return e, ok
}

// PrivateKeyEntries returns only the entries that carry a private key,
// filtering out trusted-certificate-only aliases.
func (km KeyMaterial) PrivateKeyEntries() []Entry {
	out := make([]Entry, 0, len(km.entries))
	for _, e := range km.entries {
		if e.PrivateKey != nil {
			out = append(out, e)
		}
	}
	return out
}

type containerKind int

const (
	containerPKCS12 containerKind = iota
	containerJKS
	containerJCEKS
	containerBKS
)

const (
	magicJKS   = 0xFEEDFEED
	magicJCEKS = 0xCECECECE
)

func detectContainer(data []byte) containerKind {
	if len(data) >= 4 {
		magic := uint32(data[0])<<24 | uint32(data[1])<<16 | uint32(data[2])<<8 | uint32(data[3])
		switch magic {
		case magicJKS:
			return containerJKS
		case magicJCEKS:
			return containerJCEKS
		}
	}
	if len(data) >= 1 && data[0] == 0x30 {
		return containerPKCS12
	}
	return containerBKS
}

// Load parses a keystore container of any recognized type. keyPassword may
// be nil, in which case storePassword is reused for every private-key
// entry, matching the dual-password model's "absent" case. The separate
// key password applies to JKS-like and JCEKS-like containers only: a
// PKCS#12 container is decoded with storePassword alone and keyPassword is
// ignored.
func Load(data []byte, storePassword string, keyPassword *string) (KeyMaterial, error) {
	effectiveKeyPassword := storePassword
	if keyPassword != nil {
		effectiveKeyPassword = *keyPassword
	}

	switch detectContainer(data) {
	case containerPKCS12:
		return loadPKCS12(data, storePassword)
	case containerJKS, containerJCEKS:
		return loadJKSLike(data, storePassword, effectiveKeyPassword)
	default:
		return KeyMaterial{}, &sslerr.UnsupportedContainerError{Container: "BKS-like"}
	}
}

// FromEntries builds a KeyMaterial directly from already-assembled
// entries, bypassing container decoding. Useful for composing KeyMaterial
// in memory (tests, or callers that built a tls certificate some other
// way) without round-tripping through a keystore byte format.
func FromEntries(entries ...Entry) KeyMaterial {
	return indexEntries(entries)
}

func indexEntries(entries []Entry) KeyMaterial {
	byAlias := make(map[string]Entry, len(entries))
	for _, e := range entries {
		byAlias[e.Alias] = e
	}
	return KeyMaterial{entries: entries, byAlias: byAlias}
}

func parseDERChain(raws [][]byte) ([]*x509lite.Certificate, error) {
	chain := make([]*x509lite.Certificate, 0, len(raws))
	for _, raw := range raws {
		cert, err := x509lite.ParseCertificate(raw)
		if err != nil {
			return nil, err
		}
		chain = append(chain, cert)
	}
	return chain, nil
}

// reparseStdlibKey re-derives a key produced by a stdlib-facing decoder
// (go-pkcs12 hands back concrete key types such as *rsa.PrivateKey, not
// DER) through x509lite's own PKCS#8 parser, so Entry.PrivateKey has the
// same concrete type regardless of which container it came from. That
// parser takes RSA and DSA keys only, so an ECDSA or Ed25519 key fails
// here with a CertificateInvalidError.
func reparseStdlibKey(key interface{}) (interface{}, error) {
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, &sslerr.MalformedContainerError{Container: "PKCS#12", Reason: "private key is not a recognized type: " + err.Error()}
	}
	return x509lite.ParsePKCS8PrivateKey(der)
}

// validateKeyMatchesCert runs the lightweight consistency check every
// private-key entry must pass: RSA modulus equality, or DSA parameter
// (p, q, g) equality, between the private key and chain[0]'s public key.
// A mismatched pair means the container is malformed, not just
// inconvenient, so it fails loading rather than producing an Entry nothing
// can use to terminate a handshake.
func validateKeyMatchesCert(container string, entry Entry) error {
	if len(entry.CertChain) == 0 {
		return nil
	}
	leafPub := entry.CertChain[0].PublicKey

	switch key := entry.PrivateKey.(type) {
	case *rsa.PrivateKey:
		if leafPub.Modulus == nil || key.N.Cmp(leafPub.Modulus) != 0 {
			return &sslerr.MalformedContainerError{Container: container, Reason: "private key modulus does not match certificate public key"}
		}
	case *x509lite.DSAPrivateKey:
		if leafPub.P == nil || leafPub.Q == nil || leafPub.G == nil ||
			key.P.Cmp(leafPub.P) != 0 || key.Q.Cmp(leafPub.Q) != 0 || key.G.Cmp(leafPub.G) != 0 {
			return &sslerr.MalformedContainerError{Container: container, Reason: "private key parameters do not match certificate public key"}
		}
	}
	return nil
}

func isWrongPassword(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "password") ||
		strings.Contains(msg, "mac") ||
		strings.Contains(msg, "digest") ||
		errors.Is(err, errIncorrectPassword)
}
