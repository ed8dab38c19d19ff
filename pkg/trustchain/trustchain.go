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

// Package trustchain is the TrustMaterial/TrustChain aggregator: a set of
// trust anchors and CRLs, with a distinguished "trust everything" sentinel
// that short-circuits validation regardless of what else has been added.
package trustchain

import (
	"bytes"
	"io"
	"math/big"

	"github.com/cert-manager/sslcontext/pkg/pemframe"
	"github.com/cert-manager/sslcontext/pkg/sslerr"
	"github.com/cert-manager/sslcontext/pkg/x509lite"
)

// anchorKey identifies a trust anchor by (subject DN, public key) per
// spec §3, so adding the same anchor through two different TrustMaterial
// instances is idempotent.
type anchorKey struct {
	subject string
	keyHash string
}

// TrustMaterial is one loaded set of trust anchors plus the CRLs that
// apply to them. The zero value is an empty, non-TRUST_ALL material.
type TrustMaterial struct {
	trustAll bool
	anchors  map[anchorKey]*x509lite.Certificate
	crls     []*x509lite.CRL
}

// TrustAll returns the sentinel TrustMaterial that accepts any peer
// certificate. It is a singleton tagged variant, not a nullable cert set:
// TrustChain.Add special-cases it so the short-circuit is total.
func TrustAll() TrustMaterial {
	return TrustMaterial{trustAll: true}
}

// FromAnchors builds a TrustMaterial from already-parsed trust anchors.
func FromAnchors(anchors ...*x509lite.Certificate) TrustMaterial {
	tm := TrustMaterial{anchors: make(map[anchorKey]*x509lite.Certificate, len(anchors))}
	for _, a := range anchors {
		tm.anchors[keyFor(a)] = a
	}
	return tm
}

// FromPEM reads a PEM-armored CA bundle (one or more CERTIFICATE blocks).
func FromPEM(r io.Reader) (TrustMaterial, error) {
	frames, err := pemframe.DecodeReader(r)
	if err != nil {
		return TrustMaterial{}, err
	}
	tm := TrustMaterial{anchors: make(map[anchorKey]*x509lite.Certificate)}
	for _, f := range frames {
		if f.Label != pemframe.LabelCertificate {
			continue
		}
		cert, err := x509lite.ParseCertificate(f.DER)
		if err != nil {
			return TrustMaterial{}, err
		}
		tm.anchors[keyFor(cert)] = cert
	}
	if len(tm.anchors) == 0 {
		return TrustMaterial{}, &sslerr.CertificateInvalidError{Reason: "PEM input contained no CERTIFICATE blocks"}
	}
	return tm, nil
}

// WithCRLs attaches CRLs to a TrustMaterial, returning a new value (the
// receiver is never mutated in place, matching the immutable-once-loaded
// contract spec §4.3 describes for loader-produced TrustMaterial).
func (tm TrustMaterial) WithCRLs(crls ...*x509lite.CRL) TrustMaterial {
	out := tm
	out.crls = append(append([]*x509lite.CRL{}, tm.crls...), crls...)
	return out
}

func keyFor(cert *x509lite.Certificate) anchorKey {
	var keyBytes []byte
	if cert.PublicKey.Modulus != nil {
		keyBytes = cert.PublicKey.Modulus.Bytes()
	} else if cert.PublicKey.Y != nil {
		keyBytes = cert.PublicKey.Y.Bytes()
	}
	return anchorKey{subject: string(cert.Subject.Raw().Raw), keyHash: string(keyBytes)}
}

// TrustChain is a logical union of zero or more TrustMaterial instances.
// Once TRUST_ALL has been added, the chain behaves as "accept any peer
// cert" regardless of subsequent Add calls.
type TrustChain struct {
	trustAll bool
	anchors  map[anchorKey]*x509lite.Certificate
	crls     []*x509lite.CRL
}

// Add unions material into the chain; if material is the TRUST_ALL
// sentinel, the chain becomes TRUST_ALL and its anchors and CRLs are
// dropped. Once the chain is TRUST_ALL, further Adds are ignored. Anchors
// are a set, so re-adding the same anchor is a no-op.
func (tc *TrustChain) Add(material TrustMaterial) {
	if tc.trustAll {
		return
	}
	if material.trustAll {
		tc.trustAll = true
		tc.anchors = nil
		tc.crls = nil
		return
	}
	if tc.anchors == nil {
		tc.anchors = make(map[anchorKey]*x509lite.Certificate)
	}
	for k, v := range material.anchors {
		tc.anchors[k] = v
	}
	tc.crls = append(tc.crls, material.crls...)
}

// ContainsTrustAll reports whether TRUST_ALL has been added to this chain.
func (tc *TrustChain) ContainsTrustAll() bool { return tc.trustAll }

// Anchors returns every trust anchor currently in the chain. Empty (never
// nil-panic) when the chain is empty or is TRUST_ALL.
func (tc *TrustChain) Anchors() []*x509lite.Certificate {
	out := make([]*x509lite.Certificate, 0, len(tc.anchors))
	for _, a := range tc.anchors {
		out = append(out, a)
	}
	return out
}

// CRLs returns every CRL attached to any constituent TrustMaterial.
func (tc *TrustChain) CRLs() []*x509lite.CRL {
	return append([]*x509lite.CRL{}, tc.crls...)
}

// Validate reports whether leaf was issued by a trust anchor in the chain
// (direct-issuer check only; spec scopes full path building to the
// platform TLS engine, this chain's job is anchor membership + CRL status).
// A candidate anchor is found by subject/issuer DN, then confirmed by
// verifying leaf's signature against that anchor's public key: a DN match
// alone would let a forged leaf with a spoofed issuer field pass as long
// as its stated issuer happened to equal a trusted anchor's subject.
// TRUST_ALL always succeeds. check_crl controls whether a revoked serial
// or an unavailable CRL issued by the matched anchor fails validation.
func (tc *TrustChain) Validate(leaf *x509lite.Certificate, checkCRL bool) error {
	if tc.trustAll {
		return nil
	}
	if len(tc.anchors) == 0 {
		return &sslerr.TrustFailureError{Reason: "trust chain has no anchors"}
	}
	var matchedIssuer *x509lite.Certificate
	for _, anchor := range tc.anchors {
		if bytes.Equal(anchor.Subject.Raw().Raw, leaf.Issuer.Raw().Raw) {
			matchedIssuer = anchor
			break
		}
	}
	if matchedIssuer == nil {
		return &sslerr.TrustFailureError{Reason: "no trust anchor matches certificate issuer"}
	}
	if err := verifySignedBy(leaf, matchedIssuer); err != nil {
		return err
	}
	if !checkCRL {
		return nil
	}
	return tc.checkRevocation(matchedIssuer, leaf.SerialNumber)
}

func (tc *TrustChain) checkRevocation(issuer *x509lite.Certificate, serial *big.Int) error {
	var issuerCRL *x509lite.CRL
	for _, crl := range tc.crls {
		if bytes.Equal(crl.Issuer.Raw().Raw, issuer.Subject.Raw().Raw) {
			issuerCRL = crl
			break
		}
	}
	if issuerCRL == nil {
		return &sslerr.TrustFailureError{Reason: "crl_unavailable"}
	}
	if issuerCRL.IsRevoked(serial) {
		return &sslerr.TrustFailureError{Reason: "revoked"}
	}
	return nil
}
