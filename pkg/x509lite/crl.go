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

// RevokedCertificate is one entry of a CRL's revokedCertificates list.
type RevokedCertificate struct {
	SerialNumber   *big.Int
	RevocationDate time.Time
}

// CRL is the decoded subset of a CertificateList spec §3 requires: issuer,
// thisUpdate/nextUpdate, and the revoked-serial list.
type CRL struct {
	Raw         []byte
	Issuer      Name
	ThisUpdate  time.Time
	NextUpdate  time.Time // zero value if absent
	Revoked     []RevokedCertificate
}

// IsRevoked reports whether serial appears in the revoked list.
func (c *CRL) IsRevoked(serial *big.Int) bool {
	for _, r := range c.Revoked {
		if r.SerialNumber.Cmp(serial) == 0 {
			return true
		}
	}
	return false
}

// ParseCRL decodes a DER-encoded CertificateList.
func ParseCRL(der []byte) (*CRL, error) {
	obj, err := derasn1.Decode(der)
	if err != nil {
		return nil, certInvalid("CertificateList is not valid DER", err)
	}
	if !obj.Tag.UniversalConstructed(derasn1.TagSequence) || len(obj.Children) < 3 {
		return nil, certInvalid("CertificateList must be a SEQUENCE of 3", nil)
	}
	tbs := obj.Children[0]
	if !tbs.Tag.UniversalConstructed(derasn1.TagSequence) {
		return nil, certInvalid("TBSCertList must be a SEQUENCE", nil)
	}

	crl := &CRL{Raw: der}
	children := tbs.Children
	idx := 0

	if idx < len(children) && children[idx].Tag.Universal(derasn1.TagInteger) {
		idx++ // optional version; the only INTEGER that can appear here
	}

	if idx >= len(children) {
		return nil, certInvalid("missing signature AlgorithmIdentifier", nil)
	}
	idx++ // signature AlgorithmIdentifier

	if idx >= len(children) {
		return nil, certInvalid("missing issuer", nil)
	}
	issuer, err := parseName(children[idx])
	if err != nil {
		return nil, err
	}
	crl.Issuer = issuer
	idx++

	if idx >= len(children) {
		return nil, certInvalid("missing thisUpdate", nil)
	}
	thisUpdate, err := parseTime(children[idx])
	if err != nil {
		return nil, err
	}
	crl.ThisUpdate = thisUpdate
	idx++

	if idx < len(children) && isTimeTag(children[idx]) {
		nextUpdate, err := parseTime(children[idx])
		if err != nil {
			return nil, err
		}
		crl.NextUpdate = nextUpdate
		idx++
	}

	if idx < len(children) && children[idx].Tag.UniversalConstructed(derasn1.TagSequence) {
		for _, entry := range children[idx].Children {
			if !entry.Tag.UniversalConstructed(derasn1.TagSequence) || len(entry.Children) < 2 {
				return nil, certInvalid("revokedCertificates entry malformed", nil)
			}
			serial := decodeBigInt(entry.Children[0].Raw)
			revDate, err := parseTime(entry.Children[1])
			if err != nil {
				return nil, err
			}
			crl.Revoked = append(crl.Revoked, RevokedCertificate{SerialNumber: serial, RevocationDate: revDate})
		}
	}

	return crl, nil
}

func isTimeTag(obj derasn1.Object) bool {
	return obj.Tag.Class == derasn1.ClassUniversal &&
		(obj.Tag.Number == derasn1.TagUTCTime || obj.Tag.Number == derasn1.TagGeneralizedTime)
}
