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
	"net"

	"github.com/cert-manager/sslcontext/pkg/derasn1"
)

// subjectAltName GeneralName CHOICE tag numbers this library understands
// (context-specific, implicit, primitive unless noted).
const (
	sanTagDNSName    = 2
	sanTagIPAddress  = 7
)

// SubjectAltName holds the GeneralName entry types spec §6 calls out:
// dNSName and iPAddress. Other GeneralName choices are ignored.
type SubjectAltName struct {
	DNSNames    []string
	IPAddresses []net.IP
}

func parseExtensions(obj derasn1.Object) (san SubjectAltName, raw map[string][]byte, err error) {
	if !obj.Tag.UniversalConstructed(derasn1.TagSequence) {
		return san, nil, certInvalid("Extensions must be a SEQUENCE", nil)
	}
	raw = make(map[string][]byte)
	for _, ext := range obj.Children {
		if !ext.Tag.UniversalConstructed(derasn1.TagSequence) || len(ext.Children) < 2 {
			return san, nil, certInvalid("Extension must be a SEQUENCE", nil)
		}
		oidObj := ext.Children[0]
		oid, err := derasn1.DecodeOID(oidObj.Raw)
		if err != nil {
			return san, nil, certInvalid("extension OID", err)
		}
		// value is the last child: either OCTET STRING directly, or
		// preceded by an optional BOOLEAN critical flag.
		valueObj := ext.Children[len(ext.Children)-1]
		raw[oid.String()] = valueObj.Raw

		if oid.Equal(oidSubjectAltName) {
			inner, err := derasn1.Decode(valueObj.Raw)
			if err != nil {
				return san, nil, certInvalid("subjectAltName content", err)
			}
			parsed, err := parseGeneralNames(inner)
			if err != nil {
				return san, nil, err
			}
			san = parsed
		}
	}
	return san, raw, nil
}

func parseGeneralNames(obj derasn1.Object) (SubjectAltName, error) {
	var san SubjectAltName
	if !obj.Tag.Constructed || obj.Tag.Number != derasn1.TagSequence || obj.Tag.Class != derasn1.ClassUniversal {
		return san, certInvalid("GeneralNames must be a SEQUENCE", nil)
	}
	for _, name := range obj.Children {
		if name.Tag.Class != derasn1.ClassContext {
			continue
		}
		switch name.Tag.Number {
		case sanTagDNSName:
			san.DNSNames = append(san.DNSNames, string(name.Raw))
		case sanTagIPAddress:
			san.IPAddresses = append(san.IPAddresses, net.IP(name.Raw))
		}
	}
	return san, nil
}
