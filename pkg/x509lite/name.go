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
	"strings"

	"github.com/cert-manager/sslcontext/pkg/derasn1"
)

// Name is a parsed X.509 RDNSequence: an ordered list of relative
// distinguished names, each a set of (attribute OID, string value) pairs.
type Name struct {
	raw derasn1.Object
	cns []string // every commonName attribute value, in RDN sequence order
}

// CommonName returns the most-specific commonName attribute: by
// convention the last one encountered walking the RDN sequence in its
// encoded order.
func (n Name) CommonName() string {
	if len(n.cns) == 0 {
		return ""
	}
	return n.cns[len(n.cns)-1]
}

// Raw returns the undecoded RDNSequence DER object, for re-encoding (e.g.
// when building issuerAndSerialNumber fields) without lossy round-tripping
// through the decoded attribute values.
func (n Name) Raw() derasn1.Object { return n.raw }

func parseName(obj derasn1.Object) (Name, error) {
	if !obj.Tag.UniversalConstructed(derasn1.TagSequence) {
		return Name{}, certInvalid("Name must be a SEQUENCE of RDNs", nil)
	}
	name := Name{raw: obj}
	for _, rdn := range obj.Children {
		if !rdn.Tag.UniversalConstructed(derasn1.TagSet) {
			return Name{}, certInvalid("RDN must be a SET", nil)
		}
		for _, atv := range rdn.Children {
			if !atv.Tag.UniversalConstructed(derasn1.TagSequence) || len(atv.Children) != 2 {
				return Name{}, certInvalid("AttributeTypeAndValue must be a SEQUENCE of 2", nil)
			}
			oidObj, valueObj := atv.Children[0], atv.Children[1]
			if !oidObj.Tag.Universal(derasn1.TagOID) {
				continue
			}
			oid, err := derasn1.DecodeOID(oidObj.Raw)
			if err != nil {
				return Name{}, certInvalid("attribute OID", err)
			}
			if oid.Equal(oidCommonName) {
				name.cns = append(name.cns, decodeDirectoryString(valueObj))
			}
		}
	}
	return name, nil
}

// decodeDirectoryString renders a DirectoryString CHOICE (PrintableString,
// UTF8String, T61String, ...) as a Go string. Unknown string tags fall
// back to their raw bytes, which is correct for the ASCII-safe subset this
// library needs (CN matching, display).
func decodeDirectoryString(obj derasn1.Object) string {
	return strings.TrimSpace(string(obj.Raw))
}
