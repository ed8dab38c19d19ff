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

package derasn1

import (
	"bytes"
	"sort"
)

// Encode produces the canonical DER encoding of obj: definite length,
// minimal-form length octets, BOOLEAN TRUE as 0xFF, and (DER's one
// encode-time normalization) constructed SET children sorted into
// ascending lexicographic order by their own encoded bytes. Decode never
// re-sorts, so decode(encode(decode(b))) is idempotent even when b itself
// had an out-of-order SET.
func Encode(obj Object) ([]byte, error) {
	content, err := encodeContent(obj)
	if err != nil {
		return nil, err
	}
	var out bytes.Buffer
	if err := encodeTag(&out, obj.Tag); err != nil {
		return nil, err
	}
	encodeLength(&out, len(content))
	out.Write(content)
	return out.Bytes(), nil
}

func encodeContent(obj Object) ([]byte, error) {
	if !obj.Tag.Constructed || obj.Children == nil {
		return obj.Raw, nil
	}
	encodedChildren := make([][]byte, len(obj.Children))
	for i, child := range obj.Children {
		b, err := Encode(child)
		if err != nil {
			return nil, err
		}
		encodedChildren[i] = b
	}
	if obj.Tag.UniversalConstructed(TagSet) {
		sort.Slice(encodedChildren, func(i, j int) bool {
			return bytes.Compare(encodedChildren[i], encodedChildren[j]) < 0
		})
	}
	var buf bytes.Buffer
	for _, b := range encodedChildren {
		buf.Write(b)
	}
	return buf.Bytes(), nil
}

func encodeTag(out *bytes.Buffer, tag Tag) error {
	first := byte(tag.Class&0x3) << 6
	if tag.Constructed {
		first |= 0x20
	}
	if tag.Number < 0x1f {
		first |= byte(tag.Number)
		out.WriteByte(first)
		return nil
	}
	first |= 0x1f
	out.WriteByte(first)
	out.Write(appendBase128HighTag(tag.Number))
	return nil
}

// appendBase128HighTag encodes a high tag number: base-128, continuation
// bit set on all but the final octet (same shape as OID subidentifiers,
// but tag numbers are never negative and need no 40*a+b folding).
func appendBase128HighTag(n int) []byte {
	if n == 0 {
		return []byte{0}
	}
	var digits []byte
	for n > 0 {
		digits = append(digits, byte(n&0x7f))
		n >>= 7
	}
	out := make([]byte, len(digits))
	for i, d := range digits {
		b := d
		if i != 0 {
			b |= 0x80
		}
		out[len(digits)-1-i] = b
	}
	return out
}

func encodeLength(out *bytes.Buffer, length int) {
	if length < 0x80 {
		out.WriteByte(byte(length))
		return
	}
	var lenBytes []byte
	n := length
	for n > 0 {
		lenBytes = append([]byte{byte(n & 0xff)}, lenBytes...)
		n >>= 8
	}
	out.WriteByte(0x80 | byte(len(lenBytes)))
	out.Write(lenBytes)
}
