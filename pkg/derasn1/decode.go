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

import "github.com/cert-manager/sslcontext/pkg/sslerr"

func malformed(reason string) error {
	return &sslerr.MalformedDERError{Reason: reason}
}

func malformedAt(reason string, offset int) error {
	return sslerr.NewMalformedDER(reason, offset)
}

// Decode consumes exactly one DER TLV from b and fails if trailing bytes
// remain.
func Decode(b []byte) (Object, error) {
	obj, n, err := decodeOne(b, 0)
	if err != nil {
		return Object{}, err
	}
	if n != len(b) {
		return Object{}, malformedAt("trailing bytes after top-level value", n)
	}
	return obj, nil
}

// decodeOne decodes one TLV starting at b[0:], returning the object and the
// number of bytes consumed. base is only used to produce offsets in errors.
func decodeOne(b []byte, base int) (Object, int, error) {
	tag, tagLen, err := decodeTag(b, base)
	if err != nil {
		return Object{}, 0, err
	}
	length, lenLen, err := decodeLength(b[tagLen:], base+tagLen)
	if err != nil {
		return Object{}, 0, err
	}
	contentStart := tagLen + lenLen
	contentEnd := contentStart + length
	if contentEnd > len(b) {
		return Object{}, 0, malformedAt("declared length exceeds available bytes", base+contentStart)
	}
	content := b[contentStart:contentEnd]
	obj := Object{Tag: tag, Raw: content}
	if tag.Constructed {
		children, err := decodeChildren(content, base+contentStart)
		if err != nil {
			return Object{}, 0, err
		}
		obj.Children = children
	}
	return obj, contentEnd, nil
}

func decodeChildren(content []byte, base int) ([]Object, error) {
	var children []Object
	pos := 0
	for pos < len(content) {
		child, n, err := decodeOne(content[pos:], base+pos)
		if err != nil {
			return nil, err
		}
		children = append(children, child)
		pos += n
	}
	return children, nil
}

// decodeTag parses the identifier octets starting at b[0]. base is added to
// offsets reported in errors.
func decodeTag(b []byte, base int) (Tag, int, error) {
	if len(b) == 0 {
		return Tag{}, 0, malformedAt("unexpected end of input reading tag", base)
	}
	first := b[0]
	class := Class(first >> 6 & 0x3)
	constructed := first&0x20 != 0
	number := int(first & 0x1f)
	consumed := 1
	if number == 0x1f {
		// high-tag-number form: base-128 continuation bytes follow.
		number = 0
		for {
			if consumed >= len(b) {
				return Tag{}, 0, malformedAt("unexpected end of input reading high tag number", base+consumed)
			}
			b2 := b[consumed]
			number = number<<7 | int(b2&0x7f)
			consumed++
			if b2&0x80 == 0 {
				break
			}
		}
	}
	return Tag{Class: class, Constructed: constructed, Number: number}, consumed, nil
}

// decodeLength parses the length octets starting at b[0]. Indefinite length
// (0x80) is rejected: this codec is DER-only.
func decodeLength(b []byte, base int) (length int, consumed int, err error) {
	if len(b) == 0 {
		return 0, 0, malformedAt("unexpected end of input reading length", base)
	}
	first := b[0]
	if first&0x80 == 0 {
		return int(first), 1, nil
	}
	n := int(first & 0x7f)
	if n == 0 {
		return 0, 0, malformedAt("indefinite length is not permitted in DER", base)
	}
	if n > 8 {
		return 0, 0, malformedAt("length octet count too large", base)
	}
	if len(b) < 1+n {
		return 0, 0, malformedAt("unexpected end of input reading long-form length", base)
	}
	length = 0
	for i := 0; i < n; i++ {
		length = length<<8 | int(b[1+i])
	}
	if length < 0 {
		return 0, 0, malformedAt("length overflows a signed integer", base)
	}
	return length, 1 + n, nil
}
