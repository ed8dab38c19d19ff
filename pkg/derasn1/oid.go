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
	"strconv"
	"strings"

	"github.com/cert-manager/sslcontext/pkg/sslerr"
)

// OID is an object identifier: a non-empty sequence of non-negative
// integers. It is immutable once constructed; equality is component-wise.
type OID []int64

// String renders the dot-separated textual form, e.g. "1.2.840.113549".
func (o OID) String() string {
	parts := make([]string, len(o))
	for i, c := range o {
		parts[i] = strconv.FormatInt(c, 10)
	}
	return strings.Join(parts, ".")
}

// Equal reports component-wise equality.
func (o OID) Equal(other OID) bool {
	if len(o) != len(other) {
		return false
	}
	for i := range o {
		if o[i] != other[i] {
			return false
		}
	}
	return true
}

// ParseOID tokenizes a dot-separated textual OID, e.g. "1.2.840.113549",
// into its integer components. It performs no validation of individual
// component magnitude beyond non-negativity.
func ParseOID(text string) (OID, error) {
	tok := newOIDTokenizer(text)
	var out OID
	for {
		v, ok, err := tok.next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil, &sslerr.MalformedDERError{Reason: "empty OID text"}
	}
	return out, nil
}

// oidTokenizer lazily splits a dot-separated textual OID into integer
// tokens, signalling end of input via next's ok return rather than
// pre-splitting the whole string.
type oidTokenizer struct {
	text string
	pos  int
	done bool
}

func newOIDTokenizer(text string) *oidTokenizer {
	return &oidTokenizer{text: text}
}

func (t *oidTokenizer) next() (value int64, ok bool, err error) {
	if t.done {
		return 0, false, nil
	}
	if t.pos >= len(t.text) {
		t.done = true
		return 0, false, nil
	}
	start := t.pos
	for t.pos < len(t.text) && t.text[t.pos] != '.' {
		t.pos++
	}
	field := t.text[start:t.pos]
	if t.pos < len(t.text) {
		t.pos++ // skip '.'
	} else {
		t.done = true
	}
	if field == "" {
		return 0, false, &sslerr.MalformedDERError{Reason: "empty OID component"}
	}
	n, parseErr := strconv.ParseInt(field, 10, 64)
	if parseErr != nil || n < 0 {
		return 0, false, &sslerr.MalformedDERError{Reason: "non-numeric OID component " + strconv.Quote(field)}
	}
	return n, true, nil
}

// EncodeOID produces the DER content octets for an OID: the first two
// components combined as 40*a+b, then each remaining component base-128
// encoded with the continuation bit set on all but the final octet.
func EncodeOID(o OID) ([]byte, error) {
	if len(o) < 2 {
		return nil, &sslerr.MalformedDERError{Reason: "OID needs at least two components"}
	}
	a, b := o[0], o[1]
	if a < 0 || a > 2 {
		return nil, &sslerr.MalformedDERError{Reason: "OID first component must be 0, 1 or 2"}
	}
	if a < 2 && (b < 0 || b > 39) {
		return nil, &sslerr.MalformedDERError{Reason: "OID second component must be 0..39 when first is 0 or 1"}
	}
	var out []byte
	out = appendBase128(out, a*40+b)
	for _, c := range o[2:] {
		if c < 0 {
			return nil, &sslerr.MalformedDERError{Reason: "OID components must be non-negative"}
		}
		out = appendBase128(out, c)
	}
	return out, nil
}

func appendBase128(out []byte, v int64) []byte {
	if v == 0 {
		return append(out, 0)
	}
	var digits []byte
	for v > 0 {
		digits = append(digits, byte(v&0x7f))
		v >>= 7
	}
	for i := len(digits) - 1; i >= 0; i-- {
		b := digits[i]
		if i != 0 {
			b |= 0x80
		}
		out = append(out, b)
	}
	return out
}

// DecodeOID parses the DER content octets of an OBJECT IDENTIFIER value.
func DecodeOID(content []byte) (OID, error) {
	if len(content) == 0 {
		return nil, &sslerr.MalformedDERError{Reason: "empty OID content"}
	}
	var components []int64
	var v int64
	started := false
	for i, b := range content {
		started = true
		v = v<<7 | int64(b&0x7f)
		if b&0x80 == 0 {
			components = append(components, v)
			v = 0
			started = false
		} else if i == len(content)-1 {
			return nil, &sslerr.MalformedDERError{Reason: "OID truncated mid-component"}
		}
	}
	if started {
		return nil, &sslerr.MalformedDERError{Reason: "OID truncated mid-component"}
	}
	if len(components) == 0 {
		return nil, &sslerr.MalformedDERError{Reason: "OID has no components"}
	}
	first := components[0]
	var a, b int64
	switch {
	case first < 40:
		a, b = 0, first
	case first < 80:
		a, b = 1, first-40
	default:
		a, b = 2, first-80
	}
	out := make(OID, 0, len(components)+1)
	out = append(out, a, b)
	out = append(out, components[1:]...)
	return out, nil
}
