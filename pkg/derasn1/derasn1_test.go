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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOIDTextRoundTrip(t *testing.T) {
	o, err := ParseOID("1.2.840.113549")
	require.NoError(t, err)
	require.Equal(t, "1.2.840.113549", o.String())

	content, err := EncodeOID(o)
	require.NoError(t, err)
	require.Equal(t, []byte{0x2A, 0x86, 0x48, 0x86, 0xF7, 0x0D}, content)

	back, err := DecodeOID(content)
	require.NoError(t, err)
	require.True(t, o.Equal(back))
}

func TestOIDFirstComponentTwoAllowsLargeSecond(t *testing.T) {
	o := OID{2, 999, 3}
	content, err := EncodeOID(o)
	require.NoError(t, err)
	back, err := DecodeOID(content)
	require.NoError(t, err)
	require.True(t, o.Equal(back))
}

func TestBooleanCanonicalEncoding(t *testing.T) {
	b, err := Encode(Boolean(true))
	require.NoError(t, err)
	require.Equal(t, []byte{0x01, 0x01, 0xFF}, b)

	b, err = Encode(Boolean(false))
	require.NoError(t, err)
	require.Equal(t, []byte{0x01, 0x01, 0x00}, b)
}

func TestDecodeRejectsTrailingBytes(t *testing.T) {
	obj, _ := Encode(Boolean(true))
	_, err := Decode(append(obj, 0x00))
	require.Error(t, err)
}

func TestDecodeRejectsIndefiniteLength(t *testing.T) {
	_, err := Decode([]byte{0x30, 0x80, 0x00, 0x00})
	require.Error(t, err)
}

func TestSequenceRoundTrip(t *testing.T) {
	seq := Sequence(Integer(3), Boolean(true), OctetString([]byte("hi")))
	encoded, err := Encode(seq)
	require.NoError(t, err)

	decoded, err := Decode(encoded)
	require.NoError(t, err)
	require.Len(t, decoded.Children, 3)

	n, err := decoded.Children[0].Int()
	require.NoError(t, err)
	require.Equal(t, int64(3), n)

	bval, err := decoded.Children[1].Bool()
	require.NoError(t, err)
	require.True(t, bval)

	require.Equal(t, []byte("hi"), decoded.Children[2].Raw)
}

func TestSetEncodingSortsChildrenOnEncode(t *testing.T) {
	// Children deliberately out of DER order; Encode must sort them.
	set := Set(OctetString([]byte{0x02}), OctetString([]byte{0x01}))
	encoded, err := Encode(set)
	require.NoError(t, err)

	sortedFirst := Set(OctetString([]byte{0x01}), OctetString([]byte{0x02}))
	encodedSorted, err := Encode(sortedFirst)
	require.NoError(t, err)

	require.True(t, bytes.Equal(encoded, encodedSorted))
}

func TestDecodeDoesNotReSortSet(t *testing.T) {
	set := Set(OctetString([]byte{0x02}), OctetString([]byte{0x01}))
	encoded, err := Encode(set)
	require.NoError(t, err)

	decoded, err := Decode(encoded)
	require.NoError(t, err)
	// Post-sort DER order is [0x01, 0x02]; decode must preserve that order
	// rather than re-deriving it, so a second encode is a no-op.
	require.Equal(t, []byte{0x01}, decoded.Children[0].Raw)
	require.Equal(t, []byte{0x02}, decoded.Children[1].Raw)

	reEncoded, err := Encode(decoded)
	require.NoError(t, err)
	require.True(t, bytes.Equal(encoded, reEncoded))
}

func TestIntegerRoundTrip(t *testing.T) {
	for _, v := range []int64{0, 1, -1, 127, 128, -128, -129, 255, 65535, -65536} {
		obj := Integer(v)
		encoded, err := Encode(obj)
		require.NoError(t, err)
		decoded, err := Decode(encoded)
		require.NoError(t, err)
		got, err := decoded.Int()
		require.NoError(t, err)
		require.Equal(t, v, got, "value %d", v)
	}
}

func TestHighTagNumberRoundTrip(t *testing.T) {
	obj := Object{Tag: Tag{Class: ClassContext, Constructed: false, Number: 31}, Raw: []byte{0x42}}
	encoded, err := Encode(obj)
	require.NoError(t, err)
	decoded, err := Decode(encoded)
	require.NoError(t, err)
	require.Equal(t, 31, decoded.Tag.Number)
	require.Equal(t, ClassContext, decoded.Tag.Class)
}

func TestLongFormLengthIsMinimalOnEncode(t *testing.T) {
	content := bytes.Repeat([]byte{0x41}, 200)
	obj := OctetString(content)
	encoded, err := Encode(obj)
	require.NoError(t, err)
	// 200 requires one length octet (0x81) plus one byte of length value.
	require.Equal(t, byte(0x81), encoded[1])
	require.Equal(t, byte(200), encoded[2])
}
