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

package keystore

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"testing"
	"time"

	jks "github.com/pavlo-v-chernykh/keystore-go/v4"
	"github.com/stretchr/testify/require"
	"software.sslmate.com/src/go-pkcs12"
)

func genSelfSigned(t *testing.T, cn string) (*rsa.PrivateKey, *x509.Certificate) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(7),
		Subject:      pkix.Name{CommonName: cn},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return key, cert
}

func TestPKCS12LoadOneRSAKeyAndCert(t *testing.T) {
	key, cert := genSelfSigned(t, "s1-leaf")
	data, err := pkcs12.Modern.Encode(key, cert, nil, "changeit")
	require.NoError(t, err)

	km, err := Load(data, "changeit", nil)
	require.NoError(t, err)

	entries := km.PrivateKeyEntries()
	require.Len(t, entries, 1)
	require.Len(t, entries[0].CertChain, 1)

	rsaKey, ok := entries[0].PrivateKey.(*rsa.PrivateKey)
	require.True(t, ok)
	require.Equal(t, 0, rsaKey.N.Cmp(key.N))
	require.Equal(t, 0, entries[0].CertChain[0].PublicKey.Modulus.Cmp(key.N))
}

func TestPKCS12WrongPasswordFails(t *testing.T) {
	key, cert := genSelfSigned(t, "s1-leaf-wrong")
	data, err := pkcs12.Modern.Encode(key, cert, nil, "changeit")
	require.NoError(t, err)

	_, err = Load(data, "not-changeit", nil)
	require.Error(t, err)
}

func buildJKSFixture(t *testing.T, storePassword, keyPassword string) []byte {
	t.Helper()
	key, cert := genSelfSigned(t, "s2-leaf")
	pkcs8, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)

	store := jks.New()
	err = store.SetPrivateKeyEntry("s2-alias", jks.PrivateKeyEntry{
		CreationTime: time.Now(),
		PrivateKey:   pkcs8,
		CertificateChain: []jks.Certificate{
			{Type: "X509", Content: cert.Raw},
		},
	}, []byte(keyPassword))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, store.Store(&buf, []byte(storePassword)))
	return buf.Bytes()
}

func TestJKSLikeDualPasswordStoreOnlyFailsKeyPassword(t *testing.T) {
	data := buildJKSFixture(t, "changeit", "itchange")

	_, err := Load(data, "changeit", nil)
	require.Error(t, err)
}

func TestJKSLikeDualPasswordBothSucceeds(t *testing.T) {
	data := buildJKSFixture(t, "changeit", "itchange")
	keyPassword := "itchange"

	km, err := Load(data, "changeit", &keyPassword)
	require.NoError(t, err)

	entries := km.PrivateKeyEntries()
	require.Len(t, entries, 1)
	require.Equal(t, "s2-alias", entries[0].Alias)
}

func TestPKCS12RejectsMismatchedKeyAndCert(t *testing.T) {
	_, certA := genSelfSigned(t, "s1-mismatched-cert")
	keyB, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	data, err := pkcs12.Modern.Encode(keyB, certA, nil, "changeit")
	require.NoError(t, err)

	_, err = Load(data, "changeit", nil)
	require.Error(t, err)
}

func TestJKSLikeRejectsMismatchedKeyAndCert(t *testing.T) {
	_, certA := genSelfSigned(t, "s2-mismatched-cert")
	keyB, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	pkcs8, err := x509.MarshalPKCS8PrivateKey(keyB)
	require.NoError(t, err)

	store := jks.New()
	err = store.SetPrivateKeyEntry("s2-alias", jks.PrivateKeyEntry{
		CreationTime: time.Now(),
		PrivateKey:   pkcs8,
		CertificateChain: []jks.Certificate{
			{Type: "X509", Content: certA.Raw},
		},
	}, []byte("itchange"))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, store.Store(&buf, []byte("changeit")))

	keyPassword := "itchange"
	_, err = Load(buf.Bytes(), "changeit", &keyPassword)
	require.Error(t, err)
}

func TestBKSLikeRefused(t *testing.T) {
	unknown := []byte{0x00, 0x00, 0x00, 0x02, 0xde, 0xad, 0xbe, 0xef}
	_, err := Load(unknown, "whatever", nil)
	require.Error(t, err)
}
