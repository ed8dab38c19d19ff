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
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// genSelfSigned uses crypto/x509 purely as a fixture generator (the way
// cmctl's own tests synthesize certs in pkg/inspect/secret/secret_test.go);
// the resulting DER is then parsed entirely through this package's own
// decoder, never through crypto/x509 itself.
func genSelfSigned(t *testing.T, dnsNames []string, commonName string) ([]byte, *rsa.PrivateKey) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(42),
		Subject:      pkix.Name{CommonName: commonName},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		DNSNames:     dnsNames,
		IsCA:         true,
		KeyUsage:     x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	return der, key
}

func TestParseCertificateBasicFields(t *testing.T) {
	der, key := genSelfSigned(t, []string{"a.example.com", "b.example.com"}, "test-cn")

	cert, err := ParseCertificate(der)
	require.NoError(t, err)
	require.Equal(t, "test-cn", cert.Subject.CommonName())
	require.Equal(t, big.NewInt(42), cert.SerialNumber)
	require.ElementsMatch(t, []string{"a.example.com", "b.example.com"}, cert.SAN.DNSNames)
	require.True(t, cert.NotBefore.Before(cert.NotAfter))
	require.NotNil(t, cert.PublicKey.Modulus)
	require.Equal(t, 0, cert.PublicKey.Modulus.Cmp(key.N))
}

func TestParsePKCS8RSAPrivateKeyRoundTrip(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)

	parsed, err := ParsePKCS8PrivateKey(der)
	require.NoError(t, err)
	rsaKey, ok := parsed.(*rsa.PrivateKey)
	require.True(t, ok)
	require.Equal(t, 0, rsaKey.N.Cmp(key.N))
}

func TestParseRSAPrivateKeyPKCS1(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der := x509.MarshalPKCS1PrivateKey(key)

	parsed, err := ParseRSAPrivateKey(der)
	require.NoError(t, err)
	require.Equal(t, 0, parsed.N.Cmp(key.N))
}

func TestParseCertificateNoSANHasNoDNSNames(t *testing.T) {
	der, _ := genSelfSigned(t, nil, "no-san-cn")
	cert, err := ParseCertificate(der)
	require.NoError(t, err)
	require.Empty(t, cert.SAN.DNSNames)
	require.Equal(t, "no-san-cn", cert.Subject.CommonName())
}
