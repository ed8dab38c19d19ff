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

package hostverify

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cert-manager/sslcontext/pkg/x509lite"
)

func genCert(t *testing.T, cn string, dnsNames []string, ips []net.IP) *x509lite.Certificate {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: cn},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		DNSNames:     dnsNames,
		IPAddresses:  ips,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	cert, err := x509lite.ParseCertificate(der)
	require.NoError(t, err)
	return cert
}

func TestWildcardMatchesSingleLeftmostLabel(t *testing.T) {
	cert := genCert(t, "ignored-when-san-present", []string{"*.example.com"}, nil)
	require.NoError(t, Verify(cert, "a.example.com"))
	require.Error(t, Verify(cert, "example.com"))
	require.Error(t, Verify(cert, "a.b.example.com"))
}

func TestCNUsedOnlyWhenNoSAN(t *testing.T) {
	cert := genCert(t, "www.example.com", nil, nil)
	require.NoError(t, Verify(cert, "www.example.com"))
	require.Error(t, Verify(cert, "other.example.com"))
}

func TestSANPresentIgnoresCN(t *testing.T) {
	cert := genCert(t, "www.example.com", []string{"san-only.example.com"}, nil)
	require.Error(t, Verify(cert, "www.example.com"))
	require.NoError(t, Verify(cert, "san-only.example.com"))
}

func TestIPSANMatchesExactByteEquality(t *testing.T) {
	cert := genCert(t, "ignored", nil, []net.IP{net.ParseIP("10.0.0.1")})
	require.NoError(t, Verify(cert, "10.0.0.1"))
	require.Error(t, Verify(cert, "10.0.0.2"))
}

func TestHostnameMismatchError(t *testing.T) {
	cert := genCert(t, "other.example.com", nil, nil)
	err := Verify(cert, "www.example.com")
	require.Error(t, err)
	require.Contains(t, err.Error(), "www.example.com")
}
