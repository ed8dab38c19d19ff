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

package sslconf

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cert-manager/sslcontext/internal/platform"
	"github.com/cert-manager/sslcontext/pkg/keystore"
	"github.com/cert-manager/sslcontext/pkg/sslerr"
	"github.com/cert-manager/sslcontext/pkg/trustchain"
	"github.com/cert-manager/sslcontext/pkg/x509lite"
)

func genIdentity(t *testing.T, cn string, dnsNames []string) keystore.Entry {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: cn},
		DNSNames:     dnsNames,
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	cert, err := x509lite.ParseCertificate(der)
	require.NoError(t, err)
	return keystore.Entry{Alias: cn, PrivateKey: key, CertChain: []*x509lite.Certificate{cert}}
}

func startRawServer(t *testing.T, provider platform.Provider, tlsCtx *platform.Context) (host string, port int, stop func()) {
	t.Helper()
	factory, err := provider.GetServerSocketFactory(tlsCtx)
	require.NoError(t, err)
	server, err := provider.NewServerSocket(factory)
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		tlsConn := tls.Server(conn, server.Config())
		defer tlsConn.Close()
		_ = tlsConn.Handshake()
	}()

	h, p, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	portNum, err := strconv.Atoi(p)
	require.NoError(t, err)
	return h, portNum, func() { ln.Close() }
}

// TestTrustAllSocketSucceedsAndChainRetrievable is scenario S3.
func TestTrustAllSocketSucceedsAndChainRetrievable(t *testing.T) {
	ctx := context.Background()
	provider := platform.NewCryptoTLSProvider()

	serverIdentity := genIdentity(t, "self-signed.example.com", []string{"self-signed.example.com"})
	serverConf := New(provider)
	require.NoError(t, serverConf.SetKeyMaterial(ctx, keystore.FromEntries(serverIdentity)))
	serverConf.SetDoVerify(false)

	tlsCtx, err := serverConf.ensureBuilt(ctx)
	require.NoError(t, err)
	host, port, stop := startRawServer(t, provider, tlsCtx)
	defer stop()

	clientConf := New(provider)
	require.NoError(t, clientConf.SetTrustMaterial(ctx, trustchain.TrustAll()))
	clientConf.SetDoVerify(false)

	socket, err := clientConf.CreateSocket(ctx, host, port, "", 0)
	require.NoError(t, err)
	defer socket.Close()

	require.NotEmpty(t, clientConf.CurrentServerChain())
}

// TestHostnameMismatchClosesSocket is scenario S4 exercised at the
// sslconf level (pkg/hostverify already covers the matching rules in
// isolation).
func TestHostnameMismatchClosesSocket(t *testing.T) {
	ctx := context.Background()
	provider := platform.NewCryptoTLSProvider()

	serverIdentity := genIdentity(t, "other.example.com", nil)
	serverConf := New(provider)
	require.NoError(t, serverConf.SetKeyMaterial(ctx, keystore.FromEntries(serverIdentity)))
	serverConf.SetDoVerify(false)

	tlsCtx, err := serverConf.ensureBuilt(ctx)
	require.NoError(t, err)
	host, port, stop := startRawServer(t, provider, tlsCtx)
	defer stop()

	clientConf := New(provider)
	require.NoError(t, clientConf.SetTrustMaterial(ctx, trustchain.TrustAll()))
	require.Equal(t, "127.0.0.1", host)

	_, err = clientConf.CreateSocket(ctx, "localhost", port, "", 0)
	require.Error(t, err)
	var mismatch *sslerr.HostnameMismatchError
	require.ErrorAs(t, err, &mismatch)
}
