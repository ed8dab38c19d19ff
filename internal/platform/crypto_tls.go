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

package platform

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/cert-manager/sslcontext/pkg/keystore"
	"github.com/cert-manager/sslcontext/pkg/sslerr"
	"github.com/cert-manager/sslcontext/pkg/trustchain"
	"github.com/cert-manager/sslcontext/pkg/x509lite"
)

// cryptoTLSProvider implements Provider against crypto/tls: the only TLS
// engine available in this ecosystem, standing in for "the
// platform-provided TLS primitive" spec.md §1 delegates the handshake to.
type cryptoTLSProvider struct{}

// NewCryptoTLSProvider returns the Provider implementation backed by
// crypto/tls.
func NewCryptoTLSProvider() Provider { return cryptoTLSProvider{} }

// Init builds a tls.Config from key material (as the socket's own
// certificate chain) and trust material (as a VerifyPeerCertificate
// callback, since neither TrustChain's direct-issuer check nor CRL lookup
// maps onto x509.CertPool). The handshake's own certificate verification
// is always disabled at the crypto/tls layer; trust is entirely this
// module's responsibility, applied here rather than in
// doPostConnectSocketStuff because init is where typed configuration
// failures are supposed to surface (spec.md §4.6, §7).
func (cryptoTLSProvider) Init(cfg Config, trust *trustchain.TrustChain, key *keystore.KeyMaterial) (*Context, error) {
	tlsConfig := &tls.Config{
		InsecureSkipVerify: true, //nolint:gosec // verification is done in VerifyPeerCertificate below
	}

	if key != nil {
		for _, entry := range key.PrivateKeyEntries() {
			cert, err := buildTLSCertificate(entry)
			if err != nil {
				return nil, err
			}
			tlsConfig.Certificates = append(tlsConfig.Certificates, cert)
		}
	}

	ctx := &Context{tlsConfig: tlsConfig}

	tlsConfig.VerifyPeerCertificate = func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
		chain := make([]*x509lite.Certificate, 0, len(rawCerts))
		for _, raw := range rawCerts {
			cert, err := x509lite.ParseCertificate(raw)
			if err != nil {
				return &sslerr.CertificateInvalidError{Reason: "peer certificate", Cause: err}
			}
			chain = append(chain, cert)
		}
		ctx.recordChain(chain)

		if !cfg.DoVerify || len(chain) == 0 {
			return nil
		}
		if trust == nil {
			return &sslerr.TrustFailureError{Reason: "no trust material configured"}
		}
		return trust.Validate(chain[0], cfg.CheckCRL)
	}

	return ctx, nil
}

func buildTLSCertificate(entry keystore.Entry) (tls.Certificate, error) {
	cert := tls.Certificate{}
	for _, c := range entry.CertChain {
		cert.Certificate = append(cert.Certificate, c.Raw)
	}
	signer, ok := entry.PrivateKey.(crypto.Signer)
	if !ok {
		return tls.Certificate{}, &sslerr.MalformedContainerError{
			Container: "keystore",
			Reason:    fmt.Sprintf("entry %q private key is not a crypto.Signer", entry.Alias),
		}
	}
	switch signer.(type) {
	case *rsa.PrivateKey, *ecdsa.PrivateKey, ed25519.PrivateKey:
	default:
		return tls.Certificate{}, &sslerr.MalformedContainerError{
			Container: "keystore",
			Reason:    fmt.Sprintf("entry %q private key type %T is not supported by crypto/tls", entry.Alias, entry.PrivateKey),
		}
	}
	cert.PrivateKey = signer
	return cert, nil
}

func (cryptoTLSProvider) GetSocketFactory(ctx *Context) (*SocketFactory, error) {
	if ctx == nil {
		return nil, &sslerr.PlatformFailureError{Cause: fmt.Errorf("nil context")}
	}
	return &SocketFactory{ctx: ctx}, nil
}

func (cryptoTLSProvider) GetServerSocketFactory(ctx *Context) (*ServerSocketFactory, error) {
	if ctx == nil {
		return nil, &sslerr.PlatformFailureError{Cause: fmt.Errorf("nil context")}
	}
	return &ServerSocketFactory{ctx: ctx}, nil
}

// CreateSocket produces an unconnected client socket bound to
// remoteHost:remotePort (optionally dialing from a specific local
// address); connectTimeoutMs of 0 means "use the factory default"
// (net.Dialer's own zero-value timeout, i.e. no deadline). The caller
// applies doPreConnectSocketStuff to the returned Socket's config, then
// calls Connect to actually dial and handshake.
func (cryptoTLSProvider) CreateSocket(factory *SocketFactory, remoteHost string, remotePort int, localHost string, localPort int, connectTimeoutMs int) (*Socket, error) {
	tlsConfig := factory.ctx.tlsConfig.Clone()
	tlsConfig.ServerName = remoteHost
	return &Socket{
		ctx:              factory.ctx,
		config:           tlsConfig,
		network:          "tcp",
		remoteHost:       remoteHost,
		remotePort:       remotePort,
		localHost:        localHost,
		localPort:        localPort,
		connectTimeoutMs: connectTimeoutMs,
	}, nil
}

// Connect dials and performs the TLS handshake using the Socket's config
// as mutated by doPreConnectSocketStuff.
func (cryptoTLSProvider) Connect(socket *Socket) error {
	dialer := &net.Dialer{}
	if socket.connectTimeoutMs > 0 {
		dialer.Timeout = time.Duration(socket.connectTimeoutMs) * time.Millisecond
	}
	if socket.localHost != "" || socket.localPort != 0 {
		local, err := net.ResolveTCPAddr(socket.network, net.JoinHostPort(socket.localHost, strconv.Itoa(socket.localPort)))
		if err != nil {
			return &sslerr.PlatformFailureError{Cause: err}
		}
		dialer.LocalAddr = local
	}

	addr := net.JoinHostPort(socket.remoteHost, strconv.Itoa(socket.remotePort))
	conn, err := tls.DialWithDialer(dialer, socket.network, addr, socket.config)
	if err != nil {
		return &sslerr.PlatformFailureError{Cause: err}
	}
	socket.Conn = conn

	if socket.soTimeoutMs > 0 {
		if err := conn.SetDeadline(time.Now().Add(time.Duration(socket.soTimeoutMs) * time.Millisecond)); err != nil {
			conn.Close()
			return &sslerr.PlatformFailureError{Cause: err}
		}
	}
	return nil
}

// SetSoTimeout records the I/O timeout to apply once the socket is
// connected: crypto/tls only exposes a deadline on the dialed net.Conn,
// which doesn't exist until Connect runs, so the value is stashed here and
// applied at the end of Connect as one absolute deadline (connect time plus
// ms) covering every later read and write; it is not re-armed per operation.
func (cryptoTLSProvider) SetSoTimeout(socket *Socket, ms int) error {
	socket.soTimeoutMs = ms
	return nil
}

func (cryptoTLSProvider) NewServerSocket(factory *ServerSocketFactory) (*ServerSocket, error) {
	return &ServerSocket{
		ctx:    factory.ctx,
		config: factory.ctx.tlsConfig.Clone(),
	}, nil
}

var protocolVersions = map[string]uint16{
	"TLSv1": tls.VersionTLS10,
}

// SetEnabledProtocols applies an already-validated (against
// KNOWN_PROTOCOLS_SET) protocol list to a *Socket or *ServerSocket's
// min/max version range. KNOWN_PROTOCOLS_SET includes names crypto/tls
// cannot represent at all (SSLv2, SSLv2Hello, SSLv3); requesting one of
// those is a legitimate configuration per the catalog but a PlatformFailure
// here, exactly the late-binding failure mode spec.md §7 describes for
// capabilities the catalog permits but the platform doesn't have.
func (cryptoTLSProvider) SetEnabledProtocols(target interface{}, protocols []string) error {
	var min, max uint16
	for _, name := range protocols {
		v, ok := protocolVersions[name]
		if !ok {
			return &sslerr.PlatformFailureError{Cause: fmt.Errorf("protocol %q has no crypto/tls equivalent", name)}
		}
		if min == 0 || v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	cfg, err := configOf(target)
	if err != nil {
		return err
	}
	cfg.MinVersion, cfg.MaxVersion = min, max
	return nil
}

// SetEnabledCiphers applies an already-validated (against
// SUPPORTED_CIPHERS_SET) cipher-suite name list to a *Socket or
// *ServerSocket.
func (cryptoTLSProvider) SetEnabledCiphers(target interface{}, ciphers []string) error {
	cfg, err := configOf(target)
	if err != nil {
		return err
	}
	ids := make([]uint16, 0, len(ciphers))
	for _, name := range ciphers {
		id, ok := cipherSuiteIDs()[name]
		if !ok {
			return &sslerr.PlatformFailureError{Cause: fmt.Errorf("cipher %q has no crypto/tls equivalent", name)}
		}
		ids = append(ids, id)
	}
	cfg.CipherSuites = ids
	return nil
}

func configOf(target interface{}) (*tls.Config, error) {
	switch t := target.(type) {
	case *Socket:
		return t.config, nil
	case *ServerSocket:
		return t.config, nil
	default:
		return nil, &sslerr.PlatformFailureError{Cause: fmt.Errorf("unsupported socket target %T", target)}
	}
}

func (cryptoTLSProvider) SetWantClientAuth(server *ServerSocket, want bool) error {
	server.mu.Lock()
	defer server.mu.Unlock()
	server.want = want
	server.config.ClientAuth = server.clientAuthType()
	return nil
}

func (cryptoTLSProvider) SetNeedClientAuth(server *ServerSocket, need bool) error {
	server.mu.Lock()
	defer server.mu.Unlock()
	server.need = need
	server.config.ClientAuth = server.clientAuthType()
	return nil
}

func (cryptoTLSProvider) NewRuntimeException(cause error) error {
	return NewRuntimeException(cause)
}

var (
	cipherSuiteIDsOnce sync.Once
	cipherSuiteIDsMap  map[string]uint16
)

// cipherSuiteIDs derives a name->ID lookup from crypto/tls's own cipher
// suite catalog, computed once per process: the same "retrieved once from
// the platform TLS default factory, then frozen" discipline spec.md §3
// describes for SUPPORTED_CIPHERS_SET, applied here to the platform's own
// internal lookup rather than the catalog sslconf exposes to callers.
func cipherSuiteIDs() map[string]uint16 {
	cipherSuiteIDsOnce.Do(func() {
		m := make(map[string]uint16)
		for _, cs := range tls.CipherSuites() {
			m[cs.Name] = cs.ID
		}
		for _, cs := range tls.InsecureCipherSuites() {
			m[cs.Name] = cs.ID
		}
		cipherSuiteIDsMap = m
	})
	return cipherSuiteIDsMap
}
