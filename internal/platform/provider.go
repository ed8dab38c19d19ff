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

// Package platform is the thin boundary between the configuration core and
// the platform-provided TLS primitive. Everything above this package works
// in terms of pkg/x509lite, pkg/trustchain and pkg/keystore types; this is
// the only place those get translated to and from crypto/tls and
// crypto/x509, and the only place a typed configuration failure becomes a
// PlatformFailure.
package platform

import (
	"crypto/tls"
	"sync"

	"github.com/cert-manager/sslcontext/pkg/keystore"
	"github.com/cert-manager/sslcontext/pkg/sslerr"
	"github.com/cert-manager/sslcontext/pkg/trustchain"
	"github.com/cert-manager/sslcontext/pkg/x509lite"
)

// Config is the slice of SSL configuration state the platform needs to
// build a Context: everything that is baked into the TLS context rather
// than applied per-socket.
type Config struct {
	DoVerify        bool
	CheckCRL        bool
	DefaultProtocol string
}

// Context is the opaque, built TLS context: spec.md's tls_context. It is
// owned solely by whichever SSL configuration built it; replacing it
// releases the previous one (the configuration core just drops the
// reference).
type Context struct {
	tlsConfig *tls.Config

	mu           sync.Mutex
	currentChain []*x509lite.Certificate
}

// CurrentChain returns the most recently observed peer certificate chain
// on any socket of this context, captured during the TLS handshake's
// verification callback regardless of whether trust validation passed.
func (c *Context) CurrentChain() []*x509lite.Certificate {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*x509lite.Certificate{}, c.currentChain...)
}

func (c *Context) recordChain(chain []*x509lite.Certificate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.currentChain = chain
}

// SocketFactory produces client sockets bound to one built Context.
type SocketFactory struct {
	ctx *Context
}

// ServerSocketFactory produces server sockets bound to one built Context.
type ServerSocketFactory struct {
	ctx *Context
}

// Socket is a client-mode TLS socket. It is produced unconnected, the same
// way an SSLSocket is obtained before connect() in the source library:
// doPreConnectSocketStuff mutates config below via SetEnabledProtocols/
// SetEnabledCiphers, then Connect performs the dial and handshake, then
// doPostConnectSocketStuff reads PeerChain.
type Socket struct {
	ctx    *Context
	config *tls.Config

	network          string
	remoteHost       string
	remotePort       int
	localHost        string
	localPort        int
	connectTimeoutMs int
	soTimeoutMs      int

	Conn *tls.Conn
}

// Close closes the underlying connection.
func (s *Socket) Close() error {
	if s.Conn == nil {
		return nil
	}
	return s.Conn.Close()
}

// PeerChain returns the chain the peer presented in this socket's own
// handshake; nil before Connect.
func (s *Socket) PeerChain() []*x509lite.Certificate {
	if s.Conn == nil {
		return nil
	}
	var chain []*x509lite.Certificate
	for _, c := range s.Conn.ConnectionState().PeerCertificates {
		cert, err := x509lite.ParseCertificate(c.Raw)
		if err != nil {
			return nil
		}
		chain = append(chain, cert)
	}
	return chain
}

// ServerSocket is a listening TLS endpoint whose client-auth policy can be
// mutated independently of "want" and "need", matching the platform write
// ordering spec.md §4.6 requires of callers.
type ServerSocket struct {
	ctx    *Context
	mu     sync.Mutex
	config *tls.Config
	want   bool
	need   bool
}

func (s *ServerSocket) clientAuthType() tls.ClientAuthType {
	switch {
	case s.need:
		return tls.RequireAndVerifyClientCert
	case s.want:
		return tls.RequestClientCert
	default:
		return tls.NoClientCert
	}
}

// Config returns the effective *tls.Config for this server socket, after
// whatever SetWantClientAuth/SetNeedClientAuth/SetEnabledProtocols calls
// have been applied. Callers pass it to tls.NewListener (or tls.Server per
// accepted net.Conn) themselves; wrapping the listener itself is out of
// scope here, same as every other socket I/O operation spec.md delegates
// to the platform TLS engine.
func (s *ServerSocket) Config() *tls.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.config.Clone()
}

// WantClientAuth and NeedClientAuth report the last values written via
// SetWantClientAuth/SetNeedClientAuth, independent of how crypto/tls
// collapses them into a single ClientAuthType. Invariant 6 is checked
// against these, mirroring how a caller would query the platform socket.
func (s *ServerSocket) WantClientAuth() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.want
}

func (s *ServerSocket) NeedClientAuth() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.need
}

// Provider is everything the configuration core needs from the platform:
// context construction, socket/server-socket factories, socket production,
// and the handful of per-socket knobs spec.md §4.8 calls out by name.
type Provider interface {
	Init(cfg Config, trust *trustchain.TrustChain, key *keystore.KeyMaterial) (*Context, error)
	GetSocketFactory(ctx *Context) (*SocketFactory, error)
	GetServerSocketFactory(ctx *Context) (*ServerSocketFactory, error)
	CreateSocket(factory *SocketFactory, remoteHost string, remotePort int, localHost string, localPort int, connectTimeoutMs int) (*Socket, error)
	Connect(socket *Socket) error
	NewServerSocket(factory *ServerSocketFactory) (*ServerSocket, error)
	SetEnabledProtocols(target interface{}, protocols []string) error
	SetEnabledCiphers(target interface{}, ciphers []string) error
	SetWantClientAuth(server *ServerSocket, want bool) error
	SetNeedClientAuth(server *ServerSocket, need bool) error
	SetSoTimeout(socket *Socket, ms int) error
	NewRuntimeException(cause error) error
}

// NewRuntimeException is shared by every Provider implementation: it is
// the one place a typed configuration failure becomes the unchecked
// PlatformFailure spec.md §4.8 and §7 describe being raised at lazy late
// init.
func NewRuntimeException(cause error) error {
	return &sslerr.PlatformFailureError{Cause: cause}
}
