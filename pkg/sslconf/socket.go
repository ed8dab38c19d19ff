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

	"github.com/cert-manager/sslcontext/internal/platform"
	"github.com/cert-manager/sslcontext/pkg/hostverify"
)

// CreateSocket produces a client-mode socket for remoteHost:remotePort,
// optionally bound to localHost:localPort, and connects it. Trust-chain
// validation (if do_verify) runs during the handshake itself, baked into
// the built context's verification callback; hostname verification runs
// afterward here, in doPostConnectSocketStuff, matching spec.md §4.6's
// split between what the platform TLS engine checks during the handshake
// and what this package checks once a peer chain is available.
func (c *Config) CreateSocket(ctx context.Context, remoteHost string, remotePort int, localHost string, localPort int) (*platform.Socket, error) {
	tlsCtx, err := c.ensureBuilt(ctx)
	if err != nil {
		return nil, err
	}
	factory, err := c.provider.GetSocketFactory(tlsCtx)
	if err != nil {
		return nil, err
	}

	c.mu.RLock()
	connectTimeoutMs := c.connectTimeoutMs
	c.mu.RUnlock()

	socket, err := c.provider.CreateSocket(factory, remoteHost, remotePort, localHost, localPort, connectTimeoutMs)
	if err != nil {
		return nil, err
	}
	if err := c.doPreConnectSocketStuff(socket); err != nil {
		return nil, err
	}
	if err := c.provider.Connect(socket); err != nil {
		return nil, err
	}
	if err := c.doPostConnectSocketStuff(socket, remoteHost); err != nil {
		socket.Close()
		return nil, err
	}

	// The chain captured here belongs to the server this Config, acting as
	// a client, just connected to: get_current_server_chain per spec.md
	// §4.6. A server-accepted connection's client chain (get_current_client_
	// chain) would need to be captured per net.Conn by whatever Accept loop
	// the caller runs against CreateServerSocket's *tls.Config; that loop is
	// the caller's own I/O, same as every other socket read/write spec.md
	// delegates to the platform TLS engine.
	c.mu.Lock()
	c.currentServerChain = socket.PeerChain()
	c.mu.Unlock()

	return c.wrapperFactory.Wrap(socket), nil
}

// doPreConnectSocketStuff applies the per-socket knobs spec.md §4.6
// requires before the handshake runs: enabled protocols/ciphers (if
// non-empty) and so_timeout. An explicit client mode recorded by
// SetUseClientMode is not applied: Provider has no call for it. The
// so_timeout value can only take effect as a deadline on the dialed
// net.Conn, which doesn't exist yet at this point, so it is recorded on
// the Socket here and the provider applies it once Connect dials.
func (c *Config) doPreConnectSocketStuff(socket *platform.Socket) error {
	c.mu.RLock()
	protocols := append([]string{}, c.enabledProtocols...)
	ciphers := append([]string{}, c.enabledCiphers...)
	soTimeoutMs := c.soTimeoutMs
	c.mu.RUnlock()

	if len(protocols) > 0 {
		if err := c.provider.SetEnabledProtocols(socket, protocols); err != nil {
			return err
		}
	}
	if len(ciphers) > 0 {
		if err := c.provider.SetEnabledCiphers(socket, ciphers); err != nil {
			return err
		}
	}
	if soTimeoutMs > 0 {
		if err := c.provider.SetSoTimeout(socket, soTimeoutMs); err != nil {
			return err
		}
	}
	return nil
}

// doPostConnectSocketStuff performs hostname verification against the
// peer chain recorded during the handshake, when do_verify is set.
func (c *Config) doPostConnectSocketStuff(socket *platform.Socket, expectedHost string) error {
	c.mu.RLock()
	doVerify := c.doVerify
	c.mu.RUnlock()
	if !doVerify {
		return nil
	}
	chain := socket.PeerChain()
	if len(chain) == 0 {
		return nil
	}
	return hostverify.Verify(chain[0], expectedHost)
}

// CreateServerSocket produces a listening server-mode socket. Client-auth
// policy is written in the order spec.md §4.6 mandates: want=false before
// need=false before want=true before need=true, so a caller that flips
// both want and need from their defaults never observes an intermediate
// state crypto/tls would reject.
func (c *Config) CreateServerSocket(ctx context.Context) (*platform.ServerSocket, error) {
	tlsCtx, err := c.ensureBuilt(ctx)
	if err != nil {
		return nil, err
	}
	factory, err := c.provider.GetServerSocketFactory(tlsCtx)
	if err != nil {
		return nil, err
	}
	server, err := c.provider.NewServerSocket(factory)
	if err != nil {
		return nil, err
	}
	if err := c.doPreConnectServerSocketStuff(server); err != nil {
		return nil, err
	}
	return c.wrapperFactory.WrapServer(server), nil
}

func (c *Config) doPreConnectServerSocketStuff(server *platform.ServerSocket) error {
	c.mu.RLock()
	protocols := append([]string{}, c.enabledProtocols...)
	ciphers := append([]string{}, c.enabledCiphers...)
	want := c.wantClientAuth
	need := c.needClientAuth
	c.mu.RUnlock()

	if len(protocols) > 0 {
		if err := c.provider.SetEnabledProtocols(server, protocols); err != nil {
			return err
		}
	}
	if len(ciphers) > 0 {
		if err := c.provider.SetEnabledCiphers(server, ciphers); err != nil {
			return err
		}
	}

	if err := c.provider.SetWantClientAuth(server, false); err != nil {
		return err
	}
	if err := c.provider.SetNeedClientAuth(server, false); err != nil {
		return err
	}
	if want {
		if err := c.provider.SetWantClientAuth(server, true); err != nil {
			return err
		}
	}
	if need {
		if err := c.provider.SetNeedClientAuth(server, true); err != nil {
			return err
		}
	}
	return nil
}
