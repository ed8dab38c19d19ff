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

// Package sslconf is the stateful configuration core: it accumulates trust
// material, key material, cipher/protocol preferences and client-auth
// policy, tracks a dirty flag against the underlying TLS context, and
// lazily (re)materializes that context before producing client or server
// sockets.
package sslconf

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/cert-manager/sslcontext/internal/platform"
	"github.com/cert-manager/sslcontext/pkg/keystore"
	"github.com/cert-manager/sslcontext/pkg/sslerr"
	"github.com/cert-manager/sslcontext/pkg/trustchain"
	"github.com/cert-manager/sslcontext/pkg/x509lite"
)

type buildState int

const (
	stateEmpty buildState = iota
	stateBuilt
)

const (
	defaultSoTimeoutMs      = 86_400_000
	defaultConnectTimeoutMs = 3_600_000
	defaultProtocolName     = "TLS"
	eagerRebuildThreshold   = 5
)

// Config is the SSL configuration core (spec.md §4.6): the user-facing
// stateful builder. The zero value is not usable; construct with New.
type Config struct {
	provider       platform.Provider
	wrapperFactory SocketWrapperFactory

	mu sync.RWMutex

	trustChain  *trustchain.TrustChain
	keyMaterial *keystore.KeyMaterial

	enabledCiphers   []string
	enabledProtocols []string
	defaultProtocol  string
	doVerify         bool
	checkCRL         bool
	useClientMode    *bool
	soTimeoutMs      int
	connectTimeoutMs int
	wantClientAuth   bool
	needClientAuth   bool

	state       buildState
	dirtyCycles int
	initCount   int
	tlsContext  *platform.Context

	currentServerChain []*x509lite.Certificate
	currentClientChain []*x509lite.Certificate

	rebuildGroup singleflight.Group
}

// New returns a Config with every field at its spec-mandated default:
// do_verify=true, check_crl=true, want=true, need=false,
// default_protocol="TLS", so_timeout=86_400_000ms,
// connect_timeout=3_600_000ms, useClientMode unset, no trust or key
// material, identity wrapper factory.
func New(provider platform.Provider) *Config {
	return &Config{
		provider:         provider,
		wrapperFactory:   identityWrapperFactory{},
		defaultProtocol:  defaultProtocolName,
		doVerify:         true,
		checkCRL:         true,
		soTimeoutMs:      defaultSoTimeoutMs,
		connectTimeoutMs: defaultConnectTimeoutMs,
		wantClientAuth:   true,
		needClientAuth:   false,
		state:            stateEmpty,
	}
}

// InitCount returns the number of times the underlying TLS context has
// actually been built. Monotonically non-decreasing for the life of the
// Config.
func (c *Config) InitCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.initCount
}

// SetWrapperFactory installs the SocketWrapperFactory every socket this
// Config produces is routed through. Not a composition mutator: it does
// not touch the TLS context.
func (c *Config) SetWrapperFactory(f SocketWrapperFactory) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if f == nil {
		f = identityWrapperFactory{}
	}
	c.wrapperFactory = f
}

// SetEnabledCiphers validates list against SUPPORTED_CIPHERS_SET and, if
// valid, replaces the enabled-cipher preference. Ciphers are applied
// per-socket (doPreConnectSocketStuff), so this never marks the context
// dirty.
func (c *Config) SetEnabledCiphers(ciphers []string) error {
	if bad := unsupportedOf(ciphers, isSupportedCipher); len(bad) > 0 {
		return &sslerr.InvalidArgumentError{Detail: "following ciphers not supported: " + joinNames(bad)}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabledCiphers = append([]string{}, ciphers...)
	return nil
}

// EnabledCiphers returns the last value accepted by SetEnabledCiphers, in
// the same order.
func (c *Config) EnabledCiphers() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string{}, c.enabledCiphers...)
}

// SetEnabledProtocols validates list against KNOWN_PROTOCOLS_SET and, if
// valid, replaces the enabled-protocol preference. Like ciphers, applied
// per-socket: never marks the context dirty.
func (c *Config) SetEnabledProtocols(protocols []string) error {
	if bad := unsupportedOf(protocols, isKnownProtocol); len(bad) > 0 {
		return &sslerr.InvalidArgumentError{Detail: "following protocols not supported: " + joinNames(bad)}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabledProtocols = append([]string{}, protocols...)
	return nil
}

// EnabledProtocols returns the last value accepted by SetEnabledProtocols.
func (c *Config) EnabledProtocols() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string{}, c.enabledProtocols...)
}

// SetDefaultProtocol marks the context dirty, since the TLS context is
// built against this protocol name.
func (c *Config) SetDefaultProtocol(ctx context.Context, protocol string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.defaultProtocol = protocol
	return c.markDirtyAndMaybeReloadLocked(ctx)
}

// SetSoTimeout sets the socket I/O timeout in milliseconds. It is applied
// once, when a client socket connects, as a single deadline for all later
// reads and writes; it is not re-armed per read or write. Does not mark
// the context dirty.
func (c *Config) SetSoTimeout(ms int) error {
	if ms < 0 {
		return &sslerr.InvalidArgumentError{Detail: "so_timeout must be non-negative"}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.soTimeoutMs = ms
	return nil
}

// SetConnectTimeout sets the connect deadline in milliseconds (0 ⇒
// platform default). Does not mark the context dirty.
func (c *Config) SetConnectTimeout(ms int) error {
	if ms < 0 {
		return &sslerr.InvalidArgumentError{Detail: "connect_timeout must be non-negative"}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connectTimeoutMs = ms
	return nil
}

// SetUseClientMode clears the "default" shadow flag by recording an
// explicit value. The value is only recorded: no socket-producing path
// reads it, so it has no effect on the sockets this Config produces.
// Does not mark the context dirty.
func (c *Config) SetUseClientMode(b bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.useClientMode = &b
}

// SetWantClientAuth and SetNeedClientAuth record policy applied per
// server-socket (doPreConnectServerSocketStuff); neither marks the context
// dirty.
func (c *Config) SetWantClientAuth(want bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.wantClientAuth = want
}

func (c *Config) SetNeedClientAuth(need bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.needClientAuth = need
}

// SetDoVerify toggles whether doPostConnectSocketStuff performs hostname
// verification and whether the platform's handshake-time callback applies
// trust-chain validation at all. The verification callback uses the value
// the context was built with, so an already-built context is discarded
// here and the next socket request rebuilds it with the new value. Not a
// composition mutator in the spec.md §4.6 sense (it doesn't change what's
// baked into the TLS context's certificates), so it does not count as a
// dirty cycle and never triggers an eager rebuild. See DESIGN.md for this
// resolved ambiguity.
func (c *Config) SetDoVerify(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.doVerify = v
	c.state = stateEmpty
	c.tlsContext = nil
}

// SetCheckCRL toggles whether trust validation consults the TrustChain's
// CRL set. Same rationale as SetDoVerify: a built context is discarded
// and rebuilt on the next socket request, without counting a dirty cycle.
func (c *Config) SetCheckCRL(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checkCRL = v
	c.state = stateEmpty
	c.tlsContext = nil
}

// AddTrustMaterial unions material into the current trust chain (or
// replaces it with TRUST_ALL per pkg/trustchain's Add semantics), and
// marks the context dirty with eager-reload-if-young.
func (c *Config) AddTrustMaterial(ctx context.Context, material trustchain.TrustMaterial) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.trustChain == nil {
		c.trustChain = &trustchain.TrustChain{}
	}
	c.trustChain.Add(material)
	return c.markDirtyAndMaybeReloadLocked(ctx)
}

// SetTrustMaterial replaces the current trust chain outright and marks
// the context dirty with eager-reload-if-young.
func (c *Config) SetTrustMaterial(ctx context.Context, material trustchain.TrustMaterial) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.trustChain = &trustchain.TrustChain{}
	c.trustChain.Add(material)
	return c.markDirtyAndMaybeReloadLocked(ctx)
}

// SetKeyMaterial replaces the current key material and marks the context
// dirty with eager-reload-if-young.
func (c *Config) SetKeyMaterial(ctx context.Context, material keystore.KeyMaterial) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keyMaterial = &material
	return c.markDirtyAndMaybeReloadLocked(ctx)
}

// CurrentServerChain and CurrentClientChain return the peer chain last
// observed on a server-mode or client-mode socket, respectively.
func (c *Config) CurrentServerChain() []*x509lite.Certificate {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]*x509lite.Certificate{}, c.currentServerChain...)
}

func (c *Config) CurrentClientChain() []*x509lite.Certificate {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]*x509lite.Certificate{}, c.currentClientChain...)
}

// markDirtyAndMaybeReloadLocked implements dirtyAndReloadIfYoung. Caller
// must hold c.mu for writing. The first eagerRebuildThreshold dirty
// cycles rebuild eagerly so configuration mistakes surface synchronously
// to the mutator's own caller; later cycles stay Empty until the next
// socket request forces a lazy rebuild via ensureBuilt.
func (c *Config) markDirtyAndMaybeReloadLocked(ctx context.Context) error {
	c.state = stateEmpty
	c.tlsContext = nil
	c.dirtyCycles++
	if c.dirtyCycles <= eagerRebuildThreshold {
		return c.rebuildLocked(ctx)
	}
	LoggerFrom(ctx).V(1).Info("deferring TLS context rebuild to next socket request",
		"dirtyCycles", c.dirtyCycles)
	return nil
}

// rebuildLocked actually invokes the platform provider's Init. Caller must
// hold c.mu for writing.
func (c *Config) rebuildLocked(ctx context.Context) error {
	cfg := platform.Config{
		DoVerify:        c.doVerify,
		CheckCRL:        c.checkCRL,
		DefaultProtocol: c.defaultProtocol,
	}
	trust := c.trustChain
	if trust == nil {
		trust = &trustchain.TrustChain{}
	}
	tlsCtx, err := c.provider.Init(cfg, trust, c.keyMaterial)
	if err != nil {
		LoggerFrom(ctx).Error(err, "failed to build TLS context", "initCount", c.initCount)
		return err
	}
	c.tlsContext = tlsCtx
	c.state = stateBuilt
	c.initCount++
	LoggerFrom(ctx).V(1).Info("built TLS context", "initCount", c.initCount)
	return nil
}

// ensureBuilt returns the current TLS context, rebuilding it if it is
// still Empty (the lazy late-init path). A rebuild failure here is raised
// internally as a panic carrying the typed cause — the nearest Go
// equivalent of spec.md §4.8's "newRuntimeException" turning a typed
// configuration failure into an unchecked error at the socket-producing
// call — and recovered immediately below into a normal
// *sslerr.PlatformFailureError return, so callers of ensureBuilt never
// observe a panic.
func (c *Config) ensureBuilt(ctx context.Context) (tlsCtx *platform.Context, err error) {
	c.mu.RLock()
	if c.state == stateBuilt {
		tlsCtx = c.tlsContext
		c.mu.RUnlock()
		return tlsCtx, nil
	}
	c.mu.RUnlock()

	defer func() {
		if r := recover(); r != nil {
			cause, ok := r.(error)
			if !ok {
				panic(r)
			}
			err = c.provider.NewRuntimeException(cause)
		}
	}()

	v, doErr, _ := c.rebuildGroup.Do("rebuild", func() (interface{}, error) {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.state == stateBuilt {
			return c.tlsContext, nil
		}
		if rebuildErr := c.rebuildLocked(ctx); rebuildErr != nil {
			panic(rebuildErr)
		}
		return c.tlsContext, nil
	})
	if doErr != nil {
		return nil, doErr
	}
	return v.(*platform.Context), nil
}

func joinNames(names []string) string {
	out := "["
	for i, n := range names {
		if i > 0 {
			out += ", "
		}
		out += n
	}
	return out + "]"
}
