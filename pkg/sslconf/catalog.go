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
	"crypto/tls"
	"sort"
	"sync"
)

// knownProtocols is KNOWN_PROTOCOLS: a process-wide immutable ordered set,
// reverse-sorted, fixed at compile time rather than derived from the
// platform (unlike the cipher catalog below, the protocol names here are
// the source library's own historical TLS/SSL version vocabulary, not
// something crypto/tls enumerates).
var knownProtocols = []string{"TLSv1", "SSLv3", "SSLv2", "SSLv2Hello"}

// KnownProtocols returns KNOWN_PROTOCOLS_SET.
func KnownProtocols() []string {
	return append([]string{}, knownProtocols...)
}

func isKnownProtocol(name string) bool {
	for _, p := range knownProtocols {
		if p == name {
			return true
		}
	}
	return false
}

var (
	supportedCiphersOnce sync.Once
	supportedCiphers     []string
)

// SupportedCiphers returns SUPPORTED_CIPHERS_SET: retrieved once from the
// platform TLS default factory (crypto/tls's own cipher suite catalog,
// secure and insecure alike, since the source library's platform provider
// doesn't distinguish the two at this layer) and frozen for the lifetime
// of the process. Safe for concurrent first touch via sync.Once, matching
// spec.md §5's "perform once; publish atomically" requirement for this
// specific process-wide catalog (distinct from any one Config instance's
// own per-instance lazy-rebuild coalescing, see ensureBuilt).
func SupportedCiphers() []string {
	supportedCiphersOnce.Do(func() {
		names := make([]string, 0, 64)
		for _, cs := range tls.CipherSuites() {
			names = append(names, cs.Name)
		}
		for _, cs := range tls.InsecureCipherSuites() {
			names = append(names, cs.Name)
		}
		sort.Strings(names)
		supportedCiphers = names
	})
	return append([]string{}, supportedCiphers...)
}

func isSupportedCipher(name string) bool {
	for _, c := range SupportedCiphers() {
		if c == name {
			return true
		}
	}
	return false
}

// unsupportedOf returns the elements of candidates not present in the
// supplied catalog, preserving candidates' order, for building the
// InvalidArgument("following ciphers/protocols not supported: ...")
// message.
func unsupportedOf(candidates []string, isKnown func(string) bool) []string {
	var bad []string
	for _, c := range candidates {
		if !isKnown(c) {
			bad = append(bad, c)
		}
	}
	return bad
}
