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

// Package hostverify verifies a hostname against a connected peer
// certificate using CN + subjectAltName rules. It is pure: callers supply
// the peer chain after the handshake completes.
package hostverify

import (
	"net"
	"strings"

	"github.com/cert-manager/sslcontext/pkg/sslerr"
	"github.com/cert-manager/sslcontext/pkg/x509lite"
)

// Verify checks hostname against cert's candidate names. An IP-literal
// hostname is matched only against the iPAddress SAN entries. Any other
// hostname is matched against the dNSName SAN entries if any are present
// (CN is then ignored entirely), otherwise against the most-specific CN.
func Verify(cert *x509lite.Certificate, hostname string) error {
	if ip := net.ParseIP(hostname); ip != nil {
		return verifyIP(cert, hostname, ip)
	}

	candidates := cert.SAN.DNSNames
	if len(candidates) == 0 {
		if cn := cert.Subject.CommonName(); cn != "" {
			candidates = []string{cn}
		}
	}

	lowerHost := strings.ToLower(hostname)
	for _, candidate := range candidates {
		if matchHostname(strings.ToLower(candidate), lowerHost) {
			return nil
		}
	}
	return &sslerr.HostnameMismatchError{Expected: hostname, Actual: candidates}
}

func verifyIP(cert *x509lite.Certificate, hostname string, ip net.IP) error {
	for _, candidate := range cert.SAN.IPAddresses {
		if candidate.Equal(ip) {
			return nil
		}
	}
	actual := make([]string, len(cert.SAN.IPAddresses))
	for i, ip := range cert.SAN.IPAddresses {
		actual[i] = ip.String()
	}
	return &sslerr.HostnameMismatchError{Expected: hostname, Actual: actual}
}

// matchHostname implements leftmost-label wildcard matching: a single "*"
// matches exactly one left-most label, and is not allowed in any other
// position (a literal "*" elsewhere in candidate is just never matched,
// since hostname labels can't contain "*").
func matchHostname(candidate, hostname string) bool {
	if candidate == hostname {
		return true
	}
	if !strings.HasPrefix(candidate, "*.") {
		return false
	}
	wildcardSuffix := candidate[1:] // ".example.com"
	if !strings.HasSuffix(hostname, wildcardSuffix) {
		return false
	}
	// the matched left-most label of hostname must be exactly one label:
	// nothing before the suffix may itself contain a dot.
	prefix := hostname[:len(hostname)-len(wildcardSuffix)]
	return prefix != "" && !strings.Contains(prefix, ".")
}
