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

	jks "github.com/pavlo-v-chernykh/keystore-go/v4"

	"github.com/cert-manager/sslcontext/pkg/sslerr"
	"github.com/cert-manager/sslcontext/pkg/x509lite"
)

// loadJKSLike decodes a JKS-like or JCEKS-like container. storePassword
// verifies the container's whole-file integrity digest (Load fails the
// same way regardless of which of the two magics was present); keyPassword
// decrypts each private-key entry's PBE-wrapped PKCS#8 body individually,
// which is what makes the two passwords independent. A private-key entry
// that keyPassword cannot decrypt fails the whole load; no partial
// KeyMaterial (not even the trusted-certificate entries) is returned.
func loadJKSLike(data []byte, storePassword, keyPassword string) (KeyMaterial, error) {
	store := jks.New()
	if err := store.Load(bytes.NewReader(data), []byte(storePassword)); err != nil {
		if isWrongPassword(err) {
			return KeyMaterial{}, &sslerr.WrongPasswordError{Container: "JKS"}
		}
		return KeyMaterial{}, &sslerr.MalformedContainerError{Container: "JKS", Reason: err.Error()}
	}

	var entries []Entry
	for _, alias := range store.Aliases() {
		switch {
		case store.IsPrivateKeyEntry(alias):
			entry, err := store.GetPrivateKeyEntry(alias, []byte(keyPassword))
			if err != nil {
				if isWrongPassword(err) {
					return KeyMaterial{}, &sslerr.WrongPasswordError{Container: "JKS"}
				}
				return KeyMaterial{}, &sslerr.MalformedContainerError{Container: "JKS", Reason: err.Error()}
			}
			key, err := x509lite.ParsePKCS8PrivateKey(entry.PrivateKey)
			if err != nil {
				return KeyMaterial{}, err
			}
			raws := make([][]byte, len(entry.CertificateChain))
			for i, c := range entry.CertificateChain {
				raws[i] = c.Content
			}
			chain, err := parseDERChain(raws)
			if err != nil {
				return KeyMaterial{}, err
			}
			entry := Entry{Alias: alias, PrivateKey: key, CertChain: chain}
			if err := validateKeyMatchesCert("JKS", entry); err != nil {
				return KeyMaterial{}, err
			}
			entries = append(entries, entry)

		case store.IsTrustedCertificateEntry(alias):
			trusted, err := store.GetTrustedCertificateEntry(alias)
			if err != nil {
				return KeyMaterial{}, &sslerr.MalformedContainerError{Container: "JKS", Reason: err.Error()}
			}
			cert, err := x509lite.ParseCertificate(trusted.Certificate.Content)
			if err != nil {
				return KeyMaterial{}, err
			}
			entries = append(entries, Entry{Alias: alias, CertChain: []*x509lite.Certificate{cert}})
		}
	}

	km := indexEntries(entries)
	if len(km.PrivateKeyEntries()) == 0 {
		return KeyMaterial{}, &sslerr.NoPrivateKeyError{Container: "JKS"}
	}
	return km, nil
}
