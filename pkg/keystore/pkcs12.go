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
	"software.sslmate.com/src/go-pkcs12"

	"github.com/cert-manager/sslcontext/pkg/sslerr"
)

var errIncorrectPassword = pkcs12.ErrIncorrectPassword

// loadPKCS12 decodes a PKCS#12 container: outer SEQUENCE of version,
// authSafe and macData, with password-based MAC integrity and
// password-encrypted content per the legacy SHA-1/RC2/3DES scheme. Only
// one alias is defined for a PKCS#12 container (the library doesn't
// preserve friendlyName as a distinct key), so it is loaded as a single
// entry named "1".
func loadPKCS12(data []byte, password string) (KeyMaterial, error) {
	privateKey, leaf, caCerts, err := pkcs12.DecodeChain(data, password)
	if err != nil {
		if isWrongPassword(err) {
			return KeyMaterial{}, &sslerr.WrongPasswordError{Container: "PKCS#12"}
		}
		return KeyMaterial{}, &sslerr.MalformedContainerError{Container: "PKCS#12", Reason: err.Error()}
	}

	raws := make([][]byte, 0, len(caCerts)+1)
	raws = append(raws, leaf.Raw)
	for _, ca := range caCerts {
		raws = append(raws, ca.Raw)
	}
	chain, err := parseDERChain(raws)
	if err != nil {
		return KeyMaterial{}, err
	}

	key, err := reparseStdlibKey(privateKey)
	if err != nil {
		return KeyMaterial{}, err
	}

	entry := Entry{Alias: "1", PrivateKey: key, CertChain: chain}
	if len(chain) == 0 {
		return KeyMaterial{}, &sslerr.NoPrivateKeyError{Container: "PKCS#12"}
	}
	if err := validateKeyMatchesCert("PKCS#12", entry); err != nil {
		return KeyMaterial{}, err
	}
	return indexEntries([]Entry{entry}), nil
}
