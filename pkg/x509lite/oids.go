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

// Package x509lite builds the X.509 certificate, CRL and PKCS#8 private
// key productions on top of pkg/derasn1, independently of crypto/x509 and
// crypto/tls so the keystore and trust-chain loaders never depend on the
// platform's own parser (see spec §OUT OF SCOPE: "PEM armor parsing at the
// character level" is delegated, but DER-to-struct is not).
package x509lite

import "github.com/cert-manager/sslcontext/pkg/derasn1"

var (
	oidCommonName = derasn1.OID{2, 5, 4, 3}

	oidSubjectAltName = derasn1.OID{2, 5, 29, 17}

	oidRSAEncryption = derasn1.OID{1, 2, 840, 113549, 1, 1, 1}
	oidDSA           = derasn1.OID{1, 2, 840, 10040, 4, 1}
	oidECPublicKey   = derasn1.OID{1, 2, 840, 10045, 2, 1}
)
