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

// Package sslerr is the typed error vocabulary shared by every sslcontext
// package. Nothing in the module returns a bare errors.New for a failure
// that a caller might need to branch on; it returns one of these instead.
package sslerr

import "fmt"

// MalformedDERError signals that a byte sequence is not a well-formed DER
// TLV: a bad length octet, trailing bytes, or a constructed value whose
// children don't sum to the declared length.
type MalformedDERError struct {
	Reason string
	Offset int
}

func NewMalformedDER(reason string, offset int) *MalformedDERError {
	return &MalformedDERError{Reason: reason, Offset: offset}
}

func (e *MalformedDERError) Error() string {
	return fmt.Sprintf("malformed DER at offset %d: %s", e.Offset, e.Reason)
}

// BadBase64Error signals that a PEM block's body did not decode as base64.
type BadBase64Error struct {
	Label string
	Cause error
}

func (e *BadBase64Error) Error() string {
	return fmt.Sprintf("bad base64 in PEM block %q: %v", e.Label, e.Cause)
}

func (e *BadBase64Error) Unwrap() error { return e.Cause }

// UnterminatedBlockError signals a PEM BEGIN with no matching END.
type UnterminatedBlockError struct {
	Label string
}

func (e *UnterminatedBlockError) Error() string {
	return fmt.Sprintf("unterminated PEM block %q", e.Label)
}

// UnsupportedContainerError signals a keystore container type this library
// recognizes but does not (or, for BKS-like, cannot) decode.
type UnsupportedContainerError struct {
	Container string
}

func (e *UnsupportedContainerError) Error() string {
	return fmt.Sprintf("unsupported keystore container: %s", e.Container)
}

// MalformedContainerError signals a keystore container that fails to parse
// as its recognized type (bad magic, truncated entry table, ...).
type MalformedContainerError struct {
	Container string
	Reason    string
}

func (e *MalformedContainerError) Error() string {
	return fmt.Sprintf("malformed %s container: %s", e.Container, e.Reason)
}

// WrongPasswordError signals a MAC or padding check failure during keystore
// decryption.
type WrongPasswordError struct {
	Container string
}

func (e *WrongPasswordError) Error() string {
	return fmt.Sprintf("wrong password for %s container", e.Container)
}

// NoPrivateKeyError signals a keystore that parsed but contained zero
// private-key entries.
type NoPrivateKeyError struct {
	Container string
}

func (e *NoPrivateKeyError) Error() string {
	return fmt.Sprintf("%s container has no private key entry", e.Container)
}

// CertificateInvalidError signals a structurally broken X.509 certificate.
type CertificateInvalidError struct {
	Reason string
	Cause  error
}

func (e *CertificateInvalidError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("invalid certificate: %s: %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("invalid certificate: %s", e.Reason)
}

func (e *CertificateInvalidError) Unwrap() error { return e.Cause }

// TrustFailureError signals that a peer chain did not validate against the
// current TrustChain, or that a CRL check found a revoked/unavailable CRL.
type TrustFailureError struct {
	Reason string
}

func (e *TrustFailureError) Error() string {
	return fmt.Sprintf("trust failure: %s", e.Reason)
}

// HostnameMismatchError signals that none of a peer certificate's candidate
// names matched the expected hostname.
type HostnameMismatchError struct {
	Expected string
	Actual   []string
}

func (e *HostnameMismatchError) Error() string {
	return fmt.Sprintf("hostname mismatch: expected %q, certificate presents %v", e.Expected, e.Actual)
}

// InvalidArgumentError signals a configuration precondition breach: an
// unknown cipher/protocol name, a negative timeout, and the like.
type InvalidArgumentError struct {
	Detail string
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("invalid argument: %s", e.Detail)
}

// PlatformFailureError wraps a refusal from the underlying TLS engine
// (crypto/tls) that the configuration core cannot itself classify.
type PlatformFailureError struct {
	Cause error
}

func (e *PlatformFailureError) Error() string {
	return fmt.Sprintf("platform TLS failure: %v", e.Cause)
}

func (e *PlatformFailureError) Unwrap() error { return e.Cause }
