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

import "github.com/cert-manager/sslcontext/internal/platform"

// SocketWrapperFactory lets callers interpose a decorator (metrics,
// logging, bounded I/O, ...) around every socket this package produces.
// Socket-producing operations always route their result through the
// installed factory, defaulting to identityWrapperFactory: CreateSocket
// through Wrap, CreateServerSocket through WrapServer.
type SocketWrapperFactory interface {
	Wrap(socket *platform.Socket) *platform.Socket
	WrapServer(server *platform.ServerSocket) *platform.ServerSocket
}

type identityWrapperFactory struct{}

func (identityWrapperFactory) Wrap(socket *platform.Socket) *platform.Socket { return socket }

func (identityWrapperFactory) WrapServer(server *platform.ServerSocket) *platform.ServerSocket {
	return server
}
