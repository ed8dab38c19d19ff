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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cert-manager/sslcontext/internal/platform"
	"github.com/cert-manager/sslcontext/pkg/trustchain"
)

// countingWrapperFactory records how many times each socket kind it was
// asked to wrap, without altering what it returns.
type countingWrapperFactory struct {
	sockets int
	servers int
}

func (f *countingWrapperFactory) Wrap(socket *platform.Socket) *platform.Socket {
	f.sockets++
	return socket
}

func (f *countingWrapperFactory) WrapServer(server *platform.ServerSocket) *platform.ServerSocket {
	f.servers++
	return server
}

func TestCreateServerSocketRoutesThroughWrapperFactory(t *testing.T) {
	ctx := context.Background()
	provider := platform.NewCryptoTLSProvider()

	conf := New(provider)
	require.NoError(t, conf.SetTrustMaterial(ctx, trustchain.TrustAll()))
	conf.SetDoVerify(false)

	wrapper := &countingWrapperFactory{}
	conf.SetWrapperFactory(wrapper)

	server, err := conf.CreateServerSocket(ctx)
	require.NoError(t, err)
	require.NotNil(t, server)
	require.Equal(t, 1, wrapper.servers)
	require.Equal(t, 0, wrapper.sockets)
}
