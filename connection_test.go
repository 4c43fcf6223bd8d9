// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package gotransfer_test

import (
	"context"
	"io"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/blinklabs-io/gotransfer"
	"github.com/blinklabs-io/gotransfer/internal/test"
	"github.com/blinklabs-io/gotransfer/protocol"
	"github.com/blinklabs-io/gotransfer/protocol/transfer"
	"github.com/blinklabs-io/gotransfer/protocol/uri"
	"github.com/blinklabs-io/gotransfer/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// newConnectionPair returns a client and server connection joined by a pipe. The server is
// updated from a goroutine until the returned func is called
func newConnectionPair(
	t *testing.T,
	options ...gotransfer.ConnectionOptionFunc,
) (*gotransfer.Connection, *gotransfer.Connection, func()) {
	t.Helper()
	clientConn, serverConn := net.Pipe()
	server, err := gotransfer.NewConnection(
		append(
			[]gotransfer.ConnectionOptionFunc{
				gotransfer.WithConnection(serverConn),
				gotransfer.WithServer(true),
			},
			options...,
		)...,
	)
	require.NoError(t, err)
	client, err := gotransfer.NewConnection(
		append(
			[]gotransfer.ConnectionOptionFunc{
				gotransfer.WithConnection(clientConn),
				gotransfer.WithTransferConfig(
					transfer.NewConfig(
						transfer.WithRetryInterval(time.Millisecond),
					),
				),
				gotransfer.WithUriConfig(
					uri.NewConfig(
						uri.WithRetryInterval(time.Millisecond),
					),
				),
			},
			options...,
		)...,
	)
	require.NoError(t, err)
	stop := test.RunUpdates(server.Update)
	return client, server, func() {
		stop()
		_ = client.Close()
		_ = server.Close()
	}
}

func TestConnectionRoles(t *testing.T) {
	defer goleak.VerifyNone(t)
	client, server, cleanup := newConnectionPair(t)
	defer cleanup()
	assert.True(t, server.IsServer())
	assert.NotNil(t, server.TransferServer())
	assert.NotNil(t, server.UriServer())
	assert.Nil(t, server.TransferClient())
	assert.Same(t, server.TransferServer().Store(), server.UriServer().Store())
	assert.False(t, client.IsServer())
	assert.NotNil(t, client.TransferClient())
	assert.NotNil(t, client.UriClient())
	assert.Nil(t, client.Store())
	assert.NoError(t, client.Update())
}

func TestConnectionPullAndRequest(t *testing.T) {
	defer goleak.VerifyNone(t)
	for _, version := range []uint16{transfer.VersionInitial, transfer.VersionRefactor} {
		t.Run(strconv.Itoa(int(version)), func(t *testing.T) {
			client, server, cleanup := newConnectionPair(
				t,
				gotransfer.WithTransferVersion(version),
				gotransfer.WithUriVersion(version),
			)
			defer cleanup()
			service.RegisterAll(server.UriServer().Registry(), server.Store(), map[string]string{"name": "test"})
			data := test.RandomBytes(1, 30000)
			block := server.Store().CreateBlock()
			_, err := block.Write(data)
			require.NoError(t, err)
			require.NoError(t, block.Close())
			pullBlock, err := client.TransferClient().OpenPullBlock(block.Id())
			require.NoError(t, err)
			received, err := io.ReadAll(pullBlock)
			require.NoError(t, err)
			assert.Equal(t, data, received)
			info, _, err := client.UriClient().RequestAll("info://name")
			require.NoError(t, err)
			assert.Equal(t, []byte("test"), info)
		})
	}
}

func TestConnectionPushThroughUpload(t *testing.T) {
	defer goleak.VerifyNone(t)
	client, server, cleanup := newConnectionPair(t)
	defer cleanup()
	service.RegisterAll(server.UriServer().Registry(), server.Store(), nil)
	idText, _, err := client.UriClient().RequestAll("upload:")
	require.NoError(t, err)
	id, err := strconv.ParseUint(string(idText), 10, 32)
	require.NoError(t, err)
	data := test.RandomBytes(2, 9000)
	pushBlock, err := client.TransferClient().OpenPushBlock(transfer.BlockId(id), len(data))
	require.NoError(t, err)
	_, err = pushBlock.Write(data)
	require.NoError(t, err)
	require.NoError(t, pushBlock.Finalize())
	block := server.Store().GetBlock(transfer.BlockId(id))
	require.NotNil(t, block)
	assert.True(t, block.IsClosed())
	assert.Equal(t, data, block.Bytes())
	digest, header, err := client.UriClient().RequestAll("digest://" + string(idText))
	require.NoError(t, err)
	assert.Equal(t, uri.ResponseDataFormatBinary, header.Format)
	assert.Len(t, digest, service.DigestSize)
}

func TestConnectionRemoteClose(t *testing.T) {
	defer goleak.VerifyNone(t)
	client, server, cleanup := newConnectionPair(t)
	defer cleanup()
	require.NoError(t, server.Close())
	select {
	case err := <-client.ErrorChan():
		assert.ErrorIs(t, err, io.EOF)
	case <-time.After(2 * time.Second):
		t.Fatal("did not receive error from client connection")
	}
	// The error channel is closed once shutdown completes
	select {
	case _, ok := <-client.ErrorChan():
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("client connection did not shut down")
	}
	_, err := client.TransferClient().RequestPullTransfer(1)
	assert.ErrorIs(t, err, protocol.ErrProtocolShuttingDown)
}

func TestConnectionInvalidVersion(t *testing.T) {
	defer goleak.VerifyNone(t)
	_, err := gotransfer.NewConnection(gotransfer.WithTransferVersion(transfer.VersionMax + 1))
	assert.ErrorIs(t, err, protocol.ErrVersionMismatch)
	_, err = gotransfer.NewConnection(gotransfer.WithUriVersion(0))
	assert.ErrorIs(t, err, protocol.ErrVersionMismatch)
}

func TestConnectionDial(t *testing.T) {
	defer goleak.VerifyNone(t)
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	server := gotransfer.NewServer(gotransfer.ServerConfig{})
	server.Registry().Register(service.NewInfoService(map[string]string{"name": "dial"}))
	ctx, cancel := context.WithCancel(context.Background())
	serveDone := make(chan error, 1)
	go func() {
		serveDone <- server.Serve(ctx, listener)
	}()
	client, err := gotransfer.NewConnection()
	require.NoError(t, err)
	require.NoError(t, client.Dial("tcp", listener.Addr().String()))
	assert.Error(t, client.Dial("tcp", listener.Addr().String()))
	data, _, err := client.UriClient().RequestAll("info://name")
	require.NoError(t, err)
	assert.Equal(t, []byte("dial"), data)
	require.NoError(t, client.Close())
	cancel()
	select {
	case err := <-serveDone:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
