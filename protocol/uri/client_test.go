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

package uri_test

import (
	"bytes"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/blinklabs-io/gotransfer/cbor"
	"github.com/blinklabs-io/gotransfer/internal/test"
	"github.com/blinklabs-io/gotransfer/protocol"
	"github.com/blinklabs-io/gotransfer/protocol/transfer"
	"github.com/blinklabs-io/gotransfer/protocol/uri"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type uriClientFixture struct {
	store          *transfer.Store
	registry       *uri.Registry
	client         *uri.Client
	transferClient *transfer.Client
	stop           func()
}

func newUriClientFixture(t *testing.T, uriVersion uint16) *uriClientFixture {
	t.Helper()
	transferClientSession, transferServerSession := test.NewSessionPair(transfer.VersionRefactor, 8)
	uriClientSession, uriServerSession := test.NewSessionPair(uriVersion, 4)
	store := transfer.NewStore()
	registry := uri.NewRegistry()
	transferServerCfg := transfer.NewConfig(transfer.WithStore(store))
	transferServer := transfer.NewServer(
		protocol.ProtocolOptions{Session: transferServerSession},
		&transferServerCfg,
	)
	uriServerCfg := uri.NewConfig(uri.WithStore(store), uri.WithRegistry(registry))
	uriServer := uri.NewServer(protocol.ProtocolOptions{Session: uriServerSession}, &uriServerCfg)
	transferClientCfg := transfer.NewConfig(
		transfer.WithRequestTimeout(2*time.Second),
		transfer.WithChunkTimeout(2*time.Second),
		transfer.WithRetryInterval(time.Millisecond),
	)
	transferClient := transfer.NewClient(
		protocol.ProtocolOptions{Session: transferClientSession},
		&transferClientCfg,
	)
	uriClientCfg := uri.NewConfig(
		uri.WithTransferClient(transferClient),
		uri.WithRequestTimeout(2*time.Second),
		uri.WithRetryInterval(time.Millisecond),
	)
	client := uri.NewClient(protocol.ProtocolOptions{Session: uriClientSession}, &uriClientCfg)
	return &uriClientFixture{
		store:          store,
		registry:       registry,
		client:         client,
		transferClient: transferClient,
		stop:           test.RunUpdates(transferServer.Update, uriServer.Update),
	}
}

func TestClientRequestText(t *testing.T) {
	defer goleak.VerifyNone(t)
	f := newUriClientFixture(t, uri.VersionResponseFormats)
	defer f.stop()
	f.registry.Register(newTextService("info", "hello "))
	data, header, err := f.client.RequestAll("info://world")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello world"), data)
	assert.Equal(t, len(data), header.Size)
	assert.Equal(t, uri.ResponseDataFormatText, header.Format)
	assert.NotEqual(t, transfer.InvalidBlockId, header.BlockId)
	assert.Equal(t, uri.StateIdle, f.client.State())
}

func TestClientRequestLarge(t *testing.T) {
	defer goleak.VerifyNone(t)
	f := newUriClientFixture(t, uri.VersionResponseFormats)
	defer f.stop()
	payload := test.RandomBytes(42, 50000)
	f.registry.Register(uri.NewServiceFunc(
		"large",
		func(_ string, block *transfer.ServerBlock) (uri.ResponseDataFormat, error) {
			_, err := block.Write(payload)
			return uri.ResponseDataFormatBinary, err
		},
	))
	header, err := f.client.Request("large:")
	require.NoError(t, err)
	assert.Equal(t, len(payload), header.Size)
	var received bytes.Buffer
	buf := make([]byte, 999)
	for {
		n, err := f.client.ReadResponse(buf)
		received.Write(buf[:n])
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
	}
	assert.Equal(t, payload, received.Bytes())
}

func TestClientEmptyResponse(t *testing.T) {
	defer goleak.VerifyNone(t)
	f := newUriClientFixture(t, uri.VersionResponseFormats)
	defer f.stop()
	f.registry.Register(newTextService("empty", ""))
	header, err := f.client.Request("empty:")
	require.NoError(t, err)
	assert.Equal(t, 0, header.Size)
	assert.Equal(t, uri.StateReadResponse, f.client.State())
	n, err := f.client.ReadResponse(make([]byte, 16))
	assert.Equal(t, 0, n)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, uri.StateIdle, f.client.State())
	// The transfer session is ready for the next request
	data, _, err := f.client.RequestAll("empty:")
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestClientRequestErrors(t *testing.T) {
	defer goleak.VerifyNone(t)
	f := newUriClientFixture(t, uri.VersionResponseFormats)
	defer f.stop()
	f.registry.Register(newTextService("info", "x"))
	_, err := f.client.Request("missing:")
	assert.ErrorIs(t, err, protocol.ErrUnavailable)
	_, err = f.client.Request("missing")
	assert.ErrorIs(t, err, protocol.ErrError)
	_, err = f.client.Request("info:" + strings.Repeat("a", uri.MaxRequestLength))
	assert.ErrorIs(t, err, uri.ErrRequestTooLong)
	_, err = f.client.ReadResponse(make([]byte, 16))
	assert.ErrorIs(t, err, uri.ErrNoRequest)
	assert.Equal(t, uri.StateIdle, f.client.State())
	data, _, err := f.client.RequestAll("info:")
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), data)
}

func TestClientRequestInProgress(t *testing.T) {
	defer goleak.VerifyNone(t)
	f := newUriClientFixture(t, uri.VersionResponseFormats)
	defer f.stop()
	f.registry.Register(newTextService("info", "pending"))
	_, err := f.client.Request("info:")
	require.NoError(t, err)
	_, err = f.client.Request("info:")
	assert.ErrorIs(t, err, uri.ErrRequestInProgress)
	require.NoError(t, f.client.AbortRequest())
}

func TestClientAbortRequest(t *testing.T) {
	defer goleak.VerifyNone(t)
	f := newUriClientFixture(t, uri.VersionResponseFormats)
	defer f.stop()
	f.registry.Register(uri.NewServiceFunc(
		"large",
		func(_ string, block *transfer.ServerBlock) (uri.ResponseDataFormat, error) {
			_, err := block.Write(test.RandomBytes(7, 200000))
			return uri.ResponseDataFormatBinary, err
		},
	))
	f.registry.Register(newTextService("info", "after abort"))
	_, err := f.client.Request("large:")
	require.NoError(t, err)
	buf := make([]byte, 4000)
	_, err = f.client.ReadResponse(buf)
	require.NoError(t, err)
	require.NoError(t, f.client.AbortRequest())
	assert.Equal(t, uri.StateIdle, f.client.State())
	assert.Equal(t, transfer.StateIdle, f.transferClient.State())
	data, _, err := f.client.RequestAll("info:")
	require.NoError(t, err)
	assert.Equal(t, []byte("after abort"), data)
}

func TestClientRequestCbor(t *testing.T) {
	defer goleak.VerifyNone(t)
	f := newUriClientFixture(t, uri.VersionResponseFormats)
	defer f.stop()
	type listing struct {
		cbor.StructAsArray
		Name  string
		Count uint64
	}
	f.registry.Register(uri.NewServiceFunc(
		"listing",
		func(args string, block *transfer.ServerBlock) (uri.ResponseDataFormat, error) {
			data, err := cbor.Encode(&listing{Name: args, Count: 3})
			if err != nil {
				return uri.ResponseDataFormatUnknown, err
			}
			_, err = block.Write(data)
			return uri.ResponseDataFormatBinary, err
		},
	))
	f.registry.Register(newTextService("info", "text"))
	var result listing
	header, err := f.client.RequestCbor("listing://blocks", &result)
	require.NoError(t, err)
	assert.Equal(t, uri.ResponseDataFormatBinary, header.Format)
	assert.Equal(t, "blocks", result.Name)
	assert.Equal(t, uint64(3), result.Count)
	_, err = f.client.RequestCbor("info:", &result)
	assert.ErrorContains(t, err, "expected binary")
}

func TestClientVersionInitial(t *testing.T) {
	defer goleak.VerifyNone(t)
	f := newUriClientFixture(t, uri.VersionInitial)
	defer f.stop()
	f.registry.Register(uri.NewServiceFunc(
		"bin",
		func(_ string, block *transfer.ServerBlock) (uri.ResponseDataFormat, error) {
			_, err := block.Write([]byte{0x01, 0x02})
			return uri.ResponseDataFormatBinary, err
		},
	))
	data, header, err := f.client.RequestAll("bin:")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x02}, data)
	// Version 1 responses carry no format and are always text
	assert.Equal(t, uri.ResponseDataFormatText, header.Format)
}
