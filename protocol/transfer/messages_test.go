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

package transfer_test

import (
	"testing"

	"github.com/blinklabs-io/gotransfer/internal/test"
	"github.com/blinklabs-io/gotransfer/protocol"
	"github.com/blinklabs-io/gotransfer/protocol/transfer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageEncoding(t *testing.T) {
	testDefs := []struct {
		msg      protocol.Message
		version  uint16
		expected []byte
	}{
		{
			msg:      transfer.NewMsgTransferRequest(0x01020304, transfer.TransferTypePush, 10000),
			version:  transfer.VersionRefactor,
			expected: test.DecodeHexString("01000000040302010100000010270000"),
		},
		{
			msg:      transfer.NewMsgDataHeader(protocol.ResultSuccess, 0x100),
			version:  transfer.VersionRefactor,
			expected: test.DecodeHexString("0200000000010000"),
		},
		{
			msg:      transfer.NewMsgDataChunk([]byte{0xaa, 0xbb}),
			version:  transfer.VersionRefactor,
			expected: test.DecodeHexString("03000000aabb"),
		},
		{
			msg:      transfer.NewMsgDataSentinel(protocol.ResultAborted, 0xdeadbeef),
			version:  transfer.VersionRefactor,
			expected: test.DecodeHexString("0400000007000000efbeadde"),
		},
		{
			msg:      transfer.NewMsgStatus(protocol.ResultError),
			version:  transfer.VersionRefactor,
			expected: test.DecodeHexString("0500000001000000"),
		},
	}
	for _, testDef := range testDefs {
		payload := testDef.msg.Payload(testDef.version)
		assert.Equal(t, testDef.expected, payload)
		msg, err := transfer.NewMsgFromPayload(testDef.version, payload)
		require.NoError(t, err)
		assert.Equal(t, testDef.msg, msg)
	}
}

func TestMessageVersion1Padding(t *testing.T) {
	header := transfer.NewMsgDataHeader(protocol.ResultError, 42)
	payload := header.Payload(transfer.VersionInitial)
	require.Len(t, payload, protocol.MaxPayloadSize)
	assert.Equal(t, test.DecodeHexString("02000000010000002a000000"), payload[:12])
	msg, err := transfer.NewMsgFromPayload(transfer.VersionInitial, payload)
	require.NoError(t, err)
	assert.Equal(t, header, msg)
	chunk := transfer.NewMsgDataChunk([]byte("abc")).Payload(transfer.VersionInitial)
	require.Len(t, chunk, protocol.MaxPayloadSize)
	msg, err = transfer.NewMsgFromPayload(transfer.VersionInitial, chunk)
	require.NoError(t, err)
	// Padding is delivered with the chunk data
	assert.Len(t, msg.(*transfer.MsgDataChunk).Data, transfer.MaxChunkDataSize)
}

func TestMessageDecodeErrors(t *testing.T) {
	testDefs := [][]byte{
		nil,
		{0x01, 0, 0},
		{0x09, 0, 0, 0},
		test.DecodeHexString("0100000004030201"),
		test.DecodeHexString("02000000"),
		test.DecodeHexString("0400000007000000"),
	}
	for _, data := range testDefs {
		_, err := transfer.NewMsgFromPayload(transfer.VersionRefactor, data)
		assert.ErrorIs(t, err, protocol.ErrProtocolViolationInvalidMessage, "payload %x", data)
	}
}

func TestMaxChunkDataSize(t *testing.T) {
	assert.Equal(t, 1380, transfer.MaxChunkDataSize)
	payload := transfer.NewMsgDataChunk(make([]byte, transfer.MaxChunkDataSize)).Payload(transfer.VersionRefactor)
	assert.Len(t, payload, protocol.MaxPayloadSize)
}
