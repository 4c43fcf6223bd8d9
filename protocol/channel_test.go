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

package protocol_test

import (
	"bytes"
	"net"
	"testing"
	"time"

	"github.com/blinklabs-io/gotransfer/muxer"
	"github.com/blinklabs-io/gotransfer/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

const testProtocolId uint16 = 251

func newChannelPair(t *testing.T, queueSize int) (*protocol.Channel, *protocol.Channel, func()) {
	t.Helper()
	connA, connB := net.Pipe()
	muxA := muxer.New(connA)
	muxB := muxer.New(connB)
	chanA := protocol.NewChannel(muxA, testProtocolId, 2, false, queueSize)
	chanB := protocol.NewChannel(muxB, testProtocolId, 2, true, queueSize)
	muxA.Start()
	muxB.Start()
	return chanA, chanB, func() {
		muxA.Stop()
		muxB.Stop()
	}
}

func TestChannelSendReceive(t *testing.T) {
	defer goleak.VerifyNone(t)
	chanA, chanB, stop := newChannelPair(t, 4)
	defer stop()
	assert.Equal(t, uint16(2), chanA.Version())
	payload := []byte("hello")
	require.NoError(t, chanA.Send(payload, time.Second))
	// The channel must not retain the caller's buffer
	payload[0] = 'j'
	data, err := chanB.Receive(time.Second)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)
	require.NoError(t, chanB.Send([]byte("reply"), protocol.InfiniteTimeout))
	data, err = chanA.Receive(protocol.InfiniteTimeout)
	require.NoError(t, err)
	assert.Equal(t, []byte("reply"), data)
}

func TestChannelReceiveNotReady(t *testing.T) {
	defer goleak.VerifyNone(t)
	chanA, _, stop := newChannelPair(t, 4)
	defer stop()
	_, err := chanA.Receive(protocol.NoWait)
	assert.ErrorIs(t, err, protocol.ErrNotReady)
	_, err = chanA.Receive(10 * time.Millisecond)
	assert.ErrorIs(t, err, protocol.ErrNotReady)
}

func TestChannelPayloadTooLarge(t *testing.T) {
	defer goleak.VerifyNone(t)
	chanA, _, stop := newChannelPair(t, 4)
	defer stop()
	err := chanA.Send(bytes.Repeat([]byte{1}, protocol.MaxPayloadSize+1), time.Second)
	assert.ErrorIs(t, err, protocol.ErrProtocolViolationPayloadTooLarge)
	assert.NoError(t, chanA.Send(bytes.Repeat([]byte{1}, protocol.MaxPayloadSize), time.Second))
}

func TestChannelShutdown(t *testing.T) {
	defer goleak.VerifyNone(t)
	chanA, _, stop := newChannelPair(t, 4)
	stop()
	_, err := chanA.Receive(time.Second)
	assert.ErrorIs(t, err, protocol.ErrProtocolShuttingDown)
	err = chanA.Send([]byte{1}, time.Second)
	assert.ErrorIs(t, err, protocol.ErrProtocolShuttingDown)
}
