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

package protocol

import (
	"fmt"
	"time"

	"github.com/blinklabs-io/gotransfer/muxer"
)

// Channel is a Session that carries payloads for a single protocol over a muxer. The depth of
// the muxer queues determines when Send reports ErrNotReady
type Channel struct {
	protocolId uint16
	version    uint16
	isResponse bool
	sendChan   chan *muxer.Segment
	recvChan   chan *muxer.Segment
	doneChan   <-chan struct{}
}

// NewChannel registers the protocol with the muxer and returns a Channel for it. The responding
// side of a connection sets isResponse
func NewChannel(
	m *muxer.Muxer,
	protocolId uint16,
	version uint16,
	isResponse bool,
	queueSize int,
) *Channel {
	sendChan, recvChan := m.RegisterProtocol(protocolId, queueSize)
	return &Channel{
		protocolId: protocolId,
		version:    version,
		isResponse: isResponse,
		sendChan:   sendChan,
		recvChan:   recvChan,
		doneChan:   m.DoneChan(),
	}
}

func (c *Channel) Version() uint16 {
	return c.version
}

func (c *Channel) Send(payload []byte, timeout time.Duration) error {
	if len(payload) > MaxPayloadSize {
		return fmt.Errorf(
			"%w: %d bytes",
			ErrProtocolViolationPayloadTooLarge,
			len(payload),
		)
	}
	// The caller may reuse its buffer once we return
	data := make([]byte, len(payload))
	copy(data, payload)
	segment := muxer.NewSegment(c.protocolId, data, c.isResponse)
	select {
	case <-c.doneChan:
		return ErrProtocolShuttingDown
	default:
	}
	if timeout == NoWait {
		select {
		case c.sendChan <- segment:
			return nil
		default:
			return ErrNotReady
		}
	}
	var timeoutChan <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutChan = timer.C
	}
	select {
	case <-c.doneChan:
		return ErrProtocolShuttingDown
	case c.sendChan <- segment:
		return nil
	case <-timeoutChan:
		return ErrNotReady
	}
}

func (c *Channel) Receive(timeout time.Duration) ([]byte, error) {
	// Deliver anything already queued before reporting shutdown
	select {
	case segment := <-c.recvChan:
		return segment.Payload, nil
	default:
	}
	if timeout == NoWait {
		select {
		case <-c.doneChan:
			return nil, ErrProtocolShuttingDown
		default:
			return nil, ErrNotReady
		}
	}
	var timeoutChan <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutChan = timer.C
	}
	select {
	case <-c.doneChan:
		return nil, ErrProtocolShuttingDown
	case segment := <-c.recvChan:
		return segment.Payload, nil
	case <-timeoutChan:
		return nil, ErrNotReady
	}
}
