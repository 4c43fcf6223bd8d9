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

package test

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/blinklabs-io/gotransfer/protocol"
)

var ErrSessionClosed = errors.New("session closed")

// Session is an in-memory protocol.Session. Sessions are created in connected pairs
type Session struct {
	version  uint16
	sendChan chan []byte
	recvChan chan []byte
	busy     atomic.Bool
	sent     atomic.Int64
	doneChan chan struct{}
	onceStop *sync.Once
}

// NewSessionPair returns two connected sessions. Each direction buffers up to depth payloads
// before Send reports protocol.ErrNotReady
func NewSessionPair(version uint16, depth int) (*Session, *Session) {
	aToB := make(chan []byte, depth)
	bToA := make(chan []byte, depth)
	doneChan := make(chan struct{})
	onceStop := &sync.Once{}
	a := &Session{
		version:  version,
		sendChan: aToB,
		recvChan: bToA,
		doneChan: doneChan,
		onceStop: onceStop,
	}
	b := &Session{
		version:  version,
		sendChan: bToA,
		recvChan: aToB,
		doneChan: doneChan,
		onceStop: onceStop,
	}
	return a, b
}

// SetBusy makes Send report protocol.ErrNotReady without queueing while busy is true
func (s *Session) SetBusy(busy bool) {
	s.busy.Store(busy)
}

// Sent returns the number of payloads successfully sent
func (s *Session) Sent() int {
	return int(s.sent.Load())
}

// Pending returns the number of payloads waiting to be received by this session
func (s *Session) Pending() int {
	return len(s.recvChan)
}

// Close shuts down both sessions of the pair
func (s *Session) Close() {
	s.onceStop.Do(func() {
		close(s.doneChan)
	})
}

func (s *Session) Version() uint16 {
	return s.version
}

func (s *Session) Send(payload []byte, timeout time.Duration) error {
	select {
	case <-s.doneChan:
		return ErrSessionClosed
	default:
	}
	if len(payload) > protocol.MaxPayloadSize {
		return protocol.ErrProtocolViolationPayloadTooLarge
	}
	if s.busy.Load() {
		return protocol.ErrNotReady
	}
	data := make([]byte, len(payload))
	copy(data, payload)
	var timeoutChan <-chan time.Time
	switch {
	case timeout == protocol.NoWait:
		select {
		case s.sendChan <- data:
			s.sent.Add(1)
			return nil
		default:
			return protocol.ErrNotReady
		}
	case timeout > 0:
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutChan = timer.C
	}
	select {
	case <-s.doneChan:
		return ErrSessionClosed
	case s.sendChan <- data:
		s.sent.Add(1)
		return nil
	case <-timeoutChan:
		return protocol.ErrNotReady
	}
}

func (s *Session) Receive(timeout time.Duration) ([]byte, error) {
	select {
	case data := <-s.recvChan:
		return data, nil
	default:
	}
	var timeoutChan <-chan time.Time
	switch {
	case timeout == protocol.NoWait:
		select {
		case <-s.doneChan:
			return nil, ErrSessionClosed
		default:
			return nil, protocol.ErrNotReady
		}
	case timeout > 0:
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutChan = timer.C
	}
	select {
	case <-s.doneChan:
		return nil, ErrSessionClosed
	case data := <-s.recvChan:
		return data, nil
	case <-timeoutChan:
		return nil, protocol.ErrNotReady
	}
}
