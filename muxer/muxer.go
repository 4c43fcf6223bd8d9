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

// Package muxer implements the segment framing used to carry multiple protocol sessions over a
// single connection. Each registered protocol gets a buffered send and receive queue. The queue
// depth is what the protocol sessions see as transport back-pressure.
package muxer

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
)

const (
	// Magic number chosen to represent unknown protocols
	ProtocolUnknown uint16 = 0xabcd

	// Default depth of the per-protocol send and receive queues
	DefaultQueueSize = 64
)

var ErrMuxerShuttingDown = errors.New("muxer is shutting down")

type Muxer struct {
	conn              net.Conn
	sendMutex         sync.Mutex
	doneChan          chan struct{}
	errorChan         chan error
	protocolSenders   map[uint16]chan *Segment
	protocolReceivers map[uint16]chan *Segment
	protocolsMutex    sync.RWMutex
	waitGroup         sync.WaitGroup
	onceStart         sync.Once
	onceStop          sync.Once
}

// New returns a new Muxer for the provided connection. The muxer does not read from the
// connection until Start is called
func New(conn net.Conn) *Muxer {
	m := &Muxer{
		conn:              conn,
		doneChan:          make(chan struct{}),
		errorChan:         make(chan error, 10),
		protocolSenders:   make(map[uint16]chan *Segment),
		protocolReceivers: make(map[uint16]chan *Segment),
	}
	return m
}

// ErrorChan returns the channel for asynchronous muxer errors
func (m *Muxer) ErrorChan() chan error {
	return m.errorChan
}

// DoneChan returns a channel that is closed when the muxer shuts down
func (m *Muxer) DoneChan() <-chan struct{} {
	return m.doneChan
}

// Start begins reading segments from the connection
func (m *Muxer) Start() {
	m.onceStart.Do(func() {
		m.waitGroup.Add(1)
		go m.readLoop()
	})
}

// Stop shuts down the muxer and closes the underlying connection
func (m *Muxer) Stop() {
	m.onceStop.Do(func() {
		// Close doneChan to signify that we're shutting down
		close(m.doneChan)
		// Closing the connection unblocks the read loop
		_ = m.conn.Close()
		m.waitGroup.Wait()
		// Close ErrorChan to signify to consumer that we're shutting down
		close(m.errorChan)
	})
}

func (m *Muxer) sendError(err error) {
	// Immediately return if we're already shutting down
	select {
	case <-m.doneChan:
		return
	default:
	}
	// Send error to consumer without blocking shutdown
	select {
	case m.errorChan <- err:
	default:
	}
	// Stop the muxer on any error. This runs async because Stop waits on our own goroutines
	go m.Stop()
}

// RegisterProtocol creates the send and receive queues for a protocol. Segments written to the
// returned send channel are framed and written to the connection, and segments read from the
// connection for the protocol are delivered on the returned receive channel
func (m *Muxer) RegisterProtocol(protocolId uint16, queueSize int) (chan *Segment, chan *Segment) {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	// Generate channels
	senderChan := make(chan *Segment, queueSize)
	receiverChan := make(chan *Segment, queueSize)
	// Record channels in protocol sender/receiver maps
	m.protocolsMutex.Lock()
	m.protocolSenders[protocolId] = senderChan
	m.protocolReceivers[protocolId] = receiverChan
	m.protocolsMutex.Unlock()
	// Start Goroutine to handle outbound messages
	m.waitGroup.Add(1)
	go func() {
		defer m.waitGroup.Done()
		for {
			select {
			case <-m.doneChan:
				return
			case msg := <-senderChan:
				if err := m.Send(msg); err != nil {
					m.sendError(err)
					return
				}
			}
		}
	}()
	return senderChan, receiverChan
}

// Send writes a single segment to the connection
func (m *Muxer) Send(msg *Segment) error {
	if len(msg.Payload) > SegmentMaxPayloadLength {
		return fmt.Errorf(
			"payload length %d exceeds maximum of %d",
			len(msg.Payload),
			SegmentMaxPayloadLength,
		)
	}
	// We use a mutex to make sure only one protocol can send at a time
	m.sendMutex.Lock()
	defer m.sendMutex.Unlock()
	buf := bytes.NewBuffer(make([]byte, 0, SegmentHeaderLength+len(msg.Payload)))
	if err := binary.Write(buf, binary.BigEndian, msg.SegmentHeader); err != nil {
		return err
	}
	buf.Write(msg.Payload)
	if _, err := m.conn.Write(buf.Bytes()); err != nil {
		return err
	}
	return nil
}

func (m *Muxer) readLoop() {
	defer m.waitGroup.Done()
	for {
		header := SegmentHeader{}
		if err := binary.Read(m.conn, binary.BigEndian, &header); err != nil {
			m.handleReadError(err)
			return
		}
		msg := &Segment{
			SegmentHeader: header,
			Payload:       make([]byte, header.PayloadLength),
		}
		// We use ReadFull because it guarantees to read the expected number of bytes or
		// return an error
		if _, err := io.ReadFull(m.conn, msg.Payload); err != nil {
			m.handleReadError(err)
			return
		}
		// Send message payload to proper receiver
		m.protocolsMutex.RLock()
		recvChan := m.protocolReceivers[msg.GetProtocolId()]
		if recvChan == nil {
			// Try the "unknown protocol" receiver if we didn't find an explicit one
			recvChan = m.protocolReceivers[ProtocolUnknown]
		}
		m.protocolsMutex.RUnlock()
		if recvChan == nil {
			m.sendError(
				fmt.Errorf(
					"received message for unknown protocol ID %d",
					msg.GetProtocolId(),
				),
			)
			return
		}
		select {
		case <-m.doneChan:
			return
		case recvChan <- msg:
		}
	}
}

func (m *Muxer) handleReadError(err error) {
	// Errors caused by our own shutdown are not reported
	select {
	case <-m.doneChan:
		return
	default:
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		err = io.EOF
	}
	m.sendError(err)
}
