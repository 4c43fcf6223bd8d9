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

package transfer

import (
	"fmt"
	"hash/crc32"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/blinklabs-io/gotransfer/protocol"
)

// Client states
var (
	StateIdle               = protocol.NewState(1, "Idle")
	StateTransferInProgress = protocol.NewState(2, "TransferInProgress")
	StateError              = protocol.NewState(3, "Error")
)

// Client drives pull and push transfers against the remote block store. A client handles a
// single transfer at a time. A client that enters StateError must be reset before reuse
type Client struct {
	config           *Config
	session          protocol.Session
	logger           *slog.Logger
	mutex            sync.Mutex
	state            protocol.State
	transferType     TransferType
	blockId          BlockId
	totalBytes       uint32
	crc              uint32
	chunk            []byte
	chunkOffset      int
	sentinelReceived bool
}

// NewClient returns a new transfer client for the session
func NewClient(protoOptions protocol.ProtocolOptions, cfg *Config) *Client {
	if cfg == nil {
		tmpCfg := NewConfig()
		cfg = &tmpCfg
	}
	c := &Client{
		config:  cfg,
		session: protoOptions.Session,
		logger: protocol.ProtocolLogger(
			protoOptions.Logger,
			ProtocolName,
			protocol.ProtocolRoleClient,
			protoOptions.ConnectionId,
		),
		state: StateIdle,
	}
	return c
}

// State returns the current client state
func (c *Client) State() protocol.State {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.state
}

// Version returns the protocol version of the underlying session
func (c *Client) Version() uint16 {
	return c.session.Version()
}

// Reset abandons any transfer in progress and returns the client to StateIdle. Payloads already
// queued by the server are discarded
func (c *Client) Reset() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.logger.Debug(
		"resetting client",
		"state", c.state.String(),
	)
	for {
		if _, err := c.session.Receive(protocol.NoWait); err != nil {
			break
		}
	}
	c.resetContext()
	c.state = StateIdle
}

func (c *Client) resetContext() {
	c.transferType = TransferTypePull
	c.blockId = InvalidBlockId
	c.totalBytes = 0
	c.crc = 0
	c.chunk = nil
	c.chunkOffset = 0
	c.sentinelReceived = false
}

// RequestPullTransfer starts pulling the remote block and returns its size in bytes
func (c *Client) RequestPullTransfer(blockId BlockId) (int, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.state != StateIdle {
		return 0, c.invalidStateError("RequestPullTransfer")
	}
	c.logger.Debug(
		"requesting pull transfer",
		"block_id", blockId,
	)
	msg, err := c.transact(
		NewMsgTransferRequest(blockId, TransferTypePull, 0),
		c.config.RequestTimeout,
	)
	if err != nil {
		c.state = StateError
		return 0, err
	}
	var header *MsgDataHeader
	switch msg := msg.(type) {
	case *MsgDataHeader:
		header = msg
	case *MsgStatus:
		// The server rejects a pull of a missing or open block with a status
		c.state = StateError
		return 0, fmt.Errorf(
			"%s: pull of block %d failed: %w",
			ProtocolName,
			blockId,
			msg.Result.Err(),
		)
	default:
		c.state = StateError
		return 0, c.unexpectedMessageError(msg)
	}
	if header.Result != protocol.ResultSuccess {
		c.state = StateError
		return 0, fmt.Errorf(
			"%s: pull of block %d failed: %w",
			ProtocolName,
			blockId,
			header.Result.Err(),
		)
	}
	c.resetContext()
	c.state = StateTransferInProgress
	c.transferType = TransferTypePull
	c.blockId = blockId
	c.totalBytes = header.Size
	if header.Size == 0 {
		// The server sends the sentinel immediately for an empty block
		if err := c.receiveSentinel(); err != nil {
			return 0, err
		}
	}
	return int(header.Size), nil
}

// ReadPullTransferData reads block data from the pull transfer in progress. It returns io.EOF
// once all of the block data has been delivered, after which the client is idle
func (c *Client) ReadPullTransferData(buf []byte) (int, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.state != StateTransferInProgress || c.transferType != TransferTypePull {
		return 0, c.invalidStateError("ReadPullTransferData")
	}
	if c.totalBytes == 0 && c.chunkOffset == len(c.chunk) {
		c.state = StateIdle
		return 0, io.EOF
	}
	read := 0
	for read < len(buf) && c.state == StateTransferInProgress {
		if len(c.chunk) > c.chunkOffset {
			count := copy(buf[read:], c.chunk[c.chunkOffset:])
			c.chunkOffset += count
			read += count
			if c.chunkOffset == len(c.chunk) && c.totalBytes == 0 {
				c.state = StateIdle
				return read, io.EOF
			}
			continue
		}
		if c.totalBytes == 0 {
			break
		}
		msg, err := c.receiveMessage(c.config.ChunkTimeout)
		if err != nil {
			c.state = StateError
			return read, err
		}
		chunk, ok := msg.(*MsgDataChunk)
		if !ok {
			c.state = StateError
			return read, c.unexpectedMessageError(msg)
		}
		// Version 1 chunks are always padded to the full payload size, so the chunk is clamped
		// to the bytes remaining in the transfer
		size := min(len(chunk.Data), MaxChunkDataSize, int(c.totalBytes))
		c.chunk = chunk.Data[:size]
		c.chunkOffset = 0
		c.totalBytes -= uint32(size)
		c.crc = crc32.Update(c.crc, crc32.IEEETable, c.chunk)
		if c.totalBytes == 0 {
			if err := c.receiveSentinel(); err != nil {
				return read, err
			}
		}
	}
	return read, nil
}

func (c *Client) receiveSentinel() error {
	msg, err := c.receiveMessage(c.config.ChunkTimeout)
	if err != nil {
		c.state = StateError
		return err
	}
	sentinel, ok := msg.(*MsgDataSentinel)
	if !ok {
		c.state = StateError
		return c.unexpectedMessageError(msg)
	}
	if sentinel.Result != protocol.ResultSuccess {
		c.state = StateError
		return fmt.Errorf(
			"%s: transfer of block %d failed: %w",
			ProtocolName,
			c.blockId,
			sentinel.Result.Err(),
		)
	}
	// Version 1 servers do not report a usable CRC
	if c.session.Version() >= VersionRefactor && sentinel.Crc32 != c.crc {
		c.state = StateError
		c.logger.Warn(
			"pull transfer CRC mismatch",
			"block_id", c.blockId,
			"expected", sentinel.Crc32,
			"calculated", c.crc,
		)
		return fmt.Errorf(
			"%s: block %d: %w: expected %08x, calculated %08x",
			ProtocolName,
			c.blockId,
			ErrCrcMismatch,
			sentinel.Crc32,
			c.crc,
		)
	}
	c.sentinelReceived = true
	return nil
}

// AbortPullTransfer cancels the pull transfer in progress. Data still in flight is discarded
func (c *Client) AbortPullTransfer() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.state != StateTransferInProgress || c.transferType != TransferTypePull {
		return c.invalidStateError("AbortPullTransfer")
	}
	// Everything has already arrived, so there is nothing left to cancel on the server
	if c.sentinelReceived {
		c.resetContext()
		c.state = StateIdle
		return nil
	}
	c.logger.Debug(
		"aborting pull transfer",
		"block_id", c.blockId,
	)
	if err := c.sendMessage(NewMsgStatus(protocol.ResultAborted), c.config.RequestTimeout); err != nil {
		c.state = StateError
		return err
	}
	// Discard everything up to the sentinel answering the abort. A server that finished sending
	// before it saw the abort sends a success sentinel first
	for {
		msg, err := c.receiveMessage(c.config.RequestTimeout)
		if err != nil {
			c.state = StateError
			return err
		}
		sentinel, ok := msg.(*MsgDataSentinel)
		if !ok || sentinel.Result == protocol.ResultSuccess {
			continue
		}
		break
	}
	c.resetContext()
	c.state = StateIdle
	return nil
}

// RequestPushTransfer starts pushing size bytes into the open remote block
func (c *Client) RequestPushTransfer(blockId BlockId, size int) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.state != StateIdle {
		return c.invalidStateError("RequestPushTransfer")
	}
	if c.session.Version() < VersionRefactor {
		return fmt.Errorf(
			"%s: %w (session version %d): %w",
			ProtocolName,
			ErrPushNotSupported,
			c.session.Version(),
			protocol.ErrVersionMismatch,
		)
	}
	if blockId == InvalidBlockId {
		return fmt.Errorf("%s: %w", ProtocolName, ErrInvalidBlockId)
	}
	if size <= 0 || uint64(size) > uint64(^uint32(0)) {
		return fmt.Errorf("%s: invalid push transfer size %d", ProtocolName, size)
	}
	c.logger.Debug(
		"requesting push transfer",
		"block_id", blockId,
		"size", size,
	)
	msg, err := c.transact(
		NewMsgTransferRequest(blockId, TransferTypePush, uint32(size)),
		c.config.RequestTimeout,
	)
	if err != nil {
		c.state = StateError
		return err
	}
	status, ok := msg.(*MsgStatus)
	if !ok {
		c.state = StateError
		return c.unexpectedMessageError(msg)
	}
	if status.Result != protocol.ResultSuccess {
		return fmt.Errorf(
			"%s: push to block %d rejected: %w",
			ProtocolName,
			blockId,
			status.Result.Err(),
		)
	}
	c.resetContext()
	c.state = StateTransferInProgress
	c.transferType = TransferTypePush
	c.blockId = blockId
	c.totalBytes = uint32(size)
	return nil
}

// WritePushTransferData sends data for the push transfer in progress. Data beyond the size given
// to RequestPushTransfer is not sent and ErrTransferSizeExceeded is returned
func (c *Client) WritePushTransferData(data []byte) (int, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.state != StateTransferInProgress || c.transferType != TransferTypePush {
		return 0, c.invalidStateError("WritePushTransferData")
	}
	written := 0
	for written < len(data) && c.totalBytes > 0 {
		size := min(MaxChunkDataSize, int(c.totalBytes), len(data)-written)
		chunkData := data[written : written+size]
		if err := c.sendMessage(NewMsgDataChunk(chunkData), c.config.RequestTimeout); err != nil {
			c.state = StateError
			return written, err
		}
		c.crc = crc32.Update(c.crc, crc32.IEEETable, chunkData)
		c.totalBytes -= uint32(size)
		written += size
	}
	if written < len(data) {
		return written, fmt.Errorf("%s: %w", ProtocolName, ErrTransferSizeExceeded)
	}
	return written, nil
}

// ClosePushTransfer ends the push transfer in progress. On success the remote block is closed.
// With discard set the server drops the data and ErrAborted is returned
func (c *Client) ClosePushTransfer(discard bool) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.state != StateTransferInProgress || c.transferType != TransferTypePush {
		return c.invalidStateError("ClosePushTransfer")
	}
	result := protocol.ResultSuccess
	if discard {
		result = protocol.ResultAborted
	}
	msg, err := c.transact(NewMsgDataSentinel(result, c.crc), c.config.RequestTimeout)
	if err != nil {
		c.state = StateError
		return err
	}
	status, ok := msg.(*MsgStatus)
	if !ok {
		c.state = StateError
		return c.unexpectedMessageError(msg)
	}
	blockId := c.blockId
	// The server has concluded the transfer either way
	c.resetContext()
	c.state = StateIdle
	if status.Result != protocol.ResultSuccess {
		return fmt.Errorf(
			"%s: push to block %d failed: %w",
			ProtocolName,
			blockId,
			status.Result.Err(),
		)
	}
	return nil
}

func (c *Client) pullActive(blockId BlockId) bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.state == StateTransferInProgress &&
		c.transferType == TransferTypePull &&
		c.blockId == blockId
}

func (c *Client) pushActive(blockId BlockId) bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.state == StateTransferInProgress &&
		c.transferType == TransferTypePush &&
		c.blockId == blockId
}

func (c *Client) invalidStateError(operation string) error {
	return fmt.Errorf(
		"%s: %s: %w: %s",
		ProtocolName,
		operation,
		ErrInvalidState,
		c.state,
	)
}

func (c *Client) unexpectedMessageError(msg protocol.Message) error {
	c.logger.Warn(
		"received unexpected message",
		"message_type", msg.Type(),
	)
	return fmt.Errorf(
		"%s: %w %d",
		ProtocolName,
		ErrUnexpectedMessageType,
		msg.Type(),
	)
}

// sendMessage sends a message, retrying while the session is busy until the timeout expires
func (c *Client) sendMessage(msg protocol.Message, timeout time.Duration) error {
	err := protocol.SendPayload(
		c.session,
		c.config.Clock,
		msg.Payload(c.session.Version()),
		timeout,
		c.config.RetryInterval,
	)
	if err != nil {
		return fmt.Errorf("%s: send failed: %w", ProtocolName, err)
	}
	return nil
}

// receiveMessage waits for the next message until the timeout expires
func (c *Client) receiveMessage(timeout time.Duration) (protocol.Message, error) {
	data, err := protocol.ReceivePayload(
		c.session,
		c.config.Clock,
		timeout,
		c.config.RetryInterval,
	)
	if err != nil {
		return nil, fmt.Errorf("%s: receive failed: %w", ProtocolName, err)
	}
	return NewMsgFromPayload(c.session.Version(), data)
}

func (c *Client) transact(msg protocol.Message, timeout time.Duration) (protocol.Message, error) {
	if err := c.sendMessage(msg, timeout); err != nil {
		return nil, err
	}
	return c.receiveMessage(timeout)
}
