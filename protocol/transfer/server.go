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
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/blinklabs-io/gotransfer/metrics"
	"github.com/blinklabs-io/gotransfer/protocol"
)

// Server states
var (
	ServerStateIdle                    = protocol.NewState(1, "Idle")
	ServerStateSendPayload             = protocol.NewState(2, "SendPayload")
	ServerStateStartPullTransfer       = protocol.NewState(3, "StartPullTransfer")
	ServerStateProcessPullTransfer     = protocol.NewState(4, "ProcessPullTransfer")
	ServerStateStartPushTransfer       = protocol.NewState(5, "StartPushTransfer")
	ServerStateReceivePushTransferData = protocol.NewState(6, "ReceivePushTransferData")
)

// Server answers transfer requests from a single remote client using the blocks in the
// configured Store. The server never blocks: each call to Update performs the work that the
// session allows without waiting and returns
type Server struct {
	config           *Config
	store            *Store
	session          protocol.Session
	logger           *slog.Logger
	mutex            sync.Mutex
	state            protocol.State
	pendingPayload   []byte
	block            *ServerBlock
	transferType     TransferType
	totalBytes       int
	bytesTransferred int
	crc              uint32
	chunkBuf         []byte
	closed           bool
}

// NewServer returns a new transfer server for the session. A server without a configured Store
// gets an empty one
func NewServer(protoOptions protocol.ProtocolOptions, cfg *Config) *Server {
	if cfg == nil {
		tmpCfg := NewConfig()
		cfg = &tmpCfg
	}
	s := &Server{
		config:  cfg,
		store:   cfg.Store,
		session: protoOptions.Session,
		logger: protocol.ProtocolLogger(
			protoOptions.Logger,
			ProtocolName,
			protocol.ProtocolRoleServer,
			protoOptions.ConnectionId,
		),
		state:    ServerStateIdle,
		chunkBuf: make([]byte, MaxChunkDataSize),
	}
	if s.store == nil {
		s.store = NewStore()
	}
	return s
}

// Store returns the block store served to the remote client
func (s *Server) Store() *Store {
	return s.store
}

// State returns the current server state
func (s *Server) State() protocol.State {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.state
}

// Update advances the server state machine. Only errors from the session are returned. Protocol
// errors by the peer are answered on the wire
func (s *Server) Update() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.closed {
		return protocol.ErrProtocolShuttingDown
	}
	switch s.state {
	case ServerStateIdle:
		data, err := s.session.Receive(protocol.NoWait)
		if err != nil {
			return s.checkSessionError(err)
		}
		return s.processPayload(data)
	case ServerStateSendPayload:
		return s.sendPendingPayloadAndMoveToIdle()
	case ServerStateStartPullTransfer:
		return s.sendPullTransferHeader()
	case ServerStateProcessPullTransfer:
		return s.processPullTransfer()
	case ServerStateStartPushTransfer:
		return s.startPushTransfer()
	case ServerStateReceivePushTransferData:
		return s.receivePushTransferData()
	}
	return fmt.Errorf("%s: unknown server state %s", ProtocolName, s.state)
}

// Close releases the transfer reference held by the server. A block that was partially pushed is
// reset
func (s *Server) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.block != nil {
		if s.transferType == TransferTypePush {
			s.block.Reset()
		}
		s.endTransfer()
	}
	s.pendingPayload = nil
	s.state = ServerStateIdle
	return nil
}

func (s *Server) checkSessionError(err error) error {
	if errors.Is(err, protocol.ErrNotReady) {
		return nil
	}
	return fmt.Errorf("%s: session error: %w", ProtocolName, err)
}

func (s *Server) send(msg protocol.Message) error {
	return s.session.Send(msg.Payload(s.session.Version()), protocol.NoWait)
}

func (s *Server) queueAndSend(msg protocol.Message) error {
	s.pendingPayload = msg.Payload(s.session.Version())
	s.state = ServerStateSendPayload
	return s.sendPendingPayloadAndMoveToIdle()
}

func (s *Server) sendPendingPayloadAndMoveToIdle() error {
	if err := s.session.Send(s.pendingPayload, protocol.NoWait); err != nil {
		return s.checkSessionError(err)
	}
	s.pendingPayload = nil
	s.state = ServerStateIdle
	return nil
}

func (s *Server) reject(transferType TransferType, reason string, args ...any) error {
	s.logger.Debug(
		"rejecting transfer request: "+reason,
		args...,
	)
	s.config.Metrics.RecordTransferRequest(
		transferType.String(),
		protocol.ResultError.String(),
	)
	return s.queueAndSend(NewMsgStatus(protocol.ResultError))
}

func (s *Server) processPayload(data []byte) error {
	msg, err := NewMsgFromPayload(s.session.Version(), data)
	if err != nil {
		s.logger.Warn(
			"invalid message received",
			"error", err,
		)
		return s.queueAndSend(NewMsgStatus(protocol.ResultError))
	}
	switch msg := msg.(type) {
	case *MsgTransferRequest:
		return s.handleTransferRequest(msg)
	case *MsgStatus:
		// An abort can arrive after all of the data already fit in the send window. The client
		// still waits for a sentinel answering it
		s.logger.Debug(
			"received status while idle",
			"result", msg.Result.String(),
		)
		return s.queueAndSend(NewMsgDataSentinel(protocol.ResultAborted, 0))
	default:
		s.logger.Warn(
			"received unexpected message while idle",
			"message_type", msg.Type(),
		)
		return s.queueAndSend(NewMsgStatus(protocol.ResultError))
	}
}

func (s *Server) handleTransferRequest(msg *MsgTransferRequest) error {
	switch msg.TransferType {
	case TransferTypePull:
		block := s.store.GetBlock(msg.BlockId)
		if block == nil {
			return s.reject(msg.TransferType, "block not found", "block_id", msg.BlockId)
		}
		if !block.acquireForTransfer(TransferTypePull) {
			return s.reject(msg.TransferType, "block not closed", "block_id", msg.BlockId)
		}
		s.beginTransfer(block, TransferTypePull)
		// A closed block is immutable while the transfer holds it
		s.totalBytes = block.Size()
		s.crc = block.Crc32()
		s.logger.Debug(
			"starting pull transfer",
			"block_id", msg.BlockId,
			"size", s.totalBytes,
		)
		s.config.Metrics.RecordTransferRequest(
			msg.TransferType.String(),
			protocol.ResultSuccess.String(),
		)
		s.pendingPayload = NewMsgDataHeader(
			protocol.ResultSuccess,
			uint32(s.totalBytes),
		).Payload(s.session.Version())
		s.state = ServerStateStartPullTransfer
		return s.sendPullTransferHeader()
	case TransferTypePush:
		if s.session.Version() < VersionRefactor {
			return s.reject(
				msg.TransferType,
				"push not supported by session version",
				"version", s.session.Version(),
			)
		}
		if msg.Size == 0 {
			return s.reject(msg.TransferType, "empty push", "block_id", msg.BlockId)
		}
		block := s.store.GetBlock(msg.BlockId)
		if block == nil {
			return s.reject(msg.TransferType, "block not found", "block_id", msg.BlockId)
		}
		if !block.acquireForTransfer(TransferTypePush) {
			return s.reject(msg.TransferType, "block not writable", "block_id", msg.BlockId)
		}
		s.beginTransfer(block, TransferTypePush)
		s.totalBytes = int(msg.Size)
		block.Reserve(s.totalBytes)
		s.logger.Debug(
			"starting push transfer",
			"block_id", msg.BlockId,
			"size", s.totalBytes,
		)
		s.config.Metrics.RecordTransferRequest(
			msg.TransferType.String(),
			protocol.ResultSuccess.String(),
		)
		s.pendingPayload = NewMsgStatus(protocol.ResultSuccess).Payload(s.session.Version())
		s.state = ServerStateStartPushTransfer
		return s.startPushTransfer()
	default:
		return s.reject(msg.TransferType, "unknown transfer type", "type", uint32(msg.TransferType))
	}
}

func (s *Server) beginTransfer(block *ServerBlock, transferType TransferType) {
	s.block = block
	s.transferType = transferType
	s.totalBytes = 0
	s.bytesTransferred = 0
	s.crc = 0
	s.config.Metrics.RecordTransferStart()
}

func (s *Server) endTransfer() {
	if s.block == nil {
		return
	}
	s.block.EndTransfer()
	s.block = nil
	s.config.Metrics.RecordTransferEnd()
}

func (s *Server) sendPullTransferHeader() error {
	if err := s.session.Send(s.pendingPayload, protocol.NoWait); err != nil {
		return s.checkSessionError(err)
	}
	s.pendingPayload = nil
	s.state = ServerStateProcessPullTransfer
	return s.processPullTransfer()
}

func (s *Server) processPullTransfer() error {
	// Look for an abort request from the client
	data, err := s.session.Receive(protocol.NoWait)
	if err == nil {
		msg, err := NewMsgFromPayload(s.session.Version(), data)
		s.endTransfer()
		if err == nil && msg.Type() == MessageTypeStatus {
			s.logger.Debug("pull transfer aborted by client")
			return s.queueAndSend(NewMsgDataSentinel(protocol.ResultAborted, 0))
		}
		s.logger.Warn(
			"received unexpected message during pull transfer",
			"error", err,
		)
		return s.queueAndSend(NewMsgDataSentinel(protocol.ResultError, 0))
	}
	if !errors.Is(err, protocol.ErrNotReady) {
		return s.checkSessionError(err)
	}
	// Send as many chunks as the session accepts without blocking
	for s.bytesTransferred < s.totalBytes {
		size := min(MaxChunkDataSize, s.totalBytes-s.bytesTransferred)
		count, _ := s.block.ReadAt(s.chunkBuf[:size], int64(s.bytesTransferred))
		if count != size {
			// The block shrank under the transfer
			s.logger.Warn(
				"pull transfer block data unavailable",
				"block_id", s.block.Id(),
			)
			s.endTransfer()
			return s.queueAndSend(NewMsgDataSentinel(protocol.ResultError, 0))
		}
		if err := s.send(NewMsgDataChunk(s.chunkBuf[:size])); err != nil {
			if errors.Is(err, protocol.ErrNotReady) {
				return nil
			}
			return s.checkSessionError(err)
		}
		s.bytesTransferred += size
		s.config.Metrics.AddTransferBytes(metrics.DirectionSent, size)
	}
	s.logger.Debug(
		"pull transfer complete",
		"block_id", s.block.Id(),
		"size", s.totalBytes,
	)
	s.endTransfer()
	return s.queueAndSend(NewMsgDataSentinel(protocol.ResultSuccess, s.crc))
}

func (s *Server) startPushTransfer() error {
	if err := s.session.Send(s.pendingPayload, protocol.NoWait); err != nil {
		return s.checkSessionError(err)
	}
	s.pendingPayload = nil
	s.state = ServerStateReceivePushTransferData
	return nil
}

func (s *Server) receivePushTransferData() error {
	for s.state == ServerStateReceivePushTransferData {
		data, err := s.session.Receive(protocol.NoWait)
		if err != nil {
			return s.checkSessionError(err)
		}
		msg, err := NewMsgFromPayload(s.session.Version(), data)
		if err != nil {
			s.logger.Warn(
				"invalid message received during push transfer",
				"error", err,
			)
			return s.cancelTransfer(protocol.ResultError)
		}
		switch msg := msg.(type) {
		case *MsgDataChunk:
			remaining := s.totalBytes - s.bytesTransferred
			if len(msg.Data) > remaining {
				s.logger.Warn(
					"client wrote more than the requested bytes",
					"block_id", s.block.Id(),
					"size", s.totalBytes,
				)
				return s.cancelTransfer(protocol.ResultInsufficientMemory)
			}
			if _, err := s.block.Write(msg.Data); err != nil {
				s.logger.Warn(
					"failed to write pushed data",
					"block_id", s.block.Id(),
					"error", err,
				)
				return s.cancelTransfer(protocol.ResultError)
			}
			s.bytesTransferred += len(msg.Data)
			s.config.Metrics.AddTransferBytes(metrics.DirectionReceived, len(msg.Data))
		case *MsgDataSentinel:
			if msg.Result != protocol.ResultSuccess {
				reason := protocol.ResultError
				if msg.Result == protocol.ResultAborted {
					reason = protocol.ResultAborted
				}
				s.logger.Debug(
					"push transfer ended by client",
					"block_id", s.block.Id(),
					"result", msg.Result.String(),
				)
				return s.cancelTransfer(reason)
			}
			if s.bytesTransferred != s.totalBytes {
				s.logger.Warn(
					"push transfer ended early",
					"block_id", s.block.Id(),
					"size", s.totalBytes,
					"received", s.bytesTransferred,
				)
				return s.cancelTransfer(protocol.ResultError)
			}
			if crc := s.block.Crc32(); crc != msg.Crc32 {
				s.logger.Warn(
					"push transfer CRC mismatch",
					"block_id", s.block.Id(),
					"expected", msg.Crc32,
					"calculated", crc,
				)
				s.config.Metrics.RecordCrcFailure()
				return s.cancelTransfer(protocol.ResultError)
			}
			if err := s.block.Close(); err != nil {
				return s.cancelTransfer(protocol.ResultError)
			}
			s.logger.Debug(
				"push transfer complete",
				"block_id", s.block.Id(),
				"size", s.totalBytes,
			)
			s.endTransfer()
			return s.queueAndSend(NewMsgStatus(protocol.ResultSuccess))
		default:
			s.logger.Warn(
				"received unexpected message during push transfer",
				"message_type", msg.Type(),
			)
			return s.cancelTransfer(protocol.ResultError)
		}
	}
	return nil
}

// cancelTransfer discards the data pushed so far and reports the reason to the client
func (s *Server) cancelTransfer(reason protocol.Result) error {
	if s.block != nil {
		s.block.Reset()
		s.endTransfer()
	}
	return s.queueAndSend(NewMsgStatus(reason))
}
