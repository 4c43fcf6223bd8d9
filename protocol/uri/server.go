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

package uri

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/blinklabs-io/gotransfer/protocol"
	"github.com/blinklabs-io/gotransfer/protocol/transfer"
)

// Server answers URI requests from a single remote client by dispatching them to the services in
// the configured Registry. Responses are written into a scratch block in the configured Store,
// which the client pulls with the transfer protocol
type Server struct {
	config         *Config
	registry       *Registry
	store          *transfer.Store
	session        protocol.Session
	logger         *slog.Logger
	mutex          sync.Mutex
	block          *transfer.ServerBlock
	pendingPayload []byte
	closed         bool
}

// NewServer returns a new URI server for the session
func NewServer(protoOptions protocol.ProtocolOptions, cfg *Config) *Server {
	if cfg == nil {
		tmpCfg := NewConfig()
		cfg = &tmpCfg
	}
	s := &Server{
		config:   cfg,
		registry: cfg.Registry,
		store:    cfg.Store,
		session:  protoOptions.Session,
		logger: protocol.ProtocolLogger(
			protoOptions.Logger,
			ProtocolName,
			protocol.ProtocolRoleServer,
			protoOptions.ConnectionId,
		),
	}
	if s.registry == nil {
		s.registry = NewRegistry()
	}
	if s.store == nil {
		s.store = transfer.NewStore()
	}
	return s
}

// Registry returns the services available to the remote client
func (s *Server) Registry() *Registry {
	return s.registry
}

// Store returns the block store that responses are written into
func (s *Server) Store() *transfer.Store {
	return s.store
}

// Update handles at most one request without blocking. A response that the session could not
// accept is retried before any new request is read. Only errors from the session are returned
func (s *Server) Update() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.closed {
		return protocol.ErrProtocolShuttingDown
	}
	if s.pendingPayload != nil {
		if err := s.session.Send(s.pendingPayload, protocol.NoWait); err != nil {
			return s.checkSessionError(err)
		}
		s.pendingPayload = nil
	}
	data, err := s.session.Receive(protocol.NoWait)
	if err != nil {
		return s.checkSessionError(err)
	}
	msg, err := NewMsgFromPayload(s.session.Version(), data)
	if err != nil {
		s.logger.Warn(
			"invalid message received",
			"error", err,
		)
		return s.respond(protocol.ResultError, transfer.InvalidBlockId, ResponseDataFormatUnknown)
	}
	request, ok := msg.(*MsgRequest)
	if !ok {
		s.logger.Warn(
			"received unexpected message",
			"message_type", msg.Type(),
		)
		return s.respond(protocol.ResultError, transfer.InvalidBlockId, ResponseDataFormatUnknown)
	}
	return s.handleRequest(request.Request)
}

// Close releases the scratch block from the store
func (s *Server) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.pendingPayload = nil
	if s.block != nil {
		s.store.ReleaseBlock(s.block)
		s.block = nil
	}
	return nil
}

func (s *Server) checkSessionError(err error) error {
	if errors.Is(err, protocol.ErrNotReady) {
		return nil
	}
	return fmt.Errorf("%s: session error: %w", ProtocolName, err)
}

func (s *Server) handleRequest(request string) error {
	start := s.config.Clock.Now()
	block := s.scratchBlock()
	name, args, err := ParseRequest(request)
	if err != nil {
		s.logger.Debug(
			"rejecting malformed request",
			"request", request,
		)
		s.config.Metrics.RecordUriRequest("", protocol.ResultError.String(), 0)
		return s.respond(protocol.ResultError, transfer.InvalidBlockId, ResponseDataFormatUnknown)
	}
	service := s.registry.Find(name)
	if service == nil {
		s.logger.Debug(
			"service not found",
			"service", name,
		)
		s.config.Metrics.RecordUriRequest(name, protocol.ResultUnavailable.String(), 0)
		return s.respond(protocol.ResultUnavailable, transfer.InvalidBlockId, ResponseDataFormatUnknown)
	}
	format, err := service.HandleRequest(args, block)
	// The block is closed even when the service fails
	_ = block.Close()
	duration := s.config.Clock.Since(start)
	if err != nil {
		result := protocol.ResultFromError(err)
		if result == protocol.ResultSuccess || result == protocol.ResultEndOfStream {
			result = protocol.ResultError
		}
		s.logger.Debug(
			"service request failed",
			"service", name,
			"error", err,
		)
		s.config.Metrics.RecordUriRequest(name, result.String(), duration)
		return s.respond(result, transfer.InvalidBlockId, ResponseDataFormatUnknown)
	}
	s.logger.Debug(
		"service request complete",
		"service", name,
		"block_id", block.Id(),
		"size", block.Size(),
		"format", format.String(),
	)
	s.config.Metrics.RecordUriRequest(name, protocol.ResultSuccess.String(), duration)
	return s.respond(protocol.ResultSuccess, block.Id(), format)
}

// scratchBlock returns an open and empty block for the next response. The previous block is
// reused unless a transfer still references it or it left the store
func (s *Server) scratchBlock() *transfer.ServerBlock {
	if s.block != nil {
		if s.store.GetBlock(s.block.Id()) == s.block && s.block.TryReset() {
			return s.block
		}
		s.store.ReleaseBlock(s.block)
	}
	s.block = s.store.CreateBlock()
	return s.block
}

func (s *Server) respond(
	result protocol.Result,
	blockId transfer.BlockId,
	format ResponseDataFormat,
) error {
	payload := NewMsgResponse(result, blockId, format).Payload(s.session.Version())
	if err := s.session.Send(payload, protocol.NoWait); err != nil {
		if errors.Is(err, protocol.ErrNotReady) {
			s.pendingPayload = payload
			return nil
		}
		return s.checkSessionError(err)
	}
	return nil
}
