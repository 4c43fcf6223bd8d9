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

// Package protocol provides the common functionality shared by the transfer and URI protocols
package protocol

import (
	"fmt"
	"log/slog"
	"net"
	"time"
)

const (
	// Maximum size of a single message, including the message bus header
	MaxMessageSize = 1408
	// Size of the message bus header that precedes each payload
	MessageHeaderSize = 24
	// Maximum size of a payload carried by a Session
	MaxPayloadSize = MaxMessageSize - MessageHeaderSize
)

const (
	// NoWait makes Send and Receive return ErrNotReady immediately instead of blocking
	NoWait time.Duration = 0
	// InfiniteTimeout makes Send and Receive block until they succeed or the session closes
	InfiniteTimeout time.Duration = -1
)

// Session is a bidirectional channel of bounded size payloads between a local and a remote
// endpoint. Send and Receive return ErrNotReady when the operation could not complete within the
// timeout
type Session interface {
	Send(payload []byte, timeout time.Duration) error
	Receive(timeout time.Duration) ([]byte, error)
	Version() uint16
}

// ConnectionId uniquely identifies a connection by its endpoints
type ConnectionId struct {
	LocalAddr  net.Addr
	RemoteAddr net.Addr
}

func (c ConnectionId) String() string {
	var localAddr, remoteAddr string
	if c.LocalAddr != nil {
		localAddr = c.LocalAddr.String()
	}
	if c.RemoteAddr != nil {
		remoteAddr = c.RemoteAddr.String()
	}
	return fmt.Sprintf("%s<>%s", localAddr, remoteAddr)
}

// ProtocolOptions provides the common options used by all protocol clients and servers
type ProtocolOptions struct {
	ConnectionId ConnectionId
	Session      Session
	Logger       *slog.Logger
}

// ProtocolLogger returns a logger annotated with the standard protocol attributes
func ProtocolLogger(
	logger *slog.Logger,
	protocolName string,
	role string,
	connId ConnectionId,
) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With(
		"component", "network",
		"protocol", protocolName,
		"role", role,
		"connection_id", connId.String(),
	)
}

const (
	ProtocolRoleClient = "client"
	ProtocolRoleServer = "server"
)
