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

package gotransfer

import (
	"log/slog"
	"net"

	"github.com/blinklabs-io/gotransfer/protocol/transfer"
	"github.com/blinklabs-io/gotransfer/protocol/uri"
)

// ConnectionOptionFunc is a type that represents functions that modify the Connection config
type ConnectionOptionFunc func(*Connection)

// WithConnection specifies an existing connection to use. If none is provided, the Dial() function can be
// used to create one later
func WithConnection(conn net.Conn) ConnectionOptionFunc {
	return func(c *Connection) {
		c.conn = conn
	}
}

// WithErrorChan specifies the error channel to use. If none is provided, one will be created
func WithErrorChan(errorChan chan error) ConnectionOptionFunc {
	return func(c *Connection) {
		c.errorChan = errorChan
	}
}

// WithServer specifies whether to act as a server. A server answers transfer and URI requests from
// its store, while a client issues them
func WithServer(server bool) ConnectionOptionFunc {
	return func(c *Connection) {
		c.server = server
	}
}

// WithTransferVersion specifies the transfer protocol version to speak
func WithTransferVersion(version uint16) ConnectionOptionFunc {
	return func(c *Connection) {
		c.transferVersion = version
	}
}

// WithUriVersion specifies the URI protocol version to speak
func WithUriVersion(version uint16) ConnectionOptionFunc {
	return func(c *Connection) {
		c.uriVersion = version
	}
}

// WithLogger specifies the logger for the connection and its protocols
func WithLogger(logger *slog.Logger) ConnectionOptionFunc {
	return func(c *Connection) {
		c.logger = logger
	}
}

// WithQueueSize specifies the depth of the muxer queues for each protocol
func WithQueueSize(queueSize int) ConnectionOptionFunc {
	return func(c *Connection) {
		c.queueSize = queueSize
	}
}

// WithTransferConfig specifies transfer protocol config
func WithTransferConfig(cfg transfer.Config) ConnectionOptionFunc {
	return func(c *Connection) {
		c.transferConfig = &cfg
	}
}

// WithUriConfig specifies URI protocol config
func WithUriConfig(cfg uri.Config) ConnectionOptionFunc {
	return func(c *Connection) {
		c.uriConfig = &cfg
	}
}
