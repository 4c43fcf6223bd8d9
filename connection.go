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

// Package gotransfer implements peer-to-peer block transfer and URI requests between a client and
// a server.
//
// Two protocols share each connection through a muxer. The transfer protocol moves blocks of
// data in either direction, and the URI protocol lets the client ask named services on the
// server for data that is then pulled as a block.
//
// This package is the main entry point into this library. The other packages can be used
// outside of this one, but it's not a primary design goal.
package gotransfer

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/blinklabs-io/gotransfer/muxer"
	"github.com/blinklabs-io/gotransfer/protocol"
	"github.com/blinklabs-io/gotransfer/protocol/transfer"
	"github.com/blinklabs-io/gotransfer/protocol/uri"
)

// ConnectionId uniquely identifies a connection by its endpoints
type ConnectionId = protocol.ConnectionId

// The Connection type is a wrapper around a net.Conn object that carries the transfer and URI
// protocols over that connection
type Connection struct {
	conn            net.Conn
	id              ConnectionId
	server          bool
	logger          *slog.Logger
	muxer           *muxer.Muxer
	errorChan       chan error
	doneChan        chan struct{}
	waitGroup       sync.WaitGroup
	onceClose       sync.Once
	queueSize       int
	transferVersion uint16
	uriVersion      uint16
	transferConfig  *transfer.Config
	uriConfig       *uri.Config
	// Protocols
	transferClient *transfer.Client
	transferServer *transfer.Server
	uriClient      *uri.Client
	uriServer      *uri.Server
}

// NewConnection returns a new Connection object with the specified options. If a connection is
// provided, the protocols are set up immediately
func NewConnection(options ...ConnectionOptionFunc) (*Connection, error) {
	c := &Connection{
		doneChan:        make(chan struct{}),
		transferVersion: DefaultTransferVersion,
		uriVersion:      DefaultUriVersion,
		queueSize:       muxer.DefaultQueueSize,
	}
	// Apply provided options functions
	for _, option := range options {
		option(c)
	}
	if c.errorChan == nil {
		c.errorChan = make(chan error, 10)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if err := validateVersions(c.transferVersion, c.uriVersion); err != nil {
		return nil, err
	}
	if c.conn != nil {
		if err := c.setupConnection(); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// New is an alias to NewConnection
func New(options ...ConnectionOptionFunc) (*Connection, error) {
	return NewConnection(options...)
}

// Id returns the connection endpoints
func (c *Connection) Id() ConnectionId {
	return c.id
}

// Muxer returns the muxer object for the connection
func (c *Connection) Muxer() *muxer.Muxer {
	return c.muxer
}

// ErrorChan returns the channel for asynchronous errors
func (c *Connection) ErrorChan() chan error {
	return c.errorChan
}

// DoneChan returns a channel that is closed when the connection shuts down
func (c *Connection) DoneChan() <-chan struct{} {
	return c.doneChan
}

// IsServer returns whether the connection answers requests
func (c *Connection) IsServer() bool {
	return c.server
}

// Dial will establish a connection using the specified protocol and address. These parameters are
// passed to the [net.Dial] func. An error will be returned if the connection fails or a
// connection was already established
func (c *Connection) Dial(proto string, address string) error {
	if c.conn != nil {
		return errors.New("a connection was already established")
	}
	conn, err := net.Dial(proto, address)
	if err != nil {
		return err
	}
	c.conn = conn
	return c.setupConnection()
}

// Update advances the server protocols without blocking. It does nothing on a client connection.
// An error means the connection can no longer be served
func (c *Connection) Update() error {
	if !c.server {
		return nil
	}
	if c.transferServer == nil || c.uriServer == nil {
		return errors.New("connection is not established")
	}
	if err := c.transferServer.Update(); err != nil {
		return err
	}
	return c.uriServer.Update()
}

// Close will shutdown the connection
func (c *Connection) Close() error {
	c.onceClose.Do(func() {
		// Close doneChan to signify that we're shutting down
		close(c.doneChan)
		// Release the transfer references and scratch blocks held by the servers
		if c.uriServer != nil {
			_ = c.uriServer.Close()
		}
		if c.transferServer != nil {
			_ = c.transferServer.Close()
		}
		// Gracefully stop the muxer
		if c.muxer != nil {
			c.muxer.Stop()
		} else if c.conn != nil {
			_ = c.conn.Close()
		}
		// Wait for other goroutines to finish
		c.waitGroup.Wait()
		close(c.errorChan)
	})
	return nil
}

// TransferClient returns the transfer protocol client, or nil for a server connection
func (c *Connection) TransferClient() *transfer.Client {
	return c.transferClient
}

// TransferServer returns the transfer protocol server, or nil for a client connection
func (c *Connection) TransferServer() *transfer.Server {
	return c.transferServer
}

// UriClient returns the URI protocol client, or nil for a server connection
func (c *Connection) UriClient() *uri.Client {
	return c.uriClient
}

// UriServer returns the URI protocol server, or nil for a client connection
func (c *Connection) UriServer() *uri.Server {
	return c.uriServer
}

// Store returns the block store served by a server connection
func (c *Connection) Store() *transfer.Store {
	if c.transferServer == nil {
		return nil
	}
	return c.transferServer.Store()
}

// setupConnection establishes the muxer and initializes the protocols for our role
func (c *Connection) setupConnection() error {
	c.id = ConnectionId{
		LocalAddr:  c.conn.LocalAddr(),
		RemoteAddr: c.conn.RemoteAddr(),
	}
	c.muxer = muxer.New(c.conn)
	// Start Goroutine to pass along errors from the muxer
	c.waitGroup.Add(1)
	go func() {
		defer c.waitGroup.Done()
		select {
		case <-c.doneChan:
			return
		case err, ok := <-c.muxer.ErrorChan():
			// Break out of goroutine if muxer's error channel is closed
			if !ok {
				return
			}
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				// Return a bare io.EOF error if error is EOF/ErrUnexpectedEOF
				err = io.EOF
			} else {
				// Wrap error message to denote it comes from the muxer
				err = fmt.Errorf("muxer error: %w", err)
			}
			select {
			case c.errorChan <- err:
			case <-c.doneChan:
			}
			// Close connection on muxer errors. Close waits on this goroutine
			go func() {
				_ = c.Close()
			}()
		}
	}()
	transferOptions := protocol.ProtocolOptions{
		ConnectionId: c.id,
		Session: protocol.NewChannel(
			c.muxer,
			transfer.ProtocolId,
			c.transferVersion,
			c.server,
			c.queueSize,
		),
		Logger: c.logger,
	}
	uriOptions := protocol.ProtocolOptions{
		ConnectionId: c.id,
		Session: protocol.NewChannel(
			c.muxer,
			uri.ProtocolId,
			c.uriVersion,
			c.server,
			c.queueSize,
		),
		Logger: c.logger,
	}
	transferConfig := transfer.NewConfig()
	if c.transferConfig != nil {
		transferConfig = *c.transferConfig
	}
	uriConfig := uri.NewConfig()
	if c.uriConfig != nil {
		uriConfig = *c.uriConfig
	}
	if c.server {
		c.transferServer = transfer.NewServer(transferOptions, &transferConfig)
		// The URI server writes responses into the store that the transfer server serves
		uriConfig.Store = c.transferServer.Store()
		c.uriServer = uri.NewServer(uriOptions, &uriConfig)
	} else {
		c.transferClient = transfer.NewClient(transferOptions, &transferConfig)
		uriConfig.TransferClient = c.transferClient
		c.uriClient = uri.NewClient(uriOptions, &uriConfig)
	}
	c.logger.Debug(
		"connection established",
		"component", "network",
		"connection_id", c.id.String(),
		"server", c.server,
		"transfer_version", c.transferVersion,
		"uri_version", c.uriVersion,
	)
	c.muxer.Start()
	return nil
}
