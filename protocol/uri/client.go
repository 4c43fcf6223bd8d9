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
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/blinklabs-io/gotransfer/cbor"
	"github.com/blinklabs-io/gotransfer/protocol"
	"github.com/blinklabs-io/gotransfer/protocol/transfer"
)

// Client states
var (
	StateIdle         = protocol.NewState(1, "Idle")
	StateReadResponse = protocol.NewState(2, "ReadResponse")
)

// ResponseHeader describes the response to a request
type ResponseHeader struct {
	BlockId transfer.BlockId
	Size    int
	Format  ResponseDataFormat
}

// Client sends URI requests and reads their responses through a transfer client
type Client struct {
	config         *Config
	session        protocol.Session
	transferClient *transfer.Client
	logger         *slog.Logger
	mutex          sync.Mutex
	state          protocol.State
	pullBlock      *transfer.PullBlock
}

// NewClient returns a new URI client for the session. Responses are pulled with the transfer
// client from the configuration
func NewClient(protoOptions protocol.ProtocolOptions, cfg *Config) *Client {
	if cfg == nil {
		tmpCfg := NewConfig()
		cfg = &tmpCfg
	}
	c := &Client{
		config:         cfg,
		session:        protoOptions.Session,
		transferClient: cfg.TransferClient,
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

// Request sends the request string and starts pulling the response. The response data is read
// with ReadResponse
func (c *Client) Request(request string) (ResponseHeader, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.state != StateIdle {
		return ResponseHeader{}, fmt.Errorf("%s: %w", ProtocolName, ErrRequestInProgress)
	}
	if len(request) > MaxRequestLength {
		return ResponseHeader{}, fmt.Errorf(
			"%s: %w: %d bytes exceeds maximum of %d",
			ProtocolName,
			ErrRequestTooLong,
			len(request),
			MaxRequestLength,
		)
	}
	if c.transferClient == nil {
		return ResponseHeader{}, fmt.Errorf("%s: no transfer client configured", ProtocolName)
	}
	c.logger.Debug(
		"sending request",
		"request", request,
	)
	err := protocol.SendPayload(
		c.session,
		c.config.Clock,
		NewMsgRequest(request).Payload(c.session.Version()),
		c.config.RequestTimeout,
		c.config.RetryInterval,
	)
	if err != nil {
		return ResponseHeader{}, fmt.Errorf("%s: send failed: %w", ProtocolName, err)
	}
	data, err := protocol.ReceivePayload(
		c.session,
		c.config.Clock,
		c.config.RequestTimeout,
		c.config.RetryInterval,
	)
	if err != nil {
		return ResponseHeader{}, fmt.Errorf("%s: receive failed: %w", ProtocolName, err)
	}
	msg, err := NewMsgFromPayload(c.session.Version(), data)
	if err != nil {
		return ResponseHeader{}, err
	}
	response, ok := msg.(*MsgResponse)
	if !ok {
		return ResponseHeader{}, fmt.Errorf(
			"%s: received unexpected message type %d",
			ProtocolName,
			msg.Type(),
		)
	}
	switch response.Result {
	case protocol.ResultSuccess:
	case protocol.ResultUnavailable:
		return ResponseHeader{}, fmt.Errorf(
			"%s: request %q: %w",
			ProtocolName,
			request,
			protocol.ErrUnavailable,
		)
	default:
		return ResponseHeader{}, fmt.Errorf(
			"%s: request %q failed (%s): %w",
			ProtocolName,
			request,
			response.Result,
			protocol.ErrError,
		)
	}
	pullBlock, err := c.transferClient.OpenPullBlock(response.BlockId)
	if err != nil {
		c.resetTransferClient()
		return ResponseHeader{}, err
	}
	header := ResponseHeader{
		BlockId: response.BlockId,
		Size:    pullBlock.Size(),
		Format:  response.Format,
	}
	c.state = StateReadResponse
	if header.Size == 0 {
		// Nothing to read
		if err := pullBlock.Close(); err != nil {
			c.resetTransferClient()
		}
		return header, nil
	}
	c.pullBlock = pullBlock
	return header, nil
}

// ReadResponse reads response data for the current request. It returns io.EOF once the whole
// response has been read, after which the client accepts a new request
func (c *Client) ReadResponse(buf []byte) (int, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.state != StateReadResponse {
		return 0, fmt.Errorf("%s: %w", ProtocolName, ErrNoRequest)
	}
	if c.pullBlock == nil {
		c.state = StateIdle
		return 0, io.EOF
	}
	n, err := c.pullBlock.Read(buf)
	if err != nil {
		if !errors.Is(err, io.EOF) {
			c.resetTransferClient()
		}
		c.pullBlock = nil
		c.state = StateIdle
	}
	return n, err
}

// AbortRequest discards the rest of the response for the current request
func (c *Client) AbortRequest() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.state != StateReadResponse {
		return nil
	}
	var err error
	if c.pullBlock != nil {
		err = c.pullBlock.Close()
		if err != nil {
			c.resetTransferClient()
		}
		c.pullBlock = nil
	}
	c.state = StateIdle
	return err
}

// resetTransferClient recovers the transfer client after a failed transfer
func (c *Client) resetTransferClient() {
	if c.transferClient.State() == transfer.StateError {
		c.transferClient.Reset()
	}
}

// RequestAll sends the request and reads the whole response
func (c *Client) RequestAll(request string) ([]byte, ResponseHeader, error) {
	header, err := c.Request(request)
	if err != nil {
		return nil, header, err
	}
	buf := bytes.NewBuffer(make([]byte, 0, header.Size))
	chunk := make([]byte, transfer.MaxChunkDataSize)
	for {
		n, err := c.ReadResponse(chunk)
		buf.Write(chunk[:n])
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, header, err
		}
	}
	return buf.Bytes(), header, nil
}

// RequestCbor sends the request and decodes the CBOR response into dest
func (c *Client) RequestCbor(request string, dest any) (ResponseHeader, error) {
	data, header, err := c.RequestAll(request)
	if err != nil {
		return header, err
	}
	if c.session.Version() >= VersionResponseFormats && header.Format != ResponseDataFormatBinary {
		return header, fmt.Errorf(
			"%s: request %q returned %s data, expected binary",
			ProtocolName,
			request,
			header.Format,
		)
	}
	if _, err := cbor.Decode(data, dest); err != nil {
		return header, fmt.Errorf("%s: decode response: %w", ProtocolName, err)
	}
	return header, nil
}
