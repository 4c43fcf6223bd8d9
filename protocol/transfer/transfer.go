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

// Package transfer implements the block transfer protocol. Servers expose closed blocks from a
// Store for clients to pull, and accept pushes from clients into open blocks. Data moves in
// chunks that fit in a single session payload and each transfer ends with a sentinel carrying a
// CRC32 of the block data
package transfer

import (
	"errors"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/blinklabs-io/gotransfer/metrics"
	"github.com/blinklabs-io/gotransfer/protocol"
)

// Protocol identifiers
const (
	ProtocolName        = "transfer"
	ProtocolId   uint16 = 251
)

// Protocol versions
const (
	// Pull transfers only, every payload padded to the maximum payload size
	VersionInitial uint16 = 1
	// Adds push transfers and variable size payloads
	VersionRefactor uint16 = 2

	VersionMin = VersionInitial
	VersionMax = VersionRefactor
)

const (
	// Size of the header that precedes each transfer message
	HeaderSize = 4
	// Maximum number of block bytes carried by a single data chunk message
	MaxChunkDataSize = protocol.MaxPayloadSize - HeaderSize
	// Allocation unit for block storage
	ChunkSize = 4096
)

// BlockId identifies a block within the store that holds it
type BlockId uint32

// InvalidBlockId is never assigned to a block
const InvalidBlockId BlockId = 0

// TransferType selects the direction of a transfer
type TransferType uint32

const (
	TransferTypePull TransferType = 0
	TransferTypePush TransferType = 1
)

func (t TransferType) String() string {
	switch t {
	case TransferTypePull:
		return "pull"
	case TransferTypePush:
		return "push"
	}
	return "unknown"
}

var (
	ErrBlockClosed           = errors.New("block is closed")
	ErrBlockNotClosed        = errors.New("block is not closed")
	ErrCrcMismatch           = errors.New("CRC mismatch")
	ErrInvalidState          = errors.New("invalid state for operation")
	ErrTransferSizeExceeded  = errors.New("write exceeds transfer size")
	ErrInvalidBlockId        = errors.New("invalid block ID")
	ErrPushNotSupported      = errors.New("push transfers require protocol version 2")
	ErrUnexpectedMessageType = errors.New("unexpected message type")
)

// Default timeouts
const (
	DefaultRequestTimeout = 1000 * time.Millisecond
	DefaultChunkTimeout   = 3000 * time.Millisecond
	DefaultRetryInterval  = 50 * time.Millisecond
)

type Config struct {
	// Time allowed for the reply to a request or sentinel
	RequestTimeout time.Duration
	// Time allowed for each data chunk during a pull
	ChunkTimeout time.Duration
	// Delay between attempts when the session reports it is not ready
	RetryInterval time.Duration
	// Block store used by servers
	Store   *Store
	Clock   clock.Clock
	Metrics *metrics.Metrics
}

// Transfer protocol options
type TransferOptionFunc func(*Config)

func NewConfig(options ...TransferOptionFunc) Config {
	c := Config{
		RequestTimeout: DefaultRequestTimeout,
		ChunkTimeout:   DefaultChunkTimeout,
		RetryInterval:  DefaultRetryInterval,
	}
	// Apply provided options functions
	for _, option := range options {
		option(&c)
	}
	if c.Clock == nil {
		c.Clock = clock.New()
	}
	return c
}

// WithRequestTimeout specifies how long a client waits for the reply to a request
func WithRequestTimeout(timeout time.Duration) TransferOptionFunc {
	return func(c *Config) {
		c.RequestTimeout = timeout
	}
}

// WithChunkTimeout specifies how long a client waits for each data chunk
func WithChunkTimeout(timeout time.Duration) TransferOptionFunc {
	return func(c *Config) {
		c.ChunkTimeout = timeout
	}
}

// WithRetryInterval specifies the delay between attempts on a busy session
func WithRetryInterval(interval time.Duration) TransferOptionFunc {
	return func(c *Config) {
		c.RetryInterval = interval
	}
}

// WithStore specifies the block store that a server exposes
func WithStore(store *Store) TransferOptionFunc {
	return func(c *Config) {
		c.Store = store
	}
}

// WithClock specifies the clock used for request deadlines
func WithClock(clk clock.Clock) TransferOptionFunc {
	return func(c *Config) {
		c.Clock = clk
	}
}

// WithMetrics specifies the metrics to record transfer activity to
func WithMetrics(m *metrics.Metrics) TransferOptionFunc {
	return func(c *Config) {
		c.Metrics = m
	}
}
