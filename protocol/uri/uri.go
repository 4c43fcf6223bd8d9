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

// Package uri implements the URI request protocol. A client sends a request string of the form
// "service://arguments" and the server answers with the ID of a block holding the response, which
// the client then pulls with the transfer protocol
package uri

import (
	"errors"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/blinklabs-io/gotransfer/metrics"
	"github.com/blinklabs-io/gotransfer/protocol/transfer"
)

// Protocol identifiers
const (
	ProtocolName        = "uri"
	ProtocolId   uint16 = 252
)

// Protocol versions
const (
	VersionInitial uint16 = 1
	// Adds the response data format
	VersionResponseFormats uint16 = 2

	VersionMin = VersionInitial
	VersionMax = VersionResponseFormats
)

const (
	// Size of the header that precedes each URI message
	HeaderSize = 4
	// Size of the fixed NUL terminated request string buffer
	RequestStringSize = 256
	// Longest request string that fits in the buffer
	MaxRequestLength = RequestStringSize - 1
)

// ResponseDataFormat describes the content of a response block
type ResponseDataFormat uint32

const (
	ResponseDataFormatUnknown ResponseDataFormat = 0
	ResponseDataFormatText    ResponseDataFormat = 1
	ResponseDataFormatBinary  ResponseDataFormat = 2
)

func (f ResponseDataFormat) String() string {
	switch f {
	case ResponseDataFormatText:
		return "text"
	case ResponseDataFormatBinary:
		return "binary"
	}
	return "unknown"
}

var (
	ErrMalformedRequest  = errors.New("malformed request")
	ErrRequestTooLong    = errors.New("request string too long")
	ErrRequestInProgress = errors.New("a request is already in progress")
	ErrNoRequest         = errors.New("no request in progress")
)

// Default timeouts
const (
	DefaultRequestTimeout = 1000 * time.Millisecond
	DefaultRetryInterval  = 50 * time.Millisecond
)

type Config struct {
	// Time allowed for the response to a request
	RequestTimeout time.Duration
	// Delay between attempts when the session reports it is not ready
	RetryInterval time.Duration
	// Transfer client used by URI clients to pull responses
	TransferClient *transfer.Client
	// Service registry used by URI servers
	Registry *Registry
	// Block store that URI servers write responses into
	Store   *transfer.Store
	Clock   clock.Clock
	Metrics *metrics.Metrics
}

// URI protocol options
type UriOptionFunc func(*Config)

func NewConfig(options ...UriOptionFunc) Config {
	c := Config{
		RequestTimeout: DefaultRequestTimeout,
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

// WithRequestTimeout specifies how long a client waits for the response to a request
func WithRequestTimeout(timeout time.Duration) UriOptionFunc {
	return func(c *Config) {
		c.RequestTimeout = timeout
	}
}

// WithRetryInterval specifies the delay between attempts on a busy session
func WithRetryInterval(interval time.Duration) UriOptionFunc {
	return func(c *Config) {
		c.RetryInterval = interval
	}
}

// WithTransferClient specifies the transfer client used to pull responses
func WithTransferClient(client *transfer.Client) UriOptionFunc {
	return func(c *Config) {
		c.TransferClient = client
	}
}

// WithRegistry specifies the services available to a server
func WithRegistry(registry *Registry) UriOptionFunc {
	return func(c *Config) {
		c.Registry = registry
	}
}

// WithStore specifies the block store that a server writes responses into
func WithStore(store *transfer.Store) UriOptionFunc {
	return func(c *Config) {
		c.Store = store
	}
}

// WithClock specifies the clock used for request deadlines
func WithClock(clk clock.Clock) UriOptionFunc {
	return func(c *Config) {
		c.Clock = clk
	}
}

// WithMetrics specifies the metrics to record requests to
func WithMetrics(m *metrics.Metrics) UriOptionFunc {
	return func(c *Config) {
		c.Metrics = m
	}
}
