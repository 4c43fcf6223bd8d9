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
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/blinklabs-io/gotransfer/metrics"
	"github.com/blinklabs-io/gotransfer/protocol"
	"github.com/blinklabs-io/gotransfer/protocol/transfer"
	"github.com/blinklabs-io/gotransfer/protocol/uri"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// DefaultUpdateInterval is how often an idle server connection is polled for new messages
const DefaultUpdateInterval = time.Millisecond

type ServerConfig struct {
	Logger          *slog.Logger
	Store           *transfer.Store
	Registry        *uri.Registry
	Metrics         *metrics.Metrics
	TransferVersion uint16
	UriVersion      uint16
	QueueSize       int
	UpdateInterval  time.Duration
	ConnClosedFunc  ConnectionManagerConnClosedFunc
}

// Server accepts connections and answers their transfer and URI requests from a shared store
type Server struct {
	config      ServerConfig
	logger      *slog.Logger
	store       *transfer.Store
	registry    *uri.Registry
	connManager *ConnectionManager
}

// NewServer returns a server for the config. A missing store or registry is created empty
func NewServer(cfg ServerConfig) *Server {
	s := &Server{
		config:   cfg,
		logger:   cfg.Logger,
		store:    cfg.Store,
		registry: cfg.Registry,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.store == nil {
		s.store = transfer.NewStore()
	}
	if s.registry == nil {
		s.registry = uri.NewRegistry()
	}
	if s.config.TransferVersion == 0 {
		s.config.TransferVersion = DefaultTransferVersion
	}
	if s.config.UriVersion == 0 {
		s.config.UriVersion = DefaultUriVersion
	}
	if s.config.UpdateInterval <= 0 {
		s.config.UpdateInterval = DefaultUpdateInterval
	}
	s.connManager = NewConnectionManager(
		ConnectionManagerConfig{
			ConnClosedFunc: func(connUuid uuid.UUID, err error) {
				s.logger.Debug(
					"connection closed",
					"component", "network",
					"connection_uuid", connUuid.String(),
					"error", err,
				)
				if cfg.ConnClosedFunc != nil {
					cfg.ConnClosedFunc(connUuid, err)
				}
			},
		},
	)
	return s
}

// Store returns the block store shared by all connections
func (s *Server) Store() *transfer.Store {
	return s.store
}

// Registry returns the services available to clients
func (s *Server) Registry() *uri.Registry {
	return s.registry
}

// ConnectionManager returns the tracker for live connections
func (s *Server) ConnectionManager() *ConnectionManager {
	return s.connManager
}

// Serve accepts connections from the listener until the context is cancelled or the listener
// fails. The listener and all accepted connections are closed before Serve returns
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	if err := validateVersions(s.config.TransferVersion, s.config.UriVersion); err != nil {
		return err
	}
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-ctx.Done()
		return listener.Close()
	})
	g.Go(func() error {
		for {
			conn, err := listener.Accept()
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			g.Go(func() error {
				s.serveConnection(ctx, conn)
				return nil
			})
		}
	})
	err := g.Wait()
	if errors.Is(err, net.ErrClosed) {
		err = nil
	}
	return err
}

// ServeConnection answers requests on a single connection until the context is cancelled or the
// connection fails
func (s *Server) ServeConnection(ctx context.Context, conn net.Conn) {
	s.serveConnection(ctx, conn)
}

func (s *Server) serveConnection(ctx context.Context, conn net.Conn) {
	opts := []ConnectionOptionFunc{
		WithConnection(conn),
		WithServer(true),
		WithTransferVersion(s.config.TransferVersion),
		WithUriVersion(s.config.UriVersion),
		WithTransferConfig(
			transfer.NewConfig(
				transfer.WithStore(s.store),
				transfer.WithMetrics(s.config.Metrics),
			),
		),
		WithUriConfig(
			uri.NewConfig(
				uri.WithStore(s.store),
				uri.WithRegistry(s.registry),
				uri.WithMetrics(s.config.Metrics),
			),
		),
		WithLogger(s.logger),
	}
	if s.config.QueueSize > 0 {
		opts = append(opts, WithQueueSize(s.config.QueueSize))
	}
	oConn, err := NewConnection(opts...)
	if err != nil {
		s.logger.Error(
			"failed to set up connection",
			"component", "network",
			"remote_addr", conn.RemoteAddr().String(),
			"error", err,
		)
		_ = conn.Close()
		return
	}
	connUuid := s.connManager.AddConnection(oConn)
	s.logger.Debug(
		"accepted connection",
		"component", "network",
		"connection_id", oConn.Id().String(),
		"connection_uuid", connUuid.String(),
	)
	defer func() {
		_ = oConn.Close()
	}()
	ticker := time.NewTicker(s.config.UpdateInterval)
	defer ticker.Stop()
	for {
		if err := oConn.Update(); err != nil {
			if !errors.Is(err, protocol.ErrProtocolShuttingDown) {
				s.logger.Warn(
					"connection update failed",
					"component", "network",
					"connection_uuid", connUuid.String(),
					"error", err,
				)
			}
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-oConn.DoneChan():
			return
		case <-ticker.C:
		}
	}
}
