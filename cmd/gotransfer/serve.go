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

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/blinklabs-io/gotransfer"
	"github.com/blinklabs-io/gotransfer/metrics"
	"github.com/blinklabs-io/gotransfer/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

func newServeCommand(f *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve blocks and URI services to clients",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), f)
		},
	}
	cmd.Flags().String("listen", "", "address to listen on in address:port format")
	cmd.Flags().String("metrics-listen", "", "address to serve Prometheus metrics on")
	_ = f.v.BindPFlag("listen", cmd.Flags().Lookup("listen"))
	_ = f.v.BindPFlag("metrics.listen", cmd.Flags().Lookup("metrics-listen"))
	return cmd
}

func runServe(ctx context.Context, f *globalFlags) error {
	logger, err := newLogger(f.cfg)
	if err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	server := gotransfer.NewServer(
		gotransfer.ServerConfig{
			Logger:          logger,
			Metrics:         metrics.New(registry),
			TransferVersion: f.cfg.Transfer.Version,
			UriVersion:      f.cfg.Uri.Version,
		},
	)
	service.RegisterAll(
		server.Registry(),
		server.Store(),
		map[string]string{
			"name":             "gotransfer",
			"version":          version,
			"commit":           commit,
			"go":               runtime.Version(),
			"transfer_version": fmt.Sprint(f.cfg.Transfer.Version),
			"uri_version":      fmt.Sprint(f.cfg.Uri.Version),
		},
	)
	if f.cfg.Metrics.Listen != "" {
		metricsServer := &http.Server{
			Addr:              f.cfg.Metrics.Listen,
			Handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("serving metrics", "address", f.cfg.Metrics.Listen)
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics listener failed", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsServer.Shutdown(shutdownCtx)
		}()
	}
	listener, err := net.Listen("tcp", f.cfg.Listen)
	if err != nil {
		return fmt.Errorf("failed to open listening socket: %w", err)
	}
	logger.Info(
		"listening for connections",
		slog.String("address", listener.Addr().String()),
		slog.Any("services", server.Registry().Names()),
	)
	return server.Serve(ctx, listener)
}
