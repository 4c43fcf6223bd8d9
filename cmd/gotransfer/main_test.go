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
	"bytes"
	"context"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/blinklabs-io/gotransfer"
	"github.com/blinklabs-io/gotransfer/protocol/transfer"
	"github.com/blinklabs-io/gotransfer/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := loadConfig(newViper(), "")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:3030", cfg.Listen)
	assert.Equal(t, 3*time.Second, cfg.Timeout)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, gotransfer.DefaultTransferVersion, cfg.Transfer.Version)
	assert.Equal(t, gotransfer.DefaultUriVersion, cfg.Uri.Version)
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(
		t,
		os.WriteFile(
			configPath,
			[]byte("address: 10.0.0.1:4000\ntimeout: 10s\ntransfer:\n  version: 1\nlog:\n  level: debug\n"),
			0o600,
		),
	)
	t.Setenv("GOTRANSFER_LOG_LEVEL", "warn")
	t.Setenv("GOTRANSFER_METRICS_LISTEN", ":9090")
	cfg, err := loadConfig(newViper(), configPath)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1:4000", cfg.Address)
	assert.Equal(t, 10*time.Second, cfg.Timeout)
	assert.Equal(t, transfer.VersionInitial, cfg.Transfer.Version)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, ":9090", cfg.Metrics.Listen)
	_, err = newLogger(cfg)
	assert.NoError(t, err)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := loadConfig(newViper(), filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "not found")
	t.Setenv("GOTRANSFER_TIMEOUT", "0s")
	_, err = loadConfig(newViper(), "")
	assert.ErrorContains(t, err, "invalid timeout")
	_, err = newLogger(&Config{Log: LogConfig{Level: "loud"}})
	assert.Error(t, err)
}

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCommands(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	server := gotransfer.NewServer(gotransfer.ServerConfig{})
	service.RegisterAll(server.Registry(), server.Store(), map[string]string{"name": "cli"})
	ctx, cancel := context.WithCancel(context.Background())
	serveDone := make(chan error, 1)
	go func() {
		serveDone <- server.Serve(ctx, listener)
	}()
	defer func() {
		cancel()
		<-serveDone
	}()
	address := listener.Addr().String()
	out, err := runCommand(t, "--address", address, "get", "info://name")
	require.NoError(t, err)
	assert.Equal(t, "cli", out)
	inputPath := filepath.Join(t.TempDir(), "input.bin")
	require.NoError(t, os.WriteFile(inputPath, []byte("pushed from the command line"), 0o600))
	out, err = runCommand(t, "--address", address, "push", inputPath)
	require.NoError(t, err)
	blockId := strings.TrimSpace(out)
	outputPath := filepath.Join(t.TempDir(), "output.bin")
	_, err = runCommand(t, "--address", address, "pull", blockId, "--output", outputPath)
	require.NoError(t, err)
	data, err := os.ReadFile(outputPath)
	require.NoError(t, err)
	assert.Equal(t, []byte("pushed from the command line"), data)
	out, err = runCommand(t, "--address", address, "blocks")
	require.NoError(t, err)
	assert.Contains(t, out, "TRANSFERS")
	assert.Contains(t, out, blockId)
	_, err = runCommand(t, "--address", address, "pull", "0")
	assert.ErrorContains(t, err, "invalid block ID")
}
