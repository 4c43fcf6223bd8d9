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
	"fmt"
	"os"
	"time"

	"github.com/blinklabs-io/gotransfer"
	"github.com/blinklabs-io/gotransfer/protocol/transfer"
	"github.com/blinklabs-io/gotransfer/protocol/uri"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Build-time variables injected via ldflags
var (
	version = "dev"
	commit  = "none"
)

const retryInterval = 5 * time.Millisecond

type globalFlags struct {
	configFile string
	v          *viper.Viper
	cfg        *Config
}

func newRootCommand() *cobra.Command {
	f := &globalFlags{
		v: newViper(),
	}
	rootCmd := &cobra.Command{
		Use:           "gotransfer",
		Short:         "Transfer blocks and make URI requests between peers",
		Version:       fmt.Sprintf("%s (commit %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(f.v, f.configFile)
			if err != nil {
				return err
			}
			f.cfg = cfg
			return nil
		},
	}
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&f.configFile, "config", "", "path to a YAML config file")
	flags.String("address", "", "server address to connect to in address:port format")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.Duration("timeout", 0, "timeout for each request")
	flags.Uint16("transfer-version", 0, "transfer protocol version")
	flags.Uint16("uri-version", 0, "URI protocol version")
	_ = f.v.BindPFlag("address", flags.Lookup("address"))
	_ = f.v.BindPFlag("log.level", flags.Lookup("log-level"))
	_ = f.v.BindPFlag("timeout", flags.Lookup("timeout"))
	_ = f.v.BindPFlag("transfer.version", flags.Lookup("transfer-version"))
	_ = f.v.BindPFlag("uri.version", flags.Lookup("uri-version"))
	rootCmd.AddCommand(
		newServeCommand(f),
		newGetCommand(f),
		newPullCommand(f),
		newPushCommand(f),
		newBlocksCommand(f),
	)
	return rootCmd
}

// connect dials the configured server as a client
func connect(f *globalFlags) (*gotransfer.Connection, error) {
	logger, err := newLogger(f.cfg)
	if err != nil {
		return nil, err
	}
	conn, err := gotransfer.NewConnection(
		gotransfer.WithLogger(logger),
		gotransfer.WithTransferVersion(f.cfg.Transfer.Version),
		gotransfer.WithUriVersion(f.cfg.Uri.Version),
		gotransfer.WithTransferConfig(
			transfer.NewConfig(
				transfer.WithRequestTimeout(f.cfg.Timeout),
				transfer.WithChunkTimeout(f.cfg.Timeout),
				transfer.WithRetryInterval(retryInterval),
			),
		),
		gotransfer.WithUriConfig(
			uri.NewConfig(
				uri.WithRequestTimeout(f.cfg.Timeout),
				uri.WithRetryInterval(retryInterval),
			),
		),
	)
	if err != nil {
		return nil, err
	}
	if err := conn.Dial("tcp", f.cfg.Address); err != nil {
		return nil, fmt.Errorf("connection failed: %w", err)
	}
	return conn, nil
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", err)
		os.Exit(1)
	}
}
