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
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/blinklabs-io/gotransfer/protocol/transfer"
	"github.com/blinklabs-io/gotransfer/service"
	"github.com/spf13/cobra"
)

func newGetCommand(f *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "get <uri>",
		Short: "Send a URI request and write the response to stdout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := connect(f)
			if err != nil {
				return err
			}
			defer conn.Close()
			data, _, err := conn.UriClient().RequestAll(args[0])
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

func newPullCommand(f *globalFlags) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "pull <block-id>",
		Short: "Pull a block from the server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			blockId, err := parseBlockId(args[0])
			if err != nil {
				return err
			}
			conn, err := connect(f)
			if err != nil {
				return err
			}
			defer conn.Close()
			pullBlock, err := conn.TransferClient().OpenPullBlock(blockId)
			if err != nil {
				return err
			}
			defer pullBlock.Close()
			var w io.Writer = cmd.OutOrStdout()
			if output != "" {
				outFile, err := os.Create(output)
				if err != nil {
					return err
				}
				defer outFile.Close()
				w = outFile
			}
			_, err = io.Copy(w, pullBlock)
			return err
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the block to a file instead of stdout")
	return cmd
}

func newPushCommand(f *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "push <file>",
		Short: "Push a file into a new block on the server and print its ID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			if len(data) == 0 {
				return fmt.Errorf("file %s is empty", args[0])
			}
			conn, err := connect(f)
			if err != nil {
				return err
			}
			defer conn.Close()
			idText, _, err := conn.UriClient().RequestAll(
				fmt.Sprintf("%s://%d", service.UploadServiceName, len(data)),
			)
			if err != nil {
				return fmt.Errorf("failed to create block: %w", err)
			}
			blockId, err := parseBlockId(string(idText))
			if err != nil {
				return err
			}
			pushBlock, err := conn.TransferClient().OpenPushBlock(blockId, len(data))
			if err != nil {
				return err
			}
			if _, err := pushBlock.Write(data); err != nil {
				_ = pushBlock.Discard()
				return err
			}
			if err := pushBlock.Finalize(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), blockId)
			return nil
		},
	}
}

func newBlocksCommand(f *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "blocks",
		Short: "List the blocks held by the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			conn, err := connect(f)
			if err != nil {
				return err
			}
			defer conn.Close()
			var entries []service.BlockEntry
			if _, err := conn.UriClient().RequestCbor(service.BlocksServiceName+":", &entries); err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSIZE\tCRC32\tCLOSED\tTRANSFERS")
			for _, entry := range entries {
				fmt.Fprintf(
					w,
					"%d\t%d\t%08x\t%t\t%d\n",
					entry.Id,
					entry.Size,
					entry.Crc32,
					entry.Closed,
					entry.PendingTransfers,
				)
			}
			return w.Flush()
		},
	}
}

func parseBlockId(s string) (transfer.BlockId, error) {
	tmpId, err := strconv.ParseUint(s, 10, 32)
	if err != nil || tmpId == uint64(transfer.InvalidBlockId) {
		return transfer.InvalidBlockId, fmt.Errorf("invalid block ID %q", s)
	}
	return transfer.BlockId(tmpId), nil
}
