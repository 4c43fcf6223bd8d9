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

// Package service implements URI services for inspecting and managing the blocks of a
// transfer store
package service

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/blinklabs-io/gotransfer/protocol"
	"github.com/blinklabs-io/gotransfer/protocol/transfer"
	"github.com/blinklabs-io/gotransfer/protocol/uri"
)

// Service names
const (
	InfoServiceName    = "info"
	BlocksServiceName  = "blocks"
	DigestServiceName  = "digest"
	UploadServiceName  = "upload"
	ReleaseServiceName = "release"
)

// RegisterAll registers the info service and every store service with the registry
func RegisterAll(registry *uri.Registry, store *transfer.Store, info map[string]string) {
	registry.Register(NewInfoService(info))
	registry.Register(NewBlockListService(store))
	registry.Register(NewDigestService(store))
	registry.Register(NewUploadService(store))
	registry.Register(NewReleaseService(store))
}

// lookupBlock parses a block ID argument and finds the block in the store
func lookupBlock(store *transfer.Store, args string) (*transfer.ServerBlock, error) {
	tmpId, err := strconv.ParseUint(strings.TrimSpace(args), 10, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid block ID %q: %w", args, protocol.ErrError)
	}
	blockId := transfer.BlockId(tmpId)
	if blockId == transfer.InvalidBlockId {
		return nil, fmt.Errorf("invalid block ID %q: %w", args, protocol.ErrError)
	}
	block := store.GetBlock(blockId)
	if block == nil {
		return nil, fmt.Errorf("block %d: %w", blockId, protocol.ErrUnavailable)
	}
	return block, nil
}
