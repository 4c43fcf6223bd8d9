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

package service

import (
	"fmt"

	"github.com/blinklabs-io/gotransfer/cbor"
	"github.com/blinklabs-io/gotransfer/protocol/transfer"
	"github.com/blinklabs-io/gotransfer/protocol/uri"
)

// BlockEntry describes one block in a block listing
type BlockEntry struct {
	cbor.StructAsArray
	Id               uint32
	Size             uint64
	Crc32            uint32
	Closed           bool
	PendingTransfers uint64
}

// BlockListService answers with a CBOR array of BlockEntry for the blocks in the store
type BlockListService struct {
	store *transfer.Store
}

func NewBlockListService(store *transfer.Store) *BlockListService {
	return &BlockListService{
		store: store,
	}
}

func (s *BlockListService) Name() string {
	return BlocksServiceName
}

func (s *BlockListService) HandleRequest(
	_ string,
	block *transfer.ServerBlock,
) (uri.ResponseDataFormat, error) {
	infos := s.store.Blocks()
	entries := make([]BlockEntry, 0, len(infos))
	for _, info := range infos {
		// Skip the block holding this response
		if info.Id == block.Id() {
			continue
		}
		entries = append(
			entries,
			BlockEntry{
				Id:               uint32(info.Id),
				Size:             uint64(info.Size), // #nosec G115
				Crc32:            info.Crc32,
				Closed:           info.Closed,
				PendingTransfers: uint64(info.PendingTransfers), // #nosec G115
			},
		)
	}
	data, err := cbor.Encode(entries)
	if err != nil {
		return uri.ResponseDataFormatUnknown, fmt.Errorf("encode block listing: %w", err)
	}
	if _, err := block.Write(data); err != nil {
		return uri.ResponseDataFormatUnknown, err
	}
	return uri.ResponseDataFormatBinary, nil
}
