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

package transfer

import (
	"math/rand/v2"
	"slices"
	"sync"
)

// Store holds the server blocks that are reachable by ID from remote sessions
type Store struct {
	mutex  sync.Mutex
	blocks map[BlockId]*ServerBlock
}

// BlockInfo describes a block in the store
type BlockInfo struct {
	Id               BlockId
	Size             int
	Crc32            uint32
	Closed           bool
	PendingTransfers int
}

func NewStore() *Store {
	return &Store{
		blocks: make(map[BlockId]*ServerBlock),
	}
}

// CreateBlock adds a new open and empty block with a random unique ID to the store
func (s *Store) CreateBlock() *ServerBlock {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	var id BlockId
	for {
		id = BlockId(rand.Uint32())
		if id == InvalidBlockId {
			continue
		}
		if _, ok := s.blocks[id]; !ok {
			break
		}
	}
	block := newServerBlock(id)
	s.blocks[id] = block
	return block
}

// GetBlock returns the block with the specified ID, or nil if the store does not hold one
func (s *Store) GetBlock(id BlockId) *ServerBlock {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.blocks[id]
}

// ReleaseBlock removes the block from the store. Transfers already referencing the block
// continue until they end, after which its storage is freed
func (s *Store) ReleaseBlock(block *ServerBlock) {
	if block == nil {
		return
	}
	s.mutex.Lock()
	if s.blocks[block.id] == block {
		delete(s.blocks, block.id)
	}
	s.mutex.Unlock()
	block.release()
}

// Len returns the number of blocks in the store
func (s *Store) Len() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return len(s.blocks)
}

// Blocks returns a snapshot of the blocks in the store ordered by ID
func (s *Store) Blocks() []BlockInfo {
	s.mutex.Lock()
	blocks := make([]*ServerBlock, 0, len(s.blocks))
	for _, block := range s.blocks {
		blocks = append(blocks, block)
	}
	s.mutex.Unlock()
	ret := make([]BlockInfo, 0, len(blocks))
	for _, block := range blocks {
		block.mutex.Lock()
		ret = append(
			ret,
			BlockInfo{
				Id:               block.id,
				Size:             block.size,
				Crc32:            block.crc,
				Closed:           block.closed,
				PendingTransfers: block.pending,
			},
		)
		block.mutex.Unlock()
	}
	slices.SortFunc(ret, func(a, b BlockInfo) int {
		switch {
		case a.Id < b.Id:
			return -1
		case a.Id > b.Id:
			return 1
		}
		return 0
	})
	return ret
}
