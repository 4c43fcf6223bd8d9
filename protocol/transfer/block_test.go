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

package transfer_test

import (
	"bytes"
	"hash/crc32"
	"io"
	"testing"
	"time"

	"github.com/blinklabs-io/gotransfer/internal/test"
	"github.com/blinklabs-io/gotransfer/protocol"
	"github.com/blinklabs-io/gotransfer/protocol/transfer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlockWriteRead(t *testing.T) {
	store := transfer.NewStore()
	for _, size := range []int{0, 1, transfer.ChunkSize - 1, transfer.ChunkSize, transfer.ChunkSize + 1, 3*transfer.ChunkSize + 17} {
		block := store.CreateBlock()
		data := test.RandomBytes(uint64(size), size)
		// Write in uneven pieces to cross chunk boundaries
		for offset := 0; offset < len(data); offset += 1000 {
			end := min(offset+1000, len(data))
			n, err := block.Write(data[offset:end])
			require.NoError(t, err)
			assert.Equal(t, end-offset, n)
		}
		assert.Equal(t, size, block.Size())
		assert.Equal(t, crc32.ChecksumIEEE(data), block.Crc32())
		assert.Equal(t, data, block.Bytes())
		if size > 10 {
			buf := make([]byte, 10)
			n, err := block.ReadAt(buf, int64(size-5))
			assert.ErrorIs(t, err, io.EOF)
			assert.Equal(t, 5, n)
			assert.Equal(t, data[size-5:], buf[:n])
		}
	}
}

func TestBlockCloseSemantics(t *testing.T) {
	store := transfer.NewStore()
	block := store.CreateBlock()
	assert.NotEqual(t, transfer.InvalidBlockId, block.Id())
	assert.False(t, block.IsClosed())
	_, err := block.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, block.Close())
	assert.True(t, block.IsClosed())
	_, err = block.Write([]byte("world"))
	assert.ErrorIs(t, err, transfer.ErrBlockClosed)
	assert.ErrorIs(t, block.Close(), transfer.ErrBlockClosed)
	assert.Equal(t, []byte("hello"), block.Bytes())
}

func TestBlockResetKeepsCapacity(t *testing.T) {
	store := transfer.NewStore()
	block := store.CreateBlock()
	_, err := block.Write(bytes.Repeat([]byte{1}, transfer.ChunkSize*2))
	require.NoError(t, err)
	require.NoError(t, block.Close())
	capacity := block.Capacity()
	block.Reset()
	assert.Equal(t, 0, block.Size())
	assert.Equal(t, uint32(0), block.Crc32())
	assert.False(t, block.IsClosed())
	assert.Equal(t, capacity, block.Capacity())
	_, err = block.Write([]byte("again"))
	require.NoError(t, err)
	assert.Equal(t, []byte("again"), block.Bytes())
	assert.Equal(t, crc32.ChecksumIEEE([]byte("again")), block.Crc32())
}

func TestBlockReserve(t *testing.T) {
	store := transfer.NewStore()
	block := store.CreateBlock()
	assert.Equal(t, 0, block.Capacity())
	block.Reserve(10000)
	assert.Equal(t, 3*transfer.ChunkSize, block.Capacity())
	assert.Equal(t, 0, block.Size())
}

func TestBlockPendingTransfers(t *testing.T) {
	store := transfer.NewStore()
	block := store.CreateBlock()
	assert.NoError(t, block.WaitForPendingTransfers(protocol.NoWait))
	block.BeginTransfer()
	block.BeginTransfer()
	assert.Equal(t, 2, block.PendingTransfers())
	assert.ErrorIs(t, block.WaitForPendingTransfers(10*time.Millisecond), protocol.ErrNotReady)
	doneChan := make(chan error, 1)
	go func() {
		doneChan <- block.WaitForPendingTransfers(protocol.InfiniteTimeout)
	}()
	block.EndTransfer()
	select {
	case <-doneChan:
		t.Fatal("wait returned with a transfer still pending")
	case <-time.After(20 * time.Millisecond):
	}
	block.EndTransfer()
	select {
	case err := <-doneChan:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("wait did not return after the last transfer ended")
	}
	assert.Equal(t, 0, block.PendingTransfers())
	// Extra calls are ignored
	block.EndTransfer()
	assert.Equal(t, 0, block.PendingTransfers())
}

func TestBlockTryReset(t *testing.T) {
	store := transfer.NewStore()
	block := store.CreateBlock()
	_, err := block.Write([]byte("data"))
	require.NoError(t, err)
	require.NoError(t, block.Close())
	block.BeginTransfer()
	assert.False(t, block.TryReset())
	assert.True(t, block.IsClosed())
	block.EndTransfer()
	assert.True(t, block.TryReset())
	assert.False(t, block.IsClosed())
	assert.Equal(t, 0, block.Size())
	store.ReleaseBlock(block)
	assert.False(t, block.TryReset())
}
