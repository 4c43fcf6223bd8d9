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
	"hash/crc32"
	"io"
	"sync"
	"time"

	"github.com/blinklabs-io/gotransfer/protocol"
)

// ServerBlock is a block of data held in a Store. A block is written by its owner while open
// and can only be pulled by remote clients once closed. Pushes from remote clients write into
// open blocks and close them on success
type ServerBlock struct {
	id            BlockId
	mutex         sync.Mutex
	chunks        [][]byte
	size          int
	crc           uint32
	closed        bool
	released      bool
	pending       int
	transfersDone chan struct{}
}

func newServerBlock(id BlockId) *ServerBlock {
	b := &ServerBlock{
		id:            id,
		transfersDone: make(chan struct{}),
	}
	// No transfers are pending for a new block
	close(b.transfersDone)
	return b
}

func (b *ServerBlock) Id() BlockId {
	return b.id
}

// Write appends data to the block and folds it into the block CRC. It returns ErrBlockClosed
// once the block has been closed
func (b *ServerBlock) Write(data []byte) (int, error) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	if b.closed {
		return 0, ErrBlockClosed
	}
	b.growLocked(b.size + len(data))
	written := 0
	for written < len(data) {
		offset := b.size + written
		chunk := b.chunks[offset/ChunkSize]
		written += copy(chunk[offset%ChunkSize:], data[written:])
	}
	b.size += written
	b.crc = crc32.Update(b.crc, crc32.IEEETable, data)
	return written, nil
}

// Close marks the block as complete. No further writes are accepted and the block becomes
// available to pull. Closing a closed block returns ErrBlockClosed
func (b *ServerBlock) Close() error {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	if b.closed {
		return ErrBlockClosed
	}
	b.closed = true
	return nil
}

// Reset returns the block to an open and empty state. Allocated storage is kept for reuse
func (b *ServerBlock) Reset() {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.size = 0
	b.crc = 0
	b.closed = false
}

// TryReset resets the block unless a transfer references it, and reports whether it did
func (b *ServerBlock) TryReset() bool {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	if b.pending > 0 || b.released {
		return false
	}
	b.size = 0
	b.crc = 0
	b.closed = false
	return true
}

// Reserve allocates storage for at least size bytes of block data
func (b *ServerBlock) Reserve(size int) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.growLocked(size)
}

func (b *ServerBlock) growLocked(size int) {
	for len(b.chunks)*ChunkSize < size {
		b.chunks = append(b.chunks, make([]byte, ChunkSize))
	}
}

// ReadAt implements io.ReaderAt over the block data
func (b *ServerBlock) ReadAt(p []byte, off int64) (int, error) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	if off < 0 || off >= int64(b.size) {
		return 0, io.EOF
	}
	read := 0
	for read < len(p) && int(off)+read < b.size {
		offset := int(off) + read
		chunk := b.chunks[offset/ChunkSize]
		end := min(ChunkSize, offset%ChunkSize+(b.size-offset))
		read += copy(p[read:], chunk[offset%ChunkSize:end])
	}
	if read < len(p) {
		return read, io.EOF
	}
	return read, nil
}

// Bytes returns a copy of the block data
func (b *ServerBlock) Bytes() []byte {
	ret := make([]byte, b.Size())
	n, _ := b.ReadAt(ret, 0)
	return ret[:n]
}

// Size returns the number of bytes written to the block
func (b *ServerBlock) Size() int {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.size
}

// Capacity returns the number of bytes of allocated storage
func (b *ServerBlock) Capacity() int {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return len(b.chunks) * ChunkSize
}

func (b *ServerBlock) Crc32() uint32 {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.crc
}

func (b *ServerBlock) IsClosed() bool {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.closed
}

// BeginTransfer records a transfer referencing the block
func (b *ServerBlock) BeginTransfer() {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.beginTransferLocked()
}

func (b *ServerBlock) beginTransferLocked() {
	if b.pending == 0 {
		b.transfersDone = make(chan struct{})
	}
	b.pending++
}

// EndTransfer releases a reference taken by BeginTransfer. Storage of a block that was released
// from its store is freed when the last transfer ends
func (b *ServerBlock) EndTransfer() {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	if b.pending == 0 {
		return
	}
	b.pending--
	if b.pending == 0 {
		close(b.transfersDone)
		if b.released {
			b.freeLocked()
		}
	}
}

// acquireForTransfer checks the precondition for the transfer type and begins a transfer in a
// single step. Pulls need a closed block. Pushes need an open block nobody else is writing
func (b *ServerBlock) acquireForTransfer(transferType TransferType) bool {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	if b.released {
		return false
	}
	switch transferType {
	case TransferTypePull:
		if !b.closed {
			return false
		}
	case TransferTypePush:
		if b.closed || b.pending > 0 {
			return false
		}
	default:
		return false
	}
	b.beginTransferLocked()
	return true
}

// PendingTransfers returns the number of transfers currently referencing the block
func (b *ServerBlock) PendingTransfers() int {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.pending
}

// WaitForPendingTransfers blocks until no transfers reference the block. It returns
// protocol.ErrNotReady if transfers are still pending after the timeout
func (b *ServerBlock) WaitForPendingTransfers(timeout time.Duration) error {
	b.mutex.Lock()
	doneChan := b.transfersDone
	b.mutex.Unlock()
	if timeout == protocol.NoWait {
		select {
		case <-doneChan:
			return nil
		default:
			return protocol.ErrNotReady
		}
	}
	var timeoutChan <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutChan = timer.C
	}
	select {
	case <-doneChan:
		return nil
	case <-timeoutChan:
		return protocol.ErrNotReady
	}
}

func (b *ServerBlock) release() {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.released = true
	if b.pending == 0 {
		b.freeLocked()
	}
}

func (b *ServerBlock) freeLocked() {
	b.chunks = nil
	b.size = 0
	b.crc = 0
}

