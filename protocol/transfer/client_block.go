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
	"errors"
	"fmt"

	"github.com/blinklabs-io/gotransfer/protocol"
)

// PullBlock is a handle to a remote block being pulled. It implements io.ReadCloser
type PullBlock struct {
	client  *Client
	blockId BlockId
	size    int
}

// OpenPullBlock starts a pull transfer of the remote block and returns a handle for reading it
func (c *Client) OpenPullBlock(blockId BlockId) (*PullBlock, error) {
	size, err := c.RequestPullTransfer(blockId)
	if err != nil {
		return nil, err
	}
	b := &PullBlock{
		client:  c,
		blockId: blockId,
		size:    size,
	}
	return b, nil
}

func (b *PullBlock) BlockId() BlockId {
	return b.blockId
}

// Size returns the total size of the block data
func (b *PullBlock) Size() int {
	return b.size
}

func (b *PullBlock) Read(p []byte) (int, error) {
	return b.client.ReadPullTransferData(p)
}

// Close aborts the transfer if it has not been read to the end
func (b *PullBlock) Close() error {
	if !b.client.pullActive(b.blockId) {
		return nil
	}
	return b.client.AbortPullTransfer()
}

// PushBlock is a handle to a remote block being pushed. It implements io.Writer
type PushBlock struct {
	client  *Client
	blockId BlockId
	size    int
}

// OpenPushBlock starts a push transfer of size bytes into the open remote block
func (c *Client) OpenPushBlock(blockId BlockId, size int) (*PushBlock, error) {
	if err := c.RequestPushTransfer(blockId, size); err != nil {
		return nil, err
	}
	b := &PushBlock{
		client:  c,
		blockId: blockId,
		size:    size,
	}
	return b, nil
}

func (b *PushBlock) BlockId() BlockId {
	return b.blockId
}

// Size returns the transfer size given when the block was opened
func (b *PushBlock) Size() int {
	return b.size
}

func (b *PushBlock) Write(p []byte) (int, error) {
	return b.client.WritePushTransferData(p)
}

// Finalize completes the transfer. The remote block is closed if the data arrived intact
func (b *PushBlock) Finalize() error {
	if !b.client.pushActive(b.blockId) {
		return fmt.Errorf("%s: push block %d: %w", ProtocolName, b.blockId, ErrInvalidState)
	}
	return b.client.ClosePushTransfer(false)
}

// Discard cancels the transfer. The remote block is left open and empty
func (b *PushBlock) Discard() error {
	if !b.client.pushActive(b.blockId) {
		return nil
	}
	err := b.client.ClosePushTransfer(true)
	if errors.Is(err, protocol.ErrAborted) {
		return nil
	}
	return err
}
