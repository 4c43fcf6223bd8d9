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
	"io"

	"github.com/blinklabs-io/gotransfer/protocol"
	"github.com/blinklabs-io/gotransfer/protocol/transfer"
	"github.com/blinklabs-io/gotransfer/protocol/uri"
	"golang.org/x/crypto/blake2b"
)

// DigestSize is the size of a digest response
const DigestSize = blake2b.Size256

// DigestService answers with the BLAKE2b-256 digest of the closed block named by the request
// arguments
type DigestService struct {
	store *transfer.Store
}

func NewDigestService(store *transfer.Store) *DigestService {
	return &DigestService{
		store: store,
	}
}

func (s *DigestService) Name() string {
	return DigestServiceName
}

func (s *DigestService) HandleRequest(
	args string,
	block *transfer.ServerBlock,
) (uri.ResponseDataFormat, error) {
	target, err := lookupBlock(s.store, args)
	if err != nil {
		return uri.ResponseDataFormatUnknown, err
	}
	if !target.IsClosed() {
		return uri.ResponseDataFormatUnknown, fmt.Errorf(
			"block %d: %w: %w",
			target.Id(),
			transfer.ErrBlockNotClosed,
			protocol.ErrNotReady,
		)
	}
	hasher, err := blake2b.New256(nil)
	if err != nil {
		return uri.ResponseDataFormatUnknown, err
	}
	if _, err := io.Copy(hasher, io.NewSectionReader(target, 0, int64(target.Size()))); err != nil {
		return uri.ResponseDataFormatUnknown, fmt.Errorf("read block %d: %w", target.Id(), err)
	}
	if _, err := block.Write(hasher.Sum(nil)); err != nil {
		return uri.ResponseDataFormatUnknown, err
	}
	return uri.ResponseDataFormatBinary, nil
}
