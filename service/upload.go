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
	"strconv"
	"strings"

	"github.com/blinklabs-io/gotransfer/protocol"
	"github.com/blinklabs-io/gotransfer/protocol/transfer"
	"github.com/blinklabs-io/gotransfer/protocol/uri"
)

// UploadService creates an open block for the client to push into and answers with its ID
// as decimal text. An optional size argument reserves storage up front
type UploadService struct {
	store *transfer.Store
}

func NewUploadService(store *transfer.Store) *UploadService {
	return &UploadService{
		store: store,
	}
}

func (s *UploadService) Name() string {
	return UploadServiceName
}

func (s *UploadService) HandleRequest(
	args string,
	block *transfer.ServerBlock,
) (uri.ResponseDataFormat, error) {
	var reserve int
	if args = strings.TrimSpace(args); args != "" {
		size, err := strconv.Atoi(args)
		if err != nil || size < 0 {
			return uri.ResponseDataFormatUnknown, fmt.Errorf("invalid size %q: %w", args, protocol.ErrError)
		}
		reserve = size
	}
	target := s.store.CreateBlock()
	if reserve > 0 {
		target.Reserve(reserve)
	}
	if _, err := block.Write([]byte(strconv.FormatUint(uint64(target.Id()), 10))); err != nil {
		s.store.ReleaseBlock(target)
		return uri.ResponseDataFormatUnknown, err
	}
	return uri.ResponseDataFormatText, nil
}

// ReleaseService removes the block named by the request arguments from the store. The
// response is empty
type ReleaseService struct {
	store *transfer.Store
}

func NewReleaseService(store *transfer.Store) *ReleaseService {
	return &ReleaseService{
		store: store,
	}
}

func (s *ReleaseService) Name() string {
	return ReleaseServiceName
}

func (s *ReleaseService) HandleRequest(
	args string,
	block *transfer.ServerBlock,
) (uri.ResponseDataFormat, error) {
	target, err := lookupBlock(s.store, args)
	if err != nil {
		return uri.ResponseDataFormatUnknown, err
	}
	if target == block {
		return uri.ResponseDataFormatUnknown, fmt.Errorf("block %d: %w", target.Id(), protocol.ErrRejected)
	}
	s.store.ReleaseBlock(target)
	return uri.ResponseDataFormatText, nil
}
