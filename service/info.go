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
	"maps"
	"slices"

	"github.com/blinklabs-io/gotransfer/protocol"
	"github.com/blinklabs-io/gotransfer/protocol/transfer"
	"github.com/blinklabs-io/gotransfer/protocol/uri"
)

// InfoService answers with "key: value" lines describing the server. A request naming a key
// returns only that value
type InfoService struct {
	info map[string]string
}

func NewInfoService(info map[string]string) *InfoService {
	return &InfoService{
		info: maps.Clone(info),
	}
}

func (s *InfoService) Name() string {
	return InfoServiceName
}

func (s *InfoService) HandleRequest(
	args string,
	block *transfer.ServerBlock,
) (uri.ResponseDataFormat, error) {
	if args != "" {
		value, ok := s.info[args]
		if !ok {
			return uri.ResponseDataFormatUnknown, fmt.Errorf("info key %q: %w", args, protocol.ErrUnavailable)
		}
		if _, err := block.Write([]byte(value)); err != nil {
			return uri.ResponseDataFormatUnknown, err
		}
		return uri.ResponseDataFormatText, nil
	}
	for _, key := range slices.Sorted(maps.Keys(s.info)) {
		if _, err := fmt.Fprintf(blockWriter{block}, "%s: %s\n", key, s.info[key]); err != nil {
			return uri.ResponseDataFormatUnknown, err
		}
	}
	return uri.ResponseDataFormatText, nil
}

// blockWriter adapts a block to io.Writer
type blockWriter struct {
	block *transfer.ServerBlock
}

func (w blockWriter) Write(p []byte) (int, error) {
	return w.block.Write(p)
}
