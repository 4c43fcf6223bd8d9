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

package muxer

import (
	"time"
)

const (
	SegmentProtocolIdResponseFlag = 0x8000
	SegmentMaxPayloadLength       = 65535
	// Size of the encoded segment header on the wire
	SegmentHeaderLength = 8
)

// SegmentHeader is the fixed size header that precedes each payload on the wire
type SegmentHeader struct {
	Timestamp     uint32
	ProtocolId    uint16
	PayloadLength uint16
}

// Segment is a single framed payload for one protocol
type Segment struct {
	SegmentHeader
	Payload []byte
}

// NewSegment returns a new Segment for the specified protocol. Segments sent by the responding side
// of a connection have the response flag set in the protocol ID
func NewSegment(protocolId uint16, payload []byte, isResponse bool) *Segment {
	header := SegmentHeader{
		Timestamp:  uint32(time.Now().UnixNano() & 0xffffffff),
		ProtocolId: protocolId,
	}
	if isResponse {
		header.ProtocolId = header.ProtocolId | SegmentProtocolIdResponseFlag
	}
	header.PayloadLength = uint16(len(payload))
	segment := &Segment{
		SegmentHeader: header,
		Payload:       payload,
	}
	return segment
}

func (s *SegmentHeader) IsRequest() bool {
	return (s.ProtocolId & SegmentProtocolIdResponseFlag) == 0
}

func (s *SegmentHeader) IsResponse() bool {
	return (s.ProtocolId & SegmentProtocolIdResponseFlag) > 0
}

func (s *SegmentHeader) GetProtocolId() uint16 {
	return s.ProtocolId &^ SegmentProtocolIdResponseFlag
}
