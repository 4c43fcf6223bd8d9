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

package uri

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/blinklabs-io/gotransfer/protocol"
	"github.com/blinklabs-io/gotransfer/protocol/transfer"
)

// Message types
const (
	MessageTypeUnknown  = 0
	MessageTypeRequest  = 1
	MessageTypeResponse = 2
)

// Encoded message sizes, including the header
const (
	requestSize    = HeaderSize + RequestStringSize
	responseSizeV1 = HeaderSize + 8
	responseSizeV2 = HeaderSize + 12
)

// NewMsgFromPayload returns a parsed message from a session payload
func NewMsgFromPayload(version uint16, data []byte) (protocol.Message, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf(
			"%s: %w: payload too short (%d bytes)",
			ProtocolName,
			protocol.ErrProtocolViolationInvalidMessage,
			len(data),
		)
	}
	msgType := data[0]
	switch msgType {
	case MessageTypeRequest:
		if len(data) < requestSize {
			break
		}
		request := data[HeaderSize:requestSize]
		// The string ends at the first NUL
		if idx := bytes.IndexByte(request, 0); idx >= 0 {
			request = request[:idx]
		}
		return &MsgRequest{
			MessageBase: protocol.MessageBase{MessageType: msgType},
			Request:     string(request),
		}, nil
	case MessageTypeResponse:
		if len(data) < responseSizeV1 {
			break
		}
		msg := &MsgResponse{
			MessageBase: protocol.MessageBase{MessageType: msgType},
			Result:      protocol.Result(binary.LittleEndian.Uint32(data[4:8])),
			BlockId:     transfer.BlockId(binary.LittleEndian.Uint32(data[8:12])),
			// Responses from version 1 servers are always text
			Format: ResponseDataFormatText,
		}
		if version >= VersionResponseFormats {
			if len(data) < responseSizeV2 {
				break
			}
			msg.Format = ResponseDataFormat(binary.LittleEndian.Uint32(data[12:16]))
		}
		return msg, nil
	default:
		return nil, fmt.Errorf(
			"%s: %w: unknown message type %d",
			ProtocolName,
			protocol.ErrProtocolViolationInvalidMessage,
			msgType,
		)
	}
	return nil, fmt.Errorf(
		"%s: %w: message type %d truncated (%d bytes)",
		ProtocolName,
		protocol.ErrProtocolViolationInvalidMessage,
		msgType,
		len(data),
	)
}

type MsgRequest struct {
	protocol.MessageBase
	Request string
}

func NewMsgRequest(request string) *MsgRequest {
	m := &MsgRequest{
		MessageBase: protocol.MessageBase{
			MessageType: MessageTypeRequest,
		},
		Request: request,
	}
	return m
}

// Payload encodes the request. Requests longer than MaxRequestLength are truncated
func (m *MsgRequest) Payload(version uint16) []byte {
	ret := make([]byte, requestSize, payloadCap(version, requestSize))
	ret[0] = m.MessageType
	copy(ret[HeaderSize:HeaderSize+MaxRequestLength], m.Request)
	return padPayload(version, ret)
}

type MsgResponse struct {
	protocol.MessageBase
	Result  protocol.Result
	BlockId transfer.BlockId
	// Only carried on the wire from version 2
	Format ResponseDataFormat
}

func NewMsgResponse(
	result protocol.Result,
	blockId transfer.BlockId,
	format ResponseDataFormat,
) *MsgResponse {
	m := &MsgResponse{
		MessageBase: protocol.MessageBase{
			MessageType: MessageTypeResponse,
		},
		Result:  result,
		BlockId: blockId,
		Format:  format,
	}
	return m
}

func (m *MsgResponse) Payload(version uint16) []byte {
	size := responseSizeV1
	if version >= VersionResponseFormats {
		size = responseSizeV2
	}
	ret := make([]byte, size, payloadCap(version, size))
	ret[0] = m.MessageType
	binary.LittleEndian.PutUint32(ret[4:8], uint32(m.Result))
	binary.LittleEndian.PutUint32(ret[8:12], uint32(m.BlockId))
	if version >= VersionResponseFormats {
		binary.LittleEndian.PutUint32(ret[12:16], uint32(m.Format))
	}
	return padPayload(version, ret)
}

// Version 1 peers expect every payload padded to the maximum payload size
func payloadCap(version uint16, size int) int {
	if version < VersionResponseFormats {
		return protocol.MaxPayloadSize
	}
	return size
}

func padPayload(version uint16, data []byte) []byte {
	if version < VersionResponseFormats {
		return data[:protocol.MaxPayloadSize]
	}
	return data
}
