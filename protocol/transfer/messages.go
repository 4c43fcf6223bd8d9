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
	"encoding/binary"
	"fmt"

	"github.com/blinklabs-io/gotransfer/protocol"
)

// Message types
const (
	MessageTypeUnknown         = 0
	MessageTypeTransferRequest = 1
	MessageTypeDataHeader      = 2
	MessageTypeDataChunk       = 3
	MessageTypeDataSentinel    = 4
	MessageTypeStatus          = 5
)

// Encoded message sizes, including the header
const (
	transferRequestSize = HeaderSize + 12
	dataHeaderSizeV1    = HeaderSize + 8
	dataHeaderSizeV2    = HeaderSize + 4
	dataSentinelSize    = HeaderSize + 8
	statusSize          = HeaderSize + 4
)

// NewMsgFromPayload returns a parsed message from a session payload. The message layout depends
// on the protocol version of the session
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
	var ret protocol.Message
	var minSize int
	switch msgType {
	case MessageTypeTransferRequest:
		minSize = transferRequestSize
		if len(data) >= minSize {
			ret = &MsgTransferRequest{
				MessageBase:  protocol.MessageBase{MessageType: msgType},
				BlockId:      BlockId(binary.LittleEndian.Uint32(data[4:8])),
				TransferType: TransferType(binary.LittleEndian.Uint32(data[8:12])),
				Size:         binary.LittleEndian.Uint32(data[12:16]),
			}
		}
	case MessageTypeDataHeader:
		if version >= VersionRefactor {
			minSize = dataHeaderSizeV2
			if len(data) >= minSize {
				ret = &MsgDataHeader{
					MessageBase: protocol.MessageBase{MessageType: msgType},
					Result:      protocol.ResultSuccess,
					Size:        binary.LittleEndian.Uint32(data[4:8]),
				}
			}
		} else {
			minSize = dataHeaderSizeV1
			if len(data) >= minSize {
				ret = &MsgDataHeader{
					MessageBase: protocol.MessageBase{MessageType: msgType},
					Result:      protocol.Result(binary.LittleEndian.Uint32(data[4:8])),
					Size:        binary.LittleEndian.Uint32(data[8:12]),
				}
			}
		}
	case MessageTypeDataChunk:
		// Version 1 peers pad every chunk, so the caller clamps the data to the bytes remaining
		ret = &MsgDataChunk{
			MessageBase: protocol.MessageBase{MessageType: msgType},
			Data:        data[HeaderSize:],
		}
	case MessageTypeDataSentinel:
		minSize = dataSentinelSize
		if len(data) >= minSize {
			ret = &MsgDataSentinel{
				MessageBase: protocol.MessageBase{MessageType: msgType},
				Result:      protocol.Result(binary.LittleEndian.Uint32(data[4:8])),
				Crc32:       binary.LittleEndian.Uint32(data[8:12]),
			}
		}
	case MessageTypeStatus:
		minSize = statusSize
		if len(data) >= minSize {
			ret = &MsgStatus{
				MessageBase: protocol.MessageBase{MessageType: msgType},
				Result:      protocol.Result(binary.LittleEndian.Uint32(data[4:8])),
			}
		}
	default:
		return nil, fmt.Errorf(
			"%s: %w: unknown message type %d",
			ProtocolName,
			protocol.ErrProtocolViolationInvalidMessage,
			msgType,
		)
	}
	if ret == nil {
		return nil, fmt.Errorf(
			"%s: %w: message type %d needs %d bytes, received %d",
			ProtocolName,
			protocol.ErrProtocolViolationInvalidMessage,
			msgType,
			minSize,
			len(data),
		)
	}
	return ret, nil
}

// encodePayload builds a payload with the message header. Version 1 peers expect every payload
// padded to the maximum payload size
func encodePayload(version uint16, msgType uint8, size int) []byte {
	bufSize := size
	if version < VersionRefactor {
		bufSize = protocol.MaxPayloadSize
	}
	ret := make([]byte, size, bufSize)
	ret[0] = msgType
	return ret
}

func padPayload(version uint16, data []byte) []byte {
	if version < VersionRefactor {
		return data[:protocol.MaxPayloadSize]
	}
	return data
}

type MsgTransferRequest struct {
	protocol.MessageBase
	BlockId      BlockId
	TransferType TransferType
	Size         uint32
}

func NewMsgTransferRequest(
	blockId BlockId,
	transferType TransferType,
	size uint32,
) *MsgTransferRequest {
	m := &MsgTransferRequest{
		MessageBase: protocol.MessageBase{
			MessageType: MessageTypeTransferRequest,
		},
		BlockId:      blockId,
		TransferType: transferType,
		Size:         size,
	}
	return m
}

func (m *MsgTransferRequest) Payload(version uint16) []byte {
	ret := encodePayload(version, m.MessageType, transferRequestSize)
	binary.LittleEndian.PutUint32(ret[4:8], uint32(m.BlockId))
	binary.LittleEndian.PutUint32(ret[8:12], uint32(m.TransferType))
	binary.LittleEndian.PutUint32(ret[12:16], m.Size)
	return padPayload(version, ret)
}

// MsgDataHeader starts a pull transfer. Only version 1 carries the result on the wire
type MsgDataHeader struct {
	protocol.MessageBase
	Result protocol.Result
	Size   uint32
}

func NewMsgDataHeader(result protocol.Result, size uint32) *MsgDataHeader {
	m := &MsgDataHeader{
		MessageBase: protocol.MessageBase{
			MessageType: MessageTypeDataHeader,
		},
		Result: result,
		Size:   size,
	}
	return m
}

func (m *MsgDataHeader) Payload(version uint16) []byte {
	if version >= VersionRefactor {
		ret := encodePayload(version, m.MessageType, dataHeaderSizeV2)
		binary.LittleEndian.PutUint32(ret[4:8], m.Size)
		return ret
	}
	ret := encodePayload(version, m.MessageType, dataHeaderSizeV1)
	binary.LittleEndian.PutUint32(ret[4:8], uint32(m.Result))
	binary.LittleEndian.PutUint32(ret[8:12], m.Size)
	return padPayload(version, ret)
}

type MsgDataChunk struct {
	protocol.MessageBase
	Data []byte
}

func NewMsgDataChunk(data []byte) *MsgDataChunk {
	m := &MsgDataChunk{
		MessageBase: protocol.MessageBase{
			MessageType: MessageTypeDataChunk,
		},
		Data: data,
	}
	return m
}

func (m *MsgDataChunk) Payload(version uint16) []byte {
	ret := encodePayload(version, m.MessageType, HeaderSize+len(m.Data))
	copy(ret[HeaderSize:], m.Data)
	return padPayload(version, ret)
}

// MsgDataSentinel ends a transfer with its final result and the CRC32 of the block data
type MsgDataSentinel struct {
	protocol.MessageBase
	Result protocol.Result
	Crc32  uint32
}

func NewMsgDataSentinel(result protocol.Result, crc uint32) *MsgDataSentinel {
	m := &MsgDataSentinel{
		MessageBase: protocol.MessageBase{
			MessageType: MessageTypeDataSentinel,
		},
		Result: result,
		Crc32:  crc,
	}
	return m
}

func (m *MsgDataSentinel) Payload(version uint16) []byte {
	ret := encodePayload(version, m.MessageType, dataSentinelSize)
	binary.LittleEndian.PutUint32(ret[4:8], uint32(m.Result))
	binary.LittleEndian.PutUint32(ret[8:12], m.Crc32)
	return padPayload(version, ret)
}

type MsgStatus struct {
	protocol.MessageBase
	Result protocol.Result
}

func NewMsgStatus(result protocol.Result) *MsgStatus {
	m := &MsgStatus{
		MessageBase: protocol.MessageBase{
			MessageType: MessageTypeStatus,
		},
		Result: result,
	}
	return m
}

func (m *MsgStatus) Payload(version uint16) []byte {
	ret := encodePayload(version, m.MessageType, statusSize)
	binary.LittleEndian.PutUint32(ret[4:8], uint32(m.Result))
	return padPayload(version, ret)
}
