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

package protocol

// Message provides a common interface for protocol messages
type Message interface {
	Type() uint8
	// Payload returns the wire encoding of the message for the specified protocol version
	Payload(version uint16) []byte
}

type MessageBase struct {
	MessageType uint8
}

func (m *MessageBase) Type() uint8 {
	return m.MessageType
}
