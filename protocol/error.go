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

import "errors"

var ErrProtocolShuttingDown = errors.New("protocol is shutting down")

// Protocol violation errors cancel the active transfer and are reported to the peer
var (
	ErrProtocolViolationInvalidMessage = errors.New(
		"protocol violation: invalid message received",
	)
	ErrProtocolViolationPayloadTooLarge = errors.New(
		"protocol violation: payload exceeds maximum size",
	)
)

// Errors corresponding to the non-success wire results
var (
	ErrError              error = StatusError{Result: ResultError}
	ErrNotReady           error = StatusError{Result: ResultNotReady}
	ErrVersionMismatch    error = StatusError{Result: ResultVersionMismatch}
	ErrUnavailable        error = StatusError{Result: ResultUnavailable}
	ErrRejected           error = StatusError{Result: ResultRejected}
	ErrAborted            error = StatusError{Result: ResultAborted}
	ErrInsufficientMemory error = StatusError{Result: ResultInsufficientMemory}
)

// StatusError is an error carrying a wire result code
type StatusError struct {
	Result Result
}

func (e StatusError) Error() string {
	return e.Result.String()
}
