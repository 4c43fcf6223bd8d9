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

import (
	"errors"
	"fmt"
	"io"
)

// Result is the status code carried in wire messages
type Result uint32

const (
	ResultSuccess            Result = 0
	ResultError              Result = 1
	ResultNotReady           Result = 2
	ResultVersionMismatch    Result = 3
	ResultUnavailable        Result = 4
	ResultRejected           Result = 5
	ResultEndOfStream        Result = 6
	ResultAborted            Result = 7
	ResultInsufficientMemory Result = 8
)

var resultNames = map[Result]string{
	ResultSuccess:            "success",
	ResultError:              "error",
	ResultNotReady:           "not ready",
	ResultVersionMismatch:    "version mismatch",
	ResultUnavailable:        "unavailable",
	ResultRejected:           "rejected",
	ResultEndOfStream:        "end of stream",
	ResultAborted:            "aborted",
	ResultInsufficientMemory: "insufficient memory",
}

func (r Result) String() string {
	if name, ok := resultNames[r]; ok {
		return name
	}
	return fmt.Sprintf("unknown result (%d)", uint32(r))
}

// Err returns the error corresponding to the result, or nil for ResultSuccess.
// ResultEndOfStream maps to io.EOF
func (r Result) Err() error {
	switch r {
	case ResultSuccess:
		return nil
	case ResultEndOfStream:
		return io.EOF
	}
	return StatusError{Result: r}
}

// ResultFromError returns the wire result that best describes the provided error
func ResultFromError(err error) Result {
	if err == nil {
		return ResultSuccess
	}
	if errors.Is(err, io.EOF) {
		return ResultEndOfStream
	}
	var statusErr StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Result
	}
	return ResultError
}
