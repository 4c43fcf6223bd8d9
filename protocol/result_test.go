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

package protocol_test

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/blinklabs-io/gotransfer/protocol"
	"github.com/stretchr/testify/assert"
)

func TestResultErr(t *testing.T) {
	testDefs := []struct {
		result      protocol.Result
		expectedErr error
	}{
		{protocol.ResultSuccess, nil},
		{protocol.ResultError, protocol.ErrError},
		{protocol.ResultNotReady, protocol.ErrNotReady},
		{protocol.ResultUnavailable, protocol.ErrUnavailable},
		{protocol.ResultEndOfStream, io.EOF},
		{protocol.ResultAborted, protocol.ErrAborted},
		{protocol.ResultInsufficientMemory, protocol.ErrInsufficientMemory},
	}
	for _, testDef := range testDefs {
		err := testDef.result.Err()
		if testDef.expectedErr == nil {
			assert.NoError(t, err, testDef.result.String())
			continue
		}
		assert.ErrorIs(t, err, testDef.expectedErr, testDef.result.String())
		assert.Equal(t, testDef.result, protocol.ResultFromError(err))
	}
}

func TestResultFromWrappedError(t *testing.T) {
	err := fmt.Errorf("transfer: request failed: %w", protocol.ErrRejected)
	assert.Equal(t, protocol.ResultRejected, protocol.ResultFromError(err))
	assert.Equal(t, protocol.ResultError, protocol.ResultFromError(errors.New("boom")))
	assert.Equal(t, protocol.ResultSuccess, protocol.ResultFromError(nil))
}

func TestResultString(t *testing.T) {
	assert.Equal(t, "aborted", protocol.ResultAborted.String())
	assert.Equal(t, "unknown result (42)", protocol.Result(42).String())
	assert.Equal(t, "unavailable", protocol.ErrUnavailable.Error())
}
