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

package uri_test

import (
	"testing"

	"github.com/blinklabs-io/gotransfer/protocol/uri"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRequest(t *testing.T) {
	testDefs := []struct {
		request string
		name    string
		args    string
	}{
		{"info:", "info", ""},
		{"info://", "info", ""},
		{"info://verbose", "info", "verbose"},
		{"info:verbose", "info", "verbose"},
		{"digest://1234:extra", "digest", "1234:extra"},
		{"svc:/single", "svc", "/single"},
		{"svc:///triple", "svc", "/triple"},
	}
	for _, testDef := range testDefs {
		name, args, err := uri.ParseRequest(testDef.request)
		require.NoError(t, err, testDef.request)
		assert.Equal(t, testDef.name, name, testDef.request)
		assert.Equal(t, testDef.args, args, testDef.request)
	}
}

func TestParseRequestMalformed(t *testing.T) {
	for _, request := range []string{"", "info", ":args", "://"} {
		_, _, err := uri.ParseRequest(request)
		assert.ErrorIs(t, err, uri.ErrMalformedRequest, request)
	}
}
