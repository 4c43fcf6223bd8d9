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
	"fmt"
	"strings"
)

// ParseRequest splits a request string into the service name and its arguments. The service
// name ends at the first ':' and an optional "//" after it is skipped, so "info://x", "info:x"
// and "info:" all name the "info" service
func ParseRequest(request string) (string, string, error) {
	idx := strings.IndexByte(request, ':')
	if idx < 0 {
		return "", "", fmt.Errorf("%s: %w: missing separator: %q", ProtocolName, ErrMalformedRequest, request)
	}
	if idx == 0 {
		return "", "", fmt.Errorf("%s: %w: empty service name: %q", ProtocolName, ErrMalformedRequest, request)
	}
	name := request[:idx]
	args := strings.TrimPrefix(request[idx+1:], "//")
	return name, args, nil
}
