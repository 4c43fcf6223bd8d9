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

package gotransfer

import (
	"fmt"

	"github.com/blinklabs-io/gotransfer/protocol"
	"github.com/blinklabs-io/gotransfer/protocol/transfer"
	"github.com/blinklabs-io/gotransfer/protocol/uri"
)

// Protocol versions used when none are specified
const (
	DefaultTransferVersion = transfer.VersionMax
	DefaultUriVersion      = uri.VersionResponseFormats
)

// validateVersions checks that both protocol versions are supported by this implementation
func validateVersions(transferVersion uint16, uriVersion uint16) error {
	if transferVersion < transfer.VersionMin || transferVersion > transfer.VersionMax {
		return fmt.Errorf(
			"%w: unsupported %s protocol version %d",
			protocol.ErrVersionMismatch,
			transfer.ProtocolName,
			transferVersion,
		)
	}
	if uriVersion < uri.VersionInitial || uriVersion > uri.VersionResponseFormats {
		return fmt.Errorf(
			"%w: unsupported %s protocol version %d",
			protocol.ErrVersionMismatch,
			uri.ProtocolName,
			uriVersion,
		)
	}
	return nil
}
