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
	"time"

	"github.com/benbjohnson/clock"
)

// SendPayload sends the payload, retrying while the session reports ErrNotReady until the
// timeout expires. The final ErrNotReady is returned on timeout. A negative timeout retries
// until the session accepts the payload
func SendPayload(
	session Session,
	clk clock.Clock,
	payload []byte,
	timeout time.Duration,
	retryInterval time.Duration,
) error {
	deadline := clk.Now().Add(timeout)
	for {
		err := session.Send(payload, NoWait)
		if !errors.Is(err, ErrNotReady) {
			return err
		}
		if timeout >= 0 && !clk.Now().Before(deadline) {
			return err
		}
		clk.Sleep(retryInterval)
	}
}

// ReceivePayload waits for the next payload, polling the session every retry interval until the
// timeout expires. The final ErrNotReady is returned on timeout. A negative timeout waits
// until a payload arrives
func ReceivePayload(
	session Session,
	clk clock.Clock,
	timeout time.Duration,
	retryInterval time.Duration,
) ([]byte, error) {
	deadline := clk.Now().Add(timeout)
	for {
		data, err := session.Receive(retryInterval)
		if !errors.Is(err, ErrNotReady) {
			return data, err
		}
		if timeout >= 0 && !clk.Now().Before(deadline) {
			return nil, err
		}
	}
}
