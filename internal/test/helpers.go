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

// Package test provides helpers shared by package tests
package test

import (
	"encoding/hex"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"
)

// DecodeHexString is a helper function for tests that decodes hex strings. It doesn't return
// an error value, which makes it usable inline.
func DecodeHexString(hexData string) []byte {
	// Strip off any leading/trailing whitespace in hex string
	hexData = strings.TrimSpace(hexData)
	decoded, err := hex.DecodeString(hexData)
	if err != nil {
		panic(fmt.Sprintf("error decoding hex: %s", err))
	}
	return decoded
}

// RandomBytes returns a deterministic pseudo-random byte slice for the given seed
func RandomBytes(seed uint64, size int) []byte {
	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	ret := make([]byte, size)
	for i := range ret {
		ret[i] = byte(r.UintN(256))
	}
	return ret
}

// RunUpdates calls each update func in a loop from a goroutine until one fails or the returned
// stop func is called
func RunUpdates(updates ...func() error) func() {
	stopChan := make(chan struct{})
	doneChan := make(chan struct{})
	go func() {
		defer close(doneChan)
		for {
			select {
			case <-stopChan:
				return
			default:
			}
			for _, update := range updates {
				if err := update(); err != nil {
					return
				}
			}
			time.Sleep(100 * time.Microsecond)
		}
	}()
	return func() {
		close(stopChan)
		<-doneChan
	}
}
