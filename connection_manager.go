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
	"sync"

	"github.com/google/uuid"
)

// ConnectionManagerConnClosedFunc is a function that takes a connection handle and an optional error
type ConnectionManagerConnClosedFunc func(uuid.UUID, error)

// ConnectionManager tracks the live connections of a server
type ConnectionManager struct {
	config           ConnectionManagerConfig
	connections      map[uuid.UUID]*Connection
	connectionsMutex sync.Mutex
}

type ConnectionManagerConfig struct {
	ConnClosedFunc ConnectionManagerConnClosedFunc
}

func NewConnectionManager(cfg ConnectionManagerConfig) *ConnectionManager {
	return &ConnectionManager{
		config:      cfg,
		connections: make(map[uuid.UUID]*Connection),
	}
}

// AddConnection starts tracking the connection and returns the handle it is tracked under. The
// connection is removed once its error channel reports an error or closes
func (c *ConnectionManager) AddConnection(conn *Connection) uuid.UUID {
	connUuid := uuid.New()
	c.connectionsMutex.Lock()
	c.connections[connUuid] = conn
	c.connectionsMutex.Unlock()
	go func() {
		err := <-conn.ErrorChan()
		c.RemoveConnection(connUuid)
		// Call configured connection closed callback func
		if c.config.ConnClosedFunc != nil {
			c.config.ConnClosedFunc(connUuid, err)
		}
	}()
	return connUuid
}

func (c *ConnectionManager) RemoveConnection(connUuid uuid.UUID) {
	c.connectionsMutex.Lock()
	delete(c.connections, connUuid)
	c.connectionsMutex.Unlock()
}

func (c *ConnectionManager) GetConnectionById(connUuid uuid.UUID) *Connection {
	c.connectionsMutex.Lock()
	defer c.connectionsMutex.Unlock()
	return c.connections[connUuid]
}

// Connections returns the tracked connections
func (c *ConnectionManager) Connections() []*Connection {
	c.connectionsMutex.Lock()
	defer c.connectionsMutex.Unlock()
	ret := make([]*Connection, 0, len(c.connections))
	for _, conn := range c.connections {
		ret = append(ret, conn)
	}
	return ret
}

// Len returns the number of tracked connections
func (c *ConnectionManager) Len() int {
	c.connectionsMutex.Lock()
	defer c.connectionsMutex.Unlock()
	return len(c.connections)
}

// CloseAll closes every tracked connection
func (c *ConnectionManager) CloseAll() {
	for _, conn := range c.Connections() {
		_ = conn.Close()
	}
}
