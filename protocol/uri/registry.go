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
	"reflect"
	"sync"

	"github.com/blinklabs-io/gotransfer/protocol/transfer"
)

// Service answers URI requests for a single service name. HandleRequest writes the response into
// the open block and returns the format of what it wrote. Services must not close the block
type Service interface {
	Name() string
	HandleRequest(args string, block *transfer.ServerBlock) (ResponseDataFormat, error)
}

// ServiceFunc adapts a function to the Service interface
type ServiceFunc struct {
	name    string
	handler func(string, *transfer.ServerBlock) (ResponseDataFormat, error)
}

func NewServiceFunc(
	name string,
	handler func(string, *transfer.ServerBlock) (ResponseDataFormat, error),
) *ServiceFunc {
	return &ServiceFunc{
		name:    name,
		handler: handler,
	}
}

func (s *ServiceFunc) Name() string {
	return s.name
}

func (s *ServiceFunc) HandleRequest(args string, block *transfer.ServerBlock) (ResponseDataFormat, error) {
	return s.handler(args, block)
}

// Registry holds the services available to URI servers. Unregister matches services by
// identity, so implementations should use pointer receivers. A service whose dynamic type is not
// comparable can be registered but never unregistered
type Registry struct {
	mutex    sync.RWMutex
	services []Service
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds the service to the registry
func (r *Registry) Register(service Service) {
	if service == nil {
		return
	}
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.services = append(r.services, service)
}

// Unregister removes the service from the registry. It returns false if the service was not
// registered
func (r *Registry) Unregister(service Service) bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	for idx, tmpService := range r.services {
		if sameService(tmpService, service) {
			r.services = append(r.services[:idx], r.services[idx+1:]...)
			return true
		}
	}
	return false
}

func sameService(a Service, b Service) bool {
	if a == nil || b == nil || reflect.TypeOf(a) != reflect.TypeOf(b) {
		return false
	}
	// Comparing non-comparable values through the interface panics
	if !reflect.ValueOf(a).Comparable() {
		return false
	}
	return a == b
}

// Find returns the first registered service with the specified name, or nil
func (r *Registry) Find(name string) Service {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	for _, service := range r.services {
		if service.Name() == name {
			return service
		}
	}
	return nil
}

// Names returns the names of the registered services in registration order
func (r *Registry) Names() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	ret := make([]string, 0, len(r.services))
	for _, service := range r.services {
		ret = append(ret, service.Name())
	}
	return ret
}
