// Copyright 2025 ChatBridge
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
	"fmt"
	"log"
	"os"
	"sync"
)

// ClientCreator builds a Client from backend-specific options.
type ClientCreator func(options map[string]string) (Client, error)

// ClientFactory holds registered protocol client creators keyed by type.
// Client libraries register themselves in init, typically via a blank
// import in the binary that wants them.
type ClientFactory struct {
	mu       sync.RWMutex
	creators map[string]ClientCreator
	logger   *log.Logger
}

var defaultFactory *ClientFactory
var defaultFactoryOnce sync.Once

// DefaultFactory returns the process-wide client factory.
func DefaultFactory() *ClientFactory {
	defaultFactoryOnce.Do(func() {
		defaultFactory = NewClientFactory()
	})
	return defaultFactory
}

// NewClientFactory creates an empty factory.
func NewClientFactory() *ClientFactory {
	return &ClientFactory{
		creators: make(map[string]ClientCreator),
		logger:   log.New(os.Stdout, "[PROTOCOL_FACTORY] ", log.LstdFlags),
	}
}

// Register adds a client creator. Registering a type twice is an error.
func (f *ClientFactory) Register(clientType string, creator ClientCreator) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, exists := f.creators[clientType]; exists {
		return fmt.Errorf("protocol client type '%s' already registered", clientType)
	}

	f.creators[clientType] = creator
	f.logger.Printf("Registered protocol client type: %s", clientType)
	return nil
}

// RegisterOrReplace adds or replaces a client creator. Useful in tests.
func (f *ClientFactory) RegisterOrReplace(clientType string, creator ClientCreator) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.creators[clientType] = creator
}

// Create instantiates a client of the given type.
func (f *ClientFactory) Create(clientType string, options map[string]string) (Client, error) {
	f.mu.RLock()
	creator, exists := f.creators[clientType]
	f.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("no protocol client registered for type: %s", clientType)
	}

	return creator(options)
}

// Types returns the registered client types.
func (f *ClientFactory) Types() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	types := make([]string, 0, len(f.creators))
	for t := range f.creators {
		types = append(types, t)
	}
	return types
}
