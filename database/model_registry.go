/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */


package database

import (
	"sort"
	"sync"
)

// ModelProvider records which model handle serves each entity. Handles are
// returned in registration priority order (lower first, then by name).
type ModelProvider struct {
	mu      sync.RWMutex
	entries map[string]modelEntry
}

type modelEntry struct {
	handle   any
	priority int
}

// Registration is one entity and its model handle.
type Registration struct {
	Entity   string
	Handle   any
	Priority int
}

// NewModelProvider returns an empty provider.
func NewModelProvider() *ModelProvider {
	return &ModelProvider{entries: make(map[string]modelEntry)}
}

// Register binds handle to entity, replacing any earlier binding.
func (p *ModelProvider) Register(entity string, handle any) {
	p.RegisterWithPriority(entity, handle, 0)
}

func (p *ModelProvider) RegisterWithPriority(entity string, handle any, priority int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries[entity] = modelEntry{handle: handle, priority: priority}
}

// Handle returns the handle bound to entity.
func (p *ModelProvider) Handle(entity string) (any, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, ok := p.entries[entity]
	return e.handle, ok
}

// Registrations lists every binding in priority order.
func (p *ModelProvider) Registrations() []Registration {
	p.mu.RLock()
	out := make([]Registration, 0, len(p.entries))
	for name, e := range p.entries {
		out = append(out, Registration{Entity: name, Handle: e.handle, Priority: e.priority})
	}
	p.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].Entity < out[j].Entity
	})
	return out
}

// Len returns the number of registered entities.
func (p *ModelProvider) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.entries)
}
