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

package registry

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/uptrace/bun"

	"github.com/tomoncle/anystore/database"
	"github.com/tomoncle/anystore/repository"
	"github.com/tomoncle/anystore/repository/document"
	"github.com/tomoncle/anystore/repository/relational"
)

// Options configures a Registry.
type Options struct {
	// Default is the backend used when a handle cannot be classified.
	Default repository.Kind
	// SQL is the default relational session; required when Default is Relational.
	SQL bun.IDB
	// Documents is the default document database; required when Default is Document.
	Documents document.Database
	Logger    database.Logger
	// Metrics, when set, wraps every repository with repository.Instrument.
	Metrics *repository.Metrics
	// Repository options applied to every repository built by the registry.
	Repository []repository.Option
}

// Registry builds and caches one repository per entity name.
type Registry struct {
	mu     sync.RWMutex
	cache  map[string]repository.Repository
	opts   Options
	logger database.Logger
}

// New validates opts and returns an empty registry.
func New(opts Options) (*Registry, error) {
	switch opts.Default {
	case repository.Relational:
		if isNil(opts.SQL) {
			return nil, errors.New("registry: relational default backend needs a SQL session")
		}
	case repository.Document:
		if isNil(opts.Documents) {
			return nil, errors.New("registry: document default backend needs a document database")
		}
	default:
		return nil, fmt.Errorf("registry: invalid default backend %q", opts.Default.Name())
	}
	logger := opts.Logger
	if logger == nil {
		logger = database.GetLogger()
	}
	return &Registry{
		cache:  make(map[string]repository.Repository),
		opts:   opts,
		logger: logger,
	}, nil
}

// GetRepository returns the cached repository for entity, building it from
// handle on first use. Later calls return the cached instance whatever handle
// they pass. Only a missing handle or entity name is an error.
func (r *Registry) GetRepository(entity string, handle any) (repository.Repository, error) {
	entity = strings.TrimSpace(entity)
	if entity == "" {
		return nil, &repository.ClassificationError{Reason: "entity name is empty"}
	}
	if isNil(handle) {
		return nil, &repository.ClassificationError{Entity: entity}
	}

	r.mu.RLock()
	cached, ok := r.cache[entity]
	r.mu.RUnlock()
	if ok {
		return cached, nil
	}

	backend := Detect(handle)
	repo, err := r.build(entity, backend)
	if err != nil {
		return nil, err
	}
	if r.opts.Metrics != nil {
		repo = repository.Instrument(repo, r.opts.Metrics)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.cache[entity]; ok {
		return existing, nil
	}
	r.cache[entity] = repo
	return repo, nil
}

func (r *Registry) build(entity string, b Backend) (repository.Repository, error) {
	if b.step == StepDefault {
		r.logger.Warn("model handle not recognised, using default backend",
			"entity", entity, "backend", r.opts.Default.Name())
		b = r.fallback()
	} else {
		r.logger.Debug("model handle classified",
			"entity", entity, "backend", b.kind.Name(), "step", b.step)
	}

	switch b.kind {
	case repository.Relational:
		model := b.model
		if model == nil && b.sql != nil {
			model = relational.NewEntityTable(b.sql, entity)
		}
		return relational.New(entity, model, r.opts.Repository...)
	case repository.Document:
		coll := b.coll
		if coll == nil && b.db != nil {
			coll = b.db.Collection(repository.TableName(entity))
		}
		return document.New(entity, coll, r.opts.Repository...)
	}
	return nil, fmt.Errorf("%w: %s: unknown backend", repository.ErrIncompatibleHandle, entity)
}

func (r *Registry) fallback() Backend {
	if r.opts.Default == repository.Document {
		return Backend{kind: repository.Document, step: StepDefault, db: r.opts.Documents}
	}
	return Backend{kind: repository.Relational, step: StepDefault, sql: r.opts.SQL}
}

// ClearCache drops every cached repository.
func (r *Registry) ClearCache() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache = make(map[string]repository.Repository)
}

// DatabaseType returns the configured default backend.
func (r *Registry) DatabaseType() repository.Kind { return r.opts.Default }

// IsRelational reports whether the default backend is relational.
func (r *Registry) IsRelational() bool { return r.opts.Default == repository.Relational }

// Len returns the number of cached repositories.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.cache)
}

// Entities returns the cached entity names.
func (r *Registry) Entities() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.cache))
	for name := range r.cache {
		names = append(names, name)
	}
	return names
}
