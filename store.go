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


// Package anystore exposes one repository contract over relational and
// document backends. Open a Store from a database.Config, register model
// handles per entity, and ask the store for repositories or typed services.
package anystore

import (
	"context"
	"fmt"

	"github.com/tomoncle/anystore/database"
	"github.com/tomoncle/anystore/registry"
	"github.com/tomoncle/anystore/repository"
)

// Option adjusts the registry a Store is built with.
type Option func(*registry.Options)

// WithMetrics instruments every repository with m.
func WithMetrics(m *repository.Metrics) Option {
	return func(o *registry.Options) { o.Metrics = m }
}

// WithLogger replaces the package logger for detection messages.
func WithLogger(l database.Logger) Option {
	return func(o *registry.Options) { o.Logger = l }
}

// WithRepositoryOptions applies opts to every repository the store builds.
func WithRepositoryOptions(opts ...repository.Option) Option {
	return func(o *registry.Options) { o.Repository = append(o.Repository, opts...) }
}

// Store ties a connected backend to a repository registry and the model
// handles registered for each entity.
type Store struct {
	manager  database.Manager
	registry *registry.Registry
	models   *database.ModelProvider
}

// Open connects the backend cfg selects and returns a ready Store.
func Open(ctx context.Context, cfg *database.Config, opts ...Option) (*Store, error) {
	manager, err := database.NewManager(cfg)
	if err != nil {
		return nil, err
	}
	if err := manager.Connect(ctx); err != nil {
		return nil, err
	}
	store, err := New(manager, opts...)
	if err != nil {
		_ = manager.Disconnect(ctx)
		return nil, err
	}
	return store, nil
}

// New builds a Store over an already connected manager.
func New(manager database.Manager, opts ...Option) (*Store, error) {
	ro := registry.Options{}
	switch m := manager.(type) {
	case *database.SQLManager:
		ro.Default = repository.Relational
		if db := m.DB(); db != nil {
			ro.SQL = db
		}
	case *database.DocumentManager:
		ro.Default = repository.Document
		ro.Documents = m.Database()
	default:
		return nil, fmt.Errorf("anystore: unsupported manager %T", manager)
	}
	for _, opt := range opts {
		opt(&ro)
	}
	reg, err := registry.New(ro)
	if err != nil {
		return nil, err
	}
	return NewStoreWith(manager, reg, database.NewModelProvider()), nil
}

// NewStoreWith assembles a Store from parts, mainly for tests. A nil
// provider starts empty.
func NewStoreWith(manager database.Manager, reg *registry.Registry, models *database.ModelProvider) *Store {
	if models == nil {
		models = database.NewModelProvider()
	}
	return &Store{manager: manager, registry: reg, models: models}
}

// Register binds a model handle to entity. A repository already built for
// entity keeps serving it; call Registry().ClearCache to rebuild.
func (s *Store) Register(entity string, handle any) {
	s.models.Register(entity, handle)
}

// Repository returns the repository for entity, built from its registered
// handle or, when none was registered, from the default backend.
func (s *Store) Repository(entity string) (repository.Repository, error) {
	handle, ok := s.models.Handle(entity)
	if !ok {
		handle = registry.Default()
	}
	return s.registry.GetRepository(entity, handle)
}

func (s *Store) Registry() *registry.Registry { return s.registry }

func (s *Store) Models() *database.ModelProvider { return s.models }

func (s *Store) Manager() database.Manager { return s.manager }

// DatabaseType returns the default backend.
func (s *Store) DatabaseType() repository.Kind { return s.registry.DatabaseType() }

func (s *Store) IsRelational() bool { return s.registry.IsRelational() }

// Health checks the underlying connection.
func (s *Store) Health(ctx context.Context) *database.HealthStatus {
	if s.manager == nil {
		return &database.HealthStatus{LastError: database.ErrNotConnected.Error()}
	}
	return s.manager.HealthCheck(ctx)
}

// Close drops cached repositories and disconnects the backend.
func (s *Store) Close(ctx context.Context) error {
	s.registry.ClearCache()
	if s.manager == nil {
		return nil
	}
	return s.manager.Disconnect(ctx)
}
