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
	"context"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/tomoncle/anystore/repository"
	"github.com/tomoncle/anystore/repository/document"
)

// DocumentManager owns a MongoDB client and the configured database.
type DocumentManager struct {
	config *DocumentConfig
	logger Logger

	mu       sync.RWMutex
	client   *mongo.Client
	database document.Database
}

var _ Manager = (*DocumentManager)(nil)

// NewDocumentManager returns an unconnected manager; a nil config uses DefaultDocumentConfig.
func NewDocumentManager(config *DocumentConfig) *DocumentManager {
	if config == nil {
		def := DefaultDocumentConfig()
		config = &def
	}
	return &DocumentManager{config: config, logger: GetLogger()}
}

func (m *DocumentManager) Kind() repository.Kind { return repository.Document }

func (m *DocumentManager) clientOptions() *options.ClientOptions {
	opts := options.Client().ApplyURI(m.config.URI)
	if m.config.AppName != "" {
		opts.SetAppName(m.config.AppName)
	}
	if m.config.MaxPoolSize > 0 {
		opts.SetMaxPoolSize(m.config.MaxPoolSize)
	}
	if m.config.MinPoolSize > 0 {
		opts.SetMinPoolSize(m.config.MinPoolSize)
	}
	if m.config.ConnectTimeout > 0 {
		opts.SetConnectTimeout(m.config.ConnectTimeout)
	}
	if m.config.ServerTimeout > 0 {
		opts.SetServerSelectionTimeout(m.config.ServerTimeout)
	}
	return opts
}

func (m *DocumentManager) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client != nil {
		return nil
	}
	if m.config.Database == "" {
		return fmt.Errorf("document database name is empty")
	}

	client, err := mongo.Connect(ctx, m.clientOptions())
	if err != nil {
		return fmt.Errorf("failed to create document store client: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return fmt.Errorf("document store connection test failed: %w", err)
	}

	m.client = client
	m.database = document.NewDatabase(client.Database(m.config.Database))
	m.logger.Info("document store connected", "database", m.config.Database)
	return nil
}

// Attach uses db as the default database, for callers that manage the
// client themselves and for tests.
func (m *DocumentManager) Attach(db document.Database) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.database = db
}

func (m *DocumentManager) Disconnect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.database = nil
	if m.client == nil {
		return nil
	}
	err := m.client.Disconnect(ctx)
	m.client = nil
	if err != nil {
		m.logger.Error("failed to close document store client", "error", err)
		return err
	}
	m.logger.Info("document store connection closed")
	return nil
}

func (m *DocumentManager) Ping(ctx context.Context) error {
	m.mu.RLock()
	client, db := m.client, m.database
	m.mu.RUnlock()
	if client != nil {
		return client.Ping(ctx, readpref.Primary())
	}
	if db != nil {
		return nil
	}
	return ErrNotConnected
}

func (m *DocumentManager) HealthCheck(ctx context.Context) *HealthStatus {
	start := time.Now()
	status := &HealthStatus{Backend: m.Kind().Name(), LastCheckTime: start}
	if m.Database() == nil {
		status.LastError = ErrNotConnected.Error()
		return status
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	err := m.Ping(pingCtx)
	status.ResponseTime = time.Since(start)
	status.Healthy = err == nil
	status.Connected = err == nil
	if err != nil {
		status.LastError = err.Error()
	}
	return status
}

// Client returns the driver client, nil before Connect or after Attach.
func (m *DocumentManager) Client() *mongo.Client {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.client
}

// Database returns the configured database, nil before Connect.
func (m *DocumentManager) Database() document.Database {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.database
}

func (m *DocumentManager) SetLogger(logger Logger) {
	if logger == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logger = logger
}
