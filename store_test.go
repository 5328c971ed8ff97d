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


package anystore_test

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"github.com/tomoncle/anystore"
	"github.com/tomoncle/anystore/database"
	"github.com/tomoncle/anystore/repository"
	"github.com/tomoncle/anystore/repository/document/mock"
	"github.com/tomoncle/anystore/repository/relational"
	"github.com/tomoncle/anystore/types"
)

const schema = `CREATE TABLE orders (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	status TEXT NOT NULL,
	total REAL,
	created_at TIMESTAMP,
	updated_at TIMESTAMP
)`

func sqlStore(t *testing.T, opts ...anystore.Option) (*anystore.Store, *bun.DB) {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	raw, err := sql.Open(sqliteshim.ShimName, fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	require.NoError(t, err)
	raw.SetMaxOpenConns(1)
	db := bun.NewDB(raw, sqlitedialect.New())
	_, err = db.ExecContext(context.Background(), schema)
	require.NoError(t, err)

	manager := database.NewSQLManager(nil)
	manager.Attach(db)
	store, err := anystore.New(manager, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close(context.Background()) })
	return store, db
}

func docStore(t *testing.T) (*anystore.Store, *mock.Database) {
	t.Helper()
	docs := mock.NewDatabase("shop")
	manager := database.NewDocumentManager(nil)
	manager.Attach(docs)
	store, err := anystore.New(manager)
	require.NoError(t, err)
	return store, docs
}

func TestStore_RelationalDefault(t *testing.T) {
	ctx := context.Background()
	store, _ := sqlStore(t)
	assert.True(t, store.IsRelational())
	assert.Equal(t, repository.Relational, store.DatabaseType())
	assert.True(t, store.Health(ctx).Healthy)

	repo, err := store.Repository("Order")
	require.NoError(t, err)
	_, err = repo.Create(ctx, types.Record{"status": "new"})
	require.NoError(t, err)

	again, err := store.Repository("Order")
	require.NoError(t, err)
	assert.Same(t, repo, again)
}

func TestStore_RegisteredHandlesMixBackends(t *testing.T) {
	ctx := context.Background()
	store, db := sqlStore(t)
	events := mock.NewCollection("events")
	store.Register("Order", relational.NewTable(db, "orders"))
	store.Register("Event", events)

	orders, err := store.Repository("Order")
	require.NoError(t, err)
	assert.Equal(t, repository.Relational, orders.Kind())

	eventRepo, err := store.Repository("Event")
	require.NoError(t, err)
	assert.Equal(t, repository.Document, eventRepo.Kind())
	_, err = eventRepo.Create(ctx, types.Record{"type": "login"})
	require.NoError(t, err)
	assert.Equal(t, 1, events.Len())
	assert.Equal(t, 2, store.Registry().Len())
}

func TestStore_DocumentDefault(t *testing.T) {
	ctx := context.Background()
	store, docs := docStore(t)
	assert.False(t, store.IsRelational())

	repo, err := store.Repository("AuditEntry")
	require.NoError(t, err)
	_, err = repo.Create(ctx, types.Record{"action": "delete"})
	require.NoError(t, err)
	assert.Equal(t, 1, docs.Mock("audit_entries").Len())

	require.NoError(t, store.Close(ctx))
	assert.Zero(t, store.Registry().Len())
}

func TestStore_Metrics(t *testing.T) {
	ctx := context.Background()
	metrics, err := repository.NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	store, _ := sqlStore(t, anystore.WithMetrics(metrics))

	repo, err := store.Repository("Order")
	require.NoError(t, err)
	_, err = repo.Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, float64(1), testutil.ToFloat64(
		metrics.Operations().WithLabelValues("Order", "relational", repository.OpCount, repository.StatusOK)))
}

func TestNew_NeedsConnection(t *testing.T) {
	_, err := anystore.New(database.NewSQLManager(nil))
	assert.Error(t, err)
	_, err = anystore.New(database.NewDocumentManager(nil))
	assert.Error(t, err)
}

func TestOpen_SQLite(t *testing.T) {
	ctx := context.Background()
	cfg := database.DefaultConfig()
	cfg.Backend = repository.Relational
	cfg.Connection.Type = "sqlite"
	cfg.Connection.DSN = "file:open_sqlite?mode=memory&cache=shared"
	cfg.Connection.HealthCheckInterval = 0
	cfg.Connection.MaxOpenConns = 1

	store, err := anystore.Open(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close(ctx) })

	manager, ok := store.Manager().(*database.SQLManager)
	require.True(t, ok)
	_, err = manager.DB().ExecContext(ctx, schema)
	require.NoError(t, err)

	repo, err := store.Repository("Order")
	require.NoError(t, err)
	n, err := repo.Count(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}
