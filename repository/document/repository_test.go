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

package document_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/tomoncle/anystore/repository"
	"github.com/tomoncle/anystore/repository/document"
	"github.com/tomoncle/anystore/repository/document/mock"
	"github.com/tomoncle/anystore/types"
)

func newOrders(t *testing.T, opts ...repository.Option) (repository.Repository, *mock.Collection) {
	t.Helper()
	coll := mock.NewCollection("orders")
	repo, err := document.New("Order", coll, opts...)
	require.NoError(t, err)
	return repo, coll
}

func seed(t *testing.T, repo repository.Repository, recs ...types.Record) []types.Record {
	t.Helper()
	out := make([]types.Record, 0, len(recs))
	for _, rec := range recs {
		created, err := repo.Create(context.Background(), rec)
		require.NoError(t, err)
		out = append(out, created)
	}
	return out
}

func TestNew_IncompatibleHandle(t *testing.T) {
	_, err := document.New("Order", nil)
	assert.ErrorIs(t, err, repository.ErrIncompatibleHandle)

	var coll *mock.Collection
	_, err = document.New("Order", coll)
	assert.ErrorIs(t, err, repository.ErrIncompatibleHandle)
}

func TestCreate_RoundTrip(t *testing.T) {
	ctx := context.Background()
	repo, coll := newOrders(t)

	created, err := repo.Create(ctx, types.Record{
		"status": "pending",
		"total":  12.5,
		"items":  []interface{}{types.Record{"sku": "A-1", "qty": 2}},
	})
	require.NoError(t, err)
	require.NotNil(t, created)
	assert.Equal(t, 1, coll.Len())

	id, ok := created["id"].(string)
	require.True(t, ok, "id should be a hex string")
	assert.True(t, primitive.IsValidObjectID(id))
	assert.NotContains(t, created, "_id")
	assert.IsType(t, time.Time{}, created["createdAt"])
	assert.IsType(t, time.Time{}, created["updatedAt"])

	found, err := repo.FindByID(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, id, found["id"])
	assert.Equal(t, "pending", found["status"])
	assert.EqualValues(t, 12.5, found["total"])

	items, ok := found["items"].([]interface{})
	require.True(t, ok)
	require.Len(t, items, 1)
	item, ok := items[0].(types.Record)
	require.True(t, ok)
	assert.Equal(t, "A-1", item["sku"])
	assert.EqualValues(t, 2, item["qty"])
}

func TestCreate_CallerSuppliedID(t *testing.T) {
	ctx := context.Background()
	repo, _ := newOrders(t)

	created, err := repo.Create(ctx, types.Record{"id": "order-1", "status": "pending"})
	require.NoError(t, err)
	assert.Equal(t, "order-1", created["id"])

	_, err = repo.Create(ctx, types.Record{"id": "order-1", "status": "pending"})
	require.Error(t, err)
	assert.True(t, repository.IsValidation(err))
	assert.Contains(t, err.Error(), "Failed to create Order: ")
}

func TestNotFoundIsNotAnError(t *testing.T) {
	ctx := context.Background()
	repo, _ := newOrders(t)
	missing := primitive.NewObjectID().Hex()

	rec, err := repo.FindByID(ctx, missing)
	assert.NoError(t, err)
	assert.Nil(t, rec)

	rec, err = repo.FindByID(ctx, "nonexistent")
	assert.NoError(t, err)
	assert.Nil(t, rec)

	ok, err := repo.Delete(ctx, missing)
	assert.NoError(t, err)
	assert.False(t, ok)

	updated, err := repo.Update(ctx, missing, types.Record{"status": "shipped"})
	assert.NoError(t, err)
	assert.Nil(t, updated)
}

func TestFindAll_Pagination(t *testing.T) {
	ctx := context.Background()
	repo, _ := newOrders(t)
	seed(t, repo,
		types.Record{"status": "pending"},
		types.Record{"status": "pending"},
		types.Record{"status": "shipped"},
	)

	first, err := repo.FindAll(ctx, &types.QueryOptions{Page: 1, Limit: 2})
	require.NoError(t, err)
	assert.Len(t, first.Data, 2)
	assert.Equal(t, types.PageInfo{Current: 1, Pages: 2, Total: 3}, first.Pagination)

	second, err := repo.FindAll(ctx, &types.QueryOptions{Page: 2, Limit: 2})
	require.NoError(t, err)
	assert.Len(t, second.Data, 1)

	seen := map[interface{}]bool{}
	for _, rec := range append(first.Data, second.Data...) {
		seen[rec["id"]] = true
	}
	assert.Len(t, seen, 3)

	beyond, err := repo.FindAll(ctx, &types.QueryOptions{Page: 9, Limit: 2})
	require.NoError(t, err)
	assert.Empty(t, beyond.Data)
	assert.Equal(t, 9, beyond.Pagination.Current)

	defaults, err := repo.FindAll(ctx, &types.QueryOptions{Page: 0, Limit: -1})
	require.NoError(t, err)
	assert.Len(t, defaults.Data, 3)
	assert.Equal(t, 1, defaults.Pagination.Current)
}

func TestFindAll_FilterAndSort(t *testing.T) {
	ctx := context.Background()
	repo, _ := newOrders(t)
	seed(t, repo,
		types.Record{"status": "pending", "total": 10, "customer": "bob"},
		types.Record{"status": "pending", "total": 30, "customer": "alice"},
		types.Record{"status": "shipped", "total": 20, "customer": "carol"},
	)

	page, err := repo.FindAll(ctx, types.NewQueryOptions(1, 10).
		WithFilter(types.Filter{"status": "pending"}).
		WithSort(types.Asc("customer")))
	require.NoError(t, err)
	require.Len(t, page.Data, 2)
	assert.Equal(t, "alice", page.Data[0]["customer"])
	assert.Equal(t, "bob", page.Data[1]["customer"])
	assert.EqualValues(t, 2, page.Pagination.Total)

	page, err = repo.FindAll(ctx, types.NewQueryOptions(1, 10).
		WithFilter(types.Filter{"total": types.Ops{"$gte": 15, "$lt": 30}}))
	require.NoError(t, err)
	require.Len(t, page.Data, 1)
	assert.Equal(t, "carol", page.Data[0]["customer"])

	page, err = repo.FindAll(ctx, types.NewQueryOptions(1, 10).WithSort(types.Desc("total")))
	require.NoError(t, err)
	require.Len(t, page.Data, 3)
	assert.Equal(t, "alice", page.Data[0]["customer"])
	assert.Equal(t, "bob", page.Data[2]["customer"])
}

func TestFindByFilter(t *testing.T) {
	ctx := context.Background()
	repo, _ := newOrders(t)
	created := seed(t, repo,
		types.Record{"status": "pending", "customer": "alice"},
		types.Record{"status": "shipped", "customer": "bob"},
		types.Record{"status": "pending"},
	)

	pending, err := repo.FindByFilter(ctx, types.Filter{"status": "pending"})
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	anonymous, err := repo.FindByFilter(ctx, types.Filter{"customer": nil})
	require.NoError(t, err)
	assert.Len(t, anonymous, 1)

	byID, err := repo.FindByFilter(ctx, types.Filter{"id": created[1]["id"]})
	require.NoError(t, err)
	require.Len(t, byID, 1)
	assert.Equal(t, "bob", byID[0]["customer"])

	ids, err := repo.FindByFilter(ctx, types.Filter{"id": types.Ops{"$in": []interface{}{created[0]["id"], created[2]["id"]}}})
	require.NoError(t, err)
	assert.Len(t, ids, 2)

	nin, err := repo.FindByFilter(ctx, types.Filter{"customer": types.Ops{"$nin": []string{"alice", "bob"}}})
	require.NoError(t, err)
	assert.Len(t, nin, 1)

	_, err = repo.FindByFilter(ctx, types.Filter{"customer": types.Ops{"$where": "1"}})
	require.Error(t, err)
	assert.True(t, repository.IsValidation(err))
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()
	repo, _ := newOrders(t)
	created := seed(t, repo, types.Record{"status": "pending", "customer": "alice"})[0]

	updated, err := repo.Update(ctx, created["id"], types.Record{"status": "shipped", "_id": "hijack", "id": "hijack"})
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.Equal(t, created["id"], updated["id"])
	assert.Equal(t, "shipped", updated["status"])
	assert.Equal(t, "alice", updated["customer"])

	same, err := repo.Update(ctx, created["id"], types.Record{})
	require.NoError(t, err)
	require.NotNil(t, same)
	assert.Equal(t, "shipped", same["status"])
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	repo, coll := newOrders(t)
	created := seed(t, repo, types.Record{"status": "pending"}, types.Record{"status": "pending"})

	ok, err := repo.Delete(ctx, created[0]["id"])
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, coll.Len())
}

func TestBulkOperations(t *testing.T) {
	ctx := context.Background()
	repo, _ := newOrders(t)
	seed(t, repo,
		types.Record{"status": "pending"},
		types.Record{"status": "pending"},
		types.Record{"status": "cancelled"},
	)

	n, err := repo.UpdateMany(ctx, types.Filter{"status": "pending"}, types.Record{"status": "shipped"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	pending, err := repo.Count(ctx, types.Filter{"status": "pending"})
	require.NoError(t, err)
	assert.Zero(t, pending)

	shipped, err := repo.Count(ctx, types.Filter{"status": "shipped"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, shipped)

	removed, err := repo.DeleteMany(ctx, types.Filter{"status": "cancelled"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, removed)

	total, err := repo.Count(ctx, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
}

func TestExecuteQuery(t *testing.T) {
	ctx := context.Background()
	repo, _ := newOrders(t)
	seed(t, repo,
		types.Record{"status": "pending", "total": 5},
		types.Record{"status": "pending", "total": 7},
		types.Record{"status": "shipped", "total": 1},
	)

	rows, err := repo.ExecuteQuery(ctx, mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"total": bson.M{"$gt": 2}}}},
		{{Key: "$group", Value: bson.M{"_id": "$status", "n": bson.M{"$sum": 1}, "revenue": bson.M{"$sum": "$total"}}}},
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "pending", rows[0]["_id"])
	assert.EqualValues(t, 2, rows[0]["n"])
	assert.EqualValues(t, 12, rows[0]["revenue"])
	assert.NotContains(t, rows[0], "id")

	rows, err = repo.ExecuteQuery(ctx, []map[string]interface{}{
		{"$match": map[string]interface{}{"status": "pending"}},
		{"$count": "pending"},
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.EqualValues(t, 2, rows[0]["pending"])

	_, err = repo.ExecuteQuery(ctx, "SELECT * FROM orders")
	assert.True(t, repository.IsValidation(err))

	_, err = repo.ExecuteQuery(ctx, bson.A{}, 1)
	assert.True(t, repository.IsValidation(err))
}

func TestStorageFailureIsWrapped(t *testing.T) {
	ctx := context.Background()
	down := errors.New("server selection error: context deadline exceeded")
	repo, coll := newOrders(t)
	coll.WithCountError(down)

	_, err := repo.FindAll(ctx, nil)
	require.Error(t, err)
	assert.True(t, repository.IsStorage(err))
	assert.ErrorIs(t, err, down)
	assert.Equal(t, "Failed to findAll Order: server selection error: context deadline exceeded", err.Error())

	coll.WithCountError(nil).WithFindError(down)
	_, err = repo.FindByID(ctx, primitive.NewObjectID().Hex())
	assert.True(t, repository.IsStorage(err))
}

func TestMapFields(t *testing.T) {
	repo, _ := newOrders(t)
	oid := primitive.NewObjectID()

	folded := repo.MapFields(types.Record{"_id": oid, "status": "x"})
	assert.Equal(t, types.Record{"id": oid.Hex(), "status": "x"}, folded)

	kept := repo.MapFields(types.Record{"_id": oid, "id": "external-7"})
	assert.Equal(t, "external-7", kept["id"])
	assert.Equal(t, oid, kept["_id"])
}

func TestDefaultSortIsNewestFirst(t *testing.T) {
	ctx := context.Background()
	repo, _ := newOrders(t)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	seed(t, repo,
		types.Record{"name": "old", "createdAt": base},
		types.Record{"name": "new", "createdAt": base.Add(time.Hour)},
		types.Record{"name": "mid", "createdAt": base.Add(time.Minute)},
	)

	page, err := repo.FindAll(ctx, nil)
	require.NoError(t, err)
	require.Len(t, page.Data, 3)
	assert.Equal(t, "new", page.Data[0]["name"])
	assert.Equal(t, "mid", page.Data[1]["name"])
	assert.Equal(t, "old", page.Data[2]["name"])
	newest, ok := page.Data[0]["createdAt"].(time.Time)
	require.True(t, ok)
	assert.True(t, newest.Equal(base.Add(time.Hour)))
}
