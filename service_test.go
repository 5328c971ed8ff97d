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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomoncle/anystore"
	"github.com/tomoncle/anystore/repository"
	"github.com/tomoncle/anystore/types"
)

type Order struct {
	ID        int64     `json:"id,omitempty"`
	Status    string    `json:"status"`
	Total     float64   `json:"total"`
	CreatedAt time.Time `json:"createdAt"`
}

type Event struct {
	ID        string    `json:"id,omitempty"`
	Type      string    `json:"type"`
	Attempts  int       `json:"attempts"`
	CreatedAt time.Time `json:"createdAt"`
}

func TestService_Relational(t *testing.T) {
	ctx := context.Background()
	store, _ := sqlStore(t)
	svc, err := anystore.NewService[Order](store, "Order")
	require.NoError(t, err)

	first := &Order{Status: "new", Total: 12.5}
	second := &Order{Status: "paid", Total: 3}
	require.NoError(t, svc.Save(ctx, first, nil, second))
	assert.NotZero(t, first.ID)
	assert.False(t, first.CreatedAt.IsZero())

	got, err := svc.Get(ctx, first.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "new", got.Status)
	assert.Equal(t, 12.5, got.Total)

	missing, err := svc.Get(ctx, 9999)
	require.NoError(t, err)
	assert.Nil(t, missing)

	got.Status = "shipped"
	ok, err := svc.Update(ctx, got.ID, got)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = svc.Update(ctx, 9999, &Order{Status: "x"})
	require.NoError(t, err)
	assert.False(t, ok)

	list, err := svc.List(ctx, types.Filter{"status": "shipped"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, first.ID, list[0].ID)

	page, err := svc.Page(ctx, types.NewQueryOptions(1, 1).WithSort(types.Asc("total")))
	require.NoError(t, err)
	require.Len(t, page.Data, 1)
	assert.Equal(t, "paid", page.Data[0].Status)
	assert.EqualValues(t, 2, page.Pagination.Total)
	assert.Equal(t, 2, page.Pagination.Pages)

	rows, err := svc.Query(ctx, "SELECT id, status, total FROM orders WHERE total > ?", 5)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "shipped", rows[0].Status)

	n, err := svc.Count(ctx, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	deleted, err := svc.Delete(ctx, second.ID)
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.Equal(t, repository.Relational, svc.Repository().Kind())
}

func TestService_Document(t *testing.T) {
	ctx := context.Background()
	store, _ := docStore(t)
	svc, err := anystore.NewService[Event](store, "Event")
	require.NoError(t, err)

	ev := &Event{Type: "login", Attempts: 2}
	require.NoError(t, svc.Save(ctx, ev))
	assert.Len(t, ev.ID, 24)
	assert.False(t, ev.CreatedAt.IsZero())

	got, err := svc.Get(ctx, ev.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 2, got.Attempts)

	list, err := svc.List(ctx, types.Filter{"attempts": types.Ops{"$gte": 2}})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestService_ErrorsPassThrough(t *testing.T) {
	ctx := context.Background()
	store, db := sqlStore(t)
	_, err := db.ExecContext(ctx, "CREATE UNIQUE INDEX orders_status ON orders (status)")
	require.NoError(t, err)
	svc, err := anystore.NewService[Order](store, "Order")
	require.NoError(t, err)

	require.NoError(t, svc.Save(ctx, &Order{Status: "unique"}))
	err = svc.Save(ctx, &Order{Status: "unique"})
	require.Error(t, err)
	assert.True(t, repository.IsValidation(err))

	_, err = anystore.NewService[Order](store, "")
	assert.True(t, repository.IsClassification(err))
}
