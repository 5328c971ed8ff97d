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


package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tomoncle/anystore/types"
)

var sqlFields = FieldMap{
	FieldID:        "order_id",
	FieldCreatedAt: "created_at",
	FieldUpdatedAt: "updated_at",
}

func TestFieldMap_Rename(t *testing.T) {
	in := types.Record{"order_id": 7, "created_at": "t0", "createdAt": "stale", "status": "open"}
	out := sqlFields.Rename(in)

	assert.Equal(t, types.Record{"id": 7, "createdAt": "t0", "status": "open"}, out)
	assert.Contains(t, in, "order_id", "input must not be modified")
	assert.Nil(t, sqlFields.Rename(nil))
}

func TestFieldMap_Fold(t *testing.T) {
	docFields := FieldMap{FieldID: "_id"}

	out := docFields.Fold(types.Record{"_id": "abc", "name": "x"})
	assert.Equal(t, types.Record{"id": "abc", "name": "x"}, out)

	out = docFields.Fold(types.Record{"_id": "abc", "id": "kept"})
	assert.Equal(t, "kept", out["id"])
	assert.Equal(t, "abc", out["_id"])
}

func TestFieldMap_Columns(t *testing.T) {
	out := sqlFields.Columns(types.Record{"id": 1, "updatedAt": "t1", "total": 3})
	assert.Equal(t, types.Record{"order_id": 1, "updated_at": "t1", "total": 3}, out)
	assert.Equal(t, "status", sqlFields.Column("status"))
}

func TestTableName(t *testing.T) {
	cases := map[string]string{
		"Order":        "orders",
		"OrderItem":    "order_items",
		"Category":     "categories",
		"Person":       "people",
		"HTTPRequest":  "http_requests",
		"UserId2Token": "user_id2_tokens",
		"order-line":   "order_lines",
		"  Box  ":      "boxes",
		"":             "",
	}
	for entity, want := range cases {
		assert.Equal(t, want, TableName(entity), entity)
	}
}

func TestApplyOptions(t *testing.T) {
	calls := 0
	s := ApplyOptions(
		nil,
		WithDefaultSort(types.Desc("total")),
		WithFormatter(func(data []types.Record, _ *types.QueryOptions) []types.Record {
			calls++
			return data[:1]
		}),
	)
	assert.Equal(t, []types.SortField{types.Desc("total")}, s.DefaultSort)

	data := []types.Record{{"a": 1}, {"a": 2}}
	assert.Len(t, s.Format(data, nil), 1)
	assert.Equal(t, 1, calls)
	assert.Len(t, Settings{}.Format(data, nil), 2)
}
