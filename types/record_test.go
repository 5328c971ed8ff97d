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


package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type Audit struct {
	CreatedAt time.Time `json:"createdAt"`
}

type order struct {
	Audit
	ID     int64          `json:"id,omitempty"`
	Status string         `json:"status"`
	Total  float64        `json:"total"`
	Tags   []string       `json:"tags,omitempty"`
	Meta   map[string]any `json:"meta,omitempty"`
	Secret string         `json:"-"`
	note   string
}

func TestEncode(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	rec, err := Encode(&order{Audit: Audit{CreatedAt: now}, Status: "open", Total: 9.5, Secret: "x", note: "y"})
	require.NoError(t, err)

	assert.Equal(t, Record{"createdAt": now, "status": "open", "total": 9.5}, rec)

	_, err = Encode(42)
	assert.Error(t, err)
	var nilOrder *order
	_, err = Encode(nilOrder)
	assert.Error(t, err)

	rec, err = Encode(map[string]any{"a": 1})
	require.NoError(t, err)
	assert.Equal(t, Record{"a": 1}, rec)
}

func TestDecode(t *testing.T) {
	var o order
	err := Decode(Record{
		"id":        "12",
		"status":    "paid",
		"total":     4,
		"createdAt": "2025-03-01T12:00:00Z",
		"tags":      []interface{}{"a", "b"},
		"unknown":   true,
	}, &o)
	require.NoError(t, err)

	assert.EqualValues(t, 12, o.ID)
	assert.Equal(t, "paid", o.Status)
	assert.Equal(t, 4.0, o.Total)
	assert.Equal(t, []string{"a", "b"}, o.Tags)
}

func TestAsOpsAndToSlice(t *testing.T) {
	ops, ok := AsOps(map[string]interface{}{"$gt": 1})
	require.True(t, ok)
	assert.Equal(t, []string{"$gt"}, ops.Keys())
	_, ok = AsOps("plain")
	assert.False(t, ok)

	list, err := ToSlice([]int{1, 2})
	require.NoError(t, err)
	assert.Equal(t, []interface{}{1, 2}, list)
	_, err = ToSlice("nope")
	assert.Error(t, err)

	assert.True(t, IsOperator(OpNin))
	assert.False(t, IsOperator("$regex"))
	assert.Equal(t, []string{"a", "b"}, Filter{"b": 1, "a": 2}.Keys())
}

func TestJsonColumns(t *testing.T) {
	v, err := ToColumnValue(Record{"k": "v"}).(JsonObject).Value()
	require.NoError(t, err)
	assert.JSONEq(t, `{"k":"v"}`, v.(string))

	var obj JsonObject
	require.NoError(t, obj.Scan([]byte(`{"n":1}`)))
	assert.EqualValues(t, 1, obj["n"])

	var arr JsonArray
	require.NoError(t, arr.Scan(nil))
	assert.NotNil(t, arr)
	assert.Error(t, arr.Scan(12))

	assert.Equal(t, "plain", ToColumnValue("plain"))
}
