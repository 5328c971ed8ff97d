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

package mock

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func fill(t *testing.T, c *Collection, docs ...bson.M) {
	t.Helper()
	for _, d := range docs {
		_, err := c.InsertOne(context.Background(), d)
		require.NoError(t, err)
	}
}

func TestCollection_FindWithOptions(t *testing.T) {
	ctx := context.Background()
	c := NewCollection("scores")
	fill(t, c,
		bson.M{"name": "a", "score": 3},
		bson.M{"name": "b", "score": 1},
		bson.M{"name": "c", "score": 2},
		bson.M{"name": "d"},
	)

	cur, err := c.Find(ctx, bson.M{"score": bson.M{"$exists": true}},
		options.Find().SetSort(bson.D{{Key: "score", Value: -1}}).SetSkip(1).SetLimit(1))
	require.NoError(t, err)
	var docs []bson.M
	require.NoError(t, cur.All(ctx, &docs))
	require.Len(t, docs, 1)
	assert.Equal(t, "c", docs[0]["name"])

	n, err := c.CountDocuments(ctx, bson.M{"score": nil})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestCollection_FindOneNotFound(t *testing.T) {
	c := NewCollection("empty")
	var doc bson.M
	err := c.FindOne(context.Background(), bson.M{"_id": "x"}).Decode(&doc)
	assert.ErrorIs(t, err, mongo.ErrNoDocuments)
}

func TestCollection_DuplicateID(t *testing.T) {
	c := NewCollection("dups")
	fill(t, c, bson.M{"_id": "k"})
	_, err := c.InsertOne(context.Background(), bson.M{"_id": "k"})
	require.Error(t, err)
	assert.True(t, mongo.IsDuplicateKeyError(err))
}

func TestCollection_UpdateOperators(t *testing.T) {
	ctx := context.Background()
	c := NewCollection("counters")
	fill(t, c, bson.M{"_id": "k", "hits": 1, "tmp": true})

	var before bson.M
	require.NoError(t, c.FindOneAndUpdate(ctx, bson.M{"_id": "k"},
		bson.M{"$inc": bson.M{"hits": 2}, "$unset": bson.M{"tmp": ""}, "$set": bson.M{"meta.source": "test"}}).Decode(&before))
	assert.EqualValues(t, 1, before["hits"])

	var after bson.M
	require.NoError(t, c.FindOne(ctx, bson.M{"_id": "k"}).Decode(&after))
	assert.EqualValues(t, 3, after["hits"])
	assert.NotContains(t, after, "tmp")
	meta, ok := asDoc(after["meta"])
	require.True(t, ok)
	assert.Equal(t, "test", meta["source"])

	res := c.FindOneAndUpdate(ctx, bson.M{"_id": "k"}, bson.M{"$set": bson.M{"_id": "other"}})
	assert.Error(t, res.Err())
}

func TestCollection_Aggregate(t *testing.T) {
	ctx := context.Background()
	c := NewCollection("orders")
	fill(t, c,
		bson.M{"status": "pending", "total": 5},
		bson.M{"status": "pending", "total": 7.5},
		bson.M{"status": "shipped", "total": 1},
	)

	cur, err := c.Aggregate(ctx, bson.A{
		bson.M{"$group": bson.M{"_id": "$status", "avg": bson.M{"$avg": "$total"}, "max": bson.M{"$max": "$total"}}},
		bson.M{"$sort": bson.M{"_id": 1}},
		bson.M{"$project": bson.M{"avg": 1}},
	})
	require.NoError(t, err)
	var rows []bson.M
	require.NoError(t, cur.All(ctx, &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, "pending", rows[0]["_id"])
	assert.InDelta(t, 6.25, rows[0]["avg"], 1e-9)
	assert.NotContains(t, rows[0], "max")

	_, err = c.Aggregate(ctx, bson.A{bson.M{"$lookup": bson.M{}}})
	assert.Error(t, err)
}

func TestDatabase_CollectionIsStable(t *testing.T) {
	db := NewDatabase("app")
	assert.Equal(t, "app", db.Name())
	assert.Same(t, db.Mock("orders"), db.Collection("orders"))
}
