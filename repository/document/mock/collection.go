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

// Package mock provides an in-memory document.Collection for tests. Results
// are real driver cursors and single results, so code under test decodes
// them exactly as it would decode server responses.
package mock

import (
	"context"
	"fmt"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/tomoncle/anystore/repository/document"
)

const duplicateKeyCode = 11000

// Collection is an in-memory collection. Documents are stored after a BSON
// round trip, so stored values carry driver types (int32, DateTime, ObjectID).
type Collection struct {
	mu        sync.RWMutex
	name      string
	docs      []bson.M
	findErr   error
	countErr  error
	insertErr error
	updateErr error
	deleteErr error
}

var _ document.Collection = (*Collection)(nil)

// NewCollection returns an empty collection.
func NewCollection(name string) *Collection {
	return &Collection{name: name}
}

// WithFindError makes Find, FindOne and Aggregate fail with err.
func (c *Collection) WithFindError(err error) *Collection {
	c.findErr = err
	return c
}

// WithCountError makes CountDocuments fail with err.
func (c *Collection) WithCountError(err error) *Collection {
	c.countErr = err
	return c
}

// WithInsertError makes InsertOne fail with err.
func (c *Collection) WithInsertError(err error) *Collection {
	c.insertErr = err
	return c
}

// WithUpdateError makes FindOneAndUpdate and UpdateMany fail with err.
func (c *Collection) WithUpdateError(err error) *Collection {
	c.updateErr = err
	return c
}

// WithDeleteError makes DeleteOne and DeleteMany fail with err.
func (c *Collection) WithDeleteError(err error) *Collection {
	c.deleteErr = err
	return c
}

func (c *Collection) Name() string { return c.name }

// Len returns the number of stored documents.
func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.docs)
}

func (c *Collection) InsertOne(_ context.Context, doc interface{}, _ ...*options.InsertOneOptions) (*mongo.InsertOneResult, error) {
	if c.insertErr != nil {
		return nil, c.insertErr
	}
	stored, err := roundTrip(doc)
	if err != nil {
		return nil, err
	}
	if _, ok := stored["_id"]; !ok {
		stored["_id"] = primitive.NewObjectID()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, existing := range c.docs {
		if equal(existing["_id"], stored["_id"]) {
			return nil, mongo.WriteException{WriteErrors: []mongo.WriteError{{
				Code:    duplicateKeyCode,
				Message: fmt.Sprintf("E11000 duplicate key error collection: %s index: _id_ dup key: %v", c.name, stored["_id"]),
			}}}
		}
	}
	c.docs = append(c.docs, stored)
	return &mongo.InsertOneResult{InsertedID: stored["_id"]}, nil
}

func (c *Collection) FindOne(ctx context.Context, filter interface{}, _ ...*options.FindOneOptions) *mongo.SingleResult {
	docs, err := c.match(filter)
	if err == nil && c.findErr != nil {
		err = c.findErr
	}
	if err != nil {
		return mongo.NewSingleResultFromDocument(bson.D{}, err, nil)
	}
	if len(docs) == 0 {
		return mongo.NewSingleResultFromDocument(bson.D{}, mongo.ErrNoDocuments, nil)
	}
	return mongo.NewSingleResultFromDocument(docs[0], nil, nil)
}

func (c *Collection) Find(_ context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error) {
	if c.findErr != nil {
		return nil, c.findErr
	}
	docs, err := c.match(filter)
	if err != nil {
		return nil, err
	}
	var skip, limit int64
	var sortSpec interface{}
	for _, o := range opts {
		if o == nil {
			continue
		}
		if o.Skip != nil {
			skip = *o.Skip
		}
		if o.Limit != nil {
			limit = *o.Limit
		}
		if o.Sort != nil {
			sortSpec = o.Sort
		}
	}
	if sortSpec != nil {
		keys, err := toD(sortSpec)
		if err != nil {
			return nil, err
		}
		sortDocs(docs, keys)
	}
	docs = window(docs, skip, limit)
	return cursor(docs)
}

func (c *Collection) CountDocuments(_ context.Context, filter interface{}, _ ...*options.CountOptions) (int64, error) {
	if c.countErr != nil {
		return 0, c.countErr
	}
	docs, err := c.match(filter)
	if err != nil {
		return 0, err
	}
	return int64(len(docs)), nil
}

func (c *Collection) FindOneAndUpdate(_ context.Context, filter interface{}, update interface{}, opts ...*options.FindOneAndUpdateOptions) *mongo.SingleResult {
	if c.updateErr != nil {
		return mongo.NewSingleResultFromDocument(bson.D{}, c.updateErr, nil)
	}
	after := false
	for _, o := range opts {
		if o != nil && o.ReturnDocument != nil {
			after = *o.ReturnDocument == options.After
		}
	}
	q, err := roundTrip(filter)
	if err != nil {
		return mongo.NewSingleResultFromDocument(bson.D{}, err, nil)
	}
	u, err := roundTrip(update)
	if err != nil {
		return mongo.NewSingleResultFromDocument(bson.D{}, err, nil)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for i, doc := range c.docs {
		ok, err := matches(doc, q)
		if err != nil {
			return mongo.NewSingleResultFromDocument(bson.D{}, err, nil)
		}
		if !ok {
			continue
		}
		before := clone(doc)
		updated, err := apply(doc, u)
		if err != nil {
			return mongo.NewSingleResultFromDocument(bson.D{}, err, nil)
		}
		c.docs[i] = updated
		if after {
			return mongo.NewSingleResultFromDocument(clone(updated), nil, nil)
		}
		return mongo.NewSingleResultFromDocument(before, nil, nil)
	}
	return mongo.NewSingleResultFromDocument(bson.D{}, mongo.ErrNoDocuments, nil)
}

func (c *Collection) UpdateMany(_ context.Context, filter interface{}, update interface{}, _ ...*options.UpdateOptions) (*mongo.UpdateResult, error) {
	if c.updateErr != nil {
		return nil, c.updateErr
	}
	q, err := roundTrip(filter)
	if err != nil {
		return nil, err
	}
	u, err := roundTrip(update)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	res := &mongo.UpdateResult{}
	for i, doc := range c.docs {
		ok, err := matches(doc, q)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		updated, err := apply(doc, u)
		if err != nil {
			return nil, err
		}
		res.MatchedCount++
		if !equal(doc, updated) {
			res.ModifiedCount++
		}
		c.docs[i] = updated
	}
	return res, nil
}

func (c *Collection) DeleteOne(_ context.Context, filter interface{}, _ ...*options.DeleteOptions) (*mongo.DeleteResult, error) {
	return c.remove(filter, 1)
}

func (c *Collection) DeleteMany(_ context.Context, filter interface{}, _ ...*options.DeleteOptions) (*mongo.DeleteResult, error) {
	return c.remove(filter, -1)
}

func (c *Collection) remove(filter interface{}, max int) (*mongo.DeleteResult, error) {
	if c.deleteErr != nil {
		return nil, c.deleteErr
	}
	q, err := roundTrip(filter)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	kept := make([]bson.M, 0, len(c.docs))
	var removed int64
	for _, doc := range c.docs {
		ok, err := matches(doc, q)
		if err != nil {
			return nil, err
		}
		if ok && (max < 0 || removed < int64(max)) {
			removed++
			continue
		}
		kept = append(kept, doc)
	}
	c.docs = kept
	return &mongo.DeleteResult{DeletedCount: removed}, nil
}

func (c *Collection) Aggregate(_ context.Context, pipeline interface{}, _ ...*options.AggregateOptions) (*mongo.Cursor, error) {
	if c.findErr != nil {
		return nil, c.findErr
	}
	stages, err := stagesOf(pipeline)
	if err != nil {
		return nil, err
	}
	docs, err := c.match(bson.M{})
	if err != nil {
		return nil, err
	}
	docs, err = aggregate(docs, stages)
	if err != nil {
		return nil, err
	}
	return cursor(docs)
}

// match returns clones of the documents matching filter, in insertion order.
func (c *Collection) match(filter interface{}) ([]bson.M, error) {
	q, err := roundTrip(filter)
	if err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]bson.M, 0, len(c.docs))
	for _, doc := range c.docs {
		ok, err := matches(doc, q)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, clone(doc))
		}
	}
	return out, nil
}

func cursor(docs []bson.M) (*mongo.Cursor, error) {
	items := make([]interface{}, len(docs))
	for i, d := range docs {
		items[i] = d
	}
	return mongo.NewCursorFromDocuments(items, nil, nil)
}

func window(docs []bson.M, skip, limit int64) []bson.M {
	if skip > 0 {
		if skip >= int64(len(docs)) {
			return []bson.M{}
		}
		docs = docs[skip:]
	}
	if limit > 0 && limit < int64(len(docs)) {
		docs = docs[:limit]
	}
	return docs
}

// Database is an in-memory document.Database handing out mock collections.
type Database struct {
	mu    sync.Mutex
	name  string
	colls map[string]*Collection
}

var _ document.Database = (*Database)(nil)

// NewDatabase returns an empty database.
func NewDatabase(name string) *Database {
	return &Database{name: name, colls: map[string]*Collection{}}
}

func (d *Database) Name() string { return d.name }

// Collection returns the named collection, creating it on first use.
func (d *Database) Collection(name string) document.Collection {
	return d.Mock(name)
}

// Mock returns the named collection with its concrete type.
func (d *Database) Mock(name string) *Collection {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.colls[name]
	if !ok {
		c = NewCollection(name)
		d.colls[name] = c
	}
	return c
}
