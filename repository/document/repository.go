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

package document

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsoncodec"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/tomoncle/anystore/repository"
	"github.com/tomoncle/anystore/types"
)

// documentValidationFailure is the server code for a write rejected by a $jsonSchema validator.
const documentValidationFailure = 121

type repositoryImpl struct {
	entity   string
	coll     Collection
	settings repository.Settings
}

var _ repository.Repository = (*repositoryImpl)(nil)

// New returns a document repository for entity backed by coll.
func New(entity string, coll Collection, opts ...repository.Option) (repository.Repository, error) {
	if coll == nil {
		return nil, fmt.Errorf("%w: %s: collection is nil", repository.ErrIncompatibleHandle, entity)
	}
	if rv := reflect.ValueOf(coll); rv.Kind() == reflect.Ptr && rv.IsNil() {
		return nil, fmt.Errorf("%w: %s: collection is nil", repository.ErrIncompatibleHandle, entity)
	}
	return &repositoryImpl{
		entity:   entity,
		coll:     coll,
		settings: repository.ApplyOptions(opts...),
	}, nil
}

func (r *repositoryImpl) Entity() string { return r.entity }

func (r *repositoryImpl) Kind() repository.Kind { return repository.Document }

// Collection returns the backing collection.
func (r *repositoryImpl) Collection() Collection { return r.coll }

func isInvalid(err error) bool {
	if mongo.IsDuplicateKeyError(err) {
		return true
	}
	var we mongo.WriteException
	if errors.As(err, &we) {
		for _, e := range we.WriteErrors {
			if e.Code == documentValidationFailure {
				return true
			}
		}
		if we.WriteConcernError != nil && we.WriteConcernError.Code == documentValidationFailure {
			return true
		}
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && ce.Code == documentValidationFailure {
		return true
	}
	var ne bsoncodec.ErrNoEncoder
	return errors.As(err, &ne)
}

func (r *repositoryImpl) fail(op string, err error) error {
	return repository.Wrap(r.entity, op, err, isInvalid(err))
}

func (r *repositoryImpl) query(op string, filter types.Filter) (bson.M, error) {
	q, err := toQuery(filter)
	if err != nil {
		return nil, repository.Wrap(r.entity, op, err, true)
	}
	return q, nil
}

func (r *repositoryImpl) Create(ctx context.Context, data types.Record) (types.Record, error) {
	doc := bson.M{}
	for k, v := range fields.Columns(data) {
		doc[k] = v
	}
	if id, ok := doc[idField]; !ok || id == nil {
		doc[idField] = primitive.NewObjectID()
	} else {
		doc[idField] = ObjectID(id)
	}
	ts := time.Now().UTC()
	if _, ok := doc[repository.FieldCreatedAt]; !ok {
		doc[repository.FieldCreatedAt] = ts
	}
	if _, ok := doc[repository.FieldUpdatedAt]; !ok {
		doc[repository.FieldUpdatedAt] = ts
	}

	res, err := r.coll.InsertOne(ctx, doc)
	if err != nil {
		return nil, r.fail(repository.OpCreate, err)
	}
	rec, err := r.findOne(ctx, repository.OpCreate, res.InsertedID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, repository.Wrap(r.entity, repository.OpCreate,
			fmt.Errorf("inserted document %v could not be read back", res.InsertedID), false)
	}
	return rec, nil
}

func (r *repositoryImpl) FindAll(ctx context.Context, opts *types.QueryOptions) (*types.Pagination, error) {
	q, err := r.query(repository.OpFindAll, opts.GetFilter())
	if err != nil {
		return nil, err
	}
	page, limit := opts.GetPage(), opts.GetLimit()

	total, err := r.coll.CountDocuments(ctx, q)
	if err != nil {
		return nil, r.fail(repository.OpFindAll, err)
	}
	findOpts := options.Find().
		SetSkip(int64(opts.GetOffset())).
		SetLimit(int64(limit)).
		SetSort(toSort(r.sortFor(opts)))
	docs, err := r.find(ctx, q, findOpts)
	if err != nil {
		return nil, r.fail(repository.OpFindAll, err)
	}
	return types.NewPagination(page, limit, total, r.FormatResponse(r.records(docs), opts)), nil
}

func (r *repositoryImpl) sortFor(opts *types.QueryOptions) []types.SortField {
	if s := opts.GetSort(); len(s) > 0 {
		return s
	}
	if len(r.settings.DefaultSort) > 0 {
		return r.settings.DefaultSort
	}
	return []types.SortField{types.Desc(repository.FieldCreatedAt), types.Desc(repository.FieldID)}
}

func (r *repositoryImpl) find(ctx context.Context, q bson.M, opts ...*options.FindOptions) ([]bson.M, error) {
	cur, err := r.coll.Find(ctx, q, opts...)
	if err != nil {
		return nil, err
	}
	var docs []bson.M
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

func (r *repositoryImpl) FindByID(ctx context.Context, id any) (types.Record, error) {
	return r.findOne(ctx, repository.OpFindByID, id)
}

func (r *repositoryImpl) findOne(ctx context.Context, op string, id any) (types.Record, error) {
	if id == nil {
		return nil, nil
	}
	var doc bson.M
	err := r.coll.FindOne(ctx, bson.M{idField: ObjectID(id)}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, r.fail(op, err)
	}
	return r.MapFields(Raw(doc)), nil
}

func (r *repositoryImpl) FindByFilter(ctx context.Context, filter types.Filter) ([]types.Record, error) {
	q, err := r.query(repository.OpFindByFilter, filter)
	if err != nil {
		return nil, err
	}
	docs, err := r.find(ctx, q)
	if err != nil {
		return nil, r.fail(repository.OpFindByFilter, err)
	}
	return r.records(docs), nil
}

func (r *repositoryImpl) Update(ctx context.Context, id any, data types.Record) (types.Record, error) {
	if id == nil {
		return nil, nil
	}
	set := toSet(data)
	if len(set) == 0 {
		return r.findOne(ctx, repository.OpUpdate, id)
	}
	if _, ok := set[repository.FieldUpdatedAt]; !ok {
		set[repository.FieldUpdatedAt] = time.Now().UTC()
	}
	var doc bson.M
	err := r.coll.FindOneAndUpdate(ctx,
		bson.M{idField: ObjectID(id)},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, r.fail(repository.OpUpdate, err)
	}
	return r.MapFields(Raw(doc)), nil
}

func (r *repositoryImpl) Delete(ctx context.Context, id any) (bool, error) {
	if id == nil {
		return false, nil
	}
	res, err := r.coll.DeleteOne(ctx, bson.M{idField: ObjectID(id)})
	if err != nil {
		return false, r.fail(repository.OpDelete, err)
	}
	return res.DeletedCount > 0, nil
}

func (r *repositoryImpl) Count(ctx context.Context, filter types.Filter) (int64, error) {
	q, err := r.query(repository.OpCount, filter)
	if err != nil {
		return 0, err
	}
	n, err := r.coll.CountDocuments(ctx, q)
	if err != nil {
		return 0, r.fail(repository.OpCount, err)
	}
	return n, nil
}

// UpdateMany returns the number of matched documents.
func (r *repositoryImpl) UpdateMany(ctx context.Context, filter types.Filter, data types.Record) (int64, error) {
	q, err := r.query(repository.OpUpdateMany, filter)
	if err != nil {
		return 0, err
	}
	set := toSet(data)
	if len(set) == 0 {
		return 0, nil
	}
	if _, ok := set[repository.FieldUpdatedAt]; !ok {
		set[repository.FieldUpdatedAt] = time.Now().UTC()
	}
	res, err := r.coll.UpdateMany(ctx, q, bson.M{"$set": set})
	if err != nil {
		return 0, r.fail(repository.OpUpdateMany, err)
	}
	return res.MatchedCount, nil
}

func (r *repositoryImpl) DeleteMany(ctx context.Context, filter types.Filter) (int64, error) {
	q, err := r.query(repository.OpDeleteMany, filter)
	if err != nil {
		return 0, err
	}
	res, err := r.coll.DeleteMany(ctx, q)
	if err != nil {
		return 0, r.fail(repository.OpDeleteMany, err)
	}
	return res.DeletedCount, nil
}

// ExecuteQuery runs an aggregation pipeline as-is. Rows keep their stored field names.
func (r *repositoryImpl) ExecuteQuery(ctx context.Context, query any, params ...any) ([]types.Record, error) {
	if len(params) > 0 {
		return nil, repository.Invalid(r.entity, repository.OpExecuteQuery,
			"aggregation pipelines take no positional parameters")
	}
	pipeline, err := Pipeline(query)
	if err != nil {
		return nil, repository.Wrap(r.entity, repository.OpExecuteQuery, err, true)
	}
	cur, err := r.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, r.fail(repository.OpExecuteQuery, err)
	}
	var docs []bson.M
	if err := cur.All(ctx, &docs); err != nil {
		return nil, r.fail(repository.OpExecuteQuery, err)
	}
	out := make([]types.Record, 0, len(docs))
	for _, doc := range docs {
		out = append(out, Raw(doc))
	}
	return out, nil
}

// Pipeline normalises the accepted pipeline spellings into a bson.A of stages.
func Pipeline(query any) (bson.A, error) {
	switch p := query.(type) {
	case mongo.Pipeline:
		out := make(bson.A, len(p))
		for i, stage := range p {
			out[i] = stage
		}
		return out, nil
	case []bson.D:
		out := make(bson.A, len(p))
		for i, stage := range p {
			out[i] = stage
		}
		return out, nil
	case []bson.M:
		out := make(bson.A, len(p))
		for i, stage := range p {
			out[i] = stage
		}
		return out, nil
	case []map[string]interface{}:
		out := make(bson.A, len(p))
		for i, stage := range p {
			out[i] = stage
		}
		return out, nil
	case []types.Record:
		out := make(bson.A, len(p))
		for i, stage := range p {
			out[i] = map[string]interface{}(stage)
		}
		return out, nil
	case bson.A:
		return p, nil
	case []interface{}:
		return bson.A(p), nil
	}
	return nil, fmt.Errorf("document query must be an aggregation pipeline, got %T", query)
}

func (r *repositoryImpl) MapFields(rec types.Record) types.Record {
	if rec == nil {
		return nil
	}
	folded := fields.Fold(rec)
	if id, ok := folded[repository.FieldID]; ok {
		folded[repository.FieldID] = Value(id)
	}
	return folded
}

func (r *repositoryImpl) FormatResponse(data []types.Record, opts *types.QueryOptions) []types.Record {
	return r.settings.Format(data, opts)
}

func (r *repositoryImpl) records(docs []bson.M) []types.Record {
	out := make([]types.Record, 0, len(docs))
	for _, doc := range docs {
		out = append(out, r.MapFields(Raw(doc)))
	}
	return out
}
