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

package registry

import (
	"context"
	"database/sql"
	"reflect"

	"github.com/uptrace/bun"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/tomoncle/anystore/repository"
	"github.com/tomoncle/anystore/repository/document"
	"github.com/tomoncle/anystore/repository/relational"
)

// Detection steps, in the order they are tried.
const (
	StepExplicit = iota
	StepWrappedRelational
	StepRelationalModel
	StepRelationalSession
	StepDocumentCollection
	StepDocumentFinder
	StepDefault
)

// Backend is a classified model handle. Build one explicitly with
// Relational, Document or Default to skip detection.
type Backend struct {
	kind  repository.Kind
	step  int
	model relational.Model
	sql   bun.IDB
	coll  document.Collection
	db    document.Database
}

// Relational tags model as a relational handle.
func Relational(model relational.Model) Backend {
	return Backend{kind: repository.Relational, step: StepExplicit, model: model}
}

// Document tags coll as a document handle.
func Document(coll document.Collection) Backend {
	return Backend{kind: repository.Document, step: StepExplicit, coll: coll}
}

// Default asks for the registry's configured default backend.
func Default() Backend {
	return Backend{kind: repository.KindUnknown, step: StepDefault}
}

// Kind returns the classified backend; KindUnknown means the default applies.
func (b Backend) Kind() repository.Kind { return b.kind }

// Step returns the detection step that classified the handle.
func (b Backend) Step() int { return b.step }

type wrappedRelational interface {
	RelationalModel() relational.Model
}

type relationalFinders interface {
	NewSelect() *bun.SelectQuery
	NewRaw(query string, args ...interface{}) *bun.RawQuery
}

type collectionHolder interface {
	Collection() document.Collection
}

type documentFinders interface {
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error)
	FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) *mongo.SingleResult
	CountDocuments(ctx context.Context, filter interface{}, opts ...*options.CountOptions) (int64, error)
}

type rawQuerier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

// Detect classifies handle; the first matching step wins. A handle that no
// step recognises comes back as Default().
func Detect(handle any) Backend {
	if isNil(handle) {
		return Default()
	}
	switch h := handle.(type) {
	case Backend:
		return h
	case *Backend:
		return *h
	}

	if w, ok := handle.(wrappedRelational); ok {
		if m := w.RelationalModel(); usableModel(m) {
			return Backend{kind: repository.Relational, step: StepWrappedRelational, model: m}
		}
	}
	if m, ok := handle.(relational.Model); ok && usableModel(m) {
		return Backend{kind: repository.Relational, step: StepRelationalModel, model: m}
	}
	if _, ok := handle.(relationalFinders); ok {
		if db, ok := handle.(bun.IDB); ok {
			return Backend{kind: repository.Relational, step: StepRelationalSession, sql: db}
		}
	}
	switch h := handle.(type) {
	case collectionHolder:
		if c := h.Collection(); !isNil(c) {
			return Backend{kind: repository.Document, step: StepDocumentCollection, coll: c}
		}
	case *mongo.Database:
		return Backend{kind: repository.Document, step: StepDocumentCollection, db: document.NewDatabase(h)}
	case document.Database:
		return Backend{kind: repository.Document, step: StepDocumentCollection, db: h}
	}
	if _, ok := handle.(documentFinders); ok {
		if _, raw := handle.(rawQuerier); !raw {
			if c, ok := handle.(document.Collection); ok {
				return Backend{kind: repository.Document, step: StepDocumentFinder, coll: c}
			}
		}
	}
	return Default()
}

func usableModel(m relational.Model) bool {
	return !isNil(m) && !isNil(m.DB())
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}
