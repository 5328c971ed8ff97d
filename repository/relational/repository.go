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

package relational

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/feature"

	"github.com/tomoncle/anystore/database"
	"github.com/tomoncle/anystore/repository"
	"github.com/tomoncle/anystore/types"
)

type repositoryImpl struct {
	entity    string
	db        bun.IDB
	table     string
	pk        string
	createdAt string
	updatedAt string
	fields    repository.FieldMap
	settings  repository.Settings
}

var _ repository.Repository = (*repositoryImpl)(nil)

// New returns a relational repository for entity backed by model.
func New(entity string, model Model, opts ...repository.Option) (repository.Repository, error) {
	if model == nil || isNil(model) {
		return nil, fmt.Errorf("%w: %s: relational model is nil", repository.ErrIncompatibleHandle, entity)
	}
	db := model.DB()
	if db == nil || isNil(db) {
		return nil, fmt.Errorf("%w: %s: relational model has no session", repository.ErrIncompatibleHandle, entity)
	}
	if model.TableName() == "" {
		return nil, fmt.Errorf("%w: %s: relational model is not bound to a table", repository.ErrIncompatibleHandle, entity)
	}
	r := &repositoryImpl{
		entity:   entity,
		db:       db,
		table:    model.TableName(),
		pk:       model.PrimaryKey(),
		settings: repository.ApplyOptions(opts...),
	}
	if r.pk == "" {
		r.pk = repository.FieldID
	}
	if ts, ok := model.(Timestamped); ok {
		r.createdAt, r.updatedAt = ts.Timestamps()
	}
	r.fields = repository.FieldMap{repository.FieldID: r.pk}
	if r.createdAt != "" {
		r.fields[repository.FieldCreatedAt] = r.createdAt
	}
	if r.updatedAt != "" {
		r.fields[repository.FieldUpdatedAt] = r.updatedAt
	}
	return r, nil
}

func isNil(v interface{}) bool {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}

func (r *repositoryImpl) Entity() string { return r.entity }

func (r *repositoryImpl) Kind() repository.Kind { return repository.Relational }

func (r *repositoryImpl) fail(op string, err error) error {
	return repository.Wrap(r.entity, op, err, database.IsConstraintViolation(err))
}

func (r *repositoryImpl) invalid(op string, err error) error {
	return repository.Wrap(r.entity, op, err, true)
}

func (r *repositoryImpl) pkWhere(id any) where {
	return where{query: "? = ?", args: []interface{}{bun.Ident(r.pk), id}}
}

func (r *repositoryImpl) filterWhere(op string, filter types.Filter) (where, error) {
	w, err := compile(r.fields, filter)
	if err != nil {
		return where{}, r.invalid(op, err)
	}
	return w, nil
}

// row converts generic data into column values ready for a map model.
func (r *repositoryImpl) row(data types.Record) map[string]interface{} {
	values := make(map[string]interface{}, len(data))
	for k, v := range r.fields.Columns(data) {
		values[k] = types.ToColumnValue(v)
	}
	return values
}

func now() time.Time { return time.Now().UTC() }

func (r *repositoryImpl) Create(ctx context.Context, data types.Record) (types.Record, error) {
	values := r.row(data)
	if id, ok := values[r.pk]; ok && id == nil {
		delete(values, r.pk)
	}
	ts := now()
	if r.createdAt != "" {
		if _, ok := values[r.createdAt]; !ok {
			values[r.createdAt] = ts
		}
	}
	if r.updatedAt != "" {
		if _, ok := values[r.updatedAt]; !ok {
			values[r.updatedAt] = ts
		}
	}
	if len(values) == 0 {
		return nil, repository.Invalid(r.entity, repository.OpCreate, "no values to insert")
	}

	id, hasID := values[r.pk]
	query := r.db.NewInsert().Model(&values).Table(r.table)
	switch {
	case hasID:
		if _, err := query.Exec(ctx); err != nil {
			return nil, r.fail(repository.OpCreate, err)
		}
	case r.db.Dialect().Features().Has(feature.InsertReturning):
		returned := map[string]interface{}{}
		if _, err := query.Returning("?", bun.Ident(r.pk)).Exec(ctx, &returned); err != nil {
			return nil, r.fail(repository.OpCreate, err)
		}
		id = returned[r.pk]
	default:
		res, err := query.Exec(ctx)
		if err != nil {
			return nil, r.fail(repository.OpCreate, err)
		}
		lastID, err := res.LastInsertId()
		if err != nil {
			return nil, r.fail(repository.OpCreate, err)
		}
		id = lastID
	}

	rec, err := r.findOne(ctx, repository.OpCreate, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, repository.Wrap(r.entity, repository.OpCreate,
			fmt.Errorf("inserted row %v could not be read back", id), false)
	}
	return rec, nil
}

func (r *repositoryImpl) FindAll(ctx context.Context, opts *types.QueryOptions) (*types.Pagination, error) {
	w, err := r.filterWhere(repository.OpFindAll, opts.GetFilter())
	if err != nil {
		return nil, err
	}
	page, limit := opts.GetPage(), opts.GetLimit()

	var rows []map[string]interface{}
	query := r.db.NewSelect().Table(r.table)
	if !w.empty() {
		query = query.Where(w.query, w.args...)
	}
	for _, s := range r.sortFor(opts) {
		if s.Desc {
			query = query.OrderExpr("? DESC", bun.Ident(r.fields.Column(s.Field)))
		} else {
			query = query.OrderExpr("? ASC", bun.Ident(r.fields.Column(s.Field)))
		}
	}
	total, err := query.Limit(limit).Offset(opts.GetOffset()).ScanAndCount(ctx, &rows)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, r.fail(repository.OpFindAll, err)
	}
	data := r.records(rows)
	return types.NewPagination(page, limit, int64(total), r.FormatResponse(data, opts)), nil
}

func (r *repositoryImpl) sortFor(opts *types.QueryOptions) []types.SortField {
	if s := opts.GetSort(); len(s) > 0 {
		return s
	}
	if len(r.settings.DefaultSort) > 0 {
		return r.settings.DefaultSort
	}
	if r.createdAt != "" {
		return []types.SortField{types.Desc(repository.FieldCreatedAt), types.Desc(repository.FieldID)}
	}
	return []types.SortField{types.Desc(repository.FieldID)}
}

func (r *repositoryImpl) FindByID(ctx context.Context, id any) (types.Record, error) {
	return r.findOne(ctx, repository.OpFindByID, id)
}

func (r *repositoryImpl) findOne(ctx context.Context, op string, id any) (types.Record, error) {
	if id == nil {
		return nil, nil
	}
	w := r.pkWhere(id)
	row := map[string]interface{}{}
	err := r.db.NewSelect().Table(r.table).Where(w.query, w.args...).Limit(1).Scan(ctx, &row)
	if errors.Is(err, sql.ErrNoRows) || database.IsInvalidKey(err) {
		return nil, nil
	}
	if err != nil {
		return nil, r.fail(op, err)
	}
	if len(row) == 0 {
		return nil, nil
	}
	return r.MapFields(normalize(row)), nil
}

func (r *repositoryImpl) FindByFilter(ctx context.Context, filter types.Filter) ([]types.Record, error) {
	w, err := r.filterWhere(repository.OpFindByFilter, filter)
	if err != nil {
		return nil, err
	}
	var rows []map[string]interface{}
	query := r.db.NewSelect().Table(r.table)
	if !w.empty() {
		query = query.Where(w.query, w.args...)
	}
	if err := query.Scan(ctx, &rows); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, r.fail(repository.OpFindByFilter, err)
	}
	return r.records(rows), nil
}

func (r *repositoryImpl) Update(ctx context.Context, id any, data types.Record) (types.Record, error) {
	if id == nil {
		return nil, nil
	}
	values := r.row(data)
	delete(values, r.pk)
	delete(values, repository.FieldID)
	if len(values) == 0 {
		return r.findOne(ctx, repository.OpUpdate, id)
	}
	if r.updatedAt != "" {
		if _, ok := values[r.updatedAt]; !ok {
			values[r.updatedAt] = now()
		}
	}
	w := r.pkWhere(id)
	if _, err := r.db.NewUpdate().Model(&values).Table(r.table).Where(w.query, w.args...).Exec(ctx); err != nil {
		if database.IsInvalidKey(err) {
			return nil, nil
		}
		return nil, r.fail(repository.OpUpdate, err)
	}
	return r.findOne(ctx, repository.OpUpdate, id)
}

func (r *repositoryImpl) Delete(ctx context.Context, id any) (bool, error) {
	if id == nil {
		return false, nil
	}
	w := r.pkWhere(id)
	res, err := r.db.NewDelete().Table(r.table).Where(w.query, w.args...).Exec(ctx)
	if database.IsInvalidKey(err) {
		return false, nil
	}
	if err != nil {
		return false, r.fail(repository.OpDelete, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, r.fail(repository.OpDelete, err)
	}
	return n > 0, nil
}

func (r *repositoryImpl) Count(ctx context.Context, filter types.Filter) (int64, error) {
	w, err := r.filterWhere(repository.OpCount, filter)
	if err != nil {
		return 0, err
	}
	query := r.db.NewSelect().Table(r.table)
	if !w.empty() {
		query = query.Where(w.query, w.args...)
	}
	n, err := query.Count(ctx)
	if err != nil {
		return 0, r.fail(repository.OpCount, err)
	}
	return int64(n), nil
}

func (r *repositoryImpl) UpdateMany(ctx context.Context, filter types.Filter, data types.Record) (int64, error) {
	w, err := r.filterWhere(repository.OpUpdateMany, filter)
	if err != nil {
		return 0, err
	}
	values := r.row(data)
	delete(values, r.pk)
	delete(values, repository.FieldID)
	if len(values) == 0 {
		return 0, nil
	}
	if r.updatedAt != "" {
		if _, ok := values[r.updatedAt]; !ok {
			values[r.updatedAt] = now()
		}
	}
	query := r.db.NewUpdate().Model(&values).Table(r.table)
	if w.empty() {
		query = query.Where("1 = 1")
	} else {
		query = query.Where(w.query, w.args...)
	}
	res, err := query.Exec(ctx)
	if err != nil {
		return 0, r.fail(repository.OpUpdateMany, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, r.fail(repository.OpUpdateMany, err)
	}
	return n, nil
}

func (r *repositoryImpl) DeleteMany(ctx context.Context, filter types.Filter) (int64, error) {
	w, err := r.filterWhere(repository.OpDeleteMany, filter)
	if err != nil {
		return 0, err
	}
	query := r.db.NewDelete().Table(r.table)
	if w.empty() {
		query = query.Where("1 = 1")
	} else {
		query = query.Where(w.query, w.args...)
	}
	res, err := query.Exec(ctx)
	if err != nil {
		return 0, r.fail(repository.OpDeleteMany, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, r.fail(repository.OpDeleteMany, err)
	}
	return n, nil
}

// ExecuteQuery runs raw SQL with "?" placeholders. Parameters are bound by
// the dialect formatter. Rows are returned with column spelling intact.
func (r *repositoryImpl) ExecuteQuery(ctx context.Context, query any, params ...any) ([]types.Record, error) {
	sqlText, ok := query.(string)
	if !ok || sqlText == "" {
		return nil, repository.Invalid(r.entity, repository.OpExecuteQuery,
			"relational query must be a non-empty SQL string, got %T", query)
	}
	var rows []map[string]interface{}
	if err := r.db.NewRaw(sqlText, params...).Scan(ctx, &rows); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, r.fail(repository.OpExecuteQuery, err)
	}
	out := make([]types.Record, 0, len(rows))
	for _, row := range rows {
		out = append(out, normalize(row))
	}
	return out, nil
}

func (r *repositoryImpl) MapFields(rec types.Record) types.Record {
	return r.fields.Rename(rec)
}

func (r *repositoryImpl) FormatResponse(data []types.Record, opts *types.QueryOptions) []types.Record {
	return r.settings.Format(data, opts)
}

func (r *repositoryImpl) records(rows []map[string]interface{}) []types.Record {
	out := make([]types.Record, 0, len(rows))
	for _, row := range rows {
		out = append(out, r.MapFields(normalize(row)))
	}
	return out
}

// normalize turns driver byte slices into strings so records read the same on every driver.
func normalize(row map[string]interface{}) types.Record {
	rec := make(types.Record, len(row))
	for k, v := range row {
		if b, ok := v.([]byte); ok {
			rec[k] = string(b)
			continue
		}
		rec[k] = v
	}
	return rec
}
