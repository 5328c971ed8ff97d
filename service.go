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


package anystore

import (
	"context"
	"fmt"
	"reflect"

	"github.com/tomoncle/anystore/repository"
	"github.com/tomoncle/anystore/types"
)

// Page is a typed page of results.
type Page[T any] struct {
	Data       []*T           `json:"data"`
	Pagination types.PageInfo `json:"pagination"`
}

// Service is a typed facade over a repository. T is decoded from and
// encoded to records through its json tags.
type Service[T any] struct {
	repo repository.Repository
}

// NewService returns a service for entity backed by the store's repository.
func NewService[T any](store *Store, entity string) (*Service[T], error) {
	repo, err := store.Repository(entity)
	if err != nil {
		return nil, err
	}
	return ServiceFor[T](repo), nil
}

// ServiceFor wraps an existing repository.
func ServiceFor[T any](repo repository.Repository) *Service[T] {
	return &Service[T]{repo: repo}
}

// Repository returns the underlying repository.
func (s *Service[T]) Repository() repository.Repository { return s.repo }

// Get returns nil, nil when no record has the id.
func (s *Service[T]) Get(ctx context.Context, id any) (*T, error) {
	rec, err := s.repo.FindByID(ctx, id)
	if err != nil || rec == nil {
		return nil, err
	}
	return s.decode(rec)
}

// List returns every record matching filter.
func (s *Service[T]) List(ctx context.Context, filter types.Filter) ([]*T, error) {
	recs, err := s.repo.FindByFilter(ctx, filter)
	if err != nil {
		return nil, err
	}
	return s.decodeAll(recs)
}

// Page returns one page of records.
func (s *Service[T]) Page(ctx context.Context, opts *types.QueryOptions) (*Page[T], error) {
	page, err := s.repo.FindAll(ctx, opts)
	if err != nil {
		return nil, err
	}
	data, err := s.decodeAll(page.Data)
	if err != nil {
		return nil, err
	}
	return &Page[T]{Data: data, Pagination: page.Pagination}, nil
}

// Query runs a backend-native query and decodes each row.
func (s *Service[T]) Query(ctx context.Context, query any, params ...any) ([]*T, error) {
	recs, err := s.repo.ExecuteQuery(ctx, query, params...)
	if err != nil {
		return nil, err
	}
	return s.decodeAll(recs)
}

// Save creates each model and fills it with the stored record, so generated
// ids and timestamps are visible to the caller.
func (s *Service[T]) Save(ctx context.Context, models ...*T) error {
	for _, model := range models {
		if model == nil {
			continue
		}
		rec, err := s.encode(model)
		if err != nil {
			return err
		}
		created, err := s.repo.Create(ctx, rec)
		if err != nil {
			return err
		}
		if err := types.Decode(created, model); err != nil {
			return s.decodeErr(err)
		}
	}
	return nil
}

// Update writes model over the record with id. It returns false when no
// record has the id.
func (s *Service[T]) Update(ctx context.Context, id any, model *T) (bool, error) {
	rec, err := s.encode(model)
	if err != nil {
		return false, err
	}
	updated, err := s.repo.Update(ctx, id, rec)
	if err != nil || updated == nil {
		return false, err
	}
	if err := types.Decode(updated, model); err != nil {
		return true, s.decodeErr(err)
	}
	return true, nil
}

// Delete reports whether a record was removed.
func (s *Service[T]) Delete(ctx context.Context, id any) (bool, error) {
	return s.repo.Delete(ctx, id)
}

// Count returns the number of records matching filter.
func (s *Service[T]) Count(ctx context.Context, filter types.Filter) (int64, error) {
	return s.repo.Count(ctx, filter)
}

func (s *Service[T]) encode(model *T) (types.Record, error) {
	if model == nil {
		return nil, repository.Invalid(s.repo.Entity(), repository.OpCreate, "model is nil")
	}
	rec, err := types.Encode(model)
	if err != nil {
		return nil, repository.Wrap(s.repo.Entity(), repository.OpCreate, err, true)
	}
	for _, key := range []string{repository.FieldID, repository.FieldCreatedAt, repository.FieldUpdatedAt} {
		if v, ok := rec[key]; ok && isZero(v) {
			delete(rec, key)
		}
	}
	return rec, nil
}

func (s *Service[T]) decode(rec types.Record) (*T, error) {
	out := new(T)
	if err := types.Decode(rec, out); err != nil {
		return nil, s.decodeErr(err)
	}
	return out, nil
}

func (s *Service[T]) decodeAll(recs []types.Record) ([]*T, error) {
	out := make([]*T, 0, len(recs))
	for _, rec := range recs {
		v, err := s.decode(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (s *Service[T]) decodeErr(err error) error {
	var zero T
	return fmt.Errorf("decode %s into %T: %w", s.repo.Entity(), zero, err)
}

func isZero(v any) bool {
	return v == nil || reflect.ValueOf(v).IsZero()
}
