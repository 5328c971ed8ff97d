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
	"context"
	"fmt"
	"strings"

	"github.com/tomoncle/anystore/types"
)

// ReadRepository defines the read side of the contract.
type ReadRepository interface {
	// FindAll returns one page of records matching opts.Filter.
	FindAll(ctx context.Context, opts *types.QueryOptions) (*types.Pagination, error)

	// FindByID returns nil, nil when no record has the id.
	FindByID(ctx context.Context, id any) (types.Record, error)

	FindByFilter(ctx context.Context, filter types.Filter) ([]types.Record, error)

	Count(ctx context.Context, filter types.Filter) (int64, error)
}

// WriteRepository defines the single-record write side of the contract.
type WriteRepository interface {
	Create(ctx context.Context, data types.Record) (types.Record, error)

	// Update returns nil, nil when no record has the id.
	Update(ctx context.Context, id any, data types.Record) (types.Record, error)

	Delete(ctx context.Context, id any) (bool, error)
}

// BulkRepository defines filter-scoped writes and native queries.
type BulkRepository interface {
	UpdateMany(ctx context.Context, filter types.Filter, data types.Record) (int64, error)

	DeleteMany(ctx context.Context, filter types.Filter) (int64, error)

	// ExecuteQuery runs a backend-native query: SQL text with positional
	// parameters, or an aggregation pipeline.
	ExecuteQuery(ctx context.Context, query any, params ...any) ([]types.Record, error)
}

// Repository is the backend-independent contract every implementation satisfies.
type Repository interface {
	ReadRepository
	WriteRepository
	BulkRepository

	// MapFields rewrites backend spellings (created_at, _id) to generic names.
	MapFields(rec types.Record) types.Record

	// FormatResponse shapes a page of records before it is returned.
	FormatResponse(data []types.Record, opts *types.QueryOptions) []types.Record

	Entity() string
	Kind() Kind
}

// Kind identifies a storage backend family.
type Kind int

const (
	KindUnknown Kind = iota
	Relational
	Document
)

var kindNames = map[Kind]string{
	Relational: "relational",
	Document:   "document",
}

var kindDescs = map[Kind]string{
	Relational: "row based store queried with SQL",
	Document:   "collection based store queried with documents and pipelines",
}

var kindAliases = map[string]Kind{
	"relational": Relational,
	"sql":        Relational,
	"postgres":   Relational,
	"postgresql": Relational,
	"mysql":      Relational,
	"sqlite":     Relational,
	"sqlite3":    Relational,
	"document":   Document,
	"mongo":      Document,
	"mongodb":    Document,
	"nosql":      Document,
}

func (k Kind) IsValid() bool { return k == Relational || k == Document }

func (k Kind) Number() int {
	if !k.IsValid() {
		return types.IllegalValue
	}
	return int(k)
}

func (k Kind) Name() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return types.IllegalName
}

func (k Kind) String() string { return k.Name() }

func (k Kind) Desc() string {
	if d, ok := kindDescs[k]; ok {
		return d
	}
	return types.IllegalDesc
}

var _ types.BaseEnum = Kind(0)

// ParseKind resolves a backend name or driver alias.
func ParseKind(name string) (Kind, error) {
	if k, ok := kindAliases[strings.ToLower(strings.TrimSpace(name))]; ok {
		return k, nil
	}
	return KindUnknown, fmt.Errorf("unknown backend %q", name)
}

// MarshalText implements encoding.TextMarshaler so Kind round-trips through config files.
func (k Kind) MarshalText() ([]byte, error) {
	if !k.IsValid() {
		return nil, fmt.Errorf("invalid backend kind %d", int(k))
	}
	return []byte(k.Name()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
