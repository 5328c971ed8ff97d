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
	"github.com/uptrace/bun"

	"github.com/tomoncle/anystore/repository"
)

// Model is a relational handle: a session bound to one table.
type Model interface {
	DB() bun.IDB
	TableName() string
	PrimaryKey() string
}

// Timestamped is implemented by models that maintain creation and update columns.
type Timestamped interface {
	Timestamps() (created, updated string)
}

// Table is the default Model implementation.
type Table struct {
	db        bun.IDB
	name      string
	pk        string
	createdAt string
	updatedAt string
}

// TableOption customises a Table.
type TableOption func(*Table)

// WithPrimaryKey overrides the primary key column (default "id").
func WithPrimaryKey(column string) TableOption {
	return func(t *Table) { t.pk = column }
}

// WithTimestamps overrides the timestamp columns (default created_at/updated_at).
func WithTimestamps(created, updated string) TableOption {
	return func(t *Table) {
		t.createdAt = created
		t.updatedAt = updated
	}
}

// WithoutTimestamps disables timestamp maintenance for tables that have no such columns.
func WithoutTimestamps() TableOption {
	return WithTimestamps("", "")
}

// NewTable binds db to the named table.
func NewTable(db bun.IDB, name string, opts ...TableOption) *Table {
	t := &Table{
		db:        db,
		name:      name,
		pk:        "id",
		createdAt: "created_at",
		updatedAt: "updated_at",
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// NewEntityTable binds db to the table conventionally named after entity (Order -> orders).
func NewEntityTable(db bun.IDB, entity string, opts ...TableOption) *Table {
	return NewTable(db, repository.TableName(entity), opts...)
}

func (t *Table) DB() bun.IDB { return t.db }

func (t *Table) TableName() string { return t.name }

func (t *Table) PrimaryKey() string { return t.pk }

func (t *Table) Timestamps() (string, string) { return t.createdAt, t.updatedAt }

// RelationalModel lets a Table be recognised when nested inside other handles.
func (t *Table) RelationalModel() Model { return t }
