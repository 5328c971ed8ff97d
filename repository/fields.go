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
	"strings"

	"github.com/ettle/strcase"
	"github.com/jinzhu/inflection"
	"github.com/tomoncle/anystore/types"
)

// Generic field names every repository speaks.
const (
	FieldID        = "id"
	FieldCreatedAt = "createdAt"
	FieldUpdatedAt = "updatedAt"
)

// FieldMap maps generic field names to a backend's spelling. Names absent
// from the map are passed through unchanged.
type FieldMap map[string]string

// Column returns the backend spelling of a generic name.
func (m FieldMap) Column(name string) string {
	if c, ok := m[name]; ok && c != "" {
		return c
	}
	return name
}

// Columns rewrites the keys of rec from generic to backend spelling.
func (m FieldMap) Columns(rec types.Record) types.Record {
	if rec == nil {
		return nil
	}
	out := make(types.Record, len(rec))
	for k, v := range rec {
		out[m.Column(k)] = v
	}
	return out
}

// Rename rewrites backend spellings to generic names, overwriting any
// generic key already present.
func (m FieldMap) Rename(rec types.Record) types.Record {
	if rec == nil {
		return nil
	}
	out := rec.Clone()
	for generic, backend := range m {
		if generic == backend {
			continue
		}
		if v, ok := out[backend]; ok {
			out[generic] = v
			delete(out, backend)
		}
	}
	return out
}

// Fold copies backend spellings to generic names only when the generic key
// is absent. The backend key is dropped once it has been folded.
func (m FieldMap) Fold(rec types.Record) types.Record {
	if rec == nil {
		return nil
	}
	out := rec.Clone()
	for generic, backend := range m {
		if generic == backend {
			continue
		}
		v, ok := out[backend]
		if !ok {
			continue
		}
		if _, exists := out[generic]; exists {
			continue
		}
		out[generic] = v
		delete(out, backend)
	}
	return out
}

// TableName derives a table or collection name from an entity name:
// Order -> orders, OrderItem -> order_items, HTTPRequest -> http_requests.
func TableName(entity string) string {
	u := strcase.ToSnake(entity)
	if u == "" {
		return ""
	}
	parts := strings.Split(u, "_")
	parts[len(parts)-1] = inflection.Plural(parts[len(parts)-1])
	return strings.Join(parts, "_")
}
