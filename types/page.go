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
	"fmt"
	"strings"
)

// Pagination defaults applied when a request omits or mangles page/limit.
const (
	DefaultPage  = 1
	DefaultLimit = 20
	MaxLimit     = 1000
)

// SortField is one ORDER BY term. Fields use contract spelling (id, createdAt, ...).
type SortField struct {
	Field string `json:"field" yaml:"field"`
	Desc  bool   `json:"desc" yaml:"desc"`
}

// Asc returns an ascending sort term.
func Asc(field string) SortField { return SortField{Field: field} }

// Desc returns a descending sort term.
func Desc(field string) SortField { return SortField{Field: field, Desc: true} }

// Direction returns 1 for ascending and -1 for descending, the document store convention.
func (s SortField) Direction() int {
	if s.Desc {
		return -1
	}
	return 1
}

// ParseSort accepts "-createdAt", "createdAt", "name DESC" and "name asc" terms.
func ParseSort(specs ...string) ([]SortField, error) {
	fields := make([]SortField, 0, len(specs))
	for _, spec := range specs {
		for _, term := range strings.Split(spec, ",") {
			term = strings.TrimSpace(term)
			if term == "" {
				continue
			}
			parts := strings.Fields(term)
			switch len(parts) {
			case 1:
				if strings.HasPrefix(parts[0], "-") {
					fields = append(fields, Desc(strings.TrimPrefix(parts[0], "-")))
				} else {
					fields = append(fields, Asc(strings.TrimPrefix(parts[0], "+")))
				}
			case 2:
				switch strings.ToUpper(parts[1]) {
				case "ASC":
					fields = append(fields, Asc(parts[0]))
				case "DESC":
					fields = append(fields, Desc(parts[0]))
				default:
					return nil, fmt.Errorf("invalid sort direction %q in %q", parts[1], term)
				}
			default:
				return nil, fmt.Errorf("invalid sort term %q", term)
			}
		}
	}
	return fields, nil
}

// QueryOptions carries filter, pagination and ordering for paginated reads.
type QueryOptions struct {
	Filter Filter      `json:"filter,omitempty"`
	Page   int         `json:"page,omitempty"`
	Limit  int         `json:"limit,omitempty"`
	Sort   []SortField `json:"sort,omitempty"`
}

// NewQueryOptions constructs options for the given page and limit.
func NewQueryOptions(page, limit int) *QueryOptions {
	return &QueryOptions{Page: page, Limit: limit}
}

// WithFilter sets the filter and returns the options for chaining.
func (o *QueryOptions) WithFilter(filter Filter) *QueryOptions {
	o.Filter = filter
	return o
}

// WithSort sets the ordering and returns the options for chaining.
func (o *QueryOptions) WithSort(fields ...SortField) *QueryOptions {
	o.Sort = fields
	return o
}

// GetPage returns the requested page, DefaultPage when absent or below 1.
func (o *QueryOptions) GetPage() int {
	if o == nil || o.Page < 1 {
		return DefaultPage
	}
	return o.Page
}

// GetLimit returns the page size, DefaultLimit when absent or below 1.
func (o *QueryOptions) GetLimit() int {
	if o == nil || o.Limit < 1 {
		return DefaultLimit
	}
	if o.Limit > MaxLimit {
		return MaxLimit
	}
	return o.Limit
}

// GetOffset returns the number of rows skipped before the requested page.
func (o *QueryOptions) GetOffset() int {
	return (o.GetPage() - 1) * o.GetLimit()
}

// GetFilter never returns nil.
func (o *QueryOptions) GetFilter() Filter {
	if o == nil || o.Filter == nil {
		return Filter{}
	}
	return o.Filter
}

// GetSort returns the requested ordering, or nil when the caller left it to the backend.
func (o *QueryOptions) GetSort() []SortField {
	if o == nil {
		return nil
	}
	return o.Sort
}

// PageInfo describes where a page sits in the full result set.
type PageInfo struct {
	Current int   `json:"current"`
	Pages   int   `json:"pages"`
	Total   int64 `json:"total"`
}

// Pagination is the result of a paginated read.
type Pagination struct {
	Data       []Record `json:"data"`
	Pagination PageInfo `json:"pagination"`
}

// NewPagination builds a result. Current echoes page even when it lies past the last page.
func NewPagination(page, limit int, total int64, data []Record) *Pagination {
	if data == nil {
		data = make([]Record, 0)
	}
	return &Pagination{
		Data: data,
		Pagination: PageInfo{
			Current: page,
			Pages:   PageCount(total, limit),
			Total:   total,
		},
	}
}

// PageCount returns ceil(total/limit).
func PageCount(total int64, limit int) int {
	if total <= 0 || limit < 1 {
		return 0
	}
	l := int64(limit)
	return int((total + l - 1) / l)
}
