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

import "github.com/tomoncle/anystore/types"

// Formatter shapes a page of records before FindAll returns it.
type Formatter func(data []types.Record, opts *types.QueryOptions) []types.Record

// Settings holds construction options shared by both implementations.
type Settings struct {
	Formatter   Formatter
	DefaultSort []types.SortField
}

// Option customises a repository at construction time.
type Option func(*Settings)

// WithFormatter installs a response formatter; the default returns data unchanged.
func WithFormatter(f Formatter) Option {
	return func(s *Settings) { s.Formatter = f }
}

// WithDefaultSort replaces the backend's default ordering for FindAll.
func WithDefaultSort(fields ...types.SortField) Option {
	return func(s *Settings) { s.DefaultSort = fields }
}

// ApplyOptions folds opts into a Settings value.
func ApplyOptions(opts ...Option) Settings {
	var s Settings
	for _, opt := range opts {
		if opt != nil {
			opt(&s)
		}
	}
	return s
}

// Format runs the configured formatter, if any.
func (s Settings) Format(data []types.Record, opts *types.QueryOptions) []types.Record {
	if s.Formatter == nil {
		return data
	}
	return s.Formatter(data, opts)
}
