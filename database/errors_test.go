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


package database

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestIsSqlError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		ok   bool
		kind SQLError
	}{
		{"nil", nil, false, UnknownErr},
		{"mysql duplicate", &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}, true, DuplicateKeyErr},
		{"mysql unknown", &mysql.MySQLError{Number: 2013}, true, UnknownErr},
		{"pq not null", &pq.Error{Code: "23502"}, true, NotNullViolationErr},
		{"pq exclusion", &pq.Error{Code: "23P01"}, true, CheckConstraintViolationErr},
		{"pq wrapped", fmt.Errorf("insert: %w", &pq.Error{Code: "42P01"}), true, NoTableErr},
		{"sqlite unique", errors.New("UNIQUE constraint failed: orders.code"), true, DuplicateKeyErr},
		{"sqlite column", errors.New("table orders has no column named colour"), true, NoColumnErr},
		{"plain", errors.New("connection refused"), false, UnknownErr},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ok, kind := IsSqlError(tc.err)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.kind, kind, kind.String())
		})
	}
}

func TestIsConstraintViolation(t *testing.T) {
	assert.True(t, IsConstraintViolation(errors.New("NOT NULL constraint failed: orders.status")))
	assert.True(t, IsConstraintViolation(&pq.Error{Code: "23503"}))
	assert.False(t, IsConstraintViolation(errors.New("no such table: orders")))
	assert.False(t, IsConstraintViolation(errors.New("i/o timeout")))
}

func TestIsInvalidKey(t *testing.T) {
	assert.True(t, IsInvalidKey(&pq.Error{Code: "22P02", Message: `invalid input syntax for type bigint: "abc"`}))
	assert.True(t, IsInvalidKey(&mysql.MySQLError{Number: 1292, Message: "Truncated incorrect DOUBLE value: 'abc'"}))
	assert.True(t, IsInvalidKey(errors.New(`ERROR: invalid input syntax for type integer: "x" (SQLSTATE 22P02)`)))
	assert.False(t, IsInvalidKey(&pq.Error{Code: "23505"}))
	assert.False(t, IsInvalidKey(errors.New("connection refused")))
	assert.False(t, IsInvalidKey(nil))
}
