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

package relational_test

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"github.com/tomoncle/anystore/repository"
	"github.com/tomoncle/anystore/repository/relational"
	"github.com/tomoncle/anystore/types"
)

func newMocked(t *testing.T) (repository.Repository, sqlmock.Sqlmock) {
	t.Helper()
	sqldb, mock, err := sqlmock.New()
	require.NoError(t, err)
	db := bun.NewDB(sqldb, pgdialect.New())
	t.Cleanup(func() { _ = db.Close() })

	repo, err := relational.New("Order", relational.NewTable(db, "orders"))
	require.NoError(t, err)
	return repo, mock
}

func TestStorageFailureIsWrapped(t *testing.T) {
	refused := errors.New("dial tcp 10.0.0.1:5432: connect: connection refused")
	repo, mock := newMocked(t)
	mock.ExpectQuery(`SELECT count\(\*\) FROM "orders"`).
		WillReturnError(refused)

	_, err := repo.Count(context.Background(), types.Filter{"status": "pending"})
	require.Error(t, err)
	assert.True(t, repository.IsStorage(err))
	assert.False(t, repository.IsValidation(err))
	assert.Contains(t, err.Error(), "Failed to count Order: ")
	assert.True(t, errors.Is(err, refused))

	var se *repository.StorageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "Order", se.Entity)
	assert.Equal(t, repository.OpCount, se.Op)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUniqueViolationIsValidation(t *testing.T) {
	repo, mock := newMocked(t)
	mock.ExpectQuery(`INSERT INTO "orders"`).
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"})

	_, err := repo.Create(context.Background(), types.Record{"status": "pending"})
	require.Error(t, err)
	assert.True(t, repository.IsValidation(err))

	var pqErr *pq.Error
	assert.ErrorAs(t, err, &pqErr)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteReportsRowsAffected(t *testing.T) {
	repo, mock := newMocked(t)
	mock.ExpectExec(`DELETE FROM "orders" WHERE \("id" = 7\)`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM "orders" WHERE \("id" = 8\)`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.Delete(context.Background(), 7)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Delete(context.Background(), 8)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateManyWithoutFilterTouchesEveryRow(t *testing.T) {
	repo, mock := newMocked(t)
	mock.ExpectExec(`UPDATE "orders" SET .* WHERE \(1 = 1\)`).
		WillReturnResult(sqlmock.NewResult(0, 4))

	n, err := repo.UpdateMany(context.Background(), nil, types.Record{"status": "archived"})
	require.NoError(t, err)
	assert.EqualValues(t, 4, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMalformedKeyIsNotFound(t *testing.T) {
	ctx := context.Background()
	badKey := &pq.Error{Code: "22P02", Message: `invalid input syntax for type bigint: "nonexistent"`}
	repo, mock := newMocked(t)
	mock.ExpectQuery(`SELECT .* FROM "orders" WHERE \("id" = 'nonexistent'\)`).
		WillReturnError(badKey)
	mock.ExpectExec(`UPDATE "orders" SET .* WHERE \("id" = 'nonexistent'\)`).
		WillReturnError(badKey)
	mock.ExpectExec(`DELETE FROM "orders" WHERE \("id" = 'nonexistent'\)`).
		WillReturnError(badKey)

	rec, err := repo.FindByID(ctx, "nonexistent")
	require.NoError(t, err)
	assert.Nil(t, rec)

	rec, err = repo.Update(ctx, "nonexistent", types.Record{"status": "paid"})
	require.NoError(t, err)
	assert.Nil(t, rec)

	ok, err := repo.Delete(ctx, "nonexistent")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}
